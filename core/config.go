package core

import (
	"log"
	"net"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

type (
	Config struct {
		AppName      string
		Build        string
		Env          string // DEV (local; default), TEST, QA, PROD
		Debug        bool
		TestMode     bool
		SecretKey    string
		RollbarToken string

		Server   ServerConfig
		Database DatabaseConfig
		Library  LibraryConfig
	}

	ServerConfig struct {
		Host               string
		DebugHost          string
		ReadTimeout        time.Duration
		WriteTimeout       time.Duration
		ShutdownTimeout    time.Duration
		JWTExpirationDelta time.Duration
		DisableReqLogs     bool
	}

	DatabaseConfig struct {
		Engine        string // postgres (lib/pq), pgx or memory
		Host          string
		Port          string
		Name          string
		User          string
		Password      string
		AdminUser     string
		AdminPassword string
		DisableTLS    bool
	}

	LibraryConfig struct {
		FinePerDay      string // decimal, currency units per day late
		DefaultLoanDays int
		DefaultPageSize int
		MaxPageSize     int
	}
)

func (dc DatabaseConfig) Address() string {
	return net.JoinHostPort(dc.Host, dc.Port)
}

// InMemory reports whether the ledger runs without an external database.
func (dc DatabaseConfig) InMemory() bool {
	return dc.Engine == "memory"
}

// NewConfig loads the application configuration from the environment.
// `config/.env.<env>` is loaded first when it exists.
func NewConfig() *Config {
	v := viper.New()

	env := strings.ToUpper(os.Getenv("ENV"))
	if env == "" {
		env = "DEV"
	}

	// defaults
	v.SetTypeByDefaultValue(true)
	v.SetDefault("debug", env == "DEV")
	v.SetDefault("testMode", env == "TEST")
	v.SetDefault("appName", "Maktaba")
	v.SetDefault("build", "develop")
	v.SetDefault("secretKey", "x9r#kd2$+pw!ub4=mq&zt7c(l0v)e8s*h3j^a6g@n1y5f")
	v.SetDefault("rollbarToken", "")

	v.SetDefault("server_host", "0.0.0.0:8000")
	v.SetDefault("server_debugHost", "0.0.0.0:4000")
	v.SetDefault("server_readTimeout", 5*time.Second)
	v.SetDefault("server_writeTimeout", 5*time.Second)
	v.SetDefault("server_shutdownTimeout", 5*time.Second)
	v.SetDefault("server_jwtExpirationDelta", 7*24*time.Hour)
	v.SetDefault("server_disableReqLogs", false)

	v.SetDefault("db_engine", "postgres")
	v.SetDefault("db_host", "localhost")
	v.SetDefault("db_port", "5432")
	v.SetDefault("db_name", "maktaba")
	v.SetDefault("db_user", "maktaba")
	v.SetDefault("db_password", "maktaba")
	v.SetDefault("db_adminUser", "postgres")
	v.SetDefault("db_adminPassword", "postgres")
	v.SetDefault("db_disableTLS", env == "DEV" || env == "TEST")

	v.SetDefault("library_finePerDay", "0.50")
	v.SetDefault("library_defaultLoanDays", 14)
	v.SetDefault("library_defaultPageSize", 50)
	v.SetDefault("library_maxPageSize", 500)

	// load .env if it exists (ignore if it does not)
	dotEnvPath := filepath.Join(ProjectRoot(), "config", ".env."+strings.ToLower(env))
	if _, err := os.Stat(dotEnvPath); err == nil {
		if err := godotenv.Load(dotEnvPath); err != nil {
			log.Fatalf("config.godotenv(%s): %v", dotEnvPath, err)
		}
	} else if !os.IsNotExist(err) {
		log.Fatalf("config.os.Stat(%s): %v", dotEnvPath, err)
	}

	// e.g. DEV_DB_HOST, PROD_LIBRARY_FINEPERDAY
	v.SetEnvPrefix(env)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	return &Config{
		AppName:      v.GetString("appName"),
		Build:        v.GetString("build"),
		Env:          env,
		Debug:        v.GetBool("debug"),
		TestMode:     v.GetBool("testMode"),
		SecretKey:    v.GetString("secretKey"),
		RollbarToken: v.GetString("rollbarToken"),
		Server: ServerConfig{
			Host:               v.GetString("server_host"),
			DebugHost:          v.GetString("server_debugHost"),
			ReadTimeout:        v.GetDuration("server_readTimeout"),
			WriteTimeout:       v.GetDuration("server_writeTimeout"),
			ShutdownTimeout:    v.GetDuration("server_shutdownTimeout"),
			JWTExpirationDelta: v.GetDuration("server_jwtExpirationDelta"),
			DisableReqLogs:     v.GetBool("server_disableReqLogs"),
		},
		Database: DatabaseConfig{
			Engine:        v.GetString("db_engine"),
			Host:          v.GetString("db_host"),
			Port:          v.GetString("db_port"),
			Name:          v.GetString("db_name"),
			User:          v.GetString("db_user"),
			Password:      v.GetString("db_password"),
			AdminUser:     v.GetString("db_adminUser"),
			AdminPassword: v.GetString("db_adminPassword"),
			DisableTLS:    v.GetBool("db_disableTLS"),
		},
		Library: LibraryConfig{
			FinePerDay:      v.GetString("library_finePerDay"),
			DefaultLoanDays: v.GetInt("library_defaultLoanDays"),
			DefaultPageSize: v.GetInt("library_defaultPageSize"),
			MaxPageSize:     v.GetInt("library_maxPageSize"),
		},
	}
}

// NewTestConfig returns the configuration used by tests: in-memory storage, no request logs.
func NewTestConfig() *Config {
	conf := NewConfig()
	conf.Env = "TEST"
	conf.TestMode = true
	conf.Debug = false
	conf.Database.Engine = "memory"
	conf.Server.DisableReqLogs = true
	return conf
}
