package logsvc

import (
	"io"

	"github.com/rollbar/rollbar-go"
	"github.com/rollbar/rollbar-go/errors"
	"github.com/sirupsen/logrus"

	"github.com/trezcool/maktaba/core"
	"github.com/trezcool/maktaba/core/member"
)

type RollbarLogger struct {
	std *logrus.Logger
}

var _ core.Logger = (*RollbarLogger)(nil)

// NewRollbarLogger writes JSON entries to out (text entries in debug mode) and reports them to rollbar.
func NewRollbarLogger(out io.Writer, name string, conf *core.Config) *RollbarLogger {
	rollbar.SetToken(conf.RollbarToken)
	rollbar.SetEnvironment(conf.Env)
	rollbar.SetServerHost(conf.Server.Host)
	rollbar.SetCodeVersion(conf.Build)
	rollbar.SetStackTracer(errors.StackTracer)

	std := logrus.New()
	std.SetOutput(out)
	std.SetLevel(logrus.InfoLevel)
	if conf.Debug {
		std.SetLevel(logrus.DebugLevel)
		std.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	} else {
		std.SetFormatter(&logrus.JSONFormatter{})
	}
	std.AddHook(loggerNameHook(name))
	return &RollbarLogger{std: std}
}

func (l RollbarLogger) Enable(enabled bool) {
	rollbar.SetEnabled(enabled)
}

// expected fmt: msg | error, map[string]interface{}, member.Member
func (l RollbarLogger) prepare(msg string, args []interface{}) ([]interface{}, *logrus.Entry) {
	var mbrSet bool
	newArgs := make([]interface{}, 0, len(args)+1)
	newArgs = append(newArgs, msg)
	fields := logrus.Fields{}
	for _, arg := range args {
		switch a := arg.(type) {
		case member.Member:
			// set acting Member
			if !mbrSet { // only set one Member
				rollbar.SetPerson(a.ID, a.Name, a.Email)
				fields["member"] = a.ID
				mbrSet = true
			}
			continue
		case error:
			fields[logrus.ErrorKey] = a.Error()
		case map[string]interface{}:
			for k, v := range a {
				fields[k] = v
			}
		}
		newArgs = append(newArgs, arg)
	}
	if !mbrSet {
		rollbar.ClearPerson()
	}
	return newArgs, l.std.WithFields(fields)
}

func (l RollbarLogger) Debug(msg string, args ...interface{}) {
	rbArgs, entry := l.prepare(msg, args)
	rollbar.Debug(rbArgs...)
	entry.Debug(msg)
}

func (l RollbarLogger) Info(msg string, args ...interface{}) {
	rbArgs, entry := l.prepare(msg, args)
	rollbar.Info(rbArgs...)
	entry.Info(msg)
}

func (l RollbarLogger) Warn(msg string, args ...interface{}) {
	rbArgs, entry := l.prepare(msg, args)
	rollbar.Warning(rbArgs...)
	entry.Warn(msg)
}

func (l RollbarLogger) Error(msg string, args ...interface{}) {
	rbArgs, entry := l.prepare(msg, args)
	rollbar.Error(rbArgs...)
	entry.Error(msg)
}

func (l RollbarLogger) Fatal(msg string, args ...interface{}) {
	rbArgs, entry := l.prepare(msg, args)
	rollbar.Critical(rbArgs...)
	rollbar.Wait()
	entry.Fatal(msg)
}

// loggerNameHook tags every entry with the name of the logger that emitted it.
type loggerNameHook string

func (h loggerNameHook) Levels() []logrus.Level { return logrus.AllLevels }

func (h loggerNameHook) Fire(entry *logrus.Entry) error {
	if h != "" {
		entry.Data["logger"] = string(h)
	}
	return nil
}
