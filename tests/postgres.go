//go:build integration

package testutil

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"

	"github.com/trezcool/maktaba/storage/database"
)

const postgresImage = "postgres:16-alpine"

// PreparePostgres starts a throwaway Postgres container, migrates it and returns a connection.
// The container is terminated when the test ends.
func PreparePostgres(t *testing.T) *sql.DB {
	t.Helper()
	ctx := context.Background()

	ctr, err := postgres.Run(ctx, postgresImage,
		postgres.WithDatabase("maktaba_test"),
		postgres.WithUsername("maktaba"),
		postgres.WithPassword("maktaba"),
		postgres.BasicWaitStrategies(),
	)
	testcontainers.CleanupContainer(t, ctr)
	if err != nil {
		t.Fatalf("starting postgres container: %v", err)
	}

	dsn, err := ctr.ConnectionString(ctx, "sslmode=disable", "timezone=utc")
	if err != nil {
		t.Fatalf("ConnectionString(): %v", err)
	}
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		t.Fatalf("sql.Open(): %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })
	db.SetConnMaxLifetime(time.Minute)

	if err = database.Migrate(db, "up"); err != nil {
		t.Fatalf("Migrate(): %v", err)
	}
	return db
}

// ResetPostgres empties every table.
func ResetPostgres(t *testing.T, db *sql.DB) {
	t.Helper()
	if _, err := db.Exec(`TRUNCATE loans, books, members`); err != nil {
		t.Fatalf("ResetPostgres(): %v", err)
	}
}
