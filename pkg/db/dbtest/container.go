//go:build integration

package dbtest

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/testcontainers/testcontainers-go"
	tcpostgres "github.com/testcontainers/testcontainers-go/modules/postgres"
	"gorm.io/gorm"
)

const postgresImage = "postgres:16-alpine"

// StartPostgres uses VSHOP_TEST_DB_DSN when set and otherwise boots a
// throwaway Postgres container for the test.
func StartPostgres(t testing.TB) *gorm.DB {
	t.Helper()
	if dsn := os.Getenv(EnvPostgresDSN); dsn != "" {
		return OpenPostgresDSN(t, dsn)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()

	ctr, err := tcpostgres.Run(ctx, postgresImage,
		tcpostgres.WithDatabase("vshop"),
		tcpostgres.WithUsername("vshop"),
		tcpostgres.WithPassword("vshop"),
		tcpostgres.BasicWaitStrategies(),
	)
	if err != nil {
		t.Fatalf("failed to start postgres container: %v", err)
	}
	t.Cleanup(func() {
		if err := testcontainers.TerminateContainer(ctr); err != nil {
			t.Logf("terminate postgres container: %v", err)
		}
	})

	dsn, err := ctr.ConnectionString(ctx, "sslmode=disable")
	if err != nil {
		t.Fatalf("failed to read container dsn: %v", err)
	}
	return OpenPostgresDSN(t, dsn)
}
