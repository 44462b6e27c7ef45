package migrate

import (
	"context"
	"fmt"

	"github.com/angelmondragon/vertical-shop/pkg/config"
	"github.com/angelmondragon/vertical-shop/pkg/db"
	"github.com/angelmondragon/vertical-shop/pkg/db/models"
	"github.com/angelmondragon/vertical-shop/pkg/logger"
)

// MaybeRunDev brings the schema up on startup when running in dev with
// VSHOP_AUTO_MIGRATE enabled.
func MaybeRunDev(ctx context.Context, cfg *config.Config, logg *logger.Logger, client *db.Client) error {
	if !cfg.App.IsDev() || !cfg.Service.AutoMigrate {
		return nil
	}
	ctx = logg.WithField(ctx, "env", cfg.App.Env)
	return Up(ctx, cfg.DB, client, logg)
}

// Up brings the schema to the latest version. Postgres runs the embedded goose
// migrations. SQLite is built from the models instead: its driver only scans
// columns declared timestamp, datetime or date into time.Time, and the
// migrations declare timestamptz.
func Up(ctx context.Context, cfg config.DBConfig, client *db.Client, logg *logger.Logger) error {
	if cfg.IsSQLite() {
		logg.Info(ctx, "creating sqlite schema from models")
		if err := client.DB().WithContext(ctx).AutoMigrate(models.All()...); err != nil {
			return fmt.Errorf("sqlite auto-migrate: %w", err)
		}
		return nil
	}

	sqlDB, err := client.DB().DB()
	if err != nil {
		return fmt.Errorf("extracting sql.DB: %w", err)
	}

	dialect := DialectFor(cfg.Driver)
	ctx = logg.WithField(ctx, "dialect", dialect)
	logg.Info(ctx, "running goose migrations")

	if err := Run(ctx, sqlDB, dialect, "", "up"); err != nil {
		return fmt.Errorf("running goose up: %w", err)
	}

	logg.Info(ctx, "goose migrations completed")
	return nil
}
