package migrate

import (
	"context"
	"fmt"

	"github.com/pressly/goose/v3"

	"github.com/castmaster/castmaster-backend/pkg/config"
	"github.com/castmaster/castmaster-backend/pkg/db"
	"github.com/castmaster/castmaster-backend/pkg/logger"
)

// MaybeRunDev brings a dev database up to the embedded schema when
// CASTMASTER_AUTO_MIGRATE is set. Other environments migrate through
// cmd/migrate only.
func MaybeRunDev(ctx context.Context, cfg *config.Config, logg *logger.Logger, client *db.Client) error {
	if !cfg.App.IsDev() || !cfg.FeatureFlags.AutoMigrate {
		return nil
	}
	pool, err := client.DB().DB()
	if err != nil {
		return fmt.Errorf("extracting sql.DB: %w", err)
	}
	if err := Run(ctx, pool, "", "up"); err != nil {
		return fmt.Errorf("dev auto-migrate: %w", err)
	}
	version, err := goose.GetDBVersionContext(ctx, pool)
	if err != nil {
		return fmt.Errorf("read schema version: %w", err)
	}
	logg.Info(logg.WithField(ctx, "schema_version", version), "migrate.dev_autorun.done")
	return nil
}
