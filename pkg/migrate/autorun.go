package migrate

import (
	"context"
	"fmt"

	"github.com/angelmondragon/handoffdesk-backend/pkg/config"
	"github.com/angelmondragon/handoffdesk-backend/pkg/db"
	"github.com/angelmondragon/handoffdesk-backend/pkg/logger"
)

// MaybeRunDev brings the schema up to date at boot, but only in dev with
// HANDOFFDESK_AUTO_MIGRATE set. Other environments run cmd/migrate explicitly.
func MaybeRunDev(ctx context.Context, cfg *config.Config, logg *logger.Logger, client *db.Client) error {
	if !cfg.App.IsDev() || !cfg.FeatureFlags.AutoMigrate {
		return nil
	}
	ctx = logg.WithField(ctx, "driver", cfg.DB.Driver)

	if cfg.DB.Driver == db.DriverSQLite {
		if err := ApplySQLiteSchema(ctx, client.DB()); err != nil {
			return fmt.Errorf("apply sqlite schema: %w", err)
		}
		logg.Info(ctx, "dev schema applied")
		return nil
	}

	sqlDB, err := client.DB().DB()
	if err != nil {
		return fmt.Errorf("extracting sql.DB: %w", err)
	}
	if err := Run(ctx, sqlDB, DefaultDir, "up"); err != nil {
		return err
	}
	logg.Info(logg.WithField(ctx, "dir", DefaultDir), "dev migrations applied")
	return nil
}
