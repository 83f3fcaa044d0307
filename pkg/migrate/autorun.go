package migrate

import (
	"context"
	"fmt"
	"io/fs"
	"time"

	"github.com/pressly/goose/v3"

	"github.com/angelmondragon/storefront-backend/pkg/config"
	"github.com/angelmondragon/storefront-backend/pkg/db"
	"github.com/angelmondragon/storefront-backend/pkg/logger"
)

// EmbeddedVersion returns the newest migration version compiled into the binary.
func EmbeddedVersion() (int64, error) {
	sub, err := fs.Sub(embedded, embeddedDir)
	if err != nil {
		return 0, fmt.Errorf("open embedded migrations: %w", err)
	}
	return LatestVersion(sub)
}

func shouldAutoRun(cfg *config.Config) bool {
	return cfg != nil && cfg.App.IsDev() && cfg.FeatureFlags.AutoMigrate
}

// MaybeRunDev applies pending embedded migrations on boot when running in dev
// with STOREFRONT_AUTO_MIGRATE set. Other environments run cmd/migrate instead.
func MaybeRunDev(ctx context.Context, cfg *config.Config, logg *logger.Logger, client *db.Client) error {
	if !shouldAutoRun(cfg) {
		return nil
	}

	sqlDB, err := client.DB().DB()
	if err != nil {
		return fmt.Errorf("extracting sql.DB: %w", err)
	}
	target, err := EmbeddedVersion()
	if err != nil {
		return err
	}
	if err := prepare(); err != nil {
		return err
	}
	current, err := goose.GetDBVersionContext(ctx, sqlDB)
	if err != nil {
		return fmt.Errorf("get db version: %w", err)
	}

	ctx = logg.WithFields(ctx, map[string]any{
		"env":             cfg.App.Env,
		"db_version":      current,
		"embedded_target": target,
	})
	if current >= target {
		logg.Info(ctx, "schema up to date; skipping dev auto-migrate")
		return nil
	}

	logg.Info(ctx, "running goose migrations (dev auto-run)")
	start := time.Now()
	if err := Run(ctx, sqlDB, "up"); err != nil {
		return fmt.Errorf("running goose up: %w", err)
	}
	logg.Info(logg.WithField(ctx, "duration_ms", time.Since(start).Milliseconds()), "goose migrations completed")
	return nil
}
