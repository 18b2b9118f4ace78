package storage

import (
	"context"
	"errors"
	"fmt"

	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/pressly/goose/v3"

	_ "interview_room/internal/storage/migrations"
	"interview_room/pkg/config"
)

// Migrate 以 goose 執行所有已註冊的 Go migration
func Migrate(ctx context.Context, cfg config.DBConfig) error {
	if cfg.Host == "" {
		return errors.New("db.host is required for migrations")
	}

	if err := goose.SetDialect("postgres"); err != nil {
		return err
	}

	sqlDB, err := goose.OpenDBWithDriver("pgx", cfg.DSN())
	if err != nil {
		return fmt.Errorf("open migration connection: %w", err)
	}
	defer sqlDB.Close()

	// migration 都是編進執行檔的 Go 函式，目錄只用來滿足 goose 的掃描
	if err := goose.UpContext(ctx, sqlDB, "."); err != nil {
		return fmt.Errorf("run migrations: %w", err)
	}
	return nil
}
