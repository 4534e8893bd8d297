package main

import (
	"context"
	"time"

	"github.com/Incredaimaso/AnimeNews-Bot/internal/adapters/repo"
	"github.com/Incredaimaso/AnimeNews-Bot/internal/infra/config"
	"github.com/Incredaimaso/AnimeNews-Bot/internal/infra/db"
	"github.com/Incredaimaso/AnimeNews-Bot/internal/infra/log"
)

// Утилита обслуживания: очищает таблицу опубликованных ссылок,
// после чего все живые записи лент снова считаются новыми.
func main() {
	cfg := config.Load()
	logger := log.NewLogger(cfg.AppEnv)
	if cfg.PGDSN == "" {
		logger.Fatal().Msg("PG_DSN не задан")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	pool, err := db.Connect(ctx, cfg.PGDSN)
	if err != nil {
		logger.Fatal().Err(err).Msg("не удалось подключиться к БД")
	}
	defer pool.Close()

	store := repo.NewPostgres(pool)
	if err := store.EnsureSchema(ctx); err != nil {
		logger.Fatal().Err(err).Msg("не удалось подготовить схему")
	}
	removed, err := store.Reset(ctx)
	if err != nil {
		logger.Fatal().Err(err).Msg("не удалось очистить публикации")
	}
	logger.Info().Int64("removed", removed).Msg("отметки о публикациях удалены")
}
