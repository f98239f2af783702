package main

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"go.uber.org/zap"

	"salesync/backend/internal/cache"
	"salesync/backend/internal/config"
	"salesync/backend/internal/logging"
	"salesync/backend/internal/service"
	"salesync/backend/internal/source"
	"salesync/backend/internal/store"
	"salesync/backend/internal/store/memory"
	pgstore "salesync/backend/internal/store/postgres"
	sqlitestore "salesync/backend/internal/store/sqlite"
)

// app holds the wired dependencies shared by every subcommand.
type app struct {
	cfg       config.Config
	logger    *zap.Logger
	repo      store.Repository
	summaries cache.SummaryCache
	closers   []func() error
}

func setup(ctx context.Context) (*app, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}

	logger, err := logging.New(cfg.Log.Level, cfg.Log.Format)
	if err != nil {
		return nil, err
	}
	zap.ReplaceGlobals(logger)

	rt := &app{cfg: cfg, logger: logger}

	initCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	if err := rt.openRepository(initCtx); err != nil {
		rt.close()
		return nil, err
	}
	rt.openCache(initCtx)
	return rt, nil
}

func (rt *app) openRepository(ctx context.Context) error {
	switch rt.cfg.Database.Driver {
	case config.DriverPostgres:
		pg, err := pgstore.New(ctx, rt.cfg.Database.URL)
		if err != nil {
			return fmt.Errorf("postgres unavailable and DATABASE_URL is set, refusing to fall back to memory: %w", err)
		}
		rt.repo = pg
		rt.closers = append(rt.closers, pg.Close)
	case config.DriverSQLite:
		if dir := filepath.Dir(rt.cfg.Database.Path); dir != "." {
			if err := os.MkdirAll(dir, 0o755); err != nil {
				return fmt.Errorf("create sqlite directory: %w", err)
			}
		}
		db, err := sqlitestore.New(rt.cfg.Database.Path)
		if err != nil {
			return err
		}
		rt.repo = db
		rt.closers = append(rt.closers, db.Close)
	default:
		rt.repo = memory.New()
	}
	rt.logger.Info("repository ready", zap.String("driver", rt.cfg.Database.Driver))
	return nil
}

func (rt *app) openCache(ctx context.Context) {
	if rt.cfg.Redis.Addr != "" {
		redisCache := cache.NewRedisSummaryCache(rt.cfg.Redis.Addr, rt.cfg.Redis.Password, rt.cfg.Redis.DB)
		if err := redisCache.Ping(ctx); err != nil {
			rt.logger.Warn("redis unavailable, using local cache", zap.Error(err))
			_ = redisCache.Close()
		} else {
			rt.summaries = redisCache
			rt.closers = append(rt.closers, redisCache.Close)
			rt.logger.Info("cache ready", zap.String("backend", "redis"))
			return
		}
	}
	rt.summaries = cache.NewLocalSummaryCache(rt.cfg.Cache.TTL.Std())
	rt.logger.Info("cache ready", zap.String("backend", "local"))
}

func (rt *app) sheetsSource() source.RowSource {
	return source.GoogleSheets{
		SpreadsheetID: rt.cfg.Sheets.SpreadsheetID,
		APIKey:        rt.cfg.Sheets.APIKey,
		Range:         rt.cfg.Sheets.Range,
		Timeout:       rt.cfg.Sheets.FetchTimeout.Std(),
		RevokedKeys:   rt.cfg.Sheets.RevokedKeys,
		Endpoint:      rt.cfg.Sheets.Endpoint,
	}
}

func (rt *app) service(rows source.RowSource) *service.Service {
	return service.New(rt.repo, rows, rt.summaries, rt.logger, service.Options{
		CacheTTL:               rt.cfg.Cache.TTL.Std(),
		ClearConfirmationToken: rt.cfg.Admin.ClearConfirmationToken,
	})
}

func (rt *app) close() {
	for _, closeFn := range rt.closers {
		if err := closeFn(); err != nil {
			rt.logger.Warn("close error", zap.Error(err))
		}
	}
	_ = rt.logger.Sync()
}
