package main

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/park285/chess-sync/internal/archive"
	"github.com/park285/chess-sync/internal/bot"
	"github.com/park285/chess-sync/internal/config"
	"github.com/park285/chess-sync/internal/httpapi"
	"github.com/park285/chess-sync/internal/match"
	"github.com/park285/chess-sync/internal/notify"
	"github.com/park285/chess-sync/internal/obslog"
	"github.com/park285/chess-sync/internal/store/memstore"
	"github.com/park285/chess-sync/internal/store/pgstore"
	"github.com/park285/chess-sync/internal/store/redisstore"
)

const startupTimeout = 10 * time.Second

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config error: %v", err)
	}
	if _, err := obslog.Init(cfg.Log); err != nil {
		log.Fatalf("logger init error: %v", err)
	}
	defer obslog.Sync()
	logger := obslog.L()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, logger); err != nil {
		logger.Error("server_exit", zap.Error(err))
		obslog.Sync()
		os.Exit(1)
	}
}

// deps owns the shared connections so they are closed once.
type deps struct {
	rdb *redis.Client
	db  *sql.DB
}

func (d *deps) redis(ctx context.Context, cfg *config.AppConfig) (*redis.Client, error) {
	if d.rdb != nil {
		return d.rdb, nil
	}
	rdb, err := redisstore.Connect(ctx, cfg.Redis.URL)
	if err != nil {
		return nil, err
	}
	d.rdb = rdb
	return rdb, nil
}

func (d *deps) postgres(ctx context.Context, cfg *config.AppConfig) (*sql.DB, error) {
	if d.db != nil {
		return d.db, nil
	}
	db, err := pgstore.Open(ctx, cfg.Database.URL, pgstore.Options{
		MaxOpenConns:    cfg.Database.MaxOpenConns,
		MaxIdleConns:    cfg.Database.MaxIdleConns,
		ConnMaxLifetime: cfg.Database.ConnMaxLifetime,
	})
	if err != nil {
		return nil, err
	}
	d.db = db
	return db, nil
}

func (d *deps) health(ctx context.Context) error {
	var errs []error
	if d.rdb != nil {
		if err := d.rdb.Ping(ctx).Err(); err != nil {
			errs = append(errs, fmt.Errorf("redis: %w", err))
		}
	}
	if d.db != nil {
		if err := d.db.PingContext(ctx); err != nil {
			errs = append(errs, fmt.Errorf("postgres: %w", err))
		}
	}
	return errors.Join(errs...)
}

func (d *deps) close() {
	if d.rdb != nil {
		_ = d.rdb.Close()
	}
	if d.db != nil {
		_ = d.db.Close()
	}
}

func run(ctx context.Context, cfg *config.AppConfig, logger *zap.Logger) error {
	d := &deps{}
	defer d.close()

	startCtx, cancel := context.WithTimeout(ctx, startupTimeout)
	defer cancel()

	store, err := openStore(startCtx, cfg, d)
	if err != nil {
		return fmt.Errorf("store init: %w", err)
	}

	hub := notify.NewHub(cfg.Notify.Buffer, logger.Named("notify"))
	var publisher match.Publisher = hub
	if cfg.Notify.Driver == "redis" {
		rdb, err := d.redis(startCtx, cfg)
		if err != nil {
			return fmt.Errorf("notify init: %w", err)
		}
		bus := notify.NewRedisBus(rdb, hub, logger.Named("notify"))
		ready := make(chan struct{})
		busDone := make(chan error, 1)
		go func() {
			err := bus.Run(ctx, ready)
			if err != nil && ctx.Err() == nil {
				logger.Error("notify_bus_stopped", zap.Error(err))
			}
			busDone <- err
		}()
		select {
		case <-ready:
		case err := <-busDone:
			return fmt.Errorf("notify init: bus stopped: %v", err)
		case <-startCtx.Done():
			return fmt.Errorf("notify init: %w", startCtx.Err())
		}
		publisher = bus
	}

	var archiver match.Archiver
	if cfg.Archive.Enabled {
		db, err := d.postgres(startCtx, cfg)
		if err != nil {
			return fmt.Errorf("archive init: %w", err)
		}
		repo, err := archive.NewRepository(db)
		if err != nil {
			return fmt.Errorf("archive init: %w", err)
		}
		if err := repo.Migrate(startCtx); err != nil {
			return fmt.Errorf("archive migrate: %w", err)
		}
		archiver = repo
	}

	source, presets, closeBot, err := openBot(cfg, logger.Named("bot"))
	if err != nil {
		return fmt.Errorf("bot init: %w", err)
	}
	defer closeBot()

	defaultDifficulty := cfg.Bot.DefaultDifficulty
	if defaultDifficulty == "" {
		defaultDifficulty = presets.Default
	}
	svc, err := match.NewService(store, publisher, archiver, source, match.Config{
		Difficulties:      presets.Names(),
		DefaultDifficulty: defaultDifficulty,
	}, logger.Named("match"))
	if err != nil {
		return fmt.Errorf("service init: %w", err)
	}

	api, err := httpapi.New(svc, httpapi.Options{
		Hub:            hub,
		Auth:           httpapi.NewAuthenticator(cfg.Auth.JWTSecret, cfg.Auth.AllowHeaderIdentity),
		Health:         d.health,
		OriginPatterns: cfg.Server.OriginPatterns,
		Logger:         logger.Named("http"),
	})
	if err != nil {
		return fmt.Errorf("http init: %w", err)
	}

	srv := &http.Server{
		Addr:              cfg.Server.Addr,
		Handler:           api.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       cfg.Server.ReadTimeout,
		WriteTimeout:      cfg.Server.WriteTimeout,
		IdleTimeout:       60 * time.Second,
		MaxHeaderBytes:    1 << 16,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("server_listening",
			zap.String("addr", cfg.Server.Addr),
			zap.String("store", cfg.Store.Driver),
			zap.String("notify", cfg.Notify.Driver),
			zap.Bool("archive", cfg.Archive.Enabled),
		)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err, ok := <-errCh:
		if ok {
			return fmt.Errorf("listen: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	logger.Info("server_shutdown")
	shutdownCtx, cancelShutdown := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancelShutdown()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	return nil
}

func openStore(ctx context.Context, cfg *config.AppConfig, d *deps) (match.Store, error) {
	switch cfg.Store.Driver {
	case "redis":
		rdb, err := d.redis(ctx, cfg)
		if err != nil {
			return nil, err
		}
		return redisstore.New(rdb, cfg.Store.TTL), nil
	case "postgres":
		db, err := d.postgres(ctx, cfg)
		if err != nil {
			return nil, err
		}
		s := pgstore.New(db)
		if err := s.Migrate(ctx); err != nil {
			return nil, fmt.Errorf("migrate: %w", err)
		}
		return s, nil
	default:
		return memstore.New(), nil
	}
}

// openBot starts the stockfish pool, or a random mover when no binary is
// configured.
func openBot(cfg *config.AppConfig, logger *zap.Logger) (match.MoveSource, *bot.Presets, func(), error) {
	presets, err := bot.DefaultPresets()
	if err != nil {
		return nil, nil, nil, err
	}
	if cfg.Bot.StockfishPath == "" {
		logger.Warn("bot_random_fallback")
		return bot.NewRandom(time.Now().UnixNano()), presets, func() {}, nil
	}
	engine, err := bot.NewEngine(bot.EngineConfig{
		BinaryPath:        cfg.Bot.StockfishPath,
		PerPresetCapacity: cfg.Bot.PerPresetCapacity,
		Presets:           presets,
	}, logger)
	if err != nil {
		return nil, nil, nil, err
	}
	return engine, presets, func() {
		if err := engine.Close(); err != nil {
			logger.Warn("bot_pool_close_failed", zap.Error(err))
		}
	}, nil
}
