// Package main runs the ReadSpeed API server.
package main

import (
	"context"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/jmoiron/sqlx"
	"github.com/joho/godotenv"
	_ "github.com/lib/pq"

	app "github.com/readspeed/backend/internal/app"
	"github.com/readspeed/backend/internal/app/httpapi"
	"github.com/readspeed/backend/internal/app/services/assessments"
	"github.com/readspeed/backend/internal/app/services/maintenance"
	"github.com/readspeed/backend/internal/app/services/profiles"
	"github.com/readspeed/backend/internal/app/storage/memory"
	"github.com/readspeed/backend/internal/app/storage/postgres"
	supastore "github.com/readspeed/backend/internal/app/storage/supabase"
	"github.com/readspeed/backend/internal/config"
	"github.com/readspeed/backend/internal/database"
	"github.com/readspeed/backend/internal/httputil"
	"github.com/readspeed/backend/internal/logging"
	"github.com/readspeed/backend/internal/metrics"
	"github.com/readspeed/backend/internal/objectstore"
	"github.com/readspeed/backend/internal/ops"
	"github.com/readspeed/backend/internal/platform/migrations"
)

func main() {
	envFile := flag.String("env", ".env", "path to an optional .env file")
	flag.Parse()

	// Missing .env is fine; the environment and config file still apply.
	_ = godotenv.Load(*envFile)

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "configuration: %v\n", err)
		os.Exit(1)
	}

	log := logging.New("readspeed", cfg.Logging.Level, cfg.Logging.Format)
	if err := run(cfg, log); err != nil {
		log.WithError(err).Fatal("server exited")
	}
}

func run(cfg *config.Config, log *logging.Logger) error {
	stores, closeStores, err := buildStores(cfg, log)
	if err != nil {
		return err
	}
	defer closeStores()

	objects, uploadsDir, err := buildObjectStore(cfg)
	if err != nil {
		return err
	}

	var rdb *redis.Client
	if cfg.Redis.Addr != "" {
		rdb = redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		pingCtx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
		if err := rdb.Ping(pingCtx).Err(); err != nil {
			log.WithError(err).Warn("redis unreachable; leaderboard cache disabled")
			rdb = nil
		}
		cancel()
		if rdb != nil {
			defer rdb.Close()
		}
	}

	var scorer assessments.Scorer
	if cfg.Scorer.URL != "" {
		scorer = assessments.NewHTTPScorer(httputil.NewClient(httputil.ClientConfig{
			BaseURL: cfg.Scorer.URL,
			APIKey:  cfg.Scorer.APIKey,
			Timeout: time.Duration(cfg.Scorer.Timeout) * time.Second,
		}))
	}

	mx := metrics.New("readspeed")

	jobs := maintenance.Config{}
	if cfg.Jobs.Enabled {
		jobs = maintenance.Config{
			LeaderboardRefresh:   cfg.Jobs.LeaderboardRefresh,
			SessionPurge:         cfg.Jobs.SessionPurge,
			UsagePrune:           cfg.Jobs.UsagePrune,
			UsageRetentionMonths: cfg.Jobs.UsageRetentionMonths,
		}
	}

	application, err := app.New(stores, app.Options{
		Auth: profiles.Config{
			JWTSecret:   cfg.Auth.JWTSecret,
			TokenTTL:    time.Duration(cfg.Auth.TokenTTLHours) * time.Hour,
			AdminEmails: cfg.AdminEmailList(),
		},
		Redis:          rdb,
		Scorer:         scorer,
		Objects:        objects,
		UploadMaxBytes: cfg.Uploads.MaxBytes,
		Jobs:           jobs,
		Metrics:        mx,
	}, log)
	if err != nil {
		return fmt.Errorf("build application: %w", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := application.Start(ctx); err != nil {
		return fmt.Errorf("start application: %w", err)
	}
	defer func() {
		stopCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := application.Stop(stopCtx); err != nil {
			log.WithError(err).Warn("application stop")
		}
	}()

	handler, err := httpapi.NewHandler(application, httpapi.Config{
		ServiceName:      "readspeed",
		AllowedOrigins:   cfg.AllowedOriginList(),
		RateLimitEnabled: cfg.RateLimit.Enabled,
		RateLimitRPS:     cfg.RateLimit.RequestsPerSecond,
		RateLimitBurst:   cfg.RateLimit.Burst,
		UploadsDir:       uploadsDir,
	}, mx, log.WithField("component", "httpapi"))
	if err != nil {
		return fmt.Errorf("build handler: %w", err)
	}

	srv := &http.Server{
		Addr:         fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port),
		Handler:      handler,
		ReadTimeout:  time.Duration(cfg.Server.ReadTimeout) * time.Second,
		WriteTimeout: time.Duration(cfg.Server.WriteTimeout) * time.Second,
		IdleTimeout:  time.Duration(cfg.Server.IdleTimeout) * time.Second,
	}

	errCh := make(chan error, 2)
	go func() {
		log.WithField("addr", srv.Addr).Info("api listener started")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- fmt.Errorf("api listener: %w", err)
		}
	}()

	var opsSrv *ops.Server
	if cfg.Ops.Enabled {
		opsSrv = ops.NewServer(
			fmt.Sprintf("%s:%d", cfg.Ops.Host, cfg.Ops.Port),
			mx, application, log.WithField("component", "ops"))
		go func() {
			if err := opsSrv.Start(); err != nil {
				errCh <- fmt.Errorf("ops listener: %w", err)
			}
		}()
	}

	select {
	case <-ctx.Done():
		log.Info("shutdown signal received")
	case err := <-errCh:
		return err
	}

	drainCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := srv.Shutdown(drainCtx); err != nil {
		log.WithError(err).Warn("api listener drain")
	}
	if opsSrv != nil {
		if err := opsSrv.Stop(drainCtx); err != nil {
			log.WithError(err).Warn("ops listener drain")
		}
	}
	return nil
}

// buildStores wires the persistence driver named by the configuration.
func buildStores(cfg *config.Config, log *logging.Logger) (app.Stores, func(), error) {
	switch cfg.Storage.Driver {
	case config.DriverMemory:
		log.Warn("using in-memory storage; data is lost on restart")
		mem := memory.New()
		return app.Stores{
			Profiles:      mem,
			Sessions:      mem,
			Books:         mem,
			Readings:      mem,
			Assessments:   mem,
			Subscriptions: mem,
			Flags:         mem,
			Pinger:        mem,
		}, func() {}, nil

	case config.DriverPostgres:
		db, err := sqlx.Connect("postgres", cfg.Database.DSN)
		if err != nil {
			return app.Stores{}, nil, fmt.Errorf("connect postgres: %w", err)
		}
		db.SetMaxOpenConns(cfg.Database.MaxOpenConns)
		db.SetMaxIdleConns(cfg.Database.MaxIdleConns)
		db.SetConnMaxLifetime(time.Duration(cfg.Database.ConnMaxLifetime) * time.Second)

		if cfg.Database.Migrate {
			if err := migrations.Apply(db.DB); err != nil {
				db.Close()
				return app.Stores{}, nil, fmt.Errorf("apply migrations: %w", err)
			}
			log.Info("database schema up to date")
		}

		store := postgres.New(db)
		return app.Stores{
			Profiles:      store,
			Sessions:      store,
			Books:         store,
			Readings:      store,
			Assessments:   store,
			Subscriptions: store,
			Flags:         store,
			Pinger:        store,
		}, func() { db.Close() }, nil

	case config.DriverSupabase:
		client, err := database.NewClient(database.Config{
			URL:        cfg.Supabase.URL,
			ServiceKey: cfg.Supabase.ServiceKey,
		})
		if err != nil {
			return app.Stores{}, nil, fmt.Errorf("supabase client: %w", err)
		}
		store := supastore.New(client)
		return app.Stores{
			Profiles:      store,
			Sessions:      store,
			Books:         store,
			Readings:      store,
			Assessments:   store,
			Subscriptions: store,
			Flags:         store,
			Pinger:        store,
		}, func() {}, nil

	default:
		return app.Stores{}, nil, fmt.Errorf("unknown storage driver %q", cfg.Storage.Driver)
	}
}

func buildObjectStore(cfg *config.Config) (objectstore.Store, string, error) {
	switch cfg.Uploads.Backend {
	case "", "local":
		store, err := objectstore.NewLocal(cfg.Uploads.LocalDir, cfg.Uploads.PublicURL)
		if err != nil {
			return nil, "", fmt.Errorf("local object store: %w", err)
		}
		return store, cfg.Uploads.LocalDir, nil
	case "supabase":
		client, err := database.NewClient(database.Config{
			URL:        cfg.Supabase.URL,
			ServiceKey: cfg.Supabase.ServiceKey,
		})
		if err != nil {
			return nil, "", fmt.Errorf("supabase client: %w", err)
		}
		store, err := objectstore.NewSupabase(client, cfg.Supabase.Bucket)
		if err != nil {
			return nil, "", err
		}
		return store, "", nil
	default:
		return nil, "", fmt.Errorf("unknown uploads backend %q", cfg.Uploads.Backend)
	}
}
