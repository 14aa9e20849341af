package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/lalith-99/festivo/internal/api"
	"github.com/lalith-99/festivo/internal/auth"
	"github.com/lalith-99/festivo/internal/config"
	"github.com/lalith-99/festivo/internal/db"
	"github.com/lalith-99/festivo/internal/db/migrations"
	"github.com/lalith-99/festivo/internal/invite"
	"github.com/lalith-99/festivo/internal/membership"
	"github.com/lalith-99/festivo/internal/messaging"
	"github.com/lalith-99/festivo/internal/metrics"
	"github.com/lalith-99/festivo/internal/modules"
	"github.com/lalith-99/festivo/internal/observ"
	"github.com/lalith-99/festivo/internal/provisioning"
	"github.com/lalith-99/festivo/internal/realtime"
	"github.com/lalith-99/festivo/internal/repository"
	"github.com/lalith-99/festivo/internal/repository/memory"
	"github.com/lalith-99/festivo/internal/repository/postgres"
	"github.com/lalith-99/festivo/internal/tenants"
	"github.com/lalith-99/festivo/internal/volunteers"
	"go.uber.org/zap"
)

const shutdownTimeout = 15 * time.Second

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	// ---------------------------------------------------------------
	// 1. Load config
	// ---------------------------------------------------------------
	cfg, err := config.LoadConfig()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	// ---------------------------------------------------------------
	// 2. Create logger
	// ---------------------------------------------------------------
	logger, err := observ.NewLogger(cfg.Env, cfg.LogLevel)
	if err != nil {
		return fmt.Errorf("create logger: %w", err)
	}
	defer logger.Sync()

	// ctx is cancelled on SIGINT/SIGTERM. Startup steps that retry
	// (database, Redis) give up as soon as the process is asked to stop.
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// ---------------------------------------------------------------
	// 3. Open the store
	//
	// Postgres is the real backend. STORE=memory runs the whole API on
	// go-memdb for demos; everything is lost on restart.
	// ---------------------------------------------------------------
	store, closeStore, err := openStore(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer closeStore()

	// ---------------------------------------------------------------
	// 4. Realtime bus
	//
	// With REDIS_URL every replica shares one pub/sub channel per
	// tenant. Without it events only reach clients of this process.
	// ---------------------------------------------------------------
	var bus realtime.Bus
	if cfg.RedisURL != "" {
		client, err := realtime.Connect(ctx, cfg.RedisURL, cfg.DBConnectTimeout, logger)
		if err != nil {
			return fmt.Errorf("connect to redis: %w", err)
		}
		defer client.Close()
		bus = realtime.NewRedisBus(client, logger)
	} else {
		logger.Warn("REDIS_URL not set, realtime events stay in this process")
		bus = realtime.NewLocalBus()
	}

	// ---------------------------------------------------------------
	// 5. Services
	//
	// Construction order follows the dependencies: modules need the
	// provisioner, the authority needs modules, everything else needs
	// the authority.
	// ---------------------------------------------------------------
	m := metrics.New("festivo")
	provisioner := provisioning.NewService(store, bus, logger)
	mods := modules.NewManager(store, provisioner, m, logger)
	authority := membership.NewAuthority(store, mods, logger)

	deps := api.Deps{
		Health:    store,
		Verifier:  auth.NewVerifier(cfg.JWTSecret, cfg.JWTIssuer, cfg.JWTAudience),
		Resolver:  auth.NewResolver(store, cfg.PlatformAdmins, logger),
		Authority: authority,
		Modules:   mods,
		Tenants:   tenants.NewService(store, authority, logger),
		Invites: invite.NewService(store, authority, invite.Config{
			PublicBaseURL:       cfg.PublicBaseURL,
			MaxCodesPerTenant:   cfg.MaxInviteCodesPerTenant,
			MaxMembersPerTenant: cfg.MaxMembersPerTenant,
		}, m, logger, invite.WithPublisher(bus)),
		Messaging:  messaging.NewService(store, authority, bus, m, logger),
		Volunteers: volunteers.NewService(store, authority, mods, logger),
		Gateway:    realtime.NewGateway(bus, nil, m, logger),
		Metrics:    m,
		Logger:     logger,
	}

	// ---------------------------------------------------------------
	// 6. HTTP server
	// ---------------------------------------------------------------
	if cfg.IsProduction() {
		gin.SetMode(gin.ReleaseMode)
	}
	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           api.NewRouter(deps),
		ReadHeaderTimeout: 10 * time.Second,
	}

	logger.Info("starting festivo",
		zap.String("port", cfg.Port),
		zap.String("env", cfg.Env),
		zap.String("store", cfg.Store),
	)

	errCh := make(chan error, 1)
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return fmt.Errorf("http server: %w", err)
	case <-ctx.Done():
	}

	// ---------------------------------------------------------------
	// 7. Graceful shutdown
	//
	// Shutdown stops accepting connections and waits for in-flight
	// requests. Hijacked websocket connections are not tracked by
	// Shutdown; they end when their request context is cancelled.
	// ---------------------------------------------------------------
	logger.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	return nil
}

func openStore(ctx context.Context, cfg *config.Config, logger *zap.Logger) (repository.Store, func(), error) {
	if cfg.Store == config.StoreMemory {
		s, err := memory.NewStore()
		if err != nil {
			return nil, nil, fmt.Errorf("create memory store: %w", err)
		}
		logger.Warn("using the in-memory store, data is not persisted")
		return s, func() {}, nil
	}

	// Connect first: db.New retries until Postgres accepts connections,
	// so migrations never race a database that is still booting.
	database, err := db.New(ctx, cfg.DatabaseURL, cfg.DBConnectTimeout, logger)
	if err != nil {
		return nil, nil, fmt.Errorf("connect to database: %w", err)
	}
	if cfg.MigrateOnStart {
		if err := migrations.Up(cfg.DatabaseURL, logger); err != nil {
			database.Close()
			return nil, nil, fmt.Errorf("run migrations: %w", err)
		}
	}
	return postgres.NewStore(database.Pool()), database.Close, nil
}
