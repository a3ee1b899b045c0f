package app

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/maingoo/auth-service/config"
	"github.com/maingoo/auth-service/internal/observability"
	"github.com/maingoo/auth-service/middleware"
	"github.com/maingoo/auth-service/password"
	"github.com/maingoo/auth-service/repositories"
	"github.com/maingoo/auth-service/repositories/postgres"
	"github.com/maingoo/auth-service/services/auth"
	"github.com/maingoo/auth-service/services/events"
	"github.com/maingoo/auth-service/services/roles"
	"github.com/maingoo/auth-service/token"
	"github.com/maingoo/auth-service/transport/natsrpc"
	"go.uber.org/zap"
)

const (
	roleCacheSize = 64
	roleCacheTTL  = 5 * time.Minute
)

// Bus is the part of *nats.Conn the service uses
type Bus interface {
	natsrpc.Subscriber
	natsrpc.PublishConn
	IsConnected() bool
	Drain() error
}

// Dependencies holds all application dependencies.
// This is the central wiring point for dependency injection.
type Dependencies struct {
	// Infrastructure
	Config  *config.Config
	DB      *postgres.DB
	Bus     Bus
	Logger  *zap.Logger
	Metrics *observability.Metrics

	// Repository Factory
	RepoFactory *postgres.RepositoryFactory

	// Repositories
	Repos     *repositories.Repositories
	TxManager repositories.TransactionManager

	// Domain
	Roles       *roles.Catalog
	Hasher      *password.Argon2
	Codec       *token.Codec
	Emitter     *events.Emitter
	AuthService *auth.Service

	// Transport
	NATSRouter     *natsrpc.Router
	NATSServer     *natsrpc.Server
	AuthMiddleware *middleware.AuthMiddleware
}

// NewDependencies connects to Postgres and NATS, bootstraps the schema and
// wires up every component.
func NewDependencies(ctx context.Context, cfg *config.Config, logger *zap.Logger) (*Dependencies, error) {
	factory, err := postgres.NewRepositoryFactory(cfg, logger)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize database: %w", err)
	}

	db := factory.GetDB()
	if err := db.InitSchema(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to initialize database: %w", err)
	}

	conn, err := natsrpc.Connect(cfg.NATS, logger)
	if err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to initialize messaging: %w", err)
	}

	deps, err := NewDependenciesWith(cfg, logger, db, conn)
	if err != nil {
		_ = conn.Drain()
		_ = db.Close()
		return nil, err
	}
	return deps, nil
}

// NewDependenciesWith wires the application around an open database pool and
// bus connection.
func NewDependenciesWith(cfg *config.Config, logger *zap.Logger, db *postgres.DB, bus Bus) (*Dependencies, error) {
	deps := &Dependencies{
		Config: cfg,
		DB:     db,
		Bus:    bus,
		Logger: logger,
	}

	if cfg.Observability.MetricsEnabled {
		deps.Metrics = observability.NewMetrics()
	}

	deps.initRepositories()

	if err := deps.initServices(cfg); err != nil {
		return nil, fmt.Errorf("failed to initialize services: %w", err)
	}

	deps.initTransport(cfg)

	logger.Info("all dependencies initialized successfully")
	return deps, nil
}

// initRepositories initializes all repository instances
func (d *Dependencies) initRepositories() {
	d.RepoFactory = postgres.NewRepositoryFactoryFromDB(d.DB, d.Logger)
	d.Repos = d.RepoFactory.NewRepositories()
	d.TxManager = d.RepoFactory.GetTransactionManager()

	d.Logger.Info("repositories initialized")
}

// initServices builds the credential primitives, the event emitter and the engine
func (d *Dependencies) initServices(cfg *config.Config) error {
	hasher, err := password.NewArgon2(password.Config{
		Memory:      cfg.Password.Memory,
		Time:        cfg.Password.Time,
		Parallelism: cfg.Password.Parallelism,
		SaltLength:  cfg.Password.SaltLength,
		KeyLength:   cfg.Password.KeyLength,
	})
	if err != nil {
		return fmt.Errorf("failed to create password hasher: %w", err)
	}
	d.Hasher = hasher
	d.Codec = token.NewCodec()
	d.Roles = roles.NewCatalog(d.Repos.Roles, roles.NewCache(roleCacheSize, roleCacheTTL), d.Logger)

	d.Emitter = events.NewEmitter(natsrpc.NewPublisher(d.Bus), d.Metrics, d.Logger, events.Config{
		BufferSize:     cfg.Events.BufferSize,
		WorkerCount:    cfg.Events.WorkerCount,
		PublishTimeout: cfg.Events.PublishTimeout,
	})
	if err := d.Emitter.Start(); err != nil {
		return fmt.Errorf("failed to start event emitter: %w", err)
	}

	d.AuthService = auth.NewService(d.Repos, d.TxManager, d.Roles, d.Hasher, d.Codec, cfg.JWT, d.Emitter, d.Logger)

	d.Logger.Info("auth service initialized",
		zap.String("access_expires_in", cfg.JWT.AccessExpiresIn),
		zap.String("refresh_expires_in", cfg.JWT.RefreshExpiresIn))
	return nil
}

// initTransport builds the NATS request server and the HTTP auth middleware
func (d *Dependencies) initTransport(cfg *config.Config) {
	d.NATSRouter = natsrpc.NewRouter(d.AuthService, d.Metrics, d.Logger)
	d.NATSServer = natsrpc.NewServer(d.Bus, d.NATSRouter, cfg.NATS, d.Logger)
	d.AuthMiddleware = middleware.NewAuthMiddleware(d.AuthService, d.Logger)
}

// SQLDB returns the underlying pool, or nil when no database is wired
func (d *Dependencies) SQLDB() *sql.DB {
	if d.DB == nil {
		return nil
	}
	return d.DB.DB
}

// Close drains the NATS server, stops the emitter and closes the connections.
// It is safe to call once; later calls report the already closed resources.
func (d *Dependencies) Close(ctx context.Context) error {
	d.Logger.Info("shutting down dependencies")

	var errs []error

	if d.NATSServer != nil {
		if err := d.NATSServer.Shutdown(ctx); err != nil {
			errs = append(errs, fmt.Errorf("failed to stop nats server: %w", err))
		}
	}

	if d.Emitter != nil {
		timeout := d.Config.Events.PublishTimeout
		if deadline, ok := ctx.Deadline(); ok {
			timeout = time.Until(deadline)
		}
		if err := d.Emitter.Stop(timeout); err != nil {
			errs = append(errs, fmt.Errorf("failed to stop event emitter: %w", err))
		}
	}

	if d.Bus != nil {
		if err := d.Bus.Drain(); err != nil {
			errs = append(errs, fmt.Errorf("failed to drain nats connection: %w", err))
		} else {
			d.Logger.Info("nats connection drained")
		}
	}

	if d.RepoFactory != nil {
		if err := d.RepoFactory.Close(); err != nil {
			errs = append(errs, fmt.Errorf("failed to close database: %w", err))
		} else {
			d.Logger.Info("database connection closed")
		}
	}

	_ = d.Logger.Sync()

	if len(errs) > 0 {
		return fmt.Errorf("errors during shutdown: %w", errors.Join(errs...))
	}

	return nil
}
