package container

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/garyjia/site-approval/internal/application/approval"
	"github.com/garyjia/site-approval/internal/application/dispatcher"
	"github.com/garyjia/site-approval/internal/application/port"
	"github.com/garyjia/site-approval/internal/domain/event"
	"github.com/garyjia/site-approval/internal/domain/policy"
	"github.com/garyjia/site-approval/internal/infrastructure/directory"
	"github.com/garyjia/site-approval/internal/infrastructure/persistence/memory"
	"github.com/garyjia/site-approval/internal/infrastructure/persistence/sqlite"
	httpServer "github.com/garyjia/site-approval/internal/interfaces/http"
	"github.com/garyjia/site-approval/internal/report"
	"github.com/garyjia/site-approval/pkg/database"
	"github.com/garyjia/site-approval/pkg/utils"
)

// AuditHandlerName is the dispatcher subscription name of the audit log
const AuditHandlerName = "audit_log"

// DatabaseBundle holds the request store and its transaction manager.
// DB is nil for the memory driver.
type DatabaseBundle struct {
	DB        *database.DB
	Store     port.RequestStore
	TxManager port.TransactionManager
}

// ProvideDatabase opens the configured request store. The sqlite driver
// runs pending migrations before returning.
func ProvideDatabase(cfg *DatabaseConfig, logger *zap.Logger) (*DatabaseBundle, error) {
	if cfg == nil {
		return nil, fmt.Errorf("database config is required")
	}
	if logger == nil {
		return nil, fmt.Errorf("logger is required")
	}

	if cfg.Driver == DriverMemory {
		logger.Info("Using in-memory request store")
		return &DatabaseBundle{
			Store:     memory.NewRequestStore(),
			TxManager: port.NoopTransactionManager{},
		}, nil
	}

	db, err := database.New(database.Config{
		Path:            cfg.Path,
		MaxOpenConns:    cfg.MaxOpenConns,
		MaxIdleConns:    cfg.MaxIdleConns,
		ConnMaxLifetime: cfg.ConnMaxLifetime,
	}, logger)
	if err != nil {
		return nil, err
	}

	migrator := database.NewMigrator(db, logger)
	if err := migrator.RunMigrations(sqlite.Migrations, sqlite.MigrationsDir); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}

	txManager := sqlite.NewDB(db.DB, logger)

	return &DatabaseBundle{
		DB:        db,
		Store:     sqlite.NewRequestStore(txManager, logger),
		TxManager: txManager,
	}, nil
}

// ProvideDirectory builds the static directory from configuration.
func ProvideDirectory(cfg *DirectoryConfig) (*directory.Static, error) {
	if cfg == nil {
		return nil, fmt.Errorf("directory config is required")
	}
	dir, err := directory.NewStatic(cfg.OrgUnits, cfg.Users)
	if err != nil {
		return nil, fmt.Errorf("invalid directory: %w", err)
	}
	return dir, nil
}

// ProvideDispatcher creates the event dispatcher and subscribes the audit
// log to every event type.
func ProvideDispatcher(logger *zap.Logger) (dispatcher.Dispatcher, error) {
	if logger == nil {
		return nil, fmt.Errorf("logger is required")
	}

	disp := dispatcher.NewDispatcher(
		dispatcher.WithLogger(utils.NewKeyValueLogger(logger)),
	)
	disp.SubscribeAll(AuditHandlerName, newAuditHandler(logger.Named("audit")))

	return disp, nil
}

// newAuditHandler records each engine event as a structured log line
func newAuditHandler(logger *zap.Logger) dispatcher.Handler {
	return func(ctx context.Context, evt *event.Event) error {
		if evt == nil {
			return fmt.Errorf("event cannot be nil")
		}

		fields := []zap.Field{
			zap.String("event_id", evt.ID),
			zap.String("event_type", evt.Type.String()),
			zap.String("request_id", evt.RequestID),
			zap.Time("at", evt.Timestamp),
		}
		if evt.ActorID != "" {
			fields = append(fields, zap.String("actor_id", evt.ActorID))
		}
		if len(evt.Payload) > 0 {
			fields = append(fields, zap.Any("payload", evt.Payload))
		}

		logger.Info("Approval event", fields...)
		return nil
	}
}

// EngineDeps holds dependencies required for creating the approval engine.
type EngineDeps struct {
	Database   *DatabaseBundle
	Directory  port.Directory
	Dispatcher dispatcher.Dispatcher
	Policy     *policy.Policy
	Logger     *zap.Logger
}

// ProvideEngine creates the approval engine.
func ProvideEngine(deps *EngineDeps) (*approval.Engine, error) {
	if deps == nil {
		return nil, fmt.Errorf("engine dependencies are required")
	}
	if deps.Database == nil {
		return nil, fmt.Errorf("database is required")
	}
	if deps.Dispatcher == nil {
		return nil, fmt.Errorf("dispatcher is required")
	}
	if deps.Logger == nil {
		return nil, fmt.Errorf("logger is required")
	}

	pol := deps.Policy
	if pol == nil {
		pol = policy.Default()
	}

	return approval.NewEngine(approval.Config{
		Store:     deps.Database.Store,
		Directory: deps.Directory,
		Policy:    pol,
		TxManager: deps.Database.TxManager,
		Publisher: deps.Dispatcher,
		Logger:    deps.Logger.Named("engine"),
	})
}

// ProvideServer creates the HTTP server over the engine.
func ProvideServer(cfg *ServerConfig, engine *approval.Engine, logger *zap.Logger) (*httpServer.Server, error) {
	if cfg == nil {
		return nil, fmt.Errorf("server config is required")
	}
	if engine == nil {
		return nil, fmt.Errorf("engine is required")
	}
	if logger == nil {
		return nil, fmt.Errorf("logger is required")
	}

	serverCfg := httpServer.ServerConfig{
		Host:            cfg.Host,
		Port:            cfg.Port,
		ReadTimeout:     cfg.ReadTimeout,
		WriteTimeout:    cfg.WriteTimeout,
		ShutdownTimeout: cfg.ShutdownTimeout,
	}

	return httpServer.NewServer(
		serverCfg,
		engine,
		report.NewWorkbookWriter(logger.Named("report")),
		utils.NewKeyValueLogger(logger.Named("http")),
	), nil
}
