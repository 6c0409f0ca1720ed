package container

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"

	"go.uber.org/zap"

	"github.com/garyjia/site-approval/internal/application/approval"
	"github.com/garyjia/site-approval/internal/application/dispatcher"
	"github.com/garyjia/site-approval/internal/application/port"
	"github.com/garyjia/site-approval/internal/domain/event"
	"github.com/garyjia/site-approval/internal/infrastructure/directory"
	httpServer "github.com/garyjia/site-approval/internal/interfaces/http"
)

// Container manages all application dependencies and lifecycle.
// Components are initialized in dependency order and torn down in reverse.
type Container struct {
	config *Config
	logger *zap.Logger

	// Infrastructure
	database  *DatabaseBundle
	directory *directory.Static

	// Application
	dispatcher dispatcher.Dispatcher
	engine     *approval.Engine

	// Interfaces
	server *httpServer.Server

	// Lifecycle
	mu     sync.RWMutex
	ready  atomic.Bool
	closed atomic.Bool
}

// HealthStatus represents the health of all components.
type HealthStatus struct {
	Overall    bool                       `json:"overall"`
	Components map[string]ComponentHealth `json:"components"`
}

// ComponentHealth represents health of a single component.
type ComponentHealth struct {
	Healthy bool   `json:"healthy"`
	Message string `json:"message,omitempty"`
}

// NewContainer creates a new container from configuration.
// It does not initialize components - call Start() to initialize.
func NewContainer(cfg *Config, logger *zap.Logger) (*Container, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config is required")
	}
	if logger == nil {
		return nil, fmt.Errorf("logger is required")
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	return &Container{
		config: cfg,
		logger: logger,
	}, nil
}

// Start initializes all components:
// 1. Request store (and migrations)
// 2. Directory
// 3. Event dispatcher and approval engine
// 4. HTTP server (built, not listening)
func (c *Container) Start(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed.Load() {
		return fmt.Errorf("container has been closed")
	}
	if c.ready.Load() {
		return fmt.Errorf("container already started")
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	c.logger.Info("Starting container initialization")

	if err := c.initDatabase(); err != nil {
		return fmt.Errorf("failed to initialize database: %w", err)
	}
	c.logger.Info("Request store initialized", zap.String("driver", c.config.Database.Driver))

	if err := c.initDirectory(); err != nil {
		c.teardown()
		return fmt.Errorf("failed to initialize directory: %w", err)
	}
	c.logger.Info("Directory initialized",
		zap.Int("org_units", len(c.config.Directory.OrgUnits)),
		zap.Int("users", len(c.config.Directory.Users)))

	if err := c.initDispatcherAndEngine(); err != nil {
		c.teardown()
		return fmt.Errorf("failed to initialize engine: %w", err)
	}
	c.logger.Info("Dispatcher and approval engine initialized")

	server, err := ProvideServer(&c.config.Server, c.engine, c.logger)
	if err != nil {
		c.teardown()
		return fmt.Errorf("failed to initialize server: %w", err)
	}
	c.server = server

	c.ready.Store(true)
	c.logger.Info("Container started successfully")

	return nil
}

// Close gracefully shuts down all components in reverse order.
func (c *Container) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed.Load() {
		return fmt.Errorf("container already closed")
	}

	c.logger.Info("Closing container")

	errs := c.teardown()

	c.closed.Store(true)
	c.ready.Store(false)

	if len(errs) > 0 {
		c.logger.Error("Container closed with errors", zap.Int("error_count", len(errs)))
		return fmt.Errorf("container closed with %d errors", len(errs))
	}

	c.logger.Info("Container closed successfully")
	return nil
}

// teardown releases whatever has been initialized. Callers hold c.mu.
func (c *Container) teardown() []error {
	var errs []error

	// Dispatcher first: waits for in-flight audit handlers
	if c.dispatcher != nil {
		if err := c.dispatcher.Close(); err != nil {
			c.logger.Error("Failed to close dispatcher", zap.Error(err))
			errs = append(errs, fmt.Errorf("close dispatcher: %w", err))
		} else {
			c.logger.Info("Dispatcher closed")
		}
		c.dispatcher = nil
	}

	if c.database != nil && c.database.DB != nil {
		if err := c.database.DB.Close(); err != nil {
			c.logger.Error("Failed to close database", zap.Error(err))
			errs = append(errs, fmt.Errorf("close database: %w", err))
		} else {
			c.logger.Info("Database closed")
		}
	}
	c.database = nil

	return errs
}

// Ready returns true when all components are initialized.
func (c *Container) Ready() bool {
	return c.ready.Load()
}

// Health returns health status of all components.
func (c *Container) Health() *HealthStatus {
	c.mu.RLock()
	defer c.mu.RUnlock()

	status := &HealthStatus{
		Overall:    true,
		Components: make(map[string]ComponentHealth),
	}

	set := func(name string, health ComponentHealth) {
		status.Components[name] = health
		if !health.Healthy {
			status.Overall = false
		}
	}

	switch {
	case c.database == nil:
		set("database", ComponentHealth{Healthy: false, Message: "not initialized"})
	case c.database.DB == nil:
		set("database", ComponentHealth{Healthy: true, Message: "in-memory"})
	default:
		if err := c.database.DB.Ping(); err != nil {
			set("database", ComponentHealth{Healthy: false, Message: fmt.Sprintf("ping failed: %v", err)})
		} else {
			set("database", ComponentHealth{Healthy: true})
		}
	}

	if c.dispatcher != nil {
		set("dispatcher", ComponentHealth{
			Healthy: true,
			Message: fmt.Sprintf("audit handlers: %d", len(c.dispatcher.ListHandlers(event.TypeRequestCreated))),
		})
	} else {
		set("dispatcher", ComponentHealth{Healthy: false, Message: "not initialized"})
	}

	if c.engine != nil {
		set("engine", ComponentHealth{Healthy: true})
	} else {
		set("engine", ComponentHealth{Healthy: false, Message: "not initialized"})
	}

	return status
}

// initDatabase initializes the request store using providers.
func (c *Container) initDatabase() error {
	bundle, err := ProvideDatabase(&c.config.Database, c.logger)
	if err != nil {
		return err
	}
	c.database = bundle
	return nil
}

// initDirectory loads the static directory using providers.
func (c *Container) initDirectory() error {
	dir, err := ProvideDirectory(&c.config.Directory)
	if err != nil {
		return err
	}
	c.directory = dir
	return nil
}

// initDispatcherAndEngine wires the dispatcher as the engine's publisher.
func (c *Container) initDispatcherAndEngine() error {
	disp, err := ProvideDispatcher(c.logger)
	if err != nil {
		return err
	}
	c.dispatcher = disp

	engine, err := ProvideEngine(&EngineDeps{
		Database:   c.database,
		Directory:  c.directory,
		Dispatcher: c.dispatcher,
		Policy:     c.config.Policy,
		Logger:     c.logger,
	})
	if err != nil {
		return err
	}
	c.engine = engine

	return nil
}

// Getters for accessing container components

// Store returns the request store.
func (c *Container) Store() port.RequestStore {
	if c.database == nil {
		return nil
	}
	return c.database.Store
}

// TxManager returns the transaction manager.
func (c *Container) TxManager() port.TransactionManager {
	if c.database == nil {
		return nil
	}
	return c.database.TxManager
}

// Directory returns the static directory.
func (c *Container) Directory() *directory.Static {
	return c.directory
}

// Dispatcher returns the event dispatcher.
func (c *Container) Dispatcher() dispatcher.Dispatcher {
	return c.dispatcher
}

// Engine returns the approval engine.
func (c *Container) Engine() *approval.Engine {
	return c.engine
}

// Server returns the HTTP server.
func (c *Container) Server() *httpServer.Server {
	return c.server
}

// Logger returns the container's logger.
func (c *Container) Logger() *zap.Logger {
	return c.logger
}

// Config returns the container's configuration.
func (c *Container) Config() *Config {
	return c.config
}
