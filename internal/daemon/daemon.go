package daemon

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"sync"
	"syscall"
	"time"

	"github.com/harun/warden/internal/config"
	"github.com/harun/warden/internal/logger"
	"github.com/harun/warden/internal/observability"
	"github.com/harun/warden/internal/tracing"
	"github.com/harun/warden/pkg/agent"
	"github.com/harun/warden/pkg/controlapi"
	"github.com/harun/warden/pkg/cron"
	"github.com/harun/warden/pkg/datasource"
	"github.com/harun/warden/pkg/exchangelog"
	"github.com/harun/warden/pkg/prompt"
	"github.com/harun/warden/pkg/session"
	"github.com/harun/warden/pkg/taskqueue"
	"github.com/rs/zerolog"
)

const shutdownTimeout = 5 * time.Second

// Options adjust how the daemon is hosted.
type Options struct {
	// ConfigPath enables schedule hot reload when set.
	ConfigPath string

	// AutoStart starts the agent as soon as the daemon is up.
	AutoStart bool

	// SessionFactory overrides the factory built from the session config.
	SessionFactory session.Factory

	// Version is attached to trace resources.
	Version string
}

// Daemon hosts the agent controller and its control API.
type Daemon struct {
	config *config.Config
	opts   Options
	logger *logger.Logger
	zl     zerolog.Logger

	// Core modules
	queue      *taskqueue.Queue
	scheduler  *cron.Scheduler
	source     *datasource.Client
	prompts    *prompt.Builder
	sqlite     *exchangelog.SQLiteSink
	controller *agent.Controller

	// Services
	server  *controlapi.Server
	watcher *config.Watcher

	// Internal
	eventLoop *EventLoop
	lifecycle *LifecycleManager

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	startTime time.Time
	running   bool
	mu        sync.RWMutex

	stopTracing tracing.Shutdown
}

// New wires every module from cfg. Nothing runs until Start.
func New(cfg *config.Config, log *logger.Logger, opts Options) (*Daemon, error) {
	ctx, cancel := context.WithCancel(context.Background())

	observability.EnsureRegistered()

	d := &Daemon{
		config: cfg,
		opts:   opts,
		logger: log,
		zl:     log.Component("daemon"),
		ctx:    ctx,
		cancel: cancel,
	}

	if cfg.Tracing.Enabled {
		shutdown, err := tracing.Setup(tracing.Options{
			ServiceName:    cfg.Tracing.ServiceName,
			ServiceVersion: opts.Version,
			SampleRatio:    cfg.Tracing.SampleRatio,
		})
		if err != nil {
			d.zl.Warn().Err(err).Msg("Failed to initialize tracing, continuing without distributed tracing")
		} else {
			d.stopTracing = shutdown
			d.zl.Info().Float64("sample_ratio", cfg.Tracing.SampleRatio).Msg("Tracing initialized")
		}
	}

	if err := d.initializeCoreModules(); err != nil {
		d.abort()
		return nil, fmt.Errorf("failed to initialize core modules: %w", err)
	}

	if err := d.initializeServices(); err != nil {
		d.abort()
		return nil, fmt.Errorf("failed to initialize services: %w", err)
	}

	d.eventLoop = NewEventLoop(d)
	d.lifecycle = NewLifecycleManager(d)

	return d, nil
}

func (d *Daemon) abort() {
	d.cancel()
	if d.sqlite != nil {
		_ = d.sqlite.Close()
	}
	if d.stopTracing != nil {
		_ = d.stopTracing(context.Background())
		d.stopTracing = nil
	}
}

// initializeCoreModules builds the queue, scheduler, prompt builder, sinks
// and controller.
func (d *Daemon) initializeCoreModules() error {
	cfg := d.config

	if err := os.MkdirAll(cfg.DataDir, 0755); err != nil {
		return fmt.Errorf("failed to create data directory: %w", err)
	}

	auditPath := cfg.Logging.AuditFile
	if auditPath == "" {
		auditPath = filepath.Join(cfg.DataDir, "audit.log")
	}
	if err := observability.InitAuditLogger(auditPath); err != nil {
		d.zl.Warn().Err(err).Msg("Failed to initialize audit logger, using default stderr")
	} else {
		d.zl.Info().Str("path", auditPath).Msg("Audit logger initialized")
	}

	var source datasource.Source
	if cfg.DataSource.BaseURL != "" {
		d.source = datasource.NewClient(datasource.Config{
			BaseURL:  cfg.DataSource.BaseURL,
			TokenEnv: cfg.DataSource.TokenEnv,
			Timeout:  time.Duration(cfg.DataSource.TimeoutSeconds) * time.Second,
		}, d.logger.GetZerolog())
		source = d.source
		d.zl.Info().Str("base_url", cfg.DataSource.BaseURL).Msg("Data source initialized")
	} else {
		d.zl.Warn().Msg("No data source configured, prompts will carry no context")
	}

	builder, err := prompt.NewBuilder(source, cfg.Prompts, d.logger.GetZerolog())
	if err != nil {
		return fmt.Errorf("failed to create prompt builder: %w", err)
	}
	d.prompts = builder
	d.zl.Debug().Strs("templates", builder.Names()).Msg("Prompt templates loaded")

	d.queue = taskqueue.New()
	d.scheduler = cron.NewScheduler(cfg.Tasks, d.queue, builder.Build, d.logger.GetZerolog())
	d.zl.Info().Int("tasks", len(cfg.Tasks)).Msg("Scheduler initialized")

	sink, err := d.buildSink()
	if err != nil {
		return err
	}

	factory := d.opts.SessionFactory
	if factory == nil {
		factory = session.NewFactory(sessionConfig(cfg), d.logger.GetZerolog())
	}

	controller, err := agent.New(agent.Config{
		Queue:          d.queue,
		Scheduler:      d.scheduler,
		SessionFactory: factory,
		Sink:           sink,
		Logger:         d.logger.GetZerolog(),
		CheckInterval:  cfg.Agent.CheckInterval(),
	})
	if err != nil {
		return fmt.Errorf("failed to create agent controller: %w", err)
	}
	d.controller = controller
	d.zl.Info().Str("session", cfg.Session.Kind).Msg("Agent controller initialized")

	return nil
}

func (d *Daemon) buildSink() (exchangelog.Sink, error) {
	cfg := d.config.ExchangeLog
	var sinks exchangelog.MultiSink

	if cfg.Dir != "" {
		fs, err := exchangelog.NewFileSink(cfg.Dir)
		if err != nil {
			return nil, fmt.Errorf("failed to create exchange file sink: %w", err)
		}
		sinks = append(sinks, fs)
	}

	if cfg.SQLite != "" {
		db, err := exchangelog.OpenSQLite(cfg.SQLite)
		if err != nil {
			return nil, fmt.Errorf("failed to open exchange database: %w", err)
		}
		d.sqlite = db
		sinks = append(sinks, db)
	}

	if len(sinks) == 0 {
		return exchangelog.Discard{}, nil
	}
	return sinks, nil
}

// sessionConfig maps the config file onto session.Config.
func sessionConfig(cfg *config.Config) session.Config {
	b, a := cfg.Session.Browser, cfg.Session.API
	return session.Config{
		Kind:              cfg.Session.Kind,
		RotateAfterTokens: cfg.Agent.RotateAfterTokens,
		Browser: session.BrowserConfig{
			ChatURL:       b.ChatURL,
			ProfileDir:    b.ProfileDir,
			ChromePath:    b.ChromePath,
			Headless:      b.Headless,
			NoSandbox:     b.NoSandbox,
			InputSelector: b.InputSelector,
			SendSelector:  b.SendSelector,
			ReplySelector: b.ReplySelector,
		},
		API: session.APIConfig{
			Provider:     a.Provider,
			Model:        a.Model,
			BaseURL:      a.BaseURL,
			APIKey:       a.APIKey,
			APIKeyEnv:    a.APIKeyEnv,
			Temperature:  &a.Temperature,
			MaxTokens:    a.MaxTokens,
			SystemPrompt: a.SystemPrompt,
		},
	}
}

// initializeServices builds the control API.
func (d *Daemon) initializeServices() error {
	serverCfg := controlapi.Config{
		Addr:         d.config.Control.Addr(),
		SharedSecret: d.config.Control.SharedSecret,
		Controller:   d.controller,
		Logger:       d.logger.GetZerolog(),
	}
	if d.sqlite != nil {
		serverCfg.Exchanges = d.sqlite
	}

	server, err := controlapi.NewServer(serverCfg)
	if err != nil {
		return fmt.Errorf("failed to create control API: %w", err)
	}
	d.server = server
	return nil
}

// Start brings up the PID file, control API and config watcher, and
// optionally the agent.
func (d *Daemon) Start() error {
	d.mu.Lock()
	if d.running {
		d.mu.Unlock()
		return fmt.Errorf("daemon is already running")
	}
	d.running = true
	d.startTime = time.Now()
	d.mu.Unlock()

	logger := d.zl.With().Str("trace_id", tracing.NewTraceID()).Logger()
	logger.Info().Msg("Starting Warden daemon")

	if err := d.lifecycle.Start(); err != nil {
		return fmt.Errorf("failed to start lifecycle manager: %w", err)
	}

	if err := d.server.Start(); err != nil {
		_ = d.lifecycle.Stop()
		return fmt.Errorf("failed to start control API: %w", err)
	}
	logger.Info().Str("addr", d.server.Addr()).Msg("Control API started")

	if d.opts.ConfigPath != "" {
		w, err := config.NewWatcher(config.NewLoader(d.opts.ConfigPath), d.logger.GetZerolog(), d.applyConfig)
		if err != nil {
			logger.Warn().Err(err).Msg("Failed to watch config file, schedule reload disabled")
		} else {
			d.watcher = w
		}
	}

	if d.opts.AutoStart {
		if err := d.controller.Start(d.ctx); err != nil {
			logger.Error().Err(err).Msg("Failed to auto-start agent, use the control API to retry")
		}
	}

	d.wg.Add(1)
	go func() {
		defer d.wg.Done()
		d.eventLoop.Run(d.ctx)
	}()

	logger.Info().Msg("Daemon started successfully")
	return nil
}

// applyConfig hands reloaded schedules to the controller.
func (d *Daemon) applyConfig(cfg *config.Config) {
	d.mu.Lock()
	d.config.Tasks = cfg.Tasks
	d.mu.Unlock()

	d.controller.ReloadSchedules(cfg.Tasks)

	names := make([]string, 0, len(cfg.Tasks))
	for _, t := range cfg.Tasks {
		names = append(names, t.Name)
	}
	observability.RecordConfigAudit(d.ctx, "reload_schedules", "config-watcher", map[string]interface{}{
		"tasks": names,
	})
	d.zl.Info().Strs("tasks", names).Msg("Schedules reloaded from config")
}

// Stop stops the agent and every service, in reverse start order.
func (d *Daemon) Stop() error {
	d.mu.Lock()
	if !d.running {
		d.mu.Unlock()
		return fmt.Errorf("daemon is not running")
	}
	d.running = false
	d.mu.Unlock()

	logger := d.zl.With().Str("trace_id", tracing.NewTraceID()).Logger()
	logger.Info().Msg("Stopping Warden daemon")

	if d.watcher != nil {
		if err := d.watcher.Stop(); err != nil {
			logger.Error().Err(err).Msg("Failed to stop config watcher")
		}
	}

	if err := d.controller.Stop(); err != nil && !errors.Is(err, agent.ErrNotRunning) {
		logger.Error().Err(err).Msg("Failed to stop agent")
	}
	d.eventLoop.HandleShutdown()

	shutdownCtx, cancelShutdown := context.WithTimeout(context.Background(), shutdownTimeout)
	if err := d.server.Stop(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("Failed to stop control API")
	}
	cancelShutdown()

	d.cancel()

	done := make(chan struct{})
	go func() {
		d.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		logger.Info().Msg("All goroutines stopped")
	case <-time.After(shutdownTimeout):
		logger.Warn().Msg("Timeout waiting for goroutines to stop")
	}

	if err := d.lifecycle.Stop(); err != nil {
		logger.Error().Err(err).Msg("Failed to stop lifecycle manager")
	}

	if d.sqlite != nil {
		if err := d.sqlite.Close(); err != nil {
			logger.Error().Err(err).Msg("Failed to close exchange database")
		}
	}

	if d.stopTracing != nil {
		tracingCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		if err := d.stopTracing(tracingCtx); err != nil {
			logger.Error().Err(err).Msg("Failed to shutdown tracing")
		}
		cancel()
		d.stopTracing = nil
	}

	if err := observability.GetAuditLogger().Close(); err != nil {
		logger.Error().Err(err).Msg("Failed to close audit logger")
	}

	logger.Info().Msg("Daemon stopped successfully")
	return nil
}

// Status is the host-level view of the daemon.
type Status struct {
	Running   bool
	Uptime    time.Duration
	StartTime time.Time
	Addr      string
	Agent     agent.Status
}

// Status returns the daemon status
func (d *Daemon) Status() Status {
	d.mu.RLock()
	defer d.mu.RUnlock()

	status := Status{
		Running: d.running,
		Agent:   d.controller.Status(),
	}

	if d.running {
		status.Uptime = time.Since(d.startTime)
		status.StartTime = d.startTime
		status.Addr = d.server.Addr()
	}

	return status
}

// Wait blocks until SIGINT or SIGTERM, then stops the daemon.
func (d *Daemon) Wait() {
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigChan)

	sig := <-sigChan
	d.zl.Info().Str("signal", sig.String()).Msg("Received signal")

	if err := d.Stop(); err != nil {
		d.zl.Error().Err(err).Msg("Failed to stop daemon")
	}
}

// GetConfig returns the daemon configuration
func (d *Daemon) GetConfig() *config.Config {
	return d.config
}

// GetController returns the agent controller
func (d *Daemon) GetController() *agent.Controller {
	return d.controller
}

// GetQueue returns the task queue
func (d *Daemon) GetQueue() *taskqueue.Queue {
	return d.queue
}

// GetServer returns the control API server
func (d *Daemon) GetServer() *controlapi.Server {
	return d.server
}
