// Package daemon wires the platform together: storage, knowledge index,
// tool registry, orchestration engine, API server and the background
// knowledge sync loop.
package daemon

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/ndaru/kirana/internal/config"
	"github.com/ndaru/kirana/internal/logger"
	"github.com/ndaru/kirana/internal/server"
	"github.com/ndaru/kirana/internal/store"
	"github.com/ndaru/kirana/pkg/connector"
	"github.com/ndaru/kirana/pkg/knowledge"
	"github.com/ndaru/kirana/pkg/orchestrator"
	"github.com/ndaru/kirana/pkg/toolkit"
	"github.com/ndaru/kirana/pkg/tools"
)

// Daemon is the long-running platform process.
type Daemon struct {
	config *config.Config
	logger *logger.Logger

	store     *store.Store
	index     *knowledge.Index
	engine    *orchestrator.Engine
	apiServer *server.Server
	watcher   *knowledge.Watcher
	scheduler *cron.Cron

	ctx    context.Context
	cancel context.CancelFunc

	stopOnce sync.Once
}

// New creates a daemon instance with all modules initialized in dependency
// order. Nothing runs until Start is called.
func New(cfg *config.Config, log *logger.Logger) (*Daemon, error) {
	ctx, cancel := context.WithCancel(context.Background())
	zl := log.GetZerolog()

	st, err := store.Open(cfg.Database.Path, zl)
	if err != nil {
		cancel()
		return nil, fmt.Errorf("failed to open store: %w", err)
	}

	index, err := knowledge.NewIndex(st.DB(), st, buildEmbedder(cfg.Knowledge.Embedding), zl)
	if err != nil {
		st.Close()
		cancel()
		return nil, fmt.Errorf("failed to initialize knowledge index: %w", err)
	}

	registry := toolkit.NewRegistry(zl)
	if err := tools.RegisterBuiltins(registry, tools.Deps{
		Searcher:    index,
		Rubrics:     st,
		ContentRoot: cfg.ContentRoot,
	}); err != nil {
		st.Close()
		cancel()
		return nil, fmt.Errorf("failed to register builtin tools: %w", err)
	}

	engine := orchestrator.NewEngine(registry, zl)

	var conn connector.Connector
	defaultModel := ""
	if profile := cfg.PrimaryProfile(); profile != nil {
		conn, err = connector.New(profile.Provider, profile.APIKey)
		if err != nil {
			st.Close()
			cancel()
			return nil, fmt.Errorf("failed to create AI connector: %w", err)
		}
		defaultModel = profile.Model
		log.Info().Str("provider", profile.Provider).Str("profile", profile.ID).Msg("AI connector configured")
	} else {
		log.Warn().Msg("No AI profile configured, completions return processed messages only")
	}

	apiServer, err := server.NewServer(server.Options{
		Host:            cfg.Server.Host,
		Port:            cfg.Server.Port,
		ShutdownTimeout: time.Duration(cfg.Server.ShutdownTimeout) * time.Second,
		DefaultModel:    defaultModel,
	}, st, engine, conn, zl)
	if err != nil {
		st.Close()
		cancel()
		return nil, fmt.Errorf("failed to create API server: %w", err)
	}

	return &Daemon{
		config:    cfg,
		logger:    log,
		store:     st,
		index:     index,
		engine:    engine,
		apiServer: apiServer,
		ctx:       ctx,
		cancel:    cancel,
	}, nil
}

// Start brings up the background services and the API server.
func (d *Daemon) Start() error {
	if err := d.startKnowledgeSync(); err != nil {
		return err
	}

	go func() {
		if err := d.apiServer.Start(); err != nil {
			d.logger.Error().Err(err).Msg("API server error")
			d.cancel()
		}
	}()

	d.logger.Info().Msg("Daemon started")
	return nil
}

// Run starts the daemon and blocks until a shutdown signal arrives.
func (d *Daemon) Run() error {
	if err := d.Start(); err != nil {
		d.Stop()
		return err
	}

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-sigCh:
		d.logger.Info().Str("signal", sig.String()).Msg("Shutdown signal received")
	case <-d.ctx.Done():
	}

	return d.Stop()
}

// Stop shuts everything down in reverse dependency order.
func (d *Daemon) Stop() error {
	var firstErr error

	d.stopOnce.Do(func() {
		d.cancel()

		if d.scheduler != nil {
			stopCtx := d.scheduler.Stop()
			select {
			case <-stopCtx.Done():
			case <-time.After(5 * time.Second):
				d.logger.Warn().Msg("Scheduled jobs did not finish in time")
			}
		}

		if d.watcher != nil {
			if err := d.watcher.Stop(); err != nil && firstErr == nil {
				firstErr = err
			}
		}

		if err := d.apiServer.Stop(); err != nil && firstErr == nil {
			firstErr = err
		}

		if err := d.store.Close(); err != nil && firstErr == nil {
			firstErr = err
		}

		d.logger.Info().Msg("Daemon stopped")
	})

	return firstErr
}

// startKnowledgeSync performs the initial document ingest, then keeps the
// index fresh via filesystem events and the cron schedule.
func (d *Daemon) startKnowledgeSync() error {
	if err := d.ingestAll(d.ctx); err != nil {
		return err
	}

	if len(d.config.Knowledge.WatchDirs) > 0 {
		watcher, err := knowledge.NewWatcher(d.logger.GetZerolog(), func() {
			if err := d.refresh(d.ctx); err != nil {
				d.logger.Error().Err(err).Msg("Knowledge refresh failed")
			}
		})
		if err != nil {
			return fmt.Errorf("failed to create knowledge watcher: %w", err)
		}
		d.watcher = watcher

		for _, dir := range d.config.Knowledge.WatchDirs {
			if err := watcher.Watch(dir.Path); err != nil {
				d.logger.Error().Err(err).Str("path", dir.Path).Msg("Failed to watch knowledge directory")
			}
		}
	}

	if d.config.Knowledge.SyncSchedule != "" {
		d.scheduler = cron.New()
		_, err := d.scheduler.AddFunc(d.config.Knowledge.SyncSchedule, func() {
			if err := d.refresh(d.ctx); err != nil {
				d.logger.Error().Err(err).Msg("Scheduled knowledge sync failed")
			}
		})
		if err != nil {
			return fmt.Errorf("invalid sync schedule %q: %w", d.config.Knowledge.SyncSchedule, err)
		}
		d.scheduler.Start()
	}

	return nil
}

// refresh re-ingests the watched directories and syncs the index.
func (d *Daemon) refresh(ctx context.Context) error {
	if err := d.ingestAll(ctx); err != nil {
		return err
	}
	return d.index.SyncAll(ctx)
}

func buildEmbedder(cfg config.EmbeddingConfig) knowledge.EmbeddingProvider {
	if cfg.Provider == "openai" {
		return knowledge.NewOpenAIEmbedder(cfg.APIKey, cfg.Model)
	}
	return knowledge.NewHashEmbedder(cfg.Dimensions)
}
