// Package app wires the searcher together: configuration, logging, the index
// engine, the archival sink, the correlation store, the ingestion pipeline and
// the interactive frontend, plus lifecycle and signal handling.
package app

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/dmitrijs2005/tgsearcher/internal/backend"
	"github.com/dmitrijs2005/tgsearcher/internal/cloud"
	"github.com/dmitrijs2005/tgsearcher/internal/config"
	"github.com/dmitrijs2005/tgsearcher/internal/frontend"
	"github.com/dmitrijs2005/tgsearcher/internal/index"
	"github.com/dmitrijs2005/tgsearcher/internal/kvstore"
	"github.com/dmitrijs2005/tgsearcher/internal/logging"
	"github.com/dmitrijs2005/tgsearcher/internal/telegram"
)

type App struct {
	cfg      *config.Config
	logger   logging.Logger
	indexer  index.Indexer
	store    kvstore.Store
	backend  *backend.Backend
	frontend *frontend.Frontend
	renderer telegram.Renderer
}

// New builds the full component graph over the given platform client pair.
// The archival sink is provisioned (bucket, table) only when cloud archival
// is enabled.
func New(ctx context.Context, cfg *config.Config, session telegram.Session, renderer telegram.Renderer) (*App, error) {
	sl := slog.New(slog.NewJSONHandler(os.Stdout, nil))
	logger := logging.NewSlogLogger(sl)

	idx, err := openIndex(cfg)
	if err != nil {
		return nil, fmt.Errorf("index init error: %w", err)
	}

	var archiver backend.Archiver
	if cfg.CloudEnabled {
		cl, err := cloud.NewClient(ctx, cloud.Config{
			Region:       cfg.S3Region,
			Bucket:       cfg.S3Bucket,
			Table:        cfg.DynamoTable,
			AccessKey:    cfg.AWSAccessKey,
			SecretKey:    cfg.AWSSecretKey,
			BaseEndpoint: cfg.S3BaseEndpoint,
		}, logger)
		if err != nil {
			return nil, fmt.Errorf("cloud init error: %w", err)
		}
		if err := cl.EnsureBucket(ctx); err != nil {
			return nil, fmt.Errorf("bucket provisioning error: %w", err)
		}
		if err := cl.EnsureTable(ctx); err != nil {
			return nil, fmt.Errorf("table provisioning error: %w", err)
		}
		archiver = cl
	}

	store, err := openStore(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("correlation store init error: %w", err)
	}

	b, err := backend.New(ctx, cfg.InstanceID, backend.Config{
		MonitorAll:    cfg.MonitorAll,
		ExcludedChats: cfg.ExcludedChats,
		CloudEnabled:  cfg.CloudEnabled,
	}, idx, session, archiver, logger)
	if err != nil {
		return nil, fmt.Errorf("backend init error: %w", err)
	}

	f := frontend.New(cfg.InstanceID, frontend.Config{
		AdminChat:              cfg.AdminChat,
		PageLen:                cfg.PageLen,
		BotUsername:            cfg.BotUsername,
		PrivateMode:            cfg.PrivateMode,
		PrivateWhitelist:       cfg.PrivateWhitelist,
		PrivateWhitelistGroups: cfg.PrivateWhitelistGroups,
	}, b, renderer, store, logger)

	return &App{
		cfg:      cfg,
		logger:   logger,
		indexer:  idx,
		store:    store,
		backend:  b,
		frontend: f,
		renderer: renderer,
	}, nil
}

func openIndex(cfg *config.Config) (index.Indexer, error) {
	if cfg.IndexDir == "" {
		return index.NewMemory(), nil
	}
	return index.OpenBleve(cfg.IndexDir, cfg.CleanIndex)
}

func openStore(ctx context.Context, cfg *config.Config) (kvstore.Store, error) {
	if cfg.RedisAddr == "" {
		return kvstore.NewMemory(), nil
	}
	return kvstore.NewRedis(ctx, cfg.RedisAddr)
}

// HandleMessage forwards one inbound bot message to the frontend.
func (app *App) HandleMessage(ctx context.Context, msg *telegram.Message) {
	app.frontend.HandleMessage(ctx, msg)
}

// HandleCallback forwards one button press to the frontend.
func (app *App) HandleCallback(ctx context.Context, cb *telegram.Callback) {
	app.frontend.HandleCallback(ctx, cb)
}

func (app *App) initSignalHandler(cancelFunc context.CancelFunc) {
	// Channel to catch OS signals.
	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, syscall.SIGINT, syscall.SIGTERM, syscall.SIGQUIT)

	go func() {
		<-sigs
		cancelFunc()
	}()
}

// Run starts the pipeline, reports the index status to the admin chat and
// blocks until the context is cancelled or a termination signal arrives.
func (app *App) Run(ctx context.Context) error {
	ctx, cancelFunc := context.WithCancel(ctx)
	defer cancelFunc()

	app.logger.Info(ctx, "starting app", "instance_id", app.cfg.InstanceID)

	app.initSignalHandler(cancelFunc)

	if err := app.backend.Start(ctx); err != nil {
		return fmt.Errorf("backend start error: %w", err)
	}

	if err := app.frontend.Start(ctx); err != nil {
		return fmt.Errorf("frontend start error: %w", err)
	}

	if app.cfg.AdminChat != 0 {
		status, err := app.backend.IndexStatus(ctx, 4000)
		if err != nil {
			app.logger.Error(ctx, "failed to collect index status", "error", err)
		} else if _, err := app.renderer.SendMessage(ctx, app.cfg.AdminChat, "Initialization complete.\n\n"+status, nil); err != nil {
			app.logger.Error(ctx, "failed to report startup status", "error", err)
		}
	}

	<-ctx.Done()
	app.logger.Info(ctx, "shutting down")
	return app.close()
}

func (app *App) close() error {
	var firstErr error
	if err := app.indexer.Close(); err != nil {
		firstErr = err
	}
	if closer, ok := app.store.(io.Closer); ok {
		if err := closer.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}
