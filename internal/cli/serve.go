package cli

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/iambrandonn/parley/internal/answerqueue"
	"github.com/iambrandonn/parley/internal/channel"
	"github.com/iambrandonn/parley/internal/config"
	"github.com/iambrandonn/parley/internal/eventlog"
	"github.com/iambrandonn/parley/internal/journal"
	"github.com/iambrandonn/parley/internal/ledger"
	"github.com/iambrandonn/parley/internal/mediator"
	"github.com/iambrandonn/parley/internal/storage"
	"github.com/iambrandonn/parley/internal/toolapi"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the mediation engine",
	Long: `Run the engine: the agent-facing API, the console channel, and the
remote websocket channel, with persisted state restored from the data dir.`,
	RunE: runServe,
}

func runServe(cmd *cobra.Command, args []string) error {
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))

	configPath, err := cmd.Flags().GetString("config")
	if err != nil {
		return err
	}

	cfg, cfgPath, err := loadOrCreateConfig(configPath, logger)
	if err != nil {
		return err
	}
	logger.Info("loaded configuration", "path", cfgPath)

	if err := cfg.Validate(); err != nil {
		return err
	}

	dataDir := resolveDataDir(cfg, cfgPath)
	if err := os.MkdirAll(dataDir, 0700); err != nil {
		return fmt.Errorf("failed to create data dir: %w", err)
	}
	logger.Info("data dir", "path", dataDir)

	store, err := openStore(cfg, dataDir, logger)
	if err != nil {
		return err
	}
	defer store.Close()

	audit, err := eventlog.Open(filepath.Join(dataDir, "audit.ndjson"), logger)
	if err != nil {
		return fmt.Errorf("failed to open audit log: %w", err)
	}
	defer audit.Close()

	queue := answerqueue.New()
	session := ledger.New(cfg.Ledger.SessionMax)
	history := ledger.NewHistory(cfg.Ledger.HistoryMax)

	m := mediator.New(queue, session, history, logger)
	m.SetAuditor(audit)
	m.SetProcessingTimeout(cfg.ProcessingTimeout())

	m.Restore(journal.Load(store, logger))
	if _, err := store.Get(storage.KeyAnswerQueue); errors.Is(err, storage.ErrNotFound) {
		// fresh data dir: the config's initial flags apply
		m.SetQueueEnabled(cfg.AnswerQueue.Enabled)
		m.SetQueuePaused(cfg.AnswerQueue.Paused)
	}

	j := journal.New(store, m.Snapshot, cfg.Debounce(), logger)
	m.SetJournal(j)

	hub := channel.NewHub(logger)
	hub.Register(channel.NewConsole(cmd.OutOrStdout()))
	m.SetNotifier(hub)

	mux := toolapi.NewHandler(m, logger).Router()
	mux.Handle("/v1/channel", channel.NewServer(hub, m, logger))

	srv := &http.Server{
		Addr:    cfg.Listen,
		Handler: mux,
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	errCh := make(chan error, 1)
	go func() {
		logger.Info("engine listening", "addr", cfg.Listen)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case <-ctx.Done():
		logger.Info("shutting down")
	case err := <-errCh:
		return fmt.Errorf("server failed: %w", err)
	}

	// Drain outstanding waiters first so blocked ask handlers can finish,
	// then stop accepting connections
	if err := m.Close(); err != nil {
		logger.Warn("final state flush failed", "error", err)
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Warn("server shutdown incomplete", "error", err)
	}

	if err := j.Close(); err != nil {
		logger.Warn("journal close failed", "error", err)
	}
	hub.Close()

	logger.Info("engine stopped")
	return nil
}

func openStore(cfg *config.Config, dataDir string, logger *slog.Logger) (storage.Store, error) {
	switch cfg.Storage.Backend {
	case config.BackendBadger:
		return storage.NewBadgerStore(storage.BadgerConfig{
			Path:   filepath.Join(dataDir, "badger"),
			Logger: logger,
		})
	default:
		return storage.NewFileStore(filepath.Join(dataDir, "state"))
	}
}

// resolveDataDir interprets a relative data_dir against the config file's
// directory, so the engine finds its state no matter where it is launched
func resolveDataDir(cfg *config.Config, cfgPath string) string {
	if filepath.IsAbs(cfg.DataDir) {
		return cfg.DataDir
	}
	return filepath.Join(filepath.Dir(cfgPath), cfg.DataDir)
}

func loadOrCreateConfig(configPath string, logger *slog.Logger) (*config.Config, string, error) {
	// If explicit path provided, use it
	if configPath != "" {
		cfg, err := config.LoadFromFile(configPath)
		if err != nil {
			return nil, "", fmt.Errorf("failed to load config from %s: %w", configPath, err)
		}
		return cfg, configPath, nil
	}

	// Search up directory tree for parley.json
	cwd, err := os.Getwd()
	if err != nil {
		return nil, "", fmt.Errorf("failed to get current directory: %w", err)
	}

	foundPath, err := config.Find(cwd)
	if err != nil {
		return nil, "", err
	}

	if foundPath != "" {
		logger.Info("found existing config", "path", foundPath)
		cfg, err := config.LoadFromFile(foundPath)
		if err != nil {
			return nil, "", fmt.Errorf("failed to load config: %w", err)
		}
		return cfg, foundPath, nil
	}

	// No config found, create default in current directory
	defaultPath := filepath.Join(cwd, config.FileName)
	logger.Info("no config found, creating default", "path", defaultPath)

	cfg := config.GenerateDefault()
	if err := cfg.SaveToFile(defaultPath); err != nil {
		return nil, "", fmt.Errorf("failed to save default config: %w", err)
	}

	return cfg, defaultPath, nil
}
