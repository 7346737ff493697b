package cmd

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/gridport/gridport/internal/config"
	"github.com/gridport/gridport/internal/importer"
	"github.com/gridport/gridport/internal/logging"
	"github.com/gridport/gridport/internal/progress"
	"github.com/gridport/gridport/internal/session"
	"github.com/gridport/gridport/internal/source"
	"github.com/gridport/gridport/internal/state"
	"github.com/gridport/gridport/internal/storage"
)

// app bundles the collaborators a command needs to talk to the source base
// and the target database. Close releases the connection pool.
type app struct {
	cfg      *config.Config
	logger   *slog.Logger
	source   source.RecordSource
	store    *storage.Postgres
	sessions *session.PostgresStore
	engine   *importer.Engine
}

func (a *app) Close(ctx context.Context) {
	if a.store != nil {
		_ = a.store.Close(ctx)
	}
}

// loadConfig reads the config from --config or the default path.
func loadConfig() (*config.Config, error) {
	path := cfgFile
	if path == "" {
		path = config.ExpandHome(config.DefaultPath)
	}
	cfg, err := config.Load(path)
	if err != nil {
		return nil, fmt.Errorf("loading config: %w", err)
	}
	return cfg, nil
}

// newLogger builds the shared logger. --log-level wins over the config.
func newLogger(cfg *config.Config) (*slog.Logger, error) {
	level := cfg.Logging.Level
	if logLevel != "" {
		level = logLevel
	}
	logger, err := logging.Setup(level, cfg.Logging.Directory)
	if err != nil {
		return nil, fmt.Errorf("setting up logging: %w", err)
	}
	return logger, nil
}

// buildSource constructs the grid API client from the config.
func buildSource(cfg *config.Config) source.RecordSource {
	return source.NewGridClient(source.GridConfig{
		BaseURL:    cfg.Source.BaseURL,
		BaseID:     cfg.Source.BaseID,
		Token:      cfg.Source.Token,
		PageSize:   cfg.Source.PageSize,
		MaxRetries: cfg.Source.MaxRetries,
	})
}

// buildApp wires the import engine against the configured source and
// storage. A nil sink leaves progress events unobserved.
func buildApp(ctx context.Context, cfg *config.Config, logger *slog.Logger, sink progress.Sink) (*app, error) {
	store, err := storage.Connect(ctx, cfg.Storage.ConnString(), int32(cfg.Storage.MaxConnections))
	if err != nil {
		return nil, fmt.Errorf("connecting to postgres: %w", err)
	}

	sessions := session.NewPostgresStore(store.Pool())
	if err := sessions.EnsureSchema(ctx); err != nil {
		_ = store.Close(ctx)
		return nil, fmt.Errorf("preparing session tables: %w", err)
	}

	src := buildSource(cfg)
	eng := importer.New(importer.Deps{
		Source:     src,
		Store:      store,
		Sessions:   sessions,
		Sink:       sink,
		Thresholds: cfg.Analysis,
		Logger:     logger,
	})

	return &app{
		cfg:      cfg,
		logger:   logger,
		source:   src,
		store:    store,
		sessions: sessions,
		engine:   eng,
	}, nil
}

// resolveSessionID returns the explicit id, falling back to the last
// session recorded in the CLI state.
func resolveSessionID(explicit string) (string, error) {
	if explicit != "" {
		return explicit, nil
	}
	st, err := state.Load("")
	if err != nil {
		return "", fmt.Errorf("loading state: %w", err)
	}
	if st.LastSessionID == "" {
		return "", fmt.Errorf("no session id given and no previous import recorded; pass --session")
	}
	return st.LastSessionID, nil
}

// rememberSession records a session in the CLI state so later commands can
// default to it.
func rememberSession(id string, tables []string) {
	st, err := state.Load("")
	if err != nil {
		st = state.New()
	}
	st.LastSessionID = id
	if len(tables) > 0 {
		st.SelectedTables = tables
	}
	if cfgFile != "" {
		st.ConfigPath = cfgFile
	}
	_ = st.Save("")
}
