package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"

	"github.com/loykin/camvault"
	"github.com/loykin/camvault/internal/config"
	"github.com/loykin/camvault/internal/signal"
	"github.com/loykin/camvault/internal/store"
)

// adminEnv is what the administrative commands operate on.
type adminEnv struct {
	cfg   *config.Config
	store store.Store
}

func openAdminEnv(ctx context.Context, configPath string) (*adminEnv, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, fmt.Errorf("error loading config: %w", err)
	}
	st, err := camvault.OpenStore(ctx, cfg.Store.DSN)
	if err != nil {
		return nil, err
	}
	return &adminEnv{cfg: cfg, store: st}, nil
}

func (e *adminEnv) Close() error { return e.store.Close() }

// settings returns the stored settings with the configured records root as
// fallback, exactly as the daemon sees them.
func (e *adminEnv) settings(ctx context.Context) (store.Settings, error) {
	st, err := e.store.Settings(ctx)
	if err != nil {
		return store.Settings{}, err
	}
	return st.WithDefaults(e.cfg.Loop.RecordsDir), nil
}

// signals returns the signal channel of the current records root.
func (e *adminEnv) signals(ctx context.Context) (*signal.Files, error) {
	st, err := e.settings(ctx)
	if err != nil {
		return nil, err
	}
	return signal.NewFiles(st.RecordsDir), nil
}

func printJSON(w io.Writer, v any) {
	b, _ := json.MarshalIndent(v, "", "  ")
	_, _ = fmt.Fprintln(w, string(b))
}
