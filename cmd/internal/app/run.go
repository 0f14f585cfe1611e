package app

import (
	"context"
	"os/signal"
	"syscall"

	"github.com/spf13/afero"
)

// Run is the CLI entrypoint used by cmd/rotator.
// It returns an error instead of calling os.Exit to keep defers effective.
func Run(configPath string) error {
	fc, err := LoadFileConfig(afero.NewOsFs(), configPath)
	if err != nil {
		return err
	}
	cfg, err := LoadConfig(fc)
	if err != nil {
		return err
	}
	log := NewLogger(cfg.LogLevel, cfg.LogFormat)

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	a, err := New(ctx, cfg, log, Deps{})
	if err != nil {
		return err
	}
	return a.Run(ctx)
}
