package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	ossignal "os/signal"
	"path/filepath"
	"syscall"

	"github.com/gofrs/flock"
	"github.com/spf13/cobra"

	"github.com/loykin/camvault"
	"github.com/loykin/camvault/internal/config"
	"github.com/loykin/camvault/internal/logger"
)

func createServeCommand(globalFlags *GlobalFlags) *cobra.Command {
	serveFlags := &ServeFlags{}
	cmd := &cobra.Command{
		Use:   "serve [config.toml]",
		Short: "Run the recording supervisor",
		Long: `Run the recording supervisor until interrupted.

Examples:
  camvault serve                    # defaults plus CAMVAULT_* environment
  camvault serve config.toml
  camvault serve config.toml --daemonize --pidfile=/run/camvault.pid`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			serveFlags.ConfigPath = globalFlags.ConfigPath
			if len(args) > 0 {
				serveFlags.ConfigPath = args[0]
			}
			return runServe(serveFlags)
		},
	}
	cmd.Flags().BoolVar(&serveFlags.Daemonize, "daemonize", false, "run as daemon in background")
	cmd.Flags().StringVar(&serveFlags.PidFile, "pidfile", "", "write the daemon PID to this file")
	cmd.Flags().StringVar(&serveFlags.LogFile, "logfile", "", "redirect daemon console output to file")
	return cmd
}

func runServe(flags *ServeFlags) error {
	cfg, err := config.Load(flags.ConfigPath)
	if err != nil {
		return fmt.Errorf("error loading config: %w", err)
	}
	if flags.Daemonize {
		if !isDaemonSupported() {
			return errors.New("daemonize is not supported on this platform")
		}
		return daemonize(flags.PidFile, flags.LogFile)
	}
	if flags.PidFile != "" {
		if err := writePidFile(flags.PidFile, os.Getpid()); err != nil {
			return fmt.Errorf("write pid file: %w", err)
		}
		defer func() { _ = removePidFile(flags.PidFile) }()
	}

	log, logCloser, err := logger.New(cfg.Log.Logger(), os.Stderr)
	if err != nil {
		return fmt.Errorf("init logging: %w", err)
	}
	defer func() { _ = logCloser.Close() }()

	if err := os.MkdirAll(cfg.Loop.StateDir, 0o750); err != nil {
		return fmt.Errorf("create state dir: %w", err)
	}
	lockPath := filepath.Join(cfg.Loop.StateDir, "camvault.lock")
	lock := flock.New(lockPath)
	ok, err := lock.TryLock()
	if err != nil {
		return fmt.Errorf("acquire lock: %w", err)
	}
	if !ok {
		return fmt.Errorf("another camvault instance holds %s", lockPath)
	}
	defer func() {
		if err := lock.Unlock(); err != nil {
			log.Warn("failed to release instance lock", "error", err)
		}
	}()

	ctx, stop := ossignal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	st, err := camvault.OpenStore(ctx, cfg.Store.DSN)
	if err != nil {
		return err
	}
	defer func() { _ = st.Close() }()

	rec, closeHistory, err := camvault.OpenHistory(cfg.History.DSN, log)
	if err != nil {
		return err
	}
	defer closeHistory()

	if cfg.Metrics.Enabled {
		if err := camvault.RegisterMetricsDefault(); err != nil {
			log.Warn("failed to register metrics", "error", err)
		}
	}

	return camvault.NewDaemon(cfg, st, rec, log).Run(ctx)
}
