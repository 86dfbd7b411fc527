package main

import (
	"context"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/loykin/camvault/internal/signal"
)

func createSignalCommand(globalFlags *GlobalFlags) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "signal",
		Short: "Send a command to the running daemon",
		Long: `Send a command to the daemon through signal files in the records directory.

  stop     stop recording until the next restart
  restart  restart every recorder and clear a pending stop
  status   show pending commands`,
	}
	cmd.AddCommand(
		&cobra.Command{
			Use:   "stop",
			Short: "Stop all recording",
			RunE: func(cmd *cobra.Command, _ []string) error {
				return runSignal(cmd.Context(), cmd.OutOrStdout(), globalFlags.ConfigPath, signal.Stop)
			},
		},
		&cobra.Command{
			Use:   "restart",
			Short: "Restart all recording",
			RunE: func(cmd *cobra.Command, _ []string) error {
				return runSignal(cmd.Context(), cmd.OutOrStdout(), globalFlags.ConfigPath, signal.Restart)
			},
		},
		&cobra.Command{
			Use:   "status",
			Short: "Show pending signal files",
			RunE: func(cmd *cobra.Command, _ []string) error {
				return runSignalStatus(cmd.Context(), cmd.OutOrStdout(), globalFlags.ConfigPath)
			},
		},
	)
	return cmd
}

func runSignal(ctx context.Context, out io.Writer, configPath string, kind signal.Kind) error {
	env, err := openAdminEnv(ctx, configPath)
	if err != nil {
		return err
	}
	defer func() { _ = env.Close() }()

	sig, err := env.signals(ctx)
	if err != nil {
		return err
	}
	// a pending restart would immediately undo the stop
	if kind == signal.Stop {
		if err := sig.Consume(signal.Restart); err != nil {
			return err
		}
	}
	if err := sig.Raise(kind, ""); err != nil {
		return err
	}
	_, _ = fmt.Fprintf(out, "%s requested (%s)\n", kind, sig.Path(kind))
	return nil
}

func runSignalStatus(ctx context.Context, out io.Writer, configPath string) error {
	env, err := openAdminEnv(ctx, configPath)
	if err != nil {
		return err
	}
	defer func() { _ = env.Close() }()

	sig, err := env.signals(ctx)
	if err != nil {
		return err
	}
	pending := make(map[string]bool, len(signal.Kinds))
	for _, k := range signal.Kinds {
		pending[string(k)] = sig.Peek(k)
	}
	printJSON(out, map[string]any{"records_dir": sig.Root(), "pending": pending})
	return nil
}
