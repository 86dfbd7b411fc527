package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"github.com/loykin/camvault/internal/signal"
	"github.com/loykin/camvault/internal/store"
)

func createSettingsCommand(globalFlags *GlobalFlags) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "settings",
		Short: "Show or change system settings",
	}
	cmd.AddCommand(
		&cobra.Command{
			Use:   "show",
			Short: "Print the settings the daemon currently uses",
			RunE: func(cmd *cobra.Command, _ []string) error {
				env, err := openAdminEnv(cmd.Context(), globalFlags.ConfigPath)
				if err != nil {
					return err
				}
				defer func() { _ = env.Close() }()
				st, err := env.settings(cmd.Context())
				if err != nil {
					return err
				}
				printJSON(cmd.OutOrStdout(), st)
				return nil
			},
		},
		createSettingsSetCommand(globalFlags),
	)
	return cmd
}

func createSettingsSetCommand(globalFlags *GlobalFlags) *cobra.Command {
	flags := &SettingsSetFlags{}
	cmd := &cobra.Command{
		Use:   "set",
		Short: "Change settings; a new records dir is moved or wiped per relocation policy",
		Long: `Change system settings. Only flags that are given are changed.

Changing --records-dir leaves a move (mv.flag) or delete (rm.flag) request in
the new records directory, according to the relocation policy. The daemon
stops recording, moves or deletes the previous directory and restarts.

Examples:
  camvault settings set --min-free-gb=50
  camvault settings set --records-dir=/mnt/video --relocation=move`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			changed := func(name string) bool { return cmd.Flags().Changed(name) }
			return runSettingsSet(cmd.Context(), cmd.OutOrStdout(), globalFlags.ConfigPath, flags, changed)
		},
	}
	cmd.Flags().StringVar(&flags.RecordsDir, "records-dir", "", "absolute records directory")
	cmd.Flags().Float64Var(&flags.MinFreeGB, "min-free-gb", 0, "minimum free space in GB (0 disables eviction)")
	cmd.Flags().StringVar(&flags.Relocation, "relocation", "", "what to do with the old records dir: move or delete")
	cmd.Flags().StringVar(&flags.StoragePool, "storage-pool", "", "storage pool or RAID device name")
	return cmd
}

func runSettingsSet(ctx context.Context, out io.Writer, configPath string, flags *SettingsSetFlags, changed func(string) bool) error {
	env, err := openAdminEnv(ctx, configPath)
	if err != nil {
		return err
	}
	defer func() { _ = env.Close() }()

	cur, err := env.settings(ctx)
	if err != nil {
		return err
	}
	next := cur
	if changed("min-free-gb") {
		if flags.MinFreeGB < 0 {
			return fmt.Errorf("min-free-gb must not be negative")
		}
		next.MinFreeGB = flags.MinFreeGB
	}
	if changed("relocation") {
		policy, err := store.ParseRelocationPolicy(flags.Relocation)
		if err != nil {
			return err
		}
		next.Relocation = policy
	}
	if changed("storage-pool") {
		next.StoragePool = strings.TrimSpace(flags.StoragePool)
	}
	if changed("records-dir") {
		dir := strings.TrimSpace(flags.RecordsDir)
		if !filepath.IsAbs(dir) {
			return fmt.Errorf("records-dir must be absolute, got %q", flags.RecordsDir)
		}
		next.RecordsDir = filepath.Clean(dir)
	}

	if err := os.MkdirAll(next.RecordsDir, 0o750); err != nil {
		return fmt.Errorf("create records dir: %w", err)
	}
	if err := env.store.SaveSettings(ctx, next); err != nil {
		return fmt.Errorf("save settings: %w", err)
	}

	sig := signal.NewFiles(next.RecordsDir)
	oldRoot := filepath.Clean(cur.RecordsDir)
	if oldRoot != next.RecordsDir {
		kind := signal.Move
		if next.Relocation == store.RelocateDelete {
			kind = signal.Delete
		}
		if err := sig.Raise(kind, oldRoot); err != nil {
			return fmt.Errorf("request relocation: %w", err)
		}
		_, _ = fmt.Fprintf(out, "records dir changed: %s -> %s (%s)\n", oldRoot, next.RecordsDir, next.Relocation)
	}
	if err := sig.Raise(signal.Restart, ""); err != nil {
		return fmt.Errorf("request restart: %w", err)
	}
	_, _ = fmt.Fprintln(out, "settings saved")
	return nil
}
