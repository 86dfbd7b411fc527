package main

import (
	"context"
	"fmt"
	"io"
	"strconv"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/loykin/camvault/internal/signal"
	"github.com/loykin/camvault/internal/source"
)

func createSourceCommand(globalFlags *GlobalFlags) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "source",
		Short: "Manage recorded sources",
	}
	cmd.AddCommand(
		createSourceAddCommand(globalFlags),
		createSourceListCommand(globalFlags),
		createSourceRemoveCommand(globalFlags),
	)
	return cmd
}

func createSourceAddCommand(globalFlags *GlobalFlags) *cobra.Command {
	flags := &SourceAddFlags{}
	cmd := &cobra.Command{
		Use:   "add",
		Short: "Register a camera and ask the daemon to restart recording",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runSourceAdd(cmd.Context(), cmd.OutOrStdout(), globalFlags.ConfigPath, flags)
		},
	}
	cmd.Flags().StringVar(&flags.Protocol, "protocol", "rtsp", "stream protocol")
	cmd.Flags().StringVar(&flags.Host, "host", "", "camera host or IP")
	cmd.Flags().IntVar(&flags.Port, "port", 554, "camera port")
	cmd.Flags().StringVar(&flags.Path, "path", "/", "stream path")
	cmd.Flags().StringVar(&flags.Username, "user", "admin", "login")
	cmd.Flags().StringVar(&flags.Password, "password", "", "password")
	cmd.Flags().IntVar(&flags.SegmentSeconds, "segment", 300, "segment length in seconds")
	cmd.Flags().StringVar(&flags.LogLevel, "loglevel", "error", "capture log level ("+levelList()+")")
	_ = cmd.MarkFlagRequired("host")
	return cmd
}

func runSourceAdd(ctx context.Context, out io.Writer, configPath string, flags *SourceAddFlags) error {
	level, err := source.ParseLogLevel(flags.LogLevel)
	if err != nil {
		return err
	}
	env, err := openAdminEnv(ctx, configPath)
	if err != nil {
		return err
	}
	defer func() { _ = env.Close() }()

	src := source.Source{
		Protocol:       flags.Protocol,
		Host:           flags.Host,
		Port:           flags.Port,
		Path:           flags.Path,
		Username:       flags.Username,
		Password:       flags.Password,
		SegmentSeconds: flags.SegmentSeconds,
		LogLevel:       level,
	}
	if err := env.store.AddSource(ctx, &src); err != nil {
		return fmt.Errorf("add source: %w", err)
	}
	if err := requestRestart(ctx, env); err != nil {
		return err
	}
	_, _ = fmt.Fprintf(out, "added source %d: %s\n", src.ID, src.Name())
	return nil
}

func createSourceListCommand(globalFlags *GlobalFlags) *cobra.Command {
	var asJSON bool
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List registered sources",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runSourceList(cmd.Context(), cmd.OutOrStdout(), globalFlags.ConfigPath, asJSON)
		},
	}
	cmd.Flags().BoolVar(&asJSON, "json", false, "print JSON")
	return cmd
}

func runSourceList(ctx context.Context, out io.Writer, configPath string, asJSON bool) error {
	env, err := openAdminEnv(ctx, configPath)
	if err != nil {
		return err
	}
	defer func() { _ = env.Close() }()

	sources, err := env.store.Sources(ctx)
	if err != nil {
		return fmt.Errorf("list sources: %w", err)
	}
	if asJSON {
		printJSON(out, sources)
		return nil
	}
	tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	_, _ = fmt.Fprintln(tw, "ID\tSOURCE\tSEGMENT\tLOGLEVEL")
	for _, s := range sources {
		_, _ = fmt.Fprintf(tw, "%d\t%s\t%ds\t%s\n", s.ID, s.Name(), s.SegmentSeconds, s.LogLevel)
	}
	return tw.Flush()
}

func createSourceRemoveCommand(globalFlags *GlobalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "remove <id>",
		Short: "Remove a source; its recordings are kept",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := strconv.ParseInt(args[0], 10, 64)
			if err != nil {
				return fmt.Errorf("invalid source id %q", args[0])
			}
			return runSourceRemove(cmd.Context(), cmd.OutOrStdout(), globalFlags.ConfigPath, id)
		},
	}
}

func runSourceRemove(ctx context.Context, out io.Writer, configPath string, id int64) error {
	env, err := openAdminEnv(ctx, configPath)
	if err != nil {
		return err
	}
	defer func() { _ = env.Close() }()

	if err := env.store.RemoveSource(ctx, id); err != nil {
		return fmt.Errorf("remove source %d: %w", id, err)
	}
	if err := requestRestart(ctx, env); err != nil {
		return err
	}
	_, _ = fmt.Fprintf(out, "removed source %d\n", id)
	return nil
}

// requestRestart asks the daemon to pick up registry changes.
func requestRestart(ctx context.Context, env *adminEnv) error {
	sig, err := env.signals(ctx)
	if err != nil {
		return err
	}
	if err := sig.Raise(signal.Restart, ""); err != nil {
		return fmt.Errorf("request restart: %w", err)
	}
	return nil
}

func levelList() string {
	levels := source.Levels()
	names := make([]string, len(levels))
	for i, l := range levels {
		names[i] = string(l)
	}
	return strings.Join(names, ", ")
}
