package main

import (
	"context"
	"fmt"
	"io"
	"path/filepath"
	"text/tabwriter"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/loykin/camvault/internal/retention"
)

func createSegmentsCommand(globalFlags *GlobalFlags) *cobra.Command {
	flags := &SegmentsFlags{}
	cmd := &cobra.Command{
		Use:   "segments",
		Short: "List recorded segments of a source in a time range",
		Long: `List the segment files of a source that overlap a time range.
Times are RFC3339. Without --from the range starts --window before --to;
without --to it ends now.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runSegments(cmd.Context(), cmd.OutOrStdout(), globalFlags.ConfigPath, flags)
		},
	}
	cmd.Flags().Int64Var(&flags.SourceID, "source", 0, "source id")
	cmd.Flags().StringVar(&flags.From, "from", "", "range start (RFC3339)")
	cmd.Flags().StringVar(&flags.To, "to", "", "range end (RFC3339)")
	cmd.Flags().DurationVar(&flags.Window, "window", 24*time.Hour, "range length when --from is not given")
	cmd.Flags().BoolVar(&flags.JSON, "json", false, "output JSON")
	_ = cmd.MarkFlagRequired("source")
	return cmd
}

func runSegments(ctx context.Context, out io.Writer, configPath string, flags *SegmentsFlags) error {
	to := time.Now()
	if flags.To != "" {
		t, err := time.Parse(time.RFC3339, flags.To)
		if err != nil {
			return fmt.Errorf("invalid --to: %w", err)
		}
		to = t
	}
	from := to.Add(-flags.Window)
	if flags.From != "" {
		t, err := time.Parse(time.RFC3339, flags.From)
		if err != nil {
			return fmt.Errorf("invalid --from: %w", err)
		}
		from = t
	}
	if !from.Before(to) {
		return fmt.Errorf("--from must be before --to")
	}

	env, err := openAdminEnv(ctx, configPath)
	if err != nil {
		return err
	}
	defer func() { _ = env.Close() }()

	src, err := env.store.GetSource(ctx, flags.SourceID)
	if err != nil {
		return fmt.Errorf("source %d: %w", flags.SourceID, err)
	}
	st, err := env.settings(ctx)
	if err != nil {
		return err
	}
	dir := filepath.Join(st.RecordsDir, src.Dir())
	segs, err := retention.Segments(dir, env.cfg.Capture.Extension, time.Duration(src.SegmentSeconds)*time.Second, from, to, time.Local)
	if err != nil {
		return err
	}
	if flags.JSON {
		if segs == nil {
			segs = []retention.Segment{}
		}
		printJSON(out, segs)
		return nil
	}

	tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	_, _ = fmt.Fprintln(tw, "START\tEND\tSIZE\tFILE")
	var total uint64
	for _, s := range segs {
		total += uint64(s.Size)
		_, _ = fmt.Fprintf(tw, "%s\t%s\t%s\t%s\n",
			s.Start.Format(time.DateTime), s.End.Format(time.DateTime), humanize.IBytes(uint64(s.Size)), s.Path)
	}
	if err := tw.Flush(); err != nil {
		return err
	}
	_, _ = fmt.Fprintf(out, "%d segment(s), %s\n", len(segs), humanize.IBytes(total))
	return nil
}
