package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"text/tabwriter"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/loykin/camvault/pkg/client"
)

func createStatusCommand() *cobra.Command {
	flags := &StatusFlags{}
	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show the state of a running daemon",
		Long: `Query the status endpoint of a running daemon ([server] listen).

Examples:
  camvault status
  camvault status --api-url=http://nvr.local:8090 --json`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runStatus(cmd.Context(), cmd.OutOrStdout(), flags)
		},
	}
	cmd.Flags().StringVar(&flags.APIUrl, "api-url", client.DefaultConfig().BaseURL, "daemon status API base URL")
	cmd.Flags().DurationVar(&flags.APITimeout, "api-timeout", 5*time.Second, "request timeout")
	cmd.Flags().BoolVar(&flags.JSON, "json", false, "print JSON")
	cmd.Flags().BoolVar(&flags.Insecure, "insecure", false, "accept a self-signed daemon certificate")
	return cmd
}

func runStatus(ctx context.Context, out io.Writer, f *StatusFlags) error {
	c := client.New(client.Config{BaseURL: f.APIUrl, Timeout: f.APITimeout, InsecureSkipVerify: f.Insecure})
	if !c.IsReachable(ctx) {
		return errors.New("daemon is not reachable at " + f.APIUrl)
	}
	st, err := c.Status(ctx)
	if err != nil {
		return err
	}
	if f.JSON {
		printJSON(out, st)
		return nil
	}
	_, _ = fmt.Fprintf(out, "records dir: %s\n", st.Loop.RecordsDir)
	_, _ = fmt.Fprintf(out, "min free:    %g GB\n", st.Loop.Settings.MinFreeGB)
	_, _ = fmt.Fprintf(out, "relocation:  %s\n", st.Loop.Settings.Relocation)
	if !st.Loop.LastTick.IsZero() {
		_, _ = fmt.Fprintf(out, "last tick:   %s\n", humanize.Time(st.Loop.LastTick))
	}
	tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	_, _ = fmt.Fprintln(tw, "ID\tSOURCE\tPID\tRUNNING\tSINCE")
	for _, r := range st.Recorders {
		_, _ = fmt.Fprintf(tw, "%d\t%s\t%d\t%t\t%s\n", r.SourceID, r.Source, r.PID, r.Running, humanize.Time(r.StartedAt))
	}
	return tw.Flush()
}
