package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

func main() {
	if err := buildRoot().Execute(); err != nil {
		_, _ = fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// GlobalFlags holds persistent flags shared by every command.
type GlobalFlags struct {
	ConfigPath string
}

func buildRoot() *cobra.Command {
	globalFlags := &GlobalFlags{}
	root := createRootCommand(globalFlags)
	root.AddCommand(
		createServeCommand(globalFlags),
		createSourceCommand(globalFlags),
		createSettingsCommand(globalFlags),
		createSignalCommand(globalFlags),
		createSegmentsCommand(globalFlags),
		createStatusCommand(),
		createConfigCommand(),
	)
	return root
}

func createRootCommand(flags *GlobalFlags) *cobra.Command {
	root := &cobra.Command{
		Use:   "camvault",
		Short: "Continuous multi-camera recorder",
		Long: `camvault records RTSP cameras to segmented files through one ffmpeg
process per camera, keeps the disk from filling up and moves or wipes the
records directory when it is reconfigured.

Examples:
  camvault serve config.toml
  camvault source add --host=10.0.0.5 --path=/stream1 --user=admin --password=secret
  camvault settings set --min-free-gb=50
  camvault signal restart
  camvault segments --source=1 --from=2024-05-01T10:00:00Z --to=2024-05-01T11:00:00Z`,
		SilenceUsage: true,
	}
	root.PersistentFlags().StringVar(&flags.ConfigPath, "config", "", "path to TOML config file (optional)")
	return root
}
