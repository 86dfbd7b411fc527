package main

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/loykin/camvault/pkg/template"
)

func createConfigCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Configuration helpers",
	}
	cmd.AddCommand(createConfigInitCommand())
	return cmd
}

func createConfigInitCommand() *cobra.Command {
	flags := &ConfigInitFlags{}
	gen := template.NewGenerator("")
	cmd := &cobra.Command{
		Use:   "init",
		Short: "Write a starter config file",
		Long: `Write a starter config file for one of the storage profiles.

Examples:
  camvault config init --output=camvault.toml
  camvault config init --profile=postgres --state-dir=/srv/camvault --output=-`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runConfigInit(cmd.OutOrStdout(), flags)
		},
	}
	cmd.Flags().StringVar(&flags.Profile, "profile", string(template.ProfileSQLite),
		"storage profile ("+strings.Join(gen.GetSupportedProfiles(), ", ")+")")
	cmd.Flags().StringVar(&flags.StateDir, "state-dir", "/var/lib/camvault", "base directory for database, records and logs")
	cmd.Flags().StringVar(&flags.Output, "output", "camvault.toml", "output file, - for stdout")
	cmd.Flags().BoolVar(&flags.Force, "force", false, "overwrite an existing file")
	return cmd
}

func runConfigInit(out io.Writer, f *ConfigInitFlags) error {
	content, err := template.NewGenerator(f.StateDir).GenerateTOML(template.Profile(f.Profile))
	if err != nil {
		return fmt.Errorf("failed to generate config: %w", err)
	}
	if f.Output == "-" {
		_, err := out.Write(content)
		return err
	}
	if _, err := os.Stat(f.Output); err == nil && !f.Force {
		return fmt.Errorf("config file '%s' already exists (use --force to overwrite)", f.Output)
	}
	if err := os.WriteFile(f.Output, content, 0o600); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}
	_, _ = fmt.Fprintf(out, "config written: %s\n", f.Output)
	_, _ = fmt.Fprintf(out, "start the recorder with: camvault serve %s\n", f.Output)
	return nil
}
