package cmd

import (
	"encoding/json"
	"fmt"

	"github.com/conneroisu/ssrgate/internal/version"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"
)

func newVersionCommand() *cobra.Command {
	var (
		format string
		short  bool
	)

	cmd := &cobra.Command{
		Use:   "version",
		Short: "Show version information",
		Long: `Display the version, commit, build time, Go version and platform.

Examples:
  ssrgate version
  ssrgate version --short
  ssrgate version --format json`,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := validateFormat(format, "text", "json", "yaml"); err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			info := version.Get()

			switch {
			case format == "json":
				encoder := json.NewEncoder(out)
				encoder.SetIndent("", "  ")
				return encoder.Encode(info)
			case format == "yaml":
				encoder := yaml.NewEncoder(out)
				defer encoder.Close()
				return encoder.Encode(info)
			case short:
				fmt.Fprintln(out, version.Short())
				return nil
			}

			fmt.Fprintln(out, info.String())
			if version.IsRelease() {
				fmt.Fprintln(out, "Build type: release")
			} else {
				fmt.Fprintln(out, "Build type: development")
			}
			return nil
		},
	}

	cmd.Flags().StringVarP(&format, "format", "f", "text", "Output format (text, json, yaml)")
	cmd.Flags().BoolVar(&short, "short", false, "Show short version only")
	return cmd
}
