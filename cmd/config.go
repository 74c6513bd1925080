package cmd

import (
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/conneroisu/ssrgate/internal/config"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"
)

func (a *app) newConfigCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Manage ssrgate configuration",
		Long: `Create, show and validate the ssrgate configuration.

Examples:
  ssrgate config init                  # write .ssrgate.yml with defaults
  ssrgate config show --format json    # resolved configuration
  ssrgate config validate --config prod.yml`,
	}

	cmd.AddCommand(
		a.newConfigShowCommand(),
		newConfigInitCommand(),
		a.newConfigValidateCommand(),
	)
	return cmd
}

func (a *app) newConfigShowCommand() *cobra.Command {
	var format string

	cmd := &cobra.Command{
		Use:   "show",
		Short: "Show the resolved configuration",
		Long: `Display the configuration after applying defaults, the config file,
SSRGATE_ environment variables and flags.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := validateFormat(format, "yaml", "json"); err != nil {
				return err
			}
			cfg, err := a.loadConfig(cmd)
			if err != nil {
				return err
			}
			return writeConfig(cmd.OutOrStdout(), format, cfg)
		},
	}

	cmd.Flags().StringVarP(&format, "format", "f", "yaml", "Output format (yaml, json)")
	return cmd
}

func newConfigInitCommand() *cobra.Command {
	var (
		output string
		force  bool
	)

	cmd := &cobra.Command{
		Use:   "init",
		Short: "Write a configuration file with the defaults",
		RunE: func(cmd *cobra.Command, args []string) error {
			if !force {
				if _, err := os.Stat(output); err == nil {
					return fmt.Errorf("%s already exists (use --force to overwrite)", output)
				}
			}

			file, err := os.Create(output)
			if err != nil {
				return fmt.Errorf("creating %s: %w", output, err)
			}
			defer file.Close()

			if err := writeConfig(file, "yaml", config.Default()); err != nil {
				return fmt.Errorf("writing %s: %w", output, err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Configuration written to %s\n", output)
			return nil
		},
	}

	cmd.Flags().StringVarP(&output, "output", "o", config.FileName+".yml", "Output configuration file")
	cmd.Flags().BoolVar(&force, "force", false, "Overwrite an existing file")
	return cmd
}

func (a *app) newConfigValidateCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "validate",
		Short: "Validate the configuration",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := a.loadConfig(cmd)
			if err != nil {
				return err
			}
			source := a.configFileUsed()
			if source == "" {
				source = "defaults"
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Configuration from %s is valid (%s mode)\n", source, cfg.Mode())
			return nil
		},
	}
}

func writeConfig(w io.Writer, format string, cfg *config.Config) error {
	if format == "json" {
		encoder := json.NewEncoder(w)
		encoder.SetIndent("", "  ")
		return encoder.Encode(cfg)
	}
	encoder := yaml.NewEncoder(w)
	encoder.SetIndent(2)
	defer encoder.Close()
	return encoder.Encode(cfg)
}
