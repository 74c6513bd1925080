package cmd

import (
	"encoding/json"
	"fmt"
	"io"
	"path/filepath"
	"strings"
	"text/tabwriter"

	"github.com/conneroisu/ssrgate/internal/config"
	"github.com/conneroisu/ssrgate/internal/manifest"
	"github.com/conneroisu/ssrgate/internal/module"
	"github.com/spf13/cobra"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"
	"gopkg.in/yaml.v3"
)

type moduleRow struct {
	Mode        string `json:"mode" yaml:"mode"`
	Module      string `json:"module" yaml:"module"`
	Kind        string `json:"kind" yaml:"kind"`
	Path        string `json:"path,omitempty" yaml:"path,omitempty"`
	Description string `json:"description,omitempty" yaml:"description,omitempty"`
}

func (a *app) newModulesCommand() *cobra.Command {
	var format string

	cmd := &cobra.Command{
		Use:     "modules",
		Aliases: []string{"ls"},
		Short:   "List render modules and how they resolve",
		Long: `List the compiled-in render modules and show how the development and
production entry modules resolve: registry, template, go-run or executable.
An entry that cannot be loaded is shown with kind "missing" and the reason.

Examples:
  ssrgate modules
  ssrgate modules --format json`,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := validateFormat(format, "table", "json", "yaml"); err != nil {
				return err
			}
			cfg, err := a.loadConfig(cmd)
			if err != nil {
				return err
			}
			rows, err := collectModules(cfg, module.DefaultRegistry)
			if err != nil {
				return err
			}
			return writeModules(cmd.OutOrStdout(), format, rows)
		},
	}

	cmd.Flags().StringVarP(&format, "format", "f", "table", "Output format (table, json, yaml)")
	return cmd
}

func collectModules(cfg *config.Config, registry *module.Registry) ([]moduleRow, error) {
	paths, err := cfg.SSRPaths()
	if err != nil {
		return nil, err
	}
	loader := module.NewLoader(paths.Root, module.WithRegistry(registry))

	prodEntry, err := manifest.ResolveServerEntry(paths.Abs(cfg.Paths.DistDir), paths.ProdEntry)
	if err != nil {
		prodEntry = paths.ProdEntry
	}

	rows := []moduleRow{
		resolveRow(loader, "development", paths.DevEntry),
		resolveRow(loader, "production", prodEntry),
	}
	if err != nil {
		rows[1].Kind = "missing"
		rows[1].Description = err.Error()
	}

	for _, entry := range registry.List() {
		rows = append(rows, moduleRow{
			Mode:        "registry",
			Module:      entry.Key,
			Kind:        module.KindRegistry.String(),
			Description: entry.Description,
		})
	}
	return rows, nil
}

func resolveRow(loader *module.Loader, mode, modulePath string) moduleRow {
	row := moduleRow{Mode: mode, Module: modulePath}
	if filepath.IsAbs(modulePath) {
		if rel, err := filepath.Rel(loader.Root(), modulePath); err == nil && !strings.HasPrefix(rel, "..") {
			row.Module = filepath.ToSlash(rel)
		}
	}

	src, err := loader.Resolve(modulePath)
	if err != nil {
		row.Kind = "missing"
		row.Description = err.Error()
		return row
	}
	row.Kind = src.Kind.String()
	row.Path = src.Path
	if src.Kind == module.KindRegistry {
		if entry, ok := loader.Registry().Get(src.Key); ok {
			row.Description = entry.Description
		}
	}
	return row
}

func writeModules(w io.Writer, format string, rows []moduleRow) error {
	switch format {
	case "json":
		encoder := json.NewEncoder(w)
		encoder.SetIndent("", "  ")
		return encoder.Encode(rows)
	case "yaml":
		encoder := yaml.NewEncoder(w)
		defer encoder.Close()
		return encoder.Encode(rows)
	}

	title := cases.Title(language.English)
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "MODE\tMODULE\tKIND\tDETAILS")
	fmt.Fprintln(tw, "----\t------\t----\t-------")
	for _, row := range rows {
		details := row.Description
		if details == "" {
			details = row.Path
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\n", title.String(row.Mode), row.Module, row.Kind, details)
	}
	return tw.Flush()
}
