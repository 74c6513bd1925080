package cmd

import (
	"errors"
	"fmt"
	"os"

	"github.com/conneroisu/ssrgate/internal/config"
	"github.com/conneroisu/ssrgate/internal/logging"
	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

// app carries the state shared by every command of one invocation.
type app struct {
	v       *viper.Viper
	cfgFile string
	envFile string
}

// NewRootCommand builds the ssrgate command tree.
func NewRootCommand() *cobra.Command {
	a := &app{v: viper.New()}

	rootCmd := &cobra.Command{
		Use:   "ssrgate",
		Short: "Server-side rendering gateway for Go templates and templ components",
		Long: `ssrgate renders every request through a render module and splices the
result into an HTML template.

In development the template and module are reloaded on every request and the
browser reloads when files change. In production the built module is loaded
once and assets are served from the client build directory.

Quick Start:
  ssrgate serve                       Start in development mode
  SSRGATE_ENV=production ssrgate serve
  ssrgate modules                     Show which render modules resolve
  ssrgate config init                 Write a .ssrgate.yml with defaults`,
		SilenceUsage: true,
	}

	pf := rootCmd.PersistentFlags()
	pf.StringVar(&a.cfgFile, "config", "", "config file (default is .ssrgate.yml, can also use SSRGATE_CONFIG_FILE env var)")
	pf.StringVar(&a.envFile, "env-file", ".env", "dotenv file loaded before configuration")
	pf.String("root", ".", "project root")
	pf.StringP("log-level", "l", "info", "log level (debug, info, warn, error)")
	pf.String("log-format", "text", "log format (text, json)")

	rootCmd.AddCommand(
		a.newServeCommand(),
		a.newModulesCommand(),
		a.newConfigCommand(),
		newVersionCommand(),
	)

	return rootCmd
}

// Execute runs the command line.
func Execute() error {
	return NewRootCommand().Execute()
}

var persistentBindings = []flagBinding{
	{flag: "root", key: "root"},
	{flag: "log-level", key: "log.level"},
	{flag: "log-format", key: "log.format"},
}

// loadConfig resolves the configuration for cmd.
//
// Sources, highest priority first: flags that were set, SSRGATE_ environment
// variables (including those from the dotenv file), the config file, and
// defaults. The config file is the --config flag, else SSRGATE_CONFIG_FILE,
// else .ssrgate.yml in the working directory when present.
func (a *app) loadConfig(cmd *cobra.Command, bindings ...flagBinding) (*config.Config, error) {
	if err := loadEnvFile(a.envFile); err != nil {
		return nil, err
	}

	if a.cfgFile != "" {
		a.v.SetConfigFile(a.cfgFile)
	} else if envConfigFile := os.Getenv(config.EnvConfigFile); envConfigFile != "" {
		a.v.SetConfigFile(envConfigFile)
	} else {
		a.v.AddConfigPath(".")
		a.v.SetConfigType(config.FileType)
		a.v.SetConfigName(config.FileName)
	}
	config.BindEnv(a.v)

	if err := a.v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("reading config file: %w", err)
		}
	}

	if err := bindFlags(a.v, cmd.Flags(), append(persistentBindings, bindings...)); err != nil {
		return nil, err
	}

	return config.Load(a.v)
}

// configFileUsed returns the config file read by loadConfig, if any.
func (a *app) configFileUsed() string {
	return a.v.ConfigFileUsed()
}

// loadEnvFile loads path into the environment without overriding variables
// that are already set. A missing file is not an error.
func loadEnvFile(path string) error {
	if path == "" {
		return nil
	}
	if _, err := os.Stat(path); err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("reading %s: %w", path, err)
	}
	if err := godotenv.Load(path); err != nil {
		return fmt.Errorf("loading %s: %w", path, err)
	}
	return nil
}

// newLogger builds the process logger. With log.dir set, records also go to
// a daily file; the returned func closes it.
func newLogger(cfg *config.Config) (logging.Logger, func() error, error) {
	console := logging.NewLogger(cfg.LoggerConfig())
	if cfg.Log.Dir == "" {
		return console, func() error { return nil }, nil
	}

	file, err := logging.NewFileLogger(cfg.LoggerConfig(), cfg.Log.Dir)
	if err != nil {
		return nil, nil, err
	}
	return logging.NewMultiLogger(console, file), file.Close, nil
}
