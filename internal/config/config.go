// Package config loads the gateway configuration using Viper from a YAML
// file, SSRGATE_ environment variables and command-line flags.
//
// Every key has a default, so a project following the conventional layout
// runs without a config file. SSRGATE_ENV=production selects production
// mode; any other value, or none, selects development.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/conneroisu/ssrgate/internal/errors"
	"github.com/conneroisu/ssrgate/internal/logging"
	"github.com/conneroisu/ssrgate/internal/ssr"
	"github.com/conneroisu/ssrgate/internal/validation"
	"github.com/spf13/viper"
)

// File naming and environment conventions.
const (
	FileName       = ".ssrgate"
	FileType       = "yaml"
	EnvPrefix      = "SSRGATE"
	EnvConfigFile  = "SSRGATE_CONFIG_FILE"
	DefaultPort    = 3001
	DefaultHost    = "localhost"
	DefaultTimeout = time.Duration(0)
)

type Config struct {
	Env         string            `mapstructure:"env" yaml:"env" json:"env"`
	Root        string            `mapstructure:"root" yaml:"root" json:"root"`
	Server      ServerConfig      `mapstructure:"server" yaml:"server" json:"server"`
	Paths       PathsConfig       `mapstructure:"paths" yaml:"paths" json:"paths"`
	Render      RenderConfig      `mapstructure:"render" yaml:"render" json:"render"`
	Development DevelopmentConfig `mapstructure:"development" yaml:"development" json:"development"`
	Production  ProductionConfig  `mapstructure:"production" yaml:"production" json:"production"`
	Log         LogConfig         `mapstructure:"log" yaml:"log" json:"log"`
}

type ServerConfig struct {
	Host           string   `mapstructure:"host" yaml:"host" json:"host"`
	Port           int      `mapstructure:"port" yaml:"port" json:"port"`
	Open           bool     `mapstructure:"open" yaml:"open" json:"open"`
	AllowedOrigins []string `mapstructure:"allowed_origins" yaml:"allowed_origins" json:"allowed_origins"`
}

// PathsConfig locates templates and entry modules relative to Root.
type PathsConfig struct {
	DevTemplate  string `mapstructure:"dev_template" yaml:"dev_template" json:"dev_template"`
	DevEntry     string `mapstructure:"dev_entry" yaml:"dev_entry" json:"dev_entry"`
	ProdTemplate string `mapstructure:"prod_template" yaml:"prod_template" json:"prod_template"`
	ProdEntry    string `mapstructure:"prod_entry" yaml:"prod_entry" json:"prod_entry"`
	// DistDir holds the build manifests.
	DistDir string `mapstructure:"dist_dir" yaml:"dist_dir" json:"dist_dir"`
	// ClientDir is served as static files in production.
	ClientDir string `mapstructure:"client_dir" yaml:"client_dir" json:"client_dir"`
}

type RenderConfig struct {
	Marker string `mapstructure:"marker" yaml:"marker" json:"marker"`
	// Timeout bounds a single render. Zero waits indefinitely.
	Timeout time.Duration `mapstructure:"timeout" yaml:"timeout" json:"timeout"`
}

type DevelopmentConfig struct {
	HotReload  bool          `mapstructure:"hot_reload" yaml:"hot_reload" json:"hot_reload"`
	WatchPaths []string      `mapstructure:"watch_paths" yaml:"watch_paths" json:"watch_paths"`
	Debounce   time.Duration `mapstructure:"debounce" yaml:"debounce" json:"debounce"`
}

type ProductionConfig struct {
	Compression        bool `mapstructure:"compression" yaml:"compression" json:"compression"`
	CompressionMinSize int  `mapstructure:"compression_min_size" yaml:"compression_min_size" json:"compression_min_size"`
}

type LogConfig struct {
	Level  string `mapstructure:"level" yaml:"level" json:"level"`
	Format string `mapstructure:"format" yaml:"format" json:"format"`
	// Dir enables a daily log file in addition to stderr.
	Dir string `mapstructure:"dir" yaml:"dir" json:"dir"`
}

// Default returns the configuration used when nothing is set.
func Default() *Config {
	paths := ssr.DefaultPaths(".")
	return &Config{
		Env:  "development",
		Root: ".",
		Server: ServerConfig{
			Host: DefaultHost,
			Port: DefaultPort,
		},
		Paths: PathsConfig{
			DevTemplate:  paths.DevTemplate,
			DevEntry:     paths.DevEntry,
			ProdTemplate: paths.ProdTemplate,
			ProdEntry:    paths.ProdEntry,
			DistDir:      "dist",
			ClientDir:    "dist/client",
		},
		Render: RenderConfig{
			Marker:  ssr.DefaultMarker,
			Timeout: DefaultTimeout,
		},
		Development: DevelopmentConfig{
			HotReload:  true,
			WatchPaths: []string{"."},
			Debounce:   100 * time.Millisecond,
		},
		Production: ProductionConfig{
			Compression:        true,
			CompressionMinSize: 1024,
		},
		Log: LogConfig{
			Level:  "info",
			Format: "text",
		},
	}
}

// SetDefaults registers every key with its default so that environment
// variables can override keys absent from the config file.
func SetDefaults(v *viper.Viper) {
	d := Default()
	v.SetDefault("env", d.Env)
	v.SetDefault("root", d.Root)
	v.SetDefault("server.host", d.Server.Host)
	v.SetDefault("server.port", d.Server.Port)
	v.SetDefault("server.open", d.Server.Open)
	v.SetDefault("server.allowed_origins", []string{})
	v.SetDefault("paths.dev_template", d.Paths.DevTemplate)
	v.SetDefault("paths.dev_entry", d.Paths.DevEntry)
	v.SetDefault("paths.prod_template", d.Paths.ProdTemplate)
	v.SetDefault("paths.prod_entry", d.Paths.ProdEntry)
	v.SetDefault("paths.dist_dir", d.Paths.DistDir)
	v.SetDefault("paths.client_dir", d.Paths.ClientDir)
	v.SetDefault("render.marker", d.Render.Marker)
	v.SetDefault("render.timeout", d.Render.Timeout)
	v.SetDefault("development.hot_reload", d.Development.HotReload)
	v.SetDefault("development.watch_paths", d.Development.WatchPaths)
	v.SetDefault("development.debounce", d.Development.Debounce)
	v.SetDefault("production.compression", d.Production.Compression)
	v.SetDefault("production.compression_min_size", d.Production.CompressionMinSize)
	v.SetDefault("log.level", d.Log.Level)
	v.SetDefault("log.format", d.Log.Format)
	v.SetDefault("log.dir", d.Log.Dir)
}

// BindEnv configures v to read SSRGATE_<SECTION>_<KEY> variables.
func BindEnv(v *viper.Viper) {
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
}

// Load decodes and validates the configuration held by v.
func Load(v *viper.Viper) (*Config, error) {
	SetDefaults(v)

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("decoding configuration: %w", err)
	}

	// Environment variables arrive as a single string.
	if len(cfg.Development.WatchPaths) == 1 && strings.ContainsAny(cfg.Development.WatchPaths[0], ", ") {
		cfg.Development.WatchPaths = splitList(cfg.Development.WatchPaths[0])
	}
	if len(cfg.Server.AllowedOrigins) == 1 && strings.ContainsAny(cfg.Server.AllowedOrigins[0], ", ") {
		cfg.Server.AllowedOrigins = splitList(cfg.Server.AllowedOrigins[0])
	}

	if err := Validate(&cfg); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return &cfg, nil
}

func splitList(s string) []string {
	fields := strings.FieldsFunc(s, func(r rune) bool { return r == ',' || r == ' ' })
	out := make([]string, 0, len(fields))
	for _, f := range fields {
		if f != "" {
			out = append(out, f)
		}
	}
	return out
}

// Mode returns the rendering mode selected by Env.
func (c *Config) Mode() ssr.Mode {
	return ssr.ParseMode(c.Env)
}

// Addr returns the listen address.
func (c *Config) Addr() string {
	return fmt.Sprintf("%s:%d", c.Server.Host, c.Server.Port)
}

// SSRPaths returns the artifact locations with Root made absolute.
func (c *Config) SSRPaths() (ssr.Paths, error) {
	root, err := filepath.Abs(c.Root)
	if err != nil {
		return ssr.Paths{}, fmt.Errorf("resolving root %s: %w", c.Root, err)
	}
	return ssr.Paths{
		Root:         root,
		DevTemplate:  c.Paths.DevTemplate,
		DevEntry:     c.Paths.DevEntry,
		ProdTemplate: c.Paths.ProdTemplate,
		ProdEntry:    c.Paths.ProdEntry,
	}, nil
}

// LoggerConfig translates the log section.
func (c *Config) LoggerConfig() *logging.LoggerConfig {
	cfg := logging.DefaultConfig()
	cfg.Level = logging.ParseLevel(c.Log.Level)
	cfg.Format = c.Log.Format
	cfg.Output = os.Stderr
	return cfg
}

// Validate checks the configuration for values the server cannot run with.
func Validate(cfg *Config) error {
	if err := validateServerConfig(&cfg.Server); err != nil {
		return err
	}
	if err := validatePathsConfig(cfg); err != nil {
		return err
	}
	if cfg.Render.Marker == "" {
		return errors.NewConfigError(errors.ErrCodeConfigInvalid, "render.marker cannot be empty")
	}
	if cfg.Render.Timeout < 0 {
		return errors.NewConfigError(errors.ErrCodeConfigInvalid, fmt.Sprintf("render.timeout %s is negative", cfg.Render.Timeout))
	}
	if cfg.Development.Debounce < 0 {
		return errors.NewConfigError(errors.ErrCodeConfigInvalid, fmt.Sprintf("development.debounce %s is negative", cfg.Development.Debounce))
	}
	if cfg.Production.CompressionMinSize < 0 {
		return errors.NewConfigError(errors.ErrCodeConfigInvalid, "production.compression_min_size cannot be negative")
	}
	return validateLogConfig(&cfg.Log)
}

func validateServerConfig(server *ServerConfig) error {
	// Port 0 lets the system choose, which tests rely on.
	if server.Port < 0 || server.Port > 65535 {
		return errors.NewConfigError(errors.ErrCodeConfigInvalid, fmt.Sprintf("server.port %d is not in valid range 0-65535", server.Port))
	}

	for _, char := range []string{";", "&", "|", "$", "`", "(", ")", "<", ">", "\"", "'", "\\", "/", " "} {
		if strings.Contains(server.Host, char) {
			return errors.NewConfigError(errors.ErrCodeConfigInvalid, fmt.Sprintf("server.host contains dangerous character: %s", char))
		}
	}
	return nil
}

func validatePathsConfig(cfg *Config) error {
	if err := validation.ValidatePath(cfg.Root); err != nil {
		return errors.NewConfigError(errors.ErrCodeConfigInvalid, fmt.Sprintf("root: %v", err))
	}

	paths := map[string]string{
		"paths.dev_template":  cfg.Paths.DevTemplate,
		"paths.dev_entry":     cfg.Paths.DevEntry,
		"paths.prod_template": cfg.Paths.ProdTemplate,
		"paths.prod_entry":    cfg.Paths.ProdEntry,
		"paths.dist_dir":      cfg.Paths.DistDir,
		"paths.client_dir":    cfg.Paths.ClientDir,
	}
	for key, p := range paths {
		if filepath.IsAbs(p) {
			return errors.NewConfigError(errors.ErrCodeConfigInvalid, fmt.Sprintf("%s must be relative to root: %s", key, p))
		}
		if err := validation.ValidatePath(p); err != nil {
			return errors.NewConfigError(errors.ErrCodeConfigInvalid, fmt.Sprintf("%s: %v", key, err))
		}
	}

	for _, p := range cfg.Development.WatchPaths {
		if err := validation.ValidatePath(p); err != nil {
			return errors.NewConfigError(errors.ErrCodeConfigInvalid, fmt.Sprintf("development.watch_paths: %v", err))
		}
	}
	return nil
}

func validateLogConfig(log *LogConfig) error {
	switch strings.ToLower(log.Level) {
	case "debug", "info", "warn", "warning", "error":
	default:
		return errors.NewConfigError(errors.ErrCodeConfigInvalid, fmt.Sprintf("log.level %q must be one of debug, info, warn, error", log.Level))
	}
	switch log.Format {
	case "text", "json":
	default:
		return errors.NewConfigError(errors.ErrCodeConfigInvalid, fmt.Sprintf("log.format %q must be text or json", log.Format))
	}
	return nil
}
