// Package config loads client settings from defaults, an optional YAML file,
// FILTER_EXPLORER_* environment variables and command-line flags.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"filter-explorer/internal/filterservice"
	"filter-explorer/internal/models"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

const (
	EnvPrefix  = "FILTER_EXPLORER"
	ConfigName = "filter-explorer"
)

// Keys understood by Load.
const (
	KeyServiceURL     = "service.url"
	KeyServiceTimeout = "service.timeout"
	KeyKernelDefault  = "kernel.default"
	KeyLogLevel       = "log.level"
	KeyLogFormat      = "log.format"
	KeyExportFilename = "export.filename"
)

type Config struct {
	Service ServiceConfig
	Kernel  KernelConfig
	Log     LogConfig
	Export  ExportConfig
}

type ServiceConfig struct {
	URL     string
	Timeout time.Duration
}

type KernelConfig struct {
	Default models.KernelSize
}

type LogConfig struct {
	Level  string
	Format string
}

type ExportConfig struct {
	Filename string
}

// Default returns the built-in settings.
func Default() Config {
	return Config{
		Service: ServiceConfig{
			URL:     filterservice.DefaultEndpoint,
			Timeout: time.Duration(filterservice.DefaultTimeout) * time.Second,
		},
		Kernel: KernelConfig{Default: models.DefaultKernelSize},
		Log:    LogConfig{Level: "info", Format: "console"},
		Export: ExportConfig{Filename: models.DefaultExportName},
	}
}

// New returns a viper instance with defaults, config search paths and
// environment binding in place.
func New() *viper.Viper {
	v := viper.New()
	def := Default()
	v.SetDefault(KeyServiceURL, def.Service.URL)
	v.SetDefault(KeyServiceTimeout, def.Service.Timeout)
	v.SetDefault(KeyKernelDefault, int(def.Kernel.Default))
	v.SetDefault(KeyLogLevel, def.Log.Level)
	v.SetDefault(KeyLogFormat, def.Log.Format)
	v.SetDefault(KeyExportFilename, def.Export.Filename)

	v.SetConfigName(ConfigName)
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	if home, err := os.UserHomeDir(); err == nil {
		v.AddConfigPath(filepath.Join(home, ".config", ConfigName))
	}

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	return v
}

// BindFlags maps command-line flags onto config keys. Flags missing from
// the set are skipped.
func BindFlags(v *viper.Viper, flags *pflag.FlagSet) error {
	bindings := map[string]string{
		KeyServiceURL:     "service-url",
		KeyServiceTimeout: "timeout",
		KeyKernelDefault:  "kernel",
		KeyLogLevel:       "log-level",
		KeyLogFormat:      "log-format",
	}
	for key, name := range bindings {
		flag := flags.Lookup(name)
		if flag == nil {
			continue
		}
		if err := v.BindPFlag(key, flag); err != nil {
			return fmt.Errorf("failed to bind flag %s: %w", name, err)
		}
	}
	return nil
}

// Load reads the config file named by path, or searches the default
// locations when path is empty. A missing default file is not an error.
func Load(v *viper.Viper, path string) (Config, error) {
	if path != "" {
		v.SetConfigFile(path)
	}
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if path != "" || !errors.As(err, &notFound) {
			return Config{}, fmt.Errorf("failed to read config: %w", err)
		}
	}

	cfg := Config{
		Service: ServiceConfig{
			URL:     strings.TrimSpace(v.GetString(KeyServiceURL)),
			Timeout: v.GetDuration(KeyServiceTimeout),
		},
		Kernel: KernelConfig{Default: models.KernelSize(v.GetInt(KeyKernelDefault))},
		Log: LogConfig{
			Level:  v.GetString(KeyLogLevel),
			Format: v.GetString(KeyLogFormat),
		},
		Export: ExportConfig{Filename: v.GetString(KeyExportFilename)},
	}
	return cfg, cfg.Validate()
}

// Validate checks the settings are usable.
func (c Config) Validate() error {
	if c.Service.URL == "" {
		return fmt.Errorf("%s must not be empty", KeyServiceURL)
	}
	if c.Service.Timeout <= 0 {
		return fmt.Errorf("%s must be positive, got %s", KeyServiceTimeout, c.Service.Timeout)
	}
	if err := c.Kernel.Default.Validate(); err != nil {
		return fmt.Errorf("%s: %w", KeyKernelDefault, err)
	}
	switch c.Log.Format {
	case "console", "json":
	default:
		return fmt.Errorf("%s must be console or json, got %q", KeyLogFormat, c.Log.Format)
	}
	if c.Export.Filename == "" {
		return fmt.Errorf("%s must not be empty", KeyExportFilename)
	}
	return nil
}
