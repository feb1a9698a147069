// Package config loads the regcheck configuration from a YAML file,
// REGCHECK_* environment variables and built-in defaults.
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config holds everything the pipeline needs at construction.
type Config struct {
	Checklist  string `mapstructure:"checklist"`
	Results    string `mapstructure:"results"`
	Checkpoint string `mapstructure:"checkpoint"`
	Journal    string `mapstructure:"journal"`
	Inspector  string `mapstructure:"inspector"`

	RateLimit     time.Duration `mapstructure:"rate_limit"`
	Cooldown      time.Duration `mapstructure:"cooldown"`
	BlockWindow   time.Duration `mapstructure:"block_window"`
	MaxIterations int           `mapstructure:"max_iterations"`

	MetricsAddr   string `mapstructure:"metrics_addr"`
	Abbreviations string `mapstructure:"abbreviations"`

	Browser BrowserConfig `mapstructure:"browser"`
	Sources SourcesConfig `mapstructure:"sources"`
}

// BrowserConfig configures Chrome.
type BrowserConfig struct {
	Remote           string   `mapstructure:"remote"`
	Headless         bool     `mapstructure:"headless"`
	ResourceBlocking []string `mapstructure:"resource_blocking"`
	DownloadDir      string   `mapstructure:"download_dir"`
}

// SourceConfig locates one external source.
type SourceConfig struct {
	URL     string        `mapstructure:"url"`
	Timeout time.Duration `mapstructure:"timeout"`
}

// SourcesConfig lists the external sources.
type SourcesConfig struct {
	Declaration  SourceConfig `mapstructure:"declaration"`
	Certificate  SourceConfig `mapstructure:"certificate"`
	Registration SourceConfig `mapstructure:"registration"`
	Registry     SourceConfig `mapstructure:"registry"`
	Standards    SourceConfig `mapstructure:"standards"`
}

// Load reads the configuration. path names an explicit config file; when
// empty, regcheck.yaml is looked up in the working directory and
// /etc/regcheck, and its absence is not an error. overrides (typically
// command-line flags) win over every other source.
func Load(path string, overrides map[string]any) (*Config, error) {
	v := viper.New()

	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("regcheck")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("/etc/regcheck/")
	}

	v.SetEnvPrefix("REGCHECK")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if path != "" || !errors.As(err, &notFound) {
			return nil, fmt.Errorf("config: read: %w", err)
		}
	}
	for k, val := range overrides {
		v.Set(k, val)
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("config: decode: %w", err)
	}
	if err := validate(&cfg); err != nil {
		return nil, fmt.Errorf("config: invalid: %w", err)
	}
	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("checklist", "")
	v.SetDefault("results", "results.xlsx")
	v.SetDefault("checkpoint", "checkpoint.txt")
	v.SetDefault("journal", "regcheck.db")
	v.SetDefault("inspector", "")

	v.SetDefault("rate_limit", "60s")
	v.SetDefault("cooldown", "30m")
	v.SetDefault("block_window", "5m")
	v.SetDefault("max_iterations", 50)

	v.SetDefault("metrics_addr", "")
	v.SetDefault("abbreviations", "")

	v.SetDefault("browser.remote", "")
	v.SetDefault("browser.headless", true)
	v.SetDefault("browser.resource_blocking", []string{"Image", "Font", "Media"})
	v.SetDefault("browser.download_dir", "")

	v.SetDefault("sources.declaration.url", "https://pub.fsa.gov.ru/rds/declaration")
	v.SetDefault("sources.declaration.timeout", "60s")
	v.SetDefault("sources.certificate.url", "https://pub.fsa.gov.ru/rss/certificate")
	v.SetDefault("sources.certificate.timeout", "60s")
	v.SetDefault("sources.registration.url", "https://nsi.eaeunion.org/portal/1995")
	v.SetDefault("sources.registration.timeout", "60s")
	v.SetDefault("sources.registry.url", "https://egrul.nalog.ru/index.html")
	v.SetDefault("sources.registry.timeout", "30s")
	v.SetDefault("sources.standards.url", "https://www.rst.gov.ru/portal/gost/home/standarts/catalognational")
	v.SetDefault("sources.standards.timeout", "30s")
}

func validate(c *Config) error {
	switch {
	case c.Checklist == "":
		return errors.New("checklist path is required (flag -checklist or REGCHECK_CHECKLIST)")
	case c.Results == "" || c.Checkpoint == "" || c.Journal == "":
		return errors.New("results, checkpoint and journal paths must not be empty")
	case c.RateLimit <= 0:
		return fmt.Errorf("rate_limit must be positive, got %s", c.RateLimit)
	case c.BlockWindow <= 0:
		return fmt.Errorf("block_window must be positive, got %s", c.BlockWindow)
	case c.Cooldown < 0:
		return fmt.Errorf("cooldown must not be negative, got %s", c.Cooldown)
	case c.MaxIterations < 1:
		return fmt.Errorf("max_iterations must be at least 1, got %d", c.MaxIterations)
	}
	for name, s := range map[string]SourceConfig{
		"declaration":  c.Sources.Declaration,
		"certificate":  c.Sources.Certificate,
		"registration": c.Sources.Registration,
		"registry":     c.Sources.Registry,
		"standards":    c.Sources.Standards,
	} {
		if s.URL == "" {
			return fmt.Errorf("sources.%s.url is required", name)
		}
	}
	return nil
}
