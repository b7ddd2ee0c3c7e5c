// Package config loads service settings and KPI rules from a YAML file with environment overrides.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/nadmax/opskpi/internal/kpi"
	"github.com/nadmax/opskpi/internal/repository"
)

const DefaultPath = "opskpi.yaml"

type Email struct {
	APIKey      string `yaml:"api_key"`
	FromName    string `yaml:"from_name"`
	FromAddress string `yaml:"from_address"`
}

type Config struct {
	Port             string        `yaml:"port"`
	PostgresDSN      string        `yaml:"postgres_dsn"`
	RedisAddr        string        `yaml:"redis_addr"`
	ReportDir        string        `yaml:"report_dir"`
	Timezone         string        `yaml:"timezone"`
	ExcludedAnalysts []string      `yaml:"excluded_analysts"`
	Workers          int           `yaml:"workers"`
	PollInterval     time.Duration `yaml:"poll_interval"`
	MetricsInterval  time.Duration `yaml:"metrics_interval"`
	Email            Email         `yaml:"email"`
	Rules            kpi.Rules     `yaml:"rules"`
}

func Default() Config {
	return Config{
		Port:             "8080",
		RedisAddr:        "localhost:6379",
		ReportDir:        "./reports",
		Timezone:         "America/Sao_Paulo",
		ExcludedAnalysts: repository.DefaultExcludedAnalysts,
		Workers:          2,
		PollInterval:     time.Second,
		MetricsInterval:  10 * time.Second,
		Rules:            kpi.DefaultRules(),
	}
}

// Load reads path over the defaults and applies environment overrides. An empty path falls
// back to OPSKPI_CONFIG, then to DefaultPath when that file exists.
func Load(path string) (Config, error) {
	cfg := Default()

	path, explicit := resolvePath(path)
	if path != "" {
		data, err := os.ReadFile(path)
		switch {
		case err == nil:
			if err := yaml.Unmarshal(data, &cfg); err != nil {
				return Config{}, fmt.Errorf("parse %s: %w", path, err)
			}
		case errors.Is(err, os.ErrNotExist) && !explicit:
		default:
			return Config{}, fmt.Errorf("read %s: %w", path, err)
		}
	}

	applyEnv(&cfg)

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Path reports the config file Load would read.
func Path(path string) string {
	path, _ = resolvePath(path)
	return path
}

func resolvePath(path string) (string, bool) {
	if path != "" {
		return path, true
	}
	if env := os.Getenv("OPSKPI_CONFIG"); env != "" {
		return env, true
	}
	return DefaultPath, false
}

func applyEnv(cfg *Config) {
	setString(&cfg.Port, "PORT")
	setString(&cfg.PostgresDSN, "POSTGRES_DSN")
	setString(&cfg.RedisAddr, "REDIS_ADDR")
	setString(&cfg.ReportDir, "REPORT_DIR")
	setString(&cfg.Timezone, "OPSKPI_TIMEZONE")
	setString(&cfg.Email.APIKey, "EMAIL_API_KEY")
	setString(&cfg.Email.FromName, "FROM_NAME")
	setString(&cfg.Email.FromAddress, "FROM_ADDRESS")

	if v := os.Getenv("OPSKPI_EXCLUDED_ANALYSTS"); v != "" {
		var names []string
		for name := range strings.SplitSeq(v, ",") {
			if name = strings.TrimSpace(name); name != "" {
				names = append(names, name)
			}
		}
		cfg.ExcludedAnalysts = names
	}
	if v := os.Getenv("WORKER_COUNT"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Workers = n
		}
	}
}

func setString(dst *string, key string) {
	if v := os.Getenv(key); v != "" {
		*dst = v
	}
}

func (c Config) Validate() error {
	if c.Workers < 1 {
		return fmt.Errorf("workers must be at least 1, got %d", c.Workers)
	}
	if c.PollInterval <= 0 {
		return errors.New("poll_interval must be positive")
	}
	if c.MetricsInterval <= 0 {
		return errors.New("metrics_interval must be positive")
	}
	if _, err := c.Location(); err != nil {
		return err
	}
	if err := c.Rules.Validate(); err != nil {
		return fmt.Errorf("rules: %w", err)
	}
	return nil
}

// Location is the zone naive spreadsheet timestamps are read in.
func (c Config) Location() (*time.Location, error) {
	loc, err := time.LoadLocation(c.Timezone)
	if err != nil {
		return nil, fmt.Errorf("invalid timezone %q: %w", c.Timezone, err)
	}
	return loc, nil
}
