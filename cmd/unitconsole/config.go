package main

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/rendis/unitconsole/internal/api"
	"github.com/rendis/unitconsole/internal/history"
	"github.com/rendis/unitconsole/internal/journey"
)

// Config holds all unitconsole configuration.
// Priority: flags > env vars > settings file > defaults.
type Config struct {
	BaseURL        string        `yaml:"base_url"`
	APIPrefix      string        `yaml:"api_prefix"`
	RequestTimeout time.Duration `yaml:"request_timeout"`
	// Token is a static bearer token. Ignored when Entra is configured.
	Token  string      `yaml:"token"`
	Entra  EntraConfig `yaml:"entra"`
	UserID string      `yaml:"user_id"`

	ListenAddr string `yaml:"listen_addr"`
	LogLevel   string `yaml:"log_level"`
	LogFormat  string `yaml:"log_format"`
	Language   string `yaml:"language"`

	UnitIDQuery          string `yaml:"unit_id_query"`
	RefreshSchedule      string `yaml:"refresh_schedule"`
	TokenRefreshSchedule string `yaml:"token_refresh_schedule"`
}

// EntraConfig selects the client-credentials token flow.
type EntraConfig struct {
	TenantID     string   `yaml:"tenant_id"`
	ClientID     string   `yaml:"client_id"`
	ClientSecret string   `yaml:"client_secret"`
	Scopes       []string `yaml:"scopes"`
	TokenURL     string   `yaml:"token_url"`
}

// Enabled reports whether enough is set to request tokens.
func (e EntraConfig) Enabled() bool {
	return e.ClientID != "" && e.ClientSecret != ""
}

func defaultConfig() Config {
	return Config{
		APIPrefix:            api.DefaultPrefix,
		RequestTimeout:       30 * time.Second,
		ListenAddr:           ":4200",
		LogLevel:             "info",
		LogFormat:            "text",
		Language:             "en",
		UnitIDQuery:          journey.DefaultUnitIDQuery,
		RefreshSchedule:      history.DefaultRefreshSchedule,
		TokenRefreshSchedule: "@every 1m",
	}
}

func consoleDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ".unitconsole"
	}
	return filepath.Join(home, ".unitconsole")
}

func settingsPath() string {
	return filepath.Join(consoleDir(), "settings.yaml")
}

// loadConfig layers the settings file at path and the environment over the
// defaults. A missing file is not an error; a malformed one is.
func loadConfig(path string) (Config, error) {
	cfg := defaultConfig()
	explicit := path != ""
	if !explicit {
		path = settingsPath()
	}

	data, err := os.ReadFile(path)
	switch {
	case err == nil:
		// yaml.v3 also accepts JSON documents.
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return Config{}, fmt.Errorf("parse %s: %w", path, err)
		}
	case errors.Is(err, fs.ErrNotExist) && !explicit:
	default:
		return Config{}, fmt.Errorf("read %s: %w", path, err)
	}

	applyEnv(&cfg, os.Getenv)
	return cfg, nil
}

func applyEnv(cfg *Config, getenv func(string) string) {
	str := func(key string, dst *string) {
		if v := getenv("UNITCONSOLE_" + key); v != "" {
			*dst = v
		}
	}
	str("BASE_URL", &cfg.BaseURL)
	str("API_PREFIX", &cfg.APIPrefix)
	str("TOKEN", &cfg.Token)
	str("USER_ID", &cfg.UserID)
	str("LISTEN_ADDR", &cfg.ListenAddr)
	str("LOG_LEVEL", &cfg.LogLevel)
	str("LOG_FORMAT", &cfg.LogFormat)
	str("LANG", &cfg.Language)
	str("UNIT_ID_QUERY", &cfg.UnitIDQuery)
	str("REFRESH_SCHEDULE", &cfg.RefreshSchedule)
	str("TOKEN_REFRESH_SCHEDULE", &cfg.TokenRefreshSchedule)
	str("ENTRA_TENANT_ID", &cfg.Entra.TenantID)
	str("ENTRA_CLIENT_ID", &cfg.Entra.ClientID)
	str("ENTRA_CLIENT_SECRET", &cfg.Entra.ClientSecret)
	str("ENTRA_TOKEN_URL", &cfg.Entra.TokenURL)
	if v := getenv("UNITCONSOLE_ENTRA_SCOPES"); v != "" {
		cfg.Entra.Scopes = strings.Fields(strings.ReplaceAll(v, ",", " "))
	}
	if v := getenv("UNITCONSOLE_REQUEST_TIMEOUT"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			cfg.RequestTimeout = d
		}
	}
}

// validate checks what every backend-facing command needs.
func (c Config) validate() error {
	if c.BaseURL == "" {
		return errors.New("base_url is required (settings file, UNITCONSOLE_BASE_URL or --base-url)")
	}
	return nil
}
