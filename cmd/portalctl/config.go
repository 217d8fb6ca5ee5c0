package main

import (
	"errors"
	"io/fs"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
)

type cliConfig struct {
	BaseURL      string        `koanf:"base_url"`
	Token        string        `koanf:"token"`
	RefreshToken string        `koanf:"refresh_token"`
	Timeout      time.Duration `koanf:"timeout"`
	LogLevel     string        `koanf:"log_level"`
}

func defaultConfig() cliConfig {
	return cliConfig{BaseURL: "http://localhost:8080", Timeout: 10 * time.Second, LogLevel: "warn"}
}

func (c cliConfig) httpClient() *http.Client {
	return &http.Client{Timeout: c.Timeout}
}

// configPath resolves the config file: flag, then PORTALCTL_CONFIG, then
// ~/.config/portalctl.yaml.
func configPath(flag string) string {
	if flag != "" {
		return flag
	}
	if p := os.Getenv("PORTALCTL_CONFIG"); p != "" {
		return p
	}
	dir, err := os.UserConfigDir()
	if err != nil {
		return "portalctl.yaml"
	}
	return filepath.Join(dir, "portalctl.yaml")
}

// loadConfig layers defaults, the optional YAML file and PORTALCTL_* env.
func loadConfig(flag string) (cliConfig, error) {
	k := koanf.New(".")
	path := configPath(flag)
	if err := k.Load(file.Provider(path), yaml.Parser()); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return cliConfig{}, err
	}
	// PORTALCTL_BASE_URL -> base_url
	envProvider := env.Provider("PORTALCTL_", ".", func(s string) string {
		return strings.TrimPrefix(strings.ToLower(s), "portalctl_")
	})
	if err := k.Load(envProvider, nil); err != nil {
		return cliConfig{}, err
	}
	cfg := defaultConfig()
	if err := k.UnmarshalWithConf("", &cfg, koanf.UnmarshalConf{Tag: "koanf"}); err != nil {
		return cliConfig{}, err
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = defaultConfig().Timeout
	}
	return cfg, nil
}

// saveSession writes the tokens into the config file, keeping its other
// keys, and returns the path written.
func saveSession(flag, token, refresh string) (string, error) {
	path := configPath(flag)
	k := koanf.New(".")
	if err := k.Load(file.Provider(path), yaml.Parser()); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return "", err
	}
	if err := k.Set("token", token); err != nil {
		return "", err
	}
	if err := k.Set("refresh_token", refresh); err != nil {
		return "", err
	}
	b, err := k.Marshal(yaml.Parser())
	if err != nil {
		return "", err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return "", err
	}
	return path, os.WriteFile(path, b, 0o600)
}
