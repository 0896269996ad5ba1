// Package config loads xmstool settings from a YAML file, a .env file and
// XMSTOOL_* environment variables, in increasing order of precedence.
package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

const (
	projectConfigName = "xmstool.yaml"
	homeConfigName    = "config.yaml"

	// DefaultListen is the address the HTTP adapter binds when none is configured.
	DefaultListen = "127.0.0.1:8080"
)

// Config holds the settings shared by the CLI and the HTTP adapter.
type Config struct {
	// Catalog is a YAML file declaring external tools.
	Catalog string `yaml:"catalog,omitempty"`
	// Workspace is the SQLite file holding the mesh project.
	Workspace string `yaml:"workspace,omitempty"`
	// GDALDir is the directory of the GDAL command line tools.
	GDALDir      string `yaml:"gdal_dir,omitempty"`
	LogLevel     string `yaml:"log_level,omitempty"`
	Listen       string `yaml:"listen,omitempty"`
	OTLPEndpoint string `yaml:"otlp_endpoint,omitempty"`
}

// Default returns the built-in settings.
func Default() Config {
	return Config{
		LogLevel: "info",
		Listen:   DefaultListen,
	}
}

// envKeys maps XMSTOOL_* variables onto config fields.
var envKeys = []struct {
	name  string
	field func(*Config) *string
}{
	{"XMSTOOL_CATALOG", func(c *Config) *string { return &c.Catalog }},
	{"XMSTOOL_WORKSPACE", func(c *Config) *string { return &c.Workspace }},
	{"XMSTOOL_GDAL_DIR", func(c *Config) *string { return &c.GDALDir }},
	{"XMSTOOL_LOG_LEVEL", func(c *Config) *string { return &c.LogLevel }},
	{"XMSTOOL_LISTEN", func(c *Config) *string { return &c.Listen }},
	{"XMSTOOL_OTLP_ENDPOINT", func(c *Config) *string { return &c.OTLPEndpoint }},
}

// ApplyEnv overrides fields whose XMSTOOL_* variable is set and non-empty.
func (c *Config) ApplyEnv(lookup func(string) (string, bool)) {
	for _, key := range envKeys {
		if value, ok := lookup(key.name); ok && strings.TrimSpace(value) != "" {
			*key.field(c) = strings.TrimSpace(value)
		}
	}
}

// SlogLevel parses LogLevel. An empty level is info.
func (c Config) SlogLevel() (slog.Level, error) {
	var level slog.Level
	if strings.TrimSpace(c.LogLevel) == "" {
		return slog.LevelInfo, nil
	}
	if err := level.UnmarshalText([]byte(strings.TrimSpace(c.LogLevel))); err != nil {
		return slog.LevelInfo, fmt.Errorf("log_level: %w", err)
	}
	return level, nil
}

// DiscoverPath resolves the config file location with first-match semantics:
// the explicit path, ./xmstool.yaml, then ~/.xmstool/config.yaml.
func DiscoverPath(explicitPath string) (string, bool, error) {
	cwd, err := os.Getwd()
	if err != nil {
		return "", false, fmt.Errorf("resolve working directory: %w", err)
	}
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return "", false, fmt.Errorf("resolve user home: %w", err)
	}
	return DiscoverPathFrom(explicitPath, cwd, homeDir)
}

// DiscoverPathFrom is a testable variant of DiscoverPath.
func DiscoverPathFrom(explicitPath, cwd, homeDir string) (string, bool, error) {
	explicit := strings.TrimSpace(explicitPath)
	candidates := make([]string, 0, 2)
	if explicit != "" {
		candidates = append(candidates, filepath.Clean(explicit))
	} else {
		candidates = append(candidates,
			filepath.Join(cwd, projectConfigName),
			filepath.Join(homeDir, ".xmstool", homeConfigName),
		)
	}

	for _, candidate := range candidates {
		info, err := os.Stat(candidate)
		if err == nil && !info.IsDir() {
			return candidate, true, nil
		}
		if errors.Is(err, os.ErrNotExist) || err == nil {
			if explicit != "" {
				return "", false, fmt.Errorf("config file %q not found", candidate)
			}
			continue
		}
		return "", false, fmt.Errorf("checking config path %q: %w", candidate, err)
	}
	return "", false, nil
}

// Load reads the YAML file at path over the defaults. Relative catalog and
// workspace paths are resolved against the file's directory after
// environment expansion.
func Load(path string) (Config, error) {
	cfg := Default()
	// #nosec G304 -- path comes from explicit local config discovery.
	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("reading config %q: %w", path, err)
	}

	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&cfg); err != nil && !errors.Is(err, io.EOF) {
		return Config{}, fmt.Errorf("parsing config %q: %w", path, err)
	}

	baseDir := filepath.Dir(path)
	cfg.Catalog = resolveConfigRelative(baseDir, os.ExpandEnv(cfg.Catalog))
	cfg.Workspace = resolveConfigRelative(baseDir, os.ExpandEnv(cfg.Workspace))
	cfg.GDALDir = os.ExpandEnv(cfg.GDALDir)
	if _, err := cfg.SlogLevel(); err != nil {
		return Config{}, fmt.Errorf("config %q: %w", path, err)
	}
	return cfg, nil
}

// LoadDotEnv loads path into the process environment without overriding
// variables that are already set. A missing file is not an error.
func LoadDotEnv(path string) error {
	if err := godotenv.Load(path); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("loading %s: %w", path, err)
	}
	return nil
}

// Resolve loads .env from the working directory, the discovered config file
// (if any) and the XMSTOOL_* overrides. It returns the config file used, or
// "" when only defaults applied.
func Resolve(explicitPath string) (Config, string, error) {
	if err := LoadDotEnv(".env"); err != nil {
		return Config{}, "", err
	}
	path, found, err := DiscoverPath(explicitPath)
	if err != nil {
		return Config{}, "", err
	}
	cfg := Default()
	if found {
		if cfg, err = Load(path); err != nil {
			return Config{}, "", err
		}
	}
	cfg.ApplyEnv(os.LookupEnv)
	if _, err := cfg.SlogLevel(); err != nil {
		return Config{}, "", err
	}
	return cfg, path, nil
}

func resolveConfigRelative(baseDir, p string) string {
	if strings.TrimSpace(p) == "" {
		return ""
	}
	clean := filepath.Clean(p)
	if filepath.IsAbs(clean) {
		return clean
	}
	return filepath.Join(baseDir, clean)
}
