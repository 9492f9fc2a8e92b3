package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// EnvPrefix starts every environment override.
const EnvPrefix = "OUTREACH_"

// envRef matches ${NAME} and ${NAME:-fallback}.
var envRef = regexp.MustCompile(`\$\{([A-Za-z_][A-Za-z0-9_]*)(?::-([^}]*))?\}`)

// expandEnvVars substitutes environment references. A reference to an unset
// variable without a fallback is kept as written so it shows up in errors.
func expandEnvVars(s string) string {
	return envRef.ReplaceAllStringFunc(s, func(ref string) string {
		m := envRef.FindStringSubmatch(ref)
		if v, ok := os.LookupEnv(m[1]); ok {
			return v
		}
		if strings.Contains(ref, ":-") {
			return m[2]
		}
		return ref
	})
}

// secrets lists the fields that may be written as environment references.
func secrets(cfg *Config) []*string {
	out := []*string{
		&cfg.Gateway.Auth.Token,
		&cfg.Gateway.Auth.Password,
		&cfg.Dialer.Live.APIKey,
		&cfg.Dialer.Classifier.APIKey,
	}
	if cfg.Notify.IRC != nil {
		out = append(out, &cfg.Notify.IRC.Password)
	}
	return out
}

type envOverride struct {
	name string
	set  func(cfg *Config, v string) error
}

func str(field func(*Config) *string) func(*Config, string) error {
	return func(cfg *Config, v string) error {
		*field(cfg) = v
		return nil
	}
}

func lower(field func(*Config) *string) func(*Config, string) error {
	return func(cfg *Config, v string) error {
		*field(cfg) = strings.ToLower(v)
		return nil
	}
}

var envOverrides = []envOverride{
	{"GATEWAY_PORT", func(cfg *Config, v string) error {
		port, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("not a port number: %q", v)
		}
		cfg.Gateway.Port = port
		return nil
	}},
	{"GATEWAY_BIND", str(func(c *Config) *string { return &c.Gateway.Bind })},
	{"GATEWAY_TOKEN", str(func(c *Config) *string { return &c.Gateway.Auth.Token })},
	{"LOG_LEVEL", lower(func(c *Config) *string { return &c.Logging.Level })},
	{"DIALER_MODE", lower(func(c *Config) *string { return &c.Dialer.Mode })},
	{"TELEPHONY_API_KEY", str(func(c *Config) *string { return &c.Dialer.Live.APIKey })},
	{"CLASSIFIER_API_KEY", str(func(c *Config) *string { return &c.Dialer.Classifier.APIKey })},
	{"STORE_PATH", str(func(c *Config) *string { return &c.Store.Path })},
}

// applyEnvOverrides copies set OUTREACH_* variables over cfg.
func applyEnvOverrides(cfg *Config) error {
	var errs []error
	for _, o := range envOverrides {
		v := os.Getenv(EnvPrefix + o.name)
		if v == "" {
			continue
		}
		if err := o.set(cfg, v); err != nil {
			errs = append(errs, fmt.Errorf("%s%s: %w", EnvPrefix, o.name, err))
		}
	}
	if len(errs) > 0 {
		return &ConfigError{Message: errors.Join(errs...).Error()}
	}
	return nil
}

// LoadDotEnv reads .env beside the config file, then in the working
// directory. The process environment always wins.
func LoadDotEnv(configPath string) {
	files := []string{".env"}
	if configPath != "" {
		files = []string{filepath.Join(filepath.Dir(configPath), ".env"), ".env"}
	}
	for _, f := range files {
		if _, err := os.Stat(f); err == nil {
			_ = godotenv.Load(f)
		}
	}
}

// Load returns the defaults overlaid with the config file, if any, and the
// environment.
func Load(path string) (Config, error) {
	LoadDotEnv(path)
	cfg := Defaults()

	data, err := os.ReadFile(path)
	switch {
	case errors.Is(err, fs.ErrNotExist):
	case err != nil:
		return cfg, err
	default:
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return cfg, &ConfigError{Message: fmt.Sprintf("%s: %v", path, err)}
		}
		applyDefaults(&cfg)
	}

	if err := applyEnvOverrides(&cfg); err != nil {
		return cfg, err
	}
	for _, s := range secrets(&cfg) {
		*s = expandEnvVars(*s)
	}
	return cfg, nil
}

// LoadRaw reads the config file as an untyped tree. A missing file is an
// empty tree.
func LoadRaw(path string) (map[string]any, error) {
	raw := map[string]any{}
	data, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return raw, nil
	}
	if err != nil {
		return nil, err
	}
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return nil, &ConfigError{Message: fmt.Sprintf("%s: %v", path, err)}
	}
	if raw == nil {
		raw = map[string]any{}
	}
	return raw, nil
}

// SaveRaw replaces the config file with raw. The write goes through a temp
// file in the same directory so readers never see a partial file.
func SaveRaw(path string, raw map[string]any) error {
	data, err := yaml.Marshal(raw)
	if err != nil {
		return err
	}
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return err
	}
	tmp, err := os.CreateTemp(dir, ".config-*.yaml")
	if err != nil {
		return err
	}
	defer os.Remove(tmp.Name())
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Chmod(0o600); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	return os.Rename(tmp.Name(), path)
}
