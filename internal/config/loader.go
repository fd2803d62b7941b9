package config

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"
)

// File names searched by FindConfigFile.
const (
	// DefaultConfigFile is the project-local configuration file name.
	DefaultConfigFile = "dqmon.yaml"

	// UserConfigFile is the file name inside XDGConfigDir.
	UserConfigFile = "config.yaml"

	// EnvPrefix prefixes environment overrides.
	EnvPrefix = "DQMON"

	// MaskedValue replaces secrets in Masked output.
	MaskedValue = "***REDACTED***"
)

// FindConfigFile searches for the configuration file in this order:
//  1. configPath, when not empty
//  2. ./dqmon.yaml
//  3. $XDG_CONFIG_HOME/dqmon/config.yaml
//
// Returns the path found, or an empty string.
func FindConfigFile(configPath string) string {
	if configPath != "" {
		if _, err := os.Stat(configPath); err == nil {
			return configPath
		}
		return ""
	}

	if cwd, err := os.Getwd(); err == nil {
		local := filepath.Join(cwd, DefaultConfigFile)
		if _, err := os.Stat(local); err == nil {
			return local
		}
	}

	user := filepath.Join(XDGConfigDir(), UserConfigFile)
	if _, err := os.Stat(user); err == nil {
		return user
	}

	return ""
}

// Load resolves the configuration: defaults, then the file found by
// FindConfigFile(configPath), then DQMON_* environment variables. An explicit
// configPath that does not exist is an error; a missing default file is not.
// The result is not validated.
func Load(configPath string) (*Config, error) {
	defaults, err := yaml.Marshal(NewConfig())
	if err != nil {
		return nil, fmt.Errorf("failed to encode defaults: %w", err)
	}

	v := viper.New()
	v.SetConfigType("yaml")
	if err := v.ReadConfig(bytes.NewReader(defaults)); err != nil {
		return nil, fmt.Errorf("failed to load defaults: %w", err)
	}

	path := FindConfigFile(configPath)
	if configPath != "" && path == "" {
		return nil, fmt.Errorf("%w: %s", ErrConfigNotFound, configPath)
	}
	if path != "" {
		v.SetConfigFile(path)
		if err := v.MergeInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read %s: %w", path, err)
		}
	}

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("failed to decode configuration: %w", err)
	}
	cfg.FilePath = path
	return cfg, nil
}

// Save writes cfg to path as YAML, creating parent directories.
func Save(cfg *Config, path string) error {
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("failed to encode configuration: %w", err)
	}
	return writeFile(path, data)
}

func writeFile(path string, data []byte) error {
	if dir := filepath.Dir(path); dir != "" && dir != "." {
		if err := os.MkdirAll(dir, 0750); err != nil {
			return fmt.Errorf("failed to create directory: %w", err)
		}
	}
	if err := os.WriteFile(path, data, 0600); err != nil {
		return fmt.Errorf("failed to write configuration file: %w", err)
	}
	return nil
}

// openSections are map-valued sections whose keys are user-chosen.
var openSections = map[string]bool{
	"thresholds": true,
	"channels":   true,
	"mentions":   true,
}

// Keys returns every leaf key of the schema in dotted form, sorted.
// Entries below thresholds, channels and mentions are open-ended and listed
// only by their section name.
func Keys() []string {
	data, err := yaml.Marshal(NewConfig())
	if err != nil {
		return nil
	}
	var root map[string]any
	if err := yaml.Unmarshal(data, &root); err != nil {
		return nil
	}

	var keys []string
	var walk func(prefix string, m map[string]any)
	walk = func(prefix string, m map[string]any) {
		for k, v := range m {
			key := k
			if prefix != "" {
				key = prefix + "." + k
			}
			if sub, ok := v.(map[string]any); ok && !openSections[key] {
				walk(key, sub)
				continue
			}
			keys = append(keys, key)
		}
	}
	walk("", root)
	keys = append(keys, "quality.rules")
	sort.Strings(keys)
	return keys
}

func knownKey(key string) bool {
	first, _, _ := strings.Cut(key, ".")
	if openSections[first] {
		return true
	}
	for _, k := range Keys() {
		if k == key {
			return true
		}
	}
	return false
}

// Set assigns value to the dotted key in the YAML file at path and writes
// it back. value is parsed as YAML, so "10" is a number, "true" a boolean
// and "[a, b]" a list. The edited file must still decode and validate.
func Set(path, key, value string) error {
	if !knownKey(key) {
		return fmt.Errorf("%w: %s", ErrUnknownKey, key)
	}

	data, err := os.ReadFile(path) //nolint:gosec // user-provided config path
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return fmt.Errorf("%w: %s", ErrConfigNotFound, path)
		}
		return err
	}

	root := map[string]any{}
	if err := yaml.Unmarshal(data, &root); err != nil {
		return fmt.Errorf("failed to parse %s: %w", path, err)
	}
	if root == nil {
		root = map[string]any{}
	}

	var parsed any
	if err := yaml.Unmarshal([]byte(value), &parsed); err != nil || (parsed == nil && !isYAMLNull(value)) {
		// Not YAML, or something YAML reads as nothing such as "#alerts".
		parsed = value
	}

	parts := strings.Split(key, ".")
	node := root
	for _, p := range parts[:len(parts)-1] {
		next, ok := node[p].(map[string]any)
		if !ok {
			next = map[string]any{}
			node[p] = next
		}
		node = next
	}
	node[parts[len(parts)-1]] = parsed

	out, err := yaml.Marshal(root)
	if err != nil {
		return fmt.Errorf("failed to encode configuration: %w", err)
	}

	check := NewConfig()
	if err := yaml.Unmarshal(out, check); err != nil {
		return fmt.Errorf("invalid value for %s: %w", key, err)
	}
	if err := check.Validate(); err != nil {
		return err
	}

	return writeFile(path, out)
}

func isYAMLNull(s string) bool {
	switch strings.TrimSpace(s) {
	case "null", "Null", "NULL", "~":
		return true
	default:
		return false
	}
}

// Masked returns a copy of c with every secret replaced by MaskedValue.
// Empty secrets stay empty.
func (c *Config) Masked() *Config {
	m := *c
	mask := func(s string) string {
		if s == "" {
			return ""
		}
		return MaskedValue
	}
	m.Slack.WebhookURL = mask(c.Slack.WebhookURL)
	m.Slack.Token = mask(c.Slack.Token)
	m.RateLimit.Redis.Password = mask(c.RateLimit.Redis.Password)
	m.Notifiers.MQTT.Password = mask(c.Notifiers.MQTT.Password)
	m.Artifacts.Minio.AccessKey = mask(c.Artifacts.Minio.AccessKey)
	m.Artifacts.Minio.SecretKey = mask(c.Artifacts.Minio.SecretKey)
	return &m
}

// YAML encodes c.
func (c *Config) YAML() ([]byte, error) {
	return yaml.Marshal(c)
}
