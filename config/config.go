package config

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/mitchellh/mapstructure"
	"github.com/pelletier/go-toml/v2"
	"gopkg.in/yaml.v3"

	"github.com/grovetools/rex/command"
	"github.com/grovetools/rex/errors"
	"github.com/grovetools/rex/pkg/paths"
)

var envVarRegex = regexp.MustCompile(`\$\{([^}]+)\}`)

// Format is the serialization of a config file.
type Format string

const (
	FormatYAML Format = "yaml"
	FormatTOML Format = "toml"
)

// configFileNames are searched in order inside the config directory.
var configFileNames = []string{"rex.yml", "rex.yaml", "rex.toml"}

// FormatOf infers the format from a file extension.
func FormatOf(path string) Format {
	if strings.EqualFold(filepath.Ext(path), ".toml") {
		return FormatTOML
	}
	return FormatYAML
}

// DefaultPath returns the config file to use: $REX_CONFIG, else the first
// existing file in the config directory, else rex.yml there.
func DefaultPath() string {
	if p := os.Getenv("REX_CONFIG"); p != "" {
		return p
	}
	dir := paths.ConfigDir()
	for _, name := range configFileNames {
		candidate := filepath.Join(dir, name)
		if _, err := os.Stat(candidate); err == nil {
			return candidate
		}
	}
	return filepath.Join(dir, configFileNames[0])
}

// LoadDefault loads the config file at DefaultPath.
func LoadDefault() (*Config, error) {
	return Load(DefaultPath())
}

// Load reads, validates and decodes a config file.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, errors.ConfigNotFound(path)
		}
		return nil, errors.Wrap(err, errors.ErrCodeConfigInvalid, "failed to read config file").
			WithDetail("path", path)
	}

	cfg, err := LoadFromBytes(data, FormatOf(path))
	if err != nil {
		if rexErr, ok := err.(*errors.RexError); ok {
			return nil, rexErr.WithDetail("path", path)
		}
		return nil, err
	}
	return cfg, nil
}

// LoadFromBytes parses data, validates it against the schema, applies
// defaults and checks cross-field constraints.
func LoadFromBytes(data []byte, format Format) (*Config, error) {
	expanded := expandEnvVars(string(data))

	raw := map[string]interface{}{}
	var err error
	switch format {
	case FormatTOML:
		err = toml.Unmarshal([]byte(expanded), &raw)
	default:
		err = yaml.Unmarshal([]byte(expanded), &raw)
	}
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeConfigInvalid, "failed to parse config")
	}
	if raw == nil {
		raw = map[string]interface{}{}
	}

	v, err := configValidator()
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeInternal, "failed to build config schema")
	}
	if err := v.Validate(raw); err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeConfigInvalid, "config does not match schema")
	}

	var cfg Config
	decoder, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		Result:  &cfg,
		TagName: "yaml",
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create mapstructure decoder: %w", err)
	}
	if err := decoder.Decode(raw); err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeConfigInvalid, "failed to decode config")
	}

	cfg.Extensions = map[string]interface{}{}
	for _, key := range ExtensionKeys {
		if section, ok := raw[key]; ok {
			cfg.Extensions[key] = section
		}
	}

	cfg.SetDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks constraints the schema cannot express.
func (c *Config) Validate() error {
	if len(c.Instances) > 0 && c.DefaultInstance >= len(c.Instances) {
		return errors.ConfigInvalid(fmt.Sprintf("default_instance %d out of range (%d instances)",
			c.DefaultInstance, len(c.Instances)))
	}
	if c.KillSignal != "" {
		sig := strings.TrimPrefix(c.KillSignal, "SIG")
		if err := command.NewSafeBuilder().Validate("signal", sig); err != nil {
			return errors.ConfigInvalid(err.Error())
		}
	}
	if strings.HasPrefix(c.RemoteHome, "/") {
		return errors.ConfigInvalid("remote_home must be relative to the remote login directory")
	}
	seen := map[string]bool{}
	for _, inst := range c.Instances {
		key := inst.Target()
		if seen[key] {
			return errors.InstanceDuplicate(key)
		}
		seen[key] = true
	}
	return nil
}

// Save writes cfg to path in the format implied by its extension.
// The file may hold passwords, so it is written owner-only.
func Save(cfg *Config, path string) error {
	data, err := Marshal(cfg, FormatOf(path))
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create config directory: %w", err)
	}
	if err := os.WriteFile(path, data, 0o600); err != nil {
		return fmt.Errorf("write config file: %w", err)
	}
	return nil
}

// Marshal serializes cfg, extensions included.
func Marshal(cfg *Config, format Format) ([]byte, error) {
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return nil, fmt.Errorf("marshal config: %w", err)
	}
	doc := map[string]interface{}{}
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("normalize config: %w", err)
	}
	for key, section := range cfg.Extensions {
		doc[key] = section
	}

	if format == FormatTOML {
		return toml.Marshal(doc)
	}
	return yaml.Marshal(doc)
}

// Sample returns a starter configuration.
func Sample() *Config {
	cfg := &Config{
		DefaultInstance: 0,
		RemoteHome:      DefaultRemoteHome,
		PollInterval:    DefaultPollInterval,
		KillSignal:      DefaultKillSignal,
		Instances: []Instance{
			{Username: "user", Host: "gpu.example.com", Port: DefaultSSHPort, KeyPath: "~/.ssh/id_ed25519"},
		},
		Bundle: BundleConfig{
			Exclude:      []string{"**/test_*.py"},
			Requirements: DefaultRequirements,
		},
		Extensions: map[string]interface{}{
			"logging": map[string]interface{}{"level": "info"},
		},
	}
	return cfg
}

// expandEnvVars replaces ${VAR} with environment variable values
func expandEnvVars(content string) string {
	return envVarRegex.ReplaceAllStringFunc(content, func(match string) string {
		varName := envVarRegex.FindStringSubmatch(match)[1]

		// Handle default values: ${VAR:-default}
		parts := strings.SplitN(varName, ":-", 2)
		varName = parts[0]
		defaultValue := ""
		if len(parts) > 1 {
			defaultValue = parts[1]
		}

		if value := os.Getenv(varName); value != "" {
			return value
		}

		return defaultValue
	})
}
