package config

import (
	"fmt"

	"github.com/mitchellh/mapstructure"
)

// Defaults applied by SetDefaults.
const (
	DefaultRemoteHome   = "projects/"
	DefaultPollInterval = 5
	DefaultKillSignal   = "TERM"
	DefaultSSHPort      = 22
	DefaultRequirements = "requirements.txt"
)

// ExtensionKeys lists the top-level sections owned by other packages.
var ExtensionKeys = []string{"logging"}

// Instance is one remote host rex can run jobs on.
type Instance struct {
	Username        string `yaml:"username" toml:"username" json:"username" jsonschema:"required,minLength=1,description=Login name on the remote host"`
	Host            string `yaml:"host" toml:"host" json:"host" jsonschema:"required,minLength=1,description=Hostname or IP address"`
	Port            int    `yaml:"port,omitempty" toml:"port,omitempty" json:"port,omitempty" jsonschema:"minimum=1,maximum=65535,description=SSH port (default 22)"`
	Password        string `yaml:"password,omitempty" toml:"password,omitempty" json:"password,omitempty" jsonschema:"description=Password used when no key is configured"`
	KeyPath         string `yaml:"key_path,omitempty" toml:"key_path,omitempty" json:"key_path,omitempty" jsonschema:"description=Path to an unencrypted private key"`
	InsecureHostKey bool   `yaml:"insecure_host_key,omitempty" toml:"insecure_host_key,omitempty" json:"insecure_host_key,omitempty" jsonschema:"description=Skip known_hosts verification"`
}

// Target returns the "user@host" form of the instance.
func (i Instance) Target() string {
	return fmt.Sprintf("%s@%s", i.Username, i.Host)
}

// BundleConfig controls which local files are synchronized.
type BundleConfig struct {
	Include      []string `yaml:"include,omitempty" toml:"include,omitempty" json:"include,omitempty" jsonschema:"description=Glob patterns of files to sync in addition to *.py"`
	Exclude      []string `yaml:"exclude,omitempty" toml:"exclude,omitempty" json:"exclude,omitempty" jsonschema:"description=Glob patterns of files never to sync"`
	Requirements string   `yaml:"requirements,omitempty" toml:"requirements,omitempty" json:"requirements,omitempty" jsonschema:"description=Requirements file listing packages to install (default requirements.txt)"`
}

// Config is the global rex configuration.
type Config struct {
	DefaultInstance   int          `yaml:"default_instance" toml:"default_instance" json:"default_instance" jsonschema:"minimum=0,description=Index of the instance used when none is given"`
	RemoteHome        string       `yaml:"remote_home,omitempty" toml:"remote_home,omitempty" json:"remote_home,omitempty" jsonschema:"description=Directory under the remote login directory that holds projects"`
	PollInterval      int          `yaml:"poll_interval,omitempty" toml:"poll_interval,omitempty" json:"poll_interval,omitempty" jsonschema:"minimum=1,description=Seconds between log fetches when following"`
	TolerantReconcile bool         `yaml:"tolerant_reconcile,omitempty" toml:"tolerant_reconcile,omitempty" json:"tolerant_reconcile,omitempty" jsonschema:"description=Treat an unparsable process listing as no live processes"`
	KillSignal        string       `yaml:"kill_signal,omitempty" toml:"kill_signal,omitempty" json:"kill_signal,omitempty" jsonschema:"description=Signal sent by kill (default TERM)"`
	Instances         []Instance   `yaml:"instances,omitempty" toml:"instances,omitempty" json:"instances,omitempty" jsonschema:"description=Remote hosts"`
	Bundle            BundleConfig `yaml:"bundle,omitempty" toml:"bundle,omitempty" json:"bundle,omitempty" jsonschema:"description=File selection for sync"`

	// Extensions holds the sections listed in ExtensionKeys.
	Extensions map[string]interface{} `yaml:"-" toml:"-" json:"-"`
}

// SetDefaults fills unset fields.
func (c *Config) SetDefaults() {
	if c.RemoteHome == "" {
		c.RemoteHome = DefaultRemoteHome
	}
	if c.PollInterval == 0 {
		c.PollInterval = DefaultPollInterval
	}
	if c.KillSignal == "" {
		c.KillSignal = DefaultKillSignal
	}
	if c.Bundle.Requirements == "" {
		c.Bundle.Requirements = DefaultRequirements
	}
	for i := range c.Instances {
		if c.Instances[i].Port == 0 {
			c.Instances[i].Port = DefaultSSHPort
		}
	}
}

// UnmarshalExtension decodes an extension section into target. A missing
// section leaves target unchanged.
func (c *Config) UnmarshalExtension(key string, target interface{}) error {
	extensionConfig, ok := c.Extensions[key]
	if !ok {
		return nil
	}

	decoder, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		Result:  target,
		TagName: "yaml",
	})
	if err != nil {
		return fmt.Errorf("failed to create mapstructure decoder: %w", err)
	}

	if err := decoder.Decode(extensionConfig); err != nil {
		return fmt.Errorf("failed to decode extension config for '%s': %w", key, err)
	}

	return nil
}
