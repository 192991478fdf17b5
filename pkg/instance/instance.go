// Package instance resolves the remote hosts rex runs jobs on.
package instance

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/grovetools/rex/command"
	"github.com/grovetools/rex/config"
	rexerrors "github.com/grovetools/rex/errors"
	"github.com/grovetools/rex/logging"
	"github.com/grovetools/rex/pkg/transport"
)

var log = logging.NewLogger("instance")

// LocalHost names the machine rex itself runs on. Jobs for it use the local
// shell instead of SSH.
const LocalHost = "local"

// PingTimeout bounds the liveness check.
const PingTimeout = 10 * time.Second

// Credential identifies a login on a host. It is never mutated once resolved.
type Credential struct {
	Username        string `yaml:"username" mapstructure:"username" json:"username"`
	Password        string `yaml:"password,omitempty" mapstructure:"password" json:"-"`
	Host            string `yaml:"host" mapstructure:"host" json:"host"`
	Port            int    `yaml:"port,omitempty" mapstructure:"port" json:"port,omitempty"`
	KeyPath         string `yaml:"key_path,omitempty" mapstructure:"key_path" json:"key_path,omitempty"`
	InsecureHostKey bool   `yaml:"insecure_host_key,omitempty" mapstructure:"insecure_host_key" json:"insecure_host_key,omitempty"`
}

// Parse builds a credential from a "user@host" string.
func Parse(login string) (Credential, error) {
	user, host, ok := strings.Cut(strings.TrimSpace(login), "@")
	if !ok || user == "" || host == "" || strings.Contains(host, "@") {
		return Credential{}, rexerrors.InvalidArgument(fmt.Sprintf("expected user@host, got %q", login))
	}
	return Credential{Username: user, Host: host}, nil
}

// FromConfig converts a configured instance.
func FromConfig(i config.Instance) Credential {
	return Credential{
		Username:        i.Username,
		Password:        i.Password,
		Host:            i.Host,
		Port:            i.Port,
		KeyPath:         i.KeyPath,
		InsecureHostKey: i.InsecureHostKey,
	}
}

// Config converts the credential back to its configuration form.
func (c Credential) Config() config.Instance {
	return config.Instance{
		Username:        c.Username,
		Password:        c.Password,
		Host:            c.Host,
		Port:            c.Port,
		KeyPath:         c.KeyPath,
		InsecureHostKey: c.InsecureHostKey,
	}
}

func (c Credential) String() string {
	return c.Username + "@" + c.Host
}

// Equal compares username, password and host.
func (c Credential) Equal(o Credential) bool {
	return c.Username == o.Username && c.Password == o.Password && c.Host == o.Host
}

// IsZero reports whether no credential was resolved.
func (c Credential) IsZero() bool {
	return c.Username == "" && c.Host == ""
}

// IsLocal reports whether jobs for c run on this machine.
func (c Credential) IsLocal() bool {
	return c.Host == LocalHost
}

// Dial returns the transport that reaches c. SSH connections are opened
// lazily on first use.
func Dial(c Credential) transport.Transport {
	if c.IsLocal() {
		return transport.NewLocal()
	}
	return transport.NewSSH(transport.SSHConfig{
		User:            c.Username,
		Host:            c.Host,
		Port:            c.Port,
		Password:        c.Password,
		KeyPath:         c.KeyPath,
		InsecureHostKey: c.InsecureHostKey,
	})
}

// Store reads and writes the instances of the global configuration.
type Store struct {
	cfg  *config.Config
	path string

	// Dial opens transports for pings; tests replace it.
	Dial func(Credential) transport.Transport
}

// NewStore wraps cfg, which Add saves back to path.
func NewStore(cfg *config.Config, path string) *Store {
	return &Store{cfg: cfg, path: path, Dial: Dial}
}

// List returns every configured credential in configuration order.
func (s *Store) List() []Credential {
	creds := make([]Credential, 0, len(s.cfg.Instances))
	for _, i := range s.cfg.Instances {
		creds = append(creds, FromConfig(i))
	}
	return creds
}

// Get returns the credential at the 0-based index. A negative index selects
// the configured default.
func (s *Store) Get(index int) (Credential, error) {
	if index < 0 {
		index = s.cfg.DefaultInstance
	}
	if index >= len(s.cfg.Instances) {
		return Credential{}, rexerrors.InstanceNotFound(index, len(s.cfg.Instances))
	}
	return FromConfig(s.cfg.Instances[index]), nil
}

// Resolve accepts either a configured index or a "user@host" string. A login
// that matches a configured instance returns that instance with its secrets.
func (s *Store) Resolve(ref string) (Credential, error) {
	ref = strings.TrimSpace(ref)
	if ref == "" {
		return s.Get(-1)
	}
	if idx, err := parseIndex(ref); err == nil {
		return s.Get(idx)
	}
	c, err := Parse(ref)
	if err != nil {
		return Credential{}, err
	}
	for _, known := range s.List() {
		if known.Username == c.Username && known.Host == c.Host {
			return known, nil
		}
	}
	return c, nil
}

func parseIndex(s string) (int, error) {
	idx, err := strconv.Atoi(s)
	if err != nil || idx < 0 {
		return 0, fmt.Errorf("not an index: %q", s)
	}
	return idx, nil
}

// Validate reports whether c answers a trivial command.
func (s *Store) Validate(ctx context.Context, c Credential) bool {
	return s.ping(ctx, c) == nil
}

func (s *Store) ping(ctx context.Context, c Credential) error {
	ctx, cancel := context.WithTimeout(ctx, PingTimeout)
	defer cancel()

	t := s.Dial(c)
	defer t.Close()
	_, err := transport.RunLine(ctx, t, transport.Request{Command: command.Ping()})
	if err != nil {
		log.WithError(err).WithField("instance", c.String()).Debug("ping failed")
	}
	return err
}

// Add appends c to the configuration after checking that it is reachable
// and that no instance has the same login, then saves the configuration.
func (s *Store) Add(ctx context.Context, c Credential) error {
	for _, known := range s.List() {
		if known.String() == c.String() {
			return rexerrors.InstanceDuplicate(c.String())
		}
	}
	if err := s.ping(ctx, c); err != nil {
		return rexerrors.InstanceInactive(c.String(), err)
	}

	s.cfg.Instances = append(s.cfg.Instances, c.Config())
	s.cfg.SetDefaults()
	if err := config.Save(s.cfg, s.path); err != nil {
		s.cfg.Instances = s.cfg.Instances[:len(s.cfg.Instances)-1]
		return err
	}
	log.WithField("instance", c.String()).Info("instance added")
	return nil
}
