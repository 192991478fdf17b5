package transport

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"os"
	"strconv"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
	"golang.org/x/crypto/ssh"
	"golang.org/x/crypto/ssh/knownhosts"
	"golang.org/x/term"

	rexerrors "github.com/grovetools/rex/errors"
	"github.com/grovetools/rex/util/pathutil"
)

// DefaultDialTimeout bounds the TCP connect and SSH handshake.
const DefaultDialTimeout = 15 * time.Second

// SSHConfig describes how to reach a remote host.
type SSHConfig struct {
	User     string
	Host     string
	Port     int
	Password string
	KeyPath  string
	// KnownHostsPath defaults to ~/.ssh/known_hosts.
	KnownHostsPath  string
	InsecureHostKey bool
	DialTimeout     time.Duration
}

// SSH runs command lines on a remote host over one SSH connection, opening a
// new session per command.
type SSH struct {
	cfg SSHConfig

	mu     sync.Mutex
	client *ssh.Client
}

// NewSSH returns an SSH transport. The connection is established on first use.
func NewSSH(cfg SSHConfig) *SSH {
	if cfg.Port == 0 {
		cfg.Port = 22
	}
	if cfg.DialTimeout == 0 {
		cfg.DialTimeout = DefaultDialTimeout
	}
	return &SSH{cfg: cfg}
}

func (s *SSH) Target() string {
	return fmt.Sprintf("%s@%s", s.cfg.User, s.cfg.Host)
}

func (s *SSH) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.client == nil {
		return nil
	}
	err := s.client.Close()
	s.client = nil
	return err
}

func (s *SSH) connect(ctx context.Context) (*ssh.Client, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.client != nil {
		return s.client, nil
	}

	config, err := s.clientConfig()
	if err != nil {
		return nil, err
	}
	addr := net.JoinHostPort(s.cfg.Host, strconv.Itoa(s.cfg.Port))

	dialer := net.Dialer{Timeout: s.cfg.DialTimeout}
	conn, err := dialer.DialContext(ctx, "tcp", addr)
	if err != nil {
		return nil, rexerrors.TransportFailed("dial", err).WithDetail("addr", addr)
	}
	if deadline, ok := ctx.Deadline(); ok {
		_ = conn.SetDeadline(deadline)
	} else {
		_ = conn.SetDeadline(time.Now().Add(s.cfg.DialTimeout))
	}
	c, chans, reqs, err := ssh.NewClientConn(conn, addr, config)
	if err != nil {
		conn.Close()
		return nil, rexerrors.TransportFailed("handshake", err).WithDetail("addr", addr)
	}
	_ = conn.SetDeadline(time.Time{})

	s.client = ssh.NewClient(c, chans, reqs)
	log.WithFields(logrus.Fields{"target": s.Target(), "addr": addr}).Debug("connected")
	return s.client, nil
}

func (s *SSH) clientConfig() (*ssh.ClientConfig, error) {
	var auth []ssh.AuthMethod
	if s.cfg.KeyPath != "" {
		keyAuth, err := readPrivateKey(pathutil.Expand(s.cfg.KeyPath))
		if err != nil {
			return nil, rexerrors.TransportFailed("read private key", err).WithDetail("path", s.cfg.KeyPath)
		}
		auth = append(auth, keyAuth)
	}
	if s.cfg.Password != "" {
		auth = append(auth, ssh.Password(s.cfg.Password))
	}
	if len(auth) == 0 {
		return nil, rexerrors.InvalidArgument(fmt.Sprintf("no password or key configured for %s", s.Target()))
	}

	hostKey, err := s.hostKeyCallback()
	if err != nil {
		return nil, err
	}
	return &ssh.ClientConfig{
		User:            s.cfg.User,
		Auth:            auth,
		HostKeyCallback: hostKey,
		Timeout:         s.cfg.DialTimeout,
	}, nil
}

func (s *SSH) hostKeyCallback() (ssh.HostKeyCallback, error) {
	if s.cfg.InsecureHostKey {
		return ssh.InsecureIgnoreHostKey(), nil
	}
	path := s.cfg.KnownHostsPath
	if path == "" {
		path = pathutil.Expand("~/.ssh/known_hosts")
	}
	cb, err := knownhosts.New(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			log.WithField("path", path).Warn("known_hosts not found, host key will not be verified")
			return ssh.InsecureIgnoreHostKey(), nil
		}
		return nil, rexerrors.TransportFailed("load known_hosts", err).WithDetail("path", path)
	}
	return cb, nil
}

func readPrivateKey(path string) (ssh.AuthMethod, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	signer, err := ssh.ParsePrivateKey(data)
	if err != nil {
		var missing *ssh.PassphraseMissingError
		if errors.As(err, &missing) {
			return nil, fmt.Errorf("encrypted private keys are not supported, use an unencrypted key or a password: %w", err)
		}
		return nil, err
	}
	return ssh.PublicKeys(signer), nil
}

// DialRemote opens a connection to addr from the remote host through the
// SSH connection.
func (s *SSH) DialRemote(ctx context.Context, network, addr string) (net.Conn, error) {
	client, err := s.connect(ctx)
	if err != nil {
		return nil, err
	}
	conn, err := client.DialContext(ctx, network, addr)
	if err != nil {
		return nil, rexerrors.TransportFailed("forward", err).WithDetail("addr", addr)
	}
	return conn, nil
}

func (s *SSH) Exec(ctx context.Context, req Request) (*Result, error) {
	client, err := s.connect(ctx)
	if err != nil {
		return nil, err
	}
	session, err := client.NewSession()
	if err != nil {
		return nil, rexerrors.TransportFailed("open session", err)
	}
	defer session.Close()

	var stdout, stderr bytes.Buffer
	session.Stdout = &stdout
	if req.Output != nil {
		session.Stdout = io.MultiWriter(&stdout, req.Output)
	}
	session.Stderr = &stderr
	if req.Stdin != nil {
		session.Stdin = req.Stdin
	}

	done := make(chan error, 1)
	go func() { done <- session.Run(req.Command) }()

	select {
	case <-ctx.Done():
		_ = session.Signal(ssh.SIGTERM)
		_ = session.Close()
		return nil, rexerrors.TransportFailed("exec", ctx.Err()).WithDetail("command", req.Command)
	case err = <-done:
	}

	res := &Result{Stdout: stdout.String(), Stderr: stderr.String()}
	if err != nil {
		var exitErr *ssh.ExitError
		if errors.As(err, &exitErr) {
			res.ExitCode = exitErr.ExitStatus()
			return res, nil
		}
		return nil, rexerrors.TransportFailed("exec", err).WithDetail("command", req.Command)
	}
	return res, nil
}

// Interactive runs line with a pseudo terminal when stdin is a terminal.
func (s *SSH) Interactive(ctx context.Context, line string, stdin io.Reader, stdout, stderr io.Writer) error {
	client, err := s.connect(ctx)
	if err != nil {
		return err
	}
	session, err := client.NewSession()
	if err != nil {
		return rexerrors.TransportFailed("open session", err)
	}
	defer session.Close()

	if f, ok := stdin.(*os.File); ok && term.IsTerminal(int(f.Fd())) {
		fd := int(f.Fd())
		oldState, err := term.MakeRaw(fd)
		if err != nil {
			return rexerrors.TransportFailed("raw terminal", err)
		}
		defer term.Restore(fd, oldState)

		w, h, err := term.GetSize(fd)
		if err != nil {
			w, h = 80, 24
		}
		modes := ssh.TerminalModes{
			ssh.ECHO:          1,
			ssh.TTY_OP_ISPEED: 14400,
			ssh.TTY_OP_OSPEED: 14400,
		}
		termType := os.Getenv("TERM")
		if termType == "" {
			termType = "xterm-256color"
		}
		if err := session.RequestPty(termType, h, w, modes); err != nil {
			return rexerrors.TransportFailed("request pty", err)
		}
	}
	session.Stdin, session.Stdout, session.Stderr = stdin, stdout, stderr

	if err := session.Run(line); err != nil {
		var exitErr *ssh.ExitError
		if errors.As(err, &exitErr) {
			return nil
		}
		return rexerrors.TransportFailed("interactive", err)
	}
	return nil
}
