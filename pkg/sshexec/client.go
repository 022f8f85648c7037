package sshexec

import (
	"errors"
	"fmt"
	"net"
	"os"
	"path/filepath"
	"time"

	"github.com/ivyleavedtoadflax/remote.py/pkg/poll"
	"golang.org/x/crypto/ssh"
	"golang.org/x/crypto/ssh/agent"
	"golang.org/x/crypto/ssh/knownhosts"
)

// HostKeyPolicy mirrors the StrictHostKeyChecking values the tool passes to ssh.
type HostKeyPolicy string

const (
	HostKeyAcceptNew HostKeyPolicy = "accept-new"
	HostKeyIgnore    HostKeyPolicy = "no"
)

type ClientConf struct {
	Host           string        // public DNS name or IP
	Port           int           // ssh port
	Username       string        // remote user
	KeyPath        string        // private key file; empty uses the ssh agent
	PrivateKey     []byte        // key material, takes precedence over KeyPath
	ConnectTimeout time.Duration // total time to keep retrying the dial
	RetryInterval  time.Duration // pause between dial attempts
	HostKeys       HostKeyPolicy // empty means accept-new
	KnownHostsFile string        // defaults to ~/.ssh/known_hosts
	Sleep          func(time.Duration)
}

func (c *ClientConf) address() string {
	port := c.Port
	if port == 0 {
		port = 22
	}
	return net.JoinHostPort(c.Host, fmt.Sprintf("%d", port))
}

func (c *ClientConf) authMethods() ([]ssh.AuthMethod, error) {
	key := c.PrivateKey
	if len(key) == 0 && c.KeyPath != "" {
		var err error
		key, err = os.ReadFile(ExpandHome(c.KeyPath))
		if err != nil {
			return nil, fmt.Errorf("unable to read private key: %w", err)
		}
	}
	if len(key) > 0 {
		signer, err := ssh.ParsePrivateKey(key)
		if err != nil {
			return nil, fmt.Errorf("unable to parse private key: %v", err)
		}
		return []ssh.AuthMethod{ssh.PublicKeys(signer)}, nil
	}
	sock := os.Getenv("SSH_AUTH_SOCK")
	if sock == "" {
		return nil, errors.New("no private key given and SSH_AUTH_SOCK is not set")
	}
	conn, err := net.Dial("unix", sock)
	if err != nil {
		return nil, fmt.Errorf("could not reach ssh agent: %w", err)
	}
	return []ssh.AuthMethod{ssh.PublicKeysCallback(agent.NewClient(conn).Signers)}, nil
}

func (c *ClientConf) hostKeyCallback() (ssh.HostKeyCallback, error) {
	if c.HostKeys == HostKeyIgnore {
		return ssh.InsecureIgnoreHostKey(), nil
	}
	file := c.KnownHostsFile
	if file == "" {
		file = ExpandHome("~/.ssh/known_hosts")
	}
	if err := os.MkdirAll(filepath.Dir(file), 0700); err != nil {
		return nil, err
	}
	f, err := os.OpenFile(file, os.O_CREATE|os.O_RDONLY, 0600)
	if err != nil {
		return nil, err
	}
	f.Close()
	check, err := knownhosts.New(file)
	if err != nil {
		return nil, fmt.Errorf("could not read %s: %w", file, err)
	}
	return acceptNew(file, check), nil
}

// acceptNew records unknown hosts and rejects keys that changed.
func acceptNew(file string, check ssh.HostKeyCallback) ssh.HostKeyCallback {
	return func(hostname string, remote net.Addr, key ssh.PublicKey) error {
		err := check(hostname, remote, key)
		var keyErr *knownhosts.KeyError
		if err == nil || !errors.As(err, &keyErr) || len(keyErr.Want) > 0 {
			return err
		}
		f, ferr := os.OpenFile(file, os.O_APPEND|os.O_WRONLY, 0600)
		if ferr != nil {
			return ferr
		}
		defer f.Close()
		_, ferr = fmt.Fprintln(f, knownhosts.Line([]string{knownhosts.Normalize(hostname)}, key))
		return ferr
	}
}

func makeClientConfig(c *ClientConf) (*ssh.ClientConfig, error) {
	auth, err := c.authMethods()
	if err != nil {
		return nil, err
	}
	hostKeys, err := c.hostKeyCallback()
	if err != nil {
		return nil, err
	}
	config := &ssh.ClientConfig{
		User:            c.Username,
		Auth:            auth,
		HostKeyCallback: hostKeys,
		Timeout:         10 * time.Second,
	}
	if c.ConnectTimeout != 0 && c.ConnectTimeout < config.Timeout {
		config.Timeout = c.ConnectTimeout
	}
	return config, nil
}

// Dial connects, retrying refused or timed-out dials until ConnectTimeout runs
// out. Each attempt, handshake included, gets at most what is left of it.
func Dial(c *ClientConf) (*ssh.Client, error) {
	config, err := makeClientConfig(c)
	if err != nil {
		return nil, err
	}
	interval := c.RetryInterval
	if interval == 0 {
		interval = time.Second
	}
	budget := c.ConnectTimeout
	if budget <= 0 {
		budget = config.Timeout
	}
	deadline := time.Now().Add(budget)
	cfg := poll.FromWait(budget, interval)
	cfg.Sleep = c.Sleep
	var lastErr error
	conn, err := poll.Poll(func() poll.Outcome[*ssh.Client] {
		remaining := time.Until(deadline)
		if remaining <= 0 && lastErr != nil {
			return poll.Failure[*ssh.Client](fmt.Errorf("gave up after %s: %w", budget, lastErr))
		}
		timeout := config.Timeout
		if remaining > 0 && remaining < timeout {
			timeout = remaining
		}
		conn, err := dialOnce(c.address(), config, timeout)
		if err == nil {
			return poll.Success(conn)
		}
		var netErr net.Error
		if errors.As(err, &netErr) || errors.Is(err, os.ErrDeadlineExceeded) {
			lastErr = err
			return poll.Pending[*ssh.Client]()
		}
		return poll.Failure[*ssh.Client](err)
	}, cfg)
	if err != nil {
		if poll.IsTimeout(err) && lastErr != nil {
			return nil, fmt.Errorf("failed to dial %s: %w", c.address(), lastErr)
		}
		return nil, fmt.Errorf("failed to dial %s: %w", c.address(), err)
	}
	return conn, nil
}

// dialOnce is ssh.Dial with the handshake bounded by the same timeout as the
// TCP connect, so a port that accepts but never speaks cannot hang.
func dialOnce(addr string, config *ssh.ClientConfig, timeout time.Duration) (*ssh.Client, error) {
	conn, err := net.DialTimeout("tcp", addr, timeout)
	if err != nil {
		return nil, err
	}
	deadline := time.Now().Add(timeout)
	if err := conn.SetDeadline(deadline); err != nil {
		conn.Close()
		return nil, err
	}
	c, chans, reqs, err := ssh.NewClientConn(conn, addr, config)
	if err != nil {
		conn.Close()
		if !time.Now().Before(deadline) {
			return nil, fmt.Errorf("ssh handshake with %s: %w", addr, os.ErrDeadlineExceeded)
		}
		return nil, err
	}
	if err := conn.SetDeadline(time.Time{}); err != nil {
		c.Close()
		return nil, err
	}
	return ssh.NewClient(c, chans, reqs), nil
}

// ExpandHome replaces a leading ~/ with the user's home directory.
func ExpandHome(p string) string {
	if len(p) < 2 || p[:2] != "~/" {
		return p
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return p
	}
	return filepath.Join(home, p[2:])
}
