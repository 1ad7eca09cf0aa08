package remote

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"net"
	"os"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"golang.org/x/crypto/ssh"
	"golang.org/x/crypto/ssh/knownhosts"

	"github.com/jkaberg/reseed/config"
)

var _ Store = &SSH{}

// SSH runs find/test commands on the remote host. All probes share one
// connection; every command gets its own session.
type SSH struct {
	addr string
	cc   *ssh.ClientConfig
	log  zerolog.Logger

	mu sync.Mutex
	c  *ssh.Client
}

func NewSSH(conf *config.Remote) (*SSH, error) {
	var auth []ssh.AuthMethod
	if conf.KeyFile != "" {
		key, err := os.ReadFile(conf.KeyFile)
		if err != nil {
			return nil, fmt.Errorf("error reading ssh key: %w", err)
		}
		signer, err := ssh.ParsePrivateKey(key)
		if err != nil {
			return nil, fmt.Errorf("error parsing ssh key: %w", err)
		}
		auth = append(auth, ssh.PublicKeys(signer))
	}
	if conf.Password != "" {
		auth = append(auth, ssh.Password(conf.Password))
	}
	if len(auth) == 0 {
		return nil, errors.New("ssh remote needs a password or a key file")
	}

	hk := ssh.InsecureIgnoreHostKey()
	if conf.KnownHosts != "" {
		cb, err := knownhosts.New(conf.KnownHosts)
		if err != nil {
			return nil, fmt.Errorf("error loading known hosts: %w", err)
		}
		hk = cb
	}

	l := log.Logger.With().Str("component", "remote-ssh").Str("host", conf.Host).Logger()
	if conf.KnownHosts == "" {
		l.Warn().Msg("no known_hosts file configured, remote host key is not verified")
	}

	return &SSH{
		addr: net.JoinHostPort(conf.Host, strconv.Itoa(conf.Port)),
		cc: &ssh.ClientConfig{
			User:            conf.User,
			Auth:            auth,
			HostKeyCallback: hk,
			Timeout:         time.Duration(conf.ListTimeout) * time.Second,
		},
		log: l,
	}, nil
}

func (s *SSH) List(ctx context.Context, dir string) ([]string, error) {
	out, err := s.run(ctx, "find "+shellQuote(dir)+` -mindepth 1 -maxdepth 1 -type d -printf '%f\n'`)
	if err != nil {
		return nil, err
	}

	var dirs []string
	for _, line := range strings.Split(string(out), "\n") {
		if line = strings.TrimRight(line, "\r"); line != "" {
			dirs = append(dirs, line)
		}
	}

	return dirs, nil
}

func (s *SSH) Exists(ctx context.Context, p string) (bool, error) {
	_, err := s.run(ctx, "test -e "+shellQuote(p))
	if err == nil {
		return true, nil
	}

	var ee *ssh.ExitError
	if errors.As(err, &ee) && ee.ExitStatus() == 1 {
		return false, nil
	}

	return false, err
}

// Close closes the shared connection, if any.
func (s *SSH) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.c == nil {
		return nil
	}
	err := s.c.Close()
	s.c = nil
	return err
}

func (s *SSH) conn(ctx context.Context) (*ssh.Client, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.c != nil {
		return s.c, nil
	}

	d := net.Dialer{Timeout: s.cc.Timeout}
	nc, err := d.DialContext(ctx, "tcp", s.addr)
	if err != nil {
		return nil, fmt.Errorf("error connecting to %s: %w", s.addr, err)
	}

	if dl, ok := ctx.Deadline(); ok {
		_ = nc.SetDeadline(dl)
	}
	cc, chans, reqs, err := ssh.NewClientConn(nc, s.addr, s.cc)
	if err != nil {
		nc.Close()
		return nil, fmt.Errorf("error during ssh handshake with %s: %w", s.addr, err)
	}
	_ = nc.SetDeadline(time.Time{})

	s.c = ssh.NewClient(cc, chans, reqs)
	s.log.Info().Str("addr", s.addr).Msg("connected to remote host")

	go func(c *ssh.Client) {
		err := c.Wait()
		s.mu.Lock()
		if s.c == c {
			s.c = nil
		}
		s.mu.Unlock()
		s.log.Debug().Err(err).Msg("remote connection closed")
	}(s.c)

	return s.c, nil
}

func (s *SSH) run(ctx context.Context, cmd string) ([]byte, error) {
	c, err := s.conn(ctx)
	if err != nil {
		return nil, err
	}

	sess, err := c.NewSession()
	if err != nil {
		return nil, fmt.Errorf("error opening ssh session: %w", err)
	}
	defer sess.Close()

	var stdout bytes.Buffer
	sess.Stdout = &stdout

	done := make(chan error, 1)
	go func() { done <- sess.Run(cmd) }()

	select {
	case err := <-done:
		if err != nil {
			return nil, err
		}
		return stdout.Bytes(), nil
	case <-ctx.Done():
		_ = sess.Signal(ssh.SIGKILL)
		return nil, ctx.Err()
	}
}

// shellQuote quotes s for a POSIX shell. Torrent names may contain quotes
// and other shell metacharacters.
func shellQuote(s string) string {
	return "'" + strings.ReplaceAll(s, "'", `'"'"'`) + "'"
}
