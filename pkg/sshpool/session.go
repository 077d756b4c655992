package sshpool

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"log/slog"
	"strconv"
	"sync"
	"time"

	"golang.org/x/crypto/ssh"
)

// ConnectTimeout bounds dialing and channel-open attempts.
const ConnectTimeout = 10 * time.Second

// ConnectParams names the connection target and credentials for one Session.
type ConnectParams struct {
	// Target is either a bare host, or "user@host:port".
	Target      string
	Credentials Credentials
}

// Session wraps one authenticated SSH connection.
type Session struct {
	client *ssh.Client
	host   string
	log    *slog.Logger

	mu   sync.Mutex // serializes keepalive against concurrent exec/pty opens
	dead bool
}

// Dial opens and authenticates a new Session. Cancelling ctx mid-handshake
// tears down any partially-established connection.
func Dial(ctx context.Context, params ConnectParams, log *slog.Logger) (*Session, error) {
	if log == nil {
		log = slog.Default()
	}
	user, host, portStr := parseConnectString(params.Target)
	cfg := loadHostConfig(host)

	if user != "" {
		cfg.User = user
	}
	if portStr != "" {
		if p, err := strconv.Atoi(portStr); err == nil {
			cfg.Port = p
		}
	}
	if cfg.User == "" {
		cfg.User = defaultOSUser()
	}
	resolvedHost := host
	if cfg.HostName != "" && cfg.HostName != host {
		resolvedHost = cfg.HostName
	}

	methods, err := authChain(host, params.Credentials, cfg, log)
	if err != nil {
		return nil, err
	}

	clientCfg := &ssh.ClientConfig{
		User:            cfg.User,
		Auth:            methods,
		HostKeyCallback: ssh.InsecureIgnoreHostKey(), // host key verification is a caller/config collaborator's concern
		Timeout:         ConnectTimeout,
	}

	addr := fmt.Sprintf("%s:%d", resolvedHost, cfg.Port)

	type dialResult struct {
		client *ssh.Client
		err    error
	}
	resultCh := make(chan dialResult, 1)
	go func() {
		c, err := ssh.Dial("tcp", addr, clientCfg)
		resultCh <- dialResult{c, err}
	}()

	select {
	case <-ctx.Done():
		// Drain asynchronously so a late-succeeding dial doesn't leak.
		go func() {
			if r := <-resultCh; r.client != nil {
				_ = r.client.Close()
			}
		}()
		return nil, ctx.Err()
	case r := <-resultCh:
		if r.err != nil {
			return nil, fmt.Errorf("sshpool: dial %s: %w", addr, r.err)
		}
		return &Session{client: r.client, host: host, log: log.With("host", host)}, nil
	}
}

// Close tears down the underlying connection.
func (s *Session) Close() error {
	return s.client.Close()
}

// ExecResult carries the outcome of Exec.
type ExecResult struct {
	ExitCode int
}

// Exec runs code under interpreter on the remote host. stdoutTx/stderrTx
// receive output lines as they arrive; cancel aborts both the wait and the
// output pump, flushing any buffered partial line first.
func (s *Session) Exec(ctx context.Context, interpreter, code string, stdoutTx, stderrTx chan<- string) (ExecResult, error) {
	sess, err := s.client.NewSession()
	if err != nil {
		return ExecResult{}, fmt.Errorf("sshpool: new session: %w", err)
	}
	defer func() { _ = sess.Close() }()

	stdoutPipe, err := sess.StdoutPipe()
	if err != nil {
		return ExecResult{}, err
	}
	stderrPipe, err := sess.StderrPipe()
	if err != nil {
		return ExecResult{}, err
	}
	sess.Stdin = nil // remote command must not wait on our stdin

	cmd := buildRemoteCommand(interpreter, code)

	if err := sess.Start(cmd); err != nil {
		return ExecResult{}, fmt.Errorf("sshpool: start: %w", err)
	}

	var wg sync.WaitGroup
	wg.Add(2)
	go pumpLines(&wg, stdoutPipe, stdoutTx, ctx)
	go pumpLines(&wg, stderrPipe, stderrTx, ctx)

	waitCh := make(chan error, 1)
	go func() { waitCh <- sess.Wait() }()

	select {
	case <-ctx.Done():
		_ = sess.Signal(ssh.SIGTERM)
		wg.Wait() // output task reads until Eof after the channel aborts
		return ExecResult{ExitCode: -1}, ctx.Err()
	case err := <-waitCh:
		// The output task reads until both ExitStatus and Eof have been
		// observed (RFC 4254 §6.10); waiting on wg here ensures we don't
		// return before the pumps have drained.
		wg.Wait()
		exitCode := 0
		if err != nil {
			if exitErr, ok := err.(*ssh.ExitError); ok {
				exitCode = exitErr.ExitStatus()
			} else {
				return ExecResult{}, classifyTransportError(err)
			}
		}
		return ExecResult{ExitCode: exitCode}, nil
	}
}

// pumpLines reads lines from r and forwards them to tx until r hits EOF or
// ctx is cancelled, flushing any trailing partial line first.
func pumpLines(wg *sync.WaitGroup, r io.Reader, tx chan<- string, ctx context.Context) {
	defer wg.Done()
	if tx == nil {
		_, _ = io.Copy(io.Discard, r)
		return
	}
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		select {
		case <-ctx.Done():
			return
		case tx <- scanner.Text() + "\n":
		}
	}
}

// SendKeepalive sends an SSH keepalive request and reports whether the
// session is still alive.
func (s *Session) SendKeepalive() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.dead {
		return false
	}
	_, _, err := s.client.SendRequest("keepalive@openssh.com", true, nil)
	if err != nil {
		s.dead = true
		return false
	}
	return true
}

// ReadFile reads a remote file's contents via an exec'd `cat`.
func (s *Session) ReadFile(ctx context.Context, path string) ([]byte, error) {
	sess, err := s.client.NewSession()
	if err != nil {
		return nil, err
	}
	defer func() { _ = sess.Close() }()
	out, err := sess.Output(fmt.Sprintf("cat %s", shellQuote(path)))
	if err != nil {
		return nil, classifyTransportError(err)
	}
	return out, nil
}

// CreateTempFile writes content to a freshly created remote temp file and
// returns its path.
func (s *Session) CreateTempFile(ctx context.Context, content []byte) (string, error) {
	sess, err := s.client.NewSession()
	if err != nil {
		return "", err
	}
	defer func() { _ = sess.Close() }()

	sess.Stdin = nil
	pathCh := make(chan string, 1)
	errCh := make(chan error, 1)
	go func() {
		out, err := sess.Output(`mktemp`)
		if err != nil {
			errCh <- err
			return
		}
		pathCh <- string(trimNewline(out))
	}()

	select {
	case err := <-errCh:
		return "", classifyTransportError(err)
	case path := <-pathCh:
		writeSess, err := s.client.NewSession()
		if err != nil {
			return "", err
		}
		defer func() { _ = writeSess.Close() }()
		stdin, err := writeSess.StdinPipe()
		if err != nil {
			return "", err
		}
		if err := writeSess.Start(fmt.Sprintf("cat > %s", shellQuote(path))); err != nil {
			return "", err
		}
		if _, err := stdin.Write(content); err != nil {
			return "", err
		}
		_ = stdin.Close()
		if err := writeSess.Wait(); err != nil {
			return "", classifyTransportError(err)
		}
		return path, nil
	}
}

// DeleteFile removes a remote file.
func (s *Session) DeleteFile(ctx context.Context, path string) error {
	sess, err := s.client.NewSession()
	if err != nil {
		return err
	}
	defer func() { _ = sess.Close() }()
	if err := sess.Run(fmt.Sprintf("rm -f %s", shellQuote(path))); err != nil {
		return classifyTransportError(err)
	}
	return nil
}

func trimNewline(b []byte) []byte {
	for len(b) > 0 && (b[len(b)-1] == '\n' || b[len(b)-1] == '\r') {
		b = b[:len(b)-1]
	}
	return b
}

func defaultOSUser() string {
	if u := currentOSUser(); u != "" {
		return u
	}
	return "root"
}
