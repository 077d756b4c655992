package sshpool

import (
	"context"
	"fmt"
	"io"

	"golang.org/x/crypto/ssh"
)

// Pty is the transport-agnostic interface shared by an SSH PTY channel and a
// local PTY (pkg/ptystore), so terminal-type blocks don't need to know which
// transport backs them.
type Pty interface {
	Write(p []byte) (int, error)
	Resize(rows, cols int) error
	Close() error
}

// sshPty adapts an *ssh.Session running a PTY-backed shell to the Pty
// interface.
type sshPty struct {
	session *ssh.Session
}

func (p *sshPty) Write(b []byte) (int, error) {
	w, err := p.session.StdinPipe()
	if err != nil {
		return 0, err
	}
	return w.Write(b)
}

func (p *sshPty) Resize(rows, cols int) error {
	return p.session.WindowChange(rows, cols)
}

func (p *sshPty) Close() error {
	return p.session.Close()
}

// OpenPTY requests a remote PTY and starts the login shell on it, streaming
// combined output to outputTx until the channel closes or cancel fires.
func (s *Session) OpenPTY(ctx context.Context, rows, cols int, outputTx chan<- string) (Pty, <-chan error, error) {
	sess, err := s.client.NewSession()
	if err != nil {
		return nil, nil, fmt.Errorf("sshpool: new session: %w", err)
	}

	modes := ssh.TerminalModes{
		ssh.ECHO:          1,
		ssh.TTY_OP_ISPEED: 14400,
		ssh.TTY_OP_OSPEED: 14400,
	}
	if err := sess.RequestPty("xterm-256color", rows, cols, modes); err != nil {
		_ = sess.Close()
		return nil, nil, fmt.Errorf("sshpool: request pty: %w", err)
	}

	stdout, err := sess.StdoutPipe()
	if err != nil {
		_ = sess.Close()
		return nil, nil, err
	}

	if err := sess.Shell(); err != nil {
		_ = sess.Close()
		return nil, nil, fmt.Errorf("sshpool: shell: %w", err)
	}

	done := make(chan error, 1)
	go func() {
		buf := make([]byte, 4096)
		for {
			n, err := stdout.Read(buf)
			if n > 0 && outputTx != nil {
				select {
				case outputTx <- string(buf[:n]):
				case <-ctx.Done():
					done <- ctx.Err()
					return
				}
			}
			if err != nil {
				if err == io.EOF {
					done <- nil
				} else {
					done <- err
				}
				return
			}
		}
	}()

	go func() {
		<-ctx.Done()
		_ = sess.Close()
	}()

	return &sshPty{session: sess}, done, nil
}
