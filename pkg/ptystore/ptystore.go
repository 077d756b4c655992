// Package ptystore implements the local PTY store: spawn, write, resize,
// kill for local pseudo-terminals, sharing the sshpool.Pty interface so
// terminal-type blocks are transport-agnostic.
package ptystore

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/exec"
	"sync"
	"syscall"

	"github.com/creack/pty"

	"github.com/opsrunbook/engine/pkg/sshpool"
)

// localPty adapts a spawned local process + its pty file to
// sshpool.Pty, the transport-agnostic interface terminal blocks program
// against.
type localPty struct {
	f   *os.File
	cmd *exec.Cmd
}

var _ sshpool.Pty = (*localPty)(nil)

func (p *localPty) Write(b []byte) (int, error) { return p.f.Write(b) }

func (p *localPty) Resize(rows, cols int) error {
	return pty.Setsize(p.f, &pty.Winsize{Rows: uint16(rows), Cols: uint16(cols)})
}

func (p *localPty) Close() error {
	return p.f.Close()
}

// Handle is the store's externally-visible reference to one spawned PTY.
type Handle struct {
	ChannelID string
	pty       *localPty
}

// Write forwards input bytes to the PTY.
func (h *Handle) Write(b []byte) (int, error) { return h.pty.Write(b) }

// Resize changes the PTY's terminal size.
func (h *Handle) Resize(rows, cols int) error { return h.pty.Resize(rows, cols) }

// Kill sends SIGTERM to the whole process group so children of the shell
// die with it.
func (h *Handle) Kill() error {
	if h.pty.cmd.Process == nil {
		return nil
	}
	return syscall.Kill(-h.pty.cmd.Process.Pid, syscall.SIGTERM)
}

// Close releases the PTY file descriptor.
func (h *Handle) Close() error { return h.pty.Close() }

// Store tracks every spawned local PTY, keyed by channel id.
type Store struct {
	log *slog.Logger

	mu      sync.Mutex
	handles map[string]*Handle
}

// New returns an empty Store.
func New(log *slog.Logger) *Store {
	if log == nil {
		log = slog.Default()
	}
	return &Store{log: log.With("component", "ptystore"), handles: make(map[string]*Handle)}
}

// Spawn starts shell (or the caller's program/args) attached to a new PTY of
// the given size, in its own process group so Kill can signal the whole
// tree. Output is streamed to outputTx until the PTY closes.
func (s *Store) Spawn(channelID, shell string, args []string, rows, cols int, cwd string, env []string, outputTx chan<- string) (*Handle, error) {
	if shell == "" {
		shell = defaultShell()
	}
	cmd := exec.Command(shell, args...)
	cmd.Dir = cwd
	if env != nil {
		cmd.Env = env
	}
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}

	f, err := pty.StartWithSize(cmd, &pty.Winsize{Rows: uint16(rows), Cols: uint16(cols)})
	if err != nil {
		return nil, fmt.Errorf("ptystore: spawn: %w", err)
	}

	h := &Handle{ChannelID: channelID, pty: &localPty{f: f, cmd: cmd}}

	s.mu.Lock()
	s.handles[channelID] = h
	s.mu.Unlock()

	go s.pumpOutput(channelID, f, outputTx)

	s.log.Info("ptystore: spawned", "channel_id", channelID, "shell", shell)
	return h, nil
}

func (s *Store) pumpOutput(channelID string, f *os.File, outputTx chan<- string) {
	defer s.remove(channelID)
	buf := make([]byte, 4096)
	for {
		n, err := f.Read(buf)
		if n > 0 && outputTx != nil {
			outputTx <- string(buf[:n])
		}
		if err != nil {
			if err != io.EOF {
				s.log.Debug("ptystore: pty read error", "channel_id", channelID, "error", err)
			}
			return
		}
	}
}

func (s *Store) remove(channelID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.handles, channelID)
}

// Write forwards input bytes to the named channel's PTY.
func (s *Store) Write(channelID string, b []byte) error {
	h, ok := s.get(channelID)
	if !ok {
		return fmt.Errorf("ptystore: unknown channel %s", channelID)
	}
	_, err := h.Write(b)
	return err
}

// Resize changes the named channel's PTY size.
func (s *Store) Resize(channelID string, rows, cols int) error {
	h, ok := s.get(channelID)
	if !ok {
		return fmt.Errorf("ptystore: unknown channel %s", channelID)
	}
	return h.Resize(rows, cols)
}

// Kill terminates the named channel's process group and removes it from
// the store.
func (s *Store) Kill(channelID string) error {
	h, ok := s.get(channelID)
	if !ok {
		return fmt.Errorf("ptystore: unknown channel %s", channelID)
	}
	defer s.remove(channelID)
	if err := h.Kill(); err != nil {
		return err
	}
	return h.Close()
}

func (s *Store) get(channelID string) (*Handle, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	h, ok := s.handles[channelID]
	return h, ok
}

// Size returns the number of live PTYs, for tests/metrics.
func (s *Store) Size() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.handles)
}

func defaultShell() string {
	if sh := os.Getenv("SHELL"); sh != "" {
		return sh
	}
	return "/bin/sh"
}
