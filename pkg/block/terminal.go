package block

import (
	"os"

	"github.com/opsrunbook/engine/pkg/blockcontext"
	"github.com/opsrunbook/engine/pkg/document"
	"github.com/opsrunbook/engine/pkg/execctx"
	"github.com/opsrunbook/engine/pkg/lifecycle"
	"github.com/opsrunbook/engine/pkg/resolver"
	"github.com/opsrunbook/engine/pkg/sshpool"
)

const (
	defaultTerminalRows  = 24
	defaultTerminalCols  = 80
	defaultTerminalShell = "bash"
)

// TerminalProps is a `terminal` block's static configuration: an interactive
// PTY, local or against the SSH host currently in scope, transport-agnostic
// behind sshpool.Pty.
type TerminalProps struct {
	Shell string `json:"shell,omitempty"`
	Rows  int    `json:"rows,omitempty"`
	Cols  int    `json:"cols,omitempty"`

	// KeyPath/Password override the SSH auth chain's defaults, as in
	// ScriptProps.
	KeyPath  string `json:"ssh_key_path,omitempty"`
	Password string `json:"ssh_password,omitempty"`
}

type terminalHandler struct {
	id    string
	props TerminalProps
}

// NewTerminalFactory builds the document.Factory for the "terminal" block type.
func NewTerminalFactory() document.Factory {
	return func(n document.Node) (document.Handler, error) {
		var props TerminalProps
		if err := decodeProps(n, &props); err != nil {
			return nil, err
		}
		return &terminalHandler{id: n.ID, props: props}, nil
	}
}

func (h *terminalHandler) PassiveContext(res *resolver.Resolver, local document.LocalValueProvider) (*blockcontext.Context, error) {
	return blockcontext.New(), nil
}

func (h *terminalHandler) Execute(ec *execctx.Context) *lifecycle.Handle {
	rows, cols := h.props.Rows, h.props.Cols
	if rows <= 0 {
		rows = defaultTerminalRows
	}
	if cols <= 0 {
		cols = defaultTerminalCols
	}
	shell := h.props.Shell
	if shell == "" {
		shell = defaultTerminalShell
	}

	res := ec.ContextResolver()
	sshHost, haveSSHHost := res.SSHHost()

	go func() {
		ec.BlockStarted()
		if haveSSHHost && sshHost != "" {
			h.runRemote(ec, sshHost, shell, rows, cols)
		} else {
			h.runLocal(ec, res, shell, rows, cols)
		}
	}()

	return ec.Handle()
}

// runRemote opens a PTY channel on the pooled SSH session. The channel stays
// open, streaming output, until cancelled — exit-code determination is not
// available over this transport.
func (h *terminalHandler) runRemote(ec *execctx.Context, host, shell string, rows, cols int) {
	pool := ec.SSHPool()
	if pool == nil {
		ec.BlockFailed(errNoSSHPool.Error())
		return
	}
	creds := sshpool.Credentials{KeyPath: h.props.KeyPath, Password: h.props.Password}
	sess, err := pool.Connect(ec.CancellationToken(), host, creds)
	if err != nil {
		ec.BlockFailed(err.Error())
		return
	}

	outputCh := make(chan string, 64)
	pty, doneCh, err := sess.OpenPTY(ec.CancellationToken(), rows, cols, outputCh)
	if err != nil {
		ec.BlockFailed(err.Error())
		return
	}
	defer func() { _ = pty.Close() }()

	forwarderDone := make(chan struct{})
	go func() {
		defer close(forwarderDone)
		for line := range outputCh {
			l := line
			ec.SendOutput(execctx.BlockOutput{Stdout: &l})
		}
	}()

	waitErr := <-doneCh
	close(outputCh)
	<-forwarderDone

	if ec.CancellationToken().Err() != nil {
		ec.BlockCancelled()
		return
	}
	if waitErr != nil {
		ec.BlockFailed(waitErr.Error())
		return
	}
	ec.BlockFinished(nil, true)
}

// runLocal spawns a local PTY via the shared store, streaming output until
// the block is cancelled. As with the remote path, the PTY transport exposes
// no exit code, so only Cancelled is emitted on cancellation — a clean shell
// exit is out of this handler's visibility (the store does not yet surface
// process-exit notifications).
func (h *terminalHandler) runLocal(ec *execctx.Context, res *resolver.Resolver, shell string, rows, cols int) {
	store := ec.PTYStore()
	if store == nil {
		ec.BlockFailed("block: terminal requires a local pty store but none was configured")
		return
	}

	env := os.Environ()
	for k, v := range res.EnvVars() {
		env = append(env, k+"="+v)
	}

	outputCh := make(chan string, 64)
	handle, err := store.Spawn(ec.BlockID, shell, nil, rows, cols, res.Cwd(), env, outputCh)
	if err != nil {
		ec.BlockFailed(err.Error())
		return
	}

	stop := make(chan struct{})
	go func() {
		for {
			select {
			case line, ok := <-outputCh:
				if !ok {
					return
				}
				l := line
				ec.SendOutput(execctx.BlockOutput{Stdout: &l})
			case <-stop:
				return
			}
		}
	}()

	<-ec.CancellationToken().Done()
	close(stop)
	_ = handle.Kill()
	ec.BlockCancelled()
}
