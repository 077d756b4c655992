package block

import (
	"bytes"
	"errors"
	"io"
	"os/exec"
	"sync"
	"syscall"

	"github.com/opsrunbook/engine/pkg/blockcontext"
	"github.com/opsrunbook/engine/pkg/document"
	"github.com/opsrunbook/engine/pkg/execctx"
	"github.com/opsrunbook/engine/pkg/lifecycle"
	"github.com/opsrunbook/engine/pkg/resolver"
	"github.com/opsrunbook/engine/pkg/sshpool"
)

// ScriptProps is a `script` block's static configuration: run Code under
// Interpreter, either on the local host or against the SSH host currently in
// scope.
type ScriptProps struct {
	Interpreter string `json:"interpreter"`
	Code        string `json:"code"`

	// KeyPath/Password let a block override the SSH auth chain's defaults; both
	// are optional.
	KeyPath  string `json:"ssh_key_path,omitempty"`
	Password string `json:"ssh_password,omitempty"`
}

type scriptHandler struct {
	id    string
	props ScriptProps
}

// NewScriptFactory builds the document.Factory for the "script" block type.
func NewScriptFactory() document.Factory {
	return func(n document.Node) (document.Handler, error) {
		var props ScriptProps
		if err := decodeProps(n, &props); err != nil {
			return nil, err
		}
		return &scriptHandler{id: n.ID, props: props}, nil
	}
}

// PassiveContext is empty: a script block contributes nothing to the fold
// until it runs, at which point Execute writes its ExecutionOutput to the
// active context via ec.SetBlockOutput.
func (h *scriptHandler) PassiveContext(res *resolver.Resolver, local document.LocalValueProvider) (*blockcontext.Context, error) {
	return blockcontext.New(), nil
}

func (h *scriptHandler) Execute(ec *execctx.Context) *lifecycle.Handle {
	interpreter := h.props.Interpreter
	res := ec.ContextResolver()
	sshHost, haveSSHHost := res.SSHHost()

	go func() {
		ec.BlockStarted()

		code, tmplErr := res.ResolveTemplate(h.props.Code)
		if tmplErr != nil {
			ec.BlockFailed(tmplErr.Error())
			return
		}

		var exitCode int
		var stdout, stderr string
		var err error
		if haveSSHHost && sshHost != "" {
			exitCode, stdout, stderr, err = h.runRemote(ec, sshHost, interpreter, code)
		} else {
			exitCode, stdout, stderr, err = h.runLocal(ec, res.Cwd(), interpreter, code)
		}

		select {
		case <-ec.CancellationToken().Done():
			ec.BlockCancelled()
			return
		default:
		}

		if err != nil {
			ec.BlockFailed(err.Error())
			return
		}

		out := blockcontext.ExecutionOutput{
			ExitCode: &exitCode,
			Stdout:   &stdout,
			Stderr:   &stderr,
		}
		if setErr := ec.SetBlockOutput(out); setErr != nil {
			ec.BlockFailed(setErr.Error())
			return
		}

		success := exitCode == 0
		ec.BlockFinished(&exitCode, success)
	}()

	return ec.Handle()
}

// runRemote executes the block against the pooled SSH session for host,
// streaming each line to the bridge as it arrives.
func (h *scriptHandler) runRemote(ec *execctx.Context, host, interpreter, code string) (exitCode int, stdout, stderr string, err error) {
	pool := ec.SSHPool()
	if pool == nil {
		return 0, "", "", errNoSSHPool
	}
	creds := sshpool.Credentials{KeyPath: h.props.KeyPath, Password: h.props.Password}
	sess, dialErr := pool.Connect(ec.CancellationToken(), host, creds)
	if dialErr != nil {
		return 0, "", "", dialErr
	}

	stdoutCh := make(chan string, 16)
	stderrCh := make(chan string, 16)
	var outBuf, errBuf bytes.Buffer
	var wg sync.WaitGroup
	wg.Add(2)
	go drainLines(&wg, stdoutCh, &outBuf, func(line string) { ec.SendOutput(execctx.BlockOutput{Stdout: &line}) })
	go drainLines(&wg, stderrCh, &errBuf, func(line string) { ec.SendOutput(execctx.BlockOutput{Stderr: &line}) })

	result, execErr := sess.Exec(ec.CancellationToken(), interpreter, code, stdoutCh, stderrCh)
	close(stdoutCh)
	close(stderrCh)
	wg.Wait()

	if execErr != nil {
		pool.EvictIfNetworkError(host, creds, execErr)
		return 0, outBuf.String(), errBuf.String(), execErr
	}
	return result.ExitCode, outBuf.String(), errBuf.String(), nil
}

// runLocal executes the block as a local process.
func (h *scriptHandler) runLocal(ec *execctx.Context, cwd, interpreter, code string) (exitCode int, stdout, stderr string, err error) {
	program, args := sshpool.BuildLocalArgs(interpreter, code)
	// Cancellation is handled explicitly below (SIGTERM to the process
	// group) rather than via exec.CommandContext, which only kills the
	// direct child and would leave grandchildren running.
	cmd := exec.Command(program, args...)
	cmd.Stdin = nil
	if cwd != "" {
		cmd.Dir = cwd
	}
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}

	var outBuf, errBuf bytes.Buffer
	stdoutPipe, err := cmd.StdoutPipe()
	if err != nil {
		return 0, "", "", err
	}
	stderrPipe, err := cmd.StderrPipe()
	if err != nil {
		return 0, "", "", err
	}

	if err := cmd.Start(); err != nil {
		return 0, "", "", err
	}

	var wg sync.WaitGroup
	wg.Add(2)
	go pumpOutput(&wg, stdoutPipe, &outBuf, func(line string) { ec.SendOutput(execctx.BlockOutput{Stdout: &line}) })
	go pumpOutput(&wg, stderrPipe, &errBuf, func(line string) { ec.SendOutput(execctx.BlockOutput{Stderr: &line}) })

	done := make(chan error, 1)
	go func() { done <- cmd.Wait() }()

	select {
	case <-ec.CancellationToken().Done():
		// SIGTERM the process group so children die too; process exit after the
		// signal bounds cancellation liveness.
		if cmd.Process != nil {
			_ = syscall.Kill(-cmd.Process.Pid, syscall.SIGTERM)
		}
		<-done
		wg.Wait()
		return -1, outBuf.String(), errBuf.String(), ec.CancellationToken().Err()
	case waitErr := <-done:
		wg.Wait()
		if waitErr != nil {
			if exitErr, ok := waitErr.(*exec.ExitError); ok {
				return exitErr.ExitCode(), outBuf.String(), errBuf.String(), nil
			}
			return 0, outBuf.String(), errBuf.String(), waitErr
		}
		return 0, outBuf.String(), errBuf.String(), nil
	}
}

var errNoSSHPool = errors.New("block: script requires an ssh host but no ssh pool was configured")

func drainLines(wg *sync.WaitGroup, ch <-chan string, buf *bytes.Buffer, emit func(string)) {
	defer wg.Done()
	for line := range ch {
		buf.WriteString(line)
		emit(line)
	}
}

func pumpOutput(wg *sync.WaitGroup, r io.Reader, buf *bytes.Buffer, emit func(string)) {
	defer wg.Done()
	tmp := make([]byte, 4096)
	for {
		n, err := r.Read(tmp)
		if n > 0 {
			line := string(tmp[:n])
			buf.WriteString(line)
			emit(line)
		}
		if err != nil {
			return
		}
	}
}
