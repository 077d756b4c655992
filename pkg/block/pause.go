package block

import (
	"os/exec"
	"time"

	"github.com/opsrunbook/engine/pkg/blockcontext"
	"github.com/opsrunbook/engine/pkg/document"
	"github.com/opsrunbook/engine/pkg/execctx"
	"github.com/opsrunbook/engine/pkg/lifecycle"
	"github.com/opsrunbook/engine/pkg/resolver"
	"github.com/opsrunbook/engine/pkg/sshpool"
)

const defaultPausePollInterval = time.Second

// PauseProps is a `pause` block's static configuration. An empty Condition
// is an unconditional pause — the driver halts until an out-of-band resume
// signal reaches the document actor. A non-empty Condition is polled locally
// at PollIntervalMS until it exits zero, at which point the block resumes
// itself.
type PauseProps struct {
	Condition      string `json:"condition,omitempty"`
	PollIntervalMS int    `json:"poll_interval_ms,omitempty"`
}

type pauseHandler struct {
	id    string
	props PauseProps
}

// NewPauseFactory builds the document.Factory for the "pause" block type.
func NewPauseFactory() document.Factory {
	return func(n document.Node) (document.Handler, error) {
		var props PauseProps
		if err := decodeProps(n, &props); err != nil {
			return nil, err
		}
		return &pauseHandler{id: n.ID, props: props}, nil
	}
}

func (h *pauseHandler) PassiveContext(res *resolver.Resolver, local document.LocalValueProvider) (*blockcontext.Context, error) {
	return blockcontext.New(), nil
}

func (h *pauseHandler) Execute(ec *execctx.Context) *lifecycle.Handle {
	go func() {
		ec.BlockStarted()

		if h.props.Condition == "" {
			// Unconditional: Started then Paused, no Finished. Resumption is a
			// separate document-level operation, not modeled by this handler.
			ec.BlockPaused()
			return
		}

		condition, err := ec.ContextResolver().ResolveTemplate(h.props.Condition)
		if err != nil {
			ec.BlockFailed(err.Error())
			return
		}

		interval := time.Duration(h.props.PollIntervalMS) * time.Millisecond
		if interval <= 0 {
			interval = defaultPausePollInterval
		}
		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		cwd := ec.ContextResolver().Cwd()
		for {
			if h.conditionMet(condition, cwd) {
				ec.BlockFinished(nil, true)
				return
			}
			select {
			case <-ec.CancellationToken().Done():
				ec.BlockCancelled()
				return
			case <-ticker.C:
			}
		}
	}()

	return ec.Handle()
}

// conditionMet runs the rendered condition as a shell command locally and
// reports whether it exited zero.
func (h *pauseHandler) conditionMet(condition, cwd string) bool {
	program, args := sshpool.BuildLocalArgs("bash", condition)
	cmd := exec.Command(program, args...)
	if cwd != "" {
		cmd.Dir = cwd
	}
	return cmd.Run() == nil
}
