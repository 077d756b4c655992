// Package sshpool implements the SSH session and pool collaborator: a single
// actor serializing connect/disconnect/exec/pty operations over a cache of
// authenticated sessions keyed by "<user>@<host>", with a periodic keepalive
// ticker evicting dead sessions.
package sshpool

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"
)

// HealthCheckInterval is how often the pool pings idle sessions.
const HealthCheckInterval = 2 * time.Minute

var errPoolClosed = errors.New("sshpool: pool is shut down")

type entryState string

const (
	stateConnecting entryState = "connecting"
	stateReady      entryState = "ready"
)

// entry tracks one pooled session's lifecycle state. Owned by the actor
// goroutine; nothing outside run() (or Shutdown, after run has exited)
// touches it. A session whose keepalive fails is evicted outright rather
// than lingering in a dead state.
type entry struct {
	session *Session
	state   entryState

	// waiters holds the reply channel of every caller awaiting the
	// in-flight handshake, the dialer's own included. Each channel is
	// buffered so publishing never blocks the actor.
	waiters []chan connectResult
}

type connectResult struct {
	session *Session
	err     error
}

// Pool is an actor-managed cache of authenticated SSH sessions keyed by
// "user@host". Every command — connect, disconnect, health check, size —
// goes through the one mailbox and is applied serially by run(); sessions
// themselves serve exec/PTY calls concurrently once handed out.
type Pool struct {
	log     *slog.Logger
	mailbox chan func()
	entries map[string]*entry // actor-owned

	wg       sync.WaitGroup
	stop     chan struct{}
	stopOnce sync.Once
}

// NewPool starts a Pool actor with its keepalive ticker running.
func NewPool(log *slog.Logger) *Pool {
	if log == nil {
		log = slog.Default()
	}
	p := &Pool{
		log:     log.With("component", "sshpool"),
		mailbox: make(chan func(), 64),
		entries: make(map[string]*entry),
		stop:    make(chan struct{}),
	}
	p.wg.Add(2)
	go p.run()
	go p.healthCheckLoop()
	return p
}

// run is the single-writer actor loop: every mutation of p.entries happens
// inside a closure dequeued here.
func (p *Pool) run() {
	defer p.wg.Done()
	for {
		select {
		case <-p.stop:
			return
		case fn := <-p.mailbox:
			fn()
		}
	}
}

// submit enqueues fn for the actor and reports whether it was accepted.
// Callers that need a result pass a buffered channel inside fn and receive
// from it, as the exported methods below do.
func (p *Pool) submit(fn func()) bool {
	select {
	case p.mailbox <- fn:
		return true
	case <-p.stop:
		return false
	}
}

// Shutdown stops the actor, runs any commands it had already accepted, and
// closes every pooled session.
func (p *Pool) Shutdown() {
	p.stopOnce.Do(func() { close(p.stop) })
	p.wg.Wait()
	// The actor has exited; this goroutine is now the sole owner of
	// p.entries. Drain leftover closures first so a handshake that
	// finished during shutdown still lands in the map and gets closed.
	for {
		select {
		case fn := <-p.mailbox:
			fn()
		default:
			for key, e := range p.entries {
				if e.session != nil {
					_ = e.session.Close()
				}
				delete(p.entries, key)
			}
			return
		}
	}
}

// Connect returns the pooled session for target, dialing and authenticating
// a new one if absent. Concurrent callers for the same key share one
// handshake. Cancelling ctx mid-handshake tears the nascent session down
// and forgets the key.
func (p *Pool) Connect(ctx context.Context, target string, creds Credentials) (*Session, error) {
	key := poolKey(target, creds)
	resultCh := make(chan connectResult, 1)
	owns := make(chan bool, 1)

	var fresh *entry
	if !p.submit(func() {
		e, ok := p.entries[key]
		switch {
		case ok && e.state == stateReady:
			resultCh <- connectResult{session: e.session}
			owns <- false
		case ok: // connecting: join the in-flight handshake
			e.waiters = append(e.waiters, resultCh)
			owns <- false
		default:
			fresh = &entry{state: stateConnecting, waiters: []chan connectResult{resultCh}}
			p.entries[key] = fresh
			owns <- true
		}
	}) {
		return nil, errPoolClosed
	}

	var dialing bool
	select {
	case dialing = <-owns:
	case <-p.stop:
		return nil, errPoolClosed
	}

	if dialing {
		// The handshake itself runs here, outside the actor, so a slow
		// dial never stalls other keys' commands; only the settle step
		// below goes back through the mailbox. Settling is keyed on the
		// entry this caller claimed, so a disconnect-then-reconnect race
		// can never hand this handshake's result to a newer entry.
		session, err := Dial(ctx, ConnectParams{Target: target, Credentials: creds}, p.log)
		if !p.submit(func() { p.settleConnect(key, fresh, session, err) }) {
			if session != nil {
				_ = session.Close()
			}
			return nil, errPoolClosed
		}
	}

	select {
	case res := <-resultCh:
		return res.session, res.err
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-p.stop:
		return nil, errPoolClosed
	}
}

// settleConnect runs on the actor goroutine: record the handshake's outcome
// on the entry the dialer claimed and publish it to every waiter. A failed
// or disowned handshake forgets the key.
func (p *Pool) settleConnect(key string, e *entry, session *Session, err error) {
	if p.entries[key] != e {
		// Disconnected (and possibly re-dialed under a fresh entry) while
		// this handshake was in flight: the pool no longer wants this
		// session, and Disconnect already answered e's waiters when it
		// removed the entry.
		if session != nil {
			_ = session.Close()
		}
		return
	}

	waiters := e.waiters
	e.waiters = nil

	if err != nil {
		delete(p.entries, key)
		for _, w := range waiters {
			w <- connectResult{err: err}
		}
		return
	}

	e.session = session
	e.state = stateReady
	p.log.Info("sshpool: session ready", "pool_key", key)
	for _, w := range waiters {
		w <- connectResult{session: session}
	}
}

// Disconnect closes and evicts the session for target, if any. Removing an
// entry whose handshake is still in flight notifies its waiters; the
// session itself is closed by settleConnect when the dial returns.
func (p *Pool) Disconnect(target string, creds Credentials) {
	key := poolKey(target, creds)
	closing := make(chan *Session, 1)
	if !p.submit(func() {
		e, ok := p.entries[key]
		if !ok {
			closing <- nil
			return
		}
		delete(p.entries, key)
		if e.state == stateConnecting {
			for _, w := range e.waiters {
				w <- connectResult{err: fmt.Errorf("sshpool: %s disconnected during connect", key)}
			}
			e.waiters = nil
			closing <- nil
			return
		}
		closing <- e.session
	}) {
		return
	}
	select {
	case s := <-closing:
		if s != nil {
			_ = s.Close()
		}
	case <-p.stop:
	}
}

// EvictIfNetworkError removes and closes the session for target iff err is
// network-shaped.
func (p *Pool) EvictIfNetworkError(target string, creds Credentials, err error) {
	if !IsNetworkShaped(err) {
		return
	}
	p.Disconnect(target, creds)
}

func poolKey(target string, creds Credentials) string {
	user, host, _ := parseConnectString(target)
	if user == "" {
		user = defaultOSUser()
	}
	return fmt.Sprintf("%s@%s", user, host)
}

func (p *Pool) healthCheckLoop() {
	defer p.wg.Done()
	ticker := time.NewTicker(HealthCheckInterval)
	defer ticker.Stop()
	for {
		select {
		case <-p.stop:
			return
		case <-ticker.C:
			p.runHealthCheck()
		}
	}
}

// runHealthCheck pings every ready session, evicting and closing any that
// fail. The ready snapshot and each eviction go through the mailbox; the
// keepalive round trips themselves happen outside the actor so a slow
// session never stalls connects.
func (p *Pool) runHealthCheck() {
	type probe struct {
		key     string
		session *Session
	}
	snapshot := make(chan []probe, 1)
	if !p.submit(func() {
		var ready []probe
		for key, e := range p.entries {
			if e.state == stateReady {
				ready = append(ready, probe{key: key, session: e.session})
			}
		}
		snapshot <- ready
	}) {
		return
	}

	var probes []probe
	select {
	case probes = <-snapshot:
	case <-p.stop:
		return
	}

	for _, pr := range probes {
		if pr.session.SendKeepalive() {
			continue
		}
		p.log.Info("sshpool: evicting dead session", "pool_key", pr.key)
		key, dead := pr.key, pr.session
		p.submit(func() {
			if e, ok := p.entries[key]; ok && e.session == dead {
				delete(p.entries, key)
			}
		})
		_ = dead.Close()
	}
}

// Size returns the number of pooled entries, for tests/metrics.
func (p *Pool) Size() int {
	res := make(chan int, 1)
	if !p.submit(func() { res <- len(p.entries) }) {
		return 0
	}
	select {
	case n := <-res:
		return n
	case <-p.stop:
		return 0
	}
}
