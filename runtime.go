// Package motor is the network core of a Minecraft compatible server. It
// accepts connections, drives each through the login handshake and runs a
// fixed worker pool against a tick loop that pauses every worker once per
// tick.
package motor

import (
	"context"
	"io"
	"sync"
	"sync/atomic"

	"github.com/apex/log"

	"github.com/shykaruu/motor/chat"
	"github.com/shykaruu/motor/crypt"
	"github.com/shykaruu/motor/jobs"
	"github.com/shykaruu/motor/mcproto"
	"github.com/shykaruu/motor/players"
	"github.com/shykaruu/motor/state"
)

// Status is the server lifecycle. It only moves forward.
type Status int32

const (
	StatusStarting Status = iota
	StatusRunning
	StatusStopping
	StatusStopped
)

func (s Status) String() string {
	switch s {
	case StatusStarting:
		return "starting"
	case StatusRunning:
		return "running"
	case StatusStopping:
		return "stopping"
	case StatusStopped:
		return "stopped"
	default:
		return "invalid"
	}
}

var statusTransitions = []state.Transition[Status]{
	{From: StatusStarting, To: StatusRunning, Name: "start"},
	{From: StatusStarting, To: StatusStopping, Name: "abort"},
	{From: StatusRunning, To: StatusStopping, Name: "shutdown"},
	{From: StatusStopping, To: StatusStopped, Name: "stopped"},
}

// Runtime owns the workers, the tick loop, the client registry and the
// stores handed to it in Options.
type Runtime struct {
	opt     Options
	log     log.Interface
	status  *state.Machine[Status]
	board   *jobs.Board
	workers []*Worker
	login   map[LoginState]map[int32]loginHandler
	keys    *crypt.KeyPair
	auth    Authenticator
	players *players.Store
	metrics *metrics
	limiter *acceptLimiter

	ctx    context.Context
	cancel context.CancelFunc

	mu      sync.RWMutex
	clients map[uint32]*Client
	nextID  atomic.Uint32

	lnMu      sync.Mutex
	listeners []interface{ Close() error }

	tickDone     chan struct{}
	shutdownOnce sync.Once
	stopped      chan struct{}
}

// NewRuntime resolves opt and builds a runtime in the starting status.
func NewRuntime(opt Options) (*Runtime, error) {
	if err := opt.resolve(); err != nil {
		return nil, err
	}
	ctx, cancel := context.WithCancel(context.Background())
	rt := &Runtime{
		opt:     opt,
		log:     opt.Log,
		board:   jobs.NewBoard(),
		keys:    opt.KeyPair,
		auth:    opt.Session,
		players: opt.Players,
		metrics: newMetrics(opt.Registerer),
		limiter: newAcceptLimiter(ctx, opt.AcceptRate, opt.AcceptBurst),
		ctx:     ctx,
		cancel:  cancel,
		clients: make(map[uint32]*Client),
		stopped: make(chan struct{}),
	}
	rt.status = state.NewForward(StatusStarting, statusTransitions, func(from, to Status, name string) {
		rt.log.WithFields(log.Fields{"from": from, "to": to}).Info(name)
	})
	rt.login = rt.buildLoginHandlers()
	for i := range opt.Workers {
		rt.workers = append(rt.workers, newWorker(i))
	}
	return rt, nil
}

// Status returns the lifecycle status.
func (rt *Runtime) Status() Status { return rt.status.Current() }

// stopping reports whether shutdown has begun.
func (rt *Runtime) stopping() bool { return state.Reached(rt.status, StatusStopping) }

// Board returns the job board shared by the workers.
func (rt *Runtime) Board() *jobs.Board { return rt.board }

// KeyPair returns the login keypair.
func (rt *Runtime) KeyPair() *crypt.KeyPair { return rt.keys }

// Start launches the workers and the tick loop and moves to running.
func (rt *Runtime) Start() error {
	if err := rt.status.TransitionTo(StatusRunning); err != nil {
		return ErrNotStarting
	}
	if rt.opt.Hooks.OnEnable != nil {
		rt.opt.Hooks.OnEnable()
	}
	for _, w := range rt.workers {
		go rt.runWorker(w)
	}

	t := &ticker{
		clock:    rt.opt.Clock,
		interval: rt.opt.TickInterval,
		skip:     int64(rt.opt.SkipTicks),
		workers:  rt.workers,
		hook:     rt.opt.Tick,
		log:      rt.log,
		metrics:  rt.metrics,
	}
	rt.tickDone = make(chan struct{})
	go func() {
		defer close(rt.tickDone)
		t.run(func() bool { return rt.Status() == StatusRunning })
	}()

	rt.log.WithFields(log.Fields{
		"workers":  len(rt.workers),
		"online":   rt.opt.OnlineMode,
		"protocol": rt.opt.Protocol,
		"key":      rt.keys.Fingerprint(),
	}).Info("started")
	return nil
}

// Shutdown stops the runtime once; later calls wait for the first to
// finish. It must not be called from a job, since it waits for every
// worker to exit.
func (rt *Runtime) Shutdown() {
	rt.shutdownOnce.Do(rt.shutdown)
	<-rt.stopped
}

// Done is closed when the runtime has stopped.
func (rt *Runtime) Done() <-chan struct{} { return rt.stopped }

func (rt *Runtime) shutdown() {
	defer close(rt.stopped)

	rt.status.MustTransitionTo(StatusStopping)
	rt.closeListeners()
	rt.cancel()

	if rt.tickDone != nil {
		<-rt.tickDone
		// Every worker may be blocked in Take; one noop each wakes them
		// to observe the stopping status.
		for range rt.workers {
			rt.board.Add(jobs.Noop)
		}
		for _, w := range rt.workers {
			<-w.done
		}
	}

	bye := mcproto.LoginDisconnect{Reason: chat.Translate(chat.KeyServerShutdown).JSON()}
	for _, c := range rt.Clients() {
		// Workers have exited, so no job is writing to c.
		if c.Proto() == ProtoLogin {
			c.sendFinal(bye)
		}
		c.Close()
	}

	if rt.opt.Hooks.OnDisable != nil {
		rt.opt.Hooks.OnDisable()
	}
	if cl, ok := rt.auth.(io.Closer); ok {
		if err := cl.Close(); err != nil {
			rt.log.WithError(err).Warn("close session client")
		}
	}
	if rt.players != nil {
		if err := rt.players.Close(); err != nil {
			rt.log.WithError(err).Warn("close player store")
		}
	}
	rt.status.MustTransitionTo(StatusStopped)
}

// register adds a client for conn, or returns nil when stopping.
func (rt *Runtime) register(conn Conn) *Client {
	c := newClient(rt.nextID.Add(1), conn, rt.log)
	c.onClose = rt.unregister

	rt.mu.Lock()
	defer rt.mu.Unlock()
	if rt.stopping() {
		return nil
	}
	rt.clients[c.ID] = c
	return c
}

func (rt *Runtime) unregister(c *Client, prev ProtoState) {
	rt.mu.Lock()
	delete(rt.clients, c.ID)
	rt.mu.Unlock()
	if prev == ProtoPlay {
		rt.metrics.online.Dec()
		rt.opt.Play.Leave(c)
	}
}

// Client returns the connected client with id.
func (rt *Runtime) Client(id uint32) (*Client, bool) {
	rt.mu.RLock()
	defer rt.mu.RUnlock()
	c, ok := rt.clients[id]
	return c, ok
}

// Clients returns a snapshot of connected clients.
func (rt *Runtime) Clients() []*Client {
	rt.mu.RLock()
	defer rt.mu.RUnlock()
	out := make([]*Client, 0, len(rt.clients))
	for _, c := range rt.clients {
		out = append(out, c)
	}
	return out
}

// Online returns the number of clients in the play state.
func (rt *Runtime) Online() int {
	rt.mu.RLock()
	defer rt.mu.RUnlock()
	n := 0
	for _, c := range rt.clients {
		if c.Proto() == ProtoPlay {
			n++
		}
	}
	return n
}
