package gtpbridge

import (
	"io"
	"log/slog"
	"sync"
	"sync/atomic"

	"github.com/gobanlab/gtpbridge-go/pipe"
)

// Engine is the embedded engine's main loop. Run reads command lines from
// conn.Reader and writes status-framed responses to conn.Writer until the
// quit command has been answered (or the input stream ends), then returns.
// The engine is opaque to the bridge; only the wire protocol is shared.
type Engine interface {
	Run(conn *pipe.Conn) error
}

// Option configures a Session.
type Option func(*sessionConfig)

type sessionConfig struct {
	capacity   int
	log        *slog.Logger
	clientConn *pipe.Conn
	engineConn *pipe.Conn
}

// WithLogger sets the structured logger used by the session and its
// dispatcher. The default discards everything.
func WithLogger(log *slog.Logger) Option {
	return func(c *sessionConfig) { c.log = log }
}

// WithCapacity sets the per-direction ByteChannel capacity for the default
// in-memory transport. Ignored when WithConns is given.
func WithCapacity(capacity int) Option {
	return func(c *sessionConfig) { c.capacity = capacity }
}

// WithConns supplies a pre-built transport pair (for example from
// pipe.NewOSPipePair) instead of the default in-memory ByteChannel pair.
func WithConns(client, engine *pipe.Conn) Option {
	return func(c *sessionConfig) {
		c.clientConn = client
		c.engineConn = engine
	}
}

// Session owns one protocol conversation: the duplex link, the engine
// worker driving the embedded engine's run loop, and the client worker
// serving submissions. Sessions are explicit values handed to whoever needs
// the dispatcher; there is no process-wide current session.
//
// Teardown happens only by submitting the quit command through the normal
// pipeline. There is no timeout or liveness check: a hung engine hangs the
// session, and embedders that need a bound can select on Done themselves.
type Session struct {
	dispatcher *Dispatcher
	log        *slog.Logger
	done       chan struct{}
	exited     atomic.Bool
	engineErr  atomic.Pointer[error]
}

// NewSession wires a transport pair, starts the engine worker and the
// client worker, and returns the session handle. Exactly two long-lived
// goroutines are started; both exit after quit has flowed through the
// pipeline (or the engine's Run returns on its own).
func NewSession(engine Engine, opts ...Option) *Session {
	cfg := sessionConfig{capacity: pipe.DefaultCapacity}
	for _, opt := range opts {
		opt(&cfg)
	}
	if cfg.log == nil {
		cfg.log = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	if cfg.clientConn == nil || cfg.engineConn == nil {
		cfg.clientConn, cfg.engineConn = pipe.NewMemoryPair(cfg.capacity)
	}

	s := &Session{
		dispatcher: newDispatcher(cfg.clientConn, cfg.log),
		log:        cfg.log,
		done:       make(chan struct{}),
	}

	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		s.runEngine(engine, cfg.engineConn)
	}()
	go func() {
		defer wg.Done()
		s.dispatcher.run()
		s.exited.Store(true)
	}()
	go func() {
		wg.Wait()
		s.log.Debug("session terminated")
		close(s.done)
	}()
	return s
}

// runEngine drives the opaque engine until its loop returns, then closes
// the response channel's write side so the client worker sees end-of-stream
// instead of blocking forever on a dead engine.
func (s *Session) runEngine(engine Engine, conn *pipe.Conn) {
	err := engine.Run(conn)
	if err != nil {
		s.log.Warn("engine terminated with error", "error", err)
		s.engineErr.Store(&err)
	}
	conn.Writer.Close()
}

// Dispatcher returns the session's submission API.
func (s *Session) Dispatcher() *Dispatcher {
	return s.dispatcher
}

// Done returns a channel closed once both workers have exited.
func (s *Session) Done() <-chan struct{} {
	return s.done
}

// Exited reports whether the client worker's run loop has terminated.
func (s *Session) Exited() bool {
	return s.exited.Load()
}

// EngineErr returns the error the engine's Run returned, if any. Meaningful
// once Done is closed.
func (s *Session) EngineErr() error {
	if p := s.engineErr.Load(); p != nil {
		return *p
	}
	return nil
}
