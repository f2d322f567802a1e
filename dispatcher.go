package gtpbridge

import (
	"log/slog"
	"strings"

	"github.com/gobanlab/gtpbridge-go/pipe"
)

// QuitCommand is the literal command that tears the session down after its
// response has been delivered.
const QuitCommand = "quit"

// InterruptLine is the out-of-band comment line written by Interrupt. The
// engine is expected to treat it as pre-emptive by protocol convention and
// answer the in-flight command immediately with a failure response.
const InterruptLine = "# interrupt"

// Dispatcher is the public submission API of a session. Commands are
// marshaled onto a single worker goroutine, which writes one line to the
// outbound channel, blocks reading the full multi-line response, attaches
// it, and only then accepts the next submission — so commands are strictly
// serialized with at most one in flight, even under concurrent callers.
type Dispatcher struct {
	conn        *pipe.Conn
	submissions chan *Command
	closed      chan struct{}
	observers   observerList
	log         *slog.Logger
}

func newDispatcher(conn *pipe.Conn, log *slog.Logger) *Dispatcher {
	return &Dispatcher{
		conn:        conn,
		submissions: make(chan *Command),
		closed:      make(chan struct{}),
		log:         log,
	}
}

// Submit hands a command to the session worker. A nil command or one with
// empty text is silently ignored, mirroring the behavior the surrounding
// application depends on. For synchronous commands the call blocks until
// the Response has been attached; otherwise it returns immediately and the
// response is delivered via the public notifications and the command's
// private handler.
//
// Submitting after the session has terminated attaches an empty failure
// Response without touching the wire.
func (d *Dispatcher) Submit(cmd *Command) {
	if cmd == nil || cmd.text == "" {
		return
	}
	cmd.prepare()
	select {
	case d.submissions <- cmd:
	case <-d.closed:
		d.log.Warn("command submitted after session end", "text", cmd.text)
		resp := newResponse("", cmd)
		cmd.attach(resp)
		if cmd.handler != nil {
			cmd.handler(resp)
		}
		cmd.finish()
		return
	}
	if cmd.wait {
		<-cmd.done
	}
}

// Exec submits text as a synchronous command and returns its response.
func (d *Dispatcher) Exec(text string) *Response {
	cmd := NewSyncCommand(text)
	d.Submit(cmd)
	return cmd.Response()
}

// Interrupt writes the out-of-band interrupt line directly onto the
// outbound channel from the calling goroutine, bypassing the single-flight
// queue. It unblocks the engine's current computation, which then emits a
// failure response for the interrupted command through the normal pipeline.
//
// Interrupt must not be called from the session worker goroutine (a
// response handler or observer): the worker is blocked reading the response
// and the call would deadlock the session.
func (d *Dispatcher) Interrupt() {
	select {
	case <-d.closed:
		return
	default:
	}
	d.log.Debug("interrupt requested")
	if err := d.conn.WriteLine(InterruptLine); err != nil {
		d.log.Warn("interrupt write failed", "error", err)
	}
}

// AddObserver registers an observer for the public notifications.
func (d *Dispatcher) AddObserver(o Observer) {
	d.observers.add(o)
}

// RemoveObserver unregisters a previously added observer.
func (d *Dispatcher) RemoveObserver(o Observer) {
	d.observers.remove(o)
}

// run is the client worker loop. It processes exactly one command at a
// time: submitted-notification, wire write, blocking response read,
// response-notification, private handler, waiter release. Returns after the
// quit command's response has been delivered.
func (d *Dispatcher) run() {
	defer close(d.closed)
	for cmd := range d.submissions {
		d.observers.notifySubmitted(cmd)
		d.log.Debug("command submitted", "id", cmd.id, "text", cmd.text)

		if err := d.conn.WriteLine(cmd.text); err != nil {
			d.log.Warn("command write failed", "id", cmd.id, "error", err)
		}
		raw := d.readResponse()
		resp := newResponse(raw, cmd)
		if raw == "" {
			d.log.Warn("empty response, engine gone or interrupted stream", "id", cmd.id)
		}

		cmd.attach(resp)
		d.observers.notifyResponse(cmd, resp)
		if cmd.handler != nil {
			cmd.handler(resp)
		}
		cmd.finish()
		d.log.Debug("response received", "id", cmd.id, "success", resp.success)

		if strings.TrimSpace(cmd.text) == QuitCommand {
			d.conn.Writer.Close()
			return
		}
	}
}

// readResponse reads response lines until the terminating blank line. If
// the inbound stream ends first (engine terminated unexpectedly) it returns
// whatever was read, possibly the empty string; callers must treat an empty
// raw response as engine failure, not protocol success.
func (d *Dispatcher) readResponse() string {
	var lines []string
	for {
		line, err := d.conn.Reader.ReadLine()
		if err != nil {
			if line != "" {
				lines = append(lines, line)
			}
			return strings.Join(lines, "\n")
		}
		if line == "" {
			return strings.Join(lines, "\n")
		}
		lines = append(lines, line)
	}
}
