// Package engine provides a line-loop runtime for the engine side of a
// session: it reads command lines, dispatches them to registered handler
// functions, and frames the status-sigil responses. Embedders with a real
// engine can implement gtpbridge.Engine directly; the runtime exists for
// engines written in Go and for exercising the bridge in tests.
package engine

import (
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/gobanlab/gtpbridge-go/pipe"
)

// HandlerFunc handles one command. args are the whitespace-split tokens
// after the command name. The context is canceled when an interrupt line
// arrives while the handler is running; long computations should watch it
// and return early. A non-nil error produces a failure response carrying
// the error text.
type HandlerFunc func(ctx context.Context, args []string) (string, error)

// Runtime dispatches command lines to registered handlers.
//
// The read loop keeps running while a handler executes (the handler runs in
// its own goroutine), which is what lets the out-of-band interrupt line be
// seen mid-command. The dispatcher upstream guarantees a single command in
// flight; the loop still joins the previous handler before dispatching the
// next one.
type Runtime struct {
	handlers map[string]HandlerFunc
}

// NewRuntime creates an empty runtime.
func NewRuntime() *Runtime {
	return &Runtime{handlers: make(map[string]HandlerFunc)}
}

// Register installs the handler for a command name, replacing any previous
// registration. Not safe to call concurrently with Run.
func (rt *Runtime) Register(name string, h HandlerFunc) {
	rt.handlers[name] = h
}

// Run implements gtpbridge.Engine. It reads lines from conn.Reader until
// the quit command has been answered or the stream ends. Blank lines are
// ignored. Comment lines (leading '#') are ignored, except the interrupt
// token, which cancels the in-flight handler's context.
func (rt *Runtime) Run(conn *pipe.Conn) error {
	var (
		inflight chan struct{} // closed when the current handler finishes
		cancel   context.CancelFunc
	)
	join := func() {
		if inflight != nil {
			<-inflight
			inflight = nil
			cancel = nil
		}
	}

	for {
		line, err := conn.Reader.ReadLine()
		if err != nil {
			join()
			if err == io.EOF {
				return nil
			}
			return fmt.Errorf("command stream failed: %w", err)
		}
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		if strings.HasPrefix(line, "#") {
			if isInterrupt(line) && cancel != nil {
				cancel()
			}
			continue
		}

		join()

		if line == "quit" {
			return writeResponse(conn, true, "")
		}

		name, args := splitCommand(line)
		handler, ok := rt.handlers[name]
		if !ok {
			if err := writeResponse(conn, false, "unknown command"); err != nil {
				return err
			}
			continue
		}

		ctx, cancelFn := context.WithCancel(context.Background())
		done := make(chan struct{})
		inflight, cancel = done, cancelFn
		go func() {
			defer close(done)
			defer cancelFn()
			result, err := handler(ctx, args)
			if err != nil {
				writeResponse(conn, false, err.Error())
				return
			}
			writeResponse(conn, true, result)
		}()
	}
}

// isInterrupt recognizes the out-of-band interrupt comment line.
func isInterrupt(line string) bool {
	return strings.TrimSpace(strings.TrimPrefix(line, "#")) == "interrupt"
}

// splitCommand splits a command line into name and argument tokens.
func splitCommand(line string) (string, []string) {
	fields := strings.Fields(line)
	return fields[0], fields[1:]
}

// writeResponse frames a response: status sigil, space, body (which may
// span multiple lines), then the terminating blank line.
func writeResponse(conn *pipe.Conn, ok bool, body string) error {
	sigil := "="
	if !ok {
		sigil = "?"
	}
	var msg string
	if body == "" {
		msg = sigil + "\n\n"
	} else {
		msg = sigil + " " + body + "\n\n"
	}
	if _, err := io.WriteString(conn.Writer, msg); err != nil {
		return err
	}
	return conn.Writer.Flush()
}
