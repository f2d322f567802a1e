package gtpbridge

import (
	"github.com/google/uuid"
)

// ResponseHandler is the typed callback attached to an asynchronous Command.
// It runs on the session worker goroutine after both public notifications
// for the command have fired.
type ResponseHandler func(*Response)

// Command is a single protocol command: one line of text plus submission
// mode. A Command is associated with at most one in-flight submission at a
// time; reusing it concurrently is a caller bug. After completion the
// attached Response is retrievable from the Command and the same value may
// be submitted again.
type Command struct {
	id      uuid.UUID
	text    string
	wait    bool
	handler ResponseHandler

	// Set by the dispatcher worker; visible to callers via Done ordering.
	response *Response
	done     chan struct{}
}

// NewCommand creates an asynchronous command with no private callback.
// Completion is observable through Done, Response, or a registered Observer.
func NewCommand(text string) *Command {
	return &Command{id: uuid.New(), text: text}
}

// NewSyncCommand creates a command whose submission blocks the calling
// goroutine until the response has been attached.
func NewSyncCommand(text string) *Command {
	return &Command{id: uuid.New(), text: text, wait: true}
}

// NewAsyncCommand creates an asynchronous command with a private response
// handler.
func NewAsyncCommand(text string, handler ResponseHandler) *Command {
	return &Command{id: uuid.New(), text: text, handler: handler}
}

// ID returns the command's correlation id.
func (c *Command) ID() uuid.UUID {
	return c.id
}

// Text returns the command line.
func (c *Command) Text() string {
	return c.text
}

// Synchronous reports whether submission blocks until the response arrives.
func (c *Command) Synchronous() bool {
	return c.wait
}

// Done returns a channel that is closed once the response has been
// attached. It is nil before the command has ever been submitted.
func (c *Command) Done() <-chan struct{} {
	return c.done
}

// Response returns the attached response, or nil before completion.
func (c *Command) Response() *Response {
	select {
	case <-c.done:
		return c.response
	default:
		return nil
	}
}

// prepare resets per-submission state. Called by the dispatcher on the
// submitting goroutine before handing the command to the worker.
func (c *Command) prepare() {
	c.response = nil
	c.done = make(chan struct{})
}

// attach stores the response; waiters stay blocked until finish.
func (c *Command) attach(resp *Response) {
	c.response = resp
}

// finish releases waiters. Called after the notifications and the private
// handler have run.
func (c *Command) finish() {
	close(c.done)
}
