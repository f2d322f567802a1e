package gtpbridge

import "sync"

// Observer receives the public broadcast notifications for every submission.
// Both methods are invoked on the session worker goroutine; for a given
// command, CommandSubmitted always precedes ResponseReceived, and both
// precede CommandSubmitted for the next command.
type Observer interface {
	CommandSubmitted(cmd *Command)
	ResponseReceived(cmd *Command, resp *Response)
}

// observerList is a mutex-guarded observer registry with snapshot fan-out.
type observerList struct {
	mu        sync.RWMutex
	observers []Observer
}

func (l *observerList) add(o Observer) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.observers = append(l.observers, o)
}

func (l *observerList) remove(o Observer) {
	l.mu.Lock()
	defer l.mu.Unlock()
	for i, existing := range l.observers {
		if existing == o {
			l.observers = append(l.observers[:i], l.observers[i+1:]...)
			return
		}
	}
}

func (l *observerList) snapshot() []Observer {
	l.mu.RLock()
	defer l.mu.RUnlock()
	out := make([]Observer, len(l.observers))
	copy(out, l.observers)
	return out
}

func (l *observerList) notifySubmitted(cmd *Command) {
	for _, o := range l.snapshot() {
		o.CommandSubmitted(cmd)
	}
}

func (l *observerList) notifyResponse(cmd *Command, resp *Response) {
	for _, o := range l.snapshot() {
		o.ResponseReceived(cmd, resp)
	}
}
