package gtpbridge_test

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	gtpbridge "github.com/gobanlab/gtpbridge-go"
	"github.com/gobanlab/gtpbridge-go/engine"
	"github.com/gobanlab/gtpbridge-go/pipe"
)

// newTestEngine builds a runtime with the handlers the tests exercise.
// hangStarted, if non-nil, receives once the hang handler is in flight.
func newTestEngine(hangStarted chan<- struct{}) *engine.Runtime {
	rt := engine.NewRuntime()
	rt.Register("echo", func(ctx context.Context, args []string) (string, error) {
		return strings.Join(args, " "), nil
	})
	rt.Register("fail", func(ctx context.Context, args []string) (string, error) {
		return "", errors.New("simulated failure")
	})
	rt.Register("multiline", func(ctx context.Context, args []string) (string, error) {
		return "first\nsecond", nil
	})
	rt.Register("hang", func(ctx context.Context, args []string) (string, error) {
		if hangStarted != nil {
			hangStarted <- struct{}{}
		}
		<-ctx.Done()
		return "", errors.New("interrupted")
	})
	return rt
}

// recordingObserver captures the notification stream as ordered strings.
type recordingObserver struct {
	mu     sync.Mutex
	events []string
}

func (o *recordingObserver) CommandSubmitted(cmd *gtpbridge.Command) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.events = append(o.events, "submitted:"+cmd.Text())
}

func (o *recordingObserver) ResponseReceived(cmd *gtpbridge.Command, resp *gtpbridge.Response) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.events = append(o.events, "response:"+cmd.Text())
}

func (o *recordingObserver) Events() []string {
	o.mu.Lock()
	defer o.mu.Unlock()
	out := make([]string, len(o.events))
	copy(out, o.events)
	return out
}

func waitDone(t *testing.T, s *gtpbridge.Session) {
	t.Helper()
	select {
	case <-s.Done():
	case <-time.After(2 * time.Second):
		t.Fatal("session did not terminate")
	}
}

func TestExecRoundTrip(t *testing.T) {
	s := gtpbridge.NewSession(newTestEngine(nil))
	d := s.Dispatcher()

	resp := d.Exec("echo hello world")
	require.NotNil(t, resp)
	assert.True(t, resp.Success())
	assert.Equal(t, "hello world", resp.Body())

	d.Exec("quit")
	waitDone(t, s)
}

func TestExecFailureStatus(t *testing.T) {
	s := gtpbridge.NewSession(newTestEngine(nil))
	d := s.Dispatcher()

	resp := d.Exec("fail now")
	require.NotNil(t, resp)
	assert.False(t, resp.Success())
	assert.Equal(t, "simulated failure", resp.Body())

	d.Exec("quit")
	waitDone(t, s)
}

func TestUnknownCommandIsProtocolFailure(t *testing.T) {
	s := gtpbridge.NewSession(newTestEngine(nil))
	d := s.Dispatcher()

	resp := d.Exec("no_such_command")
	require.NotNil(t, resp)
	assert.False(t, resp.Success())
	assert.Equal(t, "unknown command", resp.Body())

	d.Exec("quit")
	waitDone(t, s)
}

func TestMultilineResponseBody(t *testing.T) {
	s := gtpbridge.NewSession(newTestEngine(nil))
	d := s.Dispatcher()

	resp := d.Exec("multiline")
	require.NotNil(t, resp)
	assert.True(t, resp.Success())
	assert.Equal(t, "first\nsecond", resp.Body())

	d.Exec("quit")
	waitDone(t, s)
}

// For sequential synchronous submissions the notification stream must be
// exactly submitted-1, response-1, submitted-2, response-2, ...
func TestNotificationOrdering(t *testing.T) {
	s := gtpbridge.NewSession(newTestEngine(nil))
	d := s.Dispatcher()
	obs := &recordingObserver{}
	d.AddObserver(obs)

	var want []string
	for i := 0; i < 5; i++ {
		text := fmt.Sprintf("echo seq-%d", i)
		resp := d.Exec(text)
		require.True(t, resp.Success())
		want = append(want, "submitted:"+text, "response:"+text)
	}

	assert.Equal(t, want, obs.Events())

	d.RemoveObserver(obs)
	d.Exec("quit")
	waitDone(t, s)
	assert.Equal(t, want, obs.Events(), "removed observer must see no further events")
}

// Concurrent synchronous submitters must each get their own intact
// response: one command in flight at a time, no interleaved bodies.
func TestSingleFlightConcurrentSubmitters(t *testing.T) {
	s := gtpbridge.NewSession(newTestEngine(nil))
	d := s.Dispatcher()

	const workers = 4
	const iterations = 25
	var wg sync.WaitGroup
	wg.Add(workers)
	for w := 0; w < workers; w++ {
		go func(w int) {
			defer wg.Done()
			for i := 0; i < iterations; i++ {
				payload := fmt.Sprintf("payload-%d-%d", w, i)
				resp := d.Exec("echo " + payload)
				if !resp.Success() {
					t.Errorf("worker %d: unexpected failure: %q", w, resp.Raw())
					return
				}
				if resp.Body() != payload {
					t.Errorf("worker %d: got body %q, want %q", w, resp.Body(), payload)
					return
				}
			}
		}(w)
	}
	wg.Wait()

	d.Exec("quit")
	waitDone(t, s)
}

func TestAsyncCommandHandler(t *testing.T) {
	s := gtpbridge.NewSession(newTestEngine(nil))
	d := s.Dispatcher()

	got := make(chan *gtpbridge.Response, 1)
	cmd := gtpbridge.NewAsyncCommand("echo async", func(resp *gtpbridge.Response) {
		got <- resp
	})
	d.Submit(cmd)

	select {
	case resp := <-got:
		assert.True(t, resp.Success())
		assert.Equal(t, "async", resp.Body())
	case <-time.After(2 * time.Second):
		t.Fatal("handler never fired")
	}

	select {
	case <-cmd.Done():
	case <-time.After(2 * time.Second):
		t.Fatal("command never completed")
	}
	require.NotNil(t, cmd.Response())
	assert.Equal(t, "async", cmd.Response().Body())

	d.Exec("quit")
	waitDone(t, s)
}

// Nil commands and empty command text are silently ignored.
func TestEmptyCommandNoop(t *testing.T) {
	s := gtpbridge.NewSession(newTestEngine(nil))
	d := s.Dispatcher()
	obs := &recordingObserver{}
	d.AddObserver(obs)

	d.Submit(nil)
	d.Submit(gtpbridge.NewSyncCommand(""))

	resp := d.Exec("echo still-alive")
	require.True(t, resp.Success())
	events := obs.Events()
	assert.Equal(t, []string{"submitted:echo still-alive", "response:echo still-alive"}, events)

	d.Exec("quit")
	waitDone(t, s)
}

func TestQuitTerminatesBothWorkers(t *testing.T) {
	s := gtpbridge.NewSession(newTestEngine(nil))
	d := s.Dispatcher()

	assert.False(t, s.Exited())
	resp := d.Exec("quit")
	require.NotNil(t, resp)
	assert.True(t, resp.Success())

	waitDone(t, s)
	assert.True(t, s.Exited())
	assert.NoError(t, s.EngineErr())
}

func TestSubmitAfterQuitDegrades(t *testing.T) {
	s := gtpbridge.NewSession(newTestEngine(nil))
	d := s.Dispatcher()
	d.Exec("quit")
	waitDone(t, s)

	resp := d.Exec("echo too-late")
	require.NotNil(t, resp)
	assert.False(t, resp.Success())
	assert.Equal(t, "", resp.Raw())
}

// Interrupt pre-empts the in-flight command: the hang handler only returns
// once its context is canceled, so a failure response arriving at all
// proves the interrupt reached the engine mid-command.
func TestInterruptPreemptsInFlightCommand(t *testing.T) {
	started := make(chan struct{})
	s := gtpbridge.NewSession(newTestEngine(started))
	d := s.Dispatcher()

	cmd := gtpbridge.NewCommand("hang")
	d.Submit(cmd)

	select {
	case <-started:
	case <-time.After(2 * time.Second):
		t.Fatal("hang handler never started")
	}
	d.Interrupt()

	select {
	case <-cmd.Done():
	case <-time.After(2 * time.Second):
		t.Fatal("interrupted command never completed")
	}
	resp := cmd.Response()
	require.NotNil(t, resp)
	assert.False(t, resp.Success())
	assert.Equal(t, "interrupted", resp.Body())

	d.Exec("quit")
	waitDone(t, s)
}

// deadEngine exits without reading anything, simulating an engine that
// terminated unexpectedly.
type deadEngine struct{}

func (deadEngine) Run(conn *pipe.Conn) error { return nil }

func TestEngineDeathYieldsEmptyFailureResponse(t *testing.T) {
	s := gtpbridge.NewSession(deadEngine{})
	d := s.Dispatcher()

	resp := d.Exec("echo anyone-there")
	require.NotNil(t, resp)
	assert.False(t, resp.Success())
	assert.Equal(t, "", resp.Raw())

	// Teardown still flows through the normal quit pipeline.
	d.Exec("quit")
	waitDone(t, s)
}

func TestSessionOverOSPipeTransport(t *testing.T) {
	client, engineConn, err := pipe.NewOSPipePair()
	require.NoError(t, err)

	s := gtpbridge.NewSession(newTestEngine(nil), gtpbridge.WithConns(client, engineConn))
	d := s.Dispatcher()

	resp := d.Exec("echo over-os-pipes")
	require.NotNil(t, resp)
	assert.True(t, resp.Success())
	assert.Equal(t, "over-os-pipes", resp.Body())

	d.Exec("quit")
	waitDone(t, s)
}

func TestSessionLogging(t *testing.T) {
	var buf bytes.Buffer
	var mu sync.Mutex
	logger := slog.New(slog.NewTextHandler(&lockedWriter{w: &buf, mu: &mu}, &slog.HandlerOptions{Level: slog.LevelDebug}))

	s := gtpbridge.NewSession(newTestEngine(nil), gtpbridge.WithLogger(logger))
	d := s.Dispatcher()
	d.Exec("echo logged")
	d.Exec("quit")
	waitDone(t, s)

	mu.Lock()
	out := buf.String()
	mu.Unlock()
	assert.Contains(t, out, "command submitted")
	assert.Contains(t, out, "response received")
}

// lockedWriter serializes the two worker goroutines' log writes.
type lockedWriter struct {
	w  *bytes.Buffer
	mu *sync.Mutex
}

func (l *lockedWriter) Write(p []byte) (int, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.w.Write(p)
}
