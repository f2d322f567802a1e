// Package gtplog records a session transcript: one entry per
// command/response exchange, in submission order. The recorder plugs into
// the bridge as an Observer; the transcript can be exported as CBOR for
// inclusion in a diagnostics report and re-imported later.
package gtplog

import (
	"fmt"
	"sync"
	"time"

	"github.com/fxamacker/cbor/v2"
	"github.com/google/uuid"

	gtpbridge "github.com/gobanlab/gtpbridge-go"
)

// DefaultMaxEntries bounds the transcript; the oldest entries are evicted
// first once the bound is reached.
const DefaultMaxEntries = 1000

// Entry is one recorded command/response exchange.
type Entry struct {
	ID          uuid.UUID `cbor:"id"`
	Command     string    `cbor:"command"`
	Response    string    `cbor:"response"`
	Succeeded   bool      `cbor:"succeeded"`
	SubmittedAt time.Time `cbor:"submitted_at"`
	CompletedAt time.Time `cbor:"completed_at"`
}

// Recorder implements gtpbridge.Observer. Notifications arrive on the
// session worker goroutine in strict submitted/response order; the mutex
// exists because Entries, Clear and the export methods may be called from
// anywhere.
type Recorder struct {
	mu         sync.Mutex
	entries    []Entry
	pending    map[uuid.UUID]time.Time
	maxEntries int
	now        func() time.Time
}

// NewRecorder creates a Recorder bounded to maxEntries; zero or below
// selects DefaultMaxEntries.
func NewRecorder(maxEntries int) *Recorder {
	if maxEntries <= 0 {
		maxEntries = DefaultMaxEntries
	}
	return &Recorder{
		pending:    make(map[uuid.UUID]time.Time),
		maxEntries: maxEntries,
		now:        time.Now,
	}
}

// CommandSubmitted implements gtpbridge.Observer.
func (r *Recorder) CommandSubmitted(cmd *gtpbridge.Command) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.pending[cmd.ID()] = r.now()
}

// ResponseReceived implements gtpbridge.Observer.
func (r *Recorder) ResponseReceived(cmd *gtpbridge.Command, resp *gtpbridge.Response) {
	r.mu.Lock()
	defer r.mu.Unlock()
	submitted := r.pending[cmd.ID()]
	delete(r.pending, cmd.ID())
	r.entries = append(r.entries, Entry{
		ID:          cmd.ID(),
		Command:     cmd.Text(),
		Response:    resp.Raw(),
		Succeeded:   resp.Success(),
		SubmittedAt: submitted,
		CompletedAt: r.now(),
	})
	if len(r.entries) > r.maxEntries {
		r.entries = r.entries[len(r.entries)-r.maxEntries:]
	}
}

// Entries returns a copy of the transcript in submission order.
func (r *Recorder) Entries() []Entry {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Entry, len(r.entries))
	copy(out, r.entries)
	return out
}

// Len returns the number of recorded entries.
func (r *Recorder) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.entries)
}

// Clear drops all recorded entries.
func (r *Recorder) Clear() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.entries = nil
}

// ExportCBOR encodes the transcript as a CBOR array of entries.
func (r *Recorder) ExportCBOR() ([]byte, error) {
	entries := r.Entries()
	data, err := cbor.Marshal(entries)
	if err != nil {
		return nil, fmt.Errorf("failed to encode transcript: %w", err)
	}
	return data, nil
}

// ImportCBOR decodes a transcript previously produced by ExportCBOR.
func ImportCBOR(data []byte) ([]Entry, error) {
	var entries []Entry
	if err := cbor.Unmarshal(data, &entries); err != nil {
		return nil, fmt.Errorf("failed to decode transcript: %w", err)
	}
	return entries, nil
}
