package pipe

import (
	"io"
	"sync"
)

// DefaultCapacity is the buffer size used when no explicit capacity is given (16 KiB)
const DefaultCapacity int = 16_384

// ByteChannel is a bounded in-memory pipe between exactly one writer
// goroutine and exactly one reader goroutine.
//
// Written bytes become visible to the reader only when the writer calls
// Flush, or when the buffer fills up. A write that does not fit publishes
// everything buffered, blocks until the reader has consumed all of it, then
// restarts at the beginning of the buffer with the remainder — wrap-around
// by reset rather than by ring arithmetic.
//
// The reader's cursor advances without taking the mutex while it stays
// inside the most recently adopted limit; the mutex guards only the
// published-limit handoff, the reset flag, and blocking. Using a ByteChannel
// from more than one writer or more than one reader is a caller bug and is
// not defended against.
type ByteChannel struct {
	mu        sync.Mutex
	dataReady *sync.Cond // writer → reader: new bytes published
	drained   *sync.Cond // reader → writer: everything published was consumed

	buf []byte

	// Writer-owned.
	w int // write cursor

	// Reader-owned hot path. Touched without the mutex.
	r     int // read cursor
	limit int // adopted copy of pubLimit

	// Shared handoff metadata, guarded by mu.
	pubLimit int  // bytes visible to the reader
	reset    bool // writer wrapped; reader restarts at offset 0
	caughtUp bool // reader consumed everything published
	closed   bool
}

// NewByteChannel creates a ByteChannel with the given capacity in bytes.
// Capacity zero or below selects DefaultCapacity.
func NewByteChannel(capacity int) *ByteChannel {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	c := &ByteChannel{buf: make([]byte, capacity)}
	c.dataReady = sync.NewCond(&c.mu)
	c.drained = sync.NewCond(&c.mu)
	return c
}

// Capacity returns the fixed buffer size.
func (c *ByteChannel) Capacity() int {
	return len(c.buf)
}

// Write copies p into the buffer. When p fits in the remaining space the
// call returns immediately without waking anyone; visibility is deferred to
// the next Flush. When the buffer fills, Write publishes everything buffered
// so far, blocks until the reader has consumed all of it, resets the write
// cursor to the start, and continues with the remainder.
//
// Returns io.ErrClosedPipe if the channel was closed, including while
// blocked on a full buffer.
func (c *ByteChannel) Write(p []byte) (int, error) {
	// The entry lock doubles as the ordering point that lets an occasional
	// out-of-band writer goroutine (the interrupt path) observe the cursor
	// left behind by the regular writer's last Flush.
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return 0, io.ErrClosedPipe
	}
	c.mu.Unlock()

	total := 0
	for {
		n := copy(c.buf[c.w:], p)
		c.w += n
		total += n
		p = p[n:]
		if len(p) == 0 {
			return total, nil
		}

		// Buffer full: hand everything to the reader and wait for it to drain.
		c.mu.Lock()
		c.pubLimit = c.w
		c.caughtUp = false
		c.dataReady.Signal()
		for !c.caughtUp && !c.closed {
			c.drained.Wait()
		}
		if c.closed {
			c.mu.Unlock()
			return total, io.ErrClosedPipe
		}
		// Everything consumed; restart at the beginning of the buffer.
		c.w = 0
		c.pubLimit = 0
		c.reset = true
		c.mu.Unlock()
	}
}

// Flush makes everything written so far visible to the reader. It is a
// no-op when nothing was written since the last publish, so idle flushes do
// not wake the reader spuriously.
func (c *ByteChannel) Flush() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return io.ErrClosedPipe
	}
	if c.w == c.pubLimit {
		return nil
	}
	c.pubLimit = c.w
	c.dataReady.Signal()
	return nil
}

// Close closes the write side. Pending bytes stay readable; once the reader
// drains them it gets io.EOF. A writer blocked on a full buffer is released
// with io.ErrClosedPipe.
func (c *ByteChannel) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return nil
	}
	c.closed = true
	c.pubLimit = c.w
	c.dataReady.Signal()
	c.drained.Signal()
	return nil
}

// ReadByte reads a single byte, blocking until the writer publishes data.
// Returns io.EOF after the channel is closed and drained.
func (c *ByteChannel) ReadByte() (byte, error) {
	if c.r < c.limit {
		b := c.buf[c.r]
		c.r++
		return b, nil
	}
	if err := c.adopt(); err != nil {
		return 0, err
	}
	b := c.buf[c.r]
	c.r++
	return b, nil
}

// ReadLine reads bytes up to and including the next '\n' and returns the
// line without the newline. Blocks as needed. If the channel closes before
// a newline arrives, the partial line is returned together with io.EOF; a
// clean close at a line boundary returns ("", io.EOF).
func (c *ByteChannel) ReadLine() (string, error) {
	var line []byte
	for {
		b, err := c.ReadByte()
		if err != nil {
			return string(line), err
		}
		if b == '\n' {
			return string(line), nil
		}
		line = append(line, b)
	}
}

// adopt blocks until newly published bytes are available and adopts the new
// limit (and reset offset, if the writer wrapped). Called only when the
// reader has exhausted its adopted region.
func (c *ByteChannel) adopt() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	for {
		if c.reset {
			c.r = 0
			c.limit = 0
			c.reset = false
		}
		if c.pubLimit > c.r {
			c.limit = c.pubLimit
			return nil
		}
		// Nothing visible: report full drain to a possibly-blocked writer.
		c.caughtUp = true
		c.drained.Signal()
		if c.closed {
			return io.EOF
		}
		c.dataReady.Wait()
	}
}
