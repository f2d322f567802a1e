package pipe

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"strings"
)

// LineReader is the read end of one direction of a duplex connection.
type LineReader interface {
	// ReadLine returns the next newline-terminated line without the newline.
	// It blocks until a full line is available and returns io.EOF when the
	// stream ends (with any partial final line).
	ReadLine() (string, error)
}

// FlushWriter is the write end of one direction of a duplex connection.
// Writes may be buffered; Flush makes them visible to the peer.
type FlushWriter interface {
	io.Writer
	Flush() error
	Close() error
}

// Conn is one endpoint of a duplex link: lines arrive on Reader, bytes leave
// through Writer. A session uses two Conns, one per side, wired so that each
// side's Writer feeds the other side's Reader.
type Conn struct {
	Reader LineReader
	Writer FlushWriter
}

// WriteLine writes a single line plus newline and flushes it, making the
// line immediately visible to the peer.
func (c *Conn) WriteLine(line string) error {
	if strings.ContainsRune(line, '\n') {
		return fmt.Errorf("line contains embedded newline: %q", line)
	}
	if _, err := io.WriteString(c.Writer, line+"\n"); err != nil {
		return err
	}
	return c.Writer.Flush()
}

// NewMemoryPair creates the two endpoints of an in-memory duplex link backed
// by two ByteChannels, one per direction. This is the primary transport:
// client.Writer carries command lines into engine.Reader, engine.Writer
// carries response bytes into client.Reader. Capacity applies to each
// direction; zero or below selects DefaultCapacity.
func NewMemoryPair(capacity int) (client, engine *Conn) {
	commands := NewByteChannel(capacity)
	responses := NewByteChannel(capacity)
	client = &Conn{Reader: responses, Writer: commands}
	engine = &Conn{Reader: commands, Writer: responses}
	return client, engine
}

// NewOSPipePair creates the two endpoints of a duplex link backed by two OS
// pipes. This is the legacy transport variant; the in-memory pair should be
// preferred as it has no platform dependency.
func NewOSPipePair() (client, engine *Conn, err error) {
	cmdRead, cmdWrite, err := os.Pipe()
	if err != nil {
		return nil, nil, fmt.Errorf("failed to create command pipe: %w", err)
	}
	respRead, respWrite, err := os.Pipe()
	if err != nil {
		cmdRead.Close()
		cmdWrite.Close()
		return nil, nil, fmt.Errorf("failed to create response pipe: %w", err)
	}
	client = &Conn{Reader: NewStreamLineReader(respRead), Writer: &fileWriter{f: cmdWrite}}
	engine = &Conn{Reader: NewStreamLineReader(cmdRead), Writer: &fileWriter{f: respWrite}}
	return client, engine, nil
}

// StreamLineReader adapts an io.Reader to the LineReader interface with
// buffered line splitting. Used by the OS-pipe transport; the in-memory
// transport reads lines natively from the ByteChannel.
type StreamLineReader struct {
	br *bufio.Reader
}

// NewStreamLineReader creates a StreamLineReader over r.
func NewStreamLineReader(r io.Reader) *StreamLineReader {
	return &StreamLineReader{br: bufio.NewReader(r)}
}

// ReadLine returns the next line without its newline. On EOF the partial
// final line (possibly empty) is returned together with io.EOF.
func (s *StreamLineReader) ReadLine() (string, error) {
	line, err := s.br.ReadString('\n')
	if err != nil {
		return line, err
	}
	return strings.TrimSuffix(line, "\n"), nil
}

// fileWriter wraps an os.File as a FlushWriter. OS pipes have no userspace
// buffer, so Flush is a no-op.
type fileWriter struct {
	f *os.File
}

func (w *fileWriter) Write(p []byte) (int, error) { return w.f.Write(p) }
func (w *fileWriter) Flush() error                { return nil }
func (w *fileWriter) Close() error                { return w.f.Close() }
