package gtpbridge

// Status sigils carried as the first character of a response: '=' for
// success, '?' for failure.
const (
	SuccessSigil byte = '='
	FailureSigil byte = '?'
)

// Response is the engine's answer to exactly one Command. The raw text is
// the full multi-line body as read from the wire, without the terminating
// blank line. Protocol failures are plain Response values with Success()
// false, never Go errors; an empty raw response means the engine died before
// answering and likewise reads as failure.
type Response struct {
	raw     string
	cmd     *Command
	success bool
	body    string
}

// newResponse parses a raw response string. The first character is the
// status sigil; the parsed body is the raw text with the sigil and the
// mandatory following space stripped. A response with no recognized sigil
// reads as failure with the body left as-is.
func newResponse(raw string, cmd *Command) *Response {
	r := &Response{raw: raw, cmd: cmd, body: raw}
	if raw == "" {
		return r
	}
	switch raw[0] {
	case SuccessSigil:
		r.success = true
	case FailureSigil:
		// recognized, success stays false
	default:
		return r
	}
	body := raw[1:]
	if len(body) > 0 && body[0] == ' ' {
		body = body[1:]
	}
	r.body = body
	return r
}

// Raw returns the unparsed response text.
func (r *Response) Raw() string {
	return r.raw
}

// Success reports whether the status sigil indicated success.
func (r *Response) Success() bool {
	return r.success
}

// Body returns the response text with the status prefix stripped.
func (r *Response) Body() string {
	return r.body
}

// Command returns the command that produced this response.
func (r *Response) Command() *Command {
	return r.cmd
}
