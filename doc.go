// Package gtpbridge connects a client to an embedded GTP engine over an
// in-process duplex byte stream.
//
// A Session owns two ByteChannels (one per direction, see the pipe package)
// and two worker goroutines: the engine worker drives the opaque engine's
// main loop, the client worker serves command submissions. The Dispatcher
// is the submission API: commands are strictly serialized (one in flight),
// responses are correlated back to their command, and completion fans out
// as ordered notifications, an optional typed callback, and release of
// synchronous callers. The only out-of-band path is Interrupt, a single
// comment line written past the queue to pre-empt the in-flight command.
//
// Protocol failures are data, not errors: every submission yields exactly
// one Response whose Success flag callers must check. An engine that dies
// mid-session surfaces as empty failure responses, never as a worker crash.
package gtpbridge
