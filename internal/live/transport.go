package live

import "context"

// Conn is an open live session connection.
type Conn interface {
	// SendRealtimeInput ships one base64-encoded PCM frame upstream.
	SendRealtimeInput(encoded string) error
	// Close tears down the connection. Safe to call more than once.
	Close() error
}

// Transport opens live session connections. Open blocks until the
// remote end has acknowledged the session setup, so a returned Conn is
// immediately ready for audio.
type Transport interface {
	Open(ctx context.Context, cfg SessionConfig, callbacks Callbacks) (Conn, error)
}
