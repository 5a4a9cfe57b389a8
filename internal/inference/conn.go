package inference

import "context"

// Conn is one message-oriented duplex connection to the backend. Each
// message is a complete JSON frame.
type Conn interface {
	WriteMessage(data []byte) error
	// ReadMessage blocks until the next frame arrives or the connection
	// fails. It returns an error after Close.
	ReadMessage() ([]byte, error)
	Close() error
}

// Dialer opens connections. The Channel dials again after every transport
// failure.
type Dialer interface {
	Dial(ctx context.Context) (Conn, error)
}

// DialerFunc adapts a function to the Dialer interface.
type DialerFunc func(ctx context.Context) (Conn, error)

// Dial calls f(ctx).
func (f DialerFunc) Dial(ctx context.Context) (Conn, error) { return f(ctx) }
