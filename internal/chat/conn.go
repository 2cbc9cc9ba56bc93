package chat

// Conn is one realtime connection attached to a room. Implementations must
// serialize concurrent SendJSON calls; the core broadcasts from multiple
// goroutines.
type Conn interface {
	// ID uniquely identifies the connection for its lifetime.
	ID() string
	// SendJSON marshals v and writes it as a single frame.
	SendJSON(v any) error
	// Close tears the connection down. Subsequent sends fail.
	Close() error
}
