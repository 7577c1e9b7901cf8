package repositories

import "context"

// CloseEvent describes how a streaming connection ended
type CloseEvent struct {
	Code     int
	Reason   string
	WasClean bool
}

// StreamConn is a duplex, JSON-framed streaming connection
type StreamConn interface {
	// Messages delivers inbound frames in arrival order. It is closed when
	// the connection ends.
	Messages() <-chan []byte
	// Done is closed once the connection is fully closed
	Done() <-chan struct{}
	// CloseEvent is valid after Done is closed
	CloseEvent() CloseEvent
	IsOpen() bool
	// Send marshals v and queues it for writing
	Send(v interface{}) error
	Close() error
}

// StreamDialer opens streaming connections
type StreamDialer interface {
	Dial(ctx context.Context, url string) (StreamConn, error)
}
