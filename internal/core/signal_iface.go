package core

import "github.com/dkeye/Televisit/internal/domain"

// Frame is a raw signaling payload as it travels through the relay.
type Frame []byte

// SignalConnection abstracts a relay-side participant transport.
// Owned by the adapter; the adapter must Close() it.
type SignalConnection interface {
	TrySend(Frame) error
	Close()
}

// SignalChannel is the client end of the relay link for one session.
// Handlers run serially in receipt order. Registration returns a func that
// detaches the handler.
type SignalChannel interface {
	// Send never fails to the caller; undeliverable messages are logged and dropped.
	Send(msg domain.SignalMessage)
	OnMessage(fn func(domain.SignalMessage)) (unregister func())
	// OnClose fires once; cause is nil for a local Close.
	OnClose(fn func(cause error)) (unregister func())
	Close()
}
