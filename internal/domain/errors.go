package domain

import (
	"errors"
	"fmt"
)

var (
	ErrRelayClosed    = errors.New("relay closed unexpectedly")
	ErrChannelClosed  = errors.New("channel closed")
	ErrBackpressure   = errors.New("backpressure")
	ErrChatTransport  = errors.New("chat transport")
	ErrSessionEnded   = errors.New("appointment already completed")
	ErrSessionStarted = errors.New("session already started")
)

// ConnectError means the relay could not be reached. Fatal to session start.
type ConnectError struct {
	URL string
	Err error
}

func (e *ConnectError) Error() string {
	return fmt.Sprintf("connect %s: %v", e.URL, e.Err)
}

func (e *ConnectError) Unwrap() error { return e.Err }

type MediaErrorKind string

const (
	PermissionDenied  MediaErrorKind = "permission_denied"
	DeviceUnavailable MediaErrorKind = "device_unavailable"
)

// MediaError means local capture could not be started for a track.
type MediaError struct {
	Kind  MediaErrorKind
	Track TrackKind
	Err   error
}

func (e *MediaError) Error() string {
	return fmt.Sprintf("media %s: %s: %v", e.Track, e.Kind, e.Err)
}

func (e *MediaError) Unwrap() error { return e.Err }

// NegotiationError means the handshake cannot continue.
type NegotiationError struct {
	Op  string
	Err error
}

func (e *NegotiationError) Error() string {
	return fmt.Sprintf("negotiation %s: %v", e.Op, e.Err)
}

func (e *NegotiationError) Unwrap() error { return e.Err }
