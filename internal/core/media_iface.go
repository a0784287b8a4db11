package core

import (
	"github.com/dkeye/Televisit/internal/domain"
	"github.com/pion/webrtc/v4"
)

//go:generate mockgen -destination=mocks/mocks.go -package=mocks . PeerConnection,SignalChannel

// PeerConnection is what the negotiator needs from a peer connection.
// SDP and candidates are opaque.
type PeerConnection interface {
	// CreateOffer builds an offer and sets it as the local description.
	CreateOffer() (string, error)
	// CreateAnswer builds an answer and sets it as the local description.
	CreateAnswer() (string, error)
	SetRemoteDescription(t domain.MessageType, sdp string) error
	AddICECandidate(c domain.Candidate) error
	Close() error
}

// TrackAdder attaches local tracks.
type TrackAdder interface {
	AddTrack(track webrtc.TrackLocal) (*webrtc.RTPSender, error)
}

// MediaConnection is the full peer connection used by a session.
type MediaConnection interface {
	PeerConnection
	TrackAdder

	// AddRecvOnly prepares to receive a kind without sending one.
	AddRecvOnly(kind webrtc.RTPCodecType) error
	CreateDataChannel(label string) (*webrtc.DataChannel, error)

	OnICECandidate(fn func(domain.Candidate))
	OnTrack(fn func(track *webrtc.TrackRemote, receiver *webrtc.RTPReceiver))
	OnDataChannel(fn func(dc *webrtc.DataChannel))
	OnFailed(fn func())
}
