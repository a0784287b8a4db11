package session

import (
	"context"

	"github.com/dkeye/Televisit/internal/adapters/rest"
	"github.com/dkeye/Televisit/internal/adapters/rtc"
	"github.com/dkeye/Televisit/internal/adapters/signal"
	"github.com/dkeye/Televisit/internal/app/media"
	"github.com/dkeye/Televisit/internal/core"
	"github.com/dkeye/Televisit/internal/domain"
	"github.com/pion/webrtc/v4"
)

// Dialer opens the relay link for key.
type Dialer func(ctx context.Context, serverURL string, key domain.SessionKey) (core.SignalChannel, error)

// PeerFactory builds the peer connection for key.
type PeerFactory func(cfg webrtc.Configuration, key domain.SessionKey) (core.MediaConnection, error)

// Deps are the collaborators a Session is built from. Tests swap any of them.
type Deps struct {
	Appointments core.AppointmentService
	// Messages backs the poll chat transport.
	Messages core.MessageStore
	Dial     Dialer
	NewPeer  PeerFactory
	Sources  media.Sources
}

// DefaultDeps wires the production adapters for cfg.
func DefaultDeps(cfg Config) (Deps, error) {
	api, err := rtc.NewAPI()
	if err != nil {
		return Deps{}, err
	}
	client := rest.NewClient(cfg.ServerURL)
	return Deps{
		Appointments: client,
		Messages:     client,
		Dial: func(ctx context.Context, serverURL string, key domain.SessionKey) (core.SignalChannel, error) {
			ch, err := signal.Dial(ctx, serverURL, key)
			if err != nil {
				return nil, err
			}
			return ch, nil
		},
		NewPeer: func(wc webrtc.Configuration, key domain.SessionKey) (core.MediaConnection, error) {
			pc, err := rtc.NewWebRTCConnection(api, wc, key)
			if err != nil {
				return nil, err
			}
			return pc, nil
		},
		Sources: media.Sources{
			domain.TrackAudio: media.NewFileSource(domain.TrackAudio, cfg.Media.AudioFile),
			domain.TrackVideo: media.NewFileSource(domain.TrackVideo, cfg.Media.VideoFile),
		},
	}, nil
}
