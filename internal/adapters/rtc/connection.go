package rtc

import (
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/dkeye/Televisit/internal/core"
	"github.com/dkeye/Televisit/internal/domain"
	"github.com/pion/interceptor"
	"github.com/pion/webrtc/v4"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// NewAPI builds a pion API with the default codecs and interceptors
// (NACK, RTCP reports, TWCC).
func NewAPI() (*webrtc.API, error) {
	mediaEngine := &webrtc.MediaEngine{}
	if err := mediaEngine.RegisterDefaultCodecs(); err != nil {
		return nil, err
	}

	interceptorRegistry := &interceptor.Registry{}
	if err := webrtc.RegisterDefaultInterceptors(mediaEngine, interceptorRegistry); err != nil {
		return nil, err
	}

	se := webrtc.SettingEngine{}
	se.SetICETimeouts(10*time.Second, 30*time.Second, 2*time.Second)

	return webrtc.NewAPI(
		webrtc.WithMediaEngine(mediaEngine),
		webrtc.WithInterceptorRegistry(interceptorRegistry),
		webrtc.WithSettingEngine(se),
	), nil
}

// WebRTCConnection wraps a pion PeerConnection for one session. Candidates
// trickle; local descriptions are returned without waiting for gathering.
type WebRTCConnection struct {
	pc     *webrtc.PeerConnection
	logger zerolog.Logger

	mu       sync.RWMutex
	onICE    func(domain.Candidate)
	onTrack  func(*webrtc.TrackRemote, *webrtc.RTPReceiver)
	onDC     func(*webrtc.DataChannel)
	onFailed func()
}

var _ core.MediaConnection = (*WebRTCConnection)(nil)

func NewWebRTCConnection(api *webrtc.API, cfg webrtc.Configuration, key domain.SessionKey) (*WebRTCConnection, error) {
	pc, err := api.NewPeerConnection(cfg)
	if err != nil {
		return nil, err
	}
	c := &WebRTCConnection{
		pc: pc,
		logger: log.With().
			Str("module", "webrtc").
			Str("appointment", key.AppointmentID).
			Str("role", string(key.Participant)).
			Logger(),
	}
	c.bind()
	return c, nil
}

func (c *WebRTCConnection) bind() {
	c.pc.OnICEConnectionStateChange(func(s webrtc.ICEConnectionState) {
		c.logger.Info().Str("ice_state", s.String()).Msg("ICE state")
	})

	c.pc.OnConnectionStateChange(func(s webrtc.PeerConnectionState) {
		c.logger.Info().Str("peer_connection_state", s.String()).Msg("Peer state")
		if s != webrtc.PeerConnectionStateFailed {
			return
		}
		c.mu.RLock()
		fn := c.onFailed
		c.mu.RUnlock()
		if fn != nil {
			fn()
		}
	})

	c.pc.OnICECandidate(func(cand *webrtc.ICECandidate) {
		if cand == nil {
			return
		}
		c.mu.RLock()
		fn := c.onICE
		c.mu.RUnlock()
		if fn == nil {
			return
		}
		b, err := json.Marshal(cand.ToJSON())
		if err != nil {
			c.logger.Error().Err(err).Msg("encode local candidate")
			return
		}
		fn(domain.Candidate(b))
	})

	c.pc.OnTrack(func(track *webrtc.TrackRemote, receiver *webrtc.RTPReceiver) {
		c.logger.Info().
			Str("kind", track.Kind().String()).
			Str("track_id", track.ID()).
			Str("stream_id", track.StreamID()).
			Msg("OnTrack received")
		c.mu.RLock()
		fn := c.onTrack
		c.mu.RUnlock()
		if fn != nil {
			fn(track, receiver)
		}
	})

	c.pc.OnDataChannel(func(dc *webrtc.DataChannel) {
		c.logger.Info().Str("label", dc.Label()).Msg("remote data channel")
		c.mu.RLock()
		fn := c.onDC
		c.mu.RUnlock()
		if fn != nil {
			fn(dc)
		}
	})
}

func (c *WebRTCConnection) CreateOffer() (string, error) {
	offer, err := c.pc.CreateOffer(nil)
	if err != nil {
		return "", err
	}
	if err := c.pc.SetLocalDescription(offer); err != nil {
		return "", err
	}
	return offer.SDP, nil
}

func (c *WebRTCConnection) CreateAnswer() (string, error) {
	answer, err := c.pc.CreateAnswer(nil)
	if err != nil {
		return "", err
	}
	if err := c.pc.SetLocalDescription(answer); err != nil {
		return "", err
	}
	return answer.SDP, nil
}

func (c *WebRTCConnection) SetRemoteDescription(t domain.MessageType, sdp string) error {
	var sdpType webrtc.SDPType
	switch t {
	case domain.MessageOffer:
		sdpType = webrtc.SDPTypeOffer
	case domain.MessageAnswer:
		sdpType = webrtc.SDPTypeAnswer
	default:
		return fmt.Errorf("%s is not a session description", t)
	}
	return c.pc.SetRemoteDescription(webrtc.SessionDescription{Type: sdpType, SDP: sdp})
}

func (c *WebRTCConnection) AddICECandidate(cand domain.Candidate) error {
	var ci webrtc.ICECandidateInit
	if err := json.Unmarshal(cand, &ci); err != nil {
		return fmt.Errorf("decode candidate: %w", err)
	}
	return c.pc.AddICECandidate(ci)
}

func (c *WebRTCConnection) AddTrack(track webrtc.TrackLocal) (*webrtc.RTPSender, error) {
	return c.pc.AddTrack(track)
}

func (c *WebRTCConnection) AddRecvOnly(kind webrtc.RTPCodecType) error {
	_, err := c.pc.AddTransceiverFromKind(kind, webrtc.RTPTransceiverInit{
		Direction: webrtc.RTPTransceiverDirectionRecvonly,
	})
	return err
}

func (c *WebRTCConnection) CreateDataChannel(label string) (*webrtc.DataChannel, error) {
	return c.pc.CreateDataChannel(label, nil)
}

func (c *WebRTCConnection) OnICECandidate(fn func(domain.Candidate)) {
	c.mu.Lock()
	c.onICE = fn
	c.mu.Unlock()
}

// OnTrack sets application-level callback for remote tracks.
func (c *WebRTCConnection) OnTrack(fn func(*webrtc.TrackRemote, *webrtc.RTPReceiver)) {
	c.mu.Lock()
	c.onTrack = fn
	c.mu.Unlock()
}

func (c *WebRTCConnection) OnDataChannel(fn func(*webrtc.DataChannel)) {
	c.mu.Lock()
	c.onDC = fn
	c.mu.Unlock()
}

// OnFailed fires when the connection state reaches failed.
func (c *WebRTCConnection) OnFailed(fn func()) {
	c.mu.Lock()
	c.onFailed = fn
	c.mu.Unlock()
}

func (c *WebRTCConnection) Close() error {
	c.mu.Lock()
	c.onICE, c.onTrack, c.onDC, c.onFailed = nil, nil, nil, nil
	c.mu.Unlock()

	if err := c.pc.Close(); err != nil {
		return err
	}
	c.logger.Info().Msg("closed")
	return nil
}
