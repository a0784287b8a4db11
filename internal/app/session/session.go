// Package session composes the relay channel, negotiator, media and chat
// of one appointment call and owns their teardown.
package session

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/dkeye/Televisit/internal/adapters/rtc"
	"github.com/dkeye/Televisit/internal/app/chat"
	"github.com/dkeye/Televisit/internal/app/media"
	"github.com/dkeye/Televisit/internal/app/negotiator"
	"github.com/dkeye/Televisit/internal/core"
	"github.com/dkeye/Televisit/internal/domain"
	"github.com/pion/webrtc/v4"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"
)

const notifyTimeout = 5 * time.Second

type State int32

const (
	StateNew State = iota
	StateStarting
	StateActive
	StateEnded
)

func (s State) String() string {
	switch s {
	case StateNew:
		return "new"
	case StateStarting:
		return "starting"
	case StateActive:
		return "active"
	case StateEnded:
		return "ended"
	}
	return "unknown"
}

type EndReason string

const (
	ReasonLocal             EndReason = "local"
	ReasonRelayClosed       EndReason = "relay_closed"
	ReasonNegotiationFailed EndReason = "negotiation_failed"
	ReasonPeerFailed        EndReason = "peer_failed"
	ReasonConnectFailed     EndReason = "connect_failed"
	ReasonMediaFailed       EndReason = "media_failed"
	ReasonAlreadyCompleted  EndReason = "already_completed"
)

// EndResult is what the caller is shown once the session is over.
// Err joins the cause of the end with a failed EndCall notification.
type EndResult struct {
	Reason   EndReason
	Notified bool
	Err      error
}

// Session is one side of one appointment call.
type Session struct {
	cfg    Config
	deps   Deps
	logger zerolog.Logger

	runCtx    context.Context
	runCancel context.CancelFunc

	// startMu serializes Start with End so teardown sees every resource
	// Start created.
	startMu sync.Mutex
	started bool

	mu       sync.Mutex
	state    State
	pc       core.MediaConnection
	ch       core.SignalChannel
	neg      *negotiator.Negotiator
	local    *media.LocalMedia
	receiver *media.Receiver
	chat     core.ChatRelay
	detach   []func()

	transitions core.Handlers[negotiator.Transition]

	endOnce sync.Once
	result  EndResult
	done    chan struct{}
}

func New(cfg Config, deps Deps) *Session {
	ctx, cancel := context.WithCancel(context.Background())
	return &Session{
		cfg:  cfg,
		deps: deps,
		logger: log.With().
			Str("module", "session").
			Str("appointment", cfg.Key.AppointmentID).
			Str("participant", string(cfg.Key.Participant)).
			Str("role", string(cfg.Key.Role)).
			Logger(),
		runCtx:    ctx,
		runCancel: cancel,
		done:      make(chan struct{}),
	}
}

func (s *Session) Key() domain.SessionKey { return s.cfg.Key }

func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Negotiation is the current negotiation phase; Idle before Start.
func (s *Session) Negotiation() negotiator.State {
	s.mu.Lock()
	neg := s.neg
	s.mu.Unlock()
	if neg == nil {
		return negotiator.Idle
	}
	return neg.State()
}

// OnNegotiation reports every negotiation transition of this session.
func (s *Session) OnNegotiation(fn func(negotiator.Transition)) (unregister func()) {
	return s.transitions.Add(fn)
}

// Chat is nil until Start succeeds.
func (s *Session) Chat() core.ChatRelay {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.chat
}

// Media is nil when the session runs receive-only.
func (s *Session) Media() *media.LocalMedia {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.local
}

func (s *Session) Done() <-chan struct{} { return s.done }

// Result is meaningful once Done is closed.
func (s *Session) Result() EndResult {
	<-s.done
	return s.result
}

func (s *Session) setState(st State) {
	s.mu.Lock()
	s.state = st
	s.mu.Unlock()
}

// Start runs the pre-flight check, opens the relay channel and local media
// concurrently, wires every handler and lets the negotiator go.
func (s *Session) Start(ctx context.Context) error {
	s.startMu.Lock()
	defer s.startMu.Unlock()
	if s.State() == StateEnded {
		return domain.ErrSessionEnded
	}
	if s.started {
		return domain.ErrSessionStarted
	}
	s.started = true
	key := s.cfg.Key

	if s.deps.Appointments != nil {
		status, err := s.deps.Appointments.Status(ctx, key.AppointmentID)
		switch {
		case err != nil:
			s.logger.Warn().Err(err).Msg("status pre-flight failed, starting anyway")
		case status.IsTerminal():
			s.logger.Info().Str("status", string(status)).Msg("appointment already completed")
			s.endOnce.Do(func() {
				s.finish(EndResult{Reason: ReasonAlreadyCompleted, Err: domain.ErrSessionEnded})
			})
			return domain.ErrSessionEnded
		}
	}
	s.setState(StateStarting)

	pc, err := s.deps.NewPeer(s.cfg.webrtcConfig(), key)
	if err != nil {
		s.endLocked(ctx, ReasonConnectFailed, err)
		return fmt.Errorf("peer connection: %w", err)
	}
	s.mu.Lock()
	s.pc = pc
	s.mu.Unlock()

	var (
		ch       core.SignalChannel
		local    *media.LocalMedia
		mediaErr error
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		c, err := s.deps.Dial(gctx, s.cfg.ServerURL, key)
		if err != nil {
			return err
		}
		ch = c
		return nil
	})
	g.Go(func() error {
		local, mediaErr = media.Acquire(gctx, media.Constraints{Audio: true, Video: true}, s.deps.Sources, key.AppointmentID)
		return nil
	})
	err = g.Wait()

	s.mu.Lock()
	s.ch = ch
	s.local = local
	s.mu.Unlock()

	if err != nil {
		var cerr *domain.ConnectError
		if !errors.As(err, &cerr) {
			err = &domain.ConnectError{URL: s.cfg.ServerURL, Err: err}
		}
		s.logger.Error().Err(err).Msg("relay unreachable")
		s.endLocked(ctx, ReasonConnectFailed, err)
		return err
	}

	neg := negotiator.New(key, pc, ch, negotiator.WithHandshakeTimeout(s.cfg.HandshakeTimeout))
	s.mu.Lock()
	s.neg = neg
	s.mu.Unlock()

	s.track(neg.OnStateChange(s.onTransition))

	if mediaErr != nil {
		if !s.cfg.Media.AllowReceiveOnly {
			s.logger.Error().Err(mediaErr).Msg("no usable local track")
			neg.MediaFailed(mediaErr)
			s.endLocked(ctx, ReasonMediaFailed, mediaErr)
			return mediaErr
		}
		s.logger.Warn().Err(mediaErr).Msg("no local media, continuing receive-only")
	}

	s.wirePeer(pc, neg)
	var pipe *rtc.DataChannelPipe
	if s.cfg.Chat.transport() == ChatDataChannel {
		if pipe, err = s.chatChannel(pc); err != nil {
			s.endLocked(ctx, ReasonNegotiationFailed, err)
			return err
		}
	}
	if err := s.attachMedia(pc, local); err != nil {
		s.endLocked(ctx, ReasonMediaFailed, err)
		return err
	}

	// Inbound messages may already be waiting. They go to the first handler,
	// which must be the negotiator, and only once the answer's tracks and
	// data channel are in place.
	s.track(ch.OnClose(s.onChannelClose))
	s.track(ch.OnMessage(neg.HandleMessage))

	if err := s.startChat(ch, pipe); err != nil {
		s.endLocked(ctx, ReasonNegotiationFailed, err)
		return err
	}

	s.setState(StateActive)
	neg.ChannelOpen()
	neg.MediaReady()
	s.logger.Info().Str("chat", string(s.cfg.Chat.transport())).Msg("session started")
	return nil
}

func (s *Session) track(unregister func()) {
	s.mu.Lock()
	s.detach = append(s.detach, unregister)
	s.mu.Unlock()
}

func (s *Session) wirePeer(pc core.MediaConnection, neg *negotiator.Negotiator) {
	k := s.cfg.Key
	receiver := media.NewReceiver(s.cfg.Media.RecordDir, fmt.Sprintf("%s-%s", k.AppointmentID, k.Participant))
	s.mu.Lock()
	s.receiver = receiver
	s.mu.Unlock()

	pc.OnICECandidate(neg.LocalCandidate)
	pc.OnTrack(func(track *webrtc.TrackRemote, _ *webrtc.RTPReceiver) {
		receiver.Receive(track)
	})
	pc.OnFailed(func() {
		go s.End(context.Background(), ReasonPeerFailed)
	})
	s.track(func() {
		pc.OnICECandidate(nil)
		pc.OnTrack(nil)
		pc.OnFailed(nil)
		pc.OnDataChannel(nil)
	})
}

// chatChannel prepares the "chat" data channel: the initiator creates it,
// the responder binds the one it is offered.
func (s *Session) chatChannel(pc core.MediaConnection) (*rtc.DataChannelPipe, error) {
	pipe := rtc.NewDataChannelPipe()
	if s.cfg.Key.Role != domain.RoleInitiator {
		pc.OnDataChannel(pipe.Bind)
		return pipe, nil
	}
	dc, err := pc.CreateDataChannel(rtc.ChatLabel)
	if err != nil {
		return nil, fmt.Errorf("chat data channel: %w", err)
	}
	pipe.Bind(dc)
	return pipe, nil
}

// startChat builds the one chat transport configured for this session.
func (s *Session) startChat(ch core.SignalChannel, pipe *rtc.DataChannelPipe) error {
	k := s.cfg.Key
	var relay core.ChatRelay
	switch s.cfg.Chat.transport() {
	case ChatSignaling:
		relay = chat.NewChannelRelay(k.Participant, chat.NewSignalPipe(ch))
	case ChatPoll:
		if s.deps.Messages == nil {
			return errors.New("poll chat needs a message store")
		}
		r := chat.NewPollRelay(k.Participant, k.AppointmentID, s.deps.Messages, s.cfg.Chat.PollInterval)
		r.Start(s.runCtx)
		relay = r
	default:
		relay = chat.NewChannelRelay(k.Participant, pipe)
	}
	s.mu.Lock()
	s.chat = relay
	s.mu.Unlock()
	return nil
}

// attachMedia adds local tracks, or recvonly transceivers when there are none.
func (s *Session) attachMedia(pc core.MediaConnection, local *media.LocalMedia) error {
	if local == nil {
		for _, kind := range []webrtc.RTPCodecType{webrtc.RTPCodecTypeAudio, webrtc.RTPCodecTypeVideo} {
			if err := pc.AddRecvOnly(kind); err != nil {
				return err
			}
		}
		return nil
	}
	if err := local.Attach(pc); err != nil {
		return err
	}
	local.Start(s.runCtx)
	return nil
}

func (s *Session) onTransition(t negotiator.Transition) {
	s.logger.Info().Str("from", t.From.String()).Str("to", t.To.String()).Msg("negotiation")
	s.transitions.Emit(t)
	if t.To == negotiator.Failed {
		go s.End(context.Background(), ReasonNegotiationFailed)
	}
}

func (s *Session) onChannelClose(cause error) {
	if cause == nil {
		return
	}
	go s.end(context.Background(), ReasonRelayClosed, cause)
}

// End tears the session down once. Later calls wait for the first one and
// return its result. Safe from any state and any goroutine.
func (s *Session) End(ctx context.Context, reason EndReason) EndResult {
	return s.end(ctx, reason, nil)
}

func (s *Session) end(ctx context.Context, reason EndReason, cause error) EndResult {
	s.startMu.Lock()
	defer s.startMu.Unlock()
	return s.endLocked(ctx, reason, cause)
}

func (s *Session) endLocked(ctx context.Context, reason EndReason, cause error) EndResult {
	s.endOnce.Do(func() {
		s.mu.Lock()
		detach := s.detach
		s.detach = nil
		neg, ch, local, relay, receiver := s.neg, s.ch, s.local, s.chat, s.receiver
		pc := s.pc
		wasActive := s.state == StateActive
		s.mu.Unlock()

		for _, fn := range detach {
			fn()
		}

		if neg != nil {
			if cause == nil {
				cause = neg.Err()
			}
			neg.Close()
		} else if pc != nil {
			if err := pc.Close(); err != nil {
				s.logger.Warn().Err(err).Msg("peer connection close")
			}
		}
		if ch != nil {
			ch.Close()
		}
		if local != nil {
			local.Release()
		}
		if relay != nil {
			relay.Close()
		}
		s.runCancel()
		if receiver != nil {
			receiver.Wait()
		}

		res := EndResult{Reason: reason, Err: cause}
		// A call that never got going leaves the appointment as it was.
		if wasActive && s.deps.Appointments != nil {
			nctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), notifyTimeout)
			err := s.deps.Appointments.EndCall(nctx, s.cfg.Key.AppointmentID)
			cancel()
			if err != nil {
				s.logger.Error().Err(err).Msg("end-call notification failed")
				res.Err = errors.Join(res.Err, fmt.Errorf("notify end-call: %w", err))
			} else {
				res.Notified = true
			}
		}

		s.logger.Info().Str("reason", string(reason)).Bool("notified", res.Notified).AnErr("cause", res.Err).Msg("session ended")
		s.finish(res)
	})
	<-s.done
	return s.result
}

func (s *Session) finish(res EndResult) {
	s.mu.Lock()
	s.state = StateEnded
	s.mu.Unlock()
	s.result = res
	s.runCancel()
	close(s.done)
}
