// Package negotiator drives the offer/answer/candidate exchange for one
// session. The initiator role is fixed per deployment, so there is no glare
// handling: an offer reaching the initiator is ignored.
package negotiator

import (
	"context"
	"sync"
	"time"

	"github.com/dkeye/Televisit/internal/core"
	"github.com/dkeye/Televisit/internal/domain"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// Sender is the outbound half of the signaling channel.
type Sender interface {
	Send(msg domain.SignalMessage)
}

type Option func(*Negotiator)

// WithHandshakeTimeout fails the negotiation if Connected is not reached
// within d of the channel opening. Zero disables it.
func WithHandshakeTimeout(d time.Duration) Option {
	return func(n *Negotiator) { n.timeout = d }
}

type Negotiator struct {
	key    domain.SessionKey
	pc     core.PeerConnection
	out    Sender
	logger zerolog.Logger

	timeout   time.Duration
	closeOnce sync.Once
	observers core.Handlers[Transition]

	// Guarded by mu: NegotiationState and CandidateBuffer.
	mu          sync.Mutex
	state       State
	err         error
	remoteSet   bool
	pending     []domain.Candidate
	channelOpen bool
	mediaReady  bool
	timer       *time.Timer
	changes     []Transition
}

func New(key domain.SessionKey, pc core.PeerConnection, out Sender, opts ...Option) *Negotiator {
	n := &Negotiator{
		key: key,
		pc:  pc,
		out: out,
		logger: log.With().
			Str("module", "negotiator").
			Str("appointment", key.AppointmentID).
			Str("role", string(key.Role)).
			Logger(),
	}
	for _, opt := range opts {
		opt(n)
	}
	return n
}

func (n *Negotiator) State() State {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.state
}

// Err returns the cause of a Failed state.
func (n *Negotiator) Err() error {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.err
}

// PendingCandidates is the current CandidateBuffer length.
func (n *Negotiator) PendingCandidates() int {
	n.mu.Lock()
	defer n.mu.Unlock()
	return len(n.pending)
}

func (n *Negotiator) OnStateChange(fn func(Transition)) (unregister func()) {
	return n.observers.Add(fn)
}

// ChannelOpen records that the signaling channel is usable.
func (n *Negotiator) ChannelOpen() {
	n.mu.Lock()
	defer n.unlock()
	if n.state.Terminal() || n.channelOpen {
		return
	}
	n.channelOpen = true
	if n.timeout > 0 {
		n.timer = time.AfterFunc(n.timeout, n.handshakeExpired)
	}
	n.maybeOffer()
}

// MediaReady records that local capture finished (or was skipped by policy).
func (n *Negotiator) MediaReady() {
	n.mu.Lock()
	defer n.unlock()
	if n.state.Terminal() || n.mediaReady {
		return
	}
	n.mediaReady = true
	n.maybeOffer()
}

// MediaFailed ends the negotiation when no usable local track exists.
func (n *Negotiator) MediaFailed(err error) {
	n.mu.Lock()
	defer n.unlock()
	if n.state.Terminal() {
		return
	}
	n.fail(err)
}

// HandleMessage processes one inbound signaling message.
func (n *Negotiator) HandleMessage(msg domain.SignalMessage) {
	n.mu.Lock()
	defer n.unlock()
	if n.state.Terminal() {
		n.logger.Debug().Str("type", string(msg.Type)).Str("state", n.state.String()).Msg("dropping message in terminal state")
		return
	}

	switch msg.Type {
	case domain.MessageOffer:
		n.handleOffer(msg)
	case domain.MessageAnswer:
		n.handleAnswer(msg)
	case domain.MessageCandidate:
		n.handleCandidate(msg.Candidate())
	default:
		n.logger.Debug().Str("type", string(msg.Type)).Msg("not a negotiation message")
	}
}

// LocalCandidate forwards a locally gathered candidate regardless of phase.
func (n *Negotiator) LocalCandidate(c domain.Candidate) {
	n.mu.Lock()
	terminal := n.state.Terminal()
	n.mu.Unlock()
	if terminal {
		return
	}
	n.out.Send(domain.NewCandidate(c))
}

// Close moves to Closed from any non-terminal state and closes the peer
// connection exactly once.
func (n *Negotiator) Close() {
	n.mu.Lock()
	if !n.state.Terminal() {
		n.setState(Closed)
		n.discard()
	}
	n.unlock()

	n.closeOnce.Do(func() {
		if err := n.pc.Close(); err != nil {
			n.logger.Error().Err(err).Msg("peer connection close")
		}
	})
}

func (n *Negotiator) maybeOffer() {
	if n.key.Role != domain.RoleInitiator || n.state != Idle || !n.channelOpen || !n.mediaReady {
		return
	}
	sdp, err := n.pc.CreateOffer()
	if err != nil {
		n.fail(&domain.NegotiationError{Op: "create offer", Err: err})
		return
	}
	n.setState(OfferSent)
	n.out.Send(domain.NewOffer(sdp))
	n.logger.Info().Msg("offer sent")
}

func (n *Negotiator) handleOffer(msg domain.SignalMessage) {
	if n.key.Role != domain.RoleResponder || n.state != Idle {
		n.logger.Warn().Str("state", n.state.String()).Msg("unexpected offer ignored")
		return
	}
	sdp, err := msg.SDP()
	if err != nil {
		n.fail(&domain.NegotiationError{Op: "read offer", Err: err})
		return
	}
	n.setState(OfferReceived)
	if err := n.pc.SetRemoteDescription(domain.MessageOffer, sdp); err != nil {
		n.fail(&domain.NegotiationError{Op: "set remote offer", Err: err})
		return
	}
	n.remoteSet = true
	n.drain()

	answer, err := n.pc.CreateAnswer()
	if err != nil {
		n.fail(&domain.NegotiationError{Op: "create answer", Err: err})
		return
	}
	n.setState(AnswerSent)
	n.out.Send(domain.NewAnswer(answer))
	n.logger.Info().Msg("answer sent")
	n.connected()
}

func (n *Negotiator) handleAnswer(msg domain.SignalMessage) {
	if n.key.Role != domain.RoleInitiator || n.state != OfferSent {
		n.logger.Warn().Str("state", n.state.String()).Msg("unexpected answer ignored")
		return
	}
	sdp, err := msg.SDP()
	if err != nil {
		n.fail(&domain.NegotiationError{Op: "read answer", Err: err})
		return
	}
	n.setState(AnswerReceived)
	if err := n.pc.SetRemoteDescription(domain.MessageAnswer, sdp); err != nil {
		n.fail(&domain.NegotiationError{Op: "set remote answer", Err: err})
		return
	}
	n.remoteSet = true
	n.drain()
	n.connected()
}

func (n *Negotiator) handleCandidate(c domain.Candidate) {
	if !n.remoteSet {
		n.pending = append(n.pending, c)
		n.logger.Debug().Int("buffered", len(n.pending)).Msg("candidate buffered")
		return
	}
	n.apply(c)
}

// drain applies buffered candidates in receipt order, then discards the buffer.
func (n *Negotiator) drain() {
	for _, c := range n.pending {
		n.apply(c)
	}
	n.pending = nil
}

func (n *Negotiator) apply(c domain.Candidate) {
	if err := n.pc.AddICECandidate(c); err != nil {
		n.logger.Warn().Err(err).Msg("add ice candidate")
	}
}

func (n *Negotiator) connected() {
	if n.timer != nil {
		n.timer.Stop()
	}
	n.setState(Connected)
	n.logger.Info().Msg("negotiation complete")
}

func (n *Negotiator) fail(err error) {
	n.err = err
	n.setState(Failed)
	n.discard()
	n.logger.Error().Err(err).Msg("negotiation failed")
}

func (n *Negotiator) discard() {
	n.pending = nil
	if n.timer != nil {
		n.timer.Stop()
	}
}

func (n *Negotiator) handshakeExpired() {
	n.mu.Lock()
	defer n.unlock()
	if n.state.Terminal() || n.state == Connected {
		return
	}
	n.fail(&domain.NegotiationError{Op: "handshake", Err: context.DeadlineExceeded})
}

func (n *Negotiator) setState(to State) {
	if n.state == to {
		return
	}
	n.changes = append(n.changes, Transition{From: n.state, To: to})
	n.logger.Debug().Str("from", n.state.String()).Str("to", to.String()).Msg("state")
	n.state = to
}

// unlock releases mu and then reports the transitions collected under it,
// so observers may call back into the negotiator.
func (n *Negotiator) unlock() {
	changes := n.changes
	n.changes = nil
	n.mu.Unlock()
	for _, t := range changes {
		n.observers.Emit(t)
	}
}
