package chat

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/dkeye/Televisit/internal/core"
	"github.com/dkeye/Televisit/internal/domain"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// Pipe is a push transport for chat messages. Delivery is best effort.
type Pipe interface {
	Send(m domain.ChatMessage) error
	OnMessage(fn func(domain.ChatMessage)) (unregister func())
}

// ChannelRelay carries chat over a Pipe. Nothing is persisted; messages
// lost on disconnect are gone.
type ChannelRelay struct {
	view
	pipe       Pipe
	unregister func()
	logger     zerolog.Logger
	now        func() time.Time
}

var _ core.ChatRelay = (*ChannelRelay)(nil)

func NewChannelRelay(self domain.Participant, pipe Pipe) *ChannelRelay {
	r := &ChannelRelay{
		view:   view{self: self},
		pipe:   pipe,
		logger: log.With().Str("module", "chat").Str("transport", "channel").Str("role", string(self)).Logger(),
		now:    time.Now,
	}
	r.unregister = pipe.OnMessage(r.append)
	return r
}

// Send appends the message to the local view once the pipe accepted it.
func (r *ChannelRelay) Send(_ context.Context, text string) bool {
	text = strings.TrimSpace(text)
	if text == "" || r.isClosed() {
		return false
	}
	m := domain.ChatMessage{Sender: string(r.self), Content: text, Timestamp: r.now().UTC()}
	if err := r.pipe.Send(m); err != nil {
		r.logger.Warn().Err(fmt.Errorf("%w: %w", domain.ErrChatTransport, err)).Msg("send")
		return false
	}
	r.append(m)
	return true
}

func (r *ChannelRelay) Close() {
	if r.close() {
		r.unregister()
	}
}

// SignalPipe carries chat as "chat" messages on the signaling link.
type SignalPipe struct {
	ch core.SignalChannel
}

func NewSignalPipe(ch core.SignalChannel) *SignalPipe {
	return &SignalPipe{ch: ch}
}

func (p *SignalPipe) Send(m domain.ChatMessage) error {
	msg, err := domain.NewChat(m)
	if err != nil {
		return err
	}
	p.ch.Send(msg)
	return nil
}

func (p *SignalPipe) OnMessage(fn func(domain.ChatMessage)) func() {
	return p.ch.OnMessage(func(msg domain.SignalMessage) {
		if msg.Type != domain.MessageChat {
			return
		}
		m, err := msg.Chat()
		if err != nil {
			log.Warn().Err(err).Str("module", "chat").Msg("bad chat payload")
			return
		}
		fn(m)
	})
}
