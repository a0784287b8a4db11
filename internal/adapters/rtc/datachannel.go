package rtc

import (
	"encoding/json"
	"errors"
	"sync"

	"github.com/dkeye/Televisit/internal/core"
	"github.com/dkeye/Televisit/internal/domain"
	"github.com/pion/webrtc/v4"
	"github.com/rs/zerolog/log"
)

const ChatLabel = "chat"

var errDataChannelNotOpen = errors.New("chat data channel not open")

// DataChannelPipe carries chat messages as JSON text over the "chat" data
// channel. The initiator creates the channel, the responder binds the one
// it is offered, so Bind may happen after construction.
type DataChannelPipe struct {
	mu       sync.RWMutex
	dc       *webrtc.DataChannel
	handlers core.Handlers[domain.ChatMessage]
}

func NewDataChannelPipe() *DataChannelPipe {
	return &DataChannelPipe{}
}

// Bind attaches dc. Channels with another label are ignored.
func (p *DataChannelPipe) Bind(dc *webrtc.DataChannel) {
	if dc == nil || dc.Label() != ChatLabel {
		return
	}
	p.mu.Lock()
	p.dc = dc
	p.mu.Unlock()

	dc.OnOpen(func() {
		log.Info().Str("module", "webrtc").Str("label", dc.Label()).Msg("data channel open")
	})
	dc.OnMessage(func(msg webrtc.DataChannelMessage) {
		if !msg.IsString {
			return
		}
		var m domain.ChatMessage
		if err := json.Unmarshal(msg.Data, &m); err != nil {
			log.Warn().Err(err).Str("module", "webrtc").Msg("bad chat frame")
			return
		}
		p.handlers.Emit(m)
	})
}

func (p *DataChannelPipe) Send(m domain.ChatMessage) error {
	p.mu.RLock()
	dc := p.dc
	p.mu.RUnlock()
	if dc == nil || dc.ReadyState() != webrtc.DataChannelStateOpen {
		return errDataChannelNotOpen
	}
	b, err := json.Marshal(m)
	if err != nil {
		return err
	}
	return dc.SendText(string(b))
}

func (p *DataChannelPipe) OnMessage(fn func(domain.ChatMessage)) func() {
	return p.handlers.Add(fn)
}
