package chat

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/dkeye/Televisit/internal/core"
	"github.com/dkeye/Televisit/internal/domain"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

const DefaultPollInterval = 3 * time.Second

// PollRelay posts to the message store and re-reads the whole list on a
// fixed interval. Every successful fetch replaces local state.
type PollRelay struct {
	view
	appointmentID string
	store         core.MessageStore
	interval      time.Duration
	logger        zerolog.Logger

	startOnce sync.Once
	cancel    context.CancelFunc
	done      chan struct{}
}

var _ core.ChatRelay = (*PollRelay)(nil)

func NewPollRelay(self domain.Participant, appointmentID string, store core.MessageStore, interval time.Duration) *PollRelay {
	if interval <= 0 {
		interval = DefaultPollInterval
	}
	return &PollRelay{
		view:          view{self: self},
		appointmentID: appointmentID,
		store:         store,
		interval:      interval,
		logger: log.With().
			Str("module", "chat").
			Str("transport", "poll").
			Str("appointment", appointmentID).
			Str("role", string(self)).
			Logger(),
		done: make(chan struct{}),
	}
}

// Start fetches once and then on every tick until Close.
func (r *PollRelay) Start(ctx context.Context) {
	r.startOnce.Do(func() {
		ctx, cancel := context.WithCancel(ctx)
		r.cancel = cancel
		go func() {
			defer close(r.done)
			ticker := time.NewTicker(r.interval)
			defer ticker.Stop()
			r.Poll(ctx)
			for {
				select {
				case <-ctx.Done():
					return
				case <-ticker.C:
					r.Poll(ctx)
				}
			}
		}()
	})
}

// Poll runs one fetch cycle. A failed fetch leaves the view untouched.
func (r *PollRelay) Poll(ctx context.Context) {
	msgs, err := r.store.ListMessages(ctx, r.appointmentID)
	if err != nil {
		if ctx.Err() == nil {
			r.logger.Warn().Err(fmt.Errorf("%w: %w", domain.ErrChatTransport, err)).Msg("fetch")
		}
		return
	}
	r.replace(msgs)
}

// Send posts the message; the view changes on the next fetch, which is
// triggered right away.
func (r *PollRelay) Send(ctx context.Context, text string) bool {
	text = strings.TrimSpace(text)
	if text == "" || r.isClosed() {
		return false
	}
	m := domain.ChatMessage{Sender: string(r.self), Content: text, Timestamp: time.Now().UTC()}
	if err := r.store.PostMessage(ctx, r.appointmentID, m); err != nil {
		r.logger.Warn().Err(fmt.Errorf("%w: %w", domain.ErrChatTransport, err)).Msg("post")
		return false
	}
	r.Poll(ctx)
	return true
}

func (r *PollRelay) Close() {
	if !r.close() {
		return
	}
	// Never started: the loop will not run, so done is closed here.
	r.startOnce.Do(func() { close(r.done) })
	if r.cancel != nil {
		r.cancel()
	}
	<-r.done
}
