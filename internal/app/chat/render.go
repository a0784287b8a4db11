// Package chat implements the appointment chat over one of three
// transports: the peer data channel, the signaling link, or the REST
// message store.
package chat

import (
	"strings"
	"sync"

	"github.com/dkeye/Televisit/internal/core"
	"github.com/dkeye/Televisit/internal/domain"
)

const SelfLabel = "You"

var labels = map[domain.Participant]string{
	domain.Doctor:  "Doctor",
	domain.Patient: "Patient",
	domain.Bot:     "Assistant",
	domain.System:  "System",
}

// Label resolves the display identity of sender as seen by self.
func Label(self, sender domain.Participant) (label string, isSelf bool) {
	s := domain.Participant(strings.ToLower(strings.TrimSpace(string(sender))))
	if self != "" && strings.EqualFold(string(self), string(s)) {
		return SelfLabel, true
	}
	if l, ok := labels[s]; ok {
		return l, false
	}
	return "Unknown", false
}

// Render maps messages to display lines, keeping their order.
func Render(self domain.Participant, msgs []domain.ChatMessage) []core.ChatLine {
	out := make([]core.ChatLine, 0, len(msgs))
	for _, m := range msgs {
		label, isSelf := Label(self, domain.Participant(m.Sender))
		out = append(out, core.ChatLine{
			Label:     label,
			Self:      isSelf,
			Content:   m.Content,
			Timestamp: m.Timestamp,
		})
	}
	return out
}

// view is the message state shared by every transport.
type view struct {
	self domain.Participant

	mu     sync.Mutex
	msgs   []domain.ChatMessage
	closed bool

	subs core.Handlers[[]core.ChatLine]
}

func (v *view) Subscribe(fn func([]core.ChatLine)) func() {
	return v.subs.Add(fn)
}

// Lines is the current rendered view.
func (v *view) Lines() []core.ChatLine {
	v.mu.Lock()
	defer v.mu.Unlock()
	return Render(v.self, v.msgs)
}

func (v *view) append(m domain.ChatMessage) {
	v.mu.Lock()
	if v.closed {
		v.mu.Unlock()
		return
	}
	v.msgs = append(v.msgs, m)
	lines := Render(v.self, v.msgs)
	v.mu.Unlock()
	v.subs.Emit(lines)
}

// replace swaps in an authoritative list and notifies only on change.
func (v *view) replace(msgs []domain.ChatMessage) {
	v.mu.Lock()
	if v.closed || sameMessages(v.msgs, msgs) {
		v.mu.Unlock()
		return
	}
	v.msgs = append([]domain.ChatMessage(nil), msgs...)
	lines := Render(v.self, v.msgs)
	v.mu.Unlock()
	v.subs.Emit(lines)
}

func (v *view) close() bool {
	v.mu.Lock()
	defer v.mu.Unlock()
	if v.closed {
		return false
	}
	v.closed = true
	v.subs.Clear()
	return true
}

func (v *view) isClosed() bool {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.closed
}

func sameMessages(a, b []domain.ChatMessage) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i].Sender != b[i].Sender || a[i].Content != b[i].Content || !a[i].Timestamp.Equal(b[i].Timestamp) {
			return false
		}
	}
	return true
}
