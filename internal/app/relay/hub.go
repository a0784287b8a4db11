// Package relay pairs the two participants of an appointment and forwards
// signaling frames between them without inspecting them.
package relay

import (
	"errors"
	"sync"

	"github.com/dkeye/Televisit/internal/core"
	"github.com/dkeye/Televisit/internal/domain"
	"github.com/rs/zerolog/log"
)

const DefaultPendingLimit = 64 << 10

type room struct {
	slots   map[domain.Participant]core.SignalConnection
	pending map[domain.Participant]*pendingQueue
}

type Hub struct {
	mu           sync.Mutex
	rooms        map[string]*room
	pendingLimit int
	metrics      *Metrics
}

func NewHub(pendingLimit int, m *Metrics) *Hub {
	if pendingLimit <= 0 {
		pendingLimit = DefaultPendingLimit
	}
	if m == nil {
		m = NewMetrics(nil)
	}
	return &Hub{
		rooms:        make(map[string]*room),
		pendingLimit: pendingLimit,
		metrics:      m,
	}
}

func (h *Hub) getOrCreate(appointmentID string) *room {
	r, ok := h.rooms[appointmentID]
	if ok {
		return r
	}
	r = &room{
		slots: make(map[domain.Participant]core.SignalConnection, 2),
		pending: map[domain.Participant]*pendingQueue{
			domain.Doctor:  newPendingQueue(h.pendingLimit),
			domain.Patient: newPendingQueue(h.pendingLimit),
		},
	}
	h.rooms[appointmentID] = r
	h.metrics.Rooms.Inc()
	log.Info().Str("module", "app.relay").Str("appointment", appointmentID).Msg("room opened")
	return r
}

// Join seats conn in the participant's slot, replacing any previous
// connection, and flushes frames the peer sent while the slot was empty.
// Frames still queued from a replaced connection are discarded.
func (h *Hub) Join(appointmentID string, p domain.Participant, conn core.SignalConnection) {
	h.mu.Lock()
	r := h.getOrCreate(appointmentID)
	old := r.slots[p]
	r.slots[p] = conn
	if old == nil {
		h.metrics.Connections.Inc()
	}

	var stale []core.SignalConnection
	if old != nil && old != conn {
		stale = append(stale, old)
		// Handshake state from the replaced connection must not reach the peer.
		if dropped := len(r.pending[p.Peer()].Drain()); dropped > 0 {
			h.metrics.Dropped.WithLabelValues(dropStale).Add(float64(dropped))
		}
	}
	for _, f := range r.pending[p].Drain() {
		if !h.deliver(conn, f) {
			stale = append(stale, conn)
			break
		}
	}
	h.mu.Unlock()

	log.Info().Str("module", "app.relay").Str("appointment", appointmentID).Str("role", string(p)).Bool("replaced", old != nil).Msg("joined")
	for _, c := range stale {
		c.Close()
	}
}

// Forward delivers a frame from one participant to the other, or queues it
// while the other slot is empty.
func (h *Hub) Forward(appointmentID string, from domain.Participant, conn core.SignalConnection, f core.Frame) {
	h.mu.Lock()
	r, ok := h.rooms[appointmentID]
	if !ok || r.slots[from] != conn {
		h.mu.Unlock()
		h.metrics.Dropped.WithLabelValues(dropStale).Inc()
		return
	}
	to := from.Peer()
	peer := r.slots[to]
	if peer == nil {
		queued := r.pending[to].Enqueue(f)
		h.mu.Unlock()
		if queued {
			h.metrics.Queued.Inc()
		} else {
			h.metrics.Dropped.WithLabelValues(dropOverflow).Inc()
			log.Warn().Str("module", "app.relay").Str("appointment", appointmentID).Str("to", string(to)).Msg("pending queue full, frame dropped")
		}
		return
	}
	delivered := h.deliver(peer, f)
	h.mu.Unlock()

	if !delivered {
		log.Warn().Str("module", "app.relay").Str("appointment", appointmentID).Str("to", string(to)).Msg("slow peer closed")
		peer.Close()
	}
}

// deliver reports false when conn should be closed.
func (h *Hub) deliver(conn core.SignalConnection, f core.Frame) bool {
	err := conn.TrySend(f)
	switch {
	case err == nil:
		h.metrics.Forwarded.Inc()
		return true
	case errors.Is(err, domain.ErrBackpressure):
		h.metrics.Dropped.WithLabelValues(dropBackpressure).Inc()
		return false
	default:
		h.metrics.Dropped.WithLabelValues(dropStale).Inc()
		return true
	}
}

// Leave frees the slot held by conn. The call ends for both sides: the
// peer connection is closed and the room removed.
func (h *Hub) Leave(appointmentID string, p domain.Participant, conn core.SignalConnection) {
	h.mu.Lock()
	r, ok := h.rooms[appointmentID]
	if !ok || r.slots[p] != conn {
		h.mu.Unlock()
		return
	}
	delete(r.slots, p)
	h.metrics.Connections.Dec()
	peer := r.slots[p.Peer()]
	if peer != nil {
		delete(r.slots, p.Peer())
		h.metrics.Connections.Dec()
	}
	delete(h.rooms, appointmentID)
	h.metrics.Rooms.Dec()
	h.mu.Unlock()

	log.Info().Str("module", "app.relay").Str("appointment", appointmentID).Str("role", string(p)).Bool("peer_closed", peer != nil).Msg("left, room removed")
	if peer != nil {
		peer.Close()
	}
}

type RoomInfo struct {
	AppointmentID string               `json:"appointment_id"`
	Participants  []domain.Participant `json:"participants"`
}

// Rooms is a point-in-time snapshot of open rooms.
func (h *Hub) Rooms() []RoomInfo {
	h.mu.Lock()
	defer h.mu.Unlock()
	out := make([]RoomInfo, 0, len(h.rooms))
	for id, r := range h.rooms {
		info := RoomInfo{AppointmentID: id}
		for _, p := range []domain.Participant{domain.Doctor, domain.Patient} {
			if r.slots[p] != nil {
				info.Participants = append(info.Participants, p)
			}
		}
		out = append(out, info)
	}
	return out
}
