package core

import (
	"context"
	"time"

	"github.com/dkeye/Televisit/internal/domain"
)

// AppointmentService is the appointment-status collaborator.
type AppointmentService interface {
	Status(ctx context.Context, appointmentID string) (domain.AppointmentStatus, error)
	EndCall(ctx context.Context, appointmentID string) error
}

// MessageStore is the persisted chat store polled over REST.
type MessageStore interface {
	ListMessages(ctx context.Context, appointmentID string) ([]domain.ChatMessage, error)
	PostMessage(ctx context.Context, appointmentID string, m domain.ChatMessage) error
}

// ChatLine is one rendered chat entry.
type ChatLine struct {
	Label     string    `json:"label"`
	Self      bool      `json:"self"`
	Content   string    `json:"content"`
	Timestamp time.Time `json:"timestamp"`
}

// ChatRelay sends and receives chat for one appointment. Implementations
// differ in transport only.
type ChatRelay interface {
	Send(ctx context.Context, text string) bool
	// Subscribe delivers the full rendered view every time it changes.
	Subscribe(fn func([]ChatLine)) (unsubscribe func())
	Close()
}
