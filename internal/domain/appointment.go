package domain

import (
	"strings"
	"time"
)

type AppointmentStatus string

const (
	StatusScheduled AppointmentStatus = "scheduled"
	StatusInCall    AppointmentStatus = "in_call"
	StatusCompleted AppointmentStatus = "completed"
)

// IsTerminal reports whether a session may no longer be started.
func (s AppointmentStatus) IsTerminal() bool {
	return strings.EqualFold(strings.TrimSpace(string(s)), string(StatusCompleted))
}

type Appointment struct {
	ID        string            `json:"id"`
	Status    AppointmentStatus `json:"status"`
	CreatedAt time.Time         `json:"created_at"`
	EndedAt   *time.Time        `json:"ended_at,omitempty"`
}
