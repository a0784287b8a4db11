// Package domain contains entities without logic, just meta-data
package domain

import (
	"errors"
	"fmt"
	"strings"
)

const MaxAppointmentIDLen = 64

var (
	ErrAppointmentEmpty   = errors.New("appointment id empty")
	ErrAppointmentTooLong = errors.New("appointment id too long")
	ErrUnknownParticipant = errors.New("unknown participant")
)

// Participant is the domain role of a call member.
type Participant string

const (
	Doctor  Participant = "doctor"
	Patient Participant = "patient"
	Bot     Participant = "bot"
	System  Participant = "system"
)

// ParseParticipant accepts only the two roles that can join a call.
func ParseParticipant(s string) (Participant, error) {
	switch p := Participant(strings.ToLower(strings.TrimSpace(s))); p {
	case Doctor, Patient:
		return p, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrUnknownParticipant, s)
	}
}

// Peer returns the other side of a call.
func (p Participant) Peer() Participant {
	if p == Doctor {
		return Patient
	}
	return Doctor
}

// Role is the negotiation role, fixed for the lifetime of a session.
type Role string

const (
	RoleInitiator Role = "initiator"
	RoleResponder Role = "responder"
)

// SessionKey addresses one side of an appointment call on the relay.
type SessionKey struct {
	AppointmentID string
	Participant   Participant
	Role          Role
}

// NewSessionKey maps the participant onto a negotiation role. Exactly one
// participant, the configured initiator, originates the offer.
func NewSessionKey(appointmentID string, p, initiator Participant) (SessionKey, error) {
	appointmentID = strings.TrimSpace(appointmentID)
	if appointmentID == "" {
		return SessionKey{}, ErrAppointmentEmpty
	}
	if len(appointmentID) > MaxAppointmentIDLen {
		return SessionKey{}, ErrAppointmentTooLong
	}
	if _, err := ParseParticipant(string(p)); err != nil {
		return SessionKey{}, err
	}
	if _, err := ParseParticipant(string(initiator)); err != nil {
		return SessionKey{}, fmt.Errorf("initiator: %w", err)
	}
	role := RoleResponder
	if p == initiator {
		role = RoleInitiator
	}
	return SessionKey{AppointmentID: appointmentID, Participant: p, Role: role}, nil
}

func (k SessionKey) String() string {
	return k.AppointmentID + "/" + string(k.Participant)
}
