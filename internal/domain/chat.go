package domain

import "time"

// ChatMessage is append-only; nothing in a session mutates or deletes it.
type ChatMessage struct {
	Sender    string    `json:"sender"`
	Content   string    `json:"content"`
	Timestamp time.Time `json:"timestamp"`
}

// ValidSender reports whether the message store accepts sender.
func ValidSender(sender string) bool {
	switch Participant(sender) {
	case Doctor, Patient, Bot:
		return true
	}
	return false
}
