package domain

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
)

type MessageType string

const (
	MessageOffer     MessageType = "offer"
	MessageAnswer    MessageType = "answer"
	MessageCandidate MessageType = "candidate"
	MessageChat      MessageType = "chat"
)

// Candidate is an ICE candidate blob. It is passed through untouched.
type Candidate json.RawMessage

// SignalMessage is the single wire shape: {"type": ..., "data": ...}.
// Offer and answer carry the SDP as a JSON string, candidate carries the
// RTCIceCandidateInit object, chat carries a ChatMessage.
type SignalMessage struct {
	Type MessageType     `json:"type"`
	Data json.RawMessage `json:"data"`
}

func NewOffer(sdp string) SignalMessage {
	b, _ := json.Marshal(sdp)
	return SignalMessage{Type: MessageOffer, Data: b}
}

func NewAnswer(sdp string) SignalMessage {
	b, _ := json.Marshal(sdp)
	return SignalMessage{Type: MessageAnswer, Data: b}
}

func NewCandidate(c Candidate) SignalMessage {
	return SignalMessage{Type: MessageCandidate, Data: json.RawMessage(c)}
}

func NewChat(m ChatMessage) (SignalMessage, error) {
	b, err := json.Marshal(m)
	if err != nil {
		return SignalMessage{}, err
	}
	return SignalMessage{Type: MessageChat, Data: b}, nil
}

// SDP returns the session description of an offer or answer.
func (m SignalMessage) SDP() (string, error) {
	if m.Type != MessageOffer && m.Type != MessageAnswer {
		return "", fmt.Errorf("%s message has no sdp", m.Type)
	}
	var sdp string
	if err := json.Unmarshal(m.Data, &sdp); err != nil {
		return "", fmt.Errorf("%s sdp: %w", m.Type, err)
	}
	return sdp, nil
}

func (m SignalMessage) Candidate() Candidate {
	return Candidate(m.Data)
}

func (m SignalMessage) Chat() (ChatMessage, error) {
	var c ChatMessage
	if m.Type != MessageChat {
		return c, fmt.Errorf("%s message has no chat payload", m.Type)
	}
	if err := json.Unmarshal(m.Data, &c); err != nil {
		return c, fmt.Errorf("chat payload: %w", err)
	}
	return c, nil
}

func EncodeSignal(m SignalMessage) ([]byte, error) {
	if err := m.validate(); err != nil {
		return nil, err
	}
	return json.Marshal(m)
}

func DecodeSignal(data []byte) (SignalMessage, error) {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.DisallowUnknownFields()

	var m SignalMessage
	if err := dec.Decode(&m); err != nil {
		return SignalMessage{}, err
	}
	if err := dec.Decode(&struct{}{}); err != io.EOF {
		return SignalMessage{}, errors.New("unexpected trailing data")
	}
	if err := m.validate(); err != nil {
		return SignalMessage{}, err
	}
	return m, nil
}

func (m SignalMessage) validate() error {
	data := bytes.TrimSpace(m.Data)
	if len(data) == 0 || bytes.Equal(data, []byte("null")) {
		return fmt.Errorf("%q message missing data", m.Type)
	}
	switch m.Type {
	case MessageOffer, MessageAnswer:
		sdp, err := m.SDP()
		if err != nil {
			return err
		}
		if sdp == "" {
			return fmt.Errorf("%s message has empty sdp", m.Type)
		}
	case MessageCandidate:
		if data[0] != '{' || !json.Valid(data) {
			return errors.New("candidate message data must be an object")
		}
	case MessageChat:
		if _, err := m.Chat(); err != nil {
			return err
		}
	default:
		return fmt.Errorf("unsupported message type %q", m.Type)
	}
	return nil
}
