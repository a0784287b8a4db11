package domain

import (
	"errors"
	"testing"
)

func TestDecodeSignal_Offer(t *testing.T) {
	got, err := DecodeSignal([]byte(`{"type":"offer","data":"v=0"}`))
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	sdp, err := got.SDP()
	if err != nil {
		t.Fatalf("sdp: %v", err)
	}
	if got.Type != MessageOffer || sdp != "v=0" {
		t.Fatalf("unexpected offer: %#v", got)
	}
}

func TestDecodeSignal_CandidatePassesThrough(t *testing.T) {
	raw := `{"candidate":"candidate:1 1 udp 1 127.0.0.1 9 typ host","sdpMid":"0","sdpMLineIndex":0}`
	got, err := DecodeSignal([]byte(`{"type":"candidate","data":` + raw + `}`))
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if string(got.Candidate()) != raw {
		t.Fatalf("candidate was modified: %s", got.Candidate())
	}
}

func TestDecodeSignal_Rejects(t *testing.T) {
	cases := map[string]string{
		"unknown type":   `{"type":"hello","data":"x"}`,
		"missing data":   `{"type":"offer"}`,
		"null data":      `{"type":"answer","data":null}`,
		"empty sdp":      `{"type":"offer","data":""}`,
		"flat sdp":       `{"type":"offer","sdp":"v=0"}`,
		"scalar cand":    `{"type":"candidate","data":"candidate:1"}`,
		"trailing data":  `{"type":"offer","data":"v=0"} {}`,
		"bad chat":       `{"type":"chat","data":[1,2]}`,
		"not an object":  `[]`,
		"sdp not string": `{"type":"answer","data":{"sdp":"v=0"}}`,
	}
	for name, raw := range cases {
		if _, err := DecodeSignal([]byte(raw)); err == nil {
			t.Errorf("%s: expected error for %s", name, raw)
		}
	}
}

func TestEncodeSignal_Chat(t *testing.T) {
	msg, err := NewChat(ChatMessage{Sender: "doctor", Content: "hi"})
	if err != nil {
		t.Fatalf("new chat: %v", err)
	}
	b, err := EncodeSignal(msg)
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	back, err := DecodeSignal(b)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	c, err := back.Chat()
	if err != nil || c.Sender != "doctor" || c.Content != "hi" {
		t.Fatalf("unexpected chat: %#v err=%v", c, err)
	}
}

func TestNewSessionKey_InitiatorMapping(t *testing.T) {
	doc, err := NewSessionKey("42", Doctor, Doctor)
	if err != nil {
		t.Fatalf("doctor key: %v", err)
	}
	pat, err := NewSessionKey("42", Patient, Doctor)
	if err != nil {
		t.Fatalf("patient key: %v", err)
	}
	if doc.Role != RoleInitiator || pat.Role != RoleResponder {
		t.Fatalf("roles: doctor=%s patient=%s", doc.Role, pat.Role)
	}

	if _, err := NewSessionKey("", Doctor, Doctor); !errors.Is(err, ErrAppointmentEmpty) {
		t.Fatalf("empty appointment: %v", err)
	}
	if _, err := NewSessionKey("42", "nurse", Doctor); !errors.Is(err, ErrUnknownParticipant) {
		t.Fatalf("unknown participant: %v", err)
	}
}

func TestAppointmentStatus_IsTerminal(t *testing.T) {
	if !AppointmentStatus("Completed").IsTerminal() {
		t.Fatal("completed must be terminal")
	}
	if StatusScheduled.IsTerminal() || StatusInCall.IsTerminal() {
		t.Fatal("scheduled/in_call must not be terminal")
	}
}
