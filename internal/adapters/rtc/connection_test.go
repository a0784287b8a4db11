package rtc

import (
	"strings"
	"testing"

	"github.com/dkeye/Televisit/internal/domain"
	"github.com/pion/webrtc/v4"
)

func newConn(t *testing.T, p domain.Participant) *WebRTCConnection {
	t.Helper()
	api, err := NewAPI()
	if err != nil {
		t.Fatal(err)
	}
	key, err := domain.NewSessionKey("appt-rtc", p, domain.Doctor)
	if err != nil {
		t.Fatal(err)
	}
	c, err := NewWebRTCConnection(api, webrtc.Configuration{}, key)
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { _ = c.Close() })
	return c
}

func TestOfferAnswerRoundTrip(t *testing.T) {
	doc := newConn(t, domain.Doctor)
	pat := newConn(t, domain.Patient)

	if _, err := doc.CreateDataChannel("chat"); err != nil {
		t.Fatal(err)
	}
	if err := doc.AddRecvOnly(webrtc.RTPCodecTypeAudio); err != nil {
		t.Fatal(err)
	}

	offer, err := doc.CreateOffer()
	if err != nil {
		t.Fatal(err)
	}
	if !strings.HasPrefix(offer, "v=0") {
		t.Fatalf("offer does not look like sdp: %q", offer)
	}
	if err := pat.SetRemoteDescription(domain.MessageOffer, offer); err != nil {
		t.Fatal(err)
	}
	answer, err := pat.CreateAnswer()
	if err != nil {
		t.Fatal(err)
	}
	if err := doc.SetRemoteDescription(domain.MessageAnswer, answer); err != nil {
		t.Fatal(err)
	}
}

func TestRejectsBadInput(t *testing.T) {
	c := newConn(t, domain.Patient)

	if err := c.SetRemoteDescription(domain.MessageCandidate, "v=0"); err == nil {
		t.Fatal("candidate type accepted as description")
	}
	if err := c.SetRemoteDescription(domain.MessageOffer, "not sdp"); err == nil {
		t.Fatal("malformed offer accepted")
	}
	if err := c.AddICECandidate(domain.Candidate(`[1,2]`)); err == nil {
		t.Fatal("non-object candidate accepted")
	}
}

func TestDataChannelPipeRequiresOpenChatChannel(t *testing.T) {
	c := newConn(t, domain.Doctor)
	pipe := NewDataChannelPipe()
	msg := domain.ChatMessage{Sender: string(domain.Doctor), Content: "hi"}

	if err := pipe.Send(msg); err == nil {
		t.Fatal("send without a channel succeeded")
	}

	other, err := c.CreateDataChannel("files")
	if err != nil {
		t.Fatal(err)
	}
	pipe.Bind(other)
	if pipe.dc != nil {
		t.Fatal("bound a channel with the wrong label")
	}

	chat, err := c.CreateDataChannel(ChatLabel)
	if err != nil {
		t.Fatal(err)
	}
	pipe.Bind(chat)
	if pipe.dc != chat {
		t.Fatal("chat channel not bound")
	}
	if err := pipe.Send(msg); err == nil {
		t.Fatal("send on a channel that never opened succeeded")
	}
}
