package signal

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/dkeye/Televisit/internal/app/relay"
	"github.com/dkeye/Televisit/internal/domain"
	"github.com/gin-gonic/gin"
)

func newRelayServer(t *testing.T) *httptest.Server {
	t.Helper()
	gin.SetMode(gin.TestMode)
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)

	ctl := NewRelayController(relay.NewHub(0, nil), 1<<16, 0)
	r := gin.New()
	r.GET("/ws", func(c *gin.Context) { ctl.HandleSignal(ctx, c) })
	srv := httptest.NewServer(r)
	t.Cleanup(srv.Close)
	return srv
}

func dial(t *testing.T, srv *httptest.Server, p domain.Participant) *Channel {
	t.Helper()
	key, err := domain.NewSessionKey("appt-7", p, domain.Doctor)
	if err != nil {
		t.Fatal(err)
	}
	ch, err := Dial(context.Background(), srv.URL, key)
	if err != nil {
		t.Fatalf("dial %s: %v", p, err)
	}
	return ch
}

func TestRelayURL(t *testing.T) {
	cases := map[string]string{
		"http://example.com":          "ws://example.com/ws?appointment_id=a1&role=patient",
		"https://example.com/api/":    "wss://example.com/api/ws?appointment_id=a1&role=patient",
		"ws://127.0.0.1:8080":         "ws://127.0.0.1:8080/ws?appointment_id=a1&role=patient",
		"wss://relay.example.com/rtc": "wss://relay.example.com/rtc/ws?appointment_id=a1&role=patient",
	}
	for in, want := range cases {
		got, err := RelayURL(in, "a1", domain.Patient)
		if err != nil {
			t.Fatalf("%s: %v", in, err)
		}
		if got != want {
			t.Fatalf("%s: got %s, want %s", in, got, want)
		}
	}
	if _, err := RelayURL("ftp://example.com", "a1", domain.Patient); err == nil {
		t.Fatal("expected scheme error")
	}
}

func TestChannelExchangeAndPeerClose(t *testing.T) {
	srv := newRelayServer(t)

	doc := dial(t, srv, domain.Doctor)
	// Sent before the patient joins; the relay holds it.
	doc.Send(domain.NewOffer("v=0 offer"))

	pat := dial(t, srv, domain.Patient)
	received := make(chan domain.SignalMessage, 4)
	pat.OnMessage(func(m domain.SignalMessage) { received <- m })

	select {
	case m := <-received:
		sdp, err := m.SDP()
		if err != nil || m.Type != domain.MessageOffer || sdp != "v=0 offer" {
			t.Fatalf("got %+v (%v)", m, err)
		}
	case <-time.After(3 * time.Second):
		t.Fatal("offer not relayed")
	}

	patClosed := make(chan error, 2)
	docClosed := make(chan error, 2)
	pat.OnClose(func(err error) { patClosed <- err })
	doc.OnClose(func(err error) { docClosed <- err })

	doc.Close()

	select {
	case err := <-docClosed:
		if err != nil {
			t.Fatalf("local close cause=%v, want nil", err)
		}
	case <-time.After(3 * time.Second):
		t.Fatal("doctor OnClose not fired")
	}
	select {
	case err := <-patClosed:
		if !errors.Is(err, domain.ErrRelayClosed) {
			t.Fatalf("peer close cause=%v, want ErrRelayClosed", err)
		}
	case <-time.After(3 * time.Second):
		t.Fatal("patient OnClose not fired")
	}

	pat.Close()
	<-pat.Done()
	select {
	case err := <-patClosed:
		t.Fatalf("OnClose fired twice: %v", err)
	case <-time.After(100 * time.Millisecond):
	}
}

func TestRelayRejectsBadQuery(t *testing.T) {
	srv := newRelayServer(t)
	for _, q := range []string{"?role=doctor", "?appointment_id=a1&role=nurse", ""} {
		resp, err := http.Get(srv.URL + "/ws" + q)
		if err != nil {
			t.Fatal(err)
		}
		resp.Body.Close()
		if resp.StatusCode != http.StatusBadRequest {
			t.Fatalf("%q: status=%d, want 400", q, resp.StatusCode)
		}
	}
}

func TestDialFailureIsConnectError(t *testing.T) {
	srv := newRelayServer(t)
	url := srv.URL
	srv.Close()

	key, _ := domain.NewSessionKey("appt-7", domain.Patient, domain.Doctor)
	_, err := Dial(context.Background(), url, key)
	var cerr *domain.ConnectError
	if !errors.As(err, &cerr) {
		t.Fatalf("err=%v, want ConnectError", err)
	}
	if !strings.HasPrefix(cerr.URL, "ws://") {
		t.Fatalf("url=%s", cerr.URL)
	}
}

func TestJoinRateLimiter(t *testing.T) {
	rl := NewJoinRateLimiter(2, time.Minute)
	now := time.Unix(1000, 0)
	rl.now = func() time.Time { return now }

	if !rl.Allow("a1/doctor") || !rl.Allow("a1/doctor") {
		t.Fatal("first two attempts must pass")
	}
	if rl.Allow("a1/doctor") {
		t.Fatal("third attempt inside the window must be refused")
	}
	if !rl.Allow("a1/patient") {
		t.Fatal("slots are limited independently")
	}
	now = now.Add(61 * time.Second)
	if !rl.Allow("a1/doctor") {
		t.Fatal("window did not slide")
	}

	var disabled *JoinRateLimiter
	if !disabled.Allow("x") {
		t.Fatal("nil limiter must allow")
	}
}
