package session

import (
	"context"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/dkeye/Televisit/internal/adapters/signal"
	"github.com/dkeye/Televisit/internal/app/negotiator"
	"github.com/dkeye/Televisit/internal/app/relay"
	"github.com/dkeye/Televisit/internal/core"
	"github.com/dkeye/Televisit/internal/domain"
	"github.com/gin-gonic/gin"
)

func eventually(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(3 * time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatalf("timed out waiting for %s", what)
		}
		time.Sleep(10 * time.Millisecond)
	}
}

// Both sides over a real relay: the doctor's offer waits in the relay until
// the patient joins, both reach Connected, and one side ending closes the
// other.
func TestCallOverRelay(t *testing.T) {
	gin.SetMode(gin.TestMode)
	hub := relay.NewHub(relay.DefaultPendingLimit, nil)
	ctl := signal.NewRelayController(hub, 1<<16, 0)
	r := gin.New()
	r.GET("/ws", func(c *gin.Context) { ctl.HandleSignal(context.Background(), c) })
	srv := httptest.NewServer(r)
	defer srv.Close()

	dial := func(ctx context.Context, serverURL string, key domain.SessionKey) (core.SignalChannel, error) {
		ch, err := signal.Dial(ctx, serverURL, key)
		if err != nil {
			return nil, err
		}
		return ch, nil
	}

	doc := newHarness(t, domain.Doctor, nil)
	doc.cfg.ServerURL = srv.URL
	doc.deps.Dial = dial
	pat := newHarness(t, domain.Patient, nil)
	pat.cfg.ServerURL = srv.URL
	pat.deps.Dial = dial

	doctor := doc.start(t)
	eventually(t, "offer sent", func() bool { return doctor.Negotiation() == negotiator.OfferSent })

	patient := pat.start(t)
	eventually(t, "both connected", func() bool {
		return doctor.Negotiation() == negotiator.Connected && patient.Negotiation() == negotiator.Connected
	})

	res := doctor.End(context.Background(), ReasonLocal)
	if res.Reason != ReasonLocal || !res.Notified {
		t.Fatalf("doctor result = %+v", res)
	}
	pres := waitDone(t, patient)
	if pres.Reason != ReasonRelayClosed {
		t.Fatalf("patient result = %+v", pres)
	}
	if doctor.Negotiation() != negotiator.Closed || patient.Negotiation() != negotiator.Closed {
		t.Fatalf("negotiation: doctor=%v patient=%v", doctor.Negotiation(), patient.Negotiation())
	}
	eventually(t, "room removed", func() bool { return len(hub.Rooms()) == 0 })
}
