package http

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	nethttp "net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"

	"github.com/dkeye/Televisit/internal/adapters/rest"
	"github.com/dkeye/Televisit/internal/adapters/signal"
	"github.com/dkeye/Televisit/internal/app/relay"
	"github.com/dkeye/Televisit/internal/config"
	"github.com/dkeye/Televisit/internal/domain"
	"github.com/dkeye/Televisit/internal/storage"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
)

func newTestServer(t *testing.T) (*httptest.Server, *storage.Store) {
	t.Helper()
	gin.SetMode(gin.TestMode)

	store, err := storage.Open(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { _ = store.Close() })

	reg := prometheus.NewRegistry()
	hub := relay.NewHub(relay.DefaultPendingLimit, relay.NewMetrics(reg))
	cfg := &config.Config{Mode: "test", Secret: "test-secret", Metrics: true}
	r := SetupRouter(context.Background(), cfg, Deps{
		Relay:    signal.NewRelayController(hub, 1<<15, 0),
		Store:    store,
		Gatherer: reg,
	})
	srv := httptest.NewServer(r)
	t.Cleanup(srv.Close)
	return srv, store
}

func do(t *testing.T, method, url string, body any) *nethttp.Response {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatal(err)
		}
	}
	req, err := nethttp.NewRequest(method, url, &buf)
	if err != nil {
		t.Fatal(err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	resp, err := nethttp.DefaultClient.Do(req)
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { resp.Body.Close() })
	return resp
}

func TestAppointmentRoutes(t *testing.T) {
	srv, _ := newTestServer(t)
	base := srv.URL + "/api/appointments"

	resp := do(t, nethttp.MethodPost, base, map[string]string{"id": "appt-7"})
	if resp.StatusCode != nethttp.StatusCreated {
		t.Fatalf("create: %d", resp.StatusCode)
	}
	if resp := do(t, nethttp.MethodPost, base, map[string]string{"id": "appt-7"}); resp.StatusCode != nethttp.StatusConflict {
		t.Fatalf("duplicate create: %d", resp.StatusCode)
	}

	resp = do(t, nethttp.MethodGet, base+"/appt-7/status", nil)
	var st struct{ Status string }
	json.NewDecoder(resp.Body).Decode(&st)
	if resp.StatusCode != nethttp.StatusOK || st.Status != string(domain.StatusScheduled) {
		t.Fatalf("status: %d %q", resp.StatusCode, st.Status)
	}
	if resp := do(t, nethttp.MethodGet, base+"/missing/status", nil); resp.StatusCode != nethttp.StatusNotFound {
		t.Fatalf("missing status: %d", resp.StatusCode)
	}

	if resp := do(t, nethttp.MethodPost, base+"/appt-7/messages", map[string]string{"sender": "nurse", "content": "x"}); resp.StatusCode != nethttp.StatusBadRequest {
		t.Fatalf("bad sender: %d", resp.StatusCode)
	}
	if resp := do(t, nethttp.MethodPost, base+"/missing/messages", map[string]string{"sender": "doctor", "content": "x"}); resp.StatusCode != nethttp.StatusNotFound {
		t.Fatalf("unknown appointment: %d", resp.StatusCode)
	}
	for _, m := range []map[string]string{
		{"sender": "doctor", "content": "hi"},
		{"sender": "Patient", "content": "hello"},
	} {
		if resp := do(t, nethttp.MethodPost, base+"/appt-7/messages", m); resp.StatusCode != nethttp.StatusCreated {
			t.Fatalf("post: %d", resp.StatusCode)
		}
	}

	// the REST client reads the same routes
	client := rest.NewClient(srv.URL)
	msgs, err := client.ListMessages(context.Background(), "appt-7")
	if err != nil {
		t.Fatal(err)
	}
	if len(msgs) != 2 || msgs[0].Content != "hi" || msgs[1].Sender != "patient" || msgs[1].Timestamp.IsZero() {
		t.Fatalf("messages = %+v", msgs)
	}

	for i := 0; i < 2; i++ {
		if err := client.EndCall(context.Background(), "appt-7"); err != nil {
			t.Fatalf("end call %d: %v", i, err)
		}
	}
	status, err := client.Status(context.Background(), "appt-7")
	if err != nil || !status.IsTerminal() {
		t.Fatalf("after end: %q %v", status, err)
	}
	if err := client.EndCall(context.Background(), "missing"); err != rest.ErrNotFound {
		t.Fatalf("end missing: %v", err)
	}
}

func TestCreateGeneratesID(t *testing.T) {
	srv, _ := newTestServer(t)
	resp := do(t, nethttp.MethodPost, srv.URL+"/api/appointments", nil)
	var a domain.Appointment
	if err := json.NewDecoder(resp.Body).Decode(&a); err != nil {
		t.Fatal(err)
	}
	if resp.StatusCode != nethttp.StatusCreated || a.ID == "" || a.Status != domain.StatusScheduled {
		t.Fatalf("create: %d %+v", resp.StatusCode, a)
	}
}

func TestRelayEndpointValidatesQuery(t *testing.T) {
	srv, _ := newTestServer(t)
	resp := do(t, nethttp.MethodGet, srv.URL+"/ws?appointment_id=a&role=nurse", nil)
	if resp.StatusCode != nethttp.StatusBadRequest {
		t.Fatalf("status = %d", resp.StatusCode)
	}
}

func TestClientTokenCookie(t *testing.T) {
	srv, _ := newTestServer(t)
	resp := do(t, nethttp.MethodGet, srv.URL+"/api/rooms", nil)
	if resp.StatusCode != nethttp.StatusOK {
		t.Fatalf("rooms: %d", resp.StatusCode)
	}
	found := false
	for _, c := range resp.Cookies() {
		if c.Name == "TelevisitSessions" && c.HttpOnly {
			found = true
		}
	}
	if !found {
		t.Fatal("session cookie not set")
	}
}

func TestMetricsEndpoint(t *testing.T) {
	srv, _ := newTestServer(t)
	resp := do(t, nethttp.MethodGet, srv.URL+"/metrics", nil)
	if resp.StatusCode != nethttp.StatusOK {
		t.Fatalf("metrics: %d", resp.StatusCode)
	}
	b, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(string(b), "televisit_relay_rooms") {
		t.Fatal("relay gauge missing from exposition")
	}
}
