package rest

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/dkeye/Televisit/internal/domain"
)

func TestClientAgainstCollaborator(t *testing.T) {
	sentAt := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	var (
		posted []Message
		ended  int
	)
	mux := http.NewServeMux()
	mux.HandleFunc("GET /api/appointments/{id}/status", func(w http.ResponseWriter, r *http.Request) {
		if r.PathValue("id") != "a 1" {
			http.NotFound(w, r)
			return
		}
		json.NewEncoder(w).Encode(map[string]string{"status": "Completed"})
	})
	mux.HandleFunc("PUT /api/appointments/{id}/end-call", func(w http.ResponseWriter, r *http.Request) {
		ended++
		w.WriteHeader(http.StatusOK)
	})
	mux.HandleFunc("GET /api/appointments/{id}/messages", func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode([]Message{
			{Sender: "doctor", Content: "hi", SentAt: sentAt},
			{Sender: "patient", Content: "hello"},
		})
	})
	mux.HandleFunc("POST /api/appointments/{id}/messages", func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("content-type") != "application/json" {
			w.WriteHeader(http.StatusUnsupportedMediaType)
			return
		}
		var m Message
		if err := json.NewDecoder(r.Body).Decode(&m); err != nil {
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		posted = append(posted, m)
		w.WriteHeader(http.StatusCreated)
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	c := NewClient(srv.URL + "/")
	ctx := context.Background()

	st, err := c.Status(ctx, "a 1")
	if err != nil {
		t.Fatal(err)
	}
	if !st.IsTerminal() {
		t.Fatalf("status %q not terminal", st)
	}
	if _, err := c.Status(ctx, "missing"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("missing appointment err = %v", err)
	}

	if err := c.EndCall(ctx, "a 1"); err != nil || ended != 1 {
		t.Fatalf("end call: %v, ended=%d", err, ended)
	}

	msgs, err := c.ListMessages(ctx, "a 1")
	if err != nil {
		t.Fatal(err)
	}
	if len(msgs) != 2 || msgs[0].Sender != "doctor" || !msgs[0].Timestamp.Equal(sentAt) || msgs[1].Content != "hello" {
		t.Fatalf("messages = %+v", msgs)
	}

	err = c.PostMessage(ctx, "a 1", domain.ChatMessage{Sender: "patient", Content: "thanks", Timestamp: sentAt})
	if err != nil {
		t.Fatal(err)
	}
	if len(posted) != 1 || posted[0].Content != "thanks" || !posted[0].SentAt.IsZero() {
		t.Fatalf("posted = %+v", posted)
	}
}

func TestClientSurfacesServerErrors(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	c := NewClient(srv.URL)
	if err := c.EndCall(context.Background(), "x"); err == nil || errors.Is(err, ErrNotFound) {
		t.Fatalf("err = %v", err)
	}
	if _, err := c.ListMessages(context.Background(), "x"); err == nil {
		t.Fatal("expected error")
	}
}

func TestClientUnreachable(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	base := srv.URL
	srv.Close()

	if _, err := NewClient(base).Status(context.Background(), "x"); err == nil {
		t.Fatal("expected transport error")
	}
}
