// Package rest talks to the appointment REST collaborator.
package rest

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/dkeye/Televisit/internal/core"
	"github.com/dkeye/Televisit/internal/domain"
)

var ErrNotFound = errors.New("appointment not found")

// Message is the wire form of a stored chat message.
type Message struct {
	Sender  string    `json:"sender"`
	Content string    `json:"content"`
	SentAt  time.Time `json:"sent_at,omitzero"`
}

func (m Message) Domain() domain.ChatMessage {
	return domain.ChatMessage{Sender: m.Sender, Content: m.Content, Timestamp: m.SentAt}
}

func FromDomain(m domain.ChatMessage) Message {
	return Message{Sender: m.Sender, Content: m.Content, SentAt: m.Timestamp}
}

type statusResponse struct {
	Status domain.AppointmentStatus `json:"status"`
}

// Client implements core.AppointmentService and core.MessageStore over HTTP.
type Client struct {
	BaseURL string
	HTTP    *http.Client
}

var (
	_ core.AppointmentService = (*Client)(nil)
	_ core.MessageStore       = (*Client)(nil)
)

func NewClient(baseURL string) *Client {
	return &Client{
		BaseURL: strings.TrimRight(strings.TrimSpace(baseURL), "/"),
		HTTP: &http.Client{
			Timeout: 10 * time.Second,
		},
	}
}

func (c *Client) endpoint(appointmentID, leaf string) string {
	return c.BaseURL + "/api/appointments/" + url.PathEscape(appointmentID) + "/" + leaf
}

// do sends the request and decodes a 2xx JSON body into v when v is non-nil.
func (c *Client) do(ctx context.Context, method, u string, body, v any) error {
	var r io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			return err
		}
		r = bytes.NewReader(b)
	}
	req, err := http.NewRequestWithContext(ctx, method, u, r)
	if err != nil {
		return err
	}
	if body != nil {
		req.Header.Set("content-type", "application/json")
	}
	resp, err := c.HTTP.Do(req)
	if err != nil {
		return err
	}
	defer func() {
		io.Copy(io.Discard, resp.Body)
		resp.Body.Close()
	}()

	if resp.StatusCode == http.StatusNotFound {
		return ErrNotFound
	}
	if resp.StatusCode/100 != 2 {
		return fmt.Errorf("%s %s: status %s", method, u, resp.Status)
	}
	if v == nil {
		return nil
	}
	return json.NewDecoder(resp.Body).Decode(v)
}

func (c *Client) Status(ctx context.Context, appointmentID string) (domain.AppointmentStatus, error) {
	var out statusResponse
	if err := c.do(ctx, http.MethodGet, c.endpoint(appointmentID, "status"), nil, &out); err != nil {
		return "", err
	}
	return out.Status, nil
}

func (c *Client) EndCall(ctx context.Context, appointmentID string) error {
	return c.do(ctx, http.MethodPut, c.endpoint(appointmentID, "end-call"), nil, nil)
}

func (c *Client) ListMessages(ctx context.Context, appointmentID string) ([]domain.ChatMessage, error) {
	var wire []Message
	if err := c.do(ctx, http.MethodGet, c.endpoint(appointmentID, "messages"), nil, &wire); err != nil {
		return nil, err
	}
	msgs := make([]domain.ChatMessage, 0, len(wire))
	for _, m := range wire {
		msgs = append(msgs, m.Domain())
	}
	return msgs, nil
}

// PostMessage sends sender and content only; the store stamps the time.
func (c *Client) PostMessage(ctx context.Context, appointmentID string, m domain.ChatMessage) error {
	body := Message{Sender: m.Sender, Content: m.Content}
	return c.do(ctx, http.MethodPost, c.endpoint(appointmentID, "messages"), body, nil)
}
