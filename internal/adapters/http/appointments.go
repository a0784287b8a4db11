package http

import (
	"context"
	"errors"
	nethttp "net/http"
	"strings"
	"time"

	"github.com/dkeye/Televisit/internal/adapters/rest"
	"github.com/dkeye/Televisit/internal/domain"
	"github.com/dkeye/Televisit/internal/storage"
	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"
)

// AppointmentStore is the persistence the REST collaborator needs.
type AppointmentStore interface {
	CreateAppointment(ctx context.Context, id string) (domain.Appointment, error)
	Appointment(ctx context.Context, id string) (domain.Appointment, error)
	SetInCall(ctx context.Context, id string) error
	EndCall(ctx context.Context, id string) error
	ListMessages(ctx context.Context, id string) ([]domain.ChatMessage, error)
	PostMessage(ctx context.Context, id string, m domain.ChatMessage) error
}

type appointmentHandlers struct {
	store AppointmentStore
	now   func() time.Time
}

func (h *appointmentHandlers) fail(c *gin.Context, op string, err error) {
	if errors.Is(err, storage.ErrNotFound) {
		c.JSON(nethttp.StatusNotFound, gin.H{"error": "appointment not found"})
		return
	}
	log.Error().Err(err).Str("module", "adapters.http").Str("op", op).Str("appointment", c.Param("id")).Msg("store")
	c.JSON(nethttp.StatusInternalServerError, gin.H{"error": "internal error"})
}

func (h *appointmentHandlers) create(c *gin.Context) {
	var req struct {
		ID string `json:"id"`
	}
	if c.Request.ContentLength != 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(nethttp.StatusBadRequest, gin.H{"error": "invalid body"})
			return
		}
	}
	req.ID = strings.TrimSpace(req.ID)
	if len(req.ID) > domain.MaxAppointmentIDLen {
		c.JSON(nethttp.StatusBadRequest, gin.H{"error": domain.ErrAppointmentTooLong.Error()})
		return
	}
	if req.ID != "" {
		if _, err := h.store.Appointment(c, req.ID); err == nil {
			c.JSON(nethttp.StatusConflict, gin.H{"error": "appointment exists"})
			return
		}
	}
	a, err := h.store.CreateAppointment(c, req.ID)
	if err != nil {
		h.fail(c, "create", err)
		return
	}
	c.JSON(nethttp.StatusCreated, a)
}

func (h *appointmentHandlers) status(c *gin.Context) {
	a, err := h.store.Appointment(c, c.Param("id"))
	if err != nil {
		h.fail(c, "status", err)
		return
	}
	c.JSON(nethttp.StatusOK, gin.H{"status": a.Status})
}

func (h *appointmentHandlers) endCall(c *gin.Context) {
	if err := h.store.EndCall(c, c.Param("id")); err != nil {
		h.fail(c, "end-call", err)
		return
	}
	log.Info().Str("module", "adapters.http").Str("appointment", c.Param("id")).Msg("call ended")
	c.JSON(nethttp.StatusOK, gin.H{
		"status":  domain.StatusCompleted,
		"message": "call ended",
	})
}

func (h *appointmentHandlers) listMessages(c *gin.Context) {
	msgs, err := h.store.ListMessages(c, c.Param("id"))
	if err != nil {
		h.fail(c, "list-messages", err)
		return
	}
	out := make([]rest.Message, 0, len(msgs))
	for _, m := range msgs {
		out = append(out, rest.FromDomain(m))
	}
	c.JSON(nethttp.StatusOK, out)
}

func (h *appointmentHandlers) postMessage(c *gin.Context) {
	var req rest.Message
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(nethttp.StatusBadRequest, gin.H{"error": "invalid body"})
		return
	}
	req.Sender = strings.ToLower(strings.TrimSpace(req.Sender))
	if !domain.ValidSender(req.Sender) {
		c.JSON(nethttp.StatusBadRequest, gin.H{"error": "sender must be doctor, patient or bot"})
		return
	}
	if strings.TrimSpace(req.Content) == "" {
		c.JSON(nethttp.StatusBadRequest, gin.H{"error": "empty content"})
		return
	}
	m := domain.ChatMessage{Sender: req.Sender, Content: req.Content, Timestamp: h.now().UTC()}
	if err := h.store.PostMessage(c, c.Param("id"), m); err != nil {
		h.fail(c, "post-message", err)
		return
	}
	c.JSON(nethttp.StatusCreated, rest.FromDomain(m))
}
