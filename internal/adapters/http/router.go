package http

import (
	"context"
	nethttp "net/http"
	"time"

	"github.com/dkeye/Televisit/internal/adapters/signal"
	"github.com/dkeye/Televisit/internal/config"
	"github.com/gin-contrib/sessions"
	"github.com/gin-contrib/sessions/cookie"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog/log"
)

func genClientToken() string {
	idStr := uuid.NewString()
	return idStr
}

// ClientTokenMiddleware tags every request with a per-browser token kept in
// the session cookie. Relay logs carry it as "ct".
func ClientTokenMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		s := sessions.Default(c)
		token, _ := s.Get("ct").(string)
		if token == "" {
			token = genClientToken()
			s.Set("ct", token)
			if err := s.Save(); err != nil {
				log.Warn().Err(err).Str("module", "adapters.http").Msg("session save")
			}
		}
		c.Set("client_token", token)
		c.Next()
	}
}

type Deps struct {
	Relay *signal.RelayController
	Store AppointmentStore
	// Gatherer backs /metrics when cfg.Metrics is set.
	Gatherer prometheus.Gatherer
}

func SetupRouter(ctx context.Context, cfg *config.Config, deps Deps) *gin.Engine {
	if cfg.Mode == "release" {
		gin.SetMode(gin.ReleaseMode)
	}

	r := gin.New()
	if cfg.Mode == "debug" {
		r.Use(gin.Logger())
	}
	r.Use(gin.Recovery())

	store := cookie.NewStore([]byte(cfg.Secret))
	store.Options(sessions.Options{Path: "/", MaxAge: 3600 * 24 * 7, HttpOnly: true})
	r.Use(sessions.Sessions("TelevisitSessions", store))
	r.Use(ClientTokenMiddleware())

	if cfg.StaticPath != "" {
		r.Static("/static", cfg.StaticPath)
	}

	r.GET("/ws", func(c *gin.Context) {
		if id := c.Query("appointment_id"); id != "" && deps.Store != nil {
			if err := deps.Store.SetInCall(c, id); err != nil {
				log.Warn().Err(err).Str("module", "adapters.http").Str("appointment", id).Msg("mark in call")
			}
		}
		deps.Relay.HandleSignal(ctx, c)
	})

	api := r.Group("/api")

	api.GET("/rooms", func(c *gin.Context) {
		c.JSON(nethttp.StatusOK, gin.H{"rooms": deps.Relay.Hub.Rooms()})
	})

	if deps.Store != nil {
		h := &appointmentHandlers{store: deps.Store, now: time.Now}
		api.POST("/appointments", h.create)
		appt := api.Group("/appointments/:id")
		appt.GET("/status", h.status)
		appt.PUT("/end-call", h.endCall)
		appt.GET("/messages", h.listMessages)
		appt.POST("/messages", h.postMessage)
	}

	if cfg.Metrics && deps.Gatherer != nil {
		r.GET("/metrics", gin.WrapH(promhttp.HandlerFor(deps.Gatherer, promhttp.HandlerOpts{})))
	}

	log.Info().Str("module", "adapters.http").Bool("metrics", cfg.Metrics).Msg("router setup")
	return r
}
