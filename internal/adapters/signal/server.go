package signal

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/dkeye/Televisit/internal/app/relay"
	"github.com/dkeye/Televisit/internal/core"
	"github.com/dkeye/Televisit/internal/domain"
	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"
)

// RelayController upgrades /ws requests and plugs each socket into the hub.
type RelayController struct {
	Hub        *relay.Hub
	ReadLimit  int64
	PingPeriod time.Duration
	// Limiter is optional.
	Limiter *JoinRateLimiter
}

func NewRelayController(hub *relay.Hub, readLimit int64, pingPeriod time.Duration) *RelayController {
	return &RelayController{
		Hub:        hub,
		ReadLimit:  readLimit,
		PingPeriod: pingPeriod,
	}
}

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

func (ctl *RelayController) HandleSignal(ctx context.Context, c *gin.Context) {
	appointmentID := c.Query("appointment_id")
	participant, err := domain.ParseParticipant(c.Query("role"))
	if err == nil {
		_, err = domain.NewSessionKey(appointmentID, participant, domain.Doctor)
	}
	if err != nil {
		log.Warn().Err(err).Str("module", "signal").Msg("rejected relay request")
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if !ctl.Limiter.Allow(appointmentID + "/" + string(participant)) {
		log.Warn().Str("module", "signal").Str("appointment", appointmentID).Str("role", string(participant)).Msg("join rate limited")
		c.JSON(http.StatusTooManyRequests, gin.H{"error": "too many connection attempts"})
		return
	}

	ws, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		log.Error().Err(err).Str("module", "signal").Msg("ws upgrade")
		return
	}

	logger := log.With().
		Str("module", "signal").
		Str("appointment", appointmentID).
		Str("role", string(participant)).
		Str("ct", c.GetString("client_token")).
		Logger()
	logger.Info().Msg("new WS connection")

	conn := newWsSignalConn(ws)
	ctl.Hub.Join(appointmentID, participant, conn)

	go writePump(ctx, conn, ctl.PingPeriod, logger)
	go func() {
		err := readPump(conn, ctl.ReadLimit, pongWait(ctl.PingPeriod), func(data []byte) {
			ctl.Hub.Forward(appointmentID, participant, conn, core.Frame(data))
		})
		if err != nil && !errors.Is(err, websocket.ErrCloseSent) {
			logger.Info().Err(err).Msg("readPump closing")
		} else {
			logger.Info().Msg("readPump closing")
		}
		ctl.Hub.Leave(appointmentID, participant, conn)
		conn.Close()
	}()
}

func pongWait(pingPeriod time.Duration) time.Duration {
	if pingPeriod <= 0 {
		return 0
	}
	return pingPeriod * 10 / 9
}
