package signal

import (
	"context"
	"fmt"
	"net/url"
	"path"
	"sync"
	"time"

	"github.com/dkeye/Televisit/internal/core"
	"github.com/dkeye/Televisit/internal/domain"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

const (
	dialTimeout = 10 * time.Second
	maxBacklog  = 256
)

// Channel is the client end of the relay link. It implements
// core.SignalChannel.
type Channel struct {
	conn   *WsSignalConn
	logger zerolog.Logger

	messages core.Handlers[domain.SignalMessage]
	closers  core.Handlers[error]

	// deliver serializes dispatch with backlog hand-off in OnMessage.
	deliver sync.Mutex
	backlog []domain.SignalMessage

	mu          sync.Mutex
	localClose  bool
	finished    bool
	cause       error
	cancelPumps context.CancelFunc
	done        chan struct{}
}

var _ core.SignalChannel = (*Channel)(nil)

// RelayURL derives the relay endpoint from the collaborator base URL.
func RelayURL(serverURL string, appointmentID string, p domain.Participant) (string, error) {
	u, err := url.Parse(serverURL)
	if err != nil {
		return "", err
	}
	switch u.Scheme {
	case "http", "ws":
		u.Scheme = "ws"
	case "https", "wss":
		u.Scheme = "wss"
	default:
		return "", fmt.Errorf("unsupported scheme %q", u.Scheme)
	}
	u.Path = path.Join("/", u.Path, "ws")
	q := url.Values{}
	q.Set("appointment_id", appointmentID)
	q.Set("role", string(p))
	u.RawQuery = q.Encode()
	return u.String(), nil
}

// Dial opens the relay link for key. Any failure is a *domain.ConnectError.
func Dial(ctx context.Context, serverURL string, key domain.SessionKey) (*Channel, error) {
	target, err := RelayURL(serverURL, key.AppointmentID, key.Participant)
	if err != nil {
		return nil, &domain.ConnectError{URL: serverURL, Err: err}
	}

	dialer := websocket.Dialer{HandshakeTimeout: dialTimeout}
	ws, resp, err := dialer.DialContext(ctx, target, nil)
	if resp != nil && resp.Body != nil {
		_ = resp.Body.Close()
	}
	if err != nil {
		return nil, &domain.ConnectError{URL: target, Err: err}
	}

	pumpCtx, cancel := context.WithCancel(context.Background())
	ch := &Channel{
		conn: newWsSignalConn(ws),
		logger: log.With().
			Str("module", "signal.client").
			Str("appointment", key.AppointmentID).
			Str("role", string(key.Participant)).
			Logger(),
		cancelPumps: cancel,
		done:        make(chan struct{}),
	}
	ch.logger.Info().Str("url", target).Msg("relay connected")

	go writePump(pumpCtx, ch.conn, 0, ch.logger)
	go ch.read()
	return ch, nil
}

func (ch *Channel) read() {
	err := readPump(ch.conn, 0, 0, ch.dispatch)

	ch.mu.Lock()
	local := ch.localClose
	ch.mu.Unlock()

	var cause error
	if !local {
		cause = domain.ErrRelayClosed
		ch.logger.Warn().AnErr("read", err).Msg("relay closed")
	}
	ch.conn.Close()
	ch.cancelPumps()
	ch.finish(cause)
}

func (ch *Channel) dispatch(data []byte) {
	msg, err := domain.DecodeSignal(data)
	if err != nil {
		ch.logger.Warn().Err(err).Msg("dropping malformed message")
		return
	}
	ch.deliver.Lock()
	defer ch.deliver.Unlock()
	if ch.messages.Len() == 0 {
		if len(ch.backlog) >= maxBacklog {
			ch.logger.Warn().Str("type", string(msg.Type)).Msg("backlog full, message dropped")
			return
		}
		ch.backlog = append(ch.backlog, msg)
		return
	}
	ch.messages.Emit(msg)
}

func (ch *Channel) finish(cause error) {
	ch.mu.Lock()
	if ch.finished {
		ch.mu.Unlock()
		return
	}
	ch.finished = true
	ch.cause = cause
	ch.mu.Unlock()

	ch.closers.Emit(cause)
	close(ch.done)
}

func (ch *Channel) Send(msg domain.SignalMessage) {
	data, err := domain.EncodeSignal(msg)
	if err != nil {
		ch.logger.Error().Err(err).Str("type", string(msg.Type)).Msg("encode")
		return
	}
	if err := ch.conn.TrySend(data); err != nil {
		ch.logger.Warn().Err(err).Str("type", string(msg.Type)).Msg("send dropped")
	}
}

// OnMessage registers fn. Messages that arrived while no handler was
// registered are handed to the first one, in order, before anything newer.
func (ch *Channel) OnMessage(fn func(domain.SignalMessage)) func() {
	ch.deliver.Lock()
	defer ch.deliver.Unlock()
	remove := ch.messages.Add(fn)
	backlog := ch.backlog
	ch.backlog = nil
	for _, m := range backlog {
		fn(m)
	}
	return remove
}

// OnClose registers fn. On an already closed channel fn runs immediately.
func (ch *Channel) OnClose(fn func(error)) func() {
	ch.mu.Lock()
	if ch.finished {
		cause := ch.cause
		ch.mu.Unlock()
		fn(cause)
		return func() {}
	}
	defer ch.mu.Unlock()
	return ch.closers.Add(fn)
}

// Close flushes queued messages and closes the socket without waiting.
// OnClose handlers observe a nil cause. Safe to call from a handler.
func (ch *Channel) Close() {
	ch.mu.Lock()
	if ch.localClose {
		ch.mu.Unlock()
		return
	}
	ch.localClose = true
	ch.mu.Unlock()

	ch.conn.Close()
}

// Done is closed after OnClose handlers have run.
func (ch *Channel) Done() <-chan struct{} { return ch.done }
