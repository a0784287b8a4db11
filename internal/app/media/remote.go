package media

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/pion/interceptor"
	"github.com/pion/rtp"
	"github.com/pion/webrtc/v4"
	"github.com/pion/webrtc/v4/pkg/media/ivfwriter"
	"github.com/pion/webrtc/v4/pkg/media/oggwriter"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// RemoteTrack is the read side of an inbound track; *webrtc.TrackRemote
// satisfies it.
type RemoteTrack interface {
	ID() string
	Kind() webrtc.RTPCodecType
	Codec() webrtc.RTPCodecParameters
	ReadRTP() (*rtp.Packet, interceptor.Attributes, error)
}

type rtpWriter interface {
	WriteRTP(*rtp.Packet) error
	Close() error
}

type discardWriter struct{}

func (discardWriter) WriteRTP(*rtp.Packet) error { return nil }
func (discardWriter) Close() error                { return nil }

// Receiver consumes remote tracks. With a record directory it writes VP8
// video to IVF and Opus audio to Ogg; otherwise packets are discarded.
type Receiver struct {
	dir    string
	prefix string
	logger zerolog.Logger

	mu       sync.Mutex
	closed   bool
	wg       sync.WaitGroup
	received atomic.Uint64
}

func NewReceiver(recordDir, prefix string) *Receiver {
	return &Receiver{
		dir:    recordDir,
		prefix: prefix,
		logger: log.With().Str("module", "media.remote").Str("prefix", prefix).Logger(),
	}
}

// Receive reads track until it ends. Tracks arriving after Wait are ignored.
func (r *Receiver) Receive(track RemoteTrack) {
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		r.logger.Debug().Str("track_id", track.ID()).Msg("track after shutdown ignored")
		return
	}
	r.wg.Add(1)
	r.mu.Unlock()

	w, err := r.writerFor(track)
	if err != nil {
		r.logger.Warn().Err(err).Str("track_id", track.ID()).Msg("recording disabled for track")
		w = discardWriter{}
	}

	go func() {
		defer r.wg.Done()
		defer func() {
			if err := w.Close(); err != nil {
				r.logger.Warn().Err(err).Msg("close recorder")
			}
		}()
		for {
			pkt, _, err := track.ReadRTP()
			if err != nil {
				r.logger.Info().Err(err).Str("kind", track.Kind().String()).Msg("remote track ended")
				return
			}
			r.received.Add(1)
			if err := w.WriteRTP(pkt); err != nil {
				r.logger.Warn().Err(err).Msg("record write, switching to discard")
				_ = w.Close()
				w = discardWriter{}
			}
		}
	}()
}

func (r *Receiver) writerFor(track RemoteTrack) (rtpWriter, error) {
	if r.dir == "" {
		return discardWriter{}, nil
	}
	if err := os.MkdirAll(r.dir, 0o755); err != nil {
		return nil, err
	}
	mime := strings.ToLower(track.Codec().MimeType)
	switch {
	case mime == strings.ToLower(webrtc.MimeTypeVP8):
		return ivfwriter.New(r.path(track, "ivf"))
	case mime == strings.ToLower(webrtc.MimeTypeOpus):
		return oggwriter.New(r.path(track, "ogg"), track.Codec().ClockRate, uint16(track.Codec().Channels))
	default:
		return nil, fmt.Errorf("no recorder for %s", track.Codec().MimeType)
	}
}

func (r *Receiver) path(track RemoteTrack, ext string) string {
	return filepath.Join(r.dir, fmt.Sprintf("%s-%s.%s", r.prefix, track.Kind().String(), ext))
}

// Received counts RTP packets read across all tracks.
func (r *Receiver) Received() uint64 { return r.received.Load() }

// Wait stops accepting tracks and blocks until every received one has ended.
func (r *Receiver) Wait() {
	r.mu.Lock()
	r.closed = true
	r.mu.Unlock()
	r.wg.Wait()
}
