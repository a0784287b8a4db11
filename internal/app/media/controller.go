package media

import (
	"context"
	"errors"
	"io"
	"sync"
	"time"

	"github.com/dkeye/Televisit/internal/core"
	"github.com/dkeye/Televisit/internal/domain"
	"github.com/pion/rtcp"
	"github.com/pion/webrtc/v4"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

type Constraints struct {
	Audio bool
	Video bool
}

func (c Constraints) kinds() []domain.TrackKind {
	var out []domain.TrackKind
	if c.Audio {
		out = append(out, domain.TrackAudio)
	}
	if c.Video {
		out = append(out, domain.TrackVideo)
	}
	return out
}

// Sources maps a track kind to its capture device.
type Sources map[domain.TrackKind]Source

// LocalMedia is the set of tracks acquired for one session.
type LocalMedia struct {
	logger zerolog.Logger
	tracks []*LocalTrack

	mu      sync.Mutex
	cancel  context.CancelFunc
	started bool

	wg          sync.WaitGroup
	releaseOnce sync.Once
}

// Acquire opens a track per requested kind. It succeeds when at least one
// track is usable and otherwise returns the first *domain.MediaError.
func Acquire(ctx context.Context, c Constraints, sources Sources, streamID string) (*LocalMedia, error) {
	m := &LocalMedia{
		logger: log.With().Str("module", "media").Str("stream", streamID).Logger(),
	}

	var firstErr error
	for _, kind := range c.kinds() {
		if err := ctx.Err(); err != nil {
			m.Release()
			return nil, err
		}
		src, ok := sources[kind]
		if !ok || src == nil {
			err := &domain.MediaError{Kind: domain.DeviceUnavailable, Track: kind, Err: errors.New("no source")}
			firstErr = firstOf(firstErr, err)
			m.logger.Warn().Err(err).Msg("capture unavailable")
			continue
		}
		reader, err := src.Open()
		if err != nil {
			merr := captureError(kind, err)
			firstErr = firstOf(firstErr, merr)
			m.logger.Warn().Err(merr).Msg("capture failed")
			continue
		}
		t, err := newLocalTrack(src, reader, streamID)
		if err != nil {
			_ = reader.Close()
			merr := &domain.MediaError{Kind: domain.DeviceUnavailable, Track: kind, Err: err}
			firstErr = firstOf(firstErr, merr)
			continue
		}
		m.tracks = append(m.tracks, t)
	}

	if len(m.tracks) == 0 {
		if firstErr == nil {
			firstErr = &domain.MediaError{Kind: domain.DeviceUnavailable, Err: errors.New("no tracks requested")}
		}
		return nil, firstErr
	}
	if firstErr != nil {
		m.logger.Warn().Err(firstErr).Int("tracks", len(m.tracks)).Msg("partial capture")
	}
	return m, nil
}

func firstOf(cur, next error) error {
	if cur != nil {
		return cur
	}
	return next
}

func (m *LocalMedia) Tracks() []*LocalTrack {
	return m.tracks
}

func (m *LocalMedia) Track(kind domain.TrackKind) (*LocalTrack, bool) {
	for _, t := range m.tracks {
		if t.Kind == kind {
			return t, true
		}
	}
	return nil, false
}

func (m *LocalMedia) States() []domain.MediaTrackState {
	out := make([]domain.MediaTrackState, 0, len(m.tracks))
	for _, t := range m.tracks {
		out = append(out, domain.MediaTrackState{Kind: t.Kind, Enabled: t.Enabled()})
	}
	return out
}

// Attach adds every track to pc once and drains RTCP from each sender.
func (m *LocalMedia) Attach(pc core.TrackAdder) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, t := range m.tracks {
		if t.attached || t.GetState() == TrackStateStopped {
			continue
		}
		sender, err := pc.AddTrack(t.Track)
		if err != nil {
			return err
		}
		t.sender = sender
		t.attached = true
		if sender == nil {
			continue
		}
		go m.drainRTCP(t.Kind, sender)
	}
	return nil
}

// drainRTCP runs until the peer connection closes the sender.
func (m *LocalMedia) drainRTCP(kind domain.TrackKind, sender *webrtc.RTPSender) {
	for {
		pkts, _, err := sender.ReadRTCP()
		if err != nil {
			return
		}
		for _, p := range pkts {
			switch p.(type) {
			case *rtcp.PictureLossIndication, *rtcp.FullIntraRequest:
				m.logger.Debug().Str("kind", string(kind)).Msg("keyframe requested")
			}
		}
	}
}

// Start runs a sample pump per track until Release or ctx ends. Sources
// loop on EOF.
func (m *LocalMedia) Start(ctx context.Context) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.started {
		return
	}
	m.started = true
	ctx, m.cancel = context.WithCancel(ctx)
	for _, t := range m.tracks {
		m.wg.Add(1)
		go m.pump(ctx, t)
	}
}

func (m *LocalMedia) pump(ctx context.Context, t *LocalTrack) {
	defer m.wg.Done()
	logger := m.logger.With().Str("kind", string(t.Kind)).Logger()

	timer := time.NewTimer(0)
	defer timer.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-timer.C:
		}

		sample, err := t.reader.NextSample()
		if errors.Is(err, io.EOF) {
			if err = m.rewind(t); err == nil {
				timer.Reset(0)
				continue
			}
		}
		if err != nil {
			logger.Error().Err(err).Msg("capture read, stopping track")
			return
		}

		if t.Enabled() {
			if err := t.Track.WriteSample(sample); err != nil && !errors.Is(err, io.ErrClosedPipe) {
				logger.Warn().Err(err).Msg("write sample")
			}
			t.written.Add(1)
		}
		timer.Reset(sample.Duration)
	}
}

func (m *LocalMedia) rewind(t *LocalTrack) error {
	_ = t.reader.Close()
	r, err := t.source.Open()
	if err != nil {
		return err
	}
	t.reader = r
	return nil
}

// Toggle flips the enabled flag of kind. ok is false when no such track
// exists, in which case nothing changes.
func (m *LocalMedia) Toggle(kind domain.TrackKind) (enabled bool, ok bool) {
	t, ok := m.Track(kind)
	if !ok {
		m.logger.Warn().Str("kind", string(kind)).Msg("toggle: no such track")
		return false, false
	}
	enabled = t.setEnabled(!t.Enabled())
	m.logger.Info().Str("kind", string(kind)).Bool("enabled", enabled).Msg("toggle")
	return enabled, true
}

// Release stops every pump and capture. Safe to call more than once.
func (m *LocalMedia) Release() {
	m.releaseOnce.Do(func() {
		m.mu.Lock()
		if m.cancel != nil {
			m.cancel()
		}
		for _, t := range m.tracks {
			t.markStopped()
		}
		m.mu.Unlock()

		m.wg.Wait()
		for _, t := range m.tracks {
			if t.reader != nil {
				_ = t.reader.Close()
			}
		}
		m.logger.Info().Msg("released")
	})
}
