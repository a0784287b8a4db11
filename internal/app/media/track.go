package media

import (
	"sync/atomic"

	"github.com/dkeye/Televisit/internal/domain"
	"github.com/pion/webrtc/v4"
)

type TrackState int32

const (
	TrackStateOk TrackState = iota
	TrackStateMuted
	TrackStateStopped
)

// LocalTrack is one captured track. Muting gates sample writes; the track
// stays attached to the peer connection.
type LocalTrack struct {
	Kind  domain.TrackKind
	Track *webrtc.TrackLocalStaticSample

	source Source
	reader SampleReader
	sender   *webrtc.RTPSender
	attached bool
	state  atomic.Int32 // Zero by default (TrackStateOk)

	written atomic.Uint64
}

func newLocalTrack(src Source, reader SampleReader, streamID string) (*LocalTrack, error) {
	track, err := webrtc.NewTrackLocalStaticSample(src.Codec(), string(src.Kind()), streamID)
	if err != nil {
		return nil, err
	}
	return &LocalTrack{Kind: src.Kind(), Track: track, source: src, reader: reader}, nil
}

func (t *LocalTrack) GetState() TrackState {
	return TrackState(t.state.Load())
}

func (t *LocalTrack) Enabled() bool {
	return t.GetState() == TrackStateOk
}

// setEnabled is a no-op on a stopped track.
func (t *LocalTrack) setEnabled(on bool) bool {
	from, to := TrackStateMuted, TrackStateOk
	if !on {
		from, to = TrackStateOk, TrackStateMuted
	}
	t.state.CompareAndSwap(int32(from), int32(to))
	return t.Enabled()
}

func (t *LocalTrack) markStopped() {
	t.state.Store(int32(TrackStateStopped))
}

// Written counts samples handed to the track while enabled.
func (t *LocalTrack) Written() uint64 { return t.written.Load() }
