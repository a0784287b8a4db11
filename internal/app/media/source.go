// Package media owns local capture tracks and the consumers of remote ones.
package media

import (
	"errors"
	"io/fs"

	"github.com/dkeye/Televisit/internal/domain"
	"github.com/pion/webrtc/v4"
	"github.com/pion/webrtc/v4/pkg/media"
)

// SampleReader yields encoded frames. io.EOF ends one pass of the stream.
type SampleReader interface {
	NextSample() (media.Sample, error)
	Close() error
}

// Source is a capture device for one kind of track.
type Source interface {
	Kind() domain.TrackKind
	Codec() webrtc.RTPCodecCapability
	Open() (SampleReader, error)
}

// captureError maps an open failure onto the capture error taxonomy.
func captureError(kind domain.TrackKind, err error) *domain.MediaError {
	var merr *domain.MediaError
	if errors.As(err, &merr) {
		return merr
	}
	k := domain.DeviceUnavailable
	if errors.Is(err, fs.ErrPermission) {
		k = domain.PermissionDenied
	}
	return &domain.MediaError{Kind: k, Track: kind, Err: err}
}
