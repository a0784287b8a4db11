package domain

import "fmt"

type TrackKind string

const (
	TrackAudio TrackKind = "audio"
	TrackVideo TrackKind = "video"
)

func ParseTrackKind(s string) (TrackKind, error) {
	switch TrackKind(s) {
	case TrackAudio, TrackVideo:
		return TrackKind(s), nil
	}
	return "", fmt.Errorf("unknown track kind %q", s)
}

// MediaTrackState is the per-track view exposed to the UI.
type MediaTrackState struct {
	Kind    TrackKind `json:"kind"`
	Enabled bool      `json:"enabled"`
}
