package media

import (
	"fmt"
	"os"
	"time"

	"github.com/dkeye/Televisit/internal/domain"
	"github.com/pion/webrtc/v4"
	"github.com/pion/webrtc/v4/pkg/media"
	"github.com/pion/webrtc/v4/pkg/media/ivfreader"
	"github.com/pion/webrtc/v4/pkg/media/oggreader"
)

const (
	defaultFrameDuration = 33 * time.Millisecond
	opusSampleRate       = 48000
	opusFrameDuration    = 20 * time.Millisecond
)

// FileSource plays a VP8 IVF file as video or an Opus Ogg file as audio.
type FileSource struct {
	kind domain.TrackKind
	path string
}

func NewFileSource(kind domain.TrackKind, path string) *FileSource {
	return &FileSource{kind: kind, path: path}
}

func (s *FileSource) Kind() domain.TrackKind { return s.kind }

func (s *FileSource) Codec() webrtc.RTPCodecCapability {
	if s.kind == domain.TrackVideo {
		return webrtc.RTPCodecCapability{MimeType: webrtc.MimeTypeVP8, ClockRate: 90000}
	}
	return webrtc.RTPCodecCapability{MimeType: webrtc.MimeTypeOpus, ClockRate: opusSampleRate, Channels: 2}
}

func (s *FileSource) Open() (SampleReader, error) {
	if s.path == "" {
		return nil, &domain.MediaError{Kind: domain.DeviceUnavailable, Track: s.kind, Err: fmt.Errorf("no %s source configured", s.kind)}
	}
	f, err := os.Open(s.path)
	if err != nil {
		return nil, captureError(s.kind, err)
	}

	var r SampleReader
	if s.kind == domain.TrackVideo {
		r, err = newIVFSampleReader(f)
	} else {
		r, err = newOggSampleReader(f)
	}
	if err != nil {
		_ = f.Close()
		return nil, &domain.MediaError{Kind: domain.DeviceUnavailable, Track: s.kind, Err: err}
	}
	return r, nil
}

type ivfSampleReader struct {
	f        *os.File
	reader   *ivfreader.IVFReader
	duration time.Duration
}

func newIVFSampleReader(f *os.File) (*ivfSampleReader, error) {
	reader, header, err := ivfreader.NewWith(f)
	if err != nil {
		return nil, err
	}
	if header.FourCC != "VP80" {
		return nil, fmt.Errorf("unsupported ivf codec %q", header.FourCC)
	}
	d := defaultFrameDuration
	if header.TimebaseDenominator != 0 && header.TimebaseNumerator != 0 {
		d = time.Duration(int64(time.Second) * int64(header.TimebaseNumerator) / int64(header.TimebaseDenominator))
	}
	return &ivfSampleReader{f: f, reader: reader, duration: d}, nil
}

func (r *ivfSampleReader) NextSample() (media.Sample, error) {
	frame, _, err := r.reader.ParseNextFrame()
	if err != nil {
		return media.Sample{}, err
	}
	return media.Sample{Data: frame, Duration: r.duration}, nil
}

func (r *ivfSampleReader) Close() error { return r.f.Close() }

type oggSampleReader struct {
	f           *os.File
	reader      *oggreader.OggReader
	lastGranule uint64
}

func newOggSampleReader(f *os.File) (*oggSampleReader, error) {
	reader, _, err := oggreader.NewWith(f)
	if err != nil {
		return nil, err
	}
	return &oggSampleReader{f: f, reader: reader}, nil
}

func (r *oggSampleReader) NextSample() (media.Sample, error) {
	page, header, err := r.reader.ParseNextPage()
	if err != nil {
		return media.Sample{}, err
	}
	d := pageDuration(r.lastGranule, header.GranulePosition)
	if header.GranulePosition != noGranule && header.GranulePosition >= r.lastGranule {
		r.lastGranule = header.GranulePosition
	}
	return media.Sample{Data: page, Duration: d}, nil
}

// noGranule marks a page on which no packet ends.
const noGranule = ^uint64(0)

// pageDuration converts the granule advance of an Opus page to time. A page
// without a granule, or one that goes backwards, counts as one frame.
func pageDuration(last, cur uint64) time.Duration {
	if cur == noGranule || cur < last {
		return opusFrameDuration
	}
	return time.Duration(cur-last) * time.Second / opusSampleRate
}

func (r *oggSampleReader) Close() error { return r.f.Close() }
