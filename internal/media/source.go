// Package media owns access to the local audio source. Acquisition either
// yields a live audio-only source or fails; there is no automatic retry.
package media

import (
	"errors"
	"fmt"
	"io"
	"log"
	"os"
	"sync"
	"time"

	"github.com/pion/webrtc/v4"
	pionmedia "github.com/pion/webrtc/v4/pkg/media"
)

// ErrNoDevice indicates no audio source is available (missing input,
// permission denied, or no device).
var ErrNoDevice = errors.New("media: no audio source available")

const (
	frameInterval = 20 * time.Millisecond
	frameSize     = 320 // bytes fed to the outbound track per interval
)

// Source is a live local audio source. Peer links attach its tracks; the
// capture controller slices its data. Neither may mutate it.
type Source interface {
	// Tracks returns the local tracks to attach to every peer link.
	Tracks() []webrtc.TrackLocal

	// ReadChunk returns the audio accrued since the previous call. An
	// ended source returns empty chunks, not an error.
	ReadChunk() ([]byte, error)

	Close() error
}

// Config selects the audio input for this session.
type Config struct {
	// InputPath is the audio input to read from (a file or pipe standing
	// in for the capture device). Empty means no device.
	InputPath string
}

// Acquire opens the configured audio input and returns a live Source.
func Acquire(cfg Config, logger *log.Logger) (Source, error) {
	if cfg.InputPath == "" {
		return nil, ErrNoDevice
	}
	f, err := os.Open(cfg.InputPath)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrNoDevice, err)
	}

	track, err := webrtc.NewTrackLocalStaticSample(
		webrtc.RTPCodecCapability{MimeType: webrtc.MimeTypeOpus}, "audio", "huddle")
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("media: create local track: %w", err)
	}

	s := &readerSource{
		rc:     f,
		track:  track,
		logger: logger,
		done:   make(chan struct{}),
	}
	go s.pump()
	return s, nil
}

// readerSource feeds the input to the outbound track in real time and
// accrues the same bytes for the capture controller.
type readerSource struct {
	rc     io.ReadCloser
	track  *webrtc.TrackLocalStaticSample
	logger *log.Logger

	mu   sync.Mutex
	pend []byte

	done      chan struct{}
	closeOnce sync.Once
}

func (s *readerSource) Tracks() []webrtc.TrackLocal {
	return []webrtc.TrackLocal{s.track}
}

func (s *readerSource) ReadChunk() ([]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := s.pend
	s.pend = nil
	return out, nil
}

func (s *readerSource) Close() error {
	var err error
	s.closeOnce.Do(func() {
		close(s.done)
		err = s.rc.Close()
	})
	return err
}

func (s *readerSource) pump() {
	ticker := time.NewTicker(frameInterval)
	defer ticker.Stop()

	buf := make([]byte, frameSize)
	for {
		select {
		case <-s.done:
			return
		case <-ticker.C:
		}

		n, err := s.rc.Read(buf)
		if n > 0 {
			frame := make([]byte, n)
			copy(frame, buf[:n])

			if werr := s.track.WriteSample(pionmedia.Sample{Data: frame, Duration: frameInterval}); werr != nil {
				s.logger.Printf("media: write sample: %v", werr)
			}

			s.mu.Lock()
			s.pend = append(s.pend, frame...)
			s.mu.Unlock()
		}
		if err != nil {
			if err != io.EOF {
				s.logger.Printf("media: source read: %v", err)
			}
			return // source ended; ReadChunk keeps returning what accrued
		}
	}
}
