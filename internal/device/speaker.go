package device

import (
	"fmt"
	"sync"
	"time"

	"github.com/gordonklaus/portaudio"

	"github.com/sonavox/voice-client/internal/audio"
	"github.com/sonavox/voice-client/internal/playback"
)

const speakerFrameSize = 1024

// Speaker writes decoded audio to the default output device at the
// scheduled time. It implements playback.Sink. Buffers scheduled
// back-to-back by the scheduler are written back-to-back; the write
// mutex keeps their frames from interleaving.
type Speaker struct {
	stream *portaudio.Stream
	buffer []int16

	writeMu sync.Mutex

	mu     sync.Mutex
	closed bool
}

// OpenSpeaker opens the default output device at the playback rate.
func OpenSpeaker() (*Speaker, error) {
	buffer := make([]int16, speakerFrameSize)

	stream, err := portaudio.OpenDefaultStream(0, 1, float64(audio.PlaybackSampleRate), len(buffer), buffer)
	if err != nil {
		return nil, fmt.Errorf("open output stream: %w", err)
	}

	if err := stream.Start(); err != nil {
		stream.Close()
		return nil, fmt.Errorf("start output stream: %w", err)
	}

	return &Speaker{stream: stream, buffer: buffer}, nil
}

// Play schedules buf to start at the given wall-clock time.
func (s *Speaker) Play(buf *audio.DecodedAudio, at time.Time) (playback.Handle, error) {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil, fmt.Errorf("speaker is closed")
	}
	s.mu.Unlock()

	h := &speakerHandle{stop: make(chan struct{})}
	go s.play(buf, at, h)
	return h, nil
}

func (s *Speaker) play(buf *audio.DecodedAudio, at time.Time, h *speakerHandle) {
	if wait := time.Until(at); wait > 0 {
		timer := time.NewTimer(wait)
		defer timer.Stop()
		select {
		case <-h.stop:
			return
		case <-timer.C:
		}
	}

	samples := buf.Samples
	for off := 0; off < len(samples); off += speakerFrameSize {
		select {
		case <-h.stop:
			return
		default:
		}

		end := off + speakerFrameSize
		if end > len(samples) {
			end = len(samples)
		}

		s.writeMu.Lock()
		s.mu.Lock()
		if s.closed {
			s.mu.Unlock()
			s.writeMu.Unlock()
			return
		}
		s.mu.Unlock()

		for i := range s.buffer {
			s.buffer[i] = 0
		}
		for i, v := range samples[off:end] {
			if v > 1 {
				v = 1
			} else if v < -1 {
				v = -1
			}
			if v >= 0 {
				s.buffer[i] = int16(v * 32767)
			} else {
				s.buffer[i] = int16(v * 32768)
			}
		}

		// Underflows can happen when the scheduler starts a chunk
		// slightly late; keep going.
		_ = s.stream.Write()
		s.writeMu.Unlock()
	}
}

// Close stops and closes the output stream. Safe to call more than once.
func (s *Speaker) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	s.mu.Unlock()

	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	var err error
	if stopErr := s.stream.Stop(); stopErr != nil {
		err = stopErr
	}
	if closeErr := s.stream.Close(); closeErr != nil && err == nil {
		err = closeErr
	}
	return err
}

type speakerHandle struct {
	once sync.Once
	stop chan struct{}
}

// Stop halts playback of this buffer. Safe to call more than once.
func (h *speakerHandle) Stop() {
	h.once.Do(func() { close(h.stop) })
}
