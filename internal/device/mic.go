package device

import (
	"fmt"
	"sync"

	"github.com/gordonklaus/portaudio"

	"github.com/sonavox/voice-client/internal/audio"
)

// Microphone reads mono capture-rate samples from the default input
// device. It implements capture.Source.
type Microphone struct {
	stream *portaudio.Stream
	buffer []int16

	mu     sync.Mutex
	closed bool
}

// OpenMicrophone opens the default input device at the capture rate.
// frameSize is the number of samples returned per Read.
func OpenMicrophone(frameSize int) (*Microphone, error) {
	buffer := make([]int16, frameSize)

	stream, err := portaudio.OpenDefaultStream(1, 0, float64(audio.CaptureSampleRate), len(buffer), buffer)
	if err != nil {
		return nil, fmt.Errorf("open input stream: %w", err)
	}

	if err := stream.Start(); err != nil {
		stream.Close()
		return nil, fmt.Errorf("start input stream: %w", err)
	}

	return &Microphone{stream: stream, buffer: buffer}, nil
}

// Read blocks until a hardware buffer is available and fills p with
// samples scaled to [-1, 1].
func (m *Microphone) Read(p []float64) (int, error) {
	if err := m.stream.Read(); err != nil {
		return 0, err
	}

	n := len(m.buffer)
	if n > len(p) {
		n = len(p)
	}
	for i := 0; i < n; i++ {
		p[i] = float64(m.buffer[i]) / 32768.0
	}
	return n, nil
}

// Close stops and closes the input stream. Safe to call more than once.
func (m *Microphone) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return nil
	}
	m.closed = true

	var err error
	if stopErr := m.stream.Stop(); stopErr != nil {
		err = stopErr
	}
	if closeErr := m.stream.Close(); closeErr != nil && err == nil {
		err = closeErr
	}
	return err
}
