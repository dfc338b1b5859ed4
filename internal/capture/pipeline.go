package capture

import (
	"errors"
	"io"
	"sync"

	"github.com/rs/zerolog"

	"github.com/sonavox/voice-client/internal/audio"
	"github.com/sonavox/voice-client/internal/observability"
)

// Source produces raw microphone samples in the range [-1, 1].
type Source interface {
	// Read fills buf and returns the number of samples read.
	Read(buf []float64) (int, error)
	Close() error
}

// SendFunc ships one base64-encoded PCM frame upstream. Failures are
// logged and dropped; capture never blocks on the network.
type SendFunc func(encoded string) error

// LevelFunc receives the loudness of each captured frame, in [0, 1].
type LevelFunc func(level float64)

// Pipeline reads microphone audio, accumulates fixed-size frames,
// reports loudness, and ships encoded frames upstream.
type Pipeline struct {
	source    Source
	send      SendFunc
	onLevel   LevelFunc
	frameSize int
	logger    zerolog.Logger

	mu      sync.Mutex
	running bool
	done    chan struct{}
}

// NewPipeline creates a capture pipeline. frameSize is the number of
// samples per shipped frame; onLevel may be nil.
func NewPipeline(source Source, send SendFunc, onLevel LevelFunc, frameSize int) *Pipeline {
	return &Pipeline{
		source:    source,
		send:      send,
		onLevel:   onLevel,
		frameSize: frameSize,
		logger:    observability.GetLogger().With().Str("component", "capture").Logger(),
	}
}

// Start begins reading from the source. It returns an error if the
// pipeline is already running.
func (p *Pipeline) Start() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.running {
		return errors.New("capture pipeline already running")
	}
	p.running = true
	p.done = make(chan struct{})

	go p.run(p.done)

	p.logger.Info().Int("frame_size", p.frameSize).Msg("Capture started")
	return nil
}

// Stop closes the source and waits for the read loop to exit. Safe to
// call more than once.
func (p *Pipeline) Stop() {
	p.mu.Lock()
	if !p.running {
		p.mu.Unlock()
		return
	}
	p.running = false
	done := p.done
	p.mu.Unlock()

	// Closing the source unblocks the read loop.
	if err := p.source.Close(); err != nil {
		p.logger.Warn().Err(err).Msg("Error closing capture source")
	}
	<-done

	p.logger.Info().Msg("Capture stopped")
}

func (p *Pipeline) run(done chan struct{}) {
	defer close(done)

	ring := audio.NewRingBuffer(p.frameSize * 4)
	readBuf := make([]float64, p.frameSize)
	frame := make([]float64, p.frameSize)

	for {
		n, err := p.source.Read(readBuf)
		if n > 0 {
			ring.Write(readBuf[:n])

			for ring.Available() >= p.frameSize {
				ring.Read(frame)
				p.shipFrame(frame)
			}
		}
		if err != nil {
			if !errors.Is(err, io.EOF) && p.isRunning() {
				p.logger.Error().Err(err).Msg("Capture source read failed")
			}
			return
		}
	}
}

func (p *Pipeline) shipFrame(frame []float64) {
	if p.onLevel != nil {
		p.onLevel(audio.Level(audio.RMS(frame)))
	}

	encoded := audio.Encode(frame)
	if err := p.send(encoded); err != nil {
		// Fire and forget; a dropped frame is better than a stalled mic.
		p.logger.Warn().Err(err).Msg("Dropping capture frame")
	}
}

func (p *Pipeline) isRunning() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.running
}
