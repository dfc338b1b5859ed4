package capture

import (
	"errors"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/sonavox/voice-client/internal/audio"
)

// scriptedSource feeds fixed sample batches, then blocks until closed.
type scriptedSource struct {
	mu      sync.Mutex
	batches [][]float64
	closed  chan struct{}
	once    sync.Once
}

func newScriptedSource(batches ...[]float64) *scriptedSource {
	return &scriptedSource{batches: batches, closed: make(chan struct{})}
}

func (s *scriptedSource) Read(buf []float64) (int, error) {
	s.mu.Lock()
	if len(s.batches) > 0 {
		batch := s.batches[0]
		s.batches = s.batches[1:]
		s.mu.Unlock()
		return copy(buf, batch), nil
	}
	s.mu.Unlock()

	<-s.closed
	return 0, io.EOF
}

func (s *scriptedSource) Close() error {
	s.once.Do(func() { close(s.closed) })
	return nil
}

type sentFrames struct {
	mu     sync.Mutex
	frames []string
	err    error
}

func (f *sentFrames) send(encoded string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return f.err
	}
	f.frames = append(f.frames, encoded)
	return nil
}

func (f *sentFrames) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.frames)
}

func waitFor(t *testing.T, cond func() bool, msg string) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal(msg)
}

func constBatch(n int, v float64) []float64 {
	batch := make([]float64, n)
	for i := range batch {
		batch[i] = v
	}
	return batch
}

func TestPipeline_ShipsFixedSizeFrames(t *testing.T) {
	const frameSize = 64

	// Three batches of 48 samples make two full frames with remainder.
	source := newScriptedSource(
		constBatch(48, 0.1),
		constBatch(48, 0.1),
		constBatch(48, 0.1),
	)
	sent := &sentFrames{}

	p := NewPipeline(source, sent.send, nil, frameSize)
	if err := p.Start(); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	defer p.Stop()

	waitFor(t, func() bool { return sent.count() == 2 }, "expected 2 frames shipped")

	sent.mu.Lock()
	defer sent.mu.Unlock()
	for i, encoded := range sent.frames {
		decoded, err := audio.Decode(encoded, audio.CaptureSampleRate)
		if err != nil {
			t.Fatalf("Frame %d does not decode: %v", i, err)
		}
		if len(decoded.Samples) != frameSize {
			t.Errorf("Frame %d has %d samples, want %d", i, len(decoded.Samples), frameSize)
		}
	}
}

func TestPipeline_ReportsLevels(t *testing.T) {
	const frameSize = 32

	source := newScriptedSource(constBatch(frameSize, 0.1))
	sent := &sentFrames{}

	var mu sync.Mutex
	var levels []float64
	onLevel := func(level float64) {
		mu.Lock()
		levels = append(levels, level)
		mu.Unlock()
	}

	p := NewPipeline(source, sent.send, onLevel, frameSize)
	if err := p.Start(); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	defer p.Stop()

	waitFor(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(levels) == 1
	}, "expected a level callback")

	mu.Lock()
	defer mu.Unlock()
	// RMS of a constant 0.1 signal is 0.1, boosted to 0.5.
	if diff := levels[0] - 0.5; diff > 1e-9 || diff < -1e-9 {
		t.Errorf("Expected level 0.5, got %f", levels[0])
	}
}

func TestPipeline_SendFailureDoesNotStopCapture(t *testing.T) {
	const frameSize = 32

	source := newScriptedSource(
		constBatch(frameSize, 0.1),
		constBatch(frameSize, 0.1),
	)
	sent := &sentFrames{err: errors.New("upstream gone")}

	var mu sync.Mutex
	levelCalls := 0
	onLevel := func(float64) {
		mu.Lock()
		levelCalls++
		mu.Unlock()
	}

	p := NewPipeline(source, sent.send, onLevel, frameSize)
	if err := p.Start(); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	defer p.Stop()

	// Both frames are still processed despite send errors.
	waitFor(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return levelCalls == 2
	}, "expected capture to continue past send failures")

	if sent.count() != 0 {
		t.Errorf("Expected no frames recorded, got %d", sent.count())
	}
}

func TestPipeline_StartTwiceFails(t *testing.T) {
	source := newScriptedSource()
	p := NewPipeline(source, (&sentFrames{}).send, nil, 32)

	if err := p.Start(); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	defer p.Stop()

	if err := p.Start(); err == nil {
		t.Error("Expected error starting a running pipeline")
	}
}

func TestPipeline_StopIsIdempotent(t *testing.T) {
	source := newScriptedSource()
	p := NewPipeline(source, (&sentFrames{}).send, nil, 32)

	if err := p.Start(); err != nil {
		t.Fatalf("Start failed: %v", err)
	}

	p.Stop()
	p.Stop()
}
