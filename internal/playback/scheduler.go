package playback

import (
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog"

	"github.com/sonavox/voice-client/internal/audio"
	"github.com/sonavox/voice-client/internal/observability"
)

// staleGapDefault is how long the playback cursor may trail real time
// before a new chunk restarts the stream instead of extending it.
const staleGapDefault = 500 * time.Millisecond

type source struct {
	handle Handle
	timer  clockwork.Timer
}

// Scheduler queues decoded audio chunks for gapless playback. Each chunk
// starts exactly when the previous one ends, so a stream of partial
// responses plays back as one continuous utterance.
type Scheduler struct {
	sink     Sink
	clock    clockwork.Clock
	staleGap time.Duration
	logger   zerolog.Logger

	mu        sync.Mutex
	nextStart time.Time
	active    map[int64]*source
	nextID    int64
}

// NewScheduler creates a scheduler that plays through sink.
func NewScheduler(sink Sink, opts ...SchedulerOption) *Scheduler {
	s := &Scheduler{
		sink:     sink,
		clock:    clockwork.NewRealClock(),
		staleGap: staleGapDefault,
		logger:   observability.GetLogger().With().Str("component", "scheduler").Logger(),
		active:   make(map[int64]*source),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// SchedulerOption configures a Scheduler.
type SchedulerOption func(*Scheduler)

// WithClock substitutes the wall clock, mainly for tests.
func WithClock(clock clockwork.Clock) SchedulerOption {
	return func(s *Scheduler) { s.clock = clock }
}

// WithStaleGap overrides the idle gap after which the cursor resets.
func WithStaleGap(gap time.Duration) SchedulerOption {
	return func(s *Scheduler) { s.staleGap = gap }
}

// Enqueue schedules buf to start when the previously queued audio ends,
// or immediately if the queue is empty or stale. It returns the start
// time the chunk was scheduled for.
func (s *Scheduler) Enqueue(buf *audio.DecodedAudio) (time.Time, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.clock.Now()

	// A cursor left behind by a finished stream must not schedule new
	// audio in the past.
	if len(s.active) == 0 && s.nextStart.Before(now.Add(-s.staleGap)) {
		s.nextStart = now
	}

	start := s.nextStart
	if start.Before(now) {
		start = now
	}

	dur := buf.Duration()
	s.nextStart = start.Add(dur)

	handle, err := s.sink.Play(buf, start)
	if err != nil {
		s.nextStart = start
		return time.Time{}, err
	}

	id := s.nextID
	s.nextID++

	src := &source{handle: handle}
	s.active[id] = src

	// Remove the source when its audio has finished playing.
	src.timer = s.clock.AfterFunc(s.nextStart.Sub(now), func() {
		s.mu.Lock()
		delete(s.active, id)
		s.mu.Unlock()
	})

	s.logger.Debug().
		Dur("duration", dur).
		Time("start", start).
		Int("queued", len(s.active)).
		Msg("Audio chunk scheduled")

	return start, nil
}

// Interrupt stops all queued and playing audio and resets the cursor so
// the next chunk starts immediately.
func (s *Scheduler) Interrupt() {
	s.mu.Lock()
	defer s.mu.Unlock()

	for id, src := range s.active {
		src.timer.Stop()
		src.handle.Stop()
		delete(s.active, id)
	}
	s.nextStart = s.clock.Now()

	s.logger.Debug().Msg("Playback interrupted")
}

// ActiveSources returns the number of chunks scheduled or playing.
func (s *Scheduler) ActiveSources() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.active)
}
