package playback

import (
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog"

	"github.com/sonavox/voice-client/internal/audio"
	"github.com/sonavox/voice-client/internal/observability"
)

// progressInterval is how often the player reports playback progress.
const progressInterval = 16 * time.Millisecond

// Player plays one buffer at a time and reports progress as a
// percentage. Starting a new buffer replaces whatever is playing.
// It backs narration playback, where chunks are whole clips rather
// than a stream.
type Player struct {
	sink   Sink
	clock  clockwork.Clock
	logger zerolog.Logger

	mu         sync.Mutex
	generation int64
	handle     Handle
	ticker     clockwork.Timer
	onProgress func(percent float64)
	onFinish   func()
}

// NewPlayer creates a player that plays through sink.
func NewPlayer(sink Sink, opts ...PlayerOption) *Player {
	p := &Player{
		sink:   sink,
		clock:  clockwork.NewRealClock(),
		logger: observability.GetLogger().With().Str("component", "player").Logger(),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// PlayerOption configures a Player.
type PlayerOption func(*Player)

// WithPlayerClock substitutes the wall clock, mainly for tests.
func WithPlayerClock(clock clockwork.Clock) PlayerOption {
	return func(p *Player) { p.clock = clock }
}

// SetCallbacks installs the progress and finish callbacks. Progress is
// reported in percent of the buffer's duration; finish fires once when
// the buffer plays to its natural end, not on Stop or replacement.
func (p *Player) SetCallbacks(onProgress func(percent float64), onFinish func()) {
	p.mu.Lock()
	p.onProgress = onProgress
	p.onFinish = onFinish
	p.mu.Unlock()
}

// Play starts buf immediately, stopping any buffer already playing.
func (p *Player) Play(buf *audio.DecodedAudio) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.stopLocked()

	p.generation++
	gen := p.generation

	handle, err := p.sink.Play(buf, p.clock.Now())
	if err != nil {
		return err
	}
	p.handle = handle

	start := p.clock.Now()
	dur := buf.Duration()

	var tick func()
	tick = func() {
		p.mu.Lock()
		if p.generation != gen {
			p.mu.Unlock()
			return
		}

		elapsed := p.clock.Now().Sub(start)
		frac := float64(elapsed) / float64(dur)
		if frac > 1 {
			frac = 1
		}
		onProgress := p.onProgress
		onFinish := p.onFinish

		if frac >= 1 {
			p.handle = nil
			p.ticker = nil
		} else {
			p.ticker = p.clock.AfterFunc(progressInterval, tick)
		}
		p.mu.Unlock()

		if onProgress != nil {
			onProgress(frac * 100)
		}
		if frac >= 1 && onFinish != nil {
			onFinish()
		}
	}
	p.ticker = p.clock.AfterFunc(progressInterval, tick)

	p.logger.Debug().Dur("duration", dur).Msg("Playback started")
	return nil
}

// Stop halts the current buffer, if any. No finish callback fires.
func (p *Player) Stop() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.stopLocked()
}

// IsPlaying reports whether a buffer is currently playing.
func (p *Player) IsPlaying() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.handle != nil
}

func (p *Player) stopLocked() {
	p.generation++
	if p.ticker != nil {
		p.ticker.Stop()
		p.ticker = nil
	}
	if p.handle != nil {
		p.handle.Stop()
		p.handle = nil
	}
}
