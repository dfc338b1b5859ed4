package narration

import (
	"context"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog"

	"github.com/sonavox/voice-client/internal/audio"
	"github.com/sonavox/voice-client/internal/observability"
)

// Chunk is one narratable unit of text.
type Chunk struct {
	ID    int
	Title string
	Text  string
}

// SynthesizeFunc turns text into base64-encoded PCM at the playback rate.
type SynthesizeFunc func(ctx context.Context, text string) (string, error)

// Callbacks receives loader lifecycle events. Callbacks are invoked
// without internal locks held; they may call back into the loader.
type Callbacks struct {
	OnLoading func(chunk Chunk)
	OnReady   func(chunk Chunk, buf *audio.DecodedAudio, autoplay bool)
	OnError   func(chunk Chunk, err error)
}

// Loader fetches narration audio for the chunk the user is looking at.
// Rapid chunk changes are debounced so only the chunk the user settles
// on is synthesized; results for superseded chunks are cached but never
// surfaced. All fetched audio lands in the cache, so revisiting a chunk
// is instant.
type Loader struct {
	synth     SynthesizeFunc
	cache     Cache
	debounce  time.Duration
	clock     clockwork.Clock
	callbacks Callbacks
	logger    zerolog.Logger

	mu             sync.Mutex
	generation     int64
	current        Chunk
	hasCurrent     bool
	pending        clockwork.Timer
	cancelInflight context.CancelFunc
	playIntent     bool
	closed         bool
}

// NewLoader creates a loader that synthesizes through synth and stores
// decoded clips in cache.
func NewLoader(synth SynthesizeFunc, cache Cache, debounce time.Duration, callbacks Callbacks, opts ...LoaderOption) *Loader {
	l := &Loader{
		synth:     synth,
		cache:     cache,
		debounce:  debounce,
		clock:     clockwork.NewRealClock(),
		callbacks: callbacks,
		logger:    observability.GetLogger().With().Str("component", "narration").Logger(),
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// LoaderOption configures a Loader.
type LoaderOption func(*Loader)

// WithLoaderClock substitutes the wall clock, mainly for tests.
func WithLoaderClock(clock clockwork.Clock) LoaderOption {
	return func(l *Loader) { l.clock = clock }
}

// ChunkChanged tells the loader the user moved to a new chunk. Any
// pending or in-flight fetch is cancelled. A cached clip is surfaced
// immediately; otherwise a fetch is scheduled after the debounce window.
func (l *Loader) ChunkChanged(chunk Chunk) {
	l.mu.Lock()
	if l.closed {
		l.mu.Unlock()
		return
	}

	l.supersedeLocked()
	l.current = chunk
	l.hasCurrent = true

	if buf, ok := l.cache.Get(chunk.ID); ok {
		observability.RecordNarrationCacheHit()
		onReady := l.callbacks.OnReady
		autoplay := l.playIntent
		l.mu.Unlock()

		l.logger.Debug().Int("chunk_id", chunk.ID).Msg("Narration served from cache")
		if onReady != nil {
			onReady(chunk, buf, autoplay)
		}
		return
	}

	gen := l.generation
	l.pending = l.clock.AfterFunc(l.debounce, func() {
		l.startLoad(gen, chunk)
	})
	l.mu.Unlock()
}

// Retry re-attempts the current chunk immediately, skipping the
// debounce window. Used after a failed fetch.
func (l *Loader) Retry() {
	l.mu.Lock()
	if l.closed || !l.hasCurrent {
		l.mu.Unlock()
		return
	}

	l.supersedeLocked()
	chunk := l.current

	if buf, ok := l.cache.Get(chunk.ID); ok {
		observability.RecordNarrationCacheHit()
		onReady := l.callbacks.OnReady
		autoplay := l.playIntent
		l.mu.Unlock()

		if onReady != nil {
			onReady(chunk, buf, autoplay)
		}
		return
	}

	gen := l.generation
	l.mu.Unlock()

	l.startLoad(gen, chunk)
}

// SetPlayIntent records whether the user wants playback to begin as
// soon as narration is ready.
func (l *Loader) SetPlayIntent(play bool) {
	l.mu.Lock()
	l.playIntent = play
	l.mu.Unlock()
}

// Close cancels any pending or in-flight work. The loader must not be
// used afterwards.
func (l *Loader) Close() {
	l.mu.Lock()
	l.closed = true
	l.supersedeLocked()
	l.mu.Unlock()
}

// supersedeLocked invalidates any scheduled or running fetch.
func (l *Loader) supersedeLocked() {
	l.generation++
	if l.pending != nil {
		l.pending.Stop()
		l.pending = nil
	}
	if l.cancelInflight != nil {
		l.cancelInflight()
		l.cancelInflight = nil
	}
}

func (l *Loader) startLoad(gen int64, chunk Chunk) {
	l.mu.Lock()
	if l.generation != gen {
		l.mu.Unlock()
		return
	}
	ctx, cancel := context.WithCancel(context.Background())
	// Released on every exit path; superseding calls may also cancel
	// it early, which is safe to do twice.
	defer cancel()
	l.cancelInflight = cancel
	onLoading := l.callbacks.OnLoading
	l.mu.Unlock()

	observability.RecordNarrationCacheMiss()
	if onLoading != nil {
		onLoading(chunk)
	}

	encoded, err := l.synth(ctx, chunk.Text)
	var buf *audio.DecodedAudio
	if err == nil {
		buf, err = audio.Decode(encoded, audio.PlaybackSampleRate)
	}

	if err != nil {
		l.mu.Lock()
		stale := l.generation != gen
		onError := l.callbacks.OnError
		l.mu.Unlock()

		if stale {
			return
		}
		l.logger.Warn().Err(err).Int("chunk_id", chunk.ID).Msg("Narration fetch failed")
		if onError != nil {
			onError(chunk, err)
		}
		return
	}

	// Cache even superseded results so returning to the chunk is free.
	l.cache.Add(chunk.ID, buf)

	l.mu.Lock()
	if l.generation != gen {
		l.mu.Unlock()
		l.logger.Debug().Int("chunk_id", chunk.ID).Msg("Discarding narration for superseded chunk")
		return
	}
	l.cancelInflight = nil
	onReady := l.callbacks.OnReady
	autoplay := l.playIntent
	l.mu.Unlock()

	if onReady != nil {
		onReady(chunk, buf, autoplay)
	}
}
