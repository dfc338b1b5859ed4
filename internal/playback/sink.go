package playback

import (
	"time"

	"github.com/sonavox/voice-client/internal/audio"
)

// Handle controls one buffer that a Sink has accepted for playback.
type Handle interface {
	// Stop halts playback of the buffer. Safe to call more than once.
	Stop()
}

// Sink plays decoded audio buffers at scheduled wall-clock times. The
// scheduler owns timing decisions; the sink only honors them.
type Sink interface {
	Play(buf *audio.DecodedAudio, at time.Time) (Handle, error)
}
