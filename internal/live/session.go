package live

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog"

	"github.com/sonavox/voice-client/internal/audio"
	"github.com/sonavox/voice-client/internal/observability"
)

// State is the lifecycle state of a live session.
type State string

const (
	StateIdle       State = "idle"
	StateConnecting State = "connecting"
	StateListening  State = "listening"
	StateSpeaking   State = "speaking"
	StateClosed     State = "closed"
)

// AudioScheduler queues model audio for gapless playback.
type AudioScheduler interface {
	Enqueue(buf *audio.DecodedAudio) (time.Time, error)
	Interrupt()
}

// CapturePipeline is a running microphone capture loop.
type CapturePipeline interface {
	Start() error
	Stop()
}

// CaptureFactory builds a capture pipeline that ships frames through
// send. The factory is invoked once per session, after the transport
// has acknowledged setup. A failure, such as an unavailable microphone,
// aborts the connection attempt.
type CaptureFactory func(send func(encoded string) error) (CapturePipeline, error)

// ChatFunc sends one text message and returns the reply text.
type ChatFunc func(ctx context.Context, text string) (string, error)

// SpeakFunc synthesizes reply text into a decoded clip.
type SpeakFunc func(ctx context.Context, text string) (*audio.DecodedAudio, error)

// ReplyPlayer plays synthesized text replies.
type ReplyPlayer interface {
	Play(buf *audio.DecodedAudio) error
	Stop()
}

// SessionOptions wires a Session's collaborators.
type SessionOptions struct {
	Transport      Transport
	Scheduler      AudioScheduler
	CaptureFactory CaptureFactory
	Chat           ChatFunc
	Speak          SpeakFunc
	Player         ReplyPlayer
	Grace          time.Duration
	Clock          clockwork.Clock
	Metrics        *observability.Metrics
	OnStateChange  func(state State)
}

// Session is a bidirectional voice conversation. Microphone frames
// stream up; model audio streams down into the scheduler. When the
// remote end reports an interruption, queued audio is flushed and
// trailing chunks of the cancelled turn are suppressed until the turn
// completes plus a short grace period.
type Session struct {
	transport      Transport
	sched          AudioScheduler
	captureFactory CaptureFactory
	chat           ChatFunc
	speak          SpeakFunc
	player         ReplyPlayer
	grace          time.Duration
	clock          clockwork.Clock
	metrics        *observability.Metrics
	onStateChange  func(state State)
	logger         zerolog.Logger

	mu            sync.Mutex
	state         State
	conn          Conn
	pipeline      CapturePipeline
	suppressAudio bool
	graceTimer    clockwork.Timer
}

// NewSession creates an idle session.
func NewSession(opts SessionOptions) *Session {
	clock := opts.Clock
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	sessionID := observability.NewSessionID()
	metrics := opts.Metrics
	if metrics == nil {
		metrics = observability.NewSessionMetrics(sessionID)
	}
	return &Session{
		transport:      opts.Transport,
		sched:          opts.Scheduler,
		captureFactory: opts.CaptureFactory,
		chat:           opts.Chat,
		speak:          opts.Speak,
		player:         opts.Player,
		grace:          opts.Grace,
		clock:          clock,
		metrics:        metrics,
		onStateChange:  opts.OnStateChange,
		logger:         observability.WithSessionID(sessionID).With().Str("component", "session").Logger(),
		state:          StateIdle,
	}
}

// State returns the current lifecycle state.
func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Connect opens the transport and starts microphone capture. Only an
// idle session can connect.
func (s *Session) Connect(ctx context.Context, cfg SessionConfig) error {
	s.mu.Lock()
	if s.state != StateIdle {
		state := s.state
		s.mu.Unlock()
		return fmt.Errorf("cannot connect in state %q", state)
	}
	s.state = StateConnecting
	s.mu.Unlock()
	s.notify(StateConnecting)

	conn, err := s.transport.Open(ctx, cfg, Callbacks{
		OnMessage: s.handleMessage,
		OnError:   s.handleTransportError,
		OnClose:   s.handleTransportClose,
	})
	if err != nil {
		s.mu.Lock()
		s.state = StateIdle
		s.mu.Unlock()
		s.notify(StateIdle)
		return fmt.Errorf("open live session: %w", err)
	}

	s.mu.Lock()
	if s.state != StateConnecting {
		// Closed while dialing.
		s.mu.Unlock()
		conn.Close()
		return fmt.Errorf("session closed during connect")
	}
	s.conn = conn
	s.mu.Unlock()

	pipeline, err := s.captureFactory(conn.SendRealtimeInput)
	if err != nil {
		s.Close()
		return fmt.Errorf("open capture: %w", err)
	}

	s.mu.Lock()
	if s.state != StateConnecting {
		// Closed while the capture device was opening.
		s.mu.Unlock()
		pipeline.Stop()
		return fmt.Errorf("session closed during connect")
	}
	s.pipeline = pipeline
	s.state = StateListening
	s.mu.Unlock()

	if err := pipeline.Start(); err != nil {
		s.Close()
		return fmt.Errorf("start capture: %w", err)
	}

	s.metrics.RecordSessionStart()
	s.notify(StateListening)
	s.logger.Info().Msg("Session connected")
	return nil
}

// Close tears the session down: capture stops first so no more frames
// go upstream, queued playback is flushed, then the connection closes.
// Safe to call more than once.
func (s *Session) Close() error {
	s.mu.Lock()
	if s.state == StateClosed {
		s.mu.Unlock()
		return nil
	}
	wasActive := s.state == StateListening || s.state == StateSpeaking
	s.state = StateClosed
	pipeline := s.pipeline
	conn := s.conn
	if s.graceTimer != nil {
		s.graceTimer.Stop()
		s.graceTimer = nil
	}
	s.mu.Unlock()

	if pipeline != nil {
		pipeline.Stop()
	}
	s.sched.Interrupt()
	if conn != nil {
		conn.Close()
	}

	if wasActive {
		s.metrics.RecordSessionEnd()
	}
	s.notify(StateClosed)
	s.logger.Info().Msg("Session closed")
	return nil
}

// SendText routes a typed message through the text chat path. Ongoing
// model speech is interrupted first. If a speak function is wired, the
// reply is synthesized and played.
func (s *Session) SendText(ctx context.Context, text string) (string, error) {
	if s.chat == nil {
		return "", fmt.Errorf("no chat backend configured")
	}

	s.mu.Lock()
	active := s.state == StateListening || s.state == StateSpeaking
	s.mu.Unlock()

	if active {
		s.interruptPlayback()
	}

	s.metrics.RecordChatStart()
	reply, err := s.chat(ctx, text)
	s.metrics.RecordChatEnd(err == nil)
	if err != nil {
		return "", fmt.Errorf("chat: %w", err)
	}

	if active && s.speak != nil && s.player != nil {
		s.metrics.RecordSynthesisStart()
		buf, err := s.speak(ctx, reply)
		s.metrics.RecordSynthesisEnd(err == nil)
		if err != nil {
			s.logger.Warn().Err(err).Msg("Reply synthesis failed, returning text only")
		} else if buf != nil {
			if err := s.player.Play(buf); err != nil {
				s.logger.Warn().Err(err).Msg("Reply playback failed")
			}
		}
	}

	return reply, nil
}

func (s *Session) handleMessage(ev ServerEvent) {
	switch {
	case ev.Interrupted:
		s.handleInterrupted()
	case ev.TurnComplete:
		s.handleTurnComplete()
	case ev.Audio != "":
		s.handleAudio(ev.Audio)
	}
}

// handleInterrupted flushes playback and suppresses the remainder of
// the cancelled turn, which may still be in flight.
func (s *Session) handleInterrupted() {
	s.metrics.RecordInterrupt()
	s.sched.Interrupt()

	s.mu.Lock()
	s.suppressAudio = true
	if s.graceTimer != nil {
		s.graceTimer.Stop()
		s.graceTimer = nil
	}
	changed := s.state == StateSpeaking
	if changed {
		s.state = StateListening
	}
	s.mu.Unlock()

	if changed {
		s.notify(StateListening)
	}
	s.logger.Debug().Msg("Model speech interrupted")
}

func (s *Session) handleTurnComplete() {
	s.mu.Lock()
	if s.suppressAudio {
		// Chunks of the cancelled turn can trail the completion marker;
		// keep suppressing for a grace period.
		if s.graceTimer != nil {
			s.graceTimer.Stop()
		}
		s.graceTimer = s.clock.AfterFunc(s.grace, func() {
			s.mu.Lock()
			s.suppressAudio = false
			s.graceTimer = nil
			s.mu.Unlock()
		})
	}
	changed := s.state == StateSpeaking
	if changed {
		s.state = StateListening
	}
	s.mu.Unlock()

	if changed {
		s.notify(StateListening)
	}
}

func (s *Session) handleAudio(encoded string) {
	s.mu.Lock()
	suppressed := s.suppressAudio
	closed := s.state == StateClosed
	s.mu.Unlock()

	if closed {
		return
	}
	if suppressed {
		s.logger.Debug().Msg("Dropping audio from cancelled turn")
		return
	}

	buf, err := audio.Decode(encoded, audio.PlaybackSampleRate)
	if err != nil {
		s.metrics.RecordError("decode", "session")
		s.logger.Warn().Err(err).Msg("Dropping undecodable audio chunk")
		return
	}
	s.metrics.RecordAudioBytes("in", int64(len(encoded)))

	if _, err := s.sched.Enqueue(buf); err != nil {
		s.metrics.RecordError("playback", "session")
		s.logger.Warn().Err(err).Msg("Failed to schedule audio chunk")
		return
	}

	s.mu.Lock()
	changed := s.state == StateListening
	if changed {
		s.state = StateSpeaking
	}
	s.mu.Unlock()

	if changed {
		s.notify(StateSpeaking)
	}
}

// interruptPlayback is the local half of barge-in: it flushes queued
// model audio without waiting for the server's interrupted marker.
// Trailing chunks of the pre-empted turn are suppressed just as for a
// server-reported interruption; the turn-complete grace path lifts the
// suppression.
func (s *Session) interruptPlayback() {
	s.sched.Interrupt()
	if s.player != nil {
		s.player.Stop()
	}

	s.mu.Lock()
	s.suppressAudio = true
	if s.graceTimer != nil {
		s.graceTimer.Stop()
		s.graceTimer = nil
	}
	changed := s.state == StateSpeaking
	if changed {
		s.state = StateListening
	}
	s.mu.Unlock()

	if changed {
		s.notify(StateListening)
	}
}

func (s *Session) handleTransportError(err error) {
	s.metrics.RecordError("transport", "session")
	s.logger.Error().Err(err).Msg("Transport error")
}

func (s *Session) handleTransportClose() {
	s.mu.Lock()
	alreadyClosed := s.state == StateClosed
	s.mu.Unlock()

	if !alreadyClosed {
		s.logger.Warn().Msg("Transport closed unexpectedly")
		s.Close()
	}
}

func (s *Session) notify(state State) {
	if s.onStateChange != nil {
		s.onStateChange(state)
	}
}
