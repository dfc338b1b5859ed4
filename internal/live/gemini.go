package live

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"github.com/sonavox/voice-client/internal/observability"
	"github.com/sonavox/voice-client/internal/resilience"
)

const (
	bidiPath     = "/ws/google.ai.generativelanguage.v1beta.GenerativeService.BidiGenerateContent"
	setupTimeout = 10 * time.Second
	captureMIME  = "audio/pcm;rate=16000"
)

// GeminiTransport opens live sessions against the Gemini Live API using
// the BidiGenerateContent WebSocket protocol.
type GeminiTransport struct {
	apiKey    string
	baseURL   string
	reconnect *resilience.ReconnectConfig
	logger    zerolog.Logger
}

// NewGeminiTransport creates a transport. baseURL is the scheme and
// host, e.g. wss://generativelanguage.googleapis.com.
func NewGeminiTransport(apiKey, baseURL string, reconnect *resilience.ReconnectConfig) *GeminiTransport {
	return &GeminiTransport{
		apiKey:    apiKey,
		baseURL:   baseURL,
		reconnect: reconnect,
		logger:    observability.GetLogger().With().Str("component", "gemini_transport").Logger(),
	}
}

// Open dials the live endpoint, sends the setup message, and waits for
// the server's setup acknowledgment. Dial failures are retried with
// backoff; an established connection that later drops is not re-dialed.
func (t *GeminiTransport) Open(ctx context.Context, cfg SessionConfig, callbacks Callbacks) (Conn, error) {
	wsURL := fmt.Sprintf("%s%s?key=%s", t.baseURL, bidiPath, t.apiKey)

	var ws *websocket.Conn
	err := resilience.Reconnect(ctx, func() error {
		conn, _, err := websocket.DefaultDialer.DialContext(ctx, wsURL, nil)
		if err != nil {
			t.logger.Warn().Err(err).Msg("Live dial failed")
			return err
		}
		ws = conn
		return nil
	}, t.reconnect)
	if err != nil {
		return nil, fmt.Errorf("dial live endpoint: %w", err)
	}

	conn := &geminiConn{
		ws:        ws,
		callbacks: callbacks,
		logger:    t.logger,
	}

	if err := conn.sendSetup(cfg); err != nil {
		ws.Close()
		return nil, fmt.Errorf("send setup: %w", err)
	}

	if err := conn.awaitSetupComplete(); err != nil {
		ws.Close()
		return nil, fmt.Errorf("await setup: %w", err)
	}

	go conn.readLoop()

	t.logger.Info().Str("model", cfg.Model).Msg("Live session open")
	return conn, nil
}

// ── Protocol message types (outgoing) ──

type setupMessage struct {
	Setup setupConfig `json:"setup"`
}

type setupConfig struct {
	Model             string             `json:"model"`
	GenerationConfig  generationConfig   `json:"generationConfig"`
	SystemInstruction *systemInstruction `json:"systemInstruction,omitempty"`
}

type generationConfig struct {
	ResponseModalities []string      `json:"responseModalities"`
	SpeechConfig       *speechConfig `json:"speechConfig,omitempty"`
}

type speechConfig struct {
	VoiceConfig voiceConfig `json:"voiceConfig"`
}

type voiceConfig struct {
	PrebuiltVoiceConfig prebuiltVoiceConfig `json:"prebuiltVoiceConfig"`
}

type prebuiltVoiceConfig struct {
	VoiceName string `json:"voiceName"`
}

type systemInstruction struct {
	Parts []part `json:"parts"`
}

type part struct {
	Text       string      `json:"text,omitempty"`
	InlineData *inlineData `json:"inlineData,omitempty"`
}

type inlineData struct {
	MIMEType string `json:"mimeType"`
	Data     string `json:"data"` // base64-encoded
}

type realtimeInputMessage struct {
	RealtimeInput realtimeInput `json:"realtimeInput"`
}

type realtimeInput struct {
	MediaChunks []mediaChunk `json:"mediaChunks"`
}

type mediaChunk struct {
	MIMEType string `json:"mimeType"`
	Data     string `json:"data"` // base64-encoded
}

// ── Protocol message types (incoming) ──

type serverMessage struct {
	SetupComplete *json.RawMessage `json:"setupComplete,omitempty"`
	ServerContent *serverContent   `json:"serverContent,omitempty"`
	Error         *remoteError     `json:"error,omitempty"`
}

type remoteError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
	Status  string `json:"status,omitempty"`
}

type serverContent struct {
	ModelTurn    *modelTurn `json:"modelTurn,omitempty"`
	TurnComplete bool       `json:"turnComplete,omitempty"`
	Interrupted  bool       `json:"interrupted,omitempty"`
}

type modelTurn struct {
	Parts []part `json:"parts"`
}

// ── connection ──

type geminiConn struct {
	ws        *websocket.Conn
	callbacks Callbacks
	logger    zerolog.Logger

	writeMu   sync.Mutex
	closeOnce sync.Once
	closed    chan struct{}
}

func (c *geminiConn) sendSetup(cfg SessionConfig) error {
	c.closed = make(chan struct{})

	msg := setupMessage{
		Setup: setupConfig{
			Model: fmt.Sprintf("models/%s", cfg.Model),
			GenerationConfig: generationConfig{
				ResponseModalities: []string{"audio"},
			},
		},
	}
	if cfg.SystemPrompt != "" {
		msg.Setup.SystemInstruction = &systemInstruction{
			Parts: []part{{Text: cfg.SystemPrompt}},
		}
	}
	if cfg.Voice != "" {
		msg.Setup.GenerationConfig.SpeechConfig = &speechConfig{
			VoiceConfig: voiceConfig{
				PrebuiltVoiceConfig: prebuiltVoiceConfig{VoiceName: cfg.Voice},
			},
		}
	}

	return c.writeJSON(msg)
}

// awaitSetupComplete blocks until the server acknowledges the setup
// message. Messages arriving before the ack are not expected and are
// dropped.
func (c *geminiConn) awaitSetupComplete() error {
	if err := c.ws.SetReadDeadline(time.Now().Add(setupTimeout)); err != nil {
		return err
	}
	defer c.ws.SetReadDeadline(time.Time{})

	for {
		_, data, err := c.ws.ReadMessage()
		if err != nil {
			return err
		}

		var msg serverMessage
		if err := json.Unmarshal(data, &msg); err != nil {
			continue
		}
		if msg.Error != nil {
			return fmt.Errorf("remote error %d: %s", msg.Error.Code, msg.Error.Message)
		}
		if msg.SetupComplete != nil {
			return nil
		}
	}
}

// SendRealtimeInput ships one base64-encoded capture frame.
func (c *geminiConn) SendRealtimeInput(encoded string) error {
	msg := realtimeInputMessage{
		RealtimeInput: realtimeInput{
			MediaChunks: []mediaChunk{{MIMEType: captureMIME, Data: encoded}},
		},
	}
	return c.writeJSON(msg)
}

// Close tears down the connection. The read loop notices the closed
// socket and fires OnClose.
func (c *geminiConn) Close() error {
	var err error
	c.closeOnce.Do(func() {
		close(c.closed)
		c.writeMu.Lock()
		_ = c.ws.WriteControl(
			websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
			time.Now().Add(time.Second),
		)
		c.writeMu.Unlock()
		err = c.ws.Close()
	})
	return err
}

func (c *geminiConn) writeJSON(v any) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	return c.ws.WriteJSON(v)
}

func (c *geminiConn) readLoop() {
	defer func() {
		if c.callbacks.OnClose != nil {
			c.callbacks.OnClose()
		}
	}()

	for {
		_, data, err := c.ws.ReadMessage()
		if err != nil {
			select {
			case <-c.closed:
				// Deliberate close, not an error.
			default:
				if c.callbacks.OnError != nil {
					c.callbacks.OnError(err)
				}
			}
			return
		}

		var msg serverMessage
		if err := json.Unmarshal(data, &msg); err != nil {
			c.logger.Debug().Err(err).Msg("Skipping malformed live frame")
			continue
		}

		c.dispatch(&msg)
	}
}

func (c *geminiConn) dispatch(msg *serverMessage) {
	if msg.Error != nil {
		if c.callbacks.OnError != nil {
			c.callbacks.OnError(fmt.Errorf("remote error %d: %s", msg.Error.Code, msg.Error.Message))
		}
	}

	sc := msg.ServerContent
	if sc == nil {
		return
	}

	if sc.Interrupted {
		c.emit(ServerEvent{Interrupted: true})
	}
	if sc.ModelTurn != nil {
		for _, p := range sc.ModelTurn.Parts {
			if p.InlineData != nil && p.InlineData.Data != "" {
				c.emit(ServerEvent{Audio: p.InlineData.Data})
			}
		}
	}
	if sc.TurnComplete {
		c.emit(ServerEvent{TurnComplete: true})
	}
}

func (c *geminiConn) emit(ev ServerEvent) {
	if c.callbacks.OnMessage != nil {
		c.callbacks.OnMessage(ev)
	}
}
