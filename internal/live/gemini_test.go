package live

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/sonavox/voice-client/internal/resilience"
)

var upgrader = websocket.Upgrader{}

// liveServer mimics the BidiGenerateContent endpoint.
type liveServer struct {
	t *testing.T

	mu       sync.Mutex
	conn     *websocket.Conn
	setup    setupMessage
	received []realtimeInputMessage
	ready    chan struct{}
}

func newLiveServer(t *testing.T) (*liveServer, *httptest.Server) {
	t.Helper()
	ls := &liveServer{t: t, ready: make(chan struct{})}

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			t.Errorf("Upgrade failed: %v", err)
			return
		}

		// First message must be the setup.
		var setup setupMessage
		if err := conn.ReadJSON(&setup); err != nil {
			t.Errorf("Reading setup failed: %v", err)
			return
		}

		ls.mu.Lock()
		ls.conn = conn
		ls.setup = setup
		ls.mu.Unlock()

		if err := conn.WriteJSON(map[string]any{"setupComplete": map[string]any{}}); err != nil {
			t.Errorf("Writing setupComplete failed: %v", err)
			return
		}
		close(ls.ready)

		for {
			var msg realtimeInputMessage
			if err := conn.ReadJSON(&msg); err != nil {
				return
			}
			ls.mu.Lock()
			ls.received = append(ls.received, msg)
			ls.mu.Unlock()
		}
	}))

	t.Cleanup(srv.Close)
	return ls, srv
}

func (ls *liveServer) send(t *testing.T, v any) {
	t.Helper()
	ls.mu.Lock()
	defer ls.mu.Unlock()
	if err := ls.conn.WriteJSON(v); err != nil {
		t.Fatalf("Server write failed: %v", err)
	}
}

func (ls *liveServer) receivedCount() int {
	ls.mu.Lock()
	defer ls.mu.Unlock()
	return len(ls.received)
}

func wsBaseURL(srv *httptest.Server) string {
	return "ws" + strings.TrimPrefix(srv.URL, "http")
}

func waitForEvents(t *testing.T, cond func() bool, msg string) {
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

func TestGeminiTransport_OpenSendsSetupAndWaitsForAck(t *testing.T) {
	ls, srv := newLiveServer(t)

	transport := NewGeminiTransport("test-key", wsBaseURL(srv), resilience.DefaultReconnectConfig())
	conn, err := transport.Open(context.Background(), SessionConfig{
		Model:        "test-model",
		SystemPrompt: "be brief",
		Voice:        "Aoede",
	}, Callbacks{})
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	defer conn.Close()

	ls.mu.Lock()
	setup := ls.setup
	ls.mu.Unlock()

	if setup.Setup.Model != "models/test-model" {
		t.Errorf("Expected model 'models/test-model', got %q", setup.Setup.Model)
	}
	if len(setup.Setup.GenerationConfig.ResponseModalities) != 1 ||
		setup.Setup.GenerationConfig.ResponseModalities[0] != "audio" {
		t.Errorf("Expected audio response modality, got %v", setup.Setup.GenerationConfig.ResponseModalities)
	}
	if setup.Setup.SystemInstruction == nil || setup.Setup.SystemInstruction.Parts[0].Text != "be brief" {
		t.Error("Expected system instruction in setup")
	}
	if setup.Setup.GenerationConfig.SpeechConfig == nil ||
		setup.Setup.GenerationConfig.SpeechConfig.VoiceConfig.PrebuiltVoiceConfig.VoiceName != "Aoede" {
		t.Error("Expected voice config in setup")
	}
}

func TestGeminiTransport_SendRealtimeInput(t *testing.T) {
	ls, srv := newLiveServer(t)

	transport := NewGeminiTransport("test-key", wsBaseURL(srv), resilience.DefaultReconnectConfig())
	conn, err := transport.Open(context.Background(), SessionConfig{Model: "test-model"}, Callbacks{})
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	defer conn.Close()

	if err := conn.SendRealtimeInput("ZGF0YQ=="); err != nil {
		t.Fatalf("SendRealtimeInput failed: %v", err)
	}

	waitForEvents(t, func() bool { return ls.receivedCount() == 1 }, "expected frame at server")

	ls.mu.Lock()
	chunk := ls.received[0].RealtimeInput.MediaChunks[0]
	ls.mu.Unlock()

	if chunk.MIMEType != "audio/pcm;rate=16000" {
		t.Errorf("Expected capture MIME type, got %q", chunk.MIMEType)
	}
	if chunk.Data != "ZGF0YQ==" {
		t.Errorf("Expected payload passed through, got %q", chunk.Data)
	}
}

func TestGeminiTransport_DispatchesServerContent(t *testing.T) {
	ls, srv := newLiveServer(t)

	var mu sync.Mutex
	var events []ServerEvent

	transport := NewGeminiTransport("test-key", wsBaseURL(srv), resilience.DefaultReconnectConfig())
	conn, err := transport.Open(context.Background(), SessionConfig{Model: "test-model"}, Callbacks{
		OnMessage: func(ev ServerEvent) {
			mu.Lock()
			events = append(events, ev)
			mu.Unlock()
		},
	})
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	defer conn.Close()

	ls.send(t, map[string]any{
		"serverContent": map[string]any{
			"modelTurn": map[string]any{
				"parts": []map[string]any{
					{"inlineData": map[string]any{"mimeType": "audio/pcm;rate=24000", "data": "YXVkaW8="}},
				},
			},
		},
	})
	ls.send(t, map[string]any{"serverContent": map[string]any{"interrupted": true}})
	ls.send(t, map[string]any{"serverContent": map[string]any{"turnComplete": true}})

	waitForEvents(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(events) == 3
	}, "expected 3 dispatched events")

	mu.Lock()
	defer mu.Unlock()
	if events[0].Audio != "YXVkaW8=" {
		t.Errorf("Expected audio event first, got %+v", events[0])
	}
	if !events[1].Interrupted {
		t.Errorf("Expected interrupted event, got %+v", events[1])
	}
	if !events[2].TurnComplete {
		t.Errorf("Expected turn complete event, got %+v", events[2])
	}
}

func TestGeminiTransport_CloseFiresOnCloseWithoutError(t *testing.T) {
	_, srv := newLiveServer(t)

	var mu sync.Mutex
	closed := false
	var errs []error

	transport := NewGeminiTransport("test-key", wsBaseURL(srv), resilience.DefaultReconnectConfig())
	conn, err := transport.Open(context.Background(), SessionConfig{Model: "test-model"}, Callbacks{
		OnError: func(err error) {
			mu.Lock()
			errs = append(errs, err)
			mu.Unlock()
		},
		OnClose: func() {
			mu.Lock()
			closed = true
			mu.Unlock()
		},
	})
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}

	if err := conn.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}

	waitForEvents(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return closed
	}, "expected OnClose after Close")

	mu.Lock()
	defer mu.Unlock()
	if len(errs) != 0 {
		t.Errorf("Expected no error callbacks for deliberate close, got %v", errs)
	}
}

func TestGeminiTransport_DialFailureIsRetriedThenReported(t *testing.T) {
	transport := NewGeminiTransport("test-key", "ws://127.0.0.1:1", &resilience.ReconnectConfig{
		MaxAttempts: 2,
		Backoff:     time.Millisecond,
		Multiplier:  2.0,
		MaxBackoff:  10 * time.Millisecond,
	})

	_, err := transport.Open(context.Background(), SessionConfig{Model: "test-model"}, Callbacks{})
	if err == nil {
		t.Fatal("Expected dial error")
	}
}

func TestGeminiTransport_MalformedFramesAreSkipped(t *testing.T) {
	ls, srv := newLiveServer(t)

	var mu sync.Mutex
	var events []ServerEvent

	transport := NewGeminiTransport("test-key", wsBaseURL(srv), resilience.DefaultReconnectConfig())
	conn, err := transport.Open(context.Background(), SessionConfig{Model: "test-model"}, Callbacks{
		OnMessage: func(ev ServerEvent) {
			mu.Lock()
			events = append(events, ev)
			mu.Unlock()
		},
	})
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	defer conn.Close()

	ls.mu.Lock()
	if err := ls.conn.WriteMessage(websocket.TextMessage, []byte("not json")); err != nil {
		t.Fatalf("Server write failed: %v", err)
	}
	ls.mu.Unlock()
	ls.send(t, map[string]any{"serverContent": map[string]any{"turnComplete": true}})

	waitForEvents(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(events) == 1
	}, "expected malformed frame to be skipped")

	mu.Lock()
	defer mu.Unlock()
	if !events[0].TurnComplete {
		t.Errorf("Expected turn complete event, got %+v", events[0])
	}
}
