package live

// SessionConfig describes the live session to open.
type SessionConfig struct {
	Model        string
	SystemPrompt string
	Voice        string
}

// ServerEvent is one message from the remote end of a live session.
// Audio stays base64-encoded until the consumer decodes it.
type ServerEvent struct {
	Audio        string
	Interrupted  bool
	TurnComplete bool
}

// Callbacks receives transport events. OnMessage and OnError may be
// called from the transport's read goroutine; OnClose fires once when
// the connection ends for any reason.
type Callbacks struct {
	OnMessage func(ev ServerEvent)
	OnError   func(err error)
	OnClose   func()
}
