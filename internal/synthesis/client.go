package synthesis

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/rs/zerolog"

	"github.com/sonavox/voice-client/internal/audio"
	"github.com/sonavox/voice-client/internal/observability"
	"github.com/sonavox/voice-client/internal/resilience"
)

const synthesizePath = "/v1/text:synthesize"

// Client synthesizes narration text into PCM audio over HTTP. Calls go
// through a circuit breaker so a failing endpoint does not back up the
// narration loader.
type Client struct {
	apiKey     string
	baseURL    string
	voice      string
	httpClient *http.Client
	breaker    *resilience.CircuitBreaker
	logger     zerolog.Logger
}

// request is the synthesize request payload.
type request struct {
	Input       input       `json:"input"`
	Voice       voice       `json:"voice"`
	AudioConfig audioConfig `json:"audioConfig"`
}

type input struct {
	Text string `json:"text"`
}

type voice struct {
	Name string `json:"name,omitempty"`
}

type audioConfig struct {
	AudioEncoding   string `json:"audioEncoding"`
	SampleRateHertz int    `json:"sampleRateHertz"`
}

// response is the synthesize response payload. AudioContent is
// base64-encoded PCM.
type response struct {
	AudioContent string `json:"audioContent"`
}

// NewClient creates a synthesis client.
func NewClient(apiKey, baseURL, voiceName string, breaker *resilience.CircuitBreaker) *Client {
	if breaker == nil {
		breaker = resilience.NewCircuitBreaker("synthesis", 5, 30*time.Second)
	}
	return &Client{
		apiKey:     apiKey,
		baseURL:    baseURL,
		voice:      voiceName,
		httpClient: &http.Client{Timeout: 30 * time.Second},
		breaker:    breaker,
		logger:     observability.GetLogger().With().Str("component", "synthesis").Logger(),
	}
}

// Synthesize converts text to base64-encoded PCM at the playback rate.
// The signature matches what the narration loader expects.
func (c *Client) Synthesize(ctx context.Context, text string) (string, error) {
	var encoded string
	err := c.breaker.Call(func() error {
		var err error
		encoded, err = c.doRequest(ctx, text)
		return err
	})

	observability.UpdateCircuitBreakerState(c.breaker.Name(), int(c.breaker.GetState()))
	if err != nil {
		if err == resilience.ErrCircuitOpen {
			c.logger.Warn().Msg("Synthesis circuit open, rejecting request")
		}
		observability.IncrementCircuitBreakerFailures(c.breaker.Name())
		return "", err
	}
	return encoded, nil
}

func (c *Client) doRequest(ctx context.Context, text string) (string, error) {
	reqBody := request{
		Input: input{Text: text},
		Voice: voice{Name: c.voice},
		AudioConfig: audioConfig{
			AudioEncoding:   "LINEAR16",
			SampleRateHertz: audio.PlaybackSampleRate,
		},
	}

	jsonData, err := json.Marshal(reqBody)
	if err != nil {
		return "", fmt.Errorf("failed to marshal request: %w", err)
	}

	url := fmt.Sprintf("%s%s?key=%s", c.baseURL, synthesizePath, c.apiKey)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewBuffer(jsonData))
	if err != nil {
		return "", fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("failed to make request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return "", fmt.Errorf("synthesis API returned status %d: %s", resp.StatusCode, body)
	}

	var out response
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return "", fmt.Errorf("failed to decode response: %w", err)
	}
	if out.AudioContent == "" {
		return "", fmt.Errorf("synthesis API returned empty audio")
	}

	return out.AudioContent, nil
}
