package chat

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/rs/zerolog"

	"github.com/sonavox/voice-client/internal/observability"
	"github.com/sonavox/voice-client/internal/resilience"
)

// Message is one turn of a text conversation.
type Message struct {
	Role string // "user" or "model"
	Text string
}

// Client sends text messages to a generative endpoint. Transient
// failures, including quota pressure, are retried with backoff.
type Client struct {
	apiKey     string
	baseURL    string
	model      string
	httpClient *http.Client
	retry      *resilience.RetryConfig
	logger     zerolog.Logger

	history []Message
}

// NewClient creates a chat client. The client keeps conversation
// history so follow-up messages carry context; it is not safe for
// concurrent use.
func NewClient(apiKey, baseURL, model string, retry *resilience.RetryConfig) *Client {
	return &Client{
		apiKey:     apiKey,
		baseURL:    baseURL,
		model:      model,
		httpClient: &http.Client{Timeout: 60 * time.Second},
		retry:      retry,
		logger:     observability.GetLogger().With().Str("component", "chat").Logger(),
	}
}

// ── API payloads ──

type generateRequest struct {
	Contents          []content `json:"contents"`
	SystemInstruction *content  `json:"systemInstruction,omitempty"`
}

type content struct {
	Role  string `json:"role,omitempty"`
	Parts []part `json:"parts"`
}

type part struct {
	Text string `json:"text,omitempty"`
}

type generateResponse struct {
	Candidates []candidate `json:"candidates"`
}

type candidate struct {
	Content content `json:"content"`
}

// Send ships text and the accumulated history, returning the reply
// text. The exchange is appended to history only on success.
func (c *Client) Send(ctx context.Context, text string) (string, error) {
	contents := make([]content, 0, len(c.history)+1)
	for _, m := range c.history {
		contents = append(contents, content{Role: m.Role, Parts: []part{{Text: m.Text}}})
	}
	contents = append(contents, content{Role: "user", Parts: []part{{Text: text}}})

	var reply string
	err := resilience.Retry(ctx, func() error {
		var err error
		reply, err = c.doRequest(ctx, contents)
		return err
	}, c.retry, resilience.IsRetryableRemoteError)
	if err != nil {
		return "", err
	}

	c.history = append(c.history,
		Message{Role: "user", Text: text},
		Message{Role: "model", Text: reply},
	)
	return reply, nil
}

// History returns a copy of the conversation so far.
func (c *Client) History() []Message {
	return append([]Message(nil), c.history...)
}

// ClearHistory drops the accumulated conversation.
func (c *Client) ClearHistory() {
	c.history = nil
}

func (c *Client) doRequest(ctx context.Context, contents []content) (string, error) {
	reqBody := generateRequest{Contents: contents}

	jsonData, err := json.Marshal(reqBody)
	if err != nil {
		return "", fmt.Errorf("failed to marshal request: %w", err)
	}

	url := fmt.Sprintf("%s/v1beta/models/%s:generateContent?key=%s", c.baseURL, c.model, c.apiKey)
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
		return "", fmt.Errorf("chat API returned status %d: %s", resp.StatusCode, body)
	}

	var out generateResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return "", fmt.Errorf("failed to decode response: %w", err)
	}
	if len(out.Candidates) == 0 || len(out.Candidates[0].Content.Parts) == 0 {
		return "", fmt.Errorf("chat API returned no candidates")
	}

	text := ""
	for _, p := range out.Candidates[0].Content.Parts {
		text += p.Text
	}
	return text, nil
}
