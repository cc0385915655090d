// Package rating talks to the external scoring model and interprets its
// free-form output. The model is untrusted: anything that does not parse as a
// {score, reason} object degrades to a zero score.
package rating

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"goatbot/internal/config"
)

// Rater produces free-form text expected, but not guaranteed, to contain a
// JSON {score, reason} object.
type Rater interface {
	Rate(ctx context.Context, text string) (string, error)
}

const promptTemplate = `Yo! Satoshi Goat here, your favorite crypto memelord! Rate this joke (1-100) and give a quick, spicy reason why it's 🔥 or 💩

Scoring vibe:
- Laugh factor & meme potential
- Crypto knowledge
- Could it go viral?
- Inside joke bonus

Joke: %s

Keep it short and savage! Format:
` + "```json" + `
{
  "score": number,
  "reason": string
}
` + "```"

// Client calls an OpenAI-compatible chat completions endpoint.
type Client struct {
	endpoint   string
	model      string
	apiKey     string
	httpClient *http.Client
}

var _ Rater = (*Client)(nil)

// NewClient builds a rater from configuration.
func NewClient(cfg config.RaterConfig) *Client {
	return &Client{
		endpoint:   cfg.Endpoint,
		model:      cfg.Model,
		apiKey:     cfg.APIKey,
		httpClient: &http.Client{Timeout: 20 * time.Second},
	}
}

// Rate submits the scoring prompt and returns the raw model text.
func (c *Client) Rate(ctx context.Context, text string) (string, error) {
	if c.apiKey == "" || c.endpoint == "" || c.model == "" {
		return "", fmt.Errorf("rater misconfigured")
	}
	body, err := json.Marshal(map[string]any{
		"model": c.model,
		"messages": []map[string]string{
			{"role": "user", "content": fmt.Sprintf(promptTemplate, text)},
		},
		"temperature": 0.7,
		"max_tokens":  100,
	})
	if err != nil {
		return "", fmt.Errorf("marshal rater payload: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("new request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.apiKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("rate: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode >= http.StatusBadRequest {
		payload, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return "", fmt.Errorf("rater error %s: %s", resp.Status, strings.TrimSpace(string(payload)))
	}
	var raw struct {
		Choices []struct {
			Message struct {
				Content string `json:"content"`
			} `json:"message"`
		} `json:"choices"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&raw); err != nil {
		return "", fmt.Errorf("decode rater response: %w", err)
	}
	if len(raw.Choices) == 0 {
		return "", nil
	}
	return raw.Choices[0].Message.Content, nil
}
