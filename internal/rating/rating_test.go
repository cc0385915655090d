package rating

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"

	"goatbot/internal/config"
)

func TestClientRate(t *testing.T) {
	var gotAuth string
	var gotModel string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		var body struct {
			Model    string `json:"model"`
			Messages []struct {
				Content string `json:"content"`
			} `json:"messages"`
		}
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		gotModel = body.Model
		require.Contains(t, body.Messages[0].Content, "why did the bull cross the road")
		_, _ = w.Write([]byte(`{"choices":[{"message":{"content":"{\"score\": 85, \"reason\": \"solid\"}"}}]}`))
	}))
	defer srv.Close()

	c := NewClient(config.RaterConfig{Endpoint: srv.URL, Model: "gpt-4o-mini", APIKey: "sk-test"})
	raw, err := c.Rate(context.Background(), "why did the bull cross the road")
	require.NoError(t, err)
	require.Equal(t, "Bearer sk-test", gotAuth)
	require.Equal(t, "gpt-4o-mini", gotModel)

	res := Parse(raw)
	require.True(t, res.OK())
	require.Equal(t, 85, res.Parsed.Value)
}

func TestClientRateUpstreamError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, `{"error":"rate limited"}`, http.StatusTooManyRequests)
	}))
	defer srv.Close()

	c := NewClient(config.RaterConfig{Endpoint: srv.URL, Model: "gpt-4o-mini", APIKey: "sk-test"})
	_, err := c.Rate(context.Background(), "gm")
	require.Error(t, err)
	require.Contains(t, err.Error(), "429")
}

func TestClientRateMisconfigured(t *testing.T) {
	c := NewClient(config.RaterConfig{})
	_, err := c.Rate(context.Background(), "gm")
	require.Error(t, err)
}
