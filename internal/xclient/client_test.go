package xclient

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"golang.org/x/time/rate"
)

func newTestClient(baseURL string) *HTTPClient {
	c := New(baseURL)
	c.limiter = rate.NewLimiter(rate.Inf, 1)
	c.baseBackoff = time.Millisecond
	c.maxAttempts = 3
	return c
}

func TestSearchDecodesWireTweets(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/search/adaptive.json", r.URL.Path)
		require.Equal(t, "@goatbot", r.URL.Query().Get("q"))
		require.Equal(t, "latest", r.URL.Query().Get("result_filter"))
		_, _ = w.Write([]byte(`{"tweets":[{
			"id_str":"t1",
			"full_text":"@goatbot gm @alice",
			"user":{"screen_name":"bob","name":"Bob"},
			"entities":{
				"user_mentions":[{"screen_name":"goatbot","id_str":"1"},{"screen_name":"alice","id_str":"2"}],
				"hashtags":[{"text":"gm"}],
				"urls":[{"expanded_url":"https://example.com"}]
			},
			"created_at":"Mon Jan 02 15:04:05 +0000 2006",
			"in_reply_to_status_id_str":"t0"
		}]}`))
	}))
	defer srv.Close()

	c := newTestClient(srv.URL)
	tweets, err := c.Search(context.Background(), "@goatbot", 20, SearchLatest)
	require.NoError(t, err)
	require.Len(t, tweets, 1)

	tw := tweets[0]
	require.Equal(t, "t1", tw.ID)
	require.Equal(t, "bob", tw.Username)
	require.Equal(t, "t0", tw.InReplyTo)
	require.Len(t, tw.Mentions, 2)
	require.Equal(t, "alice", tw.Mentions[1].Username)
	require.Equal(t, []string{"gm"}, tw.Hashtags)
	require.Equal(t, []string{"https://example.com"}, tw.URLs)
	require.Equal(t, 2006, tw.CreatedAt.Year())
}

func TestDoWithRetryRecoversFrom429(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) == 1 {
			w.Header().Set("Retry-After", "0")
			w.WriteHeader(http.StatusTooManyRequests)
			return
		}
		_, _ = w.Write([]byte(`{"tweets":[]}`))
	}))
	defer srv.Close()

	c := newTestClient(srv.URL)
	_, err := c.Search(context.Background(), "gm", 5, SearchTop)
	require.NoError(t, err)
	require.Equal(t, int32(2), calls.Load())
}

func TestDoWithRetryResendsPostBody(t *testing.T) {
	var calls atomic.Int32
	var lastBody string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var body map[string]string
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		lastBody = body["status"]
		if calls.Add(1) == 1 {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
	}))
	defer srv.Close()

	c := newTestClient(srv.URL)
	require.NoError(t, c.Post(context.Background(), "gm frens", "t0"))
	require.Equal(t, int32(2), calls.Load())
	require.Equal(t, "gm frens", lastBody, "retry must carry the full body")
}

func TestIsAuthenticated(t *testing.T) {
	status := http.StatusOK
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(status)
	}))
	defer srv.Close()

	c := newTestClient(srv.URL)
	ok, err := c.IsAuthenticated(context.Background())
	require.NoError(t, err)
	require.True(t, ok)

	status = http.StatusUnauthorized
	ok, err = c.IsAuthenticated(context.Background())
	require.NoError(t, err)
	require.False(t, ok)
}

func TestSessionExportImportRoundTrip(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.SetCookie(w, &http.Cookie{Name: "auth_token", Value: "secret", Path: "/"})
	}))
	defer srv.Close()

	c := newTestClient(srv.URL)
	require.NoError(t, c.Authenticate(context.Background(), "goat", "pw", "g@example.com", ""))

	bundle, err := c.ExportSession()
	require.NoError(t, err)
	require.Contains(t, bundle, "auth_token")

	fresh := newTestClient(srv.URL)
	require.NoError(t, fresh.ImportSession(bundle))
	exported, err := fresh.ExportSession()
	require.NoError(t, err)
	require.Contains(t, exported, "secret")
}

func TestImportSessionMalformed(t *testing.T) {
	c := newTestClient("https://example.com")
	require.Error(t, c.ImportSession("not json"))
}

func TestClamp(t *testing.T) {
	require.Equal(t, 1, clamp(0, 1, 100))
	require.Equal(t, 100, clamp(500, 1, 100))
	require.Equal(t, 20, clamp(20, 1, 100))
}
