// Package xclient implements the transport boundary to the platform: a
// cookie-session client with rate limiting and bounded retry.
package xclient

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/cookiejar"
	"net/url"
	"os"
	"strconv"
	"time"

	"golang.org/x/time/rate"

	"goatbot/internal/model"
)

// SearchMode selects the platform's search ranking.
type SearchMode int

const (
	SearchLatest SearchMode = iota
	SearchTop
)

func (m SearchMode) String() string {
	if m == SearchTop {
		return "top"
	}
	return "latest"
}

// Client is the transport collaborator the bot depends on. One Client owns
// one account's authenticated connection.
type Client interface {
	IsAuthenticated(ctx context.Context) (bool, error)
	Authenticate(ctx context.Context, username, password, email, twoFactorSecret string) error
	ExportSession() (string, error)
	ImportSession(bundle string) error
	Search(ctx context.Context, query string, limit int, mode SearchMode) ([]model.Tweet, error)
	Post(ctx context.Context, text, inReplyTo string) error
	FetchTimeline(ctx context.Context, username string, limit int) ([]model.Tweet, error)
	Profile(ctx context.Context, username string) (model.User, error)
}

// HTTPClient talks to the platform's web endpoints using a cookie session.
type HTTPClient struct {
	baseURL     string
	httpClient  *http.Client
	jar         *cookiejar.Jar
	limiter     *rate.Limiter
	maxAttempts int
	baseBackoff time.Duration
}

var _ Client = (*HTTPClient)(nil)

// New builds a client against baseURL (default platform host when empty).
func New(baseURL string) *HTTPClient {
	if baseURL == "" {
		baseURL = "https://x.com/i/api"
	}
	jar, _ := cookiejar.New(nil)
	return &HTTPClient{
		baseURL:     baseURL,
		jar:         jar,
		httpClient:  &http.Client{Timeout: 15 * time.Second, Jar: jar},
		limiter:     newDefaultLimiter(),
		maxAttempts: getEnvInt("X_MAX_ATTEMPTS", 5),
		baseBackoff: time.Duration(getEnvInt("X_BASE_BACKOFF_MS", 500)) * time.Millisecond,
	}
}

// IsAuthenticated checks the session against the platform.
func (c *HTTPClient) IsAuthenticated(ctx context.Context) (bool, error) {
	resp, err := c.get(ctx, "/account/verify_credentials.json")
	if err != nil {
		return false, err
	}
	defer resp.Body.Close()
	switch {
	case resp.StatusCode == http.StatusOK:
		return true, nil
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		return false, nil
	default:
		return false, fmt.Errorf("verify status %d", resp.StatusCode)
	}
}

// Authenticate performs the credential login flow. Session cookies land in
// the jar on success.
func (c *HTTPClient) Authenticate(ctx context.Context, username, password, email, twoFactorSecret string) error {
	if username == "" || password == "" {
		return errors.New("xclient: username and password required")
	}
	payload := map[string]string{
		"username": username,
		"password": password,
		"email":    email,
	}
	if twoFactorSecret != "" {
		payload["otp_secret"] = twoFactorSecret
	}
	resp, err := c.postJSON(ctx, "/onboarding/task.json?flow_name=login", payload)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 400 {
		return fmt.Errorf("login rejected: status %d", resp.StatusCode)
	}
	return nil
}

// sessionCookie is the serialized form of one jar cookie.
type sessionCookie struct {
	Name   string `json:"name"`
	Value  string `json:"value"`
	Domain string `json:"domain,omitempty"`
	Path   string `json:"path,omitempty"`
	Secure bool   `json:"secure,omitempty"`
}

// ExportSession serializes the current cookie session as an opaque bundle.
func (c *HTTPClient) ExportSession() (string, error) {
	u, err := url.Parse(c.baseURL)
	if err != nil {
		return "", err
	}
	// Cookies are exported host-relative. Re-attaching a domain or the
	// secure flag here makes the jar reject them on import for IP hosts.
	var out []sessionCookie
	for _, ck := range c.jar.Cookies(u) {
		out = append(out, sessionCookie{Name: ck.Name, Value: ck.Value, Path: "/"})
	}
	b, err := json.Marshal(out)
	if err != nil {
		return "", err
	}
	return string(b), nil
}

// ImportSession restores a previously exported bundle. A malformed bundle is
// an error and leaves the client unauthenticated.
func (c *HTTPClient) ImportSession(bundle string) error {
	var cookies []sessionCookie
	if err := json.Unmarshal([]byte(bundle), &cookies); err != nil {
		return fmt.Errorf("parse session bundle: %w", err)
	}
	u, err := url.Parse(c.baseURL)
	if err != nil {
		return err
	}
	set := make([]*http.Cookie, 0, len(cookies))
	for _, ck := range cookies {
		path := ck.Path
		if path == "" {
			path = "/"
		}
		set = append(set, &http.Cookie{Name: ck.Name, Value: ck.Value, Path: path})
	}
	c.jar.SetCookies(u, set)
	return nil
}

// rawTweet is the wire shape shared by search and timeline responses.
type rawTweet struct {
	ID       string `json:"id_str"`
	Text     string `json:"full_text"`
	User     struct {
		ScreenName string `json:"screen_name"`
		Name       string `json:"name"`
	} `json:"user"`
	Entities struct {
		UserMentions []struct {
			ScreenName string `json:"screen_name"`
			Name       string `json:"name"`
			ID         string `json:"id_str"`
		} `json:"user_mentions"`
		Hashtags []struct {
			Text string `json:"text"`
		} `json:"hashtags"`
		URLs []struct {
			ExpandedURL string `json:"expanded_url"`
		} `json:"urls"`
	} `json:"entities"`
	CreatedAt string `json:"created_at"`
	InReplyTo string `json:"in_reply_to_status_id_str"`
}

func (t rawTweet) toModel() model.Tweet {
	out := model.Tweet{
		ID:        t.ID,
		Text:      t.Text,
		Username:  t.User.ScreenName,
		Name:      t.User.Name,
		InReplyTo: t.InReplyTo,
	}
	if ts, err := time.Parse(time.RubyDate, t.CreatedAt); err == nil {
		out.CreatedAt = ts.UTC()
	}
	for _, m := range t.Entities.UserMentions {
		out.Mentions = append(out.Mentions, model.Mention{ID: m.ID, Username: m.ScreenName, Name: m.Name})
	}
	for _, h := range t.Entities.Hashtags {
		out.Hashtags = append(out.Hashtags, h.Text)
	}
	for _, u := range t.Entities.URLs {
		out.URLs = append(out.URLs, u.ExpandedURL)
	}
	return out
}

// Search returns recent tweets matching query.
func (c *HTTPClient) Search(ctx context.Context, query string, limit int, mode SearchMode) ([]model.Tweet, error) {
	path := fmt.Sprintf("/search/adaptive.json?q=%s&count=%d&result_filter=%s",
		url.QueryEscape(query), clamp(limit, 1, 100), mode)
	resp, err := c.get(ctx, path)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 400 {
		return nil, fmt.Errorf("search status %d", resp.StatusCode)
	}
	var raw struct {
		Tweets []rawTweet `json:"tweets"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&raw); err != nil {
		return nil, err
	}
	out := make([]model.Tweet, 0, len(raw.Tweets))
	for _, t := range raw.Tweets {
		out = append(out, t.toModel())
	}
	return out, nil
}

// Post publishes text, optionally as a reply to inReplyTo.
func (c *HTTPClient) Post(ctx context.Context, text, inReplyTo string) error {
	payload := map[string]string{"status": text}
	if inReplyTo != "" {
		payload["in_reply_to_status_id"] = inReplyTo
	}
	resp, err := c.postJSON(ctx, "/statuses/update.json", payload)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 400 {
		return fmt.Errorf("post status %d", resp.StatusCode)
	}
	return nil
}

// FetchTimeline returns a user's recent tweets.
func (c *HTTPClient) FetchTimeline(ctx context.Context, username string, limit int) ([]model.Tweet, error) {
	path := fmt.Sprintf("/user/%s/timeline.json?count=%d", url.PathEscape(username), clamp(limit, 1, 200))
	resp, err := c.get(ctx, path)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 400 {
		return nil, fmt.Errorf("timeline status %d", resp.StatusCode)
	}
	var raw struct {
		Tweets []rawTweet `json:"tweets"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&raw); err != nil {
		return nil, err
	}
	out := make([]model.Tweet, 0, len(raw.Tweets))
	for _, t := range raw.Tweets {
		out = append(out, t.toModel())
	}
	return out, nil
}

// Profile returns a user's public profile.
func (c *HTTPClient) Profile(ctx context.Context, username string) (model.User, error) {
	var out model.User
	resp, err := c.get(ctx, fmt.Sprintf("/user/%s/profile.json", url.PathEscape(username)))
	if err != nil {
		return out, err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 400 {
		return out, fmt.Errorf("profile status %d", resp.StatusCode)
	}
	var raw struct {
		ID             string `json:"id_str"`
		ScreenName     string `json:"screen_name"`
		Name           string `json:"name"`
		FollowersCount int    `json:"followers_count"`
		FollowingCount int    `json:"friends_count"`
		TweetCount     int    `json:"statuses_count"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&raw); err != nil {
		return out, err
	}
	return model.User{
		ID:             raw.ID,
		Username:       raw.ScreenName,
		Name:           raw.Name,
		FollowersCount: raw.FollowersCount,
		FollowingCount: raw.FollowingCount,
		TweetCount:     raw.TweetCount,
	}, nil
}

func (c *HTTPClient) get(ctx context.Context, path string) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "application/json")
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, err
	}
	return c.doWithRetry(ctx, req)
}

func (c *HTTPClient) postJSON(ctx context.Context, path string, payload any) (*http.Response, error) {
	b, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(b))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, err
	}
	return c.doWithRetry(ctx, req)
}

// doWithRetry retries 429 and 5xx responses with exponential backoff,
// honoring Retry-After when the platform sends one.
func (c *HTTPClient) doWithRetry(ctx context.Context, req *http.Request) (*http.Response, error) {
	backoff := c.baseBackoff
	var lastErr error
	for attempt := 1; attempt <= c.maxAttempts; attempt++ {
		clone := req.Clone(ctx)
		if req.GetBody != nil {
			if body, err := req.GetBody(); err == nil {
				clone.Body = body
			}
		}
		resp, err := c.httpClient.Do(clone)
		if err == nil {
			if resp.StatusCode == http.StatusTooManyRequests || (resp.StatusCode >= 500 && resp.StatusCode <= 599) {
				ra := resp.Header.Get("Retry-After")
				_ = resp.Body.Close()
				wait := backoff
				if ra != "" {
					if secs, err := strconv.Atoi(ra); err == nil {
						wait = time.Duration(secs) * time.Second
					} else if t, err := http.ParseTime(ra); err == nil {
						if d := time.Until(t); d > 0 {
							wait = d
						}
					}
				}
				select {
				case <-time.After(wait):
				case <-ctx.Done():
					return nil, ctx.Err()
				}
				backoff *= 2
				continue
			}
			return resp, nil
		}
		lastErr = err
		select {
		case <-time.After(backoff):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
		backoff *= 2
	}
	return nil, fmt.Errorf("request failed after %d attempts: %v", c.maxAttempts, lastErr)
}

func clamp(v, min, max int) int {
	if v < min {
		return min
	}
	if v > max {
		return max
	}
	return v
}

func getEnvInt(key string, def int) int {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	if i, err := strconv.Atoi(v); err == nil && i > 0 {
		return i
	}
	return def
}
