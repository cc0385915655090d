// Package api is the HTTP control plane: manual login, ad-hoc search and
// replies, and profile/timeline reads. Every response is a
// {status, data|message} envelope; failures never leak stack traces.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"goatbot/internal/accounts"
	"goatbot/internal/daemon"
	"goatbot/internal/session"
	"goatbot/internal/store"
	"goatbot/internal/xclient"
)

// Server hosts the control-plane endpoints.
type Server struct {
	srv       *http.Server
	registry  *accounts.Registry
	store     *store.Store
	daemon    *daemon.Daemon
	log       *zap.Logger
	newClient func() xclient.Client
	newMgr    func(c xclient.Client) *session.Manager
}

// New builds the server. newClient and newMgr construct the transport client
// and session manager for accounts created through POST /login.
func New(addr string, reg *accounts.Registry, st *store.Store, d *daemon.Daemon, log *zap.Logger,
	newClient func() xclient.Client, newMgr func(c xclient.Client) *session.Manager) *Server {
	s := &Server{
		registry:  reg,
		store:     st,
		daemon:    d,
		log:       log,
		newClient: newClient,
		newMgr:    newMgr,
	}
	mux := http.NewServeMux()
	mux.HandleFunc("GET /health", s.handleHealth)
	mux.HandleFunc("GET /jobs", s.handleJobs)
	mux.HandleFunc("POST /login", s.handleLogin)
	mux.HandleFunc("GET /accounts/{accountID}/search", s.handleSearch)
	mux.HandleFunc("POST /accounts/{accountID}/tweet", s.handleTweet)
	mux.HandleFunc("GET /accounts/{accountID}/user/{username}", s.handleProfile)
	mux.HandleFunc("GET /accounts/{accountID}/user/{username}/tweets", s.handleTimeline)
	mux.HandleFunc("GET /ledger/{username}", s.handleLedger)
	s.srv = &http.Server{
		Addr:         addr,
		Handler:      s.withRequestID(mux),
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 60 * time.Second,
	}
	return s
}

// Start serves until Stop is called. Blocks.
func (s *Server) Start(ctx context.Context) error {
	s.log.Info("control plane listening", zap.String("addr", s.srv.Addr))
	if err := s.srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Stop shuts the server down gracefully.
func (s *Server) Stop(ctx context.Context) error {
	return s.srv.Shutdown(ctx)
}

// Handler exposes the routed handler for tests.
func (s *Server) Handler() http.Handler { return s.srv.Handler }

func (s *Server) withRequestID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := uuid.NewString()
		w.Header().Set("X-Request-Id", id)
		s.log.Debug("request",
			zap.String("request_id", id),
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path))
		next.ServeHTTP(w, r)
	})
}

type envelope struct {
	Status  string `json:"status"`
	Data    any    `json:"data,omitempty"`
	Message string `json:"message,omitempty"`
}

func writeOK(w http.ResponseWriter, data any) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(envelope{Status: "ok", Data: data})
}

func writeErr(w http.ResponseWriter, code int, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(envelope{Status: "error", Message: msg})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeOK(w, map[string]string{"status": "ok"})
}

func (s *Server) handleJobs(w http.ResponseWriter, r *http.Request) {
	type jobStatus struct {
		Name     string `json:"name"`
		LastRun  string `json:"lastRun,omitempty"`
		Running  bool   `json:"running"`
		Interval string `json:"interval"`
	}
	var out []jobStatus
	for st := range s.daemon.Status() {
		js := jobStatus{Name: st.Name, Running: st.Running, Interval: st.Interval.String()}
		if !st.LastRun.IsZero() {
			js.LastRun = st.LastRun.Format(time.RFC3339)
		}
		out = append(out, js)
	}
	writeOK(w, out)
}

func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Username        string `json:"username"`
		Password        string `json:"password"`
		Email           string `json:"email"`
		TwoFactorSecret string `json:"twoFactorSecret"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeErr(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if body.Username == "" || body.Password == "" || body.Email == "" {
		writeErr(w, http.StatusBadRequest, "missing required login information")
		return
	}

	// The username doubles as the account id; first login creates the client.
	acct, ok := s.registry.Get(body.Username)
	if !ok {
		client := s.newClient()
		acct = &accounts.Account{Client: client, Session: s.newMgr(client)}
		if err := s.registry.Put(body.Username, acct); err != nil {
			if existing, ok := s.registry.Get(body.Username); ok {
				acct = existing
			}
		}
	}

	if err := acct.Session.Login(r.Context(), session.Credentials{
		Username:        body.Username,
		Password:        body.Password,
		Email:           body.Email,
		TwoFactorSecret: body.TwoFactorSecret,
	}); err != nil {
		s.log.Error("manual login failed", zap.String("username", body.Username), zap.Error(err))
		writeErr(w, http.StatusInternalServerError, "login failed")
		return
	}
	writeOK(w, map[string]string{"accountId": body.Username, "username": body.Username})
}

func (s *Server) handleSearch(w http.ResponseWriter, r *http.Request) {
	acct, ok := s.account(w, r)
	if !ok {
		return
	}
	query := r.URL.Query().Get("query")
	if query == "" {
		writeErr(w, http.StatusBadRequest, "missing search query")
		return
	}
	limit := queryInt(r, "limit", 20)
	tweets, err := acct.Client.Search(r.Context(), query, limit, xclient.SearchLatest)
	if err != nil {
		s.log.Error("search failed", zap.Error(err))
		writeErr(w, http.StatusInternalServerError, "failed to search tweets")
		return
	}
	writeOK(w, tweets)
}

func (s *Server) handleTweet(w http.ResponseWriter, r *http.Request) {
	acct, ok := s.account(w, r)
	if !ok {
		return
	}
	var body struct {
		TweetID   string `json:"tweetId"`
		ReplyText string `json:"replyText"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil || body.TweetID == "" || body.ReplyText == "" {
		writeErr(w, http.StatusBadRequest, "missing required parameters")
		return
	}
	if err := acct.Client.Post(r.Context(), body.ReplyText, body.TweetID); err != nil {
		s.log.Error("manual reply failed", zap.Error(err))
		writeErr(w, http.StatusInternalServerError, "failed to send reply")
		return
	}
	writeOK(w, map[string]string{"message": "reply sent"})
}

func (s *Server) handleProfile(w http.ResponseWriter, r *http.Request) {
	acct, ok := s.account(w, r)
	if !ok {
		return
	}
	username := r.PathValue("username")
	if username == "" {
		writeErr(w, http.StatusBadRequest, "missing username")
		return
	}
	profile, err := acct.Client.Profile(r.Context(), username)
	if err != nil {
		s.log.Error("profile fetch failed", zap.Error(err))
		writeErr(w, http.StatusInternalServerError, "failed to get user profile")
		return
	}
	writeOK(w, profile)
}

func (s *Server) handleTimeline(w http.ResponseWriter, r *http.Request) {
	acct, ok := s.account(w, r)
	if !ok {
		return
	}
	username := r.PathValue("username")
	if username == "" {
		writeErr(w, http.StatusBadRequest, "missing username")
		return
	}
	limit := queryInt(r, "limit", 20)
	tweets, err := acct.Client.FetchTimeline(r.Context(), username, limit)
	if err != nil {
		s.log.Error("timeline fetch failed", zap.Error(err))
		writeErr(w, http.StatusInternalServerError, "failed to get user tweets")
		return
	}
	writeOK(w, tweets)
}

// handleLedger reads the local points ledger, not the platform.
func (s *Server) handleLedger(w http.ResponseWriter, r *http.Request) {
	username := r.PathValue("username")
	if username == "" {
		writeErr(w, http.StatusBadRequest, "missing username")
		return
	}
	profile, err := s.store.GetProfile(r.Context(), username)
	if errors.Is(err, store.ErrNotFound) {
		writeErr(w, http.StatusNotFound, "unknown username")
		return
	}
	if err != nil {
		s.log.Error("ledger profile read failed", zap.Error(err))
		writeErr(w, http.StatusInternalServerError, "failed to read ledger")
		return
	}
	events, err := s.store.ListEvents(r.Context(), username, queryInt(r, "limit", 20))
	if err != nil {
		s.log.Error("ledger events read failed", zap.Error(err))
		writeErr(w, http.StatusInternalServerError, "failed to read ledger")
		return
	}
	writeOK(w, map[string]any{"profile": profile, "events": events})
}

// account resolves the {accountID} path parameter, writing the error
// envelope itself when the account is missing or unknown.
func (s *Server) account(w http.ResponseWriter, r *http.Request) (*accounts.Account, bool) {
	id := r.PathValue("accountID")
	if id == "" {
		writeErr(w, http.StatusBadRequest, "missing account ID")
		return nil, false
	}
	acct, ok := s.registry.Get(id)
	if !ok {
		writeErr(w, http.StatusNotFound, "account not found")
		return nil, false
	}
	return acct, true
}

func queryInt(r *http.Request, key string, def int) int {
	v := r.URL.Query().Get(key)
	if v == "" {
		return def
	}
	if n, err := strconv.Atoi(v); err == nil && n > 0 {
		return n
	}
	return def
}
