package metrics

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	JobRuns = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "goatbot_job_runs_total",
		Help: "Total scheduled job executions",
	}, []string{"job"})
	JobErrors = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "goatbot_job_errors_total",
		Help: "Total scheduled job failures",
	}, []string{"job"})
	JobSkips = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "goatbot_job_skips_total",
		Help: "Timer firings skipped because the previous run was still going",
	}, []string{"job"})
	JobDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "goatbot_job_duration_seconds",
		Help:    "Scheduled job duration seconds",
		Buckets: prometheus.DefBuckets,
	}, []string{"job"})
	RepliesSent = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "goatbot_replies_sent_total",
		Help: "Total replies posted to the platform",
	})
	RatingFailures = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "goatbot_rating_failures_total",
		Help: "Rater calls that errored or returned unparsable output",
	})
	LedgerCommits = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "goatbot_ledger_commits_total",
		Help: "Successful scoring ledger commits",
	})
	LedgerCommitErrors = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "goatbot_ledger_commit_errors_total",
		Help: "Scoring ledger commits that rolled back",
	})
	LoginAttempts = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "goatbot_login_attempts_total",
		Help: "Credential login attempts against the platform",
	})
)

func init() {
	prometheus.MustRegister(JobRuns, JobErrors, JobSkips, JobDuration,
		RepliesSent, RatingFailures, LedgerCommits, LedgerCommitErrors, LoginAttempts)
}

// Server exposes /metrics and /health. An empty addr disables it; Start and
// Stop are then no-ops.
type Server struct {
	srv *http.Server
}

// NewServer builds the metrics endpoint server.
func NewServer(addr string) *Server {
	if addr == "" {
		return &Server{}
	}
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(http.StatusOK) })
	return &Server{srv: &http.Server{Addr: addr, Handler: mux}}
}

// Start serves until Stop is called. Blocks.
func (s *Server) Start(ctx context.Context) error {
	if s.srv == nil {
		<-ctx.Done()
		return nil
	}
	if err := s.srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Stop shuts the endpoint down gracefully.
func (s *Server) Stop(ctx context.Context) error {
	if s.srv == nil {
		return nil
	}
	return s.srv.Shutdown(ctx)
}

// ObserveJobDuration records one run's duration for a named job.
func ObserveJobDuration(job string, start time.Time) {
	JobDuration.WithLabelValues(job).Observe(time.Since(start).Seconds())
}
