// Package server is the HTTP boundary: routing, tenant extraction, rate
// limiting, and the single place where the error taxonomy is translated to
// status codes.
package server

import (
	"context"
	"encoding/json"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/go-playground/validator/v10"
	"github.com/rs/zerolog"

	"github.com/wedosoft/project-a/internal/apperr"
	"github.com/wedosoft/project-a/internal/config"
	"github.com/wedosoft/project-a/internal/ingest"
	"github.com/wedosoft/project-a/internal/jobs"
	"github.com/wedosoft/project-a/internal/logging"
	"github.com/wedosoft/project-a/internal/metrics"
	"github.com/wedosoft/project-a/internal/retrieval"
	"github.com/wedosoft/project-a/internal/storage"
	"github.com/wedosoft/project-a/internal/tenant"
	"github.com/wedosoft/project-a/internal/vectorstore"
)

// Retriever is the slice of the retrieval orchestrator the server uses.
type Retriever interface {
	Init(ctx context.Context, scope retrieval.Scope, ticketID string, opts retrieval.InitOptions) (*retrieval.InitResult, error)
	Query(ctx context.Context, scope retrieval.Scope, opts retrieval.QueryOptions) (*retrieval.QueryResult, error)
	Reply(ctx context.Context, scope retrieval.Scope, opts retrieval.ReplyOptions) (*retrieval.ReplyResult, error)
}

// Ingester is the slice of the ingestion engine the server uses directly;
// asynchronous runs go through the job manager instead.
type Ingester interface {
	RunImmediate(ctx context.Context, opts ingest.Options) (*ingest.Report, error)
	SyncSummaries(ctx context.Context, tenantID, platformName string) (int, error)
}

// Server wires the components behind the HTTP boundary.
type Server struct {
	store     storage.Store
	vectors   vectorstore.VectorStore
	retriever Retriever
	ingester  Ingester
	jobs      *jobs.Manager
	limiter   *Limiter

	ingestCfg config.Ingest
	backupDir string
	log       zerolog.Logger
}

// New creates a server.
func New(store storage.Store, vectors vectorstore.VectorStore, retriever Retriever,
	ingester Ingester, manager *jobs.Manager, ingestCfg config.Ingest,
	rateCfg config.RateLimit, backupDir string) *Server {
	return &Server{
		store:     store,
		vectors:   vectors,
		retriever: retriever,
		ingester:  ingester,
		jobs:      manager,
		limiter:   NewLimiter(rateCfg),
		ingestCfg: ingestCfg,
		backupDir: backupDir,
		log:       logging.WithComponent("server"),
	}
}

// Router assembles the route tree.
func (s *Server) Router(corsOrigins []string) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	if len(corsOrigins) > 0 {
		r.Use(cors.Handler(cors.Options{
			AllowedOrigins: corsOrigins,
			AllowedMethods: []string{"GET", "POST", "DELETE", "OPTIONS"},
			AllowedHeaders: []string{"*"},
		}))
	}

	// Diagnostics bypass tenant extraction and rate limiting.
	r.Get("/health", s.handleHealth)
	r.Method(http.MethodGet, "/metrics", metrics.Handler())

	r.Group(func(r chi.Router) {
		r.Use(s.observe)
		r.Use(s.withTenant)
		r.Use(s.rateLimit(bucketStandard))

		r.Group(func(r chi.Router) {
			r.Use(s.rateLimit(bucketHeavy))
			r.Get("/init/{ticket_id}", s.handleInit)
			r.Post("/query", s.handleQuery)
			r.Post("/reply", s.handleReply)
			r.Post("/ingest", s.handleIngest)
			r.Post("/ingest/sync-summaries", s.handleSyncSummaries)
		})

		r.Post("/ingest/jobs", s.handleCreateJob)
		r.Get("/ingest/jobs", s.handleListJobs)
		r.Get("/ingest/jobs/{id}", s.handleGetJob)
		r.Post("/ingest/jobs/{id}/control", s.handleControlJob)
		r.Get("/ingest/progress/{job_id}", s.handleProgress)
		r.Post("/ingest/security/purge-data", s.handlePurge)
	})

	return r
}

// withTenant extracts and validates the tenant context, rejects callers that
// burned their auth-failure budget, and stores the context on the request.
func (s *Server) withTenant(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		tc, err := tenant.FromHeaders(r.Header)
		if err != nil {
			s.writeError(w, r, err)
			return
		}
		if s.limiter.AuthBlocked(clientIP(r), tc.TenantID) {
			metrics.RateLimited.WithLabelValues(string(bucketAuth)).Inc()
			s.writeRateLimited(w)
			return
		}
		next.ServeHTTP(w, r.WithContext(tenant.WithContext(r.Context(), tc)))
	})
}

// rateLimit consumes one token from the class bucket per request.
func (s *Server) rateLimit(class bucketClass) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			tc := tenant.FromContext(r.Context())
			tenantID := ""
			if tc != nil {
				tenantID = tc.TenantID
			}
			if !s.limiter.Allow(class, clientIP(r), tenantID) {
				metrics.RateLimited.WithLabelValues(string(class)).Inc()
				s.writeRateLimited(w)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// observe records request metrics by route pattern.
func (s *Server) observe(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)

		route := chi.RouteContext(r.Context()).RoutePattern()
		if route == "" {
			route = r.URL.Path
		}
		metrics.HTTPRequests.WithLabelValues(route, r.Method, strconv.Itoa(ww.Status())).Inc()
		metrics.HTTPDuration.WithLabelValues(route).Observe(time.Since(start).Seconds())
	})
}

func clientIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// errorBody is the single wire shape for errors.
type errorBody struct {
	Error struct {
		Kind    string `json:"kind"`
		Message string `json:"message"`
	} `json:"error"`
}

// writeError translates the taxonomy to a status code. Auth failures feed
// the caller's failure bucket.
func (s *Server) writeError(w http.ResponseWriter, r *http.Request, err error) {
	kind := apperr.KindOf(err)
	status := kind.HTTPStatus()

	if status == http.StatusUnauthorized || status == http.StatusForbidden {
		tenantID := ""
		if tc := tenant.FromContext(r.Context()); tc != nil {
			tenantID = tc.TenantID
		}
		s.limiter.RecordAuthFailure(clientIP(r), tenantID)
	}
	if status == http.StatusTooManyRequests {
		w.Header().Set("Retry-After", "60")
	}

	var body errorBody
	body.Error.Kind = kind.String()
	body.Error.Message = err.Error()
	s.writeJSON(w, status, body)
}

func (s *Server) writeRateLimited(w http.ResponseWriter) {
	w.Header().Set("Retry-After", "60")
	var body errorBody
	body.Error.Kind = apperr.KindRateLimit.String()
	body.Error.Message = "rate limit exceeded"
	s.writeJSON(w, http.StatusTooManyRequests, body)
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.log.Warn().Err(err).Msg("response encode failed")
	}
}

var validate = validator.New(validator.WithRequiredStructEnabled())

// decodeJSON reads a request body into v and checks its validate tags,
// mapping failures to validation errors.
func decodeJSON(r *http.Request, v any) error {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		return apperr.Wrap(apperr.KindValidation, "server", "invalid request body", err)
	}
	if err := validate.Struct(v); err != nil {
		return apperr.Wrap(apperr.KindValidation, "server", "invalid request fields", err)
	}
	return nil
}

func scopeOf(tc *tenant.Context) retrieval.Scope {
	return retrieval.Scope{
		TenantID:    tc.TenantID,
		Platform:    tc.Platform,
		Credentials: tc.Credentials(),
	}
}
