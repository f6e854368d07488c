package rpc

import (
	"context"
	"encoding/json"
	"log/slog"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/time/rate"

	"peerlend/native/lending"
	"peerlend/observability"
)

type contextKey string

const requestIDKey contextKey = "requestID"

// Server exposes the lending engine over JSON-RPC. It parses arguments and
// maps errors; all accounting happens in the engine.
type Server struct {
	engine *lending.Engine
	log    *slog.Logger

	defaultMaxIterations uint64

	limitersMu sync.Mutex
	limiters   map[string]*rate.Limiter
	limit      rate.Limit
	burst      int
}

// Options configures the RPC server.
type Options struct {
	// DefaultMaxIterations applies when a request carries no budget.
	DefaultMaxIterations uint64
	// RateLimitPerMinute bounds requests per client address; zero disables
	// limiting.
	RateLimitPerMinute int
	Log                *slog.Logger
}

func NewServer(engine *lending.Engine, opts Options) *Server {
	log := opts.Log
	if log == nil {
		log = slog.Default()
	}
	s := &Server{
		engine:               engine,
		log:                  log,
		defaultMaxIterations: opts.DefaultMaxIterations,
		limiters:             make(map[string]*rate.Limiter),
	}
	if opts.RateLimitPerMinute > 0 {
		s.limit = rate.Limit(float64(opts.RateLimitPerMinute) / 60.0)
		s.burst = opts.RateLimitPerMinute
	}
	return s
}

// Router builds the HTTP surface: the JSON-RPC endpoint plus health and
// metrics.
func (s *Server) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(s.requestID)
	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("ok"))
	})
	r.Handle("/metrics", promhttp.HandlerFor(observability.Registry(), promhttp.HandlerOpts{}))
	r.Post("/", s.handleRPC)
	return r
}

func (s *Server) requestID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := r.Header.Get("X-Request-ID")
		if id == "" {
			id = uuid.NewString()
		}
		w.Header().Set("X-Request-ID", id)
		next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), requestIDKey, id)))
	})
}

func (s *Server) allow(remoteAddr string) bool {
	if s.limit == 0 {
		return true
	}
	host, _, err := net.SplitHostPort(remoteAddr)
	if err != nil {
		host = remoteAddr
	}
	s.limitersMu.Lock()
	limiter, ok := s.limiters[host]
	if !ok {
		limiter = rate.NewLimiter(s.limit, s.burst)
		s.limiters[host] = limiter
	}
	s.limitersMu.Unlock()
	return limiter.Allow()
}

type rpcRequest struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      json.RawMessage `json:"id"`
	Method  string          `json:"method"`
	Params  json.RawMessage `json:"params"`
}

type rpcError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

type rpcResponse struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      json.RawMessage `json:"id"`
	Result  interface{}     `json:"result,omitempty"`
	Error   *rpcError       `json:"error,omitempty"`
}

func (s *Server) handleRPC(w http.ResponseWriter, r *http.Request) {
	if !s.allow(r.RemoteAddr) {
		http.Error(w, "rate limit exceeded", http.StatusTooManyRequests)
		return
	}
	var req rpcRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeResponse(w, rpcResponse{JSONRPC: "2.0", Error: &rpcError{Code: codeParse, Message: "invalid JSON"}})
		return
	}
	started := time.Now()
	result, rpcErr := s.dispatch(req.Method, req.Params)
	outcome := "ok"
	if rpcErr != nil {
		outcome = "error"
		observability.ObserveActionError(req.Method, rpcErr.Message)
	}
	observability.ObserveAction(req.Method, outcome, time.Since(started).Seconds())

	resp := rpcResponse{JSONRPC: "2.0", ID: req.ID, Result: result, Error: rpcErr}
	if rpcErr != nil {
		id, _ := r.Context().Value(requestIDKey).(string)
		s.log.Warn("rpc request failed",
			slog.String("method", req.Method),
			slog.String("requestId", id),
			slog.Int("code", rpcErr.Code),
			slog.String("error", rpcErr.Message))
	}
	writeResponse(w, resp)
}

func writeResponse(w http.ResponseWriter, resp rpcResponse) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(resp)
}
