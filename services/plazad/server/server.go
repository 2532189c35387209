package server

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/gguuttss/RadixPlaza/config"
	"github.com/gguuttss/RadixPlaza/crypto"
	nativecommon "github.com/gguuttss/RadixPlaza/native/common"
	"github.com/gguuttss/RadixPlaza/native/pair"
	"github.com/gguuttss/RadixPlaza/observability"
	"github.com/gguuttss/RadixPlaza/services/plazad/host"
	"github.com/gguuttss/RadixPlaza/services/plazad/journal"
	"github.com/gguuttss/RadixPlaza/services/plazad/stream"
)

const (
	moduleName  = "pair"
	maxBodySize = 1 << 20
)

// PairHost is the subset of the pair host the API drives.
type PairHost interface {
	Pairs(ctx context.Context) ([]*pair.Pair, error)
	Pair(ctx context.Context, addr crypto.Address) (*pair.Pair, error)
	Quote(ctx context.Context, addr crypto.Address, input pair.Bucket) (*pair.Trade, error)
	Swap(ctx context.Context, addr crypto.Address, input pair.Bucket) (*host.SwapResult, error)
	AddLiquidity(ctx context.Context, addr crypto.Address, input pair.Bucket, co *pair.Bucket) (pair.Bucket, []pair.Bucket, error)
	RemoveLiquidity(ctx context.Context, addr crypto.Address, units pair.Bucket) (pair.Bucket, pair.Bucket, error)
	CollectFees(ctx context.Context, addr crypto.Address) (pair.Bucket, pair.Bucket, error)
	Trades(ctx context.Context, addr crypto.Address, limit int) ([]journal.Trade, error)
	ExportTrades(ctx context.Context, addr crypto.Address, w io.Writer) (int, error)
}

// EventSource feeds the websocket stream.
type EventSource interface {
	Subscribe(pair string) (<-chan stream.Message, func())
}

// Config captures the dependencies required to construct the server.
type Config struct {
	Host      PairHost
	Logger    *slog.Logger
	RateLimit config.RateLimit
	Auth      config.Auth
	// Health reports readiness of backing stores; nil means always healthy.
	Health func(context.Context) error
	// Stream backs GET /v1/pairs/{pair}/stream; nil disables the endpoint.
	Stream EventSource
	// StreamOrigins lists the Origin patterns allowed to open a stream.
	StreamOrigins []string
	Now           func() time.Time
}

// Server exposes the pair host over HTTP.
type Server struct {
	host    PairHost
	logger  *slog.Logger
	limiter *RateLimiter
	auth    *Authenticator
	health  func(context.Context) error
	stream  EventSource
	origins []string
	now     func() time.Time
	router  http.Handler
}

// New constructs the router.
func New(cfg Config) (*Server, error) {
	if cfg.Host == nil {
		return nil, fmt.Errorf("server: host required")
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	now := cfg.Now
	if now == nil {
		now = time.Now
	}
	s := &Server{
		host:    cfg.Host,
		logger:  logger,
		limiter: NewRateLimiter(cfg.RateLimit, logger),
		auth:    NewAuthenticator(cfg.Auth, logger, now),
		health:  cfg.Health,
		stream:  cfg.Stream,
		origins: cfg.StreamOrigins,
		now:     now,
	}
	s.router = s.buildRouter()
	return s, nil
}

// Handler exposes the configured HTTP router.
func (s *Server) Handler() http.Handler {
	return s.router
}

// Run serves the API on addr until ctx is cancelled.
func (s *Server) Run(ctx context.Context, addr string) error {
	if s == nil {
		return fmt.Errorf("server not configured")
	}
	srv := &http.Server{
		Addr:              addr,
		Handler:           otelhttp.NewHandler(s.router, "plazad"),
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()

	s.logger.Info("http server listening", "addr", addr)
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("listen and serve: %w", err)
	}
	return nil
}

func (s *Server) buildRouter() http.Handler {
	r := chi.NewRouter()
	r.Use(chimw.RequestID)
	r.Use(chimw.RealIP)
	r.Use(chimw.Recoverer)

	r.Get("/healthz", s.handleHealth)
	r.Handle("/metrics", promhttp.Handler())

	r.Route("/v1/pairs", func(api chi.Router) {
		api.Use(s.observe)
		api.Use(s.limiter.Middleware(moduleName))
		api.Get("/", s.handleListPairs)
		api.Route("/{pair}", func(p chi.Router) {
			p.Get("/", s.handleGetPair)
			p.Post("/quote", s.handleQuote)
			p.Post("/swap", s.handleSwap)
			p.Post("/liquidity", s.handleAddLiquidity)
			p.Post("/liquidity/remove", s.handleRemoveLiquidity)
			p.With(s.auth.Require(ScopeOperator)).Post("/fees/collect", s.handleCollectFees)
			p.Get("/trades", s.handleTrades)
			p.With(s.auth.Require(ScopeOperator)).Get("/trades/export", s.handleExportTrades)
			p.Get("/stream", s.handleStream)
		})
	})
	return r
}

func (s *Server) observe(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		done := observability.API().Begin()
		ww := chimw.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)
		status := ww.Status()
		if status == 0 {
			status = http.StatusOK
		}
		done(r.Method+" "+chi.RouteContext(r.Context()).RoutePattern(), status)
	})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if s.health != nil {
		if err := s.health(r.Context()); err != nil {
			writeError(w, http.StatusServiceUnavailable, "unhealthy", err.Error())
			return
		}
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleListPairs(w http.ResponseWriter, r *http.Request) {
	pairs, err := s.host.Pairs(r.Context())
	if err != nil {
		s.writeFailure(w, err)
		return
	}
	now := s.now().Unix()
	out := make([]PairView, 0, len(pairs))
	for _, p := range pairs {
		out = append(out, NewPairView(p, now))
	}
	writeJSON(w, http.StatusOK, map[string]any{"pairs": out})
}

func (s *Server) handleGetPair(w http.ResponseWriter, r *http.Request) {
	addr, ok := s.pairParam(w, r)
	if !ok {
		return
	}
	p, err := s.host.Pair(r.Context(), addr)
	if err != nil {
		s.writeFailure(w, err)
		return
	}
	writeJSON(w, http.StatusOK, NewPairView(p, s.now().Unix()))
}

func (s *Server) handleQuote(w http.ResponseWriter, r *http.Request) {
	addr, ok := s.pairParam(w, r)
	if !ok {
		return
	}
	var req BucketRequest
	if !decodeBody(w, r, &req) {
		return
	}
	input, err := req.Bucket()
	if err != nil {
		s.writeFailure(w, err)
		return
	}
	trade, err := s.host.Quote(r.Context(), addr, input)
	if err != nil {
		s.writeFailure(w, err)
		return
	}
	writeJSON(w, http.StatusOK, NewTradeView(trade))
}

func (s *Server) handleSwap(w http.ResponseWriter, r *http.Request) {
	addr, ok := s.pairParam(w, r)
	if !ok {
		return
	}
	var req BucketRequest
	if !decodeBody(w, r, &req) {
		return
	}
	input, err := req.Bucket()
	if err != nil {
		s.writeFailure(w, err)
		return
	}
	result, err := s.host.Swap(r.Context(), addr, input)
	if err != nil {
		s.writeFailure(w, err)
		return
	}
	writeJSON(w, http.StatusOK, SwapResponse{
		Output:    NewBucketView(result.Output),
		Trade:     NewTradeView(result.Trade),
		Before:    NewStateView(result.Before),
		After:     NewStateView(result.After),
		JournalID: result.JournalID,
	})
}

func (s *Server) handleAddLiquidity(w http.ResponseWriter, r *http.Request) {
	addr, ok := s.pairParam(w, r)
	if !ok {
		return
	}
	var req AddLiquidityRequest
	if !decodeBody(w, r, &req) {
		return
	}
	input, err := req.BucketRequest.Bucket()
	if err != nil {
		s.writeFailure(w, err)
		return
	}
	var co *pair.Bucket
	if req.Co != nil {
		bucket, err := req.Co.Bucket()
		if err != nil {
			s.writeFailure(w, err)
			return
		}
		co = &bucket
	}
	units, remainders, err := s.host.AddLiquidity(r.Context(), addr, input, co)
	if err != nil {
		s.writeFailure(w, err)
		return
	}
	resp := AddLiquidityResponse{Units: NewBucketView(units), Remainders: make([]BucketView, 0, len(remainders))}
	for _, rem := range remainders {
		resp.Remainders = append(resp.Remainders, NewBucketView(rem))
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleRemoveLiquidity(w http.ResponseWriter, r *http.Request) {
	addr, ok := s.pairParam(w, r)
	if !ok {
		return
	}
	var req BucketRequest
	if !decodeBody(w, r, &req) {
		return
	}
	units, err := req.Bucket()
	if err != nil {
		s.writeFailure(w, err)
		return
	}
	own, other, err := s.host.RemoveLiquidity(r.Context(), addr, units)
	if err != nil {
		s.writeFailure(w, err)
		return
	}
	writeJSON(w, http.StatusOK, RemoveLiquidityResponse{Own: NewBucketView(own), Other: NewBucketView(other)})
}

func (s *Server) handleCollectFees(w http.ResponseWriter, r *http.Request) {
	addr, ok := s.pairParam(w, r)
	if !ok {
		return
	}
	base, quote, err := s.host.CollectFees(r.Context(), addr)
	if err != nil {
		s.writeFailure(w, err)
		return
	}
	if principal, ok := PrincipalFrom(r.Context()); ok {
		s.logger.Info("fees collected", "pair", addr.String(), "operator", principal.Subject,
			"base", base.Amount.String(), "quote", quote.Amount.String())
	}
	writeJSON(w, http.StatusOK, CollectFeesResponse{Base: NewBucketView(base), Quote: NewBucketView(quote)})
}

func (s *Server) handleTrades(w http.ResponseWriter, r *http.Request) {
	addr, ok := s.pairParam(w, r)
	if !ok {
		return
	}
	limit := 0
	if raw := r.URL.Query().Get("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed < 0 {
			writeError(w, http.StatusBadRequest, "invalid_limit", "limit must be a non-negative integer")
			return
		}
		limit = parsed
	}
	trades, err := s.host.Trades(r.Context(), addr, limit)
	if err != nil {
		s.writeFailure(w, err)
		return
	}
	if trades == nil {
		trades = []journal.Trade{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"trades": trades})
}

func (s *Server) handleExportTrades(w http.ResponseWriter, r *http.Request) {
	addr, ok := s.pairParam(w, r)
	if !ok {
		return
	}
	var buf bytes.Buffer
	n, err := s.host.ExportTrades(r.Context(), addr, &buf)
	if err != nil {
		s.writeFailure(w, err)
		return
	}
	w.Header().Set("Content-Type", "application/vnd.apache.parquet")
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", addr.String()+"-trades.parquet"))
	w.Header().Set("X-Row-Count", strconv.Itoa(n))
	w.WriteHeader(http.StatusOK)
	_, _ = buf.WriteTo(w)
}

func (s *Server) pairParam(w http.ResponseWriter, r *http.Request) (crypto.Address, bool) {
	raw := chi.URLParam(r, "pair")
	addr, err := crypto.DecodeAddress(raw)
	if err != nil || addr.Prefix() != crypto.ComponentPrefix {
		writeError(w, http.StatusBadRequest, "invalid_pair", fmt.Sprintf("%q is not a component address", raw))
		return crypto.Address{}, false
	}
	return addr, true
}

func (s *Server) writeFailure(w http.ResponseWriter, err error) {
	status := StatusFor(err)
	if status >= http.StatusInternalServerError && status != http.StatusServiceUnavailable {
		s.logger.Error("pair request failed", "error", err)
	}
	writeError(w, status, host.Reason(err), err.Error())
}

// StatusFor maps an engine error onto an HTTP status.
func StatusFor(err error) int {
	switch {
	case errors.Is(err, nativecommon.ErrModulePaused),
		errors.Is(err, host.ErrJournalDisabled):
		return http.StatusServiceUnavailable
	case errors.Is(err, pair.ErrPairNotFound):
		return http.StatusNotFound
	case errors.Is(err, pair.ErrPairExists):
		return http.StatusConflict
	case errors.Is(err, pair.ErrInvalidResource),
		errors.Is(err, pair.ErrInvalidAmount),
		errors.Is(err, pair.ErrConfiguration):
		return http.StatusBadRequest
	case errors.Is(err, pair.ErrInsufficientLiquidity),
		errors.Is(err, pair.ErrOutputTooSmall),
		errors.Is(err, pair.ErrCoLiquidityRequired),
		errors.Is(err, pair.ErrArithmeticOverflow),
		errors.Is(err, pair.ErrArithmeticUnderflow):
		return http.StatusUnprocessableEntity
	default:
		return http.StatusInternalServerError
	}
}

func decodeBody(w http.ResponseWriter, r *http.Request, dst any) bool {
	dec := json.NewDecoder(io.LimitReader(r.Body, maxBodySize))
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_body", err.Error())
		return false
	}
	return true
}

type errorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message"`
}

func writeError(w http.ResponseWriter, status int, code, message string) {
	writeJSON(w, status, errorResponse{Error: code, Message: message})
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}
