package rpc

import (
	"bytes"
	"crypto/subtle"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"golang.org/x/time/rate"

	"github.com/SynapseMedia/protocol-core-v1/core/events"
	"github.com/SynapseMedia/protocol-core-v1/native/rights"
	"github.com/SynapseMedia/protocol-core-v1/observability/metrics"
)

const (
	jsonRPCVersion  = "2.0"
	maxRequestBytes = 1 << 20 // 1 MiB
)

const (
	codeParseError     = -32700
	codeInvalidRequest = -32600
	codeMethodNotFound = -32601
	codeInvalidParams  = -32602
	codeUnauthorized   = -32001
	codeServerError    = -32000
	codeRateLimited    = -32020
)

// Server exposes the settlement engine over JSON-RPC.
type Server struct {
	engine    *rights.Engine
	logger    *slog.Logger
	limiter   *rate.Limiter
	recorder  *events.Recorder
	authToken string
	metrics   *metrics.RightsMetrics
}

// Option customises server construction.
type Option func(*Server)

// WithLogger overrides the default logger.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Server) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// WithEvents exposes the engine's recorded events via rights_recentEvents.
func WithEvents(recorder *events.Recorder) Option {
	return func(s *Server) { s.recorder = recorder }
}

// WithRateLimit bounds the request rate accepted by the server.
func WithRateLimit(perSecond float64, burst int) Option {
	return func(s *Server) {
		if perSecond > 0 && burst > 0 {
			s.limiter = rate.NewLimiter(rate.Limit(perSecond), burst)
		}
	}
}

// NewServer constructs a JSON-RPC server over the engine. Governance methods
// additionally require the bearer token from RIGHTS_RPC_TOKEN when set.
func NewServer(engine *rights.Engine, opts ...Option) *Server {
	s := &Server{
		engine:    engine,
		logger:    slog.Default(),
		limiter:   rate.NewLimiter(rate.Limit(50), 100),
		authToken: strings.TrimSpace(os.Getenv("RIGHTS_RPC_TOKEN")),
		metrics:   metrics.Rights(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Router assembles the HTTP surface: the RPC endpoint, health probe, and
// Prometheus scrape endpoint.
func (s *Server) Router() http.Handler {
	r := chi.NewRouter()
	r.Method(http.MethodPost, "/rpc", otelhttp.NewHandler(http.HandlerFunc(s.handle), "rights.rpc"))
	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]string{"status": "ok"})
	})
	r.Method(http.MethodGet, "/metrics", promhttp.Handler())
	return r
}

// Start serves the router on addr until the listener fails.
func (s *Server) Start(addr string) error {
	server := &http.Server{
		Addr:              addr,
		Handler:           s.Router(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	s.logger.Info("starting JSON-RPC server", "addr", addr)
	return server.ListenAndServe()
}

type RPCRequest struct {
	JSONRPC string          `json:"jsonrpc"`
	Method  string          `json:"method"`
	Params  json.RawMessage `json:"params"`
	ID      interface{}     `json:"id"`
}

type RPCResponse struct {
	JSONRPC string      `json:"jsonrpc"`
	ID      interface{} `json:"id"`
	Result  interface{} `json:"result,omitempty"`
	Error   *RPCError   `json:"error,omitempty"`
}

type RPCError struct {
	Code    int         `json:"code"`
	Message string      `json:"message"`
	Data    interface{} `json:"data,omitempty"`
}

func writeError(w http.ResponseWriter, status int, id interface{}, code int, message string, data interface{}) {
	if status <= 0 {
		status = http.StatusBadRequest
	}
	if status != http.StatusOK {
		w.WriteHeader(status)
	}
	errObj := &RPCError{Code: code, Message: message}
	if data != nil {
		errObj.Data = data
	}
	resp := RPCResponse{JSONRPC: jsonRPCVersion, ID: id, Error: errObj}
	_ = json.NewEncoder(w).Encode(resp)
}

func writeResult(w http.ResponseWriter, id interface{}, result interface{}) {
	resp := RPCResponse{JSONRPC: jsonRPCVersion, ID: id, Result: result}
	_ = json.NewEncoder(w).Encode(resp)
}

// handle is the main request handler that routes to specific handlers.
func (s *Server) handle(w http.ResponseWriter, r *http.Request) {
	started := time.Now()
	correlationID := uuid.NewString()
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("X-Correlation-Id", correlationID)

	if s.limiter != nil && !s.limiter.Allow() {
		writeError(w, http.StatusTooManyRequests, nil, codeRateLimited, "rate limit exceeded", nil)
		s.metrics.ObserveRPC("", "rate_limited", time.Since(started))
		return
	}

	reader := http.MaxBytesReader(w, r.Body, maxRequestBytes)
	defer func() {
		_ = reader.Close()
	}()

	body, err := io.ReadAll(reader)
	if err != nil {
		status := http.StatusBadRequest
		message := "failed to read request body"
		var maxBytesErr *http.MaxBytesError
		if errors.As(err, &maxBytesErr) {
			status = http.StatusRequestEntityTooLarge
			message = fmt.Sprintf("request body exceeds %d bytes", maxRequestBytes)
		}
		writeError(w, status, nil, codeInvalidRequest, message, err.Error())
		return
	}
	if len(bytes.TrimSpace(body)) == 0 {
		writeError(w, http.StatusBadRequest, nil, codeInvalidRequest, "request body required", nil)
		return
	}

	req := &RPCRequest{}
	if err := json.Unmarshal(body, req); err != nil {
		writeError(w, http.StatusBadRequest, nil, codeParseError, "invalid JSON payload", err.Error())
		return
	}
	if req.JSONRPC != "" && req.JSONRPC != jsonRPCVersion {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidRequest, "unsupported jsonrpc version", req.JSONRPC)
		return
	}
	if req.Method == "" {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidRequest, "method required", nil)
		return
	}

	logger := s.logger.With("method", req.Method, "correlationId", correlationID)
	status := s.dispatch(w, r, req, logger)
	s.metrics.ObserveRPC(req.Method, status, time.Since(started))
}

func (s *Server) dispatch(w http.ResponseWriter, r *http.Request, req *RPCRequest, logger *slog.Logger) string {
	switch req.Method {
	case "rights_grantAccess":
		return s.handleGrantAccess(w, req, logger)
	case "rights_grantCustody":
		return s.handleGrantCustody(w, req, logger)
	case "rights_authorizePolicy":
		return s.handleAuthorizePolicy(w, req)
	case "rights_revokePolicy":
		return s.handleRevokePolicy(w, req)
	case "rights_isPolicyAuthorized":
		return s.handleIsPolicyAuthorized(w, req)
	case "rights_setFees":
		if authErr := s.requireAuth(r); authErr != nil {
			writeError(w, http.StatusUnauthorized, req.ID, authErr.Code, authErr.Message, authErr.Data)
			return "unauthorized"
		}
		return s.handleSetFees(w, req, logger)
	case "rights_withdraw":
		return s.handleWithdraw(w, req, logger)
	case "rights_disburse":
		if authErr := s.requireAuth(r); authErr != nil {
			writeError(w, http.StatusUnauthorized, req.ID, authErr.Code, authErr.Message, authErr.Data)
			return "unauthorized"
		}
		return s.handleDisburse(w, req, logger)
	case "rights_isEligibleForDistribution":
		return s.handleIsEligible(w, req)
	case "rights_balanceOf":
		return s.handleBalanceOf(w, req)
	case "rights_feesAccrued":
		return s.handleFeesAccrued(w, req)
	case "rights_custodianOf":
		return s.handleCustodianOf(w, req)
	case "rights_lookupFee":
		return s.handleLookupFee(w, req)
	case "rights_isAccessGranted":
		return s.handleIsAccessGranted(w, req)
	case "rights_recentEvents":
		return s.handleRecentEvents(w, req)
	default:
		writeError(w, http.StatusNotFound, req.ID, codeMethodNotFound, "method not found", req.Method)
		return "not_found"
	}
}

type authError struct {
	Code    int
	Message string
	Data    interface{}
}

// requireAuth enforces the bearer token on governance methods. An unset token
// disables the check for local development.
func (s *Server) requireAuth(r *http.Request) *authError {
	if s.authToken == "" {
		return nil
	}
	header := strings.TrimSpace(r.Header.Get("Authorization"))
	const prefix = "Bearer "
	if !strings.HasPrefix(header, prefix) {
		return &authError{Code: codeUnauthorized, Message: "bearer token required"}
	}
	token := strings.TrimSpace(header[len(prefix):])
	if subtle.ConstantTimeCompare([]byte(token), []byte(s.authToken)) != 1 {
		return &authError{Code: codeUnauthorized, Message: "invalid token"}
	}
	return nil
}

// errorStatus maps engine sentinels onto HTTP statuses and RPC codes.
func errorStatus(err error) (int, int) {
	switch {
	case errors.Is(err, rights.ErrNotGovernance):
		return http.StatusForbidden, codeUnauthorized
	case errors.Is(err, rights.ErrReentrantCall):
		return http.StatusConflict, codeServerError
	case errors.Is(err, rights.ErrPolicyNotAuthorized),
		errors.Is(err, rights.ErrContentNotEligible),
		errors.Is(err, rights.ErrUntrustedContract),
		errors.Is(err, rights.ErrDealTooExpensive),
		errors.Is(err, rights.ErrTooManySplits),
		errors.Is(err, rights.ErrSplitOverflow):
		return http.StatusUnprocessableEntity, codeServerError
	default:
		return http.StatusBadRequest, codeServerError
	}
}
