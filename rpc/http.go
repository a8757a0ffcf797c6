package rpc

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"tokenswap/native/escrow"
	"tokenswap/native/registry"
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

	codeNotOwner        = -32030
	codeTradingDisabled = -32031
	codeNotMatched      = -32032
	codeNotStarted      = -32033
	codeAssetMismatch   = -32034
	codeObjectMismatch  = -32035
	codeOwnerChanged    = -32036
	codeAlreadyManaged  = -32037
	codeAssetNotFound   = -32038
	codeAssetExists     = -32039
)

// AuthConfig controls access to mutating JSON-RPC methods. A configured HMAC
// secret enables HS256 JWT verification; the static token is accepted as a
// plain bearer fallback. With neither set, mutating methods are open (local
// development only).
type AuthConfig struct {
	HMACSecret string
	Issuer     string
	Token      string
}

// Server exposes the escrow engine and asset registry over JSON-RPC 2.0.
type Server struct {
	engine  *escrow.Engine
	ledger  *registry.Ledger
	logger  *slog.Logger
	auth    *authenticator
	limiter *rateLimiter
	obs     *observability
}

// NewServer wires the RPC surface to an engine and ledger.
func NewServer(engine *escrow.Engine, ledger *registry.Ledger, logger *slog.Logger, auth AuthConfig) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	return &Server{
		engine: engine,
		ledger: ledger,
		logger: logger,
		auth:   newAuthenticator(auth),
		obs:    newObservability("tokenswap_rpc"),
	}
}

// SetRateLimit bounds requests per minute per client IP. Zero disables
// limiting.
func (s *Server) SetRateLimit(perMinute float64, burst int) {
	if perMinute <= 0 {
		s.limiter = nil
		return
	}
	s.limiter = newRateLimiter(perMinute, burst)
}

// Router assembles the HTTP routes: JSON-RPC on /, health and metrics
// alongside.
func (s *Server) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(s.obs.middleware)
	if s.limiter != nil {
		r.Use(s.limiter.middleware)
	}
	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	gatherers := prometheus.Gatherers{prometheus.DefaultGatherer, s.obs.registry}
	r.Handle("/metrics", promhttp.HandlerFor(gatherers, promhttp.HandlerOpts{}))
	r.Post("/", s.handle)
	return r
}

// Serve runs the HTTP server until ctx is cancelled, then shuts down within
// grace.
func (s *Server) Serve(ctx context.Context, addr string, grace time.Duration) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.Router(),
		ReadHeaderTimeout: 5 * time.Second,
	}
	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.ListenAndServe()
	}()
	s.logger.Info("json-rpc server listening", "addr", addr)
	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), grace)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	}
}

// RPCRequest is a JSON-RPC 2.0 call. The id may be a number, a string or null
// and is echoed back verbatim.
type RPCRequest struct {
	JSONRPC string            `json:"jsonrpc"`
	Method  string            `json:"method"`
	Params  []json.RawMessage `json:"params"`
	ID      interface{}       `json:"id"`
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

// handle is the main request handler that routes to method handlers.
func (s *Server) handle(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	reader := http.MaxBytesReader(w, r.Body, maxRequestBytes)
	defer func() {
		_ = reader.Close()
	}()
	body, err := io.ReadAll(reader)
	if err != nil {
		writeError(w, http.StatusBadRequest, nil, codeParseError, "parse_error", "request body unreadable or too large")
		return
	}
	var req RPCRequest
	if err := json.Unmarshal(body, &req); err != nil {
		writeError(w, http.StatusBadRequest, nil, codeParseError, "parse_error", err.Error())
		return
	}
	if req.JSONRPC != "" && req.JSONRPC != jsonRPCVersion {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidRequest, "invalid_request", "jsonrpc must be 2.0")
		return
	}
	method := strings.TrimSpace(req.Method)
	requestID := uuid.NewString()
	s.logger.Info("rpc request", "method", method, "requestId", requestID)

	if mutatesState(method) {
		if authErr := s.auth.verify(r); authErr != nil {
			writeError(w, http.StatusUnauthorized, req.ID, codeUnauthorized, "unauthorized", authErr.Error())
			return
		}
	}

	switch method {
	case "escrow_initialize":
		s.handleEscrowInitialize(w, &req)
	case "escrow_start":
		s.handleEscrowStart(w, &req)
	case "escrow_addMatchingNames":
		s.handleEscrowAddMatchingNames(w, &req)
	case "escrow_clearMatchingNames":
		s.handleEscrowClearMatchingNames(w, &req)
	case "escrow_setMatchAll":
		s.handleEscrowSetMatchAll(w, &req)
	case "escrow_close":
		s.handleEscrowClose(w, &req)
	case "escrow_freeze":
		s.handleEscrowFreeze(w, &req)
	case "escrow_isTradable":
		s.handleEscrowIsTradable(w, &req)
	case "escrow_get":
		s.handleEscrowGet(w, &req)
	case "escrow_flashOffer":
		s.handleEscrowFlashOffer(w, &req)
	case "registry_mint":
		s.handleRegistryMint(w, &req)
	case "registry_transfer":
		s.handleRegistryTransfer(w, &req)
	case "registry_get":
		s.handleRegistryGet(w, &req)
	default:
		writeError(w, http.StatusNotFound, req.ID, codeMethodNotFound, "method_not_found", method)
	}
}

// mutatesState reports whether the method changes ledger or escrow state and
// therefore requires authentication.
func mutatesState(method string) bool {
	switch method {
	case "escrow_isTradable", "escrow_get", "registry_get":
		return false
	default:
		return true
	}
}

// engineErrorCode maps engine and registry errors onto stable JSON-RPC codes.
func engineErrorCode(err error) (int, string) {
	switch {
	case errors.Is(err, escrow.ErrNotOwner), errors.Is(err, registry.ErrNotOwner):
		return codeNotOwner, "not_owner"
	case errors.Is(err, escrow.ErrTradingDisabled):
		return codeTradingDisabled, "trading_disabled"
	case errors.Is(err, escrow.ErrNotMatched):
		return codeNotMatched, "not_matched"
	case errors.Is(err, escrow.ErrNotStarted):
		return codeNotStarted, "not_started"
	case errors.Is(err, escrow.ErrAssetMismatch):
		return codeAssetMismatch, "asset_mismatch"
	case errors.Is(err, escrow.ErrObjectMismatch), errors.Is(err, registry.ErrCapabilityMismatch):
		return codeObjectMismatch, "object_mismatch"
	case errors.Is(err, escrow.ErrOwnerChanged):
		return codeOwnerChanged, "owner_changed"
	case errors.Is(err, escrow.ErrAlreadyManaged):
		return codeAlreadyManaged, "already_managed"
	case errors.Is(err, registry.ErrAssetNotFound):
		return codeAssetNotFound, "asset_not_found"
	case errors.Is(err, registry.ErrAssetExists):
		return codeAssetExists, "asset_exists"
	default:
		return codeServerError, "server_error"
	}
}

func writeEngineError(w http.ResponseWriter, id interface{}, err error) {
	code, label := engineErrorCode(err)
	status := http.StatusUnprocessableEntity
	if code == codeServerError {
		status = http.StatusInternalServerError
	}
	writeError(w, status, id, code, label, err.Error())
}
