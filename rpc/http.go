package rpc

import (
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

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"stablecore/native/collateral"
	"stablecore/observability"
	"stablecore/storage"
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
	codeHealthFactor   = -32021
)

// Server exposes the collateral engine over JSON-RPC 2.0. Mutating methods
// require a bearer token when one is configured via STABLECORE_RPC_TOKEN.
type Server struct {
	engine    *collateral.Engine
	store     *storage.PositionStore
	logger    *slog.Logger
	authToken string
}

// NewServer constructs a server over the given engine.
func NewServer(engine *collateral.Engine, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	token := strings.TrimSpace(os.Getenv("STABLECORE_RPC_TOKEN"))
	return &Server{engine: engine, logger: logger, authToken: token}
}

// SetStore wires the position store written after each committed mutation.
func (s *Server) SetStore(store *storage.PositionStore) {
	if s == nil {
		return
	}
	s.store = store
}

// Handler returns the HTTP handler serving the RPC endpoint, health probe,
// and prometheus metrics.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/", s.handle)
	mux.Handle("/metrics", promhttp.Handler())
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	return mux
}

// Start serves the RPC endpoint on addr and blocks.
func (s *Server) Start(addr string) error {
	s.logger.Info("starting JSON-RPC server", slog.String("addr", addr))
	server := &http.Server{
		Addr:              addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	return server.ListenAndServe()
}

type RPCRequest struct {
	JSONRPC string            `json:"jsonrpc"`
	Method  string            `json:"method"`
	Params  []json.RawMessage `json:"params"`
	ID      int               `json:"id"`
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

func (s *Server) handle(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, 0, codeInvalidRequest, "POST required", nil)
		return
	}
	body, err := io.ReadAll(io.LimitReader(r.Body, maxRequestBytes+1))
	if err != nil {
		writeError(w, http.StatusBadRequest, 0, codeParseError, "failed to read request", err.Error())
		return
	}
	if len(body) > maxRequestBytes {
		writeError(w, http.StatusRequestEntityTooLarge, 0, codeInvalidRequest, "request too large", nil)
		return
	}
	var req RPCRequest
	if err := json.Unmarshal(body, &req); err != nil {
		writeError(w, http.StatusBadRequest, 0, codeParseError, "invalid JSON", err.Error())
		return
	}
	if req.JSONRPC != "" && req.JSONRPC != jsonRPCVersion {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidRequest, "unsupported jsonrpc version", nil)
		return
	}

	handler, ok := s.methods()[req.Method]
	if !ok {
		writeError(w, http.StatusNotFound, req.ID, codeMethodNotFound, fmt.Sprintf("unknown method %q", req.Method), nil)
		return
	}
	if handler.mutating {
		if authErr := s.requireAuth(r); authErr != nil {
			writeError(w, http.StatusUnauthorized, req.ID, codeUnauthorized, authErr.Error(), nil)
			return
		}
	}

	started := time.Now()
	result, err := handler.fn(&req)
	reason := ""
	if err != nil {
		reason = errorReason(err)
	}
	observability.EngineMetrics().Observe(req.Method, time.Since(started), reason)
	if err != nil {
		status, code := errorStatus(err)
		writeError(w, status, req.ID, code, err.Error(), nil)
		return
	}
	writeResult(w, req.ID, result)
}

type methodHandler struct {
	fn       func(*RPCRequest) (interface{}, error)
	mutating bool
}

func (s *Server) requireAuth(r *http.Request) error {
	if s.authToken == "" {
		return nil
	}
	header := strings.TrimSpace(r.Header.Get("Authorization"))
	const prefix = "Bearer "
	if !strings.HasPrefix(header, prefix) {
		return errors.New("missing bearer token")
	}
	supplied := strings.TrimSpace(strings.TrimPrefix(header, prefix))
	if subtle.ConstantTimeCompare([]byte(supplied), []byte(s.authToken)) != 1 {
		return errors.New("invalid bearer token")
	}
	return nil
}

// errorStatus maps engine sentinels onto HTTP status and JSON-RPC codes.
func errorStatus(err error) (int, int) {
	switch {
	case errors.Is(err, collateral.ErrInvalidAmount),
		errors.Is(err, collateral.ErrAssetNotApproved),
		errors.Is(err, collateral.ErrConfigurationMismatch):
		return http.StatusBadRequest, codeInvalidParams
	case errors.Is(err, collateral.ErrHealthFactorBroken),
		errors.Is(err, collateral.ErrHealthFactorOk),
		errors.Is(err, collateral.ErrHealthFactorNotImproved):
		return http.StatusConflict, codeHealthFactor
	case errors.Is(err, collateral.ErrInsufficientCollateral),
		errors.Is(err, collateral.ErrInsufficientDebt):
		return http.StatusConflict, codeInvalidParams
	default:
		return http.StatusInternalServerError, codeServerError
	}
}

// errorReason returns a short stable label for metrics.
func errorReason(err error) string {
	switch {
	case errors.Is(err, collateral.ErrInvalidAmount):
		return "invalid_amount"
	case errors.Is(err, collateral.ErrAssetNotApproved):
		return "asset_not_approved"
	case errors.Is(err, collateral.ErrHealthFactorBroken):
		return "health_factor_broken"
	case errors.Is(err, collateral.ErrHealthFactorOk):
		return "health_factor_ok"
	case errors.Is(err, collateral.ErrHealthFactorNotImproved):
		return "health_factor_not_improved"
	case errors.Is(err, collateral.ErrInsufficientCollateral):
		return "insufficient_collateral"
	case errors.Is(err, collateral.ErrInsufficientDebt):
		return "insufficient_debt"
	case errors.Is(err, collateral.ErrTransferFailed):
		return "transfer_failed"
	case errors.Is(err, collateral.ErrMintOrBurnFailed):
		return "mint_or_burn_failed"
	default:
		return "internal"
	}
}

func writeResult(w http.ResponseWriter, id int, result interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_ = json.NewEncoder(w).Encode(RPCResponse{JSONRPC: jsonRPCVersion, ID: id, Result: result})
}

func writeError(w http.ResponseWriter, status, id, code int, message string, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(RPCResponse{
		JSONRPC: jsonRPCVersion,
		ID:      id,
		Error:   &RPCError{Code: code, Message: message, Data: data},
	})
}
