package rpc

import (
	"crypto/subtle"
	"encoding/json"
	"fmt"
	"io"
	"net"
	"net/http"
	"os"
	"strings"
	"sync"
	"time"

	"droughtcover/core"
	"droughtcover/observability"
)

const (
	jsonRPCVersion  = "2.0"
	maxRequestBytes = 1 << 20 // 1 MiB
	rateLimitWindow = time.Minute
	maxTxPerWindow  = 30
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

// AuthTokenEnv names the environment variable carrying the bearer token that
// guards mutating methods. Read-only queries stay open.
const AuthTokenEnv = "COVER_RPC_TOKEN"

type rateLimiter struct {
	count       int
	windowStart time.Time
}

// Server exposes the settlement operations over JSON-RPC 2.0.
type Server struct {
	node *core.Node

	mu           sync.Mutex
	rateLimiters map[string]*rateLimiter
	authToken    string
	nowFn        func() time.Time
}

// NewServer builds a server around the node, reading the auth token from the
// environment.
func NewServer(node *core.Node) *Server {
	token := strings.TrimSpace(os.Getenv(AuthTokenEnv))
	return &Server{
		node:         node,
		rateLimiters: make(map[string]*rateLimiter),
		authToken:    token,
		nowFn:        time.Now,
	}
}

// SetAuthToken overrides the bearer token; primarily for tests.
func (s *Server) SetAuthToken(token string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.authToken = strings.TrimSpace(token)
}

// Start blocks serving JSON-RPC requests on addr.
func (s *Server) Start(addr string) error {
	mux := http.NewServeMux()
	mux.HandleFunc("/", s.Handle)
	fmt.Printf("Starting JSON-RPC server on %s\n", addr)
	return http.ListenAndServe(addr, mux)
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

// Handle decodes and dispatches a single JSON-RPC request.
func (s *Server) Handle(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, nil, codeInvalidRequest, "POST required", nil)
		return
	}
	body, err := io.ReadAll(io.LimitReader(r.Body, maxRequestBytes+1))
	if err != nil {
		writeError(w, http.StatusBadRequest, nil, codeParseError, "unable to read request body", nil)
		return
	}
	if len(body) > maxRequestBytes {
		writeError(w, http.StatusRequestEntityTooLarge, nil, codeInvalidRequest, "request body too large", nil)
		return
	}
	var req RPCRequest
	if err := json.Unmarshal(body, &req); err != nil {
		writeError(w, http.StatusBadRequest, nil, codeParseError, "invalid JSON-RPC request", nil)
		return
	}

	switch req.Method {
	case "cover_createPolicyOffer":
		s.mutating(w, r, &req, s.handleCreatePolicyOffer)
	case "cover_payPremium":
		s.mutating(w, r, &req, s.handlePayPremium)
	case "cover_payPremiumForBuyer":
		s.mutating(w, r, &req, s.handlePayPremiumForBuyer)
	case "cover_cancelPolicy":
		s.mutating(w, r, &req, s.handleCancelPolicy)
	case "cover_settlePolicy":
		s.mutating(w, r, &req, s.handleSettlePolicy)
	case "cover_verifyAndSettlePolicy":
		s.mutating(w, r, &req, s.handleVerifyAndSettlePolicy)
	case "cover_resolvePolicyWithValues":
		s.mutating(w, r, &req, s.handleResolvePolicyWithValues)
	case "cover_getPolicy":
		s.handleGetPolicy(w, r, &req)
	case "cover_listPolicies":
		s.handleListPolicies(w, r, &req)
	case "cover_getWithdrawableBalance":
		s.handleGetWithdrawableBalance(w, r, &req)
	default:
		writeError(w, http.StatusNotFound, req.ID, codeMethodNotFound, fmt.Sprintf("method not found: %s", req.Method), nil)
	}
}

type handlerFunc func(http.ResponseWriter, *http.Request, *RPCRequest)

// mutating wraps write-path handlers with bearer-token auth and a per-client
// rate limit. Queries bypass both: they are side-effect-free and safe to call
// without authorization.
func (s *Server) mutating(w http.ResponseWriter, r *http.Request, req *RPCRequest, next handlerFunc) {
	metrics := observability.Metrics()
	if err := s.requireAuth(r); err != nil {
		metrics.ObserveOperation(req.Method, "unauthorized")
		writeError(w, http.StatusUnauthorized, req.ID, codeUnauthorized, err.Error(), nil)
		return
	}
	if !s.allow(clientIP(r)) {
		metrics.ObserveOperation(req.Method, "rate_limited")
		writeError(w, http.StatusTooManyRequests, req.ID, codeRateLimited, "rate limit exceeded", nil)
		return
	}
	metrics.ObserveOperation(req.Method, "accepted")
	next(w, r, req)
}

func (s *Server) requireAuth(r *http.Request) error {
	s.mu.Lock()
	token := s.authToken
	s.mu.Unlock()
	if token == "" {
		return fmt.Errorf("rpc auth token not configured; set %s", AuthTokenEnv)
	}
	header := strings.TrimSpace(r.Header.Get("Authorization"))
	const prefix = "Bearer "
	if !strings.HasPrefix(header, prefix) {
		return fmt.Errorf("missing bearer token")
	}
	presented := strings.TrimSpace(strings.TrimPrefix(header, prefix))
	if subtle.ConstantTimeCompare([]byte(presented), []byte(token)) != 1 {
		return fmt.Errorf("invalid bearer token")
	}
	return nil
}

func (s *Server) allow(client string) bool {
	now := s.nowFn()
	s.mu.Lock()
	defer s.mu.Unlock()
	entry, ok := s.rateLimiters[client]
	if !ok || now.Sub(entry.windowStart) > rateLimitWindow {
		s.rateLimiters[client] = &rateLimiter{count: 1, windowStart: now}
		return true
	}
	if entry.count >= maxTxPerWindow {
		return false
	}
	entry.count++
	return true
}

func clientIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
