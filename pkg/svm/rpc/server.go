package rpc

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"github.com/bagel-payroll/bagel-server/pkg/metrics"
	"github.com/bagel-payroll/bagel-server/pkg/svm"
)

const (
	metricsStructName = "svm.rpc.server"

	jsonrpcVersion = "2.0"
)

// Reference: https://github.com/solana-labs/solana/blob/master/rpc-client-api/src/custom_error.rs
const (
	CodeParseError       = -32700
	CodeInvalidRequest   = -32600
	CodeMethodNotFound   = -32601
	CodeInvalidParams    = -32602
	CodeInternalError    = -32603
	CodePreflightFailure = -32002
)

// Error is a JSON-RPC 2.0 error object.
type Error struct {
	Code    int         `json:"code"`
	Message string      `json:"message"`
	Data    interface{} `json:"data,omitempty"`
}

func newError(code int, message string) *Error {
	return &Error{Code: code, Message: message}
}

type request struct {
	Version string            `json:"jsonrpc"`
	ID      json.RawMessage   `json:"id"`
	Method  string            `json:"method"`
	Params  []json.RawMessage `json:"params"`
}

type response struct {
	Version string          `json:"jsonrpc"`
	ID      json.RawMessage `json:"id"`
	Result  interface{}     `json:"result,omitempty"`
	Error   *Error          `json:"error,omitempty"`
}

type handlerFunc func(ctx context.Context, params []json.RawMessage) (interface{}, *Error)

// Server exposes a bank over the Solana JSON-RPC API.
type Server struct {
	log      *logrus.Entry
	bank     *svm.Bank
	router   *gin.Engine
	handlers map[string]handlerFunc
}

// NewServer returns a server for bank. Requests are accepted as HTTP POSTs to
// the root path.
func NewServer(bank *svm.Bank) *Server {
	s := &Server{
		log:    logrus.StandardLogger().WithField("type", "svm/rpc/server"),
		bank:   bank,
		router: gin.New(),
	}

	s.handlers = map[string]handlerFunc{
		"getAccountInfo":                    s.getAccountInfo,
		"getBalance":                        s.getBalance,
		"getLatestBlockhash":                s.getLatestBlockhash,
		"getMinimumBalanceForRentExemption": s.getMinimumBalanceForRentExemption,
		"getSlot":                           s.getSlot,
		"sendTransaction":                   s.sendTransaction,
		"simulateTransaction":               s.simulateTransaction,
		"getSignatureStatuses":              s.getSignatureStatuses,
		"getProgramAccounts":                s.getProgramAccounts,
		"requestAirdrop":                    s.requestAirdrop,
	}

	s.router.Use(gin.Recovery(), s.loggingMiddleware())
	s.router.POST("/", s.handle)
	s.router.GET("/health", func(c *gin.Context) {
		c.String(http.StatusOK, "ok")
	})

	return s
}

// Handler returns the HTTP handler serving the API.
func (s *Server) Handler() http.Handler {
	return s.router
}

func (s *Server) loggingMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		s.log.WithFields(logrus.Fields{
			"path":     c.Request.URL.Path,
			"status":   c.Writer.Status(),
			"duration": time.Since(start),
		}).Trace("request served")
	}
}

func (s *Server) handle(c *gin.Context) {
	body, err := c.GetRawData()
	if err != nil {
		c.JSON(http.StatusOK, response{Version: jsonrpcVersion, Error: newError(CodeParseError, "Parse error")})
		return
	}

	// Batches are not supported
	if trimmed := bytes.TrimSpace(body); len(trimmed) > 0 && trimmed[0] == '[' {
		c.JSON(http.StatusOK, response{Version: jsonrpcVersion, Error: newError(CodeInvalidRequest, "Invalid request")})
		return
	}

	var req request
	if err := json.Unmarshal(body, &req); err != nil {
		c.JSON(http.StatusOK, response{Version: jsonrpcVersion, Error: newError(CodeParseError, "Parse error")})
		return
	}

	resp := response{
		Version: jsonrpcVersion,
		ID:      req.ID,
	}

	if req.Version != jsonrpcVersion || req.Method == "" {
		resp.Error = newError(CodeInvalidRequest, "Invalid request")
		c.JSON(http.StatusOK, resp)
		return
	}

	handler, ok := s.handlers[req.Method]
	if !ok {
		resp.Error = newError(CodeMethodNotFound, "Method not found")
		c.JSON(http.StatusOK, resp)
		return
	}

	ctx := c.Request.Context()
	tracer := metrics.TraceMethodCall(ctx, metricsStructName, req.Method)
	defer tracer.End()

	resp.Result, resp.Error = handler(ctx, req.Params)
	if resp.Error != nil {
		s.log.WithFields(logrus.Fields{
			"method": req.Method,
			"code":   resp.Error.Code,
		}).Debug(resp.Error.Message)

		if resp.Error.Code == CodeInternalError {
			tracer.OnError(&jsonError{err: resp.Error})
		}
	}

	c.JSON(http.StatusOK, resp)
}

type jsonError struct {
	err *Error
}

func (e *jsonError) Error() string {
	return e.err.Message
}
