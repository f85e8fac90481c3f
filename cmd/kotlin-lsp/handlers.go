package main

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/luhmann/kotlinlsp/diagnostics"
	"github.com/luhmann/kotlinlsp/lsp"
	"go.uber.org/zap"
)

const (
	routeDiagnostics = "/v1/diagnostics"
	routeClients     = "/v1/clients"
	routeRestart     = "/v1/clients/restart"
	routeHealth      = "/health"
	routeMetrics     = "/metrics"

	// 诊断请求体上限
	maxRequestBody = 1 << 20

	noActiveClients = "no active clients"
)

// 错误码
const (
	codeInvalidRequest     = "INVALID_REQUEST"
	codeMethodNotAllowed   = "METHOD_NOT_ALLOWED"
	codeTimeout            = "TIMEOUT"
	codeServiceUnavailable = "SERVICE_UNAVAILABLE"
	codeUpstreamError      = "UPSTREAM_ERROR"
	codeRateLimited        = "RATE_LIMITED"
	codeInternal           = "INTERNAL_ERROR"
)

// =============================================================================
// 📦 通用响应结构
// =============================================================================

// Response 统一 API 响应结构
type Response struct {
	Success   bool       `json:"success"`
	Data      any        `json:"data,omitempty"`
	Error     *ErrorInfo `json:"error,omitempty"`
	Timestamp time.Time  `json:"timestamp"`
	RequestID string     `json:"request_id,omitempty"`
}

// ErrorInfo 错误信息结构
type ErrorInfo struct {
	Code      string `json:"code"`
	Message   string `json:"message"`
	Retryable bool   `json:"retryable,omitempty"`
}

// ClientsStatus GET /v1/clients 的响应数据
type ClientsStatus struct {
	Clients []string `json:"clients"`
	Text    string   `json:"text"`
}

// RestartResult POST /v1/clients/restart 的响应数据
type RestartResult struct {
	Stopped int `json:"stopped"`
}

// clientRegistry handlers 依赖的注册表操作，由 *lsp.Registry 实现
type clientRegistry interface {
	diagnostics.Diagnoser
	Status() []string
	Restart(ctx context.Context) (int, error)
}

// =============================================================================
// 🎯 Handlers
// =============================================================================

type apiHandlers struct {
	tool    *diagnostics.Tool
	clients clientRegistry
	cwd     string
	logger  *zap.Logger
}

func newAPIHandlers(tool *diagnostics.Tool, clients clientRegistry, cwd string, logger *zap.Logger) *apiHandlers {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &apiHandlers{
		tool:    tool,
		clients: clients,
		cwd:     cwd,
		logger:  logger.With(zap.String("component", "api")),
	}
}

// register 挂载全部路由，metricsHandler 为 nil 时不暴露 /metrics
func (h *apiHandlers) register(mux *http.ServeMux, metricsHandler http.Handler) {
	mux.HandleFunc(routeDiagnostics, h.handleDiagnostics)
	mux.HandleFunc(routeClients, h.handleClients)
	mux.HandleFunc(routeRestart, h.handleRestart)
	mux.HandleFunc(routeHealth, h.handleHealth)
	if metricsHandler != nil {
		mux.Handle(routeMetrics, metricsHandler)
	}
}

// handleDiagnostics POST /v1/diagnostics
func (h *apiHandlers) handleDiagnostics(w http.ResponseWriter, r *http.Request) {
	if !allowMethod(w, r, http.MethodPost) {
		return
	}

	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxRequestBody))
	if err != nil {
		writeError(w, http.StatusBadRequest, codeInvalidRequest, "failed to read request body: "+err.Error())
		return
	}
	if len(body) == 0 {
		writeError(w, http.StatusBadRequest, codeInvalidRequest, "request body is empty")
		return
	}

	var params diagnostics.Params
	if err := json.Unmarshal(body, &params); err != nil {
		writeError(w, http.StatusBadRequest, codeInvalidRequest, "malformed JSON: "+err.Error())
		return
	}

	result, err := h.tool.Run(r.Context(), h.cwd, params)
	if err != nil {
		status, code := classifyError(err)
		h.logger.Warn("diagnostics request failed",
			zap.String("path", params.Path),
			zap.Int("status", status),
			zap.String("request_id", RequestIDFromContext(r.Context())),
			zap.Error(err),
		)
		writeErrorResponse(w, r, status, &ErrorInfo{
			Code:      code,
			Message:   err.Error(),
			Retryable: status == http.StatusServiceUnavailable || status == http.StatusGatewayTimeout,
		})
		return
	}
	writeSuccess(w, r, result)
}

// handleClients GET /v1/clients
func (h *apiHandlers) handleClients(w http.ResponseWriter, r *http.Request) {
	if !allowMethod(w, r, http.MethodGet) {
		return
	}
	writeSuccess(w, r, clientsStatus(h.clients.Status()))
}

// handleRestart POST /v1/clients/restart
func (h *apiHandlers) handleRestart(w http.ResponseWriter, r *http.Request) {
	if !allowMethod(w, r, http.MethodPost) {
		return
	}
	n, err := h.clients.Restart(r.Context())
	if err != nil {
		status, code := classifyError(err)
		h.logger.Error("restart clients failed", zap.Error(err))
		writeErrorResponse(w, r, status, &ErrorInfo{Code: code, Message: err.Error()})
		return
	}
	h.logger.Info("kotlin-lsp clients restarted", zap.Int("stopped", n))
	writeSuccess(w, r, RestartResult{Stopped: n})
}

// handleHealth GET /health
func (h *apiHandlers) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// clientsStatus 生成状态响应，空列表时文本为 "no active clients"
func clientsStatus(lines []string) ClientsStatus {
	if lines == nil {
		lines = []string{}
	}
	text := noActiveClients
	if len(lines) > 0 {
		text = strings.Join(lines, "\n")
	}
	return ClientsStatus{Clients: lines, Text: text}
}

// classifyError 把诊断链路上的错误映射为 HTTP 状态码与错误码
func classifyError(err error) (int, string) {
	var validation *diagnostics.ValidationError
	var response *lsp.ResponseError
	switch {
	case errors.As(err, &validation):
		return http.StatusBadRequest, codeInvalidRequest
	case errors.Is(err, lsp.ErrTimeout), errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout, codeTimeout
	case errors.As(err, &response):
		return http.StatusBadGateway, codeUpstreamError
	case errors.Is(err, lsp.ErrProcessExited), errors.Is(err, lsp.ErrNotRunning),
		errors.Is(err, lsp.ErrShuttingDown), errors.Is(err, lsp.ErrClosed),
		errors.Is(err, context.Canceled):
		return http.StatusServiceUnavailable, codeServiceUnavailable
	default:
		return http.StatusInternalServerError, codeInternal
	}
}

// =============================================================================
// 🔧 响应辅助函数
// =============================================================================

func allowMethod(w http.ResponseWriter, r *http.Request, method string) bool {
	if r.Method == method {
		return true
	}
	w.Header().Set("Allow", method)
	writeError(w, http.StatusMethodNotAllowed, codeMethodNotAllowed, "method "+r.Method+" not allowed")
	return false
}

// writeJSON 写入 JSON 响应
func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.Header().Set("X-Content-Type-Options", "nosniff")
	w.WriteHeader(status)
	// 头已写出，编码失败无法再改状态码
	_ = json.NewEncoder(w).Encode(data)
}

func writeSuccess(w http.ResponseWriter, r *http.Request, data any) {
	writeJSON(w, http.StatusOK, Response{
		Success:   true,
		Data:      data,
		Timestamp: time.Now(),
		RequestID: RequestIDFromContext(r.Context()),
	})
}

func writeErrorResponse(w http.ResponseWriter, r *http.Request, status int, info *ErrorInfo) {
	writeJSON(w, status, Response{
		Success:   false,
		Error:     info,
		Timestamp: time.Now(),
		RequestID: RequestIDFromContext(r.Context()),
	})
}

// writeError 写入不依赖请求上下文的错误响应
func writeError(w http.ResponseWriter, status int, code, message string) {
	writeJSON(w, status, Response{
		Success:   false,
		Error:     &ErrorInfo{Code: code, Message: message},
		Timestamp: time.Now(),
	})
}
