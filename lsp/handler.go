package lsp

import (
	"fmt"

	"github.com/luhmann/kotlinlsp/internal/metrics"
	"go.uber.org/zap"
)

// serverRequestFunc 为服务端请求生成 result
type serverRequestFunc func(req *Message) (any, error)

// ServerRequestHandler 应答服务端发起的请求
//
// 只支持固定的几个方法，其余一律返回 MethodNotFound，保证服务端
// 不会因等待应答而挂起。
type ServerRequestHandler struct {
	bridge  string
	folder  WorkspaceFolder
	logger  *zap.Logger
	metrics *metrics.Collector
	methods map[string]serverRequestFunc
}

// NewServerRequestHandler 创建处理器，bridge 出现在未实现方法的错误消息中
func NewServerRequestHandler(bridge string, folder WorkspaceFolder, logger *zap.Logger, collector *metrics.Collector) *ServerRequestHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	h := &ServerRequestHandler{
		bridge:  bridge,
		folder:  folder,
		logger:  logger.With(zap.String("component", "lsp_server_requests")),
		metrics: collector,
	}
	h.methods = map[string]serverRequestFunc{
		MethodConfiguration: func(*Message) (any, error) {
			return []any{}, nil
		},
		MethodWorkDoneProgress: func(*Message) (any, error) {
			return nil, nil
		},
		MethodWorkspaceFolders: func(*Message) (any, error) {
			return []WorkspaceFolder{h.folder}, nil
		},
	}
	return h
}

// Handle 生成对请求的应答，id 原样回写
func (h *ServerRequestHandler) Handle(req *Message) *Message {
	fn, ok := h.methods[req.Method]
	h.metrics.RecordServerRequest(req.Method, ok)
	if !ok {
		h.logger.Debug("unhandled server request", zap.String("method", req.Method))
		return NewErrorResponse(req.ID, CodeMethodNotFound,
			fmt.Sprintf("Method not implemented in %s: %s", h.bridge, req.Method))
	}

	result, err := fn(req)
	if err != nil {
		return NewErrorResponse(req.ID, CodeInternalError, err.Error())
	}
	resp, err := NewResponse(req.ID, result)
	if err != nil {
		return NewErrorResponse(req.ID, CodeInternalError, err.Error())
	}
	h.logger.Debug("answered server request", zap.String("method", req.Method))
	return resp
}
