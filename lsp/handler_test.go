package lsp

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

func newTestHandler(t *testing.T) *ServerRequestHandler {
	folder := WorkspaceFolder{URI: "file:///work/app", Name: "app"}
	return NewServerRequestHandler("kotlin-lsp bridge", folder, zaptest.NewLogger(t), nil)
}

func TestServerRequestHandler(t *testing.T) {
	tests := []struct {
		name   string
		id     string
		method string
		want   string
	}{
		{
			name:   "configuration answers empty list",
			id:     `3`,
			method: MethodConfiguration,
			want:   `{"jsonrpc":"2.0","id":3,"result":[]}`,
		},
		{
			name:   "progress create answers null",
			id:     `"token-1"`,
			method: MethodWorkDoneProgress,
			want:   `{"jsonrpc":"2.0","id":"token-1","result":null}`,
		},
		{
			name:   "workspace folders answers configured folder",
			id:     `4`,
			method: MethodWorkspaceFolders,
			want:   `{"jsonrpc":"2.0","id":4,"result":[{"uri":"file:///work/app","name":"app"}]}`,
		},
		{
			name:   "unknown method is not implemented",
			id:     `5`,
			method: "client/registerCapability",
			want:   `{"jsonrpc":"2.0","id":5,"error":{"code":-32601,"message":"Method not implemented in kotlin-lsp bridge: client/registerCapability"}}`,
		},
	}

	h := newTestHandler(t)
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			reply := h.Handle(&Message{JSONRPC: JSONRPCVersion, ID: json.RawMessage(tt.id), Method: tt.method})
			require.NotNil(t, reply)

			data, err := json.Marshal(reply)
			require.NoError(t, err)
			assert.JSONEq(t, tt.want, string(data))
			assert.True(t, reply.IsResponse())
		})
	}
}
