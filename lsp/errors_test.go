package lsp

import (
	"errors"
	"os/exec"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestProcessError_Messages(t *testing.T) {
	tests := []struct {
		name string
		err  *ProcessError
		want string
	}{
		{
			name: "exit with code",
			err:  &ProcessError{Server: "kotlin-lsp", Op: opExit, Code: 3},
			want: "kotlin-lsp exited (code=3, signal=null)",
		},
		{
			name: "killed by signal",
			err:  &ProcessError{Server: "kotlin-lsp", Op: opExit, Code: -1, Signal: "SIGKILL"},
			want: "kotlin-lsp exited (code=null, signal=SIGKILL)",
		},
		{
			name: "not running with stderr",
			err:  &ProcessError{Server: "kotlin-lsp", Op: opSend, Code: -1, Stderr: []string{"boom"}},
			want: "kotlin-lsp is not running\nRecent kotlin-lsp stderr:\nboom",
		},
		{
			name: "spawn failure",
			err:  &ProcessError{Server: "kotlin-lsp", Op: opSpawn, Code: -1, Err: exec.ErrNotFound},
			want: "failed to start kotlin-lsp: executable file not found in $PATH",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.err.Error())
		})
	}
}

func TestProcessError_Is(t *testing.T) {
	exited := &ProcessError{Op: opExit, Err: &FramingError{Header: "X: y"}}
	assert.True(t, errors.Is(exited, ErrProcessExited))
	assert.True(t, errors.Is(exited, ErrFraming))
	assert.False(t, errors.Is(exited, ErrNotRunning))

	spawn := &ProcessError{Op: opSpawn, Err: exec.ErrNotFound}
	assert.True(t, errors.Is(spawn, ErrProcessExited))
	assert.True(t, errors.Is(spawn, exec.ErrNotFound))

	send := &ProcessError{Op: opSend}
	assert.True(t, errors.Is(send, ErrNotRunning))
	assert.False(t, errors.Is(send, ErrProcessExited))
}

func TestTimeoutError(t *testing.T) {
	err := &TimeoutError{Server: "kotlin-lsp", Method: MethodShutdown, Timeout: 1500 * time.Millisecond}
	assert.Equal(t, "Timeout waiting for shutdown (1500ms)", err.Error())
	assert.True(t, errors.Is(err, ErrTimeout))
}

func TestResponseError_Unwrap(t *testing.T) {
	rpcErr := &RPCError{Code: CodeMethodNotFound, Message: "nope"}
	err := &ResponseError{Server: "kotlin-lsp", Method: "x", Err: rpcErr}

	var target *RPCError
	assert.True(t, errors.As(err, &target))
	assert.Equal(t, CodeMethodNotFound, target.Code)
	assert.Equal(t, `x failed: {"code":-32601,"message":"nope"}`, err.Error())
}
