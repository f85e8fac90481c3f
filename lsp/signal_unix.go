//go:build unix

package lsp

import (
	"os"
	"os/exec"
	"syscall"

	"golang.org/x/sys/unix"
)

// terminate 发送 SIGTERM
func terminate(p *os.Process) error {
	return p.Signal(unix.SIGTERM)
}

// exitSignal 返回终止进程的信号名，例如 SIGTERM
func exitSignal(cmd *exec.Cmd) string {
	if cmd.ProcessState == nil {
		return ""
	}
	ws, ok := cmd.ProcessState.Sys().(syscall.WaitStatus)
	if !ok || !ws.Signaled() {
		return ""
	}
	return unix.SignalName(ws.Signal())
}
