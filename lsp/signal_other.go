//go:build !unix

package lsp

import (
	"os"
	"os/exec"
)

// terminate 非 Unix 平台没有 SIGTERM，直接结束进程
func terminate(p *os.Process) error {
	return p.Kill()
}

func exitSignal(*exec.Cmd) string {
	return ""
}
