package lsp

import (
	"net/url"
	"os"
	"path/filepath"
	"runtime"
	"strings"
)

// DefaultWorkspaceMarkers 工作区根目录标记，按优先级排列
var DefaultWorkspaceMarkers = []string{
	"settings.gradle.kts",
	"settings.gradle",
	"build.gradle.kts",
	"build.gradle",
	"pom.xml",
	".git",
}

// SanitizePath 只保留 PATH 中的绝对路径条目
func SanitizePath(value string) string {
	if value == "" {
		return ""
	}
	var entries []string
	for _, entry := range filepath.SplitList(value) {
		entry = strings.TrimSpace(entry)
		if entry != "" && filepath.IsAbs(entry) {
			entries = append(entries, entry)
		}
	}
	return strings.Join(entries, string(os.PathListSeparator))
}

// buildEnv 复制环境变量并替换 PATH 为清洗后的值
func buildEnv(environ []string) []string {
	env := make([]string, 0, len(environ)+1)
	var path string
	for _, kv := range environ {
		key, value, _ := strings.Cut(kv, "=")
		if strings.EqualFold(key, "PATH") {
			path = value
			continue
		}
		env = append(env, kv)
	}
	return append(env, "PATH="+SanitizePath(path))
}

// FileURI 将绝对路径转换为 file:// URI
func FileURI(path string) string {
	slashed := filepath.ToSlash(path)
	if runtime.GOOS == "windows" && !strings.HasPrefix(slashed, "/") {
		slashed = "/" + slashed
	}
	u := url.URL{Scheme: "file", Path: slashed}
	return u.String()
}

// NormalizeToolPath 去掉调用方可能附带的 @ 前缀
func NormalizeToolPath(path string) string {
	return strings.TrimPrefix(path, "@")
}

// ResolvePath 相对 cwd 解析路径
func ResolvePath(cwd, path string) string {
	path = NormalizeToolPath(path)
	if filepath.IsAbs(path) {
		return filepath.Clean(path)
	}
	return filepath.Join(cwd, path)
}

// DetectWorkspace 从文件所在目录向上查找最近的工作区标记
//
// 同一目录内按 markers 顺序检查，找不到时返回 cwd。
func DetectWorkspace(filePath, cwd string, markers []string) string {
	if len(markers) == 0 {
		markers = DefaultWorkspaceMarkers
	}
	current := filepath.Dir(filePath)
	for {
		for _, marker := range markers {
			if _, err := os.Stat(filepath.Join(current, marker)); err == nil {
				return current
			}
		}
		parent := filepath.Dir(current)
		if parent == current {
			return cwd
		}
		current = parent
	}
}

func folderName(root string) string {
	return filepath.Base(root)
}
