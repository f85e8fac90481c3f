package diagnostics

import (
	"fmt"
	"strings"

	"github.com/luhmann/kotlinlsp/lsp"
)

// Counts 按严重级别统计
type Counts struct {
	Errors   int
	Warnings int
}

// Count 统计全部诊断中的错误与警告数
func Count(diags []lsp.Diagnostic) Counts {
	var c Counts
	for _, d := range diags {
		switch d.Severity {
		case lsp.SeverityError:
			c.Errors++
		case lsp.SeverityWarning:
			c.Warnings++
		}
	}
	return c
}

// Filter 只保留错误，includeWarnings 时额外保留警告
func Filter(diags []lsp.Diagnostic, includeWarnings bool) []lsp.Diagnostic {
	out := make([]lsp.Diagnostic, 0, len(diags))
	for _, d := range diags {
		if d.Severity == lsp.SeverityError || (includeWarnings && d.Severity == lsp.SeverityWarning) {
			out = append(out, d)
		}
	}
	return out
}

// FormatDiagnostic 格式化为 "- [severity] line:col (code) [source] message"
func FormatDiagnostic(d lsp.Diagnostic) string {
	var b strings.Builder
	fmt.Fprintf(&b, "- [%s] %d:%d", d.Severity, d.Range.Start.Line+1, d.Range.Start.Character+1)
	if code := d.Code.String(); code != "" {
		fmt.Fprintf(&b, " (%s)", code)
	}
	if d.Source != "" {
		fmt.Fprintf(&b, " [%s]", d.Source)
	}
	b.WriteString(" ")
	b.WriteString(collapseWhitespace(d.Message))
	return strings.TrimSpace(b.String())
}

// Report 生成完整文本报告，matching 为过滤后的总数
func Report(details Details, shown []lsp.Diagnostic, matching int) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Workspace: %s\n", details.Workspace)
	fmt.Fprintf(&b, "File: %s\n", details.File)
	fmt.Fprintf(&b, "Diagnostics: %d total (%d errors, %d warnings)\n",
		details.Total, details.Errors, details.Warnings)

	if len(shown) == 0 {
		b.WriteString("\nNo matching diagnostics.")
	} else {
		b.WriteString("\n")
		for i, d := range shown {
			if i > 0 {
				b.WriteString("\n")
			}
			b.WriteString(FormatDiagnostic(d))
		}
	}

	if matching > len(shown) {
		fmt.Fprintf(&b, "\n\nShowing %d of %d matching diagnostics (maxProblems=%d).",
			len(shown), matching, details.MaxProblems)
	}
	return b.String()
}

func collapseWhitespace(s string) string {
	return strings.Join(strings.Fields(s), " ")
}
