// Package fixtures 提供测试用的预置诊断数据
package fixtures

import (
	"github.com/luhmann/kotlinlsp/lsp"
)

// SampleSource 一段带类型错误的 Kotlin 源码
const SampleSource = `fun main() {
    val x: Int = "hello"
    println(x)
}
`

// Diagnostic 构造一条诊断，line/character 为 0 基
func Diagnostic(severity lsp.DiagnosticSeverity, line, character int, code, message string) lsp.Diagnostic {
	d := lsp.Diagnostic{
		Range: lsp.Range{
			Start: lsp.Position{Line: line, Character: character},
			End:   lsp.Position{Line: line, Character: character + 1},
		},
		Severity: severity,
		Source:   "kotlin",
		Message:  message,
	}
	if code != "" {
		d.Code = lsp.DiagnosticCode{Value: code, Set: true}
	}
	return d
}

// TypeMismatch 一条类型不匹配错误
func TypeMismatch() lsp.Diagnostic {
	return Diagnostic(lsp.SeverityError, 1, 17, "TYPE_MISMATCH",
		"Type mismatch: inferred type is String but Int was expected")
}

// UnusedVariable 一条未使用变量警告
func UnusedVariable() lsp.Diagnostic {
	return Diagnostic(lsp.SeverityWarning, 1, 8, "UNUSED_VARIABLE", "Variable 'x' is never used")
}

// RedundantQualifier 一条提示级别诊断
func RedundantQualifier() lsp.Diagnostic {
	return Diagnostic(lsp.SeverityHint, 2, 4, "", "Redundant qualifier name")
}

// MixedDiagnostics 返回一个错误、一个警告和一个提示
func MixedDiagnostics() []lsp.Diagnostic {
	return []lsp.Diagnostic{TypeMismatch(), UnusedVariable(), RedundantQualifier()}
}

// ManyErrors 返回 n 条错误诊断
func ManyErrors(n int) []lsp.Diagnostic {
	out := make([]lsp.Diagnostic, 0, n)
	for i := 0; i < n; i++ {
		out = append(out, Diagnostic(lsp.SeverityError, i, 0, "UNRESOLVED_REFERENCE", "Unresolved reference: foo"))
	}
	return out
}
