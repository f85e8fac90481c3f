package diagnostics

import (
	"strings"
	"testing"

	"github.com/luhmann/kotlinlsp/lsp"
	"github.com/stretchr/testify/assert"
	"pgregory.net/rapid"
)

func TestFormatDiagnostic(t *testing.T) {
	tests := []struct {
		name string
		in   lsp.Diagnostic
		want string
	}{
		{
			name: "full",
			in:   diag(lsp.SeverityError, 2, 4, "UNRESOLVED_REFERENCE", "kotlin", "Unresolved reference: foo"),
			want: "- [error] 3:5 (UNRESOLVED_REFERENCE) [kotlin] Unresolved reference: foo",
		},
		{
			name: "no code no source",
			in:   diag(lsp.SeverityWarning, 0, 0, "", "", "unused"),
			want: "- [warning] 1:1 unused",
		},
		{
			name: "numeric code",
			in:   diag(lsp.SeverityHint, 9, 0, "42", "", "m"),
			want: "- [hint] 10:1 (42) m",
		},
		{
			name: "missing severity",
			in:   diag(0, 0, 0, "", "", "m"),
			want: "- [unknown] 1:1 m",
		},
		{
			name: "whitespace collapsed",
			in:   diag(lsp.SeverityInformation, 0, 0, "", "", "  multi\n\tline   message \n"),
			want: "- [info] 1:1 multi line message",
		},
		{
			name: "empty message",
			in:   diag(lsp.SeverityError, 0, 0, "", "", ""),
			want: "- [error] 1:1",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, FormatDiagnostic(tt.in))
		})
	}
}

func TestCountAndFilter(t *testing.T) {
	diags := []lsp.Diagnostic{
		diag(lsp.SeverityError, 0, 0, "", "", "e1"),
		diag(lsp.SeverityWarning, 0, 0, "", "", "w1"),
		diag(lsp.SeverityError, 0, 0, "", "", "e2"),
		diag(lsp.SeverityInformation, 0, 0, "", "", "i1"),
		diag(0, 0, 0, "", "", "u1"),
	}

	assert.Equal(t, Counts{Errors: 2, Warnings: 1}, Count(diags))
	assert.Len(t, Filter(diags, true), 3)

	errorsOnly := Filter(diags, false)
	assert.Len(t, errorsOnly, 2)
	assert.Equal(t, "e1", errorsOnly[0].Message)
	assert.Equal(t, "e2", errorsOnly[1].Message)

	assert.Empty(t, Filter(nil, true))
}

func TestProperty_FilterKeepsOrderAndBounds(t *testing.T) {
	rapid.Check(t, func(rt *rapid.T) {
		severities := rapid.SliceOf(rapid.IntRange(0, 4)).Draw(rt, "severities")
		includeWarnings := rapid.Bool().Draw(rt, "includeWarnings")

		diags := make([]lsp.Diagnostic, len(severities))
		for i, s := range severities {
			diags[i] = diag(lsp.DiagnosticSeverity(s), i, 0, "", "", "m")
		}

		filtered := Filter(diags, includeWarnings)
		counts := Count(diags)
		want := counts.Errors
		if includeWarnings {
			want += counts.Warnings
		}
		if len(filtered) != want {
			rt.Fatalf("filtered %d, want %d", len(filtered), want)
		}
		for i := 1; i < len(filtered); i++ {
			if filtered[i].Range.Start.Line <= filtered[i-1].Range.Start.Line {
				rt.Fatalf("order not preserved at %d", i)
			}
		}
	})
}

func TestProperty_FormatIsSingleLine(t *testing.T) {
	rapid.Check(t, func(rt *rapid.T) {
		d := diag(
			lsp.DiagnosticSeverity(rapid.IntRange(0, 4).Draw(rt, "severity")),
			rapid.IntRange(0, 10000).Draw(rt, "line"),
			rapid.IntRange(0, 500).Draw(rt, "char"),
			rapid.StringMatching(`[A-Z_]{0,12}`).Draw(rt, "code"),
			rapid.StringMatching(`[a-z]{0,6}`).Draw(rt, "source"),
			rapid.String().Draw(rt, "message"),
		)
		line := FormatDiagnostic(d)
		if strings.ContainsAny(line, "\n\r\t") {
			rt.Fatalf("formatted diagnostic spans lines: %q", line)
		}
		if !strings.HasPrefix(line, "- [") {
			rt.Fatalf("unexpected prefix: %q", line)
		}
	})
}

func TestReport_SeparatesDiagnosticsWithNewlines(t *testing.T) {
	details := Details{Workspace: "/w", File: "/w/A.kt", Total: 2, Errors: 2, MaxProblems: 200}
	shown := []lsp.Diagnostic{
		diag(lsp.SeverityError, 0, 0, "", "", "a"),
		diag(lsp.SeverityError, 1, 0, "", "", "b"),
	}
	assert.Equal(t,
		"Workspace: /w\nFile: /w/A.kt\nDiagnostics: 2 total (2 errors, 0 warnings)\n\n- [error] 1:1 a\n- [error] 2:1 b",
		Report(details, shown, 2))
}
