package diag

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"marelang/internal/source"
)

func TestDiagnosticError(t *testing.T) {
	d := New("main.mare", source.Pos{Line: 3, Col: 5}, "unknown variable name 'y'")
	want := "main.mare:3:5: error: unknown variable name 'y'"
	if d.Error() != want {
		t.Fatalf("expected %q, got %q", want, d.Error())
	}
}

func TestRenderUnderlinesSpan(t *testing.T) {
	path := filepath.Join(t.TempDir(), "main.mare")
	if err := os.WriteFile(path, []byte("fn bad() -> void {\n  y = 1;\n}\n"), 0o644); err != nil {
		t.Fatal(err)
	}

	d := New(path, source.Pos{Line: 2, Col: 3}, "unknown variable name 'y'").
		WithHint("declare it first: var y = 0")
	var sb strings.Builder
	Render(&sb, d)
	out := sb.String()

	if !strings.Contains(out, "unknown variable name 'y'") {
		t.Fatalf("missing message:\n%s", out)
	}
	if !strings.Contains(out, path+":2:3") {
		t.Fatalf("missing location:\n%s", out)
	}
	if !strings.Contains(out, "y = 1;") {
		t.Fatalf("missing source line:\n%s", out)
	}
	if !strings.Contains(out, "^") {
		t.Fatalf("missing caret:\n%s", out)
	}
	if !strings.Contains(out, "declare it first") {
		t.Fatalf("missing hint:\n%s", out)
	}
}

func TestRenderSurvivesMissingFile(t *testing.T) {
	d := New("does-not-exist.mare", source.Pos{Line: 1, Col: 1}, "boom")
	var sb strings.Builder
	Render(&sb, d)
	if !strings.Contains(sb.String(), "boom") {
		t.Fatalf("expected message even without source line")
	}
}

func TestSeverityStrings(t *testing.T) {
	cases := map[Severity]string{Error: "error", Warning: "warning", Note: "note", Info: "info"}
	for sev, want := range cases {
		if sev.String() != want {
			t.Fatalf("expected %q, got %q", want, sev.String())
		}
	}
}

func TestSanitizeControlBytes(t *testing.T) {
	if got := sanitize("a\x01b\tc"); got != "a?b\tc" {
		t.Fatalf("unexpected sanitize result %q", got)
	}
}
