package tools

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestReadWriteRoundTrip(t *testing.T) {
	dir := t.TempDir()
	write := NewWriteFileTool(dir)
	read := NewReadFileTool(dir)

	path := filepath.Join(dir, "notes", "todo.txt")
	out, err := write.Execute(context.Background(), map[string]any{
		"path": path, "content": "buy milk",
	})
	if err != nil {
		t.Fatalf("write: %v", err)
	}
	if !strings.Contains(out, "8 bytes") {
		t.Errorf("write output = %q", out)
	}

	got, err := read.Execute(context.Background(), map[string]any{"path": path})
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if got != "buy milk" {
		t.Errorf("read = %q", got)
	}
}

func TestPathGuardBlocksEscapes(t *testing.T) {
	dir := t.TempDir()
	read := NewReadFileTool(dir)

	for _, path := range []string{
		"/etc/passwd",
		filepath.Join(dir, "..", "outside.txt"),
	} {
		if _, err := read.Execute(context.Background(), map[string]any{"path": path}); err == nil {
			t.Errorf("read of %s should be rejected", path)
		}
	}

	// A sibling directory sharing the prefix is still outside.
	sibling := dir + "extra"
	if err := os.MkdirAll(sibling, 0o755); err != nil {
		t.Fatal(err)
	}
	defer os.RemoveAll(sibling)
	if _, err := read.Execute(context.Background(), map[string]any{
		"path": filepath.Join(sibling, "f.txt"),
	}); err == nil {
		t.Error("prefix-sharing sibling directory should be rejected")
	}
}

func TestPathGuardDisabledWhenEmpty(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "free.txt")
	if err := os.WriteFile(path, []byte("anywhere"), 0o644); err != nil {
		t.Fatal(err)
	}

	read := NewReadFileTool("")
	got, err := read.Execute(context.Background(), map[string]any{"path": path})
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if got != "anywhere" {
		t.Errorf("read = %q", got)
	}
}

func TestEditFileExactlyOnce(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.txt")
	if err := os.WriteFile(path, []byte("port=8080\nhost=local\nport=8080\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	edit := NewEditFileTool(dir)

	// Ambiguous occurrence is rejected.
	if _, err := edit.Execute(context.Background(), map[string]any{
		"path": path, "old_text": "port=8080", "new_text": "port=9090",
	}); err == nil || !strings.Contains(err.Error(), "multiple times") {
		t.Errorf("ambiguous edit err = %v", err)
	}

	// Missing text is rejected.
	if _, err := edit.Execute(context.Background(), map[string]any{
		"path": path, "old_text": "port=443", "new_text": "port=9090",
	}); err == nil || !strings.Contains(err.Error(), "not found") {
		t.Errorf("missing edit err = %v", err)
	}

	// A unique match is replaced.
	if _, err := edit.Execute(context.Background(), map[string]any{
		"path": path, "old_text": "host=local", "new_text": "host=remote",
	}); err != nil {
		t.Fatalf("edit: %v", err)
	}
	data, _ := os.ReadFile(path)
	if !strings.Contains(string(data), "host=remote") {
		t.Errorf("file after edit = %q", data)
	}
}

func TestListDir(t *testing.T) {
	dir := t.TempDir()
	os.WriteFile(filepath.Join(dir, "b.txt"), []byte("22"), 0o644)
	os.WriteFile(filepath.Join(dir, "a.txt"), []byte("1"), 0o644)
	os.MkdirAll(filepath.Join(dir, "sub"), 0o755)

	list := NewListDirTool(dir)
	out, err := list.Execute(context.Background(), map[string]any{"path": dir})
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	lines := strings.Split(strings.TrimSpace(out), "\n")
	want := []string{"a.txt (1 bytes)", "b.txt (2 bytes)", "sub/"}
	if len(lines) != 3 {
		t.Fatalf("list output = %q", out)
	}
	for i := range want {
		if lines[i] != want[i] {
			t.Errorf("line %d = %q, want %q", i, lines[i], want[i])
		}
	}
}

func TestStripHTML(t *testing.T) {
	html := `<html><head><style>body { color: red }</style>
	<script>alert("x")</script></head>
	<body><h1>Title</h1><p>Hello &amp; welcome</p></body></html>`

	got := stripHTML(html)
	if strings.Contains(got, "alert") || strings.Contains(got, "color: red") {
		t.Errorf("script/style leaked: %q", got)
	}
	if !strings.Contains(got, "Title") || !strings.Contains(got, "Hello & welcome") {
		t.Errorf("text missing: %q", got)
	}
}

func TestParamHelpers(t *testing.T) {
	params := map[string]any{
		"s":     "text",
		"b":     true,
		"i":     float64(7),
		"exact": 3,
	}
	if got := stringParam(params, "s"); got != "text" {
		t.Errorf("stringParam = %q", got)
	}
	if got := stringParam(params, "missing"); got != "" {
		t.Errorf("stringParam missing = %q", got)
	}
	if !boolParam(params, "b", false) {
		t.Error("boolParam = false")
	}
	if got := intParam(params, "i", 0); got != 7 {
		t.Errorf("intParam float = %d", got)
	}
	if got := intParam(params, "exact", 0); got != 3 {
		t.Errorf("intParam int = %d", got)
	}
	if got := intParam(params, "missing", 9); got != 9 {
		t.Errorf("intParam default = %d", got)
	}
	if _, err := requireString(params, "missing"); err == nil {
		t.Error("requireString should fail for missing key")
	}
}
