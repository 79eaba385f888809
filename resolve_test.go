package assetserve

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
)

// writeFile creates a file (and any parent directories) under dir and
// returns its full path. Shared across the package's tests.
func writeFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		t.Fatalf("error creating directory for %s: %v", name, err)
	}
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("error writing %s: %v", name, err)
	}
	return path
}

func TestResolveDefaultDocument(t *testing.T) {
	t.Parallel()
	root := t.TempDir()
	writeFile(t, root, "index.html", "<html>home</html>")

	for _, rawPath := range []string{"/", ""} {
		file, err := resolvePath(root, rawPath, "index.html")
		if err != nil {
			t.Fatalf("resolving %q: %v", rawPath, err)
		}
		if filepath.Base(file.absPath) != "index.html" {
			t.Errorf("expected default document for %q, got %s", rawPath, file.absPath)
		}
		if file.size != int64(len("<html>home</html>")) {
			t.Errorf("expected size %d, got %d", len("<html>home</html>"), file.size)
		}
		if file.mimeType != "text/html" {
			t.Errorf("expected text/html, got %s", file.mimeType)
		}
	}
}

func TestResolveStripsQueryAndFragment(t *testing.T) {
	t.Parallel()
	root := t.TempDir()
	writeFile(t, root, "script.js", "console.log(1)")

	for _, rawPath := range []string{"/script.js?v=2", "/script.js#top", "/script.js?v=2#top"} {
		file, err := resolvePath(root, rawPath, "index.html")
		if err != nil {
			t.Fatalf("resolving %q: %v", rawPath, err)
		}
		if file.mimeType != "application/javascript" {
			t.Errorf("expected application/javascript for %q, got %s", rawPath, file.mimeType)
		}
	}
}

func TestResolveRejectsTraversal(t *testing.T) {
	t.Parallel()
	base := t.TempDir()
	root := filepath.Join(base, "public")
	if err := os.MkdirAll(root, 0755); err != nil {
		t.Fatalf("error creating root: %v", err)
	}
	// a real file outside the root; traversal must be rejected even though
	// the naive join would find it
	writeFile(t, base, "secret.txt", "top secret")
	writeFile(t, root, "index.html", "<html></html>")

	rawPaths := []string{
		"/../secret.txt",
		"/assets/../../secret.txt",
		"/%2e%2e/secret.txt",
		"/..%2fsecret.txt",
		"/..%5csecret.txt",
		`/..\secret.txt`,
		"/a/../b/../../secret.txt",
	}
	for _, rawPath := range rawPaths {
		_, err := resolvePath(root, rawPath, "index.html")
		if !errors.Is(err, errTraversal) {
			t.Errorf("expected errTraversal for %q, got %v", rawPath, err)
		}
	}
}

func TestResolveNotFound(t *testing.T) {
	t.Parallel()
	root := t.TempDir()
	if err := os.MkdirAll(filepath.Join(root, "gallery"), 0755); err != nil {
		t.Fatalf("error creating directory: %v", err)
	}

	// missing file
	if _, err := resolvePath(root, "/missing.css", "index.html"); !errors.Is(err, errNotFound) {
		t.Errorf("expected errNotFound for missing file, got %v", err)
	}
	// a directory is not a regular file
	if _, err := resolvePath(root, "/gallery", "index.html"); !errors.Is(err, errNotFound) {
		t.Errorf("expected errNotFound for directory, got %v", err)
	}
	// missing default document
	if _, err := resolvePath(root, "/", "index.html"); !errors.Is(err, errNotFound) {
		t.Errorf("expected errNotFound for missing default document, got %v", err)
	}
}

func TestContentTypeFor(t *testing.T) {
	t.Parallel()
	cases := map[string]string{
		".html":  "text/html",
		".HTML":  "text/html",
		".css":   "text/css",
		".js":    "application/javascript",
		".json":  "application/json",
		".png":   "image/png",
		".jpg":   "image/jpeg",
		".svg":   "image/svg+xml",
		".bin":   "application/octet-stream",
		"":       "application/octet-stream",
		".weird": "application/octet-stream",
	}
	for ext, want := range cases {
		if got := contentTypeFor(ext); got != want {
			t.Errorf("contentTypeFor(%q) = %q, want %q", ext, got, want)
		}
	}
}

func TestHasParentSegment(t *testing.T) {
	t.Parallel()
	if hasParentSegment("/a/b..c/d") {
		t.Error("dots inside a segment are not a parent reference")
	}
	if hasParentSegment("/..hidden/file") {
		t.Error("leading dots inside a segment are not a parent reference")
	}
	if !hasParentSegment("/a/../b") {
		t.Error("expected parent reference to be detected")
	}
	if !hasParentSegment(`\..\x`) {
		t.Error("expected backslash-separated parent reference to be detected")
	}
}
