package assetserve

import (
	"errors"
	"net/url"
	"os"
	"path/filepath"
	"strings"
)

var (
	// errTraversal marks a request path that escapes the root directory.
	errTraversal = errors.New("path escapes root directory")
	// errNotFound marks a well-formed path with no regular file behind it.
	errNotFound = errors.New("file not found")
)

// resolvedFile is the result of mapping a request path onto the root
// directory. It is recomputed per request; the file set is expected to be
// static but is not guaranteed immutable while the process runs.
type resolvedFile struct {
	absPath  string
	mimeType string
	size     int64
}

// mimeTypes maps file extensions to the Content-Type the client should see.
// Extensions not listed here fall back to application/octet-stream.
var mimeTypes = map[string]string{
	".html":  "text/html",
	".htm":   "text/html",
	".css":   "text/css",
	".js":    "application/javascript",
	".json":  "application/json",
	".png":   "image/png",
	".jpg":   "image/jpeg",
	".jpeg":  "image/jpeg",
	".gif":   "image/gif",
	".svg":   "image/svg+xml",
	".ico":   "image/x-icon",
	".txt":   "text/plain",
	".woff2": "font/woff2",
}

const fallbackMIMEType = "application/octet-stream"

// contentTypeFor maps a file extension (including the leading dot) to a MIME
// type. Pure lookup, no failure mode.
func contentTypeFor(ext string) string {
	if t, ok := mimeTypes[strings.ToLower(ext)]; ok {
		return t
	}
	return fallbackMIMEType
}

// resolvePath maps a raw request path to a file under rootDir.
//
// The empty path and "/" are served as defaultDocument. Any path whose
// decoded segment list contains a parent-directory reference is rejected
// with errTraversal; this check runs on the logical segments rather than
// the raw string so encoded variants cannot slip past it. After joining,
// the absolute result must still live under rootDir, which guards against
// platform path quirks. Resolution fails closed.
func resolvePath(rootDir, rawPath, defaultDocument string) (*resolvedFile, error) {
	p := stripQuery(rawPath)

	decoded, err := url.PathUnescape(p)
	if err != nil {
		return nil, errTraversal
	}

	if decoded == "" || decoded == "/" {
		decoded = "/" + defaultDocument
	}

	if hasParentSegment(decoded) {
		return nil, errTraversal
	}

	rootAbs, err := filepath.Abs(rootDir)
	if err != nil {
		return nil, err
	}

	rel := strings.TrimPrefix(decoded, "/")
	absPath := filepath.Join(rootAbs, filepath.FromSlash(rel))

	// The segment check above is the security boundary; this prefix check
	// catches anything the join may have normalized out from under us.
	if absPath != rootAbs && !strings.HasPrefix(absPath, rootAbs+string(filepath.Separator)) {
		return nil, errTraversal
	}

	info, err := os.Stat(absPath)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, errNotFound
		}
		return nil, err
	}
	if !info.Mode().IsRegular() {
		return nil, errNotFound
	}

	return &resolvedFile{
		absPath:  absPath,
		mimeType: contentTypeFor(filepath.Ext(absPath)),
		size:     info.Size(),
	}, nil
}

// stripQuery removes the query and fragment components from a request path.
func stripQuery(rawPath string) string {
	if i := strings.IndexAny(rawPath, "?#"); i >= 0 {
		return rawPath[:i]
	}
	return rawPath
}

// hasParentSegment reports whether any path segment is a parent-directory
// reference. Backslashes count as separators so Windows-style separators
// cannot hide a segment.
func hasParentSegment(decoded string) bool {
	normalized := strings.ReplaceAll(decoded, `\`, "/")
	for _, segment := range strings.Split(normalized, "/") {
		if segment == ".." {
			return true
		}
	}
	return false
}
