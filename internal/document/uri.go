// Package document implements the in-memory document store PolyClient uses
// to track the text and version of every open document, independent of any
// one adapter (spec.md C3).
package document

import (
	"net/url"
	"path/filepath"
	"runtime"
	"strings"
)

// NormalizeURI canonicalizes raw into a file:// URI so the same on-disk
// path always maps to the same map key, regardless of how the host spelled
// it (absolute path, already-a-URI, mixed slash direction, Windows drive
// letter case). Grounded on the inverse of the teacher's uriToPath: instead
// of URI->path, this hub normalizes path-or-URI->URI once at the document
// boundary so every internal package only ever sees the canonical form.
func NormalizeURI(raw string) (string, error) {
	if raw == "" {
		return "", &InvalidURIError{URI: raw, Err: errEmpty}
	}

	if !strings.Contains(raw, "://") {
		// A bare filesystem path: treat it as the file to open.
		return pathToURI(raw), nil
	}

	parsed, err := url.Parse(raw)
	if err != nil {
		return "", &InvalidURIError{URI: raw, Err: err}
	}
	if parsed.Scheme != "file" {
		return "", &InvalidURIError{URI: raw, Err: errUnsupportedScheme}
	}

	parsed.Fragment = ""
	parsed.RawFragment = ""

	path := parsed.Path
	if runtime.GOOS == "windows" || isWindowsDriveLetterPath(path) {
		path = upperDriveLetter(path)
	}
	parsed.Path = path
	parsed.Host = ""

	return parsed.String(), nil
}

func pathToURI(path string) string {
	clean := filepath.ToSlash(filepath.Clean(path))
	if isWindowsDriveLetterPath("/" + clean) {
		clean = upperDriveLetter("/" + clean)
	} else if !strings.HasPrefix(clean, "/") {
		clean = "/" + clean
	}
	u := url.URL{Scheme: "file", Path: clean}
	return u.String()
}

// isWindowsDriveLetterPath reports whether path looks like /C:/... (the
// shape url.Parse produces for file:///C:/foo URIs on any OS).
func isWindowsDriveLetterPath(path string) bool {
	return len(path) > 2 && path[0] == '/' && path[2] == ':' && isASCIILetter(path[1])
}

func upperDriveLetter(path string) string {
	if !isWindowsDriveLetterPath(path) {
		return path
	}
	b := []byte(path)
	if b[1] >= 'a' && b[1] <= 'z' {
		b[1] -= 'a' - 'A'
	}
	return string(b)
}

func isASCIILetter(b byte) bool {
	return (b >= 'a' && b <= 'z') || (b >= 'A' && b <= 'Z')
}
