package store

import (
	"fmt"
	"strings"
)

// NormalizePath canonicalizes a slash-separated collection path: it
// collapses repeated slashes, removes "." segments, applies ".."
// segments and strips any trailing slash. The result always starts
// with "/". Paths that escape the root are rejected.
func NormalizePath(path string) (string, error) {
	if path == "" {
		return "", fmt.Errorf("%w: empty path", ErrInvalidPath)
	}
	if !strings.HasPrefix(path, "/") {
		return "", fmt.Errorf("%w: %q is not absolute", ErrInvalidPath, path)
	}

	var out []string
	for _, seg := range strings.Split(path, "/") {
		switch seg {
		case "", ".":
			continue
		case "..":
			if len(out) == 0 {
				return "", fmt.Errorf("%w: %q escapes the root", ErrInvalidPath, path)
			}
			out = out[:len(out)-1]
		default:
			out = append(out, seg)
		}
	}
	if len(out) == 0 {
		return "/", nil
	}
	return "/" + strings.Join(out, "/"), nil
}

// SplitPath breaks a normalized path into its segments. The root path
// yields an empty slice.
func SplitPath(path string) []string {
	trimmed := strings.Trim(path, "/")
	if trimmed == "" {
		return nil
	}
	return strings.Split(trimmed, "/")
}

// JoinPath appends a child name to a parent path.
func JoinPath(parent, name string) string {
	if parent == "/" || parent == "" {
		return "/" + name
	}
	return parent + "/" + name
}

// PathName returns the last segment of a path.
func PathName(path string) string {
	trimmed := strings.TrimSuffix(path, "/")
	idx := strings.LastIndex(trimmed, "/")
	if idx < 0 {
		return trimmed
	}
	return trimmed[idx+1:]
}

// ParentPath returns the path of the enclosing collection, or "/" for
// top-level paths.
func ParentPath(path string) string {
	trimmed := strings.TrimSuffix(path, "/")
	idx := strings.LastIndex(trimmed, "/")
	if idx <= 0 {
		return "/"
	}
	return trimmed[:idx]
}
