package discovery

import (
	"bufio"
	"os"
	"path"
	"strings"
)

// IgnoreFileName is the per-application ignore file read by NewWalker.
const IgnoreFileName = ".vigilignore"

// LoadIgnoreFile reads gitignore-style patterns from p. A missing file yields
// no patterns and no error.
func LoadIgnoreFile(p string) ([]string, error) {
	f, err := os.Open(p)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}
	defer f.Close() //nolint:errcheck // read-only

	var patterns []string
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		patterns = append(patterns, line)
	}
	if err := scanner.Err(); err != nil {
		return nil, err
	}
	return patterns, nil
}

// IsIgnored reports whether the slash-separated relative path rel matches the
// patterns. Directory paths carry a trailing "/". Supported syntax:
//   - bare names and globs match any path segment ("*.log", "cache")
//   - a trailing "/" restricts the pattern to directories ("vendor/")
//   - a leading "/" or an inner "/" anchors the pattern at the root
//   - a leading "!" re-includes a previously ignored path
//
// The last matching pattern wins. .git is always ignored.
func IsIgnored(rel string, patterns []string) bool {
	isDir := strings.HasSuffix(rel, "/")
	rel = strings.TrimSuffix(rel, "/")
	if rel == ".git" || strings.HasPrefix(rel, ".git/") {
		return true
	}

	ignored := false
	for _, p := range patterns {
		neg := strings.HasPrefix(p, "!")
		p = strings.TrimPrefix(p, "!")
		if matchPattern(rel, isDir, p) {
			ignored = !neg
		}
	}
	return ignored
}

func matchPattern(rel string, isDir bool, pattern string) bool {
	dirOnly := strings.HasSuffix(pattern, "/")
	pattern = strings.TrimSuffix(pattern, "/")
	if dirOnly && !isDir {
		return false
	}

	anchored := strings.HasPrefix(pattern, "/") || strings.Contains(pattern, "/")
	if anchored {
		ok, _ := path.Match(strings.TrimPrefix(pattern, "/"), rel)
		return ok
	}

	ok, _ := path.Match(pattern, path.Base(rel))
	return ok
}
