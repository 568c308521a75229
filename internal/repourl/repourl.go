package repourl

import (
	"regexp"
	"strings"
)

// repoURLPattern accepts only https://github.com/<owner>/<name> with an
// optional www prefix, optional trailing slash, and nothing else: no query
// strings, no extra path segments, no other hosts.
var repoURLPattern = regexp.MustCompile(`^https?://(www\.)?github\.com/[\w.-]+/[\w.-]+/?$`)

// Validate reports whether reference looks like a public GitHub repository
// URL. It must be called before Canonicalize.
func Validate(reference string) bool {
	return repoURLPattern.MatchString(strings.TrimSpace(reference))
}

// Canonicalize reduces a validated repository reference to its stable
// "owner/name" key, insensitive to a trailing slash or .git suffix.
func Canonicalize(reference string) string {
	clean := strings.TrimSpace(reference)
	clean = strings.TrimSuffix(clean, "/")
	clean = strings.TrimSuffix(clean, ".git")
	parts := strings.Split(clean, "/")
	if len(parts) < 2 {
		return clean
	}
	return parts[len(parts)-2] + "/" + parts[len(parts)-1]
}

// Split returns the owner and name halves of a canonical key.
func Split(key string) (owner, name string) {
	owner, name, _ = strings.Cut(key, "/")
	return owner, name
}
