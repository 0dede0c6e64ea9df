package sync

import (
	"path"
	"strings"
)

// DefaultInclude is the include pattern list used when none is configured.
var DefaultInclude = []string{"*"}

// Matcher decides whether a relative path takes part in a sync. It holds no
// state besides its patterns, so a single Matcher can be shared freely.
type Matcher struct {
	include    []string
	exclude    []string
	restricted bool
}

// NewMatcher creates a Matcher. An empty include list is equivalent to
// DefaultInclude.
func NewMatcher(include, exclude []string) *Matcher {
	m := &Matcher{
		include: normalizePatterns(include),
		exclude: normalizePatterns(exclude),
	}
	if len(m.include) == 0 {
		m.include = DefaultInclude
	}
	m.restricted = !(len(m.include) == 1 && m.include[0] == "*")
	return m
}

// ShouldInclude returns whether `rel` should be synced. Excludes take
// precedence over includes. When the include list has been narrowed from the
// default, paths that match no include pattern are excluded.
func (m *Matcher) ShouldInclude(rel string) bool {
	rel = normalizePath(rel)
	if matchAny(rel, m.exclude) {
		return false
	}
	if matchAny(rel, m.include) {
		return true
	}
	return !m.restricted
}

// Excludes returns whether `rel` matches an exclude pattern. The local
// enumerator uses it to prune directories: include patterns describe files,
// so a directory is never pruned just because its name isn't included.
func (m *Matcher) Excludes(rel string) bool {
	return matchAny(normalizePath(rel), m.exclude)
}

// ShouldInclude is a convenience wrapper for one-off decisions.
func ShouldInclude(rel string, include, exclude []string) bool {
	return NewMatcher(include, exclude).ShouldInclude(rel)
}

func matchAny(rel string, patterns []string) bool {
	for _, pattern := range patterns {
		if matchPattern(rel, pattern) {
			return true
		}
	}
	return false
}

// matchPattern matches `pattern` against the full path, every suffix made by
// dropping leading segments, and every ancestor prefix. This lets a bare name
// such as `node_modules` match that directory at any depth, along with
// everything beneath it.
func matchPattern(rel, pattern string) bool {
	if globMatch(pattern, rel) {
		return true
	}

	parts := strings.Split(rel, "/")
	for i := 1; i < len(parts); i++ {
		if globMatch(pattern, strings.Join(parts[i:], "/")) {
			return true
		}
	}
	for i := 1; i < len(parts); i++ {
		if globMatch(pattern, strings.Join(parts[:i], "/")) {
			return true
		}
	}
	return false
}

// globMatch treats malformed patterns as matching nothing. Configurations are
// validated before a run, so this only matters for direct callers.
func globMatch(pattern, name string) bool {
	ok, err := path.Match(pattern, name)
	return err == nil && ok
}

func normalizePath(p string) string {
	p = strings.ReplaceAll(p, `\`, "/")
	return strings.TrimPrefix(p, "./")
}

func normalizePatterns(patterns []string) []string {
	var normalized []string
	for _, pattern := range patterns {
		if pattern == "" {
			continue
		}
		normalized = append(normalized, normalizePath(pattern))
	}
	return normalized
}
