// Package project infers billing/project codes from window titles and paths.
//
// A [Matcher] tries three pattern shapes in priority order against the title,
// then the whole path, then each path segment. When nothing matches it falls
// back to the most recently used code. Matching never touches the clock or the
// filesystem, so identical input and cache state always produce the same
// result.
package project

import (
	"fmt"
	"regexp"
	"strings"
	"sync"
	"unicode"
)

// ///////////////////////////////////////////////
// Defaults
// ///////////////////////////////////////////////

// DefaultPrefixes is the built-in set of known code prefixes.
var DefaultPrefixes = []string{"BMS", "PJT", "PRJ"}

// DefaultRecentSize is the number of codes kept in the recency cache.
const DefaultRecentSize = 5

// prefixRe validates a configured code prefix: 2-4 uppercase ASCII letters.
var prefixRe = regexp.MustCompile(`^[A-Z]{2,4}$`)

// ValidatePrefix reports whether p can be used as a known code prefix.
func ValidatePrefix(p string) bool {
	return prefixRe.MatchString(p)
}

// ///////////////////////////////////////////////
// Matcher
// ///////////////////////////////////////////////

// Matcher maps text to project codes and keeps the recency cache used as a
// last-resort guess. It is safe for concurrent use.
type Matcher struct {
	// patterns are tried in order; the first hit wins.
	patterns []*regexp.Regexp

	mu     sync.Mutex
	recent []string
	size   int
	// onChange, if set, receives a copy of the cache after every mutation.
	onChange func([]string)
}

// Option configures a [Matcher].
type Option func(*Matcher)

// WithOnChange registers fn to be called with a copy of the recency cache after
// each mutation. It runs outside the matcher lock.
func WithOnChange(fn func(recent []string)) Option {
	return func(m *Matcher) { m.onChange = fn }
}

// NewMatcher builds a Matcher for the given prefixes. An empty prefix list uses
// [DefaultPrefixes]; a non-positive size uses [DefaultRecentSize].
func NewMatcher(prefixes []string, recentSize int, opts ...Option) (*Matcher, error) {
	if len(prefixes) == 0 {
		prefixes = DefaultPrefixes
	}
	quoted := make([]string, 0, len(prefixes))
	for _, p := range prefixes {
		if !ValidatePrefix(p) {
			return nil, fmt.Errorf("invalid project prefix %q: must be 2-4 uppercase letters", p)
		}
		quoted = append(quoted, regexp.QuoteMeta(p))
	}
	if recentSize <= 0 {
		recentSize = DefaultRecentSize
	}

	m := &Matcher{
		patterns: []*regexp.Regexp{
			regexp.MustCompile(`(?i)\b(?:` + strings.Join(quoted, "|") + `)\s*[0-9]{4,}\b`),
			regexp.MustCompile(`(?i)\bproject[-_]?[0-9]{4,}\b`),
			regexp.MustCompile(`#[0-9]{4,}\b`),
		},
		size: recentSize,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m, nil
}

// Match searches title, then path, then each path segment for a project code.
// It does not consult or modify the recency cache.
func (m *Matcher) Match(title, path string) (string, bool) {
	if code, ok := m.find(title); ok {
		return code, true
	}
	if code, ok := m.find(path); ok {
		return code, true
	}
	if path == "" {
		return "", false
	}
	// Segments catch codes the whole-path search misses because of the
	// characters around them.
	for _, seg := range splitPath(path) {
		if code, ok := m.find(seg); ok {
			return code, true
		}
	}
	return "", false
}

// Infer returns the project code for a window. A pattern hit is recorded as
// recent use. Otherwise the most recent cached code is returned without
// reordering the cache. ok is false when there is neither a hit nor a cached
// code.
func (m *Matcher) Infer(title, path string) (code string, ok bool) {
	if code, ok := m.Match(title, path); ok {
		m.Remember(code)
		return code, true
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.recent) == 0 {
		return "", false
	}
	return m.recent[0], true
}

// Remember moves code to the front of the recency cache, dropping any earlier
// occurrence and truncating the cache to its configured size.
func (m *Matcher) Remember(code string) {
	if code == "" {
		return
	}
	m.mu.Lock()
	next := make([]string, 0, m.size)
	next = append(next, code)
	for _, c := range m.recent {
		if c != code && len(next) < m.size {
			next = append(next, c)
		}
	}
	m.recent = next
	snapshot := m.recentLocked()
	fn := m.onChange
	m.mu.Unlock()

	if fn != nil {
		fn(snapshot)
	}
}

// Recent returns the recency cache, most recent first.
func (m *Matcher) Recent() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.recentLocked()
}

// Restore replaces the recency cache, used when loading a persisted cache.
// Duplicates and empty codes are dropped and the result truncated.
func (m *Matcher) Restore(codes []string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	seen := make(map[string]bool, len(codes))
	m.recent = m.recent[:0]
	for _, c := range codes {
		if c == "" || seen[c] || len(m.recent) >= m.size {
			continue
		}
		seen[c] = true
		m.recent = append(m.recent, c)
	}
}

func (m *Matcher) recentLocked() []string {
	out := make([]string, len(m.recent))
	copy(out, m.recent)
	return out
}

// find returns the first pattern hit in text with whitespace removed.
func (m *Matcher) find(text string) (string, bool) {
	if text == "" {
		return "", false
	}
	for _, re := range m.patterns {
		if hit := re.FindString(text); hit != "" {
			return Canonical(hit), true
		}
	}
	return "", false
}

// ///////////////////////////////////////////////
// Helpers
// ///////////////////////////////////////////////

// Canonical strips all whitespace from a code: "BMS 1180" -> "BMS1180".
func Canonical(code string) string {
	return strings.Map(func(r rune) rune {
		if unicode.IsSpace(r) {
			return -1
		}
		return r
	}, code)
}

// splitPath splits on both separators so Windows paths work on any platform.
func splitPath(path string) []string {
	return strings.FieldsFunc(path, func(r rune) bool {
		return r == '/' || r == '\\'
	})
}
