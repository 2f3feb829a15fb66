package repo

import (
	"fmt"
	"regexp"
	"strings"
)

// glob is a compiled shell-style pattern matched against whole repo-relative
// paths, not per segment:
//
//   - `*` matches any run of characters, including path separators
//   - `?` matches exactly one character
//   - `[...]` and `[a-z]` are character classes; `[!...]` negates
//
// Wildcards never match into a dot-prefixed (hidden) path segment unless the
// pattern itself starts with a literal `.`.
type glob struct {
	pattern string
	re      *regexp.Regexp
}

// compileGlob translates a glob pattern to an anchored regular expression.
// A malformed pattern (unterminated character class) yields ErrGlobSyntax.
func compileGlob(pattern string) (*glob, error) {
	if pattern == "" {
		return nil, fmt.Errorf("compile glob: empty pattern: %w", ErrGlobSyntax)
	}

	var b strings.Builder
	b.WriteString("^")
	for i := 0; i < len(pattern); i++ {
		ch := pattern[i]
		switch ch {
		case '*':
			b.WriteString(".*")
		case '?':
			b.WriteString(".")
		case '[':
			class, consumed, err := translateClass(pattern[i:])
			if err != nil {
				return nil, fmt.Errorf("compile glob %q: %w", pattern, err)
			}
			b.WriteString(class)
			i += consumed - 1
		default:
			if strings.ContainsRune(`.+()|]{}^$\`, rune(ch)) {
				b.WriteByte('\\')
			}
			b.WriteByte(ch)
		}
	}
	b.WriteString("$")

	re, err := regexp.Compile(b.String())
	if err != nil {
		return nil, fmt.Errorf("compile glob %q: %w", pattern, ErrGlobSyntax)
	}
	return &glob{pattern: pattern, re: re}, nil
}

// translateClass converts a leading "[...]" of s into a regexp class and
// returns the number of pattern bytes consumed.
func translateClass(s string) (string, int, error) {
	// s[0] is '['.
	i := 1
	var b strings.Builder
	b.WriteByte('[')

	if i < len(s) && (s[i] == '!' || s[i] == '^') {
		b.WriteByte('^')
		i++
	}
	// A ']' directly after the opening (or negation) is a literal member.
	if i < len(s) && s[i] == ']' {
		b.WriteString(`\]`)
		i++
	}
	for i < len(s) && s[i] != ']' {
		ch := s[i]
		if ch == '\\' || ch == '[' {
			b.WriteByte('\\')
		}
		b.WriteByte(ch)
		i++
	}
	if i >= len(s) {
		return "", 0, fmt.Errorf("unterminated character class: %w", ErrGlobSyntax)
	}
	b.WriteByte(']')
	return b.String(), i + 1, nil
}

// Match reports whether a repo-relative slash path matches the pattern.
func (g *glob) Match(relPath string) bool {
	if !g.re.MatchString(relPath) {
		return false
	}
	// Hidden entries require an explicit leading dot in the pattern.
	if !strings.HasPrefix(g.pattern, ".") && hasHiddenSegment(relPath) {
		return false
	}
	return true
}

func hasHiddenSegment(relPath string) bool {
	for _, seg := range strings.Split(relPath, "/") {
		if strings.HasPrefix(seg, ".") {
			return true
		}
	}
	return false
}
