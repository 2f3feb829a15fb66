package repo

import (
	"os"
	"path/filepath"

	gitignore "github.com/sabhiram/go-gitignore"
)

// IgnoreMatcher decides which worktree paths are excluded from tracking.
// Rules come from a .gritignore file at the repository root, with full
// gitignore pattern syntax (negation, globstar, directory suffixes).
// The .grit/ and .git/ directories are always excluded.
type IgnoreMatcher struct {
	ignorer *gitignore.GitIgnore
}

var alwaysIgnored = []string{".grit/", ".git/"}

// NewIgnoreMatcher builds a matcher for the given repository root. An
// unreadable .gritignore degrades to the built-in rules only.
func NewIgnoreMatcher(repoRoot string) *IgnoreMatcher {
	ignorePath := filepath.Join(repoRoot, ".gritignore")
	if _, err := os.Stat(ignorePath); err == nil {
		ignorer, err := gitignore.CompileIgnoreFileAndLines(ignorePath, alwaysIgnored...)
		if err == nil {
			return &IgnoreMatcher{ignorer: ignorer}
		}
	}
	return &IgnoreMatcher{ignorer: gitignore.CompileIgnoreLines(alwaysIgnored...)}
}

// IsIgnored reports whether a repo-relative slash path matches the exclusion
// rules.
func (m *IgnoreMatcher) IsIgnored(rel string) bool {
	if m.ignorer == nil {
		return false
	}
	return m.ignorer.MatchesPath(rel)
}
