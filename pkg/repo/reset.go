package repo

import (
	"fmt"
	"sort"
	"strings"

	"go.uber.org/zap"
)

// ResetIndex unstages paths by restoring index entries to their HEAD
// versions.
//
// Behavior:
// - If a path exists in HEAD, its index entry is reset to HEAD's blob/mode.
// - If a path does not exist in HEAD, its index entry is removed.
// - If no paths are provided, the entire index is reset to HEAD.
//
// ResetIndex does not modify the working tree.
func (r *Repo) ResetIndex(paths []string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	idx, err := r.ReadIndex()
	if err != nil {
		return fmt.Errorf("reset: %w", err)
	}

	headEntries, err := r.headTreeFileEntryMap()
	if err != nil {
		return fmt.Errorf("reset: %w", err)
	}

	targets, err := r.resolveResetTargets(paths, idx, headEntries)
	if err != nil {
		return fmt.Errorf("reset: %w", err)
	}

	for _, p := range targets {
		if headEntry, ok := headEntries[p]; ok {
			// Force status to hash-check this path after reset to avoid stale
			// stat-only matches when worktree content differs from HEAD.
			idx.Entries[p] = &IndexEntry{
				Path:     p,
				BlobHash: headEntry.BlobHash,
				Mode:     normalizeFileMode(headEntry.Mode),
				ModTime:  0,
				Size:     -1,
			}
			continue
		}
		delete(idx.Entries, p)
	}

	if err := r.WriteIndex(idx); err != nil {
		return fmt.Errorf("reset: %w", err)
	}
	return nil
}

// ResetHard moves the current branch (or detached HEAD) back n first-parent
// generations and restores worktree and index to that commit. n == 0 resets
// to the current HEAD commit, discarding local changes.
//
// The ancestor is resolved before anything is touched: when the history has
// fewer than n ancestors, ErrInsufficientHistory is returned and HEAD, index,
// and worktree are left exactly as they were.
func (r *Repo) ResetHard(n uint) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	headHash, err := r.ResolveRef("HEAD")
	if err != nil {
		return fmt.Errorf("reset hard: %w", err)
	}
	ancestor, err := r.NthAncestor(headHash, n)
	if err != nil {
		return fmt.Errorf("reset hard: %w", err)
	}
	commit, err := r.Store.ReadCommit(ancestor)
	if err != nil {
		return fmt.Errorf("reset hard: read commit %s: %w", ancestor, err)
	}

	if err := r.restoreCommitLocked(commit); err != nil {
		return fmt.Errorf("reset hard: %w", err)
	}

	// Move the ref last, once the worktree matches the target.
	head, err := r.Head()
	if err != nil {
		return fmt.Errorf("reset hard: read HEAD: %w", err)
	}
	if strings.HasPrefix(head, "refs/") {
		if err := r.UpdateRefCAS(head, ancestor, headHash); err != nil {
			return fmt.Errorf("reset hard: update ref %q: %w", head, err)
		}
	} else {
		if err := r.UpdateRefCAS("HEAD", ancestor, headHash); err != nil {
			return fmt.Errorf("reset hard: update detached HEAD: %w", err)
		}
	}

	r.log.Debug("hard reset",
		zap.Uint("generations", n),
		zap.String("target", string(ancestor)))
	return nil
}

func (r *Repo) headTreeFileEntryMap() (map[string]TreeFileEntry, error) {
	result := make(map[string]TreeFileEntry)

	headHash, err := r.ResolveRef("HEAD")
	if err != nil {
		return result, nil
	}
	commit, err := r.Store.ReadCommit(headHash)
	if err != nil {
		return nil, fmt.Errorf("read HEAD commit: %w", err)
	}
	entries, err := r.FlattenTree(commit.TreeHash)
	if err != nil {
		return nil, fmt.Errorf("flatten HEAD tree: %w", err)
	}
	for _, e := range entries {
		result[e.Path] = e
	}
	return result, nil
}

func (r *Repo) resolveResetTargets(paths []string, idx *Index, head map[string]TreeFileEntry) ([]string, error) {
	all := make(map[string]struct{}, len(idx.Entries)+len(head))
	for p := range idx.Entries {
		all[p] = struct{}{}
	}
	for p := range head {
		all[p] = struct{}{}
	}

	if len(paths) == 0 {
		return sortedPathSet(all), nil
	}

	targets := make(map[string]struct{})
	for _, raw := range paths {
		rel, err := r.repoRelPath(raw)
		if err != nil {
			return nil, err
		}
		if rel == "" || rel == "." {
			for p := range all {
				targets[p] = struct{}{}
			}
			continue
		}

		matched := false
		if _, ok := all[rel]; ok {
			targets[rel] = struct{}{}
			matched = true
		}

		prefix := rel + "/"
		for p := range all {
			if strings.HasPrefix(p, prefix) {
				targets[p] = struct{}{}
				matched = true
			}
		}

		if !matched {
			return nil, fmt.Errorf("path %q did not match staged or HEAD entries", raw)
		}
	}

	return sortedPathSet(targets), nil
}

func sortedPathSet(set map[string]struct{}) []string {
	out := make([]string, 0, len(set))
	for p := range set {
		out = append(out, p)
	}
	sort.Strings(out)
	return out
}
