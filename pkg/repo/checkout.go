package repo

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"go.uber.org/zap"

	"github.com/gritvcs/grit/pkg/object"
)

// Checkout switches the working directory to the state of the target.
// The target can be a branch name or a raw commit hash.
//
// Algorithm:
//  1. Check for uncommitted changes to tracked files; refuse if any exist.
//     Untracked files do not block unless the target tree would overwrite one.
//  2. Resolve target: try as branch name first, then as raw hash.
//  3. Read the target commit and restore worktree + index from its tree.
//  4. Update HEAD (symbolic ref for branch, raw hash for detached).
func (r *Repo) Checkout(target string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	untracked, err := r.ensureCleanLocked()
	if err != nil {
		return fmt.Errorf("checkout: %w", err)
	}

	isBranch := false
	var targetHash object.Hash

	// Try as branch name first.
	branchHash, err := r.ResolveRef("refs/heads/" + target)
	if err == nil {
		targetHash = branchHash
		isBranch = true
	} else {
		// Try as raw hash.
		targetHash = object.Hash(target)
	}

	commit, err := r.Store.ReadCommit(targetHash)
	if err != nil {
		return fmt.Errorf("checkout: cannot read commit %s: %w", targetHash, err)
	}

	targetFiles, err := r.FlattenTree(commit.TreeHash)
	if err != nil {
		return fmt.Errorf("checkout: flatten target tree: %w", err)
	}
	for _, f := range targetFiles {
		if untracked[f.Path] {
			return fmt.Errorf("checkout: untracked file %q would be overwritten", f.Path)
		}
	}

	if err := r.restoreCommitLocked(commit); err != nil {
		return fmt.Errorf("checkout: %w", err)
	}

	headPath := filepath.Join(r.GritDir, "HEAD")
	var headContent string
	if isBranch {
		headContent = "ref: refs/heads/" + target + "\n"
	} else {
		headContent = string(targetHash) + "\n"
	}
	if err := os.WriteFile(headPath, []byte(headContent), 0o644); err != nil {
		return fmt.Errorf("checkout: update HEAD: %w", err)
	}

	r.log.Debug("checkout",
		zap.String("target", target),
		zap.Bool("branch", isBranch))
	return nil
}

// CheckoutPaths force-restores the selected paths (files or directory
// prefixes) from the tip of the named branch, overwriting worktree content
// and index entries. HEAD is not moved.
func (r *Repo) CheckoutPaths(branch string, paths []string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	tip, err := r.ResolveRef("refs/heads/" + branch)
	if err != nil {
		return fmt.Errorf("checkout paths: %w", err)
	}
	commit, err := r.Store.ReadCommit(tip)
	if err != nil {
		return fmt.Errorf("checkout paths: read commit %s: %w", tip, err)
	}
	files, err := r.FlattenTree(commit.TreeHash)
	if err != nil {
		return fmt.Errorf("checkout paths: flatten tree: %w", err)
	}

	// Select the tree entries covered by the requested paths.
	var selected []TreeFileEntry
	for _, raw := range paths {
		rel, err := r.repoRelPath(raw)
		if err != nil {
			return fmt.Errorf("checkout paths: %w", err)
		}
		matched := false
		for _, f := range files {
			if f.Path == rel || strings.HasPrefix(f.Path, rel+"/") {
				selected = append(selected, f)
				matched = true
			}
		}
		if !matched {
			return fmt.Errorf("checkout paths: %q does not exist on branch %q", raw, branch)
		}
	}

	idx, err := r.ReadIndex()
	if err != nil {
		return fmt.Errorf("checkout paths: %w", err)
	}

	for _, f := range selected {
		if err := r.writeTreeFile(f); err != nil {
			return fmt.Errorf("checkout paths: %w", err)
		}
		info, err := os.Stat(filepath.Join(r.RootDir, filepath.FromSlash(f.Path)))
		if err != nil {
			return fmt.Errorf("checkout paths: stat %q: %w", f.Path, err)
		}
		idx.Entries[f.Path] = &IndexEntry{
			Path:     f.Path,
			BlobHash: f.BlobHash,
			Mode:     normalizeFileMode(f.Mode),
			ModTime:  info.ModTime().UnixNano(),
			Size:     info.Size(),
		}
	}

	if err := r.WriteIndex(idx); err != nil {
		return fmt.Errorf("checkout paths: %w", err)
	}
	return nil
}

// restoreCommitLocked rewrites the working directory and index to match the
// commit's tree exactly: tracked files not in the target tree are removed,
// target files are written out, and the index is rebuilt.
func (r *Repo) restoreCommitLocked(commit *object.CommitObj) error {
	targetFiles, err := r.FlattenTree(commit.TreeHash)
	if err != nil {
		return fmt.Errorf("flatten target tree: %w", err)
	}

	// Remove everything currently tracked; target files are rewritten below.
	for path := range r.trackedFiles() {
		absPath := filepath.Join(r.RootDir, filepath.FromSlash(path))
		if err := os.Remove(absPath); err != nil && !os.IsNotExist(err) {
			return fmt.Errorf("remove %q: %w", path, err)
		}
		r.removeEmptyParents(filepath.Dir(absPath))
	}

	idx := &Index{Entries: make(map[string]*IndexEntry, len(targetFiles))}
	for _, f := range targetFiles {
		if err := r.writeTreeFile(f); err != nil {
			return err
		}
		info, err := os.Stat(filepath.Join(r.RootDir, filepath.FromSlash(f.Path)))
		if err != nil {
			return fmt.Errorf("stat %q: %w", f.Path, err)
		}
		idx.Entries[f.Path] = &IndexEntry{
			Path:     f.Path,
			BlobHash: f.BlobHash,
			Mode:     normalizeFileMode(f.Mode),
			ModTime:  info.ModTime().UnixNano(),
			Size:     info.Size(),
		}
	}

	return r.WriteIndex(idx)
}

// writeTreeFile materializes one tree file entry into the working directory.
func (r *Repo) writeTreeFile(f TreeFileEntry) error {
	absPath := filepath.Join(r.RootDir, filepath.FromSlash(f.Path))
	if err := os.MkdirAll(filepath.Dir(absPath), 0o755); err != nil {
		return fmt.Errorf("mkdir for %q: %w", f.Path, err)
	}
	blob, err := r.Store.ReadBlob(f.BlobHash)
	if err != nil {
		return fmt.Errorf("read blob for %q: %w", f.Path, err)
	}
	if err := os.WriteFile(absPath, blob.Data, filePermFromMode(f.Mode)); err != nil {
		return fmt.Errorf("write %q: %w", f.Path, err)
	}
	return nil
}

// ensureCleanLocked checks that the working tree has no uncommitted changes
// to tracked files. Untracked paths do not make the tree dirty; they are
// returned so the caller can refuse only when the target would overwrite one.
func (r *Repo) ensureCleanLocked() (map[string]bool, error) {
	entries, err := r.statusLocked()
	if err != nil {
		return nil, fmt.Errorf("check status: %w", err)
	}

	untracked := make(map[string]bool)
	for _, e := range entries {
		if e.Worktree == StateIgnored {
			continue
		}
		if e.Staged == StateUntracked && e.Worktree == StateUntracked {
			untracked[e.Path] = true
			continue
		}
		if e.Staged != StateUnchanged || e.Worktree != StateUnchanged {
			return nil, fmt.Errorf("working tree is not clean (file %q has uncommitted changes)", e.Path)
		}
	}
	return untracked, nil
}

// trackedFiles returns the set of all currently tracked file paths: the
// union of HEAD tree paths and index paths.
func (r *Repo) trackedFiles() map[string]bool {
	files := make(map[string]bool)

	for path := range r.headTreeEntries() {
		files[path] = true
	}

	idx, err := r.ReadIndex()
	if err == nil {
		for path := range idx.Entries {
			files[path] = true
		}
	}

	return files
}

// removeEmptyParents removes empty directories up to (but not including)
// the repository root.
func (r *Repo) removeEmptyParents(dir string) {
	for {
		// Never remove the repo root itself.
		if dir == r.RootDir || !strings.HasPrefix(dir, r.RootDir) {
			return
		}

		entries, err := os.ReadDir(dir)
		if err != nil || len(entries) > 0 {
			return
		}

		os.Remove(dir)
		dir = filepath.Dir(dir)
	}
}
