package repo

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"go.uber.org/zap"

	"github.com/gritvcs/grit/pkg/object"
)

// IndexEntry records the staged state of a single file.
type IndexEntry struct {
	Path     string      `json:"path"`
	BlobHash object.Hash `json:"blob_hash"`
	Mode     string      `json:"mode"`
	ModTime  int64       `json:"mod_time"` // unix nanoseconds, stat cache
	Size     int64       `json:"size"`
}

// Index holds the full staging area for a grit repository: the set of paths
// staged for the next commit, keyed by repo-relative slash path. It is the
// only mutable persisted structure; it is read and written as a unit.
type Index struct {
	Entries map[string]*IndexEntry `json:"entries"`
}

// indexPath returns the filesystem path to the index file.
func (r *Repo) indexPath() string {
	return filepath.Join(r.GritDir, "index")
}

// ReadIndex loads the staging area from .grit/index. If the file does not
// exist, an empty Index is returned (no error). A file that cannot be parsed
// yields ErrIndexCorrupt; no partial index is ever returned.
func (r *Repo) ReadIndex() (*Index, error) {
	data, err := os.ReadFile(r.indexPath())
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return &Index{Entries: make(map[string]*IndexEntry)}, nil
		}
		return nil, fmt.Errorf("read index: %w", err)
	}

	var idx Index
	if err := json.Unmarshal(data, &idx); err != nil {
		return nil, fmt.Errorf("read index: %w: %v", ErrIndexCorrupt, err)
	}
	if idx.Entries == nil {
		idx.Entries = make(map[string]*IndexEntry)
	}
	return &idx, nil
}

// WriteIndex atomically writes the staging area to .grit/index via temp file
// and rename. A failed write leaves the previous on-disk index intact.
func (r *Repo) WriteIndex(idx *Index) error {
	data, err := json.MarshalIndent(idx, "", "  ")
	if err != nil {
		return fmt.Errorf("write index: marshal: %w", err)
	}

	tmp, err := os.CreateTemp(r.GritDir, ".index-tmp-*")
	if err != nil {
		return fmt.Errorf("write index: tmpfile: %w", err)
	}
	tmpName := tmp.Name()

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("write index: write: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("write index: close: %w", err)
	}

	if err := os.Rename(tmpName, r.indexPath()); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("write index: rename: %w", err)
	}
	return nil
}

// Stage inserts or updates the index entry for path, pointing at an existing
// blob. Idempotent. The blob must already be in the object store so the index
// never references an id the store does not hold.
func (r *Repo) Stage(path string, blobHash object.Hash, mode string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	rel, err := r.repoRelPath(path)
	if err != nil {
		return fmt.Errorf("stage: %w", err)
	}
	if !r.Store.Has(blobHash) {
		return fmt.Errorf("stage %q: blob %s: %w", rel, blobHash, object.ErrNotFound)
	}

	idx, err := r.ReadIndex()
	if err != nil {
		return fmt.Errorf("stage: %w", err)
	}
	idx.Entries[rel] = &IndexEntry{
		Path:     rel,
		BlobHash: blobHash,
		Mode:     normalizeFileMode(mode),
		ModTime:  0,
		Size:     -1,
	}
	if err := r.WriteIndex(idx); err != nil {
		return fmt.Errorf("stage: %w", err)
	}
	return nil
}

// Unstage removes the index entry for path. Removing an absent path is a
// no-op, not an error.
func (r *Repo) Unstage(path string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	rel, err := r.repoRelPath(path)
	if err != nil {
		return fmt.Errorf("unstage: %w", err)
	}

	idx, err := r.ReadIndex()
	if err != nil {
		return fmt.Errorf("unstage: %w", err)
	}
	if _, ok := idx.Entries[rel]; !ok {
		return nil
	}
	delete(idx.Entries, rel)
	if err := r.WriteIndex(idx); err != nil {
		return fmt.Errorf("unstage: %w", err)
	}
	return nil
}

// Add stages the given file paths. Each path is resolved relative to the
// repo root; the raw content is written as a blob to the object store before
// the index entry is created.
//
// Per-item failures do not abort the batch: successes stay staged and the
// indices of failed paths are returned. The error return is reserved for
// whole-batch failures (unreadable or unwritable index).
func (r *Repo) Add(paths []string) ([]int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.addLocked(paths)
}

func (r *Repo) addLocked(paths []string) ([]int, error) {
	idx, err := r.ReadIndex()
	if err != nil {
		return nil, fmt.Errorf("add: %w", err)
	}

	var failed []int
	for i, p := range paths {
		if err := r.stageFile(idx, p); err != nil {
			r.log.Debug("add: skipping path",
				zap.String("path", p),
				zap.Error(err))
			failed = append(failed, i)
		}
	}

	if err := r.WriteIndex(idx); err != nil {
		return nil, fmt.Errorf("add: %w", err)
	}
	r.log.Debug("paths staged",
		zap.Int("requested", len(paths)),
		zap.Int("failed", len(failed)))
	return failed, nil
}

// stageFile writes path's content through the object store and records the
// entry in idx. The caller flushes the index.
func (r *Repo) stageFile(idx *Index, p string) error {
	relPath, err := r.repoRelPath(p)
	if err != nil {
		return fmt.Errorf("resolve path %q: %w", p, err)
	}

	absPath := filepath.Join(r.RootDir, filepath.FromSlash(relPath))
	content, err := os.ReadFile(absPath)
	if err != nil {
		return fmt.Errorf("read %q: %w", relPath, err)
	}

	info, err := os.Stat(absPath)
	if err != nil {
		return fmt.Errorf("stat %q: %w", relPath, err)
	}

	blobHash, err := r.Store.WriteBlob(&object.Blob{Data: content})
	if err != nil {
		return fmt.Errorf("write blob %q: %w", relPath, err)
	}

	idx.Entries[relPath] = &IndexEntry{
		Path:     relPath,
		BlobHash: blobHash,
		Mode:     modeFromFileInfo(info),
		ModTime:  info.ModTime().UnixNano(),
		Size:     info.Size(),
	}
	return nil
}

// AddGlob stages every worktree file whose repo-relative path matches the
// glob pattern (whole-path semantics, see compileGlob). Ignored paths are
// never staged. Returns the staged paths sorted by name.
func (r *Repo) AddGlob(pattern string) ([]string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	g, err := compileGlob(pattern)
	if err != nil {
		return nil, fmt.Errorf("add glob: %w", err)
	}

	matched, err := r.matchWorktree(g)
	if err != nil {
		return nil, fmt.Errorf("add glob: %w", err)
	}
	if len(matched) == 0 {
		return nil, nil
	}

	idx, err := r.ReadIndex()
	if err != nil {
		return nil, fmt.Errorf("add glob: %w", err)
	}
	for _, rel := range matched {
		if err := r.stageFile(idx, rel); err != nil {
			return nil, fmt.Errorf("add glob: %w", err)
		}
	}
	if err := r.WriteIndex(idx); err != nil {
		return nil, fmt.Errorf("add glob: %w", err)
	}
	r.log.Debug("glob staged",
		zap.String("pattern", pattern),
		zap.Int("matched", len(matched)))
	return matched, nil
}

// matchWorktree walks the working directory and returns sorted repo-relative
// paths of non-ignored files matching g.
func (r *Repo) matchWorktree(g *glob) ([]string, error) {
	im := NewIgnoreMatcher(r.RootDir)

	var matched []string
	err := filepath.WalkDir(r.RootDir, func(path string, d fs.DirEntry, walkErr error) error {
		if walkErr != nil {
			return walkErr
		}
		rel, err := filepath.Rel(r.RootDir, path)
		if err != nil {
			return err
		}
		rel = filepath.ToSlash(rel)
		if rel == "." {
			return nil
		}
		if im.IsIgnored(rel) {
			if d.IsDir() {
				return fs.SkipDir
			}
			return nil
		}
		if !d.IsDir() && g.Match(rel) {
			matched = append(matched, rel)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("walk worktree: %w", err)
	}
	sort.Strings(matched)
	return matched, nil
}

// UpdateMatching refreshes already-tracked entries whose path matches the
// glob: changed files are restaged, entries whose worktree file is gone are
// dropped. Untracked paths are never added.
func (r *Repo) UpdateMatching(pattern string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	g, err := compileGlob(pattern)
	if err != nil {
		return fmt.Errorf("update matching: %w", err)
	}

	idx, err := r.ReadIndex()
	if err != nil {
		return fmt.Errorf("update matching: %w", err)
	}

	for rel := range idx.Entries {
		if !g.Match(rel) {
			continue
		}
		absPath := filepath.Join(r.RootDir, filepath.FromSlash(rel))
		if _, err := os.Stat(absPath); err != nil {
			if os.IsNotExist(err) {
				delete(idx.Entries, rel)
				continue
			}
			return fmt.Errorf("update matching: stat %q: %w", rel, err)
		}
		if err := r.stageFile(idx, rel); err != nil {
			return fmt.Errorf("update matching: %w", err)
		}
	}

	if err := r.WriteIndex(idx); err != nil {
		return fmt.Errorf("update matching: %w", err)
	}
	return nil
}

// RemoveFiles unstages the given paths. Absent entries are skipped.
func (r *Repo) RemoveFiles(paths []string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	idx, err := r.ReadIndex()
	if err != nil {
		return fmt.Errorf("remove files: %w", err)
	}
	for _, p := range paths {
		rel, err := r.repoRelPath(p)
		if err != nil {
			return fmt.Errorf("remove files: %w", err)
		}
		delete(idx.Entries, rel)
	}
	if err := r.WriteIndex(idx); err != nil {
		return fmt.Errorf("remove files: %w", err)
	}
	return nil
}

// RemoveDirectory unstages every entry under the given directory prefix.
func (r *Repo) RemoveDirectory(dir string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	rel, err := r.repoRelPath(dir)
	if err != nil {
		return fmt.Errorf("remove directory: %w", err)
	}

	idx, err := r.ReadIndex()
	if err != nil {
		return fmt.Errorf("remove directory: %w", err)
	}
	prefix := rel + "/"
	for p := range idx.Entries {
		if strings.HasPrefix(p, prefix) {
			delete(idx.Entries, p)
		}
	}
	if err := r.WriteIndex(idx); err != nil {
		return fmt.Errorf("remove directory: %w", err)
	}
	return nil
}

// repoRelPath converts a path (absolute, or relative to the repository root)
// into a clean repo-relative slash path. Paths that escape the repository
// root are rejected with ErrPathOutsideRepository.
func (r *Repo) repoRelPath(p string) (string, error) {
	abs := p
	if !filepath.IsAbs(abs) {
		abs = filepath.Join(r.RootDir, p)
	}
	rel, err := filepath.Rel(r.RootDir, abs)
	if err != nil {
		return "", fmt.Errorf("cannot make %q relative to %q: %w", p, r.RootDir, err)
	}
	rel = filepath.ToSlash(filepath.Clean(rel))
	if rel == ".." || strings.HasPrefix(rel, "../") {
		return "", fmt.Errorf("path %q: %w", p, ErrPathOutsideRepository)
	}
	return rel, nil
}
