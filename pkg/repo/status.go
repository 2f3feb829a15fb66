package repo

import (
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/gritvcs/grit/pkg/object"
)

// FileState classifies a path in one of the two status comparisons.
type FileState int

const (
	StateUnchanged   FileState = iota // no difference between compared areas
	StateNew                          // in index, not in HEAD tree
	StateModified                     // content differs
	StateDeleted                      // present in the older state, gone in the newer
	StateRenamed                      // same content, path changed
	StateTypeChanged                  // same content, file mode changed
	StateUntracked                    // in working dir, absent from index and HEAD
	StateIgnored                      // matches exclusion rules
)

func (s FileState) String() string {
	switch s {
	case StateUnchanged:
		return "unchanged"
	case StateNew:
		return "new file"
	case StateModified:
		return "modified"
	case StateDeleted:
		return "deleted"
	case StateRenamed:
		return "renamed"
	case StateTypeChanged:
		return "typechanged"
	case StateUntracked:
		return "untracked"
	case StateIgnored:
		return "ignored"
	default:
		return fmt.Sprintf("FileState(%d)", int(s))
	}
}

// StatusEntry records the status of a single file. Staged is the HEAD-tree
// vs index comparison; Worktree is the index vs working-tree comparison.
// Entries are ephemeral: recomputed on every Status call, never persisted.
type StatusEntry struct {
	Path        string    // repo-relative path
	RenamedFrom string    // non-empty when Staged or Worktree is StateRenamed
	Staged      FileState // index vs HEAD comparison
	Worktree    FileState // working tree vs index comparison
}

// DisplayPath renders renames as "OLD -> NEW", other entries as the path.
func (e StatusEntry) DisplayPath() string {
	if e.RenamedFrom != "" && e.RenamedFrom != e.Path {
		return e.RenamedFrom + " -> " + e.Path
	}
	return e.Path
}

type headTreeState struct {
	BlobHash object.Hash
	Mode     string
}

// Status computes the working tree status for the repository.
//
// Three-way walk:
//  1. Read the index and walk the working directory (classifying ignored
//     paths, skipping .grit/).
//  2. Compare working tree files against index entries (unstaged changes).
//  3. Compare index entries against the HEAD tree (staged changes).
//  4. Return entries for every path known to HEAD, index, or worktree,
//     sorted by path, including unchanged and ignored paths.
//
// Rename detection pairs equal blob hashes whose old path is absent from the
// newer state. With several equal-content candidates the pairing is
// lexicographic and best-effort, not guaranteed-correct.
func (r *Repo) Status() ([]StatusEntry, error) {
	// Status may refresh the index stat cache on disk, so it takes the
	// writer lock like any other mutation.
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.statusLocked()
}

func (r *Repo) statusLocked() ([]StatusEntry, error) {
	idx, err := r.ReadIndex()
	if err != nil {
		return nil, fmt.Errorf("status: %w", err)
	}

	im := NewIgnoreMatcher(r.RootDir)
	headEntries := r.headTreeEntries()

	// Exclusion rules never apply to tracked paths: a file in the index or
	// the HEAD tree stays tracked even when a .gritignore rule matches it.
	tracked := make(map[string]bool, len(idx.Entries)+len(headEntries))
	for p := range idx.Entries {
		tracked[p] = true
	}
	for p := range headEntries {
		tracked[p] = true
	}
	trackedUnder := func(prefix string) bool {
		for p := range tracked {
			if strings.HasPrefix(p, prefix) {
				return true
			}
		}
		return false
	}

	// Collect all working-tree files (repo-relative paths), recording
	// ignored paths as their own classification.
	workFiles := make(map[string]bool)
	result := make(map[string]*StatusEntry)
	err = filepath.WalkDir(r.RootDir, func(path string, d fs.DirEntry, walkErr error) error {
		if walkErr != nil {
			return walkErr
		}

		rel, err := filepath.Rel(r.RootDir, path)
		if err != nil {
			return err
		}
		rel = filepath.ToSlash(rel)

		// Skip the root directory itself.
		if rel == "." {
			return nil
		}

		// The metadata directory is never reported, not even as ignored.
		if rel == ".grit" || strings.HasPrefix(rel, ".grit/") {
			if d.IsDir() {
				return fs.SkipDir
			}
			return nil
		}

		if im.IsIgnored(rel) {
			if !d.IsDir() && tracked[rel] {
				workFiles[rel] = true
				return nil
			}
			if d.IsDir() {
				// Tracked files under an ignored directory still need
				// to be visited; only skip fully-ignored subtrees.
				if trackedUnder(rel + "/") {
					return nil
				}
				result[rel] = &StatusEntry{
					Path:     rel,
					Staged:   StateIgnored,
					Worktree: StateIgnored,
				}
				return fs.SkipDir
			}
			result[rel] = &StatusEntry{
				Path:     rel,
				Staged:   StateIgnored,
				Worktree: StateIgnored,
			}
			return nil
		}

		// Only track regular files.
		if !d.IsDir() {
			workFiles[rel] = true
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("status: walk: %w", err)
	}

	workRenamedNewToOld, workRenamedOldToNew, err := r.detectWorktreeRenames(idx, workFiles)
	if err != nil {
		return nil, fmt.Errorf("status: detect worktree renames: %w", err)
	}
	refreshIndex := false

	// --- Working tree vs index comparison ---

	for path := range workFiles {
		ie, inIndex := idx.Entries[path]
		if !inIndex {
			if oldPath, renamed := workRenamedNewToOld[path]; renamed {
				result[path] = &StatusEntry{
					Path:        path,
					RenamedFrom: oldPath,
					Staged:      StateUntracked,
					Worktree:    StateRenamed,
				}
				continue
			}

			// File exists on disk but not in the index → untracked.
			result[path] = &StatusEntry{
				Path:     path,
				Staged:   StateUntracked,
				Worktree: StateUntracked,
			}
			continue
		}

		// File is in the index. Compare metadata first, then content hash
		// if needed.
		absPath := filepath.Join(r.RootDir, filepath.FromSlash(path))
		info, err := os.Stat(absPath)
		if err != nil {
			return nil, fmt.Errorf("status: stat %q: %w", path, err)
		}
		workMode := modeFromFileInfo(info)
		workState := StateUnchanged
		if !indexStatMatchesWorktree(ie, info, workMode) {
			content, err := os.ReadFile(absPath)
			if err != nil {
				return nil, fmt.Errorf("status: read %q: %w", path, err)
			}
			workHash := object.HashObject(object.TypeBlob, content)
			switch {
			case workHash != ie.BlobHash:
				workState = StateModified
			case workMode != normalizeFileMode(ie.Mode):
				workState = StateTypeChanged
			default:
				if refreshIndexEntryStat(ie, info, workMode) {
					refreshIndex = true
				}
			}
		}

		result[path] = &StatusEntry{
			Path:     path,
			Worktree: workState,
		}
	}

	// For each index entry not on disk → deleted from working tree.
	for path := range idx.Entries {
		if _, onDisk := workFiles[path]; !onDisk {
			if _, renamed := workRenamedOldToNew[path]; renamed {
				continue
			}
			entry, exists := result[path]
			if !exists {
				entry = &StatusEntry{Path: path}
				result[path] = entry
			}
			entry.Worktree = StateDeleted
		}
	}

	// --- Index vs HEAD comparison ---

	indexRenamedNewToOld, indexRenamedOldToNew := detectIndexRenames(idx, headEntries)

	for path, ie := range idx.Entries {
		entry, exists := result[path]
		if !exists {
			entry = &StatusEntry{Path: path}
			result[path] = entry
		}

		headState, inHead := headEntries[path]
		switch {
		case !inHead:
			if oldPath, renamed := indexRenamedNewToOld[path]; renamed {
				entry.Staged = StateRenamed
				entry.RenamedFrom = oldPath
			} else {
				entry.Staged = StateNew
			}
		case ie.BlobHash != headState.BlobHash:
			entry.Staged = StateModified
		case normalizeFileMode(ie.Mode) != normalizeFileMode(headState.Mode):
			entry.Staged = StateTypeChanged
		default:
			entry.Staged = StateUnchanged
		}
	}

	// For each HEAD entry not in the index → deleted from index.
	for path := range headEntries {
		if _, inIndex := idx.Entries[path]; !inIndex {
			if _, renamed := indexRenamedOldToNew[path]; renamed {
				continue
			}
			entry, exists := result[path]
			if !exists {
				entry = &StatusEntry{Path: path}
				result[path] = entry
			}
			entry.Staged = StateDeleted
		}
	}

	// Collect and sort.
	entries := make([]StatusEntry, 0, len(result))
	for _, e := range result {
		entries = append(entries, *e)
	}
	sort.Slice(entries, func(i, j int) bool {
		return entries[i].Path < entries[j].Path
	})

	if refreshIndex {
		if err := r.WriteIndex(idx); err != nil {
			return nil, fmt.Errorf("status: refresh index: %w", err)
		}
	}

	return entries, nil
}

// headTreeEntries attempts to read the HEAD commit's tree and flatten it
// into a map of path → blob/mode. If there are no commits yet (fresh repo)
// or if tree reading fails, an empty map is returned.
func (r *Repo) headTreeEntries() map[string]headTreeState {
	result := make(map[string]headTreeState)

	headHash, err := r.ResolveRef("HEAD")
	if err != nil {
		// No commits yet, HEAD is empty.
		return result
	}

	commit, err := r.Store.ReadCommit(headHash)
	if err != nil {
		return result
	}

	r.flattenTreeInto(commit.TreeHash, "", result)
	return result
}

// flattenTreeInto recursively walks a tree object and populates entries with
// path → blob/mode mappings.
func (r *Repo) flattenTreeInto(treeHash object.Hash, prefix string, entries map[string]headTreeState) {
	tree, err := r.Store.ReadTree(treeHash)
	if err != nil {
		return
	}

	for _, te := range tree.Entries {
		path := te.Name
		if prefix != "" {
			path = prefix + "/" + te.Name
		}

		if te.IsDir && te.SubtreeHash != "" {
			r.flattenTreeInto(te.SubtreeHash, path, entries)
		} else if !te.IsDir {
			entries[path] = headTreeState{
				BlobHash: te.BlobHash,
				Mode:     normalizeFileMode(te.Mode),
			}
		}
	}
}

const statusStatCacheNanoThreshold int64 = 1_000_000_000_000
const statusRacyCleanWindow = 2 * time.Second

func indexStatMatchesWorktree(ie *IndexEntry, info os.FileInfo, workMode string) bool {
	if ie == nil {
		return false
	}
	if normalizeFileMode(ie.Mode) != normalizeFileMode(workMode) {
		return false
	}
	if ie.Size != info.Size() {
		return false
	}
	// Old index entries may use second resolution; hash those once and refresh.
	if ie.ModTime < statusStatCacheNanoThreshold {
		return false
	}
	if isRacyCleanModTime(info.ModTime()) {
		return false
	}
	// Some filesystems expose coarse (second-level) mtimes. When nanoseconds
	// are zero, same-size edits inside a second can evade stat-only detection.
	if info.ModTime().Nanosecond() == 0 {
		return false
	}
	return ie.ModTime == info.ModTime().UnixNano()
}

func refreshIndexEntryStat(ie *IndexEntry, info os.FileInfo, workMode string) bool {
	if ie == nil {
		return false
	}
	nextMode := normalizeFileMode(workMode)
	nextModTime := info.ModTime().UnixNano()
	nextSize := info.Size()
	if ie.ModTime == nextModTime && ie.Size == nextSize && normalizeFileMode(ie.Mode) == nextMode {
		return false
	}
	ie.Mode = nextMode
	ie.ModTime = nextModTime
	ie.Size = nextSize
	return true
}

func isRacyCleanModTime(modTime time.Time) bool {
	now := time.Now()
	if modTime.After(now) {
		return true
	}
	return now.Sub(modTime) < statusRacyCleanWindow
}

func detectIndexRenames(idx *Index, headEntries map[string]headTreeState) (map[string]string, map[string]string) {
	newByKey := make(map[string][]string)
	oldByKey := make(map[string][]string)

	for path, ie := range idx.Entries {
		if _, inHead := headEntries[path]; inHead {
			continue
		}
		key := renameMatchKey(ie.BlobHash, ie.Mode)
		newByKey[key] = append(newByKey[key], path)
	}
	for path, hs := range headEntries {
		if _, inIndex := idx.Entries[path]; inIndex {
			continue
		}
		key := renameMatchKey(hs.BlobHash, hs.Mode)
		oldByKey[key] = append(oldByKey[key], path)
	}

	return pairRenameCandidates(newByKey, oldByKey)
}

func (r *Repo) detectWorktreeRenames(idx *Index, workFiles map[string]bool) (map[string]string, map[string]string, error) {
	oldByKey := make(map[string][]string)
	newByKey := make(map[string][]string)

	for path, ie := range idx.Entries {
		if workFiles[path] {
			continue
		}
		key := renameMatchKey(ie.BlobHash, ie.Mode)
		oldByKey[key] = append(oldByKey[key], path)
	}

	for path := range workFiles {
		if _, inIndex := idx.Entries[path]; inIndex {
			continue
		}
		absPath := filepath.Join(r.RootDir, filepath.FromSlash(path))
		info, err := os.Stat(absPath)
		if err != nil {
			return nil, nil, err
		}
		data, err := os.ReadFile(absPath)
		if err != nil {
			return nil, nil, err
		}
		key := renameMatchKey(object.HashObject(object.TypeBlob, data), modeFromFileInfo(info))
		newByKey[key] = append(newByKey[key], path)
	}

	newToOld, oldToNew := pairRenameCandidates(newByKey, oldByKey)
	return newToOld, oldToNew, nil
}

func pairRenameCandidates(newByKey, oldByKey map[string][]string) (map[string]string, map[string]string) {
	newToOld := make(map[string]string)
	oldToNew := make(map[string]string)

	for key, newPaths := range newByKey {
		oldPaths := oldByKey[key]
		if len(oldPaths) == 0 {
			continue
		}

		sort.Strings(newPaths)
		sort.Strings(oldPaths)

		n := len(newPaths)
		if len(oldPaths) < n {
			n = len(oldPaths)
		}

		for i := 0; i < n; i++ {
			newPath := newPaths[i]
			oldPath := oldPaths[i]
			newToOld[newPath] = oldPath
			oldToNew[oldPath] = newPath
		}
	}

	return newToOld, oldToNew
}

func renameMatchKey(blobHash object.Hash, mode string) string {
	return string(blobHash) + "|" + normalizeFileMode(strings.TrimSpace(mode))
}
