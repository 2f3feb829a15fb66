package repo

import (
	"os"
	"path/filepath"
	"sort"
	"testing"

	"github.com/gritvcs/grit/pkg/object"
)

func statusByPath(t *testing.T, r *Repo) map[string]StatusEntry {
	t.Helper()
	entries, err := r.Status()
	if err != nil {
		t.Fatalf("Status: %v", err)
	}
	// Entries arrive sorted by path.
	if !sort.SliceIsSorted(entries, func(i, j int) bool {
		return entries[i].Path < entries[j].Path
	}) {
		t.Fatalf("status entries not sorted: %v", entries)
	}
	out := make(map[string]StatusEntry, len(entries))
	for _, e := range entries {
		out[e.Path] = e
	}
	return out
}

func TestStatusSingleUnstagedModification(t *testing.T) {
	r := newTestRepo(t)
	writeWorkFile(t, r, "a.txt", "alpha")
	writeWorkFile(t, r, "b.txt", "beta")
	if _, err := r.Add([]string{"a.txt", "b.txt"}); err != nil {
		t.Fatalf("Add: %v", err)
	}
	if _, err := r.Commit("base"); err != nil {
		t.Fatalf("Commit: %v", err)
	}

	// Modify exactly one file in the worktree, without restaging.
	writeWorkFile(t, r, "b.txt", "beta changed")

	st := statusByPath(t, r)
	if len(st) != 2 {
		t.Fatalf("status has %d entries, want 2: %v", len(st), st)
	}

	// Test 1: the untouched file reports unchanged in both comparisons.
	a := st["a.txt"]
	if a.Staged != StateUnchanged || a.Worktree != StateUnchanged {
		t.Fatalf("a.txt = staged %v / worktree %v, want unchanged/unchanged", a.Staged, a.Worktree)
	}

	// Test 2: the edited file is modified in the worktree only.
	b := st["b.txt"]
	if b.Staged != StateUnchanged {
		t.Fatalf("b.txt staged = %v, want unchanged", b.Staged)
	}
	if b.Worktree != StateModified {
		t.Fatalf("b.txt worktree = %v, want modified", b.Worktree)
	}
}

func TestStatusStagedStates(t *testing.T) {
	r := newTestRepo(t)
	writeWorkFile(t, r, "kept.txt", "kept")
	writeWorkFile(t, r, "edited.txt", "v1")
	writeWorkFile(t, r, "dropped.txt", "going away")
	if _, err := r.Add([]string{"kept.txt", "edited.txt", "dropped.txt"}); err != nil {
		t.Fatalf("Add: %v", err)
	}
	if _, err := r.Commit("base"); err != nil {
		t.Fatalf("Commit: %v", err)
	}

	// Stage an edit, stage a brand new file, unstage a committed file.
	writeWorkFile(t, r, "edited.txt", "v2")
	writeWorkFile(t, r, "fresh.txt", "new content")
	if _, err := r.Add([]string{"edited.txt", "fresh.txt"}); err != nil {
		t.Fatalf("Add: %v", err)
	}
	if err := r.RemoveFiles([]string{"dropped.txt"}); err != nil {
		t.Fatalf("RemoveFiles: %v", err)
	}
	// Remove the dropped file from disk too, so it does not resurface as
	// untracked.
	if err := os.Remove(filepath.Join(r.RootDir, "dropped.txt")); err != nil {
		t.Fatalf("remove: %v", err)
	}

	st := statusByPath(t, r)

	// Test 1: staged modification.
	if e := st["edited.txt"]; e.Staged != StateModified || e.Worktree != StateUnchanged {
		t.Fatalf("edited.txt = %v/%v, want modified/unchanged", e.Staged, e.Worktree)
	}
	// Test 2: staged new file.
	if e := st["fresh.txt"]; e.Staged != StateNew {
		t.Fatalf("fresh.txt staged = %v, want new file", e.Staged)
	}
	// Test 3: staged deletion.
	if e := st["dropped.txt"]; e.Staged != StateDeleted {
		t.Fatalf("dropped.txt staged = %v, want deleted", e.Staged)
	}
	// Test 4: untouched file unchanged.
	if e := st["kept.txt"]; e.Staged != StateUnchanged || e.Worktree != StateUnchanged {
		t.Fatalf("kept.txt = %v/%v, want unchanged/unchanged", e.Staged, e.Worktree)
	}
}

func TestStatusUntrackedAndIgnored(t *testing.T) {
	r := newTestRepo(t)
	writeWorkFile(t, r, ".gritignore", "*.log\n")
	writeWorkFile(t, r, "tracked.txt", "t")
	if _, err := r.Add([]string{"tracked.txt"}); err != nil {
		t.Fatalf("Add: %v", err)
	}
	if _, err := r.Commit("base"); err != nil {
		t.Fatalf("Commit: %v", err)
	}

	writeWorkFile(t, r, "loose.txt", "untracked")
	writeWorkFile(t, r, "trace.log", "ignored")

	st := statusByPath(t, r)

	// Test 1: untracked file reported in both columns.
	if e := st["loose.txt"]; e.Staged != StateUntracked || e.Worktree != StateUntracked {
		t.Fatalf("loose.txt = %v/%v, want untracked/untracked", e.Staged, e.Worktree)
	}
	// Test 2: ignored file reported as ignored, never untracked.
	if e := st["trace.log"]; e.Staged != StateIgnored || e.Worktree != StateIgnored {
		t.Fatalf("trace.log = %v/%v, want ignored/ignored", e.Staged, e.Worktree)
	}
	// Test 3: the metadata directory never appears.
	if _, ok := st[".grit"]; ok {
		t.Fatalf(".grit must not appear in status")
	}
}

func TestStatusIgnoreRulesSkipTrackedFiles(t *testing.T) {
	r := newTestRepo(t)
	writeWorkFile(t, r, "a.txt", "stable")
	writeWorkFile(t, r, "build/gen.txt", "generated but committed")
	if _, err := r.Add([]string{"a.txt", "build/gen.txt"}); err != nil {
		t.Fatalf("Add: %v", err)
	}
	if _, err := r.Commit("base"); err != nil {
		t.Fatalf("Commit: %v", err)
	}

	// Rules that match both tracked files, added after the commit.
	writeWorkFile(t, r, ".gritignore", "a.txt\nbuild/\n")
	writeWorkFile(t, r, "build/scratch.txt", "untracked and ignored")

	st := statusByPath(t, r)

	// Test 1: tracked files stay tracked even when exclusion rules match
	// them; in particular they are not reported as deleted.
	if e := st["a.txt"]; e.Staged != StateUnchanged || e.Worktree != StateUnchanged {
		t.Fatalf("a.txt = %v/%v, want unchanged/unchanged", e.Staged, e.Worktree)
	}
	if e := st["build/gen.txt"]; e.Staged != StateUnchanged || e.Worktree != StateUnchanged {
		t.Fatalf("build/gen.txt = %v/%v, want unchanged/unchanged", e.Staged, e.Worktree)
	}

	// Test 2: untracked files under the same rules are still ignored.
	if e := st["build/scratch.txt"]; e.Staged != StateIgnored || e.Worktree != StateIgnored {
		t.Fatalf("build/scratch.txt = %v/%v, want ignored/ignored", e.Staged, e.Worktree)
	}

	// Test 3: an edit to a tracked file matching the rules is still seen.
	writeWorkFile(t, r, "a.txt", "edited")
	st = statusByPath(t, r)
	if e := st["a.txt"]; e.Worktree != StateModified {
		t.Fatalf("edited a.txt worktree = %v, want modified", e.Worktree)
	}
}

func TestStatusWorktreeDeleted(t *testing.T) {
	r := newTestRepo(t)
	writeWorkFile(t, r, "gone.txt", "bye")
	if _, err := r.Add([]string{"gone.txt"}); err != nil {
		t.Fatalf("Add: %v", err)
	}
	if _, err := r.Commit("base"); err != nil {
		t.Fatalf("Commit: %v", err)
	}

	if err := os.Remove(filepath.Join(r.RootDir, "gone.txt")); err != nil {
		t.Fatalf("remove: %v", err)
	}

	st := statusByPath(t, r)
	if e := st["gone.txt"]; e.Worktree != StateDeleted {
		t.Fatalf("gone.txt worktree = %v, want deleted", e.Worktree)
	}
}

func TestStatusWorktreeRename(t *testing.T) {
	r := newTestRepo(t)
	writeWorkFile(t, r, "old-name.txt", "same bytes")
	if _, err := r.Add([]string{"old-name.txt"}); err != nil {
		t.Fatalf("Add: %v", err)
	}
	if _, err := r.Commit("base"); err != nil {
		t.Fatalf("Commit: %v", err)
	}

	// Move the file on disk without touching the index.
	oldAbs := filepath.Join(r.RootDir, "old-name.txt")
	newAbs := filepath.Join(r.RootDir, "new-name.txt")
	if err := os.Rename(oldAbs, newAbs); err != nil {
		t.Fatalf("rename: %v", err)
	}

	st := statusByPath(t, r)
	e, ok := st["new-name.txt"]
	if !ok {
		t.Fatalf("new-name.txt missing from status: %v", st)
	}
	if e.Worktree != StateRenamed {
		t.Fatalf("new-name.txt worktree = %v, want renamed", e.Worktree)
	}
	if e.RenamedFrom != "old-name.txt" {
		t.Fatalf("RenamedFrom = %q, want old-name.txt", e.RenamedFrom)
	}
	if got := e.DisplayPath(); got != "old-name.txt -> new-name.txt" {
		t.Fatalf("DisplayPath = %q", got)
	}
	// The old path must not also be reported as a worktree deletion.
	if old, ok := st["old-name.txt"]; ok && old.Worktree == StateDeleted {
		t.Fatalf("old-name.txt reported deleted despite rename pairing")
	}
}

func TestStatusStagedRename(t *testing.T) {
	r := newTestRepo(t)
	writeWorkFile(t, r, "before.txt", "stable content")
	if _, err := r.Add([]string{"before.txt"}); err != nil {
		t.Fatalf("Add: %v", err)
	}
	if _, err := r.Commit("base"); err != nil {
		t.Fatalf("Commit: %v", err)
	}

	// Stage the rename: move on disk, stage the new path, drop the old entry.
	if err := os.Rename(
		filepath.Join(r.RootDir, "before.txt"),
		filepath.Join(r.RootDir, "after.txt"),
	); err != nil {
		t.Fatalf("rename: %v", err)
	}
	if _, err := r.Add([]string{"after.txt"}); err != nil {
		t.Fatalf("Add: %v", err)
	}
	if err := r.RemoveFiles([]string{"before.txt"}); err != nil {
		t.Fatalf("RemoveFiles: %v", err)
	}

	st := statusByPath(t, r)
	e, ok := st["after.txt"]
	if !ok {
		t.Fatalf("after.txt missing from status: %v", st)
	}
	if e.Staged != StateRenamed {
		t.Fatalf("after.txt staged = %v, want renamed", e.Staged)
	}
	if e.RenamedFrom != "before.txt" {
		t.Fatalf("RenamedFrom = %q, want before.txt", e.RenamedFrom)
	}
	// The old path must not also be reported as a staged deletion.
	if old, ok := st["before.txt"]; ok && old.Staged == StateDeleted {
		t.Fatalf("before.txt reported deleted despite rename pairing")
	}
}

func TestStatusRenameTieBreakIsLexicographic(t *testing.T) {
	r := newTestRepo(t)
	writeWorkFile(t, r, "a1.txt", "dup content")
	writeWorkFile(t, r, "a2.txt", "dup content")
	if _, err := r.Add([]string{"a1.txt", "a2.txt"}); err != nil {
		t.Fatalf("Add: %v", err)
	}
	if _, err := r.Commit("base"); err != nil {
		t.Fatalf("Commit: %v", err)
	}

	// Move both equal-content files; pairing is by sorted order.
	for _, mv := range [][2]string{{"a1.txt", "b1.txt"}, {"a2.txt", "b2.txt"}} {
		if err := os.Rename(
			filepath.Join(r.RootDir, mv[0]),
			filepath.Join(r.RootDir, mv[1]),
		); err != nil {
			t.Fatalf("rename %s: %v", mv[0], err)
		}
	}

	st := statusByPath(t, r)
	if e := st["b1.txt"]; e.RenamedFrom != "a1.txt" {
		t.Fatalf("b1.txt RenamedFrom = %q, want a1.txt", e.RenamedFrom)
	}
	if e := st["b2.txt"]; e.RenamedFrom != "a2.txt" {
		t.Fatalf("b2.txt RenamedFrom = %q, want a2.txt", e.RenamedFrom)
	}
}

func TestStatusTypeChanged(t *testing.T) {
	r := newTestRepo(t)
	writeWorkFile(t, r, "tool.sh", "#!/bin/sh\n")
	if _, err := r.Add([]string{"tool.sh"}); err != nil {
		t.Fatalf("Add: %v", err)
	}
	if _, err := r.Commit("base"); err != nil {
		t.Fatalf("Commit: %v", err)
	}

	// Test 1: flipping the executable bit with identical content is a
	// worktree typechange, not a modification.
	if err := os.Chmod(filepath.Join(r.RootDir, "tool.sh"), 0o755); err != nil {
		t.Fatalf("chmod: %v", err)
	}
	st := statusByPath(t, r)
	if e := st["tool.sh"]; e.Worktree != StateTypeChanged {
		t.Fatalf("tool.sh worktree = %v, want typechanged", e.Worktree)
	}

	// Test 2: staging the same blob under the executable mode is a staged
	// typechange against HEAD.
	idx, err := r.ReadIndex()
	if err != nil {
		t.Fatalf("ReadIndex: %v", err)
	}
	blobHash := idx.Entries["tool.sh"].BlobHash
	if err := r.Stage("tool.sh", blobHash, object.TreeModeExecutable); err != nil {
		t.Fatalf("Stage: %v", err)
	}
	st = statusByPath(t, r)
	if e := st["tool.sh"]; e.Staged != StateTypeChanged {
		t.Fatalf("tool.sh staged = %v, want typechanged", e.Staged)
	}
}
