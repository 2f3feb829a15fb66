package repo

import (
	"errors"
	"testing"
)

func TestResetHardRewindsHistory(t *testing.T) {
	r := newTestRepo(t)
	c1 := commitFile(t, r, "a.txt", "v1", "first")
	commitFile(t, r, "a.txt", "v2", "second")
	writeWorkFile(t, r, "extra.txt", "never committed")

	if err := r.ResetHard(1); err != nil {
		t.Fatalf("ResetHard: %v", err)
	}

	// Test 1: HEAD rewound one generation.
	head, err := r.ResolveRef("HEAD")
	if err != nil {
		t.Fatalf("ResolveRef: %v", err)
	}
	if head != c1 {
		t.Fatalf("HEAD = %s, want %s", head, c1)
	}

	// Test 2: worktree and index match the target commit.
	if got := readWorkFile(t, r, "a.txt"); got != "v1" {
		t.Fatalf("a.txt = %q, want v1", got)
	}
	idx, err := r.ReadIndex()
	if err != nil {
		t.Fatalf("ReadIndex: %v", err)
	}
	if len(idx.Entries) != 1 || idx.Entries["a.txt"] == nil {
		t.Fatalf("index = %v, want only a.txt", idx.Entries)
	}
}

func TestResetHardInsufficientHistoryLeavesStateUntouched(t *testing.T) {
	r := newTestRepo(t)
	c1 := commitFile(t, r, "a.txt", "v1", "first")
	c2 := commitFile(t, r, "a.txt", "v2", "second")
	_ = c1

	// Worktree dirt that a partial reset would destroy.
	writeWorkFile(t, r, "a.txt", "dirty")

	err := r.ResetHard(5)
	if !errors.Is(err, ErrInsufficientHistory) {
		t.Fatalf("ResetHard(5): err = %v, want ErrInsufficientHistory", err)
	}

	// Test 1: HEAD did not move.
	head, err := r.ResolveRef("HEAD")
	if err != nil {
		t.Fatalf("ResolveRef: %v", err)
	}
	if head != c2 {
		t.Fatalf("HEAD = %s, want %s (unchanged)", head, c2)
	}
	// Test 2: the worktree was not touched.
	if got := readWorkFile(t, r, "a.txt"); got != "dirty" {
		t.Fatalf("a.txt = %q, want dirty (unchanged)", got)
	}
}

func TestResetHardZeroDiscardsLocalChanges(t *testing.T) {
	r := newTestRepo(t)
	c1 := commitFile(t, r, "a.txt", "v1", "first")

	writeWorkFile(t, r, "a.txt", "scratch")

	if err := r.ResetHard(0); err != nil {
		t.Fatalf("ResetHard(0): %v", err)
	}

	head, err := r.ResolveRef("HEAD")
	if err != nil {
		t.Fatalf("ResolveRef: %v", err)
	}
	if head != c1 {
		t.Fatalf("HEAD = %s, want %s", head, c1)
	}
	if got := readWorkFile(t, r, "a.txt"); got != "v1" {
		t.Fatalf("a.txt = %q, want v1", got)
	}
}

func TestResetIndexRestoresHeadEntries(t *testing.T) {
	r := newTestRepo(t)
	commitFile(t, r, "a.txt", "committed", "first")

	// Stage an edit and a new file, then reset the index.
	writeWorkFile(t, r, "a.txt", "staged edit")
	writeWorkFile(t, r, "new.txt", "staged new")
	if _, err := r.Add([]string{"a.txt", "new.txt"}); err != nil {
		t.Fatalf("Add: %v", err)
	}

	if err := r.ResetIndex(nil); err != nil {
		t.Fatalf("ResetIndex: %v", err)
	}

	idx, err := r.ReadIndex()
	if err != nil {
		t.Fatalf("ReadIndex: %v", err)
	}
	// Test 1: the HEAD file is back to its committed blob.
	blob, err := r.Store.ReadBlob(idx.Entries["a.txt"].BlobHash)
	if err != nil {
		t.Fatalf("ReadBlob: %v", err)
	}
	if string(blob.Data) != "committed" {
		t.Fatalf("a.txt index blob = %q, want committed", blob.Data)
	}
	// Test 2: the entry with no HEAD counterpart is gone.
	if idx.Entries["new.txt"] != nil {
		t.Fatalf("new.txt should be unstaged by ResetIndex")
	}
	// Test 3: the worktree keeps the local edits.
	if got := readWorkFile(t, r, "a.txt"); got != "staged edit" {
		t.Fatalf("a.txt = %q, worktree must be untouched", got)
	}
}

func TestResetIndexUnknownPath(t *testing.T) {
	r := newTestRepo(t)
	commitFile(t, r, "a.txt", "v1", "first")

	if err := r.ResetIndex([]string{"missing.txt"}); err == nil {
		t.Fatalf("ResetIndex with unknown path should fail")
	}
}
