package object

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
)

// Test: get(put(c)) == c and put is idempotent (same hash, no error).
func TestStore_WriteReadRoundTrip(t *testing.T) {
	s := NewStore(t.TempDir())

	content := []byte("hello grit\n")
	h1, err := s.Write(TypeBlob, content)
	if err != nil {
		t.Fatalf("Write: %v", err)
	}
	h2, err := s.Write(TypeBlob, content)
	if err != nil {
		t.Fatalf("Write (second): %v", err)
	}
	if h1 != h2 {
		t.Errorf("idempotent write returned different hashes: %s vs %s", h1, h2)
	}

	objType, got, err := s.Read(h1)
	if err != nil {
		t.Fatalf("Read: %v", err)
	}
	if objType != TypeBlob {
		t.Errorf("type = %q, want %q", objType, TypeBlob)
	}
	if string(got) != string(content) {
		t.Errorf("content = %q, want %q", got, content)
	}
}

// Test: same bytes under different kinds address different objects.
func TestStore_KindDiscriminatesHash(t *testing.T) {
	s := NewStore(t.TempDir())

	data := []byte("x 100644 - -\n")
	hBlob, err := s.Write(TypeBlob, data)
	if err != nil {
		t.Fatalf("Write blob: %v", err)
	}
	hTree, err := s.Write(TypeTree, data)
	if err != nil {
		t.Fatalf("Write tree: %v", err)
	}
	if hBlob == hTree {
		t.Errorf("blob and tree with same payload share hash %s", hBlob)
	}
}

func TestStore_ReadMissing_ErrNotFound(t *testing.T) {
	s := NewStore(t.TempDir())

	_, _, err := s.Read(HashBytes([]byte("never stored")))
	if !errors.Is(err, ErrNotFound) {
		t.Errorf("Read missing: err = %v, want ErrNotFound", err)
	}
	if s.Has(HashBytes([]byte("also never stored"))) {
		t.Error("Has reported true for a missing object")
	}
}

// Test: an object whose bytes do not hash back to its id reads as ErrCorrupt.
func TestStore_ReadTampered_ErrCorrupt(t *testing.T) {
	root := t.TempDir()
	s := NewStore(root)

	hA, err := s.Write(TypeBlob, []byte("content A"))
	if err != nil {
		t.Fatalf("Write A: %v", err)
	}
	hB, err := s.Write(TypeBlob, []byte("content B"))
	if err != nil {
		t.Fatalf("Write B: %v", err)
	}

	// File B's bytes under A's id: valid envelope, wrong hash.
	bBytes, err := os.ReadFile(s.objectPath(hB))
	if err != nil {
		t.Fatalf("read B file: %v", err)
	}
	if err := os.WriteFile(s.objectPath(hA), bBytes, 0o644); err != nil {
		t.Fatalf("overwrite A file: %v", err)
	}

	_, _, err = s.Read(hA)
	if !errors.Is(err, ErrCorrupt) {
		t.Errorf("Read tampered: err = %v, want ErrCorrupt", err)
	}
}

func TestStore_ReadGarbage_ErrCorrupt(t *testing.T) {
	root := t.TempDir()
	s := NewStore(root)

	h, err := s.Write(TypeBlob, []byte("payload"))
	if err != nil {
		t.Fatalf("Write: %v", err)
	}
	if err := os.WriteFile(s.objectPath(h), []byte("not zstd at all"), 0o644); err != nil {
		t.Fatalf("overwrite: %v", err)
	}

	_, _, err = s.Read(h)
	if !errors.Is(err, ErrCorrupt) {
		t.Errorf("Read garbage: err = %v, want ErrCorrupt", err)
	}
}

func TestStore_TypedHelpers_TypeMismatch(t *testing.T) {
	s := NewStore(t.TempDir())

	h, err := s.WriteBlob(&Blob{Data: []byte("blob data")})
	if err != nil {
		t.Fatalf("WriteBlob: %v", err)
	}
	if _, err := s.ReadTree(h); err == nil {
		t.Error("ReadTree on a blob hash succeeded, want type mismatch error")
	}
	if _, err := s.ReadCommit(h); err == nil {
		t.Error("ReadCommit on a blob hash succeeded, want type mismatch error")
	}
}

func TestStore_FanOutLayout(t *testing.T) {
	root := t.TempDir()
	s := NewStore(root)

	h, err := s.Write(TypeBlob, []byte("fan out"))
	if err != nil {
		t.Fatalf("Write: %v", err)
	}

	want := filepath.Join(root, "objects", string(h[:2]), string(h[2:]))
	if _, err := os.Stat(want); err != nil {
		t.Errorf("object file not at fan-out path %s: %v", want, err)
	}
}

func TestReachableSet(t *testing.T) {
	s := NewStore(t.TempDir())

	blobHash, err := s.WriteBlob(&Blob{Data: []byte("file content")})
	if err != nil {
		t.Fatalf("WriteBlob: %v", err)
	}
	treeHash, err := s.WriteTree(&TreeObj{Entries: []TreeEntry{
		{Name: "a.txt", Mode: TreeModeFile, BlobHash: blobHash},
	}})
	if err != nil {
		t.Fatalf("WriteTree: %v", err)
	}
	commitHash, err := s.WriteCommit(&CommitObj{
		TreeHash: treeHash,
		Author:   "tester <t@example.com>",
		Message:  "initial",
	})
	if err != nil {
		t.Fatalf("WriteCommit: %v", err)
	}

	// An unrelated loose blob must not be reachable.
	looseHash, err := s.WriteBlob(&Blob{Data: []byte("orphan")})
	if err != nil {
		t.Fatalf("WriteBlob loose: %v", err)
	}

	set, err := s.ReachableSet([]Hash{commitHash})
	if err != nil {
		t.Fatalf("ReachableSet: %v", err)
	}

	for _, h := range []Hash{commitHash, treeHash, blobHash} {
		if _, ok := set[h]; !ok {
			t.Errorf("hash %s missing from reachable set", h)
		}
	}
	if _, ok := set[looseHash]; ok {
		t.Errorf("loose blob %s unexpectedly reachable", looseHash)
	}
	if len(set) != 3 {
		t.Errorf("reachable set size = %d, want 3", len(set))
	}
}
