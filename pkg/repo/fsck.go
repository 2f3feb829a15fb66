package repo

import (
	"errors"
	"fmt"
	"sort"

	"go.uber.org/zap"

	"github.com/gritvcs/grit/pkg/object"
)

// FsckIssue describes one problem found during an integrity walk.
type FsckIssue struct {
	Hash object.Hash // affected object, empty for ref-level issues
	Ref  string      // ref that rooted the walk, empty for shared objects
	Err  error       // wraps object.ErrCorrupt / object.ErrNotFound
}

func (i FsckIssue) String() string {
	switch {
	case i.Ref != "" && i.Hash != "":
		return fmt.Sprintf("%s (via %s): %v", i.Hash, i.Ref, i.Err)
	case i.Ref != "":
		return fmt.Sprintf("ref %s: %v", i.Ref, i.Err)
	default:
		return fmt.Sprintf("%s: %v", i.Hash, i.Err)
	}
}

// Fsck verifies every object reachable from HEAD and all refs: each object is
// read back (which re-hashes and re-parses it) and its outgoing references
// are checked for existence. The walk continues past bad objects so a single
// corruption reports everything it breaks, not just the first failure.
//
// A nil slice means the repository is consistent.
func (r *Repo) Fsck() ([]FsckIssue, error) {
	refs, err := r.ListRefs("refs/")
	if err != nil {
		return nil, fmt.Errorf("fsck: %w", err)
	}

	roots := make(map[object.Hash]string, len(refs)+1)
	refNames := make([]string, 0, len(refs))
	for name := range refs {
		refNames = append(refNames, name)
	}
	sort.Strings(refNames)
	for _, name := range refNames {
		if _, seen := roots[refs[name]]; !seen {
			roots[refs[name]] = name
		}
	}

	var issues []FsckIssue
	if headHash, err := r.ResolveRef("HEAD"); err == nil {
		if _, seen := roots[headHash]; !seen {
			roots[headHash] = "HEAD"
		}
	} else if !errors.Is(err, ErrUnknownReference) {
		issues = append(issues, FsckIssue{Ref: "HEAD", Err: err})
	}

	visited := make(map[object.Hash]bool)
	for _, name := range append(refNames, "HEAD") {
		for h, rootRef := range roots {
			if rootRef != name {
				continue
			}
			issues = append(issues, r.fsckWalk(h, rootRef, visited)...)
		}
	}

	sort.Slice(issues, func(i, j int) bool {
		if issues[i].Hash != issues[j].Hash {
			return issues[i].Hash < issues[j].Hash
		}
		return issues[i].Ref < issues[j].Ref
	})

	r.log.Debug("fsck finished",
		zap.Int("roots", len(roots)),
		zap.Int("objects", len(visited)),
		zap.Int("issues", len(issues)))
	return issues, nil
}

func (r *Repo) fsckWalk(root object.Hash, rootRef string, visited map[object.Hash]bool) []FsckIssue {
	var issues []FsckIssue

	stack := []object.Hash{root}
	for len(stack) > 0 {
		h := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		if h == "" || visited[h] {
			continue
		}
		visited[h] = true

		objType, data, err := r.Store.Read(h)
		if err != nil {
			issues = append(issues, FsckIssue{Hash: h, Ref: rootRef, Err: err})
			continue
		}

		refs, err := object.ReferencedHashes(objType, data)
		if err != nil {
			issues = append(issues, FsckIssue{
				Hash: h,
				Ref:  rootRef,
				Err:  fmt.Errorf("parse %s object: %w", objType, errors.Join(object.ErrCorrupt, err)),
			})
			continue
		}
		stack = append(stack, refs...)
	}

	return issues
}
