package repo

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/gritvcs/grit/pkg/object"
)

// Commit creates a new commit from the current staging area.
//
//  1. Read the index
//  2. BuildTree from the index (an empty index yields the empty tree)
//  3. Resolve HEAD to get the parent commit hash (if any)
//  4. Create CommitObj with tree hash, parent, configured identity, message
//  5. Write the commit to the store
//  6. Advance the current branch ref (or detached HEAD) to the new hash
//
// An empty message is rejected with ErrEmptyCommitMessage unless the
// repository config sets commit.allow_empty_message. Commits whose tree is
// identical to the parent's are permitted: the staging area, not the diff,
// decides what gets committed.
func (r *Repo) Commit(message string) (object.Hash, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.commitLocked(message)
}

func (r *Repo) commitLocked(message string) (object.Hash, error) {
	cfg, err := r.ReadConfig()
	if err != nil {
		return "", fmt.Errorf("commit: %w", err)
	}
	if strings.TrimSpace(message) == "" && !cfg.Commit.AllowEmptyMessage {
		return "", fmt.Errorf("commit: %w", ErrEmptyCommitMessage)
	}

	idx, err := r.ReadIndex()
	if err != nil {
		return "", fmt.Errorf("commit: %w", err)
	}

	treeHash, err := r.BuildTree(idx)
	if err != nil {
		return "", fmt.Errorf("commit: %w", err)
	}

	// Resolve HEAD to get the parent (absent for the root commit).
	var parents []object.Hash
	parentHash, err := r.ResolveRef("HEAD")
	if err == nil && parentHash != "" {
		parents = append(parents, parentHash)
	} else if err != nil && !errors.Is(err, ErrUnknownReference) {
		return "", fmt.Errorf("commit: resolve HEAD: %w", err)
	}

	sig, err := r.signature()
	if err != nil {
		return "", fmt.Errorf("commit: %w", err)
	}

	now := time.Now().Unix()
	commitObj := &object.CommitObj{
		TreeHash:           treeHash,
		Parents:            parents,
		Author:             sig,
		Timestamp:          now,
		Committer:          sig,
		CommitterTimestamp: now,
		Message:            message,
	}

	commitHash, err := r.Store.WriteCommit(commitObj)
	if err != nil {
		return "", fmt.Errorf("commit: write commit: %w", err)
	}

	// Advance the current branch ref.
	head, err := r.Head()
	if err != nil {
		return "", fmt.Errorf("commit: read HEAD: %w", err)
	}

	// head is either a ref path ("refs/heads/main") or a detached hash.
	if strings.HasPrefix(head, "refs/") {
		var updateErr error
		if parentHash == "" {
			updateErr = r.UpdateRefCAS(head, commitHash)
		} else {
			updateErr = r.UpdateRefCAS(head, commitHash, parentHash)
		}
		if updateErr != nil {
			return "", fmt.Errorf("commit: update ref %q: %w", head, updateErr)
		}
	} else {
		// Detached HEAD: update HEAD directly with a CAS against the old hash.
		if err := r.UpdateRefCAS("HEAD", commitHash, object.Hash(strings.TrimSpace(head))); err != nil {
			return "", fmt.Errorf("commit: update detached HEAD: %w", err)
		}
	}

	r.log.Debug("commit created",
		zap.String("hash", string(commitHash)),
		zap.String("tree", string(treeHash)),
		zap.Int("parents", len(parents)))
	return commitHash, nil
}

// NthAncestor walks first-parent history from start. n == 0 returns start
// itself. If the chain has fewer than n ancestors, ErrInsufficientHistory is
// returned: callers can tell "reset too far" apart from success, and nothing
// is truncated silently.
func (r *Repo) NthAncestor(start object.Hash, n uint) (object.Hash, error) {
	current := start
	for i := uint(0); i < n; i++ {
		c, err := r.Store.ReadCommit(current)
		if err != nil {
			return "", fmt.Errorf("ancestor %d of %s: %w", n, start, err)
		}
		if len(c.Parents) == 0 {
			return "", fmt.Errorf("ancestor %d of %s: only %d generations available: %w",
				n, start, i, ErrInsufficientHistory)
		}
		current = c.Parents[0]
	}
	// Validate the endpoint exists even for n == 0.
	if _, err := r.Store.ReadCommit(current); err != nil {
		return "", fmt.Errorf("ancestor %d of %s: %w", n, start, err)
	}
	return current, nil
}

// Log walks the commit history starting from the given hash, following
// first-parent links, returning up to limit commits in reverse-chronological
// order (newest first).
func (r *Repo) Log(start object.Hash, limit int) ([]*object.CommitObj, error) {
	var commits []*object.CommitObj
	current := start

	for len(commits) < limit {
		c, err := r.Store.ReadCommit(current)
		if err != nil {
			if errors.Is(err, object.ErrNotFound) && len(commits) > 0 {
				// Truncated history (e.g. partial clone): stop at the edge.
				break
			}
			return nil, fmt.Errorf("log: read commit %s: %w", current, err)
		}
		commits = append(commits, c)

		// Follow first parent.
		if len(c.Parents) == 0 {
			break
		}
		current = c.Parents[0]
	}

	return commits, nil
}

// LastCommitMessage returns the message of the commit HEAD points at.
func (r *Repo) LastCommitMessage() (string, error) {
	headHash, err := r.ResolveRef("HEAD")
	if err != nil {
		return "", fmt.Errorf("last commit message: %w", err)
	}
	c, err := r.Store.ReadCommit(headHash)
	if err != nil {
		return "", fmt.Errorf("last commit message: %w", err)
	}
	return c.Message, nil
}
