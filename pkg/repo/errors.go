package repo

import "errors"

var (
	// ErrIndexCorrupt indicates the on-disk index could not be parsed.
	// Loading is all-or-nothing: no partial index is ever returned.
	ErrIndexCorrupt = errors.New("index corrupt")

	// ErrUnknownReference indicates a ref name that resolves to nothing.
	ErrUnknownReference = errors.New("unknown reference")

	// ErrInsufficientHistory indicates an ancestry walk that ran out of
	// first-parent ancestors before reaching the requested generation.
	ErrInsufficientHistory = errors.New("insufficient history")

	// ErrEmptyCommitMessage indicates a commit attempt with an empty message
	// while the repository config requires one.
	ErrEmptyCommitMessage = errors.New("empty commit message")

	// ErrPathOutsideRepository indicates a path argument that escapes the
	// repository root.
	ErrPathOutsideRepository = errors.New("path outside repository")

	// ErrGlobSyntax indicates a malformed glob pattern.
	ErrGlobSyntax = errors.New("glob syntax error")

	// ErrRefCASMismatch indicates a ref update whose expected old value did
	// not match the ref's current value.
	ErrRefCASMismatch = errors.New("ref compare-and-swap mismatch")
)
