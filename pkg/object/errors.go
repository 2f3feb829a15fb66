package object

import "errors"

// ErrNotFound indicates a lookup for an object id that is not in the store.
// This is the only error a caller should treat as a plain miss.
var ErrNotFound = errors.New("object not found")

// ErrCorrupt indicates an integrity violation: the on-disk bytes of an object
// do not hash back to the id they are filed under, or the envelope is
// malformed. It is fatal to the operation in progress but never damages the
// store itself, which is append-only.
var ErrCorrupt = errors.New("object corrupt")
