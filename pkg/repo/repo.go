package repo

import (
	"sync"

	"go.uber.org/zap"

	"github.com/gritvcs/grit/pkg/object"
)

// Repo represents an opened grit repository.
//
// A Repo is a per-repository handle with no hidden global state: the object
// store lives for exactly as long as the handle. Mutating operations (stage,
// commit, reset, checkout) are serialized by a writer lock on the handle;
// read-only operations may run concurrently with each other but not with a
// mutation.
type Repo struct {
	RootDir string        // working directory root
	GritDir string        // .grit/ directory
	Store   *object.Store // content-addressed object store

	log *zap.Logger
	mu  sync.Mutex // writer lock for mutating operations
}

// Option configures an opened repository handle.
type Option func(*Repo)

// WithLogger attaches a structured logger to the handle. The default is a
// no-op logger.
func WithLogger(l *zap.Logger) Option {
	return func(r *Repo) {
		if l != nil {
			r.log = l
		}
	}
}

func newRepo(rootDir, gritDir string, opts ...Option) *Repo {
	r := &Repo{
		RootDir: rootDir,
		GritDir: gritDir,
		Store:   object.NewStore(gritDir),
		log:     zap.NewNop(),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}
