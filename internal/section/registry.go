package section

import (
	"sync"

	"github.com/VitaminP8/commentree/internal/comment"
	lru "github.com/hashicorp/golang-lru/v2"
	"go.uber.org/zap"
)

// DefaultMaxSections bounds a Registry created with MaxSections 0.
const DefaultMaxSections = 1024

type key struct {
	viewer uint
	postID string
}

// Registry hands out one Section per viewer and post. Sections never share a
// forest, so two viewers of the same post see their own votes. The least
// recently used section is dropped once the registry is full.
type Registry struct {
	mu       sync.Mutex
	sections *lru.Cache[key, *Section]
	api      comment.CommentStorage
	cfg      Config
	logger   *zap.Logger
}

func NewRegistry(api comment.CommentStorage, cfg Config, logger *zap.Logger) *Registry {
	if logger == nil {
		logger = zap.NewNop()
	}
	size := cfg.MaxSections
	if size <= 0 {
		size = DefaultMaxSections
	}

	r := &Registry{api: api, cfg: cfg, logger: logger}
	// only fails for a non-positive size
	r.sections, _ = lru.NewWithEvict(size, func(k key, _ *Section) {
		logger.Debug("comment section evicted", zap.Uint("viewer", k.viewer), zap.String("post_id", k.postID))
	})
	return r
}

// Get returns the section of (viewer, postID), creating an empty one on first use.
func (r *Registry) Get(viewer uint, postID string) *Section {
	r.mu.Lock()
	defer r.mu.Unlock()

	k := key{viewer: viewer, postID: postID}
	if s, ok := r.sections.Get(k); ok {
		return s
	}
	cfg := r.cfg
	cfg.Viewer = viewer
	s := New(postID, r.api, cfg, r.logger.With(zap.Uint("viewer", viewer)))
	r.sections.Add(k, s)
	return s
}

// Release drops s if it is still the viewer's section and never loaded its
// roots. Callers use it after a failed request so unknown posts leave nothing
// behind.
func (r *Registry) Release(viewer uint, s *Section) {
	r.mu.Lock()
	defer r.mu.Unlock()

	k := key{viewer: viewer, postID: s.PostID()}
	cur, ok := r.sections.Peek(k)
	if !ok || cur != s || s.Snapshot().Loaded {
		return
	}
	r.sections.Remove(k)
}

// Forget drops a section so the next Get starts from an empty forest.
func (r *Registry) Forget(viewer uint, postID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sections.Remove(key{viewer: viewer, postID: postID})
}

func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.sections.Len()
}
