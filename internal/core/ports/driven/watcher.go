package driven

import "context"

// Watcher reports file paths appearing under the watch root. It only
// observes and enqueues; it never touches storage.
type Watcher interface {
	// Watch blocks, sending candidate file paths to emit until ctx is
	// cancelled. Implementations deliver created and renamed-in
	// files; filtering (reserved subtrees, unsupported extensions)
	// is the caller's job via the ShouldEnqueue predicate it installs.
	Watch(ctx context.Context, emit func(path string)) error
}
