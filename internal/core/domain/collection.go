package domain

import "strings"

// DefaultCollection is the collection for files dropped directly at
// the watch root.
const DefaultCollection = "_root"

// Reserved subdirectory names inside the watch root. Files under these
// are never enqueued.
const (
	ProcessedSubdir = "processed"
	FailedSubdir    = "failed"
)

// Layout of one collection directory under the data dir. The store
// file doubles as the discovery marker: a subdirectory holding one is
// a collection.
const (
	StoreFileName   = "ragdoll.db"
	SourcesSubdir   = "sources"
	ArtifactsSubdir = "artifacts"
	DeletedSubdir   = "deleted"
)

// SanitizeCollection maps an arbitrary directory name to a safe
// collection name. Empty names and path dots collapse to the default
// collection; any character outside [A-Za-z0-9_.-] becomes an
// underscore.
func SanitizeCollection(name string) string {
	if name == "" || name == "." || name == ".." {
		return DefaultCollection
	}
	var b strings.Builder
	b.Grow(len(name))
	for _, r := range name {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9':
			b.WriteRune(r)
		case r == '_' || r == '.' || r == '-':
			b.WriteRune(r)
		default:
			b.WriteRune('_')
		}
	}
	s := b.String()
	if s == "" || s == "." || s == ".." {
		return DefaultCollection
	}
	return s
}
