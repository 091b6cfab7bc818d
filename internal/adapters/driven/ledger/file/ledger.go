// Package file implements the processed-file ledger as an
// append-only JSONL file with an in-memory lookup set.
package file

import (
	"bufio"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/custodia-labs/ragdoll/internal/core/domain"
	"github.com/custodia-labs/ragdoll/internal/core/ports/driven"
)

// FileName is the ledger file inside a collection directory.
const FileName = "processed.jsonl"

type identity struct {
	path  string
	mtime int64
	size  int64
}

// Ledger is the JSONL-backed processed-file ledger for one
// collection. All operations are safe for concurrent use.
type Ledger struct {
	path string

	mu   sync.Mutex
	seen map[identity]struct{}
}

var _ driven.ProcessedLedger = (*Ledger)(nil)

// Open loads (or creates) the ledger at dir/processed.jsonl.
// Unparseable lines are skipped, a truncated trailing line from a
// crash must not poison the whole ledger.
func Open(dir string) (*Ledger, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("creating collection directory: %w", err)
	}

	l := &Ledger{
		path: filepath.Join(dir, FileName),
		seen: make(map[identity]struct{}),
	}

	f, err := os.Open(l.path)
	if err != nil {
		if os.IsNotExist(err) {
			return l, nil
		}
		return nil, fmt.Errorf("opening ledger: %w", err)
	}
	defer f.Close()

	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		var rec domain.ProcessedRecord
		if err := json.Unmarshal(scanner.Bytes(), &rec); err != nil {
			continue
		}
		l.seen[identity{rec.Path, rec.MTimeNanos, rec.Size}] = struct{}{}
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("reading ledger: %w", err)
	}
	return l, nil
}

// Contains reports whether the exact identity tuple is recorded.
func (l *Ledger) Contains(path string, mtimeNanos, size int64) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	_, ok := l.seen[identity{path, mtimeNanos, size}]
	return ok
}

// Mark appends the tuple to the ledger file and the in-memory set.
func (l *Ledger) Mark(path string, mtimeNanos, size int64) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	id := identity{path, mtimeNanos, size}
	if _, ok := l.seen[id]; ok {
		return nil
	}

	line, err := json.Marshal(domain.ProcessedRecord{Path: path, MTimeNanos: mtimeNanos, Size: size})
	if err != nil {
		return fmt.Errorf("encoding ledger record: %w", err)
	}

	f, err := os.OpenFile(l.path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return fmt.Errorf("opening ledger: %w", err)
	}
	defer f.Close()

	if _, err := f.Write(append(line, '\n')); err != nil {
		return fmt.Errorf("appending ledger record: %w", err)
	}

	l.seen[id] = struct{}{}
	return nil
}

// Unmark removes every record addressed by match, full path, base
// filename or flattened storage name, rewriting the ledger file.
// Returns the number removed.
func (l *Ledger) Unmark(match string) (int, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	removed := 0
	kept := make([]identity, 0, len(l.seen))
	for id := range l.seen {
		if pathMatches(id.path, match) {
			removed++
			continue
		}
		kept = append(kept, id)
	}
	if removed == 0 {
		return 0, nil
	}

	tmp := l.path + ".tmp"
	f, err := os.OpenFile(tmp, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o644)
	if err != nil {
		return 0, fmt.Errorf("opening ledger temp file: %w", err)
	}
	w := bufio.NewWriter(f)
	for _, id := range kept {
		line, err := json.Marshal(domain.ProcessedRecord{Path: id.path, MTimeNanos: id.mtime, Size: id.size})
		if err != nil {
			f.Close()
			return 0, fmt.Errorf("encoding ledger record: %w", err)
		}
		if _, err := w.Write(append(line, '\n')); err != nil {
			f.Close()
			return 0, fmt.Errorf("writing ledger record: %w", err)
		}
	}
	if err := w.Flush(); err != nil {
		f.Close()
		return 0, fmt.Errorf("flushing ledger: %w", err)
	}
	if err := f.Close(); err != nil {
		return 0, fmt.Errorf("closing ledger temp file: %w", err)
	}
	if err := os.Rename(tmp, l.path); err != nil {
		return 0, fmt.Errorf("replacing ledger: %w", err)
	}

	l.seen = make(map[identity]struct{}, len(kept))
	for _, id := range kept {
		l.seen[id] = struct{}{}
	}
	return removed, nil
}

// pathMatches reports whether a record path is addressed by match.
// Nested files are stored under a flattened name (path segments below
// the collection joined with "_"), so that name must also reach the
// record.
func pathMatches(path, match string) bool {
	if path == match || filepath.Base(path) == match {
		return true
	}
	parts := strings.Split(filepath.ToSlash(path), "/")
	for k := 2; k <= len(parts); k++ {
		if strings.Join(parts[len(parts)-k:], "_") == match {
			return true
		}
	}
	return false
}
