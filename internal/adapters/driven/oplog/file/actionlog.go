// Package file implements the per-collection action and garbage logs
// as append-only JSONL files. Both logs are diagnostics: writes never
// fail the caller.
package file

import (
	"encoding/json"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/custodia-labs/ragdoll/internal/core/domain"
	"github.com/custodia-labs/ragdoll/internal/core/ports/driven"
	"github.com/custodia-labs/ragdoll/internal/logger"
)

// Log file names inside a collection directory.
const (
	ActionLogFileName  = "action.log"
	GarbageLogFileName = "garbage.log"
)

// ActionLog appends pipeline action records to action.log. Callers
// must not pass embeddings or full document text in fields.
type ActionLog struct {
	path string
	mu   sync.Mutex
}

var _ driven.ActionLog = (*ActionLog)(nil)

// NewActionLog creates the action log for one collection directory.
func NewActionLog(dir string) *ActionLog {
	return &ActionLog{path: filepath.Join(dir, ActionLogFileName)}
}

// Log appends one record. Write errors are logged to the console and
// swallowed.
func (l *ActionLog) Log(action string, fields map[string]any) {
	rec := make(map[string]any, len(fields)+2)
	for k, v := range fields {
		rec[k] = v
	}
	rec["ts"] = time.Now().UTC().Format(time.RFC3339Nano)
	rec["action"] = action

	line, err := json.Marshal(rec)
	if err != nil {
		logger.Warn("action log: encoding record: %v", err)
		return
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	appendLine(l.path, line)
}

// GarbageLog appends rejected-chunk records to garbage.log.
type GarbageLog struct {
	path string
	mu   sync.Mutex
}

var _ driven.GarbageLog = (*GarbageLog)(nil)

// NewGarbageLog creates the garbage log for one collection directory.
func NewGarbageLog(dir string) *GarbageLog {
	return &GarbageLog{path: filepath.Join(dir, GarbageLogFileName)}
}

// Append writes one rejection entry. Write errors are logged to the
// console and swallowed.
func (l *GarbageLog) Append(entry domain.GarbageEntry) {
	line, err := json.Marshal(entry)
	if err != nil {
		logger.Warn("garbage log: encoding entry: %v", err)
		return
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	appendLine(l.path, line)
}

func appendLine(path string, line []byte) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		logger.Warn("log: creating directory: %v", err)
		return
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		logger.Warn("log: opening %s: %v", path, err)
		return
	}
	defer f.Close()
	if _, err := f.Write(append(line, '\n')); err != nil {
		logger.Warn("log: appending to %s: %v", path, err)
	}
}
