package sqlite

import (
	"context"
	"database/sql"
	"embed"
	"encoding/binary"
	"errors"
	"fmt"
	"io/fs"
	"math"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	_ "modernc.org/sqlite" // SQLite driver

	"github.com/custodia-labs/ragdoll/internal/adapters/driven/storage/sqlite/migrations"
	"github.com/custodia-labs/ragdoll/internal/core/domain"
	"github.com/custodia-labs/ragdoll/internal/core/ports/driven"
)

// DBFileName is the database file inside a collection directory.
const DBFileName = "ragdoll.db"

// Opener implements driven.ChunkStoreOpener.
type Opener struct{}

var _ driven.ChunkStoreOpener = Opener{}

// Open opens the chunk store for one collection directory.
func (Opener) Open(dir string) (driven.ChunkStore, error) {
	return Open(dir)
}

// Store is the SQLite-backed chunk store for one collection.
type Store struct {
	db   *sql.DB
	path string
}

var _ driven.ChunkStore = (*Store)(nil)

// Open creates or opens the store at dir/ragdoll.db, creating the
// directory and applying pending migrations as needed.
func Open(dir string) (*Store, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("creating collection directory: %w", err)
	}

	dbPath := filepath.Join(dir, DBFileName)

	// WAL mode for concurrent readers, busy timeout so the
	// reconciler's dedup surfaces ErrStoreBusy instead of hanging.
	db, err := sql.Open("sqlite", dbPath+"?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)")
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}

	if _, err := db.Exec("PRAGMA foreign_keys = ON"); err != nil {
		db.Close()
		return nil, fmt.Errorf("enabling foreign keys: %w", err)
	}

	s := &Store{db: db, path: dbPath}
	if err := s.migrate(migrations.FS); err != nil {
		db.Close()
		return nil, fmt.Errorf("running migrations: %w", err)
	}
	return s, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// Path returns the database file path.
func (s *Store) Path() string {
	return s.path
}

// migrate applies all pending migrations in version order, recording
// each applied version. Each migration runs in its own transaction.
func (s *Store) migrate(fsys embed.FS) error {
	_, err := s.db.Exec(`
		CREATE TABLE IF NOT EXISTS schema_migrations (
			version INTEGER PRIMARY KEY,
			applied_at DATETIME DEFAULT CURRENT_TIMESTAMP
		)
	`)
	if err != nil {
		return fmt.Errorf("creating schema_migrations table: %w", err)
	}

	var currentVersion int
	row := s.db.QueryRow("SELECT COALESCE(MAX(version), 0) FROM schema_migrations")
	if err := row.Scan(&currentVersion); err != nil {
		return fmt.Errorf("getting current version: %w", err)
	}

	entries, err := fs.ReadDir(fsys, ".")
	if err != nil {
		return fmt.Errorf("reading migrations directory: %w", err)
	}

	var upFiles []string
	for _, entry := range entries {
		if strings.HasSuffix(entry.Name(), ".up.sql") {
			upFiles = append(upFiles, entry.Name())
		}
	}
	sort.Strings(upFiles)

	for _, name := range upFiles {
		var version int
		if _, err := fmt.Sscanf(name, "%d_", &version); err != nil {
			continue
		}
		if version <= currentVersion {
			continue
		}

		content, err := fs.ReadFile(fsys, name)
		if err != nil {
			return fmt.Errorf("reading migration %s: %w", name, err)
		}

		tx, err := s.db.Begin()
		if err != nil {
			return fmt.Errorf("beginning migration %s: %w", name, err)
		}
		if _, err := tx.Exec(string(content)); err != nil {
			tx.Rollback()
			return fmt.Errorf("executing migration %s: %w", name, err)
		}
		if _, err := tx.Exec("INSERT INTO schema_migrations (version) VALUES (?)", version); err != nil {
			tx.Rollback()
			return fmt.Errorf("recording migration %s: %w", name, err)
		}
		if err := tx.Commit(); err != nil {
			return fmt.Errorf("committing migration %s: %w", name, err)
		}
	}
	return nil
}

// AddChunks stores one ingestion run's chunks within one
// transaction, get-or-creating the source row. Indices restart at 0
// per call; interrupted or retried runs leave duplicate
// (source, index) rows for Dedup to collapse.
func (s *Store) AddChunks(ctx context.Context, sourcePath, sourceType string, chunks []domain.Chunk) error {
	if len(chunks) == 0 {
		return nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return busyOr(fmt.Errorf("beginning transaction: %w", err), err)
	}
	defer tx.Rollback()

	sourceID, err := getOrCreateSource(ctx, tx, sourcePath, sourceType)
	if err != nil {
		return err
	}

	now := time.Now().UTC()
	for i, c := range chunks {
		created := c.CreatedAt
		if created.IsZero() {
			created = now
		}
		_, err := tx.ExecContext(ctx, `
			INSERT INTO chunks (source_id, chunk_index, text, embedding, artifact_type, artifact_path, page, created_at)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		`, sourceID, i, c.Text, float32SliceToBytes(c.Embedding),
			string(artifactOrText(c.Artifact)), c.ArtifactPath, nullPage(c.Page), created)
		if err != nil {
			return busyOr(fmt.Errorf("inserting chunk: %w", err), err)
		}
	}

	if err := tx.Commit(); err != nil {
		return busyOr(fmt.Errorf("committing chunks: %w", err), err)
	}
	return nil
}

// ListSources returns all sources with chunk counts, ordered by id.
func (s *Store) ListSources(ctx context.Context) ([]driven.SourceInfo, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT s.id, s.path, s.type, COUNT(c.id)
		FROM sources s
		LEFT JOIN chunks c ON c.source_id = s.id
		GROUP BY s.id
		ORDER BY s.id
	`)
	if err != nil {
		return nil, fmt.Errorf("querying sources: %w", err)
	}
	defer rows.Close()

	var infos []driven.SourceInfo //nolint:prealloc // size unknown from query
	for rows.Next() {
		var info driven.SourceInfo
		if err := rows.Scan(&info.Source.ID, &info.Source.Path, &info.Source.Type, &info.Chunks); err != nil {
			return nil, fmt.Errorf("scanning source: %w", err)
		}
		infos = append(infos, info)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating sources: %w", err)
	}
	return infos, nil
}

// GetSource retrieves a source by id.
func (s *Store) GetSource(ctx context.Context, id int64) (*domain.Source, error) {
	row := s.db.QueryRowContext(ctx, "SELECT id, path, type FROM sources WHERE id = ?", id)
	var src domain.Source
	if err := row.Scan(&src.ID, &src.Path, &src.Type); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.ErrNotFound
		}
		return nil, fmt.Errorf("scanning source: %w", err)
	}
	return &src, nil
}

// GetChunk retrieves one chunk by source id and index, without its
// embedding.
func (s *Store) GetChunk(ctx context.Context, sourceID int64, index int) (*driven.StoredChunk, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT c.id, c.source_id, c.chunk_index, c.text, c.artifact_type, c.artifact_path, c.page, c.created_at,
		       s.id, s.path, s.type
		FROM chunks c
		JOIN sources s ON s.id = c.source_id
		WHERE c.source_id = ? AND c.chunk_index = ?
		ORDER BY c.id
		LIMIT 1
	`, sourceID, index)

	var sc driven.StoredChunk
	var artifact string
	var page sql.NullInt64
	var created sql.NullTime
	if err := row.Scan(&sc.Chunk.ID, &sc.Chunk.SourceID, &sc.Chunk.Index, &sc.Chunk.Text,
		&artifact, &sc.Chunk.ArtifactPath, &page, &created,
		&sc.Source.ID, &sc.Source.Path, &sc.Source.Type); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.ErrNotFound
		}
		return nil, fmt.Errorf("scanning chunk: %w", err)
	}
	sc.Chunk.Artifact = domain.ArtifactKind(artifact)
	if page.Valid {
		p := int(page.Int64)
		sc.Chunk.Page = &p
	}
	if created.Valid {
		sc.Chunk.CreatedAt = created.Time
	}
	return &sc, nil
}

// AllChunks returns every chunk in the collection with its embedding,
// ordered by (source id, index, row id).
func (s *Store) AllChunks(ctx context.Context) ([]driven.StoredChunk, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT c.id, c.source_id, c.chunk_index, c.text, c.embedding, c.artifact_type, c.artifact_path, c.page, c.created_at,
		       s.id, s.path, s.type
		FROM chunks c
		JOIN sources s ON s.id = c.source_id
		ORDER BY c.source_id, c.chunk_index, c.id
	`)
	if err != nil {
		return nil, fmt.Errorf("querying chunks: %w", err)
	}
	defer rows.Close()

	var out []driven.StoredChunk //nolint:prealloc // size unknown from query
	for rows.Next() {
		var sc driven.StoredChunk
		var blob []byte
		var artifact string
		var page sql.NullInt64
		var created sql.NullTime
		if err := rows.Scan(&sc.Chunk.ID, &sc.Chunk.SourceID, &sc.Chunk.Index, &sc.Chunk.Text,
			&blob, &artifact, &sc.Chunk.ArtifactPath, &page, &created,
			&sc.Source.ID, &sc.Source.Path, &sc.Source.Type); err != nil {
			return nil, fmt.Errorf("scanning chunk: %w", err)
		}
		sc.Chunk.Embedding = bytesToFloat32Slice(blob)
		sc.Chunk.Artifact = domain.ArtifactKind(artifact)
		if page.Valid {
			p := int(page.Int64)
			sc.Chunk.Page = &p
		}
		if created.Valid {
			sc.Chunk.CreatedAt = created.Time
		}
		out = append(out, sc)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating chunks: %w", err)
	}
	return out, nil
}

// UpdateChunkText replaces a chunk's text and embedding in place.
func (s *Store) UpdateChunkText(ctx context.Context, sourceID int64, index int, text string, embedding []float32) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE chunks SET text = ?, embedding = ?
		WHERE source_id = ? AND chunk_index = ?
	`, text, float32SliceToBytes(embedding), sourceID, index)
	if err != nil {
		return busyOr(fmt.Errorf("updating chunk: %w", err), err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("updating chunk: %w", err)
	}
	if n == 0 {
		return domain.ErrNotFound
	}
	return nil
}

// InsertChunkAt inserts a chunk at index, shifting chunks at or after
// that index up by one.
func (s *Store) InsertChunkAt(ctx context.Context, sourceID int64, index int, chunk domain.Chunk) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return busyOr(fmt.Errorf("beginning transaction: %w", err), err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `
		UPDATE chunks SET chunk_index = chunk_index + 1
		WHERE source_id = ? AND chunk_index >= ?
	`, sourceID, index); err != nil {
		return busyOr(fmt.Errorf("shifting chunks: %w", err), err)
	}

	created := chunk.CreatedAt
	if created.IsZero() {
		created = time.Now().UTC()
	}
	if _, err := tx.ExecContext(ctx, `
		INSERT INTO chunks (source_id, chunk_index, text, embedding, artifact_type, artifact_path, page, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`, sourceID, index, chunk.Text, float32SliceToBytes(chunk.Embedding),
		string(artifactOrText(chunk.Artifact)), chunk.ArtifactPath, nullPage(chunk.Page), created); err != nil {
		return busyOr(fmt.Errorf("inserting chunk: %w", err), err)
	}

	if err := tx.Commit(); err != nil {
		return busyOr(fmt.Errorf("committing insert: %w", err), err)
	}
	return nil
}

// DeleteChunk removes one chunk and shifts later indices down. When
// the source has no chunks left, its row is removed too.
func (s *Store) DeleteChunk(ctx context.Context, sourceID int64, index int) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return busyOr(fmt.Errorf("beginning transaction: %w", err), err)
	}
	defer tx.Rollback()

	res, err := tx.ExecContext(ctx,
		"DELETE FROM chunks WHERE source_id = ? AND chunk_index = ?", sourceID, index)
	if err != nil {
		return busyOr(fmt.Errorf("deleting chunk: %w", err), err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("deleting chunk: %w", err)
	}
	if n == 0 {
		return domain.ErrNotFound
	}

	if _, err := tx.ExecContext(ctx, `
		UPDATE chunks SET chunk_index = chunk_index - 1
		WHERE source_id = ? AND chunk_index > ?
	`, sourceID, index); err != nil {
		return busyOr(fmt.Errorf("shifting chunks: %w", err), err)
	}

	var remaining int
	row := tx.QueryRowContext(ctx, "SELECT COUNT(*) FROM chunks WHERE source_id = ?", sourceID)
	if err := row.Scan(&remaining); err != nil {
		return fmt.Errorf("counting chunks: %w", err)
	}
	if remaining == 0 {
		if _, err := tx.ExecContext(ctx, "DELETE FROM sources WHERE id = ?", sourceID); err != nil {
			return busyOr(fmt.Errorf("deleting source: %w", err), err)
		}
	}

	if err := tx.Commit(); err != nil {
		return busyOr(fmt.Errorf("committing delete: %w", err), err)
	}
	return nil
}

// DeleteSource removes a source and all its chunks, returning the
// number of chunks removed.
func (s *Store) DeleteSource(ctx context.Context, sourceID int64) (int, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, busyOr(fmt.Errorf("beginning transaction: %w", err), err)
	}
	defer tx.Rollback()

	res, err := tx.ExecContext(ctx, "DELETE FROM chunks WHERE source_id = ?", sourceID)
	if err != nil {
		return 0, busyOr(fmt.Errorf("deleting chunks: %w", err), err)
	}
	removed, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("deleting chunks: %w", err)
	}

	srcRes, err := tx.ExecContext(ctx, "DELETE FROM sources WHERE id = ?", sourceID)
	if err != nil {
		return 0, busyOr(fmt.Errorf("deleting source: %w", err), err)
	}
	srcRows, err := srcRes.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("deleting source: %w", err)
	}
	if srcRows == 0 {
		return 0, domain.ErrNotFound
	}

	if err := tx.Commit(); err != nil {
		return 0, busyOr(fmt.Errorf("committing delete: %w", err), err)
	}
	return int(removed), nil
}

// Dedup removes all but the lowest-id row for each (source, index)
// pair.
func (s *Store) Dedup(ctx context.Context) (int, error) {
	res, err := s.db.ExecContext(ctx, `
		DELETE FROM chunks WHERE id NOT IN (
			SELECT MIN(id) FROM chunks GROUP BY source_id, chunk_index
		)
	`)
	if err != nil {
		return 0, busyOr(fmt.Errorf("deduplicating chunks: %w", err), err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("deduplicating chunks: %w", err)
	}
	return int(n), nil
}

func getOrCreateSource(ctx context.Context, tx *sql.Tx, path, typ string) (int64, error) {
	var id int64
	err := tx.QueryRowContext(ctx, "SELECT id FROM sources WHERE path = ?", path).Scan(&id)
	if err == nil {
		return id, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return 0, fmt.Errorf("looking up source: %w", err)
	}

	res, err := tx.ExecContext(ctx, "INSERT INTO sources (path, type) VALUES (?, ?)", path, typ)
	if err != nil {
		return 0, busyOr(fmt.Errorf("creating source: %w", err), err)
	}
	id, err = res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("creating source: %w", err)
	}
	return id, nil
}

// busyOr maps SQLite lock contention onto domain.ErrStoreBusy so
// callers can skip and retry, otherwise returns wrapped.
func busyOr(wrapped, cause error) error {
	if cause == nil {
		return wrapped
	}
	msg := cause.Error()
	if strings.Contains(msg, "database is locked") || strings.Contains(msg, "SQLITE_BUSY") {
		return fmt.Errorf("%w: %s", domain.ErrStoreBusy, msg)
	}
	return wrapped
}

func artifactOrText(k domain.ArtifactKind) domain.ArtifactKind {
	if !k.Valid() {
		return domain.ArtifactText
	}
	return k
}

func nullPage(p *int) any {
	if p == nil {
		return nil
	}
	return *p
}

// float32SliceToBytes converts a []float32 to a byte slice for storage.
func float32SliceToBytes(floats []float32) []byte {
	if len(floats) == 0 {
		return nil
	}
	buf := make([]byte, len(floats)*4)
	for i, f := range floats {
		binary.LittleEndian.PutUint32(buf[i*4:], math.Float32bits(f))
	}
	return buf
}

// bytesToFloat32Slice converts a byte slice back to []float32.
func bytesToFloat32Slice(data []byte) []float32 {
	if len(data) == 0 {
		return nil
	}
	floats := make([]float32, len(data)/4)
	for i := range floats {
		floats[i] = math.Float32frombits(binary.LittleEndian.Uint32(data[i*4:]))
	}
	return floats
}
