package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/hyperjump/blueprint/internal/models"
)

// SQLiteStorage implements Storage using SQLite.
type SQLiteStorage struct {
	db *sql.DB
}

// NewSQLiteStorage opens or creates a SQLite database at dbPath and initializes the schema.
// Parent directories are created if they do not exist. ":memory:" opens a private in-memory database.
func NewSQLiteStorage(dbPath string) (*SQLiteStorage, error) {
	if dbPath != ":memory:" {
		if dir := filepath.Dir(dbPath); dir != "." {
			if err := os.MkdirAll(dir, 0755); err != nil {
				return nil, fmt.Errorf("failed to create database directory: %w", err)
			}
		}
	}
	db, err := sql.Open("sqlite3", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	if dbPath == ":memory:" {
		// Each pooled connection would otherwise get its own empty database.
		db.SetMaxOpenConns(1)
	} else if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to enable WAL: %w", err)
	}
	if _, err := db.Exec("PRAGMA busy_timeout=5000"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to set busy timeout: %w", err)
	}

	if err := initSchema(db); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}

	return &SQLiteStorage{db: db}, nil
}

func initSchema(db *sql.DB) error {
	schema := `
	CREATE TABLE IF NOT EXISTS documents (
		id TEXT PRIMARY KEY,
		namespace TEXT NOT NULL,
		filename TEXT NOT NULL,
		content_hash TEXT NOT NULL,
		pages INTEGER NOT NULL,
		chunk_count INTEGER NOT NULL,
		indexed_at TIMESTAMP NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_documents_namespace ON documents(namespace);

	CREATE TABLE IF NOT EXISTS document_chunks (
		id TEXT NOT NULL,
		document_id TEXT NOT NULL,
		namespace TEXT NOT NULL,
		PRIMARY KEY (document_id, id)
	);

	CREATE INDEX IF NOT EXISTS idx_chunks_namespace ON document_chunks(namespace);
	`
	_, err := db.Exec(schema)
	return err
}

// PutDocument upserts doc and replaces its chunk list in one transaction.
func (s *SQLiteStorage) PutDocument(ctx context.Context, doc *models.DocumentRecord, chunkIDs []string) error {
	if doc.IndexedAt.IsZero() {
		doc.IndexedAt = time.Now().UTC()
	}
	doc.ChunkCount = len(chunkIDs)

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx,
		`INSERT INTO documents (id, namespace, filename, content_hash, pages, chunk_count, indexed_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT(id) DO UPDATE SET
		   namespace = excluded.namespace,
		   filename = excluded.filename,
		   content_hash = excluded.content_hash,
		   pages = excluded.pages,
		   chunk_count = excluded.chunk_count,
		   indexed_at = excluded.indexed_at`,
		doc.ID, doc.Namespace, doc.Filename, doc.ContentHash, doc.Pages, doc.ChunkCount, doc.IndexedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to upsert document: %w", err)
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM document_chunks WHERE document_id = ?`, doc.ID); err != nil {
		return fmt.Errorf("failed to clear chunks: %w", err)
	}

	stmt, err := tx.PrepareContext(ctx,
		`INSERT OR IGNORE INTO document_chunks (id, document_id, namespace) VALUES (?, ?, ?)`,
	)
	if err != nil {
		return fmt.Errorf("failed to prepare chunk insert: %w", err)
	}
	defer stmt.Close()
	for _, id := range chunkIDs {
		if _, err := stmt.ExecContext(ctx, id, doc.ID, doc.Namespace); err != nil {
			return fmt.Errorf("failed to insert chunk: %w", err)
		}
	}
	return tx.Commit()
}

const documentColumns = `id, namespace, filename, content_hash, pages, chunk_count, indexed_at`

type scanner interface {
	Scan(dest ...any) error
}

func scanDocument(row scanner) (*models.DocumentRecord, error) {
	var doc models.DocumentRecord
	if err := row.Scan(&doc.ID, &doc.Namespace, &doc.Filename, &doc.ContentHash,
		&doc.Pages, &doc.ChunkCount, &doc.IndexedAt); err != nil {
		return nil, err
	}
	return &doc, nil
}

// GetDocument returns a document by ID, or ErrNotFound.
func (s *SQLiteStorage) GetDocument(ctx context.Context, id string) (*models.DocumentRecord, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+documentColumns+` FROM documents WHERE id = ?`, id)
	doc, err := scanDocument(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("document %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, err
	}
	return doc, nil
}

// ListDocuments returns the documents of namespace ordered by filename.
func (s *SQLiteStorage) ListDocuments(ctx context.Context, namespace string) ([]*models.DocumentRecord, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+documentColumns+` FROM documents WHERE namespace = ? ORDER BY filename`, namespace)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var docs []*models.DocumentRecord
	for rows.Next() {
		doc, err := scanDocument(rows)
		if err != nil {
			return nil, err
		}
		docs = append(docs, doc)
	}
	return docs, rows.Err()
}

// ChunkIDs returns the chunk IDs recorded for a document.
func (s *SQLiteStorage) ChunkIDs(ctx context.Context, documentID string) ([]string, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id FROM document_chunks WHERE document_id = ? ORDER BY id`, documentID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// DeleteDocument removes a document and its chunk list.
func (s *SQLiteStorage) DeleteDocument(ctx context.Context, id string) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()
	if _, err := tx.ExecContext(ctx, `DELETE FROM document_chunks WHERE document_id = ?`, id); err != nil {
		return err
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM documents WHERE id = ?`, id); err != nil {
		return err
	}
	return tx.Commit()
}

// DeleteNamespace removes every document and chunk list of namespace.
func (s *SQLiteStorage) DeleteNamespace(ctx context.Context, namespace string) (int64, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, err
	}
	defer tx.Rollback()
	if _, err := tx.ExecContext(ctx, `DELETE FROM document_chunks WHERE namespace = ?`, namespace); err != nil {
		return 0, err
	}
	result, err := tx.ExecContext(ctx, `DELETE FROM documents WHERE namespace = ?`, namespace)
	if err != nil {
		return 0, err
	}
	n, _ := result.RowsAffected()
	return n, tx.Commit()
}

// CountDocuments returns the number of documents in namespace.
func (s *SQLiteStorage) CountDocuments(ctx context.Context, namespace string) (int64, error) {
	var count int64
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM documents WHERE namespace = ?`, namespace).Scan(&count)
	return count, err
}

// CountChunks returns the number of chunks in namespace.
func (s *SQLiteStorage) CountChunks(ctx context.Context, namespace string) (int64, error) {
	var count int64
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM document_chunks WHERE namespace = ?`, namespace).Scan(&count)
	return count, err
}

// Namespaces returns every namespace with at least one document, sorted.
func (s *SQLiteStorage) Namespaces(ctx context.Context) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT DISTINCT namespace FROM documents ORDER BY namespace`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []string
	for rows.Next() {
		var ns string
		if err := rows.Scan(&ns); err != nil {
			return nil, err
		}
		out = append(out, ns)
	}
	return out, rows.Err()
}

// Close closes the database connection.
func (s *SQLiteStorage) Close() error {
	return s.db.Close()
}
