// Package grounding provides the document index consulted to ground expansion
// prompts in reference text.
package grounding

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"
)

// Document is one indexed passage.
type Document struct {
	ID        string
	Title     string
	Body      string
	Source    string
	CreatedAt time.Time
}

// Index is a SQLite full-text index of documents.
type Index struct {
	db     *sql.DB
	dbPath string
	mu     sync.RWMutex
}

// DefaultPath returns the index location inside dataDir.
func DefaultPath(dataDir string) string {
	return filepath.Join(dataDir, "grounding.db")
}

// Open opens (creating if needed) the index at dbPath and applies migrations.
func Open(dbPath string) (*Index, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
		return nil, fmt.Errorf("create index directory: %w", err)
	}

	conn, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open index: %w", err)
	}

	if _, err := conn.Exec("PRAGMA journal_mode=WAL"); err != nil {
		conn.Close()
		return nil, fmt.Errorf("enable WAL mode: %w", err)
	}

	idx := &Index{db: conn, dbPath: dbPath}
	if err := idx.Migrate(); err != nil {
		conn.Close()
		return nil, fmt.Errorf("migrate index: %w", err)
	}
	return idx, nil
}

// Close closes the database connection.
func (x *Index) Close() error {
	x.mu.Lock()
	defer x.mu.Unlock()
	return x.db.Close()
}

// Path returns the path to the database file.
func (x *Index) Path() string {
	return x.dbPath
}

// Migrate creates the tables if they don't exist.
func (x *Index) Migrate() error {
	x.mu.Lock()
	defer x.mu.Unlock()

	if _, err := x.db.Exec(`
		CREATE TABLE IF NOT EXISTS grounding_schema_version (
			version INTEGER PRIMARY KEY,
			applied_at DATETIME DEFAULT CURRENT_TIMESTAMP
		)
	`); err != nil {
		return err
	}

	var current int
	if err := x.db.QueryRow("SELECT COALESCE(MAX(version), 0) FROM grounding_schema_version").Scan(&current); err != nil {
		return err
	}

	migrations := []struct {
		version int
		sql     string
	}{
		{1, migrationV1Documents},
	}

	for _, m := range migrations {
		if m.version <= current {
			continue
		}
		tx, err := x.db.Begin()
		if err != nil {
			return err
		}
		if _, err := tx.Exec(m.sql); err != nil {
			tx.Rollback()
			return err
		}
		if _, err := tx.Exec("INSERT INTO grounding_schema_version (version) VALUES (?)", m.version); err != nil {
			tx.Rollback()
			return err
		}
		if err := tx.Commit(); err != nil {
			return err
		}
	}
	return nil
}

const migrationV1Documents = `
CREATE TABLE IF NOT EXISTS documents (
	id TEXT PRIMARY KEY,
	title TEXT NOT NULL,
	body TEXT NOT NULL,
	source TEXT,
	created_at DATETIME NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_documents_source ON documents(source);

CREATE VIRTUAL TABLE IF NOT EXISTS documents_fts USING fts5(
	title,
	body,
	content='documents',
	content_rowid='rowid'
);

CREATE TRIGGER IF NOT EXISTS documents_ai AFTER INSERT ON documents BEGIN
	INSERT INTO documents_fts(rowid, title, body)
	VALUES (NEW.rowid, NEW.title, NEW.body);
END;

CREATE TRIGGER IF NOT EXISTS documents_ad AFTER DELETE ON documents BEGIN
	INSERT INTO documents_fts(documents_fts, rowid, title, body)
	VALUES ('delete', OLD.rowid, OLD.title, OLD.body);
END;
`

// Add inserts a document. An empty ID is assigned a new UUID.
func (x *Index) Add(doc *Document) error {
	if doc.ID == "" {
		doc.ID = uuid.New().String()
	}
	if doc.CreatedAt.IsZero() {
		doc.CreatedAt = time.Now()
	}

	x.mu.Lock()
	defer x.mu.Unlock()

	_, err := x.db.Exec(`
		INSERT INTO documents (id, title, body, source, created_at)
		VALUES (?, ?, ?, ?, ?)
	`, doc.ID, doc.Title, doc.Body, sql.NullString{String: doc.Source, Valid: doc.Source != ""}, doc.CreatedAt.UTC().Format(time.RFC3339))
	if err != nil {
		return fmt.Errorf("insert document: %w", err)
	}
	return nil
}

// RemoveSource deletes every document ingested from source.
func (x *Index) RemoveSource(source string) (int64, error) {
	x.mu.Lock()
	defer x.mu.Unlock()

	res, err := x.db.Exec("DELETE FROM documents WHERE source = ?", source)
	if err != nil {
		return 0, fmt.Errorf("delete documents: %w", err)
	}
	return res.RowsAffected()
}

// Count returns the number of indexed documents.
func (x *Index) Count() (int, error) {
	x.mu.RLock()
	defer x.mu.RUnlock()

	var n int
	if err := x.db.QueryRow("SELECT COUNT(*) FROM documents").Scan(&n); err != nil {
		return 0, fmt.Errorf("count documents: %w", err)
	}
	return n, nil
}
