package records

import (
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"mediaqueue/logger"
	"mediaqueue/models"

	_ "github.com/mattn/go-sqlite3"
)

var ErrRecordNotFound = errors.New("record not found")

// SQLiteStore keeps records in a local SQLite database.
type SQLiteStore struct {
	db *sql.DB

	// Hash and Identifier compute the stored values from a finished file.
	Hash       func(path string) (string, error)
	Identifier func(path string) (string, error)
}

// OpenSQLite opens (creating if needed) the database at dbPath and applies
// migrations.
func OpenSQLite(dbPath string) (*SQLiteStore, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
		return nil, fmt.Errorf("failed to create database directory: %w", err)
	}

	dsn := fmt.Sprintf("%s?_journal_mode=WAL&_busy_timeout=5000&_synchronous=NORMAL", dbPath)
	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open records database: %w", err)
	}
	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to connect to records database: %w", err)
	}
	// SQLite serializes writers anyway.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	s := &SQLiteStore{db: db, Hash: FileHash, Identifier: MagnetURI}
	for i, m := range migrations {
		if _, err := db.Exec(m); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("migration %d: %w", i+1, err)
		}
	}
	return s, nil
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// Create inserts a new record. Status defaults to pending.
func (s *SQLiteStore) Create(r Record) error {
	if r.Status == "" {
		r.Status = models.StatusPending
	}
	now := time.Now()
	if r.CreatedAt.IsZero() {
		r.CreatedAt = now
	}
	_, err := s.db.Exec(`
		INSERT INTO mediafiles (id, owner, filename, original_mime, upload_kind, status, visibility, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		r.ID, r.Owner, r.Filename, r.OriginalMime, string(r.UploadKind), string(r.Status),
		boolToInt(r.Visible), r.CreatedAt.Unix(), now.Unix(),
	)
	if err != nil {
		return fmt.Errorf("failed to create record %s: %w", r.ID, err)
	}
	return nil
}

// Get loads a record by id.
func (s *SQLiteStore) Get(id string) (*Record, error) {
	var (
		r                Record
		kind, status     string
		visible          int
		created, updated int64
	)
	err := s.db.QueryRow(`
		SELECT id, owner, filename, original_mime, upload_kind, status, hash, magnet, visibility, created_at, updated_at
		FROM mediafiles WHERE id = ?`, id).
		Scan(&r.ID, &r.Owner, &r.Filename, &r.OriginalMime, &kind, &status, &r.Hash, &r.Magnet, &visible, &created, &updated)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrRecordNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load record %s: %w", id, err)
	}
	r.UploadKind = models.UploadKind(kind)
	r.Status = models.Status(status)
	r.Visible = visible != 0
	r.CreatedAt = time.Unix(created, 0)
	r.UpdatedAt = time.Unix(updated, 0)
	return &r, nil
}

func (s *SQLiteStore) UpdateStatus(id string, status models.Status) bool {
	return s.update(id, "status", string(status))
}

func (s *SQLiteStore) UpdateVisibility(id string, visible bool) bool {
	return s.update(id, "visibility", boolToInt(visible))
}

func (s *SQLiteStore) UpdateHash(id, path string) bool {
	hash, err := s.Hash(path)
	if err != nil {
		logger.Errorf("Failed to hash %s for record %s: %v", path, id, err)
		return false
	}
	return s.update(id, "hash", hash)
}

func (s *SQLiteStore) UpdateDistributionID(id, path string) bool {
	ident, err := s.Identifier(path)
	if err != nil {
		logger.Errorf("Failed to compute identifier of %s for record %s: %v", path, id, err)
		return false
	}
	return s.update(id, "magnet", ident)
}

// update sets one column. column is never user input.
func (s *SQLiteStore) update(id, column string, value any) bool {
	res, err := s.db.Exec(
		fmt.Sprintf("UPDATE mediafiles SET %s = ?, updated_at = ? WHERE id = ?", column),
		value, time.Now().Unix(), id,
	)
	if err != nil {
		logger.Errorf("Could not update table mediafiles, id: %s, %s: %v", id, column, err)
		return false
	}
	n, err := res.RowsAffected()
	if err != nil || n == 0 {
		logger.Errorf("Could not update table mediafiles, id: %s, %s: no such record", id, column)
		return false
	}
	return true
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
