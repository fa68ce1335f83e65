package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/mattn/go-sqlite3"

	"apod-go/internal/apod"
	"apod-go/internal/database/migrations"
)

// SQLiteDatabase implements apod.Catalog using SQLite.
//
// Write transactions are opened with BEGIN IMMEDIATE so the look-up and the
// insert of InsertIfAbsent cannot interleave with another writer, in this
// process or any other.
type SQLiteDatabase struct {
	db   *sql.DB
	path string
}

// NewSQLiteDatabase opens or creates the catalog at path and migrates it to
// the latest schema. Existing records are never dropped, so opening the same
// catalog repeatedly is safe. path can be ":memory:" for an in-memory catalog.
func NewSQLiteDatabase(path string) (*SQLiteDatabase, error) {
	// golang-migrate only locks within a process; two processes opening a
	// fresh catalog would otherwise both apply version 1.
	unlock, err := acquireMigrationLock(path)
	if err != nil {
		return nil, err
	}
	defer unlock()

	db, err := OpenConnection(path)
	if err != nil {
		return nil, err
	}

	if err := migrations.MigrateUp(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("%w: %w", apod.ErrStoreUnavailable, err)
	}

	return &SQLiteDatabase{db: db, path: path}, nil
}

// NewSQLiteDatabaseFromDB wraps an existing, already migrated connection.
func NewSQLiteDatabaseFromDB(db *sql.DB) *SQLiteDatabase {
	return &SQLiteDatabase{db: db}
}

// OpenConnection opens and configures a SQLite connection.
// Failures are reported as apod.ErrStoreUnavailable.
func OpenConnection(path string) (*sql.DB, error) {
	// go-sqlite3 strips the query string from plain paths and ":memory:".
	dsn := path + "?_txlock=immediate&_busy_timeout=5000&_foreign_keys=on"
	if path != ":memory:" {
		dsn += "&_journal_mode=WAL&_synchronous=FULL"
	}

	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("%w: opening %s: %w", apod.ErrStoreUnavailable, path, err)
	}

	// One connection serializes writers inside this process and keeps
	// ":memory:" catalogs on a single database.
	db.SetMaxOpenConns(1)

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("%w: opening %s: %w", apod.ErrStoreUnavailable, path, err)
	}

	return db, nil
}

const imageColumns = `content_hash, source_date, local_path, width_px, height_px,
	media_type, size_bytes, title, source_url, created_at`

const insertImageQuery = `INSERT INTO images (` + imageColumns + `)
	VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`

// Image operations

func (s *SQLiteDatabase) Contains(ctx context.Context, hash string) (bool, error) {
	var exists int
	err := s.db.QueryRowContext(ctx, "SELECT 1 FROM images WHERE content_hash = ?", hash).Scan(&exists)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("checking for image: %w", err)
	}
	return true, nil
}

func (s *SQLiteDatabase) Get(ctx context.Context, hash string) (*apod.ImageRecord, error) {
	return getImage(ctx, s.db, hash)
}

func (s *SQLiteDatabase) Insert(ctx context.Context, record *apod.ImageRecord) error {
	if err := validateRecord(record); err != nil {
		return err
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("%w: starting transaction: %w", apod.ErrStoreWriteFailed, err)
	}
	defer tx.Rollback()

	if err := insertImage(ctx, tx, record); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("%w: committing transaction: %w", apod.ErrStoreWriteFailed, err)
	}
	return nil
}

func (s *SQLiteDatabase) InsertIfAbsent(ctx context.Context, hash string, create func() (*apod.ImageRecord, error)) (*apod.ImageRecord, bool, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, false, fmt.Errorf("%w: starting transaction: %w", apod.ErrStoreWriteFailed, err)
	}
	defer tx.Rollback()

	existing, err := getImage(ctx, tx, hash)
	if err == nil {
		return existing, false, nil
	}
	if !errors.Is(err, apod.ErrNotFound) {
		return nil, false, err
	}

	record, err := create()
	if err != nil {
		return nil, false, fmt.Errorf("creating record: %w", err)
	}
	if record.ContentHash != hash {
		return nil, false, fmt.Errorf("%w: record hash %s does not match %s", apod.ErrStoreWriteFailed, record.ContentHash, hash)
	}
	if err := validateRecord(record); err != nil {
		return nil, false, err
	}

	if err := insertImage(ctx, tx, record); err != nil {
		return nil, false, err
	}

	if err := tx.Commit(); err != nil {
		return nil, false, fmt.Errorf("%w: committing transaction: %w", apod.ErrStoreWriteFailed, err)
	}
	return record, true, nil
}

func (s *SQLiteDatabase) List(ctx context.Context, limit int) ([]*apod.ImageRecord, error) {
	query := "SELECT " + imageColumns + " FROM images ORDER BY created_at DESC, content_hash"
	args := []any{}
	if limit > 0 {
		query += " LIMIT ?"
		args = append(args, limit)
	}
	return queryImages(ctx, s.db, query, args...)
}

func (s *SQLiteDatabase) FindByDate(ctx context.Context, date string) ([]*apod.ImageRecord, error) {
	return queryImages(ctx, s.db,
		"SELECT "+imageColumns+" FROM images WHERE source_date = ? ORDER BY created_at, content_hash", date)
}

// queryer is satisfied by both *sql.DB and *sql.Tx.
type queryer interface {
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

// rowScanner is satisfied by both *sql.Row and *sql.Rows.
type rowScanner interface {
	Scan(dest ...any) error
}

func getImage(ctx context.Context, q queryer, hash string) (*apod.ImageRecord, error) {
	row := q.QueryRowContext(ctx, "SELECT "+imageColumns+" FROM images WHERE content_hash = ?", hash)
	record, err := scanImage(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("image %s: %w", hash, apod.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("getting image: %w", err)
	}
	return record, nil
}

func queryImages(ctx context.Context, q queryer, query string, args ...any) ([]*apod.ImageRecord, error) {
	rows, err := q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("querying images: %w", err)
	}
	defer rows.Close()

	var records []*apod.ImageRecord
	for rows.Next() {
		record, err := scanImage(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning image: %w", err)
		}
		records = append(records, record)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating images: %w", err)
	}
	return records, nil
}

func scanImage(row rowScanner) (*apod.ImageRecord, error) {
	var r apod.ImageRecord
	err := row.Scan(
		&r.ContentHash,
		&r.SourceDate,
		&r.LocalPath,
		&r.WidthPx,
		&r.HeightPx,
		&r.MediaType,
		&r.SizeBytes,
		&r.Title,
		&r.SourceURL,
		&r.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &r, nil
}

func insertImage(ctx context.Context, q queryer, r *apod.ImageRecord) error {
	_, err := q.ExecContext(ctx, insertImageQuery,
		r.ContentHash,
		r.SourceDate,
		r.LocalPath,
		r.WidthPx,
		r.HeightPx,
		r.MediaType,
		r.SizeBytes,
		r.Title,
		r.SourceURL,
		r.CreatedAt.UTC(),
	)
	if err != nil {
		if isConstraintViolation(err) {
			return fmt.Errorf("image %s: %w", r.ContentHash, apod.ErrDuplicateHash)
		}
		return fmt.Errorf("%w: inserting image: %w", apod.ErrStoreWriteFailed, err)
	}
	return nil
}

func isConstraintViolation(err error) bool {
	var sqliteErr sqlite3.Error
	if !errors.As(err, &sqliteErr) {
		return false
	}
	return sqliteErr.ExtendedCode == sqlite3.ErrConstraintPrimaryKey ||
		sqliteErr.ExtendedCode == sqlite3.ErrConstraintUnique
}

func validateRecord(r *apod.ImageRecord) error {
	switch {
	case r == nil:
		return fmt.Errorf("%w: nil record", apod.ErrStoreWriteFailed)
	case !apod.IsContentHash(r.ContentHash):
		return fmt.Errorf("%w: invalid content hash %q", apod.ErrStoreWriteFailed, r.ContentHash)
	case r.LocalPath == "":
		return fmt.Errorf("%w: empty local path", apod.ErrStoreWriteFailed)
	case r.WidthPx <= 0 || r.HeightPx <= 0:
		return fmt.Errorf("%w: invalid dimensions %dx%d", apod.ErrStoreWriteFailed, r.WidthPx, r.HeightPx)
	case r.CreatedAt.IsZero():
		return fmt.Errorf("%w: missing created_at", apod.ErrStoreWriteFailed)
	}
	return nil
}

// Operation log

func (s *SQLiteDatabase) CreateFetchOperation(ctx context.Context, operation, parameters string) (*apod.FetchOperation, error) {
	op := &apod.FetchOperation{
		StartedAt:  time.Now().UTC(),
		Operation:  operation,
		Parameters: parameters,
		Status:     "running",
	}
	res, err := s.db.ExecContext(ctx,
		"INSERT INTO fetch_operations (started_at, operation, parameters, status) VALUES (?, ?, ?, ?)",
		op.StartedAt, op.Operation, op.Parameters, op.Status)
	if err != nil {
		return nil, fmt.Errorf("%w: creating operation: %w", apod.ErrStoreWriteFailed, err)
	}
	op.ID, err = res.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("reading operation id: %w", err)
	}
	return op, nil
}

func (s *SQLiteDatabase) FinishFetchOperation(ctx context.Context, id int64, status string) error {
	_, err := s.db.ExecContext(ctx,
		"UPDATE fetch_operations SET finished_at = ?, status = ? WHERE id = ?",
		time.Now().UTC(), status, id)
	if err != nil {
		return fmt.Errorf("%w: finishing operation: %w", apod.ErrStoreWriteFailed, err)
	}
	return nil
}

func (s *SQLiteDatabase) ListFetchOperations(ctx context.Context, limit int) ([]*apod.FetchOperation, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, started_at, finished_at, operation, parameters, status
		 FROM fetch_operations ORDER BY id DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("listing operations: %w", err)
	}
	defer rows.Close()

	ops := []*apod.FetchOperation{}
	for rows.Next() {
		var op apod.FetchOperation
		if err := rows.Scan(&op.ID, &op.StartedAt, &op.FinishedAt, &op.Operation, &op.Parameters, &op.Status); err != nil {
			return nil, fmt.Errorf("scanning operation: %w", err)
		}
		ops = append(ops, &op)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating operations: %w", err)
	}
	return ops, nil
}

func (s *SQLiteDatabase) MaxFetchOperationID(ctx context.Context) (int64, error) {
	var id int64
	if err := s.db.QueryRowContext(ctx, "SELECT COALESCE(MAX(id), 0) FROM fetch_operations").Scan(&id); err != nil {
		return 0, fmt.Errorf("getting max operation id: %w", err)
	}
	return id, nil
}

// Path returns the catalog file path (or ":memory:").
func (s *SQLiteDatabase) Path() string {
	return s.path
}

// CheckMigrations verifies the catalog schema is up to date.
func (s *SQLiteDatabase) CheckMigrations() error {
	return migrations.CheckDBMigrationStatus(s.db)
}

// BackupTo writes a consistent copy of the catalog to destPath using VACUUM INTO.
func (s *SQLiteDatabase) BackupTo(destPath string) error {
	if _, err := s.db.Exec("VACUUM INTO ?", destPath); err != nil {
		return fmt.Errorf("backing up catalog: %w", err)
	}
	return nil
}

// Close closes the database connection.
func (s *SQLiteDatabase) Close() error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}

var _ apod.Catalog = (*SQLiteDatabase)(nil)
