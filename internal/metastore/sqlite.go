package metastore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net/url"
	"time"

	_ "modernc.org/sqlite"

	"apkd/internal/models"
)

const (
	busyTimeoutMS   = 5000
	maxOpenConns    = 1
	maxIdleConns    = 1
	connMaxLifetime = 5 * time.Minute

	releaseRowID = 1
)

// SQLiteStore keeps the record as the single row of the releases table.
type SQLiteStore struct {
	db *sql.DB
}

var _ Store = (*SQLiteStore)(nil)

// OpenSQLite opens the database at path and applies pending migrations.
func OpenSQLite(path string) (*SQLiteStore, error) {
	db, err := openSQLiteDB(path)
	if err != nil {
		return nil, err
	}
	if err := runMigrations(db); err != nil {
		_ = db.Close()
		return nil, err
	}
	return &SQLiteStore{db: db}, nil
}

func openSQLiteDB(path string) (*sql.DB, error) {
	dsn, err := sqliteDSN(path)
	if err != nil {
		return nil, err
	}
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, err
	}
	if err := configureDB(db); err != nil {
		_ = db.Close()
		return nil, err
	}
	return db, nil
}

func (s *SQLiteStore) Read(ctx context.Context) (models.Release, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return models.Release{}, err
	}
	defer func() { _ = tx.Rollback() }()

	release, err := scanRelease(tx.QueryRowContext(ctx,
		"SELECT version_code, filename, sha256, updated_at FROM releases WHERE id = ?", releaseRowID))
	if errors.Is(err, sql.ErrNoRows) {
		release = models.DefaultRelease()
		if err := upsertRelease(ctx, tx, release); err != nil {
			return models.Release{}, err
		}
		if err := tx.Commit(); err != nil {
			return models.Release{}, err
		}
		return release, nil
	}
	if err != nil {
		return models.Release{}, fmt.Errorf("read release: %w", err)
	}
	return release, tx.Commit()
}

func (s *SQLiteStore) Write(ctx context.Context, release models.Release) error {
	if err := release.Validate(); err != nil {
		return err
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	if err := upsertRelease(ctx, tx, release); err != nil {
		return err
	}
	return tx.Commit()
}

// Close closes the underlying database connection.
func (s *SQLiteStore) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

func scanRelease(row *sql.Row) (models.Release, error) {
	var (
		release   models.Release
		filename  sql.NullString
		sha256    sql.NullString
		updatedAt sql.NullString
	)
	if err := row.Scan(&release.VersionCode, &filename, &sha256, &updatedAt); err != nil {
		return models.Release{}, err
	}
	release.Filename = nullStringPtr(filename)
	release.SHA256 = nullStringPtr(sha256)
	release.UpdatedAt = nullStringPtr(updatedAt)
	return release, nil
}

func upsertRelease(ctx context.Context, tx *sql.Tx, release models.Release) error {
	_, err := tx.ExecContext(ctx, `
INSERT INTO releases (id, version_code, filename, sha256, updated_at)
VALUES (?, ?, ?, ?, ?)
ON CONFLICT(id) DO UPDATE SET
  version_code = excluded.version_code,
  filename = excluded.filename,
  sha256 = excluded.sha256,
  updated_at = excluded.updated_at`,
		releaseRowID, release.VersionCode, ptrNullString(release.Filename), ptrNullString(release.SHA256), ptrNullString(release.UpdatedAt))
	if err != nil {
		return fmt.Errorf("write release: %w", err)
	}
	return nil
}

func nullStringPtr(value sql.NullString) *string {
	if !value.Valid {
		return nil
	}
	s := value.String
	return &s
}

func ptrNullString(value *string) sql.NullString {
	if value == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: *value, Valid: true}
}

func configureDB(db *sql.DB) error {
	pragmas := []string{
		"PRAGMA journal_mode = WAL;",
		"PRAGMA synchronous = NORMAL;",
		fmt.Sprintf("PRAGMA busy_timeout = %d;", busyTimeoutMS),
	}
	for _, stmt := range pragmas {
		if _, err := db.Exec(stmt); err != nil {
			return err
		}
	}

	db.SetMaxOpenConns(maxOpenConns)
	db.SetMaxIdleConns(maxIdleConns)
	db.SetConnMaxLifetime(connMaxLifetime)

	return nil
}

func sqliteDSN(path string) (string, error) {
	if path == "" {
		return "", fmt.Errorf("db path is required")
	}
	u := url.URL{Scheme: "file", Path: path}
	return u.String(), nil
}
