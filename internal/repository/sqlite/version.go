package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"time"

	"github.com/prakashgbid/confledger/internal/domain/version"
	"github.com/prakashgbid/confledger/internal/pkg/errors"
)

const currentVersionKey = "current_version"

// VersionRepository persists versions, snapshots and the current-version
// pointer
type VersionRepository struct {
	db *sql.DB
}

// NewVersionRepository creates a new version repository
func NewVersionRepository(db *sql.DB) version.Repository {
	return &VersionRepository{db: db}
}

// Commit writes the version record, its snapshot and the current-version
// pointer in a single transaction. A failure of any write rolls back all of
// them, so the ledger never holds a version without its snapshot.
func (r *VersionRepository) Commit(ctx context.Context, v *version.Version, s *version.Snapshot) error {
	return r.write(ctx, v, s, true)
}

// Put writes a version/snapshot pair without moving the current-version
// pointer
func (r *VersionRepository) Put(ctx context.Context, v *version.Version, s *version.Snapshot) error {
	return r.write(ctx, v, s, false)
}

func (r *VersionRepository) write(ctx context.Context, v *version.Version, s *version.Snapshot, setCurrent bool) error {
	changes, err := json.Marshal(v.Changes)
	if err != nil {
		return errors.PersistenceError("Failed to serialize change list", err)
	}
	tags := v.Tags
	if tags == nil {
		tags = []string{}
	}
	tagData, err := json.Marshal(tags)
	if err != nil {
		return errors.PersistenceError("Failed to serialize tags", err)
	}
	document, err := version.EncodeDocument(s.Document)
	if err != nil {
		return errors.PersistenceError("Failed to serialize snapshot document", err)
	}

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return errors.PersistenceError("Failed to begin commit transaction", err)
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx,
		`INSERT INTO versions (version, created_at, description, changes, hash, author, tags)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		v.Number, v.CreatedAt.Format(time.RFC3339Nano), v.Description,
		string(changes), v.Hash, v.Author, string(tagData))
	if err != nil {
		return errors.PersistenceError("Failed to write version record", err)
	}

	_, err = tx.ExecContext(ctx,
		`INSERT INTO snapshots (version, created_at, document, hash, size)
		 VALUES (?, ?, ?, ?, ?)`,
		s.Version, s.CreatedAt.Format(time.RFC3339Nano), string(document), s.Hash, s.Size)
	if err != nil {
		return errors.PersistenceError("Failed to write snapshot record", err)
	}

	if setCurrent {
		if err := setState(ctx, tx, currentVersionKey, v.Number); err != nil {
			return errors.PersistenceError("Failed to update current-version pointer", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return errors.PersistenceError("Failed to commit version transaction", err)
	}

	return nil
}

// Get retrieves a version by number
func (r *VersionRepository) Get(ctx context.Context, number string) (*version.Version, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT version, created_at, description, changes, hash, author, tags
		 FROM versions WHERE version = ?`, number)
	return scanVersion(row)
}

// GetSnapshot retrieves the snapshot stored under a version number
func (r *VersionRepository) GetSnapshot(ctx context.Context, number string) (*version.Snapshot, error) {
	var s version.Snapshot
	var createdAt, document string

	err := r.db.QueryRowContext(ctx,
		`SELECT version, created_at, document, hash, size FROM snapshots WHERE version = ?`,
		number).Scan(&s.Version, &createdAt, &document, &s.Hash, &s.Size)
	if err == sql.ErrNoRows {
		return nil, errors.NotFound("Snapshot")
	}
	if err != nil {
		return nil, errors.PersistenceError("Failed to read snapshot", err)
	}

	s.CreatedAt, _ = time.Parse(time.RFC3339Nano, createdAt)
	s.Document, err = version.DecodeDocument([]byte(document))
	if err != nil {
		return nil, errors.PersistenceError("Failed to decode snapshot document", err)
	}

	return &s, nil
}

// List retrieves every committed version
func (r *VersionRepository) List(ctx context.Context) ([]*version.Version, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT version, created_at, description, changes, hash, author, tags FROM versions`)
	if err != nil {
		return nil, errors.PersistenceError("Failed to list versions", err)
	}
	defer rows.Close()

	var versions []*version.Version
	for rows.Next() {
		v, err := scanVersion(rows)
		if err != nil {
			return nil, err
		}
		versions = append(versions, v)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.PersistenceError("Failed to read versions", err)
	}

	return versions, nil
}

// ListByTag retrieves the versions carrying the given tag
func (r *VersionRepository) ListByTag(ctx context.Context, tag string) ([]*version.Version, error) {
	all, err := r.List(ctx)
	if err != nil {
		return nil, err
	}

	var tagged []*version.Version
	for _, v := range all {
		if v.HasTag(tag) {
			tagged = append(tagged, v)
		}
	}
	return tagged, nil
}

// Exists reports whether a version number is already committed
func (r *VersionRepository) Exists(ctx context.Context, number string) (bool, error) {
	var count int
	err := r.db.QueryRowContext(ctx,
		`SELECT COUNT(1) FROM versions WHERE version = ?`, number).Scan(&count)
	if err != nil {
		return false, errors.PersistenceError("Failed to check version existence", err)
	}
	return count > 0, nil
}

// UpdateTags replaces the tag set of a version
func (r *VersionRepository) UpdateTags(ctx context.Context, number string, tags []string) error {
	data, err := json.Marshal(tags)
	if err != nil {
		return errors.PersistenceError("Failed to serialize tags", err)
	}

	res, err := r.db.ExecContext(ctx,
		`UPDATE versions SET tags = ? WHERE version = ?`, string(data), number)
	if err != nil {
		return errors.PersistenceError("Failed to update tags", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return errors.NotFound("Version")
	}
	return nil
}

// Delete removes a version and its snapshot
func (r *VersionRepository) Delete(ctx context.Context, number string) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return errors.PersistenceError("Failed to begin delete transaction", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `DELETE FROM snapshots WHERE version = ?`, number); err != nil {
		return errors.PersistenceError("Failed to delete snapshot", err)
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM versions WHERE version = ?`, number); err != nil {
		return errors.PersistenceError("Failed to delete version", err)
	}

	if err := tx.Commit(); err != nil {
		return errors.PersistenceError("Failed to commit delete transaction", err)
	}
	return nil
}

// CurrentVersion returns the number the current-version pointer holds
func (r *VersionRepository) CurrentVersion(ctx context.Context) (string, error) {
	var value string
	err := r.db.QueryRowContext(ctx,
		`SELECT value FROM ledger_state WHERE key = ?`, currentVersionKey).Scan(&value)
	if err == sql.ErrNoRows {
		return "", errors.NotFound("Current version")
	}
	if err != nil {
		return "", errors.PersistenceError("Failed to read current-version pointer", err)
	}
	return value, nil
}

// SetCurrentVersion moves the current-version pointer
func (r *VersionRepository) SetCurrentVersion(ctx context.Context, number string) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return errors.PersistenceError("Failed to begin pointer transaction", err)
	}
	defer tx.Rollback()

	if err := setState(ctx, tx, currentVersionKey, number); err != nil {
		return errors.PersistenceError("Failed to update current-version pointer", err)
	}
	if err := tx.Commit(); err != nil {
		return errors.PersistenceError("Failed to commit pointer transaction", err)
	}
	return nil
}

func setState(ctx context.Context, tx *sql.Tx, key, value string) error {
	now := time.Now().Format(time.RFC3339Nano)
	res, err := tx.ExecContext(ctx,
		`UPDATE ledger_state SET value = ?, updated_at = ? WHERE key = ?`, value, now, key)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		_, err = tx.ExecContext(ctx,
			`INSERT INTO ledger_state (key, value, updated_at) VALUES (?, ?, ?)`, key, value, now)
	}
	return err
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanVersion(row rowScanner) (*version.Version, error) {
	var v version.Version
	var createdAt, changes, tags string

	err := row.Scan(&v.Number, &createdAt, &v.Description, &changes, &v.Hash, &v.Author, &tags)
	if err == sql.ErrNoRows {
		return nil, errors.NotFound("Version")
	}
	if err != nil {
		return nil, errors.PersistenceError("Failed to scan version", err)
	}

	v.CreatedAt, _ = time.Parse(time.RFC3339Nano, createdAt)
	if err := json.Unmarshal([]byte(changes), &v.Changes); err != nil {
		return nil, errors.PersistenceError("Failed to decode change list", err)
	}
	if err := json.Unmarshal([]byte(tags), &v.Tags); err != nil {
		return nil, errors.PersistenceError("Failed to decode tags", err)
	}

	return &v, nil
}
