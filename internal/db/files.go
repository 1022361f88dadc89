package db

import (
	"context"
	"database/sql"
	"errors"
)

const fileEntryCols = "id, owner_id, path, size_bytes, is_folder, is_deleted, COALESCE(deleted_at, 0), created_at, updated_at"

func scanFileEntry(row interface{ Scan(...any) error }) (*FileEntry, error) {
	var e FileEntry
	var folder, deleted int
	err := row.Scan(&e.ID, &e.OwnerID, &e.Path, &e.SizeBytes, &folder, &deleted, &e.DeletedAt, &e.CreatedAt, &e.UpdatedAt)
	if err != nil {
		return nil, err
	}
	e.IsFolder = folder != 0
	e.IsDeleted = deleted != 0
	return &e, nil
}

// UpsertFileEntry inserts or refreshes the live row at (owner, path).
// A conflicting live row has its size, folder flag, and update time
// overwritten.
func (d *DB) UpsertFileEntry(ctx context.Context, ownerID int64, path string, sizeBytes int64, isFolder bool) error {
	if ownerID <= 0 || path == "" {
		return errors.New("owner and path are required")
	}
	now := nowUnix()
	_, err := d.sql.ExecContext(ctx, `
INSERT INTO file_entry(owner_id, path, size_bytes, is_folder, is_deleted, created_at, updated_at)
VALUES(?, ?, ?, ?, 0, ?, ?)
ON CONFLICT(owner_id, path) WHERE is_deleted = 0 DO UPDATE SET
  size_bytes = excluded.size_bytes,
  is_folder  = excluded.is_folder,
  updated_at = excluded.updated_at
`, ownerID, path, sizeBytes, boolToInt(isFolder), now, now)
	return err
}

// GetFileEntry returns the entry at (owner, path), preferring the live
// row over tombstones.
func (d *DB) GetFileEntry(ctx context.Context, ownerID int64, path string) (*FileEntry, bool, error) {
	row := d.sql.QueryRowContext(ctx, `
SELECT `+fileEntryCols+` FROM file_entry
WHERE owner_id = ? AND path = ?
ORDER BY is_deleted ASC, updated_at DESC, id DESC
LIMIT 1
`, ownerID, path)
	e, err := scanFileEntry(row)
	if err == nil {
		return e, true, nil
	}
	if err == sql.ErrNoRows {
		return nil, false, nil
	}
	return nil, false, err
}

// ListFiles returns the owner's live entries sorted by path.
func (d *DB) ListFiles(ctx context.Context, ownerID int64) ([]FileEntry, error) {
	return d.listEntries(ctx, `
SELECT `+fileEntryCols+` FROM file_entry
WHERE owner_id = ? AND is_deleted = 0
ORDER BY path ASC
`, ownerID)
}

// ListDeletedFiles returns the owner's tombstoned entries sorted by path.
func (d *DB) ListDeletedFiles(ctx context.Context, ownerID int64) ([]FileEntry, error) {
	return d.listEntries(ctx, `
SELECT `+fileEntryCols+` FROM file_entry
WHERE owner_id = ? AND is_deleted = 1
ORDER BY path ASC
`, ownerID)
}

func (d *DB) listEntries(ctx context.Context, query string, args ...any) ([]FileEntry, error) {
	rows, err := d.sql.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []FileEntry
	for rows.Next() {
		e, err := scanFileEntry(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *e)
	}
	return out, rows.Err()
}

// SoftDeleteFileEntry tombstones the live row at (owner, path). The
// boolean reports whether a live row was found.
func (d *DB) SoftDeleteFileEntry(ctx context.Context, ownerID int64, path string) (bool, error) {
	res, err := d.sql.ExecContext(ctx, `
UPDATE file_entry SET is_deleted = 1, deleted_at = ?, updated_at = ?
WHERE owner_id = ? AND path = ? AND is_deleted = 0
`, nowUnix(), nowUnix(), ownerID, path)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	return n > 0, err
}

// RestoreFileEntry clears the most recent tombstone at (owner, path).
// It fails if a live row already occupies the path.
func (d *DB) RestoreFileEntry(ctx context.Context, ownerID int64, path string) (bool, error) {
	res, err := d.sql.ExecContext(ctx, `
UPDATE file_entry SET is_deleted = 0, deleted_at = NULL, updated_at = ?
WHERE id = (
  SELECT id FROM file_entry
  WHERE owner_id = ? AND path = ? AND is_deleted = 1
  ORDER BY deleted_at DESC, id DESC LIMIT 1
)
`, nowUnix(), ownerID, path)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	return n > 0, err
}

// RenameFileEntry rewrites the path of the live row at (owner, old).
func (d *DB) RenameFileEntry(ctx context.Context, ownerID int64, oldPath, newPath string) (bool, error) {
	res, err := d.sql.ExecContext(ctx, `
UPDATE file_entry SET path = ?, updated_at = ?
WHERE owner_id = ? AND path = ? AND is_deleted = 0
`, newPath, nowUnix(), ownerID, oldPath)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	return n > 0, err
}

// CopyFileEntry duplicates the live row at (owner, src) to dst,
// including the source's ACL rows, in one transaction.
func (d *DB) CopyFileEntry(ctx context.Context, ownerID int64, srcPath, dstPath string) error {
	tx, err := d.sql.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	var srcID, size int64
	var folder int
	err = tx.QueryRowContext(ctx, `
SELECT id, size_bytes, is_folder FROM file_entry
WHERE owner_id = ? AND path = ? AND is_deleted = 0
`, ownerID, srcPath).Scan(&srcID, &size, &folder)
	if err != nil {
		return err
	}

	now := nowUnix()
	res, err := tx.ExecContext(ctx, `
INSERT INTO file_entry(owner_id, path, size_bytes, is_folder, is_deleted, created_at, updated_at)
VALUES(?, ?, ?, ?, 0, ?, ?)
ON CONFLICT(owner_id, path) WHERE is_deleted = 0 DO UPDATE SET
  size_bytes = excluded.size_bytes,
  is_folder  = excluded.is_folder,
  updated_at = excluded.updated_at
`, ownerID, dstPath, size, folder, now, now)
	if err != nil {
		return err
	}
	dstID, err := res.LastInsertId()
	if err != nil {
		return err
	}
	// The upsert may have updated an existing destination row, in
	// which case LastInsertId is stale; resolve the id explicitly.
	err = tx.QueryRowContext(ctx, `
SELECT id FROM file_entry WHERE owner_id = ? AND path = ? AND is_deleted = 0
`, ownerID, dstPath).Scan(&dstID)
	if err != nil {
		return err
	}

	_, err = tx.ExecContext(ctx, `
INSERT INTO file_acl(file_id, grantee_id, can_view, can_download, can_edit, created_at)
SELECT ?, grantee_id, can_view, can_download, can_edit, ?
FROM file_acl WHERE file_id = ?
ON CONFLICT(file_id, grantee_id) DO UPDATE SET
  can_view     = excluded.can_view,
  can_download = excluded.can_download,
  can_edit     = excluded.can_edit
`, dstID, now, srcID)
	if err != nil {
		return err
	}

	return tx.Commit()
}
