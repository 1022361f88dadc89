package db

import (
	"context"
	"database/sql"
	"errors"
)

// GetFileIDByPath resolves the live entry at (owner, path) to its id.
func (d *DB) GetFileIDByPath(ctx context.Context, ownerID int64, path string) (int64, bool, error) {
	var id int64
	err := d.sql.QueryRowContext(ctx, `
SELECT id FROM file_entry WHERE owner_id = ? AND path = ? AND is_deleted = 0
`, ownerID, path).Scan(&id)
	if err == nil {
		return id, true, nil
	}
	if err == sql.ErrNoRows {
		return 0, false, nil
	}
	return 0, false, err
}

// FindSharedFile locates the most recently updated live entry at path,
// across all owners, for which grantee holds an ACL row.
func (d *DB) FindSharedFile(ctx context.Context, granteeID int64, path string) (*SharedFile, bool, error) {
	var sf SharedFile
	err := d.sql.QueryRowContext(ctx, `
SELECT f.id, f.owner_id, u.username
FROM file_entry f
JOIN file_acl a ON a.file_id = f.id
JOIN app_user u ON u.id = f.owner_id
WHERE f.path = ? AND a.grantee_id = ? AND f.is_deleted = 0
ORDER BY f.updated_at DESC, f.id DESC
LIMIT 1
`, path, granteeID).Scan(&sf.FileID, &sf.OwnerID, &sf.OwnerName)
	if err == nil {
		return &sf, true, nil
	}
	if err == sql.ErrNoRows {
		return nil, false, nil
	}
	return nil, false, err
}

// CheckPermission returns the ACL bits of userID on fileID. The owner
// short-circuits to all three; a missing ACL row yields none.
func (d *DB) CheckPermission(ctx context.Context, fileID, userID int64) (Permission, error) {
	var ownerID int64
	err := d.sql.QueryRowContext(ctx, `SELECT owner_id FROM file_entry WHERE id = ?`, fileID).Scan(&ownerID)
	if err != nil {
		return Permission{}, err
	}
	if ownerID == userID {
		return Permission{View: true, Download: true, Edit: true}, nil
	}

	var view, download, edit int
	err = d.sql.QueryRowContext(ctx, `
SELECT can_view, can_download, can_edit FROM file_acl
WHERE file_id = ? AND grantee_id = ?
`, fileID, userID).Scan(&view, &download, &edit)
	if err == sql.ErrNoRows {
		return Permission{}, nil
	}
	if err != nil {
		return Permission{}, err
	}
	return Permission{View: view != 0, Download: download != 0, Edit: edit != 0}, nil
}

// SetPermission upserts the ACL row for (file, grantee).
func (d *DB) SetPermission(ctx context.Context, fileID, granteeID int64, p Permission) error {
	if fileID <= 0 || granteeID <= 0 {
		return errors.New("invalid file or grantee id")
	}
	_, err := d.sql.ExecContext(ctx, `
INSERT INTO file_acl(file_id, grantee_id, can_view, can_download, can_edit, created_at)
VALUES(?, ?, ?, ?, ?, ?)
ON CONFLICT(file_id, grantee_id) DO UPDATE SET
  can_view     = excluded.can_view,
  can_download = excluded.can_download,
  can_edit     = excluded.can_edit
`, fileID, granteeID, boolToInt(p.View), boolToInt(p.Download), boolToInt(p.Edit), nowUnix())
	return err
}
