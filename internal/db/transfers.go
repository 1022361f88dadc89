package db

import (
	"context"
	"database/sql"
	"errors"
)

// CreateTransferSession records a new checkpoint and returns its id.
func (d *DB) CreateTransferSession(ctx context.Context, userID int64, path, direction string, totalBytes, offset int64) (int64, error) {
	if userID <= 0 || path == "" {
		return 0, errors.New("user and path are required")
	}
	if direction != DirUpload && direction != DirDownload {
		return 0, errors.New("invalid transfer direction")
	}
	res, err := d.sql.ExecContext(ctx, `
INSERT INTO transfer_session(user_id, path, direction, total_bytes, offset_bytes, updated_at)
VALUES(?, ?, ?, ?, ?, ?)
`, userID, path, direction, totalBytes, offset, nowUnix())
	if err != nil {
		return 0, err
	}
	return res.LastInsertId()
}

// GetTransferSession returns the checkpoint for (user, path,
// direction), keeping the most recent one on ambiguity.
func (d *DB) GetTransferSession(ctx context.Context, userID int64, path, direction string) (*TransferSession, bool, error) {
	var ts TransferSession
	err := d.sql.QueryRowContext(ctx, `
SELECT id, user_id, path, direction, total_bytes, offset_bytes, updated_at
FROM transfer_session
WHERE user_id = ? AND path = ? AND direction = ?
ORDER BY updated_at DESC, id DESC
LIMIT 1
`, userID, path, direction).Scan(&ts.ID, &ts.UserID, &ts.Path, &ts.Direction, &ts.TotalBytes, &ts.Offset, &ts.UpdatedAt)
	if err == nil {
		return &ts, true, nil
	}
	if err == sql.ErrNoRows {
		return nil, false, nil
	}
	return nil, false, err
}

// UpdateTransferSession moves a checkpoint's offset forward.
func (d *DB) UpdateTransferSession(ctx context.Context, id, offset int64) error {
	if id <= 0 {
		return errors.New("invalid session id")
	}
	_, err := d.sql.ExecContext(ctx, `
UPDATE transfer_session SET offset_bytes = ?, updated_at = ? WHERE id = ?
`, offset, nowUnix(), id)
	return err
}

// DeleteTransferSession removes a completed checkpoint.
func (d *DB) DeleteTransferSession(ctx context.Context, id int64) error {
	if id <= 0 {
		return errors.New("invalid session id")
	}
	_, err := d.sql.ExecContext(ctx, `DELETE FROM transfer_session WHERE id = ?`, id)
	return err
}
