package db

import (
	"context"
	"database/sql"
)

// InsertAuditLog appends one audit row. A non-positive userID is
// stored as NULL (pre-auth events).
func (d *DB) InsertAuditLog(ctx context.Context, userID int64, action, detail, remoteAddr string) error {
	var uid sql.NullInt64
	if userID > 0 {
		uid = sql.NullInt64{Int64: userID, Valid: true}
	}
	_, err := d.sql.ExecContext(ctx, `
INSERT INTO audit_log(user_id, action, detail, remote_addr, created_at)
VALUES(?, ?, ?, ?, ?)
`, uid, action, detail, remoteAddr, nowUnix())
	return err
}
