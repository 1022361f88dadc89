package db

import (
	"context"
	"database/sql"
	"errors"
	"strings"
)

// ErrUserExists is returned by CreateUser on a username conflict.
var ErrUserExists = errors.New("user already exists")

// GetUserByUsername looks up a user by username.
func (d *DB) GetUserByUsername(ctx context.Context, username string) (*User, bool, error) {
	var u User
	err := d.sql.QueryRowContext(ctx, `
SELECT id, username, password_hash, quota_bytes, used_bytes, created_at
FROM app_user WHERE username = ?
`, username).Scan(&u.ID, &u.Username, &u.PassHash, &u.QuotaBytes, &u.UsedBytes, &u.CreatedAt)
	if err == nil {
		return &u, true, nil
	}
	if err == sql.ErrNoRows {
		return nil, false, nil
	}
	return nil, false, err
}

// CreateUser inserts a new user and returns its database ID. A
// username conflict returns ErrUserExists.
func (d *DB) CreateUser(ctx context.Context, username, passHash string, quotaBytes int64) (int64, error) {
	if username == "" || passHash == "" {
		return 0, errors.New("username and password hash are required")
	}
	res, err := d.sql.ExecContext(ctx, `
INSERT INTO app_user(username, password_hash, quota_bytes, used_bytes, created_at)
VALUES(?, ?, ?, 0, ?)
`, username, passHash, quotaBytes, nowUnix())
	if err != nil {
		if strings.Contains(err.Error(), "UNIQUE") {
			return 0, ErrUserExists
		}
		return 0, err
	}
	return res.LastInsertId()
}

// UpdateUsedBytes persists a user's usage counter.
func (d *DB) UpdateUsedBytes(ctx context.Context, userID, usedBytes int64) error {
	if userID <= 0 {
		return errors.New("invalid user id")
	}
	if usedBytes < 0 {
		usedBytes = 0
	}
	_, err := d.sql.ExecContext(ctx, `UPDATE app_user SET used_bytes = ? WHERE id = ?`, usedBytes, userID)
	return err
}
