package server

import (
	"context"
	"fmt"

	"github.com/TiepKun/fileshare/internal/db"
)

func parseBoolToken(tok string) bool {
	return tok == "1" || tok == "true"
}

// cmdSetPermission grants or revokes ACL bits on an owned file. Only
// the owner may share; granting to yourself is a no-op since the owner
// never has a stored ACL row.
func (s *session) cmdSetPermission(ctx context.Context, tokens []string) bool {
	if len(tokens) < 6 {
		return s.send("ERR 400 Usage: SET_PERMISSION <path> <target_user> <view> <download> <edit>")
	}
	rel := tokens[1]
	targetName := tokens[2]
	perm := db.Permission{
		View:     parseBoolToken(tokens[3]),
		Download: parseBoolToken(tokens[4]),
		Edit:     parseBoolToken(tokens[5]),
	}

	fileID, ok, err := s.srv.db.GetFileIDByPath(ctx, s.user.ID, rel)
	if err != nil {
		return s.send("ERR 500 DB error: " + err.Error())
	}
	if !ok {
		return s.send("ERR 404 File not found")
	}

	target, ok, err := s.srv.db.GetUserByUsername(ctx, targetName)
	if err != nil {
		return s.send("ERR 500 DB error: " + err.Error())
	}
	if !ok {
		return s.send("ERR 404 Target user not found")
	}

	if target.ID != s.user.ID {
		if err := s.srv.db.SetPermission(ctx, fileID, target.ID, perm); err != nil {
			return s.send("ERR 500 Cannot set permission: " + err.Error())
		}
	}

	s.auditEvent(ctx, "SET_PERMISSION", rel+" for "+targetName)
	return s.send("OK 200 Permission set")
}

// cmdCheckPermission reports the current user's ACL bits on a path,
// resolving owned files first and shared files second.
func (s *session) cmdCheckPermission(ctx context.Context, tokens []string) bool {
	if len(tokens) < 2 {
		return s.send("ERR 400 Usage: CHECK_PERMISSION <path>")
	}
	rel := tokens[1]

	fileID, ok, err := s.srv.db.GetFileIDByPath(ctx, s.user.ID, rel)
	if err != nil {
		return s.send("ERR 500 DB error: " + err.Error())
	}
	if !ok {
		sf, shared, err := s.srv.db.FindSharedFile(ctx, s.user.ID, rel)
		if err != nil {
			return s.send("ERR 500 DB error: " + err.Error())
		}
		if !shared {
			return s.send("ERR 404 File not found")
		}
		fileID = sf.FileID
	}

	perm, err := s.srv.db.CheckPermission(ctx, fileID, s.user.ID)
	if err != nil {
		return s.send("ERR 500 Cannot check permission: " + err.Error())
	}
	return s.send(fmt.Sprintf("OK 200 view=%d download=%d edit=%d",
		boolBit(perm.View), boolBit(perm.Download), boolBit(perm.Edit)))
}

func boolBit(v bool) int {
	if v {
		return 1
	}
	return 0
}
