package server

import (
	"context"
	"errors"
	"fmt"
	"path"
	"strings"

	"github.com/TiepKun/fileshare/internal/quota"
	"github.com/TiepKun/fileshare/internal/wire"
)

// maxCopyDepth caps directory recursion in COPY.
const maxCopyDepth = 32

func (s *session) cmdListDB(ctx context.Context) bool {
	files, err := s.srv.db.ListFiles(ctx, s.user.ID)
	if err != nil {
		return s.send("ERR 500 DB error: " + err.Error())
	}
	var b strings.Builder
	for _, f := range files {
		folder := 0
		if f.IsFolder {
			folder = 1
		}
		fmt.Fprintf(&b, "%s|%d|%d\n", f.Path, f.SizeBytes, folder)
	}
	if !s.send(fmt.Sprintf("OK 200 %d", len(files))) {
		return false
	}
	return wire.WriteFull(s.conn, []byte(b.String())) == nil
}

func (s *session) cmdListDeleted(ctx context.Context) bool {
	files, err := s.srv.db.ListDeletedFiles(ctx, s.user.ID)
	if err != nil {
		return s.send("ERR 500 DB error: " + err.Error())
	}
	var b strings.Builder
	for _, f := range files {
		fmt.Fprintf(&b, "%s|%d|%d\n", f.Path, f.SizeBytes, f.DeletedAt)
	}
	if !s.send(fmt.Sprintf("OK 200 %d", len(files))) {
		return false
	}
	s.auditEvent(ctx, "LIST_DELETED", "")
	return wire.WriteFull(s.conn, []byte(b.String())) == nil
}

func (s *session) cmdCreateFolder(ctx context.Context, tokens []string) bool {
	if len(tokens) < 2 {
		return s.send("ERR 400 Usage: CREATE_FOLDER <path>")
	}
	rel := tokens[1]
	v := s.srv.vaultFor(s.user.Username)
	if err := v.MkdirAll(rel); err != nil {
		return s.send("ERR 500 Cannot create folder")
	}
	if err := s.srv.db.UpsertFileEntry(ctx, s.user.ID, rel, 0, true); err != nil {
		return s.send("ERR 500 DB error: " + err.Error())
	}
	s.auditEvent(ctx, "CREATE_FOLDER", rel)
	return s.send("OK 200 Folder created")
}

// cmdDelete soft-deletes an owned entry: the row is tombstoned and the
// filesystem object moves to the trash area, preserving its relative
// path. Sharing never grants delete.
func (s *session) cmdDelete(ctx context.Context, tokens []string) bool {
	if len(tokens) < 2 {
		return s.send("ERR 400 Usage: DELETE <path>")
	}
	rel := tokens[1]

	_, ok, err := s.srv.db.GetFileIDByPath(ctx, s.user.ID, rel)
	if err != nil {
		return s.send("ERR 500 DB error: " + err.Error())
	}
	if !ok {
		return s.send("ERR 404 File not found")
	}

	// Bytes move first; the row is tombstoned only once the trash move
	// has succeeded, so a failed move leaves both sides untouched.
	v := s.srv.vaultFor(s.user.Username)
	st, err := v.MoveToTrash(rel)
	if err != nil {
		return s.send("ERR 500 Move to trash failed")
	}

	if ok, err := s.srv.db.SoftDeleteFileEntry(ctx, s.user.ID, rel); err != nil || !ok {
		if _, rerr := v.RestoreFromTrash(rel); rerr != nil {
			s.log.Warn("trash rollback failed", "error", rerr)
		}
		if err != nil {
			return s.send("ERR 500 DB error: " + err.Error())
		}
		return s.send("ERR 404 File not found")
	}

	if st.Mode().IsRegular() {
		s.srv.quota.Adjust(s.user.Username, -st.Size())
		s.persistUsed(ctx, s.user.ID, s.user.Username)
	}

	s.auditEvent(ctx, "DELETE", rel)
	return s.send("OK 200 Deleted")
}

func (s *session) cmdRename(ctx context.Context, verb string, tokens []string) bool {
	if len(tokens) < 3 {
		return s.send(fmt.Sprintf("ERR 400 Usage: %s <old_path> <new_path>", verb))
	}
	oldRel, newRel := tokens[1], tokens[2]

	v := s.srv.vaultFor(s.user.Username)
	if err := v.Rename(oldRel, newRel); err != nil {
		return s.send("ERR 500 Rename failed")
	}
	if ok, err := s.srv.db.RenameFileEntry(ctx, s.user.ID, oldRel, newRel); err != nil || !ok {
		if err != nil {
			return s.send("ERR 500 DB error: " + err.Error())
		}
		return s.send("ERR 404 File not found")
	}
	s.auditEvent(ctx, verb, oldRel+" -> "+newRel)
	return s.send("OK 200 Renamed")
}

func (s *session) cmdCopy(ctx context.Context, tokens []string) bool {
	if len(tokens) < 3 {
		return s.send("ERR 400 Usage: COPY <src_path> <dst_path>")
	}
	srcRel, dstRel := tokens[1], tokens[2]

	v := s.srv.vaultFor(s.user.Username)
	st, err := v.Stat(srcRel)
	if err != nil {
		return s.send("ERR 404 Source not found")
	}

	if st.Mode().IsRegular() {
		err = s.copyOne(ctx, srcRel, dstRel)
	} else if st.IsDir() {
		err = s.copyTree(ctx, srcRel, dstRel, 0)
	} else {
		return s.send("ERR 500 Copy failed")
	}
	if err != nil {
		if errors.Is(err, quota.ErrQuotaExceeded) {
			return s.send("ERR 403 Quota exceeded")
		}
		return s.send("ERR 500 Copy failed")
	}

	s.auditEvent(ctx, "COPY", srcRel+" -> "+dstRel)
	return s.send("OK 200 Copied")
}

// copyOne copies a regular file, reserving the quota delta before any
// bytes hit the disk, and duplicates the source entry's ACL.
func (s *session) copyOne(ctx context.Context, srcRel, dstRel string) error {
	v := s.srv.vaultFor(s.user.Username)
	size := v.Size(srcRel)

	res, err := s.srv.quota.Reserve(s.user.Username, size)
	if err != nil {
		return err
	}
	n, err := v.CopyFile(srcRel, dstRel)
	if err != nil {
		res.Release()
		return err
	}
	if err := s.srv.db.CopyFileEntry(ctx, s.user.ID, srcRel, dstRel); err != nil {
		// Metadata may lack the source (disk-only file); record the
		// destination on its own.
		if uerr := s.srv.db.UpsertFileEntry(ctx, s.user.ID, dstRel, n, false); uerr != nil {
			res.Release()
			return uerr
		}
	}
	res.Commit(n)
	s.persistUsed(ctx, s.user.ID, s.user.Username)
	return nil
}

// copyTree recursively copies a directory. Symlinks are refused and
// the recursion depth is capped, so a planted link loop cannot spin
// the session forever.
func (s *session) copyTree(ctx context.Context, srcRel, dstRel string, depth int) error {
	if depth > maxCopyDepth {
		return errors.New("copy depth limit exceeded")
	}
	v := s.srv.vaultFor(s.user.Username)
	if v.IsSymlink(srcRel) {
		return errors.New("refusing to copy symlink")
	}
	if err := v.MkdirAll(dstRel); err != nil {
		return err
	}
	entries, err := v.ReadDir(srcRel)
	if err != nil {
		return err
	}
	for _, e := range entries {
		childSrc := path.Join(srcRel, e.Name())
		childDst := path.Join(dstRel, e.Name())
		if v.IsSymlink(childSrc) {
			return errors.New("refusing to copy symlink")
		}
		if e.IsDir() {
			if err := s.copyTree(ctx, childSrc, childDst, depth+1); err != nil {
				return err
			}
		} else {
			if err := s.copyOne(ctx, childSrc, childDst); err != nil {
				return err
			}
		}
	}
	return s.srv.db.UpsertFileEntry(ctx, s.user.ID, dstRel, 0, true)
}

func (s *session) cmdRestore(ctx context.Context, tokens []string) bool {
	if len(tokens) < 2 {
		return s.send("ERR 400 Usage: RESTORE <path>")
	}
	rel := tokens[1]

	ok, err := s.srv.db.RestoreFileEntry(ctx, s.user.ID, rel)
	if err != nil {
		return s.send("ERR 500 DB error: " + err.Error())
	}
	if !ok {
		return s.send("ERR 404 File not found in deleted list")
	}

	v := s.srv.vaultFor(s.user.Username)
	st, err := v.RestoreFromTrash(rel)
	if err != nil {
		// Re-tombstone the row so metadata never points at content the
		// trash no longer holds.
		if _, derr := s.srv.db.SoftDeleteFileEntry(ctx, s.user.ID, rel); derr != nil {
			s.log.Warn("restore rollback failed", "error", derr)
		}
		return s.send("ERR 404 Cannot find deleted file content")
	}

	if st.Mode().IsRegular() {
		s.srv.quota.Adjust(s.user.Username, st.Size())
		s.persistUsed(ctx, s.user.ID, s.user.Username)
	}

	s.auditEvent(ctx, "RESTORE", rel)
	return s.send("OK 200 Restored")
}
