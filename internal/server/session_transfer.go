package server

import (
	"context"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/spf13/afero"

	"github.com/TiepKun/fileshare/internal/db"
	"github.com/TiepKun/fileshare/internal/wire"
)

func parseSize(tok string) (int64, bool) {
	n, err := strconv.ParseInt(tok, 10, 64)
	if err != nil || n < 0 {
		return 0, false
	}
	return n, true
}

func isTxtFile(rel string) bool {
	return strings.HasSuffix(rel, ".txt")
}

// receiveBody reads exactly total bytes from the client into w in
// chunks, crediting bytes_in. It returns the bytes written so far and
// the first error. A chunk cut short by a disconnect still has its
// received prefix written, so the checkpoint offset is exact.
func (s *session) receiveBody(w io.Writer, total int64) (int64, error) {
	buf := make([]byte, chunkSize)
	var received int64
	for received < total {
		chunk := total - received
		if chunk > chunkSize {
			chunk = chunkSize
		}
		n, rerr := io.ReadFull(s.r, buf[:chunk])
		if n > 0 {
			if _, werr := w.Write(buf[:n]); werr != nil {
				return received, werr
			}
			received += int64(n)
			s.srv.addBytesIn(int64(n))
		}
		if rerr != nil {
			return received, rerr
		}
	}
	return received, nil
}

// cmdUpload streams a client file into the user's tree. The size comes
// before the path so the path may contain spaces.
func (s *session) cmdUpload(ctx context.Context, tokens []string) bool {
	if len(tokens) < 3 {
		return s.send("ERR 400 Usage: UPLOAD <size> <path>")
	}
	size, ok := parseSize(tokens[1])
	if !ok {
		return s.send("ERR 400 Invalid size")
	}
	rel := strings.Join(tokens[2:], " ")

	v := s.srv.vaultFor(s.user.Username)
	oldSize := v.Size(rel)
	additional := size - oldSize
	if additional < 0 {
		additional = 0
	}

	// Check-and-reserve happens before the intermediate line, so a
	// rejected upload never reads a single body byte.
	res, err := s.srv.quota.Reserve(s.user.Username, additional)
	if err != nil {
		return s.send("ERR 403 Quota exceeded")
	}

	tmp, err := v.CreateTmp(rel)
	if err != nil {
		res.Release()
		return s.send("ERR 500 Cannot open temp file")
	}

	if !s.send("OK 100 Ready to receive") {
		tmp.Close()
		res.Release()
		return false
	}

	received, err := s.receiveBody(tmp, size)
	cerr := tmp.Close()
	if err != nil || cerr != nil {
		res.Release()
		// Keep the partial tmp file and checkpoint the safe offset so
		// the client can CONTINUE_UPLOAD after reconnecting. No line is
		// written: the body has begun and the stream cannot resync.
		s.checkpointUpload(ctx, rel, size, received)
		return false
	}

	if err := v.CommitTmp(rel); err != nil {
		res.Release()
		return s.send("ERR 500 Cannot finalize upload")
	}

	res.Commit(size - oldSize)
	s.persistUsed(ctx, s.user.ID, s.user.Username)
	if err := s.srv.db.UpsertFileEntry(ctx, s.user.ID, rel, size, false); err != nil {
		return s.send("ERR 500 DB error: " + err.Error())
	}
	s.clearTransferSession(ctx, rel, db.DirUpload)

	s.auditEvent(ctx, "UPLOAD", fmt.Sprintf("%s size=%d", rel, size))
	return s.send("OK 200 Upload completed")
}

// checkpointUpload records how many bytes of an interrupted upload are
// safely on disk. Best effort; the session is going away regardless.
func (s *session) checkpointUpload(ctx context.Context, rel string, total, offset int64) {
	ts, ok, err := s.srv.db.GetTransferSession(ctx, s.user.ID, rel, db.DirUpload)
	if err == nil && ok {
		err = s.srv.db.UpdateTransferSession(ctx, ts.ID, offset)
	} else if err == nil {
		_, err = s.srv.db.CreateTransferSession(ctx, s.user.ID, rel, db.DirUpload, total, offset)
	}
	if err != nil {
		s.log.Warn("upload checkpoint failed", "error", err)
	}
}

func (s *session) clearTransferSession(ctx context.Context, rel, direction string) {
	ts, ok, err := s.srv.db.GetTransferSession(ctx, s.user.ID, rel, direction)
	if err == nil && ok {
		err = s.srv.db.DeleteTransferSession(ctx, ts.ID)
	}
	if err != nil {
		s.log.Warn("clearing transfer session failed", "error", err)
	}
}

func (s *session) cmdDownload(ctx context.Context, tokens []string) bool {
	if len(tokens) < 2 {
		return s.send("ERR 400 Usage: DOWNLOAD <path>")
	}
	rel := tokens[1]

	r, ok, err := s.resolveFile(ctx, rel)
	if err != nil {
		return s.send("ERR 500 DB error: " + err.Error())
	}
	if !ok || !r.perm.Download {
		return s.send("ERR 403 Permission denied")
	}

	v := s.srv.vaultFor(r.ownerName)
	st, err := v.Stat(rel)
	if err != nil || !st.Mode().IsRegular() {
		return s.send("ERR 404 File not found")
	}
	size := st.Size()

	f, err := v.OpenRead(rel)
	if err != nil {
		return s.send("ERR 500 Cannot open file")
	}
	defer f.Close()

	if !s.send(fmt.Sprintf("OK 100 %d", size)) {
		return false
	}

	sent, err := s.sendBody(f, size)
	if err != nil {
		// Record progress so the client can CONTINUE_DOWNLOAD.
		s.checkpointDownload(ctx, rel, size, sent)
		return false
	}

	s.clearTransferSession(ctx, rel, db.DirDownload)
	s.auditEvent(ctx, "DOWNLOAD", fmt.Sprintf("%s size=%d", rel, size))
	// No final line: the body is the response.
	return true
}

// sendBody streams total bytes from f to the client, crediting
// bytes_out. It returns the bytes sent and the first error.
func (s *session) sendBody(f afero.File, total int64) (int64, error) {
	buf := make([]byte, chunkSize)
	var sent int64
	for sent < total {
		chunk := total - sent
		if chunk > chunkSize {
			chunk = chunkSize
		}
		if err := wire.ReadFull(f, buf[:chunk]); err != nil {
			return sent, err
		}
		if err := wire.WriteFull(s.conn, buf[:chunk]); err != nil {
			return sent, err
		}
		sent += chunk
		s.srv.addBytesOut(chunk)
	}
	return sent, nil
}

func (s *session) checkpointDownload(ctx context.Context, rel string, total, offset int64) {
	ts, ok, err := s.srv.db.GetTransferSession(ctx, s.user.ID, rel, db.DirDownload)
	if err == nil && ok {
		err = s.srv.db.UpdateTransferSession(ctx, ts.ID, offset)
	} else if err == nil {
		_, err = s.srv.db.CreateTransferSession(ctx, s.user.ID, rel, db.DirDownload, total, offset)
	}
	if err != nil {
		s.log.Warn("download checkpoint failed", "error", err)
	}
}

func (s *session) cmdGetText(ctx context.Context, tokens []string) bool {
	if len(tokens) < 2 {
		return s.send("ERR 400 Usage: GET_TEXT <path>")
	}
	rel := tokens[1]
	if !isTxtFile(rel) {
		return s.send("ERR 415 Only .txt allowed")
	}

	r, ok, err := s.resolveFile(ctx, rel)
	if err != nil {
		return s.send("ERR 500 DB error: " + err.Error())
	}
	if !ok || !(r.perm.View || r.perm.Edit) {
		return s.send("ERR 403 Permission denied")
	}

	v := s.srv.vaultFor(r.ownerName)
	content, err := v.ReadFile(rel)
	if err != nil {
		return s.send("ERR 404 File not found")
	}

	if !s.send(fmt.Sprintf("OK 100 %d", len(content))) {
		return false
	}
	if err := wire.WriteFull(s.conn, content); err != nil {
		return false
	}
	s.srv.addBytesOut(int64(len(content)))
	s.auditEvent(ctx, "GET_TEXT", fmt.Sprintf("%s size=%d", rel, len(content)))
	return true
}

// cmdPutText writes a .txt file. For a file shared by another owner,
// edit permission routes the write into that owner's tree; without it
// the write is refused rather than silently forked into the writer's
// own tree.
func (s *session) cmdPutText(ctx context.Context, tokens []string) bool {
	if len(tokens) < 3 {
		return s.send("ERR 400 Usage: PUT_TEXT <path> <size>")
	}
	rel := tokens[1]
	if !isTxtFile(rel) {
		return s.send("ERR 415 Only .txt allowed")
	}
	size, ok := parseSize(tokens[2])
	if !ok {
		return s.send("ERR 400 Invalid size")
	}

	ownerID := s.user.ID
	ownerName := s.user.Username

	e, owned, err := s.srv.db.GetFileEntry(ctx, s.user.ID, rel)
	if err != nil {
		return s.send("ERR 500 DB error: " + err.Error())
	}
	if !owned || e.IsDeleted {
		sf, shared, err := s.srv.db.FindSharedFile(ctx, s.user.ID, rel)
		if err != nil {
			return s.send("ERR 500 DB error: " + err.Error())
		}
		if shared {
			perm, err := s.srv.db.CheckPermission(ctx, sf.FileID, s.user.ID)
			if err != nil {
				return s.send("ERR 500 DB error: " + err.Error())
			}
			if !perm.Edit {
				return s.send("ERR 403 Permission denied (edit required)")
			}
			ownerID = sf.OwnerID
			ownerName = sf.OwnerName
		}
		// Neither owned nor shared: a fresh file under the current user.
	}

	v := s.srv.vaultFor(ownerName)
	oldSize := v.Size(rel)
	additional := size - oldSize
	if additional < 0 {
		additional = 0
	}
	res, err := s.srv.quota.Reserve(ownerName, additional)
	if err != nil {
		return s.send("ERR 403 Quota exceeded")
	}

	tmp, err := v.CreateTmp(rel)
	if err != nil {
		res.Release()
		return s.send("ERR 500 Cannot open temp file")
	}

	if !s.send("OK 100 Ready to receive") {
		tmp.Close()
		res.Release()
		return false
	}

	_, err = s.receiveBody(tmp, size)
	cerr := tmp.Close()
	if err != nil || cerr != nil {
		res.Release()
		return false
	}

	if err := v.CommitTmp(rel); err != nil {
		res.Release()
		return s.send("ERR 500 Cannot finalize write")
	}

	res.Commit(size - oldSize)
	s.persistUsed(ctx, ownerID, ownerName)
	if err := s.srv.db.UpsertFileEntry(ctx, ownerID, rel, size, false); err != nil {
		return s.send("ERR 500 DB error: " + err.Error())
	}

	s.auditEvent(ctx, "PUT_TEXT", fmt.Sprintf("%s size=%d", rel, size))
	return s.send("OK 200 Text file updated")
}

func (s *session) cmdPauseUpload(ctx context.Context, tokens []string) bool {
	if len(tokens) < 2 {
		return s.send("ERR 400 Usage: PAUSE_UPLOAD <path> [total]")
	}
	rel := tokens[1]

	v := s.srv.vaultFor(s.user.Username)
	// The partial bytes live in the tmp sibling until commit.
	current := v.TmpSize(rel)
	if !v.HasTmp(rel) {
		current = v.Size(rel)
	}

	ts, ok, err := s.srv.db.GetTransferSession(ctx, s.user.ID, rel, db.DirUpload)
	if err != nil {
		return s.send("ERR 500 DB error: " + err.Error())
	}
	if ok {
		if err := s.srv.db.UpdateTransferSession(ctx, ts.ID, current); err != nil {
			return s.send("ERR 500 DB error: " + err.Error())
		}
	} else {
		var total int64
		if len(tokens) >= 3 {
			total, _ = parseSize(tokens[2])
		}
		if _, err := s.srv.db.CreateTransferSession(ctx, s.user.ID, rel, db.DirUpload, total, current); err != nil {
			return s.send("ERR 500 Cannot create session")
		}
	}

	s.auditEvent(ctx, "PAUSE_UPLOAD", fmt.Sprintf("%s at %d", rel, current))
	return s.send(fmt.Sprintf("OK 200 Upload paused at offset %d", current))
}

func (s *session) cmdContinueUpload(ctx context.Context, tokens []string) bool {
	if len(tokens) < 2 {
		return s.send("ERR 400 Usage: CONTINUE_UPLOAD <path>")
	}
	rel := tokens[1]

	ts, ok, err := s.srv.db.GetTransferSession(ctx, s.user.ID, rel, db.DirUpload)
	if err != nil {
		return s.send("ERR 500 DB error: " + err.Error())
	}
	if !ok {
		return s.send("ERR 404 No paused upload found")
	}
	if ts.TotalBytes < ts.Offset {
		return s.send("ERR 400 Invalid resume offset")
	}
	remaining := ts.TotalBytes - ts.Offset
	if remaining == 0 {
		s.clearTransferSession(ctx, rel, db.DirUpload)
		return s.send("OK 200 Upload already completed")
	}

	v := s.srv.vaultFor(s.user.Username)

	// The final size will replace whatever size is currently recorded.
	var prevSize int64
	if e, ok, err := s.srv.db.GetFileEntry(ctx, s.user.ID, rel); err == nil && ok && !e.IsDeleted {
		prevSize = e.SizeBytes
	}
	additional := ts.TotalBytes - prevSize
	if additional < 0 {
		additional = 0
	}
	res, err := s.srv.quota.Reserve(s.user.Username, additional)
	if err != nil {
		return s.send("ERR 403 Quota exceeded")
	}

	f, isTmp, err := v.OpenResume(rel)
	if err != nil {
		res.Release()
		return s.send("ERR 500 Cannot open file")
	}

	if !s.send(fmt.Sprintf("OK 100 Continue from %d size %d", ts.Offset, remaining)) {
		f.Close()
		res.Release()
		return false
	}

	buf := make([]byte, chunkSize)
	var received int64
	chunks := 0
	for received < remaining {
		chunk := remaining - received
		if chunk > chunkSize {
			chunk = chunkSize
		}
		n, rerr := io.ReadFull(s.r, buf[:chunk])
		if n > 0 {
			if _, werr := f.Write(buf[:n]); werr != nil {
				f.Close()
				res.Release()
				return false
			}
			received += int64(n)
			s.srv.addBytesIn(int64(n))
		}
		if rerr != nil {
			f.Close()
			res.Release()
			if uerr := s.srv.db.UpdateTransferSession(ctx, ts.ID, ts.Offset+received); uerr != nil {
				s.log.Warn("upload checkpoint failed", "error", uerr)
			}
			return false
		}
		chunks++
		if chunks%checkpointEvery == 0 {
			if uerr := s.srv.db.UpdateTransferSession(ctx, ts.ID, ts.Offset+received); uerr != nil {
				s.log.Warn("upload checkpoint failed", "error", uerr)
			}
		}
	}
	if err := f.Close(); err != nil {
		res.Release()
		return s.send("ERR 500 Cannot finalize upload")
	}

	if isTmp {
		if err := v.CommitTmp(rel); err != nil {
			res.Release()
			return s.send("ERR 500 Cannot finalize upload")
		}
	}
	if err := s.srv.db.DeleteTransferSession(ctx, ts.ID); err != nil {
		s.log.Warn("clearing transfer session failed", "error", err)
	}

	finalSize := v.Size(rel)
	res.Commit(finalSize - prevSize)
	s.persistUsed(ctx, s.user.ID, s.user.Username)
	if err := s.srv.db.UpsertFileEntry(ctx, s.user.ID, rel, finalSize, false); err != nil {
		return s.send("ERR 500 DB error: " + err.Error())
	}

	s.auditEvent(ctx, "CONTINUE_UPLOAD", fmt.Sprintf("%s completed size=%d", rel, finalSize))
	return s.send("OK 200 Upload completed")
}

func (s *session) cmdPauseDownload(ctx context.Context, tokens []string) bool {
	if len(tokens) < 2 {
		return s.send("ERR 400 Usage: PAUSE_DOWNLOAD <path> [offset]")
	}
	rel := tokens[1]

	r, ok, err := s.resolveFile(ctx, rel)
	if err != nil {
		return s.send("ERR 500 DB error: " + err.Error())
	}
	if !ok || !r.perm.Download {
		return s.send("ERR 403 Permission denied")
	}

	// Existence comes from Stat, not from a zero size, so a zero-byte
	// file can still be paused.
	v := s.srv.vaultFor(r.ownerName)
	var total int64
	if st, err := v.Stat(rel); err == nil && st.Mode().IsRegular() {
		total = st.Size()
	} else if r.size > 0 {
		total = r.size
	} else {
		return s.send("ERR 404 File not found")
	}

	var offset int64
	if len(tokens) >= 3 {
		offset, _ = parseSize(tokens[2])
	}

	ts, ok, err := s.srv.db.GetTransferSession(ctx, s.user.ID, rel, db.DirDownload)
	if err != nil {
		return s.send("ERR 500 DB error: " + err.Error())
	}
	if ok {
		if err := s.srv.db.UpdateTransferSession(ctx, ts.ID, offset); err != nil {
			return s.send("ERR 500 DB error: " + err.Error())
		}
	} else {
		if _, err := s.srv.db.CreateTransferSession(ctx, s.user.ID, rel, db.DirDownload, total, offset); err != nil {
			return s.send("ERR 500 Cannot create session")
		}
	}

	s.auditEvent(ctx, "PAUSE_DOWNLOAD", fmt.Sprintf("%s at %d", rel, offset))
	return s.send(fmt.Sprintf("OK 200 Download paused at offset %d", offset))
}

func (s *session) cmdContinueDownload(ctx context.Context, tokens []string) bool {
	if len(tokens) < 2 {
		return s.send("ERR 400 Usage: CONTINUE_DOWNLOAD <path>")
	}
	rel := tokens[1]

	ts, ok, err := s.srv.db.GetTransferSession(ctx, s.user.ID, rel, db.DirDownload)
	if err != nil {
		return s.send("ERR 500 DB error: " + err.Error())
	}
	if !ok {
		return s.send("ERR 404 No paused download found")
	}

	r, ok, err := s.resolveFile(ctx, rel)
	if err != nil {
		return s.send("ERR 500 DB error: " + err.Error())
	}
	if !ok || !r.perm.Download {
		return s.send("ERR 403 Permission denied")
	}

	v := s.srv.vaultFor(r.ownerName)
	f, err := v.OpenRead(rel)
	if err != nil {
		return s.send("ERR 500 Cannot open file")
	}
	defer f.Close()
	if _, err := f.Seek(ts.Offset, io.SeekStart); err != nil {
		return s.send("ERR 500 Cannot open file")
	}
	remaining := ts.TotalBytes - ts.Offset
	if remaining < 0 {
		return s.send("ERR 400 Invalid resume offset")
	}

	if !s.send(fmt.Sprintf("OK 100 Continue from %d size %d", ts.Offset, remaining)) {
		return false
	}

	buf := make([]byte, chunkSize)
	var sent int64
	chunks := 0
	for sent < remaining {
		chunk := remaining - sent
		if chunk > chunkSize {
			chunk = chunkSize
		}
		if err := wire.ReadFull(f, buf[:chunk]); err != nil {
			return false
		}
		if err := wire.WriteFull(s.conn, buf[:chunk]); err != nil {
			if uerr := s.srv.db.UpdateTransferSession(ctx, ts.ID, ts.Offset+sent); uerr != nil {
				s.log.Warn("download checkpoint failed", "error", uerr)
			}
			return false
		}
		sent += chunk
		s.srv.addBytesOut(chunk)
		chunks++
		if chunks%checkpointEvery == 0 {
			if uerr := s.srv.db.UpdateTransferSession(ctx, ts.ID, ts.Offset+sent); uerr != nil {
				s.log.Warn("download checkpoint failed", "error", uerr)
			}
		}
	}

	if err := s.srv.db.DeleteTransferSession(ctx, ts.ID); err != nil {
		s.log.Warn("clearing transfer session failed", "error", err)
	}
	s.auditEvent(ctx, "CONTINUE_DOWNLOAD", rel+" completed")
	return true
}
