package server

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"log/slog"
	"net"
	"strings"

	"github.com/google/uuid"

	"github.com/TiepKun/fileshare/internal/auth"
	"github.com/TiepKun/fileshare/internal/db"
	"github.com/TiepKun/fileshare/internal/metrics"
	"github.com/TiepKun/fileshare/internal/wire"
)

// chunkSize is the streaming buffer for bodies; transfer checkpoints
// are persisted every checkpointEvery chunks during resumed transfers.
const (
	chunkSize       = 64 << 10
	checkpointEvery = 10
)

// session is one client connection. It starts unauthenticated; AUTH
// moves it to authenticated and LOGOUT moves it back without closing
// the socket.
type session struct {
	srv  *Server
	conn net.Conn
	r    *bufio.Reader
	log  *slog.Logger

	user          *db.User
	countedOnline bool
}

func (s *session) run(ctx context.Context) {
	id := uuid.NewString()
	s.log = s.log.With("session", id)
	s.log.Debug("session started")

	defer func() {
		// The online claim must be released however the session ends.
		if s.countedOnline && s.user != nil {
			s.srv.online.logout(s.user.Username)
		}
		s.log.Debug("session ended")
	}()

	for {
		line, err := wire.ReadLine(s.r)
		if err != nil {
			if err != io.EOF {
				s.log.Debug("read failed", "error", err)
			}
			return
		}
		if !s.dispatch(ctx, line) {
			return
		}
	}
}

// dispatch handles one request line. It returns false when the session
// must be torn down (mid-body failure, where resynchronization is
// impossible).
func (s *session) dispatch(ctx context.Context, line string) bool {
	tokens := wire.Fields(line)
	if len(tokens) == 0 {
		return s.send("ERR 400 Empty command")
	}
	verb := tokens[0]
	metrics.CommandsTotal.WithLabelValues(verb).Inc()

	switch verb {
	case "AUTH":
		return s.cmdAuth(ctx, tokens)
	case "REGISTER":
		return s.cmdRegister(ctx, tokens)
	case "WHO":
		return s.cmdWho()
	case "STATS":
		return s.cmdStats()
	}

	if s.user == nil {
		return s.send("ERR 401 Not authenticated")
	}

	switch verb {
	case "LOGOUT":
		return s.cmdLogout(ctx)
	case "LIST_DB":
		return s.cmdListDB(ctx)
	case "LIST_DELETED":
		return s.cmdListDeleted(ctx)
	case "CREATE_FOLDER":
		return s.cmdCreateFolder(ctx, tokens)
	case "DELETE":
		return s.cmdDelete(ctx, tokens)
	case "RENAME", "MOVE":
		return s.cmdRename(ctx, verb, tokens)
	case "COPY":
		return s.cmdCopy(ctx, tokens)
	case "RESTORE":
		return s.cmdRestore(ctx, tokens)
	case "UPLOAD":
		return s.cmdUpload(ctx, tokens)
	case "DOWNLOAD":
		return s.cmdDownload(ctx, tokens)
	case "GET_TEXT":
		return s.cmdGetText(ctx, tokens)
	case "PUT_TEXT":
		return s.cmdPutText(ctx, tokens)
	case "PAUSE_UPLOAD":
		return s.cmdPauseUpload(ctx, tokens)
	case "CONTINUE_UPLOAD":
		return s.cmdContinueUpload(ctx, tokens)
	case "PAUSE_DOWNLOAD":
		return s.cmdPauseDownload(ctx, tokens)
	case "CONTINUE_DOWNLOAD":
		return s.cmdContinueDownload(ctx, tokens)
	case "SET_PERMISSION":
		return s.cmdSetPermission(ctx, tokens)
	case "CHECK_PERMISSION":
		return s.cmdCheckPermission(ctx, tokens)
	case "UNZIP":
		return s.cmdUnzip(ctx, tokens)
	}

	return s.send("ERR 400 Unknown command")
}

// send writes one response line. A failed write ends the session.
func (s *session) send(line string) bool {
	if err := wire.WriteLine(s.conn, line); err != nil {
		s.log.Debug("write failed", "error", err)
		return false
	}
	return true
}

func (s *session) remoteAddr() string {
	return s.conn.RemoteAddr().String()
}

// auditEvent writes the event to both the append-only log file and the
// audit table. Failures are logged and swallowed.
func (s *session) auditEvent(ctx context.Context, action, detail string) {
	user := ""
	var uid int64
	if s.user != nil {
		user = s.user.Username
		uid = s.user.ID
	}
	s.srv.audit.Log(user, action+" "+detail)
	if err := s.srv.db.InsertAuditLog(ctx, uid, action, detail, s.remoteAddr()); err != nil {
		s.log.Warn("audit insert failed", "error", err)
	}
}

func (s *session) cmdAuth(ctx context.Context, tokens []string) bool {
	if len(tokens) < 3 {
		return s.send("ERR 400 Usage: AUTH <user> <pass>")
	}
	username, pass := tokens[1], tokens[2]

	u, ok, err := s.srv.db.GetUserByUsername(ctx, username)
	if err != nil {
		return s.send("ERR 500 DB error: " + err.Error())
	}
	if !ok {
		auth.DummyVerify(pass)
		s.srv.audit.Log(username, "Login failed (user not found)")
		return s.send("ERR 403 Invalid credentials")
	}
	if !auth.Verify(pass, u.PassHash) {
		s.srv.audit.Log(username, "Login failed (wrong password)")
		return s.send("ERR 403 Invalid credentials")
	}
	// An authenticated socket may re-AUTH as another user; the old
	// online claim transfers to the new name so it cannot outlive the
	// session that holds it.
	switching := s.countedOnline && s.user != nil && s.user.Username != username
	if !s.countedOnline || switching {
		if s.srv.online.isOnline(username) {
			return s.send("ERR 409 User already logged in")
		}
		if switching {
			s.srv.online.logout(s.user.Username)
		}
		s.srv.online.login(username)
		s.countedOnline = true
	}
	s.user = u

	// Seed the quota cache from the persisted truth.
	s.srv.quota.SetLimit(username, u.QuotaBytes)
	s.srv.quota.SetUsed(username, u.UsedBytes)

	s.log = s.log.With("user", username)
	s.srv.audit.Log(username, "Login success")
	if err := s.srv.db.InsertAuditLog(ctx, u.ID, "login", "Login success", s.remoteAddr()); err != nil {
		s.log.Warn("audit insert failed", "error", err)
	}
	return s.send("OK 200 Authenticated")
}

func (s *session) cmdRegister(ctx context.Context, tokens []string) bool {
	if len(tokens) < 3 {
		return s.send("ERR 400 Usage: REGISTER <user> <pass>")
	}
	username, pass := tokens[1], tokens[2]

	hash, err := auth.HashPassword(pass, auth.DefaultArgon2Params())
	if err != nil {
		return s.send("ERR 500 " + err.Error())
	}
	if _, err := s.srv.db.CreateUser(ctx, username, hash, s.srv.defaultQuota); err != nil {
		if err == db.ErrUserExists {
			return s.send("ERR 409 User already exists")
		}
		return s.send("ERR 500 DB error: " + err.Error())
	}
	s.srv.audit.Log(username, "Registered")
	return s.send("OK 201 Registered")
}

func (s *session) cmdWho() bool {
	return s.send("OK 200 Users online: " + strings.Join(s.srv.online.snapshot(), ", "))
}

func (s *session) cmdStats() bool {
	return s.send(fmt.Sprintf("OK 200 online=%d bytes_in=%d bytes_out=%d",
		s.srv.online.count(), s.srv.bytesIn.Load(), s.srv.bytesOut.Load()))
}

func (s *session) cmdLogout(ctx context.Context) bool {
	if s.user != nil {
		s.auditEvent(ctx, "LOGOUT", s.user.Username)
		if s.countedOnline {
			s.srv.online.logout(s.user.Username)
			s.countedOnline = false
		}
		s.user = nil
	}
	return s.send("OK 200 Logged out")
}

// resolved is the outcome of owner-or-shared path resolution.
type resolved struct {
	fileID    int64
	ownerID   int64
	ownerName string
	size      int64
	isFolder  bool
	perm      db.Permission
}

// resolveFile finds the file entry at path: the current user's own live
// entry first, otherwise the most recent live entry shared with them.
// The returned permission is from the current user's perspective.
func (s *session) resolveFile(ctx context.Context, path string) (*resolved, bool, error) {
	e, ok, err := s.srv.db.GetFileEntry(ctx, s.user.ID, path)
	if err != nil {
		return nil, false, err
	}
	if ok && !e.IsDeleted {
		return &resolved{
			fileID:    e.ID,
			ownerID:   s.user.ID,
			ownerName: s.user.Username,
			size:      e.SizeBytes,
			isFolder:  e.IsFolder,
			perm:      db.Permission{View: true, Download: true, Edit: true},
		}, true, nil
	}

	sf, ok, err := s.srv.db.FindSharedFile(ctx, s.user.ID, path)
	if err != nil || !ok {
		return nil, false, err
	}
	oe, ok, err := s.srv.db.GetFileEntry(ctx, sf.OwnerID, path)
	if err != nil || !ok || oe.IsDeleted {
		return nil, false, err
	}
	perm, err := s.srv.db.CheckPermission(ctx, sf.FileID, s.user.ID)
	if err != nil {
		return nil, false, err
	}
	return &resolved{
		fileID:    sf.FileID,
		ownerID:   sf.OwnerID,
		ownerName: sf.OwnerName,
		size:      oe.SizeBytes,
		isFolder:  oe.IsFolder,
		perm:      perm,
	}, true, nil
}

// persistUsed mirrors the quota cache for one user into the database.
func (s *session) persistUsed(ctx context.Context, userID int64, username string) {
	if err := s.srv.db.UpdateUsedBytes(ctx, userID, s.srv.quota.Used(username)); err != nil {
		s.log.Warn("persisting used bytes failed", "error", err)
	}
}
