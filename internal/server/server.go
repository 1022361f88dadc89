// Package server hosts the file-share TCP service: one accept loop,
// one session goroutine per connection, and the process-wide state the
// sessions share (online table, byte counters, quota cache).
package server

import (
	"bufio"
	"context"
	"errors"
	"log/slog"
	"net"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"

	"github.com/TiepKun/fileshare/internal/audit"
	"github.com/TiepKun/fileshare/internal/auth"
	"github.com/TiepKun/fileshare/internal/db"
	"github.com/TiepKun/fileshare/internal/fsutil"
	"github.com/TiepKun/fileshare/internal/metrics"
	"github.com/TiepKun/fileshare/internal/quota"
	"github.com/TiepKun/fileshare/internal/vault"
)

// DefaultQuotaBytes is the quota assigned to newly registered users.
const DefaultQuotaBytes = 100 << 20

// Options configures the server.
type Options struct {
	Addr         string
	RootDir      string
	DB           *db.DB
	Quota        *quota.Manager
	Audit        *audit.Logger
	Logger       *slog.Logger
	DefaultQuota int64
}

// Server owns the listener and the state shared by all sessions.
type Server struct {
	addr         string
	root         string
	db           *db.DB
	quota        *quota.Manager
	audit        *audit.Logger
	log          *slog.Logger
	defaultQuota int64

	online   *onlineTable
	bytesIn  atomic.Int64
	bytesOut atomic.Int64
}

func New(opt Options) (*Server, error) {
	if opt.DB == nil {
		return nil, errors.New("db is required")
	}
	if opt.Quota == nil {
		return nil, errors.New("quota manager is required")
	}
	if opt.Audit == nil {
		return nil, errors.New("audit logger is required")
	}
	if opt.RootDir == "" {
		return nil, errors.New("root dir is required")
	}
	if opt.Logger == nil {
		opt.Logger = slog.Default()
	}
	if opt.DefaultQuota <= 0 {
		opt.DefaultQuota = DefaultQuotaBytes
	}
	if err := fsutil.EnsureDir(opt.RootDir); err != nil {
		return nil, err
	}
	return &Server{
		addr:         opt.Addr,
		root:         opt.RootDir,
		db:           opt.DB,
		quota:        opt.Quota,
		audit:        opt.Audit,
		log:          opt.Logger,
		defaultQuota: opt.DefaultQuota,
		online:       newOnlineTable(),
	}, nil
}

// ListenAndServe binds the configured address and serves until the
// context is done.
func (s *Server) ListenAndServe(ctx context.Context) error {
	ln, err := net.Listen("tcp", s.addr)
	if err != nil {
		return err
	}
	return s.Serve(ctx, ln)
}

// Serve accepts connections on ln until the context is done. Transient
// accept errors are logged and the loop continues.
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	defer ln.Close()
	go func() {
		<-ctx.Done()
		_ = ln.Close()
	}()

	s.log.Info("listening", "addr", ln.Addr().String())

	for {
		conn, err := ln.Accept()
		if err != nil {
			if ctx.Err() != nil || errors.Is(err, net.ErrClosed) {
				return nil
			}
			s.log.Warn("accept failed", "error", err)
			continue
		}
		go s.handleConn(ctx, conn)
	}
}

func (s *Server) handleConn(ctx context.Context, conn net.Conn) {
	defer conn.Close()

	sess := &session{
		srv:  s,
		conn: conn,
		r:    bufio.NewReaderSize(conn, 64<<10),
		log:  s.log.With("remote", conn.RemoteAddr().String()),
	}
	metrics.ActiveSessions.Inc()
	defer metrics.ActiveSessions.Dec()
	sess.run(ctx)
}

// vaultFor returns the jailed filesystem for one user's tree.
func (s *Server) vaultFor(username string) *vault.Vault {
	return vault.New(filepath.Join(s.root, username))
}

func (s *Server) addBytesIn(n int64) {
	s.bytesIn.Add(n)
	metrics.BytesIn.Add(float64(n))
}

func (s *Server) addBytesOut(n int64) {
	s.bytesOut.Add(n)
	metrics.BytesOut.Add(float64(n))
}

// ImportLegacyAccounts creates users from a plaintext account file, one
// `user:pass` per line. Lines whose user already exists are skipped.
// The old server kept such a file beside the database; honoring it lets
// an operator migrate without re-registering everyone.
func (s *Server) ImportLegacyAccounts(ctx context.Context, path string) error {
	b, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	imported := 0
	for _, line := range strings.Split(string(b), "\n") {
		line = strings.TrimSpace(line)
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		user, pass, found := strings.Cut(line, ":")
		if !found {
			f := strings.Fields(line)
			if len(f) != 2 {
				s.log.Warn("skipping malformed account line")
				continue
			}
			user, pass = f[0], f[1]
		}
		user = strings.TrimSpace(user)
		pass = strings.TrimSpace(pass)
		if user == "" || pass == "" {
			continue
		}

		hash, err := auth.HashPassword(pass, auth.DefaultArgon2Params())
		if err != nil {
			return err
		}
		_, err = s.db.CreateUser(ctx, user, hash, s.defaultQuota)
		if errors.Is(err, db.ErrUserExists) {
			continue
		}
		if err != nil {
			return err
		}
		imported++
	}
	if imported > 0 {
		s.log.Info("imported legacy accounts", "count", imported)
	}
	return nil
}
