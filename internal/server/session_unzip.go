package server

import (
	"archive/zip"
	"context"
	"fmt"
	"io"
	"path"
	"strings"

	"github.com/TiepKun/fileshare/internal/vault"
)

// cmdUnzip extracts an owned .zip archive under the user's tree. The
// sum of uncompressed sizes is reserved against the quota before any
// entry is written.
func (s *session) cmdUnzip(ctx context.Context, tokens []string) bool {
	if len(tokens) < 2 {
		return s.send("ERR 400 Usage: UNZIP <zip_path> [target_dir]")
	}
	zipRel := tokens[1]
	targetDir := ""
	if len(tokens) >= 3 {
		targetDir = tokens[2]
	}

	v := s.srv.vaultFor(s.user.Username)
	if !v.Exists(zipRel) {
		return s.send("ERR 404 Zip file not found")
	}
	if !strings.HasSuffix(zipRel, ".zip") {
		return s.send("ERR 415 Not a zip file")
	}

	f, err := v.OpenRead(zipRel)
	if err != nil {
		return s.send("ERR 500 Cannot open zip file")
	}
	defer f.Close()

	zr, err := zip.NewReader(f, v.Size(zipRel))
	if err != nil {
		return s.send("ERR 500 Cannot open zip file")
	}

	var totalSize int64
	for _, e := range zr.File {
		totalSize += int64(e.UncompressedSize64)
	}
	res, err := s.srv.quota.Reserve(s.user.Username, totalSize)
	if err != nil {
		return s.send("ERR 403 Quota exceeded for unzip")
	}

	var extracted int64
	entries := 0
	for _, e := range zr.File {
		if e.FileInfo().IsDir() {
			continue
		}
		// Joining through the jail rejects escapes like "../../x".
		entryRel := path.Join(targetDir, e.Name)
		n, err := s.extractEntry(v, e, entryRel)
		if err != nil {
			res.Commit(extracted)
			s.persistUsed(ctx, s.user.ID, s.user.Username)
			return s.send("ERR 500 Unzip failed")
		}
		if err := s.srv.db.UpsertFileEntry(ctx, s.user.ID, entryRel, n, false); err != nil {
			res.Commit(extracted)
			return s.send("ERR 500 DB error: " + err.Error())
		}
		extracted += n
		entries++
	}

	res.Commit(extracted)
	s.persistUsed(ctx, s.user.ID, s.user.Username)

	s.auditEvent(ctx, "UNZIP", fmt.Sprintf("%s extracted %d bytes", zipRel, extracted))
	return s.send(fmt.Sprintf("OK 200 Unzipped %d entries", entries))
}

// extractEntry streams one archive member to disk through the usual
// tmp-then-rename discipline.
func (s *session) extractEntry(v *vault.Vault, e *zip.File, rel string) (int64, error) {
	rc, err := e.Open()
	if err != nil {
		return 0, err
	}
	defer rc.Close()

	out, err := v.CreateTmp(rel)
	if err != nil {
		return 0, err
	}
	n, err := io.Copy(out, rc)
	if cerr := out.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		return 0, err
	}
	if err := v.CommitTmp(rel); err != nil {
		return 0, err
	}
	return n, nil
}
