// Package vault is the jailed per-user filesystem. Every path a client
// supplies is resolved under the user's root and rejected if it
// escapes. Writes that replace visible files go through a `.tmp`
// sibling and an atomic rename; soft-deleted objects move to `.trash/`
// keeping their relative path.
package vault

import (
	"errors"
	"io"
	"os"
	"path"
	"path/filepath"

	"github.com/spf13/afero"

	"github.com/TiepKun/fileshare/internal/fsutil"
)

const (
	tmpSuffix = ".tmp"
	trashDir  = ".trash"
)

// ErrDestinationExists is returned by Rename when the target path is
// already occupied.
var ErrDestinationExists = errors.New("destination already exists")

// Vault exposes file operations confined to one user's tree.
type Vault struct {
	root string
	fs   afero.Fs
}

func New(root string) *Vault {
	return &Vault{root: root, fs: afero.NewOsFs()}
}

// Root returns the user tree's root directory.
func (v *Vault) Root() string { return v.root }

func (v *Vault) resolve(rel string) (string, error) {
	return fsutil.ResolveWithinRoot(v.root, rel)
}

// Stat stats the object at rel.
func (v *Vault) Stat(rel string) (os.FileInfo, error) {
	p, err := v.resolve(rel)
	if err != nil {
		return nil, err
	}
	return v.fs.Stat(p)
}

// Size returns the size of a regular file at rel, 0 otherwise.
func (v *Vault) Size(rel string) int64 {
	st, err := v.Stat(rel)
	if err != nil || !st.Mode().IsRegular() {
		return 0
	}
	return st.Size()
}

// Exists reports whether rel names an existing regular file.
func (v *Vault) Exists(rel string) bool {
	st, err := v.Stat(rel)
	return err == nil && st.Mode().IsRegular()
}

// IsSymlink reports whether rel itself is a symlink. Used to refuse
// copying links during recursive COPY. The jail resolver rejects
// symlink components outright, so the link is stat'ed via its parent.
func (v *Vault) IsSymlink(rel string) bool {
	parent, err := v.resolve(path.Dir(rel))
	if err != nil {
		return false
	}
	st, err := os.Lstat(filepath.Join(parent, path.Base(rel)))
	return err == nil && st.Mode()&os.ModeSymlink != 0
}

// MkdirAll creates the directory rel and any missing parents.
func (v *Vault) MkdirAll(rel string) error {
	p, err := v.resolve(rel)
	if err != nil {
		return err
	}
	return v.fs.MkdirAll(p, 0o755)
}

func (v *Vault) ensureParent(local string) error {
	return v.fs.MkdirAll(filepath.Dir(local), 0o755)
}

// OpenRead opens the file at rel for reading.
func (v *Vault) OpenRead(rel string) (afero.File, error) {
	p, err := v.resolve(rel)
	if err != nil {
		return nil, err
	}
	return v.fs.Open(p)
}

// ReadFile returns the whole content of the file at rel.
func (v *Vault) ReadFile(rel string) ([]byte, error) {
	p, err := v.resolve(rel)
	if err != nil {
		return nil, err
	}
	return afero.ReadFile(v.fs, p)
}

// ReadDir lists the immediate entries of the directory at rel.
func (v *Vault) ReadDir(rel string) ([]os.FileInfo, error) {
	p, err := v.resolve(rel)
	if err != nil {
		return nil, err
	}
	return afero.ReadDir(v.fs, p)
}

// CreateTmp opens rel's tmp sibling for writing, truncating any
// leftover, and creates missing parent directories.
func (v *Vault) CreateTmp(rel string) (afero.File, error) {
	p, err := v.resolve(rel + tmpSuffix)
	if err != nil {
		return nil, err
	}
	if err := v.ensureParent(p); err != nil {
		return nil, err
	}
	return v.fs.OpenFile(p, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0o600)
}

// CommitTmp atomically renames rel's tmp sibling over rel.
func (v *Vault) CommitTmp(rel string) error {
	tmp, err := v.resolve(rel + tmpSuffix)
	if err != nil {
		return err
	}
	final, err := v.resolve(rel)
	if err != nil {
		return err
	}
	return v.fs.Rename(tmp, final)
}

// HasTmp reports whether a partial upload is parked at rel's tmp path.
func (v *Vault) HasTmp(rel string) bool {
	return v.Exists(rel + tmpSuffix)
}

// TmpSize returns the size of rel's tmp sibling, 0 when absent.
func (v *Vault) TmpSize(rel string) int64 {
	return v.Size(rel + tmpSuffix)
}

// OpenResume opens the file a resumed upload should append to: the tmp
// sibling when one exists, otherwise the final path. It reports which
// one it picked so the caller knows whether to commit afterwards.
func (v *Vault) OpenResume(rel string) (afero.File, bool, error) {
	target := rel
	isTmp := v.HasTmp(rel)
	if isTmp {
		target = rel + tmpSuffix
	}
	p, err := v.resolve(target)
	if err != nil {
		return nil, false, err
	}
	if err := v.ensureParent(p); err != nil {
		return nil, false, err
	}
	f, err := v.fs.OpenFile(p, os.O_WRONLY|os.O_CREATE|os.O_APPEND, 0o600)
	if err != nil {
		return nil, false, err
	}
	return f, isTmp, nil
}

// Rename moves oldRel to newRel. It refuses to clobber an existing
// object at the destination.
func (v *Vault) Rename(oldRel, newRel string) error {
	oldp, err := v.resolve(oldRel)
	if err != nil {
		return err
	}
	newp, err := v.resolve(newRel)
	if err != nil {
		return err
	}
	if _, err := v.fs.Stat(newp); err == nil {
		return ErrDestinationExists
	}
	if err := v.ensureParent(newp); err != nil {
		return err
	}
	return v.fs.Rename(oldp, newp)
}

// MoveToTrash moves the object at rel to .trash/<rel>, creating
// intermediate directories, and returns the moved object's info.
func (v *Vault) MoveToTrash(rel string) (os.FileInfo, error) {
	src, err := v.resolve(rel)
	if err != nil {
		return nil, err
	}
	dst, err := v.resolve(path.Join(trashDir, rel))
	if err != nil {
		return nil, err
	}
	if err := v.ensureParent(dst); err != nil {
		return nil, err
	}
	if err := v.fs.Rename(src, dst); err != nil {
		return nil, err
	}
	return v.fs.Stat(dst)
}

// RestoreFromTrash moves .trash/<rel> back to rel and returns the
// restored object's info. The trash copy must exist.
func (v *Vault) RestoreFromTrash(rel string) (os.FileInfo, error) {
	src, err := v.resolve(path.Join(trashDir, rel))
	if err != nil {
		return nil, err
	}
	st, err := v.fs.Stat(src)
	if err != nil {
		return nil, err
	}
	dst, err := v.resolve(rel)
	if err != nil {
		return nil, err
	}
	if err := v.ensureParent(dst); err != nil {
		return nil, err
	}
	if err := v.fs.Rename(src, dst); err != nil {
		return nil, err
	}
	return st, nil
}

// CopyFile copies the regular file at srcRel to dstRel and returns the
// number of bytes copied.
func (v *Vault) CopyFile(srcRel, dstRel string) (int64, error) {
	srcp, err := v.resolve(srcRel)
	if err != nil {
		return 0, err
	}
	dstp, err := v.resolve(dstRel)
	if err != nil {
		return 0, err
	}
	src, err := v.fs.Open(srcp)
	if err != nil {
		return 0, err
	}
	defer src.Close()
	if err := v.ensureParent(dstp); err != nil {
		return 0, err
	}
	dst, err := v.fs.OpenFile(dstp, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0o600)
	if err != nil {
		return 0, err
	}
	n, err := io.Copy(dst, src)
	if cerr := dst.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		_ = v.fs.Remove(dstp)
		return 0, err
	}
	return n, nil
}
