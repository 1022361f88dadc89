package db

// Transfer directions as stored in transfer_session.direction.
const (
	DirUpload   = "UPLOAD"
	DirDownload = "DOWNLOAD"
)

// User is an account with a byte quota.
type User struct {
	ID         int64
	Username   string
	PassHash   string
	QuotaBytes int64
	UsedBytes  int64
	CreatedAt  int64
}

// FileEntry is one object in a user's tree. A soft-deleted entry keeps
// its row (and its tombstone time) until restored.
type FileEntry struct {
	ID        int64
	OwnerID   int64
	Path      string
	SizeBytes int64
	IsFolder  bool
	IsDeleted bool
	DeletedAt int64
	CreatedAt int64
	UpdatedAt int64
}

// Permission is the three independent ACL bits. The owner implicitly
// holds all three; no row is stored for the owner.
type Permission struct {
	View     bool
	Download bool
	Edit     bool
}

// SharedFile identifies a file reachable through an ACL grant.
type SharedFile struct {
	FileID    int64
	OwnerID   int64
	OwnerName string
}

// TransferSession is a resumable-transfer checkpoint.
type TransferSession struct {
	ID         int64
	UserID     int64
	Path       string
	Direction  string
	TotalBytes int64
	Offset     int64
	UpdatedAt  int64
}
