package dedup

import (
	"context"
	"time"
)

// InsertOutcome is the result of a conditional insert into the index.
type InsertOutcome int

const (
	// Inserted means the record was written.
	Inserted InsertOutcome = iota
	// AlreadyPresent means a uniqueness constraint held the record out:
	// either the (drive, path) pair is already tracked, or another record
	// already claims the original slot for this content hash.
	AlreadyPresent
)

// FileRecord is one row of the dedup index: a single (drive, relative path)
// ever observed. For a given content hash at most one record is the
// original; all others are located remotely through the pointer protocol.
type FileRecord struct {
	ID        string
	Hash      string
	Size      int64
	DriveName string
	// FilePath is the slash-separated path relative to the drive root,
	// unsanitized (it may contain control bytes).
	FilePath string
	// RemoteKey is set only for true originals. Non-original records have
	// no locally recorded key; their content lives under the original's.
	RemoteKey  string
	IsOriginal bool
	CreatedAt  time.Time

	Metadata FileMetadata
}

// FileMetadata holds the non-identity fields of a record. All fields are
// refreshable in place; zero values mean "not recorded".
type FileMetadata struct {
	ModifiedAt time.Time
	ChangedAt  time.Time
	AccessedAt time.Time
	MimeType   string
	Category   string
}

// Group is a named, user-defined subset of file records.
type Group struct {
	ID        string
	Name      string
	CreatedAt time.Time
}

// GroupInfo is a group plus its member count, for listings.
type GroupInfo struct {
	Group
	MemberCount int
}

// IndexSession is a connection-scoped handle on the index. Each worker
// acquires its own session at task start and releases it on exit; sessions
// are never shared across goroutines. Every logical check-then-write is a
// short, self-contained statement or transaction.
type IndexSession interface {
	// LookupByPath returns the record for an exact (drive, path) match,
	// or nil if none exists.
	LookupByPath(ctx context.Context, drive, relPath string) (*FileRecord, error)

	// LookupOriginalByHash returns the current original record for a
	// content hash, or nil if no original has been recorded.
	LookupOriginalByHash(ctx context.Context, hash string) (*FileRecord, error)

	// InsertIfAbsent atomically inserts the record unless a uniqueness
	// constraint rejects it. Constraint conflicts are reported as
	// AlreadyPresent, never as an error.
	InsertIfAbsent(ctx context.Context, rec *FileRecord) (InsertOutcome, error)

	// UpdateMetadata refreshes the non-identity fields of the record at
	// (drive, path). Returns false if no such record exists. Idempotent.
	UpdateMetadata(ctx context.Context, drive, relPath string, meta FileMetadata) (bool, error)

	// Close releases the underlying connection.
	Close() error
}

// Index is the persistent dedup index. The single-record queries and group
// operations run on the shared handle; parallel pipelines acquire dedicated
// sessions instead.
type Index interface {
	// Session acquires a connection-scoped session for exclusive use by
	// one worker.
	Session(ctx context.Context) (IndexSession, error)

	// GetByID returns the record with the given id, or nil.
	GetByID(ctx context.Context, id string) (*FileRecord, error)

	// FindByPathPrefix returns all records on a drive whose path lies
	// strictly under the given directory prefix.
	FindByPathPrefix(ctx context.Context, drive, prefix string) ([]*FileRecord, error)

	// Group membership CRUD. Deleting a group cascades to its memberships;
	// adding an existing member is a no-op.
	CreateGroup(ctx context.Context, name string) (*Group, error)
	FindGroupByName(ctx context.Context, name string) (*Group, error)
	DeleteGroup(ctx context.Context, name string) error
	ListGroups(ctx context.Context) ([]*GroupInfo, error)
	AddToGroup(ctx context.Context, groupID string, fileIDs []string) (int, error)
	RemoveFromGroup(ctx context.Context, groupID string, fileIDs []string) (int, error)
	ListGroupMembers(ctx context.Context, groupID string) ([]*FileRecord, error)

	// Close closes the index and all idle sessions.
	Close() error
}
