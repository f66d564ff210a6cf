package index

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/mattn/go-sqlite3"

	"dedup-go/internal/dedup"
	"dedup-go/internal/index/migrations"
)

// SQLiteIndex implements dedup.Index on a local SQLite database.
type SQLiteIndex struct {
	db    *sql.DB
	idgen dedup.IDGenerator
	clock dedup.Clock
	path  string
}

// OpenConnection opens and configures a SQLite connection. Foreign keys
// are enforced (groups cascade on delete), WAL and a busy timeout keep
// concurrent worker sessions from tripping over each other.
func OpenConnection(path string) (*sql.DB, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("opening index database: %w", err)
	}

	for _, pragma := range []string{
		"PRAGMA foreign_keys = ON",
		"PRAGMA journal_mode = WAL",
		"PRAGMA busy_timeout = 5000",
	} {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, fmt.Errorf("applying %s: %w", pragma, err)
		}
	}
	return db, nil
}

// NewSQLiteIndex opens (creating if necessary) the index at path and
// migrates its schema to the latest version.
func NewSQLiteIndex(path string, idgen dedup.IDGenerator, clock dedup.Clock) (*SQLiteIndex, error) {
	db, err := OpenConnection(path)
	if err != nil {
		return nil, err
	}
	if err := migrations.MigrateUp(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrating index schema: %w", err)
	}
	return NewSQLiteIndexFromDB(db, idgen, clock, path), nil
}

// NewSQLiteIndexFromDB wraps an existing connection. The caller is
// responsible for the schema being current.
func NewSQLiteIndexFromDB(db *sql.DB, idgen dedup.IDGenerator, clock dedup.Clock, path string) *SQLiteIndex {
	if idgen == nil {
		idgen = dedup.UUIDGenerator{}
	}
	if clock == nil {
		clock = dedup.RealClock{}
	}
	return &SQLiteIndex{db: db, idgen: idgen, clock: clock, path: path}
}

// Path returns the database file path.
func (s *SQLiteIndex) Path() string { return s.path }

// CheckStatus verifies the schema is at the latest version.
func (s *SQLiteIndex) CheckStatus() error { return migrations.CheckStatus(s.db) }

// Close closes the database.
func (s *SQLiteIndex) Close() error { return s.db.Close() }

// querier is the common surface of *sql.DB and *sql.Conn.
type querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

const recordColumns = `id, hash, size, drive_name, file_path, remote_key, is_original,
	created_at, file_mtime, file_ctime, file_atime, mime_type, file_type`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanRecord(row rowScanner) (*dedup.FileRecord, error) {
	var rec dedup.FileRecord
	var remoteKey, mimeType, category sql.NullString
	var mtime, ctime, atime sql.NullTime
	err := row.Scan(&rec.ID, &rec.Hash, &rec.Size, &rec.DriveName, &rec.FilePath,
		&remoteKey, &rec.IsOriginal, &rec.CreatedAt,
		&mtime, &ctime, &atime, &mimeType, &category)
	if err != nil {
		return nil, err
	}
	rec.RemoteKey = remoteKey.String
	rec.Metadata = dedup.FileMetadata{
		ModifiedAt: mtime.Time,
		ChangedAt:  ctime.Time,
		AccessedAt: atime.Time,
		MimeType:   mimeType.String,
		Category:   category.String,
	}
	return &rec, nil
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

func nullTime(t time.Time) sql.NullTime {
	return sql.NullTime{Time: t, Valid: !t.IsZero()}
}

// Single-record and group operations run on the shared pool.

func (s *SQLiteIndex) GetByID(ctx context.Context, id string) (*dedup.FileRecord, error) {
	return getByID(ctx, s.db, id)
}

func getByID(ctx context.Context, q querier, id string) (*dedup.FileRecord, error) {
	rec, err := scanRecord(q.QueryRowContext(ctx,
		`SELECT `+recordColumns+` FROM files WHERE id = ?`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("finding record by id: %w", err)
	}
	return rec, nil
}

// likeEscape escapes the LIKE wildcards in a literal prefix so paths
// containing % or _ do not over-match.
func likeEscape(s string) string {
	s = strings.ReplaceAll(s, `\`, `\\`)
	s = strings.ReplaceAll(s, `%`, `\%`)
	s = strings.ReplaceAll(s, `_`, `\_`)
	return s
}

func (s *SQLiteIndex) FindByPathPrefix(ctx context.Context, drive, prefix string) ([]*dedup.FileRecord, error) {
	prefix = strings.TrimSuffix(prefix, "/")
	pattern := likeEscape(prefix) + `/%`
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+recordColumns+` FROM files WHERE drive_name = ? AND file_path LIKE ? ESCAPE '\' ORDER BY file_path`,
		drive, pattern)
	if err != nil {
		return nil, fmt.Errorf("finding records by prefix: %w", err)
	}
	defer rows.Close()

	var recs []*dedup.FileRecord
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning record: %w", err)
		}
		recs = append(recs, rec)
	}
	return recs, rows.Err()
}

// Group operations

func (s *SQLiteIndex) CreateGroup(ctx context.Context, name string) (*dedup.Group, error) {
	g := &dedup.Group{ID: s.idgen.New(), Name: name, CreatedAt: s.clock.Now()}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO groups (id, name, created_at) VALUES (?, ?, ?)`,
		g.ID, g.Name, g.CreatedAt)
	if err != nil {
		if isConstraintErr(err) {
			return nil, fmt.Errorf("group %q already exists", name)
		}
		return nil, fmt.Errorf("creating group: %w", err)
	}
	return g, nil
}

func (s *SQLiteIndex) FindGroupByName(ctx context.Context, name string) (*dedup.Group, error) {
	var g dedup.Group
	err := s.db.QueryRowContext(ctx,
		`SELECT id, name, created_at FROM groups WHERE name = ?`, name).
		Scan(&g.ID, &g.Name, &g.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("finding group: %w", err)
	}
	return &g, nil
}

func (s *SQLiteIndex) DeleteGroup(ctx context.Context, name string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM groups WHERE name = ?`, name)
	if err != nil {
		return fmt.Errorf("deleting group: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return fmt.Errorf("no group named %q", name)
	}
	return nil
}

func (s *SQLiteIndex) ListGroups(ctx context.Context) ([]*dedup.GroupInfo, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT g.id, g.name, g.created_at, COUNT(m.file_id)
		FROM groups g
		LEFT JOIN group_members m ON m.group_id = g.id
		GROUP BY g.id
		ORDER BY g.name`)
	if err != nil {
		return nil, fmt.Errorf("listing groups: %w", err)
	}
	defer rows.Close()

	var infos []*dedup.GroupInfo
	for rows.Next() {
		var info dedup.GroupInfo
		if err := rows.Scan(&info.ID, &info.Name, &info.CreatedAt, &info.MemberCount); err != nil {
			return nil, fmt.Errorf("scanning group: %w", err)
		}
		infos = append(infos, &info)
	}
	return infos, rows.Err()
}

func (s *SQLiteIndex) AddToGroup(ctx context.Context, groupID string, fileIDs []string) (int, error) {
	added := 0
	now := s.clock.Now()
	for _, fid := range fileIDs {
		res, err := s.db.ExecContext(ctx,
			`INSERT OR IGNORE INTO group_members (group_id, file_id, added_at) VALUES (?, ?, ?)`,
			groupID, fid, now)
		if err != nil {
			return added, fmt.Errorf("adding member %s: %w", fid, err)
		}
		if n, _ := res.RowsAffected(); n > 0 {
			added++
		}
	}
	return added, nil
}

func (s *SQLiteIndex) RemoveFromGroup(ctx context.Context, groupID string, fileIDs []string) (int, error) {
	removed := 0
	for _, fid := range fileIDs {
		res, err := s.db.ExecContext(ctx,
			`DELETE FROM group_members WHERE group_id = ? AND file_id = ?`, groupID, fid)
		if err != nil {
			return removed, fmt.Errorf("removing member %s: %w", fid, err)
		}
		if n, _ := res.RowsAffected(); n > 0 {
			removed++
		}
	}
	return removed, nil
}

func (s *SQLiteIndex) ListGroupMembers(ctx context.Context, groupID string) ([]*dedup.FileRecord, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+recordColumns+`
		FROM files
		JOIN group_members m ON m.file_id = files.id
		WHERE m.group_id = ?
		ORDER BY drive_name, file_path`, groupID)
	if err != nil {
		return nil, fmt.Errorf("listing group members: %w", err)
	}
	defer rows.Close()

	var recs []*dedup.FileRecord
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning record: %w", err)
		}
		recs = append(recs, rec)
	}
	return recs, rows.Err()
}

// Session acquires a dedicated connection for one worker. Sessions are
// never shared; every check-then-write on them is a single statement whose
// atomicity SQLite guarantees.
func (s *SQLiteIndex) Session(ctx context.Context) (dedup.IndexSession, error) {
	conn, err := s.db.Conn(ctx)
	if err != nil {
		return nil, fmt.Errorf("acquiring index connection: %w", err)
	}
	return &sqliteSession{conn: conn}, nil
}

type sqliteSession struct {
	conn *sql.Conn
}

func (ss *sqliteSession) Close() error { return ss.conn.Close() }

func (ss *sqliteSession) LookupByPath(ctx context.Context, drive, relPath string) (*dedup.FileRecord, error) {
	rec, err := scanRecord(ss.conn.QueryRowContext(ctx,
		`SELECT `+recordColumns+` FROM files WHERE drive_name = ? AND file_path = ?`,
		drive, relPath))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("finding record by path: %w", err)
	}
	return rec, nil
}

func (ss *sqliteSession) LookupOriginalByHash(ctx context.Context, hash string) (*dedup.FileRecord, error) {
	rec, err := scanRecord(ss.conn.QueryRowContext(ctx,
		`SELECT `+recordColumns+` FROM files WHERE hash = ? AND is_original = 1`,
		hash))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("finding original by hash: %w", err)
	}
	return rec, nil
}

func (ss *sqliteSession) InsertIfAbsent(ctx context.Context, rec *dedup.FileRecord) (dedup.InsertOutcome, error) {
	meta := rec.Metadata
	_, err := ss.conn.ExecContext(ctx, `
		INSERT INTO files (id, hash, size, drive_name, file_path, remote_key, is_original,
			created_at, file_mtime, file_ctime, file_atime, mime_type, file_type)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		rec.ID, rec.Hash, rec.Size, rec.DriveName, rec.FilePath,
		nullString(rec.RemoteKey), rec.IsOriginal, rec.CreatedAt,
		nullTime(meta.ModifiedAt), nullTime(meta.ChangedAt), nullTime(meta.AccessedAt),
		nullString(meta.MimeType), nullString(meta.Category))
	if err != nil {
		if isConstraintErr(err) {
			return dedup.AlreadyPresent, nil
		}
		return 0, fmt.Errorf("inserting record: %w", err)
	}
	return dedup.Inserted, nil
}

func (ss *sqliteSession) UpdateMetadata(ctx context.Context, drive, relPath string, meta dedup.FileMetadata) (bool, error) {
	res, err := ss.conn.ExecContext(ctx, `
		UPDATE files
		SET file_mtime = ?, file_ctime = ?, file_atime = ?, mime_type = ?, file_type = ?
		WHERE drive_name = ? AND file_path = ?`,
		nullTime(meta.ModifiedAt), nullTime(meta.ChangedAt), nullTime(meta.AccessedAt),
		nullString(meta.MimeType), nullString(meta.Category),
		drive, relPath)
	if err != nil {
		return false, fmt.Errorf("updating metadata: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

// isConstraintErr reports whether err is a SQLite uniqueness/constraint
// violation.
func isConstraintErr(err error) bool {
	var sqliteErr sqlite3.Error
	return errors.As(err, &sqliteErr) && sqliteErr.Code == sqlite3.ErrConstraint
}

// Compile-time check that SQLiteIndex implements dedup.Index.
var _ dedup.Index = (*SQLiteIndex)(nil)
