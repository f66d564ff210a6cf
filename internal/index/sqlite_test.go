package index

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"dedup-go/internal/dedup"
)

func newTestIndex(t *testing.T) *SQLiteIndex {
	t.Helper()
	idx, err := NewSQLiteIndex(filepath.Join(t.TempDir(), "dedup.db"), nil, nil)
	if err != nil {
		t.Fatalf("NewSQLiteIndex() error = %v", err)
	}
	t.Cleanup(func() { idx.Close() })
	return idx
}

func testRecord(id, hash, drive, path string, original bool) *dedup.FileRecord {
	rec := &dedup.FileRecord{
		ID:         id,
		Hash:       hash,
		Size:       42,
		DriveName:  drive,
		FilePath:   path,
		IsOriginal: original,
		CreatedAt:  time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC),
	}
	if original {
		rec.RemoteKey = drive + "/" + path
	}
	return rec
}

func TestInsertAndLookup(t *testing.T) {
	idx := newTestIndex(t)
	ctx := context.Background()

	sess, err := idx.Session(ctx)
	if err != nil {
		t.Fatalf("Session() error = %v", err)
	}
	defer sess.Close()

	rec := testRecord("id-1", "hash-a", "photos", "2024/a.jpg", true)
	outcome, err := sess.InsertIfAbsent(ctx, rec)
	if err != nil {
		t.Fatalf("InsertIfAbsent() error = %v", err)
	}
	if outcome != dedup.Inserted {
		t.Errorf("outcome = %v, want Inserted", outcome)
	}

	got, err := sess.LookupByPath(ctx, "photos", "2024/a.jpg")
	if err != nil {
		t.Fatalf("LookupByPath() error = %v", err)
	}
	if got == nil {
		t.Fatal("LookupByPath() = nil, want record")
	}
	if got.ID != "id-1" || got.Hash != "hash-a" || !got.IsOriginal {
		t.Errorf("got %+v, want inserted record", got)
	}
	if got.RemoteKey != "photos/2024/a.jpg" {
		t.Errorf("RemoteKey = %q, want %q", got.RemoteKey, "photos/2024/a.jpg")
	}

	missing, err := sess.LookupByPath(ctx, "photos", "2024/missing.jpg")
	if err != nil {
		t.Fatalf("LookupByPath() error = %v", err)
	}
	if missing != nil {
		t.Errorf("LookupByPath() = %+v, want nil for unknown path", missing)
	}
}

func TestLookupOriginalByHash(t *testing.T) {
	idx := newTestIndex(t)
	ctx := context.Background()

	sess, err := idx.Session(ctx)
	if err != nil {
		t.Fatalf("Session() error = %v", err)
	}
	defer sess.Close()

	if _, err := sess.InsertIfAbsent(ctx, testRecord("id-1", "hash-a", "photos", "a.jpg", true)); err != nil {
		t.Fatalf("InsertIfAbsent() error = %v", err)
	}
	if _, err := sess.InsertIfAbsent(ctx, testRecord("id-2", "hash-a", "photos", "copy.jpg", false)); err != nil {
		t.Fatalf("InsertIfAbsent() error = %v", err)
	}

	got, err := sess.LookupOriginalByHash(ctx, "hash-a")
	if err != nil {
		t.Fatalf("LookupOriginalByHash() error = %v", err)
	}
	if got == nil || got.ID != "id-1" {
		t.Fatalf("LookupOriginalByHash() = %+v, want id-1", got)
	}

	none, err := sess.LookupOriginalByHash(ctx, "hash-unknown")
	if err != nil {
		t.Fatalf("LookupOriginalByHash() error = %v", err)
	}
	if none != nil {
		t.Errorf("LookupOriginalByHash() = %+v, want nil", none)
	}
}

func TestInsertIfAbsentConstraints(t *testing.T) {
	idx := newTestIndex(t)
	ctx := context.Background()

	sess, err := idx.Session(ctx)
	if err != nil {
		t.Fatalf("Session() error = %v", err)
	}
	defer sess.Close()

	t.Run("duplicate path", func(t *testing.T) {
		if _, err := sess.InsertIfAbsent(ctx, testRecord("id-1", "hash-a", "photos", "a.jpg", true)); err != nil {
			t.Fatalf("InsertIfAbsent() error = %v", err)
		}
		outcome, err := sess.InsertIfAbsent(ctx, testRecord("id-2", "hash-b", "photos", "a.jpg", true))
		if err != nil {
			t.Fatalf("InsertIfAbsent() error = %v", err)
		}
		if outcome != dedup.AlreadyPresent {
			t.Errorf("outcome = %v, want AlreadyPresent", outcome)
		}
	})

	t.Run("second original for same hash", func(t *testing.T) {
		outcome, err := sess.InsertIfAbsent(ctx, testRecord("id-3", "hash-a", "docs", "other.jpg", true))
		if err != nil {
			t.Fatalf("InsertIfAbsent() error = %v", err)
		}
		if outcome != dedup.AlreadyPresent {
			t.Errorf("outcome = %v, want AlreadyPresent (single-original index)", outcome)
		}
	})

	t.Run("non-original for same hash is allowed", func(t *testing.T) {
		outcome, err := sess.InsertIfAbsent(ctx, testRecord("id-4", "hash-a", "docs", "other.jpg", false))
		if err != nil {
			t.Fatalf("InsertIfAbsent() error = %v", err)
		}
		if outcome != dedup.Inserted {
			t.Errorf("outcome = %v, want Inserted", outcome)
		}
	})
}

func TestConcurrentOriginalInsert(t *testing.T) {
	idx := newTestIndex(t)
	ctx := context.Background()

	const racers = 8
	results := make(chan dedup.InsertOutcome, racers)
	errs := make(chan error, racers)
	for i := 0; i < racers; i++ {
		go func(i int) {
			sess, err := idx.Session(ctx)
			if err != nil {
				errs <- err
				return
			}
			defer sess.Close()
			rec := testRecord("id-"+string(rune('a'+i)), "hash-race", "photos", "p"+string(rune('a'+i))+".jpg", true)
			outcome, err := sess.InsertIfAbsent(ctx, rec)
			if err != nil {
				errs <- err
				return
			}
			results <- outcome
		}(i)
	}

	inserted := 0
	for i := 0; i < racers; i++ {
		select {
		case err := <-errs:
			t.Fatalf("concurrent insert error = %v", err)
		case outcome := <-results:
			if outcome == dedup.Inserted {
				inserted++
			}
		}
	}
	if inserted != 1 {
		t.Errorf("inserted %d originals for one hash, want exactly 1", inserted)
	}
}

func TestUpdateMetadata(t *testing.T) {
	idx := newTestIndex(t)
	ctx := context.Background()

	sess, err := idx.Session(ctx)
	if err != nil {
		t.Fatalf("Session() error = %v", err)
	}
	defer sess.Close()

	if _, err := sess.InsertIfAbsent(ctx, testRecord("id-1", "hash-a", "photos", "a.jpg", true)); err != nil {
		t.Fatalf("InsertIfAbsent() error = %v", err)
	}

	meta := dedup.FileMetadata{
		ModifiedAt: time.Date(2026, 8, 10, 9, 0, 0, 0, time.UTC),
		MimeType:   "image/jpeg",
		Category:   "Image",
	}
	updated, err := sess.UpdateMetadata(ctx, "photos", "a.jpg", meta)
	if err != nil {
		t.Fatalf("UpdateMetadata() error = %v", err)
	}
	if !updated {
		t.Error("UpdateMetadata() = false, want true for tracked file")
	}

	got, err := sess.LookupByPath(ctx, "photos", "a.jpg")
	if err != nil {
		t.Fatalf("LookupByPath() error = %v", err)
	}
	if got.Metadata.MimeType != "image/jpeg" || got.Metadata.Category != "Image" {
		t.Errorf("metadata = %+v, want mime/category set", got.Metadata)
	}
	if !got.Metadata.ModifiedAt.Equal(meta.ModifiedAt) {
		t.Errorf("ModifiedAt = %v, want %v", got.Metadata.ModifiedAt, meta.ModifiedAt)
	}

	updated, err = sess.UpdateMetadata(ctx, "photos", "untracked.jpg", meta)
	if err != nil {
		t.Fatalf("UpdateMetadata() error = %v", err)
	}
	if updated {
		t.Error("UpdateMetadata() = true, want false for untracked file")
	}
}

func TestFindByPathPrefix(t *testing.T) {
	idx := newTestIndex(t)
	ctx := context.Background()

	sess, err := idx.Session(ctx)
	if err != nil {
		t.Fatalf("Session() error = %v", err)
	}
	defer sess.Close()

	for _, r := range []*dedup.FileRecord{
		testRecord("id-1", "h1", "photos", "2024/a.jpg", true),
		testRecord("id-2", "h2", "photos", "2024/b.jpg", true),
		testRecord("id-3", "h3", "photos", "2024-backup/c.jpg", true),
		testRecord("id-4", "h4", "docs", "2024/d.txt", true),
	} {
		if _, err := sess.InsertIfAbsent(ctx, r); err != nil {
			t.Fatalf("InsertIfAbsent(%s) error = %v", r.ID, err)
		}
	}

	recs, err := idx.FindByPathPrefix(ctx, "photos", "2024")
	if err != nil {
		t.Fatalf("FindByPathPrefix() error = %v", err)
	}
	if len(recs) != 2 {
		t.Fatalf("got %d records, want 2 (prefix must not match 2024-backup)", len(recs))
	}
	if recs[0].FilePath != "2024/a.jpg" || recs[1].FilePath != "2024/b.jpg" {
		t.Errorf("paths = %q, %q; want sorted 2024/a.jpg, 2024/b.jpg", recs[0].FilePath, recs[1].FilePath)
	}
}

func TestGetByID(t *testing.T) {
	idx := newTestIndex(t)
	ctx := context.Background()

	sess, err := idx.Session(ctx)
	if err != nil {
		t.Fatalf("Session() error = %v", err)
	}
	if _, err := sess.InsertIfAbsent(ctx, testRecord("id-1", "h1", "photos", "a.jpg", true)); err != nil {
		t.Fatalf("InsertIfAbsent() error = %v", err)
	}
	sess.Close()

	got, err := idx.GetByID(ctx, "id-1")
	if err != nil {
		t.Fatalf("GetByID() error = %v", err)
	}
	if got == nil || got.FilePath != "a.jpg" {
		t.Fatalf("GetByID() = %+v, want a.jpg record", got)
	}

	missing, err := idx.GetByID(ctx, "nope")
	if err != nil {
		t.Fatalf("GetByID() error = %v", err)
	}
	if missing != nil {
		t.Errorf("GetByID(nope) = %+v, want nil", missing)
	}
}

func TestGroups(t *testing.T) {
	idx := newTestIndex(t)
	ctx := context.Background()

	sess, err := idx.Session(ctx)
	if err != nil {
		t.Fatalf("Session() error = %v", err)
	}
	for _, r := range []*dedup.FileRecord{
		testRecord("id-1", "h1", "photos", "a.jpg", true),
		testRecord("id-2", "h2", "photos", "b.jpg", true),
	} {
		if _, err := sess.InsertIfAbsent(ctx, r); err != nil {
			t.Fatalf("InsertIfAbsent() error = %v", err)
		}
	}
	sess.Close()

	g, err := idx.CreateGroup(ctx, "vacation")
	if err != nil {
		t.Fatalf("CreateGroup() error = %v", err)
	}
	if g.ID == "" {
		t.Error("CreateGroup() returned empty ID")
	}

	if _, err := idx.CreateGroup(ctx, "vacation"); err == nil {
		t.Error("CreateGroup() with duplicate name succeeded, want error")
	}

	added, err := idx.AddToGroup(ctx, g.ID, []string{"id-1", "id-2", "id-1"})
	if err != nil {
		t.Fatalf("AddToGroup() error = %v", err)
	}
	if added != 2 {
		t.Errorf("AddToGroup() = %d, want 2 (duplicate ignored)", added)
	}

	members, err := idx.ListGroupMembers(ctx, g.ID)
	if err != nil {
		t.Fatalf("ListGroupMembers() error = %v", err)
	}
	if len(members) != 2 {
		t.Fatalf("got %d members, want 2", len(members))
	}

	infos, err := idx.ListGroups(ctx)
	if err != nil {
		t.Fatalf("ListGroups() error = %v", err)
	}
	if len(infos) != 1 || infos[0].MemberCount != 2 {
		t.Fatalf("ListGroups() = %+v, want one group with 2 members", infos)
	}

	removed, err := idx.RemoveFromGroup(ctx, g.ID, []string{"id-2", "id-999"})
	if err != nil {
		t.Fatalf("RemoveFromGroup() error = %v", err)
	}
	if removed != 1 {
		t.Errorf("RemoveFromGroup() = %d, want 1", removed)
	}

	if err := idx.DeleteGroup(ctx, "vacation"); err != nil {
		t.Fatalf("DeleteGroup() error = %v", err)
	}
	if err := idx.DeleteGroup(ctx, "vacation"); err == nil {
		t.Error("DeleteGroup() on missing group succeeded, want error")
	}

	found, err := idx.FindGroupByName(ctx, "vacation")
	if err != nil {
		t.Fatalf("FindGroupByName() error = %v", err)
	}
	if found != nil {
		t.Errorf("FindGroupByName() = %+v, want nil after delete", found)
	}
}
