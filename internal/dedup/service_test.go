package dedup_test

import (
	"bytes"
	"context"
	"testing"

	"dedup-go/internal/dedup"
	"dedup-go/internal/testutil"
)

// staticClassifier returns the same classification for every path. The
// pipelines only record what the classifier says, so a constant is enough.
type staticClassifier struct{}

func (staticClassifier) Classify(string) (string, string) {
	return "text/plain", "Document"
}

func newTestService(t *testing.T, st dedup.Store, fsys dedup.Filesystem) (*dedup.Service, dedup.Index) {
	t.Helper()

	idx := testutil.NewTestIndex(t)
	svc := dedup.NewService(idx, st, fsys, staticClassifier{},
		dedup.NewNopLogger(), testutil.FixedClock(), testutil.NewStubIDGenerator())
	return svc, idx
}

func storedBytes(t *testing.T, st dedup.Store, key string) []byte {
	t.Helper()

	var buf bytes.Buffer
	if err := st.Get(context.Background(), key, &buf); err != nil {
		t.Fatalf("Get(%q) error = %v", key, err)
	}
	return buf.Bytes()
}

func lookupRecord(t *testing.T, idx dedup.Index, drive, relPath string) *dedup.FileRecord {
	t.Helper()

	ctx := context.Background()
	sess, err := idx.Session(ctx)
	if err != nil {
		t.Fatalf("Session() error = %v", err)
	}
	defer sess.Close()

	rec, err := sess.LookupByPath(ctx, drive, relPath)
	if err != nil {
		t.Fatalf("LookupByPath(%q, %q) error = %v", drive, relPath, err)
	}
	return rec
}
