package dedup

import (
	"bytes"
	"context"
	"fmt"
	"io/fs"
	"path"
	"path/filepath"
	"sync"
	"time"
)

const (
	putAttempts = 3
	putBackoff  = 500 * time.Millisecond
)

// UploadOptions configures one upload run.
type UploadOptions struct {
	// Source is the root of the tree to process.
	Source string
	// DriveName is the name of the drive the tree belongs to.
	DriveName string
	// DriveRoot optionally places the tree under a subdirectory of the
	// drive, so a subtree can be backed up into its place.
	DriveRoot string
	// ScanOnly builds the index without any remote call.
	ScanOnly bool
	// DryRun simulates full-mode decisions without any remote or index
	// mutation on the decision branches that would mutate.
	DryRun bool
	// Workers is the worker pool size; DefaultWorkers when zero.
	Workers int
	// OnResult, when set, is called for every completed unit from the
	// collector goroutine (never concurrently).
	OnResult func(Result)
}

// unit is one file admitted into a pipeline.
type unit struct {
	path string
	rel  string
	info fs.FileInfo
}

// Upload walks the source tree and processes every regular file through
// the per-file decision procedure: skip, record-only, upload-original, or
// write-pointer. Per-file failures become Error outcomes; only setup
// failures abort the run before any work is scheduled.
func (s *Service) Upload(ctx context.Context, opts UploadOptions) (*Summary, error) {
	source, info, err := s.fsys.Resolve(opts.Source)
	if err != nil {
		return nil, fmt.Errorf("resolving source: %w", err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("source is not a directory: %s", source)
	}
	if opts.DriveName == "" {
		return nil, fmt.Errorf("drive name is required")
	}

	if !opts.ScanOnly {
		if s.store == nil {
			return nil, fmt.Errorf("no remote store configured")
		}
		if err := s.store.ValidateSetup(ctx); err != nil {
			return nil, fmt.Errorf("remote store unreachable: %w", err)
		}
	}

	mode := "full"
	switch {
	case opts.ScanOnly:
		mode = "scan-only"
	case opts.DryRun:
		mode = "dry-run"
	}
	s.logger.Info("upload started", "source", source, "drive", opts.DriveName, "mode", mode)

	summary, err := s.runFilePool(ctx, source, opts.Workers, opts.OnResult,
		func(ctx context.Context, sess IndexSession, u unit) Result {
			return s.processUpload(ctx, sess, u, opts)
		})
	if err != nil {
		return summary, err
	}

	s.logger.Info("upload finished", "files", summary.Total(), "errors", len(summary.Errors))
	return summary, nil
}

// runFilePool runs the shared worker-pool scaffolding: a producer walking
// the source tree, a fixed pool of workers each holding its own index
// session, and a single collector aggregating results.
//
// Admission control: the jobs channel is buffered to the worker count, so
// at most 2x workers units are in flight (one per worker plus the buffer).
// As each unit completes, exactly one new unit is admitted. Cancelling ctx
// stops admission; in-flight units finish or error out.
func (s *Service) runFilePool(ctx context.Context, source string, workers int, onResult func(Result), process func(context.Context, IndexSession, unit) Result) (*Summary, error) {
	if workers <= 0 {
		workers = DefaultWorkers
	}

	jobs := make(chan unit, workers)
	results := make(chan Result)

	var walkErr error
	go func() {
		defer close(jobs)
		walkErr = s.fsys.Walk(source, func(p string, info fs.FileInfo, werr error) error {
			if werr != nil {
				s.logger.Warn("skipping unreadable subtree", "path", p, "error", werr)
				return nil
			}
			rel, err := filepath.Rel(source, p)
			if err != nil {
				s.logger.Warn("skipping file outside source", "path", p, "error", err)
				return nil
			}
			u := unit{path: p, rel: filepath.ToSlash(rel), info: info}
			select {
			case jobs <- u:
				return nil
			case <-ctx.Done():
				return ctx.Err()
			}
		})
	}()

	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			sess, err := s.index.Session(ctx)
			if err != nil {
				// Without a session this worker cannot process anything;
				// drain so admission keeps its invariant.
				for u := range jobs {
					results <- Result{Outcome: OutcomeError, Path: u.path, Err: fmt.Errorf("acquiring index session: %w", err)}
				}
				return
			}
			defer sess.Close()
			for u := range jobs {
				results <- s.processGuarded(ctx, sess, u, process)
			}
		}()
	}

	go func() {
		wg.Wait()
		close(results)
	}()

	summary := NewSummary()
	for res := range results {
		summary.Add(res)
		if onResult != nil {
			onResult(res)
		}
	}

	if walkErr != nil && ctx.Err() == nil {
		return summary, fmt.Errorf("walking source tree: %w", walkErr)
	}
	return summary, ctx.Err()
}

// processGuarded converts an unexpected per-unit panic into an Error
// outcome so one bad file never takes down the run.
func (s *Service) processGuarded(ctx context.Context, sess IndexSession, u unit, process func(context.Context, IndexSession, unit) Result) (res Result) {
	defer func() {
		if r := recover(); r != nil {
			res = Result{Outcome: OutcomeError, Path: u.path, Err: fmt.Errorf("unexpected failure: %v", r)}
		}
	}()
	return process(ctx, sess, u)
}

// processUpload runs the per-file decision procedure of the upload
// pipeline. Every branch ends in exactly one terminal outcome.
func (s *Service) processUpload(ctx context.Context, sess IndexSession, u unit, opts UploadOptions) Result {
	relPath := u.rel
	if opts.DriveRoot != "" {
		relPath = path.Join(opts.DriveRoot, u.rel)
	}

	// 1. Idempotent re-runs: exact (drive, path) already tracked.
	existing, err := sess.LookupByPath(ctx, opts.DriveName, relPath)
	if err != nil {
		return Result{Outcome: OutcomeError, Path: u.path, Err: err}
	}
	if existing != nil {
		return Result{Outcome: OutcomeAlreadyTracked, Path: u.path}
	}

	hash, size, err := s.hasher.HashFile(u.path)
	if err != nil {
		return Result{Outcome: OutcomeError, Path: u.path, Err: err}
	}

	key := RemoteKey(opts.DriveName, relPath)
	meta := s.fileMetadata(u)

	// 2. Is there an original for this content already?
	original, err := sess.LookupOriginalByHash(ctx, hash)
	if err != nil {
		return Result{Outcome: OutcomeError, Path: u.path, Err: err}
	}

	if original != nil {
		return s.processDuplicate(ctx, sess, u, opts, relPath, key, hash, size, meta, original)
	}
	return s.processOriginal(ctx, sess, u, opts, relPath, key, hash, size, meta)
}

// processDuplicate handles a file whose content already has an original.
func (s *Service) processDuplicate(ctx context.Context, sess IndexSession, u unit, opts UploadOptions, relPath, key, hash string, size int64, meta FileMetadata, original *FileRecord) Result {
	rec := &FileRecord{
		ID:        s.idgen.New(),
		Hash:      hash,
		Size:      size,
		DriveName: opts.DriveName,
		FilePath:  relPath,
		CreatedAt: s.clock.Now(),
		Metadata:  meta,
	}

	if opts.ScanOnly {
		if _, err := sess.InsertIfAbsent(ctx, rec); err != nil {
			return Result{Outcome: OutcomeError, Path: u.path, Err: err}
		}
		return Result{Outcome: OutcomeDuplicateRecorded, Path: u.path}
	}

	pointerKey := key + PointerSuffix
	exists, err := s.store.Exists(ctx, pointerKey)
	if err != nil {
		return Result{Outcome: OutcomeError, Path: u.path, Err: err}
	}
	if exists {
		if _, err := sess.InsertIfAbsent(ctx, rec); err != nil {
			return Result{Outcome: OutcomeError, Path: u.path, Err: err}
		}
		return Result{Outcome: OutcomePointerAlreadyExists, Path: u.path}
	}

	if opts.DryRun {
		return Result{Outcome: OutcomeWouldCreatePointer, Path: u.path}
	}

	originalKey := original.RemoteKey
	if originalKey == "" {
		// Scan-only runs record originals without a key; reconstruct it.
		originalKey = RemoteKey(original.DriveName, original.FilePath)
	}
	artifact, err := EncodePointer(hash, originalKey, s.clock.Now())
	if err != nil {
		return Result{Outcome: OutcomeError, Path: u.path, Err: err}
	}
	if err := s.putWithRetry(ctx, pointerKey, func() (*bytes.Reader, int64) {
		return bytes.NewReader(artifact), int64(len(artifact))
	}); err != nil {
		return Result{Outcome: OutcomeError, Path: u.path, Err: fmt.Errorf("writing pointer: %w", err)}
	}

	if _, err := sess.InsertIfAbsent(ctx, rec); err != nil {
		return Result{Outcome: OutcomeError, Path: u.path, Err: err}
	}
	return Result{Outcome: OutcomePointerCreated, Path: u.path}
}

// processOriginal handles new content: this worker is the candidate
// original for its hash.
func (s *Service) processOriginal(ctx context.Context, sess IndexSession, u unit, opts UploadOptions, relPath, key, hash string, size int64, meta FileMetadata) Result {
	rec := &FileRecord{
		ID:         s.idgen.New(),
		Hash:       hash,
		Size:       size,
		DriveName:  opts.DriveName,
		FilePath:   relPath,
		IsOriginal: true,
		CreatedAt:  s.clock.Now(),
		Metadata:   meta,
	}

	if opts.ScanOnly {
		// No remote key: nothing has been uploaded.
		return s.insertOriginal(ctx, sess, u, rec, OutcomeScanned)
	}

	exists, err := s.store.Exists(ctx, key)
	if err != nil {
		return Result{Outcome: OutcomeError, Path: u.path, Err: err}
	}
	if exists {
		// Resumed run: the object is already durably stored under this
		// key, which is keyed by (drive, path) and therefore ours.
		rec.RemoteKey = key
		return s.insertOriginal(ctx, sess, u, rec, OutcomeAlreadyInStore)
	}

	if opts.DryRun {
		return Result{Outcome: OutcomeWouldUpload, Path: u.path}
	}

	if err := s.uploadFile(ctx, key, u.path, size); err != nil {
		return Result{Outcome: OutcomeError, Path: u.path, Err: fmt.Errorf("uploading: %w", err)}
	}
	rec.RemoteKey = key
	return s.insertOriginal(ctx, sess, u, rec, OutcomeUploaded)
}

// insertOriginal attempts the conditional insert of an original record.
// AlreadyPresent means a concurrent worker claimed the original slot for
// this hash first; the content (if uploaded) is still safely stored under
// this file's own key, but the claim was superseded. The path is recorded
// as a non-original so re-runs stay idempotent, and the unit finishes as
// RaceDuplicate. Not an error.
func (s *Service) insertOriginal(ctx context.Context, sess IndexSession, u unit, rec *FileRecord, won Outcome) Result {
	outcome, err := sess.InsertIfAbsent(ctx, rec)
	if err != nil {
		return Result{Outcome: OutcomeError, Path: u.path, Err: err}
	}
	if outcome == Inserted {
		return Result{Outcome: won, Path: u.path}
	}

	demoted := *rec
	demoted.ID = s.idgen.New()
	demoted.IsOriginal = false
	demoted.RemoteKey = ""
	if _, err := sess.InsertIfAbsent(ctx, &demoted); err != nil {
		return Result{Outcome: OutcomeError, Path: u.path, Err: err}
	}
	s.logger.Debug("original claim superseded", "path", u.path, "hash", rec.Hash)
	return Result{Outcome: OutcomeRaceDuplicate, Path: u.path}
}

// uploadFile streams the file at path to the store, retrying transient
// failures with linearly increasing backoff. The file is reopened per
// attempt since the reader is consumed.
func (s *Service) uploadFile(ctx context.Context, key, path string, size int64) error {
	var lastErr error
	for attempt := 1; attempt <= putAttempts; attempt++ {
		f, err := s.fsys.Open(path)
		if err != nil {
			return err
		}
		err = s.store.Put(ctx, key, f, size)
		f.Close()
		if err == nil {
			return nil
		}
		lastErr = err
		if ctx.Err() != nil {
			return err
		}
		if attempt < putAttempts {
			time.Sleep(time.Duration(attempt) * putBackoff)
		}
	}
	return fmt.Errorf("after %d attempts: %w", putAttempts, lastErr)
}

// putWithRetry uploads small in-memory payloads (pointer artifacts) with
// the same retry policy, rebuilding the reader per attempt.
func (s *Service) putWithRetry(ctx context.Context, key string, mk func() (*bytes.Reader, int64)) error {
	var lastErr error
	for attempt := 1; attempt <= putAttempts; attempt++ {
		r, size := mk()
		err := s.store.Put(ctx, key, r, size)
		if err == nil {
			return nil
		}
		lastErr = err
		if ctx.Err() != nil {
			return lastErr
		}
		if attempt < putAttempts {
			time.Sleep(time.Duration(attempt) * putBackoff)
		}
	}
	return fmt.Errorf("after %d attempts: %w", putAttempts, lastErr)
}

// fileMetadata builds the refreshable metadata fields for a file from its
// stat info and the classifier.
func (s *Service) fileMetadata(u unit) FileMetadata {
	atime, ctime := s.fsys.Times(u.info)
	mimeType, category := s.classifier.Classify(u.path)
	return FileMetadata{
		ModifiedAt: u.info.ModTime(),
		ChangedAt:  ctime,
		AccessedAt: atime,
		MimeType:   mimeType,
		Category:   category,
	}
}
