package dedup

import (
	"context"
	"fmt"
)

// RescanOptions configures an out-of-band metadata refresh of an already
// indexed tree.
type RescanOptions struct {
	Source    string
	DriveName string
	Workers   int
	OnResult  func(Result)
}

// Rescan walks the source tree and refreshes the timestamps, MIME type and
// category of every record already present in the index. Identity fields
// (hash, is_original) are never touched; files without a record are
// reported as not tracked. No remote call is made.
func (s *Service) Rescan(ctx context.Context, opts RescanOptions) (*Summary, error) {
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

	s.logger.Info("rescan started", "source", source, "drive", opts.DriveName)

	summary, err := s.runFilePool(ctx, source, opts.Workers, opts.OnResult,
		func(ctx context.Context, sess IndexSession, u unit) Result {
			meta := s.fileMetadata(u)
			updated, err := sess.UpdateMetadata(ctx, opts.DriveName, u.rel, meta)
			if err != nil {
				return Result{Outcome: OutcomeError, Path: u.path, Err: err}
			}
			if !updated {
				return Result{Outcome: OutcomeNotTracked, Path: u.path}
			}
			return Result{Outcome: OutcomeMetadataUpdated, Path: u.path}
		})
	if err != nil {
		return summary, err
	}

	s.logger.Info("rescan finished", "files", summary.Total(), "errors", len(summary.Errors))
	return summary, nil
}
