package dedup

import "sort"

// Outcome is the terminal state of one processing unit. The set is closed:
// every unit of every pipeline finishes in exactly one of these, and no
// outcome is ever silently dropped.
type Outcome int

const (
	// Upload pipeline outcomes.

	// OutcomeAlreadyTracked: a record for this exact (drive, path) already
	// exists; nothing to do on a re-run.
	OutcomeAlreadyTracked Outcome = iota
	// OutcomeDuplicateRecorded: scan-only mode saw content that already
	// has an original; a non-original record was written, no network call.
	OutcomeDuplicateRecorded
	// OutcomePointerAlreadyExists: a pointer object for this duplicate is
	// already in the store (resumed run).
	OutcomePointerAlreadyExists
	// OutcomeWouldCreatePointer: dry-run stand-in for PointerCreated.
	OutcomeWouldCreatePointer
	// OutcomePointerCreated: a pointer artifact was written for a duplicate.
	OutcomePointerCreated
	// OutcomeScanned: scan-only mode recorded new content, no network call.
	OutcomeScanned
	// OutcomeAlreadyInStore: the object already exists at this key
	// (resumed run); the original record was written locally.
	OutcomeAlreadyInStore
	// OutcomeWouldUpload: dry-run stand-in for Uploaded.
	OutcomeWouldUpload
	// OutcomeUploaded: content was uploaded and recorded as the original.
	OutcomeUploaded
	// OutcomeRaceDuplicate: content was uploaded, but a concurrent worker
	// recorded the original for this hash first. Benign, not an error.
	OutcomeRaceDuplicate

	// Download pipeline outcomes.

	// OutcomeDownloaded: the object (or its pointer target) was written to
	// the local destination.
	OutcomeDownloaded
	// OutcomeWouldDownload: dry-run stand-in for Downloaded.
	OutcomeWouldDownload

	// Rescan outcomes.

	// OutcomeMetadataUpdated: an existing record's timestamps/MIME/category
	// were refreshed.
	OutcomeMetadataUpdated
	// OutcomeNotTracked: the file has no record in the index; skipped.
	OutcomeNotTracked

	// OutcomeError: the unit failed; the result carries the error.
	OutcomeError
)

// String returns the snake_case label used in logs and summaries.
func (o Outcome) String() string {
	switch o {
	case OutcomeAlreadyTracked:
		return "already_tracked"
	case OutcomeDuplicateRecorded:
		return "duplicate_recorded"
	case OutcomePointerAlreadyExists:
		return "pointer_exists"
	case OutcomeWouldCreatePointer:
		return "would_create_pointer"
	case OutcomePointerCreated:
		return "pointer_created"
	case OutcomeScanned:
		return "scanned"
	case OutcomeAlreadyInStore:
		return "exists"
	case OutcomeWouldUpload:
		return "would_upload"
	case OutcomeUploaded:
		return "uploaded"
	case OutcomeRaceDuplicate:
		return "race_duplicate"
	case OutcomeDownloaded:
		return "downloaded"
	case OutcomeWouldDownload:
		return "would_download"
	case OutcomeMetadataUpdated:
		return "updated"
	case OutcomeNotTracked:
		return "not_tracked"
	case OutcomeError:
		return "error"
	}
	return "unknown"
}

// Glyph returns the one-character status marker for verbose output.
func (o Outcome) Glyph() string {
	switch o {
	case OutcomeAlreadyTracked:
		return "="
	case OutcomeDuplicateRecorded:
		return "≡"
	case OutcomePointerAlreadyExists:
		return "○"
	case OutcomeWouldCreatePointer:
		return "?"
	case OutcomePointerCreated:
		return "→"
	case OutcomeScanned:
		return "✓"
	case OutcomeAlreadyInStore:
		return "○"
	case OutcomeWouldUpload:
		return "?"
	case OutcomeUploaded:
		return "↑"
	case OutcomeRaceDuplicate:
		return "≡"
	case OutcomeDownloaded:
		return "↓"
	case OutcomeWouldDownload:
		return "?"
	case OutcomeMetadataUpdated:
		return "✓"
	case OutcomeNotTracked:
		return "?"
	case OutcomeError:
		return "✗"
	}
	return " "
}

// Result is the terminal report for one processing unit.
type Result struct {
	Outcome Outcome
	// Path is the local path on upload/rescan and the remote key on
	// download.
	Path string
	// Err is set only when Outcome is OutcomeError.
	Err error
}

// UnitError is a collected per-unit failure.
type UnitError struct {
	Path    string
	Message string
}

// Summary aggregates the results of one run. Results arrive in arbitrary
// completion order; only the collector goroutine mutates a Summary.
type Summary struct {
	Counts map[Outcome]int
	Errors []UnitError
}

func NewSummary() *Summary {
	return &Summary{Counts: make(map[Outcome]int)}
}

// Add records one result.
func (s *Summary) Add(r Result) {
	s.Counts[r.Outcome]++
	if r.Outcome == OutcomeError {
		msg := "unknown error"
		if r.Err != nil {
			msg = r.Err.Error()
		}
		s.Errors = append(s.Errors, UnitError{Path: r.Path, Message: msg})
	}
}

// Total returns the number of units processed.
func (s *Summary) Total() int {
	total := 0
	for _, n := range s.Counts {
		total += n
	}
	return total
}

// Outcomes returns the outcomes present in the summary in enum order.
func (s *Summary) Outcomes() []Outcome {
	outcomes := make([]Outcome, 0, len(s.Counts))
	for o := range s.Counts {
		outcomes = append(outcomes, o)
	}
	sort.Slice(outcomes, func(i, j int) bool { return outcomes[i] < outcomes[j] })
	return outcomes
}

// FirstErrors returns at most n collected errors.
func (s *Summary) FirstErrors(n int) []UnitError {
	if len(s.Errors) <= n {
		return s.Errors
	}
	return s.Errors[:n]
}
