package dedup_test

import (
	"errors"
	"reflect"
	"testing"

	"dedup-go/internal/dedup"
)

func TestOutcomeString(t *testing.T) {
	tests := []struct {
		outcome dedup.Outcome
		want    string
	}{
		{dedup.OutcomeAlreadyTracked, "already_tracked"},
		{dedup.OutcomeDuplicateRecorded, "duplicate_recorded"},
		{dedup.OutcomePointerAlreadyExists, "pointer_exists"},
		{dedup.OutcomeWouldCreatePointer, "would_create_pointer"},
		{dedup.OutcomePointerCreated, "pointer_created"},
		{dedup.OutcomeScanned, "scanned"},
		{dedup.OutcomeAlreadyInStore, "exists"},
		{dedup.OutcomeWouldUpload, "would_upload"},
		{dedup.OutcomeUploaded, "uploaded"},
		{dedup.OutcomeRaceDuplicate, "race_duplicate"},
		{dedup.OutcomeDownloaded, "downloaded"},
		{dedup.OutcomeWouldDownload, "would_download"},
		{dedup.OutcomeMetadataUpdated, "updated"},
		{dedup.OutcomeNotTracked, "not_tracked"},
		{dedup.OutcomeError, "error"},
	}

	for _, tt := range tests {
		if got := tt.outcome.String(); got != tt.want {
			t.Errorf("Outcome(%d).String() = %q, want %q", tt.outcome, got, tt.want)
		}
		if glyph := tt.outcome.Glyph(); glyph == "" || glyph == " " {
			t.Errorf("Outcome(%d).Glyph() = %q, want a marker", tt.outcome, glyph)
		}
	}

	if got := dedup.Outcome(99).String(); got != "unknown" {
		t.Errorf("Outcome(99).String() = %q", got)
	}
	if got := dedup.Outcome(99).Glyph(); got != " " {
		t.Errorf("Outcome(99).Glyph() = %q", got)
	}
}

func TestSummary(t *testing.T) {
	s := dedup.NewSummary()
	s.Add(dedup.Result{Outcome: dedup.OutcomeUploaded, Path: "a"})
	s.Add(dedup.Result{Outcome: dedup.OutcomeUploaded, Path: "b"})
	s.Add(dedup.Result{Outcome: dedup.OutcomePointerCreated, Path: "c"})
	s.Add(dedup.Result{Outcome: dedup.OutcomeError, Path: "d", Err: errors.New("disk on fire")})
	s.Add(dedup.Result{Outcome: dedup.OutcomeError, Path: "e"})

	if got := s.Total(); got != 5 {
		t.Errorf("Total() = %d, want 5", got)
	}
	if got := s.Counts[dedup.OutcomeUploaded]; got != 2 {
		t.Errorf("Counts[uploaded] = %d, want 2", got)
	}

	wantOutcomes := []dedup.Outcome{dedup.OutcomePointerCreated, dedup.OutcomeUploaded, dedup.OutcomeError}
	if got := s.Outcomes(); !reflect.DeepEqual(got, wantOutcomes) {
		t.Errorf("Outcomes() = %v, want %v", got, wantOutcomes)
	}

	if got := len(s.Errors); got != 2 {
		t.Fatalf("len(Errors) = %d, want 2", got)
	}
	if s.Errors[0].Message != "disk on fire" {
		t.Errorf("Errors[0].Message = %q", s.Errors[0].Message)
	}
	if s.Errors[1].Message != "unknown error" {
		t.Errorf("Errors[1].Message = %q", s.Errors[1].Message)
	}

	if got := s.FirstErrors(1); len(got) != 1 || got[0].Path != "d" {
		t.Errorf("FirstErrors(1) = %v", got)
	}
	if got := s.FirstErrors(10); len(got) != 2 {
		t.Errorf("FirstErrors(10) returned %d errors, want 2", len(got))
	}
}
