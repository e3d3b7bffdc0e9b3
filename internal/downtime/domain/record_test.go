package domain

import (
	"errors"
	"testing"
	"time"
)

func TestParseSheetTimestamp_AcceptedLayouts(t *testing.T) {
	loc := mustMoscow(t)
	want := time.Date(2025, 6, 27, 21, 0, 0, 0, loc)
	for _, raw := range []string{"2025-06-27 21:00:00", "27.06.2025 21:00:00", "2025/06/27 21:00:00", " 2025-06-27 21:00:00 "} {
		got, ok := ParseSheetTimestamp(raw, loc)
		if !ok {
			t.Fatalf("expected %q to parse", raw)
		}
		if !got.Equal(want) {
			t.Fatalf("parse %q: got %v want %v", raw, got, want)
		}
	}
}

func TestParseSheetTimestamp_Rejects(t *testing.T) {
	for _, raw := range []string{"not-a-date", "", "27/06/2025 21:00", "2025-06-27"} {
		if _, ok := ParseSheetTimestamp(raw, time.UTC); ok {
			t.Fatalf("expected %q to be rejected", raw)
		}
	}
}

func TestResolveColumns_Missing(t *testing.T) {
	headers := []string{ColTimestamp, ColLineSection}
	_, err := ResolveColumns(headers, DetailedReportColumns)
	if !errors.Is(err, ErrMissingColumn) {
		t.Fatalf("expected ErrMissingColumn, got %v", err)
	}
	var missing *MissingColumnError
	if !errors.As(err, &missing) || missing.Column != ColSite {
		t.Fatalf("expected missing %q, got %v", ColSite, err)
	}
}

func TestProjectRecord(t *testing.T) {
	loc := mustMoscow(t)
	idx, err := ResolveColumns(SheetHeaders, DetailedReportColumns)
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	row := NewSheetRow(map[string]string{
		ColTimestamp:        "27.06.2025 10:00:00",
		ColSite:             "ОМЕТ",
		ColLineSection:      "ОМЕТ1",
		ColDirection:        "обрыв",
		ColDurationMinutes:  "45",
		ColInitiatorComment: NoCommentPlaceholder,
	})
	record, err := ProjectRecord(row, idx, loc)
	if err != nil {
		t.Fatalf("project: %v", err)
	}
	if record.DurationMinutes != 45 || record.Site != "ОМЕТ" || record.HasInitiatorComment() {
		t.Fatalf("unexpected record %+v", record)
	}

	if _, err := ProjectRecord(row[:3], idx, loc); !errors.Is(err, ErrShortRow) {
		t.Fatalf("expected ErrShortRow, got %v", err)
	}

	row[1] = ""
	if _, err := ProjectRecord(row, idx, loc); !errors.Is(err, ErrEmptyTimestamp) {
		t.Fatalf("expected ErrEmptyTimestamp, got %v", err)
	}

	row[1] = "2025-06-27 10:00:00"
	row[9] = "сорок"
	record, err = ProjectRecord(row, idx, loc)
	if !errors.Is(err, ErrInvalidDuration) {
		t.Fatalf("expected ErrInvalidDuration, got %v", err)
	}
	if record.Timestamp.IsZero() {
		t.Fatalf("expected timestamp on duration error")
	}
}

func TestParseDurationMinutes(t *testing.T) {
	cases := map[string]int{"": 0, "45": 45, " 7 ": 7, "-5": -5}
	for raw, want := range cases {
		got, err := ParseDurationMinutes(raw)
		if err != nil || got != want {
			t.Fatalf("ParseDurationMinutes(%q) = %d, %v", raw, got, err)
		}
	}
}
