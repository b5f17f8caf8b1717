package userstore

import (
	"testing"
	"time"
)

func TestEvaluateLimit(t *testing.T) {
	cases := []struct {
		name      string
		usage     int
		limit     int
		allowed   bool
		remaining int
	}{
		{"fresh day", 0, 5, true, 5},
		{"partially used", 3, 5, true, 2},
		{"last allowance", 4, 5, true, 1},
		{"exhausted", 5, 5, false, 0},
		{"over limit", 7, 5, false, 0},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			allowed, remaining := evaluateLimit(tc.usage, tc.limit)
			if allowed != tc.allowed {
				t.Fatalf("allowed = %v; want %v", allowed, tc.allowed)
			}
			if remaining != tc.remaining {
				t.Fatalf("remaining = %d; want %d", remaining, tc.remaining)
			}
		})
	}
}

func TestUTCDateNormalizesAcrossZones(t *testing.T) {
	east := time.FixedZone("east", 10*3600)
	late := time.Date(2026, 8, 31, 1, 30, 0, 0, east) // Aug 30 in UTC

	got := utcDate(late)
	want := time.Date(2026, 8, 30, 0, 0, 0, 0, time.UTC)
	if !got.Equal(want) {
		t.Fatalf("utcDate() = %v; want %v", got, want)
	}
}

func TestUTCDateDayBoundary(t *testing.T) {
	yesterday := time.Date(2026, 8, 30, 23, 59, 59, 0, time.UTC)
	today := time.Date(2026, 8, 31, 0, 0, 1, 0, time.UTC)

	if !utcDate(yesterday).Before(utcDate(today)) {
		t.Fatal("expected a day boundary between the two instants")
	}
	if !utcDate(today).Equal(utcDate(today.Add(12 * time.Hour))) {
		t.Fatal("same UTC day must normalize to the same date")
	}
}
