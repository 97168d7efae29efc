package domain_test

import (
	"errors"
	"testing"
	"time"

	"github.com/tourbase/experience-bookings/internal/domain"
)

func TestNewTimeRange(t *testing.T) {
	start := time.Date(2026, 7, 1, 10, 0, 0, 0, time.UTC)

	t.Run("valid range", func(t *testing.T) {
		tr, err := domain.NewTimeRange(start, start.Add(2*time.Hour))
		if err != nil {
			t.Fatalf("NewTimeRange: %v", err)
		}
		if got := tr.Duration(); got != 2*time.Hour {
			t.Errorf("duration = %v, want 2h", got)
		}
	})

	t.Run("end equals start", func(t *testing.T) {
		_, err := domain.NewTimeRange(start, start)
		if !errors.Is(err, domain.ErrInvalidTimeRange) {
			t.Errorf("err = %v, want ErrInvalidTimeRange", err)
		}
	})

	t.Run("end before start", func(t *testing.T) {
		_, err := domain.NewTimeRange(start, start.Add(-time.Minute))
		if !errors.Is(err, domain.ErrInvalidTimeRange) {
			t.Errorf("err = %v, want ErrInvalidTimeRange", err)
		}
	})

	t.Run("normalizes to UTC", func(t *testing.T) {
		loc := time.FixedZone("CEST", 2*3600)
		tr, err := domain.NewTimeRange(start.In(loc), start.Add(time.Hour).In(loc))
		if err != nil {
			t.Fatalf("NewTimeRange: %v", err)
		}
		if tr.Start().Location() != time.UTC {
			t.Errorf("start location = %v, want UTC", tr.Start().Location())
		}
		if !tr.Start().Equal(start) {
			t.Errorf("start = %v, want %v", tr.Start(), start)
		}
	})
}

func TestParseTimeRange(t *testing.T) {
	cases := []struct {
		name  string
		start string
		end   string
		ok    bool
	}{
		{"rfc3339", "2026-07-01T10:00:00Z", "2026-07-01T12:00:00Z", true},
		{"space separated", "2026-07-01 10:00:00", "2026-07-01 12:00:00", true},
		{"t separated without zone", "2026-07-01T10:00:00", "2026-07-01T12:00:00", true},
		{"mixed layouts", "2026-07-01 10:00:00", "2026-07-01T12:00:00Z", true},
		{"garbage start", "yesterday", "2026-07-01T12:00:00Z", false},
		{"garbage end", "2026-07-01T10:00:00Z", "later", false},
		{"inverted", "2026-07-01T12:00:00Z", "2026-07-01T10:00:00Z", false},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			tr, err := domain.ParseTimeRange(tc.start, tc.end)
			if tc.ok {
				if err != nil {
					t.Fatalf("ParseTimeRange(%q, %q): %v", tc.start, tc.end, err)
				}
				if tr.IsZero() {
					t.Error("got zero range")
				}
				return
			}
			if !errors.Is(err, domain.ErrInvalidTimeRange) {
				t.Errorf("err = %v, want ErrInvalidTimeRange", err)
			}
		})
	}
}

func TestTimeRangeEqualIgnoresZone(t *testing.T) {
	a, err := domain.ParseTimeRange("2026-07-01T10:00:00Z", "2026-07-01T12:00:00Z")
	if err != nil {
		t.Fatal(err)
	}
	b, err := domain.ParseTimeRange("2026-07-01T12:00:00+02:00", "2026-07-01T14:00:00+02:00")
	if err != nil {
		t.Fatal(err)
	}
	if !a.Equal(b) {
		t.Errorf("ranges %s and %s should be equal", a, b)
	}
}

func TestTimeRangeStringRoundTrip(t *testing.T) {
	tr, err := domain.ParseTimeRange("2026-07-01 10:00:00", "2026-07-01 12:00:00")
	if err != nil {
		t.Fatal(err)
	}
	if got, want := tr.StartString(), "2026-07-01T10:00:00Z"; got != want {
		t.Errorf("StartString = %q, want %q", got, want)
	}
	if got, want := tr.EndString(), "2026-07-01T12:00:00Z"; got != want {
		t.Errorf("EndString = %q, want %q", got, want)
	}
}
