package domain_test

import (
	"testing"

	"github.com/tourbase/experience-bookings/internal/domain"
)

func TestCalendarCodec(t *testing.T) {
	t.Run("round trip", func(t *testing.T) {
		in := domain.Calendar{
			Entries: []domain.CalendarEntry{
				{Date: "2026-07-01", Available: true},
				{Date: "2026-07-02", Available: false, Note: "maintenance"},
			},
		}

		raw, err := domain.EncodeCalendar(in)
		if err != nil {
			t.Fatalf("EncodeCalendar: %v", err)
		}
		out, err := domain.DecodeCalendar(raw)
		if err != nil {
			t.Fatalf("DecodeCalendar: %v", err)
		}

		if out.Version != 1 {
			t.Errorf("version = %d, want 1", out.Version)
		}
		if len(out.Entries) != 2 {
			t.Fatalf("entries = %d, want 2", len(out.Entries))
		}
		if out.Entries[1].Note != "maintenance" {
			t.Errorf("note = %q", out.Entries[1].Note)
		}
	})

	t.Run("empty bytes decode to empty calendar", func(t *testing.T) {
		c, err := domain.DecodeCalendar(nil)
		if err != nil {
			t.Fatalf("DecodeCalendar: %v", err)
		}
		if c.Version != 1 || len(c.Entries) != 0 {
			t.Errorf("got %+v, want empty v1 calendar", c)
		}
	})

	t.Run("corrupt payload fails", func(t *testing.T) {
		if _, err := domain.DecodeCalendar([]byte("{not json")); err == nil {
			t.Error("expected decode error")
		}
	})
}

func TestParseResourceType(t *testing.T) {
	for _, valid := range []string{"guide", "room", "vehicle"} {
		if _, ok := domain.ParseResourceType(valid); !ok {
			t.Errorf("ParseResourceType(%q) not ok", valid)
		}
	}
	for _, invalid := range []string{"", "boat", "Guide"} {
		if _, ok := domain.ParseResourceType(invalid); ok {
			t.Errorf("ParseResourceType(%q) unexpectedly ok", invalid)
		}
	}
}
