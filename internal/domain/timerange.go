package domain

import (
	"fmt"
	"time"
)

// Accepted layouts for slot boundaries. Admin input arrives in the
// space-separated form, API input in RFC 3339.
var timeRangeLayouts = []string{
	time.RFC3339,
	"2006-01-02 15:04:05",
	"2006-01-02T15:04:05",
}

// TimeRange is an immutable start/end pair with UTC semantics.
// end is always strictly after start.
type TimeRange struct {
	start time.Time
	end   time.Time
}

func NewTimeRange(start, end time.Time) (TimeRange, error) {
	start = start.UTC()
	end = end.UTC()
	if !end.After(start) {
		return TimeRange{}, fmt.Errorf("%w: end %s is not after start %s", ErrInvalidTimeRange, end, start)
	}
	return TimeRange{start: start, end: end}, nil
}

// ParseTimeRange builds a TimeRange from two datetime strings.
func ParseTimeRange(startStr, endStr string) (TimeRange, error) {
	start, err := ParseUTCTime(startStr)
	if err != nil {
		return TimeRange{}, fmt.Errorf("%w: start: %v", ErrInvalidTimeRange, err)
	}
	end, err := ParseUTCTime(endStr)
	if err != nil {
		return TimeRange{}, fmt.Errorf("%w: end: %v", ErrInvalidTimeRange, err)
	}
	return NewTimeRange(start, end)
}

// ParseUTCTime parses a datetime string in any accepted layout and
// normalizes it to UTC.
func ParseUTCTime(s string) (time.Time, error) {
	var lastErr error
	for _, layout := range timeRangeLayouts {
		t, err := time.Parse(layout, s)
		if err == nil {
			return t.UTC(), nil
		}
		lastErr = err
	}
	return time.Time{}, lastErr
}

func (r TimeRange) Start() time.Time { return r.start }

func (r TimeRange) End() time.Time { return r.end }

func (r TimeRange) Duration() time.Duration { return r.end.Sub(r.start) }

func (r TimeRange) IsZero() bool { return r.start.IsZero() && r.end.IsZero() }

// StartString and EndString round-trip the UTC instants in RFC 3339.
func (r TimeRange) StartString() string { return r.start.Format(time.RFC3339) }

func (r TimeRange) EndString() string { return r.end.Format(time.RFC3339) }

func (r TimeRange) Equal(other TimeRange) bool {
	return r.start.Equal(other.start) && r.end.Equal(other.end)
}

func (r TimeRange) String() string {
	return r.StartString() + "/" + r.EndString()
}
