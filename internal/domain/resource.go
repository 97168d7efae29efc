package domain

import (
	"encoding/json"
	"fmt"
	"time"
)

type ResourceType string

const (
	ResourceGuide   ResourceType = "guide"
	ResourceRoom    ResourceType = "room"
	ResourceVehicle ResourceType = "vehicle"
)

func ParseResourceType(s string) (ResourceType, bool) {
	switch ResourceType(s) {
	case ResourceGuide, ResourceRoom, ResourceVehicle:
		return ResourceType(s), true
	default:
		return "", false
	}
}

const calendarCodecVersion = 1

// CalendarEntry marks a resource's availability on a given day.
type CalendarEntry struct {
	Date      string `json:"date"` // YYYY-MM-DD
	Available bool   `json:"available"`
	Note      string `json:"note,omitempty"`
}

// Calendar is the structured availability payload stored with a resource.
// It crosses the persistence edge only through EncodeCalendar/DecodeCalendar.
type Calendar struct {
	Version int             `json:"version"`
	Entries []CalendarEntry `json:"entries,omitempty"`
}

func EncodeCalendar(c Calendar) ([]byte, error) {
	if c.Version == 0 {
		c.Version = calendarCodecVersion
	}
	b, err := json.Marshal(c)
	if err != nil {
		return nil, fmt.Errorf("encode calendar: %w", err)
	}
	return b, nil
}

func DecodeCalendar(b []byte) (Calendar, error) {
	if len(b) == 0 {
		return Calendar{Version: calendarCodecVersion}, nil
	}
	var c Calendar
	if err := json.Unmarshal(b, &c); err != nil {
		return Calendar{}, fmt.Errorf("decode calendar: %w", err)
	}
	if c.Version == 0 {
		c.Version = calendarCodecVersion
	}
	return c, nil
}

// Resource is a bookable asset attached to slots.
type Resource struct {
	ID        int64
	Type      ResourceType
	Name      string
	Calendar  Calendar
	Notes     string
	CreatedAt time.Time
	UpdatedAt time.Time
}
