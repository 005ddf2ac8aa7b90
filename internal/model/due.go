package model

import (
	"fmt"
	"strings"
	"time"
)

// Layouts accepted for due dates, in the order they are tried.
// Date and datetime-local inputs come first; RFC3339 covers stored timestamps.
var dueLayouts = []string{
	"2006-01-02",
	"2006-01-02T15:04",
	"2006-01-02 15:04",
	time.RFC3339Nano,
	time.RFC3339,
}

// ParseDue normalizes a serialized due date. Empty input means no due date.
// Values without a zone are read as UTC.
func ParseDue(s string) (*time.Time, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil, nil
	}
	for _, layout := range dueLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			u := t.UTC()
			return &u, nil
		}
	}
	return nil, fmt.Errorf("invalid due date %q: want YYYY-MM-DD, YYYY-MM-DDTHH:MM or RFC3339", s)
}

// FormatDue prints a date-only value as YYYY-MM-DD and anything else with minutes.
func FormatDue(t time.Time) string {
	t = t.UTC()
	if t.Hour() == 0 && t.Minute() == 0 && t.Second() == 0 && t.Nanosecond() == 0 {
		return t.Format("2006-01-02")
	}
	return t.Format("2006-01-02 15:04")
}
