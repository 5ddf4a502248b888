package model

import (
	"encoding/json"
	"testing"
)

func TestParseDate(t *testing.T) {
	d, err := ParseDate("2026-04-01")
	if err != nil {
		t.Fatalf("parse error: %v", err)
	}
	if d.String() != "2026-04-01" {
		t.Fatalf("expected round trip, got %s", d.String())
	}

	for _, bad := range []string{"04/01/2026", "2026-13-01", "tomorrow", ""} {
		if _, err := ParseDate(bad); err == nil {
			t.Fatalf("expected parse error for %q", bad)
		}
	}
}

func TestDateJSONAcceptsEmptyAndNull(t *testing.T) {
	var d Date
	if err := json.Unmarshal([]byte(`""`), &d); err != nil {
		t.Fatalf("empty string: %v", err)
	}
	if !d.IsZero() {
		t.Fatalf("expected zero date for empty string")
	}
	if err := json.Unmarshal([]byte(`null`), &d); err != nil {
		t.Fatalf("null: %v", err)
	}
	if !d.IsZero() {
		t.Fatalf("expected zero date for null")
	}
	if err := json.Unmarshal([]byte(`"2026-04-01"`), &d); err != nil {
		t.Fatalf("date string: %v", err)
	}
	if d.String() != "2026-04-01" {
		t.Fatalf("expected parsed date, got %s", d.String())
	}
}

func TestValidWeekday(t *testing.T) {
	for _, day := range Weekdays() {
		if !ValidWeekday(day) {
			t.Fatalf("expected %s to be valid", day)
		}
	}
	for _, day := range []string{"Saturday", "Sunday", "monday", ""} {
		if ValidWeekday(day) {
			t.Fatalf("expected %s to be rejected", day)
		}
	}
}
