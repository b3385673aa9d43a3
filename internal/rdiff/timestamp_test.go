// Rdiffgate - Web Access to rdiff-backup Repositories
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/rdiffgate

package rdiff

import (
	"strings"
	"testing"
	"time"
)

func TestParseTime(t *testing.T) {
	t.Parallel()

	tests := []struct {
		in     string
		epoch  int64
		offset int
	}{
		{"2024-01-01T00:00:00Z", 1704067200, 0},
		{"2024-01-01T01:00:00+01:00", 1704067200, 3600},
		{"2023-12-31T19:00:00-05:00", 1704067200, -18000},
		{"2024-01-01T05:30:00+05:30", 1704067200, 19800},
		{"2016-12-31T23:59:60Z", 1483228800, 0},
	}
	for _, tt := range tests {
		got, err := ParseTime(tt.in)
		if err != nil {
			t.Errorf("ParseTime(%q): %v", tt.in, err)
			continue
		}
		if got.Epoch() != tt.epoch || got.Offset() != tt.offset {
			t.Errorf("ParseTime(%q) = (%d, %d), want (%d, %d)", tt.in, got.Epoch(), got.Offset(), tt.epoch, tt.offset)
		}
	}
}

func TestParseTimeRejects(t *testing.T) {
	t.Parallel()

	for _, in := range []string{
		"",
		"2024-01-01",
		"2024-01-01T00:00:00",
		"1900-01-01T00:00:00Z",
		"2100-01-01T00:00:00Z",
		"2024-13-01T00:00:00Z",
		"2024-00-01T00:00:00Z",
		"2024-01-32T00:00:00Z",
		"2024-01-01T24:00:00Z",
		"2024-01-01T00:60:00Z",
		"2024-01-01T00:00:62Z",
		"2024-01-01T00:00:00+0100",
		"2024-01-01T00:00:00*01:00",
		"2024-01-01 00:00:00Z",
		"2024-0a-01T00:00:00Z",
	} {
		_, err := ParseTime(in)
		if !IsKind(err, InvalidTimestamp) {
			t.Errorf("ParseTime(%q) error = %v, want InvalidTimestamp", in, err)
		}
	}
}

func TestTimeFormatRoundTrip(t *testing.T) {
	t.Parallel()

	for _, in := range []string{"2024-01-01T00:00:00Z", "2024-06-15T12:34:56-04:00", "2099-12-31T23:59:59+14:00"} {
		v := MustParseTime(in)
		if got := v.URLForm(); got != in {
			t.Errorf("URLForm() = %q, want %q", got, in)
		}
		back, err := ParseTime(v.URLForm())
		if err != nil || !back.Equal(v) {
			t.Errorf("parse(URLForm(%q)) = %v, %v", in, back, err)
		}
		utc := v.URLFormUTC()
		if !strings.HasSuffix(utc, "Z") {
			t.Errorf("URLFormUTC() = %q, want Z suffix", utc)
		}
		if u := MustParseTime(utc); !u.Equal(v) || u.Offset() != 0 {
			t.Errorf("URLFormUTC round trip mismatch for %q", in)
		}
	}
}

func TestTimeDisplayUsesOffset(t *testing.T) {
	t.Parallel()

	v := MustParseTime("2024-03-05T22:15:00-05:00")
	if got := v.Display(); got != "2024-03-05 22:15" {
		t.Errorf("Display() = %q", got)
	}
	if got := v.DateOnly(); got != "2024-03-05" {
		t.Errorf("DateOnly() = %q", got)
	}
	if got := v.URLFormUTC(); got != "2024-03-06T03:15:00Z" {
		t.Errorf("URLFormUTC() = %q", got)
	}
}

func TestTimeComparisonIgnoresOffset(t *testing.T) {
	t.Parallel()

	a := MustParseTime("2024-01-01T01:00:00+01:00")
	b := MustParseTime("2024-01-01T00:00:00Z")
	if !a.Equal(b) || a.Compare(b) != 0 {
		t.Error("same instant with different offsets should be equal")
	}
	c := a.AddDays(1)
	if !c.After(b) || c.Offset() != 3600 {
		t.Errorf("AddDays lost ordering or offset: %v", c)
	}
	if got := c.Sub(b); got != 24*time.Hour {
		t.Errorf("Sub() = %v", got)
	}
	if d := b.Add(90 * time.Second); d.Epoch() != b.Epoch()+90 {
		t.Errorf("Add() = %d", d.Epoch())
	}
}

func TestMidnightUTC(t *testing.T) {
	t.Parallel()

	m := MidnightUTC(0)
	if m.Epoch()%secondsPerDay != 0 {
		t.Errorf("MidnightUTC(0) not at midnight: %v", m)
	}
	if MidnightUTC(-1).Sub(m) != -24*time.Hour {
		t.Error("MidnightUTC(-1) should be one day earlier")
	}
	if NowUTC().Before(m) {
		t.Error("now should not be before today's midnight")
	}
}

func TestParseUserTime(t *testing.T) {
	t.Parallel()

	v, err := ParseUserTime("1704067200")
	if err != nil || v.Epoch() != 1704067200 {
		t.Errorf("epoch form = %v, %v", v, err)
	}
	var u Time
	if err := u.UnmarshalText([]byte("2024-01-01T00:00:00Z")); err != nil || !u.Equal(v) {
		t.Errorf("UnmarshalText = %v, %v", u, err)
	}
	if _, err := ParseUserTime("yesterday"); !IsKind(err, InvalidTimestamp) {
		t.Errorf("expected InvalidTimestamp, got %v", err)
	}
}
