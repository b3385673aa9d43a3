// Rdiffgate - Web Access to rdiff-backup Repositories
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/rdiffgate

package jobs

import (
	"fmt"
	"time"
)

// Trigger computes fire times.
type Trigger interface {
	// Next returns the first fire time strictly after t.
	Next(t time.Time) time.Time
	String() string
}

// Daily fires once a day at a wall-clock time.
type Daily struct {
	Hour, Minute int
	Location     *time.Location
}

// ParseDaily parses "HH:MM" in loc; a nil loc means local time.
func ParseDaily(s string, loc *time.Location) (Daily, error) {
	t, err := time.Parse("15:04", s)
	if err != nil {
		return Daily{}, fmt.Errorf("invalid time of day %q: %w", s, err)
	}
	if loc == nil {
		loc = time.Local
	}
	return Daily{Hour: t.Hour(), Minute: t.Minute(), Location: loc}, nil
}

// Next returns today's occurrence, or tomorrow's when today's is not after t.
func (d Daily) Next(t time.Time) time.Time {
	loc := d.Location
	if loc == nil {
		loc = time.Local
	}
	lt := t.In(loc)
	next := time.Date(lt.Year(), lt.Month(), lt.Day(), d.Hour, d.Minute, 0, 0, loc)
	if !next.After(t) {
		next = time.Date(lt.Year(), lt.Month(), lt.Day()+1, d.Hour, d.Minute, 0, 0, loc)
	}
	return next
}

func (d Daily) String() string { return fmt.Sprintf("daily at %02d:%02d", d.Hour, d.Minute) }

// Interval fires at a fixed period.
type Interval struct {
	Every time.Duration
}

// Next returns t plus the period.
func (i Interval) Next(t time.Time) time.Time { return t.Add(i.Every) }

func (i Interval) String() string { return "every " + i.Every.String() }
