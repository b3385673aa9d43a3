// Rdiffgate - Web Access to rdiff-backup Repositories
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/rdiffgate

package rdiff

import (
	"fmt"
	"strconv"
	"time"
)

const secondsPerDay = 24 * 60 * 60

// Time is an rdiff-backup timestamp: seconds since the Unix epoch plus the
// timezone offset the timestamp was written with. Ordering and equality use
// the epoch seconds only.
type Time struct {
	epoch  int64
	offset int
}

// ParseTime parses YYYY-MM-DDTHH:MM:SS followed by Z or ±HH:MM.
func ParseTime(s string) (Time, error) {
	fail := func(reason string) (Time, error) {
		return Time{}, E(InvalidTimestamp, "parse time", s, fmt.Errorf("%s", reason))
	}
	if len(s) < 20 {
		return fail("too short")
	}
	dt, tz := s[:19], s[19:]
	if dt[4] != '-' || dt[7] != '-' || dt[10] != 'T' || dt[13] != ':' || dt[16] != ':' {
		return fail("malformed date")
	}

	var f [6]int
	for i, span := range [6][2]int{{0, 4}, {5, 7}, {8, 10}, {11, 13}, {14, 16}, {17, 19}} {
		v, ok := atoiDigits(dt[span[0]:span[1]])
		if !ok {
			return fail("non-numeric field")
		}
		f[i] = v
	}
	year, month, day, hour, minute, sec := f[0], f[1], f[2], f[3], f[4], f[5]
	switch {
	case year <= 1900 || year >= 2100:
		return fail("year out of range")
	case month < 1 || month > 12:
		return fail("month out of range")
	case day < 1 || day > 31:
		return fail("day out of range")
	case hour > 23:
		return fail("hour out of range")
	case minute > 59:
		return fail("minute out of range")
	case sec > 61:
		return fail("second out of range")
	}

	offset, ok := parseOffset(tz)
	if !ok {
		return fail("malformed timezone")
	}

	naive := time.Date(year, time.Month(month), day, hour, minute, 0, 0, time.UTC).Unix() + int64(sec)
	return Time{epoch: naive - int64(offset), offset: offset}, nil
}

// MustParseTime is ParseTime for constants; it panics on error.
func MustParseTime(s string) Time {
	t, err := ParseTime(s)
	if err != nil {
		panic(err)
	}
	return t
}

func parseOffset(tz string) (int, bool) {
	if tz == "Z" {
		return 0, true
	}
	if len(tz) != 6 || tz[3] != ':' || (tz[0] != '+' && tz[0] != '-') {
		return 0, false
	}
	hh, ok1 := atoiDigits(tz[1:3])
	mm, ok2 := atoiDigits(tz[4:6])
	if !ok1 || !ok2 || hh > 23 || mm > 59 {
		return 0, false
	}
	off := hh*3600 + mm*60
	if tz[0] == '-' {
		off = -off
	}
	return off, true
}

func atoiDigits(s string) (int, bool) {
	for i := 0; i < len(s); i++ {
		if !isDigit(s[i]) {
			return 0, false
		}
	}
	v, err := strconv.Atoi(s)
	return v, err == nil
}

// FromEpoch returns the UTC Time for the given epoch seconds.
func FromEpoch(sec int64) Time {
	return Time{epoch: sec}
}

// FromTime converts a time.Time, keeping its zone offset.
func FromTime(t time.Time) Time {
	_, off := t.Zone()
	return Time{epoch: t.Unix(), offset: off}
}

// NowUTC returns the current time with a zero offset.
func NowUTC() Time {
	return FromEpoch(time.Now().Unix())
}

// MidnightUTC returns today's UTC midnight shifted by dayOffset days.
func MidnightUTC(dayOffset int) Time {
	now := time.Now().UTC()
	midnight := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC)
	return FromEpoch(midnight.Unix() + int64(dayOffset)*secondsPerDay)
}

// Epoch returns seconds since the Unix epoch.
func (t Time) Epoch() int64 { return t.epoch }

// Offset returns the timezone offset in seconds east of UTC.
func (t Time) Offset() int { return t.offset }

// Std returns the time.Time in the value's own fixed zone.
func (t Time) Std() time.Time {
	if t.offset == 0 {
		return time.Unix(t.epoch, 0).UTC()
	}
	return time.Unix(t.epoch, 0).In(time.FixedZone("", t.offset))
}

// URLForm renders YYYY-MM-DDTHH:MM:SS with the stored offset (Z when zero).
func (t Time) URLForm() string {
	return t.Std().Format("2006-01-02T15:04:05") + formatOffset(t.offset)
}

// URLFormUTC renders the instant in UTC, always suffixed with Z.
func (t Time) URLFormUTC() string {
	return time.Unix(t.epoch, 0).UTC().Format("2006-01-02T15:04:05") + "Z"
}

// Display renders the local apparent time, e.g. "2024-01-02 13:45".
func (t Time) Display() string {
	return t.Std().Format("2006-01-02 15:04")
}

// DateOnly renders the local apparent date.
func (t Time) DateOnly() string {
	return t.Std().Format("2006-01-02")
}

func (t Time) String() string {
	return t.URLForm()
}

func formatOffset(off int) string {
	if off == 0 {
		return "Z"
	}
	sign := byte('+')
	if off < 0 {
		sign = '-'
		off = -off
	}
	return fmt.Sprintf("%c%02d:%02d", sign, off/3600, off%3600/60)
}

// Equal reports whether both values denote the same instant.
func (t Time) Equal(u Time) bool { return t.epoch == u.epoch }

// Before reports whether t is earlier than u.
func (t Time) Before(u Time) bool { return t.epoch < u.epoch }

// After reports whether t is later than u.
func (t Time) After(u Time) bool { return t.epoch > u.epoch }

// Compare returns -1, 0 or +1.
func (t Time) Compare(u Time) int {
	switch {
	case t.epoch < u.epoch:
		return -1
	case t.epoch > u.epoch:
		return 1
	}
	return 0
}

// Add returns t shifted by d, truncated to whole seconds, keeping the offset.
func (t Time) Add(d time.Duration) Time {
	return Time{epoch: t.epoch + int64(d/time.Second), offset: t.offset}
}

// AddDays returns t shifted by n days, keeping the offset.
func (t Time) AddDays(n int) Time {
	return Time{epoch: t.epoch + int64(n)*secondsPerDay, offset: t.offset}
}

// Sub returns the duration t-u.
func (t Time) Sub(u Time) time.Duration {
	return time.Duration(t.epoch-u.epoch) * time.Second
}

// MarshalText renders the URL form.
func (t Time) MarshalText() ([]byte, error) {
	return []byte(t.URLForm()), nil
}

// UnmarshalText accepts the URL form or decimal epoch seconds.
func (t *Time) UnmarshalText(b []byte) error {
	v, err := ParseUserTime(string(b))
	if err != nil {
		return err
	}
	*t = v
	return nil
}

// ParseUserTime accepts either a timestamp in URL form or epoch seconds, the
// two forms the web front end sends.
func ParseUserTime(s string) (Time, error) {
	if sec, err := strconv.ParseInt(s, 10, 64); err == nil {
		return FromEpoch(sec), nil
	}
	return ParseTime(s)
}
