// Rdiffgate - Web Access to rdiff-backup Repositories
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/rdiffgate

package rdiff

import (
	"bufio"
	"io"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

// Session statistics keys, lower-cased.
const (
	StatStartTime                  = "starttime"
	StatEndTime                    = "endtime"
	StatElapsedTime                = "elapsedtime"
	StatSourceFiles                = "sourcefiles"
	StatSourceFileSize             = "sourcefilesize"
	StatMirrorFiles                = "mirrorfiles"
	StatMirrorFileSize             = "mirrorfilesize"
	StatNewFiles                   = "newfiles"
	StatNewFileSize                = "newfilesize"
	StatDeletedFiles               = "deletedfiles"
	StatDeletedFileSize            = "deletedfilesize"
	StatChangedFiles               = "changedfiles"
	StatChangedSourceSize          = "changedsourcesize"
	StatChangedMirrorSize          = "changedmirrorsize"
	StatIncrementFiles             = "incrementfiles"
	StatIncrementFileSize          = "incrementfilesize"
	StatTotalDestinationSizeChange = "totaldestinationsizechange"
	StatErrors                     = "errors"
)

// SessionStatistics holds one session_statistics file. Values are kept as
// written and converted on access.
type SessionStatistics struct {
	values map[string]string
}

// ParseSessionStatistics reads "key value [comment]" lines.
func ParseSessionStatistics(r io.Reader) (*SessionStatistics, error) {
	s := &SessionStatistics{values: make(map[string]string)}
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 0, 4096), 1<<20)
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		fields := strings.Fields(line)
		if len(fields) < 2 {
			continue
		}
		key := strings.ToLower(fields[0])
		if _, dup := s.values[key]; !dup {
			s.values[key] = fields[1]
		}
	}
	if err := sc.Err(); err != nil {
		return nil, err
	}
	return s, nil
}

// Get returns the raw value or "".
func (s *SessionStatistics) Get(key string) string {
	if s == nil {
		return ""
	}
	return s.values[strings.ToLower(key)]
}

// Float returns the value as a float, 0 when missing or malformed.
func (s *SessionStatistics) Float(key string) float64 {
	v, err := strconv.ParseFloat(s.Get(key), 64)
	if err != nil {
		return 0
	}
	return v
}

// Int returns the value truncated to an integer, 0 when missing or malformed.
func (s *SessionStatistics) Int(key string) int64 {
	raw := s.Get(key)
	if v, err := strconv.ParseInt(raw, 10, 64); err == nil {
		return v
	}
	return int64(s.Float(key))
}

// SourceFileSize is the total size of the source tree.
func (s *SessionStatistics) SourceFileSize() int64 { return s.Int(StatSourceFileSize) }

// IncrementFileSize is the size of the increments written by the session.
func (s *SessionStatistics) IncrementFileSize() int64 { return s.Int(StatIncrementFileSize) }

// Errors is the number of errors the session reported.
func (s *SessionStatistics) Errors() int64 { return s.Int(StatErrors) }

// Elapsed is the session duration.
func (s *SessionStatistics) Elapsed() time.Duration {
	return time.Duration(s.Float(StatElapsedTime) * float64(time.Second))
}

// StartTime returns the session start, if recorded.
func (s *SessionStatistics) StartTime() (Time, bool) {
	v := s.Float(StatStartTime)
	if v <= 0 {
		return Time{}, false
	}
	return FromEpoch(int64(v)), true
}

// Values returns a copy of all key/value pairs.
func (s *SessionStatistics) Values() map[string]string {
	if s == nil {
		return map[string]string{}
	}
	out := make(map[string]string, len(s.values))
	for k, v := range s.values {
		out[k] = v
	}
	return out
}

// FileStat is one line of a file_statistics file.
type FileStat struct {
	Changed       int64
	SourceSize    int64
	MirrorSize    int64
	IncrementSize int64
}

// FileStatistics maps quoted paths to their per-session statistics.
type FileStatistics struct {
	entries map[string]FileStat
	logger  zerolog.Logger
}

// ParseFileStatistics reads "filename changed source mirror increment" lines.
// The filename may contain spaces, so the four numeric fields are taken
// from the right.
//
//nolint:gocritic // zerolog.Logger is designed to be passed by value
func ParseFileStatistics(r io.Reader, logger zerolog.Logger) (*FileStatistics, error) {
	fs := &FileStatistics{entries: make(map[string]FileStat), logger: logger}
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 0, 64*1024), 16<<20)
	for sc.Scan() {
		line := sc.Text()
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		name, vals, ok := splitFileStatLine(line)
		if !ok {
			continue
		}
		if _, dup := fs.entries[name]; dup {
			continue
		}
		fs.entries[name] = FileStat{
			Changed:       statInt(vals[0]),
			SourceSize:    statInt(vals[1]),
			MirrorSize:    statInt(vals[2]),
			IncrementSize: statInt(vals[3]),
		}
	}
	if err := sc.Err(); err != nil {
		return nil, err
	}
	return fs, nil
}

func splitFileStatLine(line string) (string, [4]string, bool) {
	var vals [4]string
	rest := strings.TrimRight(line, " \t\r")
	for i := 3; i >= 0; i-- {
		idx := strings.LastIndexAny(rest, " \t")
		if idx < 0 {
			return "", vals, false
		}
		vals[i] = rest[idx+1:]
		rest = strings.TrimRight(rest[:idx], " \t")
	}
	if rest == "" {
		return "", vals, false
	}
	return rest, vals, true
}

func statInt(s string) int64 {
	if v, err := strconv.ParseInt(s, 10, 64); err == nil {
		return v
	}
	return 0
}

// Lookup returns the statistics of a quoted path; a miss yields zeros.
func (f *FileStatistics) Lookup(path string) FileStat {
	if f == nil {
		return FileStat{}
	}
	st, ok := f.entries[path]
	if !ok {
		f.logger.Warn().Str("path", path).Msg("path not found in file statistics")
	}
	return st
}

// Len returns the number of paths recorded.
func (f *FileStatistics) Len() int {
	if f == nil {
		return 0
	}
	return len(f.entries)
}
