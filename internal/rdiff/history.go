// Rdiffgate - Web Access to rdiff-backup Repositories
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/rdiffgate

package rdiff

// HistoryOptions filters Repository.History.
type HistoryOptions struct {
	// Limit caps the number of entries; negative means unlimited and zero
	// returns nothing.
	Limit int

	// Earliest and Latest bound the dates inclusively when set.
	Earliest *Time
	Latest   *Time

	// ExcludeInProgress skips the date of the running backup.
	ExcludeInProgress bool
}

// HistoryEntry is one backup date joined with its session statistics.
type HistoryEntry struct {
	Date       Time
	Session    *SessionStatistics
	InProgress bool

	repo *Repository
}

// SourceSize is the source tree size recorded by the session, 0 if unknown.
func (h *HistoryEntry) SourceSize() int64 {
	return h.Session.SourceFileSize()
}

// IncrementSize is the increment size recorded by the session, 0 if unknown.
func (h *HistoryEntry) IncrementSize() int64 {
	return h.Session.IncrementFileSize()
}

// Errors is the number of errors reported by the session.
func (h *HistoryEntry) Errors() int64 {
	return h.Session.Errors()
}

// ErrorLog reads the session's error log on demand.
func (h *HistoryEntry) ErrorLog() string {
	if h.repo == nil {
		return ""
	}
	return h.repo.ErrorLog(h.Date)
}

// History returns backup sessions newest first.
func (r *Repository) History(opts HistoryOptions) []*HistoryEntry {
	l := r.locks.For(r.root)
	l.RLock()
	defer l.RUnlock()

	inProgress, hasInProgress := r.InProgressDate()
	dates := r.BackupDates()
	var out []*HistoryEntry
	for i := len(dates) - 1; i >= 0; i-- {
		if opts.Limit >= 0 && len(out) >= opts.Limit {
			break
		}
		d := dates[i]
		if opts.Latest != nil && d.After(*opts.Latest) {
			continue
		}
		if opts.Earliest != nil && d.Before(*opts.Earliest) {
			break
		}
		running := hasInProgress && d.Equal(inProgress)
		if running && opts.ExcludeInProgress {
			continue
		}
		out = append(out, &HistoryEntry{
			Date:       d,
			Session:    r.SessionStatistics(d),
			InProgress: running,
			repo:       r,
		})
	}
	return out
}
