// Rdiffgate - Web Access to rdiff-backup Repositories
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/rdiffgate

package api

import (
	"context"
	"errors"
	"io"
	"mime"
	"net/http"
	"net/url"
	"path"
	"strings"

	"github.com/goccy/go-json"

	"github.com/tomtom215/rdiffgate/internal/access"
	"github.com/tomtom215/rdiffgate/internal/catalogue"
	"github.com/tomtom215/rdiffgate/internal/logging"
	"github.com/tomtom215/rdiffgate/internal/rdiff"
	"github.com/tomtom215/rdiffgate/internal/restore"
	"github.com/tomtom215/rdiffgate/internal/validation"
)

// DefaultHistoryLimit is the number of sessions returned when no limit is given.
const DefaultHistoryLimit = 20

// maxSettingsBody bounds the settings request body.
const maxSettingsBody = 64 << 10

// Restorer starts restore streams.
type Restorer interface {
	Restore(ctx context.Context, req restore.Request) (*restore.Stream, error)
}

// RepoSettings updates per-repository settings in the catalogue.
type RepoSettings interface {
	SetRepoAttrs(ctx context.Context, name, repo string, attrs catalogue.RepoAttrs) (catalogue.RepoRef, error)
}

// HandlerConfig wires a Handler.
type HandlerConfig struct {
	Facade   *access.Facade
	Restorer Restorer
	Settings RepoSettings
	Engine   *rdiff.Engine
}

// Handler serves the JSON and stream endpoints.
type Handler struct {
	facade   *access.Facade
	restorer Restorer
	settings RepoSettings
	engine   *rdiff.Engine
}

// NewHandler returns a Handler.
func NewHandler(cfg HandlerConfig) *Handler {
	engine := cfg.Engine
	if engine == nil {
		engine = rdiff.NewEngine()
	}
	return &Handler{
		facade:   cfg.Facade,
		restorer: cfg.Restorer,
		settings: cfg.Settings,
		engine:   engine,
	}
}

// RepoSummary describes one of the user's repositories.
type RepoSummary struct {
	Name           string      `json:"name"`
	DisplayName    string      `json:"display_name"`
	Encoding       string      `json:"encoding"`
	MaxAge         int         `json:"maxage"`
	KeepDays       int         `json:"keepdays"`
	Status         string      `json:"status"`
	Error          string      `json:"error,omitempty"`
	LastBackup     *rdiff.Time `json:"last_backup,omitempty"`
	InProgress     bool        `json:"in_progress"`
	ActiveRestores int         `json:"active_restores"`
}

// Repository statuses reported by RepoSummary.
const (
	RepoStatusOK         = "ok"
	RepoStatusInProgress = "in_progress"
	RepoStatusFailed     = "failed"
)

// EntryInfo is one row of a directory listing.
type EntryInfo struct {
	Name        string       `json:"name"`
	Path        string       `json:"path"`
	DisplayName string       `json:"display_name"`
	IsDir       bool         `json:"is_dir"`
	Size        int64        `json:"size"`
	Exists      bool         `json:"exists"`
	ChangeDates []rdiff.Time `json:"change_dates"`
	LastChange  *rdiff.Time  `json:"last_change,omitempty"`
}

// BrowseResult is the response of the browse endpoint.
type BrowseResult struct {
	Repo        string       `json:"repo"`
	Path        string       `json:"path"`
	DisplayName string       `json:"display_name"`
	IsDir       bool         `json:"is_dir"`
	Exists      bool         `json:"exists"`
	Entries     []*EntryInfo `json:"entries,omitempty"`
}

// HistoryInfo is one backup session.
type HistoryInfo struct {
	Date           rdiff.Time `json:"date"`
	InProgress     bool       `json:"in_progress"`
	SourceSize     int64      `json:"source_size"`
	IncrementSize  int64      `json:"increment_size"`
	Errors         int64      `json:"errors"`
	ElapsedSeconds float64    `json:"elapsed_seconds"`
	ErrorLog       string     `json:"error_log,omitempty"`
}

// escapePath percent-encodes every segment so that names with arbitrary
// bytes survive a round trip through a URL.
func escapePath(p string) string {
	parts := strings.Split(p, "/")
	for i, part := range parts {
		parts[i] = url.PathEscape(part)
	}
	return strings.Join(parts, "/")
}

// requestPath returns the home-relative path of a wildcard route, undoing
// percent-encoding when the router matched on the raw path.
func requestPath(r *http.Request) (string, error) {
	p := wildcardPath(r)
	if r.URL.RawPath == "" {
		return p, nil
	}
	return url.PathUnescape(p)
}

// repoPrefix returns the repository part of a home-relative path, which
// view.Path() is relative to.
func repoPrefix(homePath string, view *rdiff.PathView) string {
	homePath = strings.TrimLeft(path.Clean("/"+homePath), "/")
	if view.IsRoot() {
		return homePath
	}
	return strings.TrimSuffix(strings.TrimSuffix(homePath, view.Path()), "/")
}

// Health reports liveness and whether the backup engine can be found.
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	status := map[string]interface{}{"status": "healthy", "engine": true}
	if _, err := h.engine.Resolve(); err != nil {
		status["status"] = "degraded"
		status["engine"] = false
	}
	WriteSuccess(w, r, status)
}

// Repos lists the user's repositories with their current state.
func (h *Handler) Repos(w http.ResponseWriter, r *http.Request) {
	u, err := h.facade.User(r.Context(), UserFromContext(r.Context()))
	if err != nil {
		respondError(w, r, err)
		return
	}

	out := make([]*RepoSummary, 0, len(u.Repos))
	for _, ref := range u.Repos {
		s := &RepoSummary{
			Name:        ref.Name,
			DisplayName: ref.Name,
			Encoding:    ref.Encoding,
			MaxAge:      ref.MaxAge,
			KeepDays:    ref.KeepDays,
			Status:      RepoStatusOK,
		}
		repo, err := h.facade.OpenRepo(u, ref)
		if err != nil {
			s.Status = RepoStatusFailed
			s.Error = rdiff.KindOf(err).String()
			out = append(out, s)
			continue
		}
		s.DisplayName = repo.DisplayName()
		s.Encoding = repo.Codec().Name()
		if last, ok := repo.LastBackupDate(); ok {
			s.LastBackup = &last
		}
		if repo.InProgress() {
			s.InProgress = true
			s.Status = RepoStatusInProgress
		}
		s.ActiveRestores = repo.Locks().ActiveRestores(repo.Root())
		out = append(out, s)
	}
	NewResponseWriter(w, r).SuccessList(out, len(out))
}

// Browse lists a directory, or describes a file, at any depth of a repository.
func (h *Handler) Browse(w http.ResponseWriter, r *http.Request) {
	p, err := requestPath(r)
	if err != nil {
		NewResponseWriter(w, r).BadRequest("Malformed path")
		return
	}
	_, view, err := h.facade.Resolve(r.Context(), UserFromContext(r.Context()), p)
	if err != nil {
		respondError(w, r, err)
		return
	}

	prefix := repoPrefix(p, view)
	res := &BrowseResult{
		Repo:        escapePath(prefix),
		Path:        escapePath(path.Join(prefix, view.Path())),
		DisplayName: view.DisplayName(),
		IsDir:       view.IsDir(),
		Exists:      view.Exists(),
	}
	if view.IsDir() {
		entries, err := view.Entries()
		if err != nil {
			respondError(w, r, err)
			return
		}
		res.Entries = make([]*EntryInfo, 0, len(entries))
		for _, e := range entries {
			res.Entries = append(res.Entries, entryInfo(prefix, e))
		}
	}
	WriteSuccess(w, r, res)
}

func entryInfo(prefix string, e *rdiff.DirEntry) *EntryInfo {
	info := &EntryInfo{
		Name:        escapePath(e.Name),
		Path:        escapePath(path.Join(prefix, e.Path)),
		DisplayName: e.DisplayName,
		IsDir:       e.IsDir,
		Size:        e.Size,
		Exists:      e.Exists,
		ChangeDates: e.ChangeDates,
	}
	if info.ChangeDates == nil {
		info.ChangeDates = []rdiff.Time{}
	}
	if last, ok := e.LastChangeDate(); ok {
		info.LastChange = &last
	}
	return info
}

// History returns backup sessions of a repository, newest first.
func (h *Handler) History(w http.ResponseWriter, r *http.Request) {
	p, err := requestPath(r)
	if err != nil {
		NewResponseWriter(w, r).BadRequest("Malformed path")
		return
	}
	earliest, err := getTimeParam(r, "earliest")
	if err != nil {
		respondError(w, r, err)
		return
	}
	latest, err := getTimeParam(r, "latest")
	if err != nil {
		respondError(w, r, err)
		return
	}
	repo, _, err := h.facade.Resolve(r.Context(), UserFromContext(r.Context()), p)
	if err != nil {
		respondError(w, r, err)
		return
	}

	entries := repo.History(rdiff.HistoryOptions{
		Limit:    getIntParam(r, "limit", DefaultHistoryLimit),
		Earliest: earliest,
		Latest:   latest,
	})
	out := make([]*HistoryInfo, 0, len(entries))
	for _, e := range entries {
		info := &HistoryInfo{
			Date:          e.Date,
			InProgress:    e.InProgress,
			SourceSize:    e.SourceSize(),
			IncrementSize: e.IncrementSize(),
			Errors:        e.Errors(),
			ErrorLog:      e.ErrorLog(),
		}
		if e.Session != nil {
			info.ElapsedSeconds = e.Session.Elapsed().Seconds()
		}
		out = append(out, info)
	}
	NewResponseWriter(w, r).SuccessList(out, len(out))
}

// Dates returns the backup dates at which a path can be restored.
func (h *Handler) Dates(w http.ResponseWriter, r *http.Request) {
	p, err := requestPath(r)
	if err != nil {
		NewResponseWriter(w, r).BadRequest("Malformed path")
		return
	}
	_, view, err := h.facade.Resolve(r.Context(), UserFromContext(r.Context()), p)
	if err != nil {
		respondError(w, r, err)
		return
	}
	dates, err := view.RestoreDates()
	if err != nil {
		respondError(w, r, err)
		return
	}
	if dates == nil {
		dates = []rdiff.Time{}
	}
	NewResponseWriter(w, r).SuccessList(dates, len(dates))
}

// restoreQuery holds the restore query parameters.
type restoreQuery struct {
	Date     string `validate:"required"`
	Kind     string `validate:"omitempty,oneof=raw zip tar tar.gz tgz tar.bz2 tbz2"`
	Encoding string `validate:"omitempty,encoding"`
}

// Restore streams a path as of a backup date, packaged as requested.
func (h *Handler) Restore(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	req := restoreQuery{Date: q.Get("date"), Kind: q.Get("kind"), Encoding: q.Get("encoding")}
	if err := validateRequest(&req); err != nil {
		respondError(w, r, err)
		return
	}
	asOf, err := rdiff.ParseUserTime(req.Date)
	if err != nil {
		respondError(w, r, err)
		return
	}
	p, err := requestPath(r)
	if err != nil {
		NewResponseWriter(w, r).BadRequest("Malformed path")
		return
	}
	_, view, err := h.facade.Resolve(r.Context(), UserFromContext(r.Context()), p)
	if err != nil {
		respondError(w, r, err)
		return
	}

	kind := restore.Raw
	if view.IsDir() {
		kind = restore.Zip
	}
	if req.Kind != "" {
		if kind, err = restore.ParseKind(req.Kind); err != nil {
			NewResponseWriter(w, r).BadRequest(err.Error())
			return
		}
	}

	if !allowRestore(r) {
		NewResponseWriter(w, r).TooManyRequests("Too many restores, try again later")
		return
	}
	stream, err := h.restorer.Restore(r.Context(), restore.Request{
		View:     view,
		AsOf:     asOf,
		Kind:     kind,
		Encoding: req.Encoding,
	})
	if err != nil {
		respondError(w, r, err)
		return
	}
	defer stream.Close() //nolint:errcheck // aborts the restore if the client went away

	disposition := mime.FormatMediaType("attachment", map[string]string{"filename": stream.Filename()})
	if disposition == "" {
		disposition = "attachment"
	}
	w.Header().Set("Content-Type", stream.ContentType())
	w.Header().Set("Content-Disposition", disposition)
	w.Header().Set("Cache-Control", "no-store")
	w.WriteHeader(http.StatusOK)

	if _, err := io.Copy(w, stream); err != nil && !errors.Is(err, context.Canceled) {
		// Headers are already sent; the truncated body is all the client sees.
		logging.Ctx(r.Context()).Error().Err(err).
			Str("repo", view.Repository().Root()).
			Str("path", view.Path()).
			Msg("Restore stream failed")
	}
}

// settingsRequest is the body of a repository settings update.
type settingsRequest struct {
	Encoding *string `json:"encoding" validate:"omitempty"`
	MaxAge   *int    `json:"maxage" validate:"omitempty,gte=0"`
	KeepDays *int    `json:"keepdays" validate:"omitempty,gte=0"`
}

// RepoSettings updates the encoding, staleness threshold or retention of
// one of the user's repositories.
func (h *Handler) RepoSettings(w http.ResponseWriter, r *http.Request) {
	repo, err := requestPath(r)
	if err != nil || repo == "" {
		NewResponseWriter(w, r).BadRequest("Malformed repository name")
		return
	}
	var req settingsRequest
	if err := json.NewDecoder(io.LimitReader(r.Body, maxSettingsBody)).Decode(&req); err != nil {
		NewResponseWriter(w, r).BadRequest("Invalid request body")
		return
	}
	if err := validateRequest(&req); err != nil {
		respondError(w, r, err)
		return
	}
	if req.Encoding != nil && *req.Encoding != "" && !validation.ValidEncoding(*req.Encoding) {
		NewResponseWriter(w, r).ErrorWithDetails(http.StatusBadRequest, ErrCodeValidationFailed,
			"Encoding must be a known text encoding", map[string]interface{}{"field": "encoding"})
		return
	}

	ref, err := h.settings.SetRepoAttrs(r.Context(), UserFromContext(r.Context()), repo, catalogue.RepoAttrs{
		Encoding: req.Encoding,
		MaxAge:   req.MaxAge,
		KeepDays: req.KeepDays,
	})
	if err != nil {
		respondError(w, r, err)
		return
	}
	logging.Ctx(r.Context()).Info().Str("repo", sanitizeLogValue(ref.Name)).Msg("Repository settings updated")
	WriteSuccess(w, r, ref)
}
