// Rdiffgate - Web Access to rdiff-backup Repositories
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/rdiffgate

package api

import (
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/goccy/go-json"
	"github.com/google/go-cmp/cmp"

	"github.com/tomtom215/rdiffgate/internal/access"
	"github.com/tomtom215/rdiffgate/internal/catalogue"
	"github.com/tomtom215/rdiffgate/internal/rdiff"
	"github.com/tomtom215/rdiffgate/internal/restore"
)

const (
	t1 = "2024-01-01T00:00:00Z"
	t2 = "2024-01-02T00:00:00Z"
)

// fixture is a home directory holding the repository backups/laptop, a
// catalogue with alice owning it, and a router over both.
type fixture struct {
	home    string
	store   *catalogue.Store
	handler http.Handler
}

func writeFiles(t *testing.T, root string, files map[string]string) {
	t.Helper()
	for name, content := range files {
		full := filepath.Join(root, name)
		if err := os.MkdirAll(filepath.Dir(full), 0o755); err != nil {
			t.Fatal(err)
		}
		if err := os.WriteFile(full, []byte(content), 0o644); err != nil {
			t.Fatal(err)
		}
	}
}

func newFixture(t *testing.T, mwCfg *ChiMiddlewareConfig) *fixture {
	t.Helper()
	home := t.TempDir()
	writeFiles(t, filepath.Join(home, "backups", "laptop"), map[string]string{
		"rdiff-backup-data/current_mirror." + t2 + ".data":          "PID 1\n",
		"rdiff-backup-data/mirror_metadata." + t1 + ".snapshot":     "File .\n",
		"rdiff-backup-data/mirror_metadata." + t2 + ".snapshot":     "File .\n",
		"rdiff-backup-data/session_statistics." + t1 + ".data":      "SourceFileSize 100 (100 bytes)\nElapsedTime 2.0 (2 seconds)\nErrors 0\n",
		"rdiff-backup-data/session_statistics." + t2 + ".data":      "SourceFileSize 250 (250 bytes)\nIncrementFileSize 40 (40 bytes)\nElapsedTime 5.5 (5.50 seconds)\nErrors 1\n",
		"rdiff-backup-data/increments/gone.txt." + t1 + ".snapshot": "bye",
		"rdiff-backup-data/error_log." + t2 + ".data":               "ListError docs/locked [Errno 13] Permission denied\n",
		"docs/a.txt": "alpha",
		"Zeta.txt":   "zeta",
	})
	if err := os.MkdirAll(filepath.Join(home, "other", "rdiff-backup-data"), 0o755); err != nil {
		t.Fatal(err)
	}

	store, err := catalogue.Open(catalogue.Config{InMemory: true}, nil)
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { _ = store.Close() })
	err = store.AddUser(t.Context(), &catalogue.User{
		Username: "alice",
		Home:     home,
		Repos:    []catalogue.RepoRef{{Name: "backups/laptop", MaxAge: 3}, {Name: "vanished"}},
	})
	if err != nil {
		t.Fatal(err)
	}

	engine := rdiff.NewEngine()
	facade := access.New(store, access.Config{Engine: engine, Locks: rdiff.NewLockTable()})
	h := NewHandler(HandlerConfig{
		Facade:   facade,
		Restorer: restore.New(restore.Config{ScratchDir: t.TempDir()}),
		Settings: store,
		Engine:   engine,
	})
	return &fixture{
		home:    home,
		store:   store,
		handler: NewRouter(h, NewChiMiddleware(mwCfg), RouterConfig{}).SetupChi(),
	}
}

func (f *fixture) do(t *testing.T, method, target, user, body string) *httptest.ResponseRecorder {
	t.Helper()
	var rd io.Reader
	if body != "" {
		rd = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, target, rd)
	if user != "" {
		req.Header.Set("X-Remote-User", user)
	}
	rec := httptest.NewRecorder()
	f.handler.ServeHTTP(rec, req)
	return rec
}

// envelope decodes a response, with Data left raw for the caller.
type envelope struct {
	Success bool            `json:"success"`
	Data    json.RawMessage `json:"data"`
	Error   *APIError       `json:"error"`
	Meta    *APIMeta        `json:"meta"`
}

func decode(t *testing.T, rec *httptest.ResponseRecorder, data interface{}) envelope {
	t.Helper()
	var env envelope
	if err := json.Unmarshal(rec.Body.Bytes(), &env); err != nil {
		t.Fatalf("decode %q: %v", rec.Body.String(), err)
	}
	if data != nil && len(env.Data) > 0 {
		if err := json.Unmarshal(env.Data, data); err != nil {
			t.Fatalf("decode data %q: %v", env.Data, err)
		}
	}
	return env
}

// fakeEngine installs an rdiff-backup script on PATH; the restore
// destination is $5.
func fakeEngine(t *testing.T, body string) {
	t.Helper()
	dir := t.TempDir()
	script := "#!/bin/sh\ndest=\"$5\"\n" + body + "\n"
	if err := os.WriteFile(filepath.Join(dir, rdiff.DefaultEngine), []byte(script), 0o755); err != nil { //nolint:gosec // test executable
		t.Fatal(err)
	}
	t.Setenv("PATH", dir+string(os.PathListSeparator)+os.Getenv("PATH"))
}

func TestMissingUserHeader(t *testing.T) {
	f := newFixture(t, nil)
	rec := f.do(t, http.MethodGet, "/api/repos", "", "")
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("status = %d, want 401", rec.Code)
	}
	env := decode(t, rec, nil)
	if env.Success || env.Error == nil || env.Error.Code != ErrCodeUnauthorized {
		t.Errorf("envelope = %+v", env)
	}
	if rec.Header().Get("X-Request-ID") == "" {
		t.Error("X-Request-ID header not set")
	}
}

func TestUnknownUserIsForbidden(t *testing.T) {
	f := newFixture(t, nil)
	rec := f.do(t, http.MethodGet, "/api/repos", "mallory", "")
	if rec.Code != http.StatusForbidden {
		t.Fatalf("status = %d, want 403", rec.Code)
	}
}

func TestRepos(t *testing.T) {
	f := newFixture(t, nil)
	rec := f.do(t, http.MethodGet, "/api/repos", "alice", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d: %s", rec.Code, rec.Body)
	}
	var repos []*RepoSummary
	env := decode(t, rec, &repos)
	if env.Meta == nil || env.Meta.Count == nil || *env.Meta.Count != 2 {
		t.Errorf("meta = %+v, want count 2", env.Meta)
	}
	if len(repos) != 2 {
		t.Fatalf("got %d repos, want 2", len(repos))
	}

	laptop := repos[0]
	if laptop.Name != "backups/laptop" || laptop.Status != RepoStatusOK || laptop.MaxAge != 3 {
		t.Errorf("laptop = %+v", laptop)
	}
	if laptop.LastBackup == nil || laptop.LastBackup.URLFormUTC() != t2 {
		t.Errorf("laptop last backup = %v, want %s", laptop.LastBackup, t2)
	}
	if laptop.Encoding != "utf-8" {
		t.Errorf("laptop encoding = %q", laptop.Encoding)
	}

	if repos[1].Name != "vanished" || repos[1].Status != RepoStatusFailed || repos[1].Error != rdiff.DoesNotExist.String() {
		t.Errorf("vanished = %+v", repos[1])
	}
}

func TestBrowseRoot(t *testing.T) {
	f := newFixture(t, nil)
	rec := f.do(t, http.MethodGet, "/api/browse/backups/laptop", "alice", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d: %s", rec.Code, rec.Body)
	}
	var res BrowseResult
	decode(t, rec, &res)
	if res.Repo != "backups/laptop" || res.Path != "backups/laptop" || !res.IsDir {
		t.Errorf("result = %+v", res)
	}

	type row struct {
		Name   string
		Path   string
		IsDir  bool
		Exists bool
		Dates  []string
	}
	var got []row
	for _, e := range res.Entries {
		var dates []string
		for _, d := range e.ChangeDates {
			dates = append(dates, d.URLFormUTC())
		}
		got = append(got, row{e.Name, e.Path, e.IsDir, e.Exists, dates})
	}
	want := []row{
		{"docs", "backups/laptop/docs", true, true, []string{t2}},
		{"gone.txt", "backups/laptop/gone.txt", false, false, []string{t1, t2}},
		{"Zeta.txt", "backups/laptop/Zeta.txt", false, true, []string{t2}},
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("entries (-want +got):\n%s", diff)
	}
}

func TestBrowseSubdirectoryAndFile(t *testing.T) {
	f := newFixture(t, nil)

	rec := f.do(t, http.MethodGet, "/api/browse/backups/laptop/docs/", "alice", "")
	var res BrowseResult
	decode(t, rec, &res)
	if rec.Code != http.StatusOK || res.Repo != "backups/laptop" || len(res.Entries) != 1 || res.Entries[0].Path != "backups/laptop/docs/a.txt" {
		t.Fatalf("docs: status %d result %+v", rec.Code, res)
	}
	if res.Entries[0].Size != int64(len("alpha")) {
		t.Errorf("a.txt size = %d", res.Entries[0].Size)
	}

	rec = f.do(t, http.MethodGet, "/api/browse/backups/laptop/docs/a.txt", "alice", "")
	res = BrowseResult{}
	decode(t, rec, &res)
	if rec.Code != http.StatusOK || res.IsDir || res.Entries != nil || res.DisplayName != "a.txt" {
		t.Errorf("a.txt: status %d result %+v", rec.Code, res)
	}
}

func TestBrowseErrors(t *testing.T) {
	f := newFixture(t, nil)
	tests := []struct {
		name   string
		target string
		status int
		code   string
	}{
		{"not a repository of the user", "/api/browse/other", http.StatusForbidden, ErrCodeForbidden},
		{"traversal", "/api/browse/backups/laptop/%2E%2E/%2E%2E/etc", http.StatusForbidden, ErrCodeForbidden},
		{"metadata directory", "/api/browse/backups/laptop/rdiff-backup-data", http.StatusForbidden, ErrCodeForbidden},
		{"missing path", "/api/browse/backups/laptop/nope", http.StatusNotFound, ErrCodeNotFound},
		{"missing repository", "/api/browse/vanished", http.StatusNotFound, ErrCodeNotFound},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := f.do(t, http.MethodGet, tt.target, "alice", "")
			if rec.Code != tt.status {
				t.Fatalf("status = %d, want %d: %s", rec.Code, tt.status, rec.Body)
			}
			env := decode(t, rec, nil)
			if env.Error == nil || env.Error.Code != tt.code {
				t.Errorf("error = %+v, want code %s", env.Error, tt.code)
			}
		})
	}
}

func TestHistory(t *testing.T) {
	f := newFixture(t, nil)

	rec := f.do(t, http.MethodGet, "/api/history/backups/laptop", "alice", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d: %s", rec.Code, rec.Body)
	}
	var hist []*HistoryInfo
	decode(t, rec, &hist)
	if len(hist) != 2 {
		t.Fatalf("got %d sessions, want 2", len(hist))
	}
	newest := hist[0]
	if newest.Date.URLFormUTC() != t2 || newest.SourceSize != 250 || newest.IncrementSize != 40 || newest.Errors != 1 || newest.ElapsedSeconds != 5.5 {
		t.Errorf("newest = %+v", newest)
	}
	if !strings.Contains(newest.ErrorLog, "Permission denied") {
		t.Errorf("newest error log = %q", newest.ErrorLog)
	}
	if hist[1].ErrorLog != "" {
		t.Errorf("older session has error log %q, want none", hist[1].ErrorLog)
	}

	rec = f.do(t, http.MethodGet, "/api/history/backups/laptop?limit=1", "alice", "")
	hist = nil
	decode(t, rec, &hist)
	if len(hist) != 1 {
		t.Errorf("limit=1 returned %d sessions", len(hist))
	}

	rec = f.do(t, http.MethodGet, "/api/history/backups/laptop?latest="+t1, "alice", "")
	hist = nil
	decode(t, rec, &hist)
	if len(hist) != 1 || hist[0].Date.URLFormUTC() != t1 {
		t.Errorf("latest=%s returned %+v", t1, hist)
	}

	rec = f.do(t, http.MethodGet, "/api/history/backups/laptop?earliest=yesterday", "alice", "")
	if rec.Code != http.StatusBadRequest {
		t.Errorf("bad earliest: status = %d, want 400", rec.Code)
	}
	if env := decode(t, rec, nil); env.Error == nil || env.Error.Code != ErrCodeInvalidTimestamp {
		t.Errorf("bad earliest: error = %+v", env.Error)
	}
}

func TestDates(t *testing.T) {
	f := newFixture(t, nil)
	tests := []struct {
		path string
		want []string
	}{
		{"backups/laptop", []string{t1, t2}},
		{"backups/laptop/gone.txt", []string{t1, t2}},
		{"backups/laptop/Zeta.txt", []string{t2}},
	}
	for _, tt := range tests {
		t.Run(tt.path, func(t *testing.T) {
			rec := f.do(t, http.MethodGet, "/api/dates/"+tt.path, "alice", "")
			if rec.Code != http.StatusOK {
				t.Fatalf("status = %d: %s", rec.Code, rec.Body)
			}
			var dates []rdiff.Time
			decode(t, rec, &dates)
			var got []string
			for _, d := range dates {
				got = append(got, d.URLFormUTC())
			}
			if diff := cmp.Diff(tt.want, got); diff != "" {
				t.Errorf("dates (-want +got):\n%s", diff)
			}
		})
	}
}

func TestRestoreRawFile(t *testing.T) {
	fakeEngine(t, `echo "Processing changed file ."
printf 'alpha' > "$dest"`)
	f := newFixture(t, nil)

	rec := f.do(t, http.MethodGet, "/api/restore/backups/laptop/docs/a.txt?date="+t2, "alice", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d: %s", rec.Code, rec.Body)
	}
	if rec.Body.String() != "alpha" {
		t.Errorf("body = %q, want alpha", rec.Body.String())
	}
	if got := rec.Header().Get("Content-Disposition"); got != "attachment; filename=a.txt" {
		t.Errorf("Content-Disposition = %q", got)
	}
	if got := rec.Header().Get("Content-Type"); got != "text/plain; charset=utf-8" {
		t.Errorf("Content-Type = %q", got)
	}
}

func TestRestoreDirectoryDefaultsToZip(t *testing.T) {
	fakeEngine(t, `/bin/mkdir -p "$dest"
echo "Processing changed file ."
echo "Processing changed file a.txt"
printf 'alpha' > "$dest/a.txt"`)
	f := newFixture(t, nil)

	rec := f.do(t, http.MethodGet, "/api/restore/backups/laptop/docs?date=1704153600", "alice", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d: %s", rec.Code, rec.Body)
	}
	if got := rec.Header().Get("Content-Type"); got != "application/zip" {
		t.Errorf("Content-Type = %q, want application/zip", got)
	}
	if got := rec.Header().Get("Content-Disposition"); got != "attachment; filename=docs.zip" {
		t.Errorf("Content-Disposition = %q", got)
	}
	if !strings.HasPrefix(rec.Body.String(), "PK") {
		t.Errorf("body is not a zip archive")
	}
}

func TestRestoreRejections(t *testing.T) {
	fakeEngine(t, "exit 0")
	f := newFixture(t, nil)
	tests := []struct {
		name   string
		target string
		status int
	}{
		{"missing date", "/api/restore/backups/laptop/docs", http.StatusBadRequest},
		{"bad date", "/api/restore/backups/laptop/docs?date=2024-13-01T00:00:00Z", http.StatusBadRequest},
		{"bad kind", "/api/restore/backups/laptop/docs?date=" + t2 + "&kind=rar", http.StatusBadRequest},
		{"bad encoding", "/api/restore/backups/laptop/docs?date=" + t2 + "&encoding=klingon", http.StatusBadRequest},
		{"foreign path", "/api/restore/other?date=" + t2, http.StatusForbidden},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := f.do(t, http.MethodGet, tt.target, "alice", "")
			if rec.Code != tt.status {
				t.Errorf("status = %d, want %d: %s", rec.Code, tt.status, rec.Body)
			}
		})
	}
}

func TestRestoreEngineMissing(t *testing.T) {
	t.Setenv("PATH", t.TempDir())
	f := newFixture(t, nil)
	rec := f.do(t, http.MethodGet, "/api/restore/backups/laptop/docs?date="+t2, "alice", "")
	if rec.Code != http.StatusInternalServerError {
		t.Fatalf("status = %d, want 500", rec.Code)
	}
	if env := decode(t, rec, nil); env.Error == nil || env.Error.Code != ErrCodeEngineMissing {
		t.Errorf("error = %+v", env.Error)
	}
}

func TestRestoreRateLimit(t *testing.T) {
	fakeEngine(t, `echo "Processing changed file ."
printf 'alpha' > "$dest"`)
	cfg := DefaultChiMiddlewareConfig()
	cfg.RestoresPerMinute = 1
	cfg.RestoreBurst = 2
	f := newFixture(t, cfg)

	target := "/api/restore/backups/laptop/docs/a.txt?date=" + t2
	for i := 0; i < 2; i++ {
		if rec := f.do(t, http.MethodGet, target, "alice", ""); rec.Code != http.StatusOK {
			t.Fatalf("restore %d: status = %d", i, rec.Code)
		}
	}
	rec := f.do(t, http.MethodGet, target, "alice", "")
	if rec.Code != http.StatusTooManyRequests {
		t.Fatalf("third restore: status = %d, want 429", rec.Code)
	}
	if env := decode(t, rec, nil); env.Error == nil || env.Error.Code != ErrCodeTooManyRequests {
		t.Errorf("error = %+v", env.Error)
	}
	// bob is unknown and is rejected before the limiter is charged.
	if rec := f.do(t, http.MethodGet, target, "bob", ""); rec.Code != http.StatusForbidden {
		t.Errorf("bob: status = %d, want 403", rec.Code)
	}
}

func TestRejectedRestoresKeepBudget(t *testing.T) {
	fakeEngine(t, `echo "Processing changed file ."
printf 'alpha' > "$dest"`)
	cfg := DefaultChiMiddlewareConfig()
	cfg.RestoresPerMinute = 1
	cfg.RestoreBurst = 1
	f := newFixture(t, cfg)

	for _, target := range []string{
		"/api/restore/backups/laptop/docs/a.txt",
		"/api/restore/backups/laptop/docs/a.txt?date=" + t2 + "&encoding=klingon",
		"/api/restore/backups/laptop/docs/a.txt?date=" + t2 + "&kind=rar",
		"/api/restore/other?date=" + t2,
	} {
		rec := f.do(t, http.MethodGet, target, "alice", "")
		if rec.Code == http.StatusTooManyRequests || rec.Code == http.StatusOK {
			t.Errorf("%s: status = %d, want a 4xx rejection", target, rec.Code)
		}
	}
	rec := f.do(t, http.MethodGet, "/api/restore/backups/laptop/docs/a.txt?date="+t2, "alice", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("valid restore after rejections: status = %d, want 200: %s", rec.Code, rec.Body)
	}
	if rec := f.do(t, http.MethodGet, "/api/restore/backups/laptop/docs/a.txt?date="+t2, "alice", ""); rec.Code != http.StatusTooManyRequests {
		t.Errorf("second valid restore: status = %d, want 429", rec.Code)
	}
}

func TestRepoSettings(t *testing.T) {
	f := newFixture(t, nil)

	rec := f.do(t, http.MethodPut, "/api/settings/backups/laptop", "alice", `{"encoding":"latin1","keepdays":30}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d: %s", rec.Code, rec.Body)
	}
	var ref catalogue.RepoRef
	decode(t, rec, &ref)
	want := catalogue.RepoRef{Name: "backups/laptop", Encoding: "latin1", MaxAge: 3, KeepDays: 30}
	if diff := cmp.Diff(want, ref); diff != "" {
		t.Errorf("response (-want +got):\n%s", diff)
	}

	u, err := f.store.User(t.Context(), "alice")
	if err != nil {
		t.Fatal(err)
	}
	stored, _ := u.Repo("backups/laptop")
	if diff := cmp.Diff(want, stored); diff != "" {
		t.Errorf("catalogue (-want +got):\n%s", diff)
	}

	rec = f.do(t, http.MethodGet, "/api/repos", "alice", "")
	var repos []*RepoSummary
	decode(t, rec, &repos)
	if len(repos) == 0 || repos[0].Encoding != "windows-1252" {
		t.Errorf("encoding after update = %+v", repos)
	}
}

func TestRepoSettingsRejections(t *testing.T) {
	f := newFixture(t, nil)
	tests := []struct {
		name   string
		target string
		body   string
		status int
		code   string
	}{
		{"negative keepdays", "/api/settings/backups/laptop", `{"keepdays":-1}`, http.StatusBadRequest, ErrCodeValidationFailed},
		{"unknown encoding", "/api/settings/backups/laptop", `{"encoding":"klingon"}`, http.StatusBadRequest, ErrCodeValidationFailed},
		{"malformed body", "/api/settings/backups/laptop", `{"maxage":`, http.StatusBadRequest, ErrCodeBadRequest},
		{"unknown repository", "/api/settings/backups/desktop", `{"maxage":1}`, http.StatusNotFound, ErrCodeNotFound},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := f.do(t, http.MethodPut, tt.target, "alice", tt.body)
			if rec.Code != tt.status {
				t.Fatalf("status = %d, want %d: %s", rec.Code, tt.status, rec.Body)
			}
			if env := decode(t, rec, nil); env.Error == nil || env.Error.Code != tt.code {
				t.Errorf("error = %+v, want code %s", env.Error, tt.code)
			}
		})
	}
}

func TestHealth(t *testing.T) {
	t.Setenv("PATH", t.TempDir())
	f := newFixture(t, nil)
	rec := f.do(t, http.MethodGet, "/healthz", "", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	var status map[string]interface{}
	decode(t, rec, &status)
	if status["status"] != "degraded" || status["engine"] != false {
		t.Errorf("health = %v", status)
	}
}

func TestRestoreLimiterDisabled(t *testing.T) {
	l := NewRestoreLimiter(0, 0)
	for i := 0; i < 100; i++ {
		if !l.Allow("alice") {
			t.Fatalf("disabled limiter refused request %d", i)
		}
	}
}

func TestSanitizeLogValue(t *testing.T) {
	if got := sanitizeLogValue("a\nb\x7f"); got != `a\x0ab\x7f` {
		t.Errorf("sanitizeLogValue = %q", got)
	}
}
