// Rdiffgate - Web Access to rdiff-backup Repositories
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/rdiffgate

package notify

import (
	"bytes"
	"embed"
	"fmt"
	"html"
	"html/template"
	"strings"
	"time"

	"github.com/Masterminds/sprig/v3"
	"github.com/dustin/go-humanize"

	"github.com/tomtom215/rdiffgate/internal/rdiff"
)

//go:embed templates/*.html
var templateFS embed.FS

// Template names.
const (
	TemplateStale           = "stale"
	TemplateEmailChanged    = "email_changed"
	TemplatePasswordChanged = "password_changed"
)

// Renderer renders mail templates. Each template defines "subject" and
// "body"; bodies are wrapped in the shared layout.
type Renderer struct {
	sets map[string]*template.Template
}

func funcMap(now func() time.Time) template.FuncMap {
	fm := sprig.HtmlFuncMap()
	fm["ago"] = func(t rdiff.Time) string {
		return humanize.RelTime(t.Std(), now(), "ago", "from now")
	}
	fm["bytes"] = func(n int64) string {
		if n < 0 {
			n = 0
		}
		return humanize.IBytes(uint64(n))
	}
	return fm
}

// NewRenderer parses the embedded templates.
func NewRenderer(now func() time.Time) (*Renderer, error) {
	if now == nil {
		now = time.Now
	}
	r := &Renderer{sets: make(map[string]*template.Template)}
	for _, name := range []string{TemplateStale, TemplateEmailChanged, TemplatePasswordChanged} {
		t, err := template.New(name).Funcs(funcMap(now)).ParseFS(templateFS, "templates/layout.html", "templates/"+name+".html")
		if err != nil {
			return nil, fmt.Errorf("parse template %s: %w", name, err)
		}
		r.sets[name] = t
	}
	return r, nil
}

// Render executes template name and returns its subject, HTML body and the
// plain-text rendering of that body.
func (r *Renderer) Render(name string, data any) (subject, htmlBody, textBody string, err error) {
	t, ok := r.sets[name]
	if !ok {
		return "", "", "", fmt.Errorf("unknown template %q", name)
	}
	var sb, bb bytes.Buffer
	if err := t.ExecuteTemplate(&sb, "subject", data); err != nil {
		return "", "", "", fmt.Errorf("render %s subject: %w", name, err)
	}
	if err := t.ExecuteTemplate(&bb, "layout", data); err != nil {
		return "", "", "", fmt.Errorf("render %s body: %w", name, err)
	}
	subject = strings.Join(strings.Fields(html.UnescapeString(sb.String())), " ")
	htmlBody = bb.String()
	return subject, htmlBody, HTMLToText(htmlBody), nil
}
