// Rdiffgate - Web Access to rdiff-backup Repositories
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/rdiffgate

package notify

import (
	"strings"
	"testing"
	"time"

	"github.com/tomtom215/rdiffgate/internal/catalogue"
)

func TestRenderEscapesAndUnescapesSubject(t *testing.T) {
	r, err := NewRenderer(nil)
	if err != nil {
		t.Fatal(err)
	}
	subject, html, text, err := r.Render(TemplateEmailChanged, map[string]any{
		"App":      "R&D <Backups>",
		"User":     &catalogue.User{Username: "bob"},
		"Email":    "bob@example.com",
		"OldEmail": "",
		"When":     time.Now(),
	})
	if err != nil {
		t.Fatal(err)
	}
	if subject != "R&D <Backups>: your email address was changed" {
		t.Errorf("subject = %q", subject)
	}
	if !strings.Contains(html, "R&amp;D &lt;Backups&gt;") {
		t.Errorf("html not escaped: %s", html)
	}
	if strings.Contains(text, " from ") {
		t.Errorf("empty old address should be omitted:\n%s", text)
	}
}

func TestRenderUnknownTemplate(t *testing.T) {
	r, err := NewRenderer(nil)
	if err != nil {
		t.Fatal(err)
	}
	if _, _, _, err := r.Render("nope", nil); err == nil {
		t.Error("Render(nope) succeeded")
	}
}
