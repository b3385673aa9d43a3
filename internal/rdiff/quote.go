// Rdiffgate - Web Access to rdiff-backup Repositories
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/rdiffgate

package rdiff

import (
	"os"
	"path/filepath"
	"strings"
)

// Quoter implements the ;NNN escaping rdiff-backup applies to file names
// when the repository was created with a chars_to_quote set.
//
// A nil or empty Quoter leaves names untouched on Quote; Unquote always
// decodes well-formed escapes.
type Quoter struct {
	chars     string
	sensitive [256]bool
}

// NewQuoter returns a Quoter for the given sensitive byte set. The
// semicolon is always sensitive when quoting is enabled.
func NewQuoter(chars string) *Quoter {
	q := &Quoter{chars: chars}
	if chars == "" {
		return q
	}
	for i := 0; i < len(chars); i++ {
		q.sensitive[chars[i]] = true
	}
	q.sensitive[';'] = true
	q.sensitive['/'] = false
	return q
}

// LoadQuoter reads rdiff-backup-data/chars_to_quote under root. A missing
// or empty file yields an identity Quoter.
func LoadQuoter(root string) (*Quoter, error) {
	data, err := os.ReadFile(filepath.Join(root, DataDir, "chars_to_quote")) //nolint:gosec // G304: path is inside a validated repository
	if err != nil {
		if os.IsNotExist(err) {
			return NewQuoter(""), nil
		}
		return nil, E(IOUnavailable, "load quoter", root, err)
	}
	return NewQuoter(string(data)), nil
}

// Chars returns the configured sensitive set.
func (q *Quoter) Chars() string {
	if q == nil {
		return ""
	}
	return q.chars
}

// Enabled reports whether quoting is active.
func (q *Quoter) Enabled() bool {
	return q != nil && q.chars != ""
}

// Quote escapes every sensitive byte of s as ;NNN. Path separators are kept.
func (q *Quoter) Quote(s string) string {
	if !q.Enabled() {
		return s
	}
	n := 0
	for i := 0; i < len(s); i++ {
		if q.sensitive[s[i]] {
			n++
		}
	}
	if n == 0 {
		return s
	}

	var b strings.Builder
	b.Grow(len(s) + 3*n)
	for i := 0; i < len(s); i++ {
		c := s[i]
		if !q.sensitive[c] {
			b.WriteByte(c)
			continue
		}
		b.WriteByte(';')
		b.WriteByte('0' + c/100)
		b.WriteByte('0' + c/10%10)
		b.WriteByte('0' + c%10)
	}
	return b.String()
}

// Unquote decodes ;NNN escapes in s.
func (q *Quoter) Unquote(s string) string {
	return Unquote(s)
}

// Unquote replaces every ';' followed by three ASCII digits with a value in
// 0..255 by that byte. Malformed sequences are left literal.
func Unquote(s string) string {
	i := strings.IndexByte(s, ';')
	if i < 0 {
		return s
	}

	var b strings.Builder
	b.Grow(len(s))
	b.WriteString(s[:i])
	for ; i < len(s); i++ {
		c := s[i]
		if c == ';' && i+3 < len(s) && isDigit(s[i+1]) && isDigit(s[i+2]) && isDigit(s[i+3]) {
			v := int(s[i+1]-'0')*100 + int(s[i+2]-'0')*10 + int(s[i+3]-'0')
			if v <= 255 {
				b.WriteByte(byte(v))
				i += 3
				continue
			}
		}
		b.WriteByte(c)
	}
	return b.String()
}

func isDigit(c byte) bool {
	return c >= '0' && c <= '9'
}
