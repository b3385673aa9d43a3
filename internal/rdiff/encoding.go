// Rdiffgate - Web Access to rdiff-backup Repositories
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/rdiffgate

package rdiff

import (
	"fmt"
	"strings"
	"unicode/utf8"

	"golang.org/x/text/encoding"
	"golang.org/x/text/encoding/htmlindex"
	"golang.org/x/text/encoding/unicode"
)

// DefaultEncoding is the filesystem encoding assumed when nothing else is configured.
const DefaultEncoding = "utf-8"

// Codec is a named text encoding used at presentation boundaries.
type Codec struct {
	name string
	enc  encoding.Encoding
}

// LookupCodec resolves an encoding label such as "utf-8", "latin1" or
// "cp1252". Unknown labels return an error.
func LookupCodec(label string) (*Codec, error) {
	label = strings.TrimSpace(label)
	if label == "" {
		label = DefaultEncoding
	}
	enc, err := htmlindex.Get(label)
	if err != nil {
		return nil, fmt.Errorf("unknown encoding %q: %w", label, err)
	}
	name, err := htmlindex.Name(enc)
	if err != nil {
		name = strings.ToLower(label)
	}
	return &Codec{name: name, enc: enc}, nil
}

// MustCodec is LookupCodec for labels known to be valid.
func MustCodec(label string) *Codec {
	c, err := LookupCodec(label)
	if err != nil {
		panic(err)
	}
	return c
}

// Name returns the canonical encoding name.
func (c *Codec) Name() string { return c.name }

// IsUTF8 reports whether the codec is UTF-8.
func (c *Codec) IsUTF8() bool {
	return c.enc == unicode.UTF8 || c.name == "utf-8"
}

// Decode converts raw name bytes to text, replacing undecodable sequences
// with U+FFFD.
func (c *Codec) Decode(b string) string {
	if c.IsUTF8() {
		return strings.ToValidUTF8(b, "\uFFFD")
	}
	s, err := c.enc.NewDecoder().String(b)
	if err != nil {
		return strings.ToValidUTF8(b, "\uFFFD")
	}
	return s
}

// Encode converts text to raw bytes, replacing unencodable runes with the
// encoding's substitute character.
func (c *Codec) Encode(s string) string {
	if c.IsUTF8() {
		return strings.ToValidUTF8(s, "\uFFFD")
	}
	out, err := encoding.ReplaceUnsupported(c.enc.NewEncoder()).String(s)
	if err != nil {
		return s
	}
	return out
}

// RoundTrip returns Encode(Decode(b)). Two names that only differ in
// undecodable bytes share the same round trip.
func (c *Codec) RoundTrip(b string) string {
	return c.Encode(c.Decode(b))
}

// DecodeReplace decodes b and substitutes '?' for undecodable sequences.
func (c *Codec) DecodeReplace(b string) string {
	return strings.ReplaceAll(c.Decode(b), "\uFFFD", "?")
}

// DecodeEscape decodes b, carrying undecodable bytes through unchanged so
// that the original byte sequence survives in the output.
func (c *Codec) DecodeEscape(b string) string {
	if c.IsUTF8() {
		return b
	}
	if s, err := c.enc.NewDecoder().String(b); err == nil && !strings.ContainsRune(s, utf8.RuneError) {
		return s
	}
	// Multi-byte encodings fall back to byte-wise decoding here; the
	// name is then only approximately recovered.
	var sb strings.Builder
	dec := c.enc.NewDecoder()
	for i := 0; i < len(b); i++ {
		s, err := dec.String(b[i : i+1])
		if err != nil || s == "\uFFFD" {
			sb.WriteByte(b[i])
			continue
		}
		if r, _ := utf8.DecodeRuneInString(s); r == utf8.RuneError {
			sb.WriteByte(b[i])
			continue
		}
		sb.WriteString(s)
	}
	return sb.String()
}
