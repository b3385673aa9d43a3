// Rdiffgate - Web Access to rdiff-backup Repositories
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/rdiffgate

package restore

import (
	"fmt"
	"mime"
	"path"
	"strings"
)

// Kind is the packaging of a restore stream.
type Kind string

// Supported kinds.
const (
	Raw    Kind = "raw"
	Zip    Kind = "zip"
	Tar    Kind = "tar"
	TarGz  Kind = "tar.gz"
	TarBz2 Kind = "tar.bz2"
)

// Kinds lists every supported kind.
var Kinds = []Kind{Raw, Zip, Tar, TarGz, TarBz2}

// ParseKind accepts a kind name, case-insensitively. "tgz" and "tbz2" are
// accepted as aliases.
func ParseKind(s string) (Kind, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "raw":
		return Raw, nil
	case "zip":
		return Zip, nil
	case "tar":
		return Tar, nil
	case "tar.gz", "tgz":
		return TarGz, nil
	case "tar.bz2", "tbz2":
		return TarBz2, nil
	}
	return "", fmt.Errorf("unsupported restore kind %q", s)
}

// Extension returns the file extension, including the dot; "" for raw.
func (k Kind) Extension() string {
	if k == Raw {
		return ""
	}
	return "." + string(k)
}

// ContentType returns the MIME type of a stream of kind k. For raw
// restores the type is derived from the restored file name.
func (k Kind) ContentType(filename string) string {
	switch k {
	case Zip:
		return "application/zip"
	case Tar:
		return "application/x-tar"
	case TarGz:
		return "application/gzip"
	case TarBz2:
		return "application/x-bzip2"
	}
	if t := mime.TypeByExtension(path.Ext(filename)); t != "" {
		return t
	}
	return "application/octet-stream"
}

// Filename returns the download name for a restore of name.
func (k Kind) Filename(name string) string {
	return name + k.Extension()
}
