// Rdiffgate - Web Access to rdiff-backup Repositories
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/rdiffgate

package restore

import (
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/tomtom215/rdiffgate/internal/rdiff"
)

// resolveRestored maps a path reported by the engine to the path actually
// present below dest. The engine may print names re-encoded; when a
// component misses, its directory is scanned for a name with the same
// decode/encode round trip under codec.
func resolveRestored(dest, rel string, codec *rdiff.Codec) (string, bool) {
	rel = strings.Trim(path.Clean("/"+rel), "/")
	if rel == "" {
		return "", true
	}
	if _, err := os.Lstat(filepath.Join(dest, rel)); err == nil {
		return rel, true
	}

	var resolved []string
	for _, comp := range strings.Split(rel, "/") {
		dir := filepath.Join(dest, filepath.Join(resolved...))
		if _, err := os.Lstat(filepath.Join(dir, comp)); err == nil {
			resolved = append(resolved, comp)
			continue
		}
		match, ok := matchRoundTrip(dir, comp, codec)
		if !ok {
			return "", false
		}
		resolved = append(resolved, match)
	}
	return strings.Join(resolved, "/"), true
}

func matchRoundTrip(dir, name string, codec *rdiff.Codec) (string, bool) {
	dirents, err := os.ReadDir(dir)
	if err != nil {
		return "", false
	}
	want := codec.RoundTrip(name)
	for _, d := range dirents {
		if codec.RoundTrip(d.Name()) == want {
			return d.Name(), true
		}
	}
	return "", false
}
