// Rdiffgate - Web Access to rdiff-backup Repositories
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/rdiffgate

package rdiff

import (
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/klauspost/compress/gzip"
)

// Recognized increment suffixes, in matching order.
var incrementSuffixes = []string{
	".missing",
	".snapshot.gz",
	".snapshot",
	".diff.gz",
	".data.gz",
	".data",
	".dir",
	".diff",
}

// Increment is one dated file inside rdiff-backup-data/ or its increments/
// subtree. It refers to its directory by path only.
type Increment struct {
	dir      string
	name     string
	filename string
	suffix   string
	date     Time
	dated    bool
}

// ParseIncrement classifies name found in dir. It returns false when the
// name carries none of the recognized suffixes. An unparsable date leaves
// the increment undated.
func ParseIncrement(dir, name string) (*Increment, bool) {
	var suffix string
	for _, s := range incrementSuffixes {
		if strings.HasSuffix(name, s) {
			suffix = s
			break
		}
	}
	if suffix == "" {
		return nil, false
	}

	inc := &Increment{dir: dir, name: name, suffix: suffix}
	stem := name[:len(name)-len(suffix)]
	i := strings.LastIndexByte(stem, '.')
	if i < 0 {
		inc.filename = stem
		return inc, true
	}
	inc.filename = stem[:i]
	if t, err := ParseTime(Unquote(stem[i+1:])); err == nil {
		inc.date = t
		inc.dated = true
	}
	return inc, true
}

// Name returns the raw quoted file name.
func (i *Increment) Name() string { return i.name }

// Filename returns the entity name the increment describes.
func (i *Increment) Filename() string { return i.filename }

// Suffix returns the matched suffix including its leading dot.
func (i *Increment) Suffix() string { return i.suffix }

// Path returns the absolute path of the increment file.
func (i *Increment) Path() string { return filepath.Join(i.dir, i.name) }

// Date returns the parsed date and whether it was valid.
func (i *Increment) Date() (Time, bool) { return i.date, i.dated }

// IsSnapshot reports a .snapshot or .snapshot.gz increment.
func (i *Increment) IsSnapshot() bool {
	return i.suffix == ".snapshot" || i.suffix == ".snapshot.gz"
}

// IsMissing reports a .missing increment.
func (i *Increment) IsMissing() bool { return i.suffix == ".missing" }

// IsDir reports a .dir increment.
func (i *Increment) IsDir() bool { return i.suffix == ".dir" }

// IsCompressed reports a gzip compressed increment.
func (i *Increment) IsCompressed() bool { return strings.HasSuffix(i.suffix, ".gz") }

// Open returns a reader over the increment content, gunzipping transparently.
func (i *Increment) Open() (io.ReadCloser, error) {
	f, err := os.Open(i.Path()) //nolint:gosec // G304: path is inside a validated repository
	if err != nil {
		return nil, E(IOUnavailable, "open increment", i.name, err)
	}
	if !i.IsCompressed() {
		return f, nil
	}
	zr, err := gzip.NewReader(f)
	if err != nil {
		f.Close() //nolint:errcheck,gosec // already failing
		return nil, E(IOUnavailable, "open increment", i.name, err)
	}
	return &gzipFile{Reader: zr, file: f}, nil
}

// ReadAll reads the whole (decompressed) increment.
func (i *Increment) ReadAll() ([]byte, error) {
	rc, err := i.Open()
	if err != nil {
		return nil, err
	}
	defer rc.Close() //nolint:errcheck // read only
	data, err := io.ReadAll(rc)
	if err != nil {
		return nil, E(IOUnavailable, "read increment", i.name, err)
	}
	return data, nil
}

type gzipFile struct {
	*gzip.Reader
	file *os.File
}

func (g *gzipFile) Close() error {
	zerr := g.Reader.Close()
	ferr := g.file.Close()
	if zerr != nil {
		return zerr
	}
	return ferr
}
