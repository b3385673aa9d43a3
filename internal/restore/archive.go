// Rdiffgate - Web Access to rdiff-backup Repositories
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/rdiffgate

package restore

import (
	"archive/tar"
	"fmt"
	"io"
	"io/fs"
	"os"

	"github.com/dsnet/compress/bzip2"
	"github.com/klauspost/compress/flate"
	"github.com/klauspost/compress/zip"
	"github.com/klauspost/pgzip"

	"github.com/tomtom215/rdiffgate/internal/rdiff"
)

// archiver receives restored files as they appear in the scratch tree.
// name is the raw byte path inside the archive; full is the file on disk.
type archiver interface {
	Add(name, full string, fi fs.FileInfo) (bool, error)
	Close() error
}

func newArchiver(kind Kind, w io.Writer, codec *rdiff.Codec) (archiver, error) {
	switch kind {
	case Raw:
		return &rawArchiver{w: w}, nil
	case Zip:
		return newZipArchiver(w, codec), nil
	case Tar:
		return newTarArchiver(w, codec, nil), nil
	case TarGz:
		zw := pgzip.NewWriter(w)
		return newTarArchiver(zw, codec, zw), nil
	case TarBz2:
		bw, err := bzip2.NewWriter(w, &bzip2.WriterConfig{Level: bzip2.DefaultCompression})
		if err != nil {
			return nil, fmt.Errorf("create bzip2 writer: %w", err)
		}
		return newTarArchiver(bw, codec, bw), nil
	}
	return nil, fmt.Errorf("unsupported restore kind %q", kind)
}

func copyFile(w io.Writer, full string) error {
	f, err := os.Open(full) //nolint:gosec // G304: file inside our private scratch directory
	if err != nil {
		return err
	}
	defer f.Close() //nolint:errcheck // read only
	_, err = io.Copy(w, f)
	return err
}

// rawArchiver copies regular files verbatim and ignores everything else.
type rawArchiver struct {
	w io.Writer
}

func (a *rawArchiver) Add(_, full string, fi fs.FileInfo) (bool, error) {
	if !fi.Mode().IsRegular() {
		return false, nil
	}
	return true, copyFile(a.w, full)
}

func (a *rawArchiver) Close() error { return nil }

// zipArchiver writes deflated entries with trailing data descriptors.
// Names are decoded with '?' for undecodable bytes.
type zipArchiver struct {
	zw    *zip.Writer
	codec *rdiff.Codec
}

func newZipArchiver(w io.Writer, codec *rdiff.Codec) *zipArchiver {
	zw := zip.NewWriter(w)
	zw.RegisterCompressor(zip.Deflate, func(out io.Writer) (io.WriteCloser, error) {
		return flate.NewWriter(out, flate.DefaultCompression)
	})
	return &zipArchiver{zw: zw, codec: codec}
}

func (a *zipArchiver) Add(name, full string, fi fs.FileInfo) (bool, error) {
	mode := fi.Mode()
	if !mode.IsRegular() && !mode.IsDir() {
		return false, nil
	}

	hdr := &zip.FileHeader{
		Name:     a.codec.DecodeReplace(name),
		Method:   zip.Deflate,
		Modified: fi.ModTime(),
	}
	hdr.SetMode(mode)
	if mode.IsDir() {
		hdr.Name += "/"
		hdr.Method = zip.Store
		_, err := a.zw.CreateHeader(hdr)
		return err == nil, err
	}
	// Sizes and CRC follow the data in a descriptor; the writer switches to
	// ZIP64 records once the written size passes the 32-bit limit.
	hdr.UncompressedSize64 = uint64(fi.Size()) //nolint:gosec // G115: sizes are non-negative
	w, err := a.zw.CreateHeader(hdr)
	if err != nil {
		return false, err
	}
	return true, copyFile(w, full)
}

func (a *zipArchiver) Close() error {
	return a.zw.Close()
}

// tarArchiver writes PAX archives, optionally through a compressor.
// Undecodable name bytes are carried through unchanged.
type tarArchiver struct {
	tw         *tar.Writer
	codec      *rdiff.Codec
	compressor io.Closer
}

func newTarArchiver(w io.Writer, codec *rdiff.Codec, compressor io.Closer) *tarArchiver {
	return &tarArchiver{tw: tar.NewWriter(w), codec: codec, compressor: compressor}
}

func (a *tarArchiver) Add(name, full string, fi fs.FileInfo) (bool, error) {
	mode := fi.Mode()
	var link string
	switch {
	case mode&fs.ModeSymlink != 0:
		target, err := os.Readlink(full)
		if err != nil {
			return false, err
		}
		link = target
	case mode.IsRegular(), mode.IsDir():
	default:
		return false, nil
	}

	hdr, err := tar.FileInfoHeader(fi, link)
	if err != nil {
		return false, err
	}
	hdr.Name = a.codec.DecodeEscape(name)
	if link != "" {
		hdr.Linkname = a.codec.DecodeEscape(link)
	}
	if mode.IsDir() {
		hdr.Name += "/"
	}
	hdr.Format = tar.FormatPAX
	if err := a.tw.WriteHeader(hdr); err != nil {
		return false, err
	}
	if mode.IsRegular() {
		if err := copyFile(a.tw, full); err != nil {
			return false, err
		}
	}
	return true, nil
}

func (a *tarArchiver) Close() error {
	err := a.tw.Close()
	if a.compressor != nil {
		if cerr := a.compressor.Close(); err == nil {
			err = cerr
		}
	}
	return err
}
