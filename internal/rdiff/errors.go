// Rdiffgate - Web Access to rdiff-backup Repositories
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/rdiffgate

package rdiff

import (
	"errors"
	"fmt"
)

// Kind classifies repository errors.
type Kind int

const (
	// KindUnknown is returned by KindOf for errors that carry no Kind.
	KindUnknown Kind = iota
	// DoesNotExist reports a missing repository, metadata directory or path.
	DoesNotExist
	// AccessDenied reports traversal attempts, symlinks in a path or a repository the user does not own.
	AccessDenied
	// InvalidTimestamp reports a malformed increment or user supplied date.
	InvalidTimestamp
	// IOUnavailable reports a failed read of an archive file.
	IOUnavailable
	// EngineMissing reports that the rdiff-backup executable is not on PATH.
	EngineMissing
	// RestoreFailed reports an engine failure during restore.
	RestoreFailed
	// PruneFailed reports an engine failure during retention pruning.
	PruneFailed
	// MailDeliveryFailed reports an SMTP failure.
	MailDeliveryFailed
)

var kindNames = map[Kind]string{
	KindUnknown:        "unknown",
	DoesNotExist:       "does not exist",
	AccessDenied:       "access denied",
	InvalidTimestamp:   "invalid timestamp",
	IOUnavailable:      "io unavailable",
	EngineMissing:      "engine missing",
	RestoreFailed:      "restore failed",
	PruneFailed:        "prune failed",
	MailDeliveryFailed: "mail delivery failed",
}

func (k Kind) String() string {
	if s, ok := kindNames[k]; ok {
		return s
	}
	return fmt.Sprintf("kind(%d)", int(k))
}

// Error is the tagged error returned by repository operations.
// Path is always the quoted on-disk form, never decoded text.
type Error struct {
	Kind Kind
	Op   string
	Path string
	Err  error
}

// E builds an *Error. err may be nil.
func E(kind Kind, op, path string, err error) *Error {
	return &Error{Kind: kind, Op: op, Path: path, Err: err}
}

func (e *Error) Error() string {
	msg := e.Op + ": " + e.Kind.String()
	if e.Path != "" {
		msg += ": " + e.Path
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Is matches another *Error by Kind so that errors.Is(err, &Error{Kind: AccessDenied}) works.
func (e *Error) Is(target error) bool {
	var t *Error
	if !errors.As(target, &t) {
		return false
	}
	return t.Kind == e.Kind && t.Op == "" && t.Path == "" && t.Err == nil
}

// KindOf returns the Kind of the first *Error in err's chain.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindUnknown
}

// IsKind reports whether err carries the given Kind.
func IsKind(err error, kind Kind) bool {
	return err != nil && KindOf(err) == kind
}
