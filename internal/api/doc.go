// Rdiffgate - Web Access to rdiff-backup Repositories
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/rdiffgate

/*
Package api provides the HTTP layer used by the rdiffgate web front end.

The front end authenticates users itself and forwards the user name in a
trusted header (X-Remote-User by default). Every /api route requires it.

Endpoints:

	GET  /healthz                 liveness and engine presence
	GET  /metrics                 Prometheus metrics (when enabled)
	GET  /api/repos               the user's repositories
	GET  /api/browse/{path}       directory listing at any depth
	GET  /api/history/{repo}      backup sessions (limit, earliest, latest)
	GET  /api/dates/{path}        dates a path can be restored at
	GET  /api/restore/{path}      restore stream (date, kind, encoding)
	PUT  /api/settings/{repo}     encoding, maxage and keepdays of a repository

Paths are relative to the user's home directory and may contain slashes;
the repository is the longest of the user's repositories prefixing the path.
Path segments in responses are percent-encoded so that names that are not
valid UTF-8 can be sent back unchanged.

JSON responses share one envelope:

	{"success": true, "data": ..., "meta": {"timestamp": ..., "request_id": ...}}
	{"success": false, "error": {"code": "NOT_FOUND", "message": ...}}

Repository errors map to statuses by kind: does-not-exist 404, access-denied
403, invalid-timestamp 400, engine and I/O failures 500. Restore starts are
limited per user; excess requests get 429.
*/
package api
