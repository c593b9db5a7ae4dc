package domain

import "errors"

// Error kinds surfaced by the retrieval engine. Callers match them with errors.Is;
// the concrete error usually wraps the underlying cause as well.
var (
	// ErrInvalidQuery: missing or malformed key/interval, rejected before any I/O.
	ErrInvalidQuery = errors.New("invalid query")

	// ErrDirectoryUnavailable: the resolved directory cannot be listed.
	ErrDirectoryUnavailable = errors.New("directory unavailable")

	// ErrOpenFailed: a candidate file exists but cannot be opened.
	ErrOpenFailed = errors.New("open failed")

	// ErrDecodeFailed: a candidate file cannot be decoded. Fatal to the query.
	ErrDecodeFailed = errors.New("decode failed")

	// ErrRecordDecode: one record is malformed. The record is skipped.
	ErrRecordDecode = errors.New("record decode failed")

	// ErrInvalidTimestamp: a record timestamp is not a representable instant. The record is dropped.
	ErrInvalidTimestamp = errors.New("invalid timestamp")
)
