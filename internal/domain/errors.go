package domain

import "errors"

var (
	// ErrLocalPersistence marks a failed read or write of the local store.
	ErrLocalPersistence = errors.New("local persistence failure")
	// ErrRemoteUnavailable marks connectivity failures and timeouts.
	ErrRemoteUnavailable = errors.New("remote unavailable")
	// ErrRemoteRejected marks auth or validation failures reported by the remote.
	ErrRemoteRejected = errors.New("remote rejected request")
	// ErrNotConfigured is returned when remote sync has no endpoint or credential.
	ErrNotConfigured = errors.New("remote sync not configured")
	// ErrMalformedImport is returned when an import document cannot be parsed.
	ErrMalformedImport = errors.New("malformed import document")
	// ErrImportNotConfirmed is returned when an import lacks user confirmation.
	ErrImportNotConfirmed = errors.New("import requires confirmation")
	// ErrKeyMismatch is returned when a record's dateKey differs from the key it is stored under.
	ErrKeyMismatch = errors.New("record date key does not match store key")
	// ErrKindChanged is returned when a write would change an existing record's kind.
	ErrKindChanged = errors.New("record kind cannot change")
)
