package gateway

import "errors"

// Per-operation failures. Each tool handler converts these into a structured
// error result; they never escape to the transport layer.
var (
	// ErrCommandTimeout distinguishes "never finished" from "ran and failed".
	ErrCommandTimeout = errors.New("command timed out")
	// ErrCommandLaunch indicates the child process could not be started at
	// all (binary not found, permission denied).
	ErrCommandLaunch = errors.New("command launch failed")
	// ErrFileAccess covers missing files, permission problems, and paths of
	// the wrong kind.
	ErrFileAccess = errors.New("file access failed")
	// ErrInvalidEncoding covers non-text file content and malformed base64
	// payloads.
	ErrInvalidEncoding = errors.New("invalid encoding")
	// ErrOverwriteRefused is returned when an upload targets an existing file
	// without the overwrite flag. It is a refusal, not a failure.
	ErrOverwriteRefused = errors.New("destination exists and overwrite is false")
)
