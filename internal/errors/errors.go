package errors

import (
	"errors"
	"strconv"
)

// Code identifies a structured error type used across the application.
type Code string

const (
	// Generic codes
	CodeUnknown Code = "unknown"

	// Update cycle errors
	CodeNetworkUnavailable Code = "network_unavailable"
	CodeMalformedRelease   Code = "malformed_release"
	CodeVersionUnavailable Code = "version_unavailable"
	CodeMalformedVersion   Code = "malformed_version"
	CodeDownloadFailed     Code = "download_failed"
	CodeUnsafeArchiveEntry Code = "unsafe_archive_entry"
	CodeExtractionFailed   Code = "extraction_failed"
	CodeFilesystem         Code = "filesystem_error"
	CodeAlreadyStarted     Code = "already_started"

	// Launcher errors
	CodeConfigurationError Code = "configuration_error"
	CodeLaunchFailed       Code = "launch_failed"
	CodeHistoryFailed      Code = "history_failed"
)

// Error represents a structured error with a machine-readable code plus message.
type Error struct {
	Code    Code
	Message string
	Err     error
}

// Error implements the error interface.
func (e Error) Error() string {
	if e.Message != "" {
		if e.Err != nil {
			return e.Message + ": " + e.Err.Error()
		}
		return e.Message
	}
	if e.Err != nil {
		return e.Err.Error()
	}
	return string(e.Code)
}

// Unwrap returns the wrapped error.
func (e Error) Unwrap() error {
	return e.Err
}

// New wraps an error with a code/message.
func New(code Code, msg string, err error) Error {
	return Error{Code: code, Message: msg, Err: err}
}

// CodeOf walks the error chain and returns the first structured code found.
func CodeOf(err error) Code {
	var structured Error
	if errors.As(err, &structured) {
		return structured.Code
	}
	var download *DownloadError
	if errors.As(err, &download) {
		return CodeDownloadFailed
	}
	return CodeUnknown
}

// IsCode reports whether the error (or its unwrap chain) matches the provided code.
func IsCode(err error, code Code) bool {
	return CodeOf(err) == code
}

// DownloadError reports a failed transfer together with the number of bytes
// that had been written before the failure.
type DownloadError struct {
	URL          string
	PartialBytes int64
	Err          error
}

// Error implements the error interface.
func (e *DownloadError) Error() string {
	if e.PartialBytes > 0 {
		return "download failed after " + strconv.FormatInt(e.PartialBytes, 10) + " bytes: " + errString(e.Err)
	}
	return "download failed: " + errString(e.Err)
}

// Unwrap returns the wrapped error.
func (e *DownloadError) Unwrap() error {
	return e.Err
}

func errString(err error) string {
	if err == nil {
		return "unknown error"
	}
	return err.Error()
}
