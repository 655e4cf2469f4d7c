package domain

import (
	"errors"
	"fmt"
)

// AuthError indicates the API credential was rejected. Not retryable.
type AuthError struct {
	Message string
}

func (e *AuthError) Error() string { return e.Message }

// CounterNotFoundError indicates the counter does not exist or is not
// accessible with the supplied credential.
type CounterNotFoundError struct {
	Message string
}

func (e *CounterNotFoundError) Error() string { return e.Message }

// UnavailableDataError indicates the remote declined the export request for
// the given parameters (e.g. the date range yields no data).
type UnavailableDataError struct {
	Message string
}

func (e *UnavailableDataError) Error() string { return e.Message }

// TimeoutError indicates polling exceeded the timeout ceiling. The remote
// job is left running.
type TimeoutError struct {
	Message string
}

func (e *TimeoutError) Error() string { return e.Message }

// JobFailedError indicates the remote reported the export job as failed.
type JobFailedError struct {
	Message string
}

func (e *JobFailedError) Error() string { return e.Message }

// PartDownloadError indicates a part could not be downloaded after all retry
// attempts were exhausted.
type PartDownloadError struct {
	Part    int
	Message string
}

func (e *PartDownloadError) Error() string { return e.Message }

// PartFormatError indicates a downloaded part violated the expected wire
// format (e.g. its header does not match the requested fields).
type PartFormatError struct {
	Part    int
	Message string
}

func (e *PartFormatError) Error() string { return e.Message }

// NoFieldsAvailableError indicates no requested field is exportable for the
// counter and date range.
type NoFieldsAvailableError struct {
	Message string
}

func (e *NoFieldsAvailableError) Error() string { return e.Message }

// SchemaError indicates the destination schema could not be resolved (unknown
// source kind, unrecognized column type, catalog drift).
type SchemaError struct {
	Message string
}

func (e *SchemaError) Error() string { return e.Message }

// LoadError indicates the destination store rejected a statement or upload.
// Detail carries the store's raw error response when known.
type LoadError struct {
	Message string
	Detail  string
}

func (e *LoadError) Error() string {
	if e.Detail != "" {
		return e.Message + ": " + e.Detail
	}
	return e.Message
}

// ErrAuth creates an AuthError with a formatted message.
func ErrAuth(format string, args ...interface{}) *AuthError {
	return &AuthError{Message: fmt.Sprintf(format, args...)}
}

// ErrCounterNotFound creates a CounterNotFoundError with a formatted message.
func ErrCounterNotFound(format string, args ...interface{}) *CounterNotFoundError {
	return &CounterNotFoundError{Message: fmt.Sprintf(format, args...)}
}

// ErrUnavailableData creates an UnavailableDataError with a formatted message.
func ErrUnavailableData(format string, args ...interface{}) *UnavailableDataError {
	return &UnavailableDataError{Message: fmt.Sprintf(format, args...)}
}

// ErrTimeout creates a TimeoutError with a formatted message.
func ErrTimeout(format string, args ...interface{}) *TimeoutError {
	return &TimeoutError{Message: fmt.Sprintf(format, args...)}
}

// ErrJobFailed creates a JobFailedError with a formatted message.
func ErrJobFailed(format string, args ...interface{}) *JobFailedError {
	return &JobFailedError{Message: fmt.Sprintf(format, args...)}
}

// ErrPartDownload creates a PartDownloadError for the given part number.
func ErrPartDownload(part int, format string, args ...interface{}) *PartDownloadError {
	return &PartDownloadError{Part: part, Message: fmt.Sprintf(format, args...)}
}

// ErrPartFormat creates a PartFormatError for the given part number.
func ErrPartFormat(part int, format string, args ...interface{}) *PartFormatError {
	return &PartFormatError{Part: part, Message: fmt.Sprintf(format, args...)}
}

// ErrNoFieldsAvailable creates a NoFieldsAvailableError with a formatted message.
func ErrNoFieldsAvailable(format string, args ...interface{}) *NoFieldsAvailableError {
	return &NoFieldsAvailableError{Message: fmt.Sprintf(format, args...)}
}

// ErrSchema creates a SchemaError with a formatted message.
func ErrSchema(format string, args ...interface{}) *SchemaError {
	return &SchemaError{Message: fmt.Sprintf(format, args...)}
}

// ErrLoad creates a LoadError with a formatted message and the destination's
// raw error detail.
func ErrLoad(detail, format string, args ...interface{}) *LoadError {
	return &LoadError{Message: fmt.Sprintf(format, args...), Detail: detail}
}

// ErrorKind names one member of the pipeline error taxonomy for run reports.
type ErrorKind string

const (
	ErrorKindAuth              ErrorKind = "auth"
	ErrorKindCounterNotFound   ErrorKind = "counter_not_found"
	ErrorKindUnavailableData   ErrorKind = "unavailable_data"
	ErrorKindTimeout           ErrorKind = "timeout"
	ErrorKindJobFailed         ErrorKind = "job_failed"
	ErrorKindPartDownload      ErrorKind = "part_download"
	ErrorKindPartFormat        ErrorKind = "part_format"
	ErrorKindNoFieldsAvailable ErrorKind = "no_fields_available"
	ErrorKindSchema            ErrorKind = "schema"
	ErrorKindLoad              ErrorKind = "load"
	ErrorKindUnknown           ErrorKind = "unknown"
)

// KindOf maps an error to its taxonomy kind, unwrapping as needed.
// Errors outside the taxonomy map to ErrorKindUnknown.
func KindOf(err error) ErrorKind {
	var (
		authErr        *AuthError
		counterErr     *CounterNotFoundError
		unavailableErr *UnavailableDataError
		timeoutErr     *TimeoutError
		jobErr         *JobFailedError
		downloadErr    *PartDownloadError
		formatErr      *PartFormatError
		noFieldsErr    *NoFieldsAvailableError
		schemaErr      *SchemaError
		loadErr        *LoadError
	)
	switch {
	case errors.As(err, &authErr):
		return ErrorKindAuth
	case errors.As(err, &counterErr):
		return ErrorKindCounterNotFound
	case errors.As(err, &unavailableErr):
		return ErrorKindUnavailableData
	case errors.As(err, &timeoutErr):
		return ErrorKindTimeout
	case errors.As(err, &jobErr):
		return ErrorKindJobFailed
	case errors.As(err, &downloadErr):
		return ErrorKindPartDownload
	case errors.As(err, &formatErr):
		return ErrorKindPartFormat
	case errors.As(err, &noFieldsErr):
		return ErrorKindNoFieldsAvailable
	case errors.As(err, &schemaErr):
		return ErrorKindSchema
	case errors.As(err, &loadErr):
		return ErrorKindLoad
	default:
		return ErrorKindUnknown
	}
}
