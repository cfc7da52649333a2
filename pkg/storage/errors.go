package storage

import (
	"errors"
	"fmt"
)

// Error codes
const (
	CodeEndpointUnreachable = "E_ENDPOINT_UNREACHABLE"
	CodeAuthInvalid         = "E_AUTH_INVALID"
	CodeBucketNotFound      = "E_BUCKET_NOT_FOUND"
	CodeObjectNotFound      = "E_OBJECT_NOT_FOUND"
	CodePermissionDenied    = "E_PERMISSION_DENIED"
	CodeTimeout             = "E_TIMEOUT"
	CodeWriteFailed         = "E_WRITE_FAILED"
	CodeReadFailed          = "E_READ_FAILED"
	CodeCodecFailed         = "E_CODEC_FAILED"
)

// Error wraps store failures with a code and a retry hint
type Error struct {
	Code      string
	Transient bool
	Err       error
}

func (e *Error) Error() string {
	if e == nil {
		return ""
	}
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Code, e.Err)
	}
	return e.Code
}

func (e *Error) Unwrap() error { return e.Err }

// Retryable reports whether the operation may succeed when attempted again
func (e *Error) Retryable() bool { return e.Transient }

func wrapError(code string, transient bool, err error) *Error {
	return &Error{Code: code, Transient: transient, Err: err}
}

// HasCode reports whether err carries a storage Error with code
func HasCode(err error, code string) bool {
	var se *Error
	return errors.As(err, &se) && se.Code == code
}

// IsNotFound reports whether err is a missing bucket or object
func IsNotFound(err error) bool {
	return HasCode(err, CodeObjectNotFound) || HasCode(err, CodeBucketNotFound)
}
