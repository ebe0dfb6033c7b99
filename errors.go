package pgtdump

import (
	"fmt"

	"github.com/hashicorp/go-multierror"
)

type DumpError interface {
	error
	WithMessage(message string) DumpError
	Wrap(err error) DumpError
}

type basePgtdumpError string

const rootError = basePgtdumpError("")

var ErrAddressNotPresent = rootError.WithMessage("Physical address not present in dump")
var ErrArgumentOutOfRange = rootError.WithMessage("Numerical argument out of domain")
var ErrInvalidArgument = rootError.WithMessage("Invalid argument")
var ErrInvalidDumpFormat = rootError.WithMessage("Unrecognized dump format")
var ErrIOFailed = rootError.WithMessage("Input/output error")
var ErrNotFound = rootError.WithMessage("No such file or attribute")
var ErrNotSupported = rootError.WithMessage("Operation not supported")
var ErrResultOutOfRange = rootError.WithMessage("Numerical result out of range")

func (e basePgtdumpError) Error() string {
	return string(e)
}

func (e basePgtdumpError) WithMessage(message string) DumpError {
	return customDumpError{
		message:       message,
		originalError: e,
	}
}

func (e basePgtdumpError) Wrap(err error) DumpError {
	return customDumpError{
		message:       fmt.Sprintf("%s: %s", e.Error(), err.Error()),
		originalError: multierror.Append(e, err),
	}
}

// -----------------------------------------------------------------------------

type customDumpError struct {
	message       string
	originalError error
}

// Error implements the `error` object interface. When called, it returns a string
// describing the error.
func (e customDumpError) Error() string {
	return e.message
}

// WithMessage returns a new error with `message` appended to this one's. The
// result still matches this error with errors.Is.
func (e customDumpError) WithMessage(message string) DumpError {
	return customDumpError{
		message:       fmt.Sprintf("%s: %s", e.message, message),
		originalError: e,
	}
}

// Wrap returns a new error that matches both this error and `err` with
// errors.Is.
func (e customDumpError) Wrap(err error) DumpError {
	return customDumpError{
		message:       fmt.Sprintf("%s: %s", e.Error(), err.Error()),
		originalError: multierror.Append(e, err),
	}
}

func (e customDumpError) Unwrap() error {
	return e.originalError
}
