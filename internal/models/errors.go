package models

import (
	"errors"
	"fmt"
)

// Validation sentinels. They are wrapped by ValidationError and can be
// matched with errors.Is.
var (
	ErrNoImage         = errors.New("load an image first")
	ErrBusy            = errors.New("busy")
	ErrKernelRequired  = errors.New("filter requires a kernel size")
	ErrInvalidKernel   = errors.New("kernel size must be an integer of at least 3")
	ErrUnknownFilter   = errors.New("unknown filter")
	ErrNothingToExport = errors.New("nothing to export")
)

// ValidationError reports an intent issued with unmet preconditions.
// It is produced locally and never involves the filtering service.
type ValidationError struct {
	Parameter string
	Value     interface{}
	Err       error
}

// NewValidationError creates a new validation error
func NewValidationError(parameter string, value interface{}, err error) *ValidationError {
	return &ValidationError{
		Parameter: parameter,
		Value:     value,
		Err:       err,
	}
}

func (ve *ValidationError) Error() string {
	if ve.Value == nil {
		return fmt.Sprintf("%s: %v", ve.Parameter, ve.Err)
	}
	return fmt.Sprintf("validation failed for '%s' with value '%v': %v", ve.Parameter, ve.Value, ve.Err)
}

func (ve *ValidationError) Unwrap() error {
	return ve.Err
}

// FailureKind classifies why a filter application or a load failed.
type FailureKind int

const (
	FailureTransport FailureKind = iota + 1
	FailureService
	FailureMissingResult
	FailureDecode
)

func (k FailureKind) String() string {
	switch k {
	case FailureTransport:
		return "transport"
	case FailureService:
		return "service"
	case FailureMissingResult:
		return "missing_result"
	case FailureDecode:
		return "decode"
	default:
		return "unknown"
	}
}

const (
	msgTransport     = "could not reach the filtering service"
	msgService       = "the filtering service rejected the request"
	msgMissingResult = "invalid response from the filtering service"
	msgDecode        = "could not decode image"
)

// FilterError is the structured failure of a filter exchange or an image decode.
type FilterError struct {
	Kind    FailureKind
	Filter  FilterKey
	Status  int    // HTTP status, service failures only
	Message string // message supplied by the service, if any
	Err     error
}

func (fe *FilterError) Error() string {
	msg := fe.UserMessage()
	if fe.Filter != "" {
		msg = fmt.Sprintf("%s: %s", fe.Filter, msg)
	}
	if fe.Status != 0 {
		msg = fmt.Sprintf("%s (status %d)", msg, fe.Status)
	}
	if fe.Err != nil {
		msg = fmt.Sprintf("%s: %v", msg, fe.Err)
	}
	return msg
}

func (fe *FilterError) Unwrap() error {
	return fe.Err
}

// UserMessage is the text shown to the user for this failure.
func (fe *FilterError) UserMessage() string {
	switch fe.Kind {
	case FailureTransport:
		return msgTransport
	case FailureService:
		if fe.Message != "" {
			return fe.Message
		}
		return msgService
	case FailureMissingResult:
		if fe.Message != "" {
			return fe.Message
		}
		return msgMissingResult
	case FailureDecode:
		return msgDecode
	default:
		return "filter failed"
	}
}

// IsFailure reports whether err is a FilterError of the given kind.
func IsFailure(err error, kind FailureKind) bool {
	var fe *FilterError
	return errors.As(err, &fe) && fe.Kind == kind
}

// IsValidation reports whether err is a ValidationError.
func IsValidation(err error) bool {
	var ve *ValidationError
	return errors.As(err, &ve)
}
