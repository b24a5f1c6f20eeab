package errors

import "fmt"

type ErrorCode int

// Error codes are stable integers surfaced to the invoking scheduler. Messages
// describe structure (sizes, columns, codes), never attribute values, so a
// failure signal cannot leak row contents.
const (
	InternalError ErrorCode = iota
	InvalidConfiguration
	IntegrityFailure
	SchemaMismatch
	AggregatorGroupMismatch
	BufferOverflow
	UnknownOpcode
	EmptyBlockLimitExceeded
)

// VeilError is any kind of error that is exposed to the caller across the
// enclave boundary.
type VeilError struct {
	Code ErrorCode
	Msg  string
}

func (v VeilError) Error() string {
	return v.Msg
}

func NewInternalError(msg string) VeilError {
	return NewVeilErrorf(InternalError, "Internal error: %s", msg)
}

func NewInvalidConfigurationError(msg string) VeilError {
	return NewVeilErrorf(InvalidConfiguration, "Invalid configuration: %s", msg)
}

func NewIntegrityFailureError(msg string) VeilError {
	return NewVeilErrorf(IntegrityFailure, "Integrity failure: %s", msg)
}

func NewSchemaMismatchError(msg string) VeilError {
	return NewVeilErrorf(SchemaMismatch, "Schema mismatch: %s", msg)
}

func NewAggregatorGroupMismatchError() VeilError {
	return NewVeilErrorf(AggregatorGroupMismatch,
		"Attempted to combine partial aggregates with different grouping attributes")
}

func NewBufferOverflowError(wrote int, bound int) VeilError {
	return NewVeilErrorf(BufferOverflow, "Wrote %d bytes which is more than the upper bound %d", wrote, bound)
}

func NewUnknownOpcodeError(op int) VeilError {
	return NewVeilErrorf(UnknownOpcode, "Opcode %d is not valid for this operation", op)
}

func NewEmptyBlockLimitExceededError(limit int) VeilError {
	return NewVeilErrorf(EmptyBlockLimitExceeded, "More than %d consecutive empty blocks in input", limit)
}

func NewVeilErrorf(errorCode ErrorCode, msgFormat string, args ...interface{}) VeilError {
	msg := fmt.Sprintf(fmt.Sprintf("VDB%04d - %s", errorCode, msgFormat), args...)
	return VeilError{Code: errorCode, Msg: msg}
}

func NewVeilError(errorCode ErrorCode, msg string) VeilError {
	return VeilError{Code: errorCode, Msg: msg}
}

// Code extracts the VeilError code from err, unwrapping if necessary. Returns
// InternalError for any error that did not originate in this package.
func Code(err error) ErrorCode {
	var verr VeilError
	if As(err, &verr) {
		return verr.Code
	}
	return InternalError
}
