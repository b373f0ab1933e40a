package oracle

import (
	"encoding/json"
	"fmt"

	"github.com/flyxtv/embedcodec/errs"
)

// Error codes
const (
	ErrCodeHTTPFailed        = "ORACLE_HTTP_FAILED"
	ErrCodeBadStatus         = "ORACLE_BAD_STATUS"
	ErrCodeThrottled         = "ORACLE_THROTTLED"
	ErrCodeMalformedResponse = "ORACLE_MALFORMED_RESPONSE"
	ErrCodeEmptyResponse     = "ORACLE_EMPTY_RESPONSE"
	ErrCodeDecodeUnsupported = "ORACLE_DECODE_UNSUPPORTED"
	ErrCodeScriptParse       = "SCRIPT_PARSE_FAILED"
	ErrCodeScriptExecution   = "SCRIPT_EXECUTION_FAILED"
	ErrCodeDecoderNotFound   = "DECODER_NOT_FOUND"
)

// Error represents a structured oracle error with code and details
type Error struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Details any    `json:"details,omitempty"`
}

// Error implements the error interface
func (e *Error) Error() string {
	if e.Details != nil {
		return fmt.Sprintf("%s: %s (%v)", e.Code, e.Message, e.Details)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Unwrap maps the code onto the pipeline error taxonomy so callers can use
// errors.Is against the errs sentinels.
func (e *Error) Unwrap() error {
	switch e.Code {
	case ErrCodeHTTPFailed, ErrCodeBadStatus, ErrCodeThrottled, ErrCodeScriptExecution:
		return errs.ErrOracleUnavailable
	case ErrCodeMalformedResponse, ErrCodeEmptyResponse, ErrCodeScriptParse, ErrCodeDecoderNotFound:
		return errs.ErrOracleMalformed
	}
	return nil
}

// MarshalJSON implements json.Marshaler
func (e *Error) MarshalJSON() ([]byte, error) {
	type Alias Error
	return json.Marshal(&struct {
		*Alias
		Error string `json:"error"`
	}{
		Alias: (*Alias)(e),
		Error: e.Error(),
	})
}

// NewError creates a new Error with the given code and message
func NewError(code string, message string, details ...any) *Error {
	e := &Error{
		Code:    code,
		Message: message,
	}
	if len(details) > 0 {
		e.Details = details[0]
	}
	return e
}

// IsThrottled returns true if the error indicates provider rate limiting
func IsThrottled(err error) bool {
	if e, ok := err.(*Error); ok {
		return e.Code == ErrCodeThrottled
	}
	return false
}

// IsMalformed returns true if the error indicates an unparseable response
func IsMalformed(err error) bool {
	if e, ok := err.(*Error); ok {
		return e.Code == ErrCodeMalformedResponse || e.Code == ErrCodeEmptyResponse
	}
	return false
}

// IsRetryable returns true for transient failures worth retrying
func IsRetryable(err error) bool {
	if e, ok := err.(*Error); ok {
		return e.Code == ErrCodeHTTPFailed || e.Code == ErrCodeBadStatus || e.Code == ErrCodeThrottled
	}
	return false
}
