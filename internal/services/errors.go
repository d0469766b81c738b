package services

import "fmt"

// Error codes form the closed taxonomy of authorization failures. Each
// code maps to a stable user-facing message; anything outside the set
// is reported as CodeUnknownError.
const (
	CodeUnknownProviderConfig   = "unknown_provider_config"
	CodeUnknownProviderTemplate = "unknown_provider_template"
	CodeMissingHMAC             = "missing_hmac"
	CodeInvalidHMAC             = "invalid_hmac"
	CodeInvalidConnection       = "invalid_connection"
	CodeInvalidProviderConfig   = "invalid_provider_config"
	CodeInvalidConnectionConfig = "invalid_connection_config"
	CodeUnknownGrantType        = "unknown_grant_type"
	CodeUnknownAuthMode         = "unknown_auth_mode"
	CodeTokenError              = "token_error"
	CodeInvalidCallbackOAuth2   = "invalid_callback_oauth2"
	CodeInvalidCallbackOAuth1   = "invalid_callback_oauth1"
	CodeUnableToParseToken      = "unable_to_parse_token_response"
	CodeInvalidState            = "invalid_state"
	CodeEnvironmentNotFound     = "environment_not_found"
	CodeUnknownError            = "unknown_error"
)

// FlowError is an authorization failure with a taxonomy code. The code
// travels to the waiting client; the wrapped cause stays in the logs.
type FlowError struct {
	Code    string
	Message string
	cause   error
}

func (e *FlowError) Error() string {
	if e.cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.cause)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *FlowError) Unwrap() error {
	return e.cause
}

func newFlowError(code, format string, args ...any) *FlowError {
	return &FlowError{Code: code, Message: fmt.Sprintf(format, args...)}
}

func wrapFlowError(code string, cause error, format string, args ...any) *FlowError {
	return &FlowError{Code: code, Message: fmt.Sprintf(format, args...), cause: cause}
}

// asFlowError maps any error onto the taxonomy, attaching the generic
// code when the error is not already classified.
func asFlowError(err error) *FlowError {
	if err == nil {
		return nil
	}
	if fe, ok := err.(*FlowError); ok { //nolint:errorlint // classification happens at creation
		return fe
	}
	return &FlowError{Code: CodeUnknownError, Message: "unknown provider error", cause: err}
}
