// Package apperrors defines the stable error taxonomy surfaced to the UI.
// Provider and transport failures are either classified into one of these
// coded errors or re-raised unchanged; nothing is silently swallowed.
package apperrors

import "fmt"

type Code string

const (
	CodeConfiguration      Code = "configuration-error"
	CodeWalletUnavailable  Code = "wallet-unavailable"
	CodeUserRejected       Code = "user-rejection"
	CodeContractReverted   Code = "contract-reverted"
	CodeUsernameRegistered Code = "username-registered"
	CodeChainMissing       Code = "chain-missing"
	CodeTimeout            Code = "timeout"
)

// ChainRef identifies a chain the wallet does not know about yet.
type ChainRef struct {
	ID   uint64 `json:"id"`
	Name string `json:"name"`
}

// Error carries a stable code alongside a human-readable message. Cause
// preserves the original provider error for diagnostics.
type Error struct {
	Code    Code
	Message string
	Cause   error
	Chain   *ChainRef
}

func New(code Code, message string) *Error {
	return &Error{Code: code, Message: message}
}

func Wrap(code Code, message string, cause error) *Error {
	return &Error{Code: code, Message: message, Cause: cause}
}

func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *Error) Unwrap() error { return e.Cause }

// CodeOf returns the taxonomy code of err, or "" if err is not an *Error.
func CodeOf(err error) Code {
	var appErr *Error
	for err != nil {
		if e, ok := err.(*Error); ok {
			appErr = e
			break
		}
		u, ok := err.(interface{ Unwrap() error })
		if !ok {
			break
		}
		err = u.Unwrap()
	}
	if appErr == nil {
		return ""
	}
	return appErr.Code
}

// Is matches errors by taxonomy code so callers can use errors.Is with a
// code-only sentinel.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Code == e.Code
}
