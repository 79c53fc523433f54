package ldap

import (
	"fmt"
	"strings"

	"github.com/go-ldap/ldap/v3"
	"github.com/pkg/errors"
)

var (
	// ErrNotFound is returned by AuthenticateUser when the credentials do not
	// resolve to a directory entry. Bind failures are reported the same way.
	ErrNotFound = errors.New("user not found")

	ErrNotBound          = errors.New("not bound to the directory")
	ErrMissingFilter     = errors.New("a filter is required")
	ErrUnknownSearchType = errors.New("unknown search type")
	ErrEmptyCredentials  = errors.New("username and password are required")
)

// maskedError reads as ErrNotFound but keeps the directory error that
// caused it reachable through errors.As for diagnostics.
type maskedError struct {
	cause error
}

func (e *maskedError) Error() string { return ErrNotFound.Error() }
func (e *maskedError) Is(target error) bool { return target == ErrNotFound }
func (e *maskedError) Unwrap() error { return e.cause }

// UsageError reports a precondition violated by the caller. It is never
// caused by the directory server.
type UsageError struct {
	Op  string
	Err error
}

func (e *UsageError) Error() string {
	return fmt.Sprintf("ldap %s: %v", e.Op, e.Err)
}

func (e *UsageError) Unwrap() error {
	return e.Err
}

func usageError(op string, err error) error {
	return &UsageError{Op: op, Err: err}
}

// IsUsageError reports whether err is or wraps a *UsageError.
func IsUsageError(err error) bool {
	var ue *UsageError
	return errors.As(err, &ue)
}

// ErrorCategory groups LDAP result codes by what went wrong.
type ErrorCategory string

const (
	ErrorCategoryConnection     ErrorCategory = "connection"
	ErrorCategoryAuthentication ErrorCategory = "authentication"
	ErrorCategoryPermission     ErrorCategory = "permission"
	ErrorCategoryNotFound       ErrorCategory = "not_found"
	ErrorCategoryServer         ErrorCategory = "server"
	ErrorCategoryUnknown        ErrorCategory = "unknown"
)

// DirectoryError is a failed directory operation with a non-zero result code.
type DirectoryError struct {
	Op      string
	Code    uint16
	Message string
	DN      string
	Cause   error

	// hidden drops Message from Error() so server diagnostics do not leak.
	hidden bool
}

func (e *DirectoryError) Error() string {
	parts := []string{fmt.Sprintf("LDAP %s failed (code %d)", e.Op, e.Code)}
	if e.hidden {
		return parts[0]
	}
	if e.Message != "" {
		parts = append(parts, e.Message)
	}
	if e.DN != "" {
		parts = append(parts, fmt.Sprintf("DN: %s", e.DN))
	}
	return strings.Join(parts, " - ")
}

func (e *DirectoryError) Unwrap() error {
	return e.Cause
}

// Category classifies the result code.
func (e *DirectoryError) Category() ErrorCategory {
	return categorize(e.Code)
}

// IsDirectoryError reports whether err is or wraps a *DirectoryError.
func IsDirectoryError(err error) bool {
	var de *DirectoryError
	return errors.As(err, &de)
}

// resultCode extracts the LDAP result code carried by err. Errors that did
// not come from the protocol layer are reported as LDAPResultOther.
func resultCode(err error) uint16 {
	var le *ldap.Error
	if errors.As(err, &le) {
		return le.ResultCode
	}
	return ldap.LDAPResultOther
}

// translateError turns the error of a failed call into a *DirectoryError.
// A result code of 0 means no error, whatever the call returned.
func translateError(op, dn string, err error, hide bool) error {
	if err == nil {
		return nil
	}
	code := resultCode(err)
	if code == ldap.LDAPResultSuccess {
		return nil
	}

	msg := err.Error()
	var le *ldap.Error
	if errors.As(err, &le) && le.Err != nil {
		msg = le.Err.Error()
	}
	return &DirectoryError{
		Op:      op,
		Code:    code,
		Message: msg,
		DN:      dn,
		Cause:   err,
		hidden:  hide,
	}
}

func categorize(code uint16) ErrorCategory {
	switch code {
	case ldap.LDAPResultInvalidCredentials,
		ldap.LDAPResultInappropriateAuthentication,
		ldap.LDAPResultStrongAuthRequired,
		ldap.ErrorEmptyPassword:
		return ErrorCategoryAuthentication

	case ldap.LDAPResultInsufficientAccessRights,
		ldap.LDAPResultUnwillingToPerform:
		return ErrorCategoryPermission

	case ldap.LDAPResultNoSuchObject,
		ldap.LDAPResultNoSuchAttribute:
		return ErrorCategoryNotFound

	case ldap.LDAPResultServerDown,
		ldap.LDAPResultUnavailable,
		ldap.LDAPResultBusy,
		ldap.LDAPResultTimeLimitExceeded,
		ldap.LDAPResultAdminLimitExceeded:
		return ErrorCategoryServer

	case ldap.LDAPResultConnectError,
		ldap.LDAPResultProtocolError,
		ldap.LDAPResultTimeout,
		ldap.ErrorNetwork:
		return ErrorCategoryConnection

	default:
		return ErrorCategoryUnknown
	}
}

// MalformedInputError is returned when a value cannot be parsed, such as an
// email address without exactly one '@'.
type MalformedInputError struct {
	Input  string
	Reason string
}

func (e *MalformedInputError) Error() string {
	return fmt.Sprintf("malformed input %q: %s", e.Input, e.Reason)
}
