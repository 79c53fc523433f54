package auth

import (
	"github.com/pkg/errors"

	ldap "github.com/xonoko/ldapauth"
)

// Outcome classifies an attempt for logs and metrics. Callers of
// Authenticate never see the difference between the failure outcomes.
type Outcome int

const (
	OutcomeSuccess Outcome = iota
	// OutcomeNotFound covers rejected credentials, unknown users and users
	// without a matching application record.
	OutcomeNotFound
	// OutcomeDirectoryUnavailable means the directory failed for a reason
	// other than the credentials.
	OutcomeDirectoryUnavailable
	// OutcomeError is a usage, configuration or datastore fault.
	OutcomeError
)

func (o Outcome) String() string {
	switch o {
	case OutcomeSuccess:
		return "success"
	case OutcomeNotFound:
		return "not_found"
	case OutcomeDirectoryUnavailable:
		return "directory_unavailable"
	default:
		return "error"
	}
}

func classify(err error) Outcome {
	var derr *ldap.DirectoryError
	if !errors.As(err, &derr) {
		if errors.Is(err, ldap.ErrNotFound) {
			return OutcomeNotFound
		}
		// Dial failures are not directory errors.
		return OutcomeDirectoryUnavailable
	}
	switch derr.Category() {
	case ldap.ErrorCategoryAuthentication, ldap.ErrorCategoryNotFound:
		return OutcomeNotFound
	default:
		return OutcomeDirectoryUnavailable
	}
}
