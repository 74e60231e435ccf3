// Package authn implements principal identification: registration,
// password verification, and signed-token issuance/verification. The
// rest of the system treats Authenticate as the opaque
// authenticate(token) -> principal | AuthError collaborator described in
// spec.md §1; this package is simply this repository's implementation of
// that collaborator.
package authn

import "errors"

// Kind enumerates the taxonomy of auth failures spec.md §7 names.
type Kind int

const (
	// NoErr indicates success.
	NoErr Kind = iota
	// ErrMalformed means the token could not be parsed.
	ErrMalformed
	// ErrExpired means the token parsed but is past its expiry.
	ErrExpired
	// ErrFailed means the token's signature did not verify.
	ErrFailed
	// ErrUnsupported means the operation is not supported for this scheme.
	ErrUnsupported
)

// Err wraps a Kind with the underlying cause, implementing the error
// interface so it composes with errors.Is/As at call sites.
type Err struct {
	Kind  Kind
	Cause error
}

func (e *Err) Error() string {
	if e.Cause != nil {
		return e.Cause.Error()
	}
	return "authn: error"
}

func (e *Err) Unwrap() error { return e.Cause }

// NewErr constructs an Err of the given kind.
func NewErr(kind Kind, cause error) *Err {
	return &Err{Kind: kind, Cause: cause}
}

// System is the reserved internal principal used for sync-created
// resources and replicated deletes. It is not a registrable username and
// cannot be authenticated externally — see CheckRegisterable.
const System = "system"

var errReservedUsername = errors.New("authn: username is reserved")

// IsSystem reports whether name is the synthetic system principal.
func IsSystem(name string) bool {
	return name == System
}

// CheckRegisterable rejects usernames that collide with the reserved
// system principal. Callers run this before inserting a new user row.
func CheckRegisterable(username string) error {
	if IsSystem(username) {
		return errReservedUsername
	}
	return nil
}
