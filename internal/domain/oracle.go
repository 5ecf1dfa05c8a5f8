package domain

import "context"

// PermissionOracle answers "can identity perform action on resource?".
//
// A nil error with false is an explicit deny. Any failure to reach the
// decision provider, or a malformed answer from it, is reported as an error
// wrapping ErrAuthorizationUnavailable and must never be read as allow.
type PermissionOracle interface {
	Check(ctx context.Context, identity Identity, action, resource string) (bool, error)
}
