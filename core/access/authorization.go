/*Package access provides role and ownership based access control for resources.

The check is two-phase: Check only needs the resource configuration and the
principal and can deny before any record is loaded; when the decision is
NeedsOwnerCheck the caller fetches the target record and finishes with
CheckOwnership. Role-only denials therefore short-circuit without a record
lookup.
*/
package access

import (
	"github.com/mockfold/mockfold/core"
	"github.com/mockfold/mockfold/core/record"
	"github.com/mockfold/mockfold/core/resource"
)

// the two role sentinels of access rule lists
const (
	// RoleOwner grants access to the principal whose id matches the record's
	// ownership field. It is not a real role of any principal.
	RoleOwner = "owner"
	// RoleAny makes an action public, no authentication required
	RoleAny = "*"
)

// Principal is the authenticated caller. How it was authenticated is not this
// package's concern.
type Principal struct {
	ID       interface{} `json:"id"`
	Username string      `json:"username"`
	Role     string      `json:"role"`
}

// Decision is the outcome of an access check
type Decision string

// all possible check outcomes
const (
	// Allow permits the action outright
	Allow Decision = "allow"
	// DenyUnauthenticated rejects because the action needs a principal and there is none
	DenyUnauthenticated Decision = "deny_unauthenticated"
	// DenyForbidden rejects because the principal's role does not suffice
	DenyForbidden Decision = "deny_forbidden"
	// NeedsOwnerCheck defers to CheckOwnership with the concrete target record
	NeedsOwnerCheck Decision = "needs_owner_check"
)

// CheckResult carries the decision. For NeedsOwnerCheck, OwnerField names the
// record field to compare against the principal id, and Strict reports that
// ownership is the only grant for this action, with no alternative role.
type CheckResult struct {
	Decision   Decision
	OwnerField string
	Strict     bool
}

// Err maps a denial to its error kind, nil for anything else
func (r CheckResult) Err() error {
	switch r.Decision {
	case DenyUnauthenticated:
		return core.ErrUnauthenticated
	case DenyForbidden:
		return core.ErrForbidden
	default:
		return nil
	}
}

// Check decides whether the principal may perform the action on the resource.
//
// An action without an access entry, or with the "*" sentinel in its role
// list, is allowed for everybody including anonymous callers. Otherwise a
// principal is required. A principal whose role is listed is allowed. If the
// list contains "owner" and the resource declares an ownership field, the
// decision defers to an ownership check against the concrete record.
func Check(cfg *resource.Config, action core.Action, principal *Principal) CheckResult {
	roles, restricted := cfg.RequiredRoles(action)
	if !restricted || containsRole(roles, RoleAny) {
		return CheckResult{Decision: Allow}
	}
	if principal == nil {
		return CheckResult{Decision: DenyUnauthenticated}
	}
	for _, role := range roles {
		if role != RoleOwner && role == principal.Role {
			return CheckResult{Decision: Allow}
		}
	}
	if containsRole(roles, RoleOwner) && cfg.OwnedBy != "" {
		return CheckResult{
			Decision:   NeedsOwnerCheck,
			OwnerField: cfg.OwnedBy,
			Strict:     len(roles) == 1,
		}
	}
	return CheckResult{Decision: DenyForbidden}
}

// CheckOwnership finishes a NeedsOwnerCheck decision against the concrete
// record: the principal is the owner when the record's owner field equals the
// principal id under tolerant identifier comparison, so "3" owns 3. A missing
// owner field denies.
func CheckOwnership(ownerField string, rec record.Record, principal *Principal) bool {
	if principal == nil || rec == nil {
		return false
	}
	owner, ok := rec[ownerField]
	if !ok || owner == nil {
		return false
	}
	return record.SameIdentifier(owner, principal.ID)
}

func containsRole(roles []string, role string) bool {
	for _, candidate := range roles {
		if candidate == role {
			return true
		}
	}
	return false
}
