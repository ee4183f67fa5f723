package service

// Capability names an action a role may be granted.
type Capability string

const (
	CapApprove Capability = "approve"
	CapDelete  Capability = "delete"
)

// PermissionChecker decides whether a role grants a capability. Extracted so
// the role-to-capability mapping is explicit and testable instead of string
// comparisons scattered through handlers.
type PermissionChecker interface {
	Allows(role string, cap Capability) bool
}

// RolePermissions is a static role-to-capabilities map.
type RolePermissions map[string][]Capability

// Allows implements PermissionChecker.
func (p RolePermissions) Allows(role string, cap Capability) bool {
	for _, granted := range p[role] {
		if granted == cap {
			return true
		}
	}
	return false
}

// RoleApprover is the role that may approve and delete records.
const RoleApprover = "approver"

// DefaultPermissions grants approve and delete to the approver role.
func DefaultPermissions() PermissionChecker {
	return RolePermissions{
		RoleApprover: {CapApprove, CapDelete},
	}
}
