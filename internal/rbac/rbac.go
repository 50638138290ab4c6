package rbac

// Role constants
const (
	RoleViewer          = "viewer"
	RoleAuditor         = "auditor"
	RoleComplianceAdmin = "compliance_admin"
)

// Permission constants
const (
	PermViewAuditLog = "view_audit_log"
	PermVerifyChain  = "verify_chain"
)

// RolePermissions defines what each role can do.
var RolePermissions = map[string][]string{
	RoleViewer: {
		PermViewAuditLog,
	},
	RoleAuditor: {
		PermViewAuditLog, PermVerifyChain,
	},
	RoleComplianceAdmin: {
		PermViewAuditLog, PermVerifyChain,
	},
}

// HasPermission checks if a role has a specific permission.
func HasPermission(role, permission string) bool {
	perms, ok := RolePermissions[role]
	if !ok {
		return false
	}
	for _, p := range perms {
		if p == permission {
			return true
		}
	}
	return false
}
