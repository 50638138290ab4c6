package rbac

import "testing"

func TestHasPermission(t *testing.T) {
	tests := []struct {
		role       string
		permission string
		want       bool
	}{
		{RoleViewer, PermViewAuditLog, true},
		{RoleViewer, PermVerifyChain, false},
		{RoleAuditor, PermViewAuditLog, true},
		{RoleAuditor, PermVerifyChain, true},
		{RoleComplianceAdmin, PermVerifyChain, true},
		{"unknown_role", PermViewAuditLog, false},
		{RoleAuditor, "unknown_permission", false},
		{"", "", false},
	}

	for _, tt := range tests {
		t.Run(tt.role+"/"+tt.permission, func(t *testing.T) {
			if got := HasPermission(tt.role, tt.permission); got != tt.want {
				t.Errorf("HasPermission(%q, %q) = %v, want %v", tt.role, tt.permission, got, tt.want)
			}
		})
	}
}
