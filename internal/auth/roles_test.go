package auth

import "testing"

func TestRoleAtLeast(t *testing.T) {
	cases := []struct {
		role, required Role
		want           bool
	}{
		{RoleAdmin, RoleOperator, true},
		{RoleOperator, RoleOperator, true},
		{RoleViewer, RoleOperator, false},
		{Role("guest"), RoleViewer, false},
	}
	for _, tc := range cases {
		if got := RoleAtLeast(tc.role, tc.required); got != tc.want {
			t.Fatalf("RoleAtLeast(%s, %s) = %v", tc.role, tc.required, got)
		}
	}
}

func TestNormalizeRole(t *testing.T) {
	if role, ok := NormalizeRole("operator"); !ok || role != RoleOperator {
		t.Fatalf("expected operator, got %q %v", role, ok)
	}
	if _, ok := NormalizeRole("Admin"); ok {
		t.Fatalf("roles are case sensitive")
	}
}
