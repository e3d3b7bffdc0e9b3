package application

import (
	"context"
	"errors"
	"testing"

	"plant-downtime/internal/audit"
)

type memoryRoleStore struct {
	roles map[string]string
}

func (s *memoryRoleStore) LoadRoles(context.Context) (map[string]string, error) {
	out := make(map[string]string, len(s.roles))
	for k, v := range s.roles {
		out[k] = v
	}
	return out, nil
}

func (s *memoryRoleStore) SetRole(_ context.Context, userID, role string) error {
	s.roles[userID] = role
	return nil
}

func (s *memoryRoleStore) DeleteRole(_ context.Context, userID string) error {
	if _, ok := s.roles[userID]; !ok {
		return errors.New("role not found")
	}
	delete(s.roles, userID)
	return nil
}

func TestRoleService(t *testing.T) {
	store := &memoryRoleStore{roles: map[string]string{"1": "Администратор"}}
	auditLog := &memoryAudit{}
	svc, err := NewRoleService(store, []string{"Администратор", "Сотрудник"}, auditLog, nil)
	if err != nil {
		t.Fatalf("new role service: %v", err)
	}
	ctx := context.Background()
	if err := svc.Reload(ctx); err != nil {
		t.Fatalf("reload: %v", err)
	}
	if !svc.IsAdmin("1") || svc.IsAdmin("2") {
		t.Fatalf("unexpected admin check")
	}
	if got := svc.RoleLabel("2"); got != NoRoleLabel {
		t.Fatalf("expected %q, got %q", NoRoleLabel, got)
	}

	if err := svc.Assign(ctx, "1", "abc", "Сотрудник"); !errors.Is(err, ErrInvalidUserID) {
		t.Fatalf("expected ErrInvalidUserID, got %v", err)
	}
	if err := svc.Assign(ctx, "1", "2", "Гость"); !errors.Is(err, ErrUnknownRole) {
		t.Fatalf("expected ErrUnknownRole, got %v", err)
	}
	if err := svc.Assign(ctx, "1", " 2 ", "Сотрудник"); err != nil {
		t.Fatalf("assign: %v", err)
	}
	if store.roles["2"] != "Сотрудник" || svc.RoleLabel("2") != "Сотрудник" {
		t.Fatalf("expected persisted and cached role")
	}
	if err := svc.Remove(ctx, "1", "2"); err != nil {
		t.Fatalf("remove: %v", err)
	}
	if _, ok := svc.UserRoles()["2"]; ok {
		t.Fatalf("expected role removed")
	}
	if len(auditLog.entries) != 2 || auditLog.entries[0].Action != audit.ActionRoleSet || auditLog.entries[1].Action != audit.ActionRoleDelete {
		t.Fatalf("unexpected audit entries %+v", auditLog.entries)
	}
}
