package application

import (
	"context"
	"errors"
	"log"
	"strconv"
	"strings"
	"sync"

	"plant-downtime/internal/audit"
)

// NoRoleLabel is shown for users without a role.
const NoRoleLabel = "Нет роли"

// RoleStore persists user roles.
type RoleStore interface {
	LoadRoles(ctx context.Context) (map[string]string, error)
	SetRole(ctx context.Context, userID, role string) error
	DeleteRole(ctx context.Context, userID string) error
}

// RoleService keeps an in-memory copy of the role table.
type RoleService struct {
	store    RoleStore
	allowed  []string
	admin    string
	auditLog audit.Logger
	logger   *log.Logger

	mu    sync.RWMutex
	roles map[string]string
}

// NewRoleService constructs a role service. The first allowed role is the
// administrator role.
func NewRoleService(store RoleStore, allowed []string, auditLog audit.Logger, logger *log.Logger) (*RoleService, error) {
	if store == nil {
		return nil, errors.New("role service: nil store")
	}
	if len(allowed) == 0 || allowed[0] == "" {
		return nil, errors.New("role service: no roles")
	}
	return &RoleService{
		store:    store,
		allowed:  append([]string(nil), allowed...),
		admin:    allowed[0],
		auditLog: auditLog,
		logger:   logger,
		roles:    make(map[string]string),
	}, nil
}

// Reload refreshes the in-memory roles from the store.
func (s *RoleService) Reload(ctx context.Context) error {
	roles, err := s.store.LoadRoles(ctx)
	if err != nil {
		return err
	}
	s.mu.Lock()
	s.roles = roles
	s.mu.Unlock()
	return nil
}

// UserRoles returns a copy of user id -> role.
func (s *RoleService) UserRoles() map[string]string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make(map[string]string, len(s.roles))
	for id, role := range s.roles {
		out[id] = role
	}
	return out
}

// Role returns the role of userID, or "" when none.
func (s *RoleService) Role(userID string) string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.roles[userID]
}

// RoleLabel returns the role of userID for display.
func (s *RoleService) RoleLabel(userID string) string {
	if role := s.Role(userID); role != "" {
		return role
	}
	return NoRoleLabel
}

// IsAdmin reports whether userID holds the administrator role.
func (s *RoleService) IsAdmin(userID string) bool {
	return s.Role(userID) == s.admin
}

// AllowedRoles returns the assignable roles.
func (s *RoleService) AllowedRoles() []string {
	return append([]string(nil), s.allowed...)
}

// Assign persists role for userID on behalf of actor.
func (s *RoleService) Assign(ctx context.Context, actor, userID, role string) error {
	userID, err := normalizeUserID(userID)
	if err != nil {
		return err
	}
	if !s.isAllowed(role) {
		return ErrUnknownRole
	}
	if err := s.store.SetRole(ctx, userID, role); err != nil {
		return err
	}
	s.mu.Lock()
	s.roles[userID] = role
	s.mu.Unlock()
	s.audit(ctx, audit.Entry{
		Actor:        actor,
		Role:         s.Role(actor),
		Action:       audit.ActionRoleSet,
		ResourceType: "user",
		ResourceID:   userID,
		Metadata:     audit.Metadata(map[string]string{"role": role}),
	})
	return nil
}

// Remove deletes the role of userID on behalf of actor.
func (s *RoleService) Remove(ctx context.Context, actor, userID string) error {
	userID, err := normalizeUserID(userID)
	if err != nil {
		return err
	}
	if err := s.store.DeleteRole(ctx, userID); err != nil {
		return err
	}
	s.mu.Lock()
	delete(s.roles, userID)
	s.mu.Unlock()
	s.audit(ctx, audit.Entry{
		Actor:        actor,
		Role:         s.Role(actor),
		Action:       audit.ActionRoleDelete,
		ResourceType: "user",
		ResourceID:   userID,
	})
	return nil
}

func (s *RoleService) isAllowed(role string) bool {
	for _, allowed := range s.allowed {
		if role == allowed {
			return true
		}
	}
	return false
}

func (s *RoleService) audit(ctx context.Context, entry audit.Entry) {
	entry.Source = audit.SourceChat
	if err := audit.Record(ctx, s.auditLog, entry); err != nil && s.logger != nil {
		s.logger.Printf("audit %s: %v", entry.Action, err)
	}
}

func normalizeUserID(value string) (string, error) {
	value = strings.TrimSpace(value)
	id, err := strconv.ParseInt(value, 10, 64)
	if err != nil {
		return "", ErrInvalidUserID
	}
	return strconv.FormatInt(id, 10), nil
}
