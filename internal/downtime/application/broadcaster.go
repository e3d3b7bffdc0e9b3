package application

import (
	"context"
	"errors"
	"log"
	"sort"

	"plant-downtime/internal/observability/metrics"
)

// MessageSender delivers a chat message.
type MessageSender interface {
	SendMessage(ctx context.Context, chatID, text, parseMode string) error
}

// RoleReader exposes user id -> role.
type RoleReader interface {
	UserRoles() map[string]string
}

// BroadcastResult counts the deliveries of one broadcast.
type BroadcastResult struct {
	Recipients int
	Delivered  int
	Failed     int
}

// StatusBroadcaster sends the line status to every administrator.
type StatusBroadcaster struct {
	status    *StatusService
	roles     RoleReader
	sender    MessageSender
	adminRole string
	logger    *log.Logger
}

// NewStatusBroadcaster constructs a broadcaster.
func NewStatusBroadcaster(status *StatusService, roles RoleReader, sender MessageSender, adminRole string, logger *log.Logger) (*StatusBroadcaster, error) {
	if status == nil || roles == nil || sender == nil {
		return nil, errors.New("status broadcaster: missing dependency")
	}
	if adminRole == "" {
		return nil, errors.New("status broadcaster: empty admin role")
	}
	return &StatusBroadcaster{
		status:    status,
		roles:     roles,
		sender:    sender,
		adminRole: adminRole,
		logger:    logger,
	}, nil
}

// Admins returns administrator ids in ascending order.
func (b *StatusBroadcaster) Admins() []string {
	var ids []string
	for id, role := range b.roles.UserRoles() {
		if role == b.adminRole {
			ids = append(ids, id)
		}
	}
	sort.Strings(ids)
	return ids
}

// Broadcast renders the status once and sends it to each administrator.
// A failed delivery is logged and does not stop the remaining ones.
func (b *StatusBroadcaster) Broadcast(ctx context.Context) BroadcastResult {
	admins := b.Admins()
	if len(admins) == 0 {
		b.logf("status broadcast: no administrators to notify")
		return BroadcastResult{}
	}
	text := b.status.Text()
	result := BroadcastResult{Recipients: len(admins)}
	for _, id := range admins {
		if err := b.sender.SendMessage(ctx, id, text, ParseModeMarkdown); err != nil {
			result.Failed++
			metrics.IncBroadcastDelivery(metrics.ResultError)
			b.logf("status broadcast: send to %s failed: %v", id, err)
			continue
		}
		result.Delivered++
		metrics.IncBroadcastDelivery(metrics.ResultSuccess)
	}
	b.logf("status broadcast: delivered=%d failed=%d", result.Delivered, result.Failed)
	return result
}

func (b *StatusBroadcaster) logf(format string, args ...any) {
	if b.logger != nil {
		b.logger.Printf(format, args...)
	}
}
