package audit

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// Actions recorded by the bot and the HTTP API.
const (
	ActionRoleSet          = "role.set"
	ActionRoleDelete       = "role.delete"
	ActionDowntimeBackfill = "downtime.backfill"
	ActionDowntimeBegin    = "downtime.begin"
	ActionDowntimeFinish   = "downtime.finish"
	ActionCacheRefresh     = "cache.refresh"
	ActionReportExport     = "report.export"
)

// Sources of an audited action.
const (
	SourceChat = "chat"
	SourceHTTP = "http"
)

// Entry represents an audit log entry.
type Entry struct {
	ID            string
	Actor         string
	Role          string
	Action        string
	ResourceType  string
	ResourceID    string
	Site          string
	Source        string
	Metadata      json.RawMessage
	PayloadDigest string
	CreatedAt     time.Time
}

// Logger writes audit entries.
type Logger interface {
	Log(ctx context.Context, entry Entry) error
}

// NewID generates a random audit id.
func NewID() string {
	return "audit-" + uuid.NewString()
}

// DigestJSON computes a SHA256 hex digest for metadata payloads.
func DigestJSON(data []byte) string {
	if len(data) == 0 {
		return ""
	}
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}

// Metadata marshals v for Entry.Metadata, returning nil on failure.
func Metadata(v any) json.RawMessage {
	if v == nil {
		return nil
	}
	data, err := json.Marshal(v)
	if err != nil {
		return nil
	}
	return data
}

// Record writes entry when logger is set. Audit failures never block the
// audited action; they are returned for the caller to log.
func Record(ctx context.Context, logger Logger, entry Entry) error {
	if logger == nil {
		return nil
	}
	return logger.Log(ctx, entry)
}
