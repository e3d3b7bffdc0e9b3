package audit_test

import (
	"context"
	"database/sql"
	"os"
	"testing"
	"time"

	"plant-downtime/internal/audit"

	_ "github.com/jackc/pgx/v5/stdlib"
)

func TestRepository_Postgres(t *testing.T) {
	dsn := os.Getenv("PG_DSN")
	if dsn == "" {
		t.Skip("PG_DSN not set")
	}

	db, err := sql.Open("pgx", dsn)
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	defer db.Close()

	ctx := context.Background()
	repo := audit.NewRepository(db)
	if err := repo.EnsureSchema(ctx); err != nil {
		t.Fatalf("ensure schema: %v", err)
	}

	entry := audit.Entry{
		ID:         audit.NewID(),
		Actor:      "it-admin",
		Role:       "Администратор",
		Action:     audit.ActionRoleSet,
		ResourceID: "555",
		Source:     audit.SourceChat,
		Metadata:   audit.Metadata(map[string]string{"role": "Сотрудник"}),
		CreatedAt:  time.Date(2025, time.June, 27, 9, 0, 0, 0, time.UTC),
	}
	defer func() {
		_, _ = db.ExecContext(ctx, "DELETE FROM audit_logs WHERE id = $1", entry.ID)
	}()
	if err := repo.Log(ctx, entry); err != nil {
		t.Fatalf("log: %v", err)
	}

	var action, digest string
	if err := db.QueryRowContext(ctx, "SELECT action, payload_digest FROM audit_logs WHERE id = $1", entry.ID).Scan(&action, &digest); err != nil {
		t.Fatalf("query: %v", err)
	}
	if action != audit.ActionRoleSet || digest != audit.DigestJSON(entry.Metadata) {
		t.Fatalf("unexpected row action=%q digest=%q", action, digest)
	}
}
