package application

import (
	"bytes"
	"context"
	"errors"
	"log"
	"strings"
	"testing"
	"time"

	"plant-downtime/internal/downtime/domain"
)

type stubActive map[domain.LineKey]string

func (s stubActive) ActiveDowntimes() map[domain.LineKey]string {
	out := make(map[domain.LineKey]string, len(s))
	for k, v := range s {
		out[k] = v
	}
	return out
}

func ometRegistry() domain.Registry {
	return domain.Registry{
		Sites: []domain.Site{{Key: "omet", Name: "ОМЕТ"}, {Key: "empty", Name: "Без линий"}},
		Lines: map[string][]domain.Line{
			"omet": {
				{Key: "omet1", Name: "ОМЕТ1"}, {Key: "omet2", Name: "ОМЕТ2"}, {Key: "omet3", Name: "ОМЕТ3"},
				{Key: "omet4", Name: "ОМЕТ4"}, {Key: "omet5", Name: "ОМЕТ5"}, {Key: "sdf", Name: "СДФ"},
			},
		},
	}
}

func TestProjectLineStatus_OneLineDown(t *testing.T) {
	active := stubActive{{Site: "ОМЕТ", Line: "ОМЕТ1"}: "обрыв"}
	board := ProjectLineStatus(ometRegistry(), active.ActiveDowntimes())
	if len(board) != 1 || board[0].Site != "ОМЕТ" {
		t.Fatalf("unexpected board %+v", board)
	}
	names := []string{"ОМЕТ1", "ОМЕТ2", "ОМЕТ3", "ОМЕТ4", "ОМЕТ5", "СДФ"}
	down := 0
	for i, line := range board[0].Lines {
		if line.Line != names[i] {
			t.Fatalf("line %d: expected %s, got %s", i, names[i], line.Line)
		}
		if line.Down {
			down++
			if line.Line != "ОМЕТ1" || line.Reason != "обрыв" {
				t.Fatalf("unexpected down line %+v", line)
			}
		}
	}
	if down != 1 {
		t.Fatalf("expected exactly one down line, got %d", down)
	}

	text := RenderLineStatus(board)
	if !strings.HasPrefix(text, "**Статус линий на текущий момент:**\n\n🏭 **ОМЕТ**") {
		t.Fatalf("unexpected header %q", text)
	}
	if strings.Count(text, "🔴") != 1 || strings.Count(text, "🟢") != 5 {
		t.Fatalf("unexpected markers %q", text)
	}
	if !strings.Contains(text, "   🔴 ОМЕТ1: **ПРОСТОЙ** (обрыв)") || !strings.Contains(text, "   🟢 СДФ: Работает") {
		t.Fatalf("unexpected lines %q", text)
	}
	if strings.Index(text, "ОМЕТ2") > strings.Index(text, "СДФ") {
		t.Fatalf("expected registry order in %q", text)
	}
}

type stubRoles map[string]string

func (s stubRoles) UserRoles() map[string]string { return s }

type recordingSender struct {
	failFor map[string]bool
	sent    []string
}

func (s *recordingSender) SendMessage(_ context.Context, chatID, _ string, _ string) error {
	if s.failFor[chatID] {
		return errors.New("blocked by user")
	}
	s.sent = append(s.sent, chatID)
	return nil
}

func newTestBroadcaster(t *testing.T, roles stubRoles, sender *recordingSender, logs *bytes.Buffer) *StatusBroadcaster {
	t.Helper()
	status, err := NewStatusService(ometRegistry(), stubActive{})
	if err != nil {
		t.Fatalf("status service: %v", err)
	}
	b, err := NewStatusBroadcaster(status, roles, sender, "Администратор", log.New(logs, "", 0))
	if err != nil {
		t.Fatalf("broadcaster: %v", err)
	}
	return b
}

func TestBroadcast_ContinuesAfterFailure(t *testing.T) {
	var logs bytes.Buffer
	sender := &recordingSender{failFor: map[string]bool{"2": true}}
	roles := stubRoles{"1": "Администратор", "2": "Администратор", "3": "Администратор", "4": "Сотрудник"}
	b := newTestBroadcaster(t, roles, sender, &logs)

	result := b.Broadcast(context.Background())
	if result.Recipients != 3 || result.Delivered != 2 || result.Failed != 1 {
		t.Fatalf("unexpected result %+v", result)
	}
	if len(sender.sent) != 2 || sender.sent[0] != "1" || sender.sent[1] != "3" {
		t.Fatalf("unexpected deliveries %v", sender.sent)
	}
	if got := strings.Count(logs.String(), "send to"); got != 1 {
		t.Fatalf("expected one logged failure, got %d in %q", got, logs.String())
	}
}

func TestBroadcast_NoAdmins(t *testing.T) {
	var logs bytes.Buffer
	sender := &recordingSender{}
	b := newTestBroadcaster(t, stubRoles{"4": "Сотрудник"}, sender, &logs)
	if result := b.Broadcast(context.Background()); result.Recipients != 0 {
		t.Fatalf("unexpected result %+v", result)
	}
	if len(sender.sent) != 0 || !strings.Contains(logs.String(), "no administrators") {
		t.Fatalf("expected warning and no sends, logs=%q", logs.String())
	}
}

type countingBroadcaster struct{ runs int }

func (b *countingBroadcaster) Broadcast(context.Context) BroadcastResult {
	b.runs++
	return BroadcastResult{}
}

func TestScheduler_TickMatchesPlantTime(t *testing.T) {
	loc := moscow(t)
	times, err := ParseDailyTimes("08:00, 20:00")
	if err != nil {
		t.Fatalf("parse times: %v", err)
	}
	counter := &countingBroadcaster{}
	s, err := NewScheduler(counter, times, loc, nil)
	if err != nil {
		t.Fatalf("scheduler: %v", err)
	}
	ctx := context.Background()

	// 05:00 UTC is 08:00 in Moscow.
	at := time.Date(2025, 6, 27, 5, 0, 10, 0, time.UTC)
	if !s.Tick(ctx, at) {
		t.Fatalf("expected run at 08:00 plant time")
	}
	if s.Tick(ctx, at.Add(30*time.Second)) {
		t.Fatalf("expected one run per minute")
	}
	if s.Tick(ctx, time.Date(2025, 6, 27, 8, 0, 0, 0, time.UTC)) {
		t.Fatalf("08:00 UTC is not a plant boundary")
	}
	if !s.Tick(ctx, time.Date(2025, 6, 27, 20, 0, 0, 0, loc)) {
		t.Fatalf("expected run at 20:00 plant time")
	}
	if counter.runs != 2 {
		t.Fatalf("expected 2 runs, got %d", counter.runs)
	}
}

func TestParseDailyTimes_Invalid(t *testing.T) {
	if _, err := ParseDailyTimes("25:99"); err == nil {
		t.Fatalf("expected error")
	}
	if _, err := ParseDailyTimes(" , "); err == nil {
		t.Fatalf("expected error for empty list")
	}
}
