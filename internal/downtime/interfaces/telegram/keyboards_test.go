package telegram

import (
	"testing"

	"plant-downtime/internal/downtime/domain"
)

func TestLinesKeyboard_ThreePerRowWithCancel(t *testing.T) {
	lines := []domain.Line{{Key: "l1", Name: "1"}, {Key: "l2", Name: "2"}, {Key: "l3", Name: "3"}, {Key: "l4", Name: "4"}}
	markup := linesKeyboard(lines)
	rows := markup.InlineKeyboard
	if len(rows) != 3 || len(rows[0]) != 3 || len(rows[1]) != 1 {
		t.Fatalf("unexpected layout %+v", rows)
	}
	if data := rows[1][0].CallbackData; data == nil || *data != cbLine+"l4" {
		t.Fatalf("unexpected callback data %v", data)
	}
	last := rows[len(rows)-1]
	if len(last) != 1 || last[0].Text != CmdCancel || *last[0].CallbackData != cbCancel {
		t.Fatalf("expected cancel row last, got %+v", last)
	}
}

func TestReasonsKeyboard_TwoPerRow(t *testing.T) {
	reasons := []domain.Reason{{Key: "a", Name: "A"}, {Key: "b", Name: "B"}}
	rows := reasonsKeyboard(reasons).InlineKeyboard
	if len(rows) != 2 || len(rows[0]) != 2 {
		t.Fatalf("unexpected layout %+v", rows)
	}
}

func TestReplyKeyboards_Resize(t *testing.T) {
	if !adminKeyboard().ResizeKeyboard || len(adminKeyboard().Keyboard) != 5 {
		t.Fatalf("unexpected admin keyboard %+v", adminKeyboard())
	}
	if employeeKeyboard().Keyboard[1][0].Text != CmdLineStatus {
		t.Fatalf("unexpected employee keyboard %+v", employeeKeyboard())
	}
}
