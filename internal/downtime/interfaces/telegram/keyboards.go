package telegram

import (
	"strconv"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"plant-downtime/internal/downtime/domain"
	tg "plant-downtime/internal/telegram"
)

// Reply keyboard commands.
const (
	CmdReportCurrent  = "📄 Отчет за текущую смену"
	CmdReportPrevious = "📄 Отчет за предыдущую смену"
	CmdLineStatus     = "🔄 Статус линий"
	CmdSummary        = "📊 Сводка за смену"
	CmdBackfill       = "📝 Внести прошедший простой"
	CmdRoles          = "👥 Управление ролями"
	CmdRefresh        = "♻️ Обновить кэш"
	CmdReportDowntime = "🔴 Сообщить о простое"
	CmdFinishDowntime = "🟢 Завершить простой"
	CmdCancel         = "❌ Отмена"
)

// Callback data prefixes.
const (
	cbSite    = "site:"
	cbLine    = "line:"
	cbReason  = "reason:"
	cbGroup   = "group:"
	cbActive  = "active:"
	cbRole    = "role:"
	cbSkip    = "skip"
	cbConfirm = "confirm"
	cbCancel  = "cancel"

	roleDelete = "delete"
)

func adminKeyboard() tg.ReplyKeyboardMarkup {
	return tgbotapi.NewReplyKeyboard(
		tgbotapi.NewKeyboardButtonRow(tgbotapi.NewKeyboardButton(CmdReportCurrent), tgbotapi.NewKeyboardButton(CmdReportPrevious)),
		tgbotapi.NewKeyboardButtonRow(tgbotapi.NewKeyboardButton(CmdLineStatus), tgbotapi.NewKeyboardButton(CmdSummary)),
		tgbotapi.NewKeyboardButtonRow(tgbotapi.NewKeyboardButton(CmdBackfill), tgbotapi.NewKeyboardButton(CmdRoles)),
		tgbotapi.NewKeyboardButtonRow(tgbotapi.NewKeyboardButton(CmdReportDowntime), tgbotapi.NewKeyboardButton(CmdFinishDowntime)),
		tgbotapi.NewKeyboardButtonRow(tgbotapi.NewKeyboardButton(CmdRefresh)),
	)
}

func employeeKeyboard() tg.ReplyKeyboardMarkup {
	return tgbotapi.NewReplyKeyboard(
		tgbotapi.NewKeyboardButtonRow(tgbotapi.NewKeyboardButton(CmdReportDowntime), tgbotapi.NewKeyboardButton(CmdFinishDowntime)),
		tgbotapi.NewKeyboardButtonRow(tgbotapi.NewKeyboardButton(CmdLineStatus)),
	)
}

func button(text, data string) tgbotapi.InlineKeyboardButton {
	return tgbotapi.NewInlineKeyboardButtonData(text, data)
}

func cancelRow() []tgbotapi.InlineKeyboardButton {
	return tgbotapi.NewInlineKeyboardRow(button(CmdCancel, cbCancel))
}

func inlineKeyboard(rows [][]tgbotapi.InlineKeyboardButton) *tg.InlineKeyboardMarkup {
	markup := tgbotapi.NewInlineKeyboardMarkup(append(rows, cancelRow())...)
	return &markup
}

// gridRows lays buttons out perRow to a row.
func gridRows(buttons []tgbotapi.InlineKeyboardButton, perRow int) [][]tgbotapi.InlineKeyboardButton {
	var rows [][]tgbotapi.InlineKeyboardButton
	for len(buttons) > perRow {
		rows = append(rows, tgbotapi.NewInlineKeyboardRow(buttons[:perRow]...))
		buttons = buttons[perRow:]
	}
	if len(buttons) > 0 {
		rows = append(rows, tgbotapi.NewInlineKeyboardRow(buttons...))
	}
	return rows
}

func sitesKeyboard(registry domain.Registry) *tg.InlineKeyboardMarkup {
	rows := make([][]tgbotapi.InlineKeyboardButton, 0, len(registry.Sites)+1)
	for _, site := range registry.Sites {
		rows = append(rows, tgbotapi.NewInlineKeyboardRow(button(site.Name, cbSite+site.Key)))
	}
	return inlineKeyboard(rows)
}

func linesKeyboard(lines []domain.Line) *tg.InlineKeyboardMarkup {
	buttons := make([]tgbotapi.InlineKeyboardButton, 0, len(lines))
	for _, line := range lines {
		buttons = append(buttons, button(line.Name, cbLine+line.Key))
	}
	return inlineKeyboard(gridRows(buttons, 3))
}

func reasonsKeyboard(reasons []domain.Reason) *tg.InlineKeyboardMarkup {
	buttons := make([]tgbotapi.InlineKeyboardButton, 0, len(reasons))
	for _, reason := range reasons {
		buttons = append(buttons, button(reason.Name, cbReason+reason.Key))
	}
	return inlineKeyboard(gridRows(buttons, 2))
}

func groupsKeyboard(names []string) *tg.InlineKeyboardMarkup {
	rows := make([][]tgbotapi.InlineKeyboardButton, 0, len(names)+2)
	for i, name := range names {
		rows = append(rows, tgbotapi.NewInlineKeyboardRow(button(name, cbGroup+strconv.Itoa(i))))
	}
	rows = append(rows, tgbotapi.NewInlineKeyboardRow(button("Пропустить", cbSkip)))
	return inlineKeyboard(rows)
}

func confirmKeyboard() *tg.InlineKeyboardMarkup {
	return inlineKeyboard([][]tgbotapi.InlineKeyboardButton{
		tgbotapi.NewInlineKeyboardRow(button("✅ Сохранить", cbConfirm)),
	})
}

func activeKeyboard(keys []domain.LineKey, reasons []string) *tg.InlineKeyboardMarkup {
	rows := make([][]tgbotapi.InlineKeyboardButton, 0, len(keys)+1)
	for i, key := range keys {
		label := key.Site + " / " + key.Line + " (" + reasons[i] + ")"
		rows = append(rows, tgbotapi.NewInlineKeyboardRow(button(label, cbActive+strconv.Itoa(i))))
	}
	return inlineKeyboard(rows)
}

func rolesKeyboard(roles []string) *tg.InlineKeyboardMarkup {
	rows := make([][]tgbotapi.InlineKeyboardButton, 0, len(roles)+2)
	for i, role := range roles {
		rows = append(rows, tgbotapi.NewInlineKeyboardRow(button(role, cbRole+strconv.Itoa(i))))
	}
	rows = append(rows, tgbotapi.NewInlineKeyboardRow(button("🗑 Удалить роль", cbRole+roleDelete)))
	return inlineKeyboard(rows)
}
