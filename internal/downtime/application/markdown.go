package application

import (
	"fmt"
	"strings"
)

// ParseModeMarkdown is the legacy chat Markdown parse mode.
const ParseModeMarkdown = "Markdown"

var markdownEscaper = strings.NewReplacer(
	`_`, `\_`,
	`*`, `\*`,
	"`", "\\`",
	`[`, `\[`,
)

// EscapeMarkdown escapes user-provided text for legacy chat Markdown.
func EscapeMarkdown(value string) string {
	return markdownEscaper.Replace(value)
}

// FormatHoursMinutes renders a minute total as "H ч M мин.".
func FormatHoursMinutes(total int) string {
	sign := ""
	if total < 0 {
		sign = "-"
		total = -total
	}
	return fmt.Sprintf("%s%d ч %d мин.", sign, total/60, total%60)
}
