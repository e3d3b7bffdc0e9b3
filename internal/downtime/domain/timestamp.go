package domain

import (
	"strings"
	"time"
)

// SheetTimeLayout is the layout written to the workbook.
const SheetTimeLayout = "2006-01-02 15:04:05"

// FormInputLayout is the layout admins type into the back-fill form.
const FormInputLayout = "02.01.2006 15:04"

// sheetTimeLayouts lists accepted cell encodings, most likely first.
// Spreadsheet auto-formatting rewrites cell text, so all of them occur.
var sheetTimeLayouts = []string{
	SheetTimeLayout,
	"02.01.2006 15:04:05",
	"2006/01/02 15:04:05",
}

// ParseSheetTimestamp parses a raw cell value as plant-local time.
// It reports false when no accepted layout matches.
func ParseSheetTimestamp(raw string, loc *time.Location) (time.Time, bool) {
	value := strings.TrimSpace(raw)
	if value == "" {
		return time.Time{}, false
	}
	if loc == nil {
		loc = time.UTC
	}
	for _, layout := range sheetTimeLayouts {
		parsed, err := time.ParseInLocation(layout, value, loc)
		if err == nil {
			return parsed, true
		}
	}
	return time.Time{}, false
}

// FormatSheetTimestamp renders t in the workbook layout in loc.
func FormatSheetTimestamp(t time.Time, loc *time.Location) string {
	if loc == nil {
		loc = time.UTC
	}
	return t.In(loc).Format(SheetTimeLayout)
}
