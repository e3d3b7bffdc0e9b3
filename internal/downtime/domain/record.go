package domain

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// Downtime worksheet column names. They must match the workbook header row.
const (
	ColSequence          = "Порядковый номер заявки"
	ColTimestamp         = "Timestamp_записи"
	ColUserID            = "ID_пользователя_Telegram"
	ColUsername          = "Username_Telegram"
	ColUserFullName      = "Имя_пользователя_Telegram"
	ColSite              = "Площадка"
	ColLineSection       = "Линия_Секция"
	ColDirection         = "Направление_простоя"
	ColDescription       = "Причина_простоя_описание"
	ColDurationMinutes   = "Время_простоя_минут"
	ColShiftStart        = "Начало_смены_простоя"
	ColShiftEnd          = "Конец_смены_простоя"
	ColResponsibleGroup  = "Ответственная_группа"
	ColAcceptedByID      = "Кто_принял_заявку_ID"
	ColAcceptedByName    = "Кто_принял_заявку_Имя"
	ColAcceptedAt        = "Время_принятия_заявки"
	ColCompletedByID     = "Кто_завершил_работу_в_группе_ID"
	ColCompletedByName   = "Кто_завершил_работу_в_группе_Имя"
	ColCompletedAt       = "Время_завершения_работы_группой"
	ColInitiatorComment  = "Дополнительный_комментарий_инициатора"
	ColPhotoID           = "ID_Фото"
	NoCommentPlaceholder = "Без доп. комментария"
	UnspecifiedGroup     = "Не указана"
)

// SheetHeaders is the declared column order of the downtime worksheet.
var SheetHeaders = []string{
	ColSequence,
	ColTimestamp, ColUserID, ColUsername,
	ColUserFullName, ColSite, ColLineSection,
	ColDirection, ColDescription, ColDurationMinutes,
	ColShiftStart, ColShiftEnd,
	ColResponsibleGroup,
	ColAcceptedByID, ColAcceptedByName, ColAcceptedAt,
	ColCompletedByID, ColCompletedByName, ColCompletedAt,
	ColInitiatorComment,
	ColPhotoID,
}

// DetailedReportColumns are required by the detailed shift report.
var DetailedReportColumns = []string{
	ColTimestamp, ColSite, ColLineSection, ColDirection,
	ColDurationMinutes, ColDescription, ColResponsibleGroup,
	ColInitiatorComment,
}

// SummaryColumns are required by the shift summary.
var SummaryColumns = []string{ColTimestamp, ColDurationMinutes, ColDirection}

// LineKey identifies a line/section within a site by display names.
type LineKey struct {
	Site string
	Line string
}

// DowntimeRecord is the projection of one downtime worksheet row.
type DowntimeRecord struct {
	Timestamp        time.Time
	Site             string
	LineSection      string
	Direction        string
	DurationMinutes  int
	Description      string
	ResponsibleGroup string
	InitiatorComment string
}

// HasInitiatorComment reports whether the comment is worth rendering.
func (r DowntimeRecord) HasInitiatorComment() bool {
	return r.InitiatorComment != "" && !strings.Contains(r.InitiatorComment, NoCommentPlaceholder)
}

// Snapshot is a point-in-time view of the cached downtime worksheet.
// Callers must treat Headers and Rows as read-only.
type Snapshot struct {
	Headers     []string
	Rows        [][]string
	Error       string
	Stale       bool
	RefreshedAt time.Time
}

// HasData reports whether the snapshot holds a header row.
func (s Snapshot) HasData() bool {
	return len(s.Headers) > 0 && s.Rows != nil
}

// MissingColumnError names a required column absent from the header row.
type MissingColumnError struct {
	Column string
}

func (e *MissingColumnError) Error() string {
	return fmt.Sprintf("downtime: missing column %q", e.Column)
}

// Is matches ErrMissingColumn.
func (e *MissingColumnError) Is(target error) bool {
	return target == ErrMissingColumn
}

// ColumnIndex maps column names to their position in a row.
type ColumnIndex map[string]int

// ResolveColumns looks up the position of every required column once.
func ResolveColumns(headers []string, required []string) (ColumnIndex, error) {
	positions := make(map[string]int, len(headers))
	for i, header := range headers {
		name := strings.TrimSpace(header)
		if _, ok := positions[name]; !ok {
			positions[name] = i
		}
	}
	idx := make(ColumnIndex, len(required))
	for _, col := range required {
		pos, ok := positions[col]
		if !ok {
			return nil, &MissingColumnError{Column: col}
		}
		idx[col] = pos
	}
	return idx, nil
}

// Widest returns the largest column position in the index.
func (c ColumnIndex) Widest() int {
	widest := -1
	for _, pos := range c {
		if pos > widest {
			widest = pos
		}
	}
	return widest
}

// Cell returns the trimmed cell of row for col.
func (c ColumnIndex) Cell(row []string, col string) string {
	pos, ok := c[col]
	if !ok || pos >= len(row) {
		return ""
	}
	return strings.TrimSpace(row[pos])
}

// ParseDurationMinutes reads an integer minute count. Empty cells count as zero.
func ParseDurationMinutes(raw string) (int, error) {
	value := strings.TrimSpace(raw)
	if value == "" {
		return 0, nil
	}
	minutes, err := strconv.Atoi(value)
	if err != nil {
		return 0, fmt.Errorf("%w: %q", ErrInvalidDuration, raw)
	}
	return minutes, nil
}

// ProjectRecord converts a raw row into a DowntimeRecord. The index must
// contain ColTimestamp and ColDurationMinutes; other columns are optional.
// On a duration error the returned record still carries the parsed timestamp.
func ProjectRecord(row []string, idx ColumnIndex, loc *time.Location) (DowntimeRecord, error) {
	if len(row) <= idx.Widest() {
		return DowntimeRecord{}, ErrShortRow
	}
	rawTS := idx.Cell(row, ColTimestamp)
	if rawTS == "" {
		return DowntimeRecord{}, ErrEmptyTimestamp
	}
	ts, ok := ParseSheetTimestamp(rawTS, loc)
	if !ok {
		return DowntimeRecord{}, fmt.Errorf("%w: %q", ErrInvalidTimestamp, rawTS)
	}
	minutes, err := ParseDurationMinutes(idx.Cell(row, ColDurationMinutes))
	if err != nil {
		return DowntimeRecord{Timestamp: ts}, err
	}
	return DowntimeRecord{
		Timestamp:        ts,
		Site:             idx.Cell(row, ColSite),
		LineSection:      idx.Cell(row, ColLineSection),
		Direction:        idx.Cell(row, ColDirection),
		DurationMinutes:  minutes,
		Description:      idx.Cell(row, ColDescription),
		ResponsibleGroup: idx.Cell(row, ColResponsibleGroup),
		InitiatorComment: idx.Cell(row, ColInitiatorComment),
	}, nil
}

// NewSheetRow orders values by SheetHeaders; missing columns become empty cells.
func NewSheetRow(values map[string]string) []string {
	row := make([]string, len(SheetHeaders))
	for i, col := range SheetHeaders {
		row[i] = values[col]
	}
	return row
}
