package xlsx

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"sync"

	"github.com/xuri/excelize/v2"

	"plant-downtime/internal/downtime/domain"
)

// Column names of the auxiliary worksheets.
const (
	RoleUserIDColumn = "ID_пользователя_Telegram"
	RoleColumn       = "Роль"
	GroupNameColumn  = "Название группы"
	GroupIDColumn    = "ID группы"
)

var (
	// ErrSheetMissing is returned when a worksheet does not exist.
	ErrSheetMissing = errors.New("workbook: sheet missing")
	// ErrRoleNotFound is returned when deleting an unknown user role.
	ErrRoleNotFound = errors.New("workbook: role not found")
)

// Group is a responsible group from the groups worksheet.
type Group struct {
	ID   string
	Name string
}

// Sheets names the worksheets of the workbook.
type Sheets struct {
	Downtime string
	Groups   string
	Roles    string
}

// Workbook is the XLSX system of record. Every call opens the file, so edits
// made by people in a spreadsheet application between calls are picked up.
type Workbook struct {
	path   string
	sheets Sheets
	mu     sync.Mutex
}

// Open returns a workbook at path, creating the file and any missing
// worksheet with its header row.
func Open(path string, sheets Sheets) (*Workbook, error) {
	if path == "" {
		return nil, errors.New("workbook: empty path")
	}
	if sheets.Downtime == "" || sheets.Groups == "" || sheets.Roles == "" {
		return nil, errors.New("workbook: sheet names required")
	}
	w := &Workbook{path: path, sheets: sheets}
	if err := w.ensureLayout(); err != nil {
		return nil, err
	}
	return w, nil
}

// Path returns the workbook file path.
func (w *Workbook) Path() string { return w.path }

func (w *Workbook) ensureLayout() error {
	w.mu.Lock()
	defer w.mu.Unlock()

	var f *excelize.File
	created := false
	if _, err := os.Stat(w.path); errors.Is(err, os.ErrNotExist) {
		f = excelize.NewFile()
		created = true
	} else {
		opened, err := excelize.OpenFile(w.path)
		if err != nil {
			return fmt.Errorf("workbook: open %s: %w", w.path, err)
		}
		f = opened
	}
	defer f.Close()

	layout := []struct {
		sheet   string
		headers []string
	}{
		{w.sheets.Downtime, domain.SheetHeaders},
		{w.sheets.Groups, []string{GroupNameColumn, GroupIDColumn}},
		{w.sheets.Roles, []string{RoleUserIDColumn, RoleColumn}},
	}
	changed := created
	for _, item := range layout {
		idx, err := f.GetSheetIndex(item.sheet)
		if err != nil {
			return err
		}
		if idx >= 0 {
			continue
		}
		if created && item.sheet == w.sheets.Downtime {
			if err := f.SetSheetName("Sheet1", item.sheet); err != nil {
				return err
			}
		} else if _, err := f.NewSheet(item.sheet); err != nil {
			return err
		}
		headers := append([]string(nil), item.headers...)
		if err := f.SetSheetRow(item.sheet, "A1", &headers); err != nil {
			return err
		}
		changed = true
	}
	if !changed {
		return nil
	}
	if created {
		return f.SaveAs(w.path)
	}
	return f.Save()
}

// LoadDowntimes returns the downtime header row and data rows. Rows are
// padded to the header width.
func (w *Workbook) LoadDowntimes(ctx context.Context) ([]string, [][]string, error) {
	if err := ctx.Err(); err != nil {
		return nil, nil, err
	}
	rows, err := w.readSheet(w.sheets.Downtime)
	if err != nil {
		return nil, nil, err
	}
	if len(rows) == 0 {
		return nil, [][]string{}, nil
	}
	headers := rows[0]
	data := make([][]string, 0, len(rows)-1)
	for _, row := range rows[1:] {
		if isBlank(row) {
			continue
		}
		data = append(data, pad(row, len(headers)))
	}
	return headers, data, nil
}

// AppendDowntime appends a record, placing values by the current header row.
func (w *Workbook) AppendDowntime(ctx context.Context, values map[string]string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return w.modify(func(f *excelize.File) error {
		rows, err := f.GetRows(w.sheets.Downtime)
		if err != nil {
			return err
		}
		headers := domain.SheetHeaders
		next := 1
		if len(rows) > 0 {
			headers = rows[0]
			next = len(rows) + 1
		} else {
			hdr := append([]string(nil), headers...)
			if err := f.SetSheetRow(w.sheets.Downtime, "A1", &hdr); err != nil {
				return err
			}
			next = 2
		}
		row := make([]string, len(headers))
		for i, header := range headers {
			row[i] = values[strings.TrimSpace(header)]
		}
		return setRow(f, w.sheets.Downtime, next, row)
	})
}

// NextSequenceNumber returns one more than the largest request number.
func (w *Workbook) NextSequenceNumber(ctx context.Context) (int, error) {
	headers, rows, err := w.LoadDowntimes(ctx)
	if err != nil {
		return 0, err
	}
	idx, err := domain.ResolveColumns(headers, []string{domain.ColSequence})
	if err != nil {
		return 1, nil
	}
	maxSeq := 0
	for _, row := range rows {
		seq, err := strconv.Atoi(idx.Cell(row, domain.ColSequence))
		if err != nil {
			continue
		}
		if seq > maxSeq {
			maxSeq = seq
		}
	}
	return maxSeq + 1, nil
}

// LoadRoles returns user id -> role.
func (w *Workbook) LoadRoles(ctx context.Context) (map[string]string, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	rows, err := w.readSheet(w.sheets.Roles)
	if err != nil {
		return nil, err
	}
	roles := make(map[string]string)
	if len(rows) == 0 {
		return roles, nil
	}
	idx, err := domain.ResolveColumns(rows[0], []string{RoleUserIDColumn, RoleColumn})
	if err != nil {
		return nil, err
	}
	for _, row := range rows[1:] {
		userID := idx.Cell(row, RoleUserIDColumn)
		role := idx.Cell(row, RoleColumn)
		if userID == "" || role == "" {
			continue
		}
		roles[userID] = role
	}
	return roles, nil
}

// SetRole updates the role of an existing user or appends a new one.
func (w *Workbook) SetRole(ctx context.Context, userID, role string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if userID == "" || role == "" {
		return errors.New("workbook: user id and role required")
	}
	return w.modify(func(f *excelize.File) error {
		rowNum, idx, rows, err := findRoleRow(f, w.sheets.Roles, userID)
		if err != nil {
			return err
		}
		if rowNum > 0 {
			cell, err := excelize.CoordinatesToCellName(idx[RoleColumn]+1, rowNum)
			if err != nil {
				return err
			}
			return f.SetCellValue(w.sheets.Roles, cell, role)
		}
		row := make([]string, len(rows[0]))
		row[idx[RoleUserIDColumn]] = userID
		row[idx[RoleColumn]] = role
		return setRow(f, w.sheets.Roles, len(rows)+1, row)
	})
}

// DeleteRole removes a user's role row.
func (w *Workbook) DeleteRole(ctx context.Context, userID string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return w.modify(func(f *excelize.File) error {
		rowNum, _, _, err := findRoleRow(f, w.sheets.Roles, userID)
		if err != nil {
			return err
		}
		if rowNum == 0 {
			return ErrRoleNotFound
		}
		return f.RemoveRow(w.sheets.Roles, rowNum)
	})
}

// LoadGroups returns responsible groups in sheet order.
func (w *Workbook) LoadGroups(ctx context.Context) ([]Group, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	rows, err := w.readSheet(w.sheets.Groups)
	if err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return nil, nil
	}
	idx, err := domain.ResolveColumns(rows[0], []string{GroupNameColumn, GroupIDColumn})
	if err != nil {
		return nil, err
	}
	var groups []Group
	for _, row := range rows[1:] {
		name := idx.Cell(row, GroupNameColumn)
		if name == "" {
			continue
		}
		groups = append(groups, Group{ID: idx.Cell(row, GroupIDColumn), Name: name})
	}
	return groups, nil
}

func (w *Workbook) readSheet(sheet string) ([][]string, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	f, err := excelize.OpenFile(w.path)
	if err != nil {
		return nil, fmt.Errorf("workbook: open %s: %w", w.path, err)
	}
	defer f.Close()
	idx, err := f.GetSheetIndex(sheet)
	if err != nil {
		return nil, err
	}
	if idx < 0 {
		return nil, fmt.Errorf("%w: %s", ErrSheetMissing, sheet)
	}
	return f.GetRows(sheet)
}

func (w *Workbook) modify(fn func(f *excelize.File) error) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	f, err := excelize.OpenFile(w.path)
	if err != nil {
		return fmt.Errorf("workbook: open %s: %w", w.path, err)
	}
	defer f.Close()
	if err := fn(f); err != nil {
		return err
	}
	return f.Save()
}

func findRoleRow(f *excelize.File, sheet, userID string) (int, domain.ColumnIndex, [][]string, error) {
	rows, err := f.GetRows(sheet)
	if err != nil {
		return 0, nil, nil, err
	}
	if len(rows) == 0 {
		rows = [][]string{{RoleUserIDColumn, RoleColumn}}
		hdr := append([]string(nil), rows[0]...)
		if err := f.SetSheetRow(sheet, "A1", &hdr); err != nil {
			return 0, nil, nil, err
		}
	}
	idx, err := domain.ResolveColumns(rows[0], []string{RoleUserIDColumn, RoleColumn})
	if err != nil {
		return 0, nil, nil, err
	}
	for i, row := range rows[1:] {
		if idx.Cell(row, RoleUserIDColumn) == userID {
			return i + 2, idx, rows, nil
		}
	}
	return 0, idx, rows, nil
}

func setRow(f *excelize.File, sheet string, rowNum int, row []string) error {
	cell, err := excelize.CoordinatesToCellName(1, rowNum)
	if err != nil {
		return err
	}
	return f.SetSheetRow(sheet, cell, &row)
}

func pad(row []string, width int) []string {
	if len(row) >= width {
		return row
	}
	out := make([]string, width)
	copy(out, row)
	return out
}

func isBlank(row []string) bool {
	for _, cell := range row {
		if strings.TrimSpace(cell) != "" {
			return false
		}
	}
	return true
}
