package http

import (
	"bytes"
	"fmt"
	"time"

	"github.com/jung-kurt/gofpdf"
	"github.com/xuri/excelize/v2"

	"plant-downtime/internal/downtime/application"
	"plant-downtime/internal/downtime/domain"
)

const (
	exportTimeLayout = "02.01.2006 15:04"
	pdfFontFamily    = "plant"
)

// BuildShiftReportXLSX renders a shift report and its summary as a workbook.
func BuildShiftReportXLSX(report application.ShiftReport, summary application.ShiftSummary, loc *time.Location) ([]byte, error) {
	f := excelize.NewFile()
	defer f.Close()
	recordsSheet := "Простои"
	summarySheet := "Сводка"
	if err := f.SetSheetName("Sheet1", recordsSheet); err != nil {
		return nil, err
	}
	if _, err := f.NewSheet(summarySheet); err != nil {
		return nil, err
	}

	header := []any{"Время", "Площадка", "Линия/секция", "Направление", "Минут", "Описание", "Группа", "Комментарий"}
	if err := f.SetSheetRow(recordsSheet, "A1", &header); err != nil {
		return nil, err
	}
	row := 2
	for _, site := range report.Sites {
		for _, record := range site.Records {
			comment := ""
			if record.HasInitiatorComment() {
				comment = record.InitiatorComment
			}
			values := []any{
				record.Timestamp.In(loc).Format(exportTimeLayout),
				record.Site,
				record.LineSection,
				record.Direction,
				record.DurationMinutes,
				record.Description,
				groupOrDefault(record.ResponsibleGroup),
				comment,
			}
			cell, err := excelize.CoordinatesToCellName(1, row)
			if err != nil {
				return nil, err
			}
			if err := f.SetSheetRow(recordsSheet, cell, &values); err != nil {
				return nil, err
			}
			row++
		}
	}
	if err := f.SetColWidth(recordsSheet, "A", "H", 18); err != nil {
		return nil, err
	}

	_ = f.SetCellValue(summarySheet, "A1", "Смена")
	_ = f.SetCellValue(summarySheet, "B1", windowLabel(report.Window, loc))
	_ = f.SetCellValue(summarySheet, "A2", "Общий простой, мин.")
	_ = f.SetCellValue(summarySheet, "B2", report.TotalMinutes)
	_ = f.SetCellValue(summarySheet, "A4", "Причина")
	_ = f.SetCellValue(summarySheet, "B4", "Минут")
	for i, reason := range summary.TopReasons {
		_ = f.SetCellValue(summarySheet, fmt.Sprintf("A%d", i+5), reason.Reason)
		_ = f.SetCellValue(summarySheet, fmt.Sprintf("B%d", i+5), reason.Minutes)
	}

	var buf bytes.Buffer
	if err := f.Write(&buf); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// BuildShiftReportPDF renders a shift report as a PDF. Cyrillic text needs a
// UTF-8 TrueType font at fontPath; without one the core font drops it.
func BuildShiftReportPDF(report application.ShiftReport, loc *time.Location, fontPath string) ([]byte, error) {
	pdf := gofpdf.New("P", "mm", "A4", "")
	family := "Arial"
	tr := pdf.UnicodeTranslatorFromDescriptor("")
	if fontPath != "" {
		pdf.AddUTF8Font(pdfFontFamily, "", fontPath)
		family = pdfFontFamily
		tr = func(s string) string { return s }
	}
	pdf.SetFont(family, "", 12)
	pdf.AddPage()

	pdf.Cell(0, 8, tr("Отчет за смену "+windowLabel(report.Window, loc)))
	pdf.Ln(10)
	pdf.SetFont(family, "", 10)
	pdf.Cell(0, 6, tr(fmt.Sprintf("Общее время простоя: %d мин.", report.TotalMinutes)))
	pdf.Ln(8)

	widths := []float64{28, 24, 28, 28, 14, 68}
	headers := []string{"Время", "Площадка", "Линия", "Направление", "Мин.", "Описание"}
	for i, header := range headers {
		pdf.CellFormat(widths[i], 6, tr(header), "1", 0, "C", false, 0, "")
	}
	pdf.Ln(-1)
	for _, site := range report.Sites {
		for _, record := range site.Records {
			cells := []string{
				record.Timestamp.In(loc).Format(exportTimeLayout),
				record.Site,
				record.LineSection,
				record.Direction,
				fmt.Sprintf("%d", record.DurationMinutes),
				record.Description,
			}
			for i, cell := range cells {
				align := "L"
				if i == 4 {
					align = "R"
				}
				pdf.CellFormat(widths[i], 6, tr(cell), "1", 0, align, false, 0, "")
			}
			pdf.Ln(-1)
		}
	}

	var buf bytes.Buffer
	if err := pdf.Output(&buf); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func windowLabel(window domain.ShiftWindow, loc *time.Location) string {
	return window.Start.In(loc).Format(exportTimeLayout) + " - " + window.End.In(loc).Format(exportTimeLayout)
}

func groupOrDefault(group string) string {
	if group == "" {
		return domain.UnspecifiedGroup
	}
	return group
}
