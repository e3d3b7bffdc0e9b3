package application

import (
	"strings"
	"testing"
	"time"

	"plant-downtime/internal/downtime/domain"
)

type stubSnapshots struct {
	snap  domain.Snapshot
	reads int
}

func (s *stubSnapshots) Snapshot() domain.Snapshot {
	s.reads++
	return s.snap
}

type fixedClock struct{ now time.Time }

func (c fixedClock) Now() time.Time { return c.now }

func moscow(t *testing.T) *time.Location {
	t.Helper()
	loc, err := time.LoadLocation("Europe/Moscow")
	if err != nil {
		t.Fatalf("load location: %v", err)
	}
	return loc
}

func dayWindow(loc *time.Location) domain.ShiftWindow {
	return domain.ShiftWindow{
		Start: time.Date(2025, 6, 27, 8, 0, 0, 0, loc),
		End:   time.Date(2025, 6, 27, 20, 0, 0, 0, loc),
	}
}

func sheetRow(values map[string]string) []string {
	return domain.NewSheetRow(values)
}

func record(ts, site, line, direction, minutes string) []string {
	return sheetRow(map[string]string{
		domain.ColTimestamp:        ts,
		domain.ColSite:             site,
		domain.ColLineSection:      line,
		domain.ColDirection:        direction,
		domain.ColDurationMinutes:  minutes,
		domain.ColDescription:      "описание",
		domain.ColResponsibleGroup: "Механики",
		domain.ColInitiatorComment: domain.NoCommentPlaceholder,
	})
}

func newTestReports(t *testing.T, snap domain.Snapshot) (*ReportService, *stubSnapshots) {
	t.Helper()
	snapshots := &stubSnapshots{snap: snap}
	svc, err := NewReportService(snapshots, moscow(t),
		WithReportClock(fixedClock{now: time.Date(2025, 6, 27, 12, 0, 0, 0, moscow(t))}))
	if err != nil {
		t.Fatalf("new report service: %v", err)
	}
	return svc, snapshots
}

func TestDetailedReport_MissingColumn(t *testing.T) {
	headers := make([]string, 0, len(domain.SheetHeaders))
	for _, h := range domain.SheetHeaders {
		if h != domain.ColSite {
			headers = append(headers, h)
		}
	}
	svc, _ := newTestReports(t, domain.Snapshot{
		Headers: headers,
		Rows:    [][]string{{"1", "2025-06-27 10:00:00"}},
	})
	text := svc.DetailedReport(dayWindow(svc.Location()))
	if !strings.Contains(text, "Площадка") || !strings.HasPrefix(text, "Ошибка конфигурации отчета") {
		t.Fatalf("expected configuration error naming the column, got %q", text)
	}
	if strings.Contains(text, "Общее время") {
		t.Fatalf("no partial aggregation expected, got %q", text)
	}
}

func TestSummary_SingleRow(t *testing.T) {
	svc, _ := newTestReports(t, domain.Snapshot{
		Headers: domain.SheetHeaders,
		Rows:    [][]string{record("2025-06-27 10:00:00", "ОМЕТ", "ОМЕТ1", "обрыв", "45")},
	})
	window := dayWindow(svc.Location())
	summary, err := svc.BuildShiftSummary(window)
	if err != nil {
		t.Fatalf("summary: %v", err)
	}
	if summary.TotalMinutes != 45 {
		t.Fatalf("expected 45 minutes, got %d", summary.TotalMinutes)
	}
	text := svc.Summary(window)
	if !strings.Contains(text, "0 ч 45 мин.") || !strings.Contains(text, "- обрыв (45 мин.)") {
		t.Fatalf("unexpected summary %q", text)
	}
}

func TestDetailedReport_EmptyDiffersFromZeroDuration(t *testing.T) {
	outside, _ := newTestReports(t, domain.Snapshot{
		Headers: domain.SheetHeaders,
		Rows:    [][]string{record("2025-06-26 10:00:00", "ОМЕТ", "ОМЕТ1", "обрыв", "30")},
	})
	zero, _ := newTestReports(t, domain.Snapshot{
		Headers: domain.SheetHeaders,
		Rows:    [][]string{record("2025-06-27 10:00:00", "ОМЕТ", "ОМЕТ1", "обрыв", "0")},
	})
	window := dayWindow(outside.Location())
	emptyText := outside.DetailedReport(window)
	zeroText := zero.DetailedReport(window)
	if emptyText == zeroText {
		t.Fatalf("expected distinguishable reports, both %q", emptyText)
	}
	if !strings.HasPrefix(emptyText, "Нет корректных записей за смену с 08:00 27.06 по 20:00 27.06.") {
		t.Fatalf("unexpected empty report %q", emptyText)
	}
	if !strings.Contains(zeroText, "**⏱️ Общее время простоя: 0 минут.**") {
		t.Fatalf("unexpected zero report %q", zeroText)
	}
}

func TestDetailedReport_GroupsSitesAndSkipsBadRows(t *testing.T) {
	rows := [][]string{
		record("2025-06-27 10:00:00", "МТС-2", "резка", "кип", "10"),
		record("27.06.2025 11:00:00", "ОМЕТ", "ОМЕТ2", "механика", "20"),
		record("garbage", "ОМЕТ", "ОМЕТ3", "кип", "5"),
		record("2025/06/27 12:00:00", "ОМЕТ", "ОМЕТ1", "обрыв", "abc"),
		record("", "ОМЕТ", "ОМЕТ4", "кип", "5"),
		{"1", "2025-06-27 10:00:00"},
	}
	svc, snapshots := newTestReports(t, domain.Snapshot{Headers: domain.SheetHeaders, Rows: rows})
	report, err := svc.BuildShiftReport(dayWindow(svc.Location()))
	if err != nil {
		t.Fatalf("report: %v", err)
	}
	if snapshots.reads != 1 {
		t.Fatalf("expected a single snapshot read, got %d", snapshots.reads)
	}
	if len(report.Sites) != 2 || report.Sites[0].Site != "МТС-2" || report.Sites[1].Site != "ОМЕТ" {
		t.Fatalf("unexpected site grouping %+v", report.Sites)
	}
	if report.TotalMinutes != 30 {
		t.Fatalf("expected 30 minutes, got %d", report.TotalMinutes)
	}
}

func TestDetailedReport_RendersEntry(t *testing.T) {
	row := sheetRow(map[string]string{
		domain.ColTimestamp:        "2025-06-27 10:00:00",
		domain.ColSite:             "ОМЕТ",
		domain.ColLineSection:      "ОМЕТ1",
		domain.ColDirection:        "обрыв",
		domain.ColDurationMinutes:  "15",
		domain.ColDescription:      "порвалось полотно",
		domain.ColInitiatorComment: "срочно",
	})
	svc, _ := newTestReports(t, domain.Snapshot{Headers: domain.SheetHeaders, Rows: [][]string{row}, Stale: true})
	text := svc.DetailedReport(dayWindow(svc.Location()))
	for _, want := range []string{
		"**📊 Отчет за смену с 08:00 27.06 по 20:00 27.06**\n",
		"⚙️ **ОМЕТ1**: обрыв (15 мин.)\n   📝 _порвалось полотно_\n   👥 Не указана",
		"\n   🗣️ Комментарий инициатора: _срочно_",
		"⚠️ **Данные могут быть неактуальны (кэш устарел).**",
	} {
		if !strings.Contains(text, want) {
			t.Fatalf("expected %q in %q", want, text)
		}
	}
}

func TestReports_NoData(t *testing.T) {
	svc, _ := newTestReports(t, domain.Snapshot{Stale: true})
	window := dayWindow(svc.Location())
	if text := svc.DetailedReport(window); !strings.HasPrefix(text, "Нет данных о простоях для анализа.") {
		t.Fatalf("unexpected detailed text %q", text)
	}
	if text := svc.Summary(window); !strings.HasPrefix(text, "Нет данных для сводки.") {
		t.Fatalf("unexpected summary text %q", text)
	}
}

func TestReports_CacheErrorSuffix(t *testing.T) {
	svc, _ := newTestReports(t, domain.Snapshot{
		Headers: domain.SheetHeaders,
		Rows:    [][]string{record("2025-06-27 10:00:00", "ОМЕТ", "ОМЕТ1", "обрыв", "5")},
		Error:   "quota exceeded",
	})
	text := svc.Summary(dayWindow(svc.Location()))
	if !strings.HasSuffix(text, "\n\n⚠️ **Кэш-ошибка: quota exceeded.**") {
		t.Fatalf("unexpected suffix in %q", text)
	}
}

const (
	errorWarning = "\n\n⚠️ **Кэш-ошибка: quota.**"
	staleWarning = "\n\n⚠️ **Данные могут быть неактуальны (кэш устарел).**"
)

func TestReports_ErrorAndStaleSuffixTogether(t *testing.T) {
	svc, _ := newTestReports(t, domain.Snapshot{
		Headers: domain.SheetHeaders,
		Rows:    [][]string{record("2025-06-27 10:00:00", "ОМЕТ", "ОМЕТ1", "обрыв", "5")},
		Error:   "quota",
		Stale:   true,
	})
	window := dayWindow(svc.Location())
	for name, text := range map[string]string{
		"detailed": svc.DetailedReport(window),
		"summary":  svc.Summary(window),
	} {
		if !strings.HasSuffix(text, errorWarning+staleWarning) {
			t.Fatalf("%s: expected both warnings, got %q", name, text)
		}
	}
}

func TestReports_StaleSuffix(t *testing.T) {
	svc, _ := newTestReports(t, domain.Snapshot{
		Headers: domain.SheetHeaders,
		Rows:    [][]string{record("2025-06-27 10:00:00", "ОМЕТ", "ОМЕТ1", "обрыв", "5")},
		Stale:   true,
	})
	text := svc.DetailedReport(dayWindow(svc.Location()))
	if !strings.HasSuffix(text, staleWarning) || strings.Contains(text, "Кэш-ошибка") {
		t.Fatalf("unexpected suffix in %q", text)
	}
}

func TestReports_MissingColumnCarriesWarning(t *testing.T) {
	svc, _ := newTestReports(t, domain.Snapshot{
		Headers: []string{domain.ColTimestamp},
		Rows:    [][]string{{"2025-06-27 10:00:00"}},
		Stale:   true,
	})
	window := dayWindow(svc.Location())
	detailed := svc.DetailedReport(window)
	if !strings.HasPrefix(detailed, "Ошибка конфигурации отчета") || !strings.HasSuffix(detailed, staleWarning) {
		t.Fatalf("unexpected detailed text %q", detailed)
	}
	summary := svc.Summary(window)
	if !strings.HasPrefix(summary, "Ошибка конфигурации сводки") || !strings.HasSuffix(summary, staleWarning) {
		t.Fatalf("unexpected summary text %q", summary)
	}
}

func TestReports_EmptySheetWithHeaders(t *testing.T) {
	svc, _ := newTestReports(t, domain.Snapshot{Headers: domain.SheetHeaders, Rows: [][]string{}})
	window := dayWindow(svc.Location())
	if text := svc.DetailedReport(window); !strings.HasPrefix(text, "Нет корректных записей за смену") {
		t.Fatalf("expected empty-window message, got %q", text)
	}
	if text := svc.Summary(window); !strings.Contains(text, "простоев не зафиксировано") {
		t.Fatalf("expected zero-total message, got %q", text)
	}
}

func TestReports_EmptySheetMissingColumn(t *testing.T) {
	headers := make([]string, 0, len(domain.SheetHeaders))
	for _, h := range domain.SheetHeaders {
		if h != domain.ColSite {
			headers = append(headers, h)
		}
	}
	svc, _ := newTestReports(t, domain.Snapshot{Headers: headers, Rows: [][]string{}})
	text := svc.DetailedReport(dayWindow(svc.Location()))
	if !strings.HasPrefix(text, "Ошибка конфигурации отчета: столбец 'Площадка'") {
		t.Fatalf("expected configuration error, got %q", text)
	}
}

func TestSummary_TopReasonsStableOrder(t *testing.T) {
	rows := [][]string{
		record("2025-06-27 09:00:00", "ОМЕТ", "ОМЕТ1", "кип", "10"),
		record("2025-06-27 09:30:00", "ОМЕТ", "ОМЕТ2", "обрыв", "30"),
		record("2025-06-27 10:00:00", "ОМЕТ", "ОМЕТ3", "механика", "10"),
		record("2025-06-27 11:00:00", "ОМЕТ", "ОМЕТ4", "", "5"),
		record("2025-06-27 12:00:00", "ОМЕТ", "ОМЕТ5", "обед", "1"),
	}
	svc, _ := newTestReports(t, domain.Snapshot{Headers: domain.SheetHeaders, Rows: rows})
	summary, err := svc.BuildShiftSummary(dayWindow(svc.Location()))
	if err != nil {
		t.Fatalf("summary: %v", err)
	}
	want := []ReasonTotal{{"обрыв", 30}, {"кип", 10}, {"механика", 10}}
	if len(summary.TopReasons) != len(want) {
		t.Fatalf("unexpected reasons %+v", summary.TopReasons)
	}
	for i := range want {
		if summary.TopReasons[i] != want[i] {
			t.Fatalf("reason %d: expected %+v, got %+v", i, want[i], summary.TopReasons[i])
		}
	}
	if summary.TotalMinutes != 56 {
		t.Fatalf("expected 56 minutes, got %d", summary.TotalMinutes)
	}
}

func TestSummary_ZeroTotal(t *testing.T) {
	svc, _ := newTestReports(t, domain.Snapshot{
		Headers: domain.SheetHeaders,
		Rows:    [][]string{record("2025-06-26 10:00:00", "ОМЕТ", "ОМЕТ1", "обрыв", "5")},
	})
	text := svc.Summary(dayWindow(svc.Location()))
	if text != "За смену (08:00-20:00) простоев не зафиксировано." {
		t.Fatalf("unexpected text %q", text)
	}
}

func TestReportService_Window(t *testing.T) {
	svc, _ := newTestReports(t, domain.Snapshot{})
	previous, err := svc.Window(domain.ShiftPrevious)
	if err != nil {
		t.Fatalf("window: %v", err)
	}
	current, err := svc.Window(domain.ShiftCurrent)
	if err != nil {
		t.Fatalf("window: %v", err)
	}
	if !previous.End.Equal(current.Start) || previous.Start.Hour() != 20 {
		t.Fatalf("unexpected windows %v %v", previous, current)
	}
}

func TestFormatHoursMinutes(t *testing.T) {
	cases := map[int]string{0: "0 ч 0 мин.", 45: "0 ч 45 мин.", 135: "2 ч 15 мин.", -61: "-1 ч 1 мин."}
	for in, want := range cases {
		if got := FormatHoursMinutes(in); got != want {
			t.Fatalf("FormatHoursMinutes(%d) = %q, want %q", in, got, want)
		}
	}
}

func TestEscapeMarkdown(t *testing.T) {
	if got := EscapeMarkdown("a_b*c[d`"); got != `a\_b\*c\[d` + "\\`" {
		t.Fatalf("unexpected escape %q", got)
	}
	if got := EscapeMarkdown(`C:\line\1`); got != `C:\line\1` {
		t.Fatalf("backslash must pass through, got %q", got)
	}
}
