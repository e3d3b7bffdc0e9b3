package application

import (
	"errors"
	"fmt"
	"log"
	"sort"
	"strings"
	"time"

	"plant-downtime/internal/downtime/domain"
	"plant-downtime/internal/observability/metrics"
)

const (
	reportKindDetailed = "detailed"
	reportKindSummary  = "summary"

	windowLabelLayout = "15:04 02.01"
	defaultTopN       = 3
)

// SnapshotReader exposes the cached worksheet.
type SnapshotReader interface {
	Snapshot() domain.Snapshot
}

// Clock provides time.
type Clock interface {
	Now() time.Time
}

// SiteDowntimes groups the in-window records of one site.
type SiteDowntimes struct {
	Site    string
	Records []domain.DowntimeRecord
}

// ShiftReport is the aggregated detailed report of one window.
type ShiftReport struct {
	Window       domain.ShiftWindow
	Sites        []SiteDowntimes
	TotalMinutes int
	NoData       bool
	CacheError   string
	Stale        bool
}

// Empty reports whether no row fell inside the window.
func (r ShiftReport) Empty() bool {
	return len(r.Sites) == 0
}

// ReasonTotal is the minute total of one downtime direction.
type ReasonTotal struct {
	Reason  string
	Minutes int
}

// ShiftSummary is the aggregated summary of one window.
type ShiftSummary struct {
	Window       domain.ShiftWindow
	TotalMinutes int
	TopReasons   []ReasonTotal
	NoData       bool
	CacheError   string
	Stale        bool
}

// ReportService builds shift reports from the cached worksheet.
type ReportService struct {
	snapshots SnapshotReader
	loc       *time.Location
	topN      int
	clock     Clock
	logger    *log.Logger
}

// ReportOption configures the report service.
type ReportOption func(*ReportService)

// WithTopN sets the number of reasons in the summary.
func WithTopN(n int) ReportOption {
	return func(s *ReportService) {
		if n > 0 {
			s.topN = n
		}
	}
}

// WithReportClock overrides the clock used to resolve windows.
func WithReportClock(clock Clock) ReportOption {
	return func(s *ReportService) {
		if clock != nil {
			s.clock = clock
		}
	}
}

// WithReportLogger sets the logger.
func WithReportLogger(logger *log.Logger) ReportOption {
	return func(s *ReportService) {
		s.logger = logger
	}
}

// NewReportService constructs a report service.
func NewReportService(snapshots SnapshotReader, loc *time.Location, opts ...ReportOption) (*ReportService, error) {
	if snapshots == nil {
		return nil, errors.New("report service: nil snapshot reader")
	}
	if loc == nil {
		return nil, domain.ErrNilLocation
	}
	s := &ReportService{
		snapshots: snapshots,
		loc:       loc,
		topN:      defaultTopN,
		clock:     systemClock{},
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// Location returns the plant timezone.
func (s *ReportService) Location() *time.Location { return s.loc }

// Window resolves a shift selector against the current time.
func (s *ReportService) Window(shift domain.Shift) (domain.ShiftWindow, error) {
	return domain.ShiftWindowAt(s.clock.Now(), shift, s.loc)
}

// BuildShiftReport aggregates the detailed report of window. It returns an
// error wrapping domain.ErrMissingColumn when the header row lacks a
// required column; a snapshot without data yields an empty report.
func (s *ReportService) BuildShiftReport(window domain.ShiftWindow) (ShiftReport, error) {
	return s.buildShiftReport(s.snapshots.Snapshot(), window)
}

func (s *ReportService) buildShiftReport(snap domain.Snapshot, window domain.ShiftWindow) (ShiftReport, error) {
	report := ShiftReport{Window: window, CacheError: snap.Error, Stale: snap.Stale}
	if !snap.HasData() {
		report.NoData = true
		return report, nil
	}
	idx, err := domain.ResolveColumns(snap.Headers, domain.DetailedReportColumns)
	if err != nil {
		return report, err
	}

	bySite := make(map[string][]domain.DowntimeRecord)
	for i, row := range snap.Rows {
		record, ok := s.project(row, i, idx, window, reportKindDetailed)
		if !ok {
			continue
		}
		bySite[record.Site] = append(bySite[record.Site], record)
		report.TotalMinutes += record.DurationMinutes
	}

	sites := make([]string, 0, len(bySite))
	for site := range bySite {
		sites = append(sites, site)
	}
	sort.Strings(sites)
	for _, site := range sites {
		report.Sites = append(report.Sites, SiteDowntimes{Site: site, Records: bySite[site]})
	}
	return report, nil
}

// BuildShiftSummary aggregates the summary of window.
func (s *ReportService) BuildShiftSummary(window domain.ShiftWindow) (ShiftSummary, error) {
	return s.buildShiftSummary(s.snapshots.Snapshot(), window)
}

func (s *ReportService) buildShiftSummary(snap domain.Snapshot, window domain.ShiftWindow) (ShiftSummary, error) {
	summary := ShiftSummary{Window: window, CacheError: snap.Error, Stale: snap.Stale}
	if !snap.HasData() {
		summary.NoData = true
		return summary, nil
	}
	idx, err := domain.ResolveColumns(snap.Headers, domain.SummaryColumns)
	if err != nil {
		return summary, err
	}

	totals := make(map[string]int)
	var order []string
	for i, row := range snap.Rows {
		record, ok := s.project(row, i, idx, window, reportKindSummary)
		if !ok {
			continue
		}
		reason := record.Direction
		if reason == "" {
			reason = domain.UnspecifiedGroup
		}
		if _, seen := totals[reason]; !seen {
			order = append(order, reason)
		}
		totals[reason] += record.DurationMinutes
		summary.TotalMinutes += record.DurationMinutes
	}

	reasons := make([]ReasonTotal, 0, len(order))
	for _, reason := range order {
		reasons = append(reasons, ReasonTotal{Reason: reason, Minutes: totals[reason]})
	}
	sort.SliceStable(reasons, func(i, j int) bool {
		return reasons[i].Minutes > reasons[j].Minutes
	})
	if len(reasons) > s.topN {
		reasons = reasons[:s.topN]
	}
	summary.TopReasons = reasons
	return summary, nil
}

// project turns one row into an in-window record. Rows outside the window
// are dropped silently; malformed in-window rows are logged.
func (s *ReportService) project(row []string, i int, idx domain.ColumnIndex, window domain.ShiftWindow, kind string) (domain.DowntimeRecord, bool) {
	record, err := domain.ProjectRecord(row, idx, s.loc)
	switch {
	case err == nil:
		return record, window.Contains(record.Timestamp)
	case errors.Is(err, domain.ErrShortRow):
		metrics.IncRowSkipped("short_row")
	case errors.Is(err, domain.ErrEmptyTimestamp):
		metrics.IncRowSkipped("empty_timestamp")
	case errors.Is(err, domain.ErrInvalidTimestamp):
		metrics.IncRowSkipped("invalid_timestamp")
		s.logf("%s report: skip row %d: %v", kind, i+2, err)
	case errors.Is(err, domain.ErrInvalidDuration):
		if !window.Contains(record.Timestamp) {
			return domain.DowntimeRecord{}, false
		}
		metrics.IncRowSkipped("invalid_duration")
		s.logf("%s report: skip row %d: %v", kind, i+2, err)
	default:
		s.logf("%s report: skip row %d: %v", kind, i+2, err)
	}
	return domain.DowntimeRecord{}, false
}

// DetailedReport renders the detailed report of window as chat Markdown.
func (s *ReportService) DetailedReport(window domain.ShiftWindow) string {
	start := s.clock.Now()
	report, err := s.BuildShiftReport(window)
	text, result := s.renderShiftReport(report, err)
	metrics.ObserveReport(reportKindDetailed, result, s.clock.Now().Sub(start))
	return text
}

func (s *ReportService) renderShiftReport(report ShiftReport, err error) (string, string) {
	status := cacheStatus(report.CacheError, report.Stale)
	var missing *domain.MissingColumnError
	switch {
	case errors.As(err, &missing):
		s.logf("detailed report: %v", err)
		return fmt.Sprintf("Ошибка конфигурации отчета: столбец '%s' не найден в таблице.%s", missing.Column, status), metrics.ResultError
	case err != nil:
		s.logf("detailed report: %v", err)
		return "Ошибка при формировании отчета." + status, metrics.ResultError
	}
	if report.NoData {
		return "Нет данных о простоях для анализа." + status, metrics.ResultEmpty
	}
	if report.Empty() {
		return fmt.Sprintf("Нет корректных записей за смену с %s по %s.%s",
			s.label(report.Window.Start), s.label(report.Window.End), status), metrics.ResultEmpty
	}

	var b strings.Builder
	fmt.Fprintf(&b, "**📊 Отчет за смену с %s по %s**\n", s.label(report.Window.Start), s.label(report.Window.End))
	groups := make([]string, 0, len(report.Sites))
	for _, site := range report.Sites {
		entries := make([]string, 0, len(site.Records)+1)
		entries = append(entries, fmt.Sprintf("\n🏭 **%s**", EscapeMarkdown(site.Site)))
		for _, record := range site.Records {
			entries = append(entries, renderEntry(record))
		}
		groups = append(groups, strings.Join(entries, "\n"))
	}
	b.WriteString(strings.Join(groups, "\n\n"))
	fmt.Fprintf(&b, "\n\n**⏱️ Общее время простоя: %d минут.**", report.TotalMinutes)
	b.WriteString(status)
	return b.String(), metrics.ResultSuccess
}

func renderEntry(record domain.DowntimeRecord) string {
	group := record.ResponsibleGroup
	if group == "" {
		group = domain.UnspecifiedGroup
	}
	entry := fmt.Sprintf("⚙️ **%s**: %s (%d мин.)\n   📝 _%s_\n   👥 %s",
		EscapeMarkdown(record.LineSection),
		EscapeMarkdown(record.Direction),
		record.DurationMinutes,
		EscapeMarkdown(record.Description),
		EscapeMarkdown(group),
	)
	if record.HasInitiatorComment() {
		entry += fmt.Sprintf("\n   🗣️ Комментарий инициатора: _%s_", EscapeMarkdown(record.InitiatorComment))
	}
	return entry
}

// Summary renders the shift summary of window as chat Markdown.
func (s *ReportService) Summary(window domain.ShiftWindow) string {
	start := s.clock.Now()
	summary, err := s.BuildShiftSummary(window)
	text, result := s.renderSummary(summary, err)
	metrics.ObserveReport(reportKindSummary, result, s.clock.Now().Sub(start))
	return text
}

func (s *ReportService) renderSummary(summary ShiftSummary, err error) (string, string) {
	status := cacheStatus(summary.CacheError, summary.Stale)
	var missing *domain.MissingColumnError
	switch {
	case errors.As(err, &missing):
		s.logf("summary: %v", err)
		return fmt.Sprintf("Ошибка конфигурации сводки: столбец '%s' не найден.%s", missing.Column, status), metrics.ResultError
	case err != nil:
		s.logf("summary: %v", err)
		return "Ошибка при формировании сводки." + status, metrics.ResultError
	}
	if summary.NoData {
		return "Нет данных для сводки." + status, metrics.ResultEmpty
	}
	if summary.TotalMinutes == 0 {
		return fmt.Sprintf("За смену (%s-%s) простоев не зафиксировано.%s",
			summary.Window.Start.In(s.loc).Format("15:04"),
			summary.Window.End.In(s.loc).Format("15:04"), status), metrics.ResultEmpty
	}

	var b strings.Builder
	fmt.Fprintf(&b, "**Сводка за смену (%s)**\n\n", s.label(summary.Window.Start))
	fmt.Fprintf(&b, "Общий простой: **%s**\n\n", FormatHoursMinutes(summary.TotalMinutes))
	fmt.Fprintf(&b, "**Топ-%d причины:**", len(summary.TopReasons))
	for _, reason := range summary.TopReasons {
		fmt.Fprintf(&b, "\n- %s (%d мин.)", EscapeMarkdown(reason.Reason), reason.Minutes)
	}
	b.WriteString(status)
	return b.String(), metrics.ResultSuccess
}

func (s *ReportService) label(t time.Time) string {
	return t.In(s.loc).Format(windowLabelLayout)
}

func (s *ReportService) logf(format string, args ...any) {
	if s.logger != nil {
		s.logger.Printf(format, args...)
	}
}

// cacheStatus renders the warning suffix carried by every report outcome.
func cacheStatus(cacheErr string, stale bool) string {
	var status string
	if cacheErr != "" {
		status += fmt.Sprintf("\n\n⚠️ **Кэш-ошибка: %s.**", EscapeMarkdown(cacheErr))
	}
	if stale {
		status += "\n\n⚠️ **Данные могут быть неактуальны (кэш устарел).**"
	}
	return status
}

type systemClock struct{}

func (systemClock) Now() time.Time { return time.Now() }
