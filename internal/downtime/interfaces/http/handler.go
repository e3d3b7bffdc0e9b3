package http

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"time"

	"plant-downtime/internal/audit"
	"plant-downtime/internal/auth"
	"plant-downtime/internal/downtime/application"
	"plant-downtime/internal/downtime/domain"
)

const timeLayout = time.RFC3339

// Refresher reloads the worksheet cache.
type Refresher interface {
	Refresh(ctx context.Context) error
}

// Handler serves the reports API.
type Handler struct {
	reports   *application.ReportService
	status    *application.StatusService
	refresher Refresher
	auditLog  audit.Logger
	fontPath  string
	logger    *log.Logger
}

// NewHandler constructs the reports API handler.
func NewHandler(reports *application.ReportService, status *application.StatusService, refresher Refresher, auditLog audit.Logger, fontPath string, logger *log.Logger) (*Handler, error) {
	if reports == nil || status == nil {
		return nil, errors.New("reports api: missing service")
	}
	return &Handler{
		reports:   reports,
		status:    status,
		refresher: refresher,
		auditLog:  auditLog,
		fontPath:  fontPath,
		logger:    logger,
	}, nil
}

// Register mounts the API routes on mux.
func (h *Handler) Register(mux *http.ServeMux) {
	mux.HandleFunc("/api/v1/reports/shift", h.ShiftReport)
	mux.HandleFunc("/api/v1/reports/summary", h.Summary)
	mux.HandleFunc("/api/v1/reports/shift.xlsx", h.ExportXLSX)
	mux.HandleFunc("/api/v1/reports/shift.pdf", h.ExportPDF)
	mux.HandleFunc("/api/v1/lines/status", h.LineStatus)
	mux.HandleFunc("/api/v1/cache/refresh", h.RefreshCache)
}

type windowDTO struct {
	Start string `json:"start"`
	End   string `json:"end"`
}

type recordDTO struct {
	Timestamp        string `json:"timestamp"`
	Line             string `json:"line"`
	Direction        string `json:"direction"`
	DurationMinutes  int    `json:"duration_minutes"`
	Description      string `json:"description"`
	ResponsibleGroup string `json:"responsible_group"`
	InitiatorComment string `json:"initiator_comment,omitempty"`
}

type siteDTO struct {
	Site    string      `json:"site"`
	Records []recordDTO `json:"records"`
}

type shiftReportDTO struct {
	Window       windowDTO `json:"window"`
	TotalMinutes int       `json:"total_minutes"`
	Sites        []siteDTO `json:"sites"`
	CacheError   string    `json:"cache_error,omitempty"`
	Stale        bool      `json:"stale"`
}

type reasonDTO struct {
	Reason  string `json:"reason"`
	Minutes int    `json:"minutes"`
}

type summaryDTO struct {
	Window       windowDTO   `json:"window"`
	TotalMinutes int         `json:"total_minutes"`
	TopReasons   []reasonDTO `json:"top_reasons"`
	CacheError   string      `json:"cache_error,omitempty"`
	Stale        bool        `json:"stale"`
}

// ShiftReport handles GET /api/v1/reports/shift.
func (h *Handler) ShiftReport(w http.ResponseWriter, r *http.Request) {
	window, ok := h.resolveWindow(w, r)
	if !ok {
		return
	}
	if r.URL.Query().Get("format") != "json" {
		writeText(w, h.reports.DetailedReport(window))
		return
	}
	report, err := h.reports.BuildShiftReport(window)
	if err != nil {
		writeConfigError(w, err)
		return
	}
	writeJSON(w, toShiftReportDTO(report))
}

// Summary handles GET /api/v1/reports/summary.
func (h *Handler) Summary(w http.ResponseWriter, r *http.Request) {
	window, ok := h.resolveWindow(w, r)
	if !ok {
		return
	}
	if r.URL.Query().Get("format") != "json" {
		writeText(w, h.reports.Summary(window))
		return
	}
	summary, err := h.reports.BuildShiftSummary(window)
	if err != nil {
		writeConfigError(w, err)
		return
	}
	dto := summaryDTO{
		Window:       toWindowDTO(summary.Window),
		TotalMinutes: summary.TotalMinutes,
		TopReasons:   make([]reasonDTO, 0, len(summary.TopReasons)),
		CacheError:   summary.CacheError,
		Stale:        summary.Stale,
	}
	for _, reason := range summary.TopReasons {
		dto.TopReasons = append(dto.TopReasons, reasonDTO{Reason: reason.Reason, Minutes: reason.Minutes})
	}
	writeJSON(w, dto)
}

// LineStatus handles GET /api/v1/lines/status.
func (h *Handler) LineStatus(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	if r.URL.Query().Get("format") == "text" {
		writeText(w, h.status.Text())
		return
	}
	writeJSON(w, h.status.Board())
}

// ExportXLSX handles GET /api/v1/reports/shift.xlsx.
func (h *Handler) ExportXLSX(w http.ResponseWriter, r *http.Request) {
	window, ok := h.resolveWindow(w, r)
	if !ok {
		return
	}
	report, err := h.reports.BuildShiftReport(window)
	if err != nil {
		writeConfigError(w, err)
		return
	}
	summary, err := h.reports.BuildShiftSummary(window)
	if err != nil {
		writeConfigError(w, err)
		return
	}
	data, err := BuildShiftReportXLSX(report, summary, h.reports.Location())
	if err != nil {
		h.logf("reports api: xlsx export: %v", err)
		http.Error(w, "export error", http.StatusInternalServerError)
		return
	}
	h.auditExport(r, "xlsx", window)
	writeFile(w, "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet", exportName(window, h.reports.Location(), "xlsx"), data)
}

// ExportPDF handles GET /api/v1/reports/shift.pdf.
func (h *Handler) ExportPDF(w http.ResponseWriter, r *http.Request) {
	window, ok := h.resolveWindow(w, r)
	if !ok {
		return
	}
	report, err := h.reports.BuildShiftReport(window)
	if err != nil {
		writeConfigError(w, err)
		return
	}
	data, err := BuildShiftReportPDF(report, h.reports.Location(), h.fontPath)
	if err != nil {
		h.logf("reports api: pdf export: %v", err)
		http.Error(w, "export error", http.StatusInternalServerError)
		return
	}
	h.auditExport(r, "pdf", window)
	writeFile(w, "application/pdf", exportName(window, h.reports.Location(), "pdf"), data)
}

// RefreshCache handles POST /api/v1/cache/refresh.
func (h *Handler) RefreshCache(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	if h.refresher == nil {
		http.Error(w, "refresh not configured", http.StatusServiceUnavailable)
		return
	}
	if err := h.refresher.Refresh(r.Context()); err != nil {
		http.Error(w, "refresh failed: "+err.Error(), http.StatusBadGateway)
		return
	}
	h.record(r, audit.Entry{Action: audit.ActionCacheRefresh}, nil)
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) resolveWindow(w http.ResponseWriter, r *http.Request) (domain.ShiftWindow, bool) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return domain.ShiftWindow{}, false
	}
	shift, err := domain.ParseShift(r.URL.Query().Get("shift"))
	if err != nil {
		http.Error(w, "shift must be current or previous", http.StatusBadRequest)
		return domain.ShiftWindow{}, false
	}
	window, err := h.reports.Window(shift)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return domain.ShiftWindow{}, false
	}
	return window, true
}

func (h *Handler) auditExport(r *http.Request, format string, window domain.ShiftWindow) {
	h.record(r, audit.Entry{
		Action:       audit.ActionReportExport,
		ResourceType: "shift_report",
		ResourceID:   window.Start.UTC().Format(timeLayout),
	}, map[string]string{"format": format})
}

// record fills the caller identity from the request and writes entry.
func (h *Handler) record(r *http.Request, entry audit.Entry, meta map[string]string) {
	ctx := r.Context()
	entry.Actor = auth.SubjectFromContext(ctx)
	entry.Role = string(auth.RoleFromContext(ctx))
	entry.Source = audit.SourceHTTP
	if plant := auth.PlantIDFromContext(ctx); plant != "" {
		if meta == nil {
			meta = make(map[string]string, 1)
		}
		meta["plant"] = plant
	}
	if len(meta) > 0 {
		entry.Metadata = audit.Metadata(meta)
	}
	if err := audit.Record(ctx, h.auditLog, entry); err != nil {
		h.logf("audit %s: %v", entry.Action, err)
	}
}

func (h *Handler) logf(format string, args ...any) {
	if h.logger != nil {
		h.logger.Printf(format, args...)
	}
}

func toWindowDTO(window domain.ShiftWindow) windowDTO {
	return windowDTO{Start: window.Start.Format(timeLayout), End: window.End.Format(timeLayout)}
}

func toShiftReportDTO(report application.ShiftReport) shiftReportDTO {
	dto := shiftReportDTO{
		Window:       toWindowDTO(report.Window),
		TotalMinutes: report.TotalMinutes,
		Sites:        make([]siteDTO, 0, len(report.Sites)),
		CacheError:   report.CacheError,
		Stale:        report.Stale,
	}
	for _, site := range report.Sites {
		out := siteDTO{Site: site.Site, Records: make([]recordDTO, 0, len(site.Records))}
		for _, record := range site.Records {
			item := recordDTO{
				Timestamp:        record.Timestamp.Format(timeLayout),
				Line:             record.LineSection,
				Direction:        record.Direction,
				DurationMinutes:  record.DurationMinutes,
				Description:      record.Description,
				ResponsibleGroup: groupOrDefault(record.ResponsibleGroup),
			}
			if record.HasInitiatorComment() {
				item.InitiatorComment = record.InitiatorComment
			}
			out.Records = append(out.Records, item)
		}
		dto.Sites = append(dto.Sites, out)
	}
	return dto
}

func exportName(window domain.ShiftWindow, loc *time.Location, ext string) string {
	return "shift-" + window.Start.In(loc).Format("2006-01-02-1504") + "." + ext
}

func writeConfigError(w http.ResponseWriter, err error) {
	var missing *domain.MissingColumnError
	if errors.As(err, &missing) {
		http.Error(w, "missing column: "+missing.Column, http.StatusUnprocessableEntity)
		return
	}
	http.Error(w, "report error", http.StatusInternalServerError)
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(v)
}

func writeText(w http.ResponseWriter, text string) {
	w.Header().Set("Content-Type", "text/markdown; charset=utf-8")
	_, _ = w.Write([]byte(text))
}

func writeFile(w http.ResponseWriter, contentType, name string, data []byte) {
	w.Header().Set("Content-Type", contentType)
	w.Header().Set("Content-Disposition", `attachment; filename="`+name+`"`)
	_, _ = w.Write(data)
}
