package application

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strconv"
	"strings"
	"time"

	"plant-downtime/internal/audit"
	"plant-downtime/internal/downtime/domain"
	"plant-downtime/internal/downtime/infrastructure/cache"
	"plant-downtime/internal/observability/metrics"
)

const (
	sourceBackfill = "backfill"
	sourceIncident = "incident"

	manualCommentLayout = "02.01 15:04"
	adminAuthorSuffix   = " (внесено адм.)"
	unknownUsername     = "N/A"
)

// RecordWriter appends records to the downtime worksheet.
type RecordWriter interface {
	AppendDowntime(ctx context.Context, values map[string]string) error
	NextSequenceNumber(ctx context.Context) (int, error)
}

// CacheRefresher reloads the worksheet snapshot.
type CacheRefresher interface {
	Refresh(ctx context.Context) error
}

// ActiveDowntimeStore tracks lines currently down.
type ActiveDowntimeStore interface {
	BeginDowntime(key domain.LineKey, downtime cache.ActiveDowntime) bool
	EndDowntime(key domain.LineKey) (cache.ActiveDowntime, bool)
	ActiveDowntime(key domain.LineKey) (cache.ActiveDowntime, bool)
}

// Author identifies the chat user writing a record.
type Author struct {
	ID       string
	Username string
	FullName string
}

// PastDowntime is a completed downtime entered after the fact.
type PastDowntime struct {
	SiteKey          string
	LineKey          string
	Reason           string
	Start            time.Time
	End              time.Time
	Description      string
	ResponsibleGroup string
}

// SavedRecord describes a record appended to the worksheet.
type SavedRecord struct {
	Sequence        int
	Site            string
	Line            string
	DurationMinutes int
	Shift           domain.ShiftWindow
}

// RecordService writes downtime records and tracks live downtimes.
type RecordService struct {
	registry domain.Registry
	writer   RecordWriter
	refresh  CacheRefresher
	active   ActiveDowntimeStore
	loc      *time.Location
	clock    Clock
	auditLog audit.Logger
	logger   *log.Logger
}

// NewRecordService constructs a record service.
func NewRecordService(registry domain.Registry, writer RecordWriter, refresh CacheRefresher, active ActiveDowntimeStore, loc *time.Location, clock Clock, auditLog audit.Logger, logger *log.Logger) (*RecordService, error) {
	if writer == nil || active == nil {
		return nil, errors.New("record service: missing dependency")
	}
	if loc == nil {
		return nil, domain.ErrNilLocation
	}
	if clock == nil {
		clock = systemClock{}
	}
	return &RecordService{
		registry: registry,
		writer:   writer,
		refresh:  refresh,
		active:   active,
		loc:      loc,
		clock:    clock,
		auditLog: auditLog,
		logger:   logger,
	}, nil
}

// ParseFormTime parses an admin-typed moment as plant-local time.
func ParseFormTime(value string, loc *time.Location) (time.Time, error) {
	if loc == nil {
		return time.Time{}, domain.ErrNilLocation
	}
	t, err := time.ParseInLocation(domain.FormInputLayout, strings.TrimSpace(value), loc)
	if err != nil {
		return time.Time{}, fmt.Errorf("downtime: invalid form time %q: %w", value, err)
	}
	return t, nil
}

// DurationMinutes returns the whole minutes between start and end, at least
// one. End must be after start.
func DurationMinutes(start, end time.Time) (int, error) {
	if !end.After(start) {
		return 0, domain.ErrInvalidPeriod
	}
	minutes := int(end.Sub(start) / time.Minute)
	if minutes < 1 {
		minutes = 1
	}
	return minutes, nil
}

// SavePastDowntime appends a back-filled record and refreshes the cache.
func (s *RecordService) SavePastDowntime(ctx context.Context, author Author, entry PastDowntime) (SavedRecord, error) {
	site, line, err := s.resolveLine(entry.SiteKey, entry.LineKey)
	if err != nil {
		return SavedRecord{}, err
	}
	minutes, err := DurationMinutes(entry.Start, entry.End)
	if err != nil {
		return SavedRecord{}, err
	}
	group := strings.TrimSpace(entry.ResponsibleGroup)
	if group == "" {
		group = domain.UnspecifiedGroup
	}
	comment := fmt.Sprintf("Запись внесена вручную %s - %s",
		entry.Start.In(s.loc).Format(manualCommentLayout),
		entry.End.In(s.loc).Format(manualCommentLayout))

	saved, err := s.append(ctx, sourceBackfill, author, adminAuthorSuffix, recordFields{
		site:        site.Name,
		line:        line.Name,
		reason:      entry.Reason,
		description: entry.Description,
		group:       group,
		comment:     comment,
		start:       entry.Start,
		minutes:     minutes,
	})
	if err != nil {
		return SavedRecord{}, err
	}
	s.audit(ctx, author, audit.ActionDowntimeBackfill, site.Name, saved)
	return saved, nil
}

// BeginDowntime marks a line as down with reason.
func (s *RecordService) BeginDowntime(ctx context.Context, author Author, siteKey, lineKey, reason string) (domain.LineKey, error) {
	site, line, err := s.resolveLine(siteKey, lineKey)
	if err != nil {
		return domain.LineKey{}, err
	}
	if strings.TrimSpace(reason) == "" {
		return domain.LineKey{}, ErrUnknownReason
	}
	key := domain.LineKey{Site: site.Name, Line: line.Name}
	ok := s.active.BeginDowntime(key, cache.ActiveDowntime{
		Reason:     reason,
		StartedAt:  s.clock.Now(),
		ReportedBy: author.ID,
	})
	if !ok {
		return key, ErrLineAlreadyDown
	}
	if err := audit.Record(ctx, s.auditLog, audit.Entry{
		Actor:        author.ID,
		Action:       audit.ActionDowntimeBegin,
		ResourceType: "line",
		ResourceID:   line.Name,
		Site:         site.Name,
		Source:       audit.SourceChat,
		Metadata:     audit.Metadata(map[string]string{"reason": reason}),
	}); err != nil {
		s.logf("audit %s: %v", audit.ActionDowntimeBegin, err)
	}
	return key, nil
}

// FinishDowntime writes the record of a running downtime and clears the line.
// The line stays down when the write fails.
func (s *RecordService) FinishDowntime(ctx context.Context, author Author, key domain.LineKey, description, comment string) (SavedRecord, error) {
	running, ok := s.active.ActiveDowntime(key)
	if !ok {
		return SavedRecord{}, ErrLineNotDown
	}
	minutes, err := DurationMinutes(running.StartedAt, s.clock.Now())
	if err != nil {
		minutes = 1
	}
	if strings.TrimSpace(comment) == "" {
		comment = domain.NoCommentPlaceholder
	}
	saved, err := s.append(ctx, sourceIncident, author, "", recordFields{
		site:        key.Site,
		line:        key.Line,
		reason:      running.Reason,
		description: description,
		group:       domain.UnspecifiedGroup,
		comment:     comment,
		start:       running.StartedAt,
		minutes:     minutes,
	})
	if err != nil {
		return SavedRecord{}, err
	}
	s.active.EndDowntime(key)
	s.audit(ctx, author, audit.ActionDowntimeFinish, key.Site, saved)
	return saved, nil
}

type recordFields struct {
	site        string
	line        string
	reason      string
	description string
	group       string
	comment     string
	start       time.Time
	minutes     int
}

func (s *RecordService) append(ctx context.Context, source string, author Author, nameSuffix string, fields recordFields) (SavedRecord, error) {
	seq, err := s.writer.NextSequenceNumber(ctx)
	if err != nil {
		return SavedRecord{}, fmt.Errorf("downtime: next sequence: %w", err)
	}
	window := domain.ShiftWindowFor(fields.start, s.loc)
	username := strings.TrimSpace(author.Username)
	if username == "" {
		username = unknownUsername
	}
	values := map[string]string{
		domain.ColSequence:         strconv.Itoa(seq),
		domain.ColTimestamp:        domain.FormatSheetTimestamp(s.clock.Now(), s.loc),
		domain.ColUserID:           author.ID,
		domain.ColUsername:         username,
		domain.ColUserFullName:     author.FullName + nameSuffix,
		domain.ColSite:             fields.site,
		domain.ColLineSection:      fields.line,
		domain.ColDirection:        fields.reason,
		domain.ColDescription:      fields.description,
		domain.ColDurationMinutes:  strconv.Itoa(fields.minutes),
		domain.ColShiftStart:       domain.FormatSheetTimestamp(window.Start, s.loc),
		domain.ColShiftEnd:         domain.FormatSheetTimestamp(window.End, s.loc),
		domain.ColResponsibleGroup: fields.group,
		domain.ColInitiatorComment: fields.comment,
	}
	if err := s.writer.AppendDowntime(ctx, values); err != nil {
		return SavedRecord{}, fmt.Errorf("downtime: append record: %w", err)
	}
	metrics.IncRecordWritten(source)
	if s.refresh != nil {
		if err := s.refresh.Refresh(ctx); err != nil {
			s.logf("record %d saved, cache refresh failed: %v", seq, err)
		}
	}
	return SavedRecord{
		Sequence:        seq,
		Site:            fields.site,
		Line:            fields.line,
		DurationMinutes: fields.minutes,
		Shift:           window,
	}, nil
}

func (s *RecordService) resolveLine(siteKey, lineKey string) (domain.Site, domain.Line, error) {
	site, err := s.registry.Site(siteKey)
	if err != nil {
		return domain.Site{}, domain.Line{}, err
	}
	line, err := s.registry.Line(siteKey, lineKey)
	if err != nil {
		return domain.Site{}, domain.Line{}, err
	}
	return site, line, nil
}

func (s *RecordService) audit(ctx context.Context, author Author, action, site string, saved SavedRecord) {
	err := audit.Record(ctx, s.auditLog, audit.Entry{
		Actor:        author.ID,
		Action:       action,
		ResourceType: "downtime",
		ResourceID:   strconv.Itoa(saved.Sequence),
		Site:         site,
		Source:       audit.SourceChat,
		Metadata: audit.Metadata(map[string]any{
			"line":     saved.Line,
			"duration": saved.DurationMinutes,
		}),
	})
	if err != nil {
		s.logf("audit %s: %v", action, err)
	}
}

func (s *RecordService) logf(format string, args ...any) {
	if s.logger != nil {
		s.logger.Printf(format, args...)
	}
}
