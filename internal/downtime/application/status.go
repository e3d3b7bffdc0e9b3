package application

import (
	"errors"
	"fmt"
	"strings"

	"plant-downtime/internal/downtime/domain"
)

// ActiveDowntimeReader exposes the lines currently down.
type ActiveDowntimeReader interface {
	ActiveDowntimes() map[domain.LineKey]string
}

// LineStatus is the state of one line.
type LineStatus struct {
	Line   string `json:"line"`
	Down   bool   `json:"down"`
	Reason string `json:"reason,omitempty"`
}

// SiteStatus is the state of every line of one site.
type SiteStatus struct {
	Site  string       `json:"site"`
	Lines []LineStatus `json:"lines"`
}

// ProjectLineStatus lists every registered line in declared order, marking
// lines found in active as down. Sites without a lines entry are omitted.
func ProjectLineStatus(registry domain.Registry, active map[domain.LineKey]string) []SiteStatus {
	out := make([]SiteStatus, 0, len(registry.Sites))
	for _, site := range registry.Sites {
		lines, ok := registry.SiteLines(site.Key)
		if !ok {
			continue
		}
		status := SiteStatus{Site: site.Name, Lines: make([]LineStatus, 0, len(lines))}
		for _, line := range lines {
			reason, down := active[domain.LineKey{Site: site.Name, Line: line.Name}]
			status.Lines = append(status.Lines, LineStatus{Line: line.Name, Down: down, Reason: reason})
		}
		out = append(out, status)
	}
	return out
}

// RenderLineStatus renders the projection as chat Markdown.
func RenderLineStatus(sites []SiteStatus) string {
	parts := []string{"**Статус линий на текущий момент:**"}
	for _, site := range sites {
		parts = append(parts, fmt.Sprintf("\n🏭 **%s**", EscapeMarkdown(site.Site)))
		for _, line := range site.Lines {
			if line.Down {
				parts = append(parts, fmt.Sprintf("   🔴 %s: **ПРОСТОЙ** (%s)", EscapeMarkdown(line.Line), EscapeMarkdown(line.Reason)))
				continue
			}
			parts = append(parts, fmt.Sprintf("   🟢 %s: Работает", EscapeMarkdown(line.Line)))
		}
	}
	return strings.Join(parts, "\n")
}

// StatusService projects the live line status.
type StatusService struct {
	registry domain.Registry
	active   ActiveDowntimeReader
}

// NewStatusService constructs a status service.
func NewStatusService(registry domain.Registry, active ActiveDowntimeReader) (*StatusService, error) {
	if active == nil {
		return nil, errors.New("status service: nil active reader")
	}
	return &StatusService{registry: registry, active: active}, nil
}

// Board returns the structured line status.
func (s *StatusService) Board() []SiteStatus {
	return ProjectLineStatus(s.registry, s.active.ActiveDowntimes())
}

// Text returns the rendered line status.
func (s *StatusService) Text() string {
	return RenderLineStatus(s.Board())
}
