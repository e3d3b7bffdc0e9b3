package application

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"
	"time"
)

// Broadcaster runs one scheduled delivery.
type Broadcaster interface {
	Broadcast(ctx context.Context) BroadcastResult
}

type dailyTime struct {
	hour   int
	minute int
}

// Scheduler triggers the status broadcast at fixed plant-local times.
type Scheduler struct {
	broadcaster Broadcaster
	times       []dailyTime
	loc         *time.Location
	logger      *log.Logger
	lastRun     time.Time
}

// ParseDailyTimes parses a comma separated list of HH:MM values.
func ParseDailyTimes(value string) ([]string, error) {
	var out []string
	for _, part := range strings.Split(value, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		if _, err := time.Parse("15:04", part); err != nil {
			return nil, fmt.Errorf("scheduler: invalid time %q: %w", part, err)
		}
		out = append(out, part)
	}
	if len(out) == 0 {
		return nil, errors.New("scheduler: no times")
	}
	return out, nil
}

// NewScheduler constructs a Scheduler firing at each HH:MM of dailyAt in loc.
func NewScheduler(broadcaster Broadcaster, dailyAt []string, loc *time.Location, logger *log.Logger) (*Scheduler, error) {
	if broadcaster == nil {
		return nil, errors.New("scheduler: nil broadcaster")
	}
	if loc == nil {
		return nil, errors.New("scheduler: nil location")
	}
	s := &Scheduler{broadcaster: broadcaster, loc: loc, logger: logger}
	for _, value := range dailyAt {
		t, err := time.Parse("15:04", strings.TrimSpace(value))
		if err != nil {
			return nil, fmt.Errorf("scheduler: invalid time %q: %w", value, err)
		}
		s.times = append(s.times, dailyTime{hour: t.Hour(), minute: t.Minute()})
	}
	if len(s.times) == 0 {
		return nil, errors.New("scheduler: no times")
	}
	return s, nil
}

// Start begins the scheduler loop.
func (s *Scheduler) Start(ctx context.Context) {
	if s == nil {
		return
	}
	ticker := time.NewTicker(time.Minute)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			s.Tick(ctx, now)
		}
	}
}

// Tick runs the broadcast when now matches a scheduled minute that has not
// fired yet. It reports whether a broadcast ran.
func (s *Scheduler) Tick(ctx context.Context, now time.Time) bool {
	if !s.shouldRun(now) {
		return false
	}
	minute := now.In(s.loc).Truncate(time.Minute)
	if minute.Equal(s.lastRun) {
		return false
	}
	s.lastRun = minute
	result := s.broadcaster.Broadcast(ctx)
	if s.logger != nil {
		s.logger.Printf("status schedule: %s recipients=%d failed=%d", minute.Format("15:04"), result.Recipients, result.Failed)
	}
	return true
}

func (s *Scheduler) shouldRun(now time.Time) bool {
	local := now.In(s.loc)
	for _, t := range s.times {
		if local.Hour() == t.hour && local.Minute() == t.minute {
			return true
		}
	}
	return false
}
