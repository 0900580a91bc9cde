package chat

import (
	"fmt"
	"strings"
	"time"

	"storefront-chat/internal/config"
)

type WorkingDay struct {
	Day   time.Weekday
	Open  time.Duration
	Close time.Duration
}

type Availability struct {
	Online       bool
	Timezone     string
	WorkingHours []config.WorkingDayConfig
}

// AvailabilityPolicy answers whether live agents are reachable at a given instant.
// An empty schedule means the operator switch alone decides.
type AvailabilityPolicy struct {
	online   bool
	location *time.Location
	days     []WorkingDay
	raw      []config.WorkingDayConfig
}

func NewAvailabilityPolicy(cfg config.ChatConfig) (*AvailabilityPolicy, error) {
	tz := cfg.Timezone
	if tz == "" {
		tz = "UTC"
	}
	loc, err := time.LoadLocation(tz)
	if err != nil {
		return nil, fmt.Errorf("load timezone %q: %w", tz, err)
	}

	days := make([]WorkingDay, 0, len(cfg.WorkingHours))
	for _, wd := range cfg.WorkingHours {
		day, err := parseWeekday(wd.Day)
		if err != nil {
			return nil, err
		}
		open, err := parseClock(wd.Open)
		if err != nil {
			return nil, fmt.Errorf("working hours %s open: %w", wd.Day, err)
		}
		closeAt, err := parseClock(wd.Close)
		if err != nil {
			return nil, fmt.Errorf("working hours %s close: %w", wd.Day, err)
		}
		if closeAt <= open {
			return nil, fmt.Errorf("working hours %s: close must be after open", wd.Day)
		}
		days = append(days, WorkingDay{Day: day, Open: open, Close: closeAt})
	}

	return &AvailabilityPolicy{
		online:   cfg.Online,
		location: loc,
		days:     days,
		raw:      cfg.WorkingHours,
	}, nil
}

func (p *AvailabilityPolicy) At(now time.Time) Availability {
	return Availability{
		Online:       p.isOnline(now),
		Timezone:     p.location.String(),
		WorkingHours: p.raw,
	}
}

func (p *AvailabilityPolicy) isOnline(now time.Time) bool {
	if !p.online {
		return false
	}
	if len(p.days) == 0 {
		return true
	}

	local := now.In(p.location)
	midnight := time.Date(local.Year(), local.Month(), local.Day(), 0, 0, 0, 0, p.location)
	offset := local.Sub(midnight)

	for _, wd := range p.days {
		if wd.Day == local.Weekday() && offset >= wd.Open && offset < wd.Close {
			return true
		}
	}
	return false
}

func parseWeekday(s string) (time.Weekday, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "sunday", "sun":
		return time.Sunday, nil
	case "monday", "mon":
		return time.Monday, nil
	case "tuesday", "tue":
		return time.Tuesday, nil
	case "wednesday", "wed":
		return time.Wednesday, nil
	case "thursday", "thu":
		return time.Thursday, nil
	case "friday", "fri":
		return time.Friday, nil
	case "saturday", "sat":
		return time.Saturday, nil
	}
	return 0, fmt.Errorf("unknown weekday %q", s)
}

func parseClock(s string) (time.Duration, error) {
	t, err := time.Parse("15:04", strings.TrimSpace(s))
	if err != nil {
		return 0, err
	}
	return time.Duration(t.Hour())*time.Hour + time.Duration(t.Minute())*time.Minute, nil
}
