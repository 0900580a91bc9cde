package widget

import (
	"context"
	"fmt"
	"strings"

	"storefront-chat/internal/dto"
)

type WorkingDay struct {
	Day   string
	Open  string
	Close string
}

type Availability struct {
	Online       bool
	Timezone     string
	WorkingHours []WorkingDay
}

// Summary is the informational text shown when chat is offline.
func (a Availability) Summary() string {
	if len(a.WorkingHours) == 0 {
		return "Chat support is currently offline."
	}
	days := make([]string, 0, len(a.WorkingHours))
	for _, d := range a.WorkingHours {
		days = append(days, fmt.Sprintf("%s %s-%s", d.Day, d.Open, d.Close))
	}
	tz := a.Timezone
	if tz == "" {
		tz = "UTC"
	}
	return fmt.Sprintf("Chat support is offline. Hours (%s): %s", tz, strings.Join(days, ", "))
}

func availabilityFromDTO(a dto.Availability) Availability {
	out := Availability{Online: a.Online, Timezone: a.Timezone}
	for _, d := range a.WorkingHours {
		out.WorkingHours = append(out.WorkingHours, WorkingDay{Day: d.Day, Open: d.Open, Close: d.Close})
	}
	return out
}

// fetchAvailability treats an unreachable availability endpoint as online; opening then
// fails with the more specific session error if the backend is really down.
func (c *Controller) fetchAvailability(ctx context.Context) Availability {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	a, err := c.api.Availability(ctx)
	if err != nil {
		c.log.Warn().Err(err).Msg("availability check failed")
		return Availability{Online: true}
	}
	return availabilityFromDTO(a)
}
