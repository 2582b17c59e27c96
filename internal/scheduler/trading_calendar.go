package scheduler

import (
	"time"

	"github.com/rs/zerolog"
)

// TradingCalendar answers whether US equity markets trade at a given
// moment. The scheduled analysis run is gated on it so reports are only
// produced for sessions that actually happened.
type TradingCalendar struct {
	tz       *time.Location
	holidays map[string]string
	log      zerolog.Logger
}

// MarketStatus is the calendar snapshot surfaced by the API
type MarketStatus struct {
	TradingDay bool   `json:"trading_day"`
	IsOpen     bool   `json:"is_open"`
	Holiday    string `json:"holiday,omitempty"`
	Timezone   string `json:"timezone"`
}

// NewTradingCalendar creates the NYSE calendar. Holiday data is
// year-specific and currently covers 2026.
func NewTradingCalendar(log zerolog.Logger) *TradingCalendar {
	tz, err := time.LoadLocation("America/New_York")
	if err != nil {
		tz = time.UTC
	}

	cal := &TradingCalendar{
		tz:       tz,
		holidays: make(map[string]string),
		log:      log.With().Str("component", "trading_calendar").Logger(),
	}

	for _, h := range []struct {
		date string
		name string
	}{
		{"2026-01-01", "New Year's Day"},
		{"2026-01-19", "MLK Day"},
		{"2026-02-16", "Presidents Day"},
		{"2026-04-03", "Good Friday"},
		{"2026-05-25", "Memorial Day"},
		{"2026-06-19", "Juneteenth"},
		{"2026-07-03", "Independence Day (observed)"},
		{"2026-09-07", "Labor Day"},
		{"2026-11-26", "Thanksgiving"},
		{"2026-12-25", "Christmas"},
	} {
		cal.holidays[h.date] = h.name
	}

	return cal
}

// IsTradingDay reports whether the exchange trades on the given date.
func (c *TradingCalendar) IsTradingDay(at time.Time) bool {
	local := at.In(c.tz)
	if local.Weekday() == time.Saturday || local.Weekday() == time.Sunday {
		return false
	}
	_, holiday := c.holidayName(local)
	return !holiday
}

// IsMarketOpen reports whether the regular 09:30-16:00 ET session is in
// progress at the given moment.
func (c *TradingCalendar) IsMarketOpen(at time.Time) bool {
	if !c.IsTradingDay(at) {
		return false
	}
	local := at.In(c.tz)
	minutes := local.Hour()*60 + local.Minute()
	return minutes >= 9*60+30 && minutes < 16*60
}

// Status returns the calendar snapshot for the given moment.
func (c *TradingCalendar) Status(at time.Time) MarketStatus {
	local := at.In(c.tz)
	name, _ := c.holidayName(local)
	return MarketStatus{
		TradingDay: c.IsTradingDay(at),
		IsOpen:     c.IsMarketOpen(at),
		Holiday:    name,
		Timezone:   c.tz.String(),
	}
}

func (c *TradingCalendar) holidayName(local time.Time) (string, bool) {
	name, ok := c.holidays[local.Format("2006-01-02")]
	return name, ok
}
