package engine

import (
	"time"

	"github.com/jonboulle/clockwork"

	"github.com/nakiaasuryanto/bday-bot/internal/config"
)

// CivilClock projects the underlying clock into a fixed UTC offset so that
// "today" does not depend on the host timezone.
type CivilClock struct {
	Clock    clockwork.Clock
	Location *time.Location
}

// NewCivilClock builds a clock for a fixed offset in whole hours, labelled
// with label (e.g. "WIB" for +7).
func NewCivilClock(c clockwork.Clock, label string, offsetHours int) *CivilClock {
	return &CivilClock{
		Clock:    c,
		Location: time.FixedZone(label, offsetHours*60*60),
	}
}

// Moment is a single civil-time reading. All derived strings come from the
// same instant.
type Moment struct {
	Time      time.Time // instant in the civil zone
	Date      string    // YYYY-MM-DD
	DayKey    string    // MM-DD
	Timestamp string    // YYYY-MM-DD HH:MM:SS LABEL
}

// Now returns the current instant in the civil zone.
func (c *CivilClock) Now() time.Time {
	return c.Clock.Now().In(c.Location)
}

// DayKey returns MM-DD of Now.
func (c *CivilClock) DayKey() string {
	return c.Today().DayKey
}

// Timestamp returns a sortable log timestamp of Now.
func (c *CivilClock) Timestamp() string {
	return c.Today().Timestamp
}

// Today reads the clock once and derives every representation from it.
func (c *CivilClock) Today() Moment {
	return MomentOf(c.Now())
}

// MomentOf builds a Moment from an instant already in the desired zone.
func MomentOf(t time.Time) Moment {
	return Moment{
		Time:      t,
		Date:      t.Format(config.DateFormatFullDash),
		DayKey:    t.Format(config.DayKeyFormat),
		Timestamp: t.Format(config.TimestampFormat) + " " + zoneLabel(t),
	}
}

func zoneLabel(t time.Time) string {
	name, _ := t.Zone()
	return name
}
