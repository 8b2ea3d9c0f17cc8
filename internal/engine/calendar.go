package engine

import (
	"bytes"
	"crypto/sha256"
	"fmt"
	"log/slog"
	"time"

	"github.com/emersion/go-ical"

	"github.com/nakiaasuryanto/bday-bot/internal/config"
)

// SummaryFunc renders an event title; see Composer.Summary.
type SummaryFunc func(name string, age int, yearKnown bool) string

// BuildCalendar renders the roster as an iCalendar feed with one all-day
// event per person for the previous, current and next year.
func BuildCalendar(entries []Entry, now time.Time, summary SummaryFunc) ([]byte, error) {
	cal := ical.NewCalendar()
	cal.Props.SetText(config.PropVersion, config.ICalVersion)
	cal.Props.SetText(config.PropProdid, config.ICalProdid)
	cal.Props.SetText(config.PropXWRCalName, config.ICalCalName)
	cal.Props.SetText(config.PropCalScale, config.ICalScale)
	cal.Props.SetText(config.PropMethod, config.ICalMethod)

	refresh := ical.NewProp(config.PropRefresh)
	refresh.SetDuration(config.DefaultICalRefresh)
	cal.Props.Set(refresh)

	dtStamp := ical.NewProp(config.PropDTStamp)
	dtStamp.SetDateTime(now.UTC())

	today := 0
	for _, e := range entries {
		birth, err := e.Birth()
		if err != nil {
			continue
		}
		events, isToday := createEvents(e.Name, birth, now, summary)
		if isToday {
			today++
		}
		for _, ev := range events {
			ev.Props.Set(dtStamp)
			cal.Children = append(cal.Children, ev.Component)
		}
	}

	if len(cal.Children) == 0 {
		return []byte(config.StubVCalendar), nil
	}

	var buf bytes.Buffer
	if err := ical.NewEncoder(&buf).Encode(cal); err != nil {
		return nil, fmt.Errorf("%s: %w", config.ErrICalEncode, err)
	}

	slog.Debug(config.MsgCacheUpdated,
		config.LogKeyComponent, config.CompServer,
		config.LogKeyTotal, len(entries),
		config.LogKeyMatches, today,
	)
	return buf.Bytes(), nil
}

// createEvents builds the events around now's year, never before birth.
func createEvents(name string, birth, now time.Time, summary SummaryFunc) ([]*ical.Event, bool) {
	hash := sha256.Sum256(fmt.Appendf(nil, config.FormatHashInput, name, birth.Format(time.RFC3339), config.UIDSalt))
	uidBase := fmt.Sprintf("%x", hash[:config.UIDHashLength])

	loc := now.Location()
	ty, tm, td := now.Date()
	isToday := false

	var events []*ical.Event
	for _, y := range []int{ty - 1, ty, ty + 1} {
		if y < birth.Year() {
			continue
		}
		age := y - birth.Year()

		ev := ical.NewEvent()
		ev.Props.SetText(config.PropUID, fmt.Sprintf(config.FormatUID, uidBase, y, config.ICalDomain))
		ev.Props.SetText(config.PropSummary, summary(name, age, true))

		// time.Date moves 29 February to 1 March in common years.
		date := time.Date(y, birth.Month(), birth.Day(), 0, 0, 0, 0, loc)
		if y == ty && date.Month() == tm && date.Day() == td {
			isToday = true
		}

		start := ical.NewProp(config.PropDTStart)
		start.SetDate(date)
		ev.Props.Set(start)

		events = append(events, ev)
	}
	return events, isToday
}
