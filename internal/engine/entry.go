package engine

import (
	"fmt"
	"time"

	"github.com/nakiaasuryanto/bday-bot/internal/config"
)

// Entry is one person on the roster. The JSON names follow the roster file
// maintained through the dashboard, so existing files load unchanged.
type Entry struct {
	Name      string `json:"nama" validate:"required"`
	BirthDate string `json:"tanggal_lahir" validate:"required,datetime=2006-01-02"`
	Role      string `json:"role,omitempty"`
	PhoneTag  string `json:"nomor_wa,omitempty"`
	GroupID   string `json:"grup_id" validate:"required"`
	GroupName string `json:"grup_nama" validate:"required"`
}

// Birth parses BirthDate as a calendar date.
func (e Entry) Birth() (time.Time, error) {
	t, err := time.Parse(config.DateFormatFullDash, e.BirthDate)
	if err != nil {
		return time.Time{}, fmt.Errorf("%s: %w", config.ErrDateParse, err)
	}
	return t, nil
}

// DayKey returns the MM-DD part of the birth date, or "" when it is malformed.
func (e Entry) DayKey() string {
	t, err := e.Birth()
	if err != nil {
		return ""
	}
	return t.Format(config.DayKeyFormat)
}

// Mention is the tag appended to the greeting: "@<phoneTag>" or the plain name.
func (e Entry) Mention() string {
	if e.PhoneTag != "" {
		return config.MentionPrefix + e.PhoneTag
	}
	return e.Name
}

// Matches reports whether the entry's birthday falls on the given civil day.
// People born on 29 February are greeted on 1 March in common years.
func (e Entry) Matches(day Moment) bool {
	key := e.DayKey()
	if key == "" {
		return false
	}
	if key == day.DayKey {
		return true
	}
	return key == leapDayKey && day.DayKey == leapFallbackKey && !isLeap(day.Time.Year())
}

const (
	leapDayKey      = "02-29"
	leapFallbackKey = "03-01"
)

func isLeap(year int) bool {
	return year%4 == 0 && (year%100 != 0 || year%400 == 0)
}
