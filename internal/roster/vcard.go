package roster

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"time"
	"unicode"

	"github.com/emersion/go-vcard"

	"github.com/nakiaasuryanto/bday-bot/internal/config"
	"github.com/nakiaasuryanto/bday-bot/internal/engine"
)

// Target is the destination group assigned to imported contacts.
type Target struct {
	GroupID   string
	GroupName string
	Role      string
}

// ImportStats counts what an import did.
type ImportStats struct {
	Cards     int
	Imported  int
	Skipped   int
	Duplicate int
}

// ParseVCards converts every card with a full birth date into a roster entry
// for target. Malformed cards and cards without a birth year are skipped.
func ParseVCards(ctx context.Context, r io.Reader, target Target) ([]engine.Entry, ImportStats, error) {
	var stats ImportStats
	var entries []engine.Entry

	src := &contentReader{r: r}
	dec := vcard.NewDecoder(src)
	for {
		if err := ctx.Err(); err != nil {
			return nil, stats, err
		}

		card, err := dec.Decode()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			slog.WarnContext(ctx, config.MsgSkippedCard,
				config.LogKeyComponent, config.CompImport,
				config.LogKeyError, err)
			// A broken stream cannot be resynchronised.
			if stats.Cards == 0 {
				return nil, stats, fmt.Errorf("%s: %w", config.ErrVCardParse, err)
			}
			break
		}
		stats.Cards++

		name := cardName(card)
		bday := card.Get(config.VCardBDAY)
		if name == "" || bday == nil || bday.Value == "" {
			stats.Skipped++
			continue
		}

		birth, yearKnown, err := parseDate(bday.Value)
		if err != nil || !yearKnown {
			slog.DebugContext(ctx, config.MsgSkippedDate,
				config.LogKeyComponent, config.CompImport,
				config.LogKeyName, name)
			stats.Skipped++
			continue
		}

		entries = append(entries, engine.Entry{
			Name:      name,
			BirthDate: birth.Format(config.DateFormatFullDash),
			Role:      target.Role,
			PhoneTag:  phoneTag(card),
			GroupID:   target.GroupID,
			GroupName: target.GroupName,
		})
	}
	if stats.Cards == 0 && src.content {
		// The decoder reports text without BEGIN:VCARD as a clean end of stream.
		return nil, stats, fmt.Errorf("%s: %w", config.ErrVCardParse, errNoCards)
	}
	return entries, stats, nil
}

var errNoCards = errors.New("no BEGIN:VCARD found")

// contentReader notes whether anything but whitespace passed through it.
type contentReader struct {
	r       io.Reader
	content bool
}

func (c *contentReader) Read(p []byte) (int, error) {
	n, err := c.r.Read(p)
	if !c.content && len(bytes.TrimSpace(p[:n])) > 0 {
		c.content = true
	}
	return n, err
}

// Import parses r and appends the new contacts to the roster. Contacts
// already present with the same name and birth date are left alone.
func (s *Store) Import(ctx context.Context, r io.Reader, target Target) (ImportStats, error) {
	entries, stats, err := ParseVCards(ctx, r, target)
	if err != nil {
		return stats, err
	}

	err = s.update(ctx, func(all []Record) ([]Record, error) {
		seen := make(map[string]bool, len(all))
		for _, rec := range all {
			seen[rec.String(config.FieldName)+"|"+rec.String(config.FieldBirthDate)] = true
		}
		for _, e := range entries {
			key := e.Name + "|" + e.BirthDate
			if seen[key] {
				stats.Duplicate++
				continue
			}
			seen[key] = true
			all = append(all, NewRecord(e))
			stats.Imported++
		}
		return all, nil
	})
	if err != nil {
		return stats, err
	}

	slog.InfoContext(ctx, config.MsgImportDone,
		config.LogKeyComponent, config.CompImport,
		config.LogKeyCount, stats.Imported,
		config.LogKeySkipped, stats.Skipped+stats.Duplicate,
		config.LogKeyGroup, target.GroupName,
	)
	return stats, nil
}

// cardName prefers FN over the structured N property.
func cardName(card vcard.Card) string {
	if fn := card.Get(config.VCardFN); fn != nil && strings.TrimSpace(fn.Value) != "" {
		return strings.TrimSpace(fn.Value)
	}
	if n := card.Name(); n != nil {
		return strings.TrimSpace(strings.Join(strings.Fields(n.GivenName+" "+n.FamilyName), " "))
	}
	return ""
}

// phoneTag keeps only the digits of the first TEL value.
func phoneTag(card vcard.Card) string {
	tel := card.Get(config.VCardTEL)
	if tel == nil {
		return ""
	}
	return strings.Map(func(r rune) rune {
		if unicode.IsDigit(r) {
			return r
		}
		return -1
	}, tel.Value)
}

// parseDate handles the vCard 3.0 and 4.0 date forms.
func parseDate(value string) (time.Time, bool, error) {
	withYear := []string{
		config.DateFormatFullDash,
		config.DateFormatFullBasic,
		config.DateFormatRFC3339,
		config.DateFormatFullT,
	}
	for _, f := range withYear {
		if t, err := time.Parse(f, value); err == nil {
			return t, true, nil
		}
	}

	// --MMDD forms carry no year; pin them to a leap year so 29 February parses.
	for _, f := range []string{config.DateFormatNoYearD, config.DateFormatNoYearB} {
		if t, err := time.Parse(f, value); err == nil {
			return time.Date(config.DefaultLeapYear, t.Month(), t.Day(), 0, 0, 0, 0, time.UTC), false, nil
		}
	}

	return time.Time{}, false, errors.New(config.ErrDateParse)
}
