package engine

import (
	"embed"
	"encoding/json"
	"fmt"
	"log/slog"
	"slices"
	"strings"
	"time"

	"github.com/nicksnyder/go-i18n/v2/i18n"
	"golang.org/x/text/language"

	"github.com/nakiaasuryanto/bday-bot/internal/config"
)

//go:embed locales/*.json
var localeFS embed.FS

// Age returns completed years on today. The birthday counts as reached only
// once today's month/day is not before the birth month/day.
func Age(birth, today time.Time) int {
	age := today.Year() - birth.Year()
	if today.Month() < birth.Month() || (today.Month() == birth.Month() && today.Day() < birth.Day()) {
		age--
	}
	return age
}

// Composer renders greetings from the embedded message catalogue. It holds no
// mutable state and is safe for concurrent use.
type Composer struct {
	lang      string
	localizer *i18n.Localizer
}

// NewComposer loads the embedded catalogue and selects lang.
func NewComposer(lang string) (*Composer, error) {
	bundle, langs, err := loadBundle()
	if err != nil {
		return nil, err
	}
	if !slices.Contains(langs, lang) {
		return nil, fmt.Errorf("%s: %q (available: %s)", config.ErrLanguage, lang, strings.Join(langs, ", "))
	}
	return &Composer{
		lang:      lang,
		localizer: i18n.NewLocalizer(bundle, lang),
	}, nil
}

// Language returns the selected catalogue language.
func (c *Composer) Language() string { return c.lang }

// Compose formats the birthday greeting for e at the given age.
func (c *Composer) Compose(e Entry, age int) (string, error) {
	birth, err := e.Birth()
	if err != nil {
		return "", fmt.Errorf("%s: %w", config.ErrCompose, err)
	}

	month, err := c.localize(fmt.Sprintf("%s%02d", config.TKeyMonthPrefix, int(birth.Month())), nil)
	if err != nil {
		return "", err
	}
	dayMonth, err := c.localize(config.TKeyDayMonth, map[string]any{
		"Day":   birth.Day(),
		"Month": month,
	})
	if err != nil {
		return "", err
	}

	return c.localize(config.TKeyMessage, map[string]any{
		"Name":     e.Name,
		"Role":     e.Role,
		"DayMonth": dayMonth,
		"Age":      age,
		"Tag":      e.Mention(),
	})
}

// Summary is the calendar event title for name turning age. yearKnown is
// false for contacts without a birth year.
func (c *Composer) Summary(name string, age int, yearKnown bool) string {
	key := config.TKeyEvtSummary
	switch {
	case yearKnown && age == 0:
		key = config.TKeyEvtSummaryBirth
	case yearKnown && age > 0:
		key = config.TKeyEvtSummaryAge
	}
	s, err := c.localize(key, map[string]any{"Name": name, "Age": age})
	if err != nil {
		return name
	}
	return s
}

func (c *Composer) localize(id string, data map[string]any) (string, error) {
	s, err := c.localizer.Localize(&i18n.LocalizeConfig{
		MessageID:    id,
		TemplateData: data,
	})
	if err != nil {
		return "", fmt.Errorf("%s: %s: %w", config.ErrCompose, id, err)
	}
	return s, nil
}

// loadBundle reads every locales/active.<lang>.json file.
func loadBundle() (*i18n.Bundle, []string, error) {
	bundle := i18n.NewBundle(language.Indonesian)
	bundle.RegisterUnmarshalFunc("json", json.Unmarshal)

	entries, err := localeFS.ReadDir("locales")
	if err != nil {
		return nil, nil, fmt.Errorf("%s: %w", config.ErrLocalesAccess, err)
	}

	var langs []string
	for _, entry := range entries {
		name := entry.Name()
		if !strings.HasPrefix(name, "active.") || !strings.HasSuffix(name, ".json") {
			slog.Debug(config.MsgLocaleSkip,
				config.LogKeyComponent, config.CompI18n,
				config.LogKeyFile, name,
			)
			continue
		}

		if _, err := bundle.LoadMessageFileFS(localeFS, "locales/"+name); err != nil {
			return nil, nil, fmt.Errorf("%s %s: %w", config.ErrLocaleLoad, name, err)
		}

		lang := strings.TrimSuffix(strings.TrimPrefix(name, "active."), ".json")
		langs = append(langs, lang)
		slog.Debug(config.MsgLocaleLoaded,
			config.LogKeyComponent, config.CompI18n,
			config.LogKeyLang, lang,
		)
	}
	return bundle, langs, nil
}
