package engine_test

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nakiaasuryanto/bday-bot/internal/config"
)

// TestI18nIntegrity ensures every catalogue defines exactly the keys the
// composer asks for.
func TestI18nIntegrity(t *testing.T) {
	expected := map[string]bool{
		config.TKeyMessage:         true,
		config.TKeyDayMonth:        true,
		config.TKeyEvtSummary:      true,
		config.TKeyEvtSummaryAge:   true,
		config.TKeyEvtSummaryBirth: true,
	}
	for m := 1; m <= 12; m++ {
		expected[fmt.Sprintf("%s%02d", config.TKeyMonthPrefix, m)] = true
	}

	for _, lang := range config.SupportedLanguages {
		t.Run(lang, func(t *testing.T) {
			content, err := os.ReadFile(filepath.Join("locales", "active."+lang+".json"))
			require.NoError(t, err)

			var catalogue map[string]string
			require.NoError(t, json.Unmarshal(content, &catalogue), "catalogue must be a flat JSON object")

			for key := range expected {
				assert.Containsf(t, catalogue, key, "key %q missing in %s", key, lang)
			}
			for key := range catalogue {
				assert.Truef(t, expected[key], "key %q in %s is never used", key, lang)
			}
		})
	}
}
