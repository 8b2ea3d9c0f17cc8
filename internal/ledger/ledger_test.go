package ledger_test

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nakiaasuryanto/bday-bot/internal/engine"
	"github.com/nakiaasuryanto/bday-bot/internal/ledger"
)

var wib = time.FixedZone("WIB", 7*3600)

func moment(y int, m time.Month, d int) engine.Moment {
	return engine.MomentOf(time.Date(y, m, d, 8, 0, 0, 0, wib))
}

func openLedger(t *testing.T, dir string) *ledger.Ledger {
	t.Helper()
	l, err := ledger.Open(context.Background(), filepath.Join(dir, "birthday_log.txt"), filepath.Join(dir, "birthday_log.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = l.Close() })
	return l
}

func TestLedger_RecordThenWasNotified(t *testing.T) {
	ctx := context.Background()
	l := openLedger(t, t.TempDir())
	today := moment(2025, 5, 10)

	notified, err := l.WasNotified(ctx, "Ani", today)
	require.NoError(t, err)
	assert.False(t, notified)

	require.NoError(t, l.Record(ctx, "Ani", "Team", today))

	notified, err = l.WasNotified(ctx, "Ani", today)
	require.NoError(t, err)
	assert.True(t, notified)

	lines, err := l.Tail(10)
	require.NoError(t, err)
	assert.Equal(t, []string{"[2025-05-10 08:00:00 WIB] [05-10] - Ucapan terkirim untuk Ani di grup Team"}, lines)
}

func TestLedger_ExactNameMatch(t *testing.T) {
	ctx := context.Background()
	l := openLedger(t, t.TempDir())
	today := moment(2025, 5, 10)

	require.NoError(t, l.Record(ctx, "Ani Lestari", "Team", today))

	notified, err := l.WasNotified(ctx, "Ani", today)
	require.NoError(t, err)
	assert.False(t, notified, "a longer name must not mark its prefix as notified")
}

func TestLedger_KeyedByCivilDate(t *testing.T) {
	ctx := context.Background()
	l := openLedger(t, t.TempDir())

	require.NoError(t, l.Record(ctx, "Ani", "Team", moment(2024, 5, 10)))

	notified, err := l.WasNotified(ctx, "Ani", moment(2025, 5, 10))
	require.NoError(t, err)
	assert.False(t, notified, "last year's delivery must not suppress this year's")
}

func TestLedger_FailureDoesNotCount(t *testing.T) {
	ctx := context.Background()
	l := openLedger(t, t.TempDir())
	today := moment(2025, 5, 10)

	require.NoError(t, l.RecordFailure(ctx, "Ani", errors.New("timeout"), today))

	notified, err := l.WasNotified(ctx, "Ani", today)
	require.NoError(t, err)
	assert.False(t, notified)

	lines, err := l.Tail(10)
	require.NoError(t, err)
	require.Len(t, lines, 1)
	assert.Equal(t, "[2025-05-10 08:00:00 WIB] [05-10] - ERROR: Gagal mengirim ucapan untuk Ani - timeout", lines[0])
}

func TestLedger_DuplicateSuccessIsIgnored(t *testing.T) {
	ctx := context.Background()
	l := openLedger(t, t.TempDir())
	today := moment(2025, 5, 10)

	require.NoError(t, l.Record(ctx, "Ani", "Team", today))
	require.NoError(t, l.Record(ctx, "Ani", "Team", today))

	lines, err := l.Tail(10)
	require.NoError(t, err)
	assert.Len(t, lines, 1)
}

func TestLedger_TailMostRecentFirst(t *testing.T) {
	ctx := context.Background()
	l := openLedger(t, t.TempDir())

	for i := 1; i <= 5; i++ {
		require.NoError(t, l.Record(ctx, "P"+string(rune('0'+i)), "G", moment(2025, 5, i)))
	}

	lines, err := l.Tail(3)
	require.NoError(t, err)
	require.Len(t, lines, 3)
	assert.Contains(t, lines[0], "untuk P5")
	assert.Contains(t, lines[2], "untuk P3")
}

func TestLedger_TailMissingFile(t *testing.T) {
	l := openLedger(t, t.TempDir())
	lines, err := l.Tail(100)
	require.NoError(t, err)
	assert.Empty(t, lines)
}

func TestLedger_Clear(t *testing.T) {
	ctx := context.Background()
	l := openLedger(t, t.TempDir())
	today := moment(2025, 5, 10)

	require.NoError(t, l.Record(ctx, "Ani", "Team", today))
	require.NoError(t, l.Clear(ctx))

	notified, err := l.WasNotified(ctx, "Ani", today)
	require.NoError(t, err)
	assert.False(t, notified)

	data, err := os.ReadFile(l.Path())
	require.NoError(t, err)
	assert.Empty(t, data)
}

func TestLedger_SurvivesRestart(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	today := moment(2025, 5, 10)

	first, err := ledger.Open(ctx, filepath.Join(dir, "log.txt"), filepath.Join(dir, "log.db"))
	require.NoError(t, err)
	require.NoError(t, first.Record(ctx, "Ani", "Team", today))
	require.NoError(t, first.Close())

	reopened, err := ledger.Open(ctx, filepath.Join(dir, "log.txt"), filepath.Join(dir, "log.db"))
	require.NoError(t, err)
	defer func() { _ = reopened.Close() }()

	notified, err := reopened.WasNotified(ctx, "Ani", today)
	require.NoError(t, err)
	assert.True(t, notified)
}

func TestLedger_BackfillsFromTextFile(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	text := filepath.Join(dir, "birthday_log.txt")

	legacy := strings.Join([]string{
		"[2025-05-10 08:00:02 WIB] [05-10] - Ucapan terkirim untuk Ani di grup Team di grup",
		"[2025-05-10 08:00:04 WIB] [05-10] - ERROR: Gagal mengirim ucapan untuk Budi - timeout",
		"",
	}, "\n")
	require.NoError(t, os.WriteFile(text, []byte(legacy), 0o644))

	l, err := ledger.Open(ctx, text, filepath.Join(dir, "birthday_log.db"))
	require.NoError(t, err)
	defer func() { _ = l.Close() }()

	today := moment(2025, 5, 10)
	ani, err := l.WasNotified(ctx, "Ani", today)
	require.NoError(t, err)
	assert.True(t, ani)

	budi, err := l.WasNotified(ctx, "Budi", today)
	require.NoError(t, err)
	assert.False(t, budi)
}
