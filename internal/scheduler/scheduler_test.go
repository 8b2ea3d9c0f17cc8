package scheduler

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nakiaasuryanto/bday-bot/internal/config"
)

var wib = time.FixedZone(config.DefaultZoneLabel, config.DefaultZoneOffset*3600)

func TestNew_InvalidSpec(t *testing.T) {
	_, err := New("every morning", wib, func(context.Context) {})
	require.Error(t, err)
	assert.Contains(t, err.Error(), config.ErrSchedule)
}

func TestNext_CivilZone(t *testing.T) {
	s, err := New(config.DefaultScanSchedule, wib, func(context.Context) {})
	require.NoError(t, err)

	tests := []struct {
		name string
		now  time.Time
		want time.Time
	}{
		{
			name: "Before 08:00 WIB fires the same civil day",
			now:  time.Date(2025, 5, 10, 0, 59, 0, 0, time.UTC),
			want: time.Date(2025, 5, 10, 1, 0, 0, 0, time.UTC),
		},
		{
			name: "Exactly 08:00 WIB waits for tomorrow",
			now:  time.Date(2025, 5, 10, 1, 0, 0, 0, time.UTC),
			want: time.Date(2025, 5, 11, 1, 0, 0, 0, time.UTC),
		},
		{
			name: "UTC evening is already the next civil day",
			now:  time.Date(2025, 5, 10, 18, 0, 0, 0, time.UTC),
			want: time.Date(2025, 5, 11, 1, 0, 0, 0, time.UTC),
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := s.Next(tt.now)
			assert.True(t, tt.want.Equal(got), "want %s, got %s", tt.want, got)
			assert.Equal(t, wib.String(), got.Location().String())
		})
	}
}

func TestFire_PassesStartContext(t *testing.T) {
	type key struct{}
	got := make(chan any, 1)
	s, err := New(config.DefaultScanSchedule, wib, func(ctx context.Context) { got <- ctx.Value(key{}) })
	require.NoError(t, err)

	ctx := context.WithValue(context.Background(), key{}, "scan")
	s.Start(ctx)
	s.fire()

	assert.Equal(t, "scan", <-got)

	stopCtx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	assert.NoError(t, s.Stop(stopCtx))
}
