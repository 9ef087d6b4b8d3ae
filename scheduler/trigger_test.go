package scheduler

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"guildbot/models"
)

func TestNextFireCron(t *testing.T) {
	t.Parallel()

	after := time.Date(2024, 3, 10, 8, 30, 0, 0, time.UTC)

	next, err := NextFire(models.CronTrigger("0 9 * * *", ""), after)
	require.NoError(t, err)
	require.NotNil(t, next)
	assert.Equal(t, time.Date(2024, 3, 10, 9, 0, 0, 0, time.UTC), next.UTC())

	// Already past today's slot, rolls to tomorrow.
	next, err = NextFire(models.CronTrigger("0 9 * * *", ""), time.Date(2024, 3, 10, 9, 0, 1, 0, time.UTC))
	require.NoError(t, err)
	require.NotNil(t, next)
	assert.Equal(t, time.Date(2024, 3, 11, 9, 0, 0, 0, time.UTC), next.UTC())
}

func TestNextFireCronTimezone(t *testing.T) {
	t.Parallel()

	// 09:00 in Tokyo is 00:00 UTC.
	after := time.Date(2024, 6, 1, 22, 0, 0, 0, time.UTC)
	next, err := NextFire(models.CronTrigger("0 9 * * *", "Asia/Tokyo"), after)
	require.NoError(t, err)
	require.NotNil(t, next)
	assert.Equal(t, time.Date(2024, 6, 2, 0, 0, 0, 0, time.UTC), next.UTC())
}

func TestNextFireInterval(t *testing.T) {
	t.Parallel()

	after := time.Date(2024, 3, 10, 8, 0, 0, 0, time.UTC)
	next, err := NextFire(models.IntervalTrigger(90*time.Second), after)
	require.NoError(t, err)
	require.NotNil(t, next)
	assert.Equal(t, after.Add(90*time.Second), *next)
}

func TestNextFireDate(t *testing.T) {
	t.Parallel()

	now := time.Date(2024, 3, 10, 8, 0, 0, 0, time.UTC)
	runAt := now.Add(time.Hour)

	next, err := NextFire(models.DateTrigger(runAt), now)
	require.NoError(t, err)
	require.NotNil(t, next)
	assert.Equal(t, runAt, *next)

	// A date in the past is exhausted.
	next, err = NextFire(models.DateTrigger(now.Add(-time.Hour)), now)
	require.NoError(t, err)
	assert.Nil(t, next)
}

func TestNextAfterFireIntervalStaysAnchored(t *testing.T) {
	t.Parallel()

	slot := time.Date(2024, 3, 10, 8, 0, 0, 0, time.UTC)

	// Dispatch latency must not shift the slot sequence: a slot fired
	// 30 seconds late still advances to exactly slot + period.
	next, err := nextAfterFire(models.IntervalTrigger(time.Hour), slot, slot.Add(30*time.Second))
	require.NoError(t, err)
	require.NotNil(t, next)
	assert.Equal(t, slot.Add(time.Hour), *next)
}

func TestNextAfterFireIntervalSkipsMissedSlots(t *testing.T) {
	t.Parallel()

	slot := time.Date(2024, 3, 10, 8, 0, 0, 0, time.UTC)
	now := slot.Add(7*time.Minute + 30*time.Second)

	next, err := nextAfterFire(models.IntervalTrigger(2*time.Minute), slot, now)
	require.NoError(t, err)
	require.NotNil(t, next)

	// 8:00 was missed; 8:02 through 8:06 are skipped, not replayed.
	assert.Equal(t, slot.Add(8*time.Minute), *next)
	assert.True(t, next.After(now))
}

func TestNextAfterFireDateIsExhausted(t *testing.T) {
	t.Parallel()

	slot := time.Date(2024, 3, 10, 8, 0, 0, 0, time.UTC)
	next, err := nextAfterFire(models.DateTrigger(slot), slot, slot.Add(time.Hour))
	require.NoError(t, err)
	assert.Nil(t, next)
}

func TestValidateTrigger(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		trigger models.TriggerSpec
		wantErr string
	}{
		{
			name:    "valid cron",
			trigger: models.CronTrigger("*/5 * * * *", ""),
		},
		{
			name:    "valid cron with timezone",
			trigger: models.CronTrigger("0 0 * * 1", "Europe/Berlin"),
		},
		{
			name:    "malformed cron expression",
			trigger: models.CronTrigger("99 99 * * *", ""),
			wantErr: "invalid cron expression",
		},
		{
			name:    "unknown timezone",
			trigger: models.CronTrigger("0 0 * * *", "Mars/Olympus"),
			wantErr: "invalid timezone",
		},
		{
			name:    "zero interval",
			trigger: models.IntervalTrigger(0),
			wantErr: "positive period",
		},
		{
			name:    "valid interval from components",
			trigger: models.IntervalTriggerOf(0, 1, 2, 0, 0),
		},
		{
			name:    "unknown kind",
			trigger: models.TriggerSpec{Kind: "hourly"},
			wantErr: "unknown trigger kind",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			err := ValidateTrigger(tt.trigger)
			if tt.wantErr == "" {
				assert.NoError(t, err)
			} else {
				assert.ErrorContains(t, err, tt.wantErr)
			}
		})
	}
}
