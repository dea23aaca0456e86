package config

import (
	"testing"
	"time"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaults(t *testing.T) {
	v := viper.New()
	setDefaults(v)

	cfg := fromViper(v)

	assert.Equal(t, EnvDevelopment, cfg.Env)
	assert.Equal(t, "/api/v1", cfg.APIPrefix)
	assert.Equal(t, "week", cfg.Timetable.ConflictScope)
	assert.True(t, cfg.Timetable.SeedDefault)
	assert.Empty(t, cfg.Timetable.Slots)
	assert.Equal(t, time.Minute, cfg.Notifications.PollInterval)
	assert.Equal(t, 15*time.Minute, cfg.Notifications.ReminderWindow)
	assert.Equal(t, 30*time.Second, cfg.Notifications.SessionCacheTTL)
	assert.Equal(t, 2, cfg.Notifications.QueueWorkers)
	assert.Equal(t, 24*time.Hour, cfg.Exports.SignedURLTTL)
	assert.Empty(t, cfg.Log.File)
}

func TestOverrides(t *testing.T) {
	v := viper.New()
	setDefaults(v)
	v.Set("TIMETABLE_SLOTS", "8:00-9:00, 9:10-10:30 ,,2:00-3:00=14:00")
	v.Set("TIMETABLE_CONFLICT_SCOPE", "overlap")
	v.Set("NOTIFY_POLL_INTERVAL", "30s")
	v.Set("NOTIFY_REMINDER_WINDOW", "not-a-duration")
	v.Set("LOG_FILE", "/var/log/timetable.log")

	cfg := fromViper(v)

	require.Len(t, cfg.Timetable.Slots, 3)
	assert.Equal(t, "2:00-3:00=14:00", cfg.Timetable.Slots[2])
	assert.Equal(t, "overlap", cfg.Timetable.ConflictScope)
	assert.Equal(t, 30*time.Second, cfg.Notifications.PollInterval)
	assert.Equal(t, 15*time.Minute, cfg.Notifications.ReminderWindow, "invalid durations fall back")
	assert.Equal(t, "/var/log/timetable.log", cfg.Log.File)
	assert.Equal(t, 50, cfg.Log.MaxSizeMB)
}

func TestSplitAndTrim(t *testing.T) {
	assert.Nil(t, splitAndTrim(""))
	assert.Equal(t, []string{"a", "b"}, splitAndTrim(" a ,, b "))
}
