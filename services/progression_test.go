package services

import (
	"testing"

	"arena-progression-service/models"

	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

func TestEnsureProgressionDefaults(t *testing.T) {
	db := newTestDB(t)
	svc := NewProgressionService(db, newTestCalendar())

	prog, err := svc.EnsureProgressionDefaults("user-1")
	require.NoError(t, err)
	require.Equal(t, 1, prog.Level)
	require.EqualValues(t, 0, prog.XP)
	require.EqualValues(t, 100, prog.XPGoal)
	require.Equal(t, 0, prog.EloPoints)
	require.Equal(t, "iron", prog.EloTier)
	require.Equal(t, 4, prog.EloDivision)
	require.Equal(t, testToday, prog.LastProcessedDate)
	require.Equal(t, testWeekStart, prog.LastProcessedWeek)
	require.Equal(t, testWeekStart, prog.CurrentEffectiveWeek)
	require.Equal(t, 0, prog.CurrentPlannedCount)
	require.Nil(t, prog.NextEffectiveWeek)

	t.Run("idempotent", func(t *testing.T) {
		again, err := svc.EnsureProgressionDefaults("user-1")
		require.NoError(t, err)
		require.Equal(t, prog.ID, again.ID)

		var count int64
		db.Model(&models.UserProgression{}).Where("external_user_id = ?", "user-1").Count(&count)
		require.EqualValues(t, 1, count)
	})
}

func TestApplyWorkoutRewards(t *testing.T) {
	db := newTestDB(t)
	cal := newTestCalendar()
	svc := NewProgressionService(db, cal)

	_, err := svc.EnsureProgressionDefaults("user-1")
	require.NoError(t, err)

	marker, err := svc.ApplyWorkoutRewards("user-1", testToday)
	require.NoError(t, err)
	require.EqualValues(t, 100, marker.XPAwarded) // no streak bonus on day one
	require.Equal(t, 10, marker.EloAwarded)
	require.Equal(t, 1, marker.StreakDays)

	prog, err := svc.GetProgression("user-1")
	require.NoError(t, err)
	// 100 XP fills the level-1 goal exactly: level up, remainder zero
	require.Equal(t, 2, prog.Level)
	require.EqualValues(t, 0, prog.XP)
	require.EqualValues(t, 229, prog.XPGoal) // floor(100 * 2^1.2)
	require.Equal(t, 10, prog.EloPoints)
	require.NotNil(t, prog.LastLevelUpAt)
}

func TestApplyWorkoutRewardsAtMostOncePerDay(t *testing.T) {
	db := newTestDB(t)
	svc := NewProgressionService(db, newTestCalendar())

	_, err := svc.EnsureProgressionDefaults("user-1")
	require.NoError(t, err)

	first, err := svc.ApplyWorkoutRewards("user-1", testToday)
	require.NoError(t, err)

	// Second invocation for the same day hands back the original marker and
	// changes nothing.
	second, err := svc.ApplyWorkoutRewards("user-1", testToday)
	require.NoError(t, err)
	require.Equal(t, first.ID, second.ID)

	prog, err := svc.GetProgression("user-1")
	require.NoError(t, err)
	require.Equal(t, 10, prog.EloPoints)

	var markers int64
	db.Model(&models.DailyReward{}).Where("external_user_id = ?", "user-1").Count(&markers)
	require.EqualValues(t, 1, markers)
}

func TestApplyWorkoutRewardsStreak(t *testing.T) {
	db := newTestDB(t)
	cal := newTestCalendar()
	svc := NewProgressionService(db, cal)

	_, err := svc.EnsureProgressionDefaults("user-1")
	require.NoError(t, err)

	// Ten consecutive days; the bonus grows per extra day and caps after a week.
	day := "2025-06-02"
	for i := 0; i < 10; i++ {
		advanceTo(t, cal, day)
		marker, err := svc.ApplyWorkoutRewards("user-1", day)
		require.NoError(t, err)
		require.Equal(t, i+1, marker.StreakDays)

		bonusDays := i
		if bonusDays > DefaultArenaWeights.StreakBonusCap {
			bonusDays = DefaultArenaWeights.StreakBonusCap
		}
		require.EqualValues(t, 100+10*bonusDays, marker.XPAwarded)
		day = cal.AddDays(day, 1)
	}

	t.Run("gap resets the streak", func(t *testing.T) {
		advanceTo(t, cal, "2025-06-14") // 06-12 and 06-13 skipped
		marker, err := svc.ApplyWorkoutRewards("user-1", "2025-06-14")
		require.NoError(t, err)
		require.Equal(t, 1, marker.StreakDays)
		require.EqualValues(t, 100, marker.XPAwarded)
	})
}

func TestApplyWorkoutRewardsLedgerAccumulation(t *testing.T) {
	db := newTestDB(t)
	cal := newTestCalendar()
	svc := NewProgressionService(db, cal)

	_, err := svc.EnsureProgressionDefaults("user-1")
	require.NoError(t, err)

	_, err = svc.ApplyWorkoutRewards("user-1", "2025-06-09")
	require.NoError(t, err)
	_, err = svc.ApplyWorkoutRewards("user-1", "2025-06-10")
	require.NoError(t, err)

	var entry models.WeekLedgerEntry
	require.NoError(t, db.Where("external_user_id = ? AND week_start = ?",
		"user-1", testWeekStart).First(&entry).Error)
	require.Equal(t, 20, entry.Points)

	// A day in the previous week lands in its own row
	_, err = svc.ApplyWorkoutRewards("user-1", "2025-06-07")
	require.NoError(t, err)

	var rows int64
	db.Model(&models.WeekLedgerEntry{}).Where("external_user_id = ?", "user-1").Count(&rows)
	require.EqualValues(t, 2, rows)
}

func TestApplyWorkoutRewardsRejectsBadDates(t *testing.T) {
	db := newTestDB(t)
	svc := NewProgressionService(db, newTestCalendar())

	_, err := svc.EnsureProgressionDefaults("user-1")
	require.NoError(t, err)

	_, err = svc.ApplyWorkoutRewards("user-1", "not-a-date")
	require.ErrorIs(t, err, ErrInvalidDateKey)

	_, err = svc.ApplyWorkoutRewards("user-1", "2025-06-12") // tomorrow
	require.ErrorIs(t, err, ErrFutureDateKey)

	t.Run("empty date key defaults to today", func(t *testing.T) {
		marker, err := svc.ApplyWorkoutRewards("user-1", "")
		require.NoError(t, err)
		require.Equal(t, testToday, marker.DateKey)
	})
}

func TestGrantElo(t *testing.T) {
	db := newTestDB(t)
	svc := NewProgressionService(db, newTestCalendar())

	_, err := svc.EnsureProgressionDefaults("user-1")
	require.NoError(t, err)

	prog, err := svc.GrantElo("user-1", 450, "tournament import")
	require.NoError(t, err)
	require.Equal(t, 450, prog.EloPoints)
	require.Equal(t, "bronze", prog.EloTier)
	require.Equal(t, 4, prog.EloDivision)

	t.Run("negative grant floors at zero", func(t *testing.T) {
		prog, err := svc.GrantElo("user-1", -9999, "support correction")
		require.NoError(t, err)
		require.Equal(t, 0, prog.EloPoints)
		require.Equal(t, "iron", prog.EloTier)
		require.Equal(t, 4, prog.EloDivision)
	})

	t.Run("unknown user", func(t *testing.T) {
		_, err := svc.GrantElo("ghost", 10, "noop")
		require.Error(t, err)
	})
}

func TestRatingWriteRejectsStaleRead(t *testing.T) {
	db := newTestDB(t)
	svc := NewProgressionService(db, newTestCalendar())

	_, err := svc.EnsureProgressionDefaults("user-1")
	require.NoError(t, err)

	prog, err := svc.GetProgression("user-1")
	require.NoError(t, err)
	staleBase := prog.EloPoints

	// Another session lands a rating change between our read and our write.
	_, err = svc.GrantElo("user-1", 10, "concurrent session")
	require.NoError(t, err)

	// A write computed from the stale read must not go through.
	prog.EloPoints = staleBase + 99
	err = db.Transaction(func(tx *gorm.DB) error {
		return storeRatingUpdate(tx, prog, staleBase)
	})
	require.ErrorIs(t, err, errStaleProgression)

	fresh, err := svc.GetProgression("user-1")
	require.NoError(t, err)
	require.Equal(t, 10, fresh.EloPoints) // the concurrent write survives
}

func TestTierUpTimestamp(t *testing.T) {
	db := newTestDB(t)
	svc := NewProgressionService(db, newTestCalendar())

	_, err := svc.EnsureProgressionDefaults("user-1")
	require.NoError(t, err)

	// 95 points, one workout away from iron III
	_, err = svc.GrantElo("user-1", 95, "seed")
	require.NoError(t, err)

	_, err = svc.ApplyWorkoutRewards("user-1", testToday)
	require.NoError(t, err)

	prog, err := svc.GetProgression("user-1")
	require.NoError(t, err)
	require.Equal(t, 105, prog.EloPoints)
	require.Equal(t, "iron", prog.EloTier)
	require.Equal(t, 3, prog.EloDivision)
	require.NotNil(t, prog.LastTierUpAt)
}
