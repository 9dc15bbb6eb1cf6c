package services

import (
	"testing"

	"arena-progression-service/models"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
)

// setupCommittedUser creates a progression row with an active Mon/Wed/Fri
// commitment, the given arena points and a watermark at Sunday 2025-06-08.
func setupCommittedUser(t *testing.T, svc *ProgressionService, userID string, elo int) {
	t.Helper()
	_, err := svc.EnsureProgressionDefaults(userID)
	require.NoError(t, err)

	tier, div := TierOf(elo)
	require.NoError(t, svc.DB.Model(&models.UserProgression{}).
		Where("external_user_id = ?", userID).
		Updates(map[string]interface{}{
			"current_planned_days":  0b10101, // Mon, Wed, Fri
			"current_planned_count": 3,
			"last_processed_date":   "2025-06-08",
			"last_processed_week":   "2025-06-02",
			"elo_points":            elo,
			"elo_tier":              tier,
			"elo_division":          div,
		}).Error)
}

func markRewarded(t *testing.T, svc *ProgressionService, userID, dateKey string) {
	t.Helper()
	require.NoError(t, svc.DB.Create(&models.DailyReward{
		ID:             uuid.NewString(),
		ExternalUserID: userID,
		DateKey:        dateKey,
		XPAwarded:      100,
		EloAwarded:     10,
		StreakDays:     1,
	}).Error)
}

func markSyncedWorkout(t *testing.T, svc *ProgressionService, userID, dateKey string) {
	t.Helper()
	require.NoError(t, svc.DB.Create(&models.WorkoutDayMirror{
		ID:             uuid.NewString(),
		ExternalUserID: userID,
		DateKey:        dateKey,
		WorkoutCount:   1,
	}).Error)
}

func TestApplyPendingMissPenaltiesCatchUp(t *testing.T) {
	db := newTestDB(t)
	cal := newTestCalendar()
	progSvc := NewProgressionService(db, cal)
	penSvc := NewPenaltyService(db, cal)

	setupCommittedUser(t, progSvc, "user-1", 100)

	// Rewarded Monday, synced workout Wednesday, nothing Friday.
	markRewarded(t, progSvc, "user-1", "2025-06-09")
	markSyncedWorkout(t, progSvc, "user-1", "2025-06-11")

	// Session opens Saturday: Mon..Fri are behind us, Friday was missed.
	advanceTo(t, cal, "2025-06-14")

	applied, err := penSvc.ApplyPendingMissPenalties("user-1")
	require.NoError(t, err)
	require.Equal(t, 1, applied)

	prog, err := progSvc.GetProgression("user-1")
	require.NoError(t, err)
	require.Equal(t, 85, prog.EloPoints)
	require.Equal(t, "2025-06-13", prog.LastProcessedDate)
	require.Equal(t, "2025-06-09", prog.LastProcessedWeek)

	var record models.PenaltyRecord
	require.NoError(t, db.Where("external_user_id = ?", "user-1").First(&record).Error)
	require.Equal(t, "2025-06-13", record.DateKey)
	require.Equal(t, 15, record.EloDeducted)

	t.Run("idempotent", func(t *testing.T) {
		applied, err := penSvc.ApplyPendingMissPenalties("user-1")
		require.NoError(t, err)
		require.Equal(t, 0, applied)

		prog, err := progSvc.GetProgression("user-1")
		require.NoError(t, err)
		require.Equal(t, 85, prog.EloPoints)

		var records int64
		db.Model(&models.PenaltyRecord{}).Where("external_user_id = ?", "user-1").Count(&records)
		require.EqualValues(t, 1, records)
	})
}

func TestPenaltyNeverJudgesToday(t *testing.T) {
	db := newTestDB(t)
	cal := newTestCalendar()
	progSvc := NewProgressionService(db, cal)
	penSvc := NewPenaltyService(db, cal)

	setupCommittedUser(t, progSvc, "user-1", 100)

	// Monday morning, nothing trained yet. Monday is committed but still running.
	advanceTo(t, cal, "2025-06-09")

	applied, err := penSvc.ApplyPendingMissPenalties("user-1")
	require.NoError(t, err)
	require.Equal(t, 0, applied)

	prog, err := progSvc.GetProgression("user-1")
	require.NoError(t, err)
	require.Equal(t, 100, prog.EloPoints)
	require.Equal(t, "2025-06-08", prog.LastProcessedDate)
}

func TestPenaltySkipsUncommittedDays(t *testing.T) {
	db := newTestDB(t)
	cal := newTestCalendar()
	progSvc := NewProgressionService(db, cal)
	penSvc := NewPenaltyService(db, cal)

	// No commitment at all: a week of absence costs nothing.
	_, err := progSvc.EnsureProgressionDefaults("user-1")
	require.NoError(t, err)
	require.NoError(t, db.Model(&models.UserProgression{}).
		Where("external_user_id = ?", "user-1").
		Updates(map[string]interface{}{
			"last_processed_date": "2025-06-08",
			"elo_points":          100,
		}).Error)

	advanceTo(t, cal, "2025-06-14")

	applied, err := penSvc.ApplyPendingMissPenalties("user-1")
	require.NoError(t, err)
	require.Equal(t, 0, applied)

	prog, err := progSvc.GetProgression("user-1")
	require.NoError(t, err)
	require.Equal(t, 100, prog.EloPoints)
	require.Equal(t, "2025-06-13", prog.LastProcessedDate) // watermark still advances
}

func TestPenaltyApprovedFreezeSuppresses(t *testing.T) {
	db := newTestDB(t)
	cal := newTestCalendar()
	progSvc := NewProgressionService(db, cal)
	penSvc := NewPenaltyService(db, cal)

	setupCommittedUser(t, progSvc, "user-1", 100)
	require.NoError(t, db.Create(&models.FreezeWindow{
		ID:             uuid.NewString(),
		ExternalUserID: "user-1",
		FromDate:       "2025-06-09",
		UntilDate:      "2025-06-13",
		Status:         models.FreezeStatusApproved,
		Reason:         "knee surgery",
	}).Error)

	advanceTo(t, cal, "2025-06-14")

	applied, err := penSvc.ApplyPendingMissPenalties("user-1")
	require.NoError(t, err)
	require.Equal(t, 0, applied)

	prog, err := progSvc.GetProgression("user-1")
	require.NoError(t, err)
	require.Equal(t, 100, prog.EloPoints)
	require.Equal(t, "2025-06-13", prog.LastProcessedDate)
}

func TestPenaltyPendingFreezeHasNoEffect(t *testing.T) {
	db := newTestDB(t)
	cal := newTestCalendar()
	progSvc := NewProgressionService(db, cal)
	penSvc := NewPenaltyService(db, cal)

	setupCommittedUser(t, progSvc, "user-1", 100)
	require.NoError(t, db.Create(&models.FreezeWindow{
		ID:             uuid.NewString(),
		ExternalUserID: "user-1",
		FromDate:       "2025-06-09",
		UntilDate:      "2025-06-13",
		Status:         models.FreezeStatusPending,
		Reason:         "awaiting review",
	}).Error)

	advanceTo(t, cal, "2025-06-14")

	applied, err := penSvc.ApplyPendingMissPenalties("user-1")
	require.NoError(t, err)
	require.Equal(t, 3, applied) // Mon, Wed, Fri all missed
}

func TestPenaltyRatingFloor(t *testing.T) {
	db := newTestDB(t)
	cal := newTestCalendar()
	progSvc := NewProgressionService(db, cal)
	penSvc := NewPenaltyService(db, cal)

	setupCommittedUser(t, progSvc, "user-1", 10)

	advanceTo(t, cal, "2025-06-14")

	applied, err := penSvc.ApplyPendingMissPenalties("user-1")
	require.NoError(t, err)
	require.Equal(t, 3, applied)

	prog, err := progSvc.GetProgression("user-1")
	require.NoError(t, err)
	require.Equal(t, 0, prog.EloPoints) // 10 - 15 clamps, later misses deduct nothing
	require.Equal(t, "iron", prog.EloTier)
	require.Equal(t, 4, prog.EloDivision)

	// The audit trail records the actual deduction, not the nominal penalty.
	var first models.PenaltyRecord
	require.NoError(t, db.Where("external_user_id = ? AND date_key = ?",
		"user-1", "2025-06-09").First(&first).Error)
	require.Equal(t, 10, first.EloDeducted)

	var later models.PenaltyRecord
	require.NoError(t, db.Where("external_user_id = ? AND date_key = ?",
		"user-1", "2025-06-11").First(&later).Error)
	require.Equal(t, 0, later.EloDeducted)
}

func TestPenaltyRecomputesTier(t *testing.T) {
	db := newTestDB(t)
	cal := newTestCalendar()
	progSvc := NewProgressionService(db, cal)
	penSvc := NewPenaltyService(db, cal)

	// 400 points = bronze IV; one miss drops back into iron I.
	setupCommittedUser(t, progSvc, "user-1", 400)
	markRewarded(t, progSvc, "user-1", "2025-06-09")
	markRewarded(t, progSvc, "user-1", "2025-06-11")

	advanceTo(t, cal, "2025-06-14")

	applied, err := penSvc.ApplyPendingMissPenalties("user-1")
	require.NoError(t, err)
	require.Equal(t, 1, applied)

	prog, err := progSvc.GetProgression("user-1")
	require.NoError(t, err)
	require.Equal(t, 385, prog.EloPoints)
	require.Equal(t, "iron", prog.EloTier)
	require.Equal(t, 1, prog.EloDivision)
}

func TestPenaltyIgnoresCommitmentBeforeItsEffectiveWeek(t *testing.T) {
	db := newTestDB(t)
	cal := newTestCalendar()
	progSvc := NewProgressionService(db, cal)
	schedSvc := NewScheduleService(db, cal)
	penSvc := NewPenaltyService(db, cal)

	// Signs up Wednesday with no commitment, stages Thursdays (effective next
	// Monday), then disappears for almost a month.
	_, err := progSvc.EnsureProgressionDefaults("user-1")
	require.NoError(t, err)
	_, err = schedSvc.UpdateTrainingSchedule("user-1", []int{3})
	require.NoError(t, err)

	advanceTo(t, cal, "2025-07-07")

	applied, err := penSvc.ApplyPendingMissPenalties("user-1")
	require.NoError(t, err)
	require.Equal(t, 3, applied) // Thu 06-19, 06-26, 07-03 only

	// Thursday 06-12 predates the commitment and is never penalized.
	var count int64
	db.Model(&models.PenaltyRecord{}).
		Where("external_user_id = ? AND date_key = ?", "user-1", "2025-06-12").Count(&count)
	require.EqualValues(t, 0, count)

	prog, err := progSvc.GetProgression("user-1")
	require.NoError(t, err)
	require.Equal(t, "2025-06-16", prog.CurrentEffectiveWeek) // promoted mid-walk
	require.True(t, prog.HasPlannedDay(3))
	require.Nil(t, prog.NextEffectiveWeek)
	require.Equal(t, "2025-07-06", prog.LastProcessedDate)
}

func TestPenaltyStagedScheduleCannotWeakenRunningWeek(t *testing.T) {
	db := newTestDB(t)
	cal := newTestCalendar()
	progSvc := NewProgressionService(db, cal)
	schedSvc := NewScheduleService(db, cal)
	penSvc := NewPenaltyService(db, cal)

	// Mon/Wed/Fri in force; mid-week the user stages a Sundays-only plan and
	// stays away past the week boundary. The running week is still judged
	// under Mon/Wed/Fri.
	setupCommittedUser(t, progSvc, "user-1", 100)
	_, err := schedSvc.UpdateTrainingSchedule("user-1", []int{6}) // effective 2025-06-16
	require.NoError(t, err)

	advanceTo(t, cal, "2025-06-18")

	applied, err := penSvc.ApplyPendingMissPenalties("user-1")
	require.NoError(t, err)
	require.Equal(t, 3, applied) // Mon 06-09, Wed 06-11, Fri 06-13

	prog, err := progSvc.GetProgression("user-1")
	require.NoError(t, err)
	require.Equal(t, 55, prog.EloPoints)
	require.Equal(t, "2025-06-16", prog.CurrentEffectiveWeek)
	require.True(t, prog.HasPlannedDay(6)) // Sundays plan is in force now
	require.False(t, prog.HasPlannedDay(0))
	require.Equal(t, "2025-06-17", prog.LastProcessedDate)

	// Week watermark follows the walk and never rewinds below it.
	require.Equal(t, "2025-06-16", prog.LastProcessedWeek)

	// Mon/Tue of the new week fall under the Sundays plan — no penalty there.
	var count int64
	db.Model(&models.PenaltyRecord{}).
		Where("external_user_id = ? AND date_key >= ?", "user-1", "2025-06-16").Count(&count)
	require.EqualValues(t, 0, count)
}

func TestPenaltyCatchUpIsBounded(t *testing.T) {
	db := newTestDB(t)
	cal := newTestCalendar()
	progSvc := NewProgressionService(db, cal)
	penSvc := NewPenaltyService(db, cal)

	_, err := progSvc.EnsureProgressionDefaults("user-1")
	require.NoError(t, err)

	// Watermark 100 days in the past, no commitment: one call walks at most
	// MaxCatchUpDaysPerCall days, the next call finishes the rest.
	start := cal.AddDays(testToday, -100)
	require.NoError(t, db.Model(&models.UserProgression{}).
		Where("external_user_id = ?", "user-1").
		Update("last_processed_date", start).Error)

	applied, err := penSvc.ApplyPendingMissPenalties("user-1")
	require.NoError(t, err)
	require.Equal(t, 0, applied)

	prog, err := progSvc.GetProgression("user-1")
	require.NoError(t, err)
	require.Equal(t, cal.AddDays(start, MaxCatchUpDaysPerCall), prog.LastProcessedDate)

	_, err = penSvc.ApplyPendingMissPenalties("user-1")
	require.NoError(t, err)

	prog, err = progSvc.GetProgression("user-1")
	require.NoError(t, err)
	require.Equal(t, cal.AddDays(testToday, -1), prog.LastProcessedDate)
}
