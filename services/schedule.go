package services

import (
	"errors"
	"fmt"
	"log"

	"arena-progression-service/models"

	"gorm.io/gorm"
)

var ErrInvalidScheduleDays = errors.New("schedule must contain between 1 and 7 weekdays")

type ScheduleService struct {
	DB  *gorm.DB
	Cal *Calendar
}

func NewScheduleService(db *gorm.DB, cal *Calendar) *ScheduleService {
	return &ScheduleService{DB: db, Cal: cal}
}

// UpdateTrainingSchedule stages a new weekly commitment. Writes always go to
// the *next* week's slot — the running week's commitment is immutable, so a
// user can't weaken it after seeing a penalty coming. Calling again before the
// week turns simply replaces the staged slot.
func (s *ScheduleService) UpdateTrainingSchedule(externalUserID string, days []int) (*models.UserProgression, error) {
	mask, count, err := daysToMask(days)
	if err != nil {
		return nil, err
	}
	effectiveWeek := s.Cal.NextWeekStart(s.Cal.Today())

	var updated models.UserProgression
	txErr := s.DB.Transaction(func(tx *gorm.DB) error {
		var prog models.UserProgression
		if err := tx.Where("external_user_id = ?", externalUserID).First(&prog).Error; err != nil {
			return fmt.Errorf("progression record not found for %s: %w", externalUserID, err)
		}
		// Touch only the staged columns so a rating write landing in parallel
		// is never clobbered by a full-row save.
		if err := tx.Model(&models.UserProgression{}).
			Where("external_user_id = ?", externalUserID).
			Updates(map[string]interface{}{
				"next_effective_week": effectiveWeek,
				"next_planned_days":   mask,
				"next_planned_count":  count,
			}).Error; err != nil {
			return err
		}
		prog.NextEffectiveWeek = &effectiveWeek
		prog.NextPlannedDays = mask
		prog.NextPlannedCount = count
		updated = prog
		log.Printf("📅 Schedule staged: %s → %d day(s) effective week %s", externalUserID, count, effectiveWeek)
		return nil
	})
	if txErr != nil {
		return nil, txErr
	}
	return &updated, nil
}

// ApplyPendingScheduleIfDue promotes the staged commitment once its effective
// week has arrived. Re-running with nothing staged is a no-op. Returns whether
// a promotion happened.
func (s *ScheduleService) ApplyPendingScheduleIfDue(externalUserID string) (bool, error) {
	return s.promoteIfDueFor(externalUserID, s.Cal.WeekStart(s.Cal.Today()))
}

// promoteIfDueFor promotes the staged commitment once weekStart has reached its
// effective week. The penalty walk calls this with the week of the backlog day
// it is about to judge, so past days are always evaluated under the commitment
// that was in force for their week. The UPDATE is guarded on
// next_effective_week, so a racing second session matches zero rows and the
// promotion happens exactly once. Never touches the processed-date watermarks —
// those only advance, and only in the penalty walk.
func (s *ScheduleService) promoteIfDueFor(externalUserID, weekStart string) (bool, error) {
	var prog models.UserProgression
	if err := s.DB.Where("external_user_id = ?", externalUserID).First(&prog).Error; err != nil {
		return false, err
	}
	if prog.NextEffectiveWeek == nil || *prog.NextEffectiveWeek > weekStart {
		return false, nil
	}

	res := s.DB.Model(&models.UserProgression{}).
		Where("external_user_id = ? AND next_effective_week = ?", externalUserID, *prog.NextEffectiveWeek).
		Updates(map[string]interface{}{
			"current_effective_week": *prog.NextEffectiveWeek,
			"current_planned_days":   prog.NextPlannedDays,
			"current_planned_count":  prog.NextPlannedCount,
			"next_effective_week":    nil,
			"next_planned_days":      0,
			"next_planned_count":     0,
		})
	if res.Error != nil {
		return false, res.Error
	}
	if res.RowsAffected == 0 {
		// Another session promoted (or re-staged) concurrently — already done.
		return false, nil
	}
	log.Printf("📅 Schedule promoted: %s → week %s, %d day(s)", externalUserID, *prog.NextEffectiveWeek, prog.NextPlannedCount)
	return true, nil
}

// daysToMask validates weekday indices (0 = Monday … 6 = Sunday) and packs
// them into a bitmask, deduplicating as it goes.
func daysToMask(days []int) (int, int, error) {
	if len(days) == 0 {
		return 0, 0, ErrInvalidScheduleDays
	}
	mask := 0
	for _, d := range days {
		if d < 0 || d > 6 {
			return 0, 0, ErrInvalidScheduleDays
		}
		mask |= 1 << uint(d)
	}
	count := 0
	for i := 0; i < 7; i++ {
		if mask&(1<<uint(i)) != 0 {
			count++
		}
	}
	return mask, count, nil
}
