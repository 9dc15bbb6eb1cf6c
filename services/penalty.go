package services

import (
	"errors"
	"log"

	"arena-progression-service/models"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// MaxCatchUpDaysPerCall bounds how many unprocessed days one invocation walks.
// A user who was away for months converges over a few calls instead of one
// giant burst of transactions.
const MaxCatchUpDaysPerCall = 60

// errWatermarkConflict means another session processed the day first. Not an
// error for the caller — the day is done either way.
var errWatermarkConflict = errors.New("watermark advanced by concurrent session")

// PenaltyService is the lazy miss-penalty engine. There is no background
// scheduler: sessions call ApplyPendingMissPenalties on load and the engine
// catches up from the stored watermark, one day per transaction.
type PenaltyService struct {
	DB      *gorm.DB
	Cal     *Calendar
	Weights ArenaWeights
	sched   *ScheduleService // promotes the staged commitment mid-walk
}

func NewPenaltyService(db *gorm.DB, cal *Calendar) *PenaltyService {
	return &PenaltyService{DB: db, Cal: cal, Weights: DefaultArenaWeights, sched: NewScheduleService(db, cal)}
}

// ApplyPendingMissPenalties walks every day strictly after the user's
// last-processed watermark and strictly before today, deducting arena points
// for committed days with no workout and no approved freeze. Each day commits
// in its own transaction together with the watermark advance, so concurrent
// sessions can each run this safely — whoever loses the guarded update just
// moves on. Returns the number of penalties applied by *this* invocation.
func (s *PenaltyService) ApplyPendingMissPenalties(externalUserID string) (int, error) {
	applied := 0
	today := s.Cal.Today()

	for i := 0; i < MaxCatchUpDaysPerCall; i++ {
		var prog models.UserProgression
		if err := s.DB.Where("external_user_id = ?", externalUserID).First(&prog).Error; err != nil {
			return applied, err
		}

		day := s.Cal.AddDays(prog.LastProcessedDate, 1)
		if day >= today {
			break // the current day is never judged before it ends
		}

		// Each day is judged under the commitment in force for its week: the
		// staged schedule promotes the moment the walk crosses into its
		// effective week, not before. Days in earlier weeks keep the old mask,
		// so staging can neither penalize retroactively nor weaken a running
		// week after a miss is already on the board.
		if prog.NextEffectiveWeek != nil && *prog.NextEffectiveWeek <= s.Cal.WeekStart(day) {
			if _, err := s.sched.promoteIfDueFor(prog.ExternalUserID, s.Cal.WeekStart(day)); err != nil {
				return applied, err
			}
			continue // re-read and judge under the promoted mask
		}

		penalized, err := s.processDay(&prog, day)
		if errors.Is(err, errWatermarkConflict) {
			continue // re-read and carry on from the new watermark
		}
		if err != nil {
			return applied, err
		}
		if penalized {
			applied++
		}
	}
	return applied, nil
}

// processDay evaluates one day and advances the watermark past it, penalty or
// not. The penalty record and the guarded watermark update share a transaction:
// either both commit or neither does.
func (s *PenaltyService) processDay(prog *models.UserProgression, day string) (bool, error) {
	miss := false

	err := s.DB.Transaction(func(tx *gorm.DB) error {
		committed := prog.HasPlannedDay(s.Cal.DayIndex(day))
		if committed {
			frozen, err := s.hasApprovedFreeze(tx, prog.ExternalUserID, day)
			if err != nil {
				return err
			}
			trained, err := s.trainedOn(tx, prog.ExternalUserID, day)
			if err != nil {
				return err
			}
			miss = !frozen && !trained
		}

		updates := map[string]interface{}{
			"last_processed_date": day,
			"last_processed_week": s.Cal.WeekStart(day),
		}
		if miss {
			points := prog.EloPoints - s.Weights.MissPenaltyElo
			if points < 0 {
				points = 0 // rating floor; a long absence can't dig below zero
			}
			tier, division := TierOf(points)
			updates["elo_points"] = points
			updates["elo_tier"] = tier
			updates["elo_division"] = division

			record := models.PenaltyRecord{
				ID:             uuid.NewString(),
				ExternalUserID: prog.ExternalUserID,
				DateKey:        day,
				EloDeducted:    prog.EloPoints - points,
			}
			if err := tx.Create(&record).Error; err != nil {
				if errors.Is(err, gorm.ErrDuplicatedKey) {
					return errWatermarkConflict
				}
				return err
			}
		}

		q := tx.Model(&models.UserProgression{}).
			Where("external_user_id = ? AND last_processed_date = ?",
				prog.ExternalUserID, prog.LastProcessedDate)
		if miss {
			// The deduction is an absolute value computed from our read; if a
			// reward committed in between, the rating moved and this day must
			// be re-evaluated on a fresh read.
			q = q.Where("elo_points = ?", prog.EloPoints)
		}
		res := q.Updates(updates)
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return errWatermarkConflict
		}
		return nil
	})
	if err != nil {
		return false, err
	}

	if miss {
		log.Printf("⚔️ Miss penalty: %s day=%s -%d elo", prog.ExternalUserID, day, s.Weights.MissPenaltyElo)
	}
	return miss, nil
}

func (s *PenaltyService) hasApprovedFreeze(tx *gorm.DB, externalUserID, day string) (bool, error) {
	var count int64
	err := tx.Model(&models.FreezeWindow{}).
		Where("external_user_id = ? AND status = ? AND from_date <= ? AND until_date >= ?",
			externalUserID, models.FreezeStatusApproved, day, day).
		Count(&count).Error
	return count > 0, err
}

// trainedOn checks the reward marker first (our own source of truth), then the
// synced workout mirror (covers workouts logged but not yet rewarded).
func (s *PenaltyService) trainedOn(tx *gorm.DB, externalUserID, day string) (bool, error) {
	var count int64
	if err := tx.Model(&models.DailyReward{}).
		Where("external_user_id = ? AND date_key = ?", externalUserID, day).
		Count(&count).Error; err != nil {
		return false, err
	}
	if count > 0 {
		return true, nil
	}
	if err := tx.Model(&models.WorkoutDayMirror{}).
		Where("external_user_id = ? AND date_key = ?", externalUserID, day).
		Count(&count).Error; err != nil {
		return false, err
	}
	return count > 0, nil
}
