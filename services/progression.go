package services

import (
	"errors"
	"fmt"
	"log"
	"math"
	"time"

	"arena-progression-service/models"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// ArenaWeights define relative reward/penalty values (tunable via config/env later)
type ArenaWeights struct {
	WorkoutXP      int64 `default:"100"`
	StreakBonusXP  int64 `default:"10"` // per extra consecutive day
	StreakBonusCap int   `default:"7"`  // bonus stops growing past a week
	WorkoutElo     int   `default:"10"`
	MissPenaltyElo int   `default:"15"`
}

var DefaultArenaWeights = ArenaWeights{
	WorkoutXP:      100,
	StreakBonusXP:  10,
	StreakBonusCap: 7,
	WorkoutElo:     10,
	MissPenaltyElo: 15,
}

// LevelConfig: XP needed for *next* level (e.g., level 1 → 2 needs BaseXPPerLevel * 1^1.2)
const BaseXPPerLevel = 100

// xpGoalForLevel returns XP required to go from currentLevel to currentLevel+1
func xpGoalForLevel(currentLevel int) int64 {
	if currentLevel < 1 {
		currentLevel = 1
	}
	// G_n = floor(BaseXPPerLevel * n^1.2)
	return int64(float64(BaseXPPerLevel) * math.Pow(float64(currentLevel), 1.2))
}

var (
	ErrInvalidDateKey  = errors.New("invalid date key")
	ErrFutureDateKey   = errors.New("date key is in the future")
	errAlreadyRewarded = errors.New("already rewarded for this day")
	// errStaleProgression means another session changed the rating between our
	// read and our write; the transaction retries on a fresh read.
	errStaleProgression = errors.New("progression row changed concurrently")
)

// maxTxRetries bounds optimistic retries when rating writes collide.
const maxTxRetries = 3

// storeRatingUpdate writes the level/XP/rating columns through a guarded
// UPDATE: the row must still hold the rating the transaction read, otherwise a
// concurrent writer got there first and the caller retries on a fresh read.
// Only these columns are written, so staged-schedule and watermark updates
// running in parallel are never clobbered.
func storeRatingUpdate(tx *gorm.DB, prog *models.UserProgression, baseElo int) error {
	res := tx.Model(&models.UserProgression{}).
		Where("external_user_id = ? AND elo_points = ?", prog.ExternalUserID, baseElo).
		Updates(map[string]interface{}{
			"xp":               prog.XP,
			"level":            prog.Level,
			"xp_goal":          prog.XPGoal,
			"elo_points":       prog.EloPoints,
			"elo_tier":         prog.EloTier,
			"elo_division":     prog.EloDivision,
			"last_level_up_at": prog.LastLevelUpAt,
			"last_tier_up_at":  prog.LastTierUpAt,
		})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return errStaleProgression
	}
	return nil
}

type ProgressionService struct {
	DB      *gorm.DB
	Cal     *Calendar
	Weights ArenaWeights
}

func NewProgressionService(db *gorm.DB, cal *Calendar) *ProgressionService {
	return &ProgressionService{DB: db, Cal: cal, Weights: DefaultArenaWeights}
}

// EnsureProgressionDefaults ensures a UserProgression row exists (idempotent).
// New users start at iron IV with an empty commitment; the date watermark starts
// at today so days before signup are never evaluated.
func (s *ProgressionService) EnsureProgressionDefaults(externalUserID string) (*models.UserProgression, error) {
	var prog models.UserProgression
	err := s.DB.Where("external_user_id = ?", externalUserID).First(&prog).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		today := s.Cal.Today()
		tier, div := TierOf(0)
		prog = models.UserProgression{
			ID:                   uuid.NewString(),
			ExternalUserID:       externalUserID,
			Level:                1,
			XP:                   0,
			XPGoal:               xpGoalForLevel(1),
			EloPoints:            0,
			EloTier:              tier,
			EloDivision:          div,
			CurrentEffectiveWeek: s.Cal.WeekStart(today),
			LastProcessedDate:    today,
			LastProcessedWeek:    s.Cal.WeekStart(today),
		}
		if err := s.DB.Create(&prog).Error; err != nil {
			if errors.Is(err, gorm.ErrDuplicatedKey) {
				// Concurrent session created it first — re-read, same outcome.
				if err := s.DB.Where("external_user_id = ?", externalUserID).First(&prog).Error; err != nil {
					return nil, err
				}
				return &prog, nil
			}
			return nil, err
		}
		// First-session badges (the welcome badge) fire on row creation, not
		// on the first reward.
		_ = NewBadgeService(s.DB).AutoAwardBadges(externalUserID)
		return &prog, nil
	}
	if err != nil {
		return nil, err
	}
	return &prog, nil
}

// GetProgression fetches the progression row without creating it.
func (s *ProgressionService) GetProgression(externalUserID string) (*models.UserProgression, error) {
	var prog models.UserProgression
	if err := s.DB.Where("external_user_id = ?", externalUserID).First(&prog).Error; err != nil {
		return nil, err
	}
	return &prog, nil
}

// ApplyWorkoutRewards grants XP, arena points and the week-ledger contribution
// for one completed training day — at most once per (user, day). XP award,
// level-up carry, tier recompute, ledger upsert and the per-day marker all
// commit in a single transaction; a duplicate marker aborts the whole thing and
// the caller gets the original result back.
func (s *ProgressionService) ApplyWorkoutRewards(externalUserID, dateKey string) (*models.DailyReward, error) {
	if dateKey == "" {
		dateKey = s.Cal.Today()
	}
	if !s.Cal.ValidDateKey(dateKey) {
		return nil, ErrInvalidDateKey
	}
	if dateKey > s.Cal.Today() {
		return nil, ErrFutureDateKey
	}

	var marker models.DailyReward
	var err error
	for attempt := 0; attempt < maxTxRetries; attempt++ {
		err = s.DB.Transaction(func(tx *gorm.DB) error {
			var prog models.UserProgression
			if err := tx.Where("external_user_id = ?", externalUserID).First(&prog).Error; err != nil {
				return fmt.Errorf("progression record not found for %s: %w", externalUserID, err)
			}
			baseElo := prog.EloPoints

			// Streak: consecutive rewarded days ending at dateKey
			streak := 1
			var prev models.DailyReward
			if err := tx.Where("external_user_id = ? AND date_key = ?",
				externalUserID, s.Cal.AddDays(dateKey, -1)).First(&prev).Error; err == nil {
				streak = prev.StreakDays + 1
			}
			bonusDays := streak - 1
			if bonusDays > s.Weights.StreakBonusCap {
				bonusDays = s.Weights.StreakBonusCap
			}
			xpGain := s.Weights.WorkoutXP + s.Weights.StreakBonusXP*int64(bonusDays)
			eloGain := s.Weights.WorkoutElo

			// The marker insert is the first write: a racing session hits the unique
			// index here and its transaction rolls back before touching anything else.
			marker = models.DailyReward{
				ID:             uuid.NewString(),
				ExternalUserID: externalUserID,
				DateKey:        dateKey,
				XPAwarded:      xpGain,
				EloAwarded:     eloGain,
				StreakDays:     streak,
			}
			if err := tx.Create(&marker).Error; err != nil {
				if errors.Is(err, gorm.ErrDuplicatedKey) {
					return errAlreadyRewarded
				}
				return err
			}

			// XP with level-up carry — the remainder rolls into the new level
			prog.XP += xpGain
			for prog.XP >= prog.XPGoal {
				prog.XP -= prog.XPGoal
				prog.Level++
				prog.XPGoal = xpGoalForLevel(prog.Level)
				now := time.Now()
				prog.LastLevelUpAt = &now
			}

			// Arena points; tier/division are always re-derived, never patched
			oldRank := TierRank(prog.EloTier, prog.EloDivision)
			prog.EloPoints += eloGain
			prog.EloTier, prog.EloDivision = TierOf(prog.EloPoints)
			if TierRank(prog.EloTier, prog.EloDivision) > oldRank {
				now := time.Now()
				prog.LastTierUpAt = &now
			}

			// Week ledger upsert: first contribution creates the row, later ones increment
			entry := models.WeekLedgerEntry{
				ID:             uuid.NewString(),
				ExternalUserID: externalUserID,
				WeekStart:      s.Cal.WeekStart(dateKey),
				Points:         eloGain,
				ClanID:         prog.ClanID,
			}
			if err := tx.Clauses(clause.OnConflict{
				Columns: []clause.Column{{Name: "external_user_id"}, {Name: "week_start"}},
				DoUpdates: clause.Assignments(map[string]interface{}{
					"points": gorm.Expr("points + ?", eloGain),
				}),
			}).Create(&entry).Error; err != nil {
				return err
			}

			if err := storeRatingUpdate(tx, &prog, baseElo); err != nil {
				return err
			}

			log.Printf("🏋️ Rewards applied: %s day=%s → +%dxp (streak %d), +%d elo, Lvl=%d %s %s",
				externalUserID, dateKey, xpGain, streak, eloGain, prog.Level,
				prog.EloTier, romanDivision(prog.EloDivision))
			return nil
		})
		if !errors.Is(err, errStaleProgression) {
			break
		}
	}

	if errors.Is(err, errAlreadyRewarded) {
		// At-most-once: hand back the marker from the winning invocation.
		var existing models.DailyReward
		if e := s.DB.Where("external_user_id = ? AND date_key = ?", externalUserID, dateKey).
			First(&existing).Error; e != nil {
			return nil, e
		}
		return &existing, nil
	}
	if err != nil {
		return nil, err
	}

	// Auto-award badges (fire-and-forget, outside the reward transaction)
	badgeSvc := NewBadgeService(s.DB)
	_ = badgeSvc.AutoAwardBadges(externalUserID)

	return &marker, nil
}

// GrantElo is the admin backdoor: adjusts arena points directly (support cases,
// tournament imports). Tier/division recomputed in the same transaction.
func (s *ProgressionService) GrantElo(externalUserID string, points int, reason string) (*models.UserProgression, error) {
	var updated models.UserProgression
	var err error
	for attempt := 0; attempt < maxTxRetries; attempt++ {
		err = s.DB.Transaction(func(tx *gorm.DB) error {
			var prog models.UserProgression
			if err := tx.Where("external_user_id = ?", externalUserID).First(&prog).Error; err != nil {
				return fmt.Errorf("progression record not found for %s: %w", externalUserID, err)
			}
			baseElo := prog.EloPoints
			prog.EloPoints += points
			if prog.EloPoints < 0 {
				prog.EloPoints = 0
			}
			prog.EloTier, prog.EloDivision = TierOf(prog.EloPoints)
			if err := storeRatingUpdate(tx, &prog, baseElo); err != nil {
				return err
			}
			updated = prog
			log.Printf("🛠️ Elo granted: %s %+d (reason: %s) → %d points, %s %s",
				externalUserID, points, reason, prog.EloPoints, prog.EloTier, romanDivision(prog.EloDivision))
			return nil
		})
		if !errors.Is(err, errStaleProgression) {
			break
		}
	}
	if err != nil {
		return nil, err
	}
	return &updated, nil
}
