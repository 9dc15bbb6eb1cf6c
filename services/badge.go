package services

import (
	"fmt"

	"arena-progression-service/models"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

type BadgeService struct {
	DB *gorm.DB
}

func NewBadgeService(db *gorm.DB) *BadgeService {
	return &BadgeService{DB: db}
}

// SeedBadgeTypes upserts the predefined triggers so fresh deployments have them.
func (s *BadgeService) SeedBadgeTypes() error {
	for _, t := range models.BadgeTriggers {
		badge := t
		badge.ID = uuid.NewString()
		if err := s.DB.Where("code = ?", t.Code).FirstOrCreate(&badge).Error; err != nil {
			return err
		}
	}
	return nil
}

// AutoAwardBadges checks all badge triggers for a user after a progression update
func (s *BadgeService) AutoAwardBadges(externalUserID string) error {
	var prog models.UserProgression
	if err := s.DB.Where("external_user_id = ?", externalUserID).First(&prog).Error; err != nil {
		return err
	}

	// Streak and lifetime workout-day figures come from the reward markers
	var rewardedDays int64
	s.DB.Model(&models.DailyReward{}).
		Where("external_user_id = ?", externalUserID).
		Count(&rewardedDays)

	var latest models.DailyReward
	streak := 0
	if err := s.DB.Where("external_user_id = ?", externalUserID).
		Order("date_key DESC").First(&latest).Error; err == nil {
		streak = latest.StreakDays
	}

	var triggers []models.BadgeType
	if err := s.DB.Find(&triggers).Error; err != nil {
		return err
	}

	var awarded []string
	for _, trigger := range triggers {
		if s.meetsThreshold(&prog, rewardedDays, streak, trigger.Threshold) {
			// Check if already awarded
			var count int64
			s.DB.Model(&models.UserBadge{}).
				Where("external_user_id = ? AND badge_type_id = ?", externalUserID, trigger.ID).
				Count(&count)
			if count == 0 {
				userBadge := models.UserBadge{
					ID:             uuid.NewString(),
					ExternalUserID: externalUserID,
					BadgeTypeID:    trigger.ID,
				}
				if err := s.DB.Create(&userBadge).Error; err != nil {
					return err
				}
				awarded = append(awarded, trigger.Name)
				fmt.Printf("🎖️ Badge awarded: %s → %s\n", trigger.Name, externalUserID)
			}
		}
	}

	if len(awarded) > 0 {
		// Optional: emit event for push notification: "🎉 You earned: 'Iron Will'!"
	}
	return nil
}

func (s *BadgeService) meetsThreshold(prog *models.UserProgression, rewardedDays int64, streak int, req map[string]int64) bool {
	for key, required := range req {
		switch key {
		case "level":
			if int64(prog.Level) < required {
				return false
			}
		case "tier_rank":
			if int64(TierRank(prog.EloTier, prog.EloDivision)) < required {
				return false
			}
		case "elo_points":
			if int64(prog.EloPoints) < required {
				return false
			}
		case "rewarded_days":
			if rewardedDays < required {
				return false
			}
		case "streak_days":
			if int64(streak) < required {
				return false
			}
		case "event": // special: always true (e.g., first session)
			return true
		}
	}
	return true
}
