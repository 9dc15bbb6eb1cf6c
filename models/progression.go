package models

import (
	"time"

	"gorm.io/gorm"
)

// UserProgression is the per-user progression document (denormalized for performance).
// It is the single source of truth for level/XP, arena rating and the weekly training
// commitment. Mutated only inside transactions in the services layer.
type UserProgression struct {
	ID             string `gorm:"primaryKey;type:uuid" json:"id"`
	ExternalUserID string `gorm:"uniqueIndex;not null" json:"external_user_id"` // links to profile service

	// Account level track
	Level  int   `json:"level" gorm:"default:1"`
	XP     int64 `json:"xp" gorm:"default:0"`
	XPGoal int64 `json:"xp_goal" gorm:"default:100"` // XP needed for next level; recomputed on level-up

	// Arena rating. EloTier/EloDivision are derived from EloPoints — every write that
	// touches EloPoints must recompute them in the same transaction.
	EloPoints   int    `json:"elo_points" gorm:"default:0"`
	EloTier     string `json:"elo_tier" gorm:"type:varchar(16);default:'iron'"`
	EloDivision int    `json:"elo_division" gorm:"default:4"` // 4 = lowest within tier, 1 = highest

	// Current week's training commitment. PlannedDays is a bitmask over weekday
	// indices 0..6 (0 = Monday).
	CurrentEffectiveWeek string `json:"current_effective_week" gorm:"type:varchar(10)"`
	CurrentPlannedDays   int    `json:"current_planned_days" gorm:"default:0"`
	CurrentPlannedCount  int    `json:"current_planned_count" gorm:"default:0"`

	// Staged commitment for a future week; promoted by ApplyPendingScheduleIfDue.
	NextEffectiveWeek *string `json:"next_effective_week,omitempty" gorm:"type:varchar(10)"`
	NextPlannedDays   int     `json:"next_planned_days" gorm:"default:0"`
	NextPlannedCount  int     `json:"next_planned_count" gorm:"default:0"`

	// Catch-up watermarks. Only ever advance, never rewind.
	LastProcessedDate string `json:"last_processed_date" gorm:"type:varchar(10)"`
	LastProcessedWeek string `json:"last_processed_week" gorm:"type:varchar(10)"`

	// Weak back-reference; clan membership is owned by the social service.
	ClanID *string `json:"clan_id,omitempty" gorm:"index"`

	// Milestones
	LastLevelUpAt *time.Time `json:"last_level_up_at,omitempty"`
	LastTierUpAt  *time.Time `json:"last_tier_up_at,omitempty"`

	Timestamps
}

// Timestamps adds GORM auto-times
type Timestamps struct {
	CreatedAt time.Time      `json:"created_at" gorm:"autoCreateTime"`
	UpdatedAt time.Time      `json:"updated_at" gorm:"autoUpdateTime"`
	DeletedAt gorm.DeletedAt `json:"deleted_at,omitempty" gorm:"index"`
}

// HasPlannedDay reports whether weekday index (0 = Monday) is part of the
// current week's commitment.
func (p *UserProgression) HasPlannedDay(dayIndex int) bool {
	if dayIndex < 0 || dayIndex > 6 {
		return false
	}
	return p.CurrentPlannedDays&(1<<uint(dayIndex)) != 0
}

// DailyReward marks that workout rewards were granted for one calendar day.
// The composite unique index is the at-most-once guard: a second session racing
// the same day fails the insert and the whole transaction rolls back.
type DailyReward struct {
	ID             string `gorm:"primaryKey;type:uuid" json:"id"`
	ExternalUserID string `gorm:"uniqueIndex:idx_daily_reward_user_date;not null" json:"external_user_id"`
	DateKey        string `gorm:"uniqueIndex:idx_daily_reward_user_date;type:varchar(10);not null" json:"date_key"`

	XPAwarded  int64 `json:"xp_awarded" gorm:"default:0"`
	EloAwarded int   `json:"elo_awarded" gorm:"default:0"`
	StreakDays int   `json:"streak_days" gorm:"default:1"` // consecutive rewarded days ending at DateKey

	Timestamps
}

// PenaltyRecord is the audit trail of applied miss penalties (one per penalized day).
type PenaltyRecord struct {
	ID             string `gorm:"primaryKey;type:uuid" json:"id"`
	ExternalUserID string `gorm:"uniqueIndex:idx_penalty_user_date;not null" json:"external_user_id"`
	DateKey        string `gorm:"uniqueIndex:idx_penalty_user_date;type:varchar(10);not null" json:"date_key"`

	EloDeducted int `json:"elo_deducted"`

	Timestamps
}
