package models

import (
	"time"
)

// BadgeType: static config (loaded from DB or JSON)
type BadgeType struct {
	ID          string `gorm:"primaryKey;type:uuid"`
	Code        string `gorm:"uniqueIndex;not null"` // e.g., "FIRST_WORKOUT", "IRON_WILL"
	Name        string `gorm:"not null"`             // "First Workout", "Iron Will"
	Description string
	IconURL     string           `gorm:"type:text"`                         // e.g., R2 URL to SVG/png
	Rarity      string           `gorm:"type:varchar(16);default:'common'"` // common, rare, epic, legendary
	Threshold   map[string]int64 `gorm:"type:jsonb;serializer:json"`        // e.g., {"level": 10}, {"streak_days": 30}
	CreatedAt   time.Time        `gorm:"autoCreateTime"`
}

// UserBadge: awarded instance (many-to-many)
type UserBadge struct {
	ID             string    `gorm:"primaryKey;type:uuid"`
	ExternalUserID string    `gorm:"index;not null"`
	BadgeTypeID    string    `gorm:"index;not null"`
	AwardedAt      time.Time `gorm:"autoCreateTime"`
}

// Predefined badge triggers
var BadgeTriggers = []BadgeType{
	{
		Code:        "WELCOME",
		Name:        "Welcome to the Arena!",
		Description: "Opened the Arena for the first time",
		Rarity:      "common",
		Threshold:   map[string]int64{"event": 1}, // awarded on first session
	},
	{
		Code:        "FIRST_WORKOUT",
		Name:        "First Rep",
		Description: "Logged your first workout",
		Rarity:      "common",
		Threshold:   map[string]int64{"rewarded_days": 1},
	},
	{
		Code:        "STREAK_7",
		Name:        "One Week Strong",
		Description: "Trained 7 days in a row",
		Rarity:      "rare",
		Threshold:   map[string]int64{"streak_days": 7},
	},
	{
		Code:        "STREAK_30",
		Name:        "Iron Will",
		Description: "Trained 30 days in a row",
		Rarity:      "epic",
		Threshold:   map[string]int64{"streak_days": 30},
	},
	{
		Code:        "GOLD_TIER",
		Name:        "Gilded",
		Description: "Reached Gold tier in the Arena",
		Rarity:      "epic",
		Threshold:   map[string]int64{"tier_rank": 12}, // gold IV
	},
	{
		Code:        "LEVEL_50",
		Name:        "Halfway There",
		Description: "Reached Level 50",
		Rarity:      "epic",
		Threshold:   map[string]int64{"level": 50},
	},
}
