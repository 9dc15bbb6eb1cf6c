package models

// WorkoutDayMirror is a local snapshot of workout-completed facts.
// Owned by the fitness service; populated here via the workout sync worker so the
// penalty engine can answer "did user U train on day D?" without a remote call.
type WorkoutDayMirror struct {
	ID             string `gorm:"primaryKey;type:uuid" json:"id"`
	ExternalUserID string `gorm:"uniqueIndex:idx_workout_user_date;not null" json:"external_user_id"`
	DateKey        string `gorm:"uniqueIndex:idx_workout_user_date;type:varchar(10);not null" json:"date_key"`

	WorkoutCount int   `json:"workout_count" gorm:"default:1"`
	TotalVolume  int64 `json:"total_volume" gorm:"default:0"` // kg lifted, informational only

	Timestamps
}
