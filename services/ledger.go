package services

import (
	"errors"

	"arena-progression-service/models"

	"gorm.io/gorm"
)

type LedgerService struct {
	DB  *gorm.DB
	Cal *Calendar
}

func NewLedgerService(db *gorm.DB, cal *Calendar) *LedgerService {
	return &LedgerService{DB: db, Cal: cal}
}

// GetWeekPoints returns the user's accumulated points for the current week,
// zero if nothing was contributed yet. Pure read — safe while transactions are
// in flight, reflects last committed state.
func (s *LedgerService) GetWeekPoints(externalUserID string) (int, error) {
	var entry models.WeekLedgerEntry
	err := s.DB.Where("external_user_id = ? AND week_start = ?",
		externalUserID, s.Cal.WeekStart(s.Cal.Today())).
		First(&entry).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return 0, nil
	}
	if err != nil {
		return 0, err
	}
	return entry.Points, nil
}

// ClanStanding is one member row in a clan's weekly ranking.
type ClanStanding struct {
	ExternalUserID string `json:"external_user_id"`
	Points         int    `json:"points"`
}

// GetClanWeekStandings aggregates the given week's ledger entries for one clan,
// highest contribution first. weekStart defaults to the current week.
func (s *LedgerService) GetClanWeekStandings(clanID, weekStart string) ([]ClanStanding, error) {
	if weekStart == "" {
		weekStart = s.Cal.WeekStart(s.Cal.Today())
	}
	var standings []ClanStanding
	err := s.DB.Model(&models.WeekLedgerEntry{}).
		Select("external_user_id, points").
		Where("clan_id = ? AND week_start = ?", clanID, weekStart).
		Order("points DESC").
		Scan(&standings).Error
	return standings, err
}
