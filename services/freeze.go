package services

import (
	"errors"
	"fmt"
	"log"
	"time"

	"arena-progression-service/models"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

var (
	ErrInvalidFreezeRange = errors.New("invalid freeze date range")
	ErrFreezeNotPending   = errors.New("freeze request already reviewed")
	ErrNotClanLeader      = errors.New("reviewer is not a leader of this clan")
)

// MaxFreezeDays caps a single freeze window (tunable via config/env later)
const MaxFreezeDays = 30

type FreezeService struct {
	DB  *gorm.DB
	Cal *Calendar
}

func NewFreezeService(db *gorm.DB, cal *Calendar) *FreezeService {
	return &FreezeService{DB: db, Cal: cal}
}

// RequestFreeze appends a pending freeze window for the user. Pending windows
// have no effect on penalties until a clan leader approves them.
func (s *FreezeService) RequestFreeze(externalUserID, fromDate, untilDate, reason, proofURL string) (*models.FreezeWindow, error) {
	if !s.Cal.ValidDateKey(fromDate) || !s.Cal.ValidDateKey(untilDate) || fromDate > untilDate {
		return nil, ErrInvalidFreezeRange
	}
	// Both ends inclusive, so a window of MaxFreezeDays days ends at from+cap-1.
	if s.Cal.AddDays(fromDate, MaxFreezeDays-1) < untilDate {
		return nil, ErrInvalidFreezeRange
	}

	var prog models.UserProgression
	if err := s.DB.Where("external_user_id = ?", externalUserID).First(&prog).Error; err != nil {
		return nil, fmt.Errorf("progression record not found for %s: %w", externalUserID, err)
	}

	window := models.FreezeWindow{
		ID:             uuid.NewString(),
		ExternalUserID: externalUserID,
		ClanID:         prog.ClanID,
		FromDate:       fromDate,
		UntilDate:      untilDate,
		Status:         models.FreezeStatusPending,
		Reason:         reason,
		ProofURL:       proofURL,
	}
	if err := s.DB.Create(&window).Error; err != nil {
		return nil, err
	}
	log.Printf("🧊 Freeze requested: %s [%s..%s] (%s)", externalUserID, fromDate, untilDate, reason)
	return &window, nil
}

// ListFreezes returns the user's freeze windows, newest first.
func (s *FreezeService) ListFreezes(externalUserID string) ([]models.FreezeWindow, error) {
	var windows []models.FreezeWindow
	err := s.DB.Where("external_user_id = ?", externalUserID).
		Order("created_at DESC").
		Find(&windows).Error
	return windows, err
}

// ReviewFreeze moves a pending request to approved or rejected. The transition
// is terminal: the guarded update only matches rows still in pending, so a
// second review (or a concurrent one) is rejected instead of flipping the
// decision. The reviewer must be a leader of the clan per the synced
// membership mirror.
func (s *FreezeService) ReviewFreeze(reviewerID, clanID, freezeID string, approve bool) (*models.FreezeWindow, error) {
	var member models.ClanMemberMirror
	if err := s.DB.Where("external_user_id = ? AND clan_id = ?", reviewerID, clanID).
		First(&member).Error; err != nil || !member.IsLeader() {
		return nil, ErrNotClanLeader
	}

	status := models.FreezeStatusRejected
	if approve {
		status = models.FreezeStatusApproved
	}
	now := time.Now()

	var window models.FreezeWindow
	err := s.DB.Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("id = ? AND clan_id = ?", freezeID, clanID).First(&window).Error; err != nil {
			return err
		}
		res := tx.Model(&models.FreezeWindow{}).
			Where("id = ? AND status = ?", freezeID, models.FreezeStatusPending).
			Updates(map[string]interface{}{
				"status":      status,
				"reviewed_by": reviewerID,
				"reviewed_at": now,
			})
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return ErrFreezeNotPending
		}
		window.Status = status
		window.ReviewedBy = &reviewerID
		window.ReviewedAt = &now
		return nil
	})
	if err != nil {
		return nil, err
	}
	log.Printf("🧊 Freeze %s: %s by %s", status, freezeID, reviewerID)
	return &window, nil
}
