// services/scheduler.go
package services

import (
	"log"
	"time"

	"arena-progression-service/models"

	"github.com/go-co-op/gocron/v2"
	"github.com/google/uuid"
	"github.com/gosimple/slug"
	"gorm.io/gorm/clause"
)

// StartRankingSnapshotScheduler periodically rebuilds the clan ranking cache.
// This is display plumbing only — penalties, rewards and watermarks never read
// the snapshot, so the engine stays correct even if this job never runs.
func (s *LedgerService) StartRankingSnapshotScheduler() {
	sched, _ := gocron.NewScheduler()
	sched.Start()

	// Every 5 minutes: refresh the current week's clan standings
	_, _ = sched.NewJob(
		gocron.DurationJob(5*time.Minute),
		gocron.NewTask(func() {
			if err := s.RefreshClanRankingSnapshots(); err != nil {
				log.Printf("[Scheduler] snapshot refresh failed: %v", err)
			}
		}),
	)
}

// RefreshClanRankingSnapshots aggregates this week's ledger per clan and
// upserts one snapshot row per clan, ranked by total points.
func (s *LedgerService) RefreshClanRankingSnapshots() error {
	weekStart := s.Cal.WeekStart(s.Cal.Today())

	type clanTotal struct {
		ClanID      string
		TotalPoints int
		MemberCount int
	}
	var totals []clanTotal
	err := s.DB.Model(&models.WeekLedgerEntry{}).
		Select("clan_id, SUM(points) AS total_points, COUNT(*) AS member_count").
		Where("clan_id IS NOT NULL AND week_start = ?", weekStart).
		Group("clan_id").
		Order("total_points DESC").
		Scan(&totals).Error
	if err != nil {
		return err
	}

	for rank, t := range totals {
		clanName := t.ClanID
		var member models.ClanMemberMirror
		if err := s.DB.Where("clan_id = ?", t.ClanID).First(&member).Error; err == nil {
			clanName = member.ClanName
		}

		snapshot := models.ClanRankingSnapshot{
			ID:          uuid.NewString(),
			ClanID:      t.ClanID,
			WeekStart:   weekStart,
			ClanName:    clanName,
			Slug:        slug.Make(clanName),
			TotalPoints: t.TotalPoints,
			MemberCount: t.MemberCount,
			Rank:        rank + 1,
		}
		if err := s.DB.Clauses(clause.OnConflict{
			Columns: []clause.Column{{Name: "clan_id"}, {Name: "week_start"}},
			DoUpdates: clause.AssignmentColumns([]string{
				"clan_name", "slug", "total_points", "member_count", "rank", "updated_at",
			}),
		}).Create(&snapshot).Error; err != nil {
			log.Printf("[Scheduler] failed to upsert snapshot for clan %s: %v", t.ClanID, err)
		}
	}

	if len(totals) > 0 {
		log.Printf("✅ Refreshed %d clan ranking snapshot(s) for week %s", len(totals), weekStart)
	}
	return nil
}
