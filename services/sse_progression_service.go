package services

import (
	"bufio"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"time"

	"arena-progression-service/models"

	"github.com/gofiber/fiber/v2"
	"gorm.io/gorm"
)

// StreamProgressionSSE streams live progression updates for the authenticated
// user. The feed is a push-style cache invalidation signal for clients — the
// transactionally written row stays the source of truth; we just poll its
// UpdatedAt cursor and forward committed state.
func (s *ProgressionService) StreamProgressionSSE(c *fiber.Ctx) error {
	userID := c.Locals("user_id").(string)

	// SSE headers
	c.Set("Content-Type", "text/event-stream")
	c.Set("Cache-Control", "no-cache")
	c.Set("Connection", "keep-alive")
	c.Set("X-Accel-Buffering", "no") // nginx

	c.Context().SetBodyStreamWriter(func(w *bufio.Writer) {
		ticker := time.NewTicker(2 * time.Second)
		defer ticker.Stop()

		var lastSeenUpdate time.Time

		// Initialize cursor from current committed state
		var current models.UserProgression
		if err := s.DB.Where("external_user_id = ?", userID).First(&current).Error; err == nil {
			lastSeenUpdate = current.UpdatedAt
		} else if !errors.Is(err, gorm.ErrRecordNotFound) {
			log.Printf("SSE init error for user %s: %v", userID, err)
		}

		// Initial keepalive (comment event)
		w.WriteString(":\n\n")
		w.Flush()

		for {
			select {
			case <-ticker.C:
				var prog models.UserProgression
				err := s.DB.
					Where("external_user_id = ? AND updated_at > ?", userID, lastSeenUpdate).
					First(&prog).Error
				if errors.Is(err, gorm.ErrRecordNotFound) {
					continue
				}
				if err != nil {
					log.Printf("SSE query error for user %s: %v", userID, err)
					continue
				}

				lastSeenUpdate = prog.UpdatedAt

				payload, _ := json.Marshal(progressionEvent(&prog))
				fmt.Fprintf(w, "event: progression\ndata: %s\n\n", payload)

				if err := w.Flush(); err != nil {
					// Client disconnected
					return
				}

			case <-c.Context().Done():
				// Client closed connection
				return
			}
		}
	})

	return nil
}

// progressionEvent decorates the raw row with the derived display fields the
// clients render (tier name, styling).
func progressionEvent(prog *models.UserProgression) fiber.Map {
	return fiber.Map{
		"level":                prog.Level,
		"xp":                   prog.XP,
		"xp_goal":              prog.XPGoal,
		"elo_points":           prog.EloPoints,
		"elo_tier":             prog.EloTier,
		"elo_division":         prog.EloDivision,
		"tier_display":         TierDisplayName(prog.EloTier, prog.EloDivision),
		"tier_color":           TierStyle(prog.EloTier),
		"clan_id":              prog.ClanID,
		"current_planned_days": prog.CurrentPlannedDays,
		"next_effective_week":  prog.NextEffectiveWeek,
		"last_processed_date":  prog.LastProcessedDate,
		"updated_at":           prog.UpdatedAt,
	}
}
