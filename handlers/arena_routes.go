// handlers/arena_routes.go
package handlers

import (
	"errors"
	"fmt"
	"log"
	"path/filepath"

	"arena-progression-service/middleware"
	"arena-progression-service/models"
	"arena-progression-service/services"
	"arena-progression-service/utils"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

// ArenaServices bundles the engine services the routes need.
type ArenaServices struct {
	Progression *services.ProgressionService
	Schedule    *services.ScheduleService
	Penalty     *services.PenaltyService
	Freeze      *services.FreezeService
	Ledger      *services.LedgerService
	AuthClient  *services.AuthServiceClient
}

func SetupArenaRoutes(app *fiber.App, svc ArenaServices) {
	// 🔐 Secured routes — require user context (userID, roles) from the Gateway
	securedGroup := app.Group("/", middleware.UserContextMiddleware())

	// GET /user/arena — the session-start call. Runs the lazy catch-up chain
	// (ensure defaults → miss penalties → promote staged schedule) before
	// rendering, so state is current whenever a client loads the Arena tab.
	// The penalty walk must run first: it promotes the staged schedule itself
	// the moment the backlog crosses its effective week, so each missed day is
	// judged under the commitment that governed that week. The standalone
	// promotion afterwards covers the no-backlog case.
	securedGroup.Get("/user/arena", func(c *fiber.Ctx) error {
		userID := c.Locals("user_id").(string)

		if _, err := svc.Progression.EnsureProgressionDefaults(userID); err != nil {
			return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
				"error": "failed to initialize progression",
				"cause": err.Error(),
			})
		}
		if _, err := svc.Penalty.ApplyPendingMissPenalties(userID); err != nil {
			return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
				"error": "failed to apply pending penalties",
				"cause": err.Error(),
			})
		}
		if _, err := svc.Schedule.ApplyPendingScheduleIfDue(userID); err != nil {
			return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
				"error": "failed to promote schedule",
				"cause": err.Error(),
			})
		}

		prog, err := svc.Progression.GetProgression(userID)
		if err != nil {
			return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
				"error": "DB error fetching progression",
				"cause": err.Error(),
			})
		}
		weekPoints, err := svc.Ledger.GetWeekPoints(userID)
		if err != nil {
			return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
				"error": "failed to read week points",
				"cause": err.Error(),
			})
		}

		return c.JSON(arenaView(prog, weekPoints))
	})

	// POST /user/arena/workout-reward — at most once per (user, day); repeat
	// calls return the original grant.
	securedGroup.Post("/user/arena/workout-reward", func(c *fiber.Ctx) error {
		userID := c.Locals("user_id").(string)

		var req struct {
			DateKey string `json:"date_key"` // optional, defaults to today
		}
		if len(c.Body()) > 0 {
			if err := c.BodyParser(&req); err != nil {
				return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
					"error": "invalid JSON",
					"cause": err.Error(),
				})
			}
		}

		if _, err := svc.Progression.EnsureProgressionDefaults(userID); err != nil {
			return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
				"error": "failed to initialize progression",
				"cause": err.Error(),
			})
		}

		reward, err := svc.Progression.ApplyWorkoutRewards(userID, req.DateKey)
		if errors.Is(err, services.ErrInvalidDateKey) || errors.Is(err, services.ErrFutureDateKey) {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": err.Error()})
		}
		if err != nil {
			return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
				"error": "reward application failed",
				"cause": err.Error(),
			})
		}

		prog, err := svc.Progression.GetProgression(userID)
		if err != nil {
			return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
				"error": "DB error fetching progression",
				"cause": err.Error(),
			})
		}

		return c.JSON(fiber.Map{
			"reward":      reward,
			"progression": arenaView(prog, 0),
		})
	})

	// PUT /user/arena/schedule — stages the commitment for next week; this
	// week's commitment never changes.
	securedGroup.Put("/user/arena/schedule", func(c *fiber.Ctx) error {
		userID := c.Locals("user_id").(string)

		var req struct {
			Days []int `json:"days"` // weekday indices, 0 = Monday
		}
		if err := c.BodyParser(&req); err != nil {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
				"error": "invalid JSON",
				"cause": err.Error(),
			})
		}

		if _, err := svc.Progression.EnsureProgressionDefaults(userID); err != nil {
			return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
				"error": "failed to initialize progression",
				"cause": err.Error(),
			})
		}

		prog, err := svc.Schedule.UpdateTrainingSchedule(userID, req.Days)
		if errors.Is(err, services.ErrInvalidScheduleDays) {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": err.Error()})
		}
		if err != nil {
			return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
				"error": "schedule update failed",
				"cause": err.Error(),
			})
		}

		return c.JSON(fiber.Map{
			"message":             "schedule staged for next week",
			"next_effective_week": prog.NextEffectiveWeek,
			"planned_days":        prog.NextPlannedDays,
			"planned_count":       prog.NextPlannedCount,
		})
	})

	securedGroup.Get("/user/arena/week-points", func(c *fiber.Ctx) error {
		userID := c.Locals("user_id").(string)
		points, err := svc.Ledger.GetWeekPoints(userID)
		if err != nil {
			return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
				"error": "failed to read week points",
				"cause": err.Error(),
			})
		}
		return c.JSON(fiber.Map{"week_points": points})
	})

	// POST /user/arena/freeze — multipart form: from_date, until_date, reason
	// and an optional proof document (medical note etc.) pushed to R2.
	securedGroup.Post("/user/arena/freeze", func(c *fiber.Ctx) error {
		userID := c.Locals("user_id").(string)

		fromDate := c.FormValue("from_date")
		untilDate := c.FormValue("until_date")
		reason := c.FormValue("reason")
		if fromDate == "" || untilDate == "" {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
				"error": "from_date and until_date are required",
			})
		}

		proofURL := ""
		if fileHeader, err := c.FormFile("proof"); err == nil {
			key := fmt.Sprintf("freeze-proofs/%s/%s%s", userID, uuid.NewString(), filepath.Ext(fileHeader.Filename))
			url, upErr := utils.UploadFileToR2(fileHeader, key)
			if upErr != nil {
				// R2 down or unconfigured: keep the proof locally and serve it from /uploads
				log.Printf("⚠️ R2 upload failed, saving proof locally: %v", upErr)
				localPath := utils.GetUploadPath(key)
				if saveErr := utils.SaveFile(fileHeader, localPath); saveErr != nil {
					return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
						"error": "failed to store proof document",
						"cause": saveErr.Error(),
					})
				}
				url = "/" + localPath
			}
			proofURL = url
		}

		if _, err := svc.Progression.EnsureProgressionDefaults(userID); err != nil {
			return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
				"error": "failed to initialize progression",
				"cause": err.Error(),
			})
		}

		window, err := svc.Freeze.RequestFreeze(userID, fromDate, untilDate, reason, proofURL)
		if errors.Is(err, services.ErrInvalidFreezeRange) {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": err.Error()})
		}
		if err != nil {
			return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
				"error": "freeze request failed",
				"cause": err.Error(),
			})
		}
		return c.Status(fiber.StatusCreated).JSON(window)
	})

	securedGroup.Get("/user/arena/badges", func(c *fiber.Ctx) error {
		userID := c.Locals("user_id").(string)
		type badgeRow struct {
			ID          string `json:"id"`
			Code        string `json:"code"`
			Name        string `json:"name"`
			Description string `json:"description"`
			IconURL     string `json:"icon_url"`
			Rarity      string `json:"rarity"`
		}
		var badges []badgeRow
		if err := svc.Progression.DB.
			Table("user_badges").
			Select("user_badges.id, badge_types.code, badge_types.name, badge_types.description, badge_types.icon_url, badge_types.rarity").
			Joins("INNER JOIN badge_types ON badge_types.id = user_badges.badge_type_id").
			Where("user_badges.external_user_id = ?", userID).
			Order("user_badges.awarded_at DESC").
			Scan(&badges).Error; err != nil {
			return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
				"error": "failed to get badges",
				"cause": err.Error(),
			})
		}
		return c.JSON(badges)
	})

	securedGroup.Get("/user/arena/freezes", func(c *fiber.Ctx) error {
		userID := c.Locals("user_id").(string)
		windows, err := svc.Freeze.ListFreezes(userID)
		if err != nil {
			return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
				"error": "failed to list freeze requests",
				"cause": err.Error(),
			})
		}
		return c.JSON(windows)
	})

	// Live progression feed — query-param auth because EventSource can't set headers
	app.Get("/user/arena/stream", middleware.SSEAuthMiddleware(svc.AuthClient), svc.Progression.StreamProgressionSSE)

	// Clan routes
	securedGroup.Get("/clan/:clanId/ranking", func(c *fiber.Ctx) error {
		clanID := c.Params("clanId")
		week := c.Query("week") // optional, defaults to current week
		standings, err := svc.Ledger.GetClanWeekStandings(clanID, week)
		if err != nil {
			return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
				"error": "failed to load clan standings",
				"cause": err.Error(),
			})
		}
		return c.JSON(fiber.Map{
			"clan_id":   clanID,
			"standings": standings,
		})
	})

	// POST /clan/:clanId/freeze/:id/review — clan leaders approve or reject
	securedGroup.Post("/clan/:clanId/freeze/:id/review", func(c *fiber.Ctx) error {
		reviewerID := c.Locals("user_id").(string)
		clanID := c.Params("clanId")
		freezeID := c.Params("id")

		var req struct {
			Approve bool `json:"approve"`
		}
		if err := c.BodyParser(&req); err != nil {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
				"error": "invalid JSON",
				"cause": err.Error(),
			})
		}

		window, err := svc.Freeze.ReviewFreeze(reviewerID, clanID, freezeID, req.Approve)
		switch {
		case errors.Is(err, services.ErrNotClanLeader):
			return c.Status(fiber.StatusForbidden).JSON(fiber.Map{"error": err.Error()})
		case errors.Is(err, services.ErrFreezeNotPending):
			return c.Status(fiber.StatusConflict).JSON(fiber.Map{"error": err.Error()})
		case errors.Is(err, gorm.ErrRecordNotFound):
			return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": "freeze request not found"})
		case err != nil:
			return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
				"error": "freeze review failed",
				"cause": err.Error(),
			})
		}
		return c.JSON(window)
	})

	// Admin endpoints
	adminGroup := app.Group("/s/admin", middleware.UserContextMiddleware())

	adminGroup.Post("/elo/grant", func(c *fiber.Ctx) error {
		type Req struct {
			UserID string `json:"user_id" validate:"required,uuid"`
			Points int    `json:"points" validate:"required"`
			Reason string `json:"reason" validate:"max=255"`
		}
		var req Req
		if err := c.BodyParser(&req); err != nil {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
				"error": "invalid JSON",
				"cause": err.Error(),
			})
		}

		prog, err := svc.Progression.GrantElo(req.UserID, req.Points, req.Reason)
		if err != nil {
			return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
				"error": "elo grant failed",
				"cause": err.Error(),
			})
		}
		return c.JSON(fiber.Map{
			"message":    "elo granted successfully",
			"user_id":    req.UserID,
			"elo_points": prog.EloPoints,
			"tier":       services.TierDisplayName(prog.EloTier, prog.EloDivision),
		})
	})
}

// arenaView builds the UI-facing progression payload with derived display fields.
func arenaView(prog *models.UserProgression, weekPoints int) fiber.Map {
	return fiber.Map{
		"id":                     prog.ID,
		"level":                  prog.Level,
		"xp":                     prog.XP,
		"xp_goal":                prog.XPGoal,
		"elo_points":             prog.EloPoints,
		"elo_tier":               prog.EloTier,
		"elo_division":           prog.EloDivision,
		"tier_display":           services.TierDisplayName(prog.EloTier, prog.EloDivision),
		"tier_color":             services.TierStyle(prog.EloTier),
		"week_points":            weekPoints,
		"current_effective_week": prog.CurrentEffectiveWeek,
		"current_planned_days":   prog.CurrentPlannedDays,
		"current_planned_count":  prog.CurrentPlannedCount,
		"next_effective_week":    prog.NextEffectiveWeek,
		"next_planned_days":      prog.NextPlannedDays,
		"clan_id":                prog.ClanID,
		"last_processed_date":    prog.LastProcessedDate,
		"last_level_up_at":       prog.LastLevelUpAt,
		"last_tier_up_at":        prog.LastTierUpAt,
	}
}
