package workers

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"net/url"
	"os"
	"time"

	"arena-progression-service/models"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// WorkoutSyncClient mirrors workout-completed facts from the fitness service
// into workout_day_mirrors so the penalty engine can check "did user U train
// on day D?" without a remote round-trip.
type WorkoutSyncClient struct {
	BaseURL    string
	Token      string
	HTTPClient *http.Client
	DB         *gorm.DB
}

func NewWorkoutSyncClient(db *gorm.DB) *WorkoutSyncClient {
	baseURL := os.Getenv("SYNC_SERVICE_URL")
	if baseURL == "" {
		log.Fatal("SYNC_SERVICE_URL environment variable is required")
	}
	token := os.Getenv("ARENA_SERVICE_TOKEN")
	if token == "" {
		log.Fatal("ARENA_SERVICE_TOKEN environment variable is required for workout sync")
	}

	return &WorkoutSyncClient{
		BaseURL: baseURL,
		Token:   token,
		DB:      db,
		HTTPClient: &http.Client{
			Timeout: 30 * time.Second,
		},
	}
}

// GetCompletedWorkouts fetches workout-day facts changed since the given time.
func (c *WorkoutSyncClient) GetCompletedWorkouts(ctx context.Context, since time.Time) ([]models.WorkoutDayMirror, error) {
	since = since.UTC()

	u, err := url.Parse(fmt.Sprintf("%s/api/v1/public/workout-days", c.BaseURL))
	if err != nil {
		return nil, fmt.Errorf("failed to parse base URL: %w", err)
	}

	q := u.Query()
	q.Set("since", since.Format(time.RFC3339))
	u.RawQuery = q.Encode()

	req, err := http.NewRequestWithContext(ctx, "GET", u.String(), nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	req.Header.Set("X-Service-Token", c.Token)

	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to call sync service: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return nil, fmt.Errorf("sync service returned status %d: %s", resp.StatusCode, string(body))
	}

	var response struct {
		WorkoutDays []models.WorkoutDayMirror `json:"workout_days"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&response); err != nil {
		return nil, fmt.Errorf("failed to decode sync service response: %w", err)
	}

	return response.WorkoutDays, nil
}

// PollWorkouts runs the sync loop until the context is cancelled.
func PollWorkouts(ctx context.Context, client *WorkoutSyncClient, pollInterval time.Duration) {
	log.Println("Starting workout-day polling (DB-backed)...")
	lastSyncTime := time.Now().UTC().Add(-24 * time.Hour)

	ticker := time.NewTicker(pollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			log.Println("Workout-day polling stopped.")
			return
		case <-ticker.C:
			logTime := time.Now().UTC()

			days, err := client.GetCompletedWorkouts(ctx, lastSyncTime)
			if err != nil {
				log.Printf("❌ Error polling workout days: %v", err)
				continue
			}

			count := len(days)
			if count == 0 {
				continue
			}
			log.Printf("📥 Received %d workout-day fact(s) from sync service.", count)

			for i := range days {
				if days[i].ID == "" {
					days[i].ID = uuid.NewString()
				}
			}

			// Bulk upsert keyed on (user, day). Re-delivered facts overwrite in
			// place, so replays from the fitness service are harmless.
			if err := client.DB.Clauses(
				clause.OnConflict{
					Columns: []clause.Column{{Name: "external_user_id"}, {Name: "date_key"}},
					DoUpdates: clause.AssignmentColumns([]string{
						"workout_count",
						"total_volume",
						"updated_at",
					}),
				},
			).Create(&days).Error; err != nil {
				log.Printf("❌ Failed to upsert %d workout day(s) into workout_day_mirrors: %v", count, err)
				// Do NOT advance lastSyncTime on failure — retry same window next tick
				continue
			}

			lastSyncTime = logTime
			log.Printf("✅ Upserted %d workout day(s) into workout_day_mirrors.", count)
		}
	}
}
