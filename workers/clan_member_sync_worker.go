// workers/clan_member_sync_worker.go
package workers

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"net/url"
	"time"

	"arena-progression-service/models"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// MirroredClanMember matches the JSON shape of the social service's membership feed.
type MirroredClanMember struct {
	ExternalUserID string    `json:"external_user_id"`
	ClanID         string    `json:"clan_id"`
	ClanName       string    `json:"clan_name"`
	Role           string    `json:"role"` // member | leader
	Left           bool      `json:"left"` // true when the user departed the clan
	UpdatedAt      time.Time `json:"updated_at"`
}

// GetClanMemberChangesResponse is the top-level structure of the sync response.
type GetClanMemberChangesResponse struct {
	Members []MirroredClanMember `json:"members"`
}

// ClanMemberSyncWorker mirrors clan memberships (and leader roles, which gate
// freeze reviews) from the social service, and keeps the weak clan_id
// back-reference on each progression row current.
type ClanMemberSyncWorker struct {
	db           *gorm.DB
	interval     time.Duration
	baseURL      string
	endpointPath string
	serviceToken string
	httpClient   *http.Client
}

func NewClanMemberSyncWorker(db *gorm.DB, syncServiceBaseURL, endpointPath, serviceToken string) *ClanMemberSyncWorker {
	return &ClanMemberSyncWorker{
		db:           db,
		interval:     1 * time.Minute,
		baseURL:      syncServiceBaseURL,
		endpointPath: endpointPath,
		serviceToken: serviceToken,
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
	}
}

func (w *ClanMemberSyncWorker) Start(ctx context.Context) {
	log.Println("🔁 Starting Clan Member Sync Worker (social service → clan_member_mirrors)…")
	go w.run(ctx)
}

func (w *ClanMemberSyncWorker) run(ctx context.Context) {
	// Initial sync (backfill if needed) - sync from the beginning of time
	if err := w.syncBatch(ctx, time.Time{}); err != nil {
		log.Printf("⚠️ Initial clan sync failed: %v", err)
	}

	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			lastSyncTime := w.getLastSyncTime()
			if err := w.syncBatch(ctx, lastSyncTime); err != nil {
				log.Printf("❌ Clan sync batch failed: %v", err)
			}
		case <-ctx.Done():
			log.Println("⏹️ Clan Member Sync Worker stopped")
			return
		}
	}
}

// getLastSyncTime finds the most recent UpdatedAt from the local mirror table.
func (w *ClanMemberSyncWorker) getLastSyncTime() time.Time {
	var lastTime time.Time
	err := w.db.Raw("SELECT MAX(updated_at) FROM clan_member_mirrors WHERE deleted_at IS NULL").Scan(&lastTime).Error
	if err != nil || lastTime.IsZero() {
		return time.Unix(0, 0)
	}
	return lastTime
}

// syncBatch fetches membership changes and updates the local mirror plus the
// clan back-reference on each affected progression row.
func (w *ClanMemberSyncWorker) syncBatch(ctx context.Context, since time.Time) error {
	sinceStr := since.UTC().Format(time.RFC3339)

	base, err := url.Parse(w.baseURL)
	if err != nil {
		return fmt.Errorf("invalid base sync service URL '%s': %w", w.baseURL, err)
	}
	endpointURL := base.JoinPath(w.endpointPath)
	q := endpointURL.Query()
	q.Set("since", sinceStr)
	endpointURL.RawQuery = q.Encode()
	finalURL := endpointURL.String()

	req, err := http.NewRequestWithContext(ctx, "GET", finalURL, nil)
	if err != nil {
		return fmt.Errorf("failed to create request to %s: %w", finalURL, err)
	}
	req.Header.Set("X-Service-Token", w.serviceToken)

	resp, err := w.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("HTTP request to sync service failed: %w", err)
	}
	defer func() {
		_, _ = io.Copy(io.Discard, resp.Body)
		_ = resp.Body.Close()
	}()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return fmt.Errorf("sync service non-200 response: %d — %s", resp.StatusCode, string(body))
	}

	var response GetClanMemberChangesResponse
	if err := json.NewDecoder(resp.Body).Decode(&response); err != nil {
		return fmt.Errorf("failed to decode sync service response: %w", err)
	}

	if len(response.Members) == 0 {
		return nil
	}

	log.Printf("[CLAN_SYNC] 📥 Processing %d membership change(s)…", len(response.Members))

	var upsertCount, errorCount int
	for _, remote := range response.Members {
		if remote.Left {
			// Departed: drop the mirror row and clear the back-reference.
			if err := w.db.Where("external_user_id = ? AND clan_id = ?",
				remote.ExternalUserID, remote.ClanID).
				Delete(&models.ClanMemberMirror{}).Error; err != nil {
				errorCount++
				log.Printf("[CLAN_SYNC] ⚠️ Failed to remove membership (user=%q clan=%q): %v",
					remote.ExternalUserID, remote.ClanID, err)
				continue
			}
			w.db.Model(&models.UserProgression{}).
				Where("external_user_id = ? AND clan_id = ?", remote.ExternalUserID, remote.ClanID).
				Update("clan_id", nil)
			upsertCount++
			continue
		}

		local := models.ClanMemberMirror{
			ID:             uuid.NewString(),
			ExternalUserID: remote.ExternalUserID,
			ClanID:         remote.ClanID,
			ClanName:       remote.ClanName,
			Role:           remote.Role,
		}
		if err := w.db.Clauses(clause.OnConflict{
			Columns: []clause.Column{{Name: "external_user_id"}, {Name: "clan_id"}},
			DoUpdates: clause.AssignmentColumns([]string{
				"clan_name", "role", "updated_at",
			}),
		}).Create(&local).Error; err != nil {
			errorCount++
			log.Printf("[CLAN_SYNC] ⚠️ Failed to upsert membership (user=%q clan=%q): %v",
				remote.ExternalUserID, remote.ClanID, err)
			continue
		}

		// Keep the weak back-reference current for ledger snapshots.
		w.db.Model(&models.UserProgression{}).
			Where("external_user_id = ?", remote.ExternalUserID).
			Update("clan_id", remote.ClanID)
		upsertCount++
	}

	log.Printf("[CLAN_SYNC] ✅ Synced %d membership(s) (%d applied, %d errors)",
		len(response.Members), upsertCount, errorCount)
	return nil
}
