// workers/competitor_sync_worker.go
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

	"prize-allocation-system/models"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// ImportedCompetitor matches the JSON the import/dedup service returns for one
// ranked participant. BirthDate may be a full date, a bare year, or absent.
type ImportedCompetitor struct {
	ExternalRef  string  `json:"external_ref"`
	TournamentID string  `json:"tournament_id"`
	Rank         int     `json:"rank"`
	Name         string  `json:"name"`
	Rating       *int    `json:"rating,omitempty"`
	BirthDate    *string `json:"birth_date,omitempty"` // "2006-01-02" or "2006"
	Gender       *string `json:"gender,omitempty"`
	State        *string `json:"state,omitempty"`
	City         *string `json:"city,omitempty"`
	Club         *string `json:"club,omitempty"`
	Disability   *string `json:"disability,omitempty"`
	GroupLabel   *string `json:"group_label,omitempty"`
	TypeLabel    *string `json:"type_label,omitempty"`
	UpdatedAt    time.Time `json:"updated_at"`
}

// GetCompetitorChangesResponse is the top-level structure of the import
// service response.
type GetCompetitorChangesResponse struct {
	Competitors []ImportedCompetitor `json:"competitors"`
}

type CompetitorSyncWorker struct {
	db           *gorm.DB
	interval     time.Duration
	baseURL      string // e.g., "http://localhost:8500"
	endpointPath string // e.g., "/api/v1/public/competitors"
	serviceToken string
	httpClient   *http.Client
}

func NewCompetitorSyncWorker(db *gorm.DB, importServiceBaseURL, endpointPath, serviceToken string) *CompetitorSyncWorker {
	return &CompetitorSyncWorker{
		db:           db,
		interval:     1 * time.Minute,
		baseURL:      importServiceBaseURL,
		endpointPath: endpointPath,
		serviceToken: serviceToken,
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
	}
}

func (w *CompetitorSyncWorker) Start(ctx context.Context) {
	log.Println("🔁 Starting Competitor Sync Worker (import-service → competitors)…")
	go w.run(ctx)
}

func (w *CompetitorSyncWorker) run(ctx context.Context) {
	// Initial sync backfills from the beginning of time.
	if err := w.syncBatch(ctx, time.Time{}); err != nil {
		log.Printf("⚠️ Initial competitor sync failed: %v", err)
	}

	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			lastSyncTime := w.getLastSyncTime()
			if err := w.syncBatch(ctx, lastSyncTime); err != nil {
				log.Printf("❌ Competitor sync batch failed: %v", err)
			}
		case <-ctx.Done():
			log.Println("⏹️ Competitor Sync Worker stopped")
			return
		}
	}
}

// getLastSyncTime finds the most recent UpdatedAt among synced competitors.
func (w *CompetitorSyncWorker) getLastSyncTime() time.Time {
	var lastTime time.Time
	err := w.db.Raw("SELECT MAX(updated_at) FROM competitors WHERE external_ref IS NOT NULL AND deleted_at IS NULL").Scan(&lastTime).Error
	if err != nil || lastTime.IsZero() {
		return time.Unix(0, 0)
	}
	return lastTime
}

// normalizeBirthDate turns the import service's date string into a stored
// birth date. Year-only values become Jan 1 of that year, flagged as imputed.
func normalizeBirthDate(raw *string) (*time.Time, bool) {
	if raw == nil || *raw == "" {
		return nil, false
	}
	if t, err := time.Parse("2006-01-02", *raw); err == nil {
		return &t, false
	}
	if t, err := time.Parse("2006", *raw); err == nil {
		jan1 := time.Date(t.Year(), time.January, 1, 0, 0, 0, 0, time.UTC)
		return &jan1, true
	}
	log.Printf("[SYNC] ⚠️ Unparseable birth_date %q, storing as missing", *raw)
	return nil, false
}

// syncBatch fetches competitor changes from the import service and upserts
// them into the local competitors table.
func (w *CompetitorSyncWorker) syncBatch(ctx context.Context, since time.Time) error {
	sinceStr := since.UTC().Format(time.RFC3339)
	log.Printf("[SYNC] 📡 Fetching competitor changes from import service since=%s", sinceStr)

	base, err := url.Parse(w.baseURL)
	if err != nil {
		return fmt.Errorf("invalid base import service URL '%s': %w", w.baseURL, err)
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
		log.Printf("[SYNC] ❌ Request to %s failed: %v", finalURL, err)
		return fmt.Errorf("HTTP request to import service failed: %w", err)
	}
	defer func() {
		// Always drain & close to prevent connection leaks
		_, _ = io.Copy(io.Discard, resp.Body)
		_ = resp.Body.Close()
	}()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		log.Printf("[SYNC] ❌ Import service returned %d for %s: %s", resp.StatusCode, finalURL, string(body))
		return fmt.Errorf("import service non-200 response: %d", resp.StatusCode)
	}

	var response GetCompetitorChangesResponse
	if err := json.NewDecoder(resp.Body).Decode(&response); err != nil {
		return fmt.Errorf("failed to decode import service response: %w", err)
	}

	if len(response.Competitors) == 0 {
		log.Printf("[SYNC] ✅ No competitor changes received since %s", sinceStr)
		return nil
	}

	log.Printf("[SYNC] 📥 Processing %d competitor(s) from import service…", len(response.Competitors))

	var upsertCount, errorCount int
	for _, remote := range response.Competitors {
		if remote.ExternalRef == "" || remote.TournamentID == "" {
			errorCount++
			continue
		}
		birthDate, imputed := normalizeBirthDate(remote.BirthDate)
		var gender *models.Gender
		if remote.Gender != nil && *remote.Gender != "" {
			g := models.Gender(*remote.Gender)
			gender = &g
		}

		externalRef := remote.ExternalRef
		local := models.Competitor{
			ID:               uuid.NewString(),
			TournamentID:     remote.TournamentID,
			ExternalRef:      &externalRef,
			Rank:             remote.Rank,
			Name:             remote.Name,
			Rating:           remote.Rating,
			BirthDate:        birthDate,
			BirthDateImputed: imputed,
			Gender:           gender,
			State:            remote.State,
			City:             remote.City,
			Club:             remote.Club,
			Disability:       remote.Disability,
			GroupLabel:       remote.GroupLabel,
			TypeLabel:        remote.TypeLabel,
		}

		if err := w.db.Clauses(clause.OnConflict{
			Columns: []clause.Column{{Name: "tournament_id"}, {Name: "external_ref"}},
			DoUpdates: clause.AssignmentColumns([]string{
				"rank", "name", "rating", "birth_date", "birth_date_imputed",
				"gender", "state", "city", "club", "disability", "group_label", "type_label",
			}),
		}).Create(&local).Error; err != nil {
			errorCount++
			log.Printf("[SYNC] ⚠️ Failed to upsert competitor (external_ref=%q, name=%q): %v",
				remote.ExternalRef, remote.Name, err)
		} else {
			upsertCount++
		}
	}

	log.Printf("[SYNC] ✅ Synced %d competitor(s) (%d upserted, %d errors)",
		len(response.Competitors), upsertCount, errorCount)
	return nil
}
