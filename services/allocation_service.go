package services

import (
	"bytes"
	"encoding/csv"
	"errors"
	"fmt"
	"log"
	"strconv"
	"strings"
	"time"

	"prize-allocation-system/models"
	"prize-allocation-system/utils"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

// AllocationService drives the preview → override → finalize → RCA flow.
type AllocationService struct {
	DB *gorm.DB
}

func NewAllocationService(db *gorm.DB) *AllocationService {
	return &AllocationService{DB: db}
}

// RcaStatus classifies one prize in the automatic-vs-committed comparison
type RcaStatus string

const (
	RcaMatch            RcaStatus = "MATCH"
	RcaOverridden       RcaStatus = "OVERRIDDEN"
	RcaNoEligibleWinner RcaStatus = "NO_ELIGIBLE_WINNER"
)

// RcaRow is one prize of the on-demand audit export. Derived, never stored.
type RcaRow struct {
	CategoryID        string     `json:"category_id"`
	CategoryName      string     `json:"category_name"`
	PrizeID           string     `json:"prize_id"`
	Place             int        `json:"place"`
	AutoCompetitorID  string     `json:"auto_competitor_id,omitempty"`
	AutoName          string     `json:"auto_name,omitempty"`
	FinalCompetitorID string     `json:"final_competitor_id,omitempty"`
	FinalName         string     `json:"final_name,omitempty"`
	ReasonCode        ReasonCode `json:"reason_code,omitempty"`
	Status            RcaStatus  `json:"status"`
}

// loadSnapshot fetches the full allocation input for one tournament.
// Competitor order is fixed here (rank ascending) so every downstream pass
// sees the same snapshot.
func (s *AllocationService) loadSnapshot(tournamentID string) (*models.Tournament, []models.Category, []models.Prize, []models.Competitor, error) {
	var tournament models.Tournament
	if err := s.DB.First(&tournament, "id = ?", tournamentID).Error; err != nil {
		return nil, nil, nil, nil, err
	}
	var categories []models.Category
	if err := s.DB.Where("tournament_id = ?", tournamentID).Order("order_idx ASC").Find(&categories).Error; err != nil {
		return nil, nil, nil, nil, err
	}
	var prizes []models.Prize
	if err := s.DB.Where("tournament_id = ?", tournamentID).Order("place ASC").Find(&prizes).Error; err != nil {
		return nil, nil, nil, nil, err
	}
	var competitors []models.Competitor
	if err := s.DB.Where("tournament_id = ?", tournamentID).Order("rank ASC").Find(&competitors).Error; err != nil {
		return nil, nil, nil, nil, err
	}
	return &tournament, categories, prizes, competitors, nil
}

// PreviewAllocation recomputes the automatic allocation and its coverage
// diagnostics. Pure read — safe to call any number of times.
func (s *AllocationService) PreviewAllocation(c *fiber.Ctx) error {
	tournamentID := c.Params("id")

	tournament, categories, prizes, competitors, err := s.loadSnapshot(tournamentID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return c.Status(404).JSON(fiber.Map{"error": "tournament not found"})
		}
		log.Printf("[PREVIEW] DB error for tournament %s: %v", tournamentID, err)
		return c.Status(500).JSON(fiber.Map{"error": "DB error"})
	}

	result := ScheduleAllocation(tournament, categories, prizes, competitors)

	filled := 0
	for _, d := range result.Decisions {
		if d.CompetitorID != "" {
			filled++
		}
	}
	log.Printf("[PREVIEW] tournament=%s prizes=%d filled=%d", tournamentID, len(result.Coverage), filled)

	return c.JSON(fiber.Map{
		"tournament_id": tournamentID,
		"decisions":     result.Decisions,
		"coverage":      result.Coverage,
	})
}

// ApplyOverrides validates a manually edited decision set against the same
// evaluation the preview used, and opens a conflict for every state the
// engine would not reach automatically.
func (s *AllocationService) ApplyOverrides(c *fiber.Ctx) error {
	tournamentID := c.Params("id")
	type Req struct {
		Decisions []DraftDecision `json:"decisions"`
	}
	var req Req
	if err := c.BodyParser(&req); err != nil {
		return c.Status(400).JSON(fiber.Map{"error": "invalid JSON", "details": err.Error()})
	}
	if len(req.Decisions) == 0 {
		return c.Status(400).JSON(fiber.Map{"error": "decisions are required"})
	}

	tournament, categories, prizes, competitors, err := s.loadSnapshot(tournamentID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return c.Status(404).JSON(fiber.Map{"error": "tournament not found"})
		}
		return c.Status(500).JSON(fiber.Map{"error": "DB error"})
	}

	preview := ScheduleAllocation(tournament, categories, prizes, competitors)
	conflicts := s.detectConflicts(tournament, categories, prizes, competitors, preview, req.Decisions)

	for i := range conflicts {
		if err := s.DB.Create(&conflicts[i]).Error; err != nil {
			log.Printf("[OVERRIDE] Failed to record conflict for tournament %s: %v", tournamentID, err)
			return c.Status(500).JSON(fiber.Map{"error": "failed to record conflicts"})
		}
	}

	log.Printf("[OVERRIDE] tournament=%s decisions=%d conflicts=%d", tournamentID, len(req.Decisions), len(conflicts))
	return c.JSON(fiber.Map{
		"tournament_id": tournamentID,
		"decisions":     req.Decisions,
		"conflicts":     conflicts,
		"clean":         len(conflicts) == 0,
	})
}

// detectConflicts compares an edited decision set with what the engine does
// automatically: duplicate awards and awards to ineligible competitors open
// conflict rows with a machine-suggested resolution.
func (s *AllocationService) detectConflicts(tournament *models.Tournament, categories []models.Category, prizes []models.Prize, competitors []models.Competitor, preview ScheduleResult, edited []DraftDecision) []models.AllocationConflict {
	cfg := EvalConfig{
		ReferenceDate:        tournament.ReferenceDate,
		AllowUnratedInRating: tournament.AllowUnratedInRatingCategories,
	}
	categoryByID := make(map[string]*models.Category)
	for i := range categories {
		categoryByID[categories[i].ID] = &categories[i]
	}
	categoryByPrize := make(map[string]string)
	for _, p := range prizes {
		categoryByPrize[p.ID] = p.CategoryID
	}
	competitorByID := make(map[string]*models.Competitor)
	for i := range competitors {
		competitorByID[competitors[i].ID] = &competitors[i]
	}
	autoWinner := make(map[string]string) // prize → automatic competitor
	for _, d := range preview.Decisions {
		autoWinner[d.PrizeID] = d.CompetitorID
	}

	var conflicts []models.AllocationConflict

	// One prize per competitor — collect every competitor holding more than
	// one slot in the edited set.
	prizesHeld := make(map[string][]string)
	for _, d := range edited {
		if d.CompetitorID != "" {
			prizesHeld[d.CompetitorID] = append(prizesHeld[d.CompetitorID], d.PrizeID)
		}
	}
	for compID, held := range prizesHeld {
		if len(held) < 2 {
			continue
		}
		name := compID
		if comp, ok := competitorByID[compID]; ok {
			name = comp.Name
		}
		conflicts = append(conflicts, models.AllocationConflict{
			ID:                  uuid.NewString(),
			TournamentID:        tournament.ID,
			Type:                models.ConflictDuplicateAward,
			CompetitorIDs:       compID,
			PrizeIDs:            models.JoinList(held),
			Reasons:             "one competitor holds more than one prize",
			SuggestedResolution: fmt.Sprintf("Keep one prize for %s and clear the other %d assignment(s)", name, len(held)-1),
			Status:              models.ConflictStatusOpen,
		})
	}

	// Awards the evaluator would reject.
	for _, d := range edited {
		if d.CompetitorID == "" {
			continue
		}
		catID := d.CategoryID
		if catID == "" {
			catID = categoryByPrize[d.PrizeID]
		}
		cat, okCat := categoryByID[catID]
		comp, okComp := competitorByID[d.CompetitorID]
		if !okCat || !okComp {
			continue // membership is the finalize validator's job
		}
		res := evaluateForCategory(comp, cat, cfg)
		if res.Eligible {
			continue
		}
		reasons := make([]string, 0, len(res.FailCodes))
		for _, code := range res.FailCodes {
			reasons = append(reasons, string(code))
		}
		suggestion := "Leave the prize unfilled"
		if auto := autoWinner[d.PrizeID]; auto != "" && auto != d.CompetitorID {
			autoName := auto
			if ac, ok := competitorByID[auto]; ok {
				autoName = ac.Name
			}
			suggestion = fmt.Sprintf("Restore the automatic winner %s", autoName)
		}
		conflicts = append(conflicts, models.AllocationConflict{
			ID:                  uuid.NewString(),
			TournamentID:        tournament.ID,
			Type:                models.ConflictIneligibleAward,
			CompetitorIDs:       d.CompetitorID,
			PrizeIDs:            d.PrizeID,
			Reasons:             models.JoinList(reasons),
			SuggestedResolution: suggestion,
			Status:              models.ConflictStatusOpen,
		})
	}

	return conflicts
}

// FinalizeAllocation persists an edited decision set as the tournament's next
// immutable version. All-or-nothing: validation happens before any write and
// the version row, decision rows, tournament flags and conflict resolution
// share one transaction. A concurrent finalize for the same tournament loses
// the (tournament_id, version) uniqueness race and gets a retryable 409.
func (s *AllocationService) FinalizeAllocation(c *fiber.Ctx) error {
	tournamentID := c.Params("id")
	actorID, _ := c.Locals("user_id").(string)
	if actorID == "" {
		return c.Status(401).JSON(fiber.Map{"error": "missing user context"})
	}

	type Req struct {
		Decisions []DraftDecision `json:"decisions"`
	}
	var req Req
	if err := c.BodyParser(&req); err != nil {
		return c.Status(400).JSON(fiber.Map{"error": "invalid JSON", "details": err.Error()})
	}
	if len(req.Decisions) == 0 {
		return c.Status(400).JSON(fiber.Map{"error": "decisions are required"})
	}

	var tournament models.Tournament
	if err := s.DB.First(&tournament, "id = ?", tournamentID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return c.Status(404).JSON(fiber.Map{"error": "tournament not found"})
		}
		return c.Status(500).JSON(fiber.Map{"error": "DB error"})
	}
	if tournament.OwnerID != actorID {
		return c.Status(403).JSON(fiber.Map{"error": "only the tournament owner can finalize"})
	}

	// Membership validation before any write.
	validPrizes := make(map[string]bool)
	var prizes []models.Prize
	if err := s.DB.Where("tournament_id = ?", tournamentID).Find(&prizes).Error; err != nil {
		return c.Status(500).JSON(fiber.Map{"error": "DB error"})
	}
	for _, p := range prizes {
		validPrizes[p.ID] = true
	}
	validCompetitors := make(map[string]bool)
	var competitors []models.Competitor
	if err := s.DB.Where("tournament_id = ?", tournamentID).Find(&competitors).Error; err != nil {
		return c.Status(500).JSON(fiber.Map{"error": "DB error"})
	}
	for _, comp := range competitors {
		validCompetitors[comp.ID] = true
	}
	for _, d := range req.Decisions {
		if !validPrizes[d.PrizeID] {
			return c.Status(400).JSON(fiber.Map{"error": fmt.Sprintf("prize %s does not belong to this tournament", d.PrizeID)})
		}
		if d.CompetitorID != "" && !validCompetitors[d.CompetitorID] {
			return c.Status(400).JSON(fiber.Map{"error": fmt.Sprintf("competitor %s does not belong to this tournament", d.CompetitorID)})
		}
	}

	var newVersion, rowCount int
	err := s.DB.Transaction(func(tx *gorm.DB) error {
		var maxVersion int
		if err := tx.Raw("SELECT COALESCE(MAX(version), 0) FROM allocation_versions WHERE tournament_id = ?", tournamentID).Scan(&maxVersion).Error; err != nil {
			return fmt.Errorf("failed to read latest version: %w", err)
		}
		newVersion = maxVersion + 1

		// The uniqueness constraint on (tournament_id, version) serializes
		// concurrent finalizes; inserting the version row first makes the
		// loser fail before writing any decisions.
		version := models.AllocationVersion{
			ID:           uuid.NewString(),
			TournamentID: tournamentID,
			Version:      newVersion,
			CommittedBy:  actorID,
		}
		if err := tx.Create(&version).Error; err != nil {
			return err
		}

		now := time.Now()
		for _, d := range req.Decisions {
			if d.CompetitorID == "" {
				continue // unfilled prizes produce no row
			}
			row := models.AllocationDecision{
				ID:           uuid.NewString(),
				TournamentID: tournamentID,
				Version:      newVersion,
				PrizeID:      d.PrizeID,
				CompetitorID: d.CompetitorID,
				ReasonCodes:  models.JoinList(d.ReasonCodes),
				IsManual:     d.IsManual,
				DecidedBy:    actorID,
				DecidedAt:    now,
			}
			if err := tx.Create(&row).Error; err != nil {
				return fmt.Errorf("failed to insert decision for prize %s: %w", d.PrizeID, err)
			}
			rowCount++
		}

		if err := tx.Model(&models.AllocationVersion{}).
			Where("id = ?", version.ID).
			Update("decision_count", rowCount).Error; err != nil {
			return err
		}

		status := tournament.Status
		if status != models.TournamentStatusPublished {
			status = models.TournamentStatusFinalized
		}
		if err := tx.Model(&models.Tournament{}).
			Where("id = ?", tournamentID).
			Updates(map[string]interface{}{
				"status":       status,
				"finalized_at": &now,
			}).Error; err != nil {
			return err
		}

		// Accepting the edited set resolves whatever it conflicted with.
		if err := tx.Model(&models.AllocationConflict{}).
			Where("tournament_id = ? AND status = ?", tournamentID, models.ConflictStatusOpen).
			Updates(map[string]interface{}{
				"status":      models.ConflictStatusResolved,
				"resolved_by": actorID,
				"resolved_at": &now,
				"resolution":  "accepted with finalized allocation",
			}).Error; err != nil {
			return err
		}

		return nil
	})
	if err != nil {
		if isUniqueViolation(err) {
			log.Printf("[COMMIT] ⚠️ concurrent finalize lost version race for tournament %s", tournamentID)
			return c.Status(409).JSON(fiber.Map{
				"error": "a concurrent finalize created this version — reload the latest version and retry",
			})
		}
		log.Printf("[COMMIT] Transaction failed for tournament %s: %v", tournamentID, err)
		return c.Status(500).JSON(fiber.Map{"error": "finalize failed"})
	}

	log.Printf("[COMMIT] ✅ tournament=%s version=%d decisions=%d by=%s", tournamentID, newVersion, rowCount, actorID)
	return c.Status(201).JSON(fiber.Map{
		"tournament_id": tournamentID,
		"version":       newVersion,
		"count":         rowCount,
	})
}

// isUniqueViolation matches the duplicate-key shapes of both the Postgres
// driver and the sqlite driver used in tests.
func isUniqueViolation(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return true
	}
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "unique constraint") ||
		strings.Contains(msg, "duplicate key")
}

// GetCurrentDecisions returns the decision rows at the tournament's highest
// committed version.
func (s *AllocationService) GetCurrentDecisions(c *fiber.Ctx) error {
	tournamentID := c.Params("id")

	version, decisions, err := s.currentDecisions(tournamentID)
	if err != nil {
		log.Printf("[CURRENT] DB error for tournament %s: %v", tournamentID, err)
		return c.Status(500).JSON(fiber.Map{"error": "DB error"})
	}
	return c.JSON(fiber.Map{
		"tournament_id": tournamentID,
		"version":       version,
		"decisions":     decisions,
	})
}

func (s *AllocationService) currentDecisions(tournamentID string) (int, []models.AllocationDecision, error) {
	var version int
	if err := s.DB.Raw("SELECT COALESCE(MAX(version), 0) FROM allocation_versions WHERE tournament_id = ?", tournamentID).Scan(&version).Error; err != nil {
		return 0, nil, err
	}
	if version == 0 {
		return 0, nil, nil
	}
	var decisions []models.AllocationDecision
	if err := s.DB.Where("tournament_id = ? AND version = ?", tournamentID, version).Find(&decisions).Error; err != nil {
		return 0, nil, err
	}
	return version, decisions, nil
}

// GetRcaReport compares the automatic preview with the current committed
// decisions, one row per prize. Read-only and repeatable.
func (s *AllocationService) GetRcaReport(c *fiber.Ctx) error {
	tournamentID := c.Params("id")

	version, rows, err := s.buildRcaRows(tournamentID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return c.Status(404).JSON(fiber.Map{"error": "tournament not found"})
		}
		log.Printf("[RCA] failed for tournament %s: %v", tournamentID, err)
		return c.Status(500).JSON(fiber.Map{"error": "failed to build RCA report"})
	}
	return c.JSON(fiber.Map{
		"tournament_id": tournamentID,
		"version":       version,
		"rows":          rows,
	})
}

func (s *AllocationService) buildRcaRows(tournamentID string) (int, []RcaRow, error) {
	tournament, categories, prizes, competitors, err := s.loadSnapshot(tournamentID)
	if err != nil {
		return 0, nil, err
	}
	version, committed, err := s.currentDecisions(tournamentID)
	if err != nil {
		return 0, nil, err
	}
	if version == 0 {
		// Nothing committed yet, so there is no automatic-vs-final
		// comparison to make. Rows of NO_ELIGIBLE_WINNER here would read as
		// cleared prizes when none were ever decided.
		return 0, []RcaRow{}, nil
	}

	preview := ScheduleAllocation(tournament, categories, prizes, competitors)

	nameByID := make(map[string]string)
	for _, comp := range competitors {
		nameByID[comp.ID] = comp.Name
	}
	finalByPrize := make(map[string]string)
	for _, d := range committed {
		finalByPrize[d.PrizeID] = d.CompetitorID
	}

	rows := make([]RcaRow, 0, len(preview.Coverage))
	for _, entry := range preview.Coverage {
		row := RcaRow{
			CategoryID:       entry.CategoryID,
			CategoryName:     entry.CategoryName,
			PrizeID:          entry.PrizeID,
			Place:            entry.Place,
			AutoCompetitorID: entry.WinnerID,
			AutoName:         entry.WinnerName,
			ReasonCode:       entry.ReasonCode,
		}
		row.FinalCompetitorID = finalByPrize[entry.PrizeID]
		row.FinalName = nameByID[row.FinalCompetitorID]

		switch {
		case row.FinalCompetitorID == row.AutoCompetitorID:
			row.Status = RcaMatch // including both empty
		case row.FinalCompetitorID == "":
			row.Status = RcaNoEligibleWinner
		default:
			row.Status = RcaOverridden
		}
		rows = append(rows, row)
	}
	return version, rows, nil
}

// ExportRcaReport renders the RCA rows to CSV and uploads them to R2,
// returning the public URL.
func (s *AllocationService) ExportRcaReport(c *fiber.Ctx) error {
	tournamentID := c.Params("id")

	version, rows, err := s.buildRcaRows(tournamentID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return c.Status(404).JSON(fiber.Map{"error": "tournament not found"})
		}
		return c.Status(500).JSON(fiber.Map{"error": "failed to build RCA report"})
	}

	buf := new(bytes.Buffer)
	w := csv.NewWriter(buf)
	_ = w.Write([]string{"category", "place", "auto_winner", "final_winner", "reason_code", "status"})
	for _, row := range rows {
		_ = w.Write([]string{
			row.CategoryName,
			strconv.Itoa(row.Place),
			row.AutoName,
			row.FinalName,
			string(row.ReasonCode),
			string(row.Status),
		})
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return c.Status(500).JSON(fiber.Map{"error": "failed to render CSV"})
	}

	key := fmt.Sprintf("rca/%s/v%d-%s.csv", tournamentID, version, uuid.NewString())
	url, err := utils.UploadBytesToR2(buf.Bytes(), key, "text/csv")
	if err != nil {
		log.Printf("[RCA] ❌ R2 upload failed for tournament %s: %v", tournamentID, err)
		return c.Status(500).JSON(fiber.Map{"error": "failed to upload RCA export"})
	}

	return c.JSON(fiber.Map{
		"tournament_id": tournamentID,
		"version":       version,
		"row_count":     len(rows),
		"url":           url,
	})
}

// ListConflicts returns the tournament's conflicts, optionally filtered by
// status (?status=open).
func (s *AllocationService) ListConflicts(c *fiber.Ctx) error {
	tournamentID := c.Params("id")
	statusFilter := c.Query("status")

	query := s.DB.Where("tournament_id = ?", tournamentID)
	switch strings.ToLower(statusFilter) {
	case "":
		// no filter
	case string(models.ConflictStatusOpen), string(models.ConflictStatusResolved):
		query = query.Where("status = ?", strings.ToLower(statusFilter))
	default:
		return c.Status(400).JSON(fiber.Map{"error": "status must be open or resolved"})
	}

	var conflicts []models.AllocationConflict
	if err := query.Order("created_at DESC").Find(&conflicts).Error; err != nil {
		return c.Status(500).JSON(fiber.Map{"error": "failed to fetch conflicts"})
	}
	return c.JSON(conflicts)
}

// ResolveConflict closes one open conflict with an organizer decision.
func (s *AllocationService) ResolveConflict(c *fiber.Ctx) error {
	conflictID := c.Params("id")
	actorID, _ := c.Locals("user_id").(string)

	type Req struct {
		Resolution string `json:"resolution"`
	}
	var req Req
	if err := c.BodyParser(&req); err != nil {
		return c.Status(400).JSON(fiber.Map{"error": "invalid JSON"})
	}

	var conflict models.AllocationConflict
	if err := s.DB.First(&conflict, "id = ?", conflictID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return c.Status(404).JSON(fiber.Map{"error": "conflict not found"})
		}
		return c.Status(500).JSON(fiber.Map{"error": "DB error"})
	}
	if conflict.Status == models.ConflictStatusResolved {
		return c.Status(409).JSON(fiber.Map{"error": "conflict already resolved"})
	}

	now := time.Now()
	updates := map[string]interface{}{
		"status":      models.ConflictStatusResolved,
		"resolved_by": actorID,
		"resolved_at": &now,
		"resolution":  req.Resolution,
	}
	if err := s.DB.Model(&conflict).Updates(updates).Error; err != nil {
		return c.Status(500).JSON(fiber.Map{"error": "resolve failed"})
	}
	return c.JSON(fiber.Map{"message": "conflict resolved", "conflict": conflict})
}

// GetReasonCodes exposes the fixed ReasonCode → label and fail-code → tooltip
// maps for presentation layers.
func (s *AllocationService) GetReasonCodes(c *fiber.Ctx) error {
	return c.JSON(fiber.Map{
		"reason_codes": ReasonCodeLabels,
		"fail_codes":   FailCodeLabels,
	})
}
