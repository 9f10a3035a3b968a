package services

import (
	"errors"
	"fmt"
	"log"
	"time"

	"prize-allocation-system/models"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"github.com/gosimple/slug"
	"gorm.io/gorm"
)

// TournamentService owns the organizer-facing setup surface: tournaments and
// their competitors, categories and prizes.
type TournamentService struct {
	DB *gorm.DB
}

func NewTournamentService(db *gorm.DB) *TournamentService {
	return &TournamentService{DB: db}
}

func (s *TournamentService) CreateTournament(c *fiber.Ctx) error {
	ownerID, _ := c.Locals("user_id").(string)
	if ownerID == "" {
		return c.Status(401).JSON(fiber.Map{"error": "missing user context"})
	}

	type Req struct {
		Name                           string     `json:"name"`
		ReferenceDate                  *time.Time `json:"reference_date"`
		AllowUnratedInRatingCategories bool       `json:"allow_unrated_in_rating_categories"`
		ResultsPublishAt               *time.Time `json:"results_publish_at"`
	}
	var req Req
	if err := c.BodyParser(&req); err != nil {
		return c.Status(400).JSON(fiber.Map{"error": "invalid JSON", "details": err.Error()})
	}
	if req.Name == "" {
		return c.Status(400).JSON(fiber.Map{"error": "name is required"})
	}

	referenceDate := time.Now()
	if req.ReferenceDate != nil {
		referenceDate = *req.ReferenceDate
	}

	tournament := models.Tournament{
		ID:                             uuid.NewString(),
		Name:                           req.Name,
		Slug:                           fmt.Sprintf("%s-%s", slug.Make(req.Name), uuid.NewString()[:8]),
		OwnerID:                        ownerID,
		Status:                         models.TournamentStatusDraft,
		ReferenceDate:                  referenceDate,
		AllowUnratedInRatingCategories: req.AllowUnratedInRatingCategories,
		ResultsPublishAt:               req.ResultsPublishAt,
	}
	if err := s.DB.Create(&tournament).Error; err != nil {
		log.Printf("[TOURNAMENT] Create failed: %v", err)
		return c.Status(500).JSON(fiber.Map{"error": "failed to create tournament"})
	}
	return c.Status(201).JSON(tournament)
}

func (s *TournamentService) GetTournament(c *fiber.Ctx) error {
	var tournament models.Tournament
	if err := s.DB.Preload("Categories.Prizes").First(&tournament, "id = ?", c.Params("id")).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return c.Status(404).JSON(fiber.Map{"error": "tournament not found"})
		}
		return c.Status(500).JSON(fiber.Map{"error": "DB error"})
	}

	var competitorCount int64
	s.DB.Model(&models.Competitor{}).Where("tournament_id = ?", tournament.ID).Count(&competitorCount)
	tournament.CompetitorCount = competitorCount

	s.DB.Raw("SELECT COALESCE(MAX(version), 0) FROM allocation_versions WHERE tournament_id = ?", tournament.ID).Scan(&tournament.CurrentVersion)

	var openConflicts int64
	s.DB.Model(&models.AllocationConflict{}).
		Where("tournament_id = ? AND status = ?", tournament.ID, models.ConflictStatusOpen).
		Count(&openConflicts)
	tournament.OpenConflicts = openConflicts

	return c.JSON(tournament)
}

func (s *TournamentService) ListMyTournaments(c *fiber.Ctx) error {
	ownerID, _ := c.Locals("user_id").(string)
	if ownerID == "" {
		return c.Status(401).JSON(fiber.Map{"error": "missing user context"})
	}
	var tournaments []models.Tournament
	if err := s.DB.Where("owner_id = ?", ownerID).Order("created_at DESC").Find(&tournaments).Error; err != nil {
		return c.Status(500).JSON(fiber.Map{"error": "DB error"})
	}
	return c.JSON(tournaments)
}

// ListPublishedTournaments is the public listing used by result viewers.
func (s *TournamentService) ListPublishedTournaments(c *fiber.Ctx) error {
	var tournaments []models.Tournament
	if err := s.DB.Where("status = ?", models.TournamentStatusPublished).
		Order("finalized_at DESC").Find(&tournaments).Error; err != nil {
		return c.Status(500).JSON(fiber.Map{"error": "DB error"})
	}
	return c.JSON(tournaments)
}

func (s *TournamentService) UpdateTournament(c *fiber.Ctx) error {
	tournament, status := s.ownedTournament(c)
	if tournament == nil {
		return status
	}

	type Req struct {
		Name                           *string    `json:"name"`
		ReferenceDate                  *time.Time `json:"reference_date"`
		AllowUnratedInRatingCategories *bool      `json:"allow_unrated_in_rating_categories"`
		ResultsPublishAt               *time.Time `json:"results_publish_at"`
	}
	var req Req
	if err := c.BodyParser(&req); err != nil {
		return c.Status(400).JSON(fiber.Map{"error": "invalid JSON"})
	}

	updates := map[string]interface{}{}
	if req.Name != nil && *req.Name != "" {
		updates["name"] = *req.Name
	}
	if req.ReferenceDate != nil {
		updates["reference_date"] = *req.ReferenceDate
	}
	if req.AllowUnratedInRatingCategories != nil {
		updates["allow_unrated_in_rating_categories"] = *req.AllowUnratedInRatingCategories
	}
	if req.ResultsPublishAt != nil {
		updates["results_publish_at"] = req.ResultsPublishAt
	}
	if len(updates) == 0 {
		return c.JSON(tournament)
	}
	if err := s.DB.Model(tournament).Updates(updates).Error; err != nil {
		return c.Status(500).JSON(fiber.Map{"error": "update failed"})
	}
	return c.JSON(tournament)
}

func (s *TournamentService) DeleteTournament(c *fiber.Ctx) error {
	tournament, status := s.ownedTournament(c)
	if tournament == nil {
		return status
	}
	if err := s.DB.Delete(tournament).Error; err != nil {
		return c.Status(500).JSON(fiber.Map{"error": "delete failed"})
	}
	return c.JSON(fiber.Map{"message": "tournament deleted"})
}

// ownedTournament loads the tournament in :id and enforces that the caller
// owns it. On failure the error response has already been written.
func (s *TournamentService) ownedTournament(c *fiber.Ctx) (*models.Tournament, error) {
	ownerID, _ := c.Locals("user_id").(string)
	if ownerID == "" {
		return nil, c.Status(401).JSON(fiber.Map{"error": "missing user context"})
	}
	var tournament models.Tournament
	if err := s.DB.First(&tournament, "id = ?", c.Params("id")).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, c.Status(404).JSON(fiber.Map{"error": "tournament not found"})
		}
		return nil, c.Status(500).JSON(fiber.Map{"error": "DB error"})
	}
	if tournament.OwnerID != ownerID {
		return nil, c.Status(403).JSON(fiber.Map{"error": "not the tournament owner"})
	}
	return &tournament, nil
}

// ---- Competitors ----

func (s *TournamentService) ListCompetitors(c *fiber.Ctx) error {
	var competitors []models.Competitor
	if err := s.DB.Where("tournament_id = ?", c.Params("id")).
		Order("rank ASC").Find(&competitors).Error; err != nil {
		return c.Status(500).JSON(fiber.Map{"error": "DB error"})
	}
	return c.JSON(competitors)
}

func (s *TournamentService) AddCompetitor(c *fiber.Ctx) error {
	tournament, status := s.ownedTournament(c)
	if tournament == nil {
		return status
	}

	var comp models.Competitor
	if err := c.BodyParser(&comp); err != nil {
		return c.Status(400).JSON(fiber.Map{"error": "invalid JSON", "details": err.Error()})
	}
	if comp.Name == "" || comp.Rank <= 0 {
		return c.Status(400).JSON(fiber.Map{"error": "name and a positive rank are required"})
	}

	comp.ID = uuid.NewString()
	comp.TournamentID = tournament.ID
	if err := s.DB.Create(&comp).Error; err != nil {
		log.Printf("[COMPETITOR] Create failed for tournament %s: %v", tournament.ID, err)
		return c.Status(500).JSON(fiber.Map{"error": "failed to add competitor"})
	}
	return c.Status(201).JSON(comp)
}

func (s *TournamentService) UpdateCompetitor(c *fiber.Ctx) error {
	tournament, status := s.ownedTournament(c)
	if tournament == nil {
		return status
	}

	var comp models.Competitor
	if err := s.DB.First(&comp, "id = ? AND tournament_id = ?", c.Params("competitorId"), tournament.ID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return c.Status(404).JSON(fiber.Map{"error": "competitor not found"})
		}
		return c.Status(500).JSON(fiber.Map{"error": "DB error"})
	}

	type Req struct {
		Rank             *int           `json:"rank"`
		Name             *string        `json:"name"`
		Rating           *int           `json:"rating"`
		BirthDate        *time.Time     `json:"birth_date"`
		BirthDateImputed *bool          `json:"birth_date_imputed"`
		Gender           *models.Gender `json:"gender"`
		State            *string        `json:"state"`
		City             *string        `json:"city"`
		Club             *string        `json:"club"`
		Disability       *string        `json:"disability"`
		GroupLabel       *string        `json:"group_label"`
		TypeLabel        *string        `json:"type_label"`
	}
	var req Req
	if err := c.BodyParser(&req); err != nil {
		return c.Status(400).JSON(fiber.Map{"error": "invalid JSON"})
	}

	updates := map[string]interface{}{}
	if req.Rank != nil && *req.Rank > 0 {
		updates["rank"] = *req.Rank
	}
	if req.Name != nil && *req.Name != "" {
		updates["name"] = *req.Name
	}
	if req.Rating != nil {
		updates["rating"] = req.Rating
	}
	if req.BirthDate != nil {
		updates["birth_date"] = req.BirthDate
	}
	if req.BirthDateImputed != nil {
		updates["birth_date_imputed"] = *req.BirthDateImputed
	}
	if req.Gender != nil {
		updates["gender"] = req.Gender
	}
	if req.State != nil {
		updates["state"] = req.State
	}
	if req.City != nil {
		updates["city"] = req.City
	}
	if req.Club != nil {
		updates["club"] = req.Club
	}
	if req.Disability != nil {
		updates["disability"] = req.Disability
	}
	if req.GroupLabel != nil {
		updates["group_label"] = req.GroupLabel
	}
	if req.TypeLabel != nil {
		updates["type_label"] = req.TypeLabel
	}
	if len(updates) > 0 {
		if err := s.DB.Model(&comp).Updates(updates).Error; err != nil {
			return c.Status(500).JSON(fiber.Map{"error": "update failed"})
		}
	}
	return c.JSON(comp)
}

func (s *TournamentService) DeleteCompetitor(c *fiber.Ctx) error {
	tournament, status := s.ownedTournament(c)
	if tournament == nil {
		return status
	}
	result := s.DB.Where("id = ? AND tournament_id = ?", c.Params("competitorId"), tournament.ID).
		Delete(&models.Competitor{})
	if result.Error != nil {
		return c.Status(500).JSON(fiber.Map{"error": "delete failed"})
	}
	if result.RowsAffected == 0 {
		return c.Status(404).JSON(fiber.Map{"error": "competitor not found"})
	}
	return c.JSON(fiber.Map{"message": "competitor deleted"})
}

// ---- Categories ----

func (s *TournamentService) ListCategories(c *fiber.Ctx) error {
	var categories []models.Category
	if err := s.DB.Preload("Prizes").
		Where("tournament_id = ?", c.Params("id")).
		Order("order_idx ASC").Find(&categories).Error; err != nil {
		return c.Status(500).JSON(fiber.Map{"error": "DB error"})
	}
	return c.JSON(categories)
}

func (s *TournamentService) CreateCategory(c *fiber.Ctx) error {
	tournament, status := s.ownedTournament(c)
	if tournament == nil {
		return status
	}

	var cat models.Category
	if err := c.BodyParser(&cat); err != nil {
		return c.Status(400).JSON(fiber.Map{"error": "invalid JSON", "details": err.Error()})
	}
	if cat.Name == "" {
		return c.Status(400).JSON(fiber.Map{"error": "name is required"})
	}
	if cat.Type == "" {
		cat.Type = models.CategoryTypeCriteria
	}
	if msg := validateCriteria(&cat); msg != "" {
		return c.Status(400).JSON(fiber.Map{"error": msg})
	}

	cat.ID = uuid.NewString()
	cat.TournamentID = tournament.ID
	cat.IsActive = true
	if err := s.DB.Create(&cat).Error; err != nil {
		log.Printf("[CATEGORY] Create failed for tournament %s: %v", tournament.ID, err)
		return c.Status(500).JSON(fiber.Map{"error": "failed to create category"})
	}
	return c.Status(201).JSON(cat)
}

func (s *TournamentService) UpdateCategory(c *fiber.Ctx) error {
	tournament, status := s.ownedTournament(c)
	if tournament == nil {
		return status
	}

	var cat models.Category
	if err := s.DB.First(&cat, "id = ? AND tournament_id = ?", c.Params("categoryId"), tournament.ID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return c.Status(404).JSON(fiber.Map{"error": "category not found"})
		}
		return c.Status(500).JSON(fiber.Map{"error": "DB error"})
	}

	type Req struct {
		Name     *string              `json:"name"`
		Type     *models.CategoryType `json:"type"`
		IsMain   *bool                `json:"is_main"`
		IsActive *bool                `json:"is_active"`
		OrderIdx *int                 `json:"order_idx"`
		Criteria *models.CriteriaSet  `json:"criteria"`
	}
	var req Req
	if err := c.BodyParser(&req); err != nil {
		return c.Status(400).JSON(fiber.Map{"error": "invalid JSON"})
	}
	if req.Name != nil && *req.Name != "" {
		cat.Name = *req.Name
	}
	if req.Type != nil && *req.Type != "" {
		cat.Type = *req.Type
	}
	if req.IsMain != nil {
		cat.IsMain = *req.IsMain
	}
	if req.IsActive != nil {
		cat.IsActive = *req.IsActive
	}
	if req.OrderIdx != nil {
		cat.OrderIdx = *req.OrderIdx
	}
	if req.Criteria != nil {
		cat.Criteria = *req.Criteria
	}
	if msg := validateCriteria(&cat); msg != "" {
		return c.Status(400).JSON(fiber.Map{"error": msg})
	}

	if err := s.DB.Save(&cat).Error; err != nil {
		return c.Status(500).JSON(fiber.Map{"error": "update failed"})
	}
	return c.JSON(cat)
}

func (s *TournamentService) DeleteCategory(c *fiber.Ctx) error {
	tournament, status := s.ownedTournament(c)
	if tournament == nil {
		return status
	}
	result := s.DB.Where("id = ? AND tournament_id = ?", c.Params("categoryId"), tournament.ID).
		Delete(&models.Category{})
	if result.Error != nil {
		return c.Status(500).JSON(fiber.Map{"error": "delete failed"})
	}
	if result.RowsAffected == 0 {
		return c.Status(404).JSON(fiber.Map{"error": "category not found"})
	}
	return c.JSON(fiber.Map{"message": "category deleted"})
}

// validateCriteria rejects criteria combinations the evaluator cannot
// satisfy. Returns an error message, empty when valid.
func validateCriteria(cat *models.Category) string {
	cs := &cat.Criteria
	if cs.UnratedOnly && cs.HasRatingBounds() {
		return "unrated_only cannot be combined with rating bounds"
	}
	if cs.MinRating != nil && cs.MaxRating != nil && *cs.MinRating > *cs.MaxRating {
		return "min_rating must not exceed max_rating"
	}
	if cs.MinAge != nil && cs.MaxAge != nil && *cs.MinAge > *cs.MaxAge {
		return "min_age must not exceed max_age"
	}
	if cat.IsYoungest() && cat.Type != models.CategoryTypeCriteria && cs.Gender != nil {
		return "youngest categories carry their gender in the type, not in criteria"
	}
	return ""
}

// ---- Prizes ----

func (s *TournamentService) CreatePrize(c *fiber.Ctx) error {
	tournament, status := s.ownedTournament(c)
	if tournament == nil {
		return status
	}

	var cat models.Category
	if err := s.DB.First(&cat, "id = ? AND tournament_id = ?", c.Params("categoryId"), tournament.ID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return c.Status(404).JSON(fiber.Map{"error": "category not found"})
		}
		return c.Status(500).JSON(fiber.Map{"error": "DB error"})
	}

	var prize models.Prize
	if err := c.BodyParser(&prize); err != nil {
		return c.Status(400).JSON(fiber.Map{"error": "invalid JSON", "details": err.Error()})
	}
	if prize.Place <= 0 {
		return c.Status(400).JSON(fiber.Map{"error": "place must be positive"})
	}
	prize.ID = uuid.NewString()
	prize.CategoryID = cat.ID
	prize.TournamentID = tournament.ID
	prize.IsActive = true
	if !prize.IsMeaningful() {
		return c.Status(400).JSON(fiber.Map{"error": "prize must carry cash, a trophy or a medal"})
	}

	if err := s.DB.Create(&prize).Error; err != nil {
		if isUniqueViolation(err) {
			return c.Status(409).JSON(fiber.Map{"error": fmt.Sprintf("place %d already exists in this category", prize.Place)})
		}
		return c.Status(500).JSON(fiber.Map{"error": "failed to create prize"})
	}
	return c.Status(201).JSON(prize)
}

func (s *TournamentService) UpdatePrize(c *fiber.Ctx) error {
	tournament, status := s.ownedTournament(c)
	if tournament == nil {
		return status
	}

	var prize models.Prize
	if err := s.DB.First(&prize, "id = ? AND tournament_id = ?", c.Params("prizeId"), tournament.ID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return c.Status(404).JSON(fiber.Map{"error": "prize not found"})
		}
		return c.Status(500).JSON(fiber.Map{"error": "DB error"})
	}

	type Req struct {
		CashAmount *float64 `json:"cash_amount"`
		Trophy     *bool    `json:"trophy"`
		Medal      *bool    `json:"medal"`
		IsActive   *bool    `json:"is_active"`
	}
	var req Req
	if err := c.BodyParser(&req); err != nil {
		return c.Status(400).JSON(fiber.Map{"error": "invalid JSON"})
	}

	updates := map[string]interface{}{}
	if req.CashAmount != nil {
		updates["cash_amount"] = *req.CashAmount
	}
	if req.Trophy != nil {
		updates["trophy"] = *req.Trophy
	}
	if req.Medal != nil {
		updates["medal"] = *req.Medal
	}
	if req.IsActive != nil {
		updates["is_active"] = *req.IsActive
	}
	if len(updates) > 0 {
		if err := s.DB.Model(&prize).Updates(updates).Error; err != nil {
			return c.Status(500).JSON(fiber.Map{"error": "update failed"})
		}
	}
	return c.JSON(prize)
}

func (s *TournamentService) DeletePrize(c *fiber.Ctx) error {
	tournament, status := s.ownedTournament(c)
	if tournament == nil {
		return status
	}
	result := s.DB.Where("id = ? AND tournament_id = ?", c.Params("prizeId"), tournament.ID).
		Delete(&models.Prize{})
	if result.Error != nil {
		return c.Status(500).JSON(fiber.Map{"error": "delete failed"})
	}
	if result.RowsAffected == 0 {
		return c.Status(404).JSON(fiber.Map{"error": "prize not found"})
	}
	return c.JSON(fiber.Map{"message": "prize deleted"})
}
