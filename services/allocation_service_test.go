package services_test

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"prize-allocation-system/handlers"
	"prize-allocation-system/models"
	"prize-allocation-system/services"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
)

func setupapp(t *testing.T) (*fiber.App, *gorm.DB) {
	t.Helper()
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", uuid.NewString())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(
		&models.Tournament{},
		&models.Competitor{},
		&models.Category{},
		&models.Prize{},
		&models.AllocationVersion{},
		&models.AllocationDecision{},
		&models.AllocationConflict{},
	))

	app := fiber.New()
	handlers.SetupTournamentRoutes(app, services.NewTournamentService(db))
	handlers.SetupAllocationRoutes(app, services.NewAllocationService(db))
	return app, db
}

func doJSON(t *testing.T, app *fiber.App, method, path, userID string, body interface{}) *http.Response {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	if userID != "" {
		req.Header.Set("X-User-ID", userID)
	}
	resp, err := app.Test(req, -1)
	require.NoError(t, err)
	return resp
}

func decodeBody(t *testing.T, resp *http.Response, out interface{}) {
	t.Helper()
	defer resp.Body.Close()
	require.NoError(t, json.NewDecoder(resp.Body).Decode(out))
}

// seedTournament creates an owner "org-1" tournament with three ranked
// competitors, a main category with two prizes and a female-only side
// category with one prize. No competitor is female, so the side prize stays
// unfilled automatically.
func seedTournament(t *testing.T, db *gorm.DB) (tournamentID string, prizeIDs map[string]string, competitorIDs map[string]string) {
	t.Helper()
	male := models.GenderMale
	female := models.GenderFemale

	tournament := models.Tournament{
		ID:            uuid.NewString(),
		Name:          "Aberto de Teste",
		Slug:          "aberto-de-teste-" + uuid.NewString()[:8],
		OwnerID:       "org-1",
		Status:        models.TournamentStatusDraft,
		ReferenceDate: time.Date(2026, time.June, 1, 0, 0, 0, 0, time.UTC),
	}
	require.NoError(t, db.Create(&tournament).Error)

	competitorIDs = map[string]string{}
	for i, name := range []string{"Alice", "Bruno", "Carlos"} {
		comp := models.Competitor{
			ID:           uuid.NewString(),
			TournamentID: tournament.ID,
			Rank:         i + 1,
			Name:         name,
			Gender:       &male,
		}
		require.NoError(t, db.Create(&comp).Error)
		competitorIDs[name] = comp.ID
	}

	mainCat := models.Category{
		ID: uuid.NewString(), TournamentID: tournament.ID,
		Name: "Geral", IsMain: true, IsActive: true,
	}
	require.NoError(t, db.Create(&mainCat).Error)
	sideCat := models.Category{
		ID: uuid.NewString(), TournamentID: tournament.ID,
		Name: "Feminino", IsActive: true, OrderIdx: 1,
		Criteria: models.CriteriaSet{Gender: &female},
	}
	require.NoError(t, db.Create(&sideCat).Error)

	prizeIDs = map[string]string{}
	for place := 1; place <= 2; place++ {
		prize := models.Prize{
			ID: uuid.NewString(), CategoryID: mainCat.ID, TournamentID: tournament.ID,
			Place: place, CashAmount: 100, IsActive: true,
		}
		require.NoError(t, db.Create(&prize).Error)
		prizeIDs[fmt.Sprintf("main-%d", place)] = prize.ID
	}
	femPrize := models.Prize{
		ID: uuid.NewString(), CategoryID: sideCat.ID, TournamentID: tournament.ID,
		Place: 1, Trophy: true, IsActive: true,
	}
	require.NoError(t, db.Create(&femPrize).Error)
	prizeIDs["fem-1"] = femPrize.ID

	return tournament.ID, prizeIDs, competitorIDs
}

func TestPreviewAllocation(t *testing.T) {
	app, db := setupapp(t)
	tournamentID, prizeIDs, competitorIDs := seedTournament(t, db)

	resp := doJSON(t, app, "GET", "/tournaments/"+tournamentID+"/allocation/preview", "org-1", nil)
	require.Equal(t, 200, resp.StatusCode)

	var body struct {
		Decisions []services.DraftDecision `json:"decisions"`
		Coverage  []services.CoverageEntry `json:"coverage"`
	}
	decodeBody(t, resp, &body)

	require.Len(t, body.Decisions, 2)
	require.Len(t, body.Coverage, 3)

	byPrize := map[string]string{}
	for _, d := range body.Decisions {
		byPrize[d.PrizeID] = d.CompetitorID
	}
	assert.Equal(t, competitorIDs["Alice"], byPrize[prizeIDs["main-1"]])
	assert.Equal(t, competitorIDs["Bruno"], byPrize[prizeIDs["main-2"]])

	for _, entry := range body.Coverage {
		if entry.PrizeID == prizeIDs["fem-1"] {
			assert.Equal(t, services.ReasonTooStrictGender, entry.ReasonCode)
		}
	}
}

func TestFinalizeVersioning(t *testing.T) {
	app, db := setupapp(t)
	tournamentID, prizeIDs, competitorIDs := seedTournament(t, db)

	firstSet := fiber.Map{"decisions": []fiber.Map{
		{"prize_id": prizeIDs["main-1"], "competitor_id": competitorIDs["Alice"]},
		{"prize_id": prizeIDs["main-2"], "competitor_id": competitorIDs["Bruno"]},
	}}
	resp := doJSON(t, app, "POST", "/tournaments/"+tournamentID+"/allocation/finalize", "org-1", firstSet)
	require.Equal(t, 201, resp.StatusCode)
	var first struct {
		Version int `json:"version"`
		Count   int `json:"count"`
	}
	decodeBody(t, resp, &first)
	assert.Equal(t, 1, first.Version)
	assert.Equal(t, 2, first.Count)

	secondSet := fiber.Map{"decisions": []fiber.Map{
		{"prize_id": prizeIDs["main-1"], "competitor_id": competitorIDs["Carlos"], "is_manual": true},
		{"prize_id": prizeIDs["main-2"], "competitor_id": competitorIDs["Bruno"]},
	}}
	resp = doJSON(t, app, "POST", "/tournaments/"+tournamentID+"/allocation/finalize", "org-1", secondSet)
	require.Equal(t, 201, resp.StatusCode)
	var second struct {
		Version int `json:"version"`
	}
	decodeBody(t, resp, &second)
	assert.Equal(t, 2, second.Version)

	// Current decisions are the highest version, earlier rows stay untouched.
	resp = doJSON(t, app, "GET", "/tournaments/"+tournamentID+"/allocation/current", "org-1", nil)
	require.Equal(t, 200, resp.StatusCode)
	var current struct {
		Version   int                         `json:"version"`
		Decisions []models.AllocationDecision `json:"decisions"`
	}
	decodeBody(t, resp, &current)
	assert.Equal(t, 2, current.Version)
	require.Len(t, current.Decisions, 2)
	byPrize := map[string]string{}
	for _, d := range current.Decisions {
		byPrize[d.PrizeID] = d.CompetitorID
	}
	assert.Equal(t, competitorIDs["Carlos"], byPrize[prizeIDs["main-1"]])

	var totalRows int64
	require.NoError(t, db.Model(&models.AllocationDecision{}).
		Where("tournament_id = ?", tournamentID).Count(&totalRows).Error)
	assert.EqualValues(t, 4, totalRows)

	var tournament models.Tournament
	require.NoError(t, db.First(&tournament, "id = ?", tournamentID).Error)
	assert.Equal(t, models.TournamentStatusFinalized, tournament.Status)
	assert.NotNil(t, tournament.FinalizedAt)
}

func TestFinalizeValidation(t *testing.T) {
	app, db := setupapp(t)
	tournamentID, prizeIDs, competitorIDs := seedTournament(t, db)

	set := fiber.Map{"decisions": []fiber.Map{
		{"prize_id": prizeIDs["main-1"], "competitor_id": competitorIDs["Alice"]},
	}}

	// Not the owner.
	resp := doJSON(t, app, "POST", "/tournaments/"+tournamentID+"/allocation/finalize", "org-2", set)
	assert.Equal(t, 403, resp.StatusCode)

	// Empty decision set.
	resp = doJSON(t, app, "POST", "/tournaments/"+tournamentID+"/allocation/finalize", "org-1",
		fiber.Map{"decisions": []fiber.Map{}})
	assert.Equal(t, 400, resp.StatusCode)

	// Foreign prize id.
	resp = doJSON(t, app, "POST", "/tournaments/"+tournamentID+"/allocation/finalize", "org-1",
		fiber.Map{"decisions": []fiber.Map{
			{"prize_id": uuid.NewString(), "competitor_id": competitorIDs["Alice"]},
		}})
	assert.Equal(t, 400, resp.StatusCode)

	// Nothing was committed.
	var versions int64
	require.NoError(t, db.Model(&models.AllocationVersion{}).
		Where("tournament_id = ?", tournamentID).Count(&versions).Error)
	assert.EqualValues(t, 0, versions)
}

func TestOverridesOpenAndFinalizeResolvesConflicts(t *testing.T) {
	app, db := setupapp(t)
	tournamentID, prizeIDs, competitorIDs := seedTournament(t, db)

	// Alice on both main prizes, Bruno (male) on the female-only prize.
	edited := fiber.Map{"decisions": []fiber.Map{
		{"prize_id": prizeIDs["main-1"], "competitor_id": competitorIDs["Alice"]},
		{"prize_id": prizeIDs["main-2"], "competitor_id": competitorIDs["Alice"], "is_manual": true},
		{"prize_id": prizeIDs["fem-1"], "competitor_id": competitorIDs["Bruno"], "is_manual": true},
	}}
	resp := doJSON(t, app, "POST", "/tournaments/"+tournamentID+"/allocation/overrides", "org-1", edited)
	require.Equal(t, 200, resp.StatusCode)

	var body struct {
		Conflicts []models.AllocationConflict `json:"conflicts"`
		Clean     bool                        `json:"clean"`
	}
	decodeBody(t, resp, &body)
	assert.False(t, body.Clean)
	require.Len(t, body.Conflicts, 2)

	types := map[models.ConflictType]models.AllocationConflict{}
	for _, conflict := range body.Conflicts {
		types[conflict.Type] = conflict
	}
	dup, ok := types[models.ConflictDuplicateAward]
	require.True(t, ok)
	assert.Equal(t, competitorIDs["Alice"], dup.CompetitorIDs)
	assert.NotEmpty(t, dup.SuggestedResolution)

	inel, ok := types[models.ConflictIneligibleAward]
	require.True(t, ok)
	assert.Equal(t, competitorIDs["Bruno"], inel.CompetitorIDs)
	assert.Contains(t, inel.Reasons, "gender_mismatch")

	resp = doJSON(t, app, "GET", "/tournaments/"+tournamentID+"/conflicts?status=open", "org-1", nil)
	require.Equal(t, 200, resp.StatusCode)
	var open []models.AllocationConflict
	decodeBody(t, resp, &open)
	assert.Len(t, open, 2)

	// Finalizing a clean set resolves every open conflict.
	clean := fiber.Map{"decisions": []fiber.Map{
		{"prize_id": prizeIDs["main-1"], "competitor_id": competitorIDs["Alice"]},
		{"prize_id": prizeIDs["main-2"], "competitor_id": competitorIDs["Bruno"]},
	}}
	resp = doJSON(t, app, "POST", "/tournaments/"+tournamentID+"/allocation/finalize", "org-1", clean)
	require.Equal(t, 201, resp.StatusCode)

	var stillOpen int64
	require.NoError(t, db.Model(&models.AllocationConflict{}).
		Where("tournament_id = ? AND status = ?", tournamentID, models.ConflictStatusOpen).
		Count(&stillOpen).Error)
	assert.EqualValues(t, 0, stillOpen)
}

func TestResolveConflictEndpoint(t *testing.T) {
	app, db := setupapp(t)
	tournamentID, _, competitorIDs := seedTournament(t, db)

	conflict := models.AllocationConflict{
		ID:           uuid.NewString(),
		TournamentID: tournamentID,
		Type:         models.ConflictDuplicateAward,
		CompetitorIDs: competitorIDs["Alice"],
		Status:       models.ConflictStatusOpen,
	}
	require.NoError(t, db.Create(&conflict).Error)

	resp := doJSON(t, app, "POST", "/conflicts/"+conflict.ID+"/resolve", "org-1",
		fiber.Map{"resolution": "kept the main prize"})
	require.Equal(t, 200, resp.StatusCode)

	var stored models.AllocationConflict
	require.NoError(t, db.First(&stored, "id = ?", conflict.ID).Error)
	assert.Equal(t, models.ConflictStatusResolved, stored.Status)
	assert.Equal(t, "org-1", stored.ResolvedBy)
	assert.Equal(t, "kept the main prize", stored.Resolution)

	// Resolving twice is rejected.
	resp = doJSON(t, app, "POST", "/conflicts/"+conflict.ID+"/resolve", "org-1",
		fiber.Map{"resolution": "again"})
	assert.Equal(t, 409, resp.StatusCode)
}

func TestRcaReport(t *testing.T) {
	app, db := setupapp(t)
	tournamentID, prizeIDs, competitorIDs := seedTournament(t, db)

	// Auto would give main-1 to Alice and main-2 to Bruno. Commit Carlos on
	// main-1 (override) and leave main-2 unfilled.
	committed := fiber.Map{"decisions": []fiber.Map{
		{"prize_id": prizeIDs["main-1"], "competitor_id": competitorIDs["Carlos"], "is_manual": true},
		{"prize_id": prizeIDs["main-2"], "competitor_id": ""},
	}}
	resp := doJSON(t, app, "POST", "/tournaments/"+tournamentID+"/allocation/finalize", "org-1", committed)
	require.Equal(t, 201, resp.StatusCode)

	resp = doJSON(t, app, "GET", "/tournaments/"+tournamentID+"/allocation/rca", "org-1", nil)
	require.Equal(t, 200, resp.StatusCode)
	var body struct {
		Version int               `json:"version"`
		Rows    []services.RcaRow `json:"rows"`
	}
	decodeBody(t, resp, &body)
	assert.Equal(t, 1, body.Version)
	require.Len(t, body.Rows, 3)

	byPrize := map[string]services.RcaRow{}
	for _, row := range body.Rows {
		byPrize[row.PrizeID] = row
	}

	overridden := byPrize[prizeIDs["main-1"]]
	assert.Equal(t, services.RcaOverridden, overridden.Status)
	assert.Equal(t, competitorIDs["Alice"], overridden.AutoCompetitorID)
	assert.Equal(t, competitorIDs["Carlos"], overridden.FinalCompetitorID)

	cleared := byPrize[prizeIDs["main-2"]]
	assert.Equal(t, services.RcaNoEligibleWinner, cleared.Status)
	assert.Equal(t, competitorIDs["Bruno"], cleared.AutoCompetitorID)
	assert.Empty(t, cleared.FinalCompetitorID)

	// Auto empty and committed empty agree.
	unfillable := byPrize[prizeIDs["fem-1"]]
	assert.Equal(t, services.RcaMatch, unfillable.Status)
	assert.Equal(t, services.ReasonTooStrictGender, unfillable.ReasonCode)
}

func TestRcaBeforeAnyFinalizeIsEmpty(t *testing.T) {
	app, db := setupapp(t)
	tournamentID, _, _ := seedTournament(t, db)

	// No version committed yet: no comparison rows, and in particular no
	// NO_ELIGIBLE_WINNER rows for prizes nobody ever decided.
	resp := doJSON(t, app, "GET", "/tournaments/"+tournamentID+"/allocation/rca", "org-1", nil)
	require.Equal(t, 200, resp.StatusCode)
	var body struct {
		Version int               `json:"version"`
		Rows    []services.RcaRow `json:"rows"`
	}
	decodeBody(t, resp, &body)
	assert.Equal(t, 0, body.Version)
	assert.Empty(t, body.Rows)
}

func TestReasonCodesEndpointIsPublic(t *testing.T) {
	app, _ := setupapp(t)

	resp := doJSON(t, app, "GET", "/allocation/reason-codes", "", nil)
	require.Equal(t, 200, resp.StatusCode)

	var body struct {
		ReasonCodes map[string]string `json:"reason_codes"`
		FailCodes   map[string]string `json:"fail_codes"`
	}
	decodeBody(t, resp, &body)
	assert.Equal(t, services.ReasonCodeLabels[services.ReasonBlockedByOnePrizePolicy],
		body.ReasonCodes[string(services.ReasonBlockedByOnePrizePolicy)])
	assert.NotEmpty(t, body.FailCodes[string(services.FailUnratedExcluded)])
}
