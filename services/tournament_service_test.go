package services_test

import (
	"testing"

	"prize-allocation-system/models"

	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCreateTournamentAndGet(t *testing.T) {
	app, _ := setupapp(t)

	resp := doJSON(t, app, "POST", "/tournaments", "org-1", fiber.Map{
		"name": "Campeonato Estadual",
	})
	require.Equal(t, 201, resp.StatusCode)
	var created models.Tournament
	decodeBody(t, resp, &created)
	assert.NotEmpty(t, created.ID)
	assert.Equal(t, "org-1", created.OwnerID)
	assert.Equal(t, models.TournamentStatusDraft, created.Status)
	assert.Contains(t, created.Slug, "campeonato-estadual")

	resp = doJSON(t, app, "GET", "/tournaments/"+created.ID, "org-1", nil)
	require.Equal(t, 200, resp.StatusCode)

	// Missing name is rejected.
	resp = doJSON(t, app, "POST", "/tournaments", "org-1", fiber.Map{})
	assert.Equal(t, 400, resp.StatusCode)

	// No user context at all.
	resp = doJSON(t, app, "POST", "/tournaments", "", fiber.Map{"name": "X"})
	assert.Equal(t, 401, resp.StatusCode)
}

func TestCategoryCriteriaValidation(t *testing.T) {
	app, db := setupapp(t)
	tournamentID, _, _ := seedTournament(t, db)

	// unrated_only cannot coexist with rating bounds.
	resp := doJSON(t, app, "POST", "/tournaments/"+tournamentID+"/categories", "org-1", fiber.Map{
		"name": "Sem Rating",
		"criteria": fiber.Map{
			"unrated_only": true,
			"max_rating":   1800,
		},
	})
	assert.Equal(t, 400, resp.StatusCode)

	// Inverted bounds are rejected.
	resp = doJSON(t, app, "POST", "/tournaments/"+tournamentID+"/categories", "org-1", fiber.Map{
		"name": "Invertida",
		"criteria": fiber.Map{
			"min_age": 18,
			"max_age": 12,
		},
	})
	assert.Equal(t, 400, resp.StatusCode)

	// A valid criteria category is created active with type criteria.
	resp = doJSON(t, app, "POST", "/tournaments/"+tournamentID+"/categories", "org-1", fiber.Map{
		"name": "Sub 14",
		"criteria": fiber.Map{
			"max_age": 14,
		},
	})
	require.Equal(t, 201, resp.StatusCode)
	var cat models.Category
	decodeBody(t, resp, &cat)
	assert.Equal(t, models.CategoryTypeCriteria, cat.Type)
	assert.True(t, cat.IsActive)

	// Only the owner can configure.
	resp = doJSON(t, app, "POST", "/tournaments/"+tournamentID+"/categories", "org-2", fiber.Map{
		"name": "Intrusa",
	})
	assert.Equal(t, 403, resp.StatusCode)
}

func TestUpdateCategoryIsPartial(t *testing.T) {
	app, db := setupapp(t)
	tournamentID, _, _ := seedTournament(t, db)

	resp := doJSON(t, app, "POST", "/tournaments/"+tournamentID+"/categories", "org-1", fiber.Map{
		"name":    "Sub 1800",
		"is_main": true,
		"criteria": fiber.Map{
			"max_rating": 1800,
		},
	})
	require.Equal(t, 201, resp.StatusCode)
	var cat models.Category
	decodeBody(t, resp, &cat)

	// Renaming alone must not flip flags or wipe the criteria.
	resp = doJSON(t, app, "PUT", "/tournaments/"+tournamentID+"/categories/"+cat.ID, "org-1", fiber.Map{
		"name": "Sub 1800 Absoluto",
	})
	require.Equal(t, 200, resp.StatusCode)

	var stored models.Category
	require.NoError(t, db.First(&stored, "id = ?", cat.ID).Error)
	assert.Equal(t, "Sub 1800 Absoluto", stored.Name)
	assert.True(t, stored.IsMain)
	assert.True(t, stored.IsActive)
	require.NotNil(t, stored.Criteria.MaxRating)
	assert.Equal(t, 1800, *stored.Criteria.MaxRating)

	// A replaced criteria set still goes through validation.
	resp = doJSON(t, app, "PUT", "/tournaments/"+tournamentID+"/categories/"+cat.ID, "org-1", fiber.Map{
		"criteria": fiber.Map{
			"unrated_only": true,
			"min_rating":   1000,
		},
	})
	assert.Equal(t, 400, resp.StatusCode)

	// Deactivation works through the explicit flag.
	resp = doJSON(t, app, "PUT", "/tournaments/"+tournamentID+"/categories/"+cat.ID, "org-1", fiber.Map{
		"is_active": false,
	})
	require.Equal(t, 200, resp.StatusCode)
	require.NoError(t, db.First(&stored, "id = ?", cat.ID).Error)
	assert.False(t, stored.IsActive)
}

func TestPrizeValidation(t *testing.T) {
	app, db := setupapp(t)
	tournamentID, _, _ := seedTournament(t, db)

	resp := doJSON(t, app, "POST", "/tournaments/"+tournamentID+"/categories", "org-1", fiber.Map{
		"name": "Veteranos",
	})
	require.Equal(t, 201, resp.StatusCode)
	var cat models.Category
	decodeBody(t, resp, &cat)

	base := "/tournaments/" + tournamentID + "/categories/" + cat.ID + "/prizes"

	// A prize must award something.
	resp = doJSON(t, app, "POST", base, "org-1", fiber.Map{"place": 1})
	assert.Equal(t, 400, resp.StatusCode)

	resp = doJSON(t, app, "POST", base, "org-1", fiber.Map{"place": 1, "trophy": true})
	require.Equal(t, 201, resp.StatusCode)

	// Duplicate place within the category.
	resp = doJSON(t, app, "POST", base, "org-1", fiber.Map{"place": 1, "cash_amount": 50})
	assert.Equal(t, 409, resp.StatusCode)

	resp = doJSON(t, app, "POST", base, "org-1", fiber.Map{"place": 2, "medal": true})
	assert.Equal(t, 201, resp.StatusCode)
}

func TestPublishedListingIsPublic(t *testing.T) {
	app, db := setupapp(t)
	tournamentID, _, _ := seedTournament(t, db)

	resp := doJSON(t, app, "GET", "/tournaments/published", "", nil)
	require.Equal(t, 200, resp.StatusCode)
	var listed []models.Tournament
	decodeBody(t, resp, &listed)
	assert.Empty(t, listed)

	require.NoError(t, db.Model(&models.Tournament{}).
		Where("id = ?", tournamentID).
		Update("status", models.TournamentStatusPublished).Error)

	resp = doJSON(t, app, "GET", "/tournaments/published", "", nil)
	require.Equal(t, 200, resp.StatusCode)
	decodeBody(t, resp, &listed)
	require.Len(t, listed, 1)
	assert.Equal(t, tournamentID, listed[0].ID)
}
