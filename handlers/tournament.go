package handlers

import (
	"prize-allocation-system/middleware"
	"prize-allocation-system/services"

	"github.com/gofiber/fiber/v2"
)

func SetupTournamentRoutes(app *fiber.App, tournamentService *services.TournamentService) {
	// 🔓 Public routes for result viewers (only published tournaments)
	app.Get("/tournaments/published", tournamentService.ListPublishedTournaments)

	// 🔐 Authenticated routes
	secured := app.Group("/", middleware.UserContextMiddleware())

	// Tournament CRUD (organizer only)
	secured.Post("/tournaments", tournamentService.CreateTournament)
	secured.Get("/tournaments", tournamentService.ListMyTournaments)
	secured.Get("/tournaments/:id", tournamentService.GetTournament)
	secured.Put("/tournaments/:id", tournamentService.UpdateTournament)
	secured.Delete("/tournaments/:id", tournamentService.DeleteTournament)

	// Competitors
	secured.Get("/tournaments/:id/competitors", tournamentService.ListCompetitors)
	secured.Post("/tournaments/:id/competitors", tournamentService.AddCompetitor)
	secured.Put("/tournaments/:id/competitors/:competitorId", tournamentService.UpdateCompetitor)
	secured.Delete("/tournaments/:id/competitors/:competitorId", tournamentService.DeleteCompetitor)

	// Categories and criteria
	secured.Get("/tournaments/:id/categories", tournamentService.ListCategories)
	secured.Post("/tournaments/:id/categories", tournamentService.CreateCategory)
	secured.Put("/tournaments/:id/categories/:categoryId", tournamentService.UpdateCategory)
	secured.Delete("/tournaments/:id/categories/:categoryId", tournamentService.DeleteCategory)

	// Prizes
	secured.Post("/tournaments/:id/categories/:categoryId/prizes", tournamentService.CreatePrize)
	secured.Put("/tournaments/:id/prizes/:prizeId", tournamentService.UpdatePrize)
	secured.Delete("/tournaments/:id/prizes/:prizeId", tournamentService.DeletePrize)
}
