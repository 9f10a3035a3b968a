package handlers

import (
	"prize-allocation-system/middleware"
	"prize-allocation-system/services"

	"github.com/gofiber/fiber/v2"
)

func SetupAllocationRoutes(app *fiber.App, allocationService *services.AllocationService) {
	// 🔓 Public: fixed code → label maps for presentation layers
	app.Get("/allocation/reason-codes", allocationService.GetReasonCodes)

	// 🔐 Authenticated allocation workflow
	secured := app.Group("/", middleware.UserContextMiddleware())

	// Preview → override → finalize
	secured.Get("/tournaments/:id/allocation/preview", allocationService.PreviewAllocation)
	secured.Post("/tournaments/:id/allocation/overrides", allocationService.ApplyOverrides)
	secured.Post("/tournaments/:id/allocation/finalize", allocationService.FinalizeAllocation)

	// Committed state and audit
	secured.Get("/tournaments/:id/allocation/current", allocationService.GetCurrentDecisions)
	secured.Get("/tournaments/:id/allocation/rca", allocationService.GetRcaReport)
	secured.Post("/tournaments/:id/allocation/rca/export", allocationService.ExportRcaReport)

	// Conflicts
	secured.Get("/tournaments/:id/conflicts", allocationService.ListConflicts)
	secured.Post("/conflicts/:id/resolve", allocationService.ResolveConflict)
}
