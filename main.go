package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"prize-allocation-system/handlers"
	"prize-allocation-system/middleware"
	"prize-allocation-system/models"
	"prize-allocation-system/services"
	"prize-allocation-system/utils"
	"prize-allocation-system/workers"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/joho/godotenv"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
)

func main() {
	if err := godotenv.Load(); err != nil {
		log.Println("⚠️  No .env file found, reading environment variables directly")
	}

	app := fiber.New(fiber.Config{
		BodyLimit: 25 * 1024 * 1024, // 25MB, rating lists are small
	})

	// 🔐❗ GLOBAL: Only Gateway requests allowed — no exceptions
	app.Use(middleware.GatewayAuthMiddleware())

	allowedOriginsEnv := os.Getenv("ALLOWED_ORIGINS")
	if allowedOriginsEnv == "" {
		log.Println("⚠️  ALLOWED_ORIGINS environment variable not set, using default: http://localhost:3000")
		allowedOriginsEnv = "http://localhost:3000"
	}
	allowedOriginsList := strings.Split(allowedOriginsEnv, ",")
	for i, origin := range allowedOriginsList {
		allowedOriginsList[i] = strings.TrimSpace(origin)
	}
	allowedOriginsString := strings.Join(allowedOriginsList, ",")

	app.Use(cors.New(cors.Config{
		AllowOrigins:     allowedOriginsString,
		AllowMethods:     "GET,POST,PUT,DELETE,OPTIONS,PATCH,HEAD",
		AllowHeaders:     "Origin, Content-Type, Accept, Authorization, X-Requested-With, X-Request-ID, User-Agent, Cache-Control, X-Service-Token",
		ExposeHeaders:    "Content-Length, Content-Type, Authorization, X-Request-ID",
		AllowCredentials: true,
		MaxAge:           86400, // 24 hours
	}))

	dsn := os.Getenv("DATABASE_URL")
	if dsn == "" {
		log.Fatal("DATABASE_URL environment variable not set")
	}

	if err := utils.InitR2(); err != nil {
		log.Fatal("failed to initialize R2 client:", err)
	}

	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{})
	if err != nil {
		log.Fatal("failed to connect to database:", err)
	}

	if err := db.AutoMigrate(
		&models.Tournament{},
		&models.Competitor{},
		&models.Category{},
		&models.Prize{},
		&models.AllocationVersion{},
		&models.AllocationDecision{},
		&models.AllocationConflict{},
	); err != nil {
		log.Fatal("failed to migrate database:", err)
	}

	tournamentService := services.NewTournamentService(db)
	allocationService := services.NewAllocationService(db)

	importServiceURL := os.Getenv("IMPORT_SERVICE_URL")
	if importServiceURL == "" {
		log.Fatal("IMPORT_SERVICE_URL environment variable not set")
	}
	serviceToken := os.Getenv("PRIZE_SERVICE_TOKEN")
	if serviceToken == "" {
		log.Fatal("PRIZE_SERVICE_TOKEN environment variable not set")
	}

	syncWorker := workers.NewCompetitorSyncWorker(db, importServiceURL, "/api/v1/public/competitors", serviceToken)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	go func() {
		log.Println("Starting Competitor Sync Worker...")
		syncWorker.Start(ctx)
	}()

	tournamentService.StartResultsPublishScheduler()

	handlers.SetupTournamentRoutes(app, tournamentService)
	handlers.SetupAllocationRoutes(app, allocationService)

	go func() {
		if err := app.Listen(":5300"); err != nil {
			log.Printf("Server error: %v", err)
		}
	}()

	log.Println("✅ Server running on http://localhost:5300")
	log.Println("✅ Competitor Sync Worker running")
	log.Println("✅ Results publish scheduler running (every 1m)")
	log.Println("✅ GatewayAuthMiddleware enforced globally — all requests must come from Gateway")
	log.Printf("✅ CORS configured for origins: %s", allowedOriginsString)

	<-ctx.Done()
	log.Println("Shutting down server...")
}
