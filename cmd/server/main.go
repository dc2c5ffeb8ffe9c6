package main

import (
	"context"
	"log"
	"os"
	"time"

	"meetscribe/internal/ai"
	"meetscribe/internal/api"
	"meetscribe/internal/config"
	"meetscribe/internal/db"
	"meetscribe/internal/pipeline"
	"meetscribe/internal/quota"
	"meetscribe/internal/repository"
	"meetscribe/internal/stt"
	"meetscribe/internal/usage"

	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"
	"github.com/sashabaranov/go-openai"
)

func main() {
	// Load .env file if it exists (ignore error if file doesn't exist)
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found, using environment variables")
	}

	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	// Set Gin mode (default to release mode)
	if os.Getenv("GIN_MODE") == "" {
		gin.SetMode(gin.ReleaseMode)
	}

	// Initialize database if DATABASE_URL is provided
	var repo repository.JobRepository
	if cfg.DatabaseURL != "" {
		log.Printf("Initializing database connection with DATABASE_URL...")
		if err := db.Init(cfg.DatabaseURL); err != nil {
			log.Printf("Warning: Failed to initialize database: %v. Continuing without database.", err)
		} else {
			if err := db.Migrate(); err != nil {
				log.Printf("Warning: Failed to run migrations: %v", err)
			}
			repo = repository.NewPostgresRepository(db.DB)

			ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			if err := repo.SeedTierLimits(ctx); err != nil {
				log.Printf("Warning: Failed to seed tier limits: %v", err)
			}
			cancel()
			log.Println("Database and repository initialized successfully")
		}
	} else {
		log.Println("DATABASE_URL not set, running without database (no quota accounting)")
	}

	provider := stt.NewSpeechmaticsProvider(cfg.SpeechmaticsKey, cfg.SpeechmaticsURL)

	var chatClient ai.ChatCompleter
	if cfg.OpenAIKey != "" {
		chatClient = openai.NewClient(cfg.OpenAIKey)
	} else {
		log.Println("OPENAI_API_KEY not set, minutes will use the synthesized fallback")
	}
	generator := ai.NewGenerator(chatClient, cfg.OpenAIModel, cfg.OpenAIFallbackModel)

	guard := quota.NewGuard(repo)
	recorder := usage.NewRecorder(repo)
	svc := pipeline.NewService(provider, generator, guard, recorder)

	r := gin.Default()

	// Add CORS middleware for browser and mobile clients
	r.Use(corsMiddleware())

	// Register routes
	api.NewHandler(svc, guard, repo).RegisterRoutes(r)

	log.Printf("meetscribe backend running on :%s", cfg.Port)
	if err := r.Run(":" + cfg.Port); err != nil {
		log.Fatalf("Failed to start server: %v", err)
	}
}

// corsMiddleware adds CORS headers
func corsMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Writer.Header().Set("Access-Control-Allow-Origin", "*")
		c.Writer.Header().Set("Access-Control-Allow-Credentials", "true")
		c.Writer.Header().Set("Access-Control-Allow-Headers", "Content-Type, Content-Length, Accept-Encoding, X-CSRF-Token, Authorization, accept, origin, Cache-Control, X-Requested-With, X-User-ID, X-User-Tier")
		c.Writer.Header().Set("Access-Control-Allow-Methods", "POST, OPTIONS, GET, PUT, DELETE")

		if c.Request.Method == "OPTIONS" {
			c.AbortWithStatus(204)
			return
		}

		c.Next()
	}
}
