package main

import (
	"log"
	"net/http"
	"os"
	"strings"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"
	goredis "github.com/redis/go-redis/v9"

	"github.com/Rajkoli143/server/internal/catalog"
	"github.com/Rajkoli143/server/internal/room"
	"github.com/Rajkoli143/server/internal/ws"
	"github.com/Rajkoli143/server/pkg/database"
	"github.com/Rajkoli143/server/pkg/events"
	"github.com/Rajkoli143/server/pkg/redis"
)

func main() {
	// Load environment variables
	if err := godotenv.Load(); err != nil {
		log.Printf("Warning: .env file not found")
	}

	// Set Gin mode based on environment
	if os.Getenv("ENV") == "production" {
		gin.SetMode(gin.ReleaseMode)
	}

	// Room store: MySQL-backed when configured, in-memory otherwise
	var store room.Store
	if host := os.Getenv("MYSQL_HOST"); host != "" {
		db, err := database.NewMySQLDB(
			host,
			os.Getenv("MYSQL_PORT"),
			os.Getenv("MYSQL_USER"),
			os.Getenv("MYSQL_PASSWORD"),
			os.Getenv("MYSQL_DATABASE"),
		)
		if err != nil {
			log.Fatalf("Failed to connect to database: %v", err)
		}
		store = database.NewRoomStore(db)
	} else {
		log.Printf("MYSQL_HOST not set, using in-memory room store")
		store = room.NewMemoryStore()
	}

	// Redis read-through cache for room documents
	if redisHost := os.Getenv("REDIS_HOST"); redisHost != "" {
		redisClient := goredis.NewClient(&goredis.Options{
			Addr:     redisHost + ":" + os.Getenv("REDIS_PORT"),
			Password: os.Getenv("REDIS_PASSWORD"),
			DB:       0,
		})
		store = room.NewCachedStore(store, redis.NewRoomCache(redisClient))
	}

	// Kafka mirror of room events
	var kafkaClient *events.KafkaClient
	if brokers := os.Getenv("KAFKA_BROKERS"); brokers != "" {
		kafkaClient = events.NewKafkaClient(strings.Split(brokers, ","), "jukebox-room-events")
		defer kafkaClient.Close()
	}

	// Static song catalog
	catalogPath := os.Getenv("CATALOG_PATH")
	if catalogPath == "" {
		catalogPath = "data/songs.json"
	}
	songCatalog, err := catalog.Load(catalogPath)
	if err != nil {
		log.Fatalf("Failed to load song catalog: %v", err)
	}

	// Initialize services
	engine := room.NewEngine(store, kafkaClient)

	// Initialize handlers
	roomHandler := room.NewHandler(engine)
	catalogHandler := catalog.NewHandler(songCatalog)
	wsHandler := ws.NewHandler(engine)

	// Initialize Gin router
	router := gin.Default()

	// CORS middleware
	clientURL := os.Getenv("CLIENT_URL")
	if clientURL == "" {
		clientURL = "http://localhost:3000"
	}
	router.Use(cors.New(cors.Config{
		AllowOrigins:     []string{clientURL},
		AllowMethods:     []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowHeaders:     []string{"Origin", "Content-Type", "Accept"},
		ExposeHeaders:    []string{"Content-Length"},
		AllowCredentials: true,
	}))

	// Health check
	router.GET("/api/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"status":  "ok",
			"message": "JukeboxSync server is running",
		})
	})

	// API routes
	v1 := router.Group("/api/v1")
	roomHandler.RegisterRoutes(v1)
	catalogHandler.RegisterRoutes(v1)

	// WebSocket endpoint
	router.GET("/ws", wsHandler.HandleWebSocket)

	// Start server
	port := os.Getenv("PORT")
	if port == "" {
		port = "5001"
	}

	log.Printf("Server starting on port %s", port)
	if err := router.Run(":" + port); err != nil {
		log.Fatalf("Failed to start server: %v", err)
	}
}
