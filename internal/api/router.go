package api

import (
	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/your-org/faceshare/internal/api/handlers"
	"github.com/your-org/faceshare/internal/api/ws"
	"github.com/your-org/faceshare/internal/detector"
	"github.com/your-org/faceshare/internal/queue"
	"github.com/your-org/faceshare/internal/storage"
)

type RouterConfig struct {
	APIKey   string
	DB       *storage.PostgresStore
	MinIO    *storage.MinIOStore
	Producer *queue.Producer
	Detector detector.Detector
	Hub      *ws.Hub
}

func NewRouter(cfg RouterConfig) *gin.Engine {
	gin.SetMode(gin.ReleaseMode)

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(LoggingMiddleware())
	r.Use(cors.Default())

	// System endpoints (no auth)
	systemH := handlers.NewSystemHandler(cfg.DB, cfg.MinIO, cfg.Producer)
	r.GET("/healthz", systemH.Healthz)
	r.GET("/readyz", systemH.Readyz)
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	// API v1 (with auth)
	v1 := r.Group("/v1")
	v1.Use(APIKeyMiddleware(cfg.APIKey))

	// WebSocket feed of pipeline outcomes
	v1.GET("/ws", cfg.Hub.HandleWS)

	// Users & face registration
	userH := handlers.NewUserHandler(cfg.DB, cfg.Detector)
	v1.POST("/users", userH.Create)
	v1.GET("/users", userH.List)
	v1.GET("/users/:id", userH.Get)
	v1.POST("/users/:id/faces", userH.RegisterFace)
	v1.GET("/users/:id/faces", userH.ListFaces)

	// Photos
	photoH := handlers.NewPhotoHandler(cfg.DB, cfg.MinIO, cfg.Producer)
	v1.POST("/users/:id/photos", photoH.Upload)
	v1.GET("/users/:id/photos", photoH.ListByUser)
	v1.GET("/users/:id/shared", photoH.ListShared)
	v1.GET("/photos/:id", photoH.Get)
	v1.GET("/photos/:id/content", photoH.Content)

	return r
}
