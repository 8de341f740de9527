package rest

import (
	"net/http"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/Dhoini/job-tracker/internal/api/rest/handlers"
	"github.com/Dhoini/job-tracker/internal/api/rest/middleware"
	"github.com/Dhoini/job-tracker/internal/domain"
	"github.com/Dhoini/job-tracker/internal/integration/stripe"
	"github.com/Dhoini/job-tracker/internal/metrics"
	"github.com/Dhoini/job-tracker/internal/service"
	"github.com/Dhoini/job-tracker/pkg/logger"
)

// RouterDeps - зависимости HTTP-слоя.
type RouterDeps struct {
	Users         service.UserService
	Collections   service.CollectionService
	Workspace     service.WorkspaceService
	Billing       service.BillingService
	Verifier      *stripe.Verifier
	Metrics       *metrics.Metrics // nil - без /metrics
	AllowedOrigin string
	Log           *logger.Logger
}

// SetupRouter настраивает маршрутизатор Gin с маршрутами и middleware
func SetupRouter(deps RouterDeps) *gin.Engine {
	r := gin.New()
	log := deps.Log.Named("http")

	// Подключение middleware
	r.Use(middleware.LoggerMiddleware(log))
	r.Use(gin.Recovery())
	r.Use(cors.New(corsConfig(deps.AllowedOrigin)))
	if deps.Metrics != nil {
		r.Use(deps.Metrics.GinMiddleware())
		r.GET("/metrics", gin.WrapH(promhttp.HandlerFor(deps.Metrics.Registry(), promhttp.HandlerOpts{})))
	}

	// Endpoint для проверки работоспособности сервиса
	r.GET("/health", handlers.HealthCheck)

	userHandler := handlers.NewUserHandler(deps.Users, log)
	collectionHandler := handlers.NewCollectionHandler(deps.Collections, deps.Workspace, log)
	billingHandler := handlers.NewBillingHandler(deps.Billing, log)
	webhookHandler := handlers.NewWebhookHandler(deps.Verifier, deps.Billing, log)

	api := r.Group("/api")
	{
		api.POST("/users/upsert", userHandler.UpsertUser)
		api.GET("/profile/:userId", userHandler.GetProfile)
		api.PUT("/profile/:userId", userHandler.PutProfile)
		api.GET("/workspace/:userId", collectionHandler.Workspace)

		for _, collection := range domain.Collections {
			group := api.Group("/" + string(collection))
			group.GET("", collectionHandler.List(collection))
			group.PUT("/sync/:userId", collectionHandler.Sync(collection))
		}

		billing := api.Group("/billing")
		{
			billing.POST("/checkout", billingHandler.Checkout)
			billing.GET("/status", billingHandler.Status)
			billing.POST("/cancel", billingHandler.Cancel)
			billing.POST("/reactivate", billingHandler.Reactivate)
			billing.POST("/webhook", webhookHandler.HandleStripeWebhook)
		}
	}

	r.NoRoute(func(c *gin.Context) {
		c.JSON(http.StatusNotFound, gin.H{"error": "not found"})
	})
	return r
}

func corsConfig(origin string) cors.Config {
	cfg := cors.Config{
		AllowMethods:  []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodOptions},
		AllowHeaders:  []string{"Origin", "Content-Type", "Accept", middleware.RequestIDHeader},
		ExposeHeaders: []string{middleware.RequestIDHeader},
		MaxAge:        12 * time.Hour,
	}
	if origin == "" || origin == "*" {
		cfg.AllowAllOrigins = true
	} else {
		cfg.AllowOrigins = []string{origin}
	}
	return cfg
}
