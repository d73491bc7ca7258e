package api

import (
	"github.com/Ayash-Bera/metricslab/backend/internal/api/handlers"
	"github.com/Ayash-Bera/metricslab/backend/internal/middleware"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sirupsen/logrus"
)

type RouterConfig struct {
	ExperimentHandler *handlers.ExperimentHandler
	FeedbackHandler   *handlers.FeedbackHandler
	SyncHandler       *handlers.SyncHandler
	HealthHandler     *handlers.HealthHandler
	RateLimiter       *middleware.RateLimiter
	AllowedOrigins    []string
	Logger            *logrus.Logger
}

func NewRouter(cfg RouterConfig) *gin.Engine {
	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(middleware.RequestID())
	router.Use(middleware.RequestLogger(cfg.Logger))
	router.Use(middleware.SecurityHeaders())
	if len(cfg.AllowedOrigins) > 0 {
		router.Use(middleware.CORS(cfg.AllowedOrigins))
	}

	router.GET("/health", cfg.HealthHandler.HandleHealth)
	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	v1 := router.Group("/api/v1")
	if cfg.RateLimiter != nil {
		v1.Use(cfg.RateLimiter.RateLimit())
	}

	p := v1.Group("/participants/:uid")
	{
		exp := cfg.ExperimentHandler
		p.GET("/state", exp.GetState)
		p.DELETE("/state", exp.ResetExperiment)
		p.GET("/progress", exp.GetProgress)

		p.POST("/metrics/:metricId/visit", exp.MarkMetricVisited)
		p.POST("/search", exp.MarkMetricSearchUsed)
		p.POST("/search/click", exp.MarkMetricSearchClick)

		p.POST("/chat-entries", exp.AddChatEntry)
		p.DELETE("/chat-entries", exp.ClearChatEntries)
		p.DELETE("/chat-entries/by-key", exp.RemoveChatEntry)
		p.PATCH("/chat-entries/rating", exp.SetChatEntryRating)
		p.PATCH("/chat-entries/ratings", exp.SetChatEntryRatings)

		p.POST("/feedback", cfg.FeedbackHandler.HandleSubmit)

		p.POST("/sync", cfg.SyncHandler.HandleStart)
		p.DELETE("/sync", cfg.SyncHandler.HandleStop)
	}

	return router
}
