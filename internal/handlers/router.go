package handlers

import (
	"net/http"

	_ "github.com/epeers/navgraph/docs"
	"github.com/epeers/navgraph/internal/metrics"
	"github.com/epeers/navgraph/internal/middleware"
	"github.com/gin-gonic/gin"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"
)

// NewRouter wires the HTTP routes. Health, metrics and the API docs stay open;
// run routes require the API key when one is configured.
func NewRouter(runs *RunHandler, m *metrics.Collector, apiKey string) *gin.Engine {
	router := gin.New()
	router.Use(gin.Logger(), gin.Recovery())

	router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	router.GET("/swagger/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))
	if m != nil {
		router.GET("/metrics", gin.WrapH(m.Handler()))
	}

	api := router.Group("/runs", middleware.RequireAPIKey(apiKey))
	api.POST("", runs.Start)
	api.GET("/:id", runs.Get)
	api.GET("/:id/rows", runs.Rows)
	api.DELETE("/:id", runs.Cancel)
	return router
}
