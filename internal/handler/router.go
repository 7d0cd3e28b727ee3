package handler

import (
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

func SetupRouter(h *Handler) *gin.Engine {
	gin.SetMode(gin.ReleaseMode)

	r := gin.New()

	r.Use(RecoveryMiddleware())
	r.Use(LoggerMiddleware())
	r.Use(CORSMiddleware())

	api := r.Group("/api/v1", AuthMiddleware())
	{
		account := api.Group("/account")
		{
			account.GET("/balance", h.GetBalance)
			account.POST("/deposit", h.Deposit)
			account.GET("/transactions", h.ListTransactions)
		}

		items := api.Group("/items")
		{
			items.POST("", h.CreateItem)
			items.GET("", h.ListItems)
			items.GET("/:id", h.GetItem)
		}

		predictions := api.Group("/predictions")
		{
			predictions.POST("", h.SubmitPrediction)
			predictions.GET("", h.ListPredictions)
			predictions.GET("/:id", h.GetPrediction)
		}
	}

	r.GET("/health", func(c *gin.Context) {
		c.JSON(200, gin.H{"status": "ok"})
	})
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	return r
}
