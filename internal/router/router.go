package router

import (
	"spec-mc/internal/handler"
	"spec-mc/internal/service"

	"github.com/gin-gonic/gin"
)

func SetupRouter(cfg *service.ServiceContext) *gin.Engine {
	r := gin.Default()

	// CORS
	r.Use(func(c *gin.Context) {
		c.Writer.Header().Set("Access-Control-Allow-Origin", "*")
		c.Writer.Header().Set("Access-Control-Allow-Credentials", "true")
		c.Writer.Header().Set("Access-Control-Allow-Headers", "Content-Type, Content-Length, Accept-Encoding, X-CSRF-Token, Authorization, accept, origin, Cache-Control, X-Requested-With")
		c.Writer.Header().Set("Access-Control-Allow-Methods", "POST, OPTIONS, GET, PUT, DELETE")

		if c.Request.Method == "OPTIONS" {
			c.AbortWithStatus(204)
			return
		}

		c.Next()
	})

	// 初始化handlers
	batchHandler := handler.NewBatchHandler(cfg.BatchService)
	solutionHandler := handler.NewSolutionHandler()
	databaseHandler := handler.NewDatabaseHandler(cfg.Registry)

	// API路由
	api := r.Group("/api")
	{
		// 批次相关
		batches := api.Group("/batches")
		{
			batches.POST("/run", batchHandler.RunBatch)
			batches.GET("", batchHandler.ListBatches)
			batches.GET("/:id", batchHandler.GetBatch)
			batches.GET("/:id/trials", batchHandler.GetTrials)
		}

		// 溶液组成相关
		solutions := api.Group("/solutions")
		{
			solutions.POST("/validate", solutionHandler.ValidateSolution)
		}

		// 数据库相关
		databases := api.Group("/databases")
		{
			databases.GET("", databaseHandler.ListDatabases)
		}
	}

	return r
}
