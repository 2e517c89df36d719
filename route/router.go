package route

import (
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"procure-agent/api"
	"procure-agent/config"
	"procure-agent/service"
)

type Deps struct {
	Chat      *service.ChatService
	Decisions *service.DecisionLayer
	Settings  *config.Settings
	Limiter   *api.RateLimiter
}

func Register(r *gin.Engine, d Deps) {
	// 健康检查
	r.GET("/health", func(c *gin.Context) {
		c.JSON(200, gin.H{"status": "ok"})
	})
	r.GET("/", func(c *gin.Context) {
		c.JSON(200, gin.H{"service": "procure-agent", "status": "running"})
	})
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	apiGroup := r.Group("/api")

	// 聊天接口分组
	chatGroup := apiGroup.Group("/chat")
	{
		chatGroup.POST("/:conversation_id", api.RateLimit(d.Limiter), api.ChatHandler(d.Chat))
		chatGroup.GET("/:conversation_id/history", api.HistoryHandler(d.Chat))
	}

	apiGroup.POST("/intent", api.RateLimit(d.Limiter), api.IntentRecognitionHandler(d.Decisions, d.Settings))

	settingsGroup := apiGroup.Group("/settings")
	{
		settingsGroup.GET("", api.GetSettingsHandler(d.Settings))
		settingsGroup.PUT("", api.UpdateSettingsHandler(d.Settings))
	}
}
