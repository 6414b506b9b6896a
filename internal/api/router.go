package api

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"poll-service/internal/service"
	"poll-service/internal/socket"
)

func RegisterSocketRouters(r *gin.Engine, hub *socket.Hub) {
	r.GET("/ws", socket.ServeWsGin(hub))
}

func RegisterPollRouters(r *gin.Engine, pollService service.PollService) {
	handlers := NewPollHandler(pollService)

	pollGroup := r.Group("/api/v1/poll")
	{
		pollGroup.POST("", handlers.CreatePoll)
		pollGroup.GET("/:room_code", handlers.GetPoll)
	}
}

func RegisterHealthRouters(r *gin.Engine) {
	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
}
