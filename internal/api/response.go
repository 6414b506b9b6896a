package api

import (
	"github.com/gin-gonic/gin"

	"poll-service/internal/models"
)

func SendSuccess(c *gin.Context, statusCode int, data interface{}) {
	c.JSON(statusCode, models.APIResponse{
		StatusCode: statusCode,
		Data:       data,
	})
}

func SendError(c *gin.Context, statusCode int, err error, errorCode string) {
	c.AbortWithStatusJSON(statusCode, models.APIResponse{
		StatusCode: statusCode,
		Error:      models.ErrorMessage(err),
		ErrorCode:  errorCode,
	})
}
