package middleware

import (
	"github.com/gin-gonic/gin"
	"github.com/joshu-sajeev/previewq/common"
	"github.com/joshu-sajeev/previewq/internal/logger"
)

func ErrorHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()

		if len(c.Errors) == 0 || c.Writer.Written() {
			return
		}

		err := c.Errors.Last().Err

		apiErr, ok := common.AsAPIError(err)
		if !ok {
			logger.FromContext(c.Request.Context()).Error("unhandled error",
				"path", c.FullPath(),
				"error", err,
			)
		}

		response := gin.H{"error": apiErr.Message}
		if apiErr.Fields != nil {
			response["fields"] = apiErr.Fields
		}
		c.JSON(apiErr.Status, response)
	}
}
