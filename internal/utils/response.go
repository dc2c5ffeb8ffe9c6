package utils

import "github.com/gin-gonic/gin"

func Success(c *gin.Context, data gin.H) {
	c.JSON(200, gin.H{
		"success": true,
		"data":    data,
	})
}

func Error(c *gin.Context, code int, msg string) {
	c.JSON(code, gin.H{
		"success": false,
		"error":   msg,
	})
}

// ErrorCoded writes an error response carrying a machine-readable code.
// Extra fields (usage stats, upgrade hints) are merged into the body.
func ErrorCoded(c *gin.Context, status int, code, msg string, extra gin.H) {
	body := gin.H{
		"success": false,
		"code":    code,
		"error":   msg,
	}
	for k, v := range extra {
		body[k] = v
	}
	c.JSON(status, body)
}
