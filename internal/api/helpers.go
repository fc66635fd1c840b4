package api

import (
	"strings"

	"github.com/gin-gonic/gin"
)

// tenantID берет тенанта из query/form параметра tenant_id или заголовка X-Tenant-ID
func tenantID(c *gin.Context) string {
	if v := strings.TrimSpace(c.Query("tenant_id")); v != "" {
		return v
	}
	if v := strings.TrimSpace(c.PostForm("tenant_id")); v != "" {
		return v
	}
	return strings.TrimSpace(c.GetHeader("X-Tenant-ID"))
}

func respondError(c *gin.Context, status int, message string, err error) {
	body := gin.H{"error": message}
	if err != nil {
		body["details"] = err.Error()
	}
	c.JSON(status, body)
}
