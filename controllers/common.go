package controllers

import (
	"time"

	"github.com/gin-gonic/gin"
)

const (
	writeTimeout = 5 * time.Second
	listTimeout  = 10 * time.Second
)

// fail writes the error envelope every endpoint shares. Internal detail never
// leaves the server outside development mode.
func fail(c *gin.Context, status int, message string) {
	c.JSON(status, gin.H{"success": false, "message": message})
}

func failWithReasons(c *gin.Context, status int, message string, reasons []string) {
	c.JSON(status, gin.H{"success": false, "message": message, "reasons": reasons})
}

// parseDate accepts RFC3339 plus the date-only fallbacks clients tend to send.
func parseDate(value string) (time.Time, bool) {
	if t, err := time.Parse(time.RFC3339, value); err == nil {
		return t, true
	}
	layouts := []string{"2006-01-02", "2006-01-02 15:04", "2006-01-02 15:04:05"}
	for _, layout := range layouts {
		if t, err := time.Parse(layout, value); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}
