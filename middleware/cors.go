package middleware

import (
	"strings"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
)

// CORS returns a CORS middleware for the given origins. "*" allows any origin.
func CORS(origins []string) gin.HandlerFunc {
	config := cors.DefaultConfig()
	config.AllowMethods = []string{"GET", "POST", "DELETE", "OPTIONS"}
	config.AllowHeaders = []string{"Origin", "Content-Type", "Authorization", "Last-Event-ID"}
	config.ExposeHeaders = []string{"Content-Length", "Content-Range"}

	cleaned := make([]string, 0, len(origins))
	for _, o := range origins {
		if o = strings.TrimSpace(o); o != "" {
			cleaned = append(cleaned, o)
		}
	}
	switch {
	case len(cleaned) == 0:
		config.AllowOrigins = []string{"http://localhost:3000", "http://localhost:5173"}
	case len(cleaned) == 1 && cleaned[0] == "*":
		config.AllowAllOrigins = true
	default:
		config.AllowOrigins = cleaned
	}

	return cors.New(config)
}
