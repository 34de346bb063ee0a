package api

import (
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
)

// NewRouter builds the gin engine with CORS for the frontend origins and
// all API routes registered.
func NewRouter(h *Handler) *gin.Engine {
	router := gin.Default()
	corsCfg := cors.Config{
		AllowMethods:     []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowHeaders:     []string{"Origin", "Content-Type", "Accept", "Authorization", "X-Requested-With", "X-Client-ID", "X-CSRF-Token"},
		ExposeHeaders:    []string{"Content-Length"},
		AllowCredentials: true,
		MaxAge:           12 * time.Hour,
	}
	if allowAll(h.origins) {
		corsCfg.AllowAllOrigins = true
	} else {
		corsCfg.AllowOrigins = h.origins
	}
	router.Use(cors.New(corsCfg))
	h.RegisterRoutes(router)
	return router
}

func allowAll(origins []string) bool {
	if len(origins) == 0 {
		return true
	}
	for _, o := range origins {
		if o == "*" {
			return true
		}
	}
	return false
}
