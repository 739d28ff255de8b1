package main

import (
	"call-platform/internal/httpapi"

	"github.com/gin-gonic/gin"
)

// registerRoutes wires HTTP routes to handlers.
// Keep this file free of business logic. Handlers should delegate to internal modules.
func registerRoutes(r *gin.Engine, h httpapi.Handlers, authMW gin.HandlerFunc) {
	// public
	r.GET("/healthz", func(c *gin.Context) {
		c.JSON(200, gin.H{"status": "ok"})
	})

	v1 := r.Group("/v1")

	// AUTH routes (token issuance) stay public; refresh carries its own proof.
	authGroup := v1.Group("/auth")
	{
		authGroup.POST("/login", h.Login)
		authGroup.POST("/refresh", h.Refresh)
	}

	// protected API group
	protected := v1.Group("")
	protected.Use(authMW)
	{
		callsGroup := protected.Group("/calls")
		{
			callsGroup.POST("", h.CreateCall)
			callsGroup.POST("/:room_id/accept", h.AcceptCall)
			callsGroup.POST("/:room_id/reject", h.RejectCall)
			callsGroup.POST("/:room_id/end", h.EndCall)

			callsGroup.GET("/incoming", h.IncomingCall)
			callsGroup.GET("/history", h.CallHistory)
		}
	}
}
