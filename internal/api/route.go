package api

import (
	"Wavecast/internal/api/middleware"
	"Wavecast/internal/pkg/logger"
	"net/http"

	"github.com/gin-gonic/gin"
)

func SetupRouter(group *HandlersGroup) *gin.Engine {
	r := gin.New()
	_ = r.SetTrustedProxies([]string{"localhost"})

	// TraceId & Logger & CORS
	r.Use(middleware.TraceMiddleware())
	r.Use(middleware.AuditMiddleware())
	r.Use(middleware.CORSMiddleware())
	logger.SetupGin(r)

	// WebSocket 网关
	wsGroup := r.Group("/ws")
	wsGroup.Use(middleware.AuthMiddleware())
	{
		wsGroup.GET("/chat", group.RoomWsHandler.Connect)
		wsGroup.GET("/dm", group.DmWsHandler.Connect)
	}

	apiGroup := r.Group("/api")
	{
		apiGroup.GET("/ping", func(c *gin.Context) {
			c.JSON(http.StatusOK, gin.H{
				"Code":    200,
				"Message": "pong",
				"Data":    nil,
			})
		})

		roomGroup := apiGroup.Group("/room")
		{
			roomGroup.GET("/:room_id/audience", group.RoomHandler.GetAudienceCount)
		}

		authGroup := apiGroup.Group("")
		authGroup.Use(middleware.AuthMiddleware())
		{
			convGroup := authGroup.Group("/conversations")
			{
				convGroup.POST("", group.ConversationHandler.CreateConversation)
				convGroup.GET("", group.ConversationHandler.ListConversations)
				convGroup.GET("/:conversation_id", group.ConversationHandler.GetConversation)
				convGroup.PUT("/:conversation_id", group.ConversationHandler.UpdateConversation)
				convGroup.POST("/:conversation_id/participants", group.ConversationHandler.AddParticipant)
				convGroup.DELETE("/:conversation_id/participants/:user_id", group.ConversationHandler.RemoveParticipant)
				convGroup.POST("/:conversation_id/leave", group.ConversationHandler.LeaveConversation)

				convGroup.GET("/:conversation_id/messages", group.DmMessageHandler.GetMessages)
				convGroup.PUT("/:conversation_id/messages/:message_id", group.DmMessageHandler.EditMessage)
				convGroup.DELETE("/:conversation_id/messages/:message_id", group.DmMessageHandler.DeleteMessage)
				convGroup.GET("/:conversation_id/unread", group.DmMessageHandler.GetUnreadCount)
			}

			authGroup.GET("/presence", group.PresenceHandler.GetPresence)
		}
	}

	return r
}
