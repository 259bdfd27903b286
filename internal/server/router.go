package server

import (
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"chatrelay/internal/auth"
	"chatrelay/internal/handler"
	"chatrelay/internal/hub"
	"chatrelay/internal/middleware"
	"chatrelay/internal/store"
)

type Deps struct {
	Store       *store.Store
	TokenConfig auth.TokenConfig

	// DefaultMembers are auto-joined to every new session.
	DefaultMembers []string
}

func NewRouter(deps Deps) *gin.Engine {
	r := gin.New()
	r.Use(gin.Logger())
	// The broker must stay up for every other session regardless of one
	// request's fault; panics become a descriptive 500 at the boundary.
	r.Use(gin.CustomRecovery(func(c *gin.Context, recovered any) {
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{
			"message": fmt.Sprintf("Failed method %s at URL %s. Fault is %v.",
				c.Request.Method, c.Request.URL, recovered),
		})
	}))

	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"ok": true})
	})

	tokenLimiter := middleware.NewRateLimiter(20, time.Minute)
	authHandler := &handler.AuthHandler{Store: deps.Store, TokenConfig: deps.TokenConfig}
	r.POST("/token", middleware.RateLimit(tokenLimiter), authHandler.Token)
	r.POST("/guest-token", middleware.RateLimit(tokenLimiter), authHandler.GuestToken)

	broker := &handler.Broker{Store: deps.Store, Hub: hub.New()}
	chatHandler := &handler.ChatHandler{Broker: broker, DefaultMembers: deps.DefaultMembers}
	streamHandler := &handler.StreamHandler{Broker: broker}

	chat := r.Group("/chat")
	chat.Use(middleware.RequireAuth(deps.TokenConfig, deps.Store))
	chat.POST("", chatHandler.Create)
	chat.GET("/me", chatHandler.Me)
	chat.GET("/me/sessions", chatHandler.Sessions)
	chat.POST("/:sid/invite", chatHandler.Invite)
	chat.POST("/:sid/post", chatHandler.Post)
	chat.GET("/listen", streamHandler.Listen)
	chat.GET("/sse", streamHandler.SSE)
	chat.GET("/ws", streamHandler.WS)

	return r
}
