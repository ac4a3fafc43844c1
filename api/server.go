// Package api exposes the messenger facade over HTTP and WebSocket. It is
// the presentation-facing edge: it authenticates requests, translates
// payloads, and never touches storage directly.
package api

import (
	"log/slog"
	"net/http"

	"dm-core/auth"
	"dm-core/contract"
	"dm-core/services"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
)

type Server struct {
	log      *slog.Logger
	service  services.IMessengerService
	presence contract.IPresenceTracker
	tokens   *auth.TokenManager
	sockets  *socketHub
	engine   *gin.Engine
}

func NewServer(
	log *slog.Logger,
	service services.IMessengerService,
	presence contract.IPresenceTracker,
	tokens *auth.TokenManager,
	socketBufferSize int,
) *Server {
	s := &Server{
		log:      log,
		service:  service,
		presence: presence,
		tokens:   tokens,
		sockets:  newSocketHub(log, service, presence, socketBufferSize),
	}
	s.engine = s.routes()
	return s
}

func (s *Server) routes() *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(cors.New(cors.Config{
		AllowOrigins:     []string{"*"},
		AllowMethods:     []string{"GET", "POST", "OPTIONS"},
		AllowHeaders:     []string{"Origin", "Content-Type", "Authorization"},
		AllowCredentials: true,
	}))

	r.GET("/ws", s.handleSocket)

	protected := r.Group("/api/v1")
	protected.Use(AuthMiddleware(s.tokens))
	{
		protected.GET("/conversations", s.listConversations)
		protected.POST("/conversations", s.startConversation)
		protected.GET("/conversations/:id/messages", s.listMessages)
		protected.POST("/conversations/:id/messages", s.sendMessage)
		protected.POST("/messages/:id/read", s.markRead)
	}
	return r
}

func (s *Server) Handler() http.Handler {
	return s.engine
}
