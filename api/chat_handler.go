package api

import (
	"errors"
	"net/http"
	"time"

	"dm-core/domain"
	apperrors "dm-core/errors"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/samber/lo"
)

type conversationResponse struct {
	ID           string    `json:"id"`
	ParticipantA string    `json:"participant_a"`
	ParticipantB string    `json:"participant_b"`
	LastActivity time.Time `json:"last_activity"`
}

type messageResponse struct {
	ID             string    `json:"id"`
	ConversationID string    `json:"conversation_id"`
	SenderID       string    `json:"sender_id"`
	Body           string    `json:"body"`
	CreatedAt      time.Time `json:"created_at"`
	Read           bool      `json:"read"`
}

type previewResponse struct {
	Body      string    `json:"body"`
	CreatedAt time.Time `json:"created_at"`
}

type summaryResponse struct {
	Conversation conversationResponse `json:"conversation"`
	PeerID       string               `json:"peer_id"`
	PeerOnline   bool                 `json:"peer_online"`
	Preview      *previewResponse     `json:"preview,omitempty"`
}

func (s *Server) startConversation(c *gin.Context) {
	var req struct {
		PeerID string `json:"peer_id" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"message": err.Error()})
		return
	}

	conv, err := s.service.StartOrGetConversation(c.Request.Context(), MustUserID(c), req.PeerID)
	if err != nil {
		s.renderError(c, err)
		return
	}
	c.JSON(http.StatusOK, fromConversation(conv))
}

func (s *Server) listConversations(c *gin.Context) {
	summaries, err := s.service.ListConversations(MustUserID(c))
	if err != nil {
		s.renderError(c, err)
		return
	}
	c.JSON(http.StatusOK, lo.Map(summaries, func(item domain.ConversationSummary, _ int) summaryResponse {
		return fromSummary(item)
	}))
}

func (s *Server) listMessages(c *gin.Context) {
	conversationID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"message": "invalid conversation id"})
		return
	}

	messages, err := s.service.ListMessages(MustUserID(c), conversationID)
	if err != nil {
		s.renderError(c, err)
		return
	}
	c.JSON(http.StatusOK, lo.Map(messages, func(item domain.Message, _ int) messageResponse {
		return fromMessage(item)
	}))
}

func (s *Server) sendMessage(c *gin.Context) {
	conversationID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"message": "invalid conversation id"})
		return
	}
	var req struct {
		Body string `json:"body"`
	}
	if err = c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"message": err.Error()})
		return
	}

	message, err := s.service.SendMessage(c.Request.Context(), domain.SendMessageCommand{
		ConversationID: conversationID,
		SenderID:       MustUserID(c),
		Body:           req.Body,
	})
	if err != nil {
		s.renderError(c, err)
		return
	}
	c.JSON(http.StatusCreated, fromMessage(message))
}

func (s *Server) markRead(c *gin.Context) {
	messageID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"message": "invalid message id"})
		return
	}

	message, err := s.service.MarkRead(domain.MarkReadCommand{
		MessageID: messageID,
		ReaderID:  MustUserID(c),
	})
	if err != nil {
		s.renderError(c, err)
		return
	}
	c.JSON(http.StatusOK, fromMessage(message))
}

func (s *Server) renderError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, apperrors.ErrInvalidParticipants),
		errors.Is(err, apperrors.ErrInvalidBody):
		c.JSON(http.StatusBadRequest, gin.H{"message": err.Error()})
	case errors.Is(err, apperrors.ErrNotAParticipant):
		c.JSON(http.StatusForbidden, gin.H{"message": err.Error()})
	case errors.Is(err, apperrors.ErrNotFound):
		c.JSON(http.StatusNotFound, gin.H{"message": err.Error()})
	case errors.Is(err, apperrors.ErrTransientStore):
		c.JSON(http.StatusServiceUnavailable, gin.H{"message": err.Error()})
	default:
		s.log.Error("Unhandled API error", "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"message": "internal error"})
	}
}

func fromConversation(conv domain.Conversation) conversationResponse {
	return conversationResponse{
		ID:           conv.ID.String(),
		ParticipantA: conv.ParticipantA,
		ParticipantB: conv.ParticipantB,
		LastActivity: conv.LastActivity,
	}
}

func fromMessage(message domain.Message) messageResponse {
	return messageResponse{
		ID:             message.ID.String(),
		ConversationID: message.ConversationID.String(),
		SenderID:       message.SenderID,
		Body:           message.Body,
		CreatedAt:      message.CreatedAt,
		Read:           message.Read,
	}
}

func fromSummary(summary domain.ConversationSummary) summaryResponse {
	res := summaryResponse{
		Conversation: fromConversation(summary.Conversation),
		PeerID:       summary.PeerID,
		PeerOnline:   summary.PeerOnline,
	}
	if summary.Preview != nil {
		res.Preview = &previewResponse{
			Body:      summary.Preview.Body,
			CreatedAt: summary.Preview.CreatedAt,
		}
	}
	return res
}
