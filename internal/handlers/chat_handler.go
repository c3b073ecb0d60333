package handlers

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/hbl306/phongtro57-chat/internal/middleware"
	chatservice "github.com/hbl306/phongtro57-chat/internal/services/chat"
	"github.com/hbl306/phongtro57-chat/internal/services/dto"
	"github.com/hbl306/phongtro57-chat/internal/validator"
	"github.com/hbl306/phongtro57-chat/pkg/apperrors"
)

// ChatHandler exposes the snapshot API: conversation listing, history fetch
// and conversation bootstrap for clients that need a point-in-time read
// instead of a push subscription.
type ChatHandler struct {
	chatService *chatservice.ChatService
	validate    *validator.Validator
}

func NewChatHandler(chatService *chatservice.ChatService) *ChatHandler {
	return &ChatHandler{
		chatService: chatService,
		validate:    validator.New(),
	}
}

// RegisterRoutes mounts the chat snapshot endpoints on an authenticated group.
func (h *ChatHandler) RegisterRoutes(api *gin.RouterGroup) {
	chat := api.Group("/chat")
	{
		chat.GET("/unread-summary", h.GetUnreadSummary)
		chat.POST("/support/conversation", h.GetOrCreateSupportConversation)
		chat.GET("/support/conversations", middleware.RequireAgent(), h.ListSupportConversations)
		chat.GET("/dm/conversations", h.ListDmConversations)
		chat.POST("/dm/conversations", h.GetOrCreateDmConversation)
		chat.GET("/conversations/:conversationID/messages", h.GetMessages)
	}
}

func (h *ChatHandler) GetUnreadSummary(c *gin.Context) {
	ident := middleware.CurrentIdentity(c)

	summary, err := h.chatService.UnreadSummary(ident)
	if err != nil {
		apperrors.HandleError(c, err)
		return
	}
	c.JSON(http.StatusOK, summary)
}

func (h *ChatHandler) GetOrCreateSupportConversation(c *gin.Context) {
	ident := middleware.CurrentIdentity(c)

	conv, err := h.chatService.GetOrCreateSupportConversation(ident.UserID)
	if err != nil {
		apperrors.HandleError(c, err)
		return
	}
	c.JSON(http.StatusOK, dto.ConversationResponse{
		ID:              conv.ID,
		Kind:            string(conv.Kind),
		OwnerUserID:     conv.OwnerUserID,
		AssignedAgentID: conv.AssignedAgentID,
		Status:          string(conv.Status),
		LastMessageAt:   conv.LastMessageAt,
		Preview:         conv.LastMessagePreview,
		CreatedAt:       conv.CreatedAt,
	})
}

func (h *ChatHandler) GetOrCreateDmConversation(c *gin.Context) {
	ident := middleware.CurrentIdentity(c)

	var req dto.CreateDmConversationRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		apperrors.HandleError(c, apperrors.ValidationError("invalid request body"))
		return
	}
	if err := h.validate.Struct(&req); err != nil {
		apperrors.HandleError(c, apperrors.ValidationError(err.Error()))
		return
	}

	conv, err := h.chatService.GetOrCreateDmConversation(ident.UserID, req.PeerID)
	if err != nil {
		apperrors.HandleError(c, err)
		return
	}
	c.JSON(http.StatusOK, dto.ConversationResponse{
		ID:            conv.ID,
		Kind:          string(conv.Kind),
		OwnerUserID:   conv.OwnerUserID,
		Status:        string(conv.Status),
		LastMessageAt: conv.LastMessageAt,
		Preview:       conv.LastMessagePreview,
		CreatedAt:     conv.CreatedAt,
	})
}

func (h *ChatHandler) ListSupportConversations(c *gin.Context) {
	ident := middleware.CurrentIdentity(c)

	list, err := h.chatService.ListSupportConversations(ident.UserID, c.Query("q"), queryLimit(c))
	if err != nil {
		apperrors.HandleError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"conversations": list})
}

func (h *ChatHandler) ListDmConversations(c *gin.Context) {
	ident := middleware.CurrentIdentity(c)

	list, err := h.chatService.ListDmConversations(ident.UserID, c.Query("q"), queryLimit(c))
	if err != nil {
		apperrors.HandleError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"conversations": list})
}

func (h *ChatHandler) GetMessages(c *gin.Context) {
	ident := middleware.CurrentIdentity(c)

	msgs, err := h.chatService.FetchMessages(ident, c.Param("conversationID"), queryLimit(c))
	if err != nil {
		apperrors.HandleError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"messages": msgs})
}

func queryLimit(c *gin.Context) int {
	limit, _ := strconv.Atoi(c.Query("limit"))
	return limit
}
