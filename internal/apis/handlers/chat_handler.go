package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"querypilot/internal/apis/dtos"
	"querypilot/pkg/dbmanager"
)

type ChatHandler struct {
	manager *dbmanager.Manager
}

func NewChatHandler(manager *dbmanager.Manager) *ChatHandler {
	return &ChatHandler{manager: manager}
}

// Create opens a chat session under a live connection session.
func (h *ChatHandler) Create(c *gin.Context) {
	token := c.Param("token")

	chat, err := h.manager.CreateChat(token)
	if err != nil {
		errorMsg := err.Error()
		c.JSON(http.StatusNotFound, dtos.Response{
			Success: false,
			Error:   &errorMsg,
		})
		return
	}

	c.JSON(http.StatusOK, dtos.Response{
		Success: true,
		Data: dtos.CreateChatResponse{
			ChatToken:  chat.Token,
			IsFollowUp: chat.IsFollowUp,
		},
	})
}

// AppendMessage records one message in a chat's history.
func (h *ChatHandler) AppendMessage(c *gin.Context) {
	chatToken := c.Param("chatToken")

	var req dtos.AppendMessageRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		errorMsg := err.Error()
		c.JSON(http.StatusBadRequest, dtos.Response{
			Success: false,
			Error:   &errorMsg,
		})
		return
	}

	if err := h.manager.AppendMessage(chatToken, req.Role, req.Content); err != nil {
		errorMsg := err.Error()
		c.JSON(http.StatusNotFound, dtos.Response{
			Success: false,
			Error:   &errorMsg,
		})
		return
	}

	c.JSON(http.StatusOK, dtos.Response{
		Success: true,
	})
}

// History returns the chat history, timestamps stripped.
func (h *ChatHandler) History(c *gin.Context) {
	chatToken := c.Param("chatToken")

	history, err := h.manager.ChatHistory(chatToken)
	if err != nil {
		errorMsg := err.Error()
		c.JSON(http.StatusNotFound, dtos.Response{
			Success: false,
			Error:   &errorMsg,
		})
		return
	}

	c.JSON(http.StatusOK, dtos.Response{
		Success: true,
		Data:    history,
	})
}

// ClearHistory empties a chat's history, keeping its token.
func (h *ChatHandler) ClearHistory(c *gin.Context) {
	chatToken := c.Param("chatToken")

	if err := h.manager.ClearChatHistory(chatToken); err != nil {
		errorMsg := err.Error()
		c.JSON(http.StatusNotFound, dtos.Response{
			Success: false,
			Error:   &errorMsg,
		})
		return
	}

	c.JSON(http.StatusOK, dtos.Response{
		Success: true,
	})
}

// Reset replaces a chat with a fresh one under the same session and returns
// the new token.
func (h *ChatHandler) Reset(c *gin.Context) {
	chatToken := c.Param("chatToken")

	chat, err := h.manager.ResetChat(chatToken)
	if err != nil {
		errorMsg := err.Error()
		c.JSON(http.StatusNotFound, dtos.Response{
			Success: false,
			Error:   &errorMsg,
		})
		return
	}

	c.JSON(http.StatusOK, dtos.Response{
		Success: true,
		Data: dtos.CreateChatResponse{
			ChatToken:  chat.Token,
			IsFollowUp: chat.IsFollowUp,
		},
	})
}
