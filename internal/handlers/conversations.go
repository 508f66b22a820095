package handlers

import (
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/waypool/waypool-backend/internal/core"
)

type InitiateInput struct {
	TargetRideID uint `json:"targetRideId" binding:"required"`
}

type SendMessageInput struct {
	Text string `json:"text" binding:"required"`
}

func conversationID(c *gin.Context) (uint, bool) {
	id, err := strconv.ParseUint(c.Param("id"), 10, 32)
	if err != nil {
		c.JSON(400, gin.H{"error": "Invalid conversation ID"})
		return 0, false
	}
	return uint(id), true
}

// InitiateConversation pairs the user's ride with a target ride
func InitiateConversation(svc *core.Service) gin.HandlerFunc {
	return func(c *gin.Context) {
		userID := c.GetUint("userId")

		var input InitiateInput
		if err := c.ShouldBindJSON(&input); err != nil {
			c.JSON(400, gin.H{"error": err.Error()})
			return
		}

		conv, err := svc.InitiateConversation(c.Request.Context(), userID, input.TargetRideID)
		if err != nil {
			respondError(c, err)
			return
		}

		c.JSON(201, gin.H{
			"message":      "Conversation started",
			"conversation": conv,
		})
	}
}

// ListConversations summarizes the user's pairings
func ListConversations(svc *core.Service) gin.HandlerFunc {
	return func(c *gin.Context) {
		userID := c.GetUint("userId")

		summaries, err := svc.ListConversations(c.Request.Context(), userID)
		if err != nil {
			respondError(c, err)
			return
		}
		c.JSON(200, gin.H{"conversations": summaries})
	}
}

// SendMessage appends a chat message to a conversation
func SendMessage(svc *core.Service) gin.HandlerFunc {
	return func(c *gin.Context) {
		userID := c.GetUint("userId")
		convID, ok := conversationID(c)
		if !ok {
			return
		}

		var input SendMessageInput
		if err := c.ShouldBindJSON(&input); err != nil {
			c.JSON(400, gin.H{"error": err.Error()})
			return
		}

		msg, err := svc.SendMessage(c.Request.Context(), userID, convID, input.Text)
		if err != nil {
			respondError(c, err)
			return
		}
		c.JSON(201, gin.H{"message": msg})
	}
}

// Confirm advances the user's side of the confirmation handshake
func Confirm(svc *core.Service) gin.HandlerFunc {
	return func(c *gin.Context) {
		userID := c.GetUint("userId")
		convID, ok := conversationID(c)
		if !ok {
			return
		}

		result, err := svc.Confirm(c.Request.Context(), userID, convID)
		if err != nil {
			respondError(c, err)
			return
		}
		c.JSON(200, result)
	}
}

// Decline declines the pairing for both sides
func Decline(svc *core.Service) gin.HandlerFunc {
	return func(c *gin.Context) {
		userID := c.GetUint("userId")
		convID, ok := conversationID(c)
		if !ok {
			return
		}

		result, err := svc.Decline(c.Request.Context(), userID, convID)
		if err != nil {
			respondError(c, err)
			return
		}
		c.JSON(200, result)
	}
}
