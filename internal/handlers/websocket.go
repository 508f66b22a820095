package handlers

import (
	"github.com/gin-gonic/gin"

	"github.com/waypool/waypool-backend/internal/core"
	"github.com/waypool/waypool-backend/internal/models"
	"github.com/waypool/waypool-backend/internal/services"
)

// WebSocketHandler subscribes the session to every non-declined
// conversation the user's ride currently holds. New pairings made after
// connect are picked up on reconnect.
func WebSocketHandler(hub *services.Hub, svc *core.Service) gin.HandlerFunc {
	return func(c *gin.Context) {
		userID := c.GetUint("userId")

		var conversationIDs []uint
		if ride, err := svc.CurrentRide(c.Request.Context(), userID); err == nil && ride != nil {
			for i := range ride.Refs {
				if ride.Refs[i].Status != models.RefStatusDeclined {
					conversationIDs = append(conversationIDs, ride.Refs[i].ConversationID)
				}
			}
		}

		services.HandleWebSocket(hub, c.Writer, c.Request, userID, conversationIDs)
	}
}
