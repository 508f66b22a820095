package handlers

import (
	"time"

	"github.com/gin-gonic/gin"

	"github.com/waypool/waypool-backend/internal/core"
	"github.com/waypool/waypool-backend/internal/models"
)

type CreateRideInput struct {
	Destination   string    `json:"destination" binding:"required"`
	DepartureTime time.Time `json:"departureTime" binding:"required"`
}

// CreateRide opens a new ride request for the authenticated user
func CreateRide(svc *core.Service) gin.HandlerFunc {
	return func(c *gin.Context) {
		userID := c.GetUint("userId")

		var input CreateRideInput
		if err := c.ShouldBindJSON(&input); err != nil {
			c.JSON(400, gin.H{"error": err.Error()})
			return
		}

		ride, err := svc.CreateRide(c.Request.Context(), userID, models.Destination(input.Destination), input.DepartureTime)
		if err != nil {
			respondError(c, err)
			return
		}

		c.JSON(201, gin.H{
			"message": "Ride request created",
			"ride":    ride,
		})
	}
}

// GetCurrentRide returns the user's active ride request, if any
func GetCurrentRide(svc *core.Service) gin.HandlerFunc {
	return func(c *gin.Context) {
		userID := c.GetUint("userId")

		ride, err := svc.CurrentRide(c.Request.Context(), userID)
		if err != nil {
			respondError(c, err)
			return
		}
		if ride == nil {
			c.JSON(200, gin.H{"ride": nil})
			return
		}
		c.JSON(200, gin.H{"ride": ride})
	}
}

// DeleteCurrentRide removes the user's ride and declines its pairings
func DeleteCurrentRide(svc *core.Service) gin.HandlerFunc {
	return func(c *gin.Context) {
		userID := c.GetUint("userId")

		if err := svc.DeleteRide(c.Request.Context(), userID); err != nil {
			respondError(c, err)
			return
		}
		c.JSON(200, gin.H{"message": "Ride request deleted"})
	}
}

// GetMatches returns candidate rides for the user's current ride
func GetMatches(svc *core.Service) gin.HandlerFunc {
	return func(c *gin.Context) {
		userID := c.GetUint("userId")

		matches, err := svc.FindMatches(c.Request.Context(), userID)
		if err != nil {
			respondError(c, err)
			return
		}

		results := make([]gin.H, 0, len(matches))
		for i := range matches {
			match := gin.H{
				"rideId":        matches[i].ID,
				"destination":   matches[i].Destination,
				"departureTime": matches[i].DepartureTime,
				"status":        matches[i].Status,
			}
			if matches[i].Owner != nil {
				match["owner"] = gin.H{
					"id":       matches[i].Owner.ID,
					"username": matches[i].Owner.Username,
				}
			}
			results = append(results, match)
		}
		c.JSON(200, gin.H{"matches": results})
	}
}
