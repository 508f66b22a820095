package handlers

import (
	"errors"
	"log"

	"github.com/gin-gonic/gin"

	"github.com/waypool/waypool-backend/internal/core"
)

// respondError maps a core error kind onto its HTTP status. Unknown
// errors never leak details to the client.
func respondError(c *gin.Context, err error) {
	var coreErr *core.Error
	if errors.As(err, &coreErr) {
		status := 500
		switch coreErr.Kind {
		case core.KindValidation:
			status = 400
		case core.KindUnauthorized:
			status = 403
		case core.KindNotFound:
			status = 404
		case core.KindConflict:
			status = 409
		case core.KindTransient:
			status = 503
		}
		c.JSON(status, gin.H{"error": coreErr.Message, "code": coreErr.Code})
		return
	}
	log.Printf("internal error on %s %s: %v", c.Request.Method, c.Request.URL.Path, err)
	c.JSON(500, gin.H{"error": "internal error"})
}
