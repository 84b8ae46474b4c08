// internal/handlers/usage/usage_handler.go
package usage

import (
	"context"
	"net/http"

	"medlink-service/internal/domain/usage"
	"medlink-service/internal/middleware"
	"medlink-service/internal/pkg/response"

	"github.com/gin-gonic/gin"
)

type Reader interface {
	GetUsage(ctx context.Context, entityID string, et usage.EntityType) (*usage.Snapshot, error)
}

type UsageHandler struct {
	ledger Reader
}

func NewUsageHandler(ledger Reader) *UsageHandler {
	return &UsageHandler{ledger: ledger}
}

// GetMyUsage returns the current month's usage of the caller's doctor or
// hospital profile
func (h *UsageHandler) GetMyUsage(c *gin.Context) {
	et := usage.EntityType(middleware.GetRole(c))
	entityID := middleware.GetEntityID(c)
	if !et.Valid() || entityID == "" {
		response.Forbidden(c, "usage is tracked for doctor and hospital profiles only")
		return
	}

	h.respond(c, entityID, et)
}

// GetEntityUsage returns the usage of any profile (admin only)
func (h *UsageHandler) GetEntityUsage(c *gin.Context) {
	et := usage.EntityType(c.Param("entityType"))
	if !et.Valid() {
		response.ValidationError(c, "entity type must be doctor or hospital", nil)
		return
	}

	h.respond(c, c.Param("id"), et)
}

func (h *UsageHandler) respond(c *gin.Context, entityID string, et usage.EntityType) {
	snapshot, err := h.ledger.GetUsage(c.Request.Context(), entityID, et)
	if err != nil {
		response.FromError(c, "failed to get usage", err)
		return
	}

	response.Success(c, http.StatusOK, "usage retrieved", snapshot)
}
