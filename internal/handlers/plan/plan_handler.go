// internal/handlers/plan/plan_handler.go
package plan

import (
	"context"
	"net/http"

	"medlink-service/internal/domain/plan"
	"medlink-service/internal/pkg/response"

	"github.com/gin-gonic/gin"
)

// Catalog is the read side of the plan tables.
type Catalog interface {
	ListPlans(ctx context.Context, filters *plan.ListFilters) ([]plan.Detail, error)
	GetPlan(ctx context.Context, id string) (*plan.Detail, error)
}

type PlanHandler struct {
	catalog Catalog
}

func NewPlanHandler(catalog Catalog) *PlanHandler {
	return &PlanHandler{catalog: catalog}
}

// ListPlans retrieves plans with their pricing and features, optionally
// narrowed to one audience
func (h *PlanHandler) ListPlans(c *gin.Context) {
	var filters plan.ListFilters
	if err := c.ShouldBindQuery(&filters); err != nil {
		response.ValidationError(c, "invalid query parameters", err)
		return
	}
	if filters.Role != "" && filters.Role != plan.RoleDoctor && filters.Role != plan.RoleHospital {
		response.ValidationError(c, "role must be doctor or hospital", nil)
		return
	}
	// the public catalogue never lists retired plans
	filters.ActiveOnly = true

	plans, err := h.catalog.ListPlans(c.Request.Context(), &filters)
	if err != nil {
		response.FromError(c, "failed to list plans", err)
		return
	}

	response.Success(c, http.StatusOK, "plans retrieved", gin.H{
		"plans": plans,
		"count": len(plans),
	})
}

// GetPlan retrieves a single plan by ID
func (h *PlanHandler) GetPlan(c *gin.Context) {
	detail, err := h.catalog.GetPlan(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.FromError(c, "plan not found", err)
		return
	}

	response.Success(c, http.StatusOK, "plan retrieved", detail)
}
