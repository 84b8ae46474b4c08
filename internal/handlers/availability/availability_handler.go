// internal/handlers/availability/availability_handler.go
package availability

import (
	"context"
	"net/http"

	"medlink-service/internal/domain/availability"
	"medlink-service/internal/middleware"
	"medlink-service/internal/pkg/response"

	"github.com/gin-gonic/gin"
)

type SlotService interface {
	CreateParentSlot(ctx context.Context, doctorID string, req *availability.CreateParentSlotRequest) (*availability.Slot, error)
	ListByDoctor(ctx context.Context, doctorID string, filters *availability.ListFilters) ([]availability.Slot, error)
	ListSubSlots(ctx context.Context, parentID string) ([]availability.Slot, error)
	AvailableRanges(ctx context.Context, parentID string) (*availability.RangesResponse, error)
	CreateTemplate(ctx context.Context, doctorID string, req *availability.CreateTemplateRequest) (*availability.Template, error)
	ListTemplates(ctx context.Context, doctorID string) ([]availability.Template, error)
}

type AvailabilityHandler struct {
	slots SlotService
}

func NewAvailabilityHandler(slots SlotService) *AvailabilityHandler {
	return &AvailabilityHandler{slots: slots}
}

// CreateSlot declares an availability window for the calling doctor
func (h *AvailabilityHandler) CreateSlot(c *gin.Context) {
	var req availability.CreateParentSlotRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.ValidationError(c, "invalid request", err)
		return
	}

	slot, err := h.slots.CreateParentSlot(c.Request.Context(), middleware.GetEntityID(c), &req)
	if err != nil {
		response.FromError(c, "failed to create availability", err)
		return
	}

	response.Success(c, http.StatusCreated, "availability created", slot)
}

// ListDoctorSlots lists a doctor's windows and carved pieces in a date range
func (h *AvailabilityHandler) ListDoctorSlots(c *gin.Context) {
	var filters availability.ListFilters
	if err := c.ShouldBindQuery(&filters); err != nil {
		response.ValidationError(c, "invalid query parameters", err)
		return
	}

	slots, err := h.slots.ListByDoctor(c.Request.Context(), c.Param("id"), &filters)
	if err != nil {
		response.FromError(c, "failed to list availability", err)
		return
	}

	response.Success(c, http.StatusOK, "availability retrieved", gin.H{
		"slots": slots,
		"count": len(slots),
	})
}

func (h *AvailabilityHandler) ListSubSlots(c *gin.Context) {
	slots, err := h.slots.ListSubSlots(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.FromError(c, "failed to list sub-slots", err)
		return
	}

	response.Success(c, http.StatusOK, "sub-slots retrieved", gin.H{
		"slots": slots,
		"count": len(slots),
	})
}

// GetRanges returns the booked pieces and the free gaps of a window
func (h *AvailabilityHandler) GetRanges(c *gin.Context) {
	ranges, err := h.slots.AvailableRanges(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.FromError(c, "failed to compute available ranges", err)
		return
	}

	response.Success(c, http.StatusOK, "available ranges retrieved", ranges)
}

// CreateTemplate registers a recurring window for the calling doctor. The
// availability worker turns it into slots ahead of time.
func (h *AvailabilityHandler) CreateTemplate(c *gin.Context) {
	var req availability.CreateTemplateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.ValidationError(c, "invalid request", err)
		return
	}

	t, err := h.slots.CreateTemplate(c.Request.Context(), middleware.GetEntityID(c), &req)
	if err != nil {
		response.FromError(c, "failed to create template", err)
		return
	}

	response.Success(c, http.StatusCreated, "template created", t)
}

func (h *AvailabilityHandler) ListTemplates(c *gin.Context) {
	templates, err := h.slots.ListTemplates(c.Request.Context(), middleware.GetEntityID(c))
	if err != nil {
		response.FromError(c, "failed to list templates", err)
		return
	}

	response.Success(c, http.StatusOK, "templates retrieved", gin.H{
		"templates": templates,
		"count":     len(templates),
	})
}
