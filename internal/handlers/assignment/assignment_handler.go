// internal/handlers/assignment/assignment_handler.go
package assignment

import (
	"context"
	"net/http"

	"medlink-service/internal/domain/assignment"
	"medlink-service/internal/middleware"
	"medlink-service/internal/pkg/response"

	"github.com/gin-gonic/gin"
)

type AssignmentService interface {
	Create(ctx context.Context, hospitalID string, req *assignment.CreateAssignmentRequest) (*assignment.Assignment, error)
	Accept(ctx context.Context, doctorID, id string) (*assignment.Assignment, error)
	Decline(ctx context.Context, doctorID, id string) (*assignment.Assignment, error)
	Cancel(ctx context.Context, actor assignment.Actor, id, reason string) (*assignment.Assignment, error)
	Complete(ctx context.Context, doctorID, id, treatmentNotes string) (*assignment.Assignment, error)
	ListForHospital(ctx context.Context, hospitalID string, filters *assignment.ListFilters) (*assignment.ListResponse, error)
	ListForDoctor(ctx context.Context, doctorID string, filters *assignment.ListFilters) (*assignment.ListResponse, error)
}

type AssignmentHandler struct {
	assignments AssignmentService
}

func NewAssignmentHandler(assignments AssignmentService) *AssignmentHandler {
	return &AssignmentHandler{assignments: assignments}
}

// ========== Hospital Endpoints ==========

// CreateAssignment books a doctor for the calling hospital. Both sides'
// quotas are reserved before the slot is touched.
func (h *AssignmentHandler) CreateAssignment(c *gin.Context) {
	var req assignment.CreateAssignmentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.ValidationError(c, "invalid request", err)
		return
	}

	a, err := h.assignments.Create(c.Request.Context(), middleware.GetEntityID(c), &req)
	if err != nil {
		response.FromError(c, "failed to create assignment", err)
		return
	}

	response.Success(c, http.StatusCreated, "assignment created", a)
}

func (h *AssignmentHandler) ListHospitalAssignments(c *gin.Context) {
	var filters assignment.ListFilters
	if err := c.ShouldBindQuery(&filters); err != nil {
		response.ValidationError(c, "invalid query parameters", err)
		return
	}

	result, err := h.assignments.ListForHospital(c.Request.Context(), middleware.GetEntityID(c), &filters)
	if err != nil {
		response.FromError(c, "failed to list assignments", err)
		return
	}

	response.Success(c, http.StatusOK, "assignments retrieved", result)
}

func (h *AssignmentHandler) CancelHospitalAssignment(c *gin.Context) {
	h.cancel(c, assignment.PartyHospital)
}

// ========== Doctor Endpoints ==========

func (h *AssignmentHandler) ListDoctorAssignments(c *gin.Context) {
	var filters assignment.ListFilters
	if err := c.ShouldBindQuery(&filters); err != nil {
		response.ValidationError(c, "invalid query parameters", err)
		return
	}

	result, err := h.assignments.ListForDoctor(c.Request.Context(), middleware.GetEntityID(c), &filters)
	if err != nil {
		response.FromError(c, "failed to list assignments", err)
		return
	}

	response.Success(c, http.StatusOK, "assignments retrieved", result)
}

func (h *AssignmentHandler) AcceptAssignment(c *gin.Context) {
	a, err := h.assignments.Accept(c.Request.Context(), middleware.GetEntityID(c), c.Param("id"))
	if err != nil {
		response.FromError(c, "failed to accept assignment", err)
		return
	}

	response.Success(c, http.StatusOK, "assignment accepted", a)
}

// DeclineAssignment rejects a pending assignment and frees its slot
func (h *AssignmentHandler) DeclineAssignment(c *gin.Context) {
	a, err := h.assignments.Decline(c.Request.Context(), middleware.GetEntityID(c), c.Param("id"))
	if err != nil {
		response.FromError(c, "failed to decline assignment", err)
		return
	}

	response.Success(c, http.StatusOK, "assignment declined", a)
}

func (h *AssignmentHandler) CancelDoctorAssignment(c *gin.Context) {
	h.cancel(c, assignment.PartyDoctor)
}

// CompleteAssignment closes an accepted assignment with optional treatment notes.
func (h *AssignmentHandler) CompleteAssignment(c *gin.Context) {
	var req assignment.CompleteAssignmentRequest
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			response.ValidationError(c, "invalid request", err)
			return
		}
	}

	a, err := h.assignments.Complete(c.Request.Context(), middleware.GetEntityID(c), c.Param("id"), req.TreatmentNotes)
	if err != nil {
		response.FromError(c, "failed to complete assignment", err)
		return
	}

	response.Success(c, http.StatusOK, "assignment completed", a)
}

func (h *AssignmentHandler) cancel(c *gin.Context, party assignment.Party) {
	var req assignment.CancelAssignmentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.ValidationError(c, "a cancellation reason is required", err)
		return
	}

	actor := assignment.Actor{Party: party, ID: middleware.GetEntityID(c)}
	a, err := h.assignments.Cancel(c.Request.Context(), actor, c.Param("id"), req.Reason)
	if err != nil {
		response.FromError(c, "failed to cancel assignment", err)
		return
	}

	response.Success(c, http.StatusOK, "assignment cancelled", a)
}
