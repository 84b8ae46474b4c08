// internal/handlers/patient/patient_handler.go
package patient

import (
	"context"
	"net/http"
	"strconv"

	"medlink-service/internal/domain/patient"
	"medlink-service/internal/middleware"
	"medlink-service/internal/pkg/response"

	"github.com/gin-gonic/gin"
)

type PatientService interface {
	Create(ctx context.Context, hospitalID string, req *patient.CreatePatientRequest) (*patient.Patient, error)
	Get(ctx context.Context, hospitalID, id string) (*patient.Patient, error)
	List(ctx context.Context, hospitalID string, page, pageSize int) (*patient.ListResponse, error)
}

type PatientHandler struct {
	patients PatientService
}

func NewPatientHandler(patients PatientService) *PatientHandler {
	return &PatientHandler{patients: patients}
}

// CreatePatient registers a patient against the hospital's monthly quota
func (h *PatientHandler) CreatePatient(c *gin.Context) {
	var req patient.CreatePatientRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.ValidationError(c, "invalid request", err)
		return
	}

	p, err := h.patients.Create(c.Request.Context(), middleware.GetEntityID(c), &req)
	if err != nil {
		response.FromError(c, "failed to create patient", err)
		return
	}

	response.Success(c, http.StatusCreated, "patient created", p)
}

func (h *PatientHandler) GetPatient(c *gin.Context) {
	p, err := h.patients.Get(c.Request.Context(), middleware.GetEntityID(c), c.Param("id"))
	if err != nil {
		response.FromError(c, "patient not found", err)
		return
	}

	response.Success(c, http.StatusOK, "patient retrieved", p)
}

func (h *PatientHandler) ListPatients(c *gin.Context) {
	page, err := strconv.Atoi(c.DefaultQuery("page", "1"))
	if err != nil || page < 1 {
		page = 1
	}
	pageSize, err := strconv.Atoi(c.DefaultQuery("page_size", "20"))
	if err != nil || pageSize < 1 || pageSize > 100 {
		pageSize = 20
	}

	result, err := h.patients.List(c.Request.Context(), middleware.GetEntityID(c), page, pageSize)
	if err != nil {
		response.FromError(c, "failed to list patients", err)
		return
	}

	response.Success(c, http.StatusOK, "patients retrieved", result)
}
