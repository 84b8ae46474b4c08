package patient

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"medlink-service/internal/domain/audit"
	"medlink-service/internal/domain/patient"
	"medlink-service/internal/domain/usage"
	xerrors "medlink-service/internal/pkg/errors"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

var ErrPatientNotFound = fmt.Errorf("patient not found: %w", xerrors.ErrNotFound)

type Ledger interface {
	Reserve(ctx context.Context, entityID string, et usage.EntityType, res usage.Resource) (*usage.Record, error)
	Release(ctx context.Context, key usage.Key) error
}

type Auditor interface {
	Record(ctx context.Context, e audit.Entry)
}

// Service registers patients against the hospital's monthly quota.
type Service struct {
	repo    patient.Repository
	ledger  Ledger
	auditor Auditor
	logger  *zap.Logger
	now     func() time.Time
}

func NewService(repo patient.Repository, ledger Ledger, auditor Auditor, logger *zap.Logger) *Service {
	return &Service{
		repo:    repo,
		ledger:  ledger,
		auditor: auditor,
		logger:  logger,
		now:     time.Now,
	}
}

// Create consumes one patients unit and inserts the patient. The unit is
// given back when the insert fails.
func (s *Service) Create(ctx context.Context, hospitalID string, req *patient.CreatePatientRequest) (*patient.Patient, error) {
	name := strings.TrimSpace(req.FullName)
	if name == "" {
		return nil, xerrors.Wrap(xerrors.ErrInvalidInput, "full_name is required")
	}

	var dob *time.Time
	if req.DateOfBirth != "" {
		t, err := time.Parse("2006-01-02", req.DateOfBirth)
		if err != nil {
			return nil, xerrors.Wrap(xerrors.ErrInvalidInput, "date_of_birth must be YYYY-MM-DD")
		}
		if t.After(s.now()) {
			return nil, xerrors.Wrap(xerrors.ErrInvalidInput, "date_of_birth is in the future")
		}
		dob = &t
	}

	unit, err := s.ledger.Reserve(ctx, hospitalID, usage.EntityHospital, usage.ResourcePatients)
	if err != nil {
		return nil, err
	}

	now := s.now()
	p := &patient.Patient{
		ID:          uuid.NewString(),
		HospitalID:  hospitalID,
		FullName:    name,
		DateOfBirth: dob,
		Gender:      req.Gender,
		Phone:       req.Phone,
		Notes:       req.Notes,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if err := s.repo.Create(ctx, p); err != nil {
		if relErr := s.ledger.Release(context.WithoutCancel(ctx), unit.Key()); relErr != nil {
			s.logger.Error("failed to release patients unit",
				zap.String("hospital_id", hospitalID),
				zap.Error(relErr),
			)
		}
		return nil, fmt.Errorf("failed to create patient: %w", err)
	}

	s.logger.Info("patient created",
		zap.String("patient_id", p.ID),
		zap.String("hospital_id", hospitalID),
		zap.Int("month_used", unit.CountUsed),
	)
	if s.auditor != nil {
		s.auditor.Record(ctx, audit.Entry{
			Action:     audit.ActionPatientCreated,
			EntityType: "patient",
			EntityID:   p.ID,
			ActorID:    &hospitalID,
		})
	}
	return p, nil
}

// Get returns a patient owned by hospitalID.
func (s *Service) Get(ctx context.Context, hospitalID, id string) (*patient.Patient, error) {
	p, err := s.repo.FindByID(ctx, id)
	if errors.Is(err, xerrors.ErrNotFound) {
		return nil, ErrPatientNotFound
	}
	if err != nil {
		return nil, err
	}
	if p.HospitalID != hospitalID {
		return nil, ErrPatientNotFound
	}
	return p, nil
}

func (s *Service) List(ctx context.Context, hospitalID string, page, pageSize int) (*patient.ListResponse, error) {
	if page < 1 {
		page = 1
	}
	if pageSize < 1 || pageSize > 100 {
		pageSize = 20
	}

	items, total, err := s.repo.ListByHospital(ctx, hospitalID, pageSize, (page-1)*pageSize)
	if err != nil {
		return nil, fmt.Errorf("failed to list patients: %w", err)
	}
	if items == nil {
		items = []patient.Patient{}
	}

	totalPages := int(total) / pageSize
	if int(total)%pageSize != 0 {
		totalPages++
	}
	return &patient.ListResponse{
		Patients:   items,
		Total:      total,
		Page:       page,
		PageSize:   pageSize,
		TotalPages: totalPages,
	}, nil
}
