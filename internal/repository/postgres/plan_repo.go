// internal/repository/postgres/plan_repo.go
package postgres

import (
	"context"
	"fmt"
	"strings"

	"medlink-service/internal/domain/plan"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

const (
	planColumns    = `id, name, tier, user_role, COALESCE(description, ''), is_active, default_billing_cycle, created_at, updated_at`
	pricingColumns = `id, plan_id, billing_cycle, billing_period_months, price, currency, setup_fee, discount_percentage, is_active, valid_from, valid_until`
)

type PlanRepository struct {
	db *pgxpool.Pool
}

func NewPlanRepository(db *pgxpool.Pool) *PlanRepository {
	return &PlanRepository{db: db}
}

func scanPlan(row pgx.Row) (*plan.Plan, error) {
	var p plan.Plan
	err := row.Scan(
		&p.ID, &p.Name, &p.Tier, &p.UserRole, &p.Description,
		&p.IsActive, &p.DefaultBillingCycle, &p.CreatedAt, &p.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &p, nil
}

func scanPricing(row pgx.Row) (*plan.Pricing, error) {
	var p plan.Pricing
	err := row.Scan(
		&p.ID, &p.PlanID, &p.BillingCycle, &p.BillingPeriodMonths, &p.Price,
		&p.Currency, &p.SetupFee, &p.DiscountPercentage, &p.IsActive, &p.ValidFrom, &p.ValidUntil,
	)
	if err != nil {
		return nil, err
	}
	return &p, nil
}

func (r *PlanRepository) FindPlan(ctx context.Context, id string) (*plan.Plan, error) {
	query := `SELECT ` + planColumns + ` FROM subscription_plans WHERE id = $1`

	p, err := scanPlan(r.db.QueryRow(ctx, query, id))
	if err != nil {
		return nil, mapError(err, "plan")
	}
	return p, nil
}

func (r *PlanRepository) ListPlans(ctx context.Context, filters *plan.ListFilters) ([]plan.Plan, error) {
	conditions := []string{"1=1"}
	args := []interface{}{}
	argPos := 1

	if filters != nil && filters.Role != "" {
		conditions = append(conditions, fmt.Sprintf("user_role = $%d", argPos))
		args = append(args, filters.Role)
		argPos++
	}
	if filters != nil && filters.ActiveOnly {
		conditions = append(conditions, "is_active = TRUE")
	}

	query := fmt.Sprintf(`SELECT %s FROM subscription_plans WHERE %s ORDER BY user_role, %s, name`,
		planColumns, strings.Join(conditions, " AND "), tierRankSQL("tier"))

	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list plans: %w", err)
	}
	defer rows.Close()

	plans := []plan.Plan{}
	for rows.Next() {
		p, err := scanPlan(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan plan: %w", err)
		}
		plans = append(plans, *p)
	}
	return plans, rows.Err()
}

func (r *PlanRepository) FindPricing(ctx context.Context, id string) (*plan.Pricing, error) {
	query := `SELECT ` + pricingColumns + ` FROM plan_pricing WHERE id = $1`

	p, err := scanPricing(r.db.QueryRow(ctx, query, id))
	if err != nil {
		return nil, mapError(err, "pricing")
	}
	return p, nil
}

func (r *PlanRepository) ListPricing(ctx context.Context, planID string) ([]plan.Pricing, error) {
	query := `SELECT ` + pricingColumns + `
		FROM plan_pricing
		WHERE plan_id = $1
		ORDER BY billing_period_months, price`

	rows, err := r.db.Query(ctx, query, planID)
	if err != nil {
		return nil, fmt.Errorf("failed to list pricing: %w", err)
	}
	defer rows.Close()

	pricing := []plan.Pricing{}
	for rows.Next() {
		p, err := scanPricing(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan pricing: %w", err)
		}
		pricing = append(pricing, *p)
	}
	return pricing, rows.Err()
}

// FindFeatures reads the role's feature table for planID.
func (r *PlanRepository) FindFeatures(ctx context.Context, planID string, role plan.Role) (*plan.Features, error) {
	f := plan.Features{PlanID: planID, Role: role}

	var err error
	if role == plan.RoleDoctor {
		err = r.db.QueryRow(ctx, `
			SELECT max_assignments_per_month, max_affiliations, visibility_weight, COALESCE(notes, '')
			FROM doctor_plan_features
			WHERE plan_id = $1
		`, planID).Scan(&f.MaxAssignmentsPerMonth, &f.MaxAffiliations, &f.VisibilityWeight, &f.Notes)
	} else {
		err = r.db.QueryRow(ctx, `
			SELECT max_assignments_per_month, max_patients_per_month, includes_premium_doctors, COALESCE(notes, '')
			FROM hospital_plan_features
			WHERE plan_id = $1
		`, planID).Scan(&f.MaxAssignmentsPerMonth, &f.MaxPatientsPerMonth, &f.IncludesPremiumDoctors, &f.Notes)
	}
	if err != nil {
		return nil, mapError(err, "plan features")
	}
	return &f, nil
}
