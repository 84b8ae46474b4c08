// internal/repository/postgres/usage_repo.go
package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"medlink-service/internal/domain/plan"
	"medlink-service/internal/domain/usage"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

const usageColumns = `id, entity_id, entity_type, resource, month, count_used, limit_count, reset_date, created_at, updated_at`

type UsageRepository struct {
	db *pgxpool.Pool
}

func NewUsageRepository(db *pgxpool.Pool) *UsageRepository {
	return &UsageRepository{db: db}
}

func scanUsage(row pgx.Row) (*usage.Record, error) {
	var r usage.Record
	err := row.Scan(
		&r.ID, &r.EntityID, &r.EntityType, &r.Resource, &r.Month,
		&r.CountUsed, &r.LimitCount, &r.ResetDate, &r.CreatedAt, &r.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &r, nil
}

// Reserve is a single conditional upsert: the row is created with one unit
// or bumped only while it is under the limit. No returned row means the
// quota is spent.
func (r *UsageRepository) Reserve(ctx context.Context, key usage.Key, limit int, resetDate time.Time) (*usage.Record, bool, error) {
	query := `
		INSERT INTO usage_records (entity_id, entity_type, resource, month, count_used, limit_count, reset_date)
		VALUES ($1, $2, $3, $4, 1, $5, $6)
		ON CONFLICT (entity_id, entity_type, resource, month) DO UPDATE
		SET count_used = usage_records.count_used + 1,
			limit_count = EXCLUDED.limit_count,
			updated_at = NOW()
		WHERE EXCLUDED.limit_count = -1 OR usage_records.count_used < EXCLUDED.limit_count
		RETURNING ` + usageColumns

	rec, err := scanUsage(r.db.QueryRow(ctx, query,
		key.EntityID, key.EntityType, key.Resource, key.Month, limit, resetDate,
	))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("failed to reserve usage: %w", err)
	}
	return rec, true, nil
}

func (r *UsageRepository) Ensure(ctx context.Context, key usage.Key, limit int, resetDate time.Time) (*usage.Record, error) {
	query := `
		INSERT INTO usage_records (entity_id, entity_type, resource, month, count_used, limit_count, reset_date)
		VALUES ($1, $2, $3, $4, 0, $5, $6)
		ON CONFLICT (entity_id, entity_type, resource, month) DO UPDATE
		SET limit_count = EXCLUDED.limit_count,
			updated_at = CASE WHEN usage_records.limit_count = EXCLUDED.limit_count
				THEN usage_records.updated_at ELSE NOW() END
		RETURNING ` + usageColumns

	rec, err := scanUsage(r.db.QueryRow(ctx, query,
		key.EntityID, key.EntityType, key.Resource, key.Month, limit, resetDate,
	))
	if err != nil {
		return nil, fmt.Errorf("failed to ensure usage record: %w", err)
	}
	return rec, nil
}

func (r *UsageRepository) Increment(ctx context.Context, key usage.Key, limit int, resetDate time.Time) (*usage.Record, error) {
	query := `
		INSERT INTO usage_records (entity_id, entity_type, resource, month, count_used, limit_count, reset_date)
		VALUES ($1, $2, $3, $4, 1, $5, $6)
		ON CONFLICT (entity_id, entity_type, resource, month) DO UPDATE
		SET count_used = usage_records.count_used + 1,
			limit_count = EXCLUDED.limit_count,
			updated_at = NOW()
		RETURNING ` + usageColumns

	rec, err := scanUsage(r.db.QueryRow(ctx, query,
		key.EntityID, key.EntityType, key.Resource, key.Month, limit, resetDate,
	))
	if err != nil {
		return nil, fmt.Errorf("failed to increment usage: %w", err)
	}
	return rec, nil
}

func (r *UsageRepository) Release(ctx context.Context, key usage.Key) (*usage.Record, error) {
	query := `
		UPDATE usage_records
		SET count_used = GREATEST(count_used - 1, 0), updated_at = NOW()
		WHERE entity_id = $1 AND entity_type = $2 AND resource = $3 AND month = $4
		RETURNING ` + usageColumns

	rec, err := scanUsage(r.db.QueryRow(ctx, query, key.EntityID, key.EntityType, key.Resource, key.Month))
	if err != nil {
		return nil, mapError(err, "usage record")
	}
	return rec, nil
}

func (r *UsageRepository) ListForMonth(ctx context.Context, entityID string, et usage.EntityType, month string) ([]usage.Record, error) {
	query := `SELECT ` + usageColumns + `
		FROM usage_records
		WHERE entity_id = $1 AND entity_type = $2 AND month = $3
		ORDER BY resource`

	rows, err := r.db.Query(ctx, query, entityID, et, month)
	if err != nil {
		return nil, fmt.Errorf("failed to list usage: %w", err)
	}
	defer rows.Close()

	records := []usage.Record{}
	for rows.Next() {
		rec, err := scanUsage(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan usage: %w", err)
		}
		records = append(records, *rec)
	}
	return records, rows.Err()
}

// EntitlementRepository resolves the plan a doctor or hospital profile
// currently consumes against.
type EntitlementRepository struct {
	db *pgxpool.Pool
}

func NewEntitlementRepository(db *pgxpool.Pool) *EntitlementRepository {
	return &EntitlementRepository{db: db}
}

// ActiveEntitlement picks the highest-tier active subscription of the
// profile's user and reads the plan's live feature row.
func (r *EntitlementRepository) ActiveEntitlement(ctx context.Context, entityID string, et usage.EntityType) (*usage.Entitlement, error) {
	profileTable := "hospitals"
	if et == usage.EntityDoctor {
		profileTable = "doctors"
	}

	query := fmt.Sprintf(`
		SELECT s.id, p.id, p.name, p.tier,
			df.max_assignments_per_month, df.max_affiliations, df.visibility_weight,
			hf.max_patients_per_month, hf.max_assignments_per_month, hf.includes_premium_doctors
		FROM %s e
		JOIN user_subscriptions s ON s.user_id = e.user_id
		JOIN subscription_plans p ON p.id = s.plan_id
		LEFT JOIN doctor_plan_features df ON df.plan_id = p.id
		LEFT JOIN hospital_plan_features hf ON hf.plan_id = p.id
		WHERE e.id = $1
			AND s.status = 'active'
			AND s.end_date > NOW()
			AND p.user_role = $2
		ORDER BY %s DESC, s.created_at DESC
		LIMIT 1
	`, profileTable, tierRankSQL("p.tier"))

	var (
		ent                      usage.Entitlement
		docAssignments           *int
		affiliations, visibility *int
		hospPatients             *int
		hospAssignments          *int
		premiumDoctors           *bool
	)
	err := r.db.QueryRow(ctx, query, entityID, et.Role()).Scan(
		&ent.SubscriptionID, &ent.PlanID, &ent.PlanName, &ent.Tier,
		&docAssignments, &affiliations, &visibility,
		&hospPatients, &hospAssignments, &premiumDoctors,
	)
	if err != nil {
		return nil, mapError(err, "active subscription")
	}

	switch {
	case et == usage.EntityDoctor && docAssignments != nil:
		ent.Features = &plan.Features{
			PlanID:                 ent.PlanID,
			Role:                   plan.RoleDoctor,
			MaxAssignmentsPerMonth: *docAssignments,
			MaxAffiliations:        affiliations,
			VisibilityWeight:       visibility,
		}
	case et == usage.EntityHospital && hospAssignments != nil:
		ent.Features = &plan.Features{
			PlanID:                 ent.PlanID,
			Role:                   plan.RoleHospital,
			MaxAssignmentsPerMonth: *hospAssignments,
			MaxPatientsPerMonth:    hospPatients,
			IncludesPremiumDoctors: premiumDoctors,
		}
	}
	return &ent, nil
}

// tierRankSQL orders tiers in SQL the same way plan.Tier.Rank does.
func tierRankSQL(col string) string {
	return fmt.Sprintf(`CASE %s
			WHEN '%s' THEN %d WHEN '%s' THEN %d WHEN '%s' THEN %d WHEN '%s' THEN %d
			ELSE -1 END`,
		col,
		plan.TierFree, plan.TierFree.Rank(),
		plan.TierBasic, plan.TierBasic.Rank(),
		plan.TierPremium, plan.TierPremium.Rank(),
		plan.TierEnterprise, plan.TierEnterprise.Rank(),
	)
}
