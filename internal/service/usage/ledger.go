package usage

import (
	"context"
	"errors"
	"fmt"
	"time"

	"medlink-service/internal/domain/plan"
	"medlink-service/internal/domain/usage"
	"medlink-service/internal/metrics"
	xerrors "medlink-service/internal/pkg/errors"

	"go.uber.org/zap"
)

// SnapshotCache is the subset of the Redis cache the ledger uses.
type SnapshotCache interface {
	GetJSON(ctx context.Context, key string, dest interface{}) (bool, error)
	SetJSON(ctx context.Context, key string, v interface{}, ttl time.Duration) error
	Delete(ctx context.Context, keys ...string) error
}

// Ledger enforces monthly quotas per doctor and hospital.
type Ledger struct {
	repo         usage.Repository
	entitlements usage.EntitlementSource
	defaults     usage.Limits
	cache        SnapshotCache
	cacheTTL     time.Duration
	logger       *zap.Logger
	now          func() time.Time
}

type Option func(*Ledger)

// WithCache caches usage snapshots for ttl.
func WithCache(c SnapshotCache, ttl time.Duration) Option {
	return func(l *Ledger) {
		l.cache = c
		l.cacheTTL = ttl
	}
}

// WithDefaults overrides the no-plan limits.
func WithDefaults(d usage.Limits) Option {
	return func(l *Ledger) { l.defaults = d }
}

// WithClock sets the time source used to pick the month bucket.
func WithClock(now func() time.Time) Option {
	return func(l *Ledger) { l.now = now }
}

func NewLedger(repo usage.Repository, entitlements usage.EntitlementSource, logger *zap.Logger, opts ...Option) *Ledger {
	l := &Ledger{
		repo:         repo,
		entitlements: entitlements,
		defaults:     usage.DefaultLimits(),
		logger:       logger,
		now:          time.Now,
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// ResolveLimit returns the monthly cap for one resource, -1 meaning unlimited.
func (l *Ledger) ResolveLimit(ctx context.Context, entityID string, et usage.EntityType, res usage.Resource) (int, error) {
	if err := validate(et, res); err != nil {
		return 0, err
	}
	ent, err := l.entitlement(ctx, entityID, et)
	if err != nil {
		return 0, err
	}
	return l.limitFor(ent, et, res), nil
}

// CheckAndCreateIfMissing fails with LimitReachedError when the current
// month is spent. It creates the month record and refreshes its limit.
func (l *Ledger) CheckAndCreateIfMissing(ctx context.Context, entityID string, et usage.EntityType, res usage.Resource) error {
	key, limit, err := l.prepare(ctx, entityID, et, res)
	if err != nil {
		return err
	}

	rec, err := l.repo.Ensure(ctx, key, limit, usage.ResetDate(l.now()))
	if err != nil {
		return fmt.Errorf("failed to load usage record: %w", err)
	}
	// Ensure may have created the row or refreshed its limit
	l.invalidate(ctx, key)
	if rec.Exhausted() {
		return limitError(rec)
	}
	return nil
}

// Increment records one consumed unit without checking the limit.
func (l *Ledger) Increment(ctx context.Context, entityID string, et usage.EntityType, res usage.Resource) error {
	key, limit, err := l.prepare(ctx, entityID, et, res)
	if err != nil {
		return err
	}

	if _, err := l.repo.Increment(ctx, key, limit, usage.ResetDate(l.now())); err != nil {
		return fmt.Errorf("failed to increment usage: %w", err)
	}
	l.invalidate(ctx, key)
	return nil
}

// Reserve atomically checks the quota and consumes one unit. The returned
// record identifies the reservation for Release.
func (l *Ledger) Reserve(ctx context.Context, entityID string, et usage.EntityType, res usage.Resource) (*usage.Record, error) {
	key, limit, err := l.prepare(ctx, entityID, et, res)
	if err != nil {
		return nil, err
	}
	resetDate := usage.ResetDate(l.now())

	var (
		rec *usage.Record
		ok  bool
	)
	if limit == 0 {
		rec, err = l.repo.Ensure(ctx, key, limit, resetDate)
	} else {
		rec, ok, err = l.repo.Reserve(ctx, key, limit, resetDate)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to reserve usage: %w", err)
	}

	if !ok {
		// refresh the stored limit so the error reports the current cap
		if rec == nil || rec.LimitCount != limit {
			if rec, err = l.repo.Ensure(ctx, key, limit, resetDate); err != nil {
				return nil, fmt.Errorf("failed to load usage record: %w", err)
			}
		}
		metrics.QuotaReservations.WithLabelValues(string(et), string(res), "denied").Inc()
		l.logger.Info("usage limit reached",
			zap.String("entity_type", string(et)),
			zap.String("entity_id", entityID),
			zap.String("resource", string(res)),
			zap.Int("used", rec.CountUsed),
			zap.Int("limit", rec.LimitCount),
		)
		return nil, limitError(rec)
	}

	metrics.QuotaReservations.WithLabelValues(string(et), string(res), "granted").Inc()
	l.invalidate(ctx, key)
	return rec, nil
}

// Release returns one unit of a reservation whose action did not happen.
func (l *Ledger) Release(ctx context.Context, key usage.Key) error {
	if _, err := l.repo.Release(ctx, key); err != nil {
		return fmt.Errorf("failed to release usage %s: %w", key, err)
	}
	metrics.QuotaReleases.WithLabelValues(string(key.EntityType), string(key.Resource)).Inc()
	l.invalidate(ctx, key)
	return nil
}

// GetUsage summarises the current month for every tracked resource.
func (l *Ledger) GetUsage(ctx context.Context, entityID string, et usage.EntityType) (*usage.Snapshot, error) {
	if !et.Valid() {
		return nil, xerrors.Wrap(xerrors.ErrInvalidInput, "unknown entity type")
	}
	now := l.now()
	month := usage.MonthKey(now)
	cacheKey := snapshotKey(entityID, et, month)

	if l.cache != nil {
		var cached usage.Snapshot
		found, err := l.cache.GetJSON(ctx, cacheKey, &cached)
		if err != nil {
			l.logger.Warn("usage cache read failed", zap.String("key", cacheKey), zap.Error(err))
		} else if found {
			return &cached, nil
		}
	}

	ent, err := l.entitlement(ctx, entityID, et)
	if err != nil {
		return nil, err
	}

	records, err := l.repo.ListForMonth(ctx, entityID, et, month)
	if err != nil {
		return nil, fmt.Errorf("failed to load usage records: %w", err)
	}
	used := make(map[usage.Resource]int, len(records))
	for _, r := range records {
		used[r.Resource] = r.CountUsed
	}

	snap := &usage.Snapshot{
		EntityID:   entityID,
		EntityType: et,
		Month:      month,
		PlanName:   usage.DefaultPlanName,
		Tier:       plan.TierFree,
		ResetDate:  usage.ResetDate(now),
		Resources:  make(map[usage.Resource]usage.Metric),
	}
	if ent != nil {
		snap.PlanName = ent.PlanName
		snap.Tier = ent.Tier
	}
	for _, res := range et.Resources() {
		snap.Resources[res] = usage.NewMetric(used[res], l.limitFor(ent, et, res))
	}

	if l.cache != nil {
		if err := l.cache.SetJSON(ctx, cacheKey, snap, l.cacheTTL); err != nil {
			l.logger.Warn("usage cache write failed", zap.String("key", cacheKey), zap.Error(err))
		}
	}
	return snap, nil
}

func (l *Ledger) prepare(ctx context.Context, entityID string, et usage.EntityType, res usage.Resource) (usage.Key, int, error) {
	limit, err := l.ResolveLimit(ctx, entityID, et, res)
	if err != nil {
		return usage.Key{}, 0, err
	}
	return usage.KeyAt(entityID, et, res, l.now()), limit, nil
}

func (l *Ledger) entitlement(ctx context.Context, entityID string, et usage.EntityType) (*usage.Entitlement, error) {
	ent, err := l.entitlements.ActiveEntitlement(ctx, entityID, et)
	if errors.Is(err, xerrors.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to resolve entitlement: %w", err)
	}
	return ent, nil
}

// limitFor prefers the plan's feature row, then the tier table, then the
// no-plan default.
func (l *Ledger) limitFor(ent *usage.Entitlement, et usage.EntityType, res usage.Resource) int {
	if ent != nil {
		if v, ok := usage.FeatureLimit(ent.Features, res); ok {
			return v
		}
		if v, ok := usage.TierLimit(ent.Tier, et, res); ok {
			return v
		}
	}
	if v, ok := l.defaults.Get(et, res); ok {
		return v
	}
	return 0
}

func (l *Ledger) invalidate(ctx context.Context, key usage.Key) {
	if l.cache == nil {
		return
	}
	if err := l.cache.Delete(ctx, snapshotKey(key.EntityID, key.EntityType, key.Month)); err != nil {
		l.logger.Warn("usage cache invalidation failed", zap.String("key", key.String()), zap.Error(err))
	}
}

func validate(et usage.EntityType, res usage.Resource) error {
	if !et.Valid() {
		return xerrors.Wrap(xerrors.ErrInvalidInput, "unknown entity type")
	}
	if !et.Tracks(res) {
		return xerrors.Wrap(xerrors.ErrInvalidInput, fmt.Sprintf("%s is not metered for %s", res, et))
	}
	return nil
}

func limitError(rec *usage.Record) error {
	return &xerrors.LimitReachedError{
		EntityType: string(rec.EntityType),
		EntityID:   rec.EntityID,
		Resource:   string(rec.Resource),
		Used:       rec.CountUsed,
		Limit:      rec.LimitCount,
		ResetDate:  rec.ResetDate,
	}
}

func snapshotKey(entityID string, et usage.EntityType, month string) string {
	return fmt.Sprintf("usage:snapshot:%s:%s:%s", et, entityID, month)
}
