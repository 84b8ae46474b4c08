// internal/service/payment/service.go
package payment

import (
	"context"
	"errors"
	"fmt"
	"time"

	"medlink-service/internal/domain/audit"
	"medlink-service/internal/domain/notification"
	"medlink-service/internal/domain/payment"
	"medlink-service/internal/domain/plan"
	"medlink-service/internal/domain/subscription"
	"medlink-service/internal/metrics"
	xerrors "medlink-service/internal/pkg/errors"

	"github.com/google/uuid"
	"github.com/oklog/ulid/v2"
	"go.uber.org/zap"
)

var ErrOrderNotFound = fmt.Errorf("order not found: %w", xerrors.ErrNotFound)

// Activator turns a paid order into a subscription. It must be idempotent
// on the order id.
type Activator interface {
	ActivateFromPayment(ctx context.Context, req *subscription.ActivateRequest) (*subscription.ActivationResult, error)
}

type PlanResolver interface {
	Resolve(ctx context.Context, planID string, pricingID *string) (*plan.Selection, error)
}

// Locker guards a payment id against concurrent verification.
type Locker interface {
	Acquire(ctx context.Context, key string, ttl time.Duration) (bool, error)
	Release(ctx context.Context, key string) error
}

type Notifier interface {
	Notify(ctx context.Context, msg notification.Message)
}

type Auditor interface {
	Record(ctx context.Context, e audit.Entry)
}

type Config struct {
	KeySecret           string
	StripeWebhookSecret string
	LockTTL             time.Duration
	Lease               time.Duration // how long a claimed job is hidden from other workers
	MaxAttempts         int
	BaseBackoff         time.Duration
	MaxBackoff          time.Duration
}

func (c *Config) withDefaults() {
	if c.LockTTL <= 0 {
		c.LockTTL = 30 * time.Second
	}
	if c.Lease <= 0 {
		c.Lease = time.Minute
	}
	if c.MaxAttempts <= 0 {
		c.MaxAttempts = 8
	}
	if c.BaseBackoff <= 0 {
		c.BaseBackoff = 30 * time.Second
	}
	if c.MaxBackoff <= 0 {
		c.MaxBackoff = time.Hour
	}
}

// Service records payments and owes subscriptions through a durable
// outbox so a paid order is never left without one.
type Service struct {
	repo      payment.Repository
	plans     PlanResolver
	activator Activator
	verifier  *SignatureVerifier
	stripe    *StripeWebhook
	locker    Locker
	notifier  Notifier
	auditor   Auditor
	cfg       Config
	logger    *zap.Logger
	now       func() time.Time
}

func NewService(
	repo payment.Repository,
	plans PlanResolver,
	activator Activator,
	locker Locker,
	notifier Notifier,
	auditor Auditor,
	cfg Config,
	logger *zap.Logger,
) *Service {
	cfg.withDefaults()
	return &Service{
		repo:      repo,
		plans:     plans,
		activator: activator,
		verifier:  NewSignatureVerifier(cfg.KeySecret),
		stripe:    NewStripeWebhook(cfg.StripeWebhookSecret),
		locker:    locker,
		notifier:  notifier,
		auditor:   auditor,
		cfg:       cfg,
		logger:    logger,
		now:       time.Now,
	}
}

// CreateOrder prices a plan purchase and stores the order.
func (s *Service) CreateOrder(ctx context.Context, userID string, role plan.Role, req *payment.CreateOrderRequest) (*payment.Order, error) {
	sel, err := s.plans.Resolve(ctx, req.PlanID, req.PricingID)
	if err != nil {
		return nil, err
	}
	if role != "" && sel.Plan.UserRole != role {
		return nil, xerrors.Wrap(xerrors.ErrInvalidInput, "plan is for a different account type")
	}

	receipt := "order_" + ulid.Make().String()
	order := &payment.Order{
		ID:             uuid.NewString(),
		UserID:         userID,
		OrderType:      payment.OrderTypeSubscription,
		PlanID:         sel.Plan.ID,
		Amount:         sel.Pricing.Total(),
		Currency:       sel.Pricing.Currency,
		Status:         payment.OrderCreated,
		Receipt:        receipt,
		GatewayOrderID: receipt,
	}
	if sel.Pricing.ID != "" {
		id := sel.Pricing.ID
		order.PricingID = &id
	}

	if err := s.repo.CreateOrder(ctx, order); err != nil {
		return nil, fmt.Errorf("failed to create order: %w", err)
	}

	s.logger.Info("order created",
		zap.String("order_id", order.ID),
		zap.String("user_id", userID),
		zap.String("plan_id", order.PlanID),
		zap.String("amount", order.Amount.StringFixed(2)),
		zap.String("currency", order.Currency),
	)
	return order, nil
}

// Verify checks the gateway signature and records the payment. Nothing is
// written when the signature does not match.
func (s *Service) Verify(ctx context.Context, userID string, req *payment.VerifyPaymentRequest) (*payment.VerifyResult, error) {
	if err := s.verifier.Verify(req.GatewayOrderID, req.GatewayPaymentID, req.Signature); err != nil {
		s.logger.Warn("payment signature rejected",
			zap.String("user_id", userID),
			zap.String("gateway_order_id", req.GatewayOrderID),
		)
		return nil, err
	}

	return s.settle(ctx, userID, &payment.Outcome{
		Gateway:          GatewayRazorpay,
		GatewayOrderID:   req.GatewayOrderID,
		GatewayPaymentID: req.GatewayPaymentID,
		Status:           payment.TransactionSuccess,
	})
}

// HandleStripeWebhook settles completed Stripe checkouts. It returns nil
// for events that carry no payment.
func (s *Service) HandleStripeWebhook(ctx context.Context, payload []byte, signatureHeader string) (*payment.VerifyResult, error) {
	outcome, err := s.stripe.Parse(payload, signatureHeader)
	if err != nil || outcome == nil {
		return nil, err
	}
	return s.settle(ctx, "", outcome)
}

func (s *Service) settle(ctx context.Context, userID string, outcome *payment.Outcome) (*payment.VerifyResult, error) {
	if outcome.Status != payment.TransactionSuccess {
		return nil, xerrors.ErrPaymentNotSuccessful
	}

	if s.locker != nil {
		key := "payment:" + outcome.GatewayPaymentID
		ok, err := s.locker.Acquire(ctx, key, s.cfg.LockTTL)
		switch {
		case err != nil:
			// the order row lock still serialises settlement
			s.logger.Warn("payment lock unavailable", zap.String("payment_id", outcome.GatewayPaymentID), zap.Error(err))
		case !ok:
			return nil, xerrors.Wrap(xerrors.ErrConflict, "payment is already being processed")
		default:
			defer func() {
				if err := s.locker.Release(context.WithoutCancel(ctx), key); err != nil {
					s.logger.Warn("failed to release payment lock", zap.String("payment_id", outcome.GatewayPaymentID), zap.Error(err))
				}
			}()
		}
	}

	result := &payment.VerifyResult{}
	var (
		job         *payment.SubscriptionJob
		alreadyPaid bool
	)

	err := s.repo.InTx(ctx, func(ctx context.Context, repo payment.Repository) error {
		order, err := repo.LockOrderByGatewayID(ctx, outcome.GatewayOrderID)
		if errors.Is(err, xerrors.ErrNotFound) {
			return ErrOrderNotFound
		}
		if err != nil {
			return fmt.Errorf("failed to lock order: %w", err)
		}
		if userID != "" && order.UserID != userID {
			return ErrOrderNotFound
		}
		result.Order = order

		// Replays return what the first verification recorded
		if order.Status == payment.OrderPaid {
			alreadyPaid = true
			if result.Transaction, err = repo.FindTransactionByOrder(ctx, order.ID); err != nil {
				return fmt.Errorf("failed to load transaction: %w", err)
			}
			if job, err = repo.FindJobByOrder(ctx, order.ID); err != nil {
				return fmt.Errorf("failed to load subscription job: %w", err)
			}
			return nil
		}
		if order.Status != payment.OrderCreated {
			return xerrors.Wrap(xerrors.ErrInvalidTransition, fmt.Sprintf("order is %s", order.Status))
		}

		if !outcome.Amount.IsZero() && !outcome.Amount.Equal(order.Amount) {
			s.logger.Warn("gateway amount differs from order",
				zap.String("order_id", order.ID),
				zap.String("order_amount", order.Amount.String()),
				zap.String("gateway_amount", outcome.Amount.String()),
			)
		}

		now := s.now()
		if err := repo.MarkOrderPaid(ctx, order.ID, now); err != nil {
			return fmt.Errorf("failed to mark order paid: %w", err)
		}
		order.Status = payment.OrderPaid
		order.PaidAt = &now

		txn := &payment.Transaction{
			ID:               uuid.NewString(),
			OrderID:          order.ID,
			UserID:           order.UserID,
			Gateway:          outcome.Gateway,
			GatewayPaymentID: outcome.GatewayPaymentID,
			Reference:        "txn_" + ulid.Make().String(),
			Amount:           order.Amount,
			Currency:         order.Currency,
			Status:           payment.TransactionSuccess,
			Method:           outcome.Method,
			CreatedAt:        now,
		}
		if err := repo.CreateTransaction(ctx, txn); err != nil {
			return fmt.Errorf("failed to record transaction: %w", err)
		}
		result.Transaction = txn

		// Hidden from the worker while the inline attempt runs
		lockedUntil := now.Add(s.cfg.Lease)
		job = &payment.SubscriptionJob{
			ID:                   ulid.Make().String(),
			OrderID:              order.ID,
			UserID:               order.UserID,
			PlanID:               order.PlanID,
			PricingID:            order.PricingID,
			PaymentTransactionID: txn.ID,
			Status:               payment.JobPending,
			NextAttemptAt:        now,
			LockedUntil:          &lockedUntil,
		}
		if err := repo.EnqueueJob(ctx, job); err != nil {
			return fmt.Errorf("failed to enqueue subscription job: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	if !alreadyPaid {
		s.logger.Info("payment verified",
			zap.String("order_id", result.Order.ID),
			zap.String("user_id", result.Order.UserID),
			zap.String("gateway", outcome.Gateway),
			zap.String("payment_id", outcome.GatewayPaymentID),
		)
		s.audit(ctx, audit.Entry{
			Action:     audit.ActionPaymentVerified,
			EntityType: "order",
			EntityID:   result.Order.ID,
			ActorID:    &result.Order.UserID,
			Changes: map[string]interface{}{
				"status":         payment.OrderPaid,
				"transaction_id": result.Transaction.ID,
				"gateway":        outcome.Gateway,
			},
		})
	}

	if job == nil {
		result.SubscriptionPending = true
		return result, nil
	}

	sub, err := s.process(ctx, job)
	if err != nil {
		s.logger.Warn("inline subscription activation failed, left for worker",
			zap.String("order_id", job.OrderID),
			zap.String("job_id", job.ID),
			zap.Error(err),
		)
		result.SubscriptionPending = true
		return result, nil
	}
	result.Subscription = sub
	return result, nil
}

// ProcessDue claims due outbox jobs and attempts each once.
func (s *Service) ProcessDue(ctx context.Context, batch int) (*payment.BatchResult, error) {
	jobs, err := s.repo.ClaimDueJobs(ctx, s.now(), s.cfg.Lease, batch)
	if err != nil {
		return nil, fmt.Errorf("failed to claim subscription jobs: %w", err)
	}

	result := &payment.BatchResult{Claimed: len(jobs)}
	for i := range jobs {
		if ctx.Err() != nil {
			break
		}
		job := &jobs[i]
		if _, err := s.process(ctx, job); err != nil {
			if job.Status == payment.JobFailed {
				result.Failed++
			} else {
				result.Retried++
			}
			continue
		}
		result.Completed++
	}

	if result.Claimed > 0 {
		s.logger.Info("subscription jobs processed",
			zap.Int("claimed", result.Claimed),
			zap.Int("completed", result.Completed),
			zap.Int("retried", result.Retried),
			zap.Int("failed", result.Failed),
		)
	}
	return result, nil
}

// process activates the subscription owed by job and records the outcome
// on the job row. job.Status reflects the stored state afterwards.
func (s *Service) process(ctx context.Context, job *payment.SubscriptionJob) (*subscription.Subscription, error) {
	res, err := s.activator.ActivateFromPayment(ctx, &subscription.ActivateRequest{
		UserID:               job.UserID,
		PlanID:               job.PlanID,
		PricingID:            job.PricingID,
		OrderID:              &job.OrderID,
		PaymentTransactionID: &job.PaymentTransactionID,
	})
	if err != nil {
		if job.Status == payment.JobPending {
			s.fail(ctx, job, err)
		}
		return nil, err
	}

	if job.Status != payment.JobDone {
		if err := s.repo.CompleteJob(ctx, job.ID, res.Subscription.ID); err != nil {
			// the activation is idempotent, a later claim completes the job
			s.logger.Error("failed to complete subscription job", zap.String("job_id", job.ID), zap.Error(err))
		} else {
			job.Status = payment.JobDone
			job.SubscriptionID = &res.Subscription.ID
			metrics.SubscriptionJobs.WithLabelValues("completed").Inc()
		}
	}

	if !res.Existing {
		sub := res.Subscription
		s.notify(ctx, notification.Message{
			UserID: sub.UserID,
			Title:  "Subscription active",
			Body:   fmt.Sprintf("Your %s plan is active until %s.", sub.PlanSnapshot.Name, sub.EndDate.Format("2006-01-02")),
			Type:   notification.TypeSubscription,
			Data: map[string]interface{}{
				"subscription_id": sub.ID,
				"plan_id":         sub.PlanID,
			},
		})
		s.audit(ctx, audit.Entry{
			Action:     audit.ActionSubscriptionActivated,
			EntityType: "subscription",
			EntityID:   sub.ID,
			ActorID:    &sub.UserID,
			Changes: map[string]interface{}{
				"order_id":   job.OrderID,
				"plan_id":    sub.PlanID,
				"superseded": res.Superseded,
			},
		})
	}
	return res.Subscription, nil
}

func (s *Service) fail(ctx context.Context, job *payment.SubscriptionJob, cause error) {
	attempts := job.Attempts + 1
	dead := attempts >= s.cfg.MaxAttempts || permanent(cause)
	next := s.now().Add(s.backoff(attempts))

	if err := s.repo.FailJob(ctx, job.ID, cause.Error(), next, dead); err != nil {
		s.logger.Error("failed to record subscription job failure", zap.String("job_id", job.ID), zap.Error(err))
		return
	}
	job.Attempts = attempts

	if !dead {
		metrics.SubscriptionJobs.WithLabelValues("retried").Inc()
		return
	}

	job.Status = payment.JobFailed
	metrics.SubscriptionJobs.WithLabelValues("failed").Inc()
	s.logger.Error("subscription job failed permanently",
		zap.String("job_id", job.ID),
		zap.String("order_id", job.OrderID),
		zap.String("user_id", job.UserID),
		zap.Int("attempts", attempts),
		zap.Error(cause),
	)
	s.audit(ctx, audit.Entry{
		Action:     audit.ActionSubscriptionJobFailed,
		EntityType: "order",
		EntityID:   job.OrderID,
		Metadata: map[string]interface{}{
			"job_id":   job.ID,
			"attempts": attempts,
			"error":    cause.Error(),
		},
	})
}

// backoff doubles from BaseBackoff per attempt up to MaxBackoff.
func (s *Service) backoff(attempts int) time.Duration {
	d := s.cfg.BaseBackoff
	for i := 1; i < attempts; i++ {
		d *= 2
		if d >= s.cfg.MaxBackoff {
			return s.cfg.MaxBackoff
		}
	}
	return d
}

// permanent reports errors that a retry cannot fix.
func permanent(err error) bool {
	return errors.Is(err, xerrors.ErrNotFound) || errors.Is(err, xerrors.ErrInvalidInput)
}

func (s *Service) notify(ctx context.Context, msg notification.Message) {
	if s.notifier != nil {
		s.notifier.Notify(ctx, msg)
	}
}

func (s *Service) audit(ctx context.Context, e audit.Entry) {
	if s.auditor != nil {
		s.auditor.Record(ctx, e)
	}
}
