package payment

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"strings"

	"medlink-service/internal/domain/payment"
	xerrors "medlink-service/internal/pkg/errors"

	"github.com/shopspring/decimal"
	"github.com/stripe/stripe-go/v78"
	"github.com/stripe/stripe-go/v78/webhook"
)

const (
	GatewayRazorpay = "razorpay"
	GatewayStripe   = "stripe"
)

// SignatureVerifier checks checkout signatures of the form
// hex(HMAC-SHA256("<order_id>|<payment_id>", key_secret)).
type SignatureVerifier struct {
	secret []byte
}

func NewSignatureVerifier(secret string) *SignatureVerifier {
	return &SignatureVerifier{secret: []byte(secret)}
}

// Sign returns the expected signature for an order and payment pair.
func (v *SignatureVerifier) Sign(orderID, paymentID string) string {
	mac := hmac.New(sha256.New, v.secret)
	mac.Write([]byte(orderID + "|" + paymentID))
	return hex.EncodeToString(mac.Sum(nil))
}

func (v *SignatureVerifier) Verify(orderID, paymentID, signature string) error {
	if len(v.secret) == 0 {
		return xerrors.Wrap(xerrors.ErrInternal, "payment verification is not configured")
	}
	expected := v.Sign(orderID, paymentID)
	if !hmac.Equal([]byte(expected), []byte(strings.ToLower(signature))) {
		return xerrors.ErrInvalidSignature
	}
	return nil
}

// StripeWebhook turns signed Stripe events into payment outcomes.
type StripeWebhook struct {
	secret string
}

func NewStripeWebhook(secret string) *StripeWebhook {
	return &StripeWebhook{secret: secret}
}

// Parse verifies the Stripe-Signature header and extracts the outcome of
// a completed checkout. Other event types return nil.
func (w *StripeWebhook) Parse(payload []byte, signatureHeader string) (*payment.Outcome, error) {
	if w.secret == "" {
		return nil, xerrors.Wrap(xerrors.ErrInternal, "stripe webhook is not configured")
	}

	event, err := webhook.ConstructEventWithOptions(
		payload,
		signatureHeader,
		w.secret,
		webhook.ConstructEventOptions{
			IgnoreAPIVersionMismatch: true,
		},
	)
	if err != nil {
		return nil, fmt.Errorf("stripe signature verification failed: %v: %w", err, xerrors.ErrInvalidSignature)
	}

	if event.Type != "checkout.session.completed" {
		return nil, nil
	}

	var sess stripe.CheckoutSession
	if err := json.Unmarshal(event.Data.Raw, &sess); err != nil {
		return nil, xerrors.Wrap(xerrors.ErrBadRequest, "invalid checkout session payload")
	}

	orderID := sess.Metadata["order_id"]
	if orderID == "" {
		return nil, xerrors.Wrap(xerrors.ErrBadRequest, "checkout session has no order_id metadata")
	}

	paymentID := sess.ID
	if sess.PaymentIntent != nil && sess.PaymentIntent.ID != "" {
		paymentID = sess.PaymentIntent.ID
	}

	status := payment.TransactionPending
	if sess.PaymentStatus == stripe.CheckoutSessionPaymentStatusPaid ||
		sess.PaymentStatus == stripe.CheckoutSessionPaymentStatusNoPaymentRequired {
		status = payment.TransactionSuccess
	}

	return &payment.Outcome{
		Gateway:          GatewayStripe,
		GatewayOrderID:   orderID,
		GatewayPaymentID: paymentID,
		Status:           status,
		Amount:           decimal.New(sess.AmountTotal, -2),
		Currency:         strings.ToUpper(string(sess.Currency)),
		Method:           "card",
	}, nil
}
