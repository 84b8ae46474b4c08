package payment

import (
	"bytes"
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"medlink-service/internal/domain/payment"
	"medlink-service/internal/domain/plan"
	xerrors "medlink-service/internal/pkg/errors"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type fakePayments struct {
	role       plan.Role
	userID     string
	payload    []byte
	signature  string
	webhookErr error
	webhookRes *payment.VerifyResult
	batch      int
}

func (f *fakePayments) CreateOrder(_ context.Context, userID string, role plan.Role, req *payment.CreateOrderRequest) (*payment.Order, error) {
	f.userID, f.role = userID, role
	return &payment.Order{ID: "order-1", UserID: userID, PlanID: req.PlanID}, nil
}

func (f *fakePayments) Verify(_ context.Context, userID string, req *payment.VerifyPaymentRequest) (*payment.VerifyResult, error) {
	if req.Signature != "good" {
		return nil, xerrors.ErrInvalidSignature
	}
	return &payment.VerifyResult{Order: &payment.Order{ID: "order-1"}, SubscriptionPending: true}, nil
}

func (f *fakePayments) HandleStripeWebhook(_ context.Context, payload []byte, sig string) (*payment.VerifyResult, error) {
	f.payload, f.signature = payload, sig
	return f.webhookRes, f.webhookErr
}

func (f *fakePayments) ProcessDue(_ context.Context, batch int) (*payment.BatchResult, error) {
	f.batch = batch
	return &payment.BatchResult{Claimed: 1, Completed: 1}, nil
}

func newRouter(svc *fakePayments, role string) *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	h := NewPaymentHandler(svc, zap.NewNop())

	r.POST("/payments/stripe/webhook", h.StripeWebhook)
	authed := r.Group("", func(c *gin.Context) {
		c.Set("user_id", "user-1")
		c.Set("role", role)
	})
	authed.POST("/payments/orders", h.CreateOrder)
	authed.POST("/payments/verify", h.VerifyPayment)
	authed.POST("/admin/jobs/subscriptions/run", h.RunSubscriptionJobs)
	return r
}

func postJSON(r *gin.Engine, path, body string) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	r.ServeHTTP(w, req)
	return w
}

func TestCreateOrderTakesRoleFromToken(t *testing.T) {
	svc := &fakePayments{}
	r := newRouter(svc, "hospital")

	w := postJSON(r, "/payments/orders", `{"plan_id":"6f1c2a52-8a57-4a43-9d3e-0b8f0d7c9a11"}`)

	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	assert.Equal(t, plan.RoleHospital, svc.role)
	assert.Equal(t, "user-1", svc.userID)
}

func TestCreateOrderRejectsAdmins(t *testing.T) {
	svc := &fakePayments{}
	r := newRouter(svc, "admin")

	w := postJSON(r, "/payments/orders", `{"plan_id":"6f1c2a52-8a57-4a43-9d3e-0b8f0d7c9a11"}`)

	assert.Equal(t, http.StatusForbidden, w.Code)
	assert.Empty(t, svc.userID)
}

func TestVerifyPayment(t *testing.T) {
	r := newRouter(&fakePayments{}, "doctor")

	bad := postJSON(r, "/payments/verify", `{"gateway_order_id":"o","gateway_payment_id":"p","signature":"forged"}`)
	assert.Equal(t, http.StatusBadRequest, bad.Code)

	ok := postJSON(r, "/payments/verify", `{"gateway_order_id":"o","gateway_payment_id":"p","signature":"good"}`)
	require.Equal(t, http.StatusOK, ok.Code)
	assert.Contains(t, ok.Body.String(), "activation pending")
}

func TestStripeWebhookPassesRawBody(t *testing.T) {
	svc := &fakePayments{webhookRes: &payment.VerifyResult{Order: &payment.Order{ID: "order-1"}}}
	r := newRouter(svc, "")

	payload := []byte(`{"id":"evt_1","type":"checkout.session.completed"}`)
	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/payments/stripe/webhook", bytes.NewReader(payload))
	req.Header.Set("Stripe-Signature", "t=1,v1=abc")
	r.ServeHTTP(w, req)

	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, payload, svc.payload)
	assert.Equal(t, "t=1,v1=abc", svc.signature)
	assert.Contains(t, w.Body.String(), "order-1")
}

func TestStripeWebhookStatuses(t *testing.T) {
	cases := []struct {
		name string
		err  error
		want int
	}{
		{"bad signature", xerrors.ErrInvalidSignature, http.StatusBadRequest},
		{"failed payment acknowledged", xerrors.ErrPaymentNotSuccessful, http.StatusOK},
		{"ignored event", nil, http.StatusOK},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			r := newRouter(&fakePayments{webhookErr: tc.err}, "")
			w := httptest.NewRecorder()
			r.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/payments/stripe/webhook", strings.NewReader("{}")))
			assert.Equal(t, tc.want, w.Code)
		})
	}
}

func TestRunSubscriptionJobsClampsBatch(t *testing.T) {
	svc := &fakePayments{}
	r := newRouter(svc, "admin")

	w := postJSON(r, "/admin/jobs/subscriptions/run?batch=100000", "")

	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, 50, svc.batch)
}
