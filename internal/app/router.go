// internal/app/router.go
package app

import (
	assignmentHandler "medlink-service/internal/handlers/assignment"
	authHandler "medlink-service/internal/handlers/auth"
	availabilityHandler "medlink-service/internal/handlers/availability"
	notifyHandler "medlink-service/internal/handlers/notification"
	patientHandler "medlink-service/internal/handlers/patient"
	paymentHandler "medlink-service/internal/handlers/payment"
	planHandler "medlink-service/internal/handlers/plan"
	subscriptionHandler "medlink-service/internal/handlers/subscription"
	usageHandler "medlink-service/internal/handlers/usage"
	wsHandler "medlink-service/internal/handlers/websocket"
	"medlink-service/internal/middleware"
	"medlink-service/internal/pkg/jwt"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
)

type Handlers struct {
	AuthHandler         *authHandler.AuthHandler
	PlanHandler         *planHandler.PlanHandler
	UsageHandler        *usageHandler.UsageHandler
	AvailabilityHandler *availabilityHandler.AvailabilityHandler
	PatientHandler      *patientHandler.PatientHandler
	AssignmentHandler   *assignmentHandler.AssignmentHandler
	PaymentHandler      *paymentHandler.PaymentHandler
	SubscriptionHandler *subscriptionHandler.SubscriptionHandler
	NotifHandler        *notifyHandler.NotificationHandler
	WSHandler           *wsHandler.WebSocketHandler
	AuthMiddleware      *middleware.AuthMiddleware
	Health              gin.HandlerFunc

	// WriteLimit and PaymentLimit build per-caller rate limits for a bucket
	WriteLimit   func(bucket string) gin.HandlerFunc
	PaymentLimit func(bucket string) gin.HandlerFunc
}

func SetupRouter(r *gin.Engine, logger *zap.Logger, h *Handlers) {
	// ==================== Health & Metrics ====================
	r.GET("/health", h.Health)
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	// ==================== WebSocket ====================
	r.GET("/ws", h.WSHandler.HandleConnection)

	api := r.Group("/api/v1")
	api.GET("/health", h.Health)

	// ==================== Plans (public) ====================
	plans := api.Group("/plans")
	{
		plans.GET("", h.PlanHandler.ListPlans)
		plans.GET("/:id", h.PlanHandler.GetPlan)
	}

	// ==================== Payment Webhooks (signature verified) ====================
	api.POST("/payments/stripe/webhook", h.WriteLimit("stripe_webhook"), h.PaymentHandler.StripeWebhook)

	authed := api.Group("")
	authed.Use(h.AuthMiddleware.Auth())

	// ==================== Auth ====================
	authed.GET("/auth/me", h.AuthHandler.GetMe)
	authed.POST("/auth/logout", h.AuthHandler.Logout)

	// ==================== Usage ====================
	authed.GET("/usage/me", h.UsageHandler.GetMyUsage)
	authed.GET("/usage/:entityType/:id", h.AuthMiddleware.RequireRole(jwt.RoleAdmin), h.UsageHandler.GetEntityUsage)

	// ==================== Availability ====================
	availability := authed.Group("/availability")
	{
		availability.GET("/doctors/:id/slots", h.AvailabilityHandler.ListDoctorSlots)
		availability.GET("/slots/:id/sub-slots", h.AvailabilityHandler.ListSubSlots)
		availability.GET("/slots/:id/ranges", h.AvailabilityHandler.GetRanges)
	}

	// ==================== Doctor Routes ====================
	doctor := api.Group("")
	doctor.Use(h.AuthMiddleware.DoctorOnly()...)
	{
		doctor.POST("/availability/slots", h.WriteLimit("slots"), h.AvailabilityHandler.CreateSlot)
		doctor.POST("/availability/templates", h.WriteLimit("slots"), h.AvailabilityHandler.CreateTemplate)
		doctor.GET("/availability/templates", h.AvailabilityHandler.ListTemplates)
		doctor.GET("/doctors/me/assignments", h.AssignmentHandler.ListDoctorAssignments)
		doctor.POST("/doctors/me/assignments/:id/accept", h.AssignmentHandler.AcceptAssignment)
		doctor.POST("/doctors/me/assignments/:id/decline", h.AssignmentHandler.DeclineAssignment)
		doctor.POST("/doctors/me/assignments/:id/cancel", h.AssignmentHandler.CancelDoctorAssignment)
		doctor.POST("/doctors/me/assignments/:id/complete", h.AssignmentHandler.CompleteAssignment)
	}

	// ==================== Hospital Routes ====================
	hospital := api.Group("/hospitals/me")
	hospital.Use(h.AuthMiddleware.HospitalOnly()...)
	{
		hospital.POST("/patients", h.WriteLimit("patients"), h.PatientHandler.CreatePatient)
		hospital.GET("/patients", h.PatientHandler.ListPatients)
		hospital.GET("/patients/:id", h.PatientHandler.GetPatient)
		hospital.POST("/assignments", h.WriteLimit("assignments"), h.AssignmentHandler.CreateAssignment)
		hospital.GET("/assignments", h.AssignmentHandler.ListHospitalAssignments)
		hospital.POST("/assignments/:id/cancel", h.AssignmentHandler.CancelHospitalAssignment)
	}

	// ==================== Payments ====================
	payments := authed.Group("/payments")
	{
		payments.POST("/orders", h.PaymentLimit("payment_orders"), h.PaymentHandler.CreateOrder)
		payments.POST("/verify", h.PaymentLimit("payment_verify"), h.PaymentHandler.VerifyPayment)
	}

	// ==================== Subscriptions ====================
	subscriptions := authed.Group("/subscriptions")
	{
		subscriptions.GET("/me", h.SubscriptionHandler.GetMySubscription)
		subscriptions.GET("/me/history", h.SubscriptionHandler.GetMyHistory)
		subscriptions.POST("/me/plan-change", h.SubscriptionHandler.SchedulePlanChange)
		subscriptions.DELETE("/me/plan-change", h.SubscriptionHandler.CancelPlanChange)
		subscriptions.POST("/:id/cancel", h.SubscriptionHandler.CancelSubscription)
	}

	// ==================== Notifications ====================
	notifications := authed.Group("/notifications")
	{
		notifications.GET("", h.NotifHandler.GetNotifications)
		notifications.POST("/read", h.NotifHandler.MarkManyAsRead)
		notifications.POST("/:id/read", h.NotifHandler.MarkAsRead)
	}

	authed.GET("/ws/stats", h.WSHandler.GetStats)

	// ==================== Admin Routes ====================
	admin := api.Group("/admin")
	admin.Use(h.AuthMiddleware.AdminOnly()...)
	{
		admin.POST("/subscriptions/:id/suspend", h.SubscriptionHandler.SuspendSubscription)
		admin.POST("/subscriptions/:id/reactivate", h.SubscriptionHandler.ReactivateSubscription)
		admin.POST("/subscriptions/:id/cancel", h.SubscriptionHandler.AdminCancelSubscription)
		admin.POST("/jobs/subscriptions/run", h.PaymentHandler.RunSubscriptionJobs)
	}

	logger.Info("routes registered", zap.Int("count", len(r.Routes())))
}
