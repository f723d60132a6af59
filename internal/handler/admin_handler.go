package handler

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/servemate/service-booking/internal/application"
	bookingDomain "github.com/servemate/service-booking/internal/domain/booking"
	"github.com/servemate/service-booking/internal/scheduler"
)

// Reconciler repairs drifted quota counters on demand.
type Reconciler interface {
	ReconcileOnce(ctx context.Context) ([]scheduler.Drift, error)
}

// Sweeper runs one timeout sweep on demand.
type Sweeper interface {
	SweepOnce(ctx context.Context) (scheduler.SweepReport, error)
}

// AdminBookingHandler handles operator HTTP requests.
type AdminBookingHandler struct {
	service    *application.BookingService
	reconciler Reconciler
	sweeper    Sweeper
}

// NewAdminBookingHandler creates a new AdminBookingHandler.
func NewAdminBookingHandler(service *application.BookingService, reconciler Reconciler, sweeper Sweeper) *AdminBookingHandler {
	return &AdminBookingHandler{service: service, reconciler: reconciler, sweeper: sweeper}
}

// RegisterRoutes registers admin routes. Only system actors may call them.
func (h *AdminBookingHandler) RegisterRoutes(r *gin.RouterGroup) {
	admin := r.Group("/api/v1/admin")
	admin.Use(ActorMiddleware(), RequireRole(bookingDomain.ActorSystem))
	{
		admin.GET("/stats/bookings", h.BookingStats)
		admin.GET("/counters", h.Counters)
		admin.POST("/reconcile", h.Reconcile)
		admin.POST("/sweep", h.Sweep)
	}
}

// BookingStats handles GET /api/v1/admin/stats/bookings.
func (h *AdminBookingHandler) BookingStats(c *gin.Context) {
	stats, err := h.service.GetBookingStats(c.Request.Context())
	if err != nil {
		Error(c, err)
		return
	}

	Success(c, stats)
}

// Counters handles GET /api/v1/admin/counters.
func (h *AdminBookingHandler) Counters(c *gin.Context) {
	usage, err := h.service.CounterUsage(c.Request.Context())
	if err != nil {
		Error(c, err)
		return
	}

	Success(c, usage)
}

// Reconcile handles POST /api/v1/admin/reconcile.
func (h *AdminBookingHandler) Reconcile(c *gin.Context) {
	drift, err := h.reconciler.ReconcileOnce(c.Request.Context())
	if err != nil {
		Error(c, err)
		return
	}

	Success(c, gin.H{"repaired": len(drift), "drift": drift})
}

// Sweep handles POST /api/v1/admin/sweep.
func (h *AdminBookingHandler) Sweep(c *gin.Context) {
	report, err := h.sweeper.SweepOnce(c.Request.Context())
	if err != nil {
		Error(c, err)
		return
	}

	Success(c, report)
}

// RegisterHealthRoutes registers liveness and metrics endpoints.
func RegisterHealthRoutes(r *gin.Engine, gatherer prometheus.Gatherer) {
	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok", "service": "service-booking"})
	})
	r.GET("/metrics", gin.WrapH(promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})))
}
