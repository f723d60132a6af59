package handler

import (
	"context"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/servemate/service-booking/internal/application"
	bookingDomain "github.com/servemate/service-booking/internal/domain/booking"
)

// BookingHandler handles HTTP requests for booking operations.
type BookingHandler struct {
	service *application.BookingService
}

// NewBookingHandler creates a new BookingHandler.
func NewBookingHandler(service *application.BookingService) *BookingHandler {
	return &BookingHandler{service: service}
}

// RegisterRoutes registers all booking and proposal routes on the given router group.
func (h *BookingHandler) RegisterRoutes(r *gin.RouterGroup) {
	userRole := RequireRole(bookingDomain.ActorUser)
	providerRole := RequireRole(bookingDomain.ActorProvider)

	bookings := r.Group("/api/v1/bookings")
	bookings.Use(ActorMiddleware())
	{
		bookings.POST("", userRole, h.CreateBooking)
		bookings.GET("/:id", h.GetBooking)
		bookings.GET("/:id/proposal", h.GetPendingProposal)
		bookings.POST("/:id/accept", providerRole, h.AcceptBooking)
		bookings.POST("/:id/pay", RequireRole(bookingDomain.ActorUser, bookingDomain.ActorSystem), h.PayBooking)
		bookings.POST("/:id/start", providerRole, h.StartJob)
		bookings.POST("/:id/done", providerRole, h.MarkJobDone)
		bookings.POST("/:id/confirm", userRole, h.ConfirmCompletion)
		bookings.POST("/:id/cancel", h.CancelBooking)
		bookings.POST("/:id/dispute", h.RaiseDispute)
	}

	proposals := r.Group("/api/v1/proposals")
	proposals.Use(ActorMiddleware(), userRole)
	{
		proposals.POST("/:id/respond", h.RespondToProposal)
	}
}

// CreateBooking handles POST /api/v1/bookings.
func (h *BookingHandler) CreateBooking(c *gin.Context) {
	actor, ok := GetActor(c)
	if !ok {
		Unauthorized(c, "unauthorized")
		return
	}

	var req application.CreateBookingRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		BadRequest(c, err.Error())
		return
	}

	result, err := h.service.CreateBooking(c.Request.Context(), actor, req)
	if err != nil {
		Error(c, err)
		return
	}

	Created(c, result)
}

// GetBooking handles GET /api/v1/bookings/:id.
func (h *BookingHandler) GetBooking(c *gin.Context) {
	actor, id, ok := actorAndID(c)
	if !ok {
		return
	}

	result, err := h.service.GetBooking(c.Request.Context(), actor, id)
	if err != nil {
		Error(c, err)
		return
	}

	Success(c, result)
}

// GetPendingProposal handles GET /api/v1/bookings/:id/proposal.
func (h *BookingHandler) GetPendingProposal(c *gin.Context) {
	actor, id, ok := actorAndID(c)
	if !ok {
		return
	}

	result, err := h.service.GetPendingProposal(c.Request.Context(), actor, id)
	if err != nil {
		Error(c, err)
		return
	}

	Success(c, result)
}

// AcceptBooking handles POST /api/v1/bookings/:id/accept.
func (h *BookingHandler) AcceptBooking(c *gin.Context) {
	actor, id, ok := actorAndID(c)
	if !ok {
		return
	}

	var req application.AcceptBookingRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		BadRequest(c, err.Error())
		return
	}

	result, err := h.service.AcceptBooking(c.Request.Context(), actor, id, req)
	if err != nil {
		Error(c, err)
		return
	}

	Success(c, result)
}

// PayBooking handles POST /api/v1/bookings/:id/pay.
func (h *BookingHandler) PayBooking(c *gin.Context) {
	actor, id, ok := actorAndID(c)
	if !ok {
		return
	}

	var req application.PayBookingRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		BadRequest(c, err.Error())
		return
	}

	result, err := h.service.PayBooking(c.Request.Context(), actor, id, req.PaymentRef)
	if err != nil {
		Error(c, err)
		return
	}

	Success(c, result)
}

// StartJob handles POST /api/v1/bookings/:id/start.
func (h *BookingHandler) StartJob(c *gin.Context) {
	h.simple(c, h.service.StartJob)
}

// MarkJobDone handles POST /api/v1/bookings/:id/done.
func (h *BookingHandler) MarkJobDone(c *gin.Context) {
	h.simple(c, h.service.MarkJobDone)
}

// ConfirmCompletion handles POST /api/v1/bookings/:id/confirm.
func (h *BookingHandler) ConfirmCompletion(c *gin.Context) {
	h.simple(c, h.service.ConfirmCompletion)
}

// CancelBooking handles POST /api/v1/bookings/:id/cancel. Both parties may cancel.
func (h *BookingHandler) CancelBooking(c *gin.Context) {
	actor, id, ok := actorAndID(c)
	if !ok {
		return
	}

	var req application.CancelBookingRequest
	// Body is optional.
	_ = c.ShouldBindJSON(&req)

	result, err := h.service.CancelBooking(c.Request.Context(), actor, id, req.Reason)
	if err != nil {
		Error(c, err)
		return
	}

	Success(c, result)
}

// RaiseDispute handles POST /api/v1/bookings/:id/dispute.
func (h *BookingHandler) RaiseDispute(c *gin.Context) {
	actor, id, ok := actorAndID(c)
	if !ok {
		return
	}

	var req application.RaiseDisputeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		BadRequest(c, err.Error())
		return
	}

	result, err := h.service.RaiseDispute(c.Request.Context(), actor, id, req.Reason)
	if err != nil {
		Error(c, err)
		return
	}

	Success(c, result)
}

// RespondToProposal handles POST /api/v1/proposals/:id/respond.
func (h *BookingHandler) RespondToProposal(c *gin.Context) {
	actor, id, ok := actorAndID(c)
	if !ok {
		return
	}

	var req application.RespondToProposalRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		BadRequest(c, err.Error())
		return
	}

	result, err := h.service.RespondToProposal(c.Request.Context(), actor, id, *req.Accept)
	if err != nil {
		Error(c, err)
		return
	}

	Success(c, result)
}

type bookingCommand func(ctx context.Context, actor bookingDomain.Actor, id uuid.UUID) (*application.BookingDTO, error)

func (h *BookingHandler) simple(c *gin.Context, cmd bookingCommand) {
	actor, id, ok := actorAndID(c)
	if !ok {
		return
	}

	result, err := cmd(c.Request.Context(), actor, id)
	if err != nil {
		Error(c, err)
		return
	}

	Success(c, result)
}

// actorAndID writes the error response itself when it returns false.
func actorAndID(c *gin.Context) (bookingDomain.Actor, uuid.UUID, bool) {
	actor, ok := GetActor(c)
	if !ok {
		Unauthorized(c, "unauthorized")
		return bookingDomain.Actor{}, uuid.Nil, false
	}
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		BadRequest(c, "invalid id")
		return bookingDomain.Actor{}, uuid.Nil, false
	}
	return actor, id, true
}
