package handler

import (
	"github.com/gin-gonic/gin"

	"github.com/servemate/service-booking/internal/application"
	bookingDomain "github.com/servemate/service-booking/internal/domain/booking"
)

// ServiceHandler lets providers open and close their listings.
type ServiceHandler struct {
	service *application.BookingService
}

// NewServiceHandler creates a new ServiceHandler.
func NewServiceHandler(service *application.BookingService) *ServiceHandler {
	return &ServiceHandler{service: service}
}

// RegisterRoutes registers listing routes.
func (h *ServiceHandler) RegisterRoutes(r *gin.RouterGroup) {
	services := r.Group("/api/v1/services")
	services.Use(ActorMiddleware(), RequireRole(bookingDomain.ActorProvider))
	{
		services.POST("/:id/activate", h.ActivateService)
		services.POST("/:id/deactivate", h.DeactivateService)
	}
}

// ActivateService handles POST /api/v1/services/:id/activate.
func (h *ServiceHandler) ActivateService(c *gin.Context) {
	actor, id, ok := actorAndID(c)
	if !ok {
		return
	}

	result, err := h.service.ActivateService(c.Request.Context(), actor, id)
	if err != nil {
		Error(c, err)
		return
	}

	Success(c, result)
}

// DeactivateService handles POST /api/v1/services/:id/deactivate.
func (h *ServiceHandler) DeactivateService(c *gin.Context) {
	actor, id, ok := actorAndID(c)
	if !ok {
		return
	}

	result, err := h.service.DeactivateService(c.Request.Context(), actor, id)
	if err != nil {
		Error(c, err)
		return
	}

	Success(c, result)
}
