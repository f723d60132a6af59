package handler

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/servemate/service-booking/internal/domain"
)

type apiError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Limit   string `json:"limit,omitempty"`
}

type envelope struct {
	Success bool        `json:"success"`
	Data    interface{} `json:"data,omitempty"`
	Error   *apiError   `json:"error,omitempty"`
}

// Success writes a 200 response.
func Success(c *gin.Context, data interface{}) {
	c.JSON(http.StatusOK, envelope{Success: true, Data: data})
}

// Created writes a 201 response.
func Created(c *gin.Context, data interface{}) {
	c.JSON(http.StatusCreated, envelope{Success: true, Data: data})
}

// BadRequest writes a 400 response.
func BadRequest(c *gin.Context, msg string) {
	abort(c, http.StatusBadRequest, &apiError{Code: "BAD_REQUEST", Message: msg})
}

// Unauthorized writes a 401 response.
func Unauthorized(c *gin.Context, msg string) {
	abort(c, http.StatusUnauthorized, &apiError{Code: "UNAUTHORIZED", Message: msg})
}

// Error maps a domain error to its HTTP status.
func Error(c *gin.Context, err error) {
	var (
		validation *domain.ValidationError
		notFound   *domain.NotFoundError
		forbidden  *domain.ForbiddenError
		invalid    *domain.InvalidTransitionError
		quotaErr   *domain.QuotaExceededError
	)
	switch {
	case errors.As(err, &validation):
		abort(c, http.StatusBadRequest, &apiError{Code: "VALIDATION_ERROR", Message: err.Error()})
	case errors.As(err, &notFound):
		abort(c, http.StatusNotFound, &apiError{Code: "NOT_FOUND", Message: err.Error()})
	case errors.As(err, &forbidden):
		abort(c, http.StatusForbidden, &apiError{Code: "FORBIDDEN", Message: err.Error()})
	case errors.As(err, &invalid):
		abort(c, http.StatusConflict, &apiError{Code: "INVALID_TRANSITION", Message: err.Error()})
	case errors.As(err, &quotaErr):
		abort(c, http.StatusUnprocessableEntity, &apiError{Code: "QUOTA_EXCEEDED", Message: err.Error(), Limit: quotaErr.Limit})
	case errors.Is(err, domain.ErrVersionConflict):
		abort(c, http.StatusConflict, &apiError{Code: "CONFLICT", Message: err.Error()})
	default:
		abort(c, http.StatusInternalServerError, &apiError{Code: "INTERNAL_ERROR", Message: "internal server error"})
	}
}

func abort(c *gin.Context, status int, e *apiError) {
	c.AbortWithStatusJSON(status, envelope{Success: false, Error: e})
}
