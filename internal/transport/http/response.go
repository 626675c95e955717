// Package http exposes the quiz API over gin and the live result feed over
// websockets. Every JSON response uses the {success, message, data} envelope.
package http

import (
	"errors"
	"log"
	"net/http"

	"quiz-api/internal/domain"
	"quiz-api/internal/validation"

	"github.com/gin-gonic/gin"
)

type envelope struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
	Data    any    `json:"data,omitempty"`
}

func respond(c *gin.Context, status int, message string, data any) {
	c.JSON(status, envelope{Success: true, Message: message, Data: data})
}

func fail(c *gin.Context, status int, message string, data any) {
	c.AbortWithStatusJSON(status, envelope{Success: false, Message: message, Data: data})
}

func statusFor(kind domain.Kind) int {
	switch kind {
	case domain.KindBadRequest, domain.KindValidation:
		return http.StatusBadRequest
	case domain.KindConflict:
		return http.StatusConflict
	case domain.KindUnauthorized:
		return http.StatusUnauthorized
	case domain.KindForbidden:
		return http.StatusForbidden
	case domain.KindNotFound:
		return http.StatusNotFound
	default:
		return http.StatusInternalServerError
	}
}

// writeError maps err onto the envelope. Unclassified errors are logged and
// reported with a generic message.
func writeError(c *gin.Context, err error) {
	if violations, ok := validation.Violations(err); ok {
		fail(c, http.StatusBadRequest, "validation error", gin.H{"errors": violations})
		return
	}
	if errors.Is(err, domain.ErrDailyLimitReached) {
		fail(c, http.StatusForbidden, err.Error(), gin.H{"attemptsRemaining": 0})
		return
	}
	var de *domain.Error
	if !errors.As(err, &de) || de.Kind == domain.KindInternal {
		log.Printf("%s %s: %v", c.Request.Method, c.FullPath(), err)
		fail(c, http.StatusInternalServerError, "internal server error", nil)
		return
	}
	fail(c, statusFor(de.Kind), de.Message, nil)
}

// bind decodes the JSON body into v, normalizes it, and validates it.
func bind(c *gin.Context, v interface {
	Normalize()
}) bool {
	if err := c.ShouldBindJSON(v); err != nil {
		fail(c, http.StatusBadRequest, "invalid request body", gin.H{"errors": []string{err.Error()}})
		return false
	}
	v.Normalize()
	if err := validation.Struct(v); err != nil {
		writeError(c, err)
		return false
	}
	return true
}
