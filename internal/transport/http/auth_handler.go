package http

import (
	"net/http"

	"quiz-api/internal/app"
	"quiz-api/internal/domain"
	"quiz-api/internal/validation"

	"github.com/gin-gonic/gin"
)

type AuthHandler struct {
	auth *app.AuthService
}

func NewAuthHandler(auth *app.AuthService) *AuthHandler {
	return &AuthHandler{auth: auth}
}

func (h *AuthHandler) Register(c *gin.Context) {
	var req validation.RegisterRequest
	if !bind(c, &req) {
		return
	}
	session, err := h.auth.Register(c.Request.Context(), app.RegisterInput{
		Username:    req.Username,
		Email:       req.Email,
		Password:    req.Password,
		Role:        domain.Role(req.Role),
		AllowRetake: req.AllowRetake,
	})
	if err != nil {
		writeError(c, err)
		return
	}
	respond(c, http.StatusCreated, "user registered successfully", session)
}

func (h *AuthHandler) Login(c *gin.Context) {
	var req validation.LoginRequest
	if !bind(c, &req) {
		return
	}
	session, err := h.auth.Login(c.Request.Context(), req.Email, req.Password)
	if err != nil {
		logins.WithLabelValues("failed").Inc()
		writeError(c, err)
		return
	}
	logins.WithLabelValues("success").Inc()
	respond(c, http.StatusOK, "login successful", session)
}

func (h *AuthHandler) Me(c *gin.Context) {
	respond(c, http.StatusOK, "authenticated user", gin.H{"user": currentUser(c)})
}
