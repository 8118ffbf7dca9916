package http

import (
	"net/http"

	"workhub/internal/core/ports"

	"github.com/gin-gonic/gin"
)

type AuthHandler struct {
	authService ports.AuthService
}

var _ ports.AuthHTTPHandler = (*AuthHandler)(nil)

func NewAuthHandler(authService ports.AuthService) *AuthHandler {
	return &AuthHandler{
		authService: authService,
	}
}

func (h *AuthHandler) SetupRoutes(router *gin.Engine) {
	auth := router.Group("/api/auth")
	{
		auth.POST("/sign_up", h.SignUp)
		auth.POST("/log_in", h.LogIn)
		auth.POST("/forgot_password", h.ForgotPassword)
		auth.POST("/reset_password", h.ResetPassword)
		auth.POST("/verify_email", h.VerifyEmail)
	}

	router.GET("/api/users/me", h.Me)
	router.POST("/api/email_change_requests", h.RequestEmailChange)
	router.POST("/api/email_change_requests/confirm", h.ConfirmEmailChange)
}

type SignUpRequest struct {
	Name     string `json:"name" binding:"max=100"`
	Email    string `json:"email" binding:"max=254"`
	Password string `json:"password" binding:"max=128"`
}

type LogInRequest struct {
	Email    string `json:"email" binding:"max=254"`
	Password string `json:"password" binding:"max=128"`
}

type ForgotPasswordRequest struct {
	Email string `json:"email" binding:"max=254"`
}

type ResetPasswordRequest struct {
	Token       string `json:"token" binding:"max=512"`
	NewPassword string `json:"new_password" binding:"max=128"`
}

type TokenRequest struct {
	Token string `json:"token" binding:"max=512"`
}

type EmailChangeRequest struct {
	NewEmail string `json:"new_email" binding:"max=254"`
}

type MessageResponse struct {
	Message string `json:"message"`
}

func (h *AuthHandler) SignUp(c *gin.Context) {
	var req SignUpRequest
	if !bind(c, &req) {
		return
	}

	res, err := h.authService.SignUp(c.Request.Context(), req.Name, req.Email, req.Password)
	if err != nil {
		_ = c.Error(err)
		return
	}
	c.JSON(http.StatusCreated, res)
}

func (h *AuthHandler) LogIn(c *gin.Context) {
	var req LogInRequest
	if !bind(c, &req) {
		return
	}

	res, err := h.authService.LogIn(c.Request.Context(), req.Email, req.Password)
	if err != nil {
		_ = c.Error(err)
		return
	}
	c.JSON(http.StatusOK, res)
}

func (h *AuthHandler) ForgotPassword(c *gin.Context) {
	var req ForgotPasswordRequest
	if !bind(c, &req) {
		return
	}

	if err := h.authService.ForgotPassword(c.Request.Context(), req.Email); err != nil {
		_ = c.Error(err)
		return
	}
	c.JSON(http.StatusOK, MessageResponse{Message: "If that email exists, a reset link was sent"})
}

func (h *AuthHandler) ResetPassword(c *gin.Context) {
	var req ResetPasswordRequest
	if !bind(c, &req) {
		return
	}

	if err := h.authService.ResetPassword(c.Request.Context(), req.Token, req.NewPassword); err != nil {
		_ = c.Error(err)
		return
	}
	c.JSON(http.StatusOK, MessageResponse{Message: "Password reset successful"})
}

func (h *AuthHandler) VerifyEmail(c *gin.Context) {
	var req TokenRequest
	if !bind(c, &req) {
		return
	}

	if err := h.authService.VerifyEmail(c.Request.Context(), req.Token); err != nil {
		_ = c.Error(err)
		return
	}
	c.JSON(http.StatusOK, MessageResponse{Message: "Email verified"})
}

func (h *AuthHandler) Me(c *gin.Context) {
	userID, ok := currentUser(c)
	if !ok {
		return
	}

	user, err := h.authService.Me(c.Request.Context(), userID)
	if err != nil {
		_ = c.Error(err)
		return
	}
	c.JSON(http.StatusOK, user.Public())
}

func (h *AuthHandler) RequestEmailChange(c *gin.Context) {
	userID, ok := currentUser(c)
	if !ok {
		return
	}
	var req EmailChangeRequest
	if !bind(c, &req) {
		return
	}

	res, err := h.authService.RequestEmailChange(c.Request.Context(), userID, req.NewEmail)
	if err != nil {
		_ = c.Error(err)
		return
	}
	c.JSON(http.StatusCreated, res)
}

func (h *AuthHandler) ConfirmEmailChange(c *gin.Context) {
	var req TokenRequest
	if !bind(c, &req) {
		return
	}

	user, err := h.authService.ConfirmEmailChange(c.Request.Context(), req.Token)
	if err != nil {
		_ = c.Error(err)
		return
	}
	c.JSON(http.StatusOK, user.Public())
}
