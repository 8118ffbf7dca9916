package http

import (
	"net/http"

	"workhub/internal/core/domain"
	"workhub/internal/core/ports"
	"workhub/internal/infrastructure/middleware"
	apperrors "workhub/pkg/errors"
	"workhub/pkg/validation"

	"github.com/gin-gonic/gin"
)

type WorkspaceHandler struct {
	workspaceService ports.WorkspaceService
}

var _ ports.WorkspaceHTTPHandler = (*WorkspaceHandler)(nil)

func NewWorkspaceHandler(workspaceService ports.WorkspaceService) *WorkspaceHandler {
	return &WorkspaceHandler{
		workspaceService: workspaceService,
	}
}

func (h *WorkspaceHandler) SetupRoutes(router *gin.Engine) {
	router.POST("/api/auth/invite_accept", h.AcceptInvite)

	api := router.Group("/api/workspaces")
	{
		api.GET("", h.ListWorkspaces)
		api.POST("", h.CreateWorkspace)
		api.POST("/:id/invites", h.InviteMember)
		api.DELETE("/:id/members/:user_id", h.RemoveMember)
	}
}

type CreateWorkspaceRequest struct {
	Name string `json:"name" binding:"max=100"`
}

type InviteRequest struct {
	Email string `json:"email" binding:"max=254"`
}

// currentUser pushes a 401 when the auth middleware did not run.
func currentUser(c *gin.Context) (domain.UserID, bool) {
	userID, ok := middleware.CurrentUser(c)
	if !ok {
		_ = c.Error(apperrors.NewUnauthorizedError("No token provided"))
	}
	return userID, ok
}

func pathID(c *gin.Context, name string) (string, bool) {
	id := c.Param(name)
	if err := validation.ValidateID(id, name); err != nil {
		_ = c.Error(apperrors.NewBadRequestError(err.Error()))
		return "", false
	}
	return id, true
}

func (h *WorkspaceHandler) ListWorkspaces(c *gin.Context) {
	userID, ok := currentUser(c)
	if !ok {
		return
	}

	workspaces, err := h.workspaceService.List(c.Request.Context(), userID)
	if err != nil {
		_ = c.Error(err)
		return
	}
	c.JSON(http.StatusOK, workspaces)
}

func (h *WorkspaceHandler) CreateWorkspace(c *gin.Context) {
	userID, ok := currentUser(c)
	if !ok {
		return
	}
	var req CreateWorkspaceRequest
	if !bind(c, &req) {
		return
	}

	ws, err := h.workspaceService.Create(c.Request.Context(), userID, req.Name)
	if err != nil {
		_ = c.Error(err)
		return
	}
	c.JSON(http.StatusCreated, ws)
}

func (h *WorkspaceHandler) InviteMember(c *gin.Context) {
	userID, ok := currentUser(c)
	if !ok {
		return
	}
	workspaceID, ok := pathID(c, "id")
	if !ok {
		return
	}
	var req InviteRequest
	if !bind(c, &req) {
		return
	}

	invite, err := h.workspaceService.Invite(c.Request.Context(), userID, domain.WorkspaceID(workspaceID), req.Email)
	if err != nil {
		_ = c.Error(err)
		return
	}
	c.JSON(http.StatusCreated, invite)
}

func (h *WorkspaceHandler) AcceptInvite(c *gin.Context) {
	userID, ok := currentUser(c)
	if !ok {
		return
	}
	var req TokenRequest
	if !bind(c, &req) {
		return
	}

	res, err := h.workspaceService.AcceptInvite(c.Request.Context(), userID, req.Token)
	if err != nil {
		_ = c.Error(err)
		return
	}
	c.JSON(http.StatusOK, res)
}

func (h *WorkspaceHandler) RemoveMember(c *gin.Context) {
	actor, ok := currentUser(c)
	if !ok {
		return
	}
	workspaceID, ok := pathID(c, "id")
	if !ok {
		return
	}
	memberID, ok := pathID(c, "user_id")
	if !ok {
		return
	}

	if err := h.workspaceService.RemoveMember(c.Request.Context(), actor, domain.WorkspaceID(workspaceID), domain.UserID(memberID)); err != nil {
		_ = c.Error(err)
		return
	}
	c.Status(http.StatusNoContent)
}
