package ports

import (
	"github.com/gin-gonic/gin"
)

type AuthHTTPHandler interface {
	SignUp(c *gin.Context)
	LogIn(c *gin.Context)
	ForgotPassword(c *gin.Context)
	ResetPassword(c *gin.Context)
	VerifyEmail(c *gin.Context)
	Me(c *gin.Context)
	RequestEmailChange(c *gin.Context)
	ConfirmEmailChange(c *gin.Context)
}

type WorkspaceHTTPHandler interface {
	ListWorkspaces(c *gin.Context)
	CreateWorkspace(c *gin.Context)
	InviteMember(c *gin.Context)
	AcceptInvite(c *gin.Context)
	RemoveMember(c *gin.Context)
}
