package handlers

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/charlesng35/feedsync/internal/state"
	apperrors "github.com/charlesng35/feedsync/pkg/errors"
	"github.com/charlesng35/feedsync/pkg/response"
)

// AuthHandler manages the agent's session surface (login/logout/session).
type AuthHandler struct {
	state *state.Container
}

func NewAuthHandler(container *state.Container) *AuthHandler {
	return &AuthHandler{state: container}
}

type loginRequest struct {
	Username string `json:"username" validate:"required"`
	Password string `json:"password" validate:"required"`
}

// POST /api/auth/login
func (h *AuthHandler) Login(c *gin.Context) {
	var req loginRequest
	if !bindAndValidate(c, &req) {
		return
	}
	req.Username = strings.TrimSpace(req.Username)
	if req.Username == "" {
		response.Error(c, apperrors.NewValidation("username is required"))
		return
	}

	session, err := h.state.Login(requestContext(c), req.Username, req.Password)
	if err != nil {
		response.Error(c, err)
		return
	}

	response.Success(c, http.StatusOK, session)
}

// POST /api/auth/logout
func (h *AuthHandler) Logout(c *gin.Context) {
	session, err := h.state.Logout(requestContext(c))
	if err != nil {
		response.Error(c, err)
		return
	}

	response.Success(c, http.StatusOK, session)
}

// GET /api/auth/session
func (h *AuthHandler) Session(c *gin.Context) {
	session, err := h.state.Session(requestContext(c))
	if err != nil {
		response.Error(c, err)
		return
	}

	response.Success(c, http.StatusOK, session)
}
