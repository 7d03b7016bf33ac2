package handlers

import (
	"net/http"

	"chat-sync/internal/api/middleware"
	"chat-sync/internal/models"
	"chat-sync/internal/services"
	"chat-sync/pkg/response"

	"github.com/gin-gonic/gin"
)

type UserHandler struct {
	userService *services.UserService
}

func NewUserHandler(userService *services.UserService) *UserHandler {
	return &UserHandler{userService: userService}
}

// EnsureProfile godoc
// @Summary Ensure the caller's profile
// @Description Creates the profile for the token subject on first call and returns the existing one afterwards
// @Tags users
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param request body models.EnsureProfileRequest true "Initial profile data"
// @Success 201 {object} models.User "Profile created"
// @Success 200 {object} models.User "Profile already existed"
// @Failure 400 {object} models.ErrorResponse
// @Failure 401 {object} models.ErrorResponse
// @Router /users [post]
func (h *UserHandler) EnsureProfile(c *gin.Context) {
	var req models.EnsureProfileRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, err)
		return
	}

	user, created, err := h.userService.EnsureProfile(c.Request.Context(), c.GetString(middleware.ExternalIDKey), &req)
	if err != nil {
		response.Error(c, err)
		return
	}

	status := http.StatusOK
	if created {
		status = http.StatusCreated
	}
	c.JSON(status, user)
}

// GetProfile godoc
// @Summary Get the caller's profile
// @Tags users
// @Produce json
// @Security BearerAuth
// @Success 200 {object} models.User
// @Failure 401 {object} models.ErrorResponse
// @Failure 404 {object} models.ErrorResponse "No profile yet"
// @Router /users/me [get]
func (h *UserHandler) GetProfile(c *gin.Context) {
	c.JSON(http.StatusOK, middleware.Viewer(c))
}

// UpdateProfile godoc
// @Summary Update the caller's profile
// @Tags users
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param request body models.UpdateProfileRequest true "Fields to change"
// @Success 200 {object} models.User
// @Failure 400 {object} models.ErrorResponse
// @Router /users/me [put]
func (h *UserHandler) UpdateProfile(c *gin.Context) {
	var req models.UpdateProfileRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, err)
		return
	}

	user, err := h.userService.UpdateProfile(c.Request.Context(), middleware.Viewer(c), &req)
	if err != nil {
		response.Error(c, err)
		return
	}
	c.JSON(http.StatusOK, user)
}

// ListUsers godoc
// @Summary List all users
// @Tags users
// @Produce json
// @Security BearerAuth
// @Success 200 {array} models.User
// @Router /users [get]
func (h *UserHandler) ListUsers(c *gin.Context) {
	users, err := h.userService.List(c.Request.Context())
	if err != nil {
		response.Error(c, err)
		return
	}
	c.JSON(http.StatusOK, users)
}
