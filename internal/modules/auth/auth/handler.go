package auth

import (
	"errors"
	"io"

	"github.com/aiassist/core/internal/middleware"
	"github.com/aiassist/core/internal/models"
	"github.com/aiassist/core/internal/pkg/response"
	"github.com/aiassist/core/internal/pkg/session"
	"github.com/aiassist/core/internal/pkg/validation"
	"github.com/gin-gonic/gin"
)

type Handler struct {
	svc *Service
}

func NewHandler(svc *Service) *Handler {
	return &Handler{svc: svc}
}

// RegisterRoutes mounts /auth. limitMW guards the unauthenticated
// credential endpoints.
func (h *Handler) RegisterRoutes(rg *gin.RouterGroup, authMW, limitMW gin.HandlerFunc) {
	a := rg.Group("/auth")

	a.POST("/register", limitMW, h.register)
	a.POST("/login", limitMW, h.login)
	a.POST("/refresh-token", limitMW, h.refresh)

	a.POST("/logout", authMW, h.logout)
	a.GET("/me", authMW, h.me)
	a.PATCH("/profile", authMW, h.updateProfile)
	a.PATCH("/change-password", authMW, h.changePassword)
	a.POST("/device-token", authMW, h.registerDeviceToken)
	a.DELETE("/device-token", authMW, h.removeDeviceToken)
	a.DELETE("/account", authMW, h.deleteAccount)
}

func fail(c *gin.Context, err error) {
	response.Error(c, session.AppError(err))
}

func bind(c *gin.Context, dto interface{}) bool {
	if err := c.ShouldBindJSON(dto); err != nil {
		response.Error(c, validation.AppError(err))
		return false
	}
	return true
}

func (h *Handler) register(c *gin.Context) {
	var dto RegisterDTO
	if !bind(c, &dto) {
		return
	}
	res, err := h.svc.Register(c.Request.Context(), &dto)
	if err != nil {
		fail(c, err)
		return
	}
	h.svc.tracker.TrackRequest(c, res.User.ID, models.EventRegister, platformProps(dto.Platform))
	response.Created(c, authResponse{
		AccessToken:  res.Pair.AccessToken,
		RefreshToken: res.Pair.RefreshToken,
		User:         NewUserView(res.User, nil),
	})
}

func (h *Handler) login(c *gin.Context) {
	var dto LoginDTO
	if !bind(c, &dto) {
		return
	}
	res, err := h.svc.Login(c.Request.Context(), &dto)
	if err != nil {
		fail(c, err)
		return
	}
	h.svc.tracker.TrackRequest(c, res.User.ID, models.EventLogin, platformProps(dto.Platform))
	snap := h.svc.gate.SnapshotOf(res.User)
	response.OK(c, authResponse{
		AccessToken:  res.Pair.AccessToken,
		RefreshToken: res.Pair.RefreshToken,
		User:         NewUserView(res.User, &snap),
	})
}

func (h *Handler) refresh(c *gin.Context) {
	var dto RefreshDTO
	if !bind(c, &dto) {
		return
	}
	pair, err := h.svc.Refresh(c.Request.Context(), dto.RefreshToken)
	if err != nil {
		fail(c, err)
		return
	}
	response.OK(c, pair)
}

func (h *Handler) logout(c *gin.Context) {
	var dto LogoutDTO
	if err := c.ShouldBindJSON(&dto); err != nil && !errors.Is(err, io.EOF) {
		response.Error(c, validation.AppError(err))
		return
	}
	userID := middleware.CurrentUserID(c)
	if err := h.svc.Logout(c.Request.Context(), userID, dto.RefreshToken); err != nil {
		fail(c, err)
		return
	}
	h.svc.tracker.TrackRequest(c, userID, models.EventLogout, nil)
	response.OK(c, gin.H{"message": "Logged out successfully"})
}

func (h *Handler) me(c *gin.Context) {
	u, snap, err := h.svc.Me(c.Request.Context(), middleware.CurrentUserID(c))
	if err != nil {
		fail(c, err)
		return
	}
	response.OK(c, gin.H{"user": NewUserView(u, &snap)})
}

func (h *Handler) updateProfile(c *gin.Context) {
	var dto ProfileDTO
	if !bind(c, &dto) {
		return
	}
	userID := middleware.CurrentUserID(c)
	u, fields, err := h.svc.UpdateProfile(c.Request.Context(), userID, &dto)
	if err != nil {
		fail(c, err)
		return
	}
	if len(fields) > 0 {
		h.svc.tracker.TrackRequest(c, userID, models.EventSettingsUpdated, map[string]interface{}{"fields": fields})
	}
	response.OK(c, gin.H{"user": NewUserView(u, nil)})
}

func (h *Handler) changePassword(c *gin.Context) {
	var dto ChangePasswordDTO
	if !bind(c, &dto) {
		return
	}
	pair, err := h.svc.ChangePassword(c.Request.Context(), middleware.CurrentUserID(c), &dto)
	if err != nil {
		fail(c, err)
		return
	}
	response.OK(c, pair)
}

func (h *Handler) registerDeviceToken(c *gin.Context) {
	var dto DeviceTokenDTO
	if !bind(c, &dto) {
		return
	}
	if err := h.svc.RegisterDeviceToken(c.Request.Context(), middleware.CurrentUserID(c), &dto); err != nil {
		fail(c, err)
		return
	}
	response.OK(c, gin.H{"message": "Device token registered successfully"})
}

func (h *Handler) removeDeviceToken(c *gin.Context) {
	var dto RemoveDeviceTokenDTO
	if !bind(c, &dto) {
		return
	}
	if err := h.svc.RemoveDeviceToken(c.Request.Context(), middleware.CurrentUserID(c), dto.Token); err != nil {
		fail(c, err)
		return
	}
	response.OK(c, gin.H{"message": "Device token removed successfully"})
}

func (h *Handler) deleteAccount(c *gin.Context) {
	var dto DeleteAccountDTO
	if !bind(c, &dto) {
		return
	}
	if err := h.svc.DeleteAccount(c.Request.Context(), middleware.CurrentUserID(c), dto.Password); err != nil {
		fail(c, err)
		return
	}
	response.OK(c, gin.H{"message": "Account deleted successfully"})
}

func platformProps(platform string) map[string]interface{} {
	if platform == "" {
		return nil
	}
	return map[string]interface{}{"platform": platform}
}
