package auth

import (
	"net/http"
	"time"

	"github.com/aiassist/core/internal/models"
	"github.com/aiassist/core/internal/pkg/apperr"
	"github.com/aiassist/core/internal/pkg/usage"
)

type RegisterDTO struct {
	Email     string `json:"email"     binding:"required,email,max=254"`
	Password  string `json:"password"  binding:"required,min=8,max=128,strongpassword"`
	FirstName string `json:"firstName" binding:"required,notblank,max=50"`
	LastName  string `json:"lastName"  binding:"required,notblank,max=50"`
	Platform  string `json:"platform"  binding:"omitempty,oneof=ios android web"`
}

type LoginDTO struct {
	Email    string `json:"email"    binding:"required,email"`
	Password string `json:"password" binding:"required"`
	Platform string `json:"platform" binding:"omitempty,oneof=ios android web"`
}

type RefreshDTO struct {
	RefreshToken string `json:"refreshToken" binding:"required"`
}

type LogoutDTO struct {
	RefreshToken string `json:"refreshToken"`
}

type ProfileDTO struct {
	FirstName   *string         `json:"firstName"   binding:"omitempty,notblank,max=50"`
	LastName    *string         `json:"lastName"    binding:"omitempty,notblank,max=50"`
	Avatar      *string         `json:"avatar"      binding:"omitempty,max=500"`
	Preferences *PreferencesDTO `json:"preferences"`
}

type PreferencesDTO struct {
	Theme         *string           `json:"theme"         binding:"omitempty,oneof=light dark system"`
	Language      *string           `json:"language"      binding:"omitempty,min=2,max=10"`
	AIPersonality *string           `json:"aiPersonality" binding:"omitempty,oneof=professional friendly concise detailed"`
	Notifications *NotificationsDTO `json:"notifications"`
}

type NotificationsDTO struct {
	Push  *bool `json:"push"`
	Email *bool `json:"email"`
}

type ChangePasswordDTO struct {
	CurrentPassword string `json:"currentPassword" binding:"required"`
	NewPassword     string `json:"newPassword"     binding:"required,min=8,max=128,strongpassword"`
	ConfirmPassword string `json:"confirmPassword" binding:"required,eqfield=NewPassword"`
}

type DeviceTokenDTO struct {
	Token    string `json:"token"    binding:"required,notblank"`
	Platform string `json:"platform" binding:"required,oneof=ios android web"`
}

type RemoveDeviceTokenDTO struct {
	Token string `json:"token" binding:"required"`
}

type DeleteAccountDTO struct {
	Password string `json:"password" binding:"required"`
}

// UserView is the client facing shape of a user.
type UserView struct {
	ID           string              `json:"id"`
	Email        string              `json:"email"`
	FirstName    string              `json:"firstName"`
	LastName     string              `json:"lastName"`
	FullName     string              `json:"fullName"`
	Avatar       string              `json:"avatar,omitempty"`
	Role         string              `json:"role"`
	IsActive     bool                `json:"isActive"`
	Preferences  models.Preferences  `json:"preferences"`
	Subscription models.Subscription `json:"subscription"`
	Usage        *UsageView          `json:"usage,omitempty"`
	LastLoginAt  *time.Time          `json:"lastLoginAt,omitempty"`
	CreatedAt    time.Time           `json:"createdAt"`
}

type UsageView struct {
	DailyCount       int          `json:"dailyCount"`
	MonthlyCount     int          `json:"monthlyCount"`
	TotalCount       int          `json:"totalCount"`
	DailyRemaining   int          `json:"dailyRemaining"`
	MonthlyRemaining int          `json:"monthlyRemaining"`
	Limits           usage.Limits `json:"limits"`
	Tier             usage.Tier   `json:"tier"`
	CanMakeRequest   bool         `json:"canMakeRequest"`
	LastRequestAt    *time.Time   `json:"lastRequestAt,omitempty"`
}

// NewUserView renders u. The usage block is included only when snap is
// given.
func NewUserView(u *models.User, snap *usage.Snapshot) *UserView {
	v := &UserView{
		ID:           u.ID,
		Email:        u.Email,
		FirstName:    u.FirstName,
		LastName:     u.LastName,
		FullName:     u.FullName(),
		Avatar:       u.Avatar,
		Role:         u.Role,
		IsActive:     u.IsActive,
		Preferences:  u.Preferences,
		Subscription: u.Subscription,
		LastLoginAt:  u.LastLoginAt,
		CreatedAt:    u.CreatedAt,
	}
	if snap != nil {
		v.Usage = &UsageView{
			DailyCount:       u.Usage.DailyCount,
			MonthlyCount:     u.Usage.MonthlyCount,
			TotalCount:       u.Usage.TotalCount,
			DailyRemaining:   snap.DailyRemaining,
			MonthlyRemaining: snap.MonthlyRemaining,
			Limits:           snap.Limits,
			Tier:             snap.Tier,
			CanMakeRequest:   snap.CanMake,
			LastRequestAt:    u.Usage.LastRequestAt,
		}
	}
	return v
}

type authResponse struct {
	AccessToken  string    `json:"accessToken"`
	RefreshToken string    `json:"refreshToken"`
	User         *UserView `json:"user"`
}

var (
	errEmailExists        = apperr.Conflict(apperr.CodeEmailExists, "An account with this email already exists")
	errInvalidCredentials = apperr.Auth(apperr.CodeInvalidCredentials, "Invalid email or password")
	errAccountDeactivated = apperr.Auth(apperr.CodeAccountDeactivated, "Your account has been deactivated")
	errWrongPassword      = apperr.New(http.StatusBadRequest, apperr.CodeInvalidPassword, "Current password is incorrect")
	errIncorrectPassword  = apperr.New(http.StatusBadRequest, apperr.CodeInvalidPassword, "Password is incorrect")
	errInvalidPlatform    = apperr.Validation(apperr.CodeValidation, "Platform must be one of ios, android, web")
	errUserNotFound       = apperr.NotFound(apperr.CodeUserNotFound, "User not found")
)
