package models

import (
	"slices"
	"strings"
	"time"
)

const (
	RoleUser    = "user"
	RolePremium = "premium"
	RoleAdmin   = "admin"

	MaxRefreshTokens = 5
	MaxDeviceTokens  = 5
)

var DevicePlatforms = []string{"ios", "android", "web"}

// User owns the session, device and quota state of one account.
// Version is bumped on every write and used for compare-and-swap updates.
type User struct {
	ID                string          `json:"id"                          bson:"_id"`
	Email             string          `json:"email"                       bson:"email"`
	Password          string          `json:"-"                           bson:"password"`
	FirstName         string          `json:"firstName"                   bson:"firstName"`
	LastName          string          `json:"lastName"                    bson:"lastName"`
	Avatar            string          `json:"avatar,omitempty"            bson:"avatar,omitempty"`
	Role              string          `json:"role"                        bson:"role"`
	IsActive          bool            `json:"isActive"                    bson:"isActive"`
	Subscription      Subscription    `json:"subscription"                bson:"subscription"`
	Preferences       Preferences     `json:"preferences"                 bson:"preferences"`
	Usage             Usage           `json:"usage"                       bson:"usage"`
	RefreshTokens     []RefreshToken  `json:"-"                           bson:"refreshTokens"`
	DeviceTokens      []DeviceToken   `json:"-"                           bson:"deviceTokens"`
	PasswordChangedAt *time.Time      `json:"-"                           bson:"passwordChangedAt,omitempty"`
	LastLoginAt       *time.Time      `json:"lastLoginAt,omitempty"       bson:"lastLoginAt,omitempty"`
	Version           int64           `json:"-"                           bson:"version"`
	CreatedAt         time.Time       `json:"createdAt"                   bson:"createdAt"`
	UpdatedAt         time.Time       `json:"updatedAt"                   bson:"updatedAt"`
}

type Subscription struct {
	Plan      string     `json:"plan"                bson:"plan"`
	IsActive  bool       `json:"isActive"            bson:"isActive"`
	ExpiresAt *time.Time `json:"expiresAt,omitempty" bson:"expiresAt,omitempty"`
}

type Preferences struct {
	Theme         string                  `json:"theme"         bson:"theme"`
	Language      string                  `json:"language"      bson:"language"`
	AIPersonality string                  `json:"aiPersonality" bson:"aiPersonality"`
	Notifications NotificationPreferences `json:"notifications" bson:"notifications"`
}

type NotificationPreferences struct {
	Push  bool `json:"push"  bson:"push"`
	Email bool `json:"email" bson:"email"`
}

// Usage is the per-user quota sub-record. InFlight holds admitted requests
// that have not yet completed.
type Usage struct {
	DailyCount         int           `json:"dailyCount"              bson:"dailyCount"`
	MonthlyCount       int           `json:"monthlyCount"            bson:"monthlyCount"`
	TotalCount         int           `json:"totalCount"              bson:"totalCount"`
	LastRequestAt      *time.Time    `json:"lastRequestAt,omitempty" bson:"lastRequestAt,omitempty"`
	LastDailyResetAt   time.Time     `json:"lastDailyResetAt"        bson:"lastDailyResetAt"`
	LastMonthlyResetAt time.Time     `json:"lastMonthlyResetAt"      bson:"lastMonthlyResetAt"`
	InFlight           []Reservation `json:"-"                       bson:"inFlight"`
}

type Reservation struct {
	ID string    `bson:"id"`
	At time.Time `bson:"at"`
}

type RefreshToken struct {
	Token     string    `bson:"token"`
	IssuedAt  time.Time `bson:"issuedAt"`
	ExpiresAt time.Time `bson:"expiresAt"`
}

type DeviceToken struct {
	Token    string    `json:"token"    bson:"token"`
	Platform string    `json:"platform" bson:"platform"`
	AddedAt  time.Time `json:"addedAt"  bson:"addedAt"`
}

// NewUser returns an active user with defaults applied and both usage
// windows anchored at now.
func NewUser(email, passwordHash, firstName, lastName string, now time.Time) *User {
	return &User{
		Email:     NormalizeEmail(email),
		Password:  passwordHash,
		FirstName: strings.TrimSpace(firstName),
		LastName:  strings.TrimSpace(lastName),
		Role:      RoleUser,
		IsActive:  true,
		Subscription: Subscription{
			Plan: "free",
		},
		Preferences: Preferences{
			Theme:         "system",
			Language:      "en",
			AIPersonality: "friendly",
			Notifications: NotificationPreferences{Push: true, Email: true},
		},
		Usage: Usage{
			LastDailyResetAt:   now,
			LastMonthlyResetAt: now,
		},
		CreatedAt: now,
		UpdatedAt: now,
	}
}

func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

func (u *User) FullName() string {
	return strings.TrimSpace(u.FirstName + " " + u.LastName)
}

// IsPremium reports whether the user gets the premium quota tier.
func (u *User) IsPremium() bool {
	return u.Role == RolePremium || u.Role == RoleAdmin || u.Subscription.IsActive
}

func (u *User) HasRefreshToken(token string) bool {
	return ContainsWhere(u.RefreshTokens, func(rt RefreshToken) bool { return rt.Token == token })
}

func (u *User) AddRefreshToken(rt RefreshToken) {
	u.RefreshTokens = PushBounded(u.RefreshTokens, rt, MaxRefreshTokens)
}

func (u *User) RemoveRefreshToken(token string) bool {
	var removed bool
	u.RefreshTokens, removed = RemoveWhere(u.RefreshTokens, func(rt RefreshToken) bool { return rt.Token == token })
	return removed
}

func (u *User) HasDeviceToken(token string) bool {
	return ContainsWhere(u.DeviceTokens, func(dt DeviceToken) bool { return dt.Token == token })
}

// AddDeviceToken is set-like: an already registered token is left in place
// and false is returned.
func (u *User) AddDeviceToken(dt DeviceToken) bool {
	if u.HasDeviceToken(dt.Token) {
		return false
	}
	u.DeviceTokens = PushBounded(u.DeviceTokens, dt, MaxDeviceTokens)
	return true
}

func (u *User) RemoveDeviceToken(token string) bool {
	var removed bool
	u.DeviceTokens, removed = RemoveWhere(u.DeviceTokens, func(dt DeviceToken) bool { return dt.Token == token })
	return removed
}

func ValidPlatform(p string) bool {
	return slices.Contains(DevicePlatforms, p)
}

// Clone returns a deep copy so callers can mutate without aliasing.
func (u *User) Clone() *User {
	if u == nil {
		return nil
	}
	c := *u
	c.RefreshTokens = slices.Clone(u.RefreshTokens)
	c.DeviceTokens = slices.Clone(u.DeviceTokens)
	c.Usage.InFlight = slices.Clone(u.Usage.InFlight)
	c.PasswordChangedAt = cloneTime(u.PasswordChangedAt)
	c.LastLoginAt = cloneTime(u.LastLoginAt)
	c.Usage.LastRequestAt = cloneTime(u.Usage.LastRequestAt)
	c.Subscription.ExpiresAt = cloneTime(u.Subscription.ExpiresAt)
	return &c
}

func cloneTime(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	v := *t
	return &v
}
