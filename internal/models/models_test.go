package models

import (
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPushBounded_EvictsOldestFirst(t *testing.T) {
	var list []int
	for i := 1; i <= 7; i++ {
		list = PushBounded(list, i, 5)
	}
	assert.Equal(t, []int{3, 4, 5, 6, 7}, list)
}

func TestPushBounded_DoesNotAliasInput(t *testing.T) {
	base := make([]int, 2, 10)
	base[0], base[1] = 1, 2

	a := PushBounded(base, 3, 5)
	b := PushBounded(base, 4, 5)

	assert.Equal(t, []int{1, 2, 3}, a)
	assert.Equal(t, []int{1, 2, 4}, b)
}

func TestRemoveWhere(t *testing.T) {
	out, removed := RemoveWhere([]string{"a", "b", "c"}, func(s string) bool { return s == "b" })
	assert.True(t, removed)
	assert.Equal(t, []string{"a", "c"}, out)

	out, removed = RemoveWhere(out, func(s string) bool { return s == "z" })
	assert.False(t, removed)
	assert.Equal(t, []string{"a", "c"}, out)
}

func TestUser_RefreshTokensCapped(t *testing.T) {
	u := NewUser("A@Example.com ", "hash", "Ann", "Lee", time.Now())
	assert.Equal(t, "a@example.com", u.Email)

	for i := 1; i <= 6; i++ {
		u.AddRefreshToken(RefreshToken{Token: fmt.Sprintf("t%d", i)})
	}
	require.Len(t, u.RefreshTokens, MaxRefreshTokens)
	assert.False(t, u.HasRefreshToken("t1"))
	assert.True(t, u.HasRefreshToken("t2"))
	assert.True(t, u.HasRefreshToken("t6"))
}

func TestUser_DeviceTokensIdempotent(t *testing.T) {
	u := NewUser("a@example.com", "hash", "Ann", "Lee", time.Now())

	assert.True(t, u.AddDeviceToken(DeviceToken{Token: "d1", Platform: "ios"}))
	assert.False(t, u.AddDeviceToken(DeviceToken{Token: "d1", Platform: "ios"}))
	assert.Len(t, u.DeviceTokens, 1)

	for i := 2; i <= 6; i++ {
		u.AddDeviceToken(DeviceToken{Token: fmt.Sprintf("d%d", i), Platform: "web"})
	}
	require.Len(t, u.DeviceTokens, MaxDeviceTokens)
	assert.False(t, u.HasDeviceToken("d1"))

	assert.False(t, u.RemoveDeviceToken("missing"))
	assert.True(t, u.RemoveDeviceToken("d6"))
	assert.Len(t, u.DeviceTokens, MaxDeviceTokens-1)
}

func TestUser_IsPremium(t *testing.T) {
	u := NewUser("a@example.com", "hash", "Ann", "Lee", time.Now())
	assert.False(t, u.IsPremium())

	u.Subscription.IsActive = true
	assert.True(t, u.IsPremium())

	u.Subscription.IsActive = false
	u.Role = RoleAdmin
	assert.True(t, u.IsPremium())
}

func TestUser_CloneIsDeep(t *testing.T) {
	u := NewUser("a@example.com", "hash", "Ann", "Lee", time.Now())
	u.AddRefreshToken(RefreshToken{Token: "t1"})

	c := u.Clone()
	c.AddRefreshToken(RefreshToken{Token: "t2"})
	c.RefreshTokens[0].Token = "changed"

	assert.Equal(t, "t1", u.RefreshTokens[0].Token)
	assert.Len(t, u.RefreshTokens, 1)
}

func TestConversation_AutoTitle(t *testing.T) {
	now := time.Now()
	c := NewConversation("u1", "friendly", now)
	c.AddMessage(RoleMessageUser, strings.Repeat("x", 60), 15, now)
	c.AddMessage(RoleMessageAssistant, "reply", 2, now)
	c.AddMessage(RoleMessageUser, "second", 2, now)

	assert.Equal(t, strings.Repeat("x", 50)+"...", c.Title)
	assert.Equal(t, 3, c.MessageCount())
	assert.Equal(t, 19, c.Metadata.TotalTokens)
}
