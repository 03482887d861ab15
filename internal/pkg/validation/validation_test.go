package validation

import (
	"errors"
	"testing"

	"github.com/go-playground/validator/v10"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type signup struct {
	Email    string `json:"email"    validate:"required,email"`
	Password string `json:"password" validate:"required,min=8,strongpassword"`
	Name     string `json:"firstName" validate:"notblank,max=50"`
	Platform string `json:"platform" validate:"omitempty,oneof=ios android web"`
}

func newValidator() *validator.Validate {
	v := validator.New()
	Register(v)
	return v
}

func TestStrongPassword(t *testing.T) {
	assert.True(t, StrongPassword("Passw0rd"))
	assert.False(t, StrongPassword("password1"))
	assert.False(t, StrongPassword("PASSWORD1"))
	assert.False(t, StrongPassword("Password"))
}

func TestMessages_UsesJSONNames(t *testing.T) {
	v := newValidator()
	err := v.Struct(signup{Email: "nope", Password: "weakpass", Name: "   ", Platform: "symbian"})
	require.Error(t, err)

	fields := Messages(err)
	assert.Equal(t, "The field 'email' must be a valid email address.", fields["email"])
	assert.Contains(t, fields["password"], "uppercase")
	assert.Equal(t, "The field 'firstName' must not be blank.", fields["firstName"])
	assert.Equal(t, "The field 'platform' must be one of [ios android web].", fields["platform"])
}

func TestMessages_Valid(t *testing.T) {
	v := newValidator()
	assert.NoError(t, v.Struct(signup{Email: "a@b.co", Password: "Passw0rd", Name: "Ann"}))
}

func TestAppError(t *testing.T) {
	e := AppError(errors.New("EOF"))
	assert.Equal(t, 400, e.Status)
	assert.Equal(t, "VALIDATION_ERROR", e.Code)
	assert.Equal(t, map[string]string{"body": "EOF"}, e.Details["fields"])
}
