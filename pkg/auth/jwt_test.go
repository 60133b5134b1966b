package auth

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGenerateAndValidate(t *testing.T) {
	svc := NewJWTService("secret", "supplier-portal")

	token, err := svc.GenerateAccessToken("u-1", "ops@example.com", RoleAdmin, time.Hour)
	require.NoError(t, err)

	claims, err := svc.ValidateToken(token)
	require.NoError(t, err)
	assert.Equal(t, "u-1", claims.UserID)
	assert.Equal(t, "ops@example.com", claims.Email)
	assert.Equal(t, RoleAdmin, claims.Role)
}

func TestValidateRejects(t *testing.T) {
	svc := NewJWTService("secret", "supplier-portal")

	expired, err := svc.GenerateAccessToken("u-1", "a@example.com", RoleStaff, -time.Minute)
	require.NoError(t, err)
	otherIssuer, err := NewJWTService("secret", "elsewhere").GenerateAccessToken("u-1", "a@example.com", RoleStaff, time.Hour)
	require.NoError(t, err)
	wrongKey, err := NewJWTService("other", "supplier-portal").GenerateAccessToken("u-1", "a@example.com", RoleStaff, time.Hour)
	require.NoError(t, err)
	supplier, err := svc.GenerateAccessToken("u-1", "a@example.com", "supplier", time.Hour)
	require.NoError(t, err)

	tests := []struct {
		name  string
		token string
		want  error
	}{
		{"expired", expired, ErrInvalidToken},
		{"issuer", otherIssuer, ErrInvalidToken},
		{"signature", wrongKey, ErrInvalidToken},
		{"garbage", "not-a-token", ErrInvalidToken},
		{"role", supplier, ErrMissingRole},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := svc.ValidateToken(tt.token)
			assert.ErrorIs(t, err, tt.want)
		})
	}
}
