package validator

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

type recipient struct {
	Email string `validate:"required,email"`
	Phone string `validate:"omitempty,phone"`
}

func TestValidate(t *testing.T) {
	v := New()

	tests := []struct {
		name    string
		in      recipient
		wantErr string
	}{
		{"valid", recipient{Email: "a@example.com", Phone: "+15551234567"}, ""},
		{"missing email", recipient{}, "email is required"},
		{"bad phone", recipient{Email: "a@example.com", Phone: "call me"}, "phone must be a valid phone number"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := v.Validate(tt.in)
			if tt.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			assert.EqualError(t, err, tt.wantErr)
		})
	}
}

func TestValidateField(t *testing.T) {
	v := New()
	assert.NoError(t, v.ValidateField("reason", "incomplete documents", "required"))
	assert.EqualError(t, v.ValidateField("reason", "", "required"), "reason is required")
}
