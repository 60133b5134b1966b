package security

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSignerVerify(t *testing.T) {
	s := NewSigner("tracking-secret")

	sig := s.Sign("5f0c", "https://portal.example.com/status")
	assert.Len(t, sig, 64)
	assert.NoError(t, s.Verify(sig, "5f0c", "https://portal.example.com/status"))
	assert.ErrorIs(t, s.Verify(sig, "5f0c", "https://evil.example.com"), ErrInvalidSignature)
	assert.ErrorIs(t, s.Verify("", "5f0c", "https://portal.example.com/status"), ErrInvalidSignature)
}

func TestDisabledSigner(t *testing.T) {
	s := NewSigner("")
	assert.False(t, s.Enabled())
	assert.Empty(t, s.Sign("a"))
	assert.NoError(t, s.Verify("anything", "a"))
}

func TestLongKeyIsHashed(t *testing.T) {
	s := NewSigner(strings.Repeat("k", 100))
	assert.True(t, s.Enabled())
	assert.NotEmpty(t, s.Sign("a"))
}
