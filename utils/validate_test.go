package utils

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestValidEmail(t *testing.T) {
	valid := []string{"amina@example.com", "a.b+c@sub.domain.co.ke"}
	invalid := []string{"", "plain", "@example.com", "a@b", "a b@example.com"}

	for _, e := range valid {
		assert.True(t, ValidEmail(e), e)
	}
	for _, e := range invalid {
		assert.False(t, ValidEmail(e), e)
	}
}

func TestValidPhoneNumber(t *testing.T) {
	valid := []string{"254712345678", "+254712345678", "0712345678", "0112345678", "254110000000"}
	invalid := []string{"", "12345", "255712345678", "07123456", "07123456789", "2547abc45678"}

	for _, p := range valid {
		assert.True(t, ValidPhoneNumber(p), p)
	}
	for _, p := range invalid {
		assert.False(t, ValidPhoneNumber(p), p)
	}
}

func TestNormalizePhoneNumber(t *testing.T) {
	tests := map[string]string{
		"0712345678":    "254712345678",
		"+254712345678": "254712345678",
		"254712345678":  "254712345678",
		"0112345678":    "254112345678",
	}
	for in, want := range tests {
		assert.Equal(t, want, NormalizePhoneNumber(in), in)
	}
}
