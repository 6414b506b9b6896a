package roomcode

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGenerateShape(t *testing.T) {
	seen := make(map[string]bool)
	for i := 0; i < 100; i++ {
		code, err := Generate()
		require.NoError(t, err)
		assert.Len(t, code, Length)
		assert.True(t, Valid(code), "generated code %q should validate", code)
		seen[code] = true
	}
	// 100 draws from a 32^6 space should not collide.
	assert.Len(t, seen, 100)
}

func TestValid(t *testing.T) {
	tests := []struct {
		code string
		want bool
	}{
		{"ABC234", true},
		{"abc234", false},
		{"ABC23", false},
		{"ABC2345", false},
		{"ABC0DE", false},
		{"", false},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, Valid(tt.code), tt.code)
	}
}
