package atscheck

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCanProceed(t *testing.T) {
	tests := []struct {
		name          string
		authenticated bool
		used          int
		limit         int
		want          Decision
	}{
		{"anonymous below limit", false, 2, 3, Allow},
		{"anonymous at limit", false, 3, 3, RequireLogin},
		{"anonymous above limit", false, 4, 3, RequireLogin},
		{"authenticated below limit", true, 2, 3, Allow},
		{"authenticated at limit", true, 3, 3, RequireUpgrade},
		{"authenticated above limit", true, 5, 3, RequireUpgrade},
		{"fresh anonymous quota", false, 0, 1, Allow},
		{"zero limit anonymous", false, 0, 0, RequireLogin},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, CanProceed(tt.authenticated, tt.used, tt.limit))
		})
	}
}

func TestDecision_Err(t *testing.T) {
	assert.NoError(t, Allow.Err())
	assert.ErrorIs(t, RequireLogin.Err(), ErrLoginRequired)
	assert.ErrorIs(t, RequireUpgrade.Err(), ErrUpgradeRequired)
	assert.Equal(t, "require_upgrade", RequireUpgrade.String())
}
