package users

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestApplyXP(t *testing.T) {
	testCases := []struct {
		name           string
		level          int
		experience     int
		xpGain         int
		wantLevel      int
		wantExperience int
	}{
		{
			name:  "no gain",
			level: 1, experience: 50, xpGain: 0,
			wantLevel: 1, wantExperience: 50,
		},
		{
			name:  "below threshold",
			level: 1, experience: 0, xpGain: 99,
			wantLevel: 1, wantExperience: 99,
		},
		{
			name:  "exactly at threshold",
			level: 1, experience: 50, xpGain: 50,
			wantLevel: 2, wantExperience: 100,
		},
		{
			name:  "far past threshold still one level",
			level: 1, experience: 0, xpGain: 1000,
			wantLevel: 2, wantExperience: 1000,
		},
		{
			name:  "higher level threshold",
			level: 3, experience: 250, xpGain: 40,
			wantLevel: 3, wantExperience: 290,
		},
		{
			name:  "higher level crossing",
			level: 3, experience: 250, xpGain: 60,
			wantLevel: 4, wantExperience: 310,
		},
		{
			name:  "corrupted level treated as one",
			level: 0, experience: 0, xpGain: 150,
			wantLevel: 2, wantExperience: 150,
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			gotLevel, gotExperience := ApplyXP(tc.level, tc.experience, tc.xpGain)
			assert.Equal(t, tc.wantLevel, gotLevel)
			assert.Equal(t, tc.wantExperience, gotExperience)
		})
	}
}

func TestApplyXP_repeatedSmallGains(t *testing.T) {
	level, experience := 1, 0
	for i := 0; i < 9; i++ {
		level, experience = ApplyXP(level, experience, 10)
		assert.Equal(t, 1, level)
	}

	// the tenth gain crosses level*100
	level, experience = ApplyXP(level, experience, 10)
	assert.Equal(t, 2, level)
	assert.Equal(t, 100, experience)
}

func TestApplyXP_neverSkipsLevels(t *testing.T) {
	for gain := 0; gain <= 5000; gain += 37 {
		newLevel, _ := ApplyXP(2, 150, gain)
		assert.LessOrEqual(t, newLevel, 3)
		assert.GreaterOrEqual(t, newLevel, 2)
	}
}
