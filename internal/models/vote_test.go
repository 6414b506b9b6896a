package models

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNewTally(t *testing.T) {
	tests := []struct {
		name        string
		counts      []int
		percentages []int
	}{
		{"no votes", []int{0, 0}, []int{0, 0}},
		{"single voter", []int{1, 0}, []int{100, 0}},
		{"even split", []int{1, 1}, []int{50, 50}},
		{"two thirds rounds up", []int{2, 1}, []int{67, 33}},
		{"half rounds up", []int{1, 1, 2}, []int{25, 25, 50}},
		{"sum may exceed 100", []int{1, 1, 1}, []int{33, 33, 33}},
		{"five options", []int{3, 0, 1, 0, 1}, []int{60, 0, 20, 0, 20}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tally := NewTally(tt.counts)
			assert.Equal(t, tt.counts, tally.Votes)
			assert.Equal(t, tt.percentages, tally.Percentages)
			assert.Len(t, tally.Percentages, len(tally.Votes))
			for _, p := range tally.Percentages {
				assert.GreaterOrEqual(t, p, 0)
				assert.LessOrEqual(t, p, 100)
			}
		})
	}
}

func TestCanTransitionTo(t *testing.T) {
	assert.True(t, PollStateWaiting.CanTransitionTo(PollStateOpen))
	assert.True(t, PollStateOpen.CanTransitionTo(PollStateClosed))

	assert.False(t, PollStateWaiting.CanTransitionTo(PollStateClosed))
	assert.False(t, PollStateOpen.CanTransitionTo(PollStateWaiting))
	assert.False(t, PollStateClosed.CanTransitionTo(PollStateOpen))
	assert.False(t, PollStateClosed.CanTransitionTo(PollStateWaiting))
	assert.False(t, PollStateClosed.CanTransitionTo(PollStateClosed))
}

func TestValidOption(t *testing.T) {
	p := &Poll{Options: []string{"A", "B"}}
	assert.True(t, p.ValidOption(0))
	assert.True(t, p.ValidOption(1))
	assert.False(t, p.ValidOption(2))
	assert.False(t, p.ValidOption(-1))
}
