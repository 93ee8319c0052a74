package workflow

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestLetterBoundaries(t *testing.T) {
	cases := []struct {
		score    int
		maxScore int
		want     string
	}{
		{90, 100, "A+"},
		{89, 100, "A"},
		{80, 100, "A"},
		{79, 100, "B+"},
		{70, 100, "B+"},
		{60, 100, "B"},
		{50, 100, "C+"},
		{40, 100, "C"},
		{30, 100, "D"},
		{29, 100, "F"},
		{0, 100, "F"},
		{100, 100, "A+"},
		{72, 100, "B+"},
		{18, 20, "A+"},
		{9, 20, "C"},
	}
	for _, tc := range cases {
		assert.Equal(t, tc.want, Letter(tc.score, tc.maxScore), "score=%d max=%d", tc.score, tc.maxScore)
	}
}

func TestLetterTotal(t *testing.T) {
	valid := map[string]struct{}{
		"A+": {}, "A": {}, "B+": {}, "B": {}, "C+": {}, "C": {}, "D": {}, "F": {},
	}
	for score := 0; score <= 100; score++ {
		letter := Letter(score, 100)
		_, ok := valid[letter]
		assert.True(t, ok, "score=%d produced %q", score, letter)
	}
}

func TestLetterDegenerateMax(t *testing.T) {
	assert.Equal(t, "F", Letter(10, 0))
}
