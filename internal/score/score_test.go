package score_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/victornm/livequiz/internal/domain"
	"github.com/victornm/livequiz/internal/score"
)

func TestPolicy_Points(t *testing.T) {
	const deadline = 10 * time.Second

	tests := map[string]struct {
		answer score.Answer
		want   int64
	}{
		"an instant correct answer earns the base points": {
			answer: score.Answer{Option: 1, Elapsed: 0},
			want:   1000,
		},
		"a correct answer after 2 of 10 seconds": {
			answer: score.Answer{Option: 1, Elapsed: 2 * time.Second},
			want:   900,
		},
		"a correct answer at the last instant earns the floor": {
			answer: score.Answer{Option: 1, Elapsed: deadline},
			want:   500,
		},
		"a late correct answer is clamped to the floor": {
			answer: score.Answer{Option: 1, Elapsed: 12 * time.Second},
			want:   500,
		},
		"an incorrect answer earns nothing": {
			answer: score.Answer{Option: 0, Elapsed: time.Second},
			want:   0,
		},
		"rounds to the nearest point": {
			answer: score.Answer{Option: 1, Elapsed: 3333 * time.Millisecond},
			want:   833,
		},
	}

	for name, tt := range tests {
		tt := tt
		t.Run(name, func(t *testing.T) {
			t.Parallel()

			got := score.DefaultPolicy.Points(tt.answer, deadline, 1)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestPolicy_Points_Deterministic(t *testing.T) {
	p := score.Policy{BasePoints: 1000, MinPoints: 500}

	for elapsed := time.Duration(0); elapsed <= 10*time.Second; elapsed += 137 * time.Millisecond {
		a := score.Answer{Option: 2, Elapsed: elapsed}
		first := p.Points(a, 10*time.Second, 2)
		second := p.Points(a, 10*time.Second, 2)

		require.Equal(t, first, second)
		require.GreaterOrEqual(t, first, int64(500))
		require.LessOrEqual(t, first, int64(1000))
	}
}

func TestPolicy_Points_MonotonicInSpeed(t *testing.T) {
	prev := int64(1 << 62)
	for elapsed := time.Duration(0); elapsed <= 10*time.Second; elapsed += 250 * time.Millisecond {
		got := score.DefaultPolicy.Points(score.Answer{Option: 0, Elapsed: elapsed}, 10*time.Second, 0)
		require.LessOrEqual(t, got, prev)
		prev = got
	}
}

func TestPolicy_Award(t *testing.T) {
	q := domain.Question{
		Prompt:       "2+2?",
		Options:      []string{"3", "4", "5"},
		CorrectIndex: 1,
		Deadline:     10 * time.Second,
	}

	got := score.DefaultPolicy.Award(q, []string{"h", "p1", "p2", "p3"}, map[string]score.Answer{
		"p1": {Option: 1, Elapsed: 2 * time.Second},
		"p3": {Option: 2, Elapsed: time.Second},
	})

	assert.Equal(t, map[string]int64{"h": 0, "p1": 900, "p2": 0, "p3": 0}, got)
}

func TestTally(t *testing.T) {
	got := score.Tally(4, map[string]score.Answer{
		"a": {Option: 0},
		"b": {Option: 2},
		"c": {Option: 2},
		"d": {Option: 7},
	})

	assert.Equal(t, []int{1, 0, 2, 0}, got)
}

func TestPolicy_Validate(t *testing.T) {
	tests := map[string]struct {
		policy  score.Policy
		wantErr bool
	}{
		"default":          {policy: score.DefaultPolicy},
		"flat":             {policy: score.Policy{BasePoints: 100, MinPoints: 100}},
		"no floor":         {policy: score.Policy{BasePoints: 100}},
		"negative floor":   {policy: score.Policy{BasePoints: 100, MinPoints: -1}, wantErr: true},
		"floor above base": {policy: score.Policy{BasePoints: 500, MinPoints: 1000}, wantErr: true},
		"both negative":    {policy: score.Policy{BasePoints: -10, MinPoints: -20}, wantErr: true},
	}

	for name, tt := range tests {
		t.Run(name, func(t *testing.T) {
			err := tt.policy.Validate()
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			assert.NoError(t, err)
		})
	}
}
