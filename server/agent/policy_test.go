package agent

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"blackjack-lab/server/engine"
)

func hand(t *testing.T, ss ...string) []engine.Card {
	t.Helper()
	cs, err := engine.ParseCards(ss)
	require.NoError(t, err)
	return cs
}

func dealer(t *testing.T, up string) []engine.Card {
	d := hand(t, up, "2c")
	d[1] = d[1].WithFaceUp(false)
	return d
}

// obs builds a hard or soft spot with a forced true count.
func obs(score int, soft bool, up int, dbl bool, tc float64) Observation {
	o := Observation{PlayerScore: score, Soft: soft, DealerUp: up, TrueCount: tc, Legal: []string{"hit", "stand"}}
	if dbl {
		o.Legal = append(o.Legal, "double")
	}
	return o
}

func TestParseDifficulty(t *testing.T) {
	for in, want := range map[string]Difficulty{"easy": Easy, " PRO ": Pro, "Casino": Casino} {
		d, err := ParseDifficulty(in)
		require.NoError(t, err)
		assert.Equal(t, want, d)
	}
	_, err := ParseDifficulty("expert")
	assert.ErrorIs(t, err, ErrUnknownDifficulty)

	_, err = New("expert", nil)
	assert.ErrorIs(t, err, ErrUnknownDifficulty)
}

func TestLabels(t *testing.T) {
	assert.Equal(t, "Random", Easy.Label())
	assert.Equal(t, "Basic Strategy", Pro.Label())
	assert.Equal(t, "Card Counting", Casino.Label())
	for _, d := range Difficulties() {
		p, err := New(d, engine.NewRand(1))
		require.NoError(t, err)
		assert.Equal(t, d, p.Difficulty())
		assert.Equal(t, d.Label(), p.Name())
	}
}

func TestRandomPolicyDistribution(t *testing.T) {
	p := NewRandomPolicy(engine.NewRand(17))
	counts := map[engine.ActionKind]int{}
	n := 20000
	for i := 0; i < n; i++ {
		counts[p.Decide(obs(12, false, 10, true, 0))]++
	}
	assert.InDelta(t, 0.1, float64(counts[engine.Double])/float64(n), 0.015)
	assert.InDelta(t, 0.4, float64(counts[engine.Hit])/float64(n), 0.02)
	assert.InDelta(t, 0.5, float64(counts[engine.Stand])/float64(n), 0.02)

	for i := 0; i < 2000; i++ {
		assert.NotEqual(t, engine.Double, p.Decide(obs(12, false, 10, false, 0)))
	}
}

func TestBasicPolicyFollowsTable(t *testing.T) {
	var p BasicPolicy
	assert.Equal(t, engine.Double, p.Decide(obs(11, false, 6, true, 0)))
	assert.Equal(t, engine.Hit, p.Decide(obs(11, false, 6, false, 0)))
	assert.Equal(t, engine.Stand, p.Decide(obs(16, false, 6, true, -5)))
	assert.Equal(t, engine.Hit, p.Decide(obs(16, false, 10, true, 5)))
}

func TestCountingDeviations(t *testing.T) {
	var p CountingPolicy
	tests := []struct {
		name  string
		score int
		up    int
		dbl   bool
		tc    float64
		want  engine.ActionKind
	}{
		{"16v10 neutral", 16, 10, true, 0, engine.Stand},
		{"16v10 negative", 16, 10, true, -0.5, engine.Hit},
		{"15v10 rich", 15, 10, true, 4, engine.Stand},
		{"15v10 below", 15, 10, true, 3.9, engine.Hit},
		{"12v3 rich", 12, 3, true, 2, engine.Stand},
		{"12v3 below", 12, 3, true, 1.9, engine.Hit},
		{"12v2 rich", 12, 2, true, 3, engine.Stand},
		{"12v2 below", 12, 2, true, 2.5, engine.Hit},
		{"11vA", 11, 11, true, -6, engine.Double},
		{"11 no double", 11, 11, false, 6, engine.Hit},
		{"10v10 rich", 10, 10, true, 4, engine.Double},
		{"10v10 below", 10, 10, true, 3, engine.Hit},
		{"10vA rich", 10, 11, true, 4.2, engine.Double},
		{"10vA no double", 10, 11, false, 8, engine.Hit},
		{"10v9 basic", 10, 9, true, -3, engine.Double},
		{"17v10 basic", 17, 10, true, -3, engine.Stand},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, p.Decide(obs(tt.score, false, tt.up, tt.dbl, tt.tc)))
		})
	}

	assert.Equal(t, engine.Hit, p.Decide(obs(16, true, 10, true, 5)), "soft totals skip deviations")
}

func TestGetActionUsesHistoryForCount(t *testing.T) {
	player := hand(t, "Ts", "6d")
	d := dealer(t, "Kh")

	low := hand(t, "2c", "3c", "4c", "5c", "6c", "2d", "3d")
	a, err := GetAction(Casino, player, d, low, 20, 900, 100, nil)
	require.NoError(t, err)
	assert.Equal(t, engine.Stand, a)

	high := hand(t, "Ac", "Kc", "Qc", "Jc", "Tc", "Ad", "Kd")
	a, err = GetAction(Casino, player, d, high, 20, 900, 100, nil)
	require.NoError(t, err)
	assert.Equal(t, engine.Hit, a)

	a, err = GetAction(Pro, player, d, low, 20, 900, 100, nil)
	require.NoError(t, err)
	assert.Equal(t, engine.Hit, a)
}
