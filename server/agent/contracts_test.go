package agent

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"blackjack-lab/server/engine"
)

func TestBuildObservation(t *testing.T) {
	player := hand(t, "As", "6d")
	d := dealer(t, "Ah")
	seen := hand(t, "2c", "3c", "As", "6d", "Ah")

	o := BuildObservation(player, d, seen, 26, 500, 100)
	assert.Equal(t, 17, o.PlayerScore)
	assert.True(t, o.Soft)
	assert.Equal(t, 11, o.DealerUp)
	assert.Equal(t, []string{"Ah", "??"}, o.DealerCards)
	assert.Equal(t, 1, o.RunningCount)
	assert.Equal(t, []string{"hit", "stand", "double"}, o.Legal)
	assert.Equal(t, 5, o.HistoryLen)
	assert.True(t, o.CanDouble())

	o = BuildObservation(player, d, seen, 26, 99, 100)
	assert.False(t, o.CanDouble())
}

func TestValidate(t *testing.T) {
	o := BuildObservation(hand(t, "5s", "6d"), dealer(t, "9h"), nil, 48, 50, 100)
	assert.NoError(t, Validate(o, ActionOut{Action: engine.Hit}))
	assert.NoError(t, Validate(o, ActionOut{Action: engine.Stand}))
	assert.ErrorIs(t, Validate(o, ActionOut{Action: engine.Double}), ErrIllegalAction)
	assert.ErrorIs(t, Validate(o, ActionOut{Action: "split"}), ErrIllegalAction)
}

func TestObserveRoundAfterHit(t *testing.T) {
	shoe := engine.Shoe(hand(t, "2s", "9d", "3h", "7c", "4s", "Kd"))
	rd := engine.Deal(engine.NewRand(1), shoe, nil, 100)
	require.False(t, rd.Done())

	o := ObserveRound(rd, 1000)
	assert.True(t, o.CanDouble())
	assert.Equal(t, 3, o.HistoryLen)

	require.NoError(t, rd.Hit())
	o = ObserveRound(rd, 1000)
	assert.False(t, o.CanDouble())
	assert.Equal(t, 9, o.PlayerScore)
}
