package judge

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"blackjack-lab/server/engine"
)

func TestPickTieBreak(t *testing.T) {
	assert.Equal(t, engine.Double, pick(map[engine.ActionKind]float64{
		engine.Hit: 0.1, engine.Stand: 0.1, engine.Double: 0.1,
	}))
	assert.Equal(t, engine.Hit, pick(map[engine.ActionKind]float64{
		engine.Hit: 0.1, engine.Stand: 0.1,
	}))
	assert.Equal(t, engine.Double, pick(map[engine.ActionKind]float64{
		engine.Hit: -0.3, engine.Stand: 0.1, engine.Double: 0.1,
	}))
	assert.Equal(t, engine.Stand, pick(map[engine.ActionKind]float64{
		engine.Hit: 0.05, engine.Stand: 0.2, engine.Double: 0.1,
	}))
}

func TestAdviseDoublesElevenVsSix(t *testing.T) {
	adv := NewAdvisor(Simulator{Trials: 4000}, 11)
	res, err := adv.Advise(context.Background(), AdviceInput{
		Player:   hand(t, "5s", "6d"),
		Dealer:   dealerWithHole(t, "6h", "Tc"),
		ShoeSize: 48,
		Chips:    900,
		Bet:      100,
	})
	require.NoError(t, err)
	require.NotNil(t, res.Double)
	assert.True(t, res.CanDouble)
	assert.Equal(t, engine.Double, res.Basic)
	assert.Equal(t, engine.Double, res.Recommended)
	assert.Equal(t, res.Double.EV(), res.EV[engine.Double])
	assert.Zero(t, res.Stand.BustRate)
}

func TestAdviseOmitsIllegalDouble(t *testing.T) {
	adv := NewAdvisor(Simulator{Trials: 500}, 3)
	res, err := adv.Advise(context.Background(), AdviceInput{
		Player:   hand(t, "5s", "6d"),
		Dealer:   dealerWithHole(t, "6h", "Tc"),
		ShoeSize: 48,
		Chips:    50,
		Bet:      100,
	})
	require.NoError(t, err)
	assert.Nil(t, res.Double)
	assert.NotContains(t, res.EV, engine.Double)
	assert.NotEqual(t, engine.Double, res.Recommended)
	assert.Equal(t, engine.Hit, res.Basic)
}

func TestAdviseStandsOnTwenty(t *testing.T) {
	adv := NewAdvisor(Simulator{Trials: 3000}, 9)
	res, err := adv.Advise(context.Background(), AdviceInput{
		Player:   hand(t, "Ts", "Kd"),
		Dealer:   dealerWithHole(t, "6h", "9c"),
		ShoeSize: 48,
		Chips:    1000,
		Bet:      100,
	})
	require.NoError(t, err)
	assert.Equal(t, engine.Stand, res.Recommended)
	assert.Equal(t, engine.Stand, res.Basic)
	assert.Greater(t, res.Hit.BustRate, 0.5)
}

func TestAdviseCountsVisibleCardsOnce(t *testing.T) {
	adv := NewAdvisor(Simulator{Trials: 10}, 1)
	res, err := adv.Advise(context.Background(), AdviceInput{
		Player:   hand(t, "Ts", "9d"),
		Dealer:   dealerWithHole(t, "6h", "Kd"),
		Seen:     hand(t, "2c", "3c", "4c", "5c", "Ts", "6h"),
		ShoeSize: 26,
		Chips:    1000,
		Bet:      100,
	})
	require.NoError(t, err)
	assert.Equal(t, 4, res.RunningCount)
	assert.Equal(t, 8.0, res.TrueCount)
	assert.Equal(t, engine.AdvantagePlayer, res.DeckAdvantage)
}

func TestGetStrategyAdviceFromShoe(t *testing.T) {
	r := engine.NewRand(4)
	player := hand(t, "Ts", "7d")
	dealer := dealerWithHole(t, "Ah", "5c")
	table := engine.Union(player, dealer)

	var shoe engine.Shoe
	for _, c := range engine.NewDeck() {
		if !containsKey(table, c) {
			shoe = append(shoe, c)
		}
	}
	engine.Shuffle(r, shoe)

	res, err := GetStrategyAdvice(context.Background(), r, player, dealer, shoe, 1000, 100)
	require.NoError(t, err)
	assert.Equal(t, DefaultTrials, res.Stand.Trials)
	assert.Equal(t, -2, res.RunningCount)
	assert.Equal(t, engine.Stand, res.Basic)
}

func containsKey(cs []engine.Card, c engine.Card) bool {
	for _, x := range cs {
		if x.Key() == c.Key() {
			return true
		}
	}
	return false
}

func TestAdviseTrialOverride(t *testing.T) {
	adv := NewAdvisor(Simulator{Trials: 5000}, 2)
	res, err := adv.Advise(context.Background(), AdviceInput{
		Player:   hand(t, "9s", "7d"),
		Dealer:   dealerWithHole(t, "Th", "4c"),
		ShoeSize: 48,
		Chips:    0,
		Bet:      100,
		Trials:   250,
	})
	require.NoError(t, err)
	assert.Equal(t, 250, res.Hit.Trials)
	assert.Equal(t, 250, res.Stand.Trials)
	assert.Nil(t, res.Double)
}

func TestAdviseRejectsNegativeTrials(t *testing.T) {
	adv := NewAdvisor(Simulator{}, 2)
	_, err := adv.Advise(context.Background(), AdviceInput{
		Player:   hand(t, "Ts", "6d"),
		Dealer:   dealerWithHole(t, "Th", "4c"),
		ShoeSize: 48,
		Chips:    1000,
		Bet:      100,
		Trials:   -5,
	})
	assert.ErrorIs(t, err, ErrBadTrials)
}

func TestAdviseFallsBackToBasicWithoutTrials(t *testing.T) {
	in := AdviceInput{
		Player:   hand(t, "Ts", "6d"),
		Dealer:   dealerWithHole(t, "Th", "4c"),
		ShoeSize: 48,
		Chips:    1000,
		Bet:      100,
	}
	res, err := NewAdvisor(Simulator{Trials: -1}, 2).Advise(context.Background(), in)
	require.NoError(t, err)
	assert.Equal(t, 0, res.Hit.Trials)
	assert.Equal(t, engine.Hit, res.Basic)
	assert.Equal(t, engine.Hit, res.Recommended, "hard 16 vs 10 must not fall to the double tie-break")

	in.Player = engine.NewDeck()
	res, err = NewAdvisor(Simulator{Trials: 300}, 2).Advise(context.Background(), in)
	require.NoError(t, err)
	assert.Equal(t, 0, res.Stand.Trials)
	assert.Equal(t, res.Basic, res.Recommended)
}
