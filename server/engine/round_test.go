package engine

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// stacked returns a shoe that deals the given cards first, in order.
func stacked(t *testing.T, ss ...string) Shoe {
	t.Helper()
	return Shoe(cards(t, ss...))
}

func TestDealOrderAndHoleCard(t *testing.T) {
	rd := Deal(NewRand(1), stacked(t, "9s", "7d", "5h", "Kc", "2s"), nil, 100)
	require.Equal(t, PhasePlayer, rd.Phase)
	assert.Equal(t, []string{"9s", "5h"}, CardsToStr(rd.Player))
	assert.Equal(t, []string{"7d", "??"}, CardsToStr(rd.Dealer))
	assert.Equal(t, []string{"9s", "7d", "5h"}, CardsToStr(rd.Seen), "hole card is not seen")
	assert.Equal(t, 1, rd.Shoe.Len())
}

func TestPlayerBlackjackAgainstLowUpcard(t *testing.T) {
	rd := Deal(NewRand(1), stacked(t, "As", "6d", "Kd", "5c"), nil, 100)
	require.True(t, rd.Done())
	assert.Equal(t, PlayerBlackjack, rd.Result)
	assert.Equal(t, 250, rd.Payout())
	assert.Len(t, rd.Seen, 4, "hole card is revealed")
}

func TestPlayerBlackjackPeek(t *testing.T) {
	rd := Deal(NewRand(1), stacked(t, "As", "Th", "Kd", "Ac"), nil, 100)
	require.True(t, rd.Done())
	assert.Equal(t, Push, rd.Result)
	assert.Equal(t, 100, rd.Payout())

	rd = Deal(NewRand(1), stacked(t, "As", "Ah", "Kd", "9c"), nil, 100)
	require.True(t, rd.Done())
	assert.Equal(t, PlayerBlackjack, rd.Result)

	rd = Deal(NewRand(1), stacked(t, "As", "Ah", "Kd", "Qc"), nil, 100)
	assert.Equal(t, Push, rd.Result)
}

func TestHitBustSettles(t *testing.T) {
	rd := Deal(NewRand(1), stacked(t, "Ts", "7d", "6h", "Kc", "9s"), nil, 100)
	require.NoError(t, rd.Hit())
	assert.True(t, rd.Done())
	assert.Equal(t, PlayerBust, rd.Result)
	assert.Zero(t, rd.Payout())
	assert.Len(t, rd.Dealer, 2, "dealer does not draw after a bust")
	assert.ErrorIs(t, rd.Hit(), ErrNotPlayerTurn)
}

func TestHitTo21AutoStands(t *testing.T) {
	rd := Deal(NewRand(1), stacked(t, "Ts", "Td", "6h", "7c", "5s"), nil, 100)
	require.NoError(t, rd.Hit())
	require.True(t, rd.Done())
	assert.Equal(t, PlayerWin, rd.Result)
}

func TestStandDealerDrawsTo17(t *testing.T) {
	rd := Deal(NewRand(1), stacked(t, "Ts", "6d", "8h", "4c", "3s", "9h"), nil, 100)
	require.NoError(t, rd.Stand())
	require.True(t, rd.Done())
	assert.Equal(t, []string{"6d", "4c", "3s", "9h"}, CardsToStr(rd.Dealer))
	assert.Equal(t, DealerBust, rd.Result)
	assert.Equal(t, 200, rd.Payout())
}

func TestDoubleOnlyFirstDecision(t *testing.T) {
	rd := Deal(NewRand(1), stacked(t, "5s", "6d", "6h", "Tc", "Ks", "2h"), nil, 100)
	assert.Equal(t, []ActionKind{Hit, Stand, Double}, rd.Legal(100))
	assert.Equal(t, []ActionKind{Hit, Stand}, rd.Legal(99))

	require.NoError(t, rd.Double(100))
	assert.True(t, rd.Doubled)
	assert.Equal(t, 200, rd.Bet)
	assert.Len(t, rd.Player, 3)
	require.True(t, rd.Done())
	assert.Equal(t, PlayerWin, rd.Result)
	assert.Equal(t, 400, rd.Payout())

	rd = Deal(NewRand(1), stacked(t, "2s", "6d", "3h", "Tc", "4s", "9h"), nil, 100)
	require.NoError(t, rd.Hit())
	assert.ErrorIs(t, rd.Double(1000), ErrCannotDouble)
}

func TestDealCopiesSeen(t *testing.T) {
	history := make([]Card, 1, 64)
	history[0] = cards(t, "2c")[0]
	rd := Deal(NewRand(1), stacked(t, "9s", "7d", "5h", "Kc"), history, 10)
	assert.Len(t, history, 1)
	assert.Len(t, rd.Seen, 4)
}

func TestRoundsFromRandomShoe(t *testing.T) {
	r := NewRand(99)
	shoe := NewShoe(r)
	var seen []Card
	for i := 0; i < 200; i++ {
		if shoe.Len() < 20 {
			shoe, seen = NewShoe(r), nil
		}
		rd := Deal(r, shoe, seen, 10)
		for !rd.Done() {
			st := FullScore(rd.Player)
			a := BasicStrategy(st.Score, st.IsSoft, VisibleScore(rd.Dealer).Score, rd.CanDouble(1000))
			require.NoError(t, rd.Apply(a, 1000))
		}
		assert.Contains(t, []int{0, rd.Bet, rd.Bet * 2, rd.Bet * 5 / 2}, rd.Payout())
		shoe, seen = rd.Shoe, rd.Seen
	}
}
