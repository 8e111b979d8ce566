package engine

import "math"

type Advantage string

const (
	AdvantagePlayer  Advantage = "player"
	AdvantageNeutral Advantage = "neutral"
	AdvantageDealer  Advantage = "dealer"
)

// minDecks keeps the true count finite as the shoe runs out.
const minDecks = 0.5

// HiLoValue: 2-6 count +1, tens and aces -1, 7-9 are neutral.
func HiLoValue(rank int) int {
	switch {
	case rank >= 2 && rank <= 6:
		return 1
	case rank >= 10:
		return -1
	default:
		return 0
	}
}

// RunningCount sums Hi-Lo values over cards the caller has seen. The slice is only read.
func RunningCount(seen []Card) int {
	n := 0
	for _, c := range seen {
		n += HiLoValue(c.Rank)
	}
	return n
}

func RemainingDecks(shoeSize int) float64 {
	return math.Max(float64(shoeSize)/DeckSize, minDecks)
}

// TrueCount is the running count per remaining deck, rounded half up to one decimal.
func TrueCount(running int, decks float64) float64 {
	if decks <= 0 {
		return 0
	}
	return math.Floor(float64(running)/decks*10+0.5) / 10
}

func DeckAdvantage(trueCount float64) Advantage {
	switch {
	case trueCount >= 2:
		return AdvantagePlayer
	case trueCount <= -2:
		return AdvantageDealer
	default:
		return AdvantageNeutral
	}
}
