package engine

const (
	BlackjackTotal = 21
	DealerStandsOn = 17
)

// DealerShouldHit: the dealer draws below 17 and stands on every 17, soft or hard.
func DealerShouldHit(dealer []Card) bool {
	return FullScore(dealer).Score < DealerStandsOn
}

// CanDouble requires the opening two cards and enough chips to match the bet.
func CanDouble(hand []Card, chips, bet int) bool {
	return len(hand) == 2 && chips >= bet
}

func DetermineResult(player, dealer []Card) Result {
	p := FullScore(player)
	d := FullScore(dealer)

	switch {
	case p.IsBlackjack && d.IsBlackjack:
		return Push
	case p.IsBlackjack:
		return PlayerBlackjack
	case d.IsBlackjack:
		return DealerBlackjack
	case p.IsBust:
		return PlayerBust
	case d.IsBust:
		return DealerBust
	case p.Score > d.Score:
		return PlayerWin
	case d.Score > p.Score:
		return DealerWin
	default:
		return Push
	}
}

// Payout is the amount returned to the player, stake included.
func Payout(result Result, bet int) int {
	switch result {
	case PlayerBlackjack:
		return bet * 5 / 2
	case PlayerWin, DealerBust:
		return bet * 2
	case Push:
		return bet
	default:
		return 0
	}
}
