package engine

// computeScore counts every ace as 11 and demotes aces to 1 while the total is over 21.
func computeScore(cards []Card) (score int, soft bool) {
	aces := 0
	for _, c := range cards {
		score += c.Value()
		if c.IsAce() {
			aces++
		}
	}
	for score > 21 && aces > 0 {
		score -= 10
		aces--
	}
	return score, aces > 0
}

func handState(cards []Card) HandState {
	score, soft := computeScore(cards)
	return HandState{
		Score:       score,
		IsSoft:      soft,
		IsBust:      score > 21,
		IsBlackjack: len(cards) == 2 && score == 21,
		CardCount:   len(cards),
	}
}

// VisibleScore scores only the face-up cards, e.g. a dealer hand with its hole card down.
func VisibleScore(cards []Card) HandState {
	return handState(FaceUpCards(cards))
}

// FullScore scores every card as if it were face up.
func FullScore(cards []Card) HandState {
	return handState(cards)
}

func ScoreHand(cards []Card, visibleOnly bool) HandState {
	if visibleOnly {
		return VisibleScore(cards)
	}
	return FullScore(cards)
}
