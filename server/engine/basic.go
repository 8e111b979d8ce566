package engine

// BasicStrategy is the count-free action table. dealerUp is the dealer's visible
// score, so an ace shows as 11.
func BasicStrategy(total int, soft bool, dealerUp int, canDouble bool) ActionKind {
	if soft {
		return softStrategy(total, dealerUp, canDouble)
	}
	switch {
	case total >= 17:
		return Stand
	case total >= 13:
		if dealerUp >= 7 {
			return Hit
		}
		return Stand
	case total == 12:
		if dealerUp >= 4 && dealerUp <= 6 {
			return Stand
		}
		return Hit
	case total == 11:
		if canDouble {
			return Double
		}
		return Hit
	case total == 10:
		if dealerUp <= 9 && canDouble {
			return Double
		}
		return Hit
	case total == 9:
		if dealerUp >= 3 && dealerUp <= 6 && canDouble {
			return Double
		}
		return Hit
	}
	return Hit
}

func softStrategy(total, dealerUp int, canDouble bool) ActionKind {
	between := func(lo, hi int) bool { return dealerUp >= lo && dealerUp <= hi }
	switch {
	case total >= 19:
		return Stand
	case total == 18:
		if dealerUp >= 9 {
			return Hit
		}
		if between(3, 6) && canDouble {
			return Double
		}
		return Stand
	case total == 17:
		if between(3, 6) && canDouble {
			return Double
		}
	case total >= 15:
		if between(4, 6) && canDouble {
			return Double
		}
	case total >= 13:
		if between(5, 6) && canDouble {
			return Double
		}
	}
	return Hit
}
