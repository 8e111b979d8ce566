package engine

import (
	"errors"
	"fmt"
	"math/rand"
)

var (
	ErrNotPlayerTurn = errors.New("round is not waiting for a player action")
	ErrCannotDouble  = errors.New("double not allowed")
)

type Phase string

const (
	PhasePlayer  Phase = "player"
	PhaseSettled Phase = "settled"
)

// Round is one hand of heads-up blackjack. Seen is the dealt history; every card
// is appended once it is visible.
type Round struct {
	Shoe    Shoe
	Player  []Card
	Dealer  []Card
	Seen    []Card
	Bet     int
	Doubled bool
	Actions int
	Phase   Phase
	Result  Result

	rng *rand.Rand
}

// Deal starts a round: player up, dealer up, player up, dealer down. A player
// blackjack settles at once; the hole card is exposed, so a dealer blackjack
// behind a ten or ace upcard turns it into a push.
func Deal(r *rand.Rand, shoe Shoe, seen []Card, bet int) *Round {
	rd := &Round{
		Shoe:  shoe,
		Seen:  append(make([]Card, 0, len(seen)+8), seen...),
		Bet:   bet,
		Phase: PhasePlayer,
		rng:   r,
	}
	rd.Player = append(rd.Player, rd.draw(true))
	rd.Dealer = append(rd.Dealer, rd.draw(true))
	rd.Player = append(rd.Player, rd.draw(true))
	rd.Dealer = append(rd.Dealer, rd.draw(false))

	if FullScore(rd.Player).IsBlackjack {
		rd.revealHole()
		rd.settle()
	}
	return rd
}

func (rd *Round) draw(faceUp bool) Card {
	var c Card
	c, rd.Shoe = rd.Shoe.Draw(rd.rng, faceUp)
	if faceUp {
		rd.Seen = append(rd.Seen, c)
	}
	return c
}

func (rd *Round) Done() bool { return rd.Phase == PhaseSettled }

// CanDouble allows a double only as the first decision.
func (rd *Round) CanDouble(chips int) bool {
	return rd.Phase == PhasePlayer && rd.Actions == 0 && CanDouble(rd.Player, chips, rd.Bet)
}

func (rd *Round) Legal(chips int) []ActionKind {
	if rd.Phase != PhasePlayer {
		return nil
	}
	out := []ActionKind{Hit, Stand}
	if rd.CanDouble(chips) {
		out = append(out, Double)
	}
	return out
}

// Hit draws one card. Busting settles the round and reaching 21 stands automatically.
func (rd *Round) Hit() error {
	if rd.Phase != PhasePlayer {
		return ErrNotPlayerTurn
	}
	rd.Player = append(rd.Player, rd.draw(true))
	rd.Actions++
	st := FullScore(rd.Player)
	switch {
	case st.IsBust:
		rd.revealHole()
		rd.settle()
	case st.Score == BlackjackTotal:
		rd.dealerTurn()
	}
	return nil
}

func (rd *Round) Stand() error {
	if rd.Phase != PhasePlayer {
		return ErrNotPlayerTurn
	}
	rd.Actions++
	rd.dealerTurn()
	return nil
}

// Double doubles the stake and draws exactly one card. chips is what the player
// has left after the original bet.
func (rd *Round) Double(chips int) error {
	if rd.Phase != PhasePlayer {
		return ErrNotPlayerTurn
	}
	if !rd.CanDouble(chips) {
		return ErrCannotDouble
	}
	rd.Bet *= 2
	rd.Doubled = true
	rd.Player = append(rd.Player, rd.draw(true))
	rd.Actions++
	if FullScore(rd.Player).IsBust {
		rd.revealHole()
		rd.settle()
		return nil
	}
	rd.dealerTurn()
	return nil
}

// Apply routes an action to Hit, Stand or Double.
func (rd *Round) Apply(a ActionKind, chips int) error {
	switch a {
	case Hit:
		return rd.Hit()
	case Stand:
		return rd.Stand()
	case Double:
		return rd.Double(chips)
	}
	return fmt.Errorf("unknown action %q", a)
}

func (rd *Round) dealerTurn() {
	rd.revealHole()
	for DealerShouldHit(rd.Dealer) {
		rd.Dealer = append(rd.Dealer, rd.draw(true))
	}
	rd.settle()
}

func (rd *Round) revealHole() {
	for i, c := range rd.Dealer {
		if c.FaceUp {
			continue
		}
		rd.Dealer[i] = c.WithFaceUp(true)
		rd.Seen = append(rd.Seen, rd.Dealer[i])
	}
}

func (rd *Round) settle() {
	rd.Result = DetermineResult(rd.Player, rd.Dealer)
	rd.Phase = PhaseSettled
}

// Payout is what the settled round returns to the player, stake included.
func (rd *Round) Payout() int {
	if rd.Phase != PhaseSettled {
		return 0
	}
	return Payout(rd.Result, rd.Bet)
}
