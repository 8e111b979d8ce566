package agent

import (
	"errors"
	"fmt"

	"blackjack-lab/server/engine"
)

var ErrIllegalAction = errors.New("illegal action")

// Observation is the read-only view a policy decides from. Seen is the dealt
// history owned by the caller; policies never modify it.
type Observation struct {
	Player []engine.Card `json:"-"`
	Dealer []engine.Card `json:"-"`
	Seen   []engine.Card `json:"-"`

	PlayerCards  []string `json:"player"`
	DealerCards  []string `json:"dealer"` // hole card shows as "??"
	PlayerScore  int      `json:"player_score"`
	Soft         bool     `json:"soft"`
	DealerUp     int      `json:"dealer_up"`
	ShoeSize     int      `json:"shoe_size"`
	Chips        int      `json:"chips"`
	Bet          int      `json:"bet"`
	RunningCount int      `json:"running_count"`
	TrueCount    float64  `json:"true_count"`
	Legal        []string `json:"legal_actions"`
	HistoryLen   int      `json:"history_len"`
}

type ActionOut struct {
	Action     engine.ActionKind `json:"action"`
	Difficulty Difficulty        `json:"difficulty"`
	Label      string            `json:"label"`
}

// BuildObservation scores the hands and counts the history. chips is what the
// player holds after the current bet was placed.
func BuildObservation(player, dealer, seen []engine.Card, shoeSize, chips, bet int) Observation {
	ps := engine.FullScore(player)
	rc := engine.RunningCount(seen)

	legal := []string{string(engine.Hit), string(engine.Stand)}
	if engine.CanDouble(player, chips, bet) {
		legal = append(legal, string(engine.Double))
	}

	return Observation{
		Player:       player,
		Dealer:       dealer,
		Seen:         seen,
		PlayerCards:  engine.CardsToStr(player),
		DealerCards:  engine.CardsToStr(dealer),
		PlayerScore:  ps.Score,
		Soft:         ps.IsSoft,
		DealerUp:     engine.VisibleScore(dealer).Score,
		ShoeSize:     shoeSize,
		Chips:        chips,
		Bet:          bet,
		RunningCount: rc,
		TrueCount:    engine.TrueCount(rc, engine.RemainingDecks(shoeSize)),
		Legal:        legal,
		HistoryLen:   len(seen),
	}
}

// ObserveRound builds the observation for the player to act in rd.
func ObserveRound(rd *engine.Round, chips int) Observation {
	o := BuildObservation(rd.Player, rd.Dealer, rd.Seen, rd.Shoe.Len(), chips, rd.Bet)
	o.Legal = o.Legal[:0]
	for _, k := range rd.Legal(chips) {
		o.Legal = append(o.Legal, string(k))
	}
	return o
}

func (o Observation) CanDouble() bool { return o.isLegal(engine.Double) }

func (o Observation) isLegal(a engine.ActionKind) bool {
	for _, la := range o.Legal {
		if la == string(a) {
			return true
		}
	}
	return false
}

// Validate checks a chosen action against the observation.
func Validate(o Observation, a ActionOut) error {
	if !o.isLegal(a.Action) {
		return fmt.Errorf("%w %q (legals: %v)", ErrIllegalAction, a.Action, o.Legal)
	}
	return nil
}
