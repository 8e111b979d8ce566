package agent

import (
	"errors"
	"fmt"
	"math/rand"
	"strings"

	"blackjack-lab/server/engine"
)

var ErrUnknownDifficulty = errors.New("unknown difficulty")

type Difficulty string

const (
	Easy   Difficulty = "easy"
	Pro    Difficulty = "pro"
	Casino Difficulty = "casino"
)

var labels = map[Difficulty]string{
	Easy:   "Random",
	Pro:    "Basic Strategy",
	Casino: "Card Counting",
}

// Difficulties lists every tier in display order.
func Difficulties() []Difficulty { return []Difficulty{Easy, Pro, Casino} }

func ParseDifficulty(s string) (Difficulty, error) {
	d := Difficulty(strings.ToLower(strings.TrimSpace(s)))
	if _, ok := labels[d]; !ok {
		return "", fmt.Errorf("%w %q", ErrUnknownDifficulty, s)
	}
	return d, nil
}

func (d Difficulty) Label() string { return labels[d] }

// Policy picks one action per decision. Implementations never return an
// action that is not in o.Legal.
type Policy interface {
	Decide(o Observation) engine.ActionKind
	Name() string
	Difficulty() Difficulty
}

// New builds the policy for a tier. rng is only consumed by the easy tier.
func New(d Difficulty, rng *rand.Rand) (Policy, error) {
	switch d {
	case Easy:
		if rng == nil {
			rng = engine.NewRand(0)
		}
		return &RandomPolicy{rng: rng}, nil
	case Pro:
		return BasicPolicy{}, nil
	case Casino:
		return CountingPolicy{}, nil
	}
	return nil, fmt.Errorf("%w %q", ErrUnknownDifficulty, d)
}

// GetAction decides a single spot without keeping a policy around.
func GetAction(d Difficulty, player, dealer, seen []engine.Card, shoeSize, chips, bet int, rng *rand.Rand) (engine.ActionKind, error) {
	p, err := New(d, rng)
	if err != nil {
		return "", err
	}
	return p.Decide(BuildObservation(player, dealer, seen, shoeSize, chips, bet)), nil
}

// RandomPolicy doubles 10% of the time when it can, otherwise flips a coin.
type RandomPolicy struct {
	rng *rand.Rand
}

func NewRandomPolicy(rng *rand.Rand) *RandomPolicy { return &RandomPolicy{rng: rng} }

func (p *RandomPolicy) Name() string           { return Easy.Label() }
func (p *RandomPolicy) Difficulty() Difficulty { return Easy }

func (p *RandomPolicy) Decide(o Observation) engine.ActionKind {
	roll := p.rng.Float64()
	if o.CanDouble() && roll < 0.1 {
		return engine.Double
	}
	if roll < 0.5 {
		return engine.Hit
	}
	return engine.Stand
}

type BasicPolicy struct{}

func (BasicPolicy) Name() string           { return Pro.Label() }
func (BasicPolicy) Difficulty() Difficulty { return Pro }

func (BasicPolicy) Decide(o Observation) engine.ActionKind {
	return engine.BasicStrategy(o.PlayerScore, o.Soft, o.DealerUp, o.CanDouble())
}

// CountingPolicy plays basic strategy with a short list of true-count
// deviations on hard totals.
type CountingPolicy struct{}

func (CountingPolicy) Name() string           { return Casino.Label() }
func (CountingPolicy) Difficulty() Difficulty { return Casino }

func (CountingPolicy) Decide(o Observation) engine.ActionKind {
	base := engine.BasicStrategy(o.PlayerScore, o.Soft, o.DealerUp, o.CanDouble())
	if o.Soft {
		return base
	}
	tc, up, dbl := o.TrueCount, o.DealerUp, o.CanDouble()
	standIf := func(ok bool) engine.ActionKind {
		if ok {
			return engine.Stand
		}
		return engine.Hit
	}

	switch {
	case o.PlayerScore == 16 && up == 10:
		return standIf(tc >= 0)
	case o.PlayerScore == 15 && up == 10:
		return standIf(tc >= 4)
	case o.PlayerScore == 12 && up == 3:
		return standIf(tc >= 2)
	case o.PlayerScore == 12 && up == 2:
		return standIf(tc >= 3)
	case o.PlayerScore == 11 && dbl:
		return engine.Double
	case o.PlayerScore == 10 && (up == 10 || up == 11) && dbl:
		if tc >= 4 {
			return engine.Double
		}
		return engine.Hit
	}
	return base
}
