package judge

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"sync"

	"blackjack-lab/server/engine"
)

var ErrBadTrials = errors.New("trials must not be negative")

type AdviceInput struct {
	Player   []engine.Card
	Dealer   []engine.Card
	Seen     []engine.Card
	ShoeSize int
	Chips    int
	Bet      int
	Trials   int // overrides the simulator's trial count when non-zero
}

type StrategyAdvice struct {
	Recommended   engine.ActionKind             `json:"recommended"`
	Basic         engine.ActionKind             `json:"basic"`
	CanDouble     bool                          `json:"can_double"`
	Hit           SimulationResult              `json:"hit"`
	Stand         SimulationResult              `json:"stand"`
	Double        *SimulationResult             `json:"double,omitempty"`
	EV            map[engine.ActionKind]float64 `json:"ev"`
	RunningCount  int                           `json:"running_count"`
	TrueCount     float64                       `json:"true_count"`
	DeckAdvantage engine.Advantage              `json:"deck_advantage"`
}

// Advisor is safe for concurrent use; each request gets its own source drawn
// from the advisor's seeded one.
type Advisor struct {
	Sim Simulator

	mu  sync.Mutex
	rng *rand.Rand
}

func NewAdvisor(sim Simulator, seed int64) *Advisor {
	return &Advisor{Sim: sim, rng: engine.NewRand(seed)}
}

func (a *Advisor) source() *rand.Rand {
	a.mu.Lock()
	defer a.mu.Unlock()
	return rand.New(rand.NewSource(a.rng.Int63()))
}

func (a *Advisor) Advise(ctx context.Context, in AdviceInput) (StrategyAdvice, error) {
	return advise(ctx, a.Sim, a.source(), in)
}

// GetStrategyAdvice advises from the live shoe. Everything not in the shoe and
// not on the table is treated as already dealt.
func GetStrategyAdvice(ctx context.Context, r *rand.Rand, player, dealer []engine.Card, shoe engine.Shoe, chips, bet int) (StrategyAdvice, error) {
	seen := without(engine.NewDeck(), engine.Union(shoe, player, dealer))
	return advise(ctx, Simulator{}, r, AdviceInput{
		Player:   player,
		Dealer:   dealer,
		Seen:     seen,
		ShoeSize: shoe.Len(),
		Chips:    chips,
		Bet:      bet,
	})
}

func advise(ctx context.Context, sim Simulator, r *rand.Rand, in AdviceInput) (StrategyAdvice, error) {
	if in.Trials < 0 {
		return StrategyAdvice{}, fmt.Errorf("%w: got %d", ErrBadTrials, in.Trials)
	}
	if in.Trials != 0 {
		sim.Trials = in.Trials
	}
	counted := engine.Union(in.Seen, in.Player, engine.FaceUpCards(in.Dealer))
	rc := engine.RunningCount(counted)
	tc := engine.TrueCount(rc, engine.RemainingDecks(in.ShoeSize))

	ps := engine.FullScore(in.Player)
	up := engine.VisibleScore(in.Dealer).Score
	canDbl := engine.CanDouble(in.Player, in.Chips, in.Bet)

	adv := StrategyAdvice{
		Basic:         engine.BasicStrategy(ps.Score, ps.IsSoft, up, canDbl),
		CanDouble:     canDbl,
		RunningCount:  rc,
		TrueCount:     tc,
		DeckAdvantage: engine.DeckAdvantage(tc),
		EV:            map[engine.ActionKind]float64{},
	}

	spot := Spot{Player: in.Player, Dealer: in.Dealer, Seen: in.Seen}
	var err error
	if adv.Hit, err = sim.SimulateHit(ctx, r, spot); err != nil {
		return StrategyAdvice{}, err
	}
	if adv.Stand, err = sim.SimulateStand(ctx, r, spot); err != nil {
		return StrategyAdvice{}, err
	}
	if canDbl {
		d, err := sim.SimulateDouble(ctx, r, spot)
		if err != nil {
			return StrategyAdvice{}, err
		}
		adv.Double = &d
	}

	adv.EV[engine.Hit] = adv.Hit.EV()
	adv.EV[engine.Stand] = adv.Stand.EV()
	if adv.Double != nil {
		adv.EV[engine.Double] = adv.Double.EV()
	}
	adv.Recommended = pick(adv.EV)
	if adv.Hit.Trials == 0 {
		// nothing was simulated; the table is the only signal
		adv.Recommended = adv.Basic
	}
	return adv, nil
}

// pick returns the highest-EV action. Exact ties go double, then hit, then stand.
func pick(ev map[engine.ActionKind]float64) engine.ActionKind {
	best := engine.Stand
	for _, a := range []engine.ActionKind{engine.Hit, engine.Double} {
		v, ok := ev[a]
		if ok && v >= ev[best] {
			best = a
		}
	}
	return best
}
