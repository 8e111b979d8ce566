package judge

import (
	"context"
	"math/rand"

	"golang.org/x/sync/errgroup"

	"blackjack-lab/server/engine"
)

const (
	DefaultTrials  = 3000
	DefaultWorkers = 4

	// minTrialDeck is the smallest exclusion-filtered deck a trial may use.
	minTrialDeck = 10
)

// SimulationResult holds outcome frequencies for one candidate action. Bust is a
// subset of Lose.
type SimulationResult struct {
	Action   engine.ActionKind `json:"action"`
	WinRate  float64           `json:"win_rate"`
	LoseRate float64           `json:"lose_rate"`
	PushRate float64           `json:"push_rate"`
	BustRate float64           `json:"bust_rate"`
	Trials   int               `json:"trials"`
}

// EV is win minus lose per unit of the original bet; a double risks two units.
func (r SimulationResult) EV() float64 {
	ev := r.WinRate - r.LoseRate
	if r.Action == engine.Double {
		ev *= 2
	}
	return ev
}

// Spot is what the player can see: their hand, the dealer hand (face-down cards
// are unknown) and the dealt history. Slices are only read.
type Spot struct {
	Player []engine.Card
	Dealer []engine.Card
	Seen   []engine.Card
}

// Simulator estimates action outcomes by Monte Carlo. Zero values pick the defaults.
type Simulator struct {
	Trials  int
	Workers int
}

func (s Simulator) trials() int {
	if s.Trials == 0 {
		return DefaultTrials
	}
	return s.Trials
}

func (s Simulator) workers(trials int) int {
	w := s.Workers
	if w <= 0 {
		w = DefaultWorkers
	}
	if w > trials {
		w = trials
	}
	return w
}

func (s Simulator) SimulateHit(ctx context.Context, r *rand.Rand, spot Spot) (SimulationResult, error) {
	return s.Simulate(ctx, r, spot, engine.Hit)
}

func (s Simulator) SimulateStand(ctx context.Context, r *rand.Rand, spot Spot) (SimulationResult, error) {
	return s.Simulate(ctx, r, spot, engine.Stand)
}

// SimulateDouble shares the hit mechanics; legality is the caller's concern.
func (s Simulator) SimulateDouble(ctx context.Context, r *rand.Rand, spot Spot) (SimulationResult, error) {
	return s.Simulate(ctx, r, spot, engine.Double)
}

type tally struct{ win, lose, push, bust int }

func (t *tally) add(o tally) {
	t.win += o.win
	t.lose += o.lose
	t.push += o.push
	t.bust += o.bust
}

// Simulate runs the trials for one action split across worker goroutines. Each
// worker gets a private source seeded from r, so a seed and worker count always
// reproduce the same result. A table that leaves no card to draw runs no trials.
func (s Simulator) Simulate(ctx context.Context, r *rand.Rand, spot Spot, action engine.ActionKind) (SimulationResult, error) {
	trials := s.trials()
	res := SimulationResult{Action: action}
	if trials <= 0 {
		return res, nil
	}

	deck := trialDeck(spot)
	if len(deck) == 0 {
		return res, nil
	}
	workers := s.workers(trials)
	seeds := make([]int64, workers)
	for i := range seeds {
		seeds[i] = r.Int63()
	}

	parts := make([]tally, workers)
	g, ctx := errgroup.WithContext(ctx)
	for w := 0; w < workers; w++ {
		w := w
		n := trials / workers
		if w < trials%workers {
			n++
		}
		g.Go(func() error {
			wr := rand.New(rand.NewSource(seeds[w]))
			buf := make([]engine.Card, len(deck))
			var t tally
			for i := 0; i < n; i++ {
				if i%256 == 0 {
					if err := ctx.Err(); err != nil {
						return err
					}
				}
				copy(buf, deck)
				engine.Shuffle(wr, buf)
				t.add(runTrial(spot, buf, action))
			}
			parts[w] = t
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return res, err
	}

	var sum tally
	for _, p := range parts {
		sum.add(p)
	}
	f := float64(trials)
	res.WinRate = float64(sum.win) / f
	res.LoseRate = float64(sum.lose) / f
	res.PushRate = float64(sum.push) / f
	res.BustRate = float64(sum.bust) / f
	res.Trials = trials
	return res, nil
}

// trialDeck is the full deck minus every card the player knows about. When that
// leaves too few cards it only filters against the cards on the table.
func trialDeck(spot Spot) []engine.Card {
	table := engine.Union(spot.Player, engine.FaceUpCards(spot.Dealer))
	deck := without(engine.NewDeck(), engine.Union(spot.Seen, table))
	if len(deck) < minTrialDeck {
		deck = without(engine.NewDeck(), table)
	}
	return deck
}

func without(deck, known []engine.Card) []engine.Card {
	skip := make(map[engine.CardKey]struct{}, len(known))
	for _, c := range known {
		skip[c.Key()] = struct{}{}
	}
	out := deck[:0]
	for _, c := range deck {
		if _, ok := skip[c.Key()]; !ok {
			out = append(out, c)
		}
	}
	return out
}

// runTrial plays one hand out of a shuffled trial deck. Face-down dealer cards
// are replaced by draws since their identity is unknown.
func runTrial(spot Spot, deck []engine.Card, action engine.ActionKind) tally {
	next := 0
	draw := func() engine.Card {
		if next >= len(deck) {
			// wraps only on decks too small to finish a hand
			next = 0
		}
		c := deck[next]
		next++
		return c
	}

	var hand [12]engine.Card
	player := append(hand[:0], spot.Player...)
	if action != engine.Stand {
		player = append(player, draw())
	}
	ps := engine.FullScore(player)
	if ps.IsBust {
		return tally{lose: 1, bust: 1}
	}

	var dhand [12]engine.Card
	dealer := dhand[:0]
	for _, c := range spot.Dealer {
		if !c.FaceUp {
			c = draw()
		}
		dealer = append(dealer, c)
	}
	for engine.DealerShouldHit(dealer) {
		dealer = append(dealer, draw())
	}
	ds := engine.FullScore(dealer)

	switch {
	case ds.IsBust, ps.Score > ds.Score:
		return tally{win: 1}
	case ps.Score < ds.Score:
		return tally{lose: 1}
	default:
		return tally{push: 1}
	}
}
