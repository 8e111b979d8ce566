package lab

import (
	"context"
	"fmt"

	"blackjack-lab/server/agent"
	"blackjack-lab/server/engine"
)

// bankrollPoints caps the sampled bankroll curve kept in Stats.
const bankrollPoints = 100

// RunBatch plays cfg.Hands hands of one policy against a persistent shoe. The
// shoe and the dealt history reset once fewer than ReshuffleBelow cards remain.
// The batch is not interrupted once started; ctx is checked before dealing.
func RunBatch(ctx context.Context, cfg Config) (Stats, error) {
	cfg = cfg.withDefaults()
	if err := cfg.Validate(); err != nil {
		return Stats{}, err
	}
	if err := ctx.Err(); err != nil {
		return Stats{}, fmt.Errorf("%w: %v", ErrCancelled, err)
	}

	r := engine.NewRand(cfg.Seed)
	policy, err := agent.New(cfg.Difficulty, r)
	if err != nil {
		return Stats{}, err
	}

	st := Stats{
		Difficulty: cfg.Difficulty,
		Label:      cfg.Difficulty.Label(),
		StartChips: cfg.StartingChips,
		PeakChips:  cfg.StartingChips,
	}
	every := cfg.Hands / bankrollPoints
	if every < 1 {
		every = 1
	}

	shoe := engine.NewShoe(r)
	var seen []engine.Card
	chips := cfg.StartingChips
	returns := make([]float64, 0, cfg.Hands)

	for i := 0; i < cfg.Hands; i++ {
		bet := min(cfg.BaseBet, chips)
		if bet <= 0 {
			break
		}
		if shoe.Len() < cfg.ReshuffleBelow {
			shoe, seen = engine.NewShoe(r), nil
		}

		chips -= bet
		rd := engine.Deal(r, shoe, seen, bet)
		for !rd.Done() {
			a := policy.Decide(agent.ObserveRound(rd, chips))
			if a == engine.Double && !rd.CanDouble(chips) {
				a = engine.Hit
			}
			if err := rd.Apply(a, chips); err != nil {
				return st, fmt.Errorf("hand %d: %w", i+1, err)
			}
			if a == engine.Double {
				chips -= bet
				st.Doubles++
			}
		}
		shoe, seen = rd.Shoe, rd.Seen

		payout := rd.Payout()
		chips += payout
		st.TotalBet += rd.Bet
		st.TotalPayout += payout
		st.PeakChips = max(st.PeakChips, chips)
		returns = append(returns, float64(payout-rd.Bet)/float64(rd.Bet)*100)

		switch {
		case rd.Result.IsWin():
			st.Wins++
		case rd.Result == engine.Push:
			st.Pushes++
		default:
			st.Losses++
		}
		if rd.Result == engine.PlayerBlackjack {
			st.Blackjacks++
		}
		if rd.Result == engine.PlayerBust {
			st.Busts++
		}
		if (i+1)%every == 0 {
			st.Bankroll = append(st.Bankroll, chips)
		}
	}

	st.FinalChips = chips
	st.finish(r, returns)
	return st, nil
}

// RunBatchSimulation runs a batch with a time-based seed.
func RunBatchSimulation(d agent.Difficulty, hands, baseBet, startingChips int) (Stats, error) {
	return RunBatch(context.Background(), Config{
		Difficulty:    d,
		Hands:         hands,
		BaseBet:       baseBet,
		StartingChips: startingChips,
	})
}
