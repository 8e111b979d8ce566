package lab

import (
	"math"
	"math/rand"
	"sort"

	"blackjack-lab/server/agent"
)

// Stats aggregates one policy's batch.
type Stats struct {
	Difficulty  agent.Difficulty `json:"difficulty"`
	Label       string           `json:"label"`
	HandsPlayed int              `json:"hands_played"`
	Wins        int              `json:"wins"`
	Losses      int              `json:"losses"`
	Pushes      int              `json:"pushes"`
	Blackjacks  int              `json:"blackjacks"`
	Doubles     int              `json:"doubles"`
	Busts       int              `json:"busts"`
	TotalBet    int              `json:"total_bet"`
	TotalPayout int              `json:"total_payout"`
	WinRate     float64          `json:"win_rate"`
	WinLow      float64          `json:"win_low"`
	WinHigh     float64          `json:"win_high"`
	EV          float64          `json:"ev"` // percent of amount wagered
	EVLow       float64          `json:"ev_low"`
	EVHigh      float64          `json:"ev_high"`
	StartChips  int              `json:"starting_chips"`
	PeakChips   int              `json:"peak_chips"`
	FinalChips  int              `json:"final_chips"`
	Bankroll    []int            `json:"bankroll,omitempty"`
}

// Net is what the batch won or lost overall.
func (s Stats) Net() int { return s.TotalPayout - s.TotalBet }

func (s *Stats) finish(r *rand.Rand, returns []float64) {
	s.HandsPlayed = s.Wins + s.Losses + s.Pushes
	if s.HandsPlayed > 0 {
		s.WinRate = float64(s.Wins) / float64(s.HandsPlayed)
		s.WinLow, s.WinHigh = WilsonCI95(s.Wins, 0, s.HandsPlayed)
	}
	if s.TotalBet > 0 {
		s.EV = float64(s.TotalPayout-s.TotalBet) / float64(s.TotalBet) * 100
	}
	s.EVLow, s.EVHigh = BootstrapCI95(r, returns, bootstrapRounds)
}

const bootstrapRounds = 400

// WilsonCI95 for a Bernoulli rate; ties count as half a success.
func WilsonCI95(wins, ties, total int) (low, hi float64) {
	if total <= 0 {
		return 0, 1
	}
	z := 1.96
	n := float64(total)
	p := (float64(wins) + 0.5*float64(ties)) / n
	den := 1 + (z*z)/n
	center := p + (z*z)/(2*n)
	half := z * math.Sqrt((p*(1-p))/n+(z*z)/(4*n*n))
	return (center - half) / den, (center + half) / den
}

// BootstrapCI95 for the mean of vals (e.g. per-hand return in percent).
func BootstrapCI95(r *rand.Rand, vals []float64, B int) (low, hi float64) {
	n := len(vals)
	if n == 0 || B <= 1 {
		return 0, 0
	}
	res := make([]float64, B)
	for b := 0; b < B; b++ {
		sum := 0.0
		for i := 0; i < n; i++ {
			sum += vals[r.Intn(n)]
		}
		res[b] = sum / float64(n)
	}
	sort.Float64s(res)
	l := int(0.025 * float64(B-1))
	h := int(0.975 * float64(B-1))
	return res[l], res[h]
}
