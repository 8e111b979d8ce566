package lab

import (
	"errors"
	"fmt"

	"blackjack-lab/server/agent"
)

const (
	DefaultHands          = 1000
	DefaultBaseBet        = 100
	DefaultStartingChips  = 10000
	DefaultReshuffleBelow = 20
)

var ErrBadConfig = errors.New("bad lab config")

// Config describes one batch: a single policy over a number of hands.
type Config struct {
	Difficulty     agent.Difficulty `json:"difficulty"`
	Hands          int              `json:"hands"`
	BaseBet        int              `json:"base_bet"`
	StartingChips  int              `json:"starting_chips"`
	ReshuffleBelow int              `json:"reshuffle_below"`
	Seed           int64            `json:"seed"`
}

func (c Config) withDefaults() Config {
	if c.BaseBet == 0 {
		c.BaseBet = DefaultBaseBet
	}
	if c.StartingChips == 0 {
		c.StartingChips = DefaultStartingChips
	}
	if c.ReshuffleBelow == 0 {
		c.ReshuffleBelow = DefaultReshuffleBelow
	}
	return c
}

func (c Config) Validate() error {
	if _, err := agent.ParseDifficulty(string(c.Difficulty)); err != nil {
		return err
	}
	switch {
	case c.Hands <= 0:
		return fmt.Errorf("%w: hands must be positive, got %d", ErrBadConfig, c.Hands)
	case c.BaseBet <= 0:
		return fmt.Errorf("%w: base bet must be positive, got %d", ErrBadConfig, c.BaseBet)
	case c.StartingChips < 0:
		return fmt.Errorf("%w: starting chips must not be negative, got %d", ErrBadConfig, c.StartingChips)
	case c.ReshuffleBelow < 0 || c.ReshuffleBelow > 52:
		return fmt.Errorf("%w: reshuffle threshold %d out of range", ErrBadConfig, c.ReshuffleBelow)
	}
	return nil
}

// RunConfig is a lab run: the same table settings played by several policies in turn.
type RunConfig struct {
	Difficulties  []agent.Difficulty `json:"difficulties"`
	Hands         int                `json:"hands"`
	BaseBet       int                `json:"base_bet"`
	StartingChips int                `json:"starting_chips"`
	Seed          int64              `json:"seed"`
}

func (rc RunConfig) withDefaults() RunConfig {
	if len(rc.Difficulties) == 0 {
		rc.Difficulties = agent.Difficulties()
	}
	if rc.Hands == 0 {
		rc.Hands = DefaultHands
	}
	return rc
}

func (rc RunConfig) Validate() error {
	seen := map[agent.Difficulty]bool{}
	for _, d := range rc.Difficulties {
		if seen[d] {
			return fmt.Errorf("%w: difficulty %q listed twice", ErrBadConfig, d)
		}
		seen[d] = true
		if err := rc.batch(d, 0).Validate(); err != nil {
			return err
		}
	}
	return nil
}

// batch is the Config for the i-th policy of the run. A fixed run seed gives
// every policy its own fixed seed.
func (rc RunConfig) batch(d agent.Difficulty, i int) Config {
	seed := rc.Seed
	if seed != 0 {
		seed += int64(i)
	}
	return Config{
		Difficulty:    d,
		Hands:         rc.Hands,
		BaseBet:       rc.BaseBet,
		StartingChips: rc.StartingChips,
		Seed:          seed,
	}.withDefaults()
}
