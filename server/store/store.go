package store

import (
	"context"
	"embed"
	"errors"
	"sort"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

//go:embed schema.sql
var schema embed.FS

type DB struct{ *pgxpool.Pool }

func Open(dsn string) (*DB, error) {
	p, err := pgxpool.New(context.Background(), dsn)
	if err != nil {
		return nil, err
	}
	return &DB{p}, nil
}

func (db *DB) Close(ctx context.Context)      { db.Pool.Close() }
func (db *DB) Ping(ctx context.Context) error { return db.Pool.Ping(ctx) }

func Migrate(ctx context.Context, db *DB) error {
	sqlBytes, err := schema.ReadFile("schema.sql")
	if err != nil {
		return err
	}
	_, err = db.Exec(ctx, string(sqlBytes))
	return err
}

/* -----------------------------
   Lab runs
------------------------------*/

type LabRun struct {
	ID            string      `json:"id"`
	Hands         int         `json:"hands"`
	BaseBet       int         `json:"base_bet"`
	StartingChips int         `json:"starting_chips"`
	Seed          int64       `json:"seed"`
	Difficulties  []string    `json:"difficulties"`
	Phase         string      `json:"phase"`
	Error         *string     `json:"error,omitempty"`
	StartedAt     time.Time   `json:"started_at"`
	FinishedAt    *time.Time  `json:"finished_at,omitempty"`
	Results       []LabResult `json:"results"`
}

type LabResult struct {
	Difficulty  string  `json:"difficulty"`
	Label       string  `json:"label"`
	HandsPlayed int     `json:"hands_played"`
	Wins        int     `json:"wins"`
	Losses      int     `json:"losses"`
	Pushes      int     `json:"pushes"`
	Blackjacks  int     `json:"blackjacks"`
	Doubles     int     `json:"doubles"`
	Busts       int     `json:"busts"`
	TotalBet    int     `json:"total_bet"`
	TotalPayout int     `json:"total_payout"`
	WinRate     float64 `json:"win_rate"`
	EV          float64 `json:"ev"`
	PeakChips   int     `json:"peak_chips"`
	FinalChips  int     `json:"final_chips"`
}

// CreateLabRun inserts the run header; a repeated id is ignored.
func (db *DB) CreateLabRun(ctx context.Context, run LabRun) error {
	_, err := db.Exec(ctx, `
		INSERT INTO lab_runs(id, hands, base_bet, starting_chips, seed, difficulties, phase, started_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8)
		ON CONFLICT (id) DO NOTHING
	`, run.ID, run.Hands, run.BaseBet, run.StartingChips, run.Seed, run.Difficulties, run.Phase, run.StartedAt)
	return err
}

func (db *DB) InsertLabResult(ctx context.Context, runID string, r LabResult) error {
	return insertLabResult(ctx, db.Pool, runID, r)
}

// querier is satisfied by both the pool and a transaction.
type querier interface {
	Exec(ctx context.Context, sql string, arguments ...any) (pgconn.CommandTag, error)
}

func insertLabResult(ctx context.Context, q querier, runID string, r LabResult) error {
	_, err := q.Exec(ctx, `
		INSERT INTO lab_results(
			run_id, difficulty, label,
			hands_played, wins, losses, pushes, blackjacks, doubles, busts,
			total_bet, total_payout, win_rate, ev, peak_chips, final_chips
		) VALUES (
			$1,$2,$3,
			$4,$5,$6,$7,$8,$9,$10,
			$11,$12,$13,$14,$15,$16
		)
		ON CONFLICT (run_id, difficulty) DO UPDATE SET
			hands_played = EXCLUDED.hands_played,
			wins = EXCLUDED.wins,
			losses = EXCLUDED.losses,
			pushes = EXCLUDED.pushes,
			blackjacks = EXCLUDED.blackjacks,
			doubles = EXCLUDED.doubles,
			busts = EXCLUDED.busts,
			total_bet = EXCLUDED.total_bet,
			total_payout = EXCLUDED.total_payout,
			win_rate = EXCLUDED.win_rate,
			ev = EXCLUDED.ev,
			peak_chips = EXCLUDED.peak_chips,
			final_chips = EXCLUDED.final_chips
	`,
		runID, r.Difficulty, r.Label,
		r.HandsPlayed, r.Wins, r.Losses, r.Pushes, r.Blackjacks, r.Doubles, r.Busts,
		r.TotalBet, r.TotalPayout, r.WinRate, r.EV, r.PeakChips, r.FinalChips,
	)
	return err
}

// CompleteLabRun closes a run opened by CreateLabRun. It reports false when no
// such run row exists.
func (db *DB) CompleteLabRun(ctx context.Context, runID, phase string, runErr *string) (bool, error) {
	var e any
	if runErr != nil {
		if v := strings.TrimSpace(*runErr); v != "" {
			e = v
		}
	}
	tag, err := db.Exec(ctx, `
		UPDATE lab_runs
		   SET phase = $2,
		       error = $3,
		       finished_at = now()
		 WHERE id = $1
	`, runID, phase, e)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() > 0, nil
}

// SaveLabRun writes a finished run with all its results atomically.
func (db *DB) SaveLabRun(ctx context.Context, run LabRun) error {
	tx, err := db.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx) // safe if already committed

	var e any
	if run.Error != nil && strings.TrimSpace(*run.Error) != "" {
		e = strings.TrimSpace(*run.Error)
	}
	finished := time.Now()
	if run.FinishedAt != nil {
		finished = *run.FinishedAt
	}
	if _, err := tx.Exec(ctx, `
		INSERT INTO lab_runs(id, hands, base_bet, starting_chips, seed, difficulties, phase, error, started_at, finished_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10)
		ON CONFLICT (id) DO UPDATE SET
			phase = EXCLUDED.phase,
			error = EXCLUDED.error,
			finished_at = EXCLUDED.finished_at
	`, run.ID, run.Hands, run.BaseBet, run.StartingChips, run.Seed, run.Difficulties,
		run.Phase, e, run.StartedAt, finished); err != nil {
		return err
	}
	for _, r := range run.Results {
		if err := insertLabResult(ctx, tx, run.ID, r); err != nil {
			return err
		}
	}
	return tx.Commit(ctx)
}

func (db *DB) GetLabRun(ctx context.Context, id string) (LabRun, bool, error) {
	var r LabRun
	err := db.QueryRow(ctx, `
		SELECT id, hands, base_bet, starting_chips, seed, difficulties, phase, error, started_at, finished_at
		  FROM lab_runs WHERE id = $1
	`, id).Scan(&r.ID, &r.Hands, &r.BaseBet, &r.StartingChips, &r.Seed, &r.Difficulties,
		&r.Phase, &r.Error, &r.StartedAt, &r.FinishedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return LabRun{}, false, nil
		}
		return LabRun{}, false, err
	}
	runs := []LabRun{r}
	if err := db.attachResults(ctx, runs); err != nil {
		return LabRun{}, false, err
	}
	return runs[0], true, nil
}

// RecentLabRuns returns the newest runs with their results.
func (db *DB) RecentLabRuns(ctx context.Context, limit int) ([]LabRun, error) {
	if limit <= 0 {
		limit = 20
	}
	return db.labRuns(ctx, `ORDER BY started_at DESC LIMIT $1`, limit)
}

func (db *DB) labRuns(ctx context.Context, tail string, args ...any) ([]LabRun, error) {
	rows, err := db.Query(ctx, `
		SELECT id, hands, base_bet, starting_chips, seed, difficulties, phase, error, started_at, finished_at
		  FROM lab_runs `+tail, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []LabRun
	for rows.Next() {
		var r LabRun
		if err := rows.Scan(&r.ID, &r.Hands, &r.BaseBet, &r.StartingChips, &r.Seed, &r.Difficulties,
			&r.Phase, &r.Error, &r.StartedAt, &r.FinishedAt); err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	if err := db.attachResults(ctx, out); err != nil {
		return nil, err
	}
	return out, nil
}

func (db *DB) attachResults(ctx context.Context, runs []LabRun) error {
	if len(runs) == 0 {
		return nil
	}
	index := make(map[string]int, len(runs))
	ids := make([]string, 0, len(runs))
	for i, r := range runs {
		index[r.ID] = i
		ids = append(ids, r.ID)
	}
	rows, err := db.Query(ctx, `
		SELECT run_id, difficulty, label,
		       hands_played, wins, losses, pushes, blackjacks, doubles, busts,
		       total_bet, total_payout, win_rate, ev, peak_chips, final_chips
		  FROM lab_results
		 WHERE run_id = ANY($1)
		 ORDER BY id
	`, ids)
	if err != nil {
		return err
	}
	defer rows.Close()
	for rows.Next() {
		var runID string
		var x LabResult
		if err := rows.Scan(&runID, &x.Difficulty, &x.Label,
			&x.HandsPlayed, &x.Wins, &x.Losses, &x.Pushes, &x.Blackjacks, &x.Doubles, &x.Busts,
			&x.TotalBet, &x.TotalPayout, &x.WinRate, &x.EV, &x.PeakChips, &x.FinalChips); err != nil {
			return err
		}
		if i, ok := index[runID]; ok {
			runs[i].Results = append(runs[i].Results, x)
		}
	}
	return rows.Err()
}

// PolicyTotals sums every persisted batch per difficulty.
type PolicyTotals struct {
	Difficulty  string  `json:"difficulty"`
	Batches     int     `json:"batches"`
	HandsPlayed int     `json:"hands_played"`
	Wins        int     `json:"wins"`
	TotalBet    int64   `json:"total_bet"`
	TotalPayout int64   `json:"total_payout"`
	WinRate     float64 `json:"win_rate"`
	EV          float64 `json:"ev"`
}

func (db *DB) PolicyLeaderboard(ctx context.Context) ([]PolicyTotals, error) {
	rows, err := db.Query(ctx, `
		SELECT difficulty,
		       COUNT(*)::int,
		       SUM(hands_played)::int,
		       SUM(wins)::int,
		       SUM(total_bet)::bigint,
		       SUM(total_payout)::bigint
		  FROM lab_results
		 GROUP BY difficulty
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []PolicyTotals
	for rows.Next() {
		var p PolicyTotals
		if err := rows.Scan(&p.Difficulty, &p.Batches, &p.HandsPlayed, &p.Wins, &p.TotalBet, &p.TotalPayout); err != nil {
			return nil, err
		}
		if p.HandsPlayed > 0 {
			p.WinRate = float64(p.Wins) / float64(p.HandsPlayed)
		}
		if p.TotalBet > 0 {
			p.EV = float64(p.TotalPayout-p.TotalBet) / float64(p.TotalBet) * 100
		}
		out = append(out, p)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	sort.Slice(out, func(i, j int) bool { return out[i].EV > out[j].EV })
	return out, nil
}

/* -----------------------------
   Advice evaluations
------------------------------*/

type AdviceEval struct {
	Player       []string
	Dealer       []string
	SeenCount    int
	ShoeSize     int
	Chips        int
	Bet          int
	Recommended  string
	Basic        string
	EVs          map[string]float64
	RunningCount int
	TrueCount    float64
	Trials       int
	ComputeMS    *int
}

// InsertAdviceEval records one advisor answer and returns its id.
func (db *DB) InsertAdviceEval(ctx context.Context, a AdviceEval) (int64, error) {
	var ms any
	if a.ComputeMS != nil {
		ms = *a.ComputeMS
	}
	var id int64
	err := db.QueryRow(ctx, `
		INSERT INTO advice_eval(
			player, dealer, seen_count, shoe_size, chips, bet,
			recommended, basic, evs_json, running_count, true_count, trials, compute_ms
		) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13)
		RETURNING id
	`, a.Player, a.Dealer, a.SeenCount, a.ShoeSize, a.Chips, a.Bet,
		a.Recommended, a.Basic, a.EVs, a.RunningCount, a.TrueCount, a.Trials, ms).Scan(&id)
	return id, err
}

// AdviceAgreement is how often the simulated recommendation matched basic strategy.
func (db *DB) AdviceAgreement(ctx context.Context) (agree, total int, err error) {
	err = db.QueryRow(ctx, `
		SELECT COALESCE(SUM(CASE WHEN recommended = basic THEN 1 ELSE 0 END), 0)::int,
		       COUNT(*)::int
		  FROM advice_eval
	`).Scan(&agree, &total)
	return agree, total, err
}
