package store

import (
	"context"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testDB(t *testing.T) *DB {
	t.Helper()
	dsn := strings.TrimSpace(os.Getenv("DATABASE_URL"))
	if dsn == "" {
		t.Skip("DATABASE_URL not set")
	}
	db, err := Open(dsn)
	require.NoError(t, err)
	ctx := context.Background()
	require.NoError(t, db.Ping(ctx))
	require.NoError(t, Migrate(ctx, db))
	t.Cleanup(func() { db.Close(context.Background()) })
	return db
}

func TestLabRunRoundTrip(t *testing.T) {
	db := testDB(t)
	ctx := context.Background()

	id := uuid.NewString()
	run := LabRun{
		ID:            id,
		Hands:         500,
		BaseBet:       100,
		StartingChips: 10000,
		Seed:          42,
		Difficulties:  []string{"easy", "pro"},
		Phase:         "pending",
		StartedAt:     time.Now().UTC().Truncate(time.Millisecond),
	}
	require.NoError(t, db.CreateLabRun(ctx, run))
	require.NoError(t, db.CreateLabRun(ctx, run), "repeated id is ignored")

	res := LabResult{Difficulty: "pro", Label: "Basic Strategy", HandsPlayed: 500, Wins: 210, Losses: 245,
		Pushes: 45, Blackjacks: 22, Doubles: 51, Busts: 80, TotalBet: 55100, TotalPayout: 54000,
		WinRate: 0.42, EV: -2.0, PeakChips: 10900, FinalChips: 8900}
	require.NoError(t, db.InsertLabResult(ctx, id, res))
	ok, err := db.CompleteLabRun(ctx, id, "done", nil)
	require.NoError(t, err)
	require.True(t, ok)

	ok, err = db.CompleteLabRun(ctx, uuid.NewString(), "done", nil)
	require.NoError(t, err)
	assert.False(t, ok, "unknown run")

	got, ok, err := db.GetLabRun(ctx, id)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "done", got.Phase)
	assert.NotNil(t, got.FinishedAt)
	assert.Equal(t, []string{"easy", "pro"}, got.Difficulties)
	require.Len(t, got.Results, 1)
	assert.Equal(t, res, got.Results[0])

	_, ok, err = db.GetLabRun(ctx, uuid.NewString())
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestSaveLabRunAtomic(t *testing.T) {
	db := testDB(t)
	ctx := context.Background()

	msg := "lab run cancelled"
	run := LabRun{
		ID:            uuid.NewString(),
		Hands:         100,
		BaseBet:       100,
		StartingChips: 10000,
		Difficulties:  []string{"easy", "pro", "casino"},
		Phase:         "cancelled",
		Error:         &msg,
		StartedAt:     time.Now(),
		Results: []LabResult{
			{Difficulty: "easy", Label: "Random", HandsPlayed: 100, Wins: 30, Losses: 65, Pushes: 5},
		},
	}
	require.NoError(t, db.SaveLabRun(ctx, run))

	recent, err := db.RecentLabRuns(ctx, 50)
	require.NoError(t, err)
	var found *LabRun
	for i := range recent {
		if recent[i].ID == run.ID {
			found = &recent[i]
		}
	}
	require.NotNil(t, found)
	assert.Equal(t, "cancelled", found.Phase)
	require.NotNil(t, found.Error)
	assert.Equal(t, msg, *found.Error)
	assert.Len(t, found.Results, 1)

	totals, err := db.PolicyLeaderboard(ctx)
	require.NoError(t, err)
	assert.NotEmpty(t, totals)
}

func TestInsertAdviceEval(t *testing.T) {
	db := testDB(t)
	ctx := context.Background()

	ms := 12
	id, err := db.InsertAdviceEval(ctx, AdviceEval{
		Player:       []string{"5s", "6d"},
		Dealer:       []string{"6h", "??"},
		ShoeSize:     48,
		Chips:        900,
		Bet:          100,
		Recommended:  "double",
		Basic:        "double",
		EVs:          map[string]float64{"hit": 0.3, "stand": -0.16, "double": 0.6},
		RunningCount: 2,
		TrueCount:    2.2,
		Trials:       3000,
		ComputeMS:    &ms,
	})
	require.NoError(t, err)
	assert.Positive(t, id)

	agree, total, err := db.AdviceAgreement(ctx)
	require.NoError(t, err)
	assert.GreaterOrEqual(t, total, 1)
	assert.LessOrEqual(t, agree, total)
}
