package main

import (
	"context"
	"sync"

	"github.com/sirupsen/logrus"

	"blackjack-lab/server/lab"
	"blackjack-lab/server/store"
)

type runStore interface {
	CreateLabRun(ctx context.Context, run store.LabRun) error
	InsertLabResult(ctx context.Context, runID string, r store.LabResult) error
	CompleteLabRun(ctx context.Context, runID, phase string, runErr *string) (bool, error)
	SaveLabRun(ctx context.Context, run store.LabRun) error
}

// runRecorder writes a lab run while it progresses: the header at start, a row
// per finished batch, the phase at the end. A run that missed any of those
// writes is saved whole when it finishes. A nil recorder does nothing.
type runRecorder struct {
	db  runStore
	log logrus.FieldLogger

	mu     sync.Mutex
	missed map[string]bool
}

func newRunRecorder(db runStore, log logrus.FieldLogger) *runRecorder {
	return &runRecorder{db: db, log: log, missed: map[string]bool{}}
}

// attach hooks the recorder into every run the registry starts.
func (r *runRecorder) attach(g *lab.Registry) {
	if r == nil {
		return
	}
	g.OnStart = r.started
	g.OnBatch = r.batch
	g.OnFinish = r.finished
}

func (r *runRecorder) miss(id string, err error, what string) {
	r.mu.Lock()
	r.missed[id] = true
	r.mu.Unlock()
	r.log.WithError(err).WithField("run_id", id).Warn(what + " failed, saving the whole run at the end")
}

func (r *runRecorder) started(ctx context.Context, s lab.Snapshot) {
	if r == nil {
		return
	}
	head := labRunRecord(s)
	head.Results = nil
	if err := r.db.CreateLabRun(ctx, head); err != nil {
		r.miss(s.ID, err, "lab_runs insert")
	}
}

func (r *runRecorder) batch(ctx context.Context, runID string, st lab.Stats) {
	if r == nil {
		return
	}
	if err := r.db.InsertLabResult(ctx, runID, labResultRecord(st)); err != nil {
		r.miss(runID, err, "lab_results insert")
	}
}

func (r *runRecorder) finished(ctx context.Context, s lab.Snapshot) {
	if r == nil {
		return
	}
	r.mu.Lock()
	missed := r.missed[s.ID]
	delete(r.missed, s.ID)
	r.mu.Unlock()

	log := r.log.WithFields(logrus.Fields{"run_id": s.ID, "results": len(s.Results)})
	if !missed {
		var runErr *string
		if s.Error != "" {
			runErr = &s.Error
		}
		ok, err := r.db.CompleteLabRun(ctx, s.ID, string(s.Phase), runErr)
		if err == nil && ok {
			log.Info("lab run saved")
			return
		}
		if err != nil {
			log.WithError(err).Warn("lab run completion failed")
		}
	}
	if err := r.db.SaveLabRun(ctx, labRunRecord(s)); err != nil {
		log.WithError(err).Warn("DB disabled for this run (save failed)")
		return
	}
	log.Info("lab run saved")
}

func labRunRecord(s lab.Snapshot) store.LabRun {
	run := store.LabRun{
		ID:            s.ID,
		Hands:         s.Config.Hands,
		BaseBet:       s.Config.BaseBet,
		StartingChips: s.Config.StartingChips,
		Seed:          s.Config.Seed,
		Phase:         string(s.Phase),
		StartedAt:     s.StartedAt,
		FinishedAt:    s.FinishedAt,
	}
	for _, d := range s.Config.Difficulties {
		run.Difficulties = append(run.Difficulties, string(d))
	}
	if s.Error != "" {
		e := s.Error
		run.Error = &e
	}
	for _, st := range s.Results {
		run.Results = append(run.Results, labResultRecord(st))
	}
	return run
}

func labResultRecord(st lab.Stats) store.LabResult {
	return store.LabResult{
		Difficulty:  string(st.Difficulty),
		Label:       st.Label,
		HandsPlayed: st.HandsPlayed,
		Wins:        st.Wins,
		Losses:      st.Losses,
		Pushes:      st.Pushes,
		Blackjacks:  st.Blackjacks,
		Doubles:     st.Doubles,
		Busts:       st.Busts,
		TotalBet:    st.TotalBet,
		TotalPayout: st.TotalPayout,
		WinRate:     st.WinRate,
		EV:          st.EV,
		PeakChips:   st.PeakChips,
		FinalChips:  st.FinalChips,
	}
}
