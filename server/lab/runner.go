package lab

import (
	"context"
	"errors"
	"math"
	"sync"
	"sync/atomic"
	"time"

	"github.com/sirupsen/logrus"

	"blackjack-lab/server/agent"
)

var ErrCancelled = errors.New("lab run cancelled")

type Phase string

const (
	PhasePending   Phase = "pending"
	PhaseRunning   Phase = "running"
	PhaseDone      Phase = "done"
	PhaseCancelled Phase = "cancelled"
)

func (p Phase) Finished() bool { return p == PhaseDone || p == PhaseCancelled }

// Progress is published after every state change of a run.
type Progress struct {
	RunID     string `json:"run_id"`
	Phase     Phase  `json:"phase"`
	Percent   int    `json:"percent"`
	Completed int    `json:"completed"`
	Total     int    `json:"total"`
	Latest    *Stats `json:"latest,omitempty"`
}

type Snapshot struct {
	ID         string             `json:"id"`
	Phase      Phase              `json:"phase"`
	Progress   int                `json:"progress"`
	Config     RunConfig          `json:"config"`
	Pending    []agent.Difficulty `json:"pending"`
	Results    []Stats            `json:"results"`
	Error      string             `json:"error,omitempty"`
	StartedAt  time.Time          `json:"started_at"`
	FinishedAt *time.Time         `json:"finished_at,omitempty"`
}

// Runner works through a queue of policies one batch per Step. Cancellation is
// only observed between batches.
type Runner struct {
	ID  string
	cfg RunConfig
	log logrus.FieldLogger

	mu       sync.RWMutex
	phase    Phase
	pending  []agent.Difficulty
	results  []Stats
	progress int
	err      error
	started  time.Time
	finished time.Time

	onBatch func(Stats)

	cancelled atomic.Bool
	done      chan struct{}
	doneOnce  sync.Once

	subMu   sync.Mutex
	subs    map[int]chan Progress
	nextSub int
}

func NewRunner(id string, cfg RunConfig, log logrus.FieldLogger) (*Runner, error) {
	cfg = cfg.withDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if log == nil {
		log = logrus.StandardLogger()
	}
	return &Runner{
		ID:      id,
		cfg:     cfg,
		log:     log.WithField("run_id", id),
		phase:   PhasePending,
		pending: append([]agent.Difficulty(nil), cfg.Difficulties...),
		started: time.Now(),
		done:    make(chan struct{}),
		subs:    map[int]chan Progress{},
	}, nil
}

func (r *Runner) Config() RunConfig { return r.cfg }

// Cancel asks the run to stop before its next batch.
func (r *Runner) Cancel() { r.cancelled.Store(true) }

// Done is closed once the run is done or cancelled.
func (r *Runner) Done() <-chan struct{} { return r.done }

// Step runs the next pending batch to completion. It reports finished once the
// queue is empty or the run was cancelled.
func (r *Runner) Step(ctx context.Context) (finished bool, err error) {
	r.mu.Lock()
	if r.phase.Finished() {
		r.mu.Unlock()
		return true, r.err
	}
	if r.cancelled.Load() || ctx.Err() != nil {
		r.finishLocked(PhaseCancelled, ErrCancelled)
		r.mu.Unlock()
		r.publish(nil)
		return true, ErrCancelled
	}
	if len(r.pending) == 0 {
		r.finishLocked(PhaseDone, nil)
		r.mu.Unlock()
		r.publish(nil)
		return true, nil
	}
	r.phase = PhaseRunning
	idx := len(r.results)
	d := r.pending[0]
	r.mu.Unlock()

	log := r.log.WithField("difficulty", d)
	log.WithField("hands", r.cfg.Hands).Debug("batch start")
	t0 := time.Now()
	st, err := RunBatch(ctx, r.cfg.batch(d, idx))
	if err != nil {
		r.mu.Lock()
		phase := PhaseDone
		if errors.Is(err, ErrCancelled) {
			phase = PhaseCancelled
		}
		r.finishLocked(phase, err)
		r.mu.Unlock()
		r.publish(nil)
		return true, err
	}
	log.WithFields(logrus.Fields{
		"hands":    st.HandsPlayed,
		"win_rate": st.WinRate,
		"ev":       st.EV,
		"took":     time.Since(t0).Round(time.Millisecond),
	}).Info("batch done")

	r.mu.Lock()
	r.pending = r.pending[1:]
	r.results = append(r.results, st)
	total := len(r.cfg.Difficulties)
	r.progress = int(math.Round(float64(len(r.results)) / float64(total) * 100))
	last := len(r.pending) == 0
	if last {
		r.finishLocked(PhaseDone, nil)
	}
	r.mu.Unlock()
	if r.onBatch != nil {
		r.onBatch(st)
	}
	r.publish(&st)
	return last, nil
}

// Run steps until the queue is empty or the run is cancelled.
func (r *Runner) Run(ctx context.Context) error {
	for {
		finished, err := r.Step(ctx)
		if err != nil {
			if errors.Is(err, ErrCancelled) {
				r.log.Info("run cancelled")
			} else {
				r.log.WithError(err).Error("run failed")
			}
			return err
		}
		if finished {
			r.log.Info("run done")
			return nil
		}
	}
}

func (r *Runner) finishLocked(phase Phase, err error) {
	r.phase = phase
	r.err = err
	r.finished = time.Now()
	if phase == PhaseDone && err == nil {
		r.progress = 100
	}
}

func (r *Runner) Snapshot() Snapshot {
	r.mu.RLock()
	defer r.mu.RUnlock()
	s := Snapshot{
		ID:        r.ID,
		Phase:     r.phase,
		Progress:  r.progress,
		Config:    r.cfg,
		Pending:   append([]agent.Difficulty{}, r.pending...),
		Results:   append([]Stats{}, r.results...),
		StartedAt: r.started,
	}
	if r.err != nil {
		s.Error = r.err.Error()
	}
	if r.phase.Finished() {
		t := r.finished
		s.FinishedAt = &t
	}
	return s
}

// Subscribe returns a channel of progress events and a func to stop listening.
// Slow subscribers miss events rather than block the run. The channel is closed
// when the run finishes.
func (r *Runner) Subscribe() (<-chan Progress, func()) {
	ch := make(chan Progress, 16)
	r.subMu.Lock()
	select {
	case <-r.done:
		r.subMu.Unlock()
		ch <- r.progressEvent(nil)
		close(ch)
		return ch, func() {}
	default:
	}
	id := r.nextSub
	r.nextSub++
	r.subs[id] = ch
	r.subMu.Unlock()

	return ch, func() {
		r.subMu.Lock()
		defer r.subMu.Unlock()
		if c, ok := r.subs[id]; ok {
			delete(r.subs, id)
			close(c)
		}
	}
}

func (r *Runner) progressEvent(latest *Stats) Progress {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return Progress{
		RunID:     r.ID,
		Phase:     r.phase,
		Percent:   r.progress,
		Completed: len(r.results),
		Total:     len(r.cfg.Difficulties),
		Latest:    latest,
	}
}

func (r *Runner) publish(latest *Stats) {
	ev := r.progressEvent(latest)
	r.subMu.Lock()
	defer r.subMu.Unlock()
	for _, ch := range r.subs {
		select {
		case ch <- ev:
		default:
		}
	}
	if ev.Phase.Finished() {
		r.doneOnce.Do(func() {
			close(r.done)
			for id, ch := range r.subs {
				close(ch)
				delete(r.subs, id)
			}
		})
	}
}
