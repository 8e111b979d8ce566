package lab

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

var ErrRunNotFound = errors.New("lab run not found")

// Registry tracks lab runs by id. Each run executes on its own goroutine.
type Registry struct {
	log logrus.FieldLogger

	// Optional hooks. OnStart runs before Start returns, OnBatch after each
	// finished batch, OnFinish with the final snapshot of every run.
	OnStart  func(ctx context.Context, s Snapshot)
	OnBatch  func(ctx context.Context, runID string, st Stats)
	OnFinish func(ctx context.Context, s Snapshot)

	mu   sync.RWMutex
	runs map[string]*Runner
	wg   sync.WaitGroup
}

func NewRegistry(log logrus.FieldLogger) *Registry {
	if log == nil {
		log = logrus.StandardLogger()
	}
	return &Registry{log: log, runs: map[string]*Runner{}}
}

// Start validates cfg, registers a runner and runs it in the background until
// it finishes, is cancelled, or ctx ends.
func (g *Registry) Start(ctx context.Context, cfg RunConfig) (*Runner, error) {
	r, err := NewRunner(uuid.NewString(), cfg, g.log)
	if err != nil {
		return nil, err
	}
	bg := context.WithoutCancel(ctx)
	if g.OnBatch != nil {
		r.onBatch = func(st Stats) { g.OnBatch(bg, r.ID, st) }
	}
	g.mu.Lock()
	g.runs[r.ID] = r
	g.mu.Unlock()
	if g.OnStart != nil {
		g.OnStart(bg, r.Snapshot())
	}

	g.wg.Add(1)
	go func() {
		defer g.wg.Done()
		_ = r.Run(ctx)
		if g.OnFinish != nil {
			g.OnFinish(bg, r.Snapshot())
		}
	}()
	return r, nil
}

func (g *Registry) Get(id string) (*Runner, error) {
	g.mu.RLock()
	defer g.mu.RUnlock()
	r, ok := g.runs[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrRunNotFound, id)
	}
	return r, nil
}

func (g *Registry) Cancel(id string) error {
	r, err := g.Get(id)
	if err != nil {
		return err
	}
	r.Cancel()
	return nil
}

// List returns snapshots of every run, newest first.
func (g *Registry) List() []Snapshot {
	g.mu.RLock()
	out := make([]Snapshot, 0, len(g.runs))
	for _, r := range g.runs {
		out = append(out, r.Snapshot())
	}
	g.mu.RUnlock()
	sort.Slice(out, func(i, j int) bool { return out[i].StartedAt.After(out[j].StartedAt) })
	return out
}

// CancelAll stops every run and waits for their goroutines.
func (g *Registry) CancelAll() {
	g.mu.RLock()
	for _, r := range g.runs {
		r.Cancel()
	}
	g.mu.RUnlock()
	g.wg.Wait()
}
