package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math/rand"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/sirupsen/logrus"

	"blackjack-lab/server/agent"
	"blackjack-lab/server/engine"
	"blackjack-lab/server/judge"
	"blackjack-lab/server/lab"
	"blackjack-lab/server/store"
)

const (
	requestTimeout = 60 * time.Second
	maxBodyBytes   = 1 << 20
	maxTrials      = 200000
	historyLimit   = 20
	pingTimeout    = 2 * time.Second
)

var errNoDB = errors.New("database not configured")

// app carries what the handlers share. db is nil when no DATABASE_URL is set.
type app struct {
	db      *store.DB
	advisor *judge.Advisor
	labs    *lab.Registry
	log     logrus.FieldLogger

	// base outlives requests; lab runs started over HTTP hang off it.
	base context.Context

	rngMu sync.Mutex
	rng   *rand.Rand
}

func newApp(base context.Context, db *store.DB, advisor *judge.Advisor, labs *lab.Registry, log logrus.FieldLogger, seed int64) *app {
	if log == nil {
		log = logrus.StandardLogger()
	}
	return &app{
		db:      db,
		advisor: advisor,
		labs:    labs,
		log:     log,
		base:    base,
		rng:     engine.NewRand(seed),
	}
}

// source hands each request its own generator.
func (a *app) source() *rand.Rand {
	a.rngMu.Lock()
	defer a.rngMu.Unlock()
	return rand.New(rand.NewSource(a.rng.Int63()))
}

func Router(a *app) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)

	r.Group(func(r chi.Router) {
		r.Use(middleware.Timeout(requestTimeout))

		r.Get("/api/health", a.health)
		r.Post("/api/score", a.score)
		r.Post("/api/advice", a.advice)
		r.Get("/api/advice/agreement", a.adviceAgreement)
		r.Post("/api/ai-action", a.aiAction)

		r.Route("/api/lab", func(r chi.Router) {
			r.Get("/history", a.labHistory)
			r.Get("/leaderboard", a.labLeaderboard)
			r.Get("/runs", func(w http.ResponseWriter, r *http.Request) {
				writeJSON(w, a.labs.List())
			})
			r.Post("/runs", a.startRun)
			r.Get("/runs/{id}", a.getRun)
			r.Delete("/runs/{id}", a.cancelRun)
		})
	})

	// no timeout on the stream; it lives as long as the run
	r.Get("/api/lab/runs/{id}/ws", a.streamRun)
	return r
}

func (a *app) health(w http.ResponseWriter, r *http.Request) {
	if a.db == nil {
		writeJSON(w, map[string]any{"ok": true, "db": "disabled"})
		return
	}
	ctx, cancel := context.WithTimeout(r.Context(), pingTimeout)
	defer cancel()
	if err := a.db.Ping(ctx); err != nil {
		a.log.WithError(err).Warn("db ping failed")
		writeJSONCode(w, http.StatusServiceUnavailable, map[string]any{"ok": false, "db": "unreachable"})
		return
	}
	writeJSON(w, map[string]any{"ok": true, "db": "ok"})
}

/* -----------------------------
   Hands
------------------------------*/

type scoreReq struct {
	Cards       []string `json:"cards"`
	FaceDown    []int    `json:"face_down"` // indexes of hidden cards
	VisibleOnly bool     `json:"visible_only"`
}

func (a *app) score(w http.ResponseWriter, r *http.Request) {
	var req scoreReq
	if !decode(w, r, &req) {
		return
	}
	cards, err := engine.ParseCards(req.Cards)
	if err != nil {
		a.fail(w, err)
		return
	}
	for _, i := range req.FaceDown {
		if i >= 0 && i < len(cards) {
			cards[i].FaceUp = false
		}
	}
	writeJSON(w, engine.ScoreHand(cards, req.VisibleOnly))
}

// tableReq is the table state shared by the advice and ai-action endpoints.
type tableReq struct {
	Player       []string `json:"player"`
	Dealer       []string `json:"dealer"`
	DealerHidden bool     `json:"dealer_hidden"` // a hole card lies face down
	Seen         []string `json:"seen"`
	ShoeSize     int      `json:"shoe_size"`
	Chips        int      `json:"chips"`
	Bet          int      `json:"bet"`
}

type table struct {
	player, dealer, seen []engine.Card
	shoeSize             int
}

func (t tableReq) parse() (table, error) {
	var out table
	var err error
	if out.player, err = engine.ParseCards(t.Player); err != nil {
		return out, err
	}
	if out.dealer, err = engine.ParseCards(t.Dealer); err != nil {
		return out, err
	}
	if out.seen, err = engine.ParseCards(t.Seen); err != nil {
		return out, err
	}
	if err := checkTable(out.player, out.dealer, out.seen, t.DealerHidden); err != nil {
		return out, err
	}
	// The hole card's identity is unknown; the simulator redraws it.
	if t.DealerHidden {
		out.dealer = append(out.dealer, engine.Card{Rank: 2, Suit: 'c'})
	}
	out.shoeSize = t.ShoeSize
	if out.shoeSize <= 0 {
		known := engine.Union(out.seen, out.player, engine.FaceUpCards(out.dealer))
		out.shoeSize = engine.DeckSize - len(known)
		if t.DealerHidden {
			out.shoeSize--
		}
	}
	return out, nil
}

// maxHandCards is the longest hand that can still be live: four aces, four
// twos and three threes make 21.
const maxHandCards = 11

// checkTable rejects tables no single deck can produce.
func checkTable(player, dealer, seen []engine.Card, hidden bool) error {
	dealerCards := len(dealer)
	if hidden {
		dealerCards++
	}
	switch {
	case len(player) > maxHandCards:
		return fmt.Errorf("%w: player holds %d cards", engine.ErrBadCard, len(player))
	case dealerCards > maxHandCards:
		return fmt.Errorf("%w: dealer holds %d cards", engine.ErrBadCard, dealerCards)
	}
	all := make([]engine.Card, 0, len(player)+len(dealer)+len(seen))
	all = append(append(append(all, player...), dealer...), seen...)
	if u := engine.Union(all); len(u) != len(all) {
		return fmt.Errorf("%w: %d duplicate cards on the table", engine.ErrBadCard, len(all)-len(u))
	}
	if len(all)+b2i(hidden) > engine.DeckSize {
		return fmt.Errorf("%w: more than %d cards", engine.ErrBadCard, engine.DeckSize)
	}
	return nil
}

func b2i(b bool) int {
	if b {
		return 1
	}
	return 0
}

type adviceReq struct {
	tableReq
	Trials int `json:"trials"`
}

func (a *app) advice(w http.ResponseWriter, r *http.Request) {
	var req adviceReq
	if !decode(w, r, &req) {
		return
	}
	t, err := req.parse()
	if err != nil {
		a.fail(w, err)
		return
	}
	if req.Trials < 0 {
		a.fail(w, fmt.Errorf("%w: got %d", judge.ErrBadTrials, req.Trials))
		return
	}
	if req.Trials > maxTrials {
		req.Trials = maxTrials
	}
	t0 := time.Now()
	res, err := a.advisor.Advise(r.Context(), judge.AdviceInput{
		Player:   t.player,
		Dealer:   t.dealer,
		Seen:     t.seen,
		ShoeSize: t.shoeSize,
		Chips:    req.Chips,
		Bet:      req.Bet,
		Trials:   req.Trials,
	})
	if err != nil {
		a.fail(w, err)
		return
	}
	a.recordAdvice(r.Context(), req, t, res, time.Since(t0))
	writeJSON(w, res)
}

// recordAdvice stores the answer when a DB is configured. Failures are only logged.
func (a *app) recordAdvice(ctx context.Context, req adviceReq, t table, res judge.StrategyAdvice, took time.Duration) {
	if a.db == nil {
		return
	}
	evs := make(map[string]float64, len(res.EV))
	for k, v := range res.EV {
		evs[string(k)] = v
	}
	ms := int(took.Milliseconds())
	_, err := a.db.InsertAdviceEval(ctx, store.AdviceEval{
		Player:       engine.CardsToStr(t.player),
		Dealer:       engine.CardsToStr(t.dealer),
		SeenCount:    len(t.seen),
		ShoeSize:     t.shoeSize,
		Chips:        req.Chips,
		Bet:          req.Bet,
		Recommended:  string(res.Recommended),
		Basic:        string(res.Basic),
		EVs:          evs,
		RunningCount: res.RunningCount,
		TrueCount:    res.TrueCount,
		Trials:       res.Hit.Trials,
		ComputeMS:    &ms,
	})
	if err != nil {
		a.log.WithError(err).Warn("advice_eval insert failed")
	}
}

func (a *app) adviceAgreement(w http.ResponseWriter, r *http.Request) {
	if a.db == nil {
		a.fail(w, errNoDB)
		return
	}
	agree, total, err := a.db.AdviceAgreement(r.Context())
	if err != nil {
		a.fail(w, err)
		return
	}
	rate := 0.0
	if total > 0 {
		rate = float64(agree) / float64(total)
	}
	writeJSON(w, map[string]any{"agree": agree, "total": total, "rate": rate})
}

type aiActionReq struct {
	tableReq
	Difficulty string `json:"difficulty"`
}

type aiActionResp struct {
	agent.ActionOut
	Observation agent.Observation `json:"observation"`
}

func (a *app) aiAction(w http.ResponseWriter, r *http.Request) {
	var req aiActionReq
	if !decode(w, r, &req) {
		return
	}
	d, err := agent.ParseDifficulty(req.Difficulty)
	if err != nil {
		a.fail(w, err)
		return
	}
	t, err := req.parse()
	if err != nil {
		a.fail(w, err)
		return
	}
	p, err := agent.New(d, a.source())
	if err != nil {
		a.fail(w, err)
		return
	}
	obs := agent.BuildObservation(t.player, t.dealer, t.seen, t.shoeSize, req.Chips, req.Bet)
	out := agent.ActionOut{Action: p.Decide(obs), Difficulty: d, Label: p.Name()}
	if err := agent.Validate(obs, out); err != nil {
		a.fail(w, err)
		return
	}
	writeJSON(w, aiActionResp{ActionOut: out, Observation: obs})
}

/* -----------------------------
   Lab
------------------------------*/

type startRunReq struct {
	Difficulties  []string `json:"difficulties"`
	Hands         int      `json:"hands"`
	BaseBet       int      `json:"base_bet"`
	StartingChips int      `json:"starting_chips"`
	Seed          int64    `json:"seed"`
}

func (req startRunReq) config() (lab.RunConfig, error) {
	cfg := lab.RunConfig{
		Hands:         req.Hands,
		BaseBet:       req.BaseBet,
		StartingChips: req.StartingChips,
		Seed:          req.Seed,
	}
	for _, s := range req.Difficulties {
		d, err := agent.ParseDifficulty(s)
		if err != nil {
			return cfg, err
		}
		cfg.Difficulties = append(cfg.Difficulties, d)
	}
	return cfg, nil
}

func (a *app) startRun(w http.ResponseWriter, r *http.Request) {
	var req startRunReq
	if !decode(w, r, &req) {
		return
	}
	cfg, err := req.config()
	if err != nil {
		a.fail(w, err)
		return
	}
	run, err := a.labs.Start(a.base, cfg)
	if err != nil {
		a.fail(w, err)
		return
	}
	a.log.WithField("run_id", run.ID).Info("lab run started")
	writeJSONCode(w, http.StatusAccepted, map[string]any{"id": run.ID, "run": run.Snapshot()})
}

// getRun answers from memory first; runs from before a restart come from the DB.
func (a *app) getRun(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	run, err := a.labs.Get(id)
	if err == nil {
		writeJSON(w, run.Snapshot())
		return
	}
	if a.db != nil && errors.Is(err, lab.ErrRunNotFound) {
		saved, ok, dbErr := a.db.GetLabRun(r.Context(), id)
		if dbErr != nil {
			a.fail(w, dbErr)
			return
		}
		if ok {
			writeJSON(w, saved)
			return
		}
	}
	a.fail(w, err)
}

func (a *app) cancelRun(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if err := a.labs.Cancel(id); err != nil {
		a.fail(w, err)
		return
	}
	a.log.WithField("run_id", id).Info("lab run cancel requested")
	run, _ := a.labs.Get(id)
	writeJSONCode(w, http.StatusAccepted, run.Snapshot())
}

func (a *app) streamRun(w http.ResponseWriter, r *http.Request) {
	run, err := a.labs.Get(chi.URLParam(r, "id"))
	if err != nil {
		a.fail(w, err)
		return
	}
	conn, err := websocket.Accept(w, r, nil)
	if err != nil {
		a.log.WithError(err).Warn("websocket accept failed")
		return
	}
	defer conn.CloseNow()

	events, stop := run.Subscribe()
	defer stop()
	ctx := conn.CloseRead(r.Context())

	if err := wsjson.Write(ctx, conn, run.Snapshot()); err != nil {
		return
	}
	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-events:
			if !ok {
				conn.Close(websocket.StatusNormalClosure, "run finished")
				return
			}
			if err := wsjson.Write(ctx, conn, ev); err != nil {
				return
			}
		}
	}
}

func (a *app) labHistory(w http.ResponseWriter, r *http.Request) {
	if a.db == nil {
		a.fail(w, errNoDB)
		return
	}
	limit := historyLimit
	if s := r.URL.Query().Get("limit"); s != "" {
		if n, err := strconv.Atoi(s); err == nil && n > 0 && n <= 200 {
			limit = n
		}
	}
	runs, err := a.db.RecentLabRuns(r.Context(), limit)
	if err != nil {
		a.fail(w, err)
		return
	}
	writeJSON(w, runs)
}

func (a *app) labLeaderboard(w http.ResponseWriter, r *http.Request) {
	if a.db == nil {
		a.fail(w, errNoDB)
		return
	}
	rows, err := a.db.PolicyLeaderboard(r.Context())
	if err != nil {
		a.fail(w, err)
		return
	}
	writeJSON(w, rows)
}

/* -----------------------------
   Helpers
------------------------------*/

func statusFor(err error) int {
	switch {
	case errors.Is(err, engine.ErrBadCard),
		errors.Is(err, agent.ErrUnknownDifficulty),
		errors.Is(err, agent.ErrIllegalAction),
		errors.Is(err, judge.ErrBadTrials),
		errors.Is(err, lab.ErrBadConfig):
		return http.StatusBadRequest
	case errors.Is(err, lab.ErrRunNotFound):
		return http.StatusNotFound
	case errors.Is(err, errNoDB):
		return http.StatusServiceUnavailable
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout
	default:
		return http.StatusInternalServerError
	}
}

func (a *app) fail(w http.ResponseWriter, err error) {
	code := statusFor(err)
	if code >= 500 {
		a.log.WithError(err).Error("request failed")
	}
	http.Error(w, err.Error(), code)
}

func decode(w http.ResponseWriter, r *http.Request, v any) bool {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		http.Error(w, "bad json: "+err.Error(), http.StatusBadRequest)
		return false
	}
	return true
}

func writeJSON(w http.ResponseWriter, v any) { writeJSONCode(w, http.StatusOK, v) }

func writeJSONCode(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	_ = enc.Encode(v)
}
