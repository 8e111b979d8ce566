package main

import (
	"context"
	"crypto/rand"
	"encoding/binary"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/joho/godotenv"
	"github.com/sirupsen/logrus"

	"blackjack-lab/server/agent"
	"blackjack-lab/server/judge"
	"blackjack-lab/server/lab"
	"blackjack-lab/server/store"
)

//
// ===== pretty printing =====
//

var useColor bool

const (
	colReset  = "\033[0m"
	colBold   = "\033[1m"
	colDim    = "\033[2m"
	colGreen  = "\033[32m"
	colRed    = "\033[31m"
	colYellow = "\033[33m"
	colCyan   = "\033[36m"
)

func c(code, s string) string {
	if !useColor {
		return s
	}
	return code + s + colReset
}
func bold(s string) string { return c(colBold, s) }
func dim(s string) string  { return c(colDim, s) }
func good(s string) string { return c(colGreen, s) }
func warn(s string) string { return c(colYellow, s) }
func bad(s string) string  { return c(colRed, s) }
func cyan(s string) string { return c(colCyan, s) }
func section(title string) { fmt.Printf("\n%s %s %s\n", dim("──"), bold(title), dim("──")) }
func sub(title string)     { fmt.Printf("%s %s\n", dim("•"), bold(title)) }

//
// ===== bootstrap =====
//

func mustEnv(keys ...string) {
	for _, k := range keys {
		if os.Getenv(k) == "" {
			logrus.Fatalf("Missing required env var %s. Put it in .env (dev) or set it on the host (prod).", k)
		}
	}
}
func getenv(k, def string) string {
	if v := os.Getenv(k); v != "" {
		return v
	}
	return def
}
func atoiDef(s string, def int) int {
	if s == "" {
		return def
	}
	n, err := strconv.Atoi(s)
	if err != nil {
		return def
	}
	return n
}
func asBool(s string) bool {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "1", "true", "yes", "y", "on":
		return true
	default:
		return false
	}
}

func setupLogging() *logrus.Logger {
	log := logrus.StandardLogger()
	if lvl, err := logrus.ParseLevel(getenv("LOG_LEVEL", "info")); err == nil {
		log.SetLevel(lvl)
	}
	if strings.EqualFold(os.Getenv("LOG_FORMAT"), "json") {
		log.SetFormatter(&logrus.JSONFormatter{})
	} else {
		log.SetFormatter(&logrus.TextFormatter{FullTimestamp: true, DisableColors: !useColor})
	}
	return log
}

var stopFlag atomic.Bool

func main() {
	_ = godotenv.Load()

	useColor = (os.Getenv("NO_COLOR") == "") && (strings.TrimSpace(os.Getenv("USE_COLOR")) != "0")
	log := setupLogging()

	var migrate, runLabMode bool
	for _, a := range os.Args[1:] {
		switch a {
		case "--migrate":
			migrate = true
		case "--lab":
			runLabMode = true
		}
	}

	if migrate {
		mustEnv("DATABASE_URL")
		db, err := store.Open(os.Getenv("DATABASE_URL"))
		if err != nil {
			log.Fatal(err)
		}
		defer db.Close(context.Background())
		if err := store.Migrate(context.Background(), db); err != nil {
			log.Fatal(err)
		}
		log.Info("migrated")
		return
	}

	maxSeconds := atoiDef(os.Getenv("MAX_SECONDS"), 0)
	stopFile := os.Getenv("STOP_FILE")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go watchSignals(cancel)

	var deadline time.Time
	if maxSeconds > 0 {
		deadline = time.Now().Add(time.Duration(maxSeconds) * time.Second)
	}
	checkStop := func() bool {
		select {
		case <-ctx.Done():
			stopFlag.Store(true)
		default:
		}
		if stopFlag.Load() {
			return true
		}
		if !deadline.IsZero() && time.Now().After(deadline) {
			stopFlag.Store(true)
			return true
		}
		if stopFile != "" {
			if _, err := os.Stat(stopFile); err == nil {
				stopFlag.Store(true)
				return true
			}
		}
		return false
	}

	db := openOptionalDB(log)
	var rec *runRecorder
	if db != nil {
		defer db.Close(context.Background())
		rec = newRunRecorder(db, log)
	}
	seed := deckSeedFromEnvOrCrypto()

	if runLabMode {
		if err := runLab(ctx, checkStop, rec, log, seed); err != nil && !errors.Is(err, lab.ErrCancelled) {
			log.WithError(err).Fatal("lab failed")
		}
		return
	}

	advisor := judge.NewAdvisor(judge.Simulator{
		Trials:  atoiDef(os.Getenv("SIM_TRIALS"), judge.DefaultTrials),
		Workers: atoiDef(os.Getenv("SIM_WORKERS"), judge.DefaultWorkers),
	}, seed)
	labs := lab.NewRegistry(log)
	rec.attach(labs)

	port := getenv("PORT", "8080")
	srv := &http.Server{
		Addr:              ":" + port,
		Handler:           Router(newApp(ctx, db, advisor, labs, log, seed)),
		ReadHeaderTimeout: 15 * time.Second,
	}
	go func() {
		<-ctx.Done()
		shutdownCtx, done := context.WithTimeout(context.Background(), 10*time.Second)
		defer done()
		_ = srv.Shutdown(shutdownCtx)
	}()

	log.Infof("listening on http://localhost:%s (Ctrl+C to stop)", port)
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		log.Fatal(err)
	}
	labs.CancelAll()
	log.Info("stopped")
}

func watchSignals(cancel context.CancelFunc) {
	c := make(chan os.Signal, 1)
	signal.Notify(c, os.Interrupt, syscall.SIGTERM)
	<-c
	stopFlag.Store(true)
	cancel()
}

// openOptionalDB connects when DATABASE_URL is set. Any failure leaves the
// process running without persistence.
func openOptionalDB(log logrus.FieldLogger) *store.DB {
	dsn := getenv("DATABASE_URL", "")
	if dsn == "" {
		log.Info("DATABASE_URL not set, running without persistence")
		return nil
	}
	db, err := store.Open(dsn)
	if err != nil {
		log.WithError(err).Warn("DB disabled (open failed)")
		return nil
	}
	if asBool(os.Getenv("AUTO_MIGRATE")) {
		if err := store.Migrate(context.Background(), db); err != nil {
			log.WithError(err).Warn("migrate failed (continuing without DB)")
			db.Close(context.Background())
			return nil
		}
		log.Info("migrated")
	}
	return db
}

func secureBaseSeed() int64 {
	var b [8]byte
	if _, err := rand.Read(b[:]); err == nil {
		return int64(binary.LittleEndian.Uint64(b[:])>>1) ^ time.Now().UnixNano()
	}
	return time.Now().UnixNano()
}

// deckSeedFromEnvOrCrypto never returns 0 so a persisted run can be replayed.
func deckSeedFromEnvOrCrypto() int64 {
	if s := os.Getenv("DECK_SEED"); s != "" {
		if v, err := strconv.ParseInt(s, 10, 64); err == nil && v != 0 {
			return v
		}
	}
	for {
		if s := secureBaseSeed(); s != 0 {
			return s
		}
	}
}

//
// ===== lab =====
//

func labConfigFromEnv(seed int64) (lab.RunConfig, error) {
	cfg := lab.RunConfig{
		Hands:         atoiDef(os.Getenv("LAB_HANDS"), lab.DefaultHands),
		BaseBet:       atoiDef(os.Getenv("LAB_BASE_BET"), lab.DefaultBaseBet),
		StartingChips: atoiDef(os.Getenv("LAB_STARTING_CHIPS"), lab.DefaultStartingChips),
		Seed:          seed,
	}
	for _, s := range strings.Split(getenv("LAB_DIFFICULTIES", "easy,pro,casino"), ",") {
		if strings.TrimSpace(s) == "" {
			continue
		}
		d, err := agent.ParseDifficulty(s)
		if err != nil {
			return cfg, err
		}
		cfg.Difficulties = append(cfg.Difficulties, d)
	}
	return cfg, cfg.Validate()
}

// runLab plays every configured policy in turn, stopping between batches when
// checkStop fires, then prints and persists what finished.
func runLab(ctx context.Context, checkStop func() bool, rec *runRecorder, log logrus.FieldLogger, seed int64) error {
	cfg, err := labConfigFromEnv(seed)
	if err != nil {
		return err
	}
	id := uuid.NewString()
	run, err := lab.NewRunner(id, cfg, log)
	if err != nil {
		return err
	}

	bg := context.WithoutCancel(ctx)
	rec.started(bg, run.Snapshot())

	section("BLACKJACK LAB")
	fmt.Printf("%s %s  %s %d  %s %d  %s %d  %s %d\n",
		dim("run"), run.ID,
		dim("hands"), cfg.Hands,
		dim("bet"), cfg.BaseBet,
		dim("chips"), cfg.StartingChips,
		dim("seed"), cfg.Seed)

	for {
		if checkStop() {
			run.Cancel()
		}
		before := len(run.Snapshot().Results)
		finished, err := run.Step(ctx)
		snap := run.Snapshot()
		if len(snap.Results) > before {
			st := snap.Results[len(snap.Results)-1]
			printBatchLine(st, snap.Progress)
			rec.batch(bg, run.ID, st)
		}
		if finished || err != nil {
			printLabReport(snap)
			rec.finished(bg, snap)
			return err
		}
	}
}
