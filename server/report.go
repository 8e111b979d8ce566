package main

import (
	"fmt"
	"strings"

	"blackjack-lab/server/lab"
)

func pct(x float64) string { return fmt.Sprintf("%.1f%%", 100*x) }

func signed(n int) string {
	s := fmt.Sprintf("%+d", n)
	switch {
	case n > 0:
		return good(s)
	case n < 0:
		return bad(s)
	}
	return s
}

var sparkRunes = []rune("▁▂▃▄▅▆▇█")

// sparkline draws the bankroll curve in at most width runes.
func sparkline(vals []int, width int) string {
	if len(vals) == 0 || width <= 0 {
		return ""
	}
	if len(vals) > width {
		step := float64(len(vals)) / float64(width)
		picked := make([]int, width)
		for i := range picked {
			picked[i] = vals[int(float64(i)*step)]
		}
		picked[width-1] = vals[len(vals)-1]
		vals = picked
	}
	lo, hi := vals[0], vals[0]
	for _, v := range vals {
		lo = min(lo, v)
		hi = max(hi, v)
	}
	var b strings.Builder
	for _, v := range vals {
		i := 0
		if hi > lo {
			i = (v - lo) * (len(sparkRunes) - 1) / (hi - lo)
		}
		b.WriteRune(sparkRunes[i])
	}
	return b.String()
}

func printBatchLine(st lab.Stats, progress int) {
	sub(fmt.Sprintf("%-15s %s", st.Label, dim(fmt.Sprintf("[%3d%%]", progress))))
	fmt.Printf("    hands:%d  win:%s  ev:%s  net:%s\n",
		st.HandsPlayed, pct(st.WinRate), fmt.Sprintf("%+.2f%%", st.EV), signed(st.Net()))
}

func printLabReport(s lab.Snapshot) {
	section("RESULTS")
	switch s.Phase {
	case lab.PhaseCancelled:
		fmt.Println(warn(fmt.Sprintf("run cancelled after %d of %d policies", len(s.Results), len(s.Config.Difficulties))))
	case lab.PhaseDone:
		if s.Error != "" {
			fmt.Println(bad("run failed: " + s.Error))
		}
	}
	if len(s.Results) == 0 {
		fmt.Println(dim("no completed batches"))
		return
	}

	fmt.Printf("%-15s %7s %6s %6s %6s %4s %5s %5s  %-22s %-26s %8s %8s\n",
		"policy", "hands", "win", "loss", "push", "bj", "dbl", "bust", "win% [95% CI]", "EV% [95% CI]", "net", "final")
	for _, st := range s.Results {
		fmt.Printf("%-15s %7d %6d %6d %6d %4d %5d %5d  %-22s %-26s %8s %8d\n",
			st.Label, st.HandsPlayed, st.Wins, st.Losses, st.Pushes, st.Blackjacks, st.Doubles, st.Busts,
			fmt.Sprintf("%s [%s, %s]", pct(st.WinRate), pct(st.WinLow), pct(st.WinHigh)),
			fmt.Sprintf("%+.2f [%+.2f, %+.2f]", st.EV, st.EVLow, st.EVHigh),
			signed(st.Net()), st.FinalChips)
	}

	fmt.Println()
	fmt.Println(bold("Bankroll:"))
	for _, st := range s.Results {
		fmt.Printf("  %-15s %s %s\n", st.Label, cyan(sparkline(st.Bankroll, 48)),
			dim(fmt.Sprintf("start %d  peak %d  final %d", st.StartChips, st.PeakChips, st.FinalChips)))
	}

	best := s.Results[0]
	for _, st := range s.Results[1:] {
		if st.EV > best.EV {
			best = st
		}
	}
	fmt.Printf("\n%s %s (%+.2f%% of wagers)\n", bold("Best EV:"), good(best.Label), best.EV)
}
