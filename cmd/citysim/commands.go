package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"slices"
	"strconv"
	"syscall"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
	"github.com/spf13/cobra"

	"github.com/talgya/mini-city/internal/agents"
	"github.com/talgya/mini-city/internal/backend"
	"github.com/talgya/mini-city/internal/engine"
	"github.com/talgya/mini-city/internal/perfmon"
	"github.com/talgya/mini-city/internal/persistence"
	"github.com/talgya/mini-city/internal/scenario"
)

var (
	runTicks     uint64        // stop after this many ticks (0 = until signal)
	runDuration  time.Duration // stop after this wall time (0 = until signal)
	scenarioLen  int           // ticks a scenario runs for
	scenarioJSON bool          // print the scenario result as JSON
	benchTicks   uint64        // ticks per backend in bench
)

// openStore opens the summary store named in cfg, or returns nil when
// persistence is disabled.
func openStore() (*persistence.Store, error) {
	if cfg.Store.Path == "" {
		return nil, nil
	}
	if dir := filepath.Dir(cfg.Store.Path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create store dir: %w", err)
		}
	}
	st, err := persistence.Open(cfg.Store.Path, cfg.Store.Keep, persistence.WithLogger(slog.Default()))
	if err != nil {
		return nil, err
	}
	slog.Info("database opened", "path", cfg.Store.Path, "keep", st.Keep())
	return st, nil
}

// newEngine builds and initializes an engine for cfg with an optional store.
func newEngine(st *persistence.Store) (*engine.Engine, error) {
	opts := []engine.Option{engine.WithLogger(slog.Default())}
	if st != nil {
		opts = append(opts, engine.WithStore(st))
	}
	eng, err := engine.New(cfg, opts...)
	if err != nil {
		return nil, err
	}
	if err := eng.Initialize(engine.CountsFromConfig(cfg)); err != nil {
		return nil, err
	}
	return eng, nil
}

// stopOnSignal stops eng on SIGINT or SIGTERM and cancels the returned
// context on a second signal.
func stopOnSignal(eng *engine.Engine) (context.Context, func()) {
	ctx, cancel := context.WithCancel(context.Background())
	sigCh := make(chan os.Signal, 2)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig, ok := <-sigCh
		if !ok {
			return
		}
		slog.Info("received signal, shutting down", "signal", sig)
		eng.Stop()
		if _, ok := <-sigCh; ok {
			cancel()
		}
	}()
	return ctx, func() {
		signal.Stop(sigCh)
		close(sigCh)
		cancel()
	}
}

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run the city until interrupted or a budget is reached",
	RunE: func(cmd *cobra.Command, args []string) error {
		st, err := openStore()
		if err != nil {
			return err
		}
		if st != nil {
			defer st.Close()
		}
		eng, err := newEngine(st)
		if err != nil {
			return err
		}

		status := eng.Status()
		fmt.Printf("\n%s is alive: %s agents (%s citizens, %s businesses), backend %s.\n",
			status.Name,
			humanize.Comma(int64(status.AgentCounts.Total())),
			humanize.Comma(int64(status.AgentCounts[agents.TypeCitizen])),
			humanize.Comma(int64(status.AgentCounts[agents.TypeBusiness])),
			status.Backend.BackendKind)
		fmt.Println("Starting simulation... (Ctrl+C to stop)")

		ctx, release := stopOnSignal(eng)
		defer release()
		start := time.Now()
		switch {
		case runTicks > 0:
			err = eng.RunTicks(ctx, runTicks)
		case runDuration > 0:
			err = eng.RunFor(ctx, runDuration)
		default:
			err = eng.Run(ctx)
		}
		if err != nil && ctx.Err() == nil {
			return err
		}

		if st != nil {
			if err := st.SaveMeta("last_cycle", strconv.FormatUint(eng.Cycle(), 10)); err != nil {
				slog.Error("final meta save failed", "error", err)
			}
		}
		printStatus(eng, time.Since(start))
		return nil
	},
}

func printStatus(eng *engine.Engine, wall time.Duration) {
	st := eng.Status()
	fmt.Printf("\nStopped at cycle %s (%s) after %s wall time.\n",
		humanize.Comma(int64(st.Cycle)), engine.FormatSimTime(st.SimTime), wall.Round(time.Millisecond))
	if st.Latest != nil {
		m := st.Latest
		fmt.Printf("  population            %s\n", humanize.Comma(int64(m.Population)))
		fmt.Printf("  citizen satisfaction  %.3f\n", m.CitizenSatisfaction)
		fmt.Printf("  economic health       %.3f\n", m.EconomicHealth)
		fmt.Printf("  infrastructure health %.3f\n", m.InfrastructureHealth)
		fmt.Printf("  unemployment          %.1f%%\n", m.UnemploymentRate*100)
	}
	for _, ev := range st.ActiveEvents {
		fmt.Printf("  active event: %s (%d ticks left)\n", ev.Kind, ev.Remaining)
	}
	if sum, ok := eng.Monitor().Summary(); ok {
		fmt.Printf("  backend %s: %s updates/s, p95 %.2fms\n",
			st.Backend.BackendKind, humanize.FormatFloat("#,###.#", sum.Current.UpdatesPerSecond), sum.P95MS)
	}
}

var scenarioCmd = &cobra.Command{
	Use:   "scenario <name>",
	Short: "Apply a what-if scenario and report how the city changed",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		st, err := openStore()
		if err != nil {
			return err
		}
		if st != nil {
			defer st.Close()
		}
		eng, err := newEngine(st)
		if err != nil {
			return err
		}
		ctx, release := stopOnSignal(eng)
		defer release()

		res, err := eng.RunScenario(ctx, args[0], scenarioLen)
		if err != nil {
			return err
		}
		if scenarioJSON {
			enc := json.NewEncoder(os.Stdout)
			enc.SetIndent("", "  ")
			return enc.Encode(res)
		}
		printResult(res)
		return nil
	},
}

func printResult(res scenario.Result) {
	fmt.Printf("\nScenario %s: %s\n", res.Scenario, res.Scenario.Description())
	fmt.Printf("Ran %s ticks, cycle %d to %d (%s to %s)\n\n",
		humanize.Comma(int64(res.Ticks)), res.StartCycle, res.EndCycle,
		engine.FormatSimTime(res.Started), engine.FormatSimTime(res.Finished))
	for _, k := range scenario.ChangeKeys(res.Changes) {
		fmt.Printf("  %-40s %+.4f\n", k, res.Changes[k])
	}
}

var scenariosCmd = &cobra.Command{
	Use:   "scenarios",
	Short: "List the available scenarios",
	Run: func(cmd *cobra.Command, args []string) {
		for _, k := range scenario.All() {
			fmt.Printf("%-26s %s\n", k, k.Description())
		}
	},
}

var benchCmd = &cobra.Command{
	Use:   "bench",
	Short: "Run the city on each backend and report performance",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg.Schedule.TickInterval = 0
		cfg.Store.Path = ""
		for _, kind := range []backend.Kind{backend.KindNative, backend.KindFallback} {
			cfg.Backend.Preferred = string(kind)
			eng, err := newEngine(nil)
			if err != nil {
				return err
			}
			if err := eng.RunTicks(context.Background(), benchTicks); err != nil {
				return err
			}
			if err := printBench(eng); err != nil {
				return err
			}
		}
		return nil
	},
}

func printBench(eng *engine.Engine) error {
	info := eng.Backend().Info()
	fmt.Printf("\n== %s backend", info.BackendKind)
	if info.FallbackReason != "" {
		fmt.Printf(" (native unavailable: %s)", info.FallbackReason)
	}
	fmt.Println(" ==")

	mon := eng.Monitor()
	reg := prometheus.NewRegistry()
	if err := perfmon.NewCollector(mon, func() string { return string(eng.Backend().Kind()) }).Register(reg); err != nil {
		return err
	}
	families, err := reg.Gather()
	if err != nil {
		return err
	}
	for _, mf := range families {
		for _, m := range mf.GetMetric() {
			fmt.Printf("  %-36s%s %s\n", mf.GetName(), labels(m), humanize.FormatFloat("#,###.###", value(m)))
		}
	}
	for _, b := range mon.Benchmarks() {
		fmt.Printf("  range %-10s %s samples, %.3fms avg\n", b.Range, humanize.Comma(int64(b.Samples)), b.AvgUpdateMS)
	}
	for _, is := range mon.Issues() {
		fmt.Printf("  %s: %s\n", is.Severity, is.Message)
	}
	for _, r := range mon.Recommendations() {
		fmt.Printf("  hint: %s\n", r)
	}
	return nil
}

func labels(m *dto.Metric) string {
	if len(m.GetLabel()) == 0 {
		return ""
	}
	parts := make([]string, 0, len(m.GetLabel()))
	for _, l := range m.GetLabel() {
		parts = append(parts, l.GetName()+"="+l.GetValue())
	}
	slices.Sort(parts)
	return fmt.Sprintf("%v", parts)
}

func value(m *dto.Metric) float64 {
	switch {
	case m.GetGauge() != nil:
		return m.GetGauge().GetValue()
	case m.GetCounter() != nil:
		return m.GetCounter().GetValue()
	}
	return 0
}

func init() {
	runCmd.Flags().Uint64Var(&runTicks, "ticks", 0, "Stop after this many ticks (0 = until interrupted)")
	runCmd.Flags().DurationVar(&runDuration, "duration", 0, "Stop after this wall time (0 = until interrupted)")

	scenarioCmd.Flags().IntVar(&scenarioLen, "ticks", 100, "Ticks to run after applying the scenario")
	scenarioCmd.Flags().BoolVar(&scenarioJSON, "json", false, "Print the result as JSON")

	benchCmd.Flags().Uint64Var(&benchTicks, "ticks", 200, "Ticks to run per backend")
}
