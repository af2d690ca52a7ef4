package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"sort"

	"github.com/dustin/go-humanize"
	"github.com/olekukonko/tablewriter"
	"github.com/spf13/cobra"

	"github.com/fanbench/fanbench/internal/metrics"
	"github.com/fanbench/fanbench/internal/output"
	"github.com/fanbench/fanbench/internal/unit"
)

var (
	benchUnits  int
	benchPolicy string
	benchJSON   string
)

var benchCmd = &cobra.Command{
	Use:   "bench",
	Short: "Run a single-shot batch benchmark",
	Long: `Bench generates a batch of work units and processes it once through each
selected scheduling policy, then prints per-operation timing statistics
and error rates. Partial failures inside a batch are reported in the
output, not via the exit code.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		return runBench()
	},
}

func runBench() error {
	policies, err := parsePolicies(benchPolicy)
	if err != nil {
		return err
	}

	scheme := output.SchemeFor(os.Stdout)
	collector := metrics.NewCollector()
	units := unit.Generate(benchUnits)
	ctx := context.Background()

	for _, policy := range policies {
		s := buildStack(cfg, policy, collector)

		scheme.Highlight.Printf("\n== %s: %d units ==\n", s.impl, len(units))
		collector.RecordMemory(s.impl)
		results := s.driver.ProcessBatch(ctx, units)
		collector.RecordMemory(s.impl)

		succeeded, failed := 0, 0
		for _, r := range results {
			if r.Failed() {
				failed++
			} else {
				succeeded++
			}
		}
		fmt.Printf("processed %d units: %d succeeded, %d failed\n",
			len(results), succeeded, failed)
		if len(results) == 0 && len(units) > 0 {
			scheme.Warn.Println("batch degraded to empty result; see logs")
		}

		if stats := s.sub.Stats(); stats != nil {
			fmt.Printf("substrate: %d completed, %d workers (%d active), queue %d\n",
				stats.CompletedTasks, stats.PoolSize, stats.ActiveWorkers, stats.QueueLength)
		}

		if err := s.close(); err != nil {
			scheme.Warn.Printf("substrate drain: %v\n", err)
		}
	}

	printStatistics(collector.Statistics())

	if benchJSON != "" {
		if err := writeStatsJSON(collector.Statistics(), benchJSON); err != nil {
			return err
		}
		fmt.Printf("\nstatistics written to %s\n", benchJSON)
	}
	return nil
}

func printStatistics(stats *metrics.Statistics) {
	ops := make([]string, 0, len(stats.Timings))
	for op := range stats.Timings {
		ops = append(ops, op)
	}
	sort.Strings(ops)

	fmt.Println()
	table := tablewriter.NewWriter(os.Stdout)
	table.SetHeader([]string{"Operation", "Count", "Min (ms)", "Max (ms)", "Avg (ms)", "P95 (ms)", "P99 (ms)"})
	for _, op := range ops {
		t := stats.Timings[op]
		table.Append([]string{
			op,
			fmt.Sprintf("%d", t.Count),
			fmt.Sprintf("%.2f", t.Min),
			fmt.Sprintf("%.2f", t.Max),
			fmt.Sprintf("%.2f", t.Avg),
			fmt.Sprintf("%.2f", t.P95),
			fmt.Sprintf("%.2f", t.P99),
		})
	}
	table.Render()

	if len(stats.Memory) > 0 {
		fmt.Println()
		memTable := tablewriter.NewWriter(os.Stdout)
		memTable.SetHeader([]string{"Implementation", "Heap Min", "Heap Max", "Heap Avg"})
		impls := make([]string, 0, len(stats.Memory))
		for impl := range stats.Memory {
			impls = append(impls, impl)
		}
		sort.Strings(impls)
		for _, impl := range impls {
			m := stats.Memory[impl]
			memTable.Append([]string{
				impl,
				humanize.Bytes(m.Min),
				humanize.Bytes(m.Max),
				humanize.Bytes(uint64(m.Avg)),
			})
		}
		memTable.Render()
	}

	if len(stats.ErrorRates) > 0 {
		fmt.Println()
		errTable := tablewriter.NewWriter(os.Stdout)
		errTable.SetHeader([]string{"Implementation", "Errors", "Rate (%)"})
		impls := make([]string, 0, len(stats.ErrorRates))
		for impl := range stats.ErrorRates {
			impls = append(impls, impl)
		}
		sort.Strings(impls)
		for _, impl := range impls {
			e := stats.ErrorRates[impl]
			errTable.Append([]string{impl, fmt.Sprintf("%d", e.Count), fmt.Sprintf("%.2f", e.Rate)})
		}
		errTable.Render()
	}
}

func writeStatsJSON(stats *metrics.Statistics, path string) error {
	data, err := json.MarshalIndent(stats, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o644)
}

func init() {
	benchCmd.Flags().IntVar(&benchUnits, "units", 100, "number of work units in the batch")
	benchCmd.Flags().StringVar(&benchPolicy, "policy", "both", "scheduling policy: worker-pool, goroutine or both")
	benchCmd.Flags().StringVar(&benchJSON, "json", "", "write raw statistics to this JSON file")
}
