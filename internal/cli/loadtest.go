package cli

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"sort"
	"strings"
	"syscall"

	"github.com/olekukonko/tablewriter"
	"github.com/pkg/errors"
	"github.com/spf13/cobra"

	"github.com/fanbench/fanbench/internal/loadgen"
	"github.com/fanbench/fanbench/internal/metrics"
	"github.com/fanbench/fanbench/internal/output"
	"github.com/fanbench/fanbench/internal/report"
)

var (
	loadProfiles string
	loadPolicy   string
	loadOutDir   string
)

var loadtestCmd = &cobra.Command{
	Use:   "loadtest",
	Short: "Run ramped multi-user load tests and write a JSON report",
	Long: `Loadtest drives each configured profile against each selected scheduling
policy with a ramped population of virtual users, then writes one JSON
result document with throughput, error rates and latency percentiles.
Failures inside a run are reported in the output and the document, not
via the exit code; only setup failures exit non-zero.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		return runLoadtest()
	},
}

func runLoadtest() error {
	policies, err := parsePolicies(loadPolicy)
	if err != nil {
		return err
	}
	profiles, err := selectProfiles(loadProfiles)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	scheme := output.SchemeFor(os.Stdout)
	doc := report.NewDocument(runConfiguration())

	for _, profile := range profiles {
		for _, policy := range policies {
			// One collector per run: create, concurrent writes, snapshot.
			collector := metrics.NewCollector()
			s := buildStack(cfg, policy, collector)

			scheme.Highlight.Printf("\n== profile %s / %s: %d users, %s (ramp %s) ==\n",
				profile.Name, s.impl, profile.Users, profile.Duration, profile.RampUp)

			gen := loadgen.New(loadgen.Config{
				UnitsPerUser: cfg.Load.UnitsPerUser,
				ThinkTimeMax: cfg.Load.ThinkTimeMax.Std(),
				Progress:     os.Stdout,
			}, s.driver, collector, s.impl)

			summary := gen.Run(ctx, profile)
			doc.Add(summary)

			if err := s.close(); err != nil {
				scheme.Warn.Printf("substrate drain: %v\n", err)
			}

			if ctx.Err() != nil {
				scheme.Warn.Println("interrupted; writing partial results")
				break
			}
		}
		if ctx.Err() != nil {
			break
		}
	}

	printSummaries(doc)

	dir := cfg.Results.Dir
	if loadOutDir != "" {
		dir = loadOutDir
	}
	path, err := report.NewWriter(dir).Write(doc)
	if err != nil {
		return err
	}
	fmt.Printf("\nreport written to %s\n", path)
	return nil
}

// selectProfiles filters the configured profiles by the --profiles flag.
func selectProfiles(value string) ([]loadgen.Profile, error) {
	all := cfg.Profiles()
	if value == "" {
		return all, nil
	}

	byName := make(map[string]loadgen.Profile, len(all))
	for _, p := range all {
		byName[p.Name] = p
	}

	var selected []loadgen.Profile
	for _, name := range strings.Split(value, ",") {
		name = strings.TrimSpace(name)
		p, ok := byName[name]
		if !ok {
			return nil, errors.Errorf("unknown profile %q", name)
		}
		selected = append(selected, p)
	}
	return selected, nil
}

func printSummaries(doc *report.Document) {
	fmt.Println()
	table := tablewriter.NewWriter(os.Stdout)
	table.SetHeader([]string{"Profile", "Impl", "Requests", "Errors", "RPS", "Err %", "P50 (ms)", "P95 (ms)", "P99 (ms)"})

	for _, profile := range sortedKeys(doc.Results) {
		impls := doc.Results[profile]
		for _, impl := range sortedKeys(impls) {
			s := impls[impl]
			table.Append([]string{
				s.Profile,
				s.Impl,
				fmt.Sprintf("%d", s.TotalRequests),
				fmt.Sprintf("%d", s.TotalErrors),
				fmt.Sprintf("%.1f", s.Throughput),
				fmt.Sprintf("%.1f", s.ErrorRate),
				fmt.Sprintf("%.1f", s.Latency.P50),
				fmt.Sprintf("%.1f", s.Latency.P95),
				fmt.Sprintf("%.1f", s.Latency.P99),
			})
		}
	}
	table.Render()
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// runConfiguration captures the effective configuration for the report.
func runConfiguration() map[string]any {
	return map[string]any{
		"pool_size":      cfg.Pool.Size,
		"min_workers":    cfg.Substrate.MinWorkers,
		"max_workers":    cfg.Substrate.MaxWorkers,
		"queue_size":     cfg.Substrate.QueueSize,
		"fetch_timeout":  cfg.Processor.FetchTimeout.Std().String(),
		"batch_timeout":  cfg.Processor.BatchTimeout.Std().String(),
		"units_per_user": cfg.Load.UnitsPerUser,
		"failure_rate":   cfg.Client.FailureRate,
		"version":        version,
	}
}

func init() {
	loadtestCmd.Flags().StringVar(&loadProfiles, "profiles", "", "comma-separated profile names (default: all configured)")
	loadtestCmd.Flags().StringVar(&loadPolicy, "policy", "both", "scheduling policy: worker-pool, goroutine or both")
	loadtestCmd.Flags().StringVar(&loadOutDir, "output", "", "results directory (overrides config)")
}
