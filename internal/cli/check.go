package cli

import (
	"context"
	"fmt"
	"os"
	"runtime"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/hashicorp/go-multierror"
	"github.com/pkg/errors"
	"github.com/spf13/cobra"

	"github.com/fanbench/fanbench/internal/client"
	"github.com/fanbench/fanbench/internal/output"
	"github.com/fanbench/fanbench/internal/pool"
	"github.com/fanbench/fanbench/internal/substrate"
)

var checkCmd = &cobra.Command{
	Use:   "check",
	Short: "Verify the environment can run the benchmarks",
	Long: `Check prints runtime and host information, then verifies that every
component of the benchmark pipeline can be constructed and exercised:
the simulated client, the client pool, and both scheduling substrates.
All failures are reported together; the command exits non-zero if any
check fails.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		return runCheck()
	},
}

type envCheck struct {
	name string
	fn   func() error
}

func runCheck() error {
	scheme := output.SchemeFor(os.Stdout)
	noColor := !output.IsTerminal(os.Stdout)

	fmt.Printf("fanbench %s\n", version)
	fmt.Printf("  go version:  %s\n", runtime.Version())
	fmt.Printf("  os/arch:     %s/%s\n", runtime.GOOS, runtime.GOARCH)
	fmt.Printf("  cpus:        %d (GOMAXPROCS %d)\n", runtime.NumCPU(), runtime.GOMAXPROCS(0))

	var ms runtime.MemStats
	runtime.ReadMemStats(&ms)
	fmt.Printf("  heap in use: %s\n", humanize.Bytes(ms.HeapInuse))
	fmt.Printf("  sys memory:  %s\n\n", humanize.Bytes(ms.Sys))

	checks := []envCheck{
		{"simulated client round-trip", checkClient},
		{"client pool acquire/release", checkPool},
		{"bounded worker-pool substrate", checkWorkerPool},
		{"cheap-task substrate", checkGoroutine},
		{"results directory writable", checkResultsDir},
	}

	var result *multierror.Error
	for _, c := range checks {
		if err := c.fn(); err != nil {
			result = multierror.Append(result, errors.Wrap(err, c.name))
			fmt.Printf("%s %s: %v\n", output.ErrorIcon(noColor), c.name, err)
			continue
		}
		fmt.Printf("%s %s\n", output.SuccessIcon(noColor), c.name)
	}

	if err := result.ErrorOrNil(); err != nil {
		fmt.Println()
		scheme.Error.Println("environment check failed")
		return err
	}

	fmt.Println()
	scheme.Success.Println("environment ok")
	return nil
}

func checkClient() error {
	c := client.New(client.Config{BaseLatency: time.Millisecond})
	_, err := c.Fetch(context.Background(), "primary", "check")
	return err
}

func checkPool() error {
	p := pool.New(pool.Config{Size: 1, AcquireTimeout: time.Second},
		func() (client.Client, error) {
			return client.New(client.Config{}), nil
		})
	defer p.Close()

	return p.With(context.Background(), func(c client.Client) error {
		_, err := c.Fetch(context.Background(), "primary", "check")
		return err
	})
}

func checkWorkerPool() error {
	return checkSubstrate(substrate.NewWorkerPool(substrate.WorkerPoolConfig{
		MinWorkers: 1,
		MaxWorkers: 2,
		QueueSize:  4,
	}))
}

func checkGoroutine() error {
	g, err := substrate.NewGoroutine(substrate.GoroutineConfig{})
	if err != nil {
		return err
	}
	return checkSubstrate(g)
}

func checkSubstrate(s substrate.Substrate) error {
	defer s.Shutdown(time.Second)

	h := s.Submit(func(ctx context.Context) (any, error) {
		return "ok", nil
	})
	_, err := h.Await(time.Second)
	return err
}

func checkResultsDir() error {
	dir := cfg.Results.Dir
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}
	probe, err := os.CreateTemp(dir, ".check-*")
	if err != nil {
		return err
	}
	name := probe.Name()
	probe.Close()
	return os.Remove(name)
}
