package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"math/rand"
	"os"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	goBlog "github.com/MrEthical07/goBlog"
	"github.com/MrEthical07/goBlog/backend"
	"github.com/MrEthical07/goBlog/router"
	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"
)

type loadTestOptions struct {
	concurrency int
	ops         int
	redisAddr   string
}

// NewLoadTestCmd creates the loadtest subcommand.
func NewLoadTestCmd() *cobra.Command {
	var opts loadTestOptions
	cmd := &cobra.Command{
		Use:   "loadtest",
		Short: "Measure guarded navigation throughput",
		Long: `Loadtest runs concurrent guard decisions against the guarded routes,
first signed out and then signed in, and reports latency percentiles.
Without --redis-addr (or REDIS_ADDR) it runs against an in-process miniredis.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runLoadTest(cmd.Context(), cmd.OutOrStdout(), opts)
		},
	}
	cmd.Flags().IntVar(&opts.concurrency, "concurrency", 64, "number of concurrent workers")
	cmd.Flags().IntVar(&opts.ops, "ops", 20000, "guard decisions per phase")
	cmd.Flags().StringVar(&opts.redisAddr, "redis-addr", "", "redis address; if empty, REDIS_ADDR env or miniredis is used")
	return cmd
}

func runLoadTest(ctx context.Context, out io.Writer, opts loadTestOptions) error {
	if opts.concurrency <= 0 || opts.ops <= 0 {
		return fmt.Errorf("concurrency and ops must be > 0")
	}

	addr := opts.redisAddr
	if addr == "" {
		addr = os.Getenv("REDIS_ADDR")
	}

	var client redis.UniversalClient
	if addr == "" {
		mr, err := miniredis.Run()
		if err != nil {
			return fmt.Errorf("start miniredis: %w", err)
		}
		defer mr.Close()
		addr = mr.Addr()
		fmt.Fprintf(out, "using miniredis at %s\n", addr)
	} else {
		fmt.Fprintf(out, "using redis at %s\n", addr)
	}
	client = redis.NewUniversalClient(&redis.UniversalOptions{Addrs: []string{addr}})
	defer client.Close()

	cfg := goBlog.DefaultConfig()
	cfg.Backend.URL = "redis://" + addr
	cfg.Backend.Key = "loadtest-signing-key-0123456789"
	cfg.Backend.Prefix = fmt.Sprintf("goblog-loadtest-%d", time.Now().UnixNano())
	cfg.Audit.Enabled = false

	app, err := goBlog.New().
		WithConfig(cfg).
		WithRedis(client).
		WithStorage(&backend.MemoryStorage{}).
		WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil))).
		Build(ctx)
	if err != nil {
		return err
	}
	defer app.Close()

	table := app.Router().Table()
	var targets []router.Location
	for _, path := range []string{"/create", "/posts/01HZZZZZZZZZZZZZZZZZZZZZZZ/edit", "/"} {
		loc, err := table.Resolve(path)
		if err != nil {
			return err
		}
		targets = append(targets, loc)
	}

	anonymous := runGuardPhase(ctx, app.Router(), targets, opts.ops, opts.concurrency, false)

	if _, err := app.Client().SignUp(ctx, "loadtest@example.com", "loadtest-password", "loadtest"); err != nil {
		return err
	}
	signedIn := runGuardPhase(ctx, app.Router(), targets, opts.ops, opts.concurrency, true)

	fmt.Fprintln(out, "---- results ----")
	printStats(out, "signed-out", anonymous)
	printStats(out, "signed-in", signedIn)
	return nil
}

// runGuardPhase counts a decision as failed when it disagrees with wantUser.
func runGuardPhase(ctx context.Context, rt *router.Router, targets []router.Location, ops, concurrency int, wantUser bool) phaseStats {
	var (
		wg        sync.WaitGroup
		cursor    int64
		failures  int64
		latencies = make([]time.Duration, 0, ops)
		mu        sync.Mutex
	)

	start := time.Now()
	for w := 0; w < concurrency; w++ {
		wg.Add(1)
		go func(worker int) {
			defer wg.Done()
			r := rand.New(rand.NewSource(time.Now().UnixNano() + int64(worker)*7919))
			for {
				i := int(atomic.AddInt64(&cursor, 1)) - 1
				if i >= ops {
					return
				}
				to := targets[r.Intn(len(targets))]
				t0 := time.Now()
				d := rt.Authorize(ctx, to, router.Location{})
				elapsed := time.Since(t0)
				if d.Err != nil || (to.RequiresAuth() && d.Allowed() != wantUser) {
					atomic.AddInt64(&failures, 1)
				}
				mu.Lock()
				latencies = append(latencies, elapsed)
				mu.Unlock()
			}
		}(w)
	}
	wg.Wait()
	return computeStats(time.Since(start), latencies, failures)
}

type phaseStats struct {
	total    time.Duration
	ops      int
	failures int64
	p50      time.Duration
	p95      time.Duration
	p99      time.Duration
	opsPerS  float64
}

func computeStats(total time.Duration, samples []time.Duration, failures int64) phaseStats {
	if len(samples) == 0 {
		return phaseStats{total: total, failures: failures}
	}
	sort.Slice(samples, func(i, j int) bool { return samples[i] < samples[j] })
	return phaseStats{
		total:    total,
		ops:      len(samples),
		failures: failures,
		p50:      percentile(samples, 50),
		p95:      percentile(samples, 95),
		p99:      percentile(samples, 99),
		opsPerS:  float64(len(samples)) / total.Seconds(),
	}
}

// percentile expects sorted samples.
func percentile(samples []time.Duration, p int) time.Duration {
	if len(samples) == 0 {
		return 0
	}
	if p <= 0 {
		return samples[0]
	}
	if p >= 100 {
		return samples[len(samples)-1]
	}
	return samples[(len(samples)-1)*p/100]
}

func printStats(w io.Writer, name string, s phaseStats) {
	fmt.Fprintf(w, "%s: ops=%d failures=%d total=%s ops/sec=%.0f p50=%s p95=%s p99=%s\n",
		name,
		s.ops,
		s.failures,
		s.total.Round(time.Millisecond),
		s.opsPerS,
		s.p50.Round(time.Microsecond),
		s.p95.Round(time.Microsecond),
		s.p99.Round(time.Microsecond),
	)
}
