/*
Copyright 2026 quic-lab authors.

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

    http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/

// Package workerpool fans a host list out across a fixed-size pool of
// workers (spec.md §4.10), reporting progress either with a TTY spinner
// or a periodic status line, and counting per-host errors.
package workerpool

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"runtime"
	"sync/atomic"
	"time"

	"github.com/schollz/progressbar/v3"
	"golang.org/x/sync/errgroup"
)

const statusInterval = 10 * time.Second

// Stats is returned once every host has been dispatched.
type Stats struct {
	Processed int64
	Errors    int64
	Elapsed   time.Duration
}

// Run dispatches one call to probe per host, at most concurrency at a
// time (0 means runtime.NumCPU()), and reports progress to out.
func Run(ctx context.Context, hosts []string, concurrency int, out io.Writer, log *slog.Logger, probe func(ctx context.Context, host string) error) Stats {
	if concurrency <= 0 {
		concurrency = runtime.NumCPU()
	}

	total := int64(len(hosts))
	start := time.Now()
	var processed, errCount atomic.Int64

	reporter, stop := newReporter(out, total, &processed, &errCount)
	defer stop()

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(concurrency)

	for _, host := range hosts {
		host := host
		g.Go(func() error {
			if err := runProbe(gctx, host, probe, log); err != nil {
				errCount.Add(1)
				log.Error("probe failed", "host", host, "error", err)
			}
			processed.Add(1)
			reporter.tick()
			return nil
		})
	}
	_ = g.Wait()

	return Stats{Processed: processed.Load(), Errors: errCount.Load(), Elapsed: time.Since(start)}
}

// runProbe calls probe for host, converting a panic into an error so one
// host's failure never takes down the rest of the pool (spec.md §7: a
// panic in a worker is isolated to that host).
func runProbe(ctx context.Context, host string, probe func(ctx context.Context, host string) error, log *slog.Logger) (err error) {
	defer func() {
		if r := recover(); r != nil {
			log.Error("probe panicked", "host", host, "panic", r)
			err = fmt.Errorf("panic probing %s: %v", host, r)
		}
	}()
	return probe(ctx, host)
}

// reporter drives either a TTY progress bar (advanced on every
// completion) or a background ticker that logs a status line every
// statusInterval, matching spec.md §4.10.
type reporter struct {
	bar    *progressbar.ProgressBar
	done   chan struct{}
	ticked func()
}

func newReporter(out io.Writer, total int64, processed, errCount *atomic.Int64) (*reporter, func()) {
	if isTerminal(out) {
		bar := progressbar.NewOptions64(total,
			progressbar.OptionSetWriter(out),
			progressbar.OptionShowCount(),
			progressbar.OptionShowIts(),
			progressbar.OptionSetDescription("probing"),
		)
		r := &reporter{bar: bar, ticked: func() { _ = bar.Add(1) }}
		return r, func() { _ = bar.Finish() }
	}

	start := time.Now()
	done := make(chan struct{})
	ticker := time.NewTicker(statusInterval)
	go func() {
		for {
			select {
			case <-ticker.C:
				logStatus(out, total, processed.Load(), errCount.Load(), time.Since(start))
			case <-done:
				ticker.Stop()
				return
			}
		}
	}()

	return &reporter{ticked: func() {}}, func() { close(done) }
}

func (r *reporter) tick() {
	if r.ticked != nil {
		r.ticked()
	}
}

func logStatus(out io.Writer, total, processed, errs int64, elapsed time.Duration) {
	var rate float64
	if elapsed.Seconds() > 0 {
		rate = float64(processed) / elapsed.Seconds()
	}
	var eta time.Duration
	if rate > 0 {
		eta = time.Duration(float64(total-processed)/rate) * time.Second
	}
	fmt.Fprintf(out, "processed=%d/%d elapsed=%s eta=%s rate=%.2f/s errors=%d\n",
		processed, total, elapsed.Round(time.Second), eta.Round(time.Second), rate, errs)
}

func isTerminal(w io.Writer) bool {
	f, ok := w.(*os.File)
	if !ok {
		return false
	}
	info, err := f.Stat()
	if err != nil {
		return false
	}
	return info.Mode()&os.ModeCharDevice != 0
}
