package examples

import (
	"context"
	"fmt"
	"slices"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	"payloadbuilder/pkg/execution"
	"payloadbuilder/pkg/logging"
	"payloadbuilder/pkg/tuple"
)

// Run is one execution of a plan.
type Run struct {
	Strategy Strategy
	Rows     []tuple.Tuple
	// Plan is the explained plan with the statistics of the run.
	Plan    string
	Elapsed time.Duration
	Err     error
}

// Execute builds and drains the plan of strategy s once. Plan building
// errors are returned; execution errors are reported in the Run.
func (d *Dataset) Execute(ctx context.Context, session *execution.Session, s Strategy, opts PlanOptions) (Run, error) {
	op, err := d.Plan(s, session.Catalog, opts)
	if err != nil {
		return Run{}, err
	}

	ectx := execution.ForPlan(ctx, session, op)
	start := time.Now()
	rows, err := execution.Drain(ectx, op)
	run := Run{
		Strategy: s,
		Rows:     rows,
		Elapsed:  time.Since(start),
		Err:      err,
	}
	run.Plan = execution.Explain(op, ectx)
	session.Metrics.RecordQuery(string(s), run.Elapsed, err)

	ectx.Logger().Debug("plan executed", "strategy", s, "rows", len(rows), "elapsed", run.Elapsed, "error", err)
	return run, nil
}

// Timing summarizes the repeated runs of one strategy.
type Timing struct {
	Strategy   Strategy      `json:"strategy"`
	Iterations int           `json:"iterations"`
	Rows       int           `json:"rows"`
	Avg        time.Duration `json:"avg_ns"`
	Min        time.Duration `json:"min_ns"`
	Max        time.Duration `json:"max_ns"`
	Median     time.Duration `json:"median_ns"`
	P95        time.Duration `json:"p95_ns"`
}

// Report is the outcome of Compare.
type Report struct {
	Runs    []Run    `json:"-"`
	Timings []Timing `json:"timings"`
	// Mismatches lists the strategies whose rows differ from the first one.
	Mismatches []string `json:"mismatches,omitempty"`
}

// Equivalent reports whether every strategy produced the same rows.
func (r Report) Equivalent() bool {
	return len(r.Mismatches) == 0
}

// Compare runs every strategy concurrently, each iterations times, and
// checks that they produce the same multiset of rows. The first failing
// strategy cancels the others.
func (d *Dataset) Compare(ctx context.Context, session *execution.Session, opts PlanOptions, iterations int) (Report, error) {
	if iterations <= 0 {
		iterations = 1
	}
	strategies := Strategies()
	report := Report{
		Runs:    make([]Run, len(strategies)),
		Timings: make([]Timing, len(strategies)),
	}

	g, gctx := errgroup.WithContext(ctx)
	for i, s := range strategies {
		g.Go(func() error {
			durations := make([]time.Duration, 0, iterations)
			var last Run
			for range iterations {
				run, err := d.Execute(gctx, session, s, opts)
				if err != nil {
					return err
				}
				if run.Err != nil {
					return fmt.Errorf("%s: %w", s, run.Err)
				}
				durations = append(durations, run.Elapsed)
				last = run
			}
			report.Runs[i] = last
			report.Timings[i] = timing(s, len(last.Rows), durations)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return Report{}, err
	}

	reference := Canonical(report.Runs[0].Rows)
	for _, run := range report.Runs[1:] {
		if !slices.Equal(reference, Canonical(run.Rows)) {
			report.Mismatches = append(report.Mismatches, string(run.Strategy))
		}
	}
	if !report.Equivalent() {
		logging.WithComponent("compare").Warn("strategies disagree",
			"reference", report.Runs[0].Strategy, "mismatches", report.Mismatches)
	}
	return report, nil
}

func timing(s Strategy, rows int, durations []time.Duration) Timing {
	sorted := slices.Clone(durations)
	slices.Sort(sorted)

	var total time.Duration
	for _, d := range sorted {
		total += d
	}
	return Timing{
		Strategy:   s,
		Iterations: len(sorted),
		Rows:       rows,
		Avg:        total / time.Duration(len(sorted)),
		Min:        sorted[0],
		Max:        sorted[len(sorted)-1],
		Median:     sorted[len(sorted)/2],
		P95:        sorted[(len(sorted)*95)/100],
	}
}

// Canonical renders rows so results of different strategies compare equal
// regardless of output order. Collection members are sorted as well.
func Canonical(rows []tuple.Tuple) []string {
	out := make([]string, len(rows))
	for i, r := range rows {
		out[i] = canonical(r)
	}
	slices.Sort(out)
	return out
}

func canonical(t tuple.Tuple) string {
	switch v := t.(type) {
	case *tuple.CompositeTuple:
		parts := make([]string, 0, v.Len())
		for _, m := range v.Members() {
			parts = append(parts, canonical(m))
		}
		return strings.Join(parts, " + ")
	case *tuple.CollectionTuple:
		parts := make([]string, 0, v.Len())
		for _, m := range v.Members() {
			parts = append(parts, canonical(m))
		}
		slices.Sort(parts)
		return fmt.Sprintf("#%d{%s}", v.TupleOrdinal(), strings.Join(parts, "; "))
	default:
		return tuple.Format(t)
	}
}
