package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	jsoniter "github.com/json-iterator/go"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"

	"payloadbuilder/pkg/config"
	"payloadbuilder/pkg/examples"
	"payloadbuilder/pkg/execution"
	"payloadbuilder/pkg/logging"
	"payloadbuilder/pkg/ui"
)

// app is the state shared by the commands of one invocation.
type app struct {
	configPath  string
	metricsAddr string
	logLevel    string

	customers int
	maxOrders int

	session  *execution.Session
	closeFns []func() error
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	if err := run(ctx, os.Args[1:], os.Stdout, os.Stderr); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// run executes the command line args and releases everything setup
// acquired, whether the command failed or not.
func run(ctx context.Context, args []string, stdout, stderr io.Writer) error {
	a := &app{}
	root := newRootCmd(a)
	root.SetArgs(args)
	root.SetOut(stdout)
	root.SetErr(stderr)

	err := root.ExecuteContext(ctx)
	return errors.Join(err, a.teardown())
}

func newRootCmd(a *app) *cobra.Command {
	root := &cobra.Command{
		Use:           "payloadbuilder",
		Short:         "Run join plans over a sample customers and orders dataset",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			return a.setup(cmd.Context(), cmd.ErrOrStderr())
		},
	}

	flags := root.PersistentFlags()
	flags.StringVar(&a.configPath, "config", "", "YAML configuration file")
	flags.StringVar(&a.metricsAddr, "metrics-addr", "", "serve Prometheus metrics on this address, overrides metrics.addr")
	flags.StringVar(&a.logLevel, "log-level", "", "log level, overrides logging.level")
	flags.IntVar(&a.customers, "customers", 20, "number of sample customers")
	flags.IntVar(&a.maxOrders, "max-orders", 3, "maximum number of orders per customer")

	root.AddCommand(newDemoCmd(a), newCompareCmd(a))
	return root
}

func (a *app) setup(ctx context.Context, stderr io.Writer) error {
	cfg, err := config.Load(a.configPath)
	if err != nil {
		return err
	}
	if a.metricsAddr != "" {
		cfg.Metrics.Addr = a.metricsAddr
	}
	if a.logLevel != "" {
		cfg.Logging.Level = a.logLevel
	}

	lc := cfg.LoggerConfig()
	if lc.OutputPath == "" {
		lc.Writer = stderr
	}
	// Drop the default logger a package may have created lazily.
	if err := logging.Close(); err != nil {
		return err
	}
	if err := logging.Init(lc); err != nil {
		return err
	}
	a.closeFns = append(a.closeFns, logging.Close)

	var reg *prometheus.Registry
	if cfg.Metrics.Addr != "" {
		reg = prometheus.NewRegistry()
	}
	session, closeSession, err := cfg.Session(ctx, reg)
	if err != nil {
		return err
	}
	a.session = session
	a.closeFns = append(a.closeFns, closeSession)

	if reg != nil {
		exporter, err := session.Metrics.Serve(cfg.Metrics.Addr)
		if err != nil {
			return err
		}
		a.closeFns = append(a.closeFns, func() error {
			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			return exporter.Shutdown(ctx)
		})
	}
	return nil
}

func (a *app) teardown() error {
	var errs []error
	for i := len(a.closeFns) - 1; i >= 0; i-- {
		errs = append(errs, a.closeFns[i]())
	}
	a.closeFns = nil
	return errors.Join(errs...)
}

func (a *app) dataset() (*examples.Dataset, error) {
	d := examples.NewDataset(a.customers, a.maxOrders)
	if err := d.Register(a.session.Catalog); err != nil {
		return nil, err
	}
	return d, nil
}

// planFlags binds the flags shaping the join plan.
func planFlags(cmd *cobra.Command, opts *examples.PlanOptions) {
	f := cmd.Flags()
	f.BoolVar(&opts.Populate, "populate", false, "nest the orders of a customer into one collection")
	f.BoolVar(&opts.Left, "left", false, "keep customers without orders")
	f.Float64Var(&opts.MinAmount, "min-amount", 0, "only join orders with at least this amount")
	f.IntVar(&opts.BatchSize, "batch-size", 0, "batch size of the batching joins, defaults to the session setting")
	f.BoolVar(&opts.Cache, "cache", false, "put a batch cache in front of the orders index")
	f.BoolVar(&opts.Parallel, "parallel", false, "run batch hash joins over batches on a worker pool")
}

func newDemoCmd(a *app) *cobra.Command {
	var (
		strategy    string
		interactive bool
		opts        examples.PlanOptions
	)
	cmd := &cobra.Command{
		Use:   "demo",
		Short: "Run one join strategy and show its rows and plan",
		RunE: func(cmd *cobra.Command, _ []string) error {
			s, err := examples.ParseStrategy(strategy)
			if err != nil {
				return err
			}
			d, err := a.dataset()
			if err != nil {
				return err
			}

			res, err := d.Execute(cmd.Context(), a.session, s, opts)
			if err != nil {
				return err
			}
			result := toResult(res)

			if interactive {
				_, err := tea.NewProgram(ui.NewModel(result), tea.WithAltScreen(), tea.WithContext(cmd.Context())).Run()
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), ui.Render(result))
			return res.Err
		},
	}
	cmd.Flags().StringVar(&strategy, "strategy", string(examples.BatchHash), "join strategy: nested, hash, batch-hash or batch-merge")
	cmd.Flags().BoolVar(&interactive, "interactive", false, "browse the result in the terminal")
	planFlags(cmd, &opts)
	return cmd
}

func newCompareCmd(a *app) *cobra.Command {
	var (
		iterations  int
		asJSON      bool
		interactive bool
		opts        examples.PlanOptions
	)
	cmd := &cobra.Command{
		Use:   "compare",
		Short: "Run every join strategy concurrently and check they agree",
		RunE: func(cmd *cobra.Command, _ []string) error {
			d, err := a.dataset()
			if err != nil {
				return err
			}
			report, err := d.Compare(cmd.Context(), a.session, opts, iterations)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			switch {
			case asJSON:
				data, err := jsoniter.ConfigCompatibleWithStandardLibrary.MarshalIndent(report, "", "  ")
				if err != nil {
					return err
				}
				fmt.Fprintln(out, string(data))
			case interactive:
				results := make([]ui.Result, len(report.Runs))
				for i, r := range report.Runs {
					results[i] = toResult(r)
				}
				if _, err := tea.NewProgram(ui.NewModel(results...), tea.WithAltScreen(), tea.WithContext(cmd.Context())).Run(); err != nil {
					return err
				}
			default:
				fmt.Fprintln(out, ui.Render(timingResult(report)))
			}

			if !report.Equivalent() {
				return fmt.Errorf("strategies disagree with %s: %v", report.Runs[0].Strategy, report.Mismatches)
			}
			return nil
		},
	}
	cmd.Flags().IntVar(&iterations, "iterations", 5, "runs per strategy")
	cmd.Flags().BoolVar(&asJSON, "json", false, "print the report as JSON")
	cmd.Flags().BoolVar(&interactive, "interactive", false, "browse the rows of every strategy in the terminal")
	planFlags(cmd, &opts)
	return cmd
}

func toResult(run examples.Run) ui.Result {
	r := ui.NewResult(string(run.Strategy), run.Rows)
	r.Plan = run.Plan
	r.Elapsed = run.Elapsed
	r.Err = run.Err
	return r
}

func timingResult(report examples.Report) ui.Result {
	r := ui.Result{
		Title:   "compare",
		Columns: []string{"strategy", "rows", "iterations", "avg", "min", "median", "p95", "max", "agrees"},
	}
	mismatched := make(map[string]bool, len(report.Mismatches))
	for _, m := range report.Mismatches {
		mismatched[m] = true
	}
	for _, t := range report.Timings {
		r.Rows = append(r.Rows, []string{
			string(t.Strategy),
			fmt.Sprint(t.Rows),
			fmt.Sprint(t.Iterations),
			t.Avg.String(),
			t.Min.String(),
			t.Median.String(),
			t.P95.String(),
			t.Max.String(),
			fmt.Sprint(!mismatched[string(t.Strategy)]),
		})
		r.Elapsed += t.Avg * time.Duration(t.Iterations)
	}
	return r
}
