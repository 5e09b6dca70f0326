package main

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/warp/variance-engine/cli"
	"github.com/warp/variance-engine/factory"
	"github.com/warp/variance-engine/ingest"
	"github.com/warp/variance-engine/reconcile"
	"github.com/warp/variance-engine/variance"
)

type analyzeOptions struct {
	orgID      string
	boardID    string
	period     string
	budgets    string
	actuals    string
	dir        string
	thresholds string
	previous   string
	save       bool
	refresh    bool
}

func newAnalyzeCmd(root *rootOptions) *cobra.Command {
	opts := &analyzeOptions{}

	cmd := &cobra.Command{
		Use:   "analyze",
		Short: "Analyze one org/board/period and record the run",
		Long: `Analyze budgets against actuals for one period.

Items come from, in order of preference:
  --budgets/--actuals  files (factory JSON array, board export or report)
  --dir                an export tree (<dir>/<org>/<board>/<period>.budgets.json)
  the database         items saved by the server or by --save

Every run is recorded; the latest run of the previous period is the trend
baseline unless --previous names a file.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runAnalyze(cmd, root, opts)
		},
	}

	f := cmd.Flags()
	f.StringVar(&opts.orgID, "org", "local", "Organization ID")
	f.StringVar(&opts.boardID, "board", "default", "Budget board ID")
	f.StringVarP(&opts.period, "period", "p", "", "Period (YYYY-MM)")
	f.StringVar(&opts.budgets, "budgets", "", "Budget items file (- for stdin)")
	f.StringVar(&opts.actuals, "actuals", "", "Actual items file (- for stdin)")
	f.StringVar(&opts.dir, "dir", "", "Export directory")
	f.StringVar(&opts.thresholds, "thresholds", "", "Thresholds file (JSON or YAML) for this run only")
	f.StringVar(&opts.previous, "previous", "", "Previous run or result JSON used as trend baseline")
	f.BoolVar(&opts.save, "save", false, "Save file items to the database")
	f.BoolVar(&opts.refresh, "refresh", false, "Ignore cached results")
	_ = cmd.MarkFlagRequired("period")

	return cmd
}

func runAnalyze(cmd *cobra.Command, root *rootOptions, opts *analyzeOptions) error {
	ctx := cmd.Context()

	e, err := root.open(ctx, cmd.ErrOrStderr())
	if err != nil {
		return err
	}
	defer e.Close()

	period, err := variance.ParsePeriod(opts.period)
	if err != nil {
		return err
	}

	svc := reconcile.New(e.store, e.store, e.store, e.store, e.log).WithCache(e.store, e.cfg.Cache.TTL.Duration)
	req := reconcile.Request{
		OrgID:   opts.orgID,
		BoardID: opts.boardID,
		Period:  opts.period,
		Refresh: opts.refresh,
	}

	switch {
	case opts.budgets != "" || opts.actuals != "":
		static, err := readItemFiles(cmd, opts, period)
		if err != nil {
			return err
		}
		if opts.save {
			if err := e.store.SaveBudgets(ctx, opts.orgID, opts.boardID, opts.period, static.BudgetItems); err != nil {
				return err
			}
			if err := e.store.SaveActuals(ctx, opts.orgID, opts.period, static.ActualItems); err != nil {
				return err
			}
			if err := svc.Invalidate(ctx, req.Key()); err != nil {
				return err
			}
		}
		req.Budgets, req.Actuals = static, static
	case opts.dir != "":
		dir := ingest.NewDir(opts.dir)
		req.Budgets, req.Actuals = dir, dir
	}

	if opts.thresholds != "" {
		data, err := readInput(opts.thresholds, cmd.InOrStdin())
		if err != nil {
			return err
		}
		cfg, err := factory.New().ParseThresholds(data)
		if err != nil {
			return err
		}
		req.Thresholds = &cfg
	}

	if opts.previous != "" {
		data, err := readInput(opts.previous, cmd.InOrStdin())
		if err != nil {
			return err
		}
		prev, err := decodePrevious(data)
		if err != nil {
			return err
		}
		req.Previous = prev
	}

	out, err := svc.Run(ctx, req)
	if err != nil {
		return err
	}

	if root.jsonOut {
		return writeJSON(cmd.OutOrStdout(), out)
	}
	fmt.Fprintln(cmd.OutOrStdout())
	fmt.Fprint(cmd.OutOrStdout(), cli.RenderRun(out.Run))
	if out.Cached {
		fmt.Fprintln(cmd.OutOrStdout(), "\n  (cached result, use --refresh to re-run)")
	}
	return nil
}

func readItemFiles(cmd *cobra.Command, opts *analyzeOptions, period variance.Period) (ingest.Static, error) {
	if opts.budgets == "-" && opts.actuals == "-" {
		return ingest.Static{}, errors.New("only one of --budgets and --actuals can read stdin")
	}

	var static ingest.Static
	if opts.budgets != "" {
		data, err := readInput(opts.budgets, cmd.InOrStdin())
		if err != nil {
			return static, err
		}
		if static.BudgetItems, err = ingest.DecodeBudgets(data, period, ingest.DefaultBoardMapping()); err != nil {
			return static, fmt.Errorf("budgets: %w", err)
		}
	}
	if opts.actuals != "" {
		data, err := readInput(opts.actuals, cmd.InOrStdin())
		if err != nil {
			return static, err
		}
		if static.ActualItems, err = ingest.DecodeActuals(data, period); err != nil {
			return static, fmt.Errorf("actuals: %w", err)
		}
	}
	return static, nil
}

// decodePrevious accepts either a full run (as printed by --json or the
// API) or a bare result.
func decodePrevious(data []byte) (*variance.AnalysisResult, error) {
	var probe struct {
		Run    *variance.AnalysisRun    `json:"run"`
		Result *variance.AnalysisResult `json:"result"`
	}
	if err := json.Unmarshal(data, &probe); err != nil {
		return nil, fmt.Errorf("failed to parse previous result: %w", err)
	}
	switch {
	case probe.Run != nil:
		return &probe.Run.Result, nil
	case probe.Result != nil:
		return probe.Result, nil
	}

	var result variance.AnalysisResult
	if err := json.Unmarshal(data, &result); err != nil {
		return nil, fmt.Errorf("failed to parse previous result: %w", err)
	}
	return &result, nil
}
