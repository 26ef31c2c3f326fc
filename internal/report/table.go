// Package report renders evaluation and probe results for the terminal.
package report

import (
	"fmt"
	"io"
	"text/tabwriter"

	"github.com/crypto-trading/impactcurve/internal/domain"
	"github.com/crypto-trading/impactcurve/internal/evaluation"
)

// WriteErrorTable prints one row per compared test point followed by the
// summary line.
func WriteErrorTable(w io.Writer, errs []evaluation.PointError, stats evaluation.ErrorStats) error {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', tabwriter.AlignRight)
	fmt.Fprintln(tw, "AMOUNT\tINTERPOLATED\tACTUAL\tERROR %\tIMPACT BPS\t")
	for _, e := range errs {
		fmt.Fprintf(tw, "%d\t%.2f\t%.2f\t%.4f\t%.1f\t\n", e.Amount, e.Interpolated, e.Actual, e.ErrorPct, e.ImpactBps)
	}
	if err := tw.Flush(); err != nil {
		return err
	}
	_, err := fmt.Fprintf(w, "compared=%d max=%.4f%% mean=%.4f%% below %.4f%%: %d/%d\n",
		stats.Compared, stats.MaxErrorPct, stats.MeanErrorPct, stats.ThresholdPct, stats.BelowThreshold, stats.Compared)
	return err
}

// WriteSummaryTable prints one row per sweep combination. verdicts holds
// the last consistency verdict per pair; pairs without one show "-".
func WriteSummaryTable(w io.Writer, reports []domain.EvaluationReport, verdicts map[domain.TokenPair]domain.ConsistencyVerdict) error {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "PAIR\tMIN\tMAX\tOFFSETS\tSTATUS\tCOMPARED\tMAX ERR %\tMEAN ERR %\tBELOW\tIMPACT BPS\tPROBE")
	for _, r := range reports {
		probe := "-"
		if v, ok := verdicts[r.Pair]; ok {
			probe = string(v)
		}
		if r.Status != domain.EvaluationOK {
			fmt.Fprintf(tw, "%s\t%.0f\t%.0f\t%v\t%s\t-\t-\t-\t-\t-\t%s\n",
				r.Pair, r.MinAmount, r.MaxAmount, r.OffsetsPct, r.Status, probe)
			continue
		}
		fmt.Fprintf(tw, "%s\t%.0f\t%.0f\t%v\t%s\t%d\t%.4f\t%.4f\t%d/%d\t%.1f\t%s\n",
			r.Pair, r.MinAmount, r.MaxAmount, r.OffsetsPct, r.Status,
			r.Compared, r.MaxErrorPct, r.MeanErrorPct, r.BelowThreshold, r.Compared, r.MaxImpactBps, probe)
	}
	return tw.Flush()
}

func WriteConsistency(w io.Writer, r domain.ConsistencyReport) error {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "ITERATION\tQUOTES\tCOMPARED\tMAX VAR %\tAVG VAR %")
	for _, it := range r.Iterations {
		if it.Compared == 0 {
			fmt.Fprintf(tw, "%d\t%d\t0\t-\t-\n", it.Iteration, it.Quotes)
			continue
		}
		fmt.Fprintf(tw, "%d\t%d\t%d\t%.4f\t%.4f\n", it.Iteration, it.Quotes, it.Compared, it.MaxVariationPct, it.AvgVariationPct)
	}
	if err := tw.Flush(); err != nil {
		return err
	}
	_, err := fmt.Fprintf(w, "%s %s: max=%.4f%% avg=%.4f%% verdict=%s\n",
		r.Source, r.Pair, r.MaxVariationPct, r.AvgVariationPct, r.Verdict)
	return err
}
