package calibrate

import (
	"context"
	"encoding/csv"
	"io"
	"strconv"

	"github.com/grailbio/base/errors"
	"github.com/grailbio/base/file"
	"github.com/grailbio/base/traverse"
	"github.com/grailbio/sequintools/coverage"
)

// SummaryRecord is the before/after coverage of one region.
type SummaryRecord struct {
	Plan   Plan
	Before coverage.Stats
	After  coverage.Stats
}

// SummaryColumns is the header of the summary report.
var SummaryColumns = []string{
	"name", "chrom", "start", "end",
	"uncalibrated_coverage", "target_coverage", "calibrated_coverage",
	"retain_fraction", "before_cv", "after_cv",
}

// Summarize measures every planned region in before, the input, and
// after, the calibrated output.  Records are in plan order.
func Summarize(ctx context.Context, plans []Plan, before, after coverage.Source, opts coverage.Opts, parallelism int) ([]SummaryRecord, error) {
	if parallelism <= 0 {
		parallelism = 1
	}
	records := make([]SummaryRecord, len(plans))
	err := traverse.Limit(parallelism).Each(len(plans), func(i int) error {
		b, err := coverage.Coverage(ctx, plans[i].Region, before, opts)
		if err != nil {
			return err
		}
		a, err := coverage.Coverage(ctx, plans[i].Region, after, opts)
		if err != nil {
			return errors.E(err, "calibrated output")
		}
		records[i] = SummaryRecord{Plan: plans[i], Before: b.Stats, After: a.Stats}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return records, nil
}

func ftoa(f float64, prec int) string { return strconv.FormatFloat(f, 'f', prec, 64) }

// WriteSummary writes records as CSV.
func WriteSummary(w io.Writer, records []SummaryRecord) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(SummaryColumns); err != nil {
		return err
	}
	for _, r := range records {
		region := r.Plan.Region
		err := cw.Write([]string{
			region.Name,
			region.Chrom,
			strconv.FormatUint(region.Start, 10),
			strconv.FormatUint(region.End, 10),
			ftoa(r.Before.Mean, 2),
			ftoa(r.Plan.Target, 2),
			ftoa(r.After.Mean, 2),
			ftoa(r.Plan.Retain, 4),
			ftoa(r.Before.CV, 4),
			ftoa(r.After.CV, 4),
		})
		if err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

func writeSummaryFile(ctx context.Context, path string, records []SummaryRecord) error {
	out, err := file.Create(ctx, path)
	if err != nil {
		return errors.E(err, "create", path)
	}
	if err := WriteSummary(out.Writer(ctx), records); err != nil {
		out.Discard(ctx)
		return errors.E(err, "write", path)
	}
	return out.Close(ctx)
}
