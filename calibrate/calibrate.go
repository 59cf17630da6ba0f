package calibrate

import (
	"context"
	"os"

	"github.com/grailbio/base/errors"
	"github.com/grailbio/base/log"
	"github.com/grailbio/sequintools/coverage"
	"github.com/grailbio/sequintools/encoding/bamprovider"
	gbam "github.com/grailbio/sequintools/encoding/bam"
	"github.com/grailbio/sequintools/interval"
)

// Result describes a completed run.
type Result struct {
	Plans []Plan
	// Decided and Kept count the read pairs of the sequin regions.
	Decided, Kept int
	// Digest is a seahash digest of the written records.
	Digest uint64
	// Overlaps lists the sequin regions that share bases.
	Overlaps []RegionOverlap
	// Summary is set if a summary report was requested.
	Summary []SummaryRecord
}

// Run calibrates the sequin regions of idx in the reads of in.  Options
// are checked before any read is read.  On error no output is left
// behind.
func Run(ctx context.Context, in bamprovider.Provider, idx *interval.Index, opts Opts) (*Result, error) {
	if err := opts.Validate(ctx, idx); err != nil {
		return nil, err
	}
	header, err := in.GetHeader()
	if err != nil {
		return nil, err
	}
	if err := checkChroms(header, idx); err != nil {
		return nil, err
	}
	overlaps := Overlaps(idx)
	for _, o := range overlaps {
		log.Printf("sequin regions %s (%s) and %s (%s) overlap; %s decides their shared pairs",
			o.First.Name, o.First, o.Second.Name, o.Second, o.First.Name)
	}
	src := coverage.NewProviderSource(in)
	plans, err := MakePlans(ctx, idx, src, opts)
	if err != nil {
		return nil, err
	}
	decisions, err := DecideAll(ctx, in, plans, opts)
	if err != nil {
		return nil, err
	}
	result := &Result{Plans: plans, Overlaps: overlaps}
	result.Decided, result.Kept = decisions.Counts()
	log.Printf("kept %d of %d sequin read pairs", result.Kept, result.Decided)

	filter := newRecordFilter(header, idx, decisions, opts)
	if opts.Output == "" {
		w := opts.Stdout
		if w == nil {
			w = os.Stdout
		}
		result.Digest, err = writeBAM(ctx, in, w, filter, opts)
		if err != nil {
			return nil, err
		}
		return result, nil
	}
	if result.Digest, err = writeFile(ctx, in, filter, opts); err != nil {
		return nil, err
	}
	if err := finish(ctx, result, src, opts, idx); err != nil {
		removeOutputs(ctx, opts)
		return nil, err
	}
	return result, nil
}

// finish indexes the committed output and writes the summary report.
func finish(ctx context.Context, result *Result, before coverage.Source, opts Opts, idx *interval.Index) error {
	if !opts.WriteIndex {
		return nil
	}
	if err := gbam.WriteIndex(ctx, opts.Output, gbam.DefaultIndexPath(opts.Output)); err != nil {
		return err
	}
	if opts.SummaryPath == "" {
		return nil
	}
	out := bamprovider.NewProvider(opts.Output)
	records, err := Summarize(ctx, result.Plans, before, coverage.NewProviderSource(out),
		opts.coverageOpts(opts.flank(idx)), opts.parallelism())
	if cerr := out.Close(); cerr != nil && err == nil {
		err = cerr
	}
	if err != nil {
		return err
	}
	result.Summary = records
	return writeSummaryFile(ctx, opts.SummaryPath, records)
}

// RunFiles loads the sequin regions from bedPath and, if sampleBedPath
// is set, the matching sample regions, then calibrates the BAM file at
// inPath.  The index of inPath must exist.
func RunFiles(ctx context.Context, inPath, bedPath, sampleBedPath string, opts Opts) (result *Result, err error) {
	subjects, err := interval.LoadBED(ctx, bedPath)
	if err != nil {
		return nil, err
	}
	var references []interval.Interval
	if sampleBedPath != "" {
		if references, err = interval.LoadBED(ctx, sampleBedPath); err != nil {
			return nil, err
		}
		if references == nil {
			references = []interval.Interval{}
		}
	}
	idx, err := interval.NewIndex(subjects, references)
	if err != nil {
		return nil, errors.E(err, bedPath)
	}
	if err := opts.Validate(ctx, idx); err != nil {
		return nil, err
	}
	in := bamprovider.NewProvider(inPath)
	defer func() {
		if cerr := in.Close(); cerr != nil && err == nil {
			err = cerr
			result = nil
			removeOutputs(ctx, opts)
		}
	}()
	return Run(ctx, in, idx, opts)
}
