package calibrate

import (
	"context"
	"fmt"
	"io"

	"github.com/grailbio/base/errors"
	"github.com/grailbio/base/file"
	"github.com/grailbio/sequintools/coverage"
	"github.com/grailbio/sequintools/interval"
)

// Opts configures a calibration run.
type Opts struct {
	// FoldCoverage is the target depth of every region when no sample
	// regions are given.
	FoldCoverage float64
	// Seed is combined with each region's identity to seed its decisions.
	Seed uint64
	// Flank is trimmed from both ends of each sequin region before its
	// depth is measured with a fixed target.  Sample-matched runs measure
	// whole regions and use Flank only to place windows in
	// window-profile mode.
	Flank uint64
	// WindowSize is the window width of window-profile mode.
	WindowSize uint64
	// MinMapQ is the minimum mapping quality of reads counted toward
	// depth.
	MinMapQ byte
	// WindowProfile enables the experimental mode that mirrors the
	// per-window read-start profile of the sample region onto the sequin
	// region.  It requires sample regions.
	WindowProfile bool
	// ExcludeUncalibrated drops every read that is not on, or mated to,
	// a chromosome with sequin regions.
	ExcludeUncalibrated bool

	// Output is the path of the calibrated BAM file.  If empty, the BAM
	// stream is written to Stdout.
	Output string
	// Stdout receives the BAM stream when Output is empty.
	Stdout io.Writer
	// WriteIndex writes Output + ".bai".
	WriteIndex bool
	// SummaryPath, if set, is where the per-region CSV summary is
	// written.  It requires WriteIndex and Output.
	SummaryPath string

	// Parallelism bounds the number of regions and shards processed
	// concurrently.
	Parallelism int
	// ShardSize is the width, in bases, of the output shards.
	ShardSize int
}

// DefaultOpts holds the default options.
var DefaultOpts = Opts{
	FoldCoverage: 40,
	Seed:         5678,
	Flank:        500,
	WindowSize:   100,
	MinMapQ:      10,
	Parallelism:  8,
}

// Validate checks opts against idx.  All violations are errors.Invalid
// and are detected before any read is read.
func (o Opts) Validate(ctx context.Context, idx *interval.Index) error {
	if idx.Len() == 0 {
		return errors.E(errors.Invalid, "no sequin regions")
	}
	if !idx.Matched() {
		if o.FoldCoverage <= 0 {
			return errors.E(errors.Invalid, fmt.Sprintf("fold coverage must be positive, got %v", o.FoldCoverage))
		}
		if o.WindowProfile {
			return errors.E(errors.Invalid, "window-profile mode requires sample regions")
		}
	}
	if o.WindowProfile && o.WindowSize == 0 {
		return errors.E(errors.Invalid, "window size must be positive")
	}
	if o.WriteIndex && o.Output == "" {
		return errors.E(errors.Invalid, "an index can only be written for an output file")
	}
	if o.SummaryPath != "" {
		if !o.WriteIndex || o.Output == "" {
			return errors.E(errors.Invalid, "a summary report requires an indexed output file")
		}
		if _, err := file.Stat(ctx, o.SummaryPath); err == nil {
			return errors.E(errors.Invalid, fmt.Sprintf("summary report %s already exists", o.SummaryPath))
		}
	}
	return nil
}

// flank returns the flank trimmed from sequin regions when measuring
// their depth.
func (o Opts) flank(idx *interval.Index) uint64 {
	if idx.Matched() {
		return 0
	}
	return o.Flank
}

// coverageOpts returns the options of every uncapped depth measurement
// of the run.
func (o Opts) coverageOpts(flank uint64) coverage.Opts {
	return coverage.Opts{
		Cap:    coverage.Unlimited(),
		Filter: coverage.Filter{ExcludeFlags: coverage.DefaultExcludeFlags, MinMapQ: o.MinMapQ},
		Flank:  flank,
	}
}

func (o Opts) parallelism() int {
	if o.Parallelism <= 0 {
		return 1
	}
	return o.Parallelism
}
