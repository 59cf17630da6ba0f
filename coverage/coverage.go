package coverage

import (
	"context"
	"fmt"

	"github.com/grailbio/base/errors"
	"github.com/grailbio/base/log"
	"github.com/grailbio/base/traverse"
	"github.com/grailbio/sequintools/interval"
)

// Opts controls a coverage computation.
type Opts struct {
	// Cap clips per-base depth after accumulation.
	Cap Cap
	// Filter selects the spans that count.
	Filter Filter
	// Flank is trimmed from both ends of the region before accumulation.
	Flank uint64
}

// DefaultOpts counts primary mapped reads without a cap or flank.
var DefaultOpts = Opts{Filter: DefaultFilter}

// checkInterval is the number of spans between context checks.
const checkInterval = 4096

// Coverage computes the depth profile of region using the spans from
// src that pass opts.Filter.  A region with no reads yields an all-zero
// profile.  A flank that consumes the whole region is an
// errors.Integrity error.
func Coverage(ctx context.Context, region interval.Interval, src Source, opts Opts) (*Profile, error) {
	if err := region.Validate(); err != nil {
		return nil, err
	}
	trimmed := region.Trim(opts.Flank)
	if trimmed.Start >= trimmed.End {
		return nil, errors.E(errors.Integrity, fmt.Sprintf(
			"region %s (%s): flank %d leaves no bases", region, region.Name, opts.Flank))
	}
	acc, err := NewAccumulator(trimmed)
	if err != nil {
		return nil, err
	}
	iter := src.Spans(trimmed)
	n := 0
	for iter.Scan() {
		if n++; n%checkInterval == 0 {
			if err := ctx.Err(); err != nil {
				iter.Close() // nolint: errcheck
				return nil, err
			}
		}
		s := iter.Span()
		if !opts.Filter.Pass(s) {
			continue
		}
		acc.Add(s.Chrom, s.Start, s.End)
	}
	if err := iter.Close(); err != nil {
		return nil, errors.E(err, "read spans", region.String())
	}
	p := acc.Profile(opts.Cap)
	log.Debug.Printf("coverage %s (%s): %d spans, mean %.2f", trimmed, region.Name, n, p.Stats.Mean)
	return p, nil
}

// Multi computes the profiles of regions with at most parallelism
// concurrent computations.  Results are in the order of regions.  The
// first error aborts the computation.
func Multi(ctx context.Context, regions []interval.Interval, src Source, opts Opts, parallelism int) ([]*Profile, error) {
	if parallelism <= 0 {
		parallelism = 1
	}
	profiles := make([]*Profile, len(regions))
	err := traverse.Limit(parallelism).Each(len(regions), func(i int) error {
		var err error
		profiles[i], err = Coverage(ctx, regions[i], src, opts)
		return err
	})
	if err != nil {
		return nil, err
	}
	return profiles, nil
}
