package calibrate

import (
	"context"
	"math"

	"github.com/dgryski/go-farm"
	"github.com/grailbio/base/log"
	"github.com/grailbio/base/traverse"
	"github.com/grailbio/sequintools/coverage"
	"github.com/grailbio/sequintools/interval"
)

// Plan is the calibration of one sequin region.  It is immutable.
type Plan struct {
	// Region is the sequin region.
	Region interval.Interval
	// Reference is the matched sample region, or nil with a fixed target.
	Reference *interval.Interval
	// Target and Observed are mean depths.
	Target   float64
	Observed float64
	// Retain is the fraction of read pairs to keep, in [0,1].
	Retain float64
	// Seed seeds the region's keep/drop decisions.
	Seed uint64
}

// RegionSeed derives the seed of region's decisions from the run seed.
func RegionSeed(region interval.Interval, seed uint64) uint64 {
	return farm.Hash64WithSeed([]byte(region.ID()), seed)
}

// RetainFraction returns the fraction of reads to keep to bring the
// observed depth down to target.  Reads are never added, so the result
// is at most 1.  Zero observed depth yields 0.
func RetainFraction(target, observed float64) float64 {
	if observed <= 0 {
		return 0
	}
	return math.Min(1, target/observed)
}

// NewPlan creates the plan of region.
func NewPlan(region interval.Interval, reference *interval.Interval, target, observed float64, seed uint64) Plan {
	return Plan{
		Region:    region,
		Reference: reference,
		Target:    target,
		Observed:  observed,
		Retain:    RetainFraction(target, observed),
		Seed:      RegionSeed(region, seed),
	}
}

// MakePlans measures every region of idx and returns their plans in
// index order.  Sample regions and sequin regions are both read from
// src.  Regions are processed concurrently.
func MakePlans(ctx context.Context, idx *interval.Index, src coverage.Source, opts Opts) ([]Plan, error) {
	plans := make([]Plan, idx.Len())
	observedOpts := opts.coverageOpts(opts.flank(idx))
	targetOpts := opts.coverageOpts(0)
	err := traverse.Limit(opts.parallelism()).Each(idx.Len(), func(i int) error {
		region := idx.Subject(i)
		target := opts.FoldCoverage
		var reference *interval.Interval
		if m, ok := idx.Match(i); ok {
			reference = &m
			p, err := coverage.Coverage(ctx, m, src, targetOpts)
			if err != nil {
				return err
			}
			target = p.Stats.Mean
		}
		p, err := coverage.Coverage(ctx, region, src, observedOpts)
		if err != nil {
			return err
		}
		plans[i] = NewPlan(region, reference, target, p.Stats.Mean, opts.Seed)
		switch {
		case p.Stats.Mean == 0:
			log.Printf("%s (%s): no coverage, nothing to retain", region.Name, region)
		case plans[i].Retain == 1:
			log.Printf("%s (%s): mean coverage %.2f already at or below target %.2f",
				region.Name, region, p.Stats.Mean, target)
		default:
			log.Printf("calibrating %s (%s): mean coverage %.2f, target %.2f, retaining %.4f",
				region.Name, region, p.Stats.Mean, target, plans[i].Retain)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return plans, nil
}
