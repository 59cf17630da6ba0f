package cmd

import (
	"context"
	"io"
	"io/ioutil"

	"github.com/grailbio/base/log"
	"github.com/grailbio/sequintools/coverage"
	"github.com/grailbio/sequintools/encoding/bamprovider"
	"github.com/grailbio/sequintools/interval"
)

type bedcovOpts struct {
	minMapQ     uint
	flank       uint64
	maxDepth    uint
	thresholds  string
	format      string
	parallelism int
	index       string
}

var defaultBedcovOpts = bedcovOpts{
	maxDepth:    8000,
	format:      coverage.FormatCSV,
	parallelism: 8,
}

// bedcov writes the coverage report of the regions in bedPath over the
// reads in bamPath to w.
func bedcov(ctx context.Context, opts bedcovOpts, bedPath, bamPath string, w io.Writer) (err error) {
	thresholds, err := parseThresholds(opts.thresholds)
	if err != nil {
		return err
	}
	// Fail on a bad format before reading anything.
	report, err := coverage.NewReportWriter(ioutil.Discard, opts.format, thresholds)
	if err != nil {
		return err
	}
	regions, err := interval.LoadBED(ctx, bedPath)
	if err != nil {
		return err
	}
	provider := bamprovider.NewProvider(bamPath, bamprovider.ProviderOpts{Index: opts.index})
	covOpts := coverage.Opts{
		Cap:    coverage.CapFromFlag(opts.maxDepth),
		Filter: coverage.Filter{ExcludeFlags: coverage.DefaultExcludeFlags, MinMapQ: byte(opts.minMapQ)},
		Flank:  opts.flank,
	}
	profiles, err := coverage.Multi(ctx, regions, coverage.NewProviderSource(provider), covOpts, opts.parallelism)
	if cerr := provider.Close(); cerr != nil && err == nil {
		err = cerr
	}
	if err != nil {
		return err
	}
	if report, err = coverage.NewReportWriter(w, opts.format, thresholds); err != nil {
		return err
	}
	for i, p := range profiles {
		if err := report.Write(regions[i], p); err != nil {
			return err
		}
	}
	log.Debug.Printf("bedcov: %d regions, cap %v", len(regions), covOpts.Cap)
	return report.Flush()
}
