package coverage

import (
	"context"
	"testing"

	"github.com/grailbio/base/errors"
	"github.com/grailbio/hts/sam"
	"github.com/grailbio/sequintools/interval"
	"github.com/grailbio/testutil/expect"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var testSpans = SliceSource{
	{Chrom: "chrQ", Start: 90, End: 110, Mapped: true, MateID: "a", MapQ: 60},
	{Chrom: "chrQ", Start: 100, End: 150, Mapped: true, MateID: "b", MapQ: 60},
	{Chrom: "chrQ", Start: 120, End: 130, Mapped: true, MateID: "c", MapQ: 5},
	{Chrom: "chrQ", Start: 120, End: 130, Mapped: true, MateID: "d", MapQ: 60, Flags: sam.Duplicate},
	{Chrom: "chrQ", Start: 120, End: 130, Mapped: true, MateID: "e", MapQ: 60, Flags: sam.Secondary},
	{Chrom: "chrQ", Start: 120, End: 121, MateID: "f", Flags: sam.Unmapped},
	{Chrom: "chrQ", Start: 300, End: 400, Mapped: true, MateID: "g", MapQ: 60},
}

func TestCoverage(t *testing.T) {
	ctx := context.Background()
	region := interval.Interval{Chrom: "chrQ", Start: 100, End: 200, Name: "geneA"}

	p, err := Coverage(ctx, region, testSpans, DefaultOpts)
	require.NoError(t, err)
	// a: 10 bases, b: 50 bases, c: 10 bases.
	assert.InDelta(t, 0.7, p.Stats.Mean, 1e-9)
	expect.EQ(t, p.Stats.Max, uint32(2))
	expect.EQ(t, p.Stats.Min, uint32(0))

	opts := DefaultOpts
	opts.Filter.MinMapQ = 10
	p, err = Coverage(ctx, region, testSpans, opts)
	require.NoError(t, err)
	assert.InDelta(t, 0.6, p.Stats.Mean, 1e-9)

	opts.Filter.ExcludeFlags = 0
	p, err = Coverage(ctx, region, testSpans, opts)
	require.NoError(t, err)
	assert.InDelta(t, 0.8, p.Stats.Mean, 1e-9)

	opts = DefaultOpts
	opts.Flank = 20
	p, err = Coverage(ctx, region, testSpans, opts)
	require.NoError(t, err)
	expect.EQ(t, p.Interval, interval.Interval{Chrom: "chrQ", Start: 120, End: 180, Name: "geneA"})
	// b: 30 bases, c: 10 bases.
	assert.InDelta(t, 40.0/60, p.Stats.Mean, 1e-9)

	opts.Cap = Limit(1)
	p, err = Coverage(ctx, region, testSpans, opts)
	require.NoError(t, err)
	assert.InDelta(t, 0.5, p.Stats.Mean, 1e-9)
}

func TestCoverageZero(t *testing.T) {
	p, err := Coverage(context.Background(),
		interval.Interval{Chrom: "chrZ", Start: 0, End: 50, Name: "empty"}, testSpans, DefaultOpts)
	require.NoError(t, err)
	expect.EQ(t, p.Stats, Stats{})
	expect.EQ(t, len(p.Depth), 50)
}

func TestCoverageErrors(t *testing.T) {
	ctx := context.Background()
	_, err := Coverage(ctx, interval.Interval{Chrom: "chrQ", Start: 10, End: 10, Name: "x"}, testSpans, DefaultOpts)
	expect.True(t, errors.Is(errors.Invalid, err))

	opts := DefaultOpts
	opts.Flank = 50
	_, err = Coverage(ctx, interval.Interval{Chrom: "chrQ", Start: 100, End: 200, Name: "x"}, testSpans, opts)
	expect.True(t, errors.Is(errors.Integrity, err))
	assert.Regexp(t, "flank 50 leaves no bases", err.Error())
}

func TestMulti(t *testing.T) {
	regions := []interval.Interval{
		{Chrom: "chrQ", Start: 300, End: 400, Name: "g"},
		{Chrom: "chrQ", Start: 100, End: 200, Name: "geneA"},
		{Chrom: "chrZ", Start: 0, End: 10, Name: "empty"},
	}
	profiles, err := Multi(context.Background(), regions, testSpans, DefaultOpts, 2)
	require.NoError(t, err)
	require.Len(t, profiles, 3)
	for i, p := range profiles {
		expect.EQ(t, p.Interval, regions[i])
	}
	expect.EQ(t, profiles[0].Stats.Mean, 1.0)
	expect.EQ(t, profiles[2].Stats.Mean, 0.0)

	regions = append(regions, interval.Interval{Chrom: "chrQ", Start: 5, End: 1, Name: "bad"})
	_, err = Multi(context.Background(), regions, testSpans, DefaultOpts, 2)
	expect.True(t, errors.Is(errors.Invalid, err))
}
