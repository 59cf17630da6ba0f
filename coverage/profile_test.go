package coverage

import (
	"math"
	"math/rand"
	"testing"

	"github.com/grailbio/base/errors"
	"github.com/grailbio/sequintools/interval"
	"github.com/grailbio/testutil/expect"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func randomSpans(r *rand.Rand, chrom string, n int, maxPos, maxLen uint64) []ReadSpan {
	spans := make([]ReadSpan, n)
	for i := range spans {
		start := uint64(r.Int63n(int64(maxPos)))
		spans[i] = ReadSpan{
			Chrom:  chrom,
			Start:  start,
			End:    start + 1 + uint64(r.Int63n(int64(maxLen))),
			Mapped: true,
		}
	}
	return spans
}

func overlap(iv interval.Interval, s ReadSpan) uint64 {
	if s.Chrom != iv.Chrom {
		return 0
	}
	start, end := s.Start, s.End
	if start < iv.Start {
		start = iv.Start
	}
	if end > iv.End {
		end = iv.End
	}
	if start >= end {
		return 0
	}
	return end - start
}

func accumulate(t *testing.T, iv interval.Interval, spans []ReadSpan, c Cap) *Profile {
	acc, err := NewAccumulator(iv)
	require.NoError(t, err)
	for _, s := range spans {
		acc.Add(s.Chrom, s.Start, s.End)
	}
	return acc.Profile(c)
}

func TestDepthSum(t *testing.T) {
	r := rand.New(rand.NewSource(1))
	for trial := 0; trial < 20; trial++ {
		iv := interval.Interval{Chrom: "chr1", Start: uint64(r.Intn(500)), Name: "x"}
		iv.End = iv.Start + 1 + uint64(r.Intn(300))
		spans := randomSpans(r, "chr1", 200, 1000, 150)
		spans = append(spans, randomSpans(r, "chr2", 20, 1000, 150)...)
		var want uint64
		for _, s := range spans {
			want += overlap(iv, s)
		}
		p := accumulate(t, iv, spans, Unlimited())
		var got uint64
		for _, d := range p.Depth {
			got += uint64(d)
		}
		expect.EQ(t, got, want, "trial %d", trial)
		expect.EQ(t, len(p.Depth), int(iv.Len()))
	}
}

func TestCap(t *testing.T) {
	r := rand.New(rand.NewSource(2))
	iv := interval.Interval{Chrom: "chr1", Start: 100, End: 400, Name: "x"}
	spans := randomSpans(r, "chr1", 500, 500, 100)

	uncapped := accumulate(t, iv, spans, Unlimited())
	require.True(t, uncapped.Stats.Max > 5)
	capped := accumulate(t, iv, spans, Limit(5))
	expect.True(t, capped.Stats.Max <= 5)
	for i, d := range capped.Depth {
		if uncapped.Depth[i] >= 5 {
			expect.EQ(t, d, uint32(5))
		} else {
			expect.EQ(t, d, uncapped.Depth[i])
		}
	}

	zero := accumulate(t, iv, spans, CapFromFlag(0))
	expect.EQ(t, zero.Depth, uncapped.Depth)
	expect.EQ(t, zero.Stats, uncapped.Stats)
	_, ok := zero.Cap.Get()
	expect.False(t, ok)

	v, ok := CapFromFlag(8000).Get()
	expect.True(t, ok)
	expect.EQ(t, v, uint32(8000))
	expect.EQ(t, Unlimited().String(), "unlimited")
	expect.EQ(t, Limit(3).String(), "3")
}

func TestStats(t *testing.T) {
	s := ComputeStats([]uint32{0, 0, 1, 1, 2, 1, 1, 1, 1, 1})
	expect.EQ(t, s.Min, uint32(0))
	expect.EQ(t, s.Max, uint32(2))
	assert.InDelta(t, 0.9, s.Mean, 1e-9)
	assert.InDelta(t, math.Sqrt(0.29), s.Std, 1e-9)
	assert.InDelta(t, s.Std/s.Mean, s.CV, 1e-9)

	// Population std divides by N: 1.25 for {1,2,3,4}; the sample std
	// would be sqrt(5/3).
	s = ComputeStats([]uint32{1, 2, 3, 4})
	assert.InDelta(t, 2.5, s.Mean, 1e-9)
	assert.InDelta(t, math.Sqrt(1.25), s.Std, 1e-9)
	assert.InDelta(t, math.Sqrt(1.25)/2.5, s.CV, 1e-9)

	s = ComputeStats([]uint32{4, 4, 4})
	expect.EQ(t, s, Stats{Min: 4, Max: 4, Mean: 4})

	s = ComputeStats(make([]uint32, 10))
	expect.EQ(t, s, Stats{})
}

func TestCVInvariant(t *testing.T) {
	r := rand.New(rand.NewSource(3))
	for trial := 0; trial < 50; trial++ {
		depth := make([]uint32, 1+r.Intn(100))
		if trial%5 != 0 {
			for i := range depth {
				depth[i] = uint32(r.Intn(30))
			}
		}
		s := ComputeStats(depth)
		if s.Mean == 0 {
			expect.EQ(t, s.CV, 0.0)
		} else {
			assert.InDelta(t, s.Std/s.Mean, s.CV, 1e-12)
		}
		expect.False(t, math.IsNaN(s.CV))
	}
}

func TestAccumulatorClipping(t *testing.T) {
	iv := interval.Interval{Chrom: "chr1", Start: 10, End: 20, Name: "x"}
	p := accumulate(t, iv, []ReadSpan{
		{Chrom: "chr1", Start: 0, End: 11},
		{Chrom: "chr1", Start: 19, End: 100},
		{Chrom: "chr1", Start: 20, End: 30},
		{Chrom: "chr1", Start: 0, End: 10},
		{Chrom: "chr2", Start: 10, End: 20},
	}, Unlimited())
	expect.EQ(t, p.Depth, []uint32{1, 0, 0, 0, 0, 0, 0, 0, 0, 1})
	expect.EQ(t, p.FractionAtLeast(1), 0.2)
	expect.EQ(t, p.FractionAtLeast(0), 1.0)
}

func TestAccumulatorInvalid(t *testing.T) {
	_, err := NewAccumulator(interval.Interval{Chrom: "chr1", Start: 10, End: 10, Name: "x"})
	expect.True(t, errors.Is(errors.Invalid, err))
}
