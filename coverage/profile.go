package coverage

import (
	"fmt"

	"github.com/grailbio/base/errors"
	"github.com/grailbio/sequintools/interval"
	"gonum.org/v1/gonum/stat"
)

// Cap is an optional ceiling on per-base depth.  The zero value is
// unlimited.
type Cap struct {
	limit uint32
	set   bool
}

// Unlimited returns a Cap that never clips.
func Unlimited() Cap { return Cap{} }

// Limit returns a Cap that clips every base to at most n.
func Limit(n uint32) Cap { return Cap{limit: n, set: true} }

// CapFromFlag converts a command-line depth cap, where 0 means no cap.
func CapFromFlag(n uint) Cap {
	if n == 0 {
		return Unlimited()
	}
	return Limit(uint32(n))
}

// Get returns the cap value, and false if c is unlimited.
func (c Cap) Get() (uint32, bool) { return c.limit, c.set }

func (c Cap) String() string {
	if !c.set {
		return "unlimited"
	}
	return fmt.Sprint(c.limit)
}

// Stats summarizes a depth array.
type Stats struct {
	Min, Max uint32
	Mean     float64
	// Std is the population standard deviation.
	Std float64
	// CV is Std/Mean, or 0 if Mean is 0.
	CV float64
}

// Profile is the per-base depth over an interval.  Depth[i] is the depth
// at Interval.Start+i.  A Profile is immutable once built.
type Profile struct {
	Interval interval.Interval
	Depth    []uint32
	Cap      Cap
	Stats    Stats
}

// FractionAtLeast returns the fraction of bases with depth >= t.
func (p *Profile) FractionAtLeast(t uint32) float64 {
	n := 0
	for _, d := range p.Depth {
		if d >= t {
			n++
		}
	}
	return float64(n) / float64(len(p.Depth))
}

// Accumulator builds a Profile.  It is owned by one goroutine.
type Accumulator struct {
	iv    interval.Interval
	depth []uint32
}

// NewAccumulator creates an all-zero accumulator over iv.  An empty or
// malformed iv yields an errors.Invalid error.
func NewAccumulator(iv interval.Interval) (*Accumulator, error) {
	if err := iv.Validate(); err != nil {
		return nil, err
	}
	return &Accumulator{iv: iv, depth: make([]uint32, iv.Len())}, nil
}

// Add counts the half-open range [start,end) on chrom, clipped to the
// accumulator's interval.
func (a *Accumulator) Add(chrom string, start, end uint64) {
	if chrom != a.iv.Chrom {
		return
	}
	if start < a.iv.Start {
		start = a.iv.Start
	}
	if end > a.iv.End {
		end = a.iv.End
	}
	if start >= end {
		return
	}
	d := a.depth[start-a.iv.Start : end-a.iv.Start]
	for i := range d {
		d[i]++
	}
}

// Profile clips the accumulated depth to c and computes its statistics.
// The accumulator must not be used afterwards.
func (a *Accumulator) Profile(c Cap) *Profile {
	if limit, ok := c.Get(); ok {
		for i, d := range a.depth {
			if d > limit {
				a.depth[i] = limit
			}
		}
	}
	p := &Profile{Interval: a.iv, Depth: a.depth, Cap: c, Stats: ComputeStats(a.depth)}
	a.depth = nil
	return p
}

// ComputeStats computes the statistics of depth, which must be nonempty.
func ComputeStats(depth []uint32) Stats {
	if len(depth) == 0 {
		panic(errors.E(errors.Invalid, "empty depth array"))
	}
	s := Stats{Min: depth[0], Max: depth[0]}
	x := make([]float64, len(depth))
	for i, d := range depth {
		if d < s.Min {
			s.Min = d
		}
		if d > s.Max {
			s.Max = d
		}
		x[i] = float64(d)
	}
	if s.Max == 0 {
		return s
	}
	s.Mean, s.Std = stat.PopMeanStdDev(x, nil)
	if s.Mean > 0 {
		s.CV = s.Std / s.Mean
	}
	return s
}
