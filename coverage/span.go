package coverage

import (
	"github.com/grailbio/hts/sam"
	"github.com/grailbio/sequintools/interval"
)

// ReadSpan is one aligned block of a read.  A read whose alignment has a
// deletion or a skipped region yields several spans sharing MateID.
type ReadSpan struct {
	Chrom string
	// Start and End are 0-based, half-open reference coordinates.
	Start, End uint64
	Mapped     bool
	Paired     bool
	// MateID identifies the read pair.  Both reads of a pair carry the
	// same MateID.
	MateID string
	Flags  sam.Flags
	MapQ   byte
}

// SpanIterator yields ReadSpans.
//
//   iter := src.Spans(region)
//   for iter.Scan() {
//     span := iter.Span()
//   }
//   err := iter.Close()
type SpanIterator interface {
	Scan() bool
	Span() ReadSpan
	Err() error
	// Close releases the iterator and returns Err().
	Close() error
}

// Source produces the spans overlapping an interval.  Implementations
// must be safe for concurrent calls to Spans.
type Source interface {
	Spans(region interval.Interval) SpanIterator
}

// SliceSource is an in-memory Source.  It is mainly useful in tests.
type SliceSource []ReadSpan

// Spans implements Source.
func (s SliceSource) Spans(region interval.Interval) SpanIterator {
	return &sliceIterator{spans: s, region: region, idx: -1}
}

type sliceIterator struct {
	spans  []ReadSpan
	region interval.Interval
	idx    int
}

func (i *sliceIterator) Scan() bool {
	for i.idx++; i.idx < len(i.spans); i.idx++ {
		s := i.spans[i.idx]
		if i.region.Overlaps(s.Chrom, s.Start, s.End) {
			return true
		}
	}
	return false
}

func (i *sliceIterator) Span() ReadSpan { return i.spans[i.idx] }
func (i *sliceIterator) Err() error     { return nil }
func (i *sliceIterator) Close() error   { return nil }
