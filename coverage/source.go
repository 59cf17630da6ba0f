package coverage

import (
	"fmt"

	"github.com/grailbio/base/errors"
	"github.com/grailbio/hts/sam"
	"github.com/grailbio/sequintools/encoding/bamprovider"
	"github.com/grailbio/sequintools/interval"
)

type providerSource struct {
	provider bamprovider.Provider
}

// NewProviderSource creates a Source that reads the records overlapping
// a region through p.Overlapping.  Each record yields one span per
// aligned block of its CIGAR.  Deletions and skipped regions separate
// blocks and are not counted.  A region on a chromosome missing from the
// header is an errors.Invalid error.
func NewProviderSource(p bamprovider.Provider) Source {
	return &providerSource{provider: p}
}

func (s *providerSource) Spans(region interval.Interval) SpanIterator {
	header, err := s.provider.GetHeader()
	if err != nil {
		return &recordSpanIterator{iter: bamprovider.NewErrorIterator(err)}
	}
	ref := bamprovider.RefByName(header, region.Chrom)
	if ref == nil {
		return &recordSpanIterator{iter: bamprovider.NewErrorIterator(errors.E(errors.Invalid,
			fmt.Sprintf("region %s (%s): chromosome %s not found in BAM header", region, region.Name, region.Chrom)))}
	}
	return &recordSpanIterator{iter: s.provider.Overlapping(ref, int(region.Start), int(region.End))}
}

type recordSpanIterator struct {
	iter    bamprovider.Iterator
	pending []ReadSpan
	span    ReadSpan
}

func (i *recordSpanIterator) Scan() bool {
	for len(i.pending) == 0 {
		if !i.iter.Scan() {
			return false
		}
		i.pending = AppendRecordSpans(i.pending[:0], i.iter.Record())
	}
	i.span = i.pending[0]
	i.pending = i.pending[1:]
	return true
}

func (i *recordSpanIterator) Span() ReadSpan { return i.span }
func (i *recordSpanIterator) Err() error     { return i.iter.Err() }
func (i *recordSpanIterator) Close() error   { return i.iter.Close() }

// AppendRecordSpans appends the spans of r to spans.  An unmapped record,
// or one without aligned bases, yields a single unmapped span at its
// position.
func AppendRecordSpans(spans []ReadSpan, r *sam.Record) []ReadSpan {
	base := ReadSpan{
		Mapped: r.Ref != nil && r.Flags&sam.Unmapped == 0,
		Paired: r.Flags&sam.Paired != 0,
		MateID: r.Name,
		Flags:  r.Flags,
		MapQ:   r.MapQ,
	}
	if r.Ref != nil {
		base.Chrom = r.Ref.Name()
	}
	if r.Pos >= 0 {
		base.Start = uint64(r.Pos)
	}
	if !base.Mapped {
		base.End = base.Start + 1
		return append(spans, base)
	}
	n := len(spans)
	pos := base.Start
	for _, op := range r.Cigar {
		l := uint64(op.Len())
		switch op.Type() {
		case sam.CigarMatch, sam.CigarEqual, sam.CigarMismatch:
			if len(spans) > n && spans[len(spans)-1].End == pos {
				spans[len(spans)-1].End += l
			} else {
				s := base
				s.Start, s.End = pos, pos+l
				spans = append(spans, s)
			}
			pos += l
		case sam.CigarDeletion, sam.CigarSkipped:
			pos += l
		}
	}
	if len(spans) == n {
		s := base
		s.Mapped = false
		s.End = s.Start + 1
		spans = append(spans, s)
	}
	return spans
}
