package bamprovider

import (
	"sort"

	"github.com/grailbio/base/errors"
	"github.com/grailbio/hts/sam"
	gbam "github.com/grailbio/sequintools/encoding/bam"
)

// fakeProvider serves records from memory, for tests.  The records are
// kept in coordinate order so that shard and range queries are binary
// searches, like index lookups on a BAM file.
type fakeProvider struct {
	header *sam.Header
	recs   []*sam.Record
	coords []gbam.Coord
}

// NewFakeProvider creates a Provider over header and recs.  recs need
// not be sorted; the provider sorts a copy by coordinate, keeping the
// given order among records at the same coordinate.
func NewFakeProvider(header *sam.Header, recs []*sam.Record) Provider {
	sorted := append([]*sam.Record(nil), recs...)
	sort.SliceStable(sorted, func(i, j int) bool {
		return gbam.CoordFromSAMRecord(sorted[i]).LT(gbam.CoordFromSAMRecord(sorted[j]))
	})
	coords := make([]gbam.Coord, len(sorted))
	for i, r := range sorted {
		coords[i] = gbam.CoordFromSAMRecord(r)
	}
	return &fakeProvider{header: header, recs: sorted, coords: coords}
}

// GetHeader implements the Provider interface.
func (b *fakeProvider) GetHeader() (*sam.Header, error) {
	return b.header, nil
}

// GenerateShards implements the Provider interface.
func (b *fakeProvider) GenerateShards(shardSize int, includeUnmapped bool) ([]gbam.Shard, error) {
	if shardSize <= 0 {
		shardSize = DefaultShardSize
	}
	return gbam.GetPositionBasedShards(b.header, shardSize, includeUnmapped)
}

// Close implements the Provider interface.
func (b *fakeProvider) Close() error {
	return nil
}

// search returns the index of the first record at or after c.
func (b *fakeProvider) search(c gbam.Coord) int {
	return sort.Search(len(b.coords), func(i int) bool { return b.coords[i].GE(c) })
}

// NewIterator implements the Provider interface.
func (b *fakeProvider) NewIterator(shard gbam.Shard) Iterator {
	lo, hi := b.search(shard.StartCoord()), b.search(shard.LimitCoord())
	return &fakeIterator{recs: b.recs[lo:hi]}
}

// Overlapping implements the Provider interface.
func (b *fakeProvider) Overlapping(ref *sam.Reference, start, end int) Iterator {
	if ref == nil {
		return NewErrorIterator(errors.E(errors.Invalid, "overlap query without a reference"))
	}
	lo, hi := b.search(gbam.NewCoord(ref, 0)), b.search(gbam.NewCoord(ref, end))
	return &fakeIterator{
		recs: b.recs[lo:hi],
		keep: func(r *sam.Record) bool { return recordOverlaps(r, ref, start, end) },
	}
}

type fakeIterator struct {
	recs []*sam.Record
	// keep, if set, filters recs.
	keep func(*sam.Record) bool
	rec  *sam.Record
}

// Scan implements the Iterator interface.
func (i *fakeIterator) Scan() bool {
	for len(i.recs) > 0 {
		i.rec, i.recs = i.recs[0], i.recs[1:]
		if i.keep == nil || i.keep(i.rec) {
			return true
		}
	}
	return false
}

// Record implements the Iterator interface.  It returns a copy, so the
// caller may modify it.
func (i *fakeIterator) Record() *sam.Record {
	r := sam.GetFromFreePool()
	*r = *i.rec
	return r
}

// Err implements the Iterator interface.
func (i *fakeIterator) Err() error { return nil }

// Close implements the Iterator interface.
func (i *fakeIterator) Close() error { return nil }
