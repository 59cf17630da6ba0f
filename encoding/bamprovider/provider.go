package bamprovider

import (
	"github.com/grailbio/hts/sam"
	gbam "github.com/grailbio/sequintools/encoding/bam"
)

// DefaultShardSize is the width, in bases, of the shards produced by
// GenerateShards when the caller passes a nonpositive size.
const DefaultShardSize = 1 << 20

// Provider allows reading a coordinate-sorted BAM file either shard by
// shard or by genomic range.  A Provider is thread safe; each Iterator
// is owned by one goroutine.
type Provider interface {
	// GetHeader returns the header of the file.
	GetHeader() (*sam.Header, error)

	// GenerateShards partitions the genome into shards of shardSize bases,
	// followed by the shard of unplaced reads if includeUnmapped.
	GenerateShards(shardSize int, includeUnmapped bool) ([]gbam.Shard, error)

	// NewIterator returns an iterator over the records whose alignment
	// start is in the shard.  The shard of unplaced reads yields the
	// records without a reference.
	NewIterator(shard gbam.Shard) Iterator

	// Overlapping returns an iterator over the records on ref whose
	// alignment overlaps the half-open range [start,end).  A record with
	// no aligned bases occupies one base at its position.
	Overlapping(ref *sam.Reference, start, end int) Iterator

	// Close must be called exactly once, after all iterators are closed.
	// It returns any error seen by the provider or its iterators.
	Close() error
}

// Iterator yields a sequence of records in file order.
//
//   iter := provider.NewIterator(shard)
//   for iter.Scan() {
//     rec := iter.Record()
//   }
//   err := iter.Close()
type Iterator interface {
	// Scan advances to the next record and returns false when there are
	// no more records or an error happened.
	Scan() bool
	// Record returns the current record.  The caller may keep it.
	Record() *sam.Record
	// Err returns the error encountered during iteration, if any.
	Err() error
	// Close releases the iterator and returns Err().
	Close() error
}

// ProviderOpts defines options for NewProvider.
type ProviderOpts struct {
	// Index is the path of the .bai file.  If empty, it is path + ".bai".
	Index string
}

// NewProvider creates a Provider for the BAM file at path, which may be
// any path understood by grailbio/base/file.
func NewProvider(path string, optList ...ProviderOpts) Provider {
	var opts ProviderOpts
	if len(optList) > 0 {
		opts = optList[0]
	}
	return &BAMProvider{Path: path, Index: opts.Index}
}

// RefByName finds a sam.Reference with the given name. It returns nil if a
// reference is not found.
func RefByName(h *sam.Header, refName string) *sam.Reference {
	for _, ref := range h.Refs() {
		if ref.Name() == refName {
			return ref
		}
	}
	return nil
}

// recordEnd returns the end of the reference span of r, treating a
// record with no aligned bases as one base long.
func recordEnd(r *sam.Record) int {
	if end := r.End(); end > r.Pos {
		return end
	}
	return r.Pos + 1
}

// recordOverlaps returns true if r is on ref and overlaps [start,end).
func recordOverlaps(r *sam.Record, ref *sam.Reference, start, end int) bool {
	return r.Ref != nil && r.Ref.ID() == ref.ID() && r.Pos < end && recordEnd(r) > start
}

type errorIterator struct {
	err error
}

func (i *errorIterator) Scan() bool          { return false }
func (i *errorIterator) Record() *sam.Record { panic("Record called on a failed iterator") }
func (i *errorIterator) Err() error          { return i.err }
func (i *errorIterator) Close() error        { return i.err }

// NewErrorIterator creates an Iterator that yields no record and returns
// err from Err and Close.
func NewErrorIterator(err error) Iterator {
	return &errorIterator{err: err}
}
