package bamprovider

import (
	"fmt"
	"io"
	"sync"

	"github.com/grailbio/base/errors"
	"github.com/grailbio/base/file"
	"github.com/grailbio/base/log"
	"github.com/grailbio/base/vcontext"
	"github.com/grailbio/hts/bam"
	"github.com/grailbio/hts/bgzf"
	"github.com/grailbio/hts/bgzf/index"
	"github.com/grailbio/hts/sam"
	gbam "github.com/grailbio/sequintools/encoding/bam"
)

// BAMProvider implements Provider for BAM files.  Both the BAM and the
// index path may name any file scheme registered with grailbio/base/file.
type BAMProvider struct {
	// Path of the *.bam file. Must be nonempty.
	Path string
	// Index is the pathname of *.bam.bai file. If "", Path + ".bai"
	Index string
	err   errors.Once

	mu        sync.Mutex
	nActive   int
	freeIters []*bamIterator
	header    *sam.Header
}

type bamIterator struct {
	provider *BAMProvider
	in       file.File
	reader   *bam.Reader
	index    *bam.Index
	// Offset of the first record in the file.
	firstRecord bgzf.Offset

	// Half-open coordinate range of alignment starts to yield.
	startAddr, limitAddr gbam.Coord
	// When overlapRef is set, records must also overlap
	// [overlapStart, limitAddr.Pos) on it.
	overlapRef   *sam.Reference
	overlapStart int

	active bool
	err    error
	next   *sam.Record
}

func (b *BAMProvider) indexPath() string {
	if b.Index == "" {
		return gbam.DefaultIndexPath(b.Path)
	}
	return b.Index
}

// GetHeader implements the Provider interface.
func (b *BAMProvider) GetHeader() (*sam.Header, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.header != nil {
		return b.header, nil
	}

	ctx := vcontext.Background()
	reader, err := file.Open(ctx, b.Path)
	if err != nil {
		err = errors.E(err, "open", b.Path)
		b.err.Set(err)
		return nil, err
	}
	defer reader.Close(ctx) // nolint: errcheck
	bamReader, err := bam.NewReader(reader.Reader(ctx), 1)
	if err != nil {
		err = errors.E(err, "read bam header", b.Path)
		b.err.Set(err)
		return nil, err
	}
	defer bamReader.Close() // nolint: errcheck
	b.header = bamReader.Header()
	return b.header, nil
}

// GenerateShards implements the Provider interface.
func (b *BAMProvider) GenerateShards(shardSize int, includeUnmapped bool) ([]gbam.Shard, error) {
	header, err := b.GetHeader()
	if err != nil {
		return nil, err
	}
	if shardSize <= 0 {
		shardSize = DefaultShardSize
	}
	return gbam.GetPositionBasedShards(header, shardSize, includeUnmapped)
}

// Close implements the Provider interface.
func (b *BAMProvider) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.nActive > 0 {
		log.Panicf("%d iterators still active for %s", b.nActive, b.Path)
	}
	for _, iter := range b.freeIters {
		iter.internalClose()
	}
	b.freeIters = nil
	return b.err.Err()
}

func (b *BAMProvider) freeIterator(i *bamIterator) {
	if !i.active {
		log.Panicf("iterator for %s freed twice", b.Path)
	}
	i.active = false
	if i.Err() != nil {
		// The reader may be in an undefined state. Don't reuse it.
		i.internalClose()
		i = nil
	}
	b.mu.Lock()
	if i != nil {
		b.freeIters = append(b.freeIters, i)
	}
	b.nActive--
	b.mu.Unlock()
}

// allocateIterator returns an unused iterator, reusing a pooled one if
// possible.  On error, the returned iterator has a non-nil err.
func (b *BAMProvider) allocateIterator() *bamIterator {
	b.mu.Lock()
	b.nActive++
	if n := len(b.freeIters); n > 0 {
		iter := b.freeIters[n-1]
		b.freeIters = b.freeIters[:n-1]
		b.mu.Unlock()
		iter.active = true
		iter.err = nil
		iter.next = nil
		iter.overlapRef = nil
		return iter
	}
	b.mu.Unlock()

	iter := bamIterator{provider: b, active: true}
	ctx := vcontext.Background()
	if iter.in, iter.err = file.Open(ctx, b.Path); iter.err != nil {
		iter.err = errors.E(iter.err, "open", b.Path)
		return &iter
	}
	indexIn, err := file.Open(ctx, b.indexPath())
	if err != nil {
		iter.err = errors.E(err, "open index", b.indexPath())
		return &iter
	}
	defer indexIn.Close(ctx) // nolint: errcheck
	if iter.index, err = bam.ReadIndex(indexIn.Reader(ctx)); err != nil {
		iter.err = errors.E(err, "read index", b.indexPath())
		return &iter
	}
	if iter.reader, err = bam.NewReader(iter.in.Reader(ctx), 1); err != nil {
		iter.err = errors.E(err, "read bam header", b.Path)
		return &iter
	}
	iter.firstRecord = iter.reader.LastChunk().End
	return &iter
}

// NewIterator implements the Provider interface.
func (b *BAMProvider) NewIterator(shard gbam.Shard) Iterator {
	iter := b.allocateIterator()
	if iter.err != nil {
		return iter
	}
	iter.reset(shard.Ref, shard.Start, shard.End)
	return iter
}

// Overlapping implements the Provider interface.
func (b *BAMProvider) Overlapping(ref *sam.Reference, start, end int) Iterator {
	iter := b.allocateIterator()
	if iter.err != nil {
		return iter
	}
	if ref == nil {
		iter.err = errors.E(errors.Invalid, "overlap query without a reference")
		return iter
	}
	iter.reset(ref, start, end)
	// Records overlapping [start,end) may start before start.
	iter.startAddr = gbam.NewCoord(ref, 0)
	iter.overlapRef = ref
	iter.overlapStart = start
	return iter
}

// reset prepares the iterator to read records starting in [start,end)
// on ref, or the unplaced records if ref is nil.
func (i *bamIterator) reset(ref *sam.Reference, start, end int) {
	i.startAddr = gbam.NewCoord(ref, start)
	i.limitAddr = gbam.NewCoord(ref, end)
	if ref == nil {
		i.limitAddr = gbam.Coord{RefID: gbam.UnmappedRefID, Pos: gbam.InfinityPos}
	}
	if i.startAddr.GE(i.limitAddr) {
		i.err = errors.E(errors.Invalid, fmt.Sprintf("start coord (%v) not before limit coord (%v)", i.startAddr, i.limitAddr))
		return
	}
	var (
		offset bgzf.Offset
		found  bool
		err    error
	)
	if ref == nil {
		offset, err = i.findUnmappedOffset()
		found = true
	} else {
		found, offset, err = i.findRecordOffset(ref, start, end)
	}
	if err != nil {
		i.err = err
		return
	}
	if !found {
		i.err = io.EOF
		return
	}
	i.err = i.reader.Seek(offset)
}

// findUnmappedOffset finds a file offset at or before the first unplaced
// record.
func (i *bamIterator) findUnmappedOffset() (bgzf.Offset, error) {
	header := i.reader.Header()
	var lastOffset bgzf.Offset
	foundRefs := false
	for _, r := range header.Refs() {
		chunks, err := i.index.Chunks(r, 0, r.Len())
		if err == index.ErrInvalid || err == index.ErrNoReference || (err == nil && len(chunks) == 0) {
			continue
		}
		if err != nil {
			return lastOffset, err
		}
		foundRefs = true
		c := chunks[len(chunks)-1]
		if c.End.File > lastOffset.File ||
			(c.End.File == lastOffset.File && c.End.Block > lastOffset.Block) {
			lastOffset = c.End
		}
	}
	if !foundRefs {
		return i.firstRecord, nil
	}
	return lastOffset, nil
}

// findRecordOffset finds a file offset at or before the first record
// overlapping [startPos,endPos) on ref.  It returns false if the index
// has no record there.
func (i *bamIterator) findRecordOffset(ref *sam.Reference, startPos, endPos int) (bool, bgzf.Offset, error) {
	chunks, err := i.index.Chunks(ref, startPos, endPos)
	if err == index.ErrInvalid || err == index.ErrNoReference || (err == nil && len(chunks) == 0) {
		return false, bgzf.Offset{}, nil
	}
	if err != nil {
		return false, bgzf.Offset{}, err
	}
	return true, chunks[0].Begin, nil
}

// Scan implements the Iterator interface.
func (i *bamIterator) Scan() bool {
	if !i.active {
		log.Panicf("reusing iterator for %s", i.provider.Path)
	}
	if i.err != nil {
		return false
	}
	for {
		i.next, i.err = i.reader.Read()
		if i.err != nil {
			return false
		}
		recAddr := gbam.CoordFromSAMRecord(i.next)
		if recAddr.LT(i.startAddr) {
			continue
		}
		if !recAddr.LT(i.limitAddr) {
			i.err = io.EOF
			return false
		}
		if i.overlapRef != nil && !recordOverlaps(i.next, i.overlapRef, i.overlapStart, int(i.limitAddr.Pos)) {
			continue
		}
		return true
	}
}

// Record implements the Iterator interface.
func (i *bamIterator) Record() *sam.Record {
	return i.next
}

// Err implements the Iterator interface.
func (i *bamIterator) Err() error {
	if i.err == io.EOF {
		return nil
	}
	return i.err
}

// Close implements the Iterator interface.
func (i *bamIterator) Close() error {
	err := i.Err()
	i.provider.freeIterator(i)
	return err
}

func (i *bamIterator) internalClose() {
	if i.reader != nil {
		if err := i.reader.Close(); err != nil && i.err == nil {
			i.err = err
		}
		i.reader = nil
	}
	if i.in != nil {
		if err := i.in.Close(vcontext.Background()); err != nil && i.err == nil {
			i.err = err
		}
		i.in = nil
	}
	i.provider.err.Set(i.Err())
}
