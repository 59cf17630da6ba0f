package calibrate

import (
	"context"
	"encoding/binary"
	"fmt"
	"io"
	"sync"

	"blainsmith.com/go/seahash"
	"github.com/grailbio/base/errors"
	"github.com/grailbio/base/file"
	"github.com/grailbio/base/log"
	"github.com/grailbio/base/traverse"
	"github.com/grailbio/hts/sam"
	gbam "github.com/grailbio/sequintools/encoding/bam"
	"github.com/grailbio/sequintools/encoding/bamprovider"
	"github.com/grailbio/sequintools/interval"
	"github.com/klauspost/compress/gzip"
)

// recordFilter decides which input records are written.
type recordFilter struct {
	// subjectRefs holds the IDs of the references with sequin regions.
	subjectRefs         map[int]bool
	decisions           *Decisions
	excludeUncalibrated bool
}

func newRecordFilter(header *sam.Header, idx *interval.Index, decisions *Decisions, opts Opts) *recordFilter {
	f := &recordFilter{
		subjectRefs:         map[int]bool{},
		decisions:           decisions,
		excludeUncalibrated: opts.ExcludeUncalibrated,
	}
	for _, chrom := range idx.Chroms() {
		if ref := bamprovider.RefByName(header, chrom); ref != nil {
			f.subjectRefs[ref.ID()] = true
		}
	}
	return f
}

// subject returns true if r or its mate is on a reference with sequin
// regions.
func (f *recordFilter) subject(r *sam.Record) bool {
	return (r.Ref != nil && f.subjectRefs[r.Ref.ID()]) ||
		(r.MateRef != nil && f.subjectRefs[r.MateRef.ID()])
}

// keep returns true if r belongs in the output.  A sequin read is kept
// only if its pair was decided keep; other reads are kept unless
// uncalibrated reads are excluded.
func (f *recordFilter) keep(r *sam.Record) bool {
	if !f.subject(r) {
		return !f.excludeUncalibrated
	}
	if r.Flags&sam.Duplicate != 0 {
		return false
	}
	keep, ok := f.decisions.Lookup(r.Name)
	return ok && keep
}

type shardStats struct {
	read, written int64
	digest        uint64
}

// writeShard copies the records of shard that pass f to c.
func writeShard(ctx context.Context, in bamprovider.Provider, shard gbam.Shard, f *recordFilter, c *gbam.ShardedBAMCompressor) (shardStats, error) {
	var (
		stats shardStats
		h     = seahash.New()
		buf   [12]byte
	)
	if err := c.StartShard(shard.ShardIdx); err != nil {
		return stats, err
	}
	iter := in.NewIterator(shard)
	for iter.Scan() {
		r := iter.Record()
		if stats.read++; stats.read%65536 == 0 {
			if err := ctx.Err(); err != nil {
				iter.Close() // nolint: errcheck
				return stats, err
			}
		}
		if !f.keep(r) {
			continue
		}
		if err := c.AddRecord(r); err != nil {
			iter.Close() // nolint: errcheck
			return stats, err
		}
		stats.written++
		h.Write([]byte(r.Name)) // nolint: errcheck
		binary.LittleEndian.PutUint32(buf[0:], uint32(gbam.CoordFromSAMRecord(r).RefID))
		binary.LittleEndian.PutUint32(buf[4:], uint32(r.Pos))
		binary.LittleEndian.PutUint32(buf[8:], uint32(r.Flags))
		h.Write(buf[:]) // nolint: errcheck
	}
	if err := iter.Close(); err != nil {
		return stats, errors.E(err, "read shard", shard.String())
	}
	stats.digest = h.Sum64()
	return stats, c.CloseShard()
}

// writeBAM writes the records of in that pass f to w, in input order.
// It returns the seahash digest of the written records.
func writeBAM(ctx context.Context, in bamprovider.Provider, w io.Writer, f *recordFilter, opts Opts) (uint64, error) {
	header, err := in.GetHeader()
	if err != nil {
		return 0, err
	}
	shards, err := in.GenerateShards(opts.ShardSize, true)
	if err != nil {
		return 0, err
	}
	parallelism := opts.parallelism()
	bw, err := gbam.NewShardedBAMWriter(w, gzip.DefaultCompression, 2*parallelism, header)
	if err != nil {
		return 0, err
	}
	var (
		abortOnce sync.Once
		stats     = make([]shardStats, len(shards))
	)
	err = traverse.Limit(parallelism).Each(len(shards), func(i int) error {
		var err error
		if stats[i], err = writeShard(ctx, in, shards[i], f, bw.GetCompressor()); err != nil {
			// Unblock the shards waiting for this one.
			abortOnce.Do(func() { bw.Abort(err) })
		}
		return err
	})
	if err != nil {
		return 0, err
	}
	if err := bw.Close(); err != nil {
		return 0, errors.E(err, "write bam")
	}
	var (
		read, written int64
		buf           [8]byte
		h             = seahash.New()
	)
	for _, s := range stats {
		read += s.read
		written += s.written
		binary.LittleEndian.PutUint64(buf[:], s.digest)
		h.Write(buf[:]) // nolint: errcheck
	}
	digest := h.Sum64()
	log.Printf("wrote %d of %d records in %d shards, digest %016x", written, read, len(shards), digest)
	return digest, nil
}

// writeFile writes the output BAM file.  On error the partial file is
// discarded.
func writeFile(ctx context.Context, in bamprovider.Provider, f *recordFilter, opts Opts) (uint64, error) {
	out, err := file.Create(ctx, opts.Output)
	if err != nil {
		return 0, errors.E(err, "create", opts.Output)
	}
	digest, err := writeBAM(ctx, in, out.Writer(ctx), f, opts)
	if err != nil {
		out.Discard(ctx)
		return 0, err
	}
	if err := out.Close(ctx); err != nil {
		return 0, errors.E(err, "close", opts.Output)
	}
	return digest, nil
}

// removeOutputs deletes the files of a failed run.
func removeOutputs(ctx context.Context, opts Opts) {
	for _, path := range []string{opts.Output, gbam.DefaultIndexPath(opts.Output), opts.SummaryPath} {
		if path == "" {
			continue
		}
		if _, err := file.Stat(ctx, path); err != nil {
			continue
		}
		if err := file.Remove(ctx, path); err != nil {
			log.Error.Printf("remove %s: %v", path, err)
		}
	}
}

func checkChroms(header *sam.Header, idx *interval.Index) error {
	check := func(iv interval.Interval, what string) error {
		if bamprovider.RefByName(header, iv.Chrom) == nil {
			return errors.E(errors.Invalid, fmt.Sprintf(
				"%s region %s (%s): chromosome %s is not in the BAM header", what, iv.Name, iv, iv.Chrom))
		}
		return nil
	}
	for i, subject := range idx.Subjects() {
		if err := check(subject, "sequin"); err != nil {
			return err
		}
		if m, ok := idx.Match(i); ok {
			if err := check(m, "sample"); err != nil {
				return err
			}
		}
	}
	return nil
}
