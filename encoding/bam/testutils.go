package bam

import (
	"context"
	"io"
	"testing"

	"github.com/grailbio/base/file"
	"github.com/grailbio/hts/bam"
	"github.com/grailbio/hts/sam"
	"github.com/stretchr/testify/require"
)

// NewRecord creates a record for tests.
func NewRecord(name string, ref *sam.Reference, pos int, flags sam.Flags, matePos int, mateRef *sam.Reference, cigar sam.Cigar) *sam.Record {
	r := sam.GetFromFreePool()
	r.Name = name
	r.Ref = ref
	r.Pos = pos
	r.MapQ = 60
	r.MatePos = matePos
	r.MateRef = mateRef
	r.Flags = flags
	r.Cigar = cigar
	return r
}

// NewPair creates the two records of a properly paired read pair whose
// reads start at pos1 and pos2 and align without gaps for readLen
// bases.
func NewPair(name string, ref *sam.Reference, pos1, pos2, readLen int) (*sam.Record, *sam.Record) {
	cigar := sam.Cigar{sam.NewCigarOp(sam.CigarMatch, readLen)}
	r1 := NewRecord(name, ref, pos1, sam.Paired|sam.ProperPair|sam.Read1|sam.MateReverse, pos2, ref, cigar)
	r2 := NewRecord(name, ref, pos2, sam.Paired|sam.ProperPair|sam.Read2|sam.Reverse, pos1, ref, cigar)
	return r1, r2
}

// WriteTestBAM writes records, which must be coordinate-sorted, to a BAM
// file at path.  If index is true, it also writes path.bai.
func WriteTestBAM(t testing.TB, path string, header *sam.Header, records []*sam.Record, index bool) {
	ctx := context.Background()
	out, err := file.Create(ctx, path)
	require.NoError(t, err)
	w, err := bam.NewWriter(out.Writer(ctx), header, 1)
	require.NoError(t, err)
	for _, r := range records {
		require.NoError(t, w.Write(r))
	}
	require.NoError(t, w.Close())
	require.NoError(t, out.Close(ctx))
	if index {
		require.NoError(t, WriteIndex(ctx, path, DefaultIndexPath(path)))
	}
}

// ReadRecords reads every record of the BAM file at path.
func ReadRecords(t testing.TB, path string) (*sam.Header, []*sam.Record) {
	ctx := context.Background()
	in, err := file.Open(ctx, path)
	require.NoError(t, err)
	defer in.Close(ctx) // nolint: errcheck
	r, err := bam.NewReader(in.Reader(ctx), 1)
	require.NoError(t, err)
	var records []*sam.Record
	for {
		rec, err := r.Read()
		if err == io.EOF {
			break
		}
		require.NoError(t, err)
		records = append(records, rec)
	}
	require.NoError(t, r.Close())
	return r.Header(), records
}
