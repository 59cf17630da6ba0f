// Package bgzf includes a Writer for the .bgzf (block gzipped) file
// format.  A .bgzf file consists of one or more complete gzip blocks
// concatenated together.  Each block holds at most 64KB of
// uncompressed data, and its compressed size is also at most 64KB.
// A valid .bgzf file ends with a 28 byte terminator block that
// carries an empty payload.
//
// Blocks are self-contained, so a file may be produced as several
// shards compressed independently and concatenated afterwards; only
// the last shard carries the terminator:
//
//   // In goroutine 1
//   var shard1 bytes.Buffer
//   w, err := NewWriter(&shard1, gzip.DefaultCompression)
//   n, err := w.Write([]byte("Foo bar"))
//   err = w.CloseWithoutTerminator()
//
//   // In goroutine 2
//   var shard2 bytes.Buffer
//   w, err := NewWriter(&shard2, gzip.DefaultCompression)
//   n, err := w.Write([]byte(" baz!"))
//   err = w.Close()
//
// For the format details see https://samtools.github.io/hts-specs/SAMv1.pdf
package bgzf

import (
	"bytes"
	"io"

	"github.com/klauspost/compress/gzip"
	"github.com/pkg/errors"
)

const (
	// DefaultUncompressedBlockSize is the block payload size used by
	// samtools, sambamba and biogo.
	DefaultUncompressedBlockSize = 0x0ff00

	// MaxUncompressedBlockSize is the largest legal payload size.
	MaxUncompressedBlockSize = 0x10000

	// compressedBlockSize is the maximum size of the compressed data
	// for a block.
	compressedBlockSize = 0x10000

	// extraOffset is the offset of the Extra field in the gzip header.
	extraOffset = 12
	// xflOffset is the offset of the XFL field in the gzip header.
	xflOffset = 8
)

var (
	// bgzfExtra goes into the gzip Extra subfield, with subfield
	// ids 66, 67 and length 2. The last two bytes hold BSIZE.
	bgzfExtra       = [...]byte{66, 67, 2, 0, 0, 0}
	bgzfExtraPrefix = [...]byte{66, 67, 2, 0}

	// Terminator is the EOF block that ends a valid .bgzf file.
	Terminator = []byte{
		0x1f, 0x8b, 0x08, 0x04, 0x00, 0x00, 0x00, 0x00, 0x00, 0xff, 0x06, 0x00, 0x42, 0x43,
		0x02, 0x00, 0x1b, 0x00, 0x03, 0x00, 0x00, 0x00, 0x00, 0x00, 0x00, 0x00, 0x00, 0x00,
	}
)

// Writer compresses data into .bgzf format.  Each gzip block carries
// an Extra field holding the compressed block size minus one.  The
// payload of the file is the in-order concatenation of the block
// payloads.
type Writer struct {
	uncompressedSize int
	xfl              int
	w                io.Writer
	original         bytes.Buffer
	compressed       bytes.Buffer
	gz               *gzip.Writer
	coffset          uint64 // starting file position of the current block
}

// NewWriter returns a new .bgzf writer with the given gzip compression
// level.
func NewWriter(w io.Writer, level int) (*Writer, error) {
	return NewWriterParams(w, level, DefaultUncompressedBlockSize, -1)
}

// NewWriterParams returns a new .bgzf writer.  uncompressedBlockSize is
// the largest number of payload bytes put in each block.  gzipXFL is
// written into the XFL header field of every block; -1 keeps the value
// chosen by the compressor.
func NewWriterParams(w io.Writer, level, uncompressedBlockSize, gzipXFL int) (*Writer, error) {
	if uncompressedBlockSize <= 0 || uncompressedBlockSize > MaxUncompressedBlockSize {
		return nil, errors.Errorf("uncompressedBlockSize %d out of range (0,%d]",
			uncompressedBlockSize, MaxUncompressedBlockSize)
	}
	if gzipXFL != -1 && (gzipXFL < 0 || gzipXFL > 255) {
		return nil, errors.Errorf("gzipXFL must be -1 or in [0:255] not %d", gzipXFL)
	}
	bw := &Writer{
		uncompressedSize: uncompressedBlockSize,
		xfl:              gzipXFL,
		w:                w,
	}
	var err error
	if bw.gz, err = gzip.NewWriterLevel(&bw.compressed, level); err != nil {
		return nil, errors.Wrapf(err, "bgzf: gzip level %d", level)
	}
	return bw, nil
}

// Write appends buf to the .bgzf payload.
func (w *Writer) Write(buf []byte) (int, error) {
	for i := 0; i < len(buf); {
		end := len(buf)
		if limit := i + w.uncompressedSize - w.original.Len(); limit < end {
			end = limit
		}
		n, _ := w.original.Write(buf[i:end])
		i += n
		if err := w.tryCompress(false); err != nil {
			return i, err
		}
	}
	return len(buf), nil
}

// CloseWithoutTerminator flushes the current block but does not
// append the terminator.  The output is not a complete .bgzf file
// until some writer appends Terminator.
func (w *Writer) CloseWithoutTerminator() error {
	return w.tryCompress(true)
}

// Close flushes the current block and appends the terminator.
func (w *Writer) Close() error {
	if err := w.CloseWithoutTerminator(); err != nil {
		return err
	}
	_, err := w.w.Write(Terminator)
	return errors.Wrap(err, "bgzf: write terminator")
}

func (w *Writer) newBlock() {
	w.gz.Reset(&w.compressed)
	w.gz.Header.Extra = make([]byte, len(bgzfExtra))
	copy(w.gz.Header.Extra, bgzfExtra[:])
	w.gz.Header.OS = 0xff // unknown
}

// tryCompress moves full blocks (or, with compressRemainder, any
// pending bytes) from w.original to the output.
func (w *Writer) tryCompress(compressRemainder bool) error {
	for w.original.Len() >= w.uncompressedSize || (compressRemainder && w.original.Len() > 0) {
		w.newBlock()
		if _, err := w.gz.Write(w.original.Next(w.uncompressedSize)); err != nil {
			return errors.Wrap(err, "bgzf: compress block")
		}
		if err := w.gz.Close(); err != nil {
			return errors.Wrap(err, "bgzf: compress block")
		}

		b := w.compressed.Bytes()
		if w.xfl >= 0 {
			b[xflOffset] = byte(w.xfl)
		}
		bsize := w.compressed.Len() - 1
		if bsize >= compressedBlockSize {
			return errors.Errorf("bgzf compressed block is too big: %d > %d", bsize, compressedBlockSize)
		}
		if len(b) < extraOffset+len(bgzfExtra) ||
			!bytes.Equal(b[extraOffset:extraOffset+len(bgzfExtraPrefix)], bgzfExtraPrefix[:]) {
			return errors.New("bgzf: malformed gzip block header")
		}
		b[extraOffset+4] = byte(bsize)
		b[extraOffset+5] = byte(bsize >> 8)

		sz := w.compressed.Len()
		if _, err := w.compressed.WriteTo(w.w); err != nil {
			return errors.Wrap(err, "bgzf: write block")
		}
		w.coffset += uint64(sz)
	}
	return nil
}

// VOffset returns the virtual offset of the next byte to be written.
func (w *Writer) VOffset() uint64 {
	return w.coffset<<16 | uint64(w.original.Len())
}
