package bgzf

import (
	"bytes"
	"io/ioutil"
	"math/rand"
	"testing"

	"github.com/grailbio/hts/bgzf"
	"github.com/klauspost/compress/gzip"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWriter(t *testing.T) {
	r := rand.New(rand.NewSource(0))
	for _, length := range []int{0, 1, 100, 65279, 65280, 65281, 500000} {
		t.Logf("length: %d", length)
		for _, useParams := range []bool{false, true} {
			input := make([]byte, length)
			_, err := r.Read(input)
			require.NoError(t, err)

			var buf bytes.Buffer
			var w *Writer
			if useParams {
				w, err = NewWriterParams(&buf, 1, 0x0ff05, 3)
			} else {
				w, err = NewWriter(&buf, 1)
			}
			require.NoError(t, err)
			n, err := w.Write(input)
			assert.NoError(t, err)
			assert.Equal(t, length, n)
			assert.NoError(t, w.Close())

			if useParams && length > 0 {
				// The terminator is not rewritten, but every data block is.
				assert.Equal(t, byte(3), buf.Bytes()[xflOffset])
			}
			assert.True(t, bytes.HasSuffix(buf.Bytes(), Terminator))

			gz, err := gzip.NewReader(bytes.NewReader(buf.Bytes()))
			require.NoError(t, err)
			actual, err := ioutil.ReadAll(gz)
			require.NoError(t, err)
			assert.Equal(t, input, actual)
		}
	}
}

func TestShardsConcatenate(t *testing.T) {
	var shard1, shard2 bytes.Buffer
	w1, err := NewWriter(&shard1, gzip.DefaultCompression)
	require.NoError(t, err)
	_, err = w1.Write([]byte("Foo bar"))
	require.NoError(t, err)
	require.NoError(t, w1.CloseWithoutTerminator())
	assert.False(t, bytes.HasSuffix(shard1.Bytes(), Terminator))

	w2, err := NewWriter(&shard2, gzip.DefaultCompression)
	require.NoError(t, err)
	_, err = w2.Write([]byte(" baz!"))
	require.NoError(t, err)
	require.NoError(t, w2.Close())

	all := append(append([]byte{}, shard1.Bytes()...), shard2.Bytes()...)
	r, err := bgzf.NewReader(bytes.NewReader(all), 1)
	require.NoError(t, err)
	actual, err := ioutil.ReadAll(r)
	require.NoError(t, err)
	assert.Equal(t, "Foo bar baz!", string(actual))
}

func TestVOffset(t *testing.T) {
	var buf bytes.Buffer
	w, err := NewWriterParams(&buf, 1, 5, -1)
	require.NoError(t, err)

	// Four bytes fit in the first block.
	_, err = w.Write([]byte("ABCD"))
	require.NoError(t, err)
	assert.Equal(t, uint64(4), w.VOffset())

	// The fifth byte completes the block.
	_, err = w.Write([]byte("E"))
	require.NoError(t, err)
	voffset1 := w.VOffset()
	assert.Equal(t, uint64(0), voffset1&0xffff)
	assert.NotEqual(t, uint64(0), voffset1>>16)

	_, err = w.Write([]byte("F"))
	require.NoError(t, err)
	voffset2 := w.VOffset()
	assert.Equal(t, uint64(1), voffset2&0xffff)
	assert.Equal(t, voffset1>>16, voffset2>>16)
}

func TestBadParams(t *testing.T) {
	var buf bytes.Buffer
	_, err := NewWriterParams(&buf, 1, MaxUncompressedBlockSize+1, -1)
	assert.Error(t, err)
	_, err = NewWriterParams(&buf, 1, 100, 256)
	assert.Error(t, err)
	_, err = NewWriterParams(&buf, 42, 100, -1)
	assert.Error(t, err)
}
