// Copyright 2018 GRAIL, Inc. All rights reserved.
// Use of this source code is governed by the Apache 2.0
// license that can be found in the LICENSE file.

package bam

import (
	"bytes"
	"fmt"
	"io"
	"sync"

	"github.com/grailbio/base/errors"
	"github.com/grailbio/base/syncqueue"
	"github.com/grailbio/hts/sam"
	"github.com/grailbio/sequintools/encoding/bgzf"
)

// ShardedBAMWriter writes a BAM file as a sequence of shards.  Shards
// are numbered sequentially from 0, may be filled and compressed
// concurrently, and are written out in shard-number order regardless of
// the order in which they are closed.
//
// Each goroutine obtains its own ShardedBAMCompressor from
// GetCompressor, then repeatedly calls StartShard, AddRecord and
// CloseShard.  Compression happens in AddRecord and CloseShard, so
// compressors run in parallel; only the final write is serialized.
//
//   w, err := NewShardedBAMWriter(out, gzip.DefaultCompression, 10, header)
//   c := w.GetCompressor()
//   err = c.StartShard(0)
//   err = c.AddRecord(record)
//   err = c.CloseShard()
//   err = w.Close()
type ShardedBAMWriter struct {
	w         io.Writer
	gzLevel   int
	queue     *syncqueue.OrderedQueue
	waitGroup sync.WaitGroup
	err       error
}

// ShardedBAMCompressor holds one in-progress compressed shard.
type ShardedBAMCompressor struct {
	writer *ShardedBAMWriter
	bgzf   *bgzf.Writer
	output *shardedBAMBuffer
	buf    bytes.Buffer
}

type shardedBAMBuffer struct {
	buf      bytes.Buffer
	shardNum int
}

// NewShardedBAMWriter creates a ShardedBAMWriter that writes the header
// and then the shards to w.  queueSize bounds how many closed shards
// may wait for their predecessors; CloseShard blocks beyond that.
func NewShardedBAMWriter(w io.Writer, gzLevel, queueSize int, header *sam.Header) (*ShardedBAMWriter, error) {
	bw := ShardedBAMWriter{
		w:       w,
		gzLevel: gzLevel,
		queue:   syncqueue.NewOrderedQueue(queueSize),
	}

	// The header occupies internal slot 0; user shard n is slot n+1.
	c := bw.GetCompressor()
	if err := c.StartShard(-1); err != nil {
		return nil, err
	}
	if err := header.EncodeBinary(c.bgzf); err != nil {
		return nil, errors.E(err, "encode bam header")
	}
	if err := c.CloseShard(); err != nil {
		return nil, err
	}

	bw.waitGroup.Add(1)
	go func() {
		defer bw.waitGroup.Done()
		bw.writeShards()
	}()
	return &bw, nil
}

// GetCompressor returns a new child compressor.
func (bw *ShardedBAMWriter) GetCompressor() *ShardedBAMCompressor {
	return &ShardedBAMCompressor{writer: bw}
}

// StartShard begins shard shardNum.
func (c *ShardedBAMCompressor) StartShard(shardNum int) error {
	if c.output != nil {
		return errors.E(errors.Precondition, fmt.Sprintf("bam: shard %d still in progress", c.output.shardNum-1))
	}
	c.output = &shardedBAMBuffer{shardNum: shardNum + 1}
	var err error
	c.bgzf, err = bgzf.NewWriter(&c.output.buf, c.writer.gzLevel)
	return err
}

// AddRecord appends r to the current shard.
func (c *ShardedBAMCompressor) AddRecord(r *sam.Record) error {
	if c.output == nil {
		return errors.E(errors.Precondition, "bam: AddRecord without StartShard")
	}
	c.buf.Reset()
	if err := Marshal(r, &c.buf); err != nil {
		return errors.E(errors.Invalid, err, r.Name)
	}
	_, err := c.buf.WriteTo(c.bgzf)
	return err
}

// CloseShard compresses the rest of the shard and hands it to the
// parent writer.  It may block until earlier shards are written.
func (c *ShardedBAMCompressor) CloseShard() error {
	if c.output == nil {
		return errors.E(errors.Precondition, "bam: CloseShard without StartShard")
	}
	if err := c.bgzf.CloseWithoutTerminator(); err != nil {
		return err
	}
	f := c.output
	c.output = nil
	return c.writer.queue.Insert(f.shardNum, f)
}

func (bw *ShardedBAMWriter) writeShards() {
	for {
		entry, ok, err := bw.queue.Next()
		if err != nil {
			bw.err = err
			return
		}
		if !ok {
			return
		}
		shard := entry.(*shardedBAMBuffer)
		if _, err = shard.buf.WriteTo(bw.w); err != nil {
			bw.err = err
			bw.queue.Close(err)
			return
		}
	}
}

// Abort stops the writer without completing the file.  Blocked
// CloseShard calls return err.
func (bw *ShardedBAMWriter) Abort(err error) {
	bw.queue.Close(err)
	bw.waitGroup.Wait()
}

// Close waits for every shard to be written and appends the BGZF
// terminator.  All shards must have been closed.
func (bw *ShardedBAMWriter) Close() error {
	err := bw.queue.Close(nil)
	bw.waitGroup.Wait()
	if bw.err != nil {
		return bw.err
	}
	if err != nil {
		return err
	}
	_, err = bw.w.Write(bgzf.Terminator)
	return err
}
