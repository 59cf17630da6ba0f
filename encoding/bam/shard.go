// Copyright 2018 GRAIL, Inc. All rights reserved.
// Use of this source code is governed by the Apache 2.0
// license that can be found in the LICENSE file.

package bam

import (
	"fmt"
	"math"

	"github.com/grailbio/base/errors"
	"github.com/grailbio/hts/sam"
)

// Shard is a half-open, 0-based interval [Start,End) on one reference.
// An iterator over a shard returns the records whose alignment start
// falls within it, so every record belongs to exactly one shard of a
// list produced by GetPositionBasedShards.
//
// A shard with a nil Ref holds the unplaced reads, which are stored
// after every mapped read.  Its range is [0,InfinityPos).
//
// ShardIdx is the position of the shard in file order.
type Shard struct {
	Ref      *sam.Reference
	Start    int
	End      int
	ShardIdx int
}

// Unmapped returns true if s is the shard of unplaced reads.
func (s Shard) Unmapped() bool {
	return s.Ref == nil
}

// StartCoord returns the first coordinate in the shard.
func (s Shard) StartCoord() Coord {
	return NewCoord(s.Ref, s.Start)
}

// LimitCoord returns the coordinate one past the shard.
func (s Shard) LimitCoord() Coord {
	return NewCoord(s.Ref, s.End)
}

// RecordInShard returns true if r starts in s.
func (s Shard) RecordInShard(r *sam.Record) bool {
	c := CoordFromSAMRecord(r)
	if s.Unmapped() {
		return c.RefID == UnmappedRefID
	}
	return c.GE(s.StartCoord()) && c.LT(s.LimitCoord())
}

// String returns a debug string for s.
func (s Shard) String() string {
	if s.Unmapped() {
		return fmt.Sprintf("%d:(unmapped)", s.ShardIdx)
	}
	return fmt.Sprintf("%d:%s:%d-%d", s.ShardIdx, s.Ref.Name(), s.Start, s.End)
}

// GetPositionBasedShards returns a list of shards that cover the genome
// in file order using the specified shard size.  A shard for the
// unplaced reads is appended if includeUnmapped is true.
func GetPositionBasedShards(header *sam.Header, shardSize int, includeUnmapped bool) ([]Shard, error) {
	if shardSize <= 0 {
		return nil, errors.E(errors.Invalid, fmt.Sprintf("shard size must be positive, got %d", shardSize))
	}
	var shards []Shard
	for _, ref := range header.Refs() {
		for start := 0; start < ref.Len(); start += shardSize {
			end := start + shardSize
			if end > ref.Len() {
				end = ref.Len()
			}
			shards = append(shards, Shard{Ref: ref, Start: start, End: end, ShardIdx: len(shards)})
		}
	}
	if includeUnmapped {
		shards = append(shards, Shard{Start: 0, End: math.MaxInt32, ShardIdx: len(shards)})
	}
	return shards, nil
}
