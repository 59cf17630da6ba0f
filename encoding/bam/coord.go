// Copyright 2018 GRAIL, Inc. All rights reserved.
// Use of this source code is governed by the Apache 2.0
// license that can be found in the LICENSE file.

package bam

import (
	"fmt"
	"math"

	"github.com/grailbio/hts/sam"
)

const (
	// InfinityPos is 1+ the largest possible alignment position.
	InfinityPos = math.MaxInt32

	// UnmappedRefID is the reference ID of reads without a reference.
	// Such reads are stored after every mapped read.
	UnmappedRefID = int32(-1)
)

// Coord is a position in a coordinate-sorted BAM file.
type Coord struct {
	RefID int32
	Pos   int32
}

// NewCoord generates a Coord from the given reference and position.
func NewCoord(ref *sam.Reference, pos int) Coord {
	c := Coord{RefID: int32(ref.ID()), Pos: int32(pos)}
	if c.RefID == UnmappedRefID || pos < 0 {
		// Pos of an unplaced read is conventionally -1.
		c.Pos = 0
	}
	return c
}

// CoordFromSAMRecord computes the Coord of the record's alignment start.
func CoordFromSAMRecord(rec *sam.Record) Coord {
	return NewCoord(rec.Ref, rec.Pos)
}

func sortableRefID(id int32) int32 {
	if id == UnmappedRefID {
		return math.MaxInt32
	}
	return id
}

// Compare returns a negative value, 0, or a positive value if c<c1,
// c=c1, or c>c1 respectively.
func (c Coord) Compare(c1 Coord) int {
	ref0, ref1 := sortableRefID(c.RefID), sortableRefID(c1.RefID)
	if ref0 != ref1 {
		if ref0 < ref1 {
			return -1
		}
		return 1
	}
	switch {
	case c.Pos < c1.Pos:
		return -1
	case c.Pos > c1.Pos:
		return 1
	}
	return 0
}

// LT returns true iff c < c1.
func (c Coord) LT(c1 Coord) bool { return c.Compare(c1) < 0 }

// GE returns true iff c >= c1.
func (c Coord) GE(c1 Coord) bool { return c.Compare(c1) >= 0 }

func (c Coord) String() string {
	return fmt.Sprintf("%d:%d", c.RefID, c.Pos)
}
