// Copyright 2018 GRAIL, Inc. All rights reserved.
// Use of this source code is governed by the Apache 2.0
// license that can be found in the LICENSE file.

package bam

import (
	"bytes"
	"encoding/binary"
	"fmt"

	"github.com/grailbio/base/errors"
	"github.com/grailbio/hts/sam"
)

// recordHeaderSize is the size of the fixed-width part of a BAM record,
// including the leading block_size field.
const recordHeaderSize = 36

// maxNameLen is the longest read name BAM can store, excluding the NUL.
const maxNameLen = 254

// auxNULTerminated returns true if aux fields of type t are stored with
// a trailing NUL that sam.Aux omits.
func auxNULTerminated(t byte) bool { return t == 'Z' || t == 'H' }

// encodedLen returns the length of r's BAM encoding after block_size.
func encodedLen(r *sam.Record) int {
	n := recordHeaderSize - 4 + len(r.Name) + 1 + 4*len(r.Cigar) + len(r.Seq.Seq) + r.Seq.Length
	for _, a := range r.AuxFields {
		n += len(a)
		if auxNULTerminated(a.Type()) {
			n++
		}
	}
	return n
}

// Marshal appends r to buf in BAM binary format, starting with the
// block_size field.  A record whose name is empty or too long, or whose
// quality length differs from its sequence length, is an errors.Invalid
// error.
func Marshal(r *sam.Record, buf *bytes.Buffer) error {
	if n := len(r.Name); n == 0 || n > maxNameLen {
		return errors.E(errors.Invalid, fmt.Sprintf("bam: record name %q is empty or longer than %d", r.Name, maxNameLen))
	}
	if r.Qual != nil && len(r.Qual) != r.Seq.Length {
		return errors.E(errors.Invalid, fmt.Sprintf("bam: record %s has %d qualities for %d bases", r.Name, len(r.Qual), r.Seq.Length))
	}
	var h [recordHeaderSize]byte
	le := binary.LittleEndian
	le.PutUint32(h[0:], uint32(encodedLen(r)))
	le.PutUint32(h[4:], uint32(int32(r.Ref.ID())))
	le.PutUint32(h[8:], uint32(int32(r.Pos)))
	h[12] = byte(len(r.Name) + 1)
	h[13] = r.MapQ
	le.PutUint16(h[14:], uint16(r.Bin()))
	le.PutUint16(h[16:], uint16(len(r.Cigar)))
	le.PutUint16(h[18:], uint16(r.Flags))
	le.PutUint32(h[20:], uint32(int32(r.Seq.Length)))
	le.PutUint32(h[24:], uint32(int32(r.MateRef.ID())))
	le.PutUint32(h[28:], uint32(int32(r.MatePos)))
	le.PutUint32(h[32:], uint32(int32(r.TempLen)))
	buf.Write(h[:])

	buf.WriteString(r.Name)
	buf.WriteByte(0)
	var op [4]byte
	for _, o := range r.Cigar {
		le.PutUint32(op[:], uint32(o))
		buf.Write(op[:])
	}
	for _, d := range r.Seq.Seq {
		buf.WriteByte(byte(d))
	}
	if r.Qual != nil {
		buf.Write(r.Qual)
	} else {
		// Missing qualities are stored as 0xff.
		for i := 0; i < r.Seq.Length; i++ {
			buf.WriteByte(0xff)
		}
	}
	for _, a := range r.AuxFields {
		buf.Write(a)
		if auxNULTerminated(a.Type()) {
			buf.WriteByte(0)
		}
	}
	return nil
}
