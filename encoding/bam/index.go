// Copyright 2018 GRAIL, Inc. All rights reserved.
// Use of this source code is governed by the Apache 2.0
// license that can be found in the LICENSE file.

package bam

import (
	"context"
	"io"

	"github.com/grailbio/base/errors"
	"github.com/grailbio/base/file"
	"github.com/grailbio/base/log"
	"github.com/grailbio/hts/bam"
)

// DefaultIndexPath returns the conventional .bai path for bamPath.
func DefaultIndexPath(bamPath string) string {
	return bamPath + ".bai"
}

// WriteIndex reads the coordinate-sorted BAM file at bamPath and writes
// its .bai index to indexPath.
func WriteIndex(ctx context.Context, bamPath, indexPath string) error {
	idx, n, err := buildIndex(ctx, bamPath)
	if err != nil {
		return err
	}
	out, err := file.Create(ctx, indexPath)
	if err != nil {
		return errors.E(err, "create", indexPath)
	}
	if err := bam.WriteIndex(out.Writer(ctx), idx); err != nil {
		out.Discard(ctx)
		return errors.E(err, "write index", indexPath)
	}
	if err := out.Close(ctx); err != nil {
		return errors.E(err, "close", indexPath)
	}
	log.Debug.Printf("indexed %d records of %s into %s", n, bamPath, indexPath)
	return nil
}

func buildIndex(ctx context.Context, bamPath string) (*bam.Index, int, error) {
	in, err := file.Open(ctx, bamPath)
	if err != nil {
		return nil, 0, errors.E(err, "open", bamPath)
	}
	defer in.Close(ctx) // nolint: errcheck

	r, err := bam.NewReader(in.Reader(ctx), 1)
	if err != nil {
		return nil, 0, errors.E(err, "read bam header", bamPath)
	}
	defer r.Close() // nolint: errcheck

	var (
		idx bam.Index
		n   int
	)
	for {
		rec, err := r.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, 0, errors.E(err, "read", bamPath)
		}
		if err := idx.Add(rec, r.LastChunk()); err != nil {
			return nil, 0, errors.E(errors.Integrity, err, "index", bamPath, rec.Name)
		}
		n++
	}
	return &idx, n, nil
}
