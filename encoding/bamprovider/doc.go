// Package bamprovider provides utilities for reading a coordinate-sorted
// BAM file in parallel, either shard by shard or by genomic range through
// its .bai index.
//
// A fake Provider backed by an in-memory record list allows testing
// callers without files.
package bamprovider
