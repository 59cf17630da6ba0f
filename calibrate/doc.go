// Package calibrate downsamples the reads of sequin regions to a target
// depth.
//
// The target is either a fixed fold coverage or the mean coverage of the
// sample region whose name matches the sequin region.  For every region
// a Plan records the target, the observed depth and the fraction of read
// pairs to retain.  Keep/drop decisions are made per read pair from a
// keyed hash of the read name, so that both mates share one outcome and
// reruns with the same seed reproduce the same output byte for byte.
//
// Run reads the input shard by shard and writes the retained reads, in
// input order, through encoding/bam.ShardedBAMWriter.
package calibrate
