package calibrate

import (
	"context"
	"encoding/binary"
	"fmt"
	"sort"

	"github.com/grailbio/base/errors"
	"github.com/grailbio/base/log"
	"github.com/grailbio/base/traverse"
	"github.com/grailbio/base/unsafe"
	"github.com/grailbio/hts/sam"
	"github.com/grailbio/sequintools/encoding/bamprovider"
	"github.com/grailbio/sequintools/interval"
	"github.com/minio/highwayhash"
)

// hashKeySize is the key length required by highwayhash.
const hashKeySize = 32

// hashKey derives the highwayhash key of a region from its seed.  salt
// separates independent streams of one region.
func hashKey(seed, salt uint64) []byte {
	key := make([]byte, hashKeySize)
	binary.LittleEndian.PutUint64(key[0:], seed)
	binary.LittleEndian.PutUint64(key[8:], ^seed)
	binary.LittleEndian.PutUint64(key[16:], salt)
	binary.LittleEndian.PutUint64(key[24:], seed*0x9e3779b97f4a7c15+salt)
	return key
}

// draw maps name to a value uniform in [0,1).
func draw(name string, key []byte) float64 {
	h := highwayhash.Sum64(unsafe.StringToBytes(name), key)
	return float64(h>>11) / (1 << 53)
}

// Decide makes one independent keep/drop decision per pair key: a pair
// is kept with probability plan.Retain.  The result only depends on the
// plan and the keys, in the order given.
func Decide(plan Plan, keys []string) []Decision {
	key := hashKey(plan.Seed, 0)
	decisions := make([]Decision, len(keys))
	for i, k := range keys {
		decisions[i] = Decision{Key: k, Keep: draw(k, key) < plan.Retain}
	}
	return decisions
}

// pairStart is a pair key and the leftmost alignment start of its reads.
type pairStart struct {
	key string
	pos int
}

// regionPairs returns the pairs with a read overlapping region, in order
// of their leftmost start.  Duplicate reads are ignored.
func regionPairs(p bamprovider.Provider, ref *sam.Reference, region interval.Interval) ([]pairStart, error) {
	iter := p.Overlapping(ref, int(region.Start), int(region.End))
	var (
		pairs []pairStart
		seen  = map[string]bool{}
	)
	for iter.Scan() {
		r := iter.Record()
		if r.Flags&sam.Duplicate != 0 || seen[r.Name] {
			continue
		}
		seen[r.Name] = true
		pairs = append(pairs, pairStart{key: r.Name, pos: r.Pos})
	}
	if err := iter.Close(); err != nil {
		return nil, errors.E(err, "read", region.String())
	}
	return pairs, nil
}

func keysOf(pairs []pairStart) []string {
	keys := make([]string, len(pairs))
	for i, p := range pairs {
		keys[i] = p.key
	}
	return keys
}

// windows returns the starts of the windowSize-wide windows tiling
// region after flank bases are trimmed from both ends.  Windows must
// start before end-windowSize, so the last window never reaches the
// trimmed end.
func windows(region interval.Interval, flank, windowSize uint64) []uint64 {
	t := region.Trim(flank)
	var starts []uint64
	for b := t.Start; t.End >= windowSize && b < t.End-windowSize; b += windowSize {
		starts = append(starts, b)
	}
	return starts
}

// windowIndex returns the index of the window containing pos, or -1.
func windowIndex(starts []uint64, windowSize uint64, pos int) int {
	if pos < 0 || len(starts) == 0 || uint64(pos) < starts[0] {
		return -1
	}
	i := int((uint64(pos) - starts[0]) / windowSize)
	if i >= len(starts) {
		return -1
	}
	return i
}

// WindowStarts counts the reads of the sample region that start in each
// window of the region and pass the mapping-quality filter.
func WindowStarts(p bamprovider.Provider, ref *sam.Reference, region interval.Interval, opts Opts) ([]int, error) {
	starts := windows(region, opts.Flank, opts.WindowSize)
	counts := make([]int, len(starts))
	filter := opts.coverageOpts(0).Filter
	iter := p.Overlapping(ref, int(region.Start), int(region.End))
	for iter.Scan() {
		r := iter.Record()
		if r.Flags&filter.ExcludeFlags != 0 || r.MapQ < filter.MinMapQ {
			continue
		}
		if i := windowIndex(starts, opts.WindowSize, r.Pos); i >= 0 {
			counts[i]++
		}
	}
	if err := iter.Close(); err != nil {
		return nil, errors.E(err, "read", region.String())
	}
	return counts, nil
}

// DecideWindows mirrors the sample window profile onto the sequin
// region.  counts[i] is the number of sample read starts in window i; the
// sequin region's window i is paired with sample window len(counts)-1-i,
// and half of that many pairs (one pair holds two reads) starting in the
// sequin window are kept.  The kept pairs are the ones ranking lowest by
// a keyed hash of their name, salted with the window index.  Pairs
// starting outside every window are dropped.
func DecideWindows(plan Plan, pairs []pairStart, counts []int, flank, windowSize uint64) []Decision {
	starts := windows(plan.Region, flank, windowSize)
	byWindow := make([][]string, len(starts))
	decisions := make([]Decision, 0, len(pairs))
	for _, p := range pairs {
		if i := windowIndex(starts, windowSize, p.pos); i >= 0 {
			byWindow[i] = append(byWindow[i], p.key)
		} else {
			decisions = append(decisions, Decision{Key: p.key})
		}
	}
	for i, keys := range byWindow {
		n := 0
		if j := len(counts) - 1 - i; j >= 0 {
			n = counts[j] / 2
		}
		key := hashKey(plan.Seed, uint64(i)+1)
		ranks := make(map[string]uint64, len(keys))
		for _, k := range keys {
			ranks[k] = highwayhash.Sum64(unsafe.StringToBytes(k), key)
		}
		sort.SliceStable(keys, func(a, b int) bool { return ranks[keys[a]] < ranks[keys[b]] })
		for rank, k := range keys {
			decisions = append(decisions, Decision{Key: k, Keep: rank < n})
		}
	}
	return decisions
}

// RegionOverlap names two sequin regions that share bases.  First
// precedes Second in genome order, so First decides the pairs they share.
type RegionOverlap struct {
	First, Second interval.Interval
}

// Overlaps returns the pairs of overlapping sequin regions of idx, in
// index order of First and then by the start of Second.
func Overlaps(idx *interval.Index) []RegionOverlap {
	var overlaps []RegionOverlap
	for i, s := range idx.Subjects() {
		for _, j := range idx.Overlapping(s.Chrom, s.Start, s.End) {
			if j == i {
				continue
			}
			o := idx.Subject(j)
			if o.Start > s.Start || (o.Start == s.Start && (o.End > s.End || (o.End == s.End && j > i))) {
				overlaps = append(overlaps, RegionOverlap{First: s, Second: o})
			}
		}
	}
	return overlaps
}

// GenomeOrder returns the ranks of plans sorted by the position of their
// regions in header.
func GenomeOrder(header *sam.Header, plans []Plan) ([]int, error) {
	refIdx := map[string]int{}
	for i, ref := range header.Refs() {
		refIdx[ref.Name()] = i
	}
	order := make([]int, len(plans))
	for i, p := range plans {
		if _, ok := refIdx[p.Region.Chrom]; !ok {
			return nil, errors.E(errors.Invalid, fmt.Sprintf(
				"region %s (%s): chromosome %s is not in the BAM header", p.Region.Name, p.Region, p.Region.Chrom))
		}
		order[i] = i
	}
	sort.SliceStable(order, func(a, b int) bool {
		ra, rb := plans[order[a]].Region, plans[order[b]].Region
		if ia, ib := refIdx[ra.Chrom], refIdx[rb.Chrom]; ia != ib {
			return ia < ib
		}
		if ra.Start != rb.Start {
			return ra.Start < rb.Start
		}
		return ra.End < rb.End
	})
	ranks := make([]int, len(plans))
	for rank, i := range order {
		ranks[i] = rank
	}
	return ranks, nil
}

// DecideAll makes the decisions of every plan and merges them.  Regions
// are processed concurrently; on a pair decided by several regions, the
// region first in genome order wins.
func DecideAll(ctx context.Context, p bamprovider.Provider, plans []Plan, opts Opts) (*Decisions, error) {
	header, err := p.GetHeader()
	if err != nil {
		return nil, err
	}
	ranks, err := GenomeOrder(header, plans)
	if err != nil {
		return nil, err
	}
	table := NewDecisions()
	err = traverse.Limit(opts.parallelism()).Each(len(plans), func(i int) error {
		if err := ctx.Err(); err != nil {
			return err
		}
		plan := plans[i]
		ref := bamprovider.RefByName(header, plan.Region.Chrom)
		pairs, err := regionPairs(p, ref, plan.Region)
		if err != nil {
			return err
		}
		var decisions []Decision
		if opts.WindowProfile {
			sampleRef := bamprovider.RefByName(header, plan.Reference.Chrom)
			counts, err := WindowStarts(p, sampleRef, *plan.Reference, opts)
			if err != nil {
				return err
			}
			decisions = DecideWindows(plan, pairs, counts, opts.Flank, opts.WindowSize)
		} else {
			decisions = Decide(plan, keysOf(pairs))
		}
		table.Add(ranks[i], decisions)
		log.Debug.Printf("%s: decided %d pairs", plan.Region.Name, len(decisions))
		return nil
	})
	if err != nil {
		return nil, err
	}
	return table, nil
}
