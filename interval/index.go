package interval

import (
	"fmt"
	"strings"

	"github.com/antzucaro/matchr"
	"github.com/biogo/store/llrb"
	"github.com/grailbio/base/errors"
)

// Index holds the subject intervals, their per-chromosome lookup and,
// optionally, the reference interval matched to each subject by name.
type Index struct {
	subjects   []Interval
	references []Interval
	// match[i] is the index in references of the match of subjects[i].
	// It is nil when no references were supplied.
	match   []int
	byChrom map[string]*chromIndex
	chroms  []string
}

type chromIndex struct {
	tree llrb.Tree
	// maxLen is the length of the longest interval in the tree.
	maxLen uint64
}

// node is an llrb key.  idx breaks ties between intervals with the same
// start, so that no two nodes compare equal.
type node struct {
	start uint64
	idx   int
}

// Compare implements llrb.Comparable.
func (n node) Compare(c llrb.Comparable) int {
	o := c.(node)
	switch {
	case n.start < o.start:
		return -1
	case n.start > o.start:
		return 1
	case n.idx < o.idx:
		return -1
	case n.idx > o.idx:
		return 1
	}
	return 0
}

// NewIndex validates subjects and builds the lookup.  If references is
// non-nil, every subject must share its name with exactly one reference
// interval; otherwise no matching is attempted.  Violations are
// reported as errors.Invalid.
func NewIndex(subjects, references []Interval) (*Index, error) {
	idx := &Index{
		subjects:   subjects,
		references: references,
		byChrom:    map[string]*chromIndex{},
	}
	seen := make(map[string]int, len(subjects))
	for i, s := range subjects {
		if err := s.Validate(); err != nil {
			return nil, err
		}
		if j, ok := seen[s.Name]; ok {
			return nil, errors.E(errors.Invalid, fmt.Sprintf(
				"duplicate region name %q: %s and %s", s.Name, subjects[j], s))
		}
		seen[s.Name] = i

		ci := idx.byChrom[s.Chrom]
		if ci == nil {
			ci = &chromIndex{}
			idx.byChrom[s.Chrom] = ci
			idx.chroms = append(idx.chroms, s.Chrom)
		}
		ci.tree.Insert(node{start: s.Start, idx: i})
		if l := s.Len(); l > ci.maxLen {
			ci.maxLen = l
		}
	}
	if references != nil {
		if err := idx.matchReferences(); err != nil {
			return nil, err
		}
	}
	return idx, nil
}

func (idx *Index) matchReferences() error {
	byName := make(map[string][]int, len(idx.references))
	for i, r := range idx.references {
		if err := r.Validate(); err != nil {
			return err
		}
		byName[r.Name] = append(byName[r.Name], i)
	}
	idx.match = make([]int, len(idx.subjects))
	for i, s := range idx.subjects {
		m := byName[s.Name]
		switch len(m) {
		case 1:
			idx.match[i] = m[0]
		case 0:
			msg := fmt.Sprintf("region %s (%s) has no matching reference region", s.Name, s)
			if near := closestName(s.Name, byName); near != "" {
				msg += fmt.Sprintf("; did you mean %q?", near)
			}
			return errors.E(errors.Invalid, msg)
		default:
			locs := make([]string, len(m))
			for j, k := range m {
				locs[j] = idx.references[k].String()
			}
			return errors.E(errors.Invalid, fmt.Sprintf(
				"region %s matches %d reference regions: %s", s.Name, len(m), strings.Join(locs, ", ")))
		}
	}
	return nil
}

// closestName returns the name in names nearest to name by edit
// distance, or "" if nothing is reasonably close.
func closestName(name string, names map[string][]int) string {
	best, bestDist := "", len(name)/2+1
	for n := range names {
		d := matchr.Levenshtein(name, n)
		if d < bestDist || (d == bestDist && best != "" && n < best) {
			best, bestDist = n, d
		}
	}
	return best
}

// Len returns the number of subject intervals.
func (idx *Index) Len() int { return len(idx.subjects) }

// Subjects returns the subject intervals in input order.
func (idx *Index) Subjects() []Interval { return idx.subjects }

// Subject returns the i'th subject interval.
func (idx *Index) Subject(i int) Interval { return idx.subjects[i] }

// Matched returns true if the index was built with reference intervals.
func (idx *Index) Matched() bool { return idx.match != nil }

// Match returns the reference interval matched to the i'th subject.
func (idx *Index) Match(i int) (Interval, bool) {
	if idx.match == nil {
		return Interval{}, false
	}
	return idx.references[idx.match[i]], true
}

// Chroms returns the chromosomes holding subject intervals, in order of
// first appearance.
func (idx *Index) Chroms() []string { return idx.chroms }

// Overlapping returns the indices of the subject intervals that overlap
// [start,end) on chrom, ordered by start.
func (idx *Index) Overlapping(chrom string, start, end uint64) []int {
	ci := idx.byChrom[chrom]
	if ci == nil || start >= end {
		return nil
	}
	var from uint64
	if start > ci.maxLen {
		from = start - ci.maxLen
	}
	var result []int
	ci.tree.DoRange(func(c llrb.Comparable) bool {
		n := c.(node)
		if idx.subjects[n.idx].End > start {
			result = append(result, n.idx)
		}
		return false
	}, node{start: from, idx: -1}, node{start: end, idx: -1})
	return result
}
