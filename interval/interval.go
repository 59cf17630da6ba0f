package interval

import (
	"fmt"

	"github.com/grailbio/base/errors"
)

// Interval is a named, 0-based, half-open range [Start,End) on Chrom.
type Interval struct {
	Chrom string
	Start uint64
	End   uint64
	Name  string
}

// Len returns the number of bases in the interval.
func (i Interval) Len() uint64 {
	if i.End <= i.Start {
		return 0
	}
	return i.End - i.Start
}

// Validate returns an errors.Invalid error unless Start < End.
func (i Interval) Validate() error {
	if i.Chrom == "" {
		return errors.E(errors.Invalid, fmt.Sprintf("interval %q has no chromosome", i.Name))
	}
	if i.Start >= i.End {
		return errors.E(errors.Invalid, fmt.Sprintf("interval %s (%s): start must be before end", i, i.Name))
	}
	return nil
}

// Overlaps returns true if i and the range [start,end) on chrom share a base.
func (i Interval) Overlaps(chrom string, start, end uint64) bool {
	return i.Chrom == chrom && i.Start < end && start < i.End
}

// Trim returns i shrunk by flank bases at both ends.  The result is not
// validated, so it may be empty.
func (i Interval) Trim(flank uint64) Interval {
	t := i
	t.Start += flank
	if t.End >= flank {
		t.End -= flank
	} else {
		t.End = 0
	}
	return t
}

// String renders the interval as chrom:start-end.
func (i Interval) String() string {
	return fmt.Sprintf("%s:%d-%d", i.Chrom, i.Start, i.End)
}

// ID returns a stable identity for the interval that includes its name.
func (i Interval) ID() string {
	return fmt.Sprintf("%s:%d-%d:%s", i.Chrom, i.Start, i.End, i.Name)
}
