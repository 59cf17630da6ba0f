package coverage

import "github.com/grailbio/hts/sam"

// Filter decides which spans count toward depth.
type Filter struct {
	// ExcludeFlags drops spans of reads with any of these flags set.
	ExcludeFlags sam.Flags
	// MinMapQ drops spans of reads with a lower mapping quality.
	MinMapQ byte
}

// DefaultExcludeFlags drops unmapped, secondary, QC-fail, duplicate and
// supplementary alignments (0xf04).
const DefaultExcludeFlags = sam.Unmapped | sam.Secondary | sam.QCFail | sam.Duplicate | sam.Supplementary

// DefaultFilter counts primary mapped reads of any mapping quality.
var DefaultFilter = Filter{ExcludeFlags: DefaultExcludeFlags}

// Pass returns true if s counts toward depth.
func (f Filter) Pass(s ReadSpan) bool {
	return s.Mapped && s.Flags&f.ExcludeFlags == 0 && s.MapQ >= f.MinMapQ
}
