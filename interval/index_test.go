package interval

import (
	"testing"

	"github.com/grailbio/base/errors"
	"github.com/grailbio/testutil/expect"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var (
	sequins = []Interval{
		{"chrQ_mirror", 100, 200, "geneA"},
		{"chrQ_mirror", 150, 1000, "geneB"},
		{"chrQ_mirror", 2000, 2100, "geneC"},
		{"chrQ_other", 0, 50, "geneD"},
	}
	samples = []Interval{
		{"chr1", 5000, 5100, "geneC"},
		{"chr2", 10, 20, "geneD"},
		{"chr1", 1000, 1100, "geneA"},
		{"chr3", 700, 1550, "geneB"},
	}
)

func TestIndexUnmatched(t *testing.T) {
	idx, err := NewIndex(sequins, nil)
	require.NoError(t, err)
	expect.False(t, idx.Matched())
	expect.EQ(t, idx.Len(), 4)
	_, ok := idx.Match(0)
	expect.False(t, ok)
	expect.EQ(t, idx.Chroms(), []string{"chrQ_mirror", "chrQ_other"})
	expect.EQ(t, len(idx.Overlapping("chr1", 0, 1<<30)), 0)
}

func TestIndexMatch(t *testing.T) {
	idx, err := NewIndex(sequins, samples)
	require.NoError(t, err)
	expect.True(t, idx.Matched())
	for i, want := range []string{"chr1:1000-1100", "chr3:700-1550", "chr1:5000-5100", "chr2:10-20"} {
		m, ok := idx.Match(i)
		expect.True(t, ok)
		expect.EQ(t, m.String(), want)
		expect.EQ(t, m.Name, idx.Subject(i).Name)
	}
}

func TestIndexMatchErrors(t *testing.T) {
	// A subject without a match.
	_, err := NewIndex(sequins, samples[:3])
	require.Error(t, err)
	expect.True(t, errors.Is(errors.Invalid, err))
	assert.Regexp(t, "geneB .* no matching reference region", err.Error())

	// Close names are suggested.
	_, err = NewIndex(
		[]Interval{{"chrQ_mirror", 1, 10, "KRAS_G12"}},
		[]Interval{{"chr7", 5, 50, "EGFR_L858R"}, {"chr12", 100, 200, "KRAS_G12D"}})
	assert.Regexp(t, `did you mean "KRAS_G12D"`, err.Error())
	_, err = NewIndex(
		[]Interval{{"chrQ_mirror", 1, 10, "KRAS_G12"}},
		[]Interval{{"chr7", 5, 50, "EGFR_L858R"}})
	assert.NotContains(t, err.Error(), "did you mean")

	// More than one match.
	dup := append(append([]Interval{}, samples...), Interval{"chr4", 1, 10, "geneA"})
	_, err = NewIndex(sequins, dup)
	require.Error(t, err)
	expect.True(t, errors.Is(errors.Invalid, err))
	assert.Regexp(t, "geneA matches 2 reference regions", err.Error())

	// Duplicate subject names.
	_, err = NewIndex(append(append([]Interval{}, sequins...), Interval{"chrQ_other", 60, 70, "geneD"}), nil)
	expect.True(t, errors.Is(errors.Invalid, err))
	assert.Regexp(t, "duplicate region name", err.Error())

	// Malformed bounds.
	_, err = NewIndex([]Interval{{"chrQ", 10, 10, "x"}}, nil)
	expect.True(t, errors.Is(errors.Invalid, err))
	_, err = NewIndex(sequins[:1], []Interval{{"chr1", 10, 5, "geneA"}})
	expect.True(t, errors.Is(errors.Invalid, err))
}

func TestIndexOverlapping(t *testing.T) {
	idx, err := NewIndex(sequins, nil)
	require.NoError(t, err)
	for _, test := range []struct {
		chrom      string
		start, end uint64
		want       []int
	}{
		{"chrQ_mirror", 0, 100, nil},
		{"chrQ_mirror", 0, 101, []int{0}},
		{"chrQ_mirror", 160, 170, []int{0, 1}},
		{"chrQ_mirror", 200, 201, []int{1}},
		{"chrQ_mirror", 999, 2001, []int{1, 2}},
		{"chrQ_mirror", 1000, 2000, nil},
		{"chrQ_mirror", 2099, 5000, []int{2}},
		{"chrQ_other", 0, 1, []int{3}},
		{"chr1", 0, 10000, nil},
		{"chrQ_mirror", 150, 150, nil},
	} {
		expect.EQ(t, idx.Overlapping(test.chrom, test.start, test.end), test.want, "%+v", test)
	}
}
