package cmd

import (
	"bytes"
	"context"
	"io/ioutil"
	"os"
	"path/filepath"
	"testing"

	"github.com/grailbio/base/errors"
	"github.com/grailbio/base/grail"
	"github.com/grailbio/hts/sam"
	gbam "github.com/grailbio/sequintools/encoding/bam"
	"github.com/grailbio/testutil"
	"github.com/grailbio/testutil/expect"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMain(m *testing.M) {
	shutdown := grail.Init()
	status := m.Run()
	shutdown()
	os.Exit(status)
}

func writeFile(t *testing.T, path, data string) {
	require.NoError(t, ioutil.WriteFile(path, []byte(data), 0644))
}

// writeBedcovBAM writes a pair "a" covering chr1:10-30 once and a
// pair "low" with mapping quality 5 covering it again.
func writeBedcovBAM(t *testing.T, dir string) string {
	chr1, err := sam.NewReference("chr1", "", "", 100, nil, nil)
	require.NoError(t, err)
	header, err := sam.NewHeader(nil, []*sam.Reference{chr1})
	require.NoError(t, err)
	a1, a2 := gbam.NewPair("a", chr1, 10, 20, 10)
	l1, l2 := gbam.NewPair("low", chr1, 10, 20, 10)
	l1.MapQ, l2.MapQ = 5, 5
	path := filepath.Join(dir, "in.bam")
	gbam.WriteTestBAM(t, path, header, []*sam.Record{a1, l1, a2, l2}, true)
	return path
}

func TestBedcov(t *testing.T) {
	dir, cleanup := testutil.TempDir(t, "", "")
	defer cleanup()
	bamPath := writeBedcovBAM(t, dir)
	bedPath := filepath.Join(dir, "regions.bed")
	writeFile(t, bedPath, "chr1\t10\t30\tr1\nchr1\t0\t10\tr0\n")

	header := "chrom,beg,end,name,len,min,max,mean,std,cv"
	for _, test := range []struct {
		modify func(o *bedcovOpts)
		want   string
	}{
		{
			func(o *bedcovOpts) {},
			header + "\nchr1,10,30,r1,20,2,2,2.00,0.00,0.00\nchr1,0,10,r0,10,0,0,0.00,0.00,0.00\n",
		},
		{
			func(o *bedcovOpts) { o.minMapQ, o.thresholds = 10, "1,2" },
			header + ",pct_ge_1,pct_ge_2\n" +
				"chr1,10,30,r1,20,1,1,1.00,0.00,0.00,1.00,0.00\n" +
				"chr1,0,10,r0,10,0,0,0.00,0.00,0.00,0.00,0.00\n",
		},
		{
			func(o *bedcovOpts) { o.maxDepth = 1 },
			header + "\nchr1,10,30,r1,20,1,1,1.00,0.00,0.00\nchr1,0,10,r0,10,0,0,0.00,0.00,0.00\n",
		},
		{
			func(o *bedcovOpts) { o.format = "tsv" },
			"chrom\tbeg\tend\tname\tlen\tmin\tmax\tmean\tstd\tcv\n" +
				"chr1\t10\t30\tr1\t20\t2\t2\t2.00\t0.00\t0.00\n" +
				"chr1\t0\t10\tr0\t10\t0\t0\t0.00\t0.00\t0.00\n",
		},
	} {
		opts := defaultBedcovOpts
		test.modify(&opts)
		var out bytes.Buffer
		require.NoError(t, bedcov(context.Background(), opts, bedPath, bamPath, &out))
		expect.EQ(t, out.String(), test.want)
	}
}

func TestBedcovFlank(t *testing.T) {
	dir, cleanup := testutil.TempDir(t, "", "")
	defer cleanup()
	bamPath := writeBedcovBAM(t, dir)
	bedPath := filepath.Join(dir, "regions.bed")
	writeFile(t, bedPath, "chr1\t5\t30\tr1\n")

	opts := defaultBedcovOpts
	opts.flank = 5
	var out bytes.Buffer
	require.NoError(t, bedcov(context.Background(), opts, bedPath, bamPath, &out))
	expect.EQ(t, out.String(), "chrom,beg,end,name,len,min,max,mean,std,cv\nchr1,5,30,r1,15,2,2,2.00,0.00,0.00\n")

	opts.flank = 20
	err := bedcov(context.Background(), opts, bedPath, bamPath, &out)
	expect.True(t, errors.Is(errors.Integrity, err), "%v", err)
}

func TestBedcovErrors(t *testing.T) {
	dir, cleanup := testutil.TempDir(t, "", "")
	defer cleanup()
	bamPath := writeBedcovBAM(t, dir)
	bedPath := filepath.Join(dir, "regions.bed")
	writeFile(t, bedPath, "chr1\t10\t30\tr1\n")

	for _, modify := range []func(o *bedcovOpts){
		func(o *bedcovOpts) { o.format = "json" },
		func(o *bedcovOpts) { o.thresholds = "1,x" },
	} {
		opts := defaultBedcovOpts
		modify(&opts)
		var out bytes.Buffer
		err := bedcov(context.Background(), opts, bedPath, bamPath, &out)
		expect.True(t, errors.Is(errors.Invalid, err), "%v", err)
		expect.EQ(t, out.Len(), 0)
	}

	var out bytes.Buffer
	err := bedcov(context.Background(), defaultBedcovOpts, filepath.Join(dir, "missing.bed"), bamPath, &out)
	expect.True(t, errors.Is(errors.NotExist, err), "%v", err)

	typoPath := filepath.Join(dir, "typo.bed")
	writeFile(t, typoPath, "chr1\t10\t30\tr1\nchrTYPO\t0\t10\tr2\n")
	err = bedcov(context.Background(), defaultBedcovOpts, typoPath, bamPath, &out)
	expect.True(t, errors.Is(errors.Invalid, err), "%v", err)
	assert.Regexp(t, "chrTYPO not found in BAM header", err.Error())
	expect.EQ(t, out.Len(), 0)
}

func TestParseThresholds(t *testing.T) {
	th, err := parseThresholds("")
	expect.NoError(t, err)
	expect.EQ(t, len(th), 0)
	th, err = parseThresholds("10, 20,100")
	expect.NoError(t, err)
	expect.EQ(t, th, []uint32{10, 20, 100})
	_, err = parseThresholds("10,-1")
	assert.Error(t, err)
}

// writeCalibrateBAM writes five sequin pairs inside chrQ:100-200 and
// one pair on chr1.
func writeCalibrateBAM(t *testing.T, dir string) string {
	chr1, err := sam.NewReference("chr1", "", "", 1000, nil, nil)
	require.NoError(t, err)
	chrQ, err := sam.NewReference("chrQ", "", "", 1000, nil, nil)
	require.NoError(t, err)
	header, err := sam.NewHeader(nil, []*sam.Reference{chr1, chrQ})
	require.NoError(t, err)
	s1, s2 := gbam.NewPair("sample", chr1, 100, 150, 50)
	recs := []*sam.Record{s1, s2}
	var mates []*sam.Record
	for i := 0; i < 5; i++ {
		r1, r2 := gbam.NewPair("sequin"+string(rune('a'+i)), chrQ, 100+i, 150, 50)
		recs = append(recs, r1)
		mates = append(mates, r2)
	}
	recs = append(recs, mates...)
	path := filepath.Join(dir, "in.bam")
	gbam.WriteTestBAM(t, path, header, recs, true)
	return path
}

func TestCalibrateBAM(t *testing.T) {
	dir, cleanup := testutil.TempDir(t, "", "")
	defer cleanup()
	bamPath := writeCalibrateBAM(t, dir)
	bedPath := filepath.Join(dir, "sequins.bed")
	writeFile(t, bedPath, "chrQ\t100\t200\tgeneA\n")

	opts := defaultCalibrateOpts()
	opts.bed = bedPath
	opts.Flank = 0
	opts.FoldCoverage = 1000
	opts.Output = filepath.Join(dir, "out.bam")
	opts.WriteIndex = true
	require.NoError(t, calibrateBAM(context.Background(), opts, bamPath))
	_, recs := gbam.ReadRecords(t, opts.Output)
	expect.EQ(t, len(recs), 12)
	_, err := os.Stat(opts.Output + ".bai")
	expect.NoError(t, err)

	opts.ExcludeUncalibrated = true
	opts.Output = filepath.Join(dir, "out-x.bam")
	opts.WriteIndex = false
	require.NoError(t, calibrateBAM(context.Background(), opts, bamPath))
	_, recs = gbam.ReadRecords(t, opts.Output)
	expect.EQ(t, len(recs), 10)
	for _, r := range recs {
		expect.EQ(t, r.Ref.Name(), "chrQ")
	}
}

func TestCalibrateBAMErrors(t *testing.T) {
	opts := defaultCalibrateOpts()
	err := calibrateBAM(context.Background(), opts, "in.bam")
	expect.True(t, errors.Is(errors.Invalid, err), "%v", err)

	opts.bed = "sequins.bed"
	opts.minMapQ = 256
	err = calibrateBAM(context.Background(), opts, "in.bam")
	expect.True(t, errors.Is(errors.Invalid, err), "%v", err)
}

func TestDefaultCalibrateOpts(t *testing.T) {
	opts := defaultCalibrateOpts()
	expect.EQ(t, opts.minMapQ, uint(10))
	expect.EQ(t, opts.FoldCoverage, 40.0)
	expect.EQ(t, opts.Seed, uint64(5678))
}
