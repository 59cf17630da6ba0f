package cmd

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/grailbio/base/cmdutil"
	"github.com/grailbio/base/errors"
	"github.com/grailbio/base/vcontext"
	"v.io/x/lib/cmdline"
)

func newCmdBedcov() *cmdline.Command {
	cmd := &cmdline.Command{
		Name:     "bedcov",
		Short:    "Report per-region coverage statistics",
		ArgsName: "bedpath bampath",
		Long: `
Bedcov writes one row per BED region to standard output with the region's
length and the min, max, mean, standard deviation and coefficient of variation
of its per-base depth.  Unmapped, secondary, QC-failed, duplicate and
supplementary reads are not counted.  The BAM file must be indexed.`,
	}
	opts := defaultBedcovOpts
	cmd.Flags.UintVar(&opts.minMapQ, "min-mq", opts.minMapQ, "Minimum mapping quality of counted reads")
	cmd.Flags.Uint64Var(&opts.flank, "flank", opts.flank, "Bases excluded from both ends of every region")
	cmd.Flags.UintVar(&opts.maxDepth, "max-depth", opts.maxDepth, "Per-base depth cap. 0 means no cap")
	cmd.Flags.StringVar(&opts.thresholds, "thresholds", "", "Comma-separated depths; adds a pct_ge_<depth> column, the fraction of bases with at least that depth, for each")
	cmd.Flags.StringVar(&opts.format, "format", opts.format, "Report format, csv or tsv")
	cmd.Flags.IntVar(&opts.parallelism, "parallelism", opts.parallelism, "Number of regions processed concurrently")
	cmd.Flags.StringVar(&opts.index, "index", "", "Input BAM index path. By default, bampath + .bai")
	cmd.Runner = cmdutil.RunnerFunc(func(env *cmdline.Env, argv []string) error {
		if len(argv) != 2 {
			return fmt.Errorf("bedcov takes bedpath bampath, but got %v", argv)
		}
		return bedcov(vcontext.Background(), opts, argv[0], argv[1], env.Stdout)
	})
	return cmd
}

func newCmdCalibrate() *cmdline.Command {
	cmd := &cmdline.Command{
		Name:     "calibrate",
		Short:    "Downsample sequin reads to a target coverage",
		ArgsName: "bampath",
		Long: `
Calibrate downsamples the reads of every sequin region in -bed to a target
mean coverage.  The target is -fold-coverage, or, if -sample-bed is given, the
mean coverage of the sample region with the same name.  Both reads of a pair
are kept or dropped together, and runs with the same -seed produce identical
output.  Reads on other chromosomes are copied unless -x is set.`,
	}
	opts := defaultCalibrateOpts()
	cmd.Flags.StringVar(&opts.bed, "bed", "", "BED file of sequin regions (required)")
	cmd.Flags.StringVar(&opts.sampleBed, "sample-bed", "", "BED file of sample regions matched to sequin regions by name")
	cmd.Flags.Float64Var(&opts.FoldCoverage, "fold-coverage", opts.FoldCoverage, "Target coverage without -sample-bed")
	cmd.Flags.Uint64Var(&opts.Seed, "seed", opts.Seed, "Random seed")
	cmd.Flags.Uint64Var(&opts.Flank, "flank", opts.Flank, "Bases excluded from both ends of sequin regions when measuring depth")
	cmd.Flags.Uint64Var(&opts.WindowSize, "window-size", opts.WindowSize, "Window size of -experimental")
	cmd.Flags.UintVar(&opts.minMapQ, "min-mq", uint(opts.MinMapQ), "Minimum mapping quality of reads counted toward depth")
	cmd.Flags.BoolVar(&opts.WriteIndex, "write-index", false, "Write an index for -output")
	cmd.Flags.BoolVar(&opts.ExcludeUncalibrated, "x", false, "Exclude reads outside the sequin chromosomes")
	cmd.Flags.StringVar(&opts.SummaryPath, "summary-report", "", `CSV report of uncalibrated, target and calibrated coverage
per region.  Requires -output and -write-index`)
	cmd.Flags.BoolVar(&opts.WindowProfile, "experimental", false, `Mirror the read-start profile of each sample region,
window by window, onto its sequin region.  Requires -sample-bed`)
	cmd.Flags.StringVar(&opts.Output, "output", "", "Output BAM path. By default the BAM is written to standard output")
	cmd.Flags.IntVar(&opts.Parallelism, "parallelism", opts.Parallelism, "Number of regions and shards processed concurrently")
	cmd.Runner = cmdutil.RunnerFunc(func(env *cmdline.Env, argv []string) error {
		if len(argv) != 1 {
			return fmt.Errorf("calibrate takes one bampath, but got %v", argv)
		}
		opts.Stdout = env.Stdout
		return calibrateBAM(vcontext.Background(), opts, argv[0])
	})
	return cmd
}

// parseThresholds parses a comma-separated list of depths.
func parseThresholds(s string) ([]uint32, error) {
	if s == "" {
		return nil, nil
	}
	var thresholds []uint32
	for _, f := range strings.Split(s, ",") {
		v, err := strconv.ParseUint(strings.TrimSpace(f), 10, 32)
		if err != nil {
			return nil, errors.E(errors.Invalid, fmt.Sprintf("bad threshold %q in %q", f, s))
		}
		thresholds = append(thresholds, uint32(v))
	}
	return thresholds, nil
}

// Run parses the command line and runs the selected subcommand.
func Run() {
	cmdline.HideGlobalFlagsExcept()
	cmdline.Main(
		&cmdline.Command{
			Name:     "sequintools",
			Short:    "Coverage statistics and calibration of sequin controls",
			LookPath: false,
			Children: []*cmdline.Command{
				newCmdBedcov(),
				newCmdCalibrate(),
			},
		})
}
