package cmd

import (
	"context"
	"fmt"

	"github.com/grailbio/base/errors"
	"github.com/grailbio/base/log"
	"github.com/grailbio/sequintools/calibrate"
)

type calibrateOpts struct {
	calibrate.Opts
	bed       string
	sampleBed string
	minMapQ   uint
}

func defaultCalibrateOpts() calibrateOpts {
	opts := calibrateOpts{Opts: calibrate.DefaultOpts}
	opts.minMapQ = uint(opts.MinMapQ)
	return opts
}

func calibrateBAM(ctx context.Context, opts calibrateOpts, bamPath string) error {
	if opts.bed == "" {
		return errors.E(errors.Invalid, "-bed is required")
	}
	if opts.minMapQ > 255 {
		return errors.E(errors.Invalid, fmt.Sprintf("-min-mq must be at most 255, got %d", opts.minMapQ))
	}
	opts.MinMapQ = byte(opts.minMapQ)
	result, err := calibrate.RunFiles(ctx, bamPath, opts.bed, opts.sampleBed, opts.Opts)
	if err != nil {
		return err
	}
	log.Printf("calibrated %d regions: kept %d of %d sequin read pairs", len(result.Plans), result.Kept, result.Decided)
	return nil
}
