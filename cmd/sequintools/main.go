// sequintools computes coverage statistics over BED regions and
// calibrates the coverage of sequin control regions.
//
//   sequintools bedcov regions.bed sample.bam
//   sequintools calibrate -bed sequins.bed -sample-bed samples.bed -output out.bam sample.bam
package main

import (
	"github.com/grailbio/base/grail"
	"github.com/grailbio/sequintools/cmd/sequintools/cmd"
)

func main() {
	shutdown := grail.Init()
	defer shutdown()
	cmd.Run()
}
