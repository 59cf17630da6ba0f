package coverage

import (
	"encoding/csv"
	"fmt"
	"io"
	"strconv"

	"github.com/grailbio/base/errors"
	"github.com/grailbio/base/tsv"
	"github.com/grailbio/sequintools/interval"
)

// Report formats.
const (
	FormatCSV = "csv"
	FormatTSV = "tsv"
)

// ReportColumns are the leading columns of a coverage report.  One
// pct_ge_<t> column follows per threshold, holding the fraction (0 to 1)
// of bases with depth at least t.
var ReportColumns = []string{"chrom", "beg", "end", "name", "len", "min", "max", "mean", "std", "cv"}

// ReportWriter writes one delimited row per region.
type ReportWriter struct {
	thresholds []uint32
	csv        *csv.Writer
	tsv        *tsv.Writer
	row        []string
}

// NewReportWriter creates a writer in the given format and writes the
// header line.  An unknown format is an errors.Invalid error.
func NewReportWriter(w io.Writer, format string, thresholds []uint32) (*ReportWriter, error) {
	rw := &ReportWriter{thresholds: thresholds}
	switch format {
	case FormatCSV, "":
		rw.csv = csv.NewWriter(w)
	case FormatTSV:
		rw.tsv = tsv.NewWriter(w)
	default:
		return nil, errors.E(errors.Invalid, fmt.Sprintf("unknown report format %q, want csv or tsv", format))
	}
	header := append([]string{}, ReportColumns...)
	for _, t := range thresholds {
		header = append(header, fmt.Sprintf("pct_ge_%d", t))
	}
	if err := rw.writeRow(header); err != nil {
		return nil, err
	}
	return rw, nil
}

func formatFloat(f float64) string {
	return strconv.FormatFloat(f, 'f', 2, 64)
}

// Write appends the row for region, whose profile (possibly computed
// over a flank-trimmed copy of region) is p.
func (rw *ReportWriter) Write(region interval.Interval, p *Profile) error {
	s := p.Stats
	rw.row = append(rw.row[:0],
		region.Chrom,
		strconv.FormatUint(region.Start, 10),
		strconv.FormatUint(region.End, 10),
		region.Name,
		strconv.Itoa(len(p.Depth)),
		strconv.FormatUint(uint64(s.Min), 10),
		strconv.FormatUint(uint64(s.Max), 10),
		formatFloat(s.Mean),
		formatFloat(s.Std),
		formatFloat(s.CV))
	for _, t := range rw.thresholds {
		rw.row = append(rw.row, formatFloat(p.FractionAtLeast(t)))
	}
	return rw.writeRow(rw.row)
}

func (rw *ReportWriter) writeRow(row []string) error {
	if rw.csv != nil {
		return rw.csv.Write(row)
	}
	for _, col := range row {
		rw.tsv.WriteString(col)
	}
	return rw.tsv.EndLine()
}

// Flush writes any buffered data to the underlying writer.
func (rw *ReportWriter) Flush() error {
	if rw.csv != nil {
		rw.csv.Flush()
		return rw.csv.Error()
	}
	return rw.tsv.Flush()
}
