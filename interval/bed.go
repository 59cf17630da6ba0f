package interval

import (
	"bufio"
	"bytes"
	"context"
	"fmt"
	"io"
	"strconv"

	"github.com/grailbio/base/errors"
	"github.com/grailbio/base/file"
	"github.com/grailbio/base/fileio"
	gunsafe "github.com/grailbio/base/unsafe"
	"github.com/klauspost/compress/gzip"
)

// bedColumns is the number of leading BED columns that are read.  Any
// further columns are ignored.
const bedColumns = 4

// getTokens stores up to len(tokens) whitespace-delimited tokens of line
// and returns the number stored.
func getTokens(tokens [][]byte, line []byte) int {
	posEnd := 0
	lineLen := len(line)
	for tokenIdx := range tokens {
		pos := posEnd
		for ; pos != lineLen; pos++ {
			if line[pos] > ' ' {
				break
			}
		}
		if pos == lineLen {
			return tokenIdx
		}
		posEnd = pos
		for ; posEnd != lineLen; posEnd++ {
			if line[posEnd] <= ' ' {
				break
			}
		}
		tokens[tokenIdx] = line[pos:posEnd]
	}
	return len(tokens)
}

func skipLine(line []byte) bool {
	return len(bytes.TrimSpace(line)) == 0 ||
		line[0] == '#' ||
		bytes.HasPrefix(line, []byte("track")) ||
		bytes.HasPrefix(line, []byte("browser"))
}

// ReadBED parses named intervals (chrom, start, end, name) from r in file
// order.  source names the input in error messages.  Malformed lines
// yield errors.Invalid.
func ReadBED(r io.Reader, source string) ([]Interval, error) {
	var (
		intervals []Interval
		tokens    [bedColumns][]byte
		lineIdx   int
	)
	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		lineIdx++
		line := scanner.Bytes()
		if skipLine(line) {
			continue
		}
		if n := getTokens(tokens[:], line); n != bedColumns {
			return nil, errors.E(errors.Invalid, fmt.Sprintf(
				"%s:%d: expected at least %d columns, found %d", source, lineIdx, bedColumns, n))
		}
		start, err := strconv.ParseUint(gunsafe.BytesToString(tokens[1]), 10, 64)
		if err != nil {
			return nil, errors.E(errors.Invalid, fmt.Sprintf("%s:%d: start is not an integer: %q", source, lineIdx, tokens[1]))
		}
		end, err := strconv.ParseUint(gunsafe.BytesToString(tokens[2]), 10, 64)
		if err != nil {
			return nil, errors.E(errors.Invalid, fmt.Sprintf("%s:%d: end is not an integer: %q", source, lineIdx, tokens[2]))
		}
		iv := Interval{
			Chrom: string(tokens[0]),
			Start: start,
			End:   end,
			Name:  string(tokens[3]),
		}
		if err := iv.Validate(); err != nil {
			return nil, errors.E(err, fmt.Sprintf("%s:%d", source, lineIdx))
		}
		intervals = append(intervals, iv)
	}
	if err := scanner.Err(); err != nil {
		return nil, errors.E(err, "read", source)
	}
	return intervals, nil
}

// LoadBED reads the BED file at path, which may be gzip-compressed and
// may name any file scheme registered with grailbio/base/file.
func LoadBED(ctx context.Context, path string) (intervals []Interval, err error) {
	in, err := file.Open(ctx, path)
	if err != nil {
		return nil, errors.E(err, "open", path)
	}
	defer func() {
		if cerr := in.Close(ctx); cerr != nil && err == nil {
			err = errors.E(cerr, "close", path)
		}
	}()
	reader := io.Reader(in.Reader(ctx))
	if fileio.DetermineType(path) == fileio.Gzip {
		gz, err := gzip.NewReader(reader)
		if err != nil {
			return nil, errors.E(errors.Invalid, err, "gzip", path)
		}
		defer gz.Close() // nolint: errcheck
		reader = gz
	}
	return ReadBED(reader, path)
}
