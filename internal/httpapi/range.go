package httpapi

import (
	"fmt"
	"io"
	"strconv"
	"strings"
)

// parseRange parses a "bytes=start-end" header against a known total
// size, returning the inclusive byte bounds. Only a single range is
// supported, matching the spec's contract.
func parseRange(header string, size int64) (start, end int64, err error) {
	const prefix = "bytes="
	if !strings.HasPrefix(header, prefix) {
		return 0, 0, fmt.Errorf("unsupported range unit")
	}
	spec := strings.TrimPrefix(header, prefix)
	parts := strings.SplitN(spec, "-", 2)
	if len(parts) != 2 {
		return 0, 0, fmt.Errorf("malformed range")
	}

	start, err = strconv.ParseInt(parts[0], 10, 64)
	if err != nil {
		return 0, 0, fmt.Errorf("malformed range start: %w", err)
	}

	if parts[1] == "" {
		end = size - 1
	} else {
		end, err = strconv.ParseInt(parts[1], 10, 64)
		if err != nil {
			return 0, 0, fmt.Errorf("malformed range end: %w", err)
		}
	}

	if start < 0 || start >= size || end >= size || start > end {
		return 0, 0, fmt.Errorf("range out of bounds")
	}

	return start, end, nil
}

// sliceRange wraps r, discarding the first `start` bytes and emitting up
// to end-start+1 bytes before returning io.EOF. The caller remains
// responsible for fully draining or closing the underlying reader if it
// needs the pipeline to finish.
func sliceRange(r io.Reader, start, end int64) io.Reader {
	return &rangeReader{r: r, toSkip: start, remaining: end - start + 1}
}

type rangeReader struct {
	r         io.Reader
	toSkip    int64
	remaining int64
}

func (rr *rangeReader) Read(p []byte) (int, error) {
	for rr.toSkip > 0 {
		skipBuf := p
		if int64(len(skipBuf)) > rr.toSkip {
			skipBuf = skipBuf[:rr.toSkip]
		}
		n, err := rr.r.Read(skipBuf)
		rr.toSkip -= int64(n)
		if err != nil {
			return 0, err
		}
	}

	if rr.remaining <= 0 {
		return 0, io.EOF
	}

	if int64(len(p)) > rr.remaining {
		p = p[:rr.remaining]
	}
	n, err := rr.r.Read(p)
	rr.remaining -= int64(n)
	if rr.remaining <= 0 && err == nil {
		err = io.EOF
	}
	return n, err
}
