package playback

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
)

var (
	ErrInvalidRange  = errors.New("invalid range format")
	ErrUnsatisfiable = errors.New("range not satisfiable")
)

// Range is an inclusive byte range.
type Range struct {
	Start int64
	End   int64
}

func (r Range) ContentLength() int64 {
	return r.End - r.Start + 1
}

func (r Range) ContentRange(total int64) string {
	return fmt.Sprintf("bytes %d-%d/%d", r.Start, r.End, total)
}

// ParseRange parses a single-range Range header against a resource of size
// bytes. Only the first range of a multi-range request is honored. An empty
// header returns (nil, nil).
func ParseRange(header string, size int64) (*Range, error) {
	header = strings.TrimSpace(header)
	if header == "" {
		return nil, nil
	}
	ranges, ok := strings.CutPrefix(header, "bytes=")
	if !ok {
		return nil, ErrInvalidRange
	}
	if first, _, multi := strings.Cut(ranges, ","); multi {
		ranges = first
	}

	startStr, endStr, ok := strings.Cut(strings.TrimSpace(ranges), "-")
	if !ok || strings.Contains(endStr, "-") {
		return nil, ErrInvalidRange
	}

	var start, end int64
	if startStr == "" {
		suffix, err := parseOffset(endStr)
		if err != nil || suffix == 0 {
			return nil, ErrInvalidRange
		}
		start = max(size-suffix, 0)
		end = size - 1
	} else {
		var err error
		if start, err = parseOffset(startStr); err != nil {
			return nil, ErrInvalidRange
		}
		end = size - 1
		if endStr != "" {
			if end, err = parseOffset(endStr); err != nil {
				return nil, ErrInvalidRange
			}
		}
	}

	if size <= 0 || start > end || start >= size {
		return nil, ErrUnsatisfiable
	}
	return &Range{Start: start, End: min(end, size-1)}, nil
}

func parseOffset(s string) (int64, error) {
	if s == "" || strings.Trim(s, "0123456789") != "" {
		return 0, ErrInvalidRange
	}
	return strconv.ParseInt(s, 10, 64)
}
