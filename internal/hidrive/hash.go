package hidrive

import (
	"context"
	"net/http"
	"strconv"
	"strings"
)

// ByteRange is an inclusive [Start, End] range of hash blocks.
type ByteRange struct {
	Start uint64
	End   uint64
}

// formatRanges renders ranges as "a-b,c-d". No ranges renders as "-", which
// the server reads as "the whole object, first 256 segments".
func formatRanges(ranges []ByteRange) string {
	if len(ranges) == 0 {
		return "-"
	}

	parts := make([]string, len(ranges))
	for i, r := range ranges {
		parts[i] = strconv.FormatUint(r.Start, 10) + "-" + strconv.FormatUint(r.End, 10)
	}

	return strings.Join(parts, ",")
}

// hashParams builds the mandatory parameters of a /file/hash call.
func hashParams(id Identifier, level uint, ranges []ByteRange) *Params {
	p := NewParams().AddUint("level", uint64(level))
	id.AddTo(p, "pid", "path")

	return p.AddString("ranges", formatRanges(ranges))
}

// FileHash returns the hash of id at level for the given ranges.
// Empty ranges hash the entire object (at most 256 segments).
func (c *Client) FileHash(ctx context.Context, id Identifier, level uint, ranges []ByteRange, opts *Params) (*FileHash, error) {
	var h FileHash
	if err := c.itemCall(ctx, http.MethodGet, "/file/hash", hashParams(id, level, ranges), id, opts, &h); err != nil {
		return nil, err
	}

	return &h, nil
}
