package hidrive

import (
	"net/url"
	"strconv"
	"strings"
)

// NoParams is the explicit "no optional parameters" value. Every method that
// accepts optional *Params also accepts nil.
var NoParams *Params

// Params is an ordered multimap of query parameters. Keys may repeat and
// insertion order is kept on the wire.
type Params struct {
	entries []param
}

type param struct {
	key   string
	value string
}

// NewParams returns an empty parameter list.
func NewParams() *Params {
	return &Params{}
}

// AddString appends key=value. On a nil receiver it allocates a new list, so
// chains may start from NoParams; use the returned value.
func (p *Params) AddString(key, value string) *Params {
	if p == nil {
		p = &Params{}
	}

	p.entries = append(p.entries, param{key: key, value: value})

	return p
}

// AddInt appends key with a base-10 signed value.
func (p *Params) AddInt(key string, value int64) *Params {
	return p.AddString(key, strconv.FormatInt(value, 10))
}

// AddUint appends key with a base-10 unsigned value.
func (p *Params) AddUint(key string, value uint64) *Params {
	return p.AddString(key, strconv.FormatUint(value, 10))
}

// AddBool appends key as "true" or "false".
func (p *Params) AddBool(key string, value bool) *Params {
	return p.AddString(key, strconv.FormatBool(value))
}

// Len returns the number of entries. A nil *Params has none.
func (p *Params) Len() int {
	if p == nil {
		return 0
	}

	return len(p.entries)
}

// Values returns every value recorded for key, in insertion order.
func (p *Params) Values(key string) []string {
	if p == nil {
		return nil
	}

	var out []string

	for _, e := range p.entries {
		if e.key == key {
			out = append(out, e.value)
		}
	}

	return out
}

// Encode serializes the entries as a URL query string without a leading "?".
func (p *Params) Encode() string {
	var sb strings.Builder
	p.encodeTo(&sb)

	return sb.String()
}

func (p *Params) encodeTo(sb *strings.Builder) {
	if p == nil {
		return
	}

	for _, e := range p.entries {
		if sb.Len() > 0 {
			sb.WriteByte('&')
		}

		sb.WriteString(url.QueryEscape(e.key))
		sb.WriteByte('=')
		sb.WriteString(url.QueryEscape(e.value))
	}
}

// Merge serializes mandatory followed by optional. Nothing is overridden:
// a key present in both is sent twice.
func Merge(mandatory, optional *Params) string {
	var sb strings.Builder

	mandatory.encodeTo(&sb)
	optional.encodeTo(&sb)

	return sb.String()
}
