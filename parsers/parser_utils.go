package parsers

import (
	"bufio"
	"bytes"
	"encoding/xml"
	"errors"
	"fmt"
	"io"
	"math"
	"strconv"
	"strings"

	"github.com/shopspring/decimal"
)

// ErrMalformedFeed is returned when a document is not well-formed XML.
var ErrMalformedFeed = errors.New("malformed feed")

var utf8BOM = []byte{0xEF, 0xBB, 0xBF}

// SkipBOM skips a leading UTF-8 byte order mark.
func SkipBOM(r io.Reader) io.Reader {
	br := bufio.NewReader(r)
	peeked, err := br.Peek(len(utf8BOM))
	if err == nil && bytes.Equal(peeked, utf8BOM) {
		br.Discard(len(utf8BOM))
	}
	return br
}

// newDecoder builds a decoder over text that is already UTF-8. Whatever the
// XML declaration says, the bytes are passed through unchanged.
func newDecoder(text string) *xml.Decoder {
	dec := xml.NewDecoder(SkipBOM(strings.NewReader(text)))
	dec.CharsetReader = func(_ string, input io.Reader) (io.Reader, error) {
		return input, nil
	}
	return dec
}

// node is a generic element tree used to read schema variants.
type node struct {
	XMLName xml.Name
	Text    string `xml:",chardata"`
	Nodes   []node `xml:",any"`
}

func (n node) name() string {
	return strings.ToLower(n.XMLName.Local)
}

// fields maps lower-cased child element names to their trimmed text. The
// first occurrence of a name wins.
func (n node) fields() map[string]string {
	f := make(map[string]string, len(n.Nodes))
	for _, c := range n.Nodes {
		key := c.name()
		if _, ok := f[key]; !ok {
			f[key] = strings.TrimSpace(c.Text)
		}
	}
	return f
}

// child returns the first direct child whose name is one of names.
func (n node) child(names ...string) (node, bool) {
	for _, c := range n.Nodes {
		for _, name := range names {
			if c.name() == name {
				return c, true
			}
		}
	}
	return node{}, false
}

// header carries the feed-level identifiers.
type header struct {
	ChainID    string
	SubChainID string
	StoreID    string
}

func (h *header) set(name, value string) {
	switch name {
	case "chainid":
		if h.ChainID == "" {
			h.ChainID = value
		}
	case "subchainid":
		if h.SubChainID == "" {
			h.SubChainID = value
		}
	case "storeid":
		if h.StoreID == "" {
			h.StoreID = value
		}
	}
}

var headerFields = map[string]bool{"chainid": true, "subchainid": true, "storeid": true}

func nameSet(names ...string) map[string]bool {
	m := make(map[string]bool, len(names))
	for _, n := range names {
		m[n] = true
	}
	return m
}

// scan walks the document and calls fn for every record element found directly
// under one of the container elements. Header identifiers seen before a record
// are passed along with it.
func scan(text string, containers, records map[string]bool, fn func(header, node)) error {
	dec := newDecoder(text)
	var (
		h     header
		stack []string
		root  bool
	)
	for {
		tok, err := dec.Token()
		if err == io.EOF {
			break
		}
		if err != nil {
			return fmt.Errorf("%w: %v", ErrMalformedFeed, err)
		}

		switch t := tok.(type) {
		case xml.StartElement:
			root = true
			name := strings.ToLower(t.Name.Local)
			parent := ""
			if len(stack) > 0 {
				parent = stack[len(stack)-1]
			}

			if records[name] && containers[parent] {
				var n node
				if err := dec.DecodeElement(&n, &t); err != nil {
					return fmt.Errorf("%w: %v", ErrMalformedFeed, err)
				}
				fn(h, n)
				continue
			}
			if headerFields[name] {
				var n node
				if err := dec.DecodeElement(&n, &t); err != nil {
					return fmt.Errorf("%w: %v", ErrMalformedFeed, err)
				}
				h.set(name, strings.TrimSpace(n.Text))
				continue
			}
			stack = append(stack, name)
		case xml.EndElement:
			if len(stack) > 0 {
				stack = stack[:len(stack)-1]
			}
		}
	}
	if !root {
		return fmt.Errorf("%w: no root element", ErrMalformedFeed)
	}
	return nil
}

// value returns the first non-empty field among the aliases.
func value(f map[string]string, aliases ...string) string {
	for _, a := range aliases {
		if v := f[a]; v != "" {
			return v
		}
	}
	return ""
}

func textOr(s, def string) string {
	if s == "" {
		return def
	}
	return s
}

// parseDecimal returns def for blank or non-numeric input.
func parseDecimal(s string, def decimal.Decimal) decimal.Decimal {
	s = strings.TrimSpace(s)
	if s == "" {
		return def
	}
	d, err := decimal.NewFromString(s)
	if err != nil {
		return def
	}
	return d
}

var (
	minFieldInt = decimal.NewFromInt(math.MinInt32)
	maxFieldInt = decimal.NewFromInt(math.MaxInt32)
)

// parseInt accepts integral and decimal spellings ("1", "1.0", "1.9" -> 1).
// Values outside the int32 range fall back to def.
func parseInt(s string, def int) int {
	s = strings.TrimSpace(s)
	if s == "" {
		return def
	}
	if i, err := strconv.ParseInt(s, 10, 32); err == nil {
		return int(i)
	}
	d, err := decimal.NewFromString(s)
	if err != nil {
		return def
	}
	d = d.Truncate(0)
	if d.LessThan(minFieldInt) || d.GreaterThan(maxFieldInt) {
		return def
	}
	return int(d.IntPart())
}

func parseBool(s string, def bool) bool {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "1", "true", "yes", "y":
		return true
	case "0", "false", "no", "n":
		return false
	}
	if i := parseInt(s, -1); i >= 0 {
		return i != 0
	}
	return def
}
