package deeplink

import (
	"net/url"
	"strconv"
	"strings"
)

// Param is one key/value pair of a pairing URI query.
type Param struct {
	Key   string
	Value string
}

// Params is an insertion-ordered query parameter list.
type Params struct {
	items []Param
}

func NewParams() *Params {
	return &Params{items: make([]Param, 0)}
}

// ParseParams decodes a form-urlencoded query string. A leading '?' is
// ignored, empty segments are skipped and malformed escapes are kept as-is.
func ParseParams(raw string) *Params {
	p := NewParams()
	raw = strings.TrimPrefix(raw, "?")
	for _, segment := range strings.Split(raw, "&") {
		if segment == "" {
			continue
		}
		key, value, _ := strings.Cut(segment, "=")
		p.items = append(p.items, Param{
			Key:   decodeFormComponent(key),
			Value: decodeFormComponent(value),
		})
	}
	return p
}

func (p *Params) Len() int {
	if p == nil {
		return 0
	}
	return len(p.items)
}

// Get returns the first value stored under key.
func (p *Params) Get(key string) (string, bool) {
	if p == nil {
		return "", false
	}
	for _, item := range p.items {
		if item.Key == key {
			return item.Value, true
		}
	}
	return "", false
}

func (p *Params) Has(key string) bool {
	_, ok := p.Get(key)
	return ok
}

// Set replaces the first value under key and drops any later duplicates.
// Unknown keys are appended.
func (p *Params) Set(key, value string) {
	out := p.items[:0]
	found := false
	for _, item := range p.items {
		if item.Key != key {
			out = append(out, item)
			continue
		}
		if found {
			continue
		}
		found = true
		out = append(out, Param{Key: key, Value: value})
	}
	if !found {
		out = append(out, Param{Key: key, Value: value})
	}
	p.items = out
}

// All returns a copy of the pairs in insertion order.
func (p *Params) All() []Param {
	if p == nil {
		return nil
	}
	out := make([]Param, len(p.items))
	copy(out, p.items)
	return out
}

// Encode serializes the pairs in insertion order as a query string.
func (p *Params) Encode() string {
	if p.Len() == 0 {
		return ""
	}
	var b strings.Builder
	for i, item := range p.items {
		if i > 0 {
			b.WriteByte('&')
		}
		b.WriteString(url.QueryEscape(item.Key))
		b.WriteByte('=')
		b.WriteString(url.QueryEscape(item.Value))
	}
	return b.String()
}

func (p *Params) Clone() *Params {
	out := NewParams()
	out.items = p.All()
	return out
}

// decodeFormComponent decodes one form-urlencoded key or value. Invalid
// percent sequences are kept literally and invalid UTF-8 becomes U+FFFD.
func decodeFormComponent(s string) string {
	s = strings.ReplaceAll(s, "+", " ")
	if !strings.Contains(s, "%") {
		return s
	}
	var b strings.Builder
	b.Grow(len(s))
	for i := 0; i < len(s); i++ {
		if s[i] == '%' && i+2 < len(s) {
			if v, err := strconv.ParseUint(s[i+1:i+3], 16, 8); err == nil {
				b.WriteByte(byte(v))
				i += 2
				continue
			}
		}
		b.WriteByte(s[i])
	}
	return strings.ToValidUTF8(b.String(), "\uFFFD")
}
