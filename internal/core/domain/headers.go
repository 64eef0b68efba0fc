package domain

import "strings"

// Common header names.
const (
	HeaderConnection       = "Connection"
	HeaderContentLength    = "Content-Length"
	HeaderTransferEncoding = "Transfer-Encoding"
	HeaderExpect           = "Expect"
	HeaderHost             = "Host"
	HeaderContentType      = "Content-Type"
)

// Common header values.
const (
	ValueClose     = "close"
	ValueKeepAlive = "keep-alive"
	ValueChunked   = "chunked"
	ValueContinue  = "100-continue"
)

type headerField struct {
	name  string
	value string
}

// Headers is an ordered multi-map of header fields. Names compare
// case-insensitively and keep the spelling they were added with. The zero
// value is empty and ready to use; reads on a nil *Headers see no fields.
type Headers struct {
	fields []headerField
}

// NewHeaders returns Headers holding the given name/value pairs in order.
func NewHeaders(pairs ...string) *Headers {
	h := &Headers{}
	for i := 0; i+1 < len(pairs); i += 2 {
		h.Add(pairs[i], pairs[i+1])
	}
	return h
}

// Add appends a field.
func (h *Headers) Add(name, value string) *Headers {
	h.fields = append(h.fields, headerField{name: name, value: value})
	return h
}

// Set replaces every field called name with one field.
func (h *Headers) Set(name, value string) *Headers {
	for i := range h.fields {
		if strings.EqualFold(h.fields[i].name, name) {
			h.fields[i].value = value
			h.deleteFrom(name, i+1)
			return h
		}
	}
	return h.Add(name, value)
}

// Del removes every field called name.
func (h *Headers) Del(name string) *Headers {
	h.deleteFrom(name, 0)
	return h
}

func (h *Headers) deleteFrom(name string, start int) {
	kept := h.fields[:start]
	for _, f := range h.fields[start:] {
		if !strings.EqualFold(f.name, name) {
			kept = append(kept, f)
		}
	}
	h.fields = kept
}

// Get returns the first value of name.
func (h *Headers) Get(name string) (string, bool) {
	if h == nil {
		return "", false
	}
	for _, f := range h.fields {
		if strings.EqualFold(f.name, name) {
			return f.value, true
		}
	}
	return "", false
}

// Values returns every value of name in order.
func (h *Headers) Values(name string) []string {
	if h == nil {
		return nil
	}
	var out []string
	for _, f := range h.fields {
		if strings.EqualFold(f.name, name) {
			out = append(out, f.value)
		}
	}
	return out
}

// Has reports whether a field called name exists.
func (h *Headers) Has(name string) bool {
	_, ok := h.Get(name)
	return ok
}

// ContainsToken reports whether any value of name carries token in its
// comma-separated list, compared case-insensitively.
func (h *Headers) ContainsToken(name, token string) bool {
	for _, v := range h.Values(name) {
		for _, part := range strings.Split(v, ",") {
			if strings.EqualFold(strings.TrimSpace(part), token) {
				return true
			}
		}
	}
	return false
}

// Len returns the number of fields.
func (h *Headers) Len() int {
	if h == nil {
		return 0
	}
	return len(h.fields)
}

// Range calls fn for every field in order until fn returns false.
func (h *Headers) Range(fn func(name, value string) bool) {
	if h == nil {
		return
	}
	for _, f := range h.fields {
		if !fn(f.name, f.value) {
			return
		}
	}
}

// Clone returns an independent copy.
func (h *Headers) Clone() *Headers {
	if h == nil {
		return &Headers{}
	}
	return &Headers{fields: append([]headerField(nil), h.fields...)}
}
