package codec

import (
	"errors"
	"fmt"
	"net/url"
	"strings"
)

// ErrParse is matched by every *ParseError.
var ErrParse = errors.New("malformed gateway message")

// ParseError reports the segment of a key-value message that could not be split.
type ParseError struct {
	Segment string
	Index   int
	Err     error
}

func (e *ParseError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("segment %d %q: %v", e.Index, e.Segment, e.Err)
	}
	return fmt.Sprintf("segment %d %q: missing '='", e.Index, e.Segment)
}

func (e *ParseError) Unwrap() error { return ErrParse }

// Field is one key=value pair of a gateway message.
type Field struct {
	Key   string
	Value string
}

// Fields keeps message pairs in wire order. The gateway hashes values in the
// order they are sent, so the order must never be changed.
type Fields []Field

// Get returns the value of the first field named key.
func (f Fields) Get(key string) (string, bool) {
	for _, field := range f {
		if field.Key == key {
			return field.Value, true
		}
	}
	return "", false
}

// Add appends a pair and returns the extended list.
func (f Fields) Add(key, value string) Fields {
	return append(f, Field{Key: key, Value: value})
}

// Map flattens the pairs; a repeated key keeps its last value.
func (f Fields) Map() map[string]string {
	m := make(map[string]string, len(f))
	for _, field := range f {
		m[field.Key] = field.Value
	}
	return m
}

// Escaped returns a copy with every value query-escaped.
func (f Fields) Escaped() Fields {
	out := make(Fields, len(f))
	for i, field := range f {
		out[i] = Field{Key: field.Key, Value: url.QueryEscape(field.Value)}
	}
	return out
}

// Encode joins the pairs as key=value separated by '&', in the given order.
// Values are written as-is; callers escape them beforehand when needed.
func Encode(fields Fields) string {
	var b strings.Builder
	for i, field := range fields {
		if i > 0 {
			b.WriteByte('&')
		}
		b.WriteString(field.Key)
		b.WriteByte('=')
		b.WriteString(field.Value)
	}
	return b.String()
}

// DecodeFields splits a key-value message keeping wire order. Each value is
// query-unescaped.
func DecodeFields(msg string) (Fields, error) {
	if msg == "" {
		return Fields{}, nil
	}

	parts := strings.Split(msg, "&")
	fields := make(Fields, 0, len(parts))
	for i, part := range parts {
		key, raw, ok := strings.Cut(part, "=")
		if !ok {
			return nil, &ParseError{Segment: part, Index: i}
		}
		value, err := url.QueryUnescape(raw)
		if err != nil {
			return nil, &ParseError{Segment: part, Index: i, Err: err}
		}
		fields = append(fields, Field{Key: key, Value: value})
	}
	return fields, nil
}

// Decode splits a key-value message into a map.
func Decode(msg string) (map[string]string, error) {
	fields, err := DecodeFields(msg)
	if err != nil {
		return nil, err
	}
	return fields.Map(), nil
}
