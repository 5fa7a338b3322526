package render

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math"
	"strconv"
	"strings"
)

// Kind identifies the JSON type held by a Value
type Kind int

const (
	Null Kind = iota
	Bool
	Number
	String
	Array
	Object
)

func (k Kind) String() string {
	switch k {
	case Null:
		return "null"
	case Bool:
		return "bool"
	case Number:
		return "number"
	case String:
		return "string"
	case Array:
		return "array"
	case Object:
		return "object"
	default:
		return "unknown"
	}
}

// Member is a single key/value pair of an object
type Member struct {
	Key   string
	Value Value
}

// Value is a parsed JSON value. Objects keep their members in document
// order. The zero Value is JSON null.
type Value struct {
	kind    Kind
	boolean bool
	number  json.Number
	str     string
	items   []Value
	members []Member
}

// BoolValue wraps a boolean
func BoolValue(b bool) Value { return Value{kind: Bool, boolean: b} }

// StringValue wraps a string
func StringValue(s string) Value { return Value{kind: String, str: s} }

// ObjectValue builds an object from ordered members
func ObjectValue(members ...Member) Value {
	return Value{kind: Object, members: members}
}

// Kind returns the JSON type of v
func (v Value) Kind() Kind { return v.kind }

// Str returns the string content and whether v is a string
func (v Value) Str() (string, bool) {
	if v.kind != String {
		return "", false
	}
	return v.str, true
}

// Float returns the numeric content and whether v is a finite number
func (v Value) Float() (float64, bool) {
	if v.kind != Number {
		return 0, false
	}
	f, err := v.number.Float64()
	if err != nil || math.IsInf(f, 0) || math.IsNaN(f) {
		return 0, false
	}
	return f, true
}

// Items returns the elements of an array, or nil for any other kind
func (v Value) Items() []Value {
	if v.kind != Array {
		return nil
	}
	return v.items
}

// Len returns the number of items or members, 0 for scalars
func (v Value) Len() int {
	switch v.kind {
	case Array:
		return len(v.items)
	case Object:
		return len(v.members)
	}
	return 0
}

// Get looks up key in an object. The last duplicate wins, like JSON.parse.
func (v Value) Get(key string) (Value, bool) {
	if v.kind != Object {
		return Value{}, false
	}
	for i := len(v.members) - 1; i >= 0; i-- {
		if v.members[i].Key == key {
			return v.members[i].Value, true
		}
	}
	return Value{}, false
}

// Lookup returns the value of the first key present in an object
func (v Value) Lookup(keys ...string) (Value, bool) {
	for _, k := range keys {
		if val, ok := v.Get(k); ok {
			return val, true
		}
	}
	return Value{}, false
}

// Truthy follows JavaScript truthiness: null, false, 0, NaN and "" are
// falsy; arrays and objects are always truthy.
func (v Value) Truthy() bool {
	switch v.kind {
	case Null:
		return false
	case Bool:
		return v.boolean
	case Number:
		f, ok := v.Float()
		return ok && f != 0
	case String:
		return v.str != ""
	default:
		return true
	}
}

// Text renders v the way it should appear inside an HTML list item:
// strings verbatim, scalars in their JSON form, containers as compact JSON.
func (v Value) Text() string {
	switch v.kind {
	case String:
		return v.str
	case Null:
		return "null"
	case Bool:
		return strconv.FormatBool(v.boolean)
	case Number:
		return v.number.String()
	default:
		b, err := v.MarshalJSON()
		if err != nil {
			return ""
		}
		return string(b)
	}
}

// MarshalJSON implements json.Marshaler, preserving object member order
func (v Value) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	if err := v.encode(&buf); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func (v Value) encode(buf *bytes.Buffer) error {
	switch v.kind {
	case Null:
		buf.WriteString("null")
	case Bool:
		buf.WriteString(strconv.FormatBool(v.boolean))
	case Number:
		if !json.Valid([]byte(v.number)) {
			return fmt.Errorf("invalid JSON number %q", v.number.String())
		}
		buf.WriteString(v.number.String())
	case String:
		if err := writeString(buf, v.str); err != nil {
			return err
		}
	case Array:
		buf.WriteByte('[')
		for i, item := range v.items {
			if i > 0 {
				buf.WriteByte(',')
			}
			if err := item.encode(buf); err != nil {
				return err
			}
		}
		buf.WriteByte(']')
	case Object:
		buf.WriteByte('{')
		for i, m := range v.members {
			if i > 0 {
				buf.WriteByte(',')
			}
			if err := writeString(buf, m.Key); err != nil {
				return err
			}
			buf.WriteByte(':')
			if err := m.Value.encode(buf); err != nil {
				return err
			}
		}
		buf.WriteByte('}')
	default:
		return fmt.Errorf("unknown value kind %d", v.kind)
	}
	return nil
}

// writeString writes s as a JSON string literal without escaping HTML
// characters; the dump tier escapes the whole document afterwards.
func writeString(buf *bytes.Buffer, s string) error {
	var tmp bytes.Buffer
	enc := json.NewEncoder(&tmp)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(s); err != nil {
		return err
	}
	buf.Write(bytes.TrimRight(tmp.Bytes(), "\n"))
	return nil
}

// Pretty returns the two-space indented JSON form of v
func (v Value) Pretty() (string, error) {
	raw, err := v.MarshalJSON()
	if err != nil {
		return "", err
	}
	var out bytes.Buffer
	if err := json.Indent(&out, raw, "", "  "); err != nil {
		return "", err
	}
	return out.String(), nil
}

// UnmarshalJSON implements json.Unmarshaler
func (v *Value) UnmarshalJSON(data []byte) error {
	parsed, err := Parse(data)
	if err != nil {
		return err
	}
	*v = parsed
	return nil
}

// ErrTrailingData is returned by Parse when input continues after the
// first complete JSON value
var ErrTrailingData = errors.New("unexpected data after JSON value")

// Parse decodes exactly one JSON value from data
func Parse(data []byte) (Value, error) {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	v, err := decodeValue(dec)
	if err != nil {
		return Value{}, err
	}
	if _, err := dec.Token(); err != io.EOF {
		return Value{}, ErrTrailingData
	}
	return v, nil
}

func decodeValue(dec *json.Decoder) (Value, error) {
	tok, err := dec.Token()
	if err != nil {
		return Value{}, err
	}
	switch t := tok.(type) {
	case nil:
		return Value{}, nil
	case bool:
		return BoolValue(t), nil
	case json.Number:
		return Value{kind: Number, number: t}, nil
	case string:
		return StringValue(t), nil
	case json.Delim:
		switch t {
		case '[':
			items := []Value{}
			for dec.More() {
				item, err := decodeValue(dec)
				if err != nil {
					return Value{}, err
				}
				items = append(items, item)
			}
			if _, err := dec.Token(); err != nil {
				return Value{}, err
			}
			return Value{kind: Array, items: items}, nil
		case '{':
			members := []Member{}
			for dec.More() {
				keyTok, err := dec.Token()
				if err != nil {
					return Value{}, err
				}
				key, ok := keyTok.(string)
				if !ok {
					return Value{}, fmt.Errorf("object key is %T, not string", keyTok)
				}
				val, err := decodeValue(dec)
				if err != nil {
					return Value{}, err
				}
				members = append(members, Member{Key: key, Value: val})
			}
			if _, err := dec.Token(); err != nil {
				return Value{}, err
			}
			return Value{kind: Object, members: members}, nil
		}
	}
	return Value{}, fmt.Errorf("unexpected token %v", tok)
}

// ParseBody turns an upstream response body into a Value. Bodies that are
// not valid JSON are wrapped as {"reply": text}; an empty body yields an
// empty object. The upstream content type is not consulted: n8n labels JSON
// as text/plain often enough that sniffing the body is the only reliable
// signal.
func ParseBody(body []byte) Value {
	if strings.TrimSpace(string(body)) == "" {
		return ObjectValue()
	}
	if v, err := Parse(body); err == nil {
		return v
	}
	return ObjectValue(Member{Key: "reply", Value: StringValue(string(body))})
}
