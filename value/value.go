// Package value defines the tagged value type stored by the engine and the
// operations every other layer builds on: parsing raw input, serialization,
// path-based field extraction, tokenization, and comparison.
package value

import (
	"encoding/json"
	"fmt"
	"io"
	"math"
	"sort"
	"strconv"
	"strings"
)

// Kind identifies which variant a Value holds.
type Kind uint8

const (
	KindText Kind = iota
	KindNumber
	KindStruct
	KindList
)

func (k Kind) String() string {
	switch k {
	case KindText:
		return "TEXT"
	case KindNumber:
		return "NUMBER"
	case KindStruct:
		return "STRUCT"
	case KindList:
		return "LIST"
	default:
		return "UNKNOWN"
	}
}

// Field is a named member of a Struct value. Field order is preserved from
// the input and survives serialization round trips.
type Field struct {
	Name  string
	Value Value
}

// Value is an immutable tagged variant: Text, Number, Struct (ordered named
// fields), or List (sequence of values). The zero Value is Text("").
type Value struct {
	kind   Kind
	text   string
	num    float64
	fields []Field
	list   []Value
}

func Text(s string) Value         { return Value{kind: KindText, text: s} }
func Number(f float64) Value      { return Value{kind: KindNumber, num: f} }
func Struct(fields []Field) Value { return Value{kind: KindStruct, fields: fields} }
func List(items []Value) Value    { return Value{kind: KindList, list: items} }

func (v Value) Kind() Kind { return v.kind }

// Number returns the numeric value and true when v is a Number.
func (v Value) Number() (float64, bool) {
	if v.kind == KindNumber {
		return v.num, true
	}
	return 0, false
}

// AsNumber is like Number but also accepts Text that parses as a float.
// Sorting and range comparison use this looser view.
func (v Value) AsNumber() (float64, bool) {
	switch v.kind {
	case KindNumber:
		return v.num, true
	case KindText:
		f, err := strconv.ParseFloat(strings.TrimSpace(v.text), 64)
		if err != nil {
			return 0, false
		}
		return f, true
	}
	return 0, false
}

// Fields returns the ordered fields of a Struct value (nil otherwise).
func (v Value) Fields() []Field { return v.fields }

// Items returns the elements of a List value (nil otherwise).
func (v Value) Items() []Value { return v.list }

// Parse converts raw user input into a Value. Numbers become Number, JSON
// objects/arrays become Struct/List with field order preserved, quoted JSON
// strings become their unquoted Text. Input that starts like JSON ('{' or
// '[') but does not parse is an error; everything else is Text of the raw
// input. JSON true/false/null have no variant of their own and fold to Text
// of their literal.
func Parse(raw string) (Value, error) {
	trimmed := strings.TrimSpace(raw)

	if f, err := strconv.ParseFloat(trimmed, 64); err == nil {
		return Number(f), nil
	}

	if strings.HasPrefix(trimmed, "{") || strings.HasPrefix(trimmed, "[") {
		dec := json.NewDecoder(strings.NewReader(trimmed))
		dec.UseNumber()
		v, err := Decode(dec)
		if err != nil {
			return Value{}, fmt.Errorf("malformed structured value: %w", err)
		}
		// Trailing garbage after the closing brace is malformed too.
		if _, err := dec.Token(); err != io.EOF {
			return Value{}, fmt.Errorf("malformed structured value: trailing data")
		}
		return v, nil
	}

	if strings.HasPrefix(trimmed, `"`) {
		var s string
		if err := json.Unmarshal([]byte(trimmed), &s); err == nil {
			return Text(s), nil
		}
	}

	return Text(raw), nil
}

// Decode reads a single JSON value from dec, preserving struct field order.
// The decoder must have UseNumber enabled so numeric precision is kept.
func Decode(dec *json.Decoder) (Value, error) {
	tok, err := dec.Token()
	if err != nil {
		return Value{}, err
	}
	return decodeToken(dec, tok)
}

func decodeToken(dec *json.Decoder, tok json.Token) (Value, error) {
	switch t := tok.(type) {
	case json.Delim:
		switch t {
		case '{':
			var fields []Field
			for dec.More() {
				keyTok, err := dec.Token()
				if err != nil {
					return Value{}, err
				}
				name, ok := keyTok.(string)
				if !ok {
					return Value{}, fmt.Errorf("object key is not a string")
				}
				val, err := Decode(dec)
				if err != nil {
					return Value{}, err
				}
				fields = append(fields, Field{Name: name, Value: val})
			}
			if _, err := dec.Token(); err != nil { // consume '}'
				return Value{}, err
			}
			return Struct(fields), nil
		case '[':
			var items []Value
			for dec.More() {
				val, err := Decode(dec)
				if err != nil {
					return Value{}, err
				}
				items = append(items, val)
			}
			if _, err := dec.Token(); err != nil { // consume ']'
				return Value{}, err
			}
			return List(items), nil
		}
		return Value{}, fmt.Errorf("unexpected delimiter %q", t)
	case string:
		return Text(t), nil
	case json.Number:
		f, err := t.Float64()
		if err != nil {
			return Value{}, err
		}
		return Number(f), nil
	case float64:
		return Number(t), nil
	case bool:
		return Text(strconv.FormatBool(t)), nil
	case nil:
		return Text("null"), nil
	}
	return Value{}, fmt.Errorf("unsupported JSON token %v", tok)
}

// String renders v as JSON, preserving struct field order. Used for display,
// CSV export, and the persisted file.
func (v Value) String() string {
	var b strings.Builder
	v.encode(&b, false)
	return b.String()
}

// Canonical renders v as JSON with struct fields sorted by name. Two values
// are equal exactly when their canonical forms match, which makes it the key
// of the exact-value index.
func (v Value) Canonical() string {
	var b strings.Builder
	v.encode(&b, true)
	return b.String()
}

func (v Value) encode(b *strings.Builder, canonical bool) {
	switch v.kind {
	case KindText:
		quoted, _ := json.Marshal(v.text)
		b.Write(quoted)
	case KindNumber:
		b.WriteString(FormatNumber(v.num))
	case KindStruct:
		fields := v.fields
		if canonical && len(fields) > 1 {
			sorted := make([]Field, len(fields))
			copy(sorted, fields)
			sort.SliceStable(sorted, func(i, j int) bool {
				return sorted[i].Name < sorted[j].Name
			})
			fields = sorted
		}
		b.WriteByte('{')
		for i, f := range fields {
			if i > 0 {
				b.WriteByte(',')
			}
			quoted, _ := json.Marshal(f.Name)
			b.Write(quoted)
			b.WriteByte(':')
			f.Value.encode(b, canonical)
		}
		b.WriteByte('}')
	case KindList:
		b.WriteByte('[')
		for i, item := range v.list {
			if i > 0 {
				b.WriteByte(',')
			}
			item.encode(b, canonical)
		}
		b.WriteByte(']')
	}
}

// FormatNumber renders a float the way JSON does: integers without a
// fractional part, everything else in shortest form.
func FormatNumber(f float64) string {
	if f == math.Trunc(f) && math.Abs(f) < 1e15 {
		return strconv.FormatFloat(f, 'f', 0, 64)
	}
	return strconv.FormatFloat(f, 'g', -1, 64)
}

// Tokens returns the lower-cased whitespace tokens of every textual leaf of
// v, plus one token per numeric leaf. This is the full-text tokenization.
func (v Value) Tokens() []string {
	var out []string
	v.appendTokens(&out)
	return out
}

func (v Value) appendTokens(out *[]string) {
	switch v.kind {
	case KindText:
		*out = append(*out, strings.Fields(strings.ToLower(v.text))...)
	case KindNumber:
		*out = append(*out, FormatNumber(v.num))
	case KindStruct:
		for _, f := range v.fields {
			f.Value.appendTokens(out)
		}
	case KindList:
		for _, item := range v.list {
			item.appendTokens(out)
		}
	}
}

// Flatten renders v as plain unescaped text for substring search: the raw
// text of Text leaves (no JSON quoting or escaping), formatted numbers, and
// struct field names, joined by single spaces in value order.
func (v Value) Flatten() string {
	var parts []string
	v.appendFlat(&parts)
	return strings.Join(parts, " ")
}

func (v Value) appendFlat(out *[]string) {
	switch v.kind {
	case KindText:
		*out = append(*out, v.text)
	case KindNumber:
		*out = append(*out, FormatNumber(v.num))
	case KindStruct:
		for _, f := range v.fields {
			*out = append(*out, f.Name)
			f.Value.appendFlat(out)
		}
	case KindList:
		for _, item := range v.list {
			item.appendFlat(out)
		}
	}
}

// Field resolves a dot-separated path of field names and list indexes
// against v. The second result is false when the path does not resolve
// ("field absent"); callers sort absent values last and treat absent as a
// non-match.
func (v Value) Field(path string) (Value, bool) {
	if path == "" {
		return v, true
	}
	cur := v
	for _, part := range strings.Split(path, ".") {
		switch cur.kind {
		case KindStruct:
			found := false
			for _, f := range cur.fields {
				if f.Name == part {
					cur = f.Value
					found = true
					break
				}
			}
			if !found {
				return Value{}, false
			}
		case KindList:
			idx, err := strconv.Atoi(part)
			if err != nil || idx < 0 || idx >= len(cur.list) {
				return Value{}, false
			}
			cur = cur.list[idx]
		default:
			return Value{}, false
		}
	}
	return cur, true
}

// Equal reports whether a and b are the same value. Struct field order does
// not affect equality.
func Equal(a, b Value) bool {
	return a.Canonical() == b.Canonical()
}

// Compare orders two values: numerically when both sides are (or parse as)
// numbers, lexicographically on their text form otherwise.
func Compare(a, b Value) int {
	if af, aok := a.AsNumber(); aok {
		if bf, bok := b.AsNumber(); bok {
			switch {
			case af < bf:
				return -1
			case af > bf:
				return 1
			default:
				return 0
			}
		}
	}
	return strings.Compare(a.compareText(), b.compareText())
}

// compareText is the lexicographic sort key: raw text for Text values so
// "abc" sorts as abc rather than "\"abc\"", serialized JSON for the rest.
func (v Value) compareText() string {
	if v.kind == KindText {
		return v.text
	}
	return v.String()
}
