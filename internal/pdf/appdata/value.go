// Package appdata models the application record embedded into a form: a
// tree of string-keyed maps whose leaves are scalars.
package appdata

import (
	"bytes"
	"encoding/json"
	"fmt"
	"math"
	"sort"
	"strconv"
	"strings"
	"time"
)

// Kind tags the variant held by a Value
type Kind int

const (
	KindAbsent Kind = iota
	KindNull
	KindString
	KindNumber
	KindBool
	KindTime
	KindList
	KindMap
)

func (k Kind) String() string {
	switch k {
	case KindNull:
		return "null"
	case KindString:
		return "string"
	case KindNumber:
		return "number"
	case KindBool:
		return "bool"
	case KindTime:
		return "time"
	case KindList:
		return "list"
	case KindMap:
		return "map"
	default:
		return "absent"
	}
}

// Value is one node of the application data tree
type Value struct {
	kind Kind
	str  string
	num  float64
	// lit keeps the digits of an integer decoded from JSON, which may not
	// survive the trip through float64.
	lit  string
	b    bool
	t    time.Time
	list []Value
	m    Map
}

// Map is a nested mapping node
type Map map[string]Value

// Constructors for each variant.
func String(s string) Value     { return Value{kind: KindString, str: s} }
func Number(n float64) Value    { return Value{kind: KindNumber, num: n} }
func Bool(b bool) Value         { return Value{kind: KindBool, b: b} }
func Time(t time.Time) Value    { return Value{kind: KindTime, t: t} }
func List(items ...Value) Value { return Value{kind: KindList, list: items} }
func Nested(m Map) Value        { return Value{kind: KindMap, m: m} }
func Null() Value               { return Value{kind: KindNull} }

// Kind returns the variant tag
func (v Value) Kind() Kind { return v.kind }

// IsEmpty reports whether the value counts as "not supplied": absent,
// null or an empty string. Such fields are skipped during filling.
func (v Value) IsEmpty() bool {
	switch v.kind {
	case KindAbsent, KindNull:
		return true
	case KindString:
		return v.str == ""
	case KindList:
		return len(v.list) == 0
	}
	return false
}

// AsString returns the string payload
func (v Value) AsString() (string, bool) { return v.str, v.kind == KindString }

// AsNumber returns the numeric payload. Numeric strings are accepted.
func (v Value) AsNumber() (float64, bool) {
	switch v.kind {
	case KindNumber:
		return v.num, true
	case KindString:
		n, err := strconv.ParseFloat(strings.ReplaceAll(strings.TrimSpace(v.str), ",", ""), 64)
		return n, err == nil
	}
	return 0, false
}

// AsInt returns the value as an exact integer. Integers decoded from
// JSON keep every digit that fits in an int64.
func (v Value) AsInt() (int64, bool) {
	switch v.kind {
	case KindNumber:
		if v.lit != "" {
			i, err := strconv.ParseInt(v.lit, 10, 64)
			return i, err == nil
		}
		if v.num == math.Trunc(v.num) && math.Abs(v.num) < 1e15 {
			return int64(v.num), true
		}
	case KindString:
		i, err := strconv.ParseInt(strings.ReplaceAll(strings.TrimSpace(v.str), ",", ""), 10, 64)
		return i, err == nil
	}
	return 0, false
}

// AsBool returns the boolean payload. Common truthy strings are accepted.
func (v Value) AsBool() (bool, bool) {
	switch v.kind {
	case KindBool:
		return v.b, true
	case KindString:
		switch strings.ToLower(strings.TrimSpace(v.str)) {
		case "true", "yes", "on", "1", "はい", "有":
			return true, true
		case "false", "no", "off", "0", "いいえ", "無":
			return false, true
		}
	case KindNumber:
		return v.num != 0, true
	}
	return false, false
}

// AsTime returns the time payload. ISO dates in strings are accepted.
func (v Value) AsTime() (time.Time, bool) {
	switch v.kind {
	case KindTime:
		return v.t, true
	case KindString:
		for _, layout := range []string{time.RFC3339, "2006-01-02", "2006/01/02", "2006-01-02T15:04:05"} {
			if t, err := time.Parse(layout, strings.TrimSpace(v.str)); err == nil {
				return t, true
			}
		}
	}
	return time.Time{}, false
}

// AsMap returns the nested map payload
func (v Value) AsMap() (Map, bool) { return v.m, v.kind == KindMap }

// AsList returns the list payload
func (v Value) AsList() ([]Value, bool) { return v.list, v.kind == KindList }

// Text renders the value as plain text. Lists are joined with newlines.
func (v Value) Text() string {
	switch v.kind {
	case KindString:
		return v.str
	case KindNumber:
		if v.lit != "" {
			return v.lit
		}
		if v.num == math.Trunc(v.num) && math.Abs(v.num) < 1e15 {
			return strconv.FormatInt(int64(v.num), 10)
		}
		return strconv.FormatFloat(v.num, 'f', -1, 64)
	case KindBool:
		return strconv.FormatBool(v.b)
	case KindTime:
		return v.t.Format("2006-01-02")
	case KindList:
		parts := make([]string, 0, len(v.list))
		for _, item := range v.list {
			if !item.IsEmpty() {
				parts = append(parts, item.Text())
			}
		}
		return strings.Join(parts, "\n")
	case KindMap:
		return fmt.Sprintf("{%d keys}", len(v.m))
	}
	return ""
}

// FromAny converts decoded JSON/YAML into a Value tree
func FromAny(raw any) (Value, error) {
	switch x := raw.(type) {
	case nil:
		return Null(), nil
	case Value:
		return x, nil
	case string:
		return String(x), nil
	case bool:
		return Bool(x), nil
	case float64:
		return Number(x), nil
	case float32:
		return Number(float64(x)), nil
	case int:
		return Number(float64(x)), nil
	case int64:
		return Number(float64(x)), nil
	case json.Number:
		n, err := x.Float64()
		if err != nil {
			return Value{}, fmt.Errorf("invalid number %q: %w", x, err)
		}
		v := Number(n)
		if _, err := x.Int64(); err == nil {
			v.lit = x.String()
		}
		return v, nil
	case time.Time:
		return Time(x), nil
	case []any:
		items := make([]Value, 0, len(x))
		for i, item := range x {
			v, err := FromAny(item)
			if err != nil {
				return Value{}, fmt.Errorf("[%d]: %w", i, err)
			}
			items = append(items, v)
		}
		return List(items...), nil
	case map[string]any:
		m := make(Map, len(x))
		for k, item := range x {
			v, err := FromAny(item)
			if err != nil {
				return Value{}, fmt.Errorf("%s: %w", k, err)
			}
			m[k] = v
		}
		return Nested(m), nil
	default:
		return Value{}, fmt.Errorf("unsupported value of type %T", raw)
	}
}

// Data is the root of an application record
type Data struct {
	root Map
}

// New wraps a root map
func New(root Map) *Data {
	if root == nil {
		root = Map{}
	}
	return &Data{root: root}
}

// FromMap converts a decoded JSON object into Data
func FromMap(raw map[string]any) (*Data, error) {
	v, err := FromAny(raw)
	if err != nil {
		return nil, err
	}
	m, _ := v.AsMap()
	return New(m), nil
}

// FromJSON decodes a JSON object into Data
func FromJSON(data []byte) (*Data, error) {
	var raw map[string]any
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	if err := dec.Decode(&raw); err != nil {
		return nil, fmt.Errorf("failed to decode application data: %w", err)
	}
	return FromMap(raw)
}

// Root returns the top-level map
func (d *Data) Root() Map { return d.root }

// Lookup walks a dot-separated path such as "basicInfo.companyName".
// List elements are addressed by decimal index.
func (d *Data) Lookup(path string) (Value, bool) {
	if d == nil || path == "" {
		return Value{}, false
	}
	current := Nested(d.root)
	for _, segment := range strings.Split(path, ".") {
		switch current.kind {
		case KindMap:
			next, ok := current.m[segment]
			if !ok {
				return Value{}, false
			}
			current = next
		case KindList:
			idx, err := strconv.Atoi(segment)
			if err != nil || idx < 0 || idx >= len(current.list) {
				return Value{}, false
			}
			current = current.list[idx]
		default:
			return Value{}, false
		}
	}
	return current, true
}

// Resolve finds the value for a mapping key. An explicit dataPath wins;
// otherwise the key is tried at the top level and then inside each
// top-level section in name order, so "companyName" finds
// "basicInfo.companyName".
func (d *Data) Resolve(key, dataPath string) (Value, bool) {
	if dataPath != "" {
		return d.Lookup(dataPath)
	}
	if v, ok := d.Lookup(key); ok {
		return v, true
	}
	if d == nil {
		return Value{}, false
	}
	sections := make([]string, 0, len(d.root))
	for name, v := range d.root {
		if v.kind == KindMap {
			sections = append(sections, name)
		}
	}
	sort.Strings(sections)
	for _, name := range sections {
		if v, ok := d.Lookup(name + "." + key); ok {
			return v, true
		}
	}
	return Value{}, false
}
