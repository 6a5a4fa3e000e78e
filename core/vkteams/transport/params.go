package transport

import (
	"encoding"
	"encoding/json"
	"fmt"
	"net/url"
	"reflect"
	"sort"
	"strconv"
)

type absent struct{}

// Absent marks a parameter that must not be sent. Nil values and nil pointers are treated the same way.
var Absent = absent{}

// Params are query parameters of a Bot API call. Absent values never reach the wire.
type Params map[string]any

// Set assigns key unless v is absent, and returns p for chaining.
func (p Params) Set(key string, v any) Params {
	if isAbsent(v) {
		delete(p, key)
		return p
	}
	p[key] = v
	return p
}

// Values encodes p into url.Values. Slices and arrays become repeated keys.
func (p Params) Values() (url.Values, error) {
	out := make(url.Values, len(p))
	keys := make([]string, 0, len(p))
	for k := range p {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		v := p[k]
		if isAbsent(v) {
			continue
		}
		if err := addValue(out, k, v); err != nil {
			return nil, fmt.Errorf("param %s: %w", k, err)
		}
	}
	return out, nil
}

func addValue(out url.Values, key string, v any) error {
	switch x := v.(type) {
	case []string:
		for _, s := range x {
			out.Add(key, s)
		}
		return nil
	case []byte:
		out.Add(key, string(x))
		return nil
	case json.Marshaler, encoding.TextMarshaler:
		s, err := scalar(x)
		if err != nil {
			return err
		}
		out.Add(key, s)
		return nil
	}

	rv := reflect.ValueOf(v)
	for rv.Kind() == reflect.Pointer {
		if rv.IsNil() {
			return nil
		}
		rv = rv.Elem()
	}
	if (rv.Kind() == reflect.Slice || rv.Kind() == reflect.Array) && scalarKind(rv.Type().Elem().Kind()) {
		if _, ok := rv.Interface().(json.Marshaler); !ok {
			for i := 0; i < rv.Len(); i++ {
				s, err := scalar(rv.Index(i).Interface())
				if err != nil {
					return err
				}
				out.Add(key, s)
			}
			return nil
		}
	}
	s, err := scalar(rv.Interface())
	if err != nil {
		return err
	}
	out.Add(key, s)
	return nil
}

func scalar(v any) (string, error) {
	switch x := v.(type) {
	case string:
		return x, nil
	case bool:
		return strconv.FormatBool(x), nil
	case int:
		return strconv.Itoa(x), nil
	case int64:
		return strconv.FormatInt(x, 10), nil
	case int32:
		return strconv.FormatInt(int64(x), 10), nil
	case uint64:
		return strconv.FormatUint(x, 10), nil
	case float64:
		return strconv.FormatFloat(x, 'f', -1, 64), nil
	case json.Marshaler:
		data, err := x.MarshalJSON()
		if err != nil {
			return "", err
		}
		return string(data), nil
	case encoding.TextMarshaler:
		data, err := x.MarshalText()
		if err != nil {
			return "", err
		}
		return string(data), nil
	case fmt.Stringer:
		return x.String(), nil
	}

	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.String:
		return rv.String(), nil
	case reflect.Bool:
		return strconv.FormatBool(rv.Bool()), nil
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return strconv.FormatInt(rv.Int(), 10), nil
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		return strconv.FormatUint(rv.Uint(), 10), nil
	case reflect.Float32, reflect.Float64:
		return strconv.FormatFloat(rv.Float(), 'f', -1, 64), nil
	case reflect.Map, reflect.Struct, reflect.Slice, reflect.Array:
		data, err := json.Marshal(v)
		if err != nil {
			return "", err
		}
		return string(data), nil
	}
	return "", fmt.Errorf("unsupported value of type %T", v)
}

func scalarKind(k reflect.Kind) bool {
	switch k {
	case reflect.String, reflect.Bool,
		reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64,
		reflect.Uint, reflect.Uint16, reflect.Uint32, reflect.Uint64,
		reflect.Float32, reflect.Float64:
		return true
	}
	return false
}

func isAbsent(v any) bool {
	if v == nil {
		return true
	}
	if _, ok := v.(absent); ok {
		return true
	}
	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Pointer, reflect.Interface, reflect.Map, reflect.Slice:
		return rv.IsNil()
	}
	return false
}
