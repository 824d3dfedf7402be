package cachekey

import (
	"encoding/json"
	"fmt"
	"reflect"
	"strings"
)

// Serialize renders a filter value as a stable string suitable for a key param.
// Strings are returned untouched, pointers are dereferenced and basic kinds
// are formatted. Anything else is rendered as JSON, which sorts map keys, so
// the same value always produces the same output.
func Serialize(v any) string {
	if v == nil {
		return ""
	}

	rv := reflect.ValueOf(v)
	switch kind := rv.Kind(); {
	case kind == reflect.String:
		return rv.String()
	case kind == reflect.Ptr || kind == reflect.Interface:
		if rv.IsNil() {
			return ""
		}
		return Serialize(rv.Elem().Interface())
	case (kind == reflect.Slice || kind == reflect.Map) && rv.IsNil():
		return ""
	case isBasicKind(kind):
		return fmt.Sprint(v)
	}

	data, err := json.Marshal(v)
	if err != nil {
		return "fallback:" + rv.Type().String()
	}
	return string(data)
}

// Params flattens the exported fields of a filter struct into key params.
// Field names come from the json tag when present. Zero values are skipped so
// an empty filter yields no params and maps onto the plain collection key.
func Params(filters any) map[string]string {
	params := map[string]string{}
	if filters == nil {
		return params
	}

	rv := reflect.ValueOf(filters)
	for rv.Kind() == reflect.Ptr {
		if rv.IsNil() {
			return params
		}
		rv = rv.Elem()
	}

	if rv.Kind() != reflect.Struct {
		return params
	}

	rt := rv.Type()
	for i := 0; i < rv.NumField(); i++ {
		field := rt.Field(i)
		if !field.IsExported() {
			continue
		}

		value := rv.Field(i)
		if value.IsZero() {
			continue
		}

		name := paramName(field)
		if name == "-" {
			continue
		}

		if s := Serialize(value.Interface()); s != "" {
			params[name] = s
		}
	}

	return params
}

func paramName(field reflect.StructField) string {
	tag := field.Tag.Get("json")
	if tag == "" {
		return field.Name
	}
	name, _, _ := strings.Cut(tag, ",")
	if name == "" {
		return field.Name
	}
	return name
}

func isBasicKind(kind reflect.Kind) bool {
	switch kind {
	case reflect.Bool,
		reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64,
		reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64,
		reflect.Float32, reflect.Float64,
		reflect.Complex64, reflect.Complex128:
		return true
	default:
		return false
	}
}
