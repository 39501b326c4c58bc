package util

import (
	"fmt"
	"reflect"
	"sort"
	"strings"
)

// ValidationError reports the first argument that does not satisfy a tool
// schema.
type ValidationError struct {
	Field   string `json:"field"`
	Value   any    `json:"value,omitempty"`
	Message string `json:"message"`
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("argument %q: %s", e.Field, e.Message)
}

// SchemaOf derives an object schema from the exported fields of a struct
// value or pointer. Field names follow the json tag, the description tag
// becomes the property description and fields that are neither pointers nor
// tagged omitempty are required. Non-struct input yields an empty object.
func SchemaOf(v any) map[string]any {
	props := map[string]any{}
	schema := map[string]any{"type": "object", "properties": props}

	t := reflect.TypeOf(v)
	for t != nil && t.Kind() == reflect.Pointer {
		t = t.Elem()
	}
	if t == nil || t.Kind() != reflect.Struct {
		return schema
	}

	var required []string
	for _, f := range reflect.VisibleFields(t) {
		if !f.IsExported() || f.Anonymous {
			continue
		}
		name, optional, skip := jsonName(f)
		if skip {
			continue
		}

		prop := map[string]any{"type": jsonKind(f.Type)}
		if desc := f.Tag.Get("description"); desc != "" {
			prop["description"] = desc
		}
		props[name] = prop

		if !optional && f.Type.Kind() != reflect.Pointer {
			required = append(required, name)
		}
	}
	if len(required) > 0 {
		schema["required"] = required
	}
	return schema
}

func jsonName(f reflect.StructField) (name string, omitEmpty, skip bool) {
	tag, ok := f.Tag.Lookup("json")
	if !ok {
		return f.Name, false, false
	}
	if tag == "-" {
		return "", false, true
	}
	name, opts, _ := strings.Cut(tag, ",")
	if name == "" {
		name = f.Name
	}
	for _, o := range strings.Split(opts, ",") {
		if strings.TrimSpace(o) == "omitempty" {
			omitEmpty = true
		}
	}
	return name, omitEmpty, false
}

func jsonKind(t reflect.Type) string {
	for t.Kind() == reflect.Pointer {
		t = t.Elem()
	}
	switch t.Kind() {
	case reflect.Bool:
		return "boolean"
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64,
		reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		return "integer"
	case reflect.Float32, reflect.Float64:
		return "number"
	case reflect.Slice, reflect.Array:
		return "array"
	case reflect.Map, reflect.Struct:
		return "object"
	default:
		return "string"
	}
}

// Required returns the schema's required list. Literal schemas carry
// []string, schemas decoded from JSON carry []any.
func Required(schema map[string]any) []string {
	switch req := schema["required"].(type) {
	case []string:
		return req
	case []any:
		out := make([]string, 0, len(req))
		for _, r := range req {
			if s, ok := r.(string); ok {
				out = append(out, s)
			}
		}
		return out
	}
	return nil
}

var kindChecks = map[string]func(any) bool{
	"string":  func(v any) bool { _, ok := v.(string); return ok },
	"boolean": func(v any) bool { _, ok := v.(bool); return ok },
	"array":   func(v any) bool { _, ok := v.([]any); return ok },
	"object":  func(v any) bool { _, ok := v.(map[string]any); return ok },
	"number": func(v any) bool {
		_, ok := toFloat(v)
		return ok
	},
	"integer": func(v any) bool {
		f, ok := toFloat(v)
		return ok && f == float64(int64(f))
	},
}

func toFloat(v any) (float64, bool) {
	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return float64(rv.Int()), true
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		return float64(rv.Uint()), true
	case reflect.Float32, reflect.Float64:
		return rv.Float(), true
	}
	return 0, false
}

// CheckArgs verifies that every required argument is present and that the
// declared properties carry values of their declared JSON type. Unknown
// arguments and nil values pass.
func CheckArgs(args map[string]any, schema map[string]any) error {
	for _, name := range Required(schema) {
		if _, ok := args[name]; !ok {
			return &ValidationError{Field: name, Message: "required argument is missing"}
		}
	}

	props, _ := schema["properties"].(map[string]any)

	// Sorted so the reported field is stable when several are wrong.
	names := make([]string, 0, len(args))
	for name := range args {
		names = append(names, name)
	}
	sort.Strings(names)

	for _, name := range names {
		value := args[name]
		prop, _ := props[name].(map[string]any)
		kind, _ := prop["type"].(string)
		check, known := kindChecks[kind]
		if value == nil || !known || check(value) {
			continue
		}
		return &ValidationError{
			Field:   name,
			Value:   value,
			Message: fmt.Sprintf("want %s, got %T", kind, value),
		}
	}
	return nil
}
