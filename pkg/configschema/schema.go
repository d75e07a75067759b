// Package configschema describes the listing service configuration file as a
// JSON Schema, for editor completion and CI validation of deployment configs.
package configschema

import (
	"encoding/json"
	"fmt"
	"reflect"
	"strings"
	"time"
	"unicode"

	"github.com/google/jsonschema-go/jsonschema"
	"github.com/nimburion/listing/pkg/config"
)

// Build returns the schema of config.Config with property names as they are
// written in config files and defaults taken from defaults. A nil defaults
// uses config.DefaultConfig.
func Build(defaults *config.Config) (*jsonschema.Schema, error) {
	opts := &jsonschema.ForOptions{
		IgnoreInvalidTypes: true,
		TypeSchemas: map[reflect.Type]*jsonschema.Schema{
			reflect.TypeOf(time.Duration(0)): {Type: "string", Description: "Go duration, e.g. 30s or 5m"},
		},
	}

	t := reflect.TypeOf(config.Config{})
	schema, err := jsonschema.ForType(t, opts)
	if err != nil {
		return nil, fmt.Errorf("build config schema: %w", err)
	}
	applyFieldNames(schema, t)

	if defaults == nil {
		defaults = config.DefaultConfig()
	}
	injectDefaults(schema, reflect.ValueOf(defaults))
	pruneRequiredWithDefaults(schema)
	applyEnums(schema)

	name := strings.TrimSpace(defaults.Service.Name)
	if name == "" {
		name = "Service"
	}
	schema.Title = name + " Configuration"
	schema.Description = "Schema for " + name + " configuration."
	schema.Schema = "https://json-schema.org/draft/2020-12/schema"
	return schema, nil
}

// MarshalIndent renders the schema for `config schema`.
func MarshalIndent(schema *jsonschema.Schema) ([]byte, error) {
	data, err := json.MarshalIndent(schema, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("marshal config schema: %w", err)
	}
	return append(data, '\n'), nil
}

// enums lists the closed value sets the loader validates.
var enums = map[string][]any{
	"database.type":            {config.DatabaseTypeMongoDB, config.DatabaseTypeMemory},
	"cache.type":               {config.CacheTypeRedis, config.CacheTypeMemory},
	"rate_limit.backend":       {config.RateLimitBackendMemory, config.RateLimitBackendRedis},
	"observability.log_format": {"json", "text"},
	"observability.log_level":  {"debug", "info", "warn", "error"},
}

func applyEnums(schema *jsonschema.Schema) {
	for path, values := range enums {
		node := schema
		for _, part := range strings.Split(path, ".") {
			if node == nil {
				break
			}
			node = node.Properties[part]
		}
		if node != nil {
			node.Enum = values
		}
	}
}

// applyFieldNames renames properties from Go field names to their
// mapstructure keys, recursing into nested structs, slices and maps.
func applyFieldNames(schema *jsonschema.Schema, t reflect.Type) {
	if schema == nil || t == nil {
		return
	}
	for t.Kind() == reflect.Pointer {
		t = t.Elem()
	}

	switch t.Kind() {
	case reflect.Struct:
		if len(schema.Properties) == 0 {
			return
		}
		renamed := make(map[string]string)
		for i := 0; i < t.NumField(); i++ {
			field := t.Field(i)
			if !field.IsExported() {
				continue
			}
			jsonName := jsonFieldName(field)
			key := fieldKeyName(field)
			renamed[jsonName] = key
			if prop, ok := schema.Properties[jsonName]; ok {
				delete(schema.Properties, jsonName)
				schema.Properties[key] = prop
				applyFieldNames(prop, field.Type)
			}
		}
		schema.Required = renameAll(schema.Required, renamed)
		schema.PropertyOrder = renameAll(schema.PropertyOrder, renamed)

	case reflect.Slice, reflect.Array:
		applyFieldNames(schema.Items, t.Elem())

	case reflect.Map:
		applyFieldNames(schema.AdditionalProperties, t.Elem())
	}
}

func renameAll(names []string, renamed map[string]string) []string {
	if len(names) == 0 {
		return names
	}
	out := make([]string, 0, len(names))
	seen := make(map[string]struct{}, len(names))
	for _, name := range names {
		if mapped, ok := renamed[name]; ok {
			name = mapped
		}
		if _, dup := seen[name]; dup {
			continue
		}
		seen[name] = struct{}{}
		out = append(out, name)
	}
	return out
}

func injectDefaults(schema *jsonschema.Schema, value reflect.Value) {
	if schema == nil || !value.IsValid() {
		return
	}
	for value.Kind() == reflect.Pointer {
		if value.IsNil() {
			return
		}
		value = value.Elem()
	}

	if value.Kind() != reflect.Struct {
		if schema.Default == nil {
			if raw, ok := marshalDefault(value); ok {
				schema.Default = raw
			}
		}
		return
	}

	t := value.Type()
	for i := 0; i < t.NumField(); i++ {
		field := t.Field(i)
		if !field.IsExported() {
			continue
		}
		prop, ok := schema.Properties[fieldKeyName(field)]
		if !ok {
			continue
		}
		fieldVal := value.Field(i)
		if fieldVal.Kind() != reflect.Struct {
			// leaf schemas may be shared, e.g. every duration field
			cp := *prop
			prop = &cp
			schema.Properties[fieldKeyName(field)] = prop
		}
		injectDefaults(prop, fieldVal)
	}
}

// pruneRequiredWithDefaults drops required entries that have a default, since
// the loader fills them.
func pruneRequiredWithDefaults(schema *jsonschema.Schema) {
	if schema == nil {
		return
	}
	for _, prop := range schema.Properties {
		pruneRequiredWithDefaults(prop)
	}
	pruneRequiredWithDefaults(schema.Items)
	pruneRequiredWithDefaults(schema.AdditionalProperties)

	if len(schema.Required) == 0 {
		return
	}
	kept := make([]string, 0, len(schema.Required))
	for _, name := range schema.Required {
		if prop := schema.Properties[name]; prop == nil || prop.Default == nil {
			kept = append(kept, name)
		}
	}
	schema.Required = kept
}

func marshalDefault(value reflect.Value) (json.RawMessage, bool) {
	if value.Type() == reflect.TypeOf(time.Duration(0)) {
		payload, err := json.Marshal(time.Duration(value.Int()).String())
		return payload, err == nil
	}
	switch {
	case value.Kind() == reflect.Slice && value.IsNil():
		return json.RawMessage("[]"), true
	case value.Kind() == reflect.Map && value.IsNil():
		return json.RawMessage("{}"), true
	}
	payload, err := json.Marshal(value.Interface())
	if err != nil {
		return nil, false
	}
	return payload, true
}

func fieldKeyName(field reflect.StructField) string {
	if tag := field.Tag.Get("mapstructure"); tag != "" {
		if name, _, _ := strings.Cut(tag, ","); name != "" && name != "-" {
			return name
		}
	}
	return toSnakeCase(field.Name)
}

func toSnakeCase(value string) string {
	var b strings.Builder
	b.Grow(len(value) + 8)
	for i, r := range value {
		if i > 0 && isWordBoundary(value, i, r) {
			b.WriteByte('_')
		}
		b.WriteRune(unicode.ToLower(r))
	}
	return b.String()
}

func isWordBoundary(value string, index int, r rune) bool {
	if !unicode.IsUpper(r) {
		return false
	}
	prev := rune(value[index-1])
	if unicode.IsUpper(prev) {
		if index+1 < len(value) {
			return unicode.IsLower(rune(value[index+1]))
		}
		return false
	}
	return true
}

// jsonFieldName is the property name jsonschema.ForType assigns to field.
func jsonFieldName(field reflect.StructField) string {
	if tag, ok := field.Tag.Lookup("json"); ok {
		if name, _, _ := strings.Cut(tag, ","); name != "" && name != "-" {
			return name
		}
	}
	return field.Name
}
