package config

import (
	"reflect"
	"strings"
)

const (
	keySeparator = "."
	tagSquash    = "squash"
)

// StructKeys returns the dotted key of every leaf field of typ, named by tag or by the field
// name when untagged. Fields tagged "-" and unexported fields have no key, fields tagged with
// the squash option add their fields to the enclosing level. Pointers are followed, maps and
// slices are leaves.
func StructKeys(typ reflect.Type, tag string) []string {
	var keys []string
	walkStructKeys(typ, tag, "", &keys)
	return keys
}

func walkStructKeys(typ reflect.Type, tag, prefix string, keys *[]string) {
	for typ.Kind() == reflect.Pointer {
		typ = typ.Elem()
	}
	if typ.Kind() != reflect.Struct {
		*keys = append(*keys, prefix)
		return
	}
	for i := range typ.NumField() {
		field := typ.Field(i)
		if !field.IsExported() {
			continue
		}
		name, opts, _ := strings.Cut(field.Tag.Get(tag), ",")
		if name == "-" {
			continue
		}
		if hasOption(opts, tagSquash) {
			walkStructKeys(field.Type, tag, prefix, keys)
			continue
		}
		if name == "" {
			name = field.Name
		}
		key := name
		if prefix != "" {
			key = prefix + keySeparator + name
		}
		walkStructKeys(field.Type, tag, key, keys)
	}
}

func hasOption(opts, option string) bool {
	for opts != "" {
		var opt string
		opt, opts, _ = strings.Cut(opts, ",")
		if opt == option {
			return true
		}
	}
	return false
}
