package config

import (
	"errors"
	"fmt"
	"reflect"
	"strings"

	"github.com/go-viper/mapstructure/v2"
)

const redacted = "[SECRET]"

var ErrMustBeString = errors.New("must be a string")

// Strings is a list of strings that may also be configured as a single comma separated
// string, which is how list values arrive from the environment.
type Strings []string

// SecureString holds a secret. It prints redacted.
type SecureString string

func (SecureString) String() string {
	return redacted
}

// SecureValue returns the secret itself.
func (s SecureString) SecureValue() string {
	return string(s)
}

func (s SecureString) MarshalText() ([]byte, error) {
	if s == "" {
		return []byte{}, nil
	}
	return []byte(redacted), nil
}

// OnlyString is a string that decodes only from a string. YAML reads 0042 as a number, and
// decoding it silently back into a string would lose the leading zeros.
type OnlyString string

func (o OnlyString) String() string {
	return string(o)
}

var (
	stringsType    = reflect.TypeOf(Strings(nil))
	onlyStringType = reflect.TypeOf(OnlyString(""))
)

// DecodeStrings is a mapstructure hook decoding a string or a list of strings into Strings.
// Elements of a comma separated string are trimmed and empty ones dropped.
func DecodeStrings(from reflect.Value, to reflect.Value) (interface{}, error) {
	if to.Type() != stringsType {
		return from.Interface(), nil
	}
	switch v := from.Interface().(type) {
	case string:
		var out Strings
		for _, s := range strings.Split(v, ",") {
			if s = strings.TrimSpace(s); s != "" {
				out = append(out, s)
			}
		}
		return out, nil
	case []string:
		return Strings(v), nil
	default:
		return from.Interface(), nil
	}
}

// DecodeOnlyString is a mapstructure hook failing to decode anything but a string into an
// OnlyString.
func DecodeOnlyString(from reflect.Value, to reflect.Value) (interface{}, error) {
	if to.Type() != onlyStringType {
		return from.Interface(), nil
	}
	s, ok := from.Interface().(string)
	if !ok {
		return nil, fmt.Errorf("%w, not a %s", ErrMustBeString, from.Type())
	}
	return OnlyString(s), nil
}

// DecodeHook is the decode hook for configuration structs.
func DecodeHook() mapstructure.DecodeHookFunc {
	return mapstructure.ComposeDecodeHookFunc(
		DecodeStrings,
		DecodeOnlyString,
		mapstructure.StringToTimeDurationHookFunc(),
	)
}
