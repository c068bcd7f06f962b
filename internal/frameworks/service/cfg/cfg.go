// Package cfg decodes driver and interceptor config sections (map[string]any
// from TOML) into typed structs.
package cfg

import (
	"sort"

	"github.com/mitchellh/mapstructure"
)

// Setter is implemented by config structs that fill in their own defaults.
type Setter interface {
	ApplyDefaults()
}

func newDecoder(c any, md *mapstructure.Metadata) (*mapstructure.Decoder, error) {
	return mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		Metadata: md,
		Result:   c,
		TagName:  "mapstructure",
		// TOML and env values arrive as strings or int64; accept "30s" for durations
		// and "true" for bools.
		WeaklyTypedInput: true,
		DecodeHook: mapstructure.ComposeDecodeHookFunc(
			mapstructure.StringToTimeDurationHookFunc(),
			mapstructure.StringToSliceHookFunc(","),
		),
	})
}

// Decode decodes the raw input map into the target pointer c.
// If c implements Setter, ApplyDefaults() runs after decoding.
func Decode(input map[string]any, c any) error {
	_, err := decode(input, c, nil)
	return err
}

// DecodeWithUnused decodes input into c and returns any unused keys (sorted),
// so the caller can warn about dead config.
func DecodeWithUnused(input map[string]any, c any) ([]string, error) {
	var md mapstructure.Metadata
	return decode(input, c, &md)
}

func decode(input map[string]any, c any, md *mapstructure.Metadata) ([]string, error) {
	decoder, err := newDecoder(c, md)
	if err != nil {
		return nil, err
	}
	if err := decoder.Decode(input); err != nil {
		return nil, err
	}

	if s, ok := c.(Setter); ok {
		s.ApplyDefaults()
	}

	if md == nil {
		return nil, nil
	}
	unused := md.Unused
	sort.Strings(unused)
	return unused, nil
}
