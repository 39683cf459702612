// Package dnscfg loads the tunable safety limits the validator, name
// codec, and packet builder enforce. The library packages never read
// these from the environment themselves; only cmd/dnssectorctl calls
// Load, and passes the resulting Limits into constructors explicitly.
package dnscfg

import (
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"
	env "github.com/knadh/koanf/providers/env/v2"
	"github.com/knadh/koanf/providers/structs"
	"github.com/knadh/koanf/v2"
)

// Limits holds the bounds that guard against pathological or hostile
// input: oversized messages, deeply nested compression pointers, and an
// outgoing-name suffix table sized for a single message's worth of
// compression opportunities.
type Limits struct {
	// MaxIndirections bounds compression-pointer hops during name decode.
	MaxIndirections uint `koanf:"max_indirections" validate:"required,gte=1,lte=255"`

	// MaxUncompressedSize bounds the size, in bytes, a message may grow to
	// once fully decompressed.
	MaxUncompressedSize uint `koanf:"max_uncompressed_size" validate:"required,gte=512"`

	// MaxHostnameLen bounds the length, in bytes, of a fully expanded name.
	MaxHostnameLen uint `koanf:"max_hostname_len" validate:"required,gte=1,lte=255"`

	// SuffixDictSize bounds the number of name suffixes tracked while
	// compressing outgoing names.
	SuffixDictSize uint `koanf:"suffix_dict_size" validate:"required,gte=1,lte=255"`
}

// DefaultLimits returns the toolkit's documented bounds: 16
// indirections, an 8192-byte decompression ceiling, 255-byte names, and
// a 32-entry suffix table.
func DefaultLimits() Limits {
	return Limits{
		MaxIndirections:     16,
		MaxUncompressedSize: 8192,
		MaxHostnameLen:      255,
		SuffixDictSize:      32,
	}
}

// envLoader loads environment variables under the "DNSSECTOR_" prefix.
// Defined as a var so tests can replace it.
var envLoader = func(k *koanf.Koanf) error {
	return k.Load(env.Provider(".", env.Opt{
		Prefix: "DNSSECTOR_",
		TransformFunc: func(key, value string) (string, any) {
			return strings.ToLower(strings.TrimPrefix(key, "DNSSECTOR_")), value
		},
	}), nil)
}

// Load reads Limits from the process environment, applying
// DefaultLimits and then validating the result.
func Load() (Limits, error) {
	k := koanf.New(".")

	if err := k.Load(structs.Provider(DefaultLimits(), "koanf"), nil); err != nil {
		return Limits{}, fmt.Errorf("error loading defaults: %w", err)
	}

	if err := envLoader(k); err != nil {
		return Limits{}, fmt.Errorf("error loading env: %w", err)
	}

	var limits Limits
	if err := k.Unmarshal("", &limits); err != nil {
		return Limits{}, fmt.Errorf("error unmarshalling config: %w", err)
	}

	validate := validator.New(validator.WithRequiredStructEnabled())
	if err := validate.Struct(&limits); err != nil {
		return Limits{}, fmt.Errorf("validation failed: %w", err)
	}

	return limits, nil
}
