// Package profile resolves instruction-profile keys to the prompt fragments used for dialogue generation.
package profile

import (
	_ "embed"
	"fmt"
	"sort"
	"strings"

	"github.com/pelletier/go-toml/v2"
)

// Key names an instruction profile.
type Key string

// Built-in profiles.
const (
	Podcast Key = "podcast"
	Summary Key = "summary"
	Lecture Key = "lecture"
)

// Default is the profile used when a request names none.
const Default = Podcast

//go:embed profiles.toml
var builtinProfiles []byte

// Bundle holds the five prompt fragments of one profile.
type Bundle struct {
	Intro            string `toml:"intro"`
	TextInstructions string `toml:"text_instructions"`
	ScratchPad       string `toml:"scratch_pad"`
	Prelude          string `toml:"prelude"`
	Dialog           string `toml:"dialog"`
}

// Store is an immutable profile table.
type Store struct {
	bundles map[Key]Bundle
}

// Load parses a TOML profile table.
func Load(data []byte) (*Store, error) {
	raw := make(map[string]Bundle)

	err := toml.Unmarshal(data, &raw)
	if err != nil {
		return nil, fmt.Errorf("failed to parse instruction profiles: %w", err)
	}

	bundles := make(map[Key]Bundle, len(raw))
	for name, bundle := range raw {
		bundles[Key(strings.ToLower(strings.TrimSpace(name)))] = bundle
	}

	return &Store{bundles: bundles}, nil
}

// Builtin returns the profiles compiled into the binary.
func Builtin() *Store {
	store, err := Load(builtinProfiles)
	if err != nil {
		panic(err)
	}

	return store
}

// Lookup returns the bundle for key. Unknown keys yield an empty bundle.
func (s *Store) Lookup(key Key) Bundle {
	if s == nil {
		return Bundle{}
	}

	return s.bundles[Key(strings.ToLower(strings.TrimSpace(string(key))))]
}

// Has reports whether key names a known profile.
func (s *Store) Has(key Key) bool {
	if s == nil {
		return false
	}

	_, ok := s.bundles[Key(strings.ToLower(strings.TrimSpace(string(key))))]

	return ok
}

// Keys lists the known profiles in sorted order.
func (s *Store) Keys() []Key {
	if s == nil {
		return nil
	}

	keys := make([]Key, 0, len(s.bundles))
	for key := range s.bundles {
		keys = append(keys, key)
	}

	sort.Slice(keys, func(i, j int) bool { return keys[i] < keys[j] })

	return keys
}
