// Package hotkey parses hotkey strings, matches key presses against them and
// turns matches into debounced actions.
package hotkey

import (
	"fmt"
	"strings"
)

// Modifier is a bit set of the four modifier classes.
type Modifier uint8

const (
	ModCtrl Modifier = 1 << iota
	ModAlt
	ModShift
	ModWin
)

// AllModifiers lists every modifier class in a stable order.
var AllModifiers = []Modifier{ModCtrl, ModAlt, ModShift, ModWin}

var modifierNames = map[string]Modifier{
	"ctrl":    ModCtrl,
	"control": ModCtrl,
	"alt":     ModAlt,
	"menu":    ModAlt,
	"shift":   ModShift,
	"win":     ModWin,
	"meta":    ModWin,
	"super":   ModWin,
}

func (m Modifier) String() string {
	var parts []string
	if m&ModCtrl != 0 {
		parts = append(parts, "ctrl")
	}
	if m&ModAlt != 0 {
		parts = append(parts, "alt")
	}
	if m&ModShift != 0 {
		parts = append(parts, "shift")
	}
	if m&ModWin != 0 {
		parts = append(parts, "win")
	}
	return strings.Join(parts, "+")
}

// Has reports whether every bit of o is set in m.
func (m Modifier) Has(o Modifier) bool { return m&o == o }

// ModifierState reports the live pressed state of a modifier class.
type ModifierState interface {
	IsPressed(Modifier) bool
}

// StaticState is a fixed modifier set, used by hooks that already know the
// held modifiers and by tests.
type StaticState Modifier

func (s StaticState) IsPressed(m Modifier) bool { return Modifier(s)&m != 0 }

// Spec is a parsed hotkey: exactly one main key plus an exact modifier set.
type Spec struct {
	Key  string
	Mods Modifier
}

// ParseSpec parses strings like "ctrl+alt+r", "shift+f1" or "*".
// The last "+"-separated token is the main key; every preceding token must
// name a modifier.
func ParseSpec(s string) (Spec, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return Spec{}, fmt.Errorf("empty hotkey")
	}
	parts := strings.Split(strings.ToLower(s), "+")
	for i := range parts {
		parts[i] = strings.TrimSpace(parts[i])
	}
	key := parts[len(parts)-1]
	if key == "" {
		return Spec{}, fmt.Errorf("hotkey %q has no main key", s)
	}
	var mods Modifier
	for _, p := range parts[:len(parts)-1] {
		m, ok := modifierNames[p]
		if !ok {
			return Spec{}, fmt.Errorf("hotkey %q: unknown modifier %q", s, p)
		}
		mods |= m
	}
	return Spec{Key: key, Mods: mods}, nil
}

func (s Spec) String() string {
	if s.Mods == 0 {
		return s.Key
	}
	return s.Mods.String() + "+" + s.Key
}

// Match reports whether a key press satisfies the spec. The main key is
// compared case-insensitively and each modifier class must be held exactly
// when the spec requires it.
func (s Spec) Match(key string, state ModifierState) bool {
	if s.Key == "" || !strings.EqualFold(strings.TrimSpace(key), s.Key) {
		return false
	}
	for _, m := range AllModifiers {
		if state.IsPressed(m) != s.Mods.Has(m) {
			return false
		}
	}
	return true
}

// Matches parses spec and matches the key press against it. An empty or
// malformed spec never matches.
func Matches(key, spec string, state ModifierState) bool {
	s, err := ParseSpec(spec)
	if err != nil {
		return false
	}
	return s.Match(key, state)
}
