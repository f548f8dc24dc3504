package macro

import (
	"fmt"
	"strings"
	"unicode/utf8"
)

// Button is a mouse button.
type Button string

const (
	ButtonLeft   Button = "left"
	ButtonRight  Button = "right"
	ButtonMiddle Button = "middle"
)

// ParseButton validates a serialized button name.
func ParseButton(s string) (Button, error) {
	switch Button(strings.ToLower(strings.TrimSpace(s))) {
	case ButtonLeft:
		return ButtonLeft, nil
	case ButtonRight:
		return ButtonRight, nil
	case ButtonMiddle:
		return ButtonMiddle, nil
	default:
		return "", fmt.Errorf("unknown mouse button %q", s)
	}
}

const (
	charPrefix = "char:"
	keyPrefix  = "key:"
)

// KeySymbol identifies a keyboard key. Exactly one of Char or Name is set:
// Char for keys that produce a literal character, Name for named keys such
// as "space", "shift" or "f5". The two never compare equal, so the
// character '5' and the named key "f5" stay distinct through serialization.
type KeySymbol struct {
	Char rune
	Name string
}

// Char returns the symbol for a literal character.
func Char(r rune) KeySymbol {
	return KeySymbol{Char: r}
}

// Named returns the symbol for a named key. Names are lower-cased.
func Named(name string) KeySymbol {
	return KeySymbol{Name: strings.ToLower(strings.TrimSpace(name))}
}

// IsZero reports whether the symbol is unset.
func (k KeySymbol) IsZero() bool {
	return k.Char == 0 && k.Name == ""
}

// IsChar reports whether the symbol is a literal character.
func (k KeySymbol) IsChar() bool {
	return k.Name == "" && k.Char != 0
}

// Canonical returns the form ParseKeySymbol yields for k.String(): named
// keys trimmed and lower-cased. It fails for the zero symbol, for a symbol
// with both fields set and for a Char that is not a valid rune.
func (k KeySymbol) Canonical() (KeySymbol, error) {
	switch {
	case k.Name != "" && k.Char != 0:
		return KeySymbol{}, fmt.Errorf("key symbol sets both char %q and name %q", k.Char, k.Name)
	case k.Name != "":
		named := Named(k.Name)
		if named.IsZero() {
			return KeySymbol{}, fmt.Errorf("key symbol has a blank name")
		}
		return named, nil
	case k.Char != 0:
		if !utf8.ValidRune(k.Char) {
			return KeySymbol{}, fmt.Errorf("key symbol char %U is not a valid rune", k.Char)
		}
		return k, nil
	default:
		return KeySymbol{}, fmt.Errorf("empty key symbol")
	}
}

// String renders the tagged form: "char:<c>" or "key:<name>".
func (k KeySymbol) String() string {
	if k.Name != "" {
		return keyPrefix + k.Name
	}
	if k.Char != 0 {
		return charPrefix + string(k.Char)
	}
	return ""
}

// ParseKeySymbol decodes the tagged form produced by String. The legacy
// "key:Key.<name>" spelling is accepted as well.
func ParseKeySymbol(s string) (KeySymbol, error) {
	switch {
	case strings.HasPrefix(s, charPrefix):
		body := strings.TrimPrefix(s, charPrefix)
		if utf8.RuneCountInString(body) != 1 {
			return KeySymbol{}, fmt.Errorf("key symbol %q: char must be exactly one character", s)
		}
		r, size := utf8.DecodeRuneInString(body)
		if r == utf8.RuneError && size <= 1 {
			return KeySymbol{}, fmt.Errorf("key symbol %q: invalid utf-8", s)
		}
		return Char(r), nil
	case strings.HasPrefix(s, keyPrefix):
		name := strings.TrimPrefix(s, keyPrefix)
		name = strings.TrimPrefix(name, "Key.")
		if strings.TrimSpace(name) == "" {
			return KeySymbol{}, fmt.Errorf("key symbol %q: empty key name", s)
		}
		return Named(name), nil
	default:
		return KeySymbol{}, fmt.Errorf("key symbol %q: missing char: or key: prefix", s)
	}
}

// ParseKeyLabel reads a user-facing key label such as "F8", "esc" or "a".
// Single characters become Char symbols, everything else a named key. Tagged
// forms are accepted too.
func ParseKeyLabel(label string) (KeySymbol, error) {
	trimmed := strings.TrimSpace(label)
	if trimmed == "" {
		return KeySymbol{}, fmt.Errorf("empty key label")
	}
	if strings.HasPrefix(trimmed, charPrefix) || strings.HasPrefix(trimmed, keyPrefix) {
		return ParseKeySymbol(trimmed)
	}
	if utf8.RuneCountInString(trimmed) == 1 {
		r, _ := utf8.DecodeRuneInString(trimmed)
		return Char(r), nil
	}
	name := strings.ToLower(trimmed)
	if alias, ok := keyAliases[name]; ok {
		name = alias
	}
	return Named(name), nil
}

var keyAliases = map[string]string{
	"escape":  "esc",
	"return":  "enter",
	"control": "ctrl",
	"option":  "alt",
	"command": "cmd",
	"del":     "delete",
	"pgup":    "page_up",
	"pgdn":    "page_down",
}
