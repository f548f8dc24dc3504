//go:build darwin

package input

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/offlinefirst/tinymacro/pkg/macro"
)

// Virtual keycodes from HIToolbox/Events.h for keys that have a name rather
// than a character.
var namedKeycodes = map[string]uint16{
	"enter":       0x24,
	"tab":         0x30,
	"space":       0x31,
	"backspace":   0x33,
	"esc":         0x35,
	"cmd_r":       0x36,
	"cmd":         0x37,
	"shift":       0x38,
	"caps_lock":   0x39,
	"alt":         0x3A,
	"ctrl":        0x3B,
	"shift_r":     0x3C,
	"alt_r":       0x3D,
	"ctrl_r":      0x3E,
	"fn":          0x3F,
	"f17":         0x40,
	"volume_up":   0x48,
	"volume_down": 0x49,
	"volume_mute": 0x4A,
	"f18":         0x4F,
	"f19":         0x50,
	"f20":         0x5A,
	"f5":          0x60,
	"f6":          0x61,
	"f7":          0x62,
	"f3":          0x63,
	"f8":          0x64,
	"f9":          0x65,
	"f11":         0x67,
	"f13":         0x69,
	"f16":         0x6A,
	"f14":         0x6B,
	"f10":         0x6D,
	"menu":        0x6E,
	"f12":         0x6F,
	"f15":         0x71,
	"insert":      0x72,
	"home":        0x73,
	"page_up":     0x74,
	"delete":      0x75,
	"f4":          0x76,
	"end":         0x77,
	"f2":          0x78,
	"page_down":   0x79,
	"f1":          0x7A,
	"left":        0x7B,
	"right":       0x7C,
	"down":        0x7D,
	"up":          0x7E,
}

var keycodeNames = func() map[uint16]string {
	out := make(map[uint16]string, len(namedKeycodes))
	for name, code := range namedKeycodes {
		out[code] = name
	}
	return out
}()

// modifierKeycodes lists keys reported through flagsChanged rather than key
// down/up events.
var modifierKeycodes = map[uint16]bool{
	0x36: true, 0x37: true, 0x38: true, 0x39: true, 0x3A: true,
	0x3B: true, 0x3C: true, 0x3D: true, 0x3E: true, 0x3F: true,
}

const rawKeyPrefix = "vk_"

// symbolForKeycode names keys without a printable character. Unknown codes
// fall back to "vk_<code>" so they still replay on the same keyboard.
func symbolForKeycode(code uint16) macro.KeySymbol {
	if name, ok := keycodeNames[code]; ok {
		return macro.Named(name)
	}
	return macro.Named(fmt.Sprintf("%s%d", rawKeyPrefix, code))
}

// keycodeForName resolves a named key for emission.
func keycodeForName(name string) (uint16, error) {
	if code, ok := namedKeycodes[name]; ok {
		return code, nil
	}
	if strings.HasPrefix(name, rawKeyPrefix) {
		code, err := strconv.ParseUint(strings.TrimPrefix(name, rawKeyPrefix), 10, 16)
		if err == nil {
			return uint16(code), nil
		}
	}
	return 0, fmt.Errorf("%w: %q", ErrUnresolvedKey, name)
}
