package control

import (
	"math"
	"strconv"
	"strings"

	"github.com/offlinefirst/tinymacro/pkg/player"
)

// PlayOptions are the user-facing playback settings.
type PlayOptions struct {
	Speed        float64 `json:"speed"`
	Loops        int     `json:"loops"`
	JitterPixels int     `json:"jitter"`
}

// DefaultPlayOptions plays once at recorded speed without jitter.
func DefaultPlayOptions() PlayOptions {
	return PlayOptions{Speed: 1, Loops: 1}
}

// Normalize clamps unusable values: speed to 1, loops to at least 1 and
// jitter into [0, player.MaxJitterPixels].
func (o PlayOptions) Normalize() PlayOptions {
	if o.Speed <= 0 || math.IsNaN(o.Speed) || math.IsInf(o.Speed, 0) {
		o.Speed = 1
	}
	if o.Loops < 1 {
		o.Loops = 1
	}
	o.JitterPixels = player.NormalizeJitter(o.JitterPixels)
	return o
}

// ParseOptions reads options typed into a form or passed on a command line.
// Blank or malformed fields fall back to their defaults.
func ParseOptions(speed, loops, jitter string) PlayOptions {
	opts := DefaultPlayOptions()
	if v, err := strconv.ParseFloat(strings.TrimSpace(speed), 64); err == nil {
		opts.Speed = v
	}
	if v, err := strconv.Atoi(strings.TrimSpace(loops)); err == nil {
		opts.Loops = v
	}
	if v, err := strconv.Atoi(strings.TrimSpace(jitter)); err == nil {
		opts.JitterPixels = v
	}
	return opts.Normalize()
}
