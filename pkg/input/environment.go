package input

import (
	"runtime"

	"github.com/offlinefirst/tinymacro/pkg/permissions"
)

// Environment summarises input backend support on this host.
type Environment struct {
	Provider   string
	Available  bool
	Permission string
	Message    string
	Guidance   string
}

const (
	providerQuartz    = "quartz_event_tap"
	providerSynthetic = "synthetic"
)

// DetectEnvironment reports whether the real Quartz backend can be used.
func DetectEnvironment(lookup permissions.LookupEnvFunc) Environment {
	accessibility := permissions.ProbeAccessibility(lookup)
	env := Environment{
		Provider:   providerSynthetic,
		Permission: accessibility.StatusString(),
		Message:    accessibility.Message,
		Guidance:   accessibility.Guidance,
		Available:  true,
	}

	if runtime.GOOS == "darwin" {
		env.Provider = providerQuartz
		env.Available = accessibility.Status != permissions.StatusDenied
		if !env.Available && env.Message == "" {
			env.Message = "accessibility permission missing"
		}
	} else {
		env.Permission = "not_applicable"
		env.Message = "synthetic input source; playback is logged, not injected"
	}

	if !env.Available {
		env.Provider = providerSynthetic
	}
	return env
}
