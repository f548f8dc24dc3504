// Package permissions reports the coarse state of the macOS privacy
// permissions input capture depends on. It only observes; granting or
// revoking access is left to the user.
package permissions

import (
	"os"
	"runtime"
	"strings"
)

// Status enumerates coarse permission results for macOS-style prompts.
type Status string

const (
	// StatusUnknown indicates no explicit signal about permission state.
	StatusUnknown Status = "unknown"
	// StatusGranted signals that permission was previously granted.
	StatusGranted Status = "granted"
	// StatusDenied indicates the user has explicitly denied access.
	StatusDenied Status = "denied"
	// StatusPromptRequired means the platform will prompt at runtime.
	StatusPromptRequired Status = "prompt"
	// StatusUnavailable reports that the capability is not supported.
	StatusUnavailable Status = "unavailable"
)

// Environment variables that override probing, mostly for tests and CI.
const (
	EnvAccessibility   = "TINYMACRO_ACCESSIBILITY"
	EnvInputMonitoring = "TINYMACRO_INPUT_MONITORING"
)

// ProbeResult represents the coarse state for a permission surface.
type ProbeResult struct {
	Status   Status
	Message  string
	Guidance string
}

// LookupEnvFunc exposes environment probing for testability.
type LookupEnvFunc func(string) (string, bool)

// DefaultLookupEnv is the standard environment resolver.
func DefaultLookupEnv(key string) (string, bool) {
	return os.LookupEnv(key)
}

// ProbeAccessibility inspects environment flags for accessibility trust,
// which both the event tap and synthetic input require.
func ProbeAccessibility(lookup LookupEnvFunc) ProbeResult {
	if lookup == nil {
		lookup = DefaultLookupEnv
	}
	if value, ok := lookup(EnvAccessibility); ok {
		return interpretPermissionFlag("accessibility", value)
	}
	if runtime.GOOS == "darwin" {
		return ProbeResult{
			Status:   StatusPromptRequired,
			Message:  "accessibility trust required",
			Guidance: "System Settings > Privacy & Security > Accessibility",
		}
	}
	return ProbeResult{Status: StatusUnavailable, Message: "accessibility prompts unavailable"}
}

// ProbeInputMonitoring reports whether keyboard events can be observed.
func ProbeInputMonitoring(lookup LookupEnvFunc) ProbeResult {
	if lookup == nil {
		lookup = DefaultLookupEnv
	}
	if value, ok := lookup(EnvInputMonitoring); ok {
		return interpretPermissionFlag("input monitoring", value)
	}
	if runtime.GOOS == "darwin" {
		return ProbeResult{
			Status:   StatusPromptRequired,
			Message:  "input monitoring will prompt on first key capture",
			Guidance: "System Settings > Privacy & Security > Input Monitoring",
		}
	}
	return ProbeResult{Status: StatusUnavailable, Message: "input monitoring unsupported"}
}

func interpretPermissionFlag(name, value string) ProbeResult {
	normalised := strings.ToLower(strings.TrimSpace(value))
	switch normalised {
	case "granted", "allow", "allowed", "yes", "true":
		return ProbeResult{Status: StatusGranted, Message: name + " permission pre-authorised via env override"}
	case "denied", "no", "false", "blocked":
		return ProbeResult{Status: StatusDenied, Message: name + " permission denied via env override", Guidance: "use 'tccutil reset' or update TINYMACRO_* env to re-test"}
	case "prompt", "ask":
		return ProbeResult{Status: StatusPromptRequired, Message: name + " permission will prompt at runtime"}
	case "unavailable", "unsupported":
		return ProbeResult{Status: StatusUnavailable, Message: name + " permission unavailable on this platform"}
	default:
		return ProbeResult{Status: StatusUnknown, Message: name + " permission state unknown"}
	}
}

// StatusString returns the string form used in doctor output.
func (p ProbeResult) StatusString() string {
	if p.Status == "" {
		return string(StatusUnknown)
	}
	return string(p.Status)
}
