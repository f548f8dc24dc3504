package cmd

import (
	"bytes"
	"strings"
	"testing"
)

func newTestRoot() (*RootCommand, *bytes.Buffer, *bytes.Buffer) {
	rc := NewRootCommand()
	var stdout, stderr bytes.Buffer
	rc.stdout = &stdout
	rc.stderr = &stderr
	return rc, &stdout, &stderr
}

func TestRootHelpListsCommands(t *testing.T) {
	rc, stdout, _ := newTestRoot()
	if err := rc.Execute(nil); err != nil {
		t.Fatalf("Execute returned error: %v", err)
	}
	for _, name := range []string{"record", "play", "inspect", "favorites", "serve", "doctor", "version"} {
		if !strings.Contains(stdout.String(), name) {
			t.Fatalf("expected %q in help output, got %q", name, stdout.String())
		}
	}
}

func TestRootUnknownCommand(t *testing.T) {
	rc, _, stderr := newTestRoot()
	if err := rc.Execute([]string{"bogus"}); err == nil {
		t.Fatalf("expected error for unknown command")
	}
	if !strings.Contains(stderr.String(), `Unknown command "bogus"`) {
		t.Fatalf("expected unknown command message, got %q", stderr.String())
	}
}

func TestVersionCommand(t *testing.T) {
	origVersion, origGOOS := runtimeVersion, runtimeGOOS
	runtimeVersion = func() string { return "go1.24.0" }
	runtimeGOOS = func() string { return "plan9" }
	defer func() { runtimeVersion, runtimeGOOS = origVersion, origGOOS }()

	rc, stdout, _ := newTestRoot()
	if err := rc.Execute([]string{"version"}); err != nil {
		t.Fatalf("Execute returned error: %v", err)
	}
	if !strings.Contains(stdout.String(), "(go1.24.0/plan9)") {
		t.Fatalf("unexpected version output %q", stdout.String())
	}

	rc, stdout, _ = newTestRoot()
	if err := rc.Execute([]string{"version", "-long"}); err != nil {
		t.Fatalf("Execute returned error: %v", err)
	}
	if !strings.Contains(stdout.String(), "commit:") {
		t.Fatalf("expected commit line, got %q", stdout.String())
	}
}

func TestRootRejectsMissingConfig(t *testing.T) {
	rc, _, _ := newTestRoot()
	if err := rc.Execute([]string{"--config", "/nonexistent/tinymacro.yaml", "doctor"}); err == nil {
		t.Fatalf("expected error for missing explicit config")
	}
}
