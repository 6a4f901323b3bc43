package tool

import "context"

// ShellBackend runs a program and collects its output.
type ShellBackend interface {
	// Execute runs command with args in workDir. A non-zero exit is reported
	// as an *exec.ExitError alongside whatever output was produced.
	Execute(ctx context.Context, command string, args []string, workDir string) (stdout, stderr string, err error)
	// Name returns the backend identifier (e.g. "local").
	Name() string
}
