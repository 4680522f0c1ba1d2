// Package flash invokes the external firmware flashing utility. The rest
// of the system depends only on the success flag and captured output.
package flash

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"

	"github.com/google/shlex"
)

// DefaultCommand is the vendor updater invocation; the image path is
// appended before the trailing arguments.
const DefaultCommand = "/usr/share/jupiter_bios_updater/h2offt"

// Flasher runs a configured flashing command against an output image.
type Flasher struct {
	command string
	args    []string
}

// New parses a configured command line ("h2offt -all" style) with
// shell-like quoting. The image path is inserted after the program name.
func New(commandLine string) (*Flasher, error) {
	if commandLine == "" {
		commandLine = DefaultCommand + " -all"
	}
	parts, err := shlex.Split(commandLine)
	if err != nil {
		return nil, fmt.Errorf("parse flasher command: %w", err)
	}
	if len(parts) == 0 {
		return nil, errors.New("empty flasher command")
	}
	return &Flasher{command: parts[0], args: parts[1:]}, nil
}

// Available reports whether the flasher binary exists on this system.
func (f *Flasher) Available() bool {
	if f == nil {
		return false
	}
	if _, err := os.Stat(f.command); err == nil {
		return true
	}
	_, err := exec.LookPath(f.command)
	return err == nil
}

// Result carries the collaborator's outcome.
type Result struct {
	Success bool
	Output  string
}

// Flash invokes the utility on the image at path and captures its
// combined output. A non-zero exit is a failed flash, not a Go error;
// the error return covers start failures only.
func (f *Flasher) Flash(ctx context.Context, path string) (Result, error) {
	if f == nil {
		return Result{}, errors.New("nil flasher")
	}
	args := append([]string{path}, f.args...)
	cmd := exec.CommandContext(ctx, f.command, args...)
	var buf bytes.Buffer
	cmd.Stdout = &buf
	cmd.Stderr = &buf
	err := cmd.Run()
	res := Result{Output: buf.String()}
	var exitErr *exec.ExitError
	switch {
	case err == nil:
		res.Success = true
		return res, nil
	case errors.As(err, &exitErr):
		return res, nil
	default:
		return res, fmt.Errorf("run flasher: %w", err)
	}
}
