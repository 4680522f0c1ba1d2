package flash

import (
	"context"
	"strings"
	"testing"
)

func TestNewDefaultCommand(t *testing.T) {
	f, err := New("")
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	if f.command != DefaultCommand {
		t.Fatalf("command = %q, want %q", f.command, DefaultCommand)
	}
	if len(f.args) != 1 || f.args[0] != "-all" {
		t.Fatalf("args = %v, want [-all]", f.args)
	}
}

func TestNewParsesQuotedCommand(t *testing.T) {
	f, err := New(`"/opt/my flasher/h2offt" -all -v`)
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	if f.command != "/opt/my flasher/h2offt" {
		t.Fatalf("command = %q", f.command)
	}
	if len(f.args) != 2 {
		t.Fatalf("args = %v", f.args)
	}
}

func TestNewRejectsUnparsableCommand(t *testing.T) {
	if _, err := New(`broken "quote`); err == nil {
		t.Fatal("expected parse error")
	}
}

func TestFlashCapturesOutput(t *testing.T) {
	f, err := New("echo")
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	if !f.Available() {
		t.Skip("echo not on PATH")
	}
	res, err := f.Flash(context.Background(), "/tmp/image.fd")
	if err != nil {
		t.Fatalf("Flash failed: %v", err)
	}
	if !res.Success {
		t.Fatal("expected success")
	}
	if !strings.Contains(res.Output, "/tmp/image.fd") {
		t.Fatalf("output = %q, image path missing", res.Output)
	}
}

func TestFlashNonZeroExitIsFailureNotError(t *testing.T) {
	f, err := New("false")
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	if !f.Available() {
		t.Skip("false not on PATH")
	}
	res, err := f.Flash(context.Background(), "/tmp/image.fd")
	if err != nil {
		t.Fatalf("Flash returned error for non-zero exit: %v", err)
	}
	if res.Success {
		t.Fatal("expected failure result")
	}
}
