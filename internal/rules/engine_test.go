package rules

import (
	"bytes"
	"errors"
	"path/filepath"
	"testing"

	"example.com/biosgate/internal/common"
	"example.com/biosgate/internal/image"
)

func freqImage() *image.Image {
	return &image.Image{Data: []byte{0xFF, 0x59, 0x00, 0x5A, 0x00, 0x5B, 0x00, 0xFF}}
}

func spdTestImage(lock byte) *image.Image {
	data := []byte{0x23, 0x11, 0x13, 0x0E, 0x00, 0x00, 0x00, 0x00, 0x00, 0x00, 0x00, 0x00, lock}
	return &image.Image{Data: data}
}

func TestApplyFreqRemap(t *testing.T) {
	img := freqImage()
	eng := NewEngine()

	rep, err := eng.Apply(img, FreqRemapRule(false))
	if err != nil {
		t.Fatalf("Apply failed: %v", err)
	}
	if rep.Found != 1 || rep.Patched != 1 {
		t.Fatalf("found=%d patched=%d, want 1/1", rep.Found, rep.Patched)
	}
	if img.Data[1] != 0x5F {
		t.Fatalf("byte at match = 0x%02X, want 0x5F", img.Data[1])
	}
	// Only the first signature byte changes.
	want := []byte{0xFF, 0x5F, 0x00, 0x5A, 0x00, 0x5B, 0x00, 0xFF}
	if !bytes.Equal(img.Data, want) {
		t.Fatalf("image = % X, want % X", img.Data, want)
	}
}

func TestApplyFreqRemapIdempotent(t *testing.T) {
	img := freqImage()
	eng := NewEngine()

	if _, err := eng.Apply(img, FreqRemapRule(false)); err != nil {
		t.Fatalf("first Apply failed: %v", err)
	}
	snapshot := append([]byte(nil), img.Data...)

	rep, err := eng.Apply(img, FreqRemapRule(false))
	if err != nil {
		t.Fatalf("second Apply failed: %v", err)
	}
	if rep.Patched != 0 {
		t.Fatalf("second run patched %d, want 0", rep.Patched)
	}
	if !bytes.Equal(img.Data, snapshot) {
		t.Fatal("second run changed the image")
	}
}

func TestApplyFreqRemapForceIsUnconditional(t *testing.T) {
	img := freqImage()
	img.Data[1] = 0x5F // already patched
	eng := NewEngine()

	// The patched bytes no longer contain the signature, so a forced run
	// over an already-patched image still finds nothing.
	rep, err := eng.Apply(img, FreqRemapRule(true))
	if err != nil {
		t.Fatalf("Apply failed: %v", err)
	}
	if rep.Found != 0 {
		t.Fatalf("found = %d, want 0", rep.Found)
	}

	// On a pristine image force patches without consulting the byte value.
	img = freqImage()
	rep, err = eng.Apply(img, FreqRemapRule(true))
	if err != nil {
		t.Fatalf("Apply failed: %v", err)
	}
	if rep.Patched != 1 {
		t.Fatalf("patched = %d, want 1", rep.Patched)
	}
}

func TestApplySPDUnlock(t *testing.T) {
	img := spdTestImage(0x0A)
	eng := NewEngine()

	rep, err := eng.Apply(img, SPDUnlockRule(false))
	if err != nil {
		t.Fatalf("Apply failed: %v", err)
	}
	if rep.Patched != 1 {
		t.Fatalf("patched = %d, want 1", rep.Patched)
	}
	if img.Data[0x0C] != 0x02 {
		t.Fatalf("lock byte = 0x%02X, want 0x02", img.Data[0x0C])
	}

	// A second pass sees the record unlocked and skips it.
	rep, err = eng.Apply(img, SPDUnlockRule(false))
	if err != nil {
		t.Fatalf("second Apply failed: %v", err)
	}
	if rep.Patched != 0 || rep.Skipped != 1 {
		t.Fatalf("second run patched=%d skipped=%d, want 0/1", rep.Patched, rep.Skipped)
	}
}

func TestApplySPDUnlockLeavesOtherStatesAlone(t *testing.T) {
	img := spdTestImage(0x7F)
	eng := NewEngine()

	rep, err := eng.Apply(img, SPDUnlockRule(false))
	if err != nil {
		t.Fatalf("Apply failed: %v", err)
	}
	if rep.Patched != 0 || rep.Skipped != 1 {
		t.Fatalf("patched=%d skipped=%d, want 0/1", rep.Patched, rep.Skipped)
	}
	if img.Data[0x0C] != 0x7F {
		t.Fatalf("lock byte = 0x%02X, want untouched 0x7F", img.Data[0x0C])
	}
}

func TestApplyAbsentSignatureIsNotAnError(t *testing.T) {
	img := &image.Image{Data: []byte{0x00, 0x01, 0x02, 0x03}}
	snapshot := append([]byte(nil), img.Data...)
	eng := NewEngine()

	rep, err := eng.Apply(img, FreqRemapRule(false))
	if err != nil {
		t.Fatalf("Apply failed: %v", err)
	}
	if rep.Found != 0 || rep.Patched != 0 {
		t.Fatalf("found=%d patched=%d, want 0/0", rep.Found, rep.Patched)
	}
	if !bytes.Equal(img.Data, snapshot) {
		t.Fatal("image changed on a zero-match run")
	}
}

func TestApplySkipsTruncatedTrailingRecord(t *testing.T) {
	// Full record followed by a signature with no room for the lock byte.
	data := append(spdTestImage(0x0A).Data, 0x23, 0x11, 0x13, 0x0E)
	img := &image.Image{Data: data}
	eng := NewEngine()

	rep, err := eng.Apply(img, SPDUnlockRule(false))
	if err != nil {
		t.Fatalf("Apply failed: %v", err)
	}
	if rep.Found != 2 {
		t.Fatalf("found = %d, want 2", rep.Found)
	}
	if rep.Patched != 1 || rep.Skipped != 1 {
		t.Fatalf("patched=%d skipped=%d, want 1/1", rep.Patched, rep.Skipped)
	}
}

func TestApplyOutOfBoundsSpanCountsErrorAndContinues(t *testing.T) {
	// The rule writes one byte before each match, so the match at offset
	// zero computes a span outside the image while the later match fits.
	img := &image.Image{Data: []byte{0xA0, 0xA1, 0xA0, 0xA1}}
	rule := Rule{
		ID:        "oob",
		Signature: image.MustBytes("pair", []byte{0xA0, 0xA1}),
		Span:      Span{Rel: -1, Len: 1},
		Predicate: func([]byte, int) bool { return true },
		Writer: func(data []byte, off int) error {
			data[off-1] = 0xEE
			return nil
		},
	}
	eng := NewEngine()
	rep, err := eng.Apply(img, rule)
	if err != nil {
		t.Fatalf("Apply failed: %v", err)
	}
	if rep.Found != 2 {
		t.Fatalf("found = %d, want 2", rep.Found)
	}
	if rep.Errors != 1 {
		t.Fatalf("errors = %d, want 1", rep.Errors)
	}
	if rep.Patched != 1 {
		t.Fatalf("patched = %d, want 1", rep.Patched)
	}
	if img.Data[1] != 0xEE {
		t.Fatalf("byte before second match = 0x%02X, want 0xEE", img.Data[1])
	}
	if img.Data[0] != 0xA0 {
		t.Fatalf("first byte = 0x%02X, want untouched 0xA0", img.Data[0])
	}
}

func TestApplyPreservesImageLength(t *testing.T) {
	img := freqImage()
	before := img.Len()
	eng := NewEngine()
	if _, err := eng.ApplyPack(img, BuiltinPack(false)); err != nil {
		t.Fatalf("ApplyPack failed: %v", err)
	}
	if img.Len() != before {
		t.Fatalf("length changed: %d -> %d", before, img.Len())
	}
}

func TestApplyRejectsInvalidRule(t *testing.T) {
	eng := NewEngine()
	img := freqImage()

	_, err := eng.Apply(img, Rule{ID: "no-sig", Span: Span{Len: 1},
		Predicate: func([]byte, int) bool { return true },
		Writer:    func([]byte, int) error { return nil }})
	if !errors.Is(err, image.ErrEmptySignature) {
		t.Fatalf("err = %v, want ErrEmptySignature", err)
	}
}

func TestApplyWritesAuditEntries(t *testing.T) {
	img := freqImage()
	auditPath := filepath.Join(t.TempDir(), "audit.jsonl")

	eng := NewEngine()
	eng.SetAuditLog(common.NewPatchLog(auditPath))
	if _, err := eng.Apply(img, FreqRemapRule(false)); err != nil {
		t.Fatalf("Apply failed: %v", err)
	}

	entries, err := common.ReadPatchLog(auditPath)
	if err != nil {
		t.Fatalf("ReadPatchLog failed: %v", err)
	}
	if len(entries) != 1 {
		t.Fatalf("got %d entries, want 1", len(entries))
	}
	e := entries[0]
	if e.RuleID != "freq-remap" {
		t.Fatalf("ruleId = %q", e.RuleID)
	}
	if e.BeforeHex != "59" || e.AfterHex != "5f" {
		t.Fatalf("before/after = %q/%q, want 59/5f", e.BeforeHex, e.AfterHex)
	}
	if e.Offset != 1 {
		t.Fatalf("offset = %d, want 1", e.Offset)
	}
}
