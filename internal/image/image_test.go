package image

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"
)

func TestLoadAndSavePreserveBytes(t *testing.T) {
	dir := t.TempDir()
	in := filepath.Join(dir, "bios_stock.bin")
	payload := []byte{0x59, 0x00, 0x5A, 0x00, 0x5B, 0x00, 0xFF}
	if err := os.WriteFile(in, payload, 0o644); err != nil {
		t.Fatalf("WriteFile failed: %v", err)
	}

	img, err := Load(in)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if img.Len() != len(payload) {
		t.Fatalf("Len = %d, want %d", img.Len(), len(payload))
	}

	out := filepath.Join(dir, "bios_modded.bin")
	if err := img.Save(out); err != nil {
		t.Fatalf("Save failed: %v", err)
	}
	saved, err := os.ReadFile(out)
	if err != nil {
		t.Fatalf("ReadFile failed: %v", err)
	}
	if !bytes.Equal(saved, payload) {
		t.Fatalf("saved bytes differ: % X vs % X", saved, payload)
	}
}

func TestSaveLeavesNoTempFileBehind(t *testing.T) {
	dir := t.TempDir()
	img := &Image{Data: []byte{0x01, 0x02}}
	out := filepath.Join(dir, "out.fd")
	if err := img.Save(out); err != nil {
		t.Fatalf("Save failed: %v", err)
	}
	entries, err := os.ReadDir(dir)
	if err != nil {
		t.Fatalf("ReadDir failed: %v", err)
	}
	if len(entries) != 1 || entries[0].Name() != "out.fd" {
		names := make([]string, 0, len(entries))
		for _, e := range entries {
			names = append(names, e.Name())
		}
		t.Fatalf("directory contents = %v, want [out.fd]", names)
	}
}
