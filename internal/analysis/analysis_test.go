package analysis

import (
	"encoding/binary"
	"testing"

	"example.com/biosgate/internal/image"
)

func wideBytes(s string) []byte {
	out := make([]byte, 0, len(s)*2)
	for _, b := range []byte(s) {
		out = append(out, b, 0x00)
	}
	return out
}

func buildTestImage() []byte {
	var data []byte
	data = append(data, []byte("some padding")...)
	data = append(data, []byte("TDP")...) // narrow keyword
	data = append(data, 0x00)
	data = append(data, wideBytes("Memory Clock Control")...) // wide keyword + menu string
	data = append(data, 0xFF, 0xFF)
	// Locked SPD record.
	data = append(data, 0x23, 0x11, 0x13, 0x0E, 0xAD, 0x01, 0x00, 0x00, 0x00, 0x00, 0x00, 0x00, 0x0A)
	// Frequency table with terminator.
	data = append(data, 0x59, 0x00, 0x5A, 0x00, 0x5B, 0x00, 0xFF, 0xFF)
	// 15 W power limit in mW, little-endian.
	var power [4]byte
	binary.LittleEndian.PutUint32(power[:], 15000)
	data = append(data, power[:]...)
	return data
}

func TestAnalyzeFindsAllCategories(t *testing.T) {
	img := &image.Image{Path: "test.bin", Data: buildTestImage()}
	rep, err := Analyze(img, DefaultConfig(), nil)
	if err != nil {
		t.Fatalf("Analyze failed: %v", err)
	}

	for _, cat := range []string{"keyword", "spd", "freq-table", "power", "menu-string"} {
		if rep.Counts[cat] == 0 {
			t.Fatalf("no findings in category %q; counts = %v", cat, rep.Counts)
		}
	}
	if rep.LockedRecords != 1 {
		t.Fatalf("lockedRecords = %d, want 1", rep.LockedRecords)
	}
	if rep.Sha256 == "" {
		t.Fatal("report missing input digest")
	}
	if rep.SizeBytes != int64(len(img.Data)) {
		t.Fatalf("sizeBytes = %d, want %d", rep.SizeBytes, len(img.Data))
	}
}

func TestAnalyzeEmptyImageYieldsNoFindings(t *testing.T) {
	img := &image.Image{Path: "empty.bin", Data: []byte{0x00, 0x00, 0x00, 0x00}}
	rep, err := Analyze(img, DefaultConfig(), nil)
	if err != nil {
		t.Fatalf("Analyze failed: %v", err)
	}
	if len(rep.Findings) != 0 {
		t.Fatalf("got %d findings, want 0: %+v", len(rep.Findings), rep.Findings)
	}
}

func TestDecodeFreqValuesStopsAtTerminator(t *testing.T) {
	data := []byte{0x59, 0x00, 0x5A, 0x00, 0xFF, 0xFF, 0x5B, 0x00}
	values := decodeFreqValues(data, 0, len(data))
	if len(values) != 2 {
		t.Fatalf("got %d values, want 2: %v", len(values), values)
	}
	if values[0] != 0x59 || values[1] != 0x5A {
		t.Fatalf("values = %v", values)
	}
}

func TestScanWideStringsRespectsHitCap(t *testing.T) {
	var data []byte
	for i := 0; i < 10; i++ {
		data = append(data, wideBytes("GPU Clock Setting")...)
		data = append(data, 0xFF, 0xFF)
	}
	cfg := DefaultConfig()
	cfg.MaxStringHits = 3
	rep := &Report{Counts: make(map[string]int)}
	scanWideStrings(data, cfg, rep, nil)
	if rep.Counts["menu-string"] != 3 {
		t.Fatalf("menu-string count = %d, want 3", rep.Counts["menu-string"])
	}
}
