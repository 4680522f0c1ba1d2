package record

import (
	"testing"

	"example.com/biosgate/internal/image"
)

// spdImage builds one full timing record: signature, vendor dword inside
// the 8-byte header, lock byte at +0x0C.
func spdImage(lock byte) []byte {
	data := []byte{0x23, 0x11, 0x13, 0x0E, 0xAD, 0x01, 0x00, 0x00, 0x00, 0x00, 0x00, 0x00}
	return append(data, lock)
}

func TestScanSPDLockedRecord(t *testing.T) {
	records, dropped, err := ScanSPD(spdImage(0x0A))
	if err != nil {
		t.Fatalf("ScanSPD failed: %v", err)
	}
	if dropped != 0 {
		t.Fatalf("dropped = %d, want 0", dropped)
	}
	if len(records) != 1 {
		t.Fatalf("got %d records, want 1", len(records))
	}
	r := records[0]
	if r.Offset != 0 {
		t.Fatalf("offset = %d, want 0", r.Offset)
	}
	if r.Lock.Class != Locked {
		t.Fatalf("lock = %s, want LOCKED", r.Lock)
	}
	if r.Vendor != "ad010000" {
		t.Fatalf("vendor = %q, want ad010000", r.Vendor)
	}
}

func TestScanSPDDropsTruncatedRecord(t *testing.T) {
	// Signature present but the buffer ends before the lock byte.
	data := []byte{0x23, 0x11, 0x13, 0x0E, 0x00, 0x00}
	records, dropped, err := ScanSPD(data)
	if err != nil {
		t.Fatalf("ScanSPD failed: %v", err)
	}
	if len(records) != 0 {
		t.Fatalf("got %d records, want 0", len(records))
	}
	if dropped != 1 {
		t.Fatalf("dropped = %d, want 1", dropped)
	}
}

func TestClassifyLockTotal(t *testing.T) {
	for i := 0; i < 256; i++ {
		b := byte(i)
		state := ClassifyLock(b)
		switch b {
		case 0x0A:
			if state.Class != Locked {
				t.Fatalf("0x%02X classified %v, want Locked", b, state.Class)
			}
		case 0x02:
			if state.Class != Unlocked {
				t.Fatalf("0x%02X classified %v, want Unlocked", b, state.Class)
			}
		default:
			if state.Class != LockOther {
				t.Fatalf("0x%02X classified %v, want LockOther", b, state.Class)
			}
		}
		if state.Raw != b {
			t.Fatalf("raw = 0x%02X, want 0x%02X", state.Raw, b)
		}
	}
}

func TestLockStateStringCarriesRawByte(t *testing.T) {
	got := ClassifyLock(0x7F).String()
	if got != "OTHER(0x7F)" {
		t.Fatalf("String() = %q, want OTHER(0x7F)", got)
	}
	if s := ClassifyLock(0x0A).String(); s != "LOCKED" {
		t.Fatalf("String() = %q, want LOCKED", s)
	}
	if s := ClassifyLock(0x02).String(); s != "UNLOCKED" {
		t.Fatalf("String() = %q, want UNLOCKED", s)
	}
}

func TestInterpretRejectsUndersizedLayout(t *testing.T) {
	layout := &Layout{
		Name:      "bad",
		Signature: image.MustBytes("sig", []byte{0x01, 0x02, 0x03}),
		TotalSize: 2,
	}
	if _, _, err := Scan([]byte{0x01, 0x02, 0x03}, layout); err == nil {
		t.Fatal("expected layout validation error")
	}
}
