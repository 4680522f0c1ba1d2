package record

import (
	"fmt"

	"example.com/biosgate/internal/image"
)

// LPDDR5 SPD timing record as shipped in AMD/Valve firmware: a 4-byte
// signature, an 8-byte opaque header carrying the vendor id dword, and
// the tCK lock byte at +0x0C closing the record.
const (
	SPDVendorOffset = 0x04
	SPDVendorWidth  = 4
	SPDLockOffset   = 0x0C
	SPDRecordSize   = SPDLockOffset + 1

	spdLockedValue   = 0x0A
	spdUnlockedValue = 0x02
)

// SPDSignature matches the start of an SPD timing record.
var SPDSignature = image.MustBytes("spd", []byte{0x23, 0x11, 0x13, 0x0E})

// SPDLayout returns the timing-record layout. A fresh value per caller
// keeps layouts configuration, not shared mutable state.
func SPDLayout() *Layout {
	return &Layout{Name: "spd-timing", Signature: SPDSignature, TotalSize: SPDRecordSize}
}

// LockClass is the three-way classification of the tCK lock byte.
// Firmware images can carry the field in non-standard states; those are
// surfaced as Other with the raw value, never collapsed into a boolean.
type LockClass int

const (
	LockOther LockClass = iota
	Locked
	Unlocked
)

// LockState carries the classification and the original byte losslessly.
type LockState struct {
	Class LockClass
	Raw   byte
}

func (s LockState) String() string {
	switch s.Class {
	case Locked:
		return "LOCKED"
	case Unlocked:
		return "UNLOCKED"
	default:
		return fmt.Sprintf("OTHER(0x%02X)", s.Raw)
	}
}

// ClassifyLock maps a tCK byte onto its lock state. Total over all 256
// byte values.
func ClassifyLock(b byte) LockState {
	switch b {
	case spdLockedValue:
		return LockState{Class: Locked, Raw: b}
	case spdUnlockedValue:
		return LockState{Class: Unlocked, Raw: b}
	default:
		return LockState{Class: LockOther, Raw: b}
	}
}

// SPDRecord is the decoded view of one timing record.
type SPDRecord struct {
	Offset int
	Vendor string
	Lock   LockState
}

// DecodeSPD classifies an interpreted timing record.
func DecodeSPD(r Record) SPDRecord {
	return SPDRecord{
		Offset: r.Match.Offset,
		Vendor: r.HexField(SPDVendorOffset, SPDVendorWidth),
		Lock:   ClassifyLock(r.Byte(SPDLockOffset)),
	}
}

// ScanSPD finds and decodes every full SPD timing record in data.
func ScanSPD(data []byte) ([]SPDRecord, int, error) {
	records, dropped, err := Scan(data, SPDLayout())
	if err != nil {
		return nil, dropped, err
	}
	out := make([]SPDRecord, 0, len(records))
	for _, r := range records {
		out = append(out, DecodeSPD(r))
	}
	return out, dropped, nil
}
