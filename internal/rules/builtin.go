package rules

import (
	"fmt"

	"example.com/biosgate/internal/image"
	"example.com/biosgate/internal/record"
)

// Memory frequency table entries are UCS-2 values; remapping the first
// entry from 0x59 to 0x5F moves the 3200 MHz selection to ~7000 MT/s.
const (
	freqOldValue = 0x59
	freqNewValue = 0x5F
)

// FreqSignature matches the 0x59 frequency-table sequence.
var FreqSignature = image.MustBytes("freq-table", []byte{0x59, 0x00, 0x5A, 0x00, 0x5B, 0x00})

// FreqRemapRule rewrites the first byte of each frequency-table match.
// With force unset the rule only fires while the original value is still
// present, so re-running against a patched image changes nothing. Force
// restores the original script's unconditional rewrite for bit-for-bit
// parity runs.
func FreqRemapRule(force bool) Rule {
	pred := func(data []byte, off int) bool { return data[off] == freqOldValue }
	if force {
		pred = func([]byte, int) bool { return true }
	}
	return Rule{
		ID:        "freq-remap",
		Name:      "Memory frequency table remap",
		Effect:    fmt.Sprintf("0x%02X -> 0x%02X (3200 MHz selection -> ~7000 MT/s)", freqOldValue, freqNewValue),
		Signature: FreqSignature,
		Span:      Span{Rel: 0, Len: 1},
		Predicate: pred,
		Writer: func(data []byte, off int) error {
			data[off] = freqNewValue
			return nil
		},
	}
}

// SPDUnlockRule flips the tCK lock byte of each full SPD timing record
// from locked to unlocked. Records already unlocked, or in a
// non-standard state, are left alone. Force rewrites regardless of the
// current value.
func SPDUnlockRule(force bool) Rule {
	pred := func(data []byte, off int) bool {
		return record.ClassifyLock(data[off+record.SPDLockOffset]).Class == record.Locked
	}
	if force {
		pred = func([]byte, int) bool { return true }
	}
	return Rule{
		ID:        "spd-unlock",
		Name:      "SPD tCK unlock",
		Effect:    "unlock tCK (enable frequencies above 6400 MT/s)",
		Signature: record.SPDSignature,
		Guard:     record.SPDRecordSize,
		Span:      Span{Rel: record.SPDLockOffset, Len: 1},
		Predicate: pred,
		Writer: func(data []byte, off int) error {
			data[off+record.SPDLockOffset] = 0x02
			return nil
		},
	}
}

// BuiltinPack is the compiled-in rule set matching the published memory
// overclock patch. It is constructed per call so callers own their copy;
// nothing here is package-global mutable state.
func BuiltinPack(force bool) Pack {
	return Pack{
		PackID:  "steamdeck-memoc",
		Version: "1",
		Rules:   []Rule{FreqRemapRule(force), SPDUnlockRule(force)},
	}
}
