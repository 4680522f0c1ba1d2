package image

import (
	"bytes"
	"unicode/utf16"
	"unicode/utf8"
)

// FindAll returns every occurrence of sig in data, in offset order.
// Matches may overlap: the search resumes at offset+1, not at the end of
// the previous match, because firmware tables place one signature inside
// the trailing bytes of another (repeating frequency-table entries rely
// on this). A match ending exactly at len(data) is valid.
func FindAll(data []byte, sig Signature) ([]Match, error) {
	if len(sig.Pattern) == 0 {
		return nil, ErrEmptySignature
	}
	var matches []Match
	if len(sig.Pattern) > len(data) {
		return matches, nil
	}
	off := 0
	for {
		i := bytes.Index(data[off:], sig.Pattern)
		if i < 0 {
			return matches, nil
		}
		at := off + i
		matches = append(matches, Match{Offset: at, Length: len(sig.Pattern), Encoding: sig.Encoding})
		off = at + 1
		if off > len(data)-len(sig.Pattern) {
			return matches, nil
		}
	}
}

// MatchContext pairs a match with the surrounding bytes, clamped to the
// image bounds. Window is a view into the scanned buffer, valid only as
// long as the buffer itself; it is display/audit material and carries no
// semantic weight.
type MatchContext struct {
	Match
	Start  int
	Window []byte
}

// FindAllContext runs FindAll and attaches a clamped context window of
// radius bytes on each side of every match.
func FindAllContext(data []byte, sig Signature, radius int) ([]MatchContext, error) {
	matches, err := FindAll(data, sig)
	if err != nil {
		return nil, err
	}
	if radius < 0 {
		radius = 0
	}
	out := make([]MatchContext, 0, len(matches))
	for _, m := range matches {
		start := m.Offset - radius
		if start < 0 {
			start = 0
		}
		end := m.End() + radius
		if end > len(data) {
			end = len(data)
		}
		out = append(out, MatchContext{Match: m, Start: start, Window: data[start:end]})
	}
	return out, nil
}

// StringRun is one extracted text run.
type StringRun struct {
	Offset   int
	Text     string
	Encoding Encoding
}

func printable(b byte) bool { return b >= 0x20 && b <= 0x7e }

// Strings extracts every maximal run of printable bytes of length at
// least minLen.
func Strings(data []byte, minLen int) []StringRun {
	if minLen < 1 {
		minLen = 1
	}
	var runs []StringRun
	start := -1
	for i := 0; i <= len(data); i++ {
		if i < len(data) && printable(data[i]) {
			if start < 0 {
				start = i
			}
			continue
		}
		if start >= 0 && i-start >= minLen {
			runs = append(runs, StringRun{Offset: start, Text: string(data[start:i]), Encoding: EncNarrow})
		}
		start = -1
	}
	return runs
}

// WideStrings extracts every maximal run of (printable byte, zero byte)
// pairs of length at least minLen characters, decoded as UCS-2LE. Runs
// that do not decode to valid text are skipped; the scan continues.
func WideStrings(data []byte, minLen int) []StringRun {
	if minLen < 1 {
		minLen = 1
	}
	var runs []StringRun
	i := 0
	for i+1 < len(data) {
		if !(printable(data[i]) && data[i+1] == 0x00) {
			i++
			continue
		}
		start := i
		for i+1 < len(data) && printable(data[i]) && data[i+1] == 0x00 {
			i += 2
		}
		chars := (i - start) / 2
		if chars < minLen {
			continue
		}
		if text, ok := decodeWide(data[start:i]); ok {
			runs = append(runs, StringRun{Offset: start, Text: text, Encoding: EncWide})
		}
	}
	return runs
}

func decodeWide(raw []byte) (string, bool) {
	units := make([]uint16, 0, len(raw)/2)
	for i := 0; i+1 < len(raw); i += 2 {
		units = append(units, uint16(raw[i])|uint16(raw[i+1])<<8)
	}
	text := string(utf16.Decode(units))
	if !utf8.ValidString(text) {
		return "", false
	}
	return text, true
}
