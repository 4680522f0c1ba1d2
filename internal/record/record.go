// Package record reinterprets signature matches against fixed-layout
// structures found in firmware images.
package record

import (
	"encoding/hex"
	"fmt"

	"example.com/biosgate/internal/image"
)

// Layout describes a fixed-size record that begins at a signature match.
// Field offsets are relative to the match offset.
type Layout struct {
	Name      string
	Signature image.Signature
	TotalSize int
}

// Validate reports configuration errors before any byte is read.
func (l Layout) Validate() error {
	if len(l.Signature.Pattern) == 0 {
		return fmt.Errorf("layout %s: %w", l.Name, image.ErrEmptySignature)
	}
	if l.TotalSize < len(l.Signature.Pattern) {
		return fmt.Errorf("layout %s: total size %d smaller than signature", l.Name, l.TotalSize)
	}
	return nil
}

// Record is a match reinterpreted against a layout. Raw is a view of the
// record's bytes within the scanned image.
type Record struct {
	Layout *Layout
	Match  image.Match
	Raw    []byte
}

// Interpret reads layout.TotalSize bytes at each match. Matches too close
// to the end of the buffer for a full record are dropped silently; the
// number dropped is returned for diagnostics only.
func Interpret(data []byte, matches []image.Match, layout *Layout) (records []Record, dropped int, err error) {
	if err := layout.Validate(); err != nil {
		return nil, 0, err
	}
	for _, m := range matches {
		if m.Offset+layout.TotalSize > len(data) {
			dropped++
			continue
		}
		records = append(records, Record{
			Layout: layout,
			Match:  m,
			Raw:    data[m.Offset : m.Offset+layout.TotalSize],
		})
	}
	return records, dropped, nil
}

// Scan locates the layout's signature and interprets every full match.
func Scan(data []byte, layout *Layout) ([]Record, int, error) {
	if err := layout.Validate(); err != nil {
		return nil, 0, err
	}
	matches, err := image.FindAll(data, layout.Signature)
	if err != nil {
		return nil, 0, err
	}
	return Interpret(data, matches, layout)
}

// HexField renders width bytes at the relative offset as lowercase hex.
func (r Record) HexField(rel, width int) string {
	if rel < 0 || rel+width > len(r.Raw) {
		return ""
	}
	return hex.EncodeToString(r.Raw[rel : rel+width])
}

// Byte returns the single byte at the relative offset.
func (r Record) Byte(rel int) byte {
	return r.Raw[rel]
}
