package image

import (
	"encoding/hex"
	"errors"
	"fmt"
	"strings"
)

// Encoding identifies how a textual keyword was laid out in the image.
type Encoding int

const (
	// EncRaw marks a literal byte-sequence signature.
	EncRaw Encoding = iota
	// EncNarrow is one byte per character.
	EncNarrow
	// EncWide is UCS-2LE: each character followed by a zero byte.
	EncWide
)

func (e Encoding) String() string {
	switch e {
	case EncNarrow:
		return "narrow"
	case EncWide:
		return "wide"
	default:
		return "raw"
	}
}

// ErrEmptySignature is returned for zero-length patterns. An empty
// signature is a configuration error and aborts before any byte is read.
var ErrEmptySignature = errors.New("empty signature pattern")

// Signature is an immutable byte pattern used to locate candidate
// offsets. Construct via Bytes, ParseHex or Keyword; never mutate after
// construction.
type Signature struct {
	Name     string
	Pattern  []byte
	Encoding Encoding
}

// Bytes builds a literal byte-sequence signature.
func Bytes(name string, pattern []byte) (Signature, error) {
	if len(pattern) == 0 {
		return Signature{}, fmt.Errorf("%s: %w", name, ErrEmptySignature)
	}
	cp := make([]byte, len(pattern))
	copy(cp, pattern)
	return Signature{Name: name, Pattern: cp, Encoding: EncRaw}, nil
}

// MustBytes is Bytes for compiled-in patterns known to be non-empty.
func MustBytes(name string, pattern []byte) Signature {
	sig, err := Bytes(name, pattern)
	if err != nil {
		panic(err)
	}
	return sig
}

// ParseHex builds a signature from a hex string such as "23 11 13 0E".
func ParseHex(name, s string) (Signature, error) {
	cleaned := strings.Map(func(r rune) rune {
		switch r {
		case ' ', '\t', '\n':
			return -1
		}
		return r
	}, s)
	raw, err := hex.DecodeString(cleaned)
	if err != nil {
		return Signature{}, fmt.Errorf("%s: decode signature hex: %w", name, err)
	}
	return Bytes(name, raw)
}

// Keyword derives both concrete encodings of a textual keyword. Callers
// searching for a keyword must scan with both unless they deliberately
// restrict to one.
func Keyword(word string) (narrow, wide Signature, err error) {
	if word == "" {
		return Signature{}, Signature{}, ErrEmptySignature
	}
	narrow = Signature{Name: word, Pattern: []byte(word), Encoding: EncNarrow}
	buf := make([]byte, 0, len(word)*2)
	for _, b := range []byte(word) {
		buf = append(buf, b, 0x00)
	}
	wide = Signature{Name: word, Pattern: buf, Encoding: EncWide}
	return narrow, wide, nil
}

// Match is a value object recording one occurrence of a signature.
type Match struct {
	Offset   int
	Length   int
	Encoding Encoding
}

// End returns the offset one past the final matched byte.
func (m Match) End() int { return m.Offset + m.Length }
