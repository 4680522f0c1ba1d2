package report

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strings"

	qrcode "github.com/skip2/go-qrcode"
)

// DigestQR encodes a SHA-256 image digest as a QR code PNG so a flashed
// artifact can be checked against the report with a phone camera. Only
// full sha256 hex digests are accepted; anything else is a caller bug.
// The digest is uppercased first, since QR alphanumeric mode knows A-F
// but not a-f and the smaller symbol scans better when printed.
func DigestQR(digest string, size int) ([]byte, error) {
	normalized := strings.ToUpper(strings.TrimSpace(digest))
	raw, err := hex.DecodeString(strings.ToLower(normalized))
	if err != nil || len(raw) != sha256.Size {
		return nil, fmt.Errorf("not a sha256 digest: %q", digest)
	}
	if size <= 0 {
		size = 128
	}
	return qrcode.Encode(normalized, qrcode.Medium, size)
}
