// Package discover locates candidate firmware files on disk. The signed
// flag is opaque metadata for the rest of the system: it only influences
// the output filename convention, never patch behaviour.
package discover

import (
	"os"
	"path/filepath"
	"sort"
	"strings"
)

// DefaultSystemDir is where the vendor updater stages signed BIOS images.
const DefaultSystemDir = "/usr/share/jupiter_bios"

// Candidate is one discovered firmware file.
type Candidate struct {
	Path   string
	Signed bool
}

// FindCandidates walks the given directories for signed images
// (*_sign.fd) and raw stock dumps (*stock*.bin). Signed images sort
// before raw ones; within a class, lexically newer names first, so the
// latest firmware version wins.
func FindCandidates(dirs []string) ([]Candidate, error) {
	var candidates []Candidate
	for _, dir := range dirs {
		entries, err := os.ReadDir(dir)
		if err != nil {
			if os.IsNotExist(err) {
				continue
			}
			return nil, err
		}
		for _, entry := range entries {
			if entry.IsDir() {
				continue
			}
			name := entry.Name()
			switch {
			case strings.HasSuffix(name, "_sign.fd"):
				candidates = append(candidates, Candidate{Path: filepath.Join(dir, name), Signed: true})
			case strings.HasSuffix(name, ".bin") && strings.Contains(strings.ToLower(name), "stock"):
				candidates = append(candidates, Candidate{Path: filepath.Join(dir, name), Signed: false})
			}
		}
	}
	sort.SliceStable(candidates, func(i, j int) bool {
		if candidates[i].Signed != candidates[j].Signed {
			return candidates[i].Signed
		}
		return filepath.Base(candidates[i].Path) > filepath.Base(candidates[j].Path)
	})
	return candidates, nil
}

// Classify reports whether an explicitly-named input counts as signed.
func Classify(path string) Candidate {
	return Candidate{Path: path, Signed: strings.HasSuffix(path, "_sign.fd")}
}

// OutputName returns the conventional output filename for a candidate.
func (c Candidate) OutputName() string {
	if c.Signed {
		return "bios_patched.fd"
	}
	return "bios_modded.bin"
}
