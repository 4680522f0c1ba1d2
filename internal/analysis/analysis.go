// Package analysis sweeps a firmware image for the vendor structures the
// patch rules target and produces a categorized findings report.
package analysis

import (
	"encoding/binary"
	"fmt"
	"strings"
	"time"

	"example.com/biosgate/internal/common"
	"example.com/biosgate/internal/image"
	"example.com/biosgate/internal/record"
)

// Finding is one reportable observation: a pure projection of scanner and
// interpreter output, suitable for console or log rendering.
type Finding struct {
	Category    string `json:"category"`
	Offset      int64  `json:"offset"`
	Description string `json:"description"`
}

// Report is the run's accumulated findings plus per-category counts.
type Report struct {
	File      string         `json:"file"`
	SizeBytes int64          `json:"sizeBytes"`
	Sha256    string         `json:"sha256"`
	CreatedAt time.Time      `json:"createdAt"`
	Findings  []Finding      `json:"findings"`
	Counts    map[string]int `json:"counts"`
	// DroppedRecords counts matches too close to end-of-buffer for a
	// full structured record. Diagnostic only.
	DroppedRecords int `json:"droppedRecords"`
	LockedRecords  int `json:"lockedRecords"`
}

func (r *Report) add(f Finding) {
	r.Findings = append(r.Findings, f)
	r.Counts[f.Category]++
}

// Config selects what the analyzer looks for. Construct with
// DefaultConfig and override; a zero Config scans nothing.
type Config struct {
	Keywords      []string
	WideStringMin int
	StringMin     int
	MaxStringHits int
	PowerLimitsMW []uint32
}

// DefaultConfig carries the keyword table and thresholds of the published
// research scans.
func DefaultConfig() Config {
	return Config{
		Keywords: []string{
			"Power Limit", "TDP", "PPT", "STAPM", "cTDP",
			"CPU Boost", "Core Voltage", "GPU Clock", "SoC Voltage",
			"Precision Boost", "Curve Optimizer",
			"Memory Clock", "VDDQ", "VDDIO", "Infinity Fabric",
			"FCLK", "UCLK", "MCLK", "Memory Training",
			"SMU", "AGESA", "PSP", "Overclock",
			"Fan", "Thermal", "Throttle",
			"Jupiter", "Aerith", "Valve", "Steam",
		},
		WideStringMin: 8,
		StringMin:     6,
		MaxStringHits: 50,
		PowerLimitsMW: []uint32{4000, 8000, 12000, 15000, 18000, 25000, 30000},
	}
}

var freqTableSignatures = []image.Signature{
	image.MustBytes("freq-table-51", []byte{0x51, 0x00, 0x52, 0x00, 0x53, 0x00}),
	image.MustBytes("freq-table-59", []byte{0x59, 0x00, 0x5A, 0x00, 0x5B, 0x00}),
}

// Analyze runs every sweep over the image. Scans are sequential: each
// signature pass is a full walk of the read-only buffer and the findings
// order is deterministic.
func Analyze(img *image.Image, cfg Config, metrics *common.Metrics) (*Report, error) {
	rep := &Report{
		File:      img.Path,
		SizeBytes: int64(img.Len()),
		Sha256:    common.Sha256OfBytes(img.Data),
		CreatedAt: time.Now().UTC(),
		Counts:    make(map[string]int),
	}
	if metrics != nil {
		// Each sweep is one full pass over the buffer.
		passes := len(cfg.Keywords)*2 + 1 + len(freqTableSignatures) + len(cfg.PowerLimitsMW) + 1
		metrics.SetTotalBytes(int64(passes) * rep.SizeBytes)
	}
	if err := scanKeywords(img.Data, cfg, rep, metrics); err != nil {
		return nil, err
	}
	if err := scanSPD(img.Data, rep, metrics); err != nil {
		return nil, err
	}
	if err := scanFreqTables(img.Data, rep, metrics); err != nil {
		return nil, err
	}
	if err := scanPowerLimits(img.Data, cfg, rep, metrics); err != nil {
		return nil, err
	}
	scanWideStrings(img.Data, cfg, rep, metrics)
	return rep, nil
}

// scanKeywords searches every keyword in both encodings. A keyword scan
// that finds nothing produces no finding; absence is not an error.
func scanKeywords(data []byte, cfg Config, rep *Report, metrics *common.Metrics) error {
	for _, kw := range cfg.Keywords {
		narrow, wide, err := image.Keyword(kw)
		if err != nil {
			return fmt.Errorf("keyword %q: %w", kw, err)
		}
		for _, sig := range []image.Signature{narrow, wide} {
			matches, err := image.FindAll(data, sig)
			if err != nil {
				return err
			}
			if metrics != nil {
				metrics.AddScan(int64(len(data)))
				metrics.AddMatches(len(matches))
			}
			for _, m := range matches {
				rep.add(Finding{
					Category:    "keyword",
					Offset:      int64(m.Offset),
					Description: fmt.Sprintf("%q (%s)", kw, m.Encoding),
				})
			}
		}
	}
	return nil
}

func scanSPD(data []byte, rep *Report, metrics *common.Metrics) error {
	records, dropped, err := record.ScanSPD(data)
	if err != nil {
		return err
	}
	if metrics != nil {
		metrics.AddScan(int64(len(data)))
		metrics.AddMatches(len(records))
	}
	rep.DroppedRecords += dropped
	for _, r := range records {
		if r.Lock.Class == record.Locked {
			rep.LockedRecords++
		}
		rep.add(Finding{
			Category:    "spd",
			Offset:      int64(r.Offset),
			Description: fmt.Sprintf("tCK=%s vendor=%s", r.Lock, r.Vendor),
		})
	}
	return nil
}

// scanFreqTables decodes each frequency table as little-endian uint16
// values up to the 0xFFFF terminator.
func scanFreqTables(data []byte, rep *Report, metrics *common.Metrics) error {
	for _, sig := range freqTableSignatures {
		matches, err := image.FindAll(data, sig)
		if err != nil {
			return err
		}
		if metrics != nil {
			metrics.AddScan(int64(len(data)))
			metrics.AddMatches(len(matches))
		}
		for _, m := range matches {
			values := decodeFreqValues(data, m.Offset, 48)
			rep.add(Finding{
				Category:    "freq-table",
				Offset:      int64(m.Offset),
				Description: fmt.Sprintf("%s values=%v", sig.Name, values),
			})
		}
	}
	return nil
}

func decodeFreqValues(data []byte, off, span int) []uint16 {
	end := off + span
	if end > len(data) {
		end = len(data)
	}
	var values []uint16
	for i := off; i+1 < end; i += 2 {
		v := binary.LittleEndian.Uint16(data[i : i+2])
		if v == 0xFFFF {
			break
		}
		values = append(values, v)
	}
	return values
}

func scanPowerLimits(data []byte, cfg Config, rep *Report, metrics *common.Metrics) error {
	for _, mw := range cfg.PowerLimitsMW {
		var raw [4]byte
		binary.LittleEndian.PutUint32(raw[:], mw)
		sig, err := image.Bytes(fmt.Sprintf("power-%dmw", mw), raw[:])
		if err != nil {
			return err
		}
		matches, err := image.FindAll(data, sig)
		if err != nil {
			return err
		}
		if metrics != nil {
			metrics.AddScan(int64(len(data)))
			metrics.AddMatches(len(matches))
		}
		for _, m := range matches {
			rep.add(Finding{
				Category:    "power",
				Offset:      int64(m.Offset),
				Description: fmt.Sprintf("%dW candidate (%d mW)", mw/1000, mw),
			})
		}
	}
	return nil
}

// scanWideStrings surfaces menu-text candidates: wide string runs whose
// content mentions one of the keyword stems.
func scanWideStrings(data []byte, cfg Config, rep *Report, metrics *common.Metrics) {
	runs := image.WideStrings(data, cfg.WideStringMin)
	if metrics != nil {
		metrics.AddScan(int64(len(data)))
		metrics.AddMatches(len(runs))
	}
	stems := []string{
		"clock", "power", "volt", "freq", "memory", "cpu", "gpu",
		"fan", "thermal", "boost", "limit", "tdp", "smu", "overclock",
		"mhz", "speed", "performance", "turbo",
	}
	hits := 0
	for _, run := range runs {
		if cfg.MaxStringHits > 0 && hits >= cfg.MaxStringHits {
			break
		}
		lower := strings.ToLower(run.Text)
		for _, stem := range stems {
			if strings.Contains(lower, stem) {
				rep.add(Finding{
					Category:    "menu-string",
					Offset:      int64(run.Offset),
					Description: run.Text,
				})
				hits++
				break
			}
		}
	}
}
