// Package rules implements predicate-gated byte patching of firmware
// images driven by signature rules.
package rules

import (
	"encoding/hex"
	"errors"
	"fmt"
	"time"

	"example.com/biosgate/internal/common"
	"example.com/biosgate/internal/image"
)

// Span is the byte range, relative to a signature match, that a rule's
// writer may touch. The engine bounds-checks the span against the image
// before invoking the writer and uses it to capture before/after bytes
// for the audit log.
type Span struct {
	Rel int
	Len int
}

// Rule is the unit of conditional byte mutation: a signature to locate
// occurrences, a predicate deciding whether a given occurrence should be
// patched, and a writer applying the change in place. Rules are stateless
// and reusable across runs.
//
// The predicate must check the current byte value rather than return true
// unconditionally if the rule is to be idempotent; unconditional rules
// exist only behind the pack's force flag.
type Rule struct {
	ID        string
	Name      string
	Effect    string
	Signature image.Signature
	Guard     int // minimum bytes required after the match offset; 0 = span end
	Span      Span
	Predicate func(data []byte, off int) bool
	Writer    func(data []byte, off int) error
}

func (r Rule) validate() error {
	if r.ID == "" {
		return errors.New("rule missing id")
	}
	if len(r.Signature.Pattern) == 0 {
		return fmt.Errorf("rule %s: %w", r.ID, image.ErrEmptySignature)
	}
	if r.Predicate == nil {
		return fmt.Errorf("rule %s: missing predicate", r.ID)
	}
	if r.Writer == nil {
		return fmt.Errorf("rule %s: missing writer", r.ID)
	}
	if r.Span.Len <= 0 {
		return fmt.Errorf("rule %s: empty write span", r.ID)
	}
	return nil
}

// guardLen returns how many bytes past the match offset must exist for
// the occurrence to be considered at all.
func (r Rule) guardLen() int {
	g := r.Span.Rel + r.Span.Len
	if len(r.Signature.Pattern) > g {
		g = len(r.Signature.Pattern)
	}
	if r.Guard > g {
		g = r.Guard
	}
	return g
}

// ReportEntry describes one applied patch.
type ReportEntry struct {
	Offset      int64  `json:"offset"`
	Description string `json:"description"`
	BeforeHex   string `json:"beforeHex"`
	AfterHex    string `json:"afterHex"`
}

// PatchReport accumulates the outcome of applying one rule. It is
// read-only after Apply returns.
type PatchReport struct {
	RuleID  string        `json:"ruleId"`
	Name    string        `json:"name,omitempty"`
	Found   int           `json:"found"`
	Patched int           `json:"patched"`
	Skipped int           `json:"skipped"`
	Errors  int           `json:"errors"`
	Entries []ReportEntry `json:"entries,omitempty"`
}

// Engine applies rules to a mutable image, one rule at a time in caller
// order. The image must have a single writer for the duration of a run.
type Engine struct {
	audit   *common.PatchLog
	metrics *common.Metrics
}

func NewEngine() *Engine {
	return &Engine{}
}

// SetAuditLog wires a JSONL audit log; every applied patch appends a
// before/after entry.
func (e *Engine) SetAuditLog(log *common.PatchLog) { e.audit = log }

// SetMetrics wires throughput counters.
func (e *Engine) SetMetrics(m *common.Metrics) { e.metrics = m }

// Apply locates every occurrence of the rule's signature (overlapping
// scan) and conditionally rewrites bytes at each one. The buffer is
// scanned once; writes never trigger a re-scan, so a rule whose search
// pattern differs from its replacement cannot invalidate later matches.
//
// Zero matches is not an error: the report carries a zero count and the
// caller decides how loudly to say "pattern absent". An out-of-bounds
// computed write is a per-match error: logged, counted, and the run
// continues with the remaining matches.
func (e *Engine) Apply(img *image.Image, rule Rule) (PatchReport, error) {
	rep := PatchReport{RuleID: rule.ID, Name: rule.Name}
	if err := rule.validate(); err != nil {
		return rep, err
	}
	if img == nil {
		return rep, errors.New("nil image")
	}
	data := img.Data
	matches, err := image.FindAll(data, rule.Signature)
	if err != nil {
		return rep, err
	}
	if e.metrics != nil {
		e.metrics.AddScan(int64(len(data)))
		e.metrics.AddMatches(len(matches))
	}
	guard := rule.guardLen()
	for _, m := range matches {
		rep.Found++
		if m.Offset+guard > len(data) {
			// Partial trailing occurrence; cannot hold the full record.
			rep.Skipped++
			continue
		}
		lo := m.Offset + rule.Span.Rel
		hi := lo + rule.Span.Len
		if lo < 0 || hi > len(data) {
			common.Logf("rule %s: write span [%d,%d) out of bounds at match 0x%08X", rule.ID, lo, hi, m.Offset)
			rep.Errors++
			continue
		}
		if !rule.Predicate(data, m.Offset) {
			rep.Skipped++
			continue
		}
		before := make([]byte, rule.Span.Len)
		copy(before, data[lo:hi])
		if err := rule.Writer(data, m.Offset); err != nil {
			common.Logf("rule %s: write at 0x%08X failed: %v", rule.ID, m.Offset, err)
			rep.Errors++
			continue
		}
		after := make([]byte, rule.Span.Len)
		copy(after, data[lo:hi])
		entry := ReportEntry{
			Offset:      int64(m.Offset),
			Description: rule.Effect,
			BeforeHex:   hex.EncodeToString(before),
			AfterHex:    hex.EncodeToString(after),
		}
		rep.Entries = append(rep.Entries, entry)
		rep.Patched++
		if e.audit != nil {
			if err := e.audit.Append(common.PatchEntry{
				RuleID:    rule.ID,
				Offset:    int64(lo),
				BeforeHex: entry.BeforeHex,
				AfterHex:  entry.AfterHex,
				Note:      rule.Effect,
				Ts:        time.Now().UTC(),
			}); err != nil {
				return rep, fmt.Errorf("append audit entry: %w", err)
			}
		}
	}
	if e.metrics != nil {
		e.metrics.AddPatches(rep.Patched)
	}
	return rep, nil
}

// ApplyPack applies every rule of the pack in order. Rule application is
// serialized: rule non-interference is only guaranteed within a fixed
// ordering, so concurrent application is not offered.
func (e *Engine) ApplyPack(img *image.Image, pack Pack) ([]PatchReport, error) {
	reports := make([]PatchReport, 0, len(pack.Rules))
	for _, rule := range pack.Rules {
		rep, err := e.Apply(img, rule)
		if err != nil {
			return reports, fmt.Errorf("apply %s: %w", rule.ID, err)
		}
		reports = append(reports, rep)
	}
	return reports, nil
}
