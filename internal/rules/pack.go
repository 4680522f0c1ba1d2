package rules

import (
	"bytes"
	"encoding/hex"
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"

	"example.com/biosgate/internal/image"
)

// Pack is an ordered set of rules constructed once at startup. The order
// is the application order.
type Pack struct {
	PackID  string
	Version string
	Rules   []Rule
}

// RuleSpec is the YAML form of a rule. Byte values are hex strings
// ("59 00 5A 00 5B 00" or "59005a005b00").
type RuleSpec struct {
	ID        string    `yaml:"id"`
	Name      string    `yaml:"name,omitempty"`
	Effect    string    `yaml:"effect,omitempty"`
	Signature string    `yaml:"signature"`
	Guard     int       `yaml:"guard,omitempty"`
	Match     *ByteSpec `yaml:"match,omitempty"`
	Write     ByteSpec  `yaml:"write"`
	Force     bool      `yaml:"force,omitempty"`
}

// ByteSpec addresses bytes relative to a signature match.
type ByteSpec struct {
	Rel   int    `yaml:"rel"`
	Value string `yaml:"value"`
}

func (b ByteSpec) decode() ([]byte, error) {
	cleaned := strings.Map(func(r rune) rune {
		switch r {
		case ' ', '\t':
			return -1
		}
		return r
	}, b.Value)
	raw, err := hex.DecodeString(cleaned)
	if err != nil {
		return nil, fmt.Errorf("decode value %q: %w", b.Value, err)
	}
	if len(raw) == 0 {
		return nil, fmt.Errorf("empty value")
	}
	return raw, nil
}

// PackSpec is the YAML document format for a rule pack.
type PackSpec struct {
	PackID  string     `yaml:"packId"`
	Version string     `yaml:"version,omitempty"`
	Rules   []RuleSpec `yaml:"rules"`
}

// Compile turns the spec into an executable rule. Unless force is set the
// compiled predicate requires the expected bytes to still be present,
// which is what makes a second application of the rule a no-op.
func (rs RuleSpec) Compile() (Rule, error) {
	sig, err := image.ParseHex(rs.ID, rs.Signature)
	if err != nil {
		return Rule{}, err
	}
	writeVal, err := rs.Write.decode()
	if err != nil {
		return Rule{}, fmt.Errorf("rule %s: write: %w", rs.ID, err)
	}
	writeRel := rs.Write.Rel

	var expect []byte
	expectRel := 0
	if rs.Match != nil {
		expect, err = rs.Match.decode()
		if err != nil {
			return Rule{}, fmt.Errorf("rule %s: match: %w", rs.ID, err)
		}
		expectRel = rs.Match.Rel
	}
	if expect == nil && !rs.Force {
		return Rule{}, fmt.Errorf("rule %s: no match condition; unconditional rules need force: true", rs.ID)
	}

	rule := Rule{
		ID:        rs.ID,
		Name:      rs.Name,
		Effect:    rs.Effect,
		Signature: sig,
		Guard:     rs.Guard,
		Span:      Span{Rel: writeRel, Len: len(writeVal)},
		Writer: func(data []byte, off int) error {
			lo := off + writeRel
			if lo < 0 || lo+len(writeVal) > len(data) {
				return fmt.Errorf("write [%d,%d) outside image of %d bytes", lo, lo+len(writeVal), len(data))
			}
			copy(data[lo:], writeVal)
			return nil
		},
	}
	if rs.Force || expect == nil {
		rule.Predicate = func([]byte, int) bool { return true }
	} else {
		rule.Predicate = func(data []byte, off int) bool {
			lo := off + expectRel
			if lo < 0 || lo+len(expect) > len(data) {
				return false
			}
			return bytes.Equal(data[lo:lo+len(expect)], expect)
		}
	}
	if rule.Effect == "" {
		rule.Effect = fmt.Sprintf("%s -> %s at +0x%X", hexPreview(expect), hex.EncodeToString(writeVal), writeRel)
	}
	return rule, nil
}

func hexPreview(b []byte) string {
	if len(b) == 0 {
		return "*"
	}
	return hex.EncodeToString(b)
}

// CompilePack compiles every rule spec, failing fast on the first
// configuration error.
func CompilePack(spec PackSpec) (Pack, error) {
	pack := Pack{PackID: spec.PackID, Version: spec.Version}
	if len(spec.Rules) == 0 {
		return pack, fmt.Errorf("pack %s contains no rules", spec.PackID)
	}
	for _, rs := range spec.Rules {
		rule, err := rs.Compile()
		if err != nil {
			return pack, err
		}
		if err := rule.validate(); err != nil {
			return pack, err
		}
		pack.Rules = append(pack.Rules, rule)
	}
	return pack, nil
}

// LoadPack reads and compiles a YAML rule pack file.
func LoadPack(path string) (Pack, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Pack{}, fmt.Errorf("read rule pack: %w", err)
	}
	var spec PackSpec
	if err := yaml.Unmarshal(data, &spec); err != nil {
		return Pack{}, fmt.Errorf("parse rule pack: %w", err)
	}
	return CompilePack(spec)
}
