package report

import (
	"bufio"
	"encoding/json"
	"os"

	"example.com/biosgate/internal/analysis"
	"example.com/biosgate/internal/rules"
)

// Document bundles everything a patch or analysis run produced.
type Document struct {
	Analysis   *analysis.Report    `json:"analysis,omitempty"`
	Patches    []rules.PatchReport `json:"patches,omitempty"`
	OutputPath string              `json:"outputPath,omitempty"`
	OutputSha  string              `json:"outputSha,omitempty"`
}

func SaveJSON(doc Document, out string) error {
	b, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(out, b, 0644)
}

func LoadJSON(path string) (Document, error) {
	var doc Document
	b, err := os.ReadFile(path)
	if err != nil {
		return doc, err
	}
	err = json.Unmarshal(b, &doc)
	return doc, err
}

// WriteFindingsNDJSON streams findings one JSON object per line for
// downstream tooling.
func WriteFindingsNDJSON(findings []analysis.Finding, path string) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()
	w := bufio.NewWriter(f)
	defer w.Flush()
	for _, finding := range findings {
		b, err := json.Marshal(finding)
		if err != nil {
			return err
		}
		if _, err := w.Write(append(b, '\n')); err != nil {
			return err
		}
	}
	return nil
}
