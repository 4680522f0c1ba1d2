package report

import (
	"bytes"
	"fmt"
	"strconv"
	"strings"

	"github.com/jung-kurt/gofpdf"

	"example.com/biosgate/internal/analysis"
	"example.com/biosgate/internal/common"
	"example.com/biosgate/internal/rules"
)

// Findings beyond this count are summarized rather than listed so a
// keyword-dense image does not produce a thousand-page report.
const maxPDFFindings = 200

// pdfRenderable reports whether the built-in PDF fonts can draw the
// language's labels. Core Helvetica/Courier cover cp1252 only; Cyrillic
// would come out as one Latin glyph per UTF-8 byte, so such languages
// need an embedded Unicode TTF before they can be offered here.
func pdfRenderable(lang Language) bool {
	return lang == LangEnglish
}

// SavePDF renders the document into a PDF report, including a QR code of
// the output image digest when one is present. Labels of languages the
// built-in fonts cannot draw fall back to English; console output is
// where those locales apply.
func SavePDF(doc Document, lang Language, out string) error {
	if !pdfRenderable(lang) {
		lang = LangEnglish
	}
	tr := NewTranslator(lang)
	pdf := gofpdf.New("P", "mm", "A4", "")
	pdf.SetTitle(tr.T("report.title"), true)
	pdf.SetAuthor("biosctl", false)
	pdf.SetCreator("biosctl", false)
	pdf.SetMargins(15, 20, 15)
	pdf.SetAutoPageBreak(true, 20)
	pdf.AddPage()

	addPDFTitle(pdf, tr.T("report.title"))
	addSummarySection(pdf, tr, doc)
	addPatchSection(pdf, tr, doc.Patches)
	if doc.Analysis != nil {
		addFindingsSection(pdf, tr, doc.Analysis.Findings)
	}
	if doc.OutputSha != "" {
		addQRSection(pdf, tr, doc.OutputSha)
	}

	if pdf.Err() {
		return pdf.Error()
	}
	return pdf.OutputFileAndClose(out)
}

func addPDFTitle(pdf *gofpdf.Fpdf, title string) {
	pdf.SetFont("Helvetica", "B", 18)
	pdf.Cell(0, 10, title)
	pdf.Ln(12)
}

func addSummarySection(pdf *gofpdf.Fpdf, tr Translator, doc Document) {
	pdf.SetFont("Helvetica", "B", 12)
	pdf.Cell(0, 8, tr.T("report.summary"))
	pdf.Ln(8)

	pdf.SetFont("Helvetica", "", 11)
	var items []struct {
		label string
		value string
	}
	if a := doc.Analysis; a != nil {
		items = append(items,
			struct{ label, value string }{tr.T("report.file"), a.File},
			struct{ label, value string }{tr.T("report.size"), common.FormatBytes(a.SizeBytes)},
			struct{ label, value string }{tr.T("report.sha256"), a.Sha256},
			struct{ label, value string }{tr.T("report.lockedRecords"), strconv.Itoa(a.LockedRecords)},
			struct{ label, value string }{tr.T("report.droppedRecords"), strconv.Itoa(a.DroppedRecords)},
		)
	}
	if doc.OutputPath != "" {
		items = append(items, struct{ label, value string }{tr.T("report.output"), doc.OutputPath})
	}
	if doc.OutputSha != "" {
		items = append(items, struct{ label, value string }{tr.T("report.outputSha"), doc.OutputSha})
	}
	for _, item := range items {
		pdf.CellFormat(60, 6, item.label, "", 0, "L", false, 0, "")
		pdf.SetFont("Courier", "", 9)
		pdf.CellFormat(0, 6, item.value, "", 1, "L", false, 0, "")
		pdf.SetFont("Helvetica", "", 11)
	}
	pdf.Ln(4)
}

func addPatchSection(pdf *gofpdf.Fpdf, tr Translator, patches []rules.PatchReport) {
	if len(patches) == 0 {
		return
	}
	pdf.SetFont("Helvetica", "B", 12)
	pdf.Cell(0, 8, tr.T("report.patches"))
	pdf.Ln(9)

	headers := []string{
		tr.T("report.patches.rule"),
		tr.T("report.patches.found"),
		tr.T("report.patches.patched"),
		tr.T("report.patches.skipped"),
		tr.T("report.patches.errors"),
	}
	widths := []float64{80, 25, 25, 25, 25}

	pdf.SetFillColor(240, 240, 240)
	pdf.SetFont("Helvetica", "B", 10)
	for i, h := range headers {
		pdf.CellFormat(widths[i], 7, h, "1", 0, "L", true, 0, "")
	}
	pdf.Ln(-1)

	pdf.SetFont("Helvetica", "", 9)
	for _, p := range patches {
		values := []string{
			p.RuleID,
			strconv.Itoa(p.Found),
			strconv.Itoa(p.Patched),
			strconv.Itoa(p.Skipped),
			strconv.Itoa(p.Errors),
		}
		for i, v := range values {
			pdf.CellFormat(widths[i], 6, v, "1", 0, "L", false, 0, "")
		}
		pdf.Ln(-1)
	}
	pdf.Ln(4)
}

func addFindingsSection(pdf *gofpdf.Fpdf, tr Translator, findings []analysis.Finding) {
	pdf.SetFont("Helvetica", "B", 12)
	pdf.Cell(0, 8, tr.T("report.findings"))
	pdf.Ln(9)

	if len(findings) == 0 {
		pdf.SetFont("Helvetica", "", 11)
		pdf.MultiCell(0, 6, tr.T("report.findings.none"), "", "L", false)
		return
	}

	pdf.SetFont("Courier", "", 9)
	shown := findings
	if len(shown) > maxPDFFindings {
		shown = shown[:maxPDFFindings]
	}
	for _, f := range shown {
		line := fmt.Sprintf("[%s] 0x%08X %s", f.Category, f.Offset, f.Description)
		pdf.MultiCell(0, 4, line, "", "L", false)
	}
	if len(findings) > maxPDFFindings {
		pdf.SetFont("Helvetica", "I", 9)
		pdf.MultiCell(0, 5, fmt.Sprintf("(+%d more)", len(findings)-maxPDFFindings), "", "L", false)
	}
	pdf.Ln(2)
}

func addQRSection(pdf *gofpdf.Fpdf, tr Translator, hash string) {
	png, err := DigestQR(hash, 256)
	if err != nil {
		return
	}
	opts := gofpdf.ImageOptions{ImageType: "PNG"}
	pdf.RegisterImageOptionsReader("output-hash-qr", opts, bytes.NewReader(png))
	pdf.ImageOptions("output-hash-qr", 15, pdf.GetY()+2, 35, 35, false, opts, 0, "")
	pdf.SetXY(55, pdf.GetY()+14)
	pdf.SetFont("Helvetica", "", 9)
	pdf.MultiCell(0, 5, tr.T("report.qr.caption")+"\n"+strings.ToUpper(hash), "", "L", false)
}
