// Package export renders report data as PDF documents, XLSX workbooks and
// PNG charts.
package export

import (
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/go-pdf/fpdf"
)

type rgb struct{ r, g, b int }

var (
	colorTitle    = rgb{31, 41, 55}
	colorMuted    = rgb{107, 114, 128}
	colorFaint    = rgb{156, 163, 175}
	colorAccent   = rgb{59, 130, 246}
	colorBody     = rgb{55, 65, 81}
	colorPanel    = rgb{248, 250, 252}
	colorStripe   = rgb{249, 250, 251}
	colorRule     = rgb{229, 231, 235}
	colorPriority = rgb{239, 68, 68}
)

const (
	fontFamily = "Helvetica"
	rowHeight  = 7.0
	cellPad    = 1.5
)

// GeneratedOnLayout is the layout of the "Generated on" line.
const GeneratedOnLayout = "Monday, January 2, 2006"

// SummaryItem is one box in a summary strip.
type SummaryItem struct {
	Label string
	Value string
}

// Align is a table column alignment.
type Align string

const (
	AlignLeft   Align = "L"
	AlignCenter Align = "C"
	AlignRight  Align = "R"
)

// Column describes a table column. Width is a fraction of the usable page
// width; the fractions of a table should sum to 1.
type Column struct {
	Header string
	Width  float64
	Align  Align
}

// Table is a header row plus body rows. Highlight marks rows drawn with a
// red left edge.
type Table struct {
	Columns   []Column
	Rows      [][]string
	Highlight func(row int) bool
}

// PDFReport lays out an A4 portrait report: a centred header, then any
// sequence of summary strips, sections, key/value blocks and tables.
type PDFReport struct {
	pdf *fpdf.Fpdf
	tr  func(string) string
}

// NewPDFReport starts a report with the standard header and a footer that
// carries footerText and the page number.
func NewPDFReport(title, subtitle string, generated time.Time, footerText string) *PDFReport {
	pdf := fpdf.New("P", "mm", "A4", "")
	pdf.SetMargins(10, 10, 10)
	pdf.SetAutoPageBreak(true, 18)
	pdf.SetTitle(title, true)
	pdf.SetCreator("clinic-server", true)

	r := &PDFReport{pdf: pdf, tr: pdf.UnicodeTranslatorFromDescriptor("")}

	pdf.SetFooterFunc(func() {
		pdf.SetY(-14)
		pdf.SetFont(fontFamily, "", 8)
		r.textColor(colorFaint)
		w := r.usableWidth()
		pdf.CellFormat(w*0.8, 5, r.tr(footerText), "", 0, "L", false, 0, "")
		pdf.CellFormat(w*0.2, 5, fmt.Sprintf("Page %d", pdf.PageNo()), "", 0, "R", false, 0, "")
	})

	pdf.AddPage()
	r.header(title, subtitle, generated)
	return r
}

func (r *PDFReport) usableWidth() float64 {
	pageW, _ := r.pdf.GetPageSize()
	left, _, right, _ := r.pdf.GetMargins()
	return pageW - left - right
}

func (r *PDFReport) textColor(c rgb) { r.pdf.SetTextColor(c.r, c.g, c.b) }
func (r *PDFReport) fillColor(c rgb) { r.pdf.SetFillColor(c.r, c.g, c.b) }
func (r *PDFReport) drawColor(c rgb) { r.pdf.SetDrawColor(c.r, c.g, c.b) }

func (r *PDFReport) header(title, subtitle string, generated time.Time) {
	w := r.usableWidth()

	r.pdf.SetFont(fontFamily, "B", 24)
	r.textColor(colorTitle)
	r.pdf.CellFormat(w, 11, r.tr(title), "", 1, "C", false, 0, "")

	if subtitle != "" {
		r.pdf.SetFont(fontFamily, "", 14)
		r.textColor(colorMuted)
		r.pdf.CellFormat(w, 7, r.tr(subtitle), "", 1, "C", false, 0, "")
	}

	r.pdf.SetFont(fontFamily, "", 10)
	r.textColor(colorFaint)
	r.pdf.CellFormat(w, 6, "Generated on: "+generated.Format(GeneratedOnLayout), "", 1, "C", false, 0, "")

	left, _, _, _ := r.pdf.GetMargins()
	y := r.pdf.GetY() + 2
	r.drawColor(colorAccent)
	r.pdf.SetLineWidth(0.7)
	r.pdf.Line(left, y, left+w, y)
	r.pdf.SetLineWidth(0.2)
	r.pdf.SetY(y + 6)
}

// Summary draws a strip of equally sized number boxes.
func (r *PDFReport) Summary(items []SummaryItem) {
	if len(items) == 0 {
		return
	}
	w := r.usableWidth()
	boxW := w / float64(len(items))
	left, _, _, _ := r.pdf.GetMargins()
	top := r.pdf.GetY()

	r.fillColor(colorPanel)
	r.pdf.Rect(left, top, w, 20, "F")

	for i, item := range items {
		x := left + float64(i)*boxW
		r.pdf.SetXY(x, top+3)
		r.pdf.SetFont(fontFamily, "B", 18)
		r.textColor(colorAccent)
		r.pdf.CellFormat(boxW, 8, r.tr(item.Value), "", 2, "C", false, 0, "")
		r.pdf.SetX(x)
		r.pdf.SetFont(fontFamily, "", 9)
		r.textColor(colorMuted)
		r.pdf.CellFormat(boxW, 5, r.tr(item.Label), "", 0, "C", false, 0, "")
	}
	r.pdf.SetXY(left, top+26)
}

// Section starts a titled block.
func (r *PDFReport) Section(title string) {
	r.pdf.Ln(2)
	r.pdf.SetFont(fontFamily, "B", 12)
	r.textColor(colorTitle)
	r.pdf.CellFormat(r.usableWidth(), 7, r.tr(title), "B", 1, "L", false, 0, "")
	r.pdf.Ln(2)
}

// KeyValues draws label/value pairs, one per line.
func (r *PDFReport) KeyValues(pairs [][2]string) {
	w := r.usableWidth()
	for _, kv := range pairs {
		r.pdf.SetFont(fontFamily, "B", 9)
		r.textColor(colorMuted)
		r.pdf.CellFormat(w*0.3, 6, r.tr(kv[0]), "", 0, "L", false, 0, "")
		r.pdf.SetFont(fontFamily, "", 9)
		r.textColor(colorBody)
		r.pdf.MultiCell(w*0.7, 6, r.tr(valueOrNA(kv[1])), "", "L", false)
	}
	r.pdf.Ln(1)
}

// Paragraph draws wrapped body text.
func (r *PDFReport) Paragraph(text string) {
	r.pdf.SetFont(fontFamily, "", 9)
	r.textColor(colorBody)
	r.pdf.MultiCell(r.usableWidth(), 5, r.tr(text), "", "L", false)
	r.pdf.Ln(1)
}

// Table draws t, repeating the header row on each new page. Cell text that
// does not fit its column is truncated with an ellipsis.
func (r *PDFReport) Table(t Table) {
	w := r.usableWidth()
	widths := make([]float64, len(t.Columns))
	for i, col := range t.Columns {
		widths[i] = col.Width * w
	}

	r.tableHeader(t.Columns, widths)

	_, pageH := r.pdf.GetPageSize()
	_, _, _, bottom := r.pdf.GetMargins()
	left, _, _, _ := r.pdf.GetMargins()

	if len(t.Rows) == 0 {
		r.pdf.SetFont(fontFamily, "I", 9)
		r.textColor(colorMuted)
		r.pdf.CellFormat(w, rowHeight, "No records.", "", 1, "C", false, 0, "")
		return
	}

	for i, row := range t.Rows {
		if r.pdf.GetY()+rowHeight > pageH-bottom {
			r.pdf.AddPage()
			r.tableHeader(t.Columns, widths)
		}

		y := r.pdf.GetY()
		if i%2 == 0 {
			r.fillColor(colorStripe)
		} else {
			r.fillColor(rgb{255, 255, 255})
		}
		r.pdf.Rect(left, y, w, rowHeight, "F")

		r.pdf.SetFont(fontFamily, "", 8)
		r.textColor(colorBody)
		r.drawColor(colorRule)
		for j, col := range t.Columns {
			text := ""
			if j < len(row) {
				text = r.fit(row[j], widths[j]-2*cellPad)
			}
			r.pdf.CellFormat(widths[j], rowHeight, text, "B", 0, string(alignOr(col.Align)), false, 0, "")
		}
		r.pdf.Ln(-1)

		if t.Highlight != nil && t.Highlight(i) {
			r.drawColor(colorPriority)
			r.pdf.SetLineWidth(1)
			r.pdf.Line(left, y, left, y+rowHeight)
			r.pdf.SetLineWidth(0.2)
		}
	}
	r.pdf.Ln(3)
}

func (r *PDFReport) tableHeader(cols []Column, widths []float64) {
	r.pdf.SetFont(fontFamily, "B", 9)
	r.fillColor(colorAccent)
	r.pdf.SetTextColor(255, 255, 255)
	for i, col := range cols {
		r.pdf.CellFormat(widths[i], rowHeight, r.fit(col.Header, widths[i]-2*cellPad), "", 0, string(alignOr(col.Align)), true, 0, "")
	}
	r.pdf.Ln(-1)
}

// fit translates s and trims it to width.
func (r *PDFReport) fit(s string, width float64) string {
	s = r.tr(strings.TrimSpace(s))
	if r.pdf.GetStringWidth(s) <= width {
		return s
	}
	const ellipsis = "..."
	runes := []rune(s)
	for len(runes) > 0 && r.pdf.GetStringWidth(string(runes)+ellipsis) > width {
		runes = runes[:len(runes)-1]
	}
	return string(runes) + ellipsis
}

// Render writes the finished document.
func (r *PDFReport) Render(w io.Writer) error {
	if err := r.pdf.Error(); err != nil {
		return fmt.Errorf("layout pdf: %w", err)
	}
	return r.pdf.Output(w)
}

func alignOr(a Align) Align {
	if a == "" {
		return AlignLeft
	}
	return a
}

func valueOrNA(s string) string {
	if strings.TrimSpace(s) == "" {
		return "N/A"
	}
	return s
}
