package export

import (
	"bytes"
	"fmt"
	"strings"

	"github.com/go-pdf/fpdf"
	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/ast"
	"github.com/yuin/goldmark/extension"
	extast "github.com/yuin/goldmark/extension/ast"
	"github.com/yuin/goldmark/parser"
	"github.com/yuin/goldmark/text"
)

const (
	pdfBaseFont     = "Arial"
	pdfBaseSize     = 9.0
	pdfTableFont    = 8.0
	pdfTableLine    = 4.0
	pdfTableWidth   = 180.0
	pdfMaxCellLines = 8
)

// renderPDF converts the markdown report to a PDF byte slice. The report
// markdown is table-heavy, so most of the work is the table renderer.
func renderPDF(markdown string) ([]byte, error) {
	doc := fpdf.New("P", "mm", "A4", "")
	doc.SetMargins(10, 10, 10)
	doc.SetAutoPageBreak(true, 10)
	doc.AddPage()
	doc.SetFont(pdfBaseFont, "", pdfBaseSize)

	md := goldmark.New(
		goldmark.WithExtensions(extension.Table, extension.Strikethrough, extension.Linkify),
		goldmark.WithParserOptions(parser.WithAutoHeadingID()),
	)

	source := []byte(markdown)
	root := md.Parser().Parse(text.NewReader(source))

	mr := &markdownRenderer{doc: doc, source: source}
	if err := ast.Walk(root, mr.visit); err != nil {
		return nil, fmt.Errorf("failed to generate PDF: %w", err)
	}

	var buf bytes.Buffer
	if err := doc.Output(&buf); err != nil {
		return nil, fmt.Errorf("failed to generate PDF output: %w", err)
	}
	return buf.Bytes(), nil
}

// markdownRenderer walks the goldmark AST and emits fpdf calls. Inline
// style state (bold/italic) is tracked here because fpdf has no style
// stack of its own.
type markdownRenderer struct {
	doc       *fpdf.Fpdf
	source    []byte
	bold      bool
	italic    bool
	listLevel int
}

// restoreFont reapplies the body font with the current inline style.
func (mr *markdownRenderer) restoreFont() {
	style := ""
	if mr.bold {
		style += "B"
	}
	if mr.italic {
		style += "I"
	}
	mr.doc.SetFont(pdfBaseFont, style, pdfBaseSize)
}

func (mr *markdownRenderer) visit(n ast.Node, entering bool) (ast.WalkStatus, error) {
	switch node := n.(type) {
	case *ast.Heading:
		mr.heading(node.Level, entering)
	case *ast.Paragraph:
		if !entering {
			mr.doc.Ln(7)
		}
	case *ast.Text:
		if entering {
			mr.doc.Write(5, string(node.Text(mr.source)))
		}
	case *ast.Emphasis:
		if node.Level == 2 {
			mr.bold = entering
		} else {
			mr.italic = entering
		}
		mr.restoreFont()
	case *ast.CodeSpan:
		return mr.codeSpan(node, entering), nil
	case *ast.List:
		mr.list(entering)
	case *ast.ListItem:
		if entering {
			mr.bullet()
		}
	case *ast.ThematicBreak:
		if entering {
			mr.doc.Ln(2)
			mr.doc.Line(15, mr.doc.GetY(), 195, mr.doc.GetY())
			mr.doc.Ln(2)
		}
	case *extast.Table:
		if entering {
			mr.table(collectTableRows(node, mr.source))
			return ast.WalkSkipChildren, nil
		}
	}
	return ast.WalkContinue, nil
}

func (mr *markdownRenderer) heading(level int, entering bool) {
	if !entering {
		mr.doc.Ln(6)
		mr.restoreFont()
		return
	}
	mr.doc.Ln(6)
	sizes := map[int]float64{1: 14, 2: 12, 3: 11}
	size, ok := sizes[level]
	if !ok {
		size = 10
	}
	mr.doc.SetFont(pdfBaseFont, "B", size)
}

func (mr *markdownRenderer) codeSpan(n *ast.CodeSpan, entering bool) ast.WalkStatus {
	if !entering {
		mr.restoreFont()
		return ast.WalkSkipChildren
	}
	mr.doc.SetFont("Courier", "", 10)
	// CodeSpan is inline; the literal text lives in its children.
	for c := n.FirstChild(); c != nil; c = c.NextSibling() {
		if tn, ok := c.(*ast.Text); ok {
			mr.doc.Write(5, string(tn.Segment.Value(mr.source)))
		}
	}
	return ast.WalkSkipChildren
}

func (mr *markdownRenderer) list(entering bool) {
	if entering {
		mr.listLevel++
		return
	}
	mr.listLevel--
	if mr.listLevel == 0 {
		mr.doc.Ln(2)
	}
}

func (mr *markdownRenderer) bullet() {
	// New line before the bullet so items never overlap.
	mr.doc.Ln(5)
	mr.doc.SetX(15 + float64(mr.listLevel)*5.0)
	mr.doc.Write(5, "- ")
}

// collectTableRows flattens header and body rows into one cell grid.
func collectTableRows(n *extast.Table, source []byte) [][]string {
	var rows [][]string

	extract := func(tr *extast.TableRow) []string {
		var row []string
		for cell := tr.FirstChild(); cell != nil; cell = cell.NextSibling() {
			if _, ok := cell.(*extast.TableCell); ok {
				row = append(row, string(cell.Text(source)))
			}
		}
		return row
	}

	var walk func(node ast.Node)
	walk = func(node ast.Node) {
		for child := node.FirstChild(); child != nil; child = child.NextSibling() {
			switch tn := child.(type) {
			case *extast.TableRow:
				rows = append(rows, extract(tn))
			case *extast.TableHeader:
				walk(tn)
			}
		}
	}
	walk(n)
	return rows
}

// table renders a cell grid with measured column widths, a shaded
// header row, and per-cell word wrapping.
func (mr *markdownRenderer) table(rows [][]string) {
	if len(rows) == 0 || len(rows[0]) == 0 {
		return
	}
	numCols := len(rows[0])

	mr.doc.Ln(2)

	widths := mr.columnWidths(rows, numCols)

	// Precompute each column's x offset from the row start.
	offsets := make([]float64, numCols)
	for i := 1; i < numCols; i++ {
		offsets[i] = offsets[i-1] + widths[i-1]
	}

	for i, row := range rows {
		header := i == 0
		if header {
			mr.doc.SetFont(pdfBaseFont, "B", pdfTableFont)
		} else {
			mr.doc.SetFont(pdfBaseFont, "", pdfTableFont)
		}

		maxLines := 1
		for j, cell := range row {
			if j >= numCols {
				break
			}
			if n := len(mr.wrapCell(cell, widths[j]-2)); n > maxLines {
				maxLines = n
			}
		}
		if maxLines > pdfMaxCellLines {
			maxLines = pdfMaxCellLines
		}

		rowHeight := float64(maxLines)*pdfTableLine + 2
		startX := mr.doc.GetX()
		startY := mr.doc.GetY()

		// A4 is 297mm; break before a row that would cross the margin.
		if startY+rowHeight > 297.0-15.0 {
			mr.doc.AddPage()
			startY = mr.doc.GetY()
		}

		for j, cell := range row {
			if j >= numCols {
				break
			}
			x := startX + offsets[j]
			if header {
				mr.doc.SetFillColor(230, 230, 230)
				mr.doc.Rect(x, startY, widths[j], rowHeight, "FD")
			} else {
				mr.doc.Rect(x, startY, widths[j], rowHeight, "D")
			}
			mr.doc.SetXY(x+1, startY+1)
			mr.cellText(cell, widths[j]-2, maxLines)
		}

		mr.doc.SetXY(startX, startY+rowHeight)
	}

	mr.doc.Ln(3)
	mr.restoreFont()
}

// columnWidths sizes columns from measured string widths, clamps them,
// then scales the set to fit the page.
func (mr *markdownRenderer) columnWidths(rows [][]string, numCols int) []float64 {
	widths := make([]float64, numCols)

	measure := func(row []string) {
		for i, cell := range row {
			if i >= numCols {
				break
			}
			if w := mr.doc.GetStringWidth(cell) + 4; w > widths[i] {
				widths[i] = w
			}
		}
	}

	mr.doc.SetFont(pdfBaseFont, "", pdfTableFont)
	for _, row := range rows {
		measure(row)
	}

	// The header renders bold, so measure it that way too.
	mr.doc.SetFont(pdfBaseFont, "B", pdfTableFont)
	measure(rows[0])
	mr.doc.SetFont(pdfBaseFont, "", pdfTableFont)

	const minWidth = 12.0
	maxWidth := pdfTableWidth / 3.0

	total := 0.0
	for i := range widths {
		if widths[i] < minWidth {
			widths[i] = minWidth
		}
		if widths[i] > maxWidth {
			widths[i] = maxWidth
		}
		total += widths[i]
	}

	switch {
	case total > pdfTableWidth:
		scale := pdfTableWidth / total
		for i := range widths {
			widths[i] *= scale
			if widths[i] < minWidth*0.8 {
				widths[i] = minWidth * 0.8
			}
		}
	case total < pdfTableWidth*0.9:
		scale := (pdfTableWidth * 0.95) / total
		if scale > 1.5 {
			scale = 1.5
		}
		for i := range widths {
			widths[i] *= scale
		}
	}

	return widths
}

// wrapCell greedily wraps cell text into lines that fit the given width
// at the current font.
func (mr *markdownRenderer) wrapCell(s string, width float64) []string {
	words := strings.Fields(s)
	if len(words) == 0 || width <= 0 {
		return nil
	}

	spaceWidth := mr.doc.GetStringWidth(" ")

	var lines []string
	line := words[0]
	lineWidth := mr.doc.GetStringWidth(words[0])

	for _, word := range words[1:] {
		w := mr.doc.GetStringWidth(word)
		if lineWidth+spaceWidth+w <= width {
			line += " " + word
			lineWidth += spaceWidth + w
			continue
		}
		lines = append(lines, line)
		line = word
		lineWidth = w
	}
	return append(lines, line)
}

// cellText writes wrapped lines into a cell, truncating the last
// visible line with an ellipsis when content overflows.
func (mr *markdownRenderer) cellText(s string, width float64, maxLines int) {
	lines := mr.wrapCell(s, width)
	for i := 0; i < len(lines) && i < maxLines; i++ {
		line := lines[i]
		if i == maxLines-1 && len(lines) > maxLines {
			for mr.doc.GetStringWidth(line+"...") > width && len(line) > 3 {
				line = line[:len(line)-1]
			}
			line += "..."
		}
		mr.doc.CellFormat(width, pdfTableLine, line, "", 2, "L", false, 0, "")
	}
}
