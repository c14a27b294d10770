package render

import (
	"fmt"
	"io"
	"sync"

	"github.com/jung-kurt/gofpdf"
	"github.com/prudhvinik1/syncboard/internal/models"
)

// DefaultPDFScale maps canvas pixels to millimetres on an A4 page.
const DefaultPDFScale = 3.0

// PDF collects the visible marks and writes them as a one-page document.
// A PDF cannot be erased, so ClearSurface drops everything buffered so far.
type PDF struct {
	mu       sync.Mutex
	scale    float64
	batches  int
	segments [][2]models.Point
}

func NewPDF(scale float64) *PDF {
	if scale <= 0 {
		scale = DefaultPDFScale
	}
	return &PDF{scale: scale}
}

func (p *PDF) BeginStroke() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.batches++
}

func (p *PDF) DrawSegment(from, to models.Point) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.segments = append(p.segments, [2]models.Point{from, to})
}

func (p *PDF) ClearSurface() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.batches = 0
	p.segments = nil
}

// Write renders the buffered marks to w.
func (p *PDF) Write(w io.Writer) error {
	doc := p.document()
	if err := doc.Output(w); err != nil {
		return fmt.Errorf("failed to write pdf: %w", err)
	}
	return nil
}

// WriteFile renders the buffered marks to path.
func (p *PDF) WriteFile(path string) error {
	doc := p.document()
	if err := doc.OutputFileAndClose(path); err != nil {
		return fmt.Errorf("failed to write pdf %s: %w", path, err)
	}
	return nil
}

func (p *PDF) document() *gofpdf.Fpdf {
	p.mu.Lock()
	defer p.mu.Unlock()

	doc := gofpdf.New("P", "mm", "A4", "")
	doc.SetTitle("syncboard export", true)
	doc.AddPage()
	doc.SetDrawColor(0, 0, 0)
	doc.SetLineWidth(0.5)
	doc.SetLineCapStyle("round")

	for _, seg := range p.segments {
		doc.Line(
			seg[0].X/p.scale, seg[0].Y/p.scale,
			seg[1].X/p.scale, seg[1].Y/p.scale,
		)
	}
	return doc
}

// Stats reports how many BeginStroke batches and segments are buffered. A
// stroke drawn incrementally spans several batches.
func (p *PDF) Stats() (batches, segments int) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.batches, len(p.segments)
}
