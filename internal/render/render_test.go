package render

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/prudhvinik1/syncboard/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRecorder_TracksVisibleSegments(t *testing.T) {
	r := NewRecorder()

	r.BeginStroke()
	r.DrawSegment(models.Point{X: 0, Y: 0}, models.Point{X: 1, Y: 1})
	r.ClearSurface()
	r.BeginStroke()
	r.DrawSegment(models.Point{X: 2, Y: 2}, models.Point{X: 3, Y: 3})

	assert.Len(t, r.Calls(), 5)
	assert.Equal(t, [][2]models.Point{{{X: 2, Y: 2}, {X: 3, Y: 3}}}, r.Segments())

	r.Reset()
	assert.Empty(t, r.Calls())
	assert.Len(t, r.Segments(), 1)
}

func TestPDF_Write(t *testing.T) {
	p := NewPDF(0)
	p.BeginStroke()
	p.DrawSegment(models.Point{X: 0, Y: 0}, models.Point{X: 90, Y: 90})
	p.DrawSegment(models.Point{X: 90, Y: 90}, models.Point{X: 180, Y: 30})

	batches, segments := p.Stats()
	assert.Equal(t, 1, batches)
	assert.Equal(t, 2, segments)

	var buf bytes.Buffer
	require.NoError(t, p.Write(&buf))
	assert.True(t, bytes.HasPrefix(buf.Bytes(), []byte("%PDF-")))
}

func TestPDF_ClearDropsMarks(t *testing.T) {
	p := NewPDF(DefaultPDFScale)
	p.BeginStroke()
	p.DrawSegment(models.Point{X: 0, Y: 0}, models.Point{X: 1, Y: 1})

	p.ClearSurface()

	batches, segments := p.Stats()
	assert.Zero(t, batches)
	assert.Zero(t, segments)
}

func TestPDF_WriteFile(t *testing.T) {
	p := NewPDF(DefaultPDFScale)
	p.BeginStroke()
	p.DrawSegment(models.Point{X: 10, Y: 10}, models.Point{X: 20, Y: 20})
	path := filepath.Join(t.TempDir(), "board.pdf")

	require.NoError(t, p.WriteFile(path))

	info, err := os.Stat(path)
	require.NoError(t, err)
	assert.NotZero(t, info.Size())
}
