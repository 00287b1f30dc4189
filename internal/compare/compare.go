// Package compare decides whether two screenshots show the same visual state.
//
// Two pixels differ when the Euclidean distance between their RGB values,
// normalized to [0,1], exceeds PixelTolerance. Two images match when they
// have the same dimensions and the share of differing pixels does not exceed
// AllowedDiffPercent.
package compare

import (
	"image"
	"math"
)

// Result is the outcome of a comparison.
type Result int

const (
	Match Result = iota
	Mismatch
)

func (r Result) String() string {
	if r == Match {
		return "match"
	}
	return "mismatch"
}

const (
	DefaultPixelTolerance = 0.1
	DefaultCellSize       = 16
)

// maxDistance is the RGB distance between black and white with 16-bit channels.
var maxDistance = math.Sqrt(3 * 65535 * 65535)

// Comparator holds the tolerance settings. The zero value uses the defaults
// with no differing pixels allowed.
type Comparator struct {
	PixelTolerance     float64
	AllowedDiffPercent float64
	CellSize           int
}

// New returns a Comparator with default settings.
func New() Comparator {
	return Comparator{
		PixelTolerance: DefaultPixelTolerance,
		CellSize:       DefaultCellSize,
	}
}

// Stats summarizes the pixel differences between two images.
type Stats struct {
	SameSize        bool
	Width, Height   int
	DifferentPixels int
	TotalPixels     int
	// Cells are the grid cells, CellSize pixels wide, containing at least one
	// differing pixel, in image coordinates.
	Cells []image.Rectangle
}

// Percent is the share of differing pixels in percent. Images of different
// sizes are 100% different.
func (s Stats) Percent() float64 {
	if !s.SameSize {
		return 100
	}
	if s.TotalPixels == 0 {
		return 0
	}
	return float64(s.DifferentPixels) * 100 / float64(s.TotalPixels)
}

// Compare returns Match or Mismatch. It is symmetric and has no side effects.
func (c Comparator) Compare(a, b image.Image) Result {
	s := c.diff(a, b, false)
	if !s.SameSize {
		return Mismatch
	}
	if s.Percent() <= c.AllowedDiffPercent {
		return Match
	}
	return Mismatch
}

// Diff computes the full statistics including the differing cells.
func (c Comparator) Diff(a, b image.Image) Stats {
	return c.diff(a, b, true)
}

func (c Comparator) tolerance() float64 {
	if c.PixelTolerance <= 0 {
		return DefaultPixelTolerance
	}
	return c.PixelTolerance
}

func (c Comparator) cellSize() int {
	if c.CellSize <= 0 {
		return DefaultCellSize
	}
	return c.CellSize
}

func (c Comparator) diff(a, b image.Image, withCells bool) Stats {
	ab, bb := a.Bounds(), b.Bounds()
	s := Stats{Width: ab.Dx(), Height: ab.Dy()}
	if ab.Dx() != bb.Dx() || ab.Dy() != bb.Dy() {
		return s
	}
	s.SameSize = true
	s.TotalPixels = ab.Dx() * ab.Dy()

	tol := c.tolerance()
	cell := c.cellSize()
	cols := (ab.Dx() + cell - 1) / cell
	var marked []bool
	if withCells {
		marked = make([]bool, cols*((ab.Dy()+cell-1)/cell))
	}

	for y := 0; y < ab.Dy(); y++ {
		for x := 0; x < ab.Dx(); x++ {
			if !pixelsDiffer(a, b, ab.Min.X+x, ab.Min.Y+y, bb.Min.X+x, bb.Min.Y+y, tol) {
				continue
			}
			s.DifferentPixels++
			if withCells {
				marked[(y/cell)*cols+x/cell] = true
			}
		}
	}

	for i, m := range marked {
		if !m {
			continue
		}
		x0 := (i % cols) * cell
		y0 := (i / cols) * cell
		s.Cells = append(s.Cells, image.Rect(x0, y0, min(x0+cell, ab.Dx()), min(y0+cell, ab.Dy())))
	}
	return s
}

func pixelsDiffer(a, b image.Image, ax, ay, bx, by int, tol float64) bool {
	r1, g1, b1, _ := a.At(ax, ay).RGBA()
	r2, g2, b2, _ := b.At(bx, by).RGBA()
	if r1 == r2 && g1 == g2 && b1 == b2 {
		return false
	}
	dr := float64(r1) - float64(r2)
	dg := float64(g1) - float64(g2)
	db := float64(b1) - float64(b2)
	return math.Sqrt(dr*dr+dg*dg+db*db)/maxDistance > tol
}
