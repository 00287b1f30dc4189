package compare

import (
	"fmt"
	"image"

	"github.com/fogleman/gg"
	"golang.org/x/image/font/basicfont"
)

// RenderDiff draws candidate with a red frame around every differing cell and
// a caption with the differing share. Images of different sizes get only the
// caption.
func (c Comparator) RenderDiff(reference, candidate image.Image) (image.Image, Stats) {
	stats := c.Diff(reference, candidate)

	b := candidate.Bounds()
	dc := gg.NewContext(b.Dx(), b.Dy())
	dc.DrawImage(candidate, -b.Min.X, -b.Min.Y)

	dc.SetRGBA(1, 0, 0, 0.9)
	dc.SetLineWidth(2)
	for _, cell := range stats.Cells {
		dc.DrawRectangle(float64(cell.Min.X), float64(cell.Min.Y), float64(cell.Dx()), float64(cell.Dy()))
		dc.Stroke()
	}

	label := fmt.Sprintf("%d px differ (%.2f%%)", stats.DifferentPixels, stats.Percent())
	if !stats.SameSize {
		label = fmt.Sprintf("size differs: %dx%d vs %dx%d", stats.Width, stats.Height, b.Dx(), b.Dy())
	}
	dc.SetFontFace(basicfont.Face7x13)
	w, h := dc.MeasureString(label)
	dc.SetRGBA(0, 0, 0, 0.7)
	dc.DrawRectangle(4, 4, w+8, h+8)
	dc.Fill()
	dc.SetRGB(1, 1, 1)
	dc.DrawString(label, 8, 8+h)

	return dc.Image(), stats
}
