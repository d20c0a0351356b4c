// Package render draws the scene graph of an image: the photo with one
// labelled box per object, and the relationship graph as a diagram.
package render

import (
	"fmt"
	"image"
	"image/color"

	datastructures "github.com/bbernhard/scenegraph-playground/src/datastructures"
	"github.com/chewxy/math32"
	"github.com/fogleman/gg"
	"github.com/pkg/errors"
)

// Palette returns n colors spread evenly around the hue circle.
func Palette(n int) []color.Color {
	colors := make([]color.Color, n)
	for i := range colors {
		h := float32(0)
		if n > 1 {
			h = float32(i) / float32(n-1)
		}
		colors[i] = hsv(h)
	}
	return colors
}

// hsv converts a hue in [0,1] at full saturation and value.
func hsv(h float32) color.Color {
	h = math32.Mod(h, 1) * 6
	x := 1 - math32.Abs(math32.Mod(h, 2)-1)
	var r, g, b float32
	switch int(h) {
	case 0:
		r, g, b = 1, x, 0
	case 1:
		r, g, b = x, 1, 0
	case 2:
		r, g, b = 0, 1, x
	case 3:
		r, g, b = 0, x, 1
	case 4:
		r, g, b = x, 0, 1
	default:
		r, g, b = 1, 0, x
	}
	return color.NRGBA{R: uint8(r * 255), G: uint8(g * 255), B: uint8(b * 255), A: 255}
}

// pixelBox converts an object box to pixel corners. Boxes whose values are
// all within [0,1] are taken as relative to the image.
func pixelBox(bbox [4]float32, width, height float64) (x1, y1, x2, y2 float64) {
	xc, yc, w, h := float64(bbox[0]), float64(bbox[1]), float64(bbox[2]), float64(bbox[3])
	if math32.Max(math32.Max(bbox[0], bbox[1]), math32.Max(bbox[2], bbox[3])) <= 1 {
		xc *= width
		yc *= height
		w *= width
		h *= height
	}
	return xc - w/2, yc - h/2, xc + w/2, yc + h/2
}

// Annotate draws a box and a "label (score)" tag for every object.
func Annotate(img image.Image, objects []datastructures.ObjectPrediction) image.Image {
	dc := gg.NewContextForImage(img)
	width := float64(dc.Width())
	height := float64(dc.Height())
	colors := Palette(len(objects))

	for i, obj := range objects {
		x1, y1, x2, y2 := pixelBox(obj.BBox, width, height)

		dc.SetColor(colors[i])
		dc.SetLineWidth(2)
		dc.DrawRectangle(x1, y1, x2-x1, y2-y1)
		dc.Stroke()

		text := fmt.Sprintf("%s (%.2f)", obj.Label, obj.Score)
		tw, th := dc.MeasureString(text)
		ty := y1 - 5
		if ty-th < 0 {
			ty = y1 + th + 5
		}
		dc.SetRGBA(1, 1, 1, 0.7)
		dc.DrawRectangle(x1-1, ty-th-1, tw+2, th+3)
		dc.Fill()
		dc.SetColor(colors[i])
		dc.DrawString(text, x1, ty)
	}
	return dc.Image()
}

// SaveAnnotated writes the annotated image as PNG.
func SaveAnnotated(img image.Image, objects []datastructures.ObjectPrediction, path string) error {
	dc := gg.NewContextForImage(Annotate(img, objects))
	return errors.Wrapf(dc.SavePNG(path), "couldn't save %s", path)
}
