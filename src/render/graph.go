package render

import (
	"image"
	"math"

	datastructures "github.com/bbernhard/scenegraph-playground/src/datastructures"
	"github.com/fogleman/gg"
	"github.com/pkg/errors"
)

const (
	GraphWidth  = 1000
	GraphHeight = 800

	nodeRadius = 26
	arrowSize  = 12
	margin     = 80
)

// DrawGraph draws objects as nodes and relationships as arrows labelled
// with their predicate.
func DrawGraph(objects []datastructures.ObjectPrediction, rels []datastructures.RelationshipPrediction) image.Image {
	dc := gg.NewContext(GraphWidth, GraphHeight)
	dc.SetRGB(1, 1, 1)
	dc.Clear()

	dc.SetRGB(0, 0, 0)
	dc.DrawStringAnchored("Scene Graph", GraphWidth/2, 30, 0.5, 0.5)

	edges := make([]Edge, 0, len(rels))
	for _, r := range rels {
		edges = append(edges, Edge{From: r.SubjectID, To: r.ObjectID})
	}
	layout := SpringLayout(len(objects), edges, LayoutSeed)

	centers := make([][2]float64, len(layout))
	for i, p := range layout {
		centers[i] = [2]float64{
			GraphWidth/2 + float64(p.X)*(GraphWidth/2-margin),
			GraphHeight/2 + float64(p.Y)*(GraphHeight/2-margin),
		}
	}

	for _, r := range rels {
		if r.SubjectID < 0 || r.SubjectID >= len(centers) || r.ObjectID < 0 || r.ObjectID >= len(centers) {
			continue
		}
		drawEdge(dc, centers[r.SubjectID], centers[r.ObjectID], r.Predicate)
	}

	for i, obj := range objects {
		c := centers[i]
		dc.SetRGBA255(135, 206, 235, 204)
		dc.DrawCircle(c[0], c[1], nodeRadius)
		dc.Fill()
		dc.SetRGB(0, 0, 0)
		dc.DrawStringAnchored(obj.Label, c[0], c[1], 0.5, 0.5)
	}
	return dc.Image()
}

func drawEdge(dc *gg.Context, from, to [2]float64, label string) {
	dx := to[0] - from[0]
	dy := to[1] - from[1]
	length := math.Hypot(dx, dy)
	if length <= 2*nodeRadius {
		return
	}
	ux, uy := dx/length, dy/length

	// Stop at the node borders so the arrow head stays visible.
	sx, sy := from[0]+ux*nodeRadius, from[1]+uy*nodeRadius
	ex, ey := to[0]-ux*nodeRadius, to[1]-uy*nodeRadius

	dc.SetRGBA(0, 0, 0, 0.7)
	dc.SetLineWidth(2)
	dc.DrawLine(sx, sy, ex, ey)
	dc.Stroke()

	dc.MoveTo(ex, ey)
	dc.LineTo(ex-ux*arrowSize-uy*arrowSize/2, ey-uy*arrowSize+ux*arrowSize/2)
	dc.LineTo(ex-ux*arrowSize+uy*arrowSize/2, ey-uy*arrowSize-ux*arrowSize/2)
	dc.ClosePath()
	dc.Fill()

	mx, my := (sx+ex)/2, (sy+ey)/2
	tw, th := dc.MeasureString(label)
	dc.SetRGBA(1, 1, 1, 0.8)
	dc.DrawRectangle(mx-tw/2-2, my-th/2-2, tw+4, th+4)
	dc.Fill()
	dc.SetRGB(0.2, 0.2, 0.2)
	dc.DrawStringAnchored(label, mx, my, 0.5, 0.5)
}

// SaveGraph writes the relationship diagram as PNG.
func SaveGraph(objects []datastructures.ObjectPrediction, rels []datastructures.RelationshipPrediction, path string) error {
	dc := gg.NewContextForImage(DrawGraph(objects, rels))
	return errors.Wrapf(dc.SavePNG(path), "couldn't save %s", path)
}
