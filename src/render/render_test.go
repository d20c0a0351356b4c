package render

import (
	"image"
	"image/color"
	"os"
	"path/filepath"
	"testing"

	datastructures "github.com/bbernhard/scenegraph-playground/src/datastructures"
	"github.com/bbernhard/scenegraph-playground/src/features"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var objects = []datastructures.ObjectPrediction{
	{Label: "person", LabelID: 1, Score: 0.91, BBox: [4]float32{0.3, 0.5, 0.2, 0.6}},
	{Label: "bicycle", LabelID: 2, Score: 0.77, BBox: [4]float32{120, 130, 60, 40}},
	{Label: "road", LabelID: 3, Score: 0.55, BBox: [4]float32{0.5, 0.9, 1, 0.2}},
}

var rels = []datastructures.RelationshipPrediction{
	{SubjectID: 0, ObjectID: 1, Predicate: "riding", Score: 0.8, Subject: "person", Object: "bicycle"},
	{SubjectID: 1, ObjectID: 2, Predicate: "on", Score: 0.6, Subject: "bicycle", Object: "road"},
}

func TestPalette(t *testing.T) {
	colors := Palette(3)
	require.Len(t, colors, 3)
	assert.Equal(t, color.NRGBA{R: 255, A: 255}, colors[0])
	assert.Equal(t, color.NRGBA{R: 255, A: 255}, colors[2])
	assert.Equal(t, color.NRGBA{G: 255, B: 255, A: 255}, colors[1])
	assert.Len(t, Palette(1), 1)
	assert.Empty(t, Palette(0))
}

func TestPixelBox(t *testing.T) {
	x1, y1, x2, y2 := pixelBox([4]float32{0.5, 0.5, 0.5, 0.25}, 200, 100)
	assert.InDelta(t, 50, x1, 1e-4)
	assert.InDelta(t, 37.5, y1, 1e-4)
	assert.InDelta(t, 150, x2, 1e-4)
	assert.InDelta(t, 62.5, y2, 1e-4)

	x1, y1, x2, y2 = pixelBox([4]float32{120, 130, 60, 40}, 200, 100)
	assert.Equal(t, []float64{90, 110, 150, 150}, []float64{x1, y1, x2, y2})
}

func TestAnnotate(t *testing.T) {
	img := image.NewRGBA(image.Rect(0, 0, 200, 200))
	out := Annotate(img, objects)
	assert.Equal(t, img.Bounds().Size(), out.Bounds().Size())

	// The left edge of the first box is drawn in the first palette color.
	r, g, b, _ := out.At(40, 100).RGBA()
	assert.True(t, r > 0x8000 && g < 0x8000 && b < 0x8000, "got %d %d %d", r, g, b)
}

func TestSpringLayoutDeterministic(t *testing.T) {
	edges := []Edge{{0, 1}, {1, 2}, {2, 3}}
	a := SpringLayout(4, edges, LayoutSeed)
	b := SpringLayout(4, edges, LayoutSeed)
	assert.Equal(t, a, b)

	for _, p := range a {
		assert.True(t, p.X >= -1.0001 && p.X <= 1.0001)
		assert.True(t, p.Y >= -1.0001 && p.Y <= 1.0001)
	}
	assert.NotEqual(t, a[0], a[1])

	assert.Empty(t, SpringLayout(0, nil, LayoutSeed))
	assert.Equal(t, []Point{{}}, SpringLayout(1, nil, LayoutSeed))
	// Edges pointing outside the node set are ignored.
	assert.Len(t, SpringLayout(2, []Edge{{0, 5}}, LayoutSeed), 2)
}

func TestSaveOutputs(t *testing.T) {
	dir := t.TempDir()
	annotated := filepath.Join(dir, "a_annotated.png")
	graph := filepath.Join(dir, "a_graph.png")

	require.NoError(t, SaveAnnotated(image.NewRGBA(image.Rect(0, 0, 64, 48)), objects, annotated))
	require.NoError(t, SaveGraph(objects, rels, graph))

	img, err := features.LoadImage(annotated)
	require.NoError(t, err)
	assert.Equal(t, 64, img.Bounds().Dx())

	img, err = features.LoadImage(graph)
	require.NoError(t, err)
	assert.Equal(t, GraphWidth, img.Bounds().Dx())
	assert.Equal(t, GraphHeight, img.Bounds().Dy())

	assert.Error(t, SaveGraph(objects, rels, filepath.Join(dir, "missing", "g.png")))
	_, err = os.Stat(filepath.Join(dir, "missing"))
	assert.True(t, os.IsNotExist(err))
}

func TestDrawGraphWithoutRelationships(t *testing.T) {
	img := DrawGraph(objects[:1], nil)
	assert.Equal(t, GraphWidth, img.Bounds().Dx())
	img = DrawGraph(nil, nil)
	assert.Equal(t, GraphHeight, img.Bounds().Dy())
}
