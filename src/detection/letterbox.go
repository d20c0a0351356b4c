package detection

// LetterboxFill is the gray level of the padding around a letterboxed image.
const LetterboxFill = 114

// Letterbox describes how an image of Width x Height is fitted into a
// square network input of Size: scaled by Gain keeping the aspect ratio to
// ScaledWidth x ScaledHeight and centered with PadX/PadY pixels of padding.
type Letterbox struct {
	Width        int
	Height       int
	Size         int
	Gain         float32
	ScaledWidth  int
	ScaledHeight int
	PadX         int
	PadY         int
}

func round(v float32) int {
	if v < 0 {
		return -int(-v + 0.5)
	}
	return int(v + 0.5)
}

func NewLetterbox(width, height, size int) Letterbox {
	gain := min(float32(size)/float32(height), float32(size)/float32(width))
	scaledWidth := round(float32(width) * gain)
	scaledHeight := round(float32(height) * gain)
	return Letterbox{
		Width:        width,
		Height:       height,
		Size:         size,
		Gain:         gain,
		ScaledWidth:  scaledWidth,
		ScaledHeight: scaledHeight,
		// -0.1 keeps the larger half of an odd padding on the bottom/right.
		PadX: round(float32(size-scaledWidth)/2 - 0.1),
		PadY: round(float32(size-scaledHeight)/2 - 0.1),
	}
}

// ToImage maps a box in network input pixels back to image pixels. The
// result is not clipped.
func (l Letterbox) ToImage(b Box) Box {
	px, py := float32(l.PadX), float32(l.PadY)
	return Box{
		X1: (b.X1 - px) / l.Gain,
		Y1: (b.Y1 - py) / l.Gain,
		X2: (b.X2 - px) / l.Gain,
		Y2: (b.Y2 - py) / l.Gain,
	}
}

// Clip limits b to the image.
func (l Letterbox) Clip(b Box) Box {
	return b.Clip(float32(l.Width), float32(l.Height))
}

// Clip limits the box to [0, width] x [0, height].
func (b Box) Clip(width, height float32) Box {
	return Box{
		X1: clamp(b.X1, 0, width),
		Y1: clamp(b.Y1, 0, height),
		X2: clamp(b.X2, 0, width),
		Y2: clamp(b.Y2, 0, height),
	}
}

func clamp(v, lo, hi float32) float32 {
	return max(lo, min(v, hi))
}
