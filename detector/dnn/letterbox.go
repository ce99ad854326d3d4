package dnn

import (
	"image"
	"image/color"

	"gocv.io/x/gocv"
)

// letterbox scales frames into the square model input whilst maintaining
// aspect, and maps model coordinates back into normalized frame coordinates
type letterbox struct {
	srcWidth  int
	srcHeight int
	size      int
	// tempMat is a Mat used during the resize process
	tempMat gocv.Mat
	xPad    int
	yPad    int
	scale   float64
	resizeW int
	resizeH int
}

// newLetterbox returns a letterbox for frames of srcWidth x srcHeight and a
// model input of size x size
func newLetterbox(srcWidth, srcHeight, size int) *letterbox {

	l := &letterbox{
		srcWidth:  srcWidth,
		srcHeight: srcHeight,
		size:      size,
		tempMat:   gocv.NewMat(),
	}

	l.preCalc()

	return l
}

// Close frees memory allocated during resize process
func (l *letterbox) Close() error {
	return l.tempMat.Close()
}

// fits reports whether the letterbox was calculated for frames of this size
func (l *letterbox) fits(width, height int) bool {
	return l.srcWidth == width && l.srcHeight == height
}

func (l *letterbox) preCalc() {

	l.resizeW = l.size
	l.resizeH = l.size

	scaleW := float64(l.size) / float64(l.srcWidth)
	scaleH := float64(l.size) / float64(l.srcHeight)
	l.scale = scaleH

	if scaleW < scaleH {
		l.scale = scaleW
		l.resizeH = int(float64(l.srcHeight) * l.scale)
	} else {
		l.resizeW = int(float64(l.srcWidth) * l.scale)
	}

	l.yPad = (l.size - l.resizeH) / 2
	l.xPad = (l.size - l.resizeW) / 2
}

// Resize scales src into dest padding the borders with pad
func (l *letterbox) Resize(src gocv.Mat, dest *gocv.Mat, pad color.RGBA) {

	gocv.Resize(src, &l.tempMat, image.Pt(l.resizeW, l.resizeH),
		0, 0, gocv.InterpolationArea)

	gocv.CopyMakeBorder(l.tempMat, dest, l.yPad, l.size-l.resizeH-l.yPad,
		l.xPad, l.size-l.resizeW-l.xPad, gocv.BorderConstant, pad)
}

// Normalize maps a point in model input pixels to normalized frame
// coordinates.  Depth is scaled like X.
func (l *letterbox) Normalize(x, y, z float64) (float64, float64, float64) {

	fx := (x - float64(l.xPad)) / l.scale
	fy := (y - float64(l.yPad)) / l.scale
	fz := z / l.scale

	return fx / float64(l.srcWidth), fy / float64(l.srcHeight), fz / float64(l.srcWidth)
}
