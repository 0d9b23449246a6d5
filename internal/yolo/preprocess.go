package yolo

import (
	"image"
	"image/color"
	"runtime"
	"sync"

	"github.com/disintegration/imaging"
)

const (
	// InputSize is the side length of the square tensor both model graphs
	// take as input.
	InputSize = 640

	channels = 3
)

// padColor is the neutral gray the YOLO exports were trained to ignore.
var padColor = color.NRGBA{R: 114, G: 114, B: 114, A: 255}

// letterbox records how a source image was scaled and padded into the
// model's square input so decoded boxes can be mapped back to source
// coordinates.
type letterbox struct {
	srcW, srcH       int
	scaledW, scaledH int
	padX, padY       int
}

func newLetterbox(srcW, srcH int) letterbox {
	scale := float64(InputSize) / float64(srcW)
	if s := float64(InputSize) / float64(srcH); s < scale {
		scale = s
	}
	scaledW := int(float64(srcW) * scale)
	scaledH := int(float64(srcH) * scale)
	if scaledW < 1 {
		scaledW = 1
	}
	if scaledH < 1 {
		scaledH = 1
	}
	return letterbox{
		srcW:    srcW,
		srcH:    srcH,
		scaledW: scaledW,
		scaledH: scaledH,
		padX:    (InputSize - scaledW) / 2,
		padY:    (InputSize - scaledH) / 2,
	}
}

// toSource maps an (x1,y1,x2,y2) box from input-tensor coordinates back
// into source-image pixels, clamped to the source bounds.
func (lb letterbox) toSource(box [4]float32) [4]float32 {
	sx := float32(lb.srcW) / float32(lb.scaledW)
	sy := float32(lb.srcH) / float32(lb.scaledH)
	return [4]float32{
		clampF((box[0]-float32(lb.padX))*sx, 0, float32(lb.srcW)),
		clampF((box[1]-float32(lb.padY))*sy, 0, float32(lb.srcH)),
		clampF((box[2]-float32(lb.padX))*sx, 0, float32(lb.srcW)),
		clampF((box[3]-float32(lb.padY))*sy, 0, float32(lb.srcH)),
	}
}

// prepareInput letterboxes img onto a gray canvas and fills dst with the
// normalized CHW float32 pixels the graphs expect. dst must hold
// 3*InputSize*InputSize values.
func prepareInput(img image.Image, dst []float32) letterbox {
	lb := newLetterbox(img.Bounds().Dx(), img.Bounds().Dy())

	resized := imaging.Resize(img, lb.scaledW, lb.scaledH, imaging.Linear)
	canvas := imaging.New(InputSize, InputSize, padColor)
	// Paste at the letterbox's own offsets; PasteCenter rounds the other
	// way for odd scaled dimensions and would shift the inverse mapping
	// by a pixel.
	canvas = imaging.Paste(canvas, resized, image.Pt(lb.padX, lb.padY))

	fillCHW(canvas, dst)
	return lb
}

// fillCHW converts the canvas to planar RGB floats in [0,1], splitting
// rows across workers.
func fillCHW(canvas *image.NRGBA, dst []float32) {
	channelSize := InputSize * InputSize
	numWorkers := runtime.GOMAXPROCS(0)
	rowsPerWorker := InputSize / numWorkers
	if rowsPerWorker < 1 {
		rowsPerWorker = 1
		numWorkers = InputSize
	}

	var wg sync.WaitGroup
	wg.Add(numWorkers)
	for w := 0; w < numWorkers; w++ {
		startRow := w * rowsPerWorker
		endRow := (w + 1) * rowsPerWorker
		if w == numWorkers-1 {
			endRow = InputSize
		}

		go func(start, end int) {
			defer wg.Done()
			for y := start; y < end; y++ {
				rowOff := y * canvas.Stride
				dstOff := y * InputSize
				for x := 0; x < InputSize; x++ {
					pix := rowOff + x*4
					i := dstOff + x
					dst[i] = float32(canvas.Pix[pix]) / 255.0
					dst[channelSize+i] = float32(canvas.Pix[pix+1]) / 255.0
					dst[channelSize*2+i] = float32(canvas.Pix[pix+2]) / 255.0
				}
			}
		}(startRow, endRow)
	}
	wg.Wait()
}

func clampF(v, lo, hi float32) float32 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
