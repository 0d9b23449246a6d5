package yolo

import (
	"image"
	"math"

	"github.com/disintegration/imaging"
)

const (
	numProtos = 32
	protoSize = 160

	// protoStride is the downsample factor between the input tensor and
	// the prototype plane (640 / 160).
	protoStride = InputSize / protoSize

	maskThreshold = 0.5
)

// decodeSegmentation turns the segmentation head's raw output plus the
// prototype tensor into predictions carrying source-image-sized binary
// masks. out is [segmentChannels x numAnchors], protos is
// [numProtos x protoSize x protoSize].
func decodeSegmentation(out, protos []float32, lb letterbox, confTh, iouTh float32) []Detection {
	cands := decodeCandidates(out, confTh, iouTh)
	dets := make([]Detection, 0, len(cands))
	for _, c := range cands {
		var coeffs [numProtos]float32
		for k := 0; k < numProtos; k++ {
			coeffs[k] = out[(detectChannels+k)*numAnchors+c.anchor]
		}
		dets = append(dets, Detection{
			Box:        lb.toSource(c.box),
			Confidence: c.conf,
			Class:      c.class,
			Mask:       buildMask(coeffs, protos, c.box, lb),
		})
	}
	return dets
}

// buildMask evaluates the prototype combination inside the box, crops the
// letterbox padding away, and upsamples the result to source-image size.
func buildMask(coeffs [numProtos]float32, protos []float32, box [4]float32, lb letterbox) *image.Gray {
	plane := image.NewGray(image.Rect(0, 0, protoSize, protoSize))

	// Evaluate only inside the box; everything outside stays zero.
	x0 := clampI(int(box[0])/protoStride, 0, protoSize-1)
	y0 := clampI(int(box[1])/protoStride, 0, protoSize-1)
	x1 := clampI(int(box[2])/protoStride+1, 1, protoSize)
	y1 := clampI(int(box[3])/protoStride+1, 1, protoSize)

	const planeSize = protoSize * protoSize
	for y := y0; y < y1; y++ {
		row := y * protoSize
		for x := x0; x < x1; x++ {
			var s float32
			for k := 0; k < numProtos; k++ {
				s += coeffs[k] * protos[k*planeSize+row+x]
			}
			if sigmoid(s) > maskThreshold {
				plane.Pix[row+x] = 255
			}
		}
	}

	// Crop to the region the source image actually occupies, then scale
	// up to source dimensions and re-binarize after interpolation.
	content := image.Rect(
		lb.padX/protoStride,
		lb.padY/protoStride,
		(lb.padX+lb.scaledW+protoStride-1)/protoStride,
		(lb.padY+lb.scaledH+protoStride-1)/protoStride,
	)
	resized := imaging.Resize(plane.SubImage(content), lb.srcW, lb.srcH, imaging.Linear)

	mask := image.NewGray(image.Rect(0, 0, lb.srcW, lb.srcH))
	for i := 0; i < lb.srcW*lb.srcH; i++ {
		if resized.Pix[i*4] >= 128 {
			mask.Pix[i] = 255
		}
	}
	return mask
}

func sigmoid(x float32) float32 {
	return float32(1 / (1 + math.Exp(-float64(x))))
}

func clampI(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
