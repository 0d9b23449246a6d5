package yolo

import (
	"image"
	"sort"
)

const (
	numAnchors = 8400
	numClasses = 80

	// Channel layout of the raw heads: 4 box values, then one score per
	// class, then (segmentation only) one coefficient per mask prototype.
	detectChannels  = 4 + numClasses
	segmentChannels = detectChannels + numProtos
)

// Detection is one decoded prediction in source-image coordinates.
// Mask is nil for the detect task.
type Detection struct {
	Box        [4]float32
	Confidence float32
	Class      int
	Mask       *image.Gray
}

// candidate is a raw above-threshold anchor, still in input-tensor
// coordinates. anchor is kept so the segmentation decoder can look up the
// anchor's mask coefficients after suppression.
type candidate struct {
	box    [4]float32
	conf   float32
	class  int
	anchor int
}

// decodeCandidates scans a channel-major [chans x numAnchors] head for
// anchors whose best class score clears confTh, then suppresses per-class
// overlaps above iouTh, keeping the higher-confidence box. Both heads
// share the anchor stride, so the same scan serves detect and segment.
func decodeCandidates(out []float32, confTh, iouTh float32) []candidate {
	cands := make([]candidate, 0, 64)
	for a := 0; a < numAnchors; a++ {
		best := 0
		score := out[4*numAnchors+a]
		for c := 1; c < numClasses; c++ {
			if s := out[(4+c)*numAnchors+a]; s > score {
				score = s
				best = c
			}
		}
		if score < confTh {
			continue
		}
		cx := out[a]
		cy := out[numAnchors+a]
		w := out[2*numAnchors+a]
		h := out[3*numAnchors+a]
		cands = append(cands, candidate{
			box:    [4]float32{cx - w/2, cy - h/2, cx + w/2, cy + h/2},
			conf:   score,
			class:  best,
			anchor: a,
		})
	}
	return suppress(cands, iouTh)
}

// suppress is greedy per-class non-maximum suppression.
func suppress(cands []candidate, iouTh float32) []candidate {
	sort.Slice(cands, func(i, j int) bool {
		return cands[i].conf > cands[j].conf
	})
	kept := make([]candidate, 0, len(cands))
	for _, c := range cands {
		keep := true
		for _, k := range kept {
			if k.class == c.class && iou(k.box, c.box) > iouTh {
				keep = false
				break
			}
		}
		if keep {
			kept = append(kept, c)
		}
	}
	return kept
}

// decodeDetections turns the detection head's raw output into final
// predictions in source-image coordinates.
func decodeDetections(out []float32, lb letterbox, confTh, iouTh float32) []Detection {
	cands := decodeCandidates(out, confTh, iouTh)
	dets := make([]Detection, 0, len(cands))
	for _, c := range cands {
		dets = append(dets, Detection{
			Box:        lb.toSource(c.box),
			Confidence: c.conf,
			Class:      c.class,
		})
	}
	return dets
}

func iou(box1, box2 [4]float32) float32 {
	x1 := maxF(box1[0], box2[0])
	y1 := maxF(box1[1], box2[1])
	x2 := minF(box1[2], box2[2])
	y2 := minF(box1[3], box2[3])

	if x2 <= x1 || y2 <= y1 {
		return 0
	}

	intersection := (x2 - x1) * (y2 - y1)
	area1 := (box1[2] - box1[0]) * (box1[3] - box1[1])
	area2 := (box2[2] - box2[0]) * (box2[3] - box2[1])
	return intersection / (area1 + area2 - intersection)
}

func minF(a, b float32) float32 {
	if a < b {
		return a
	}
	return b
}

func maxF(a, b float32) float32 {
	if a > b {
		return a
	}
	return b
}
