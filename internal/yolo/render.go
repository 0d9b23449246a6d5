package yolo

import (
	"fmt"
	"image"
	"image/color"

	"github.com/disintegration/imaging"
	"github.com/fogleman/gg"
	"github.com/golang/freetype/truetype"
	"golang.org/x/image/font/gofont/goregular"
)

var overlayFont *truetype.Font

// init sets up the font used for detection captions.
func init() {
	var err error
	overlayFont, err = truetype.Parse(goregular.TTF)
	if err != nil {
		panic(err)
	}
}

const (
	labelTextSize = 14.0
	boxLineWidth  = 2.0
	maskAlpha     = 128
)

// classPalette cycles per class index so overlapping instances of
// different classes stay distinguishable.
var classPalette = []color.NRGBA{
	{R: 255, G: 56, B: 56, A: 255},
	{R: 255, G: 157, B: 151, A: 255},
	{R: 255, G: 112, B: 31, A: 255},
	{R: 255, G: 178, B: 29, A: 255},
	{R: 207, G: 210, B: 49, A: 255},
	{R: 72, G: 249, B: 10, A: 255},
	{R: 146, G: 204, B: 23, A: 255},
	{R: 61, G: 219, B: 134, A: 255},
	{R: 26, G: 147, B: 52, A: 255},
	{R: 0, G: 212, B: 187, A: 255},
	{R: 44, G: 153, B: 168, A: 255},
	{R: 0, G: 194, B: 255, A: 255},
	{R: 52, G: 69, B: 147, A: 255},
	{R: 100, G: 115, B: 255, A: 255},
	{R: 0, G: 24, B: 236, A: 255},
	{R: 132, G: 56, B: 255, A: 255},
	{R: 82, G: 0, B: 133, A: 255},
	{R: 203, G: 56, B: 255, A: 255},
	{R: 255, G: 149, B: 200, A: 255},
	{R: 255, G: 55, B: 199, A: 255},
}

func classColor(class int) color.NRGBA {
	if class < 0 {
		class = -class
	}
	return classPalette[class%len(classPalette)]
}

// RenderOverlay burns masks, boxes, and "label confidence" captions into
// a copy of the source image.
func RenderOverlay(src image.Image, dets []Detection, names []string) image.Image {
	base := imaging.Clone(src)

	for _, d := range dets {
		if d.Mask != nil {
			tintMask(base, d.Mask, classColor(d.Class))
		}
	}

	dc := gg.NewContextForImage(base)
	dc.SetFontFace(truetype.NewFace(overlayFont, &truetype.Options{Size: labelTextSize}))
	for _, d := range dets {
		c := classColor(d.Class)
		x1, y1 := float64(d.Box[0]), float64(d.Box[1])
		w := float64(d.Box[2] - d.Box[0])
		h := float64(d.Box[3] - d.Box[1])

		dc.SetColor(c)
		dc.SetLineWidth(boxLineWidth)
		dc.DrawRectangle(x1, y1, w, h)
		dc.Stroke()

		ty := y1 - 4
		if ty < labelTextSize {
			ty = y1 + labelTextSize + 2
		}
		dc.DrawString(fmt.Sprintf("%s %.2f", labelFor(names, d.Class), d.Confidence), x1+2, ty)
	}
	return dc.Image()
}

func labelFor(names []string, class int) string {
	if class >= 0 && class < len(names) {
		return names[class]
	}
	return fmt.Sprintf("class %d", class)
}

// tintMask alpha-blends the class color over every masked pixel.
func tintMask(dst *image.NRGBA, mask *image.Gray, c color.NRGBA) {
	bounds := dst.Bounds().Intersect(mask.Bounds())
	for y := bounds.Min.Y; y < bounds.Max.Y; y++ {
		for x := bounds.Min.X; x < bounds.Max.X; x++ {
			if mask.GrayAt(x, y).Y == 0 {
				continue
			}
			off := dst.PixOffset(x, y)
			dst.Pix[off] = blend(dst.Pix[off], c.R)
			dst.Pix[off+1] = blend(dst.Pix[off+1], c.G)
			dst.Pix[off+2] = blend(dst.Pix[off+2], c.B)
		}
	}
}

func blend(base, tint uint8) uint8 {
	return uint8((int(base)*(255-maskAlpha) + int(tint)*maskAlpha) / 255)
}
