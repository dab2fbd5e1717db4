package raster

import (
	"image"

	"github.com/disintegration/imaging"
)

// Enhancement constants tuned for scanned hospital bills: lift contrast so
// faint dot-matrix print survives downscaling, desaturate to suppress
// yellowed-paper tint, then a mild sharpen for small-type line items.
const (
	contrastDelta   = 12
	saturationDelta = -20
	sharpenSigma    = 0.6
)

// Enhance applies the deterministic page clean-up pass. Same input image
// always produces the same output; page geometry is never altered.
func Enhance(img image.Image) image.Image {
	out := imaging.AdjustContrast(img, contrastDelta)
	out = imaging.AdjustSaturation(out, saturationDelta)
	out = imaging.Sharpen(out, sharpenSigma)
	return out
}
