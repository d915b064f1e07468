package services

import (
	"bytes"
	"fmt"
	"image"
	"math"
	"sort"

	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"

	"closetapi/models"
)

// Local pixel analysis: no network, fixed confidence. Used as the augmentation
// path when a provider result is weak and as the last sensible signal before
// the gateway default.

const (
	localSampleGrid = 64
	localConfidence = 0.7

	// mean adjacent-pixel luminance delta above this reads as a stripe pattern
	stripeLuminanceThreshold = 28.0
	stripeScanlines          = 16
)

// AnalyzeImageLocally derives a color palette and a coarse texture signal
// directly from pixel data. Pure function of the image bytes.
func AnalyzeImageLocally(imageBytes []byte) (*models.ClothingAttributes, error) {
	img, _, err := image.Decode(bytes.NewReader(imageBytes))
	if err != nil {
		return nil, fmt.Errorf("failed to decode image: %w", err)
	}

	attrs := &models.ClothingAttributes{
		Colors:     dominantColors(img),
		Confidence: localConfidence,
		Provider:   "local-heuristic",
	}
	if looksStriped(img) {
		attrs.SubCategory = "striped"
		attrs.Style = "casual"
		attrs.DetectedFeatures = []string{"striped"}
	}
	return attrs, nil
}

// dominantColors samples the image on a fixed grid, names every opaque pixel
// and returns the top 3 color names by frequency. Never returns an empty
// slice: failed extraction yields ["unknown"].
func dominantColors(img image.Image) []string {
	bounds := img.Bounds()
	width, height := bounds.Dx(), bounds.Dy()
	if width == 0 || height == 0 {
		return []string{"unknown"}
	}

	stepX := width / localSampleGrid
	if stepX < 1 {
		stepX = 1
	}
	stepY := height / localSampleGrid
	if stepY < 1 {
		stepY = 1
	}

	counts := map[string]int{}
	for y := bounds.Min.Y; y < bounds.Max.Y; y += stepY {
		for x := bounds.Min.X; x < bounds.Max.X; x += stepX {
			r, g, b, a := img.At(x, y).RGBA()
			if a < 0x8000 {
				continue
			}
			name := classifyColor(uint8(r>>8), uint8(g>>8), uint8(b>>8))
			if name == "other" {
				continue
			}
			counts[name]++
		}
	}

	names := make([]string, 0, len(counts))
	for name := range counts {
		names = append(names, name)
	}
	sort.Slice(names, func(i, j int) bool {
		if counts[names[i]] != counts[names[j]] {
			return counts[names[i]] > counts[names[j]]
		}
		return names[i] < names[j]
	})
	if len(names) > 3 {
		names = names[:3]
	}
	if len(names) == 0 {
		return []string{"unknown"}
	}
	return names
}

// classifyColor buckets an RGB value into a small named palette via HSL:
// white/black/gray by lightness and saturation, the rest by fixed hue bands.
func classifyColor(r, g, b uint8) string {
	h, s, l := rgbToHSL(r, g, b)

	if l > 0.9 {
		return "white"
	}
	if l < 0.12 {
		return "black"
	}
	if s < 0.12 {
		return "gray"
	}

	switch {
	case h < 15 || h >= 345:
		return "red"
	case h < 45:
		// dark orange reads as brown on fabric
		if l < 0.35 {
			return "brown"
		}
		return "orange"
	case h < 70:
		return "yellow"
	case h < 160:
		return "green"
	case h < 200:
		return "cyan"
	case h < 255:
		return "blue"
	case h < 290:
		return "purple"
	default:
		// 290 up to the red wraparound at 345
		return "pink"
	}
}

func rgbToHSL(r, g, b uint8) (h, s, l float64) {
	rf := float64(r) / 255.0
	gf := float64(g) / 255.0
	bf := float64(b) / 255.0

	max := math.Max(rf, math.Max(gf, bf))
	min := math.Min(rf, math.Min(gf, bf))
	l = (max + min) / 2

	if max == min {
		return 0, 0, l
	}

	d := max - min
	if l > 0.5 {
		s = d / (2 - max - min)
	} else {
		s = d / (max + min)
	}

	switch max {
	case rf:
		h = (gf - bf) / d
		if gf < bf {
			h += 6
		}
	case gf:
		h = (bf-rf)/d + 2
	default:
		h = (rf-gf)/d + 4
	}
	h *= 60
	return h, s, l
}

// looksStriped estimates a binary stripe signal from the average
// adjacent-pixel luminance delta across sampled scanlines.
func looksStriped(img image.Image) bool {
	bounds := img.Bounds()
	width, height := bounds.Dx(), bounds.Dy()
	if width < 2 || height < stripeScanlines {
		return false
	}

	rowStep := height / stripeScanlines
	if rowStep < 1 {
		rowStep = 1
	}

	var totalDelta float64
	var samples int
	for y := bounds.Min.Y; y < bounds.Max.Y; y += rowStep {
		prev := -1.0
		for x := bounds.Min.X; x < bounds.Max.X; x++ {
			r, g, b, a := img.At(x, y).RGBA()
			if a < 0x8000 {
				prev = -1.0
				continue
			}
			lum := 0.299*float64(r>>8) + 0.587*float64(g>>8) + 0.114*float64(b>>8)
			if prev >= 0 {
				totalDelta += math.Abs(lum - prev)
				samples++
			}
			prev = lum
		}
	}
	if samples == 0 {
		return false
	}
	return totalDelta/float64(samples) > stripeLuminanceThreshold
}
