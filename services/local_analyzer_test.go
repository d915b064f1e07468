package services

import (
	"bytes"
	"image"
	"image/color"
	"image/png"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func encodePNG(t *testing.T, img image.Image) []byte {
	t.Helper()
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, img))
	return buf.Bytes()
}

func solidImage(t *testing.T, c color.RGBA) []byte {
	img := image.NewRGBA(image.Rect(0, 0, 64, 64))
	for y := 0; y < 64; y++ {
		for x := 0; x < 64; x++ {
			img.Set(x, y, c)
		}
	}
	return encodePNG(t, img)
}

func stripedImage(t *testing.T) []byte {
	img := image.NewRGBA(image.Rect(0, 0, 64, 64))
	for y := 0; y < 64; y++ {
		for x := 0; x < 64; x++ {
			if (x/4)%2 == 0 {
				img.Set(x, y, color.RGBA{255, 255, 255, 255})
			} else {
				img.Set(x, y, color.RGBA{0, 0, 0, 255})
			}
		}
	}
	return encodePNG(t, img)
}

func TestAnalyzeImageLocallySolidRed(t *testing.T) {
	attrs, err := AnalyzeImageLocally(solidImage(t, color.RGBA{220, 20, 20, 255}))
	require.NoError(t, err)

	assert.Equal(t, []string{"red"}, attrs.Colors)
	assert.InDelta(t, localConfidence, attrs.Confidence, 0.001)
	assert.Equal(t, "local-heuristic", attrs.Provider)
	assert.Empty(t, attrs.SubCategory)
}

func TestAnalyzeImageLocallyStriped(t *testing.T) {
	attrs, err := AnalyzeImageLocally(stripedImage(t))
	require.NoError(t, err)

	assert.Equal(t, "striped", attrs.SubCategory)
	assert.Contains(t, attrs.DetectedFeatures, "striped")
	assert.ElementsMatch(t, []string{"black", "white"}, attrs.Colors)
}

func TestAnalyzeImageLocallyCorruptBytes(t *testing.T) {
	_, err := AnalyzeImageLocally([]byte("definitely not an image"))
	assert.Error(t, err)
}

func TestClassifyColor(t *testing.T) {
	cases := []struct {
		r, g, b uint8
		want    string
	}{
		{255, 255, 255, "white"},
		{8, 8, 8, "black"},
		{128, 128, 128, "gray"},
		{220, 20, 20, "red"},
		{240, 140, 40, "orange"},
		{120, 70, 20, "brown"},
		{230, 220, 40, "yellow"},
		{40, 180, 60, "green"},
		{40, 120, 220, "blue"},
		{150, 60, 200, "purple"},
		{240, 100, 180, "pink"},
	}
	for _, c := range cases {
		assert.Equal(t, c.want, classifyColor(c.r, c.g, c.b), "rgb(%d,%d,%d)", c.r, c.g, c.b)
	}
}

func TestClassifyColorCoversEveryInput(t *testing.T) {
	for r := 0; r <= 255; r += 17 {
		for g := 0; g <= 255; g += 17 {
			for b := 0; b <= 255; b += 17 {
				name := classifyColor(uint8(r), uint8(g), uint8(b))
				assert.NotEmpty(t, name, "rgb(%d,%d,%d)", r, g, b)
				assert.NotEqual(t, "other", name, "rgb(%d,%d,%d)", r, g, b)
			}
		}
	}
}

func TestDominantColorsTopThree(t *testing.T) {
	img := image.NewRGBA(image.Rect(0, 0, 64, 64))
	palette := []color.RGBA{
		{220, 20, 20, 255},  // red
		{40, 120, 220, 255}, // blue
		{40, 180, 60, 255},  // green
		{230, 220, 40, 255}, // yellow
	}
	for y := 0; y < 64; y++ {
		for x := 0; x < 64; x++ {
			img.Set(x, y, palette[(y/16)%len(palette)])
		}
	}

	attrs, err := AnalyzeImageLocally(encodePNG(t, img))
	require.NoError(t, err)
	assert.Len(t, attrs.Colors, 3, "palette is capped at the top 3 colors")
}
