// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

package waveform

import (
	"image"
	"image/color"
	"image/png"
	"io"
)

var background = color.RGBA{R: 238, G: 238, B: 238, A: 255}

// renderPNG draws the envelope as one vertical line per bucket, centered
// on the horizontal midline, and writes the PNG to w. The image width is
// one pixel per bucket. Lines are punched out as transparent pixels so
// the waveform takes the color of whatever the page renders beneath it;
// the quietest-possible vector still spans the full height because every
// value is lifted by the gap between the loudest bucket and full scale.
func renderPNG(w io.Writer, data []float64, height int) error {
	width := len(data)
	img := image.NewRGBA(image.Rect(0, 0, width, height))
	for y := 0; y < height; y++ {
		for x := 0; x < width; x++ {
			img.SetRGBA(x, y, background)
		}
	}

	var max float64
	for _, v := range data {
		if v > max {
			max = v
		}
	}
	lift := 1 - max

	mid := height / 2
	clear := color.RGBA{}
	for x, v := range data {
		half := int((v + lift) * float64(height) / 2)
		for y := mid - half; y <= mid+half; y++ {
			if y < 0 || y >= height {
				continue
			}
			img.SetRGBA(x, y, clear)
		}
	}
	return png.Encode(w, img)
}
