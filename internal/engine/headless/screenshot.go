package headless

import (
	"bytes"
	"encoding/base64"
	"fmt"
	"image"
	"image/color"
	"image/draw"
	"image/jpeg"
	"image/png"
	"math"
)

const maxScreenshotPixels = 16384

type screenshotParams struct {
	MimeType string `json:"mimeType"`
	FullPage bool   `json:"fullPage"`
	Clip     *struct {
		X      float64 `json:"x"`
		Y      float64 `json:"y"`
		Width  float64 `json:"width"`
		Height float64 `json:"height"`
	} `json:"clip"`
}

// screenshot renders the viewport, or the clip, as a base64 image. Pages
// are not painted, so the image is the blank canvas.
func screenshot(p screenshotParams, width, height int, scale float64) (string, error) {
	if scale <= 0 {
		scale = 1
	}
	w, h := float64(width), float64(height)
	if p.Clip != nil {
		if p.Clip.Width <= 0 || p.Clip.Height <= 0 {
			return "", fmt.Errorf("clip must have positive size, got %vx%v", p.Clip.Width, p.Clip.Height)
		}
		w, h = p.Clip.Width, p.Clip.Height
	}
	pw := int(math.Ceil(w * scale))
	ph := int(math.Ceil(h * scale))
	if pw > maxScreenshotPixels || ph > maxScreenshotPixels {
		return "", fmt.Errorf("screenshot of %dx%d exceeds the %d pixel limit", pw, ph, maxScreenshotPixels)
	}

	img := image.NewRGBA(image.Rect(0, 0, pw, ph))
	draw.Draw(img, img.Bounds(), image.NewUniform(color.White), image.Point{}, draw.Src)

	var buf bytes.Buffer
	switch p.MimeType {
	case "image/jpeg":
		if err := jpeg.Encode(&buf, img, &jpeg.Options{Quality: 90}); err != nil {
			return "", fmt.Errorf("failed to encode jpeg: %w", err)
		}
	case "image/png", "":
		if err := png.Encode(&buf, img); err != nil {
			return "", fmt.Errorf("failed to encode png: %w", err)
		}
	default:
		return "", fmt.Errorf("unsupported screenshot type %q", p.MimeType)
	}
	return base64.StdEncoding.EncodeToString(buf.Bytes()), nil
}
