package server

import (
	"bytes"
	"fmt"

	"github.com/disintegration/imaging"
)

const (
	backdropWidth   = 480
	backdropSigma   = 12
	backdropQuality = 70
)

// backdrop renders a small blurred JPEG of an image, used behind
// content whose aspect ratio does not fill the screen.
func backdrop(data []byte, rotation int) ([]byte, error) {
	img, err := imaging.Decode(bytes.NewReader(data), imaging.AutoOrientation(true))
	if err != nil {
		return nil, fmt.Errorf("decoding image: %w", err)
	}

	switch ((rotation % 360) + 360) % 360 {
	case 90:
		img = imaging.Rotate270(img) // clockwise
	case 180:
		img = imaging.Rotate180(img)
	case 270:
		img = imaging.Rotate90(img)
	}

	out := imaging.Resize(img, backdropWidth, 0, imaging.Lanczos)
	out = imaging.Blur(out, backdropSigma)

	var buf bytes.Buffer
	if err := imaging.Encode(&buf, out, imaging.JPEG, imaging.JPEGQuality(backdropQuality)); err != nil {
		return nil, fmt.Errorf("encoding jpeg: %w", err)
	}
	return buf.Bytes(), nil
}
