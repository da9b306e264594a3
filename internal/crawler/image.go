package crawler

import (
	"bytes"
	"image"
	"image/png"

	"golang.org/x/image/draw"
)

// ReadySize is the edge length of ready item images.
const ReadySize = 150

// ReadyImage decodes a PNG thumbnail and returns it scaled to ReadySize.
func ReadyImage(data []byte) ([]byte, error) {
	src, err := png.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, err
	}

	dst := image.NewRGBA(image.Rect(0, 0, ReadySize, ReadySize))
	draw.CatmullRom.Scale(dst, dst.Bounds(), src, src.Bounds(), draw.Over, nil)

	var buf bytes.Buffer
	if err := png.Encode(&buf, dst); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
