package render

import (
	"bytes"
	"fmt"

	"github.com/disintegration/imaging"
)

// DefaultThumbnailSize is the edge length of derived thumbnails, in pixels.
const DefaultThumbnailSize = 350

// Thumbnail decodes image and resizes it to a size×size PNG.
func Thumbnail(image []byte, size int) ([]byte, error) {
	if size <= 0 {
		size = DefaultThumbnailSize
	}

	img, err := imaging.Decode(bytes.NewReader(image))
	if err != nil {
		return nil, fmt.Errorf("render: decode image: %w", err)
	}

	resized := imaging.Resize(img, size, size, imaging.Lanczos)

	var buf bytes.Buffer
	if err := imaging.Encode(&buf, resized, imaging.PNG); err != nil {
		return nil, fmt.Errorf("render: encode thumbnail: %w", err)
	}
	return buf.Bytes(), nil
}
